package cli

import (
	"context"
	"flag"
	"fmt"
	"time"

	"github.com/carepoint/gatekeeper/pkg/auth"
	"github.com/carepoint/gatekeeper/pkg/session"
)

func newIssueCommand() *Command {
	cmd := &Command{
		Name:        "issue",
		Description: "Mint an HMAC-signed bearer token",
		Flags:       flag.NewFlagSet("issue", flag.ExitOnError),
		Run:         runIssue,
	}

	cmd.Flags.String("subject", "", "Subject (user id)")
	cmd.Flags.String("role", "", "Role claim")
	cmd.Flags.String("session", "", "Session id claim")
	cmd.Flags.String("clinic", "", "Clinic id claim")
	cmd.Flags.String("location", "", "Location id claim")
	cmd.Flags.String("email", "", "Email claim")
	cmd.Flags.Duration("ttl", auth.DefaultTokenTTL, "Token lifetime")
	cmd.Flags.String("secret", getEnv("GATEKEEPER_JWT_SECRET", ""), "HMAC signing secret")
	cmd.Flags.String("issuer", getEnv("GATEKEEPER_JWT_ISSUER", ""), "Issuer claim")
	addRolesFlag(cmd.Flags)

	return cmd
}

func runIssue(args []string) error {
	cmd := newIssueCommand()
	if err := cmd.Flags.Parse(args); err != nil {
		return err
	}

	secret := stringFlag(cmd.Flags, "secret")
	if secret == "" {
		return fmt.Errorf("secret is required (flag or GATEKEEPER_JWT_SECRET)")
	}

	role := stringFlag(cmd.Flags, "role")
	if role != "" {
		roles, err := loadRoles(cmd.Flags)
		if err != nil {
			return fmt.Errorf("failed to load roles: %w", err)
		}
		if _, ok := roles.Lookup(role); !ok {
			return fmt.Errorf("unknown role %q", role)
		}
	}

	raw, claims, err := issueToken(secret, stringFlag(cmd.Flags, "issuer"), durationFlag(cmd.Flags, "ttl"), auth.IssueRequest{
		Subject:    stringFlag(cmd.Flags, "subject"),
		Role:       role,
		Email:      stringFlag(cmd.Flags, "email"),
		SessionID:  stringFlag(cmd.Flags, "session"),
		ClinicID:   stringFlag(cmd.Flags, "clinic"),
		LocationID: stringFlag(cmd.Flags, "location"),
	})
	if err != nil {
		return err
	}

	fmt.Fprintln(output, raw)
	fmt.Fprintf(output, "# jti=%s expires=%s\n", claims.ID, claims.ExpiresAt.Time.UTC().Format(time.RFC3339))
	return nil
}

func issueToken(secret, issuer string, ttl time.Duration, req auth.IssueRequest) (string, *auth.Claims, error) {
	raw, claims, err := auth.NewIssuer([]byte(secret), issuer, ttl).Issue(req)
	if err != nil {
		return "", nil, fmt.Errorf("failed to issue token: %w", err)
	}
	return raw, claims, nil
}

func newRevokeCommand() *Command {
	cmd := &Command{
		Name:        "revoke",
		Description: "Add a token id to the revocation list",
		Flags:       flag.NewFlagSet("revoke", flag.ExitOnError),
		Run:         runRevoke,
	}

	cmd.Flags.String("jti", "", "Token id to revoke")
	cmd.Flags.String("token", "", "Token to revoke; jti and expiry are read from it")
	cmd.Flags.Duration("ttl", 24*time.Hour, "How long to keep the jti listed when the expiry is unknown")
	addRedisFlag(cmd.Flags)

	return cmd
}

func runRevoke(args []string) error {
	cmd := newRevokeCommand()
	if err := cmd.Flags.Parse(args); err != nil {
		return err
	}

	jti := stringFlag(cmd.Flags, "jti")
	ttl := durationFlag(cmd.Flags, "ttl")

	var claims *auth.Claims
	if raw := stringFlag(cmd.Flags, "token"); raw != "" {
		var err error
		claims, err = auth.DecodeUnverified(raw)
		if err != nil {
			return fmt.Errorf("failed to decode token: %w", err)
		}
		jti = claims.ID
		if claims.ExpiresAt != nil {
			remaining := time.Until(claims.ExpiresAt.Time)
			if remaining <= 0 {
				fmt.Fprintln(output, "token already expired, nothing to revoke")
				return nil
			}
			ttl = remaining
		}
	}
	if jti == "" {
		return fmt.Errorf("jti or token is required")
	}

	store, err := openStore(cmd.Flags)
	if err != nil {
		return err
	}
	defer store.Close()

	ctx := context.Background()
	if err := auth.NewRevocationList(store).Revoke(ctx, jti, ttl); err != nil {
		return fmt.Errorf("failed to revoke token: %w", err)
	}

	// The token's session no longer counts toward the concurrent limit
	if claims != nil && claims.Subject != "" && claims.SessionID != "" {
		limiter := session.NewLimiter(store, nil, session.DefaultMaxSessions, 0, nil)
		if err := limiter.Release(ctx, claims.Subject, claims.SessionID); err != nil {
			return fmt.Errorf("failed to release session: %w", err)
		}
	}

	fmt.Fprintf(output, "revoked %s for %s\n", jti, ttl.Round(time.Second))
	return nil
}
