package cli

import (
	"context"
	"flag"
	"fmt"
	"time"

	"github.com/carepoint/gatekeeper/pkg/auth"
	"github.com/carepoint/gatekeeper/pkg/session"
	"github.com/google/uuid"
)

func newSeedSessionCommand() *Command {
	cmd := &Command{
		Name:        "seed-session",
		Description: "Create an active session and optionally a token bound to it",
		Flags:       flag.NewFlagSet("seed-session", flag.ExitOnError),
		Run:         runSeedSession,
	}

	cmd.Flags.String("subject", "", "Session owner (user id)")
	cmd.Flags.String("user-agent", "", "User agent the session is fingerprinted to")
	cmd.Flags.String("fingerprint", "", "Explicit device fingerprint (overrides user-agent)")
	cmd.Flags.String("ip", "", "Client IP recorded on the session")
	cmd.Flags.Duration("ttl", session.DefaultTTL, "Session lifetime")
	cmd.Flags.Int64("max-sessions", session.DefaultMaxSessions, "Concurrent session limit to enforce")
	cmd.Flags.String("role", "", "Also issue a token with this role")
	cmd.Flags.String("clinic", "", "Clinic id claim for the issued token")
	cmd.Flags.String("secret", getEnv("GATEKEEPER_JWT_SECRET", ""), "HMAC signing secret for the issued token")
	cmd.Flags.String("issuer", getEnv("GATEKEEPER_JWT_ISSUER", ""), "Issuer claim for the issued token")
	addRedisFlag(cmd.Flags)

	return cmd
}

func runSeedSession(args []string) error {
	cmd := newSeedSessionCommand()
	if err := cmd.Flags.Parse(args); err != nil {
		return err
	}

	subject := stringFlag(cmd.Flags, "subject")
	if subject == "" {
		return fmt.Errorf("subject is required")
	}
	role := stringFlag(cmd.Flags, "role")
	secret := stringFlag(cmd.Flags, "secret")
	if role != "" && secret == "" {
		return fmt.Errorf("secret is required to issue a token")
	}

	fingerprint := stringFlag(cmd.Flags, "fingerprint")
	userAgent := stringFlag(cmd.Flags, "user-agent")
	if fingerprint == "" {
		fingerprint = session.Fingerprint(userAgent)
	}

	store, err := openStore(cmd.Flags)
	if err != nil {
		return err
	}
	defer store.Close()

	ctx := context.Background()
	ttl := durationFlag(cmd.Flags, "ttl")
	now := time.Now().UTC()
	record := &session.Record{
		SessionID:         uuid.NewString(),
		OwnerID:           subject,
		IsActive:          true,
		CreatedAt:         now,
		LastActivityAt:    now,
		DeviceFingerprint: fingerprint,
		DeviceInfo:        session.DeviceInfo{UserAgent: userAgent},
		IPAddress:         stringFlag(cmd.Flags, "ip"),
	}

	repo := session.NewRepository(store)
	if err := repo.Save(ctx, record, ttl); err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}

	limiter := session.NewLimiter(store, nil, int64Flag(cmd.Flags, "max-sessions"), 24*time.Hour, nil)
	if err := limiter.Admit(ctx, subject, record.SessionID); err != nil {
		if delErr := repo.Delete(ctx, subject, record.SessionID); delErr != nil {
			fmt.Fprintf(output, "warning: failed to remove rejected session: %v\n", delErr)
		}
		return fmt.Errorf("session not admitted: %w", err)
	}

	fmt.Fprintf(output, "session %s\n", record.SessionID)

	if role != "" {
		raw, _, err := issueToken(secret, stringFlag(cmd.Flags, "issuer"), 0, auth.IssueRequest{
			Subject:   subject,
			Role:      role,
			SessionID: record.SessionID,
			ClinicID:  stringFlag(cmd.Flags, "clinic"),
		})
		if err != nil {
			return err
		}
		fmt.Fprintf(output, "token %s\n", raw)
	}
	return nil
}

func newEndSessionCommand() *Command {
	cmd := &Command{
		Name:        "end-session",
		Description: "Delete a session and release its concurrent-session slot",
		Flags:       flag.NewFlagSet("end-session", flag.ExitOnError),
		Run:         runEndSession,
	}

	cmd.Flags.String("subject", "", "Session owner (user id)")
	cmd.Flags.String("session", "", "Session id")
	addRedisFlag(cmd.Flags)

	return cmd
}

func runEndSession(args []string) error {
	cmd := newEndSessionCommand()
	if err := cmd.Flags.Parse(args); err != nil {
		return err
	}

	subject := stringFlag(cmd.Flags, "subject")
	sessionID := stringFlag(cmd.Flags, "session")
	if subject == "" || sessionID == "" {
		return fmt.Errorf("subject and session are required")
	}

	store, err := openStore(cmd.Flags)
	if err != nil {
		return err
	}
	defer store.Close()

	ctx := context.Background()
	if err := session.NewRepository(store).Delete(ctx, subject, sessionID); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	if err := session.NewLimiter(store, nil, session.DefaultMaxSessions, 0, nil).Release(ctx, subject, sessionID); err != nil {
		return fmt.Errorf("failed to release session: %w", err)
	}

	fmt.Fprintf(output, "ended session %s\n", sessionID)
	return nil
}

func newSessionsCommand() *Command {
	cmd := &Command{
		Name:        "sessions",
		Description: "List the sessions counted against a user's limit",
		Flags:       flag.NewFlagSet("sessions", flag.ExitOnError),
		Run:         runSessions,
	}

	cmd.Flags.String("subject", "", "Session owner (user id)")
	addRedisFlag(cmd.Flags)

	return cmd
}

func runSessions(args []string) error {
	cmd := newSessionsCommand()
	if err := cmd.Flags.Parse(args); err != nil {
		return err
	}

	subject := stringFlag(cmd.Flags, "subject")
	if subject == "" {
		return fmt.Errorf("subject is required")
	}

	store, err := openStore(cmd.Flags)
	if err != nil {
		return err
	}
	defer store.Close()

	active, err := session.NewLimiter(store, nil, session.DefaultMaxSessions, 0, nil).Active(context.Background(), subject)
	if err != nil {
		return fmt.Errorf("failed to list sessions: %w", err)
	}

	if len(active) == 0 {
		fmt.Fprintln(output, "no active sessions")
		return nil
	}
	for _, id := range active {
		fmt.Fprintln(output, id)
	}
	return nil
}
