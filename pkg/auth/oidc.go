package auth

import (
	"context"
	"crypto"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
)

// OIDCConfig configures the OpenID Connect strategy
type OIDCConfig struct {
	IssuerURL string
	ClientID  string
	// JWKSURL is fetched lazily and cached by the key set
	JWKSURL string
	// SigningAlgs defaults to RS256
	SigningAlgs []string
}

// OIDCStrategy verifies provider-issued tokens against a JWKS key set
type OIDCStrategy struct {
	verifier *oidc.IDTokenVerifier
	algs     []string
}

// NewOIDCStrategy creates a strategy backed by a remote JWKS endpoint. Without
// a JWKS URL the endpoint is taken from the issuer's discovery document.
func NewOIDCStrategy(ctx context.Context, config OIDCConfig) (*OIDCStrategy, error) {
	if config.IssuerURL == "" {
		return nil, errors.New("oidc strategy requires an issuer")
	}
	if config.JWKSURL == "" {
		provider, err := oidc.NewProvider(ctx, config.IssuerURL)
		if err != nil {
			return nil, fmt.Errorf("oidc discovery failed: %w", err)
		}
		var meta struct {
			JWKSURL string `json:"jwks_uri"`
		}
		if err := provider.Claims(&meta); err != nil {
			return nil, fmt.Errorf("failed to read oidc discovery document: %w", err)
		}
		if meta.JWKSURL == "" {
			return nil, errors.New("oidc discovery document has no jwks_uri")
		}
		config.JWKSURL = meta.JWKSURL
	}
	keySet := oidc.NewRemoteKeySet(ctx, config.JWKSURL)
	return newOIDCStrategy(config, keySet, nil), nil
}

// NewStaticOIDCStrategy creates a strategy with fixed public keys
func NewStaticOIDCStrategy(config OIDCConfig, keys []crypto.PublicKey, now func() time.Time) *OIDCStrategy {
	return newOIDCStrategy(config, &oidc.StaticKeySet{PublicKeys: keys}, now)
}

func newOIDCStrategy(config OIDCConfig, keySet oidc.KeySet, now func() time.Time) *OIDCStrategy {
	algs := config.SigningAlgs
	if len(algs) == 0 {
		algs = []string{oidc.RS256}
	}

	return &OIDCStrategy{
		verifier: oidc.NewVerifier(config.IssuerURL, keySet, &oidc.Config{
			ClientID:             config.ClientID,
			SkipClientIDCheck:    config.ClientID == "",
			SupportedSigningAlgs: algs,
			Now:                  now,
		}),
		algs: algs,
	}
}

// Name identifies the strategy in logs
func (s *OIDCStrategy) Name() string {
	return "oidc"
}

// Verify validates raw with the provider's keys
func (s *OIDCStrategy) Verify(ctx context.Context, raw string) (*Claims, error) {
	alg, err := peekAlgorithm(raw)
	if err != nil {
		return nil, &VerificationError{Strategy: s.Name(), Reason: ReasonMalformed, Err: err}
	}
	if !containsString(s.algs, alg) {
		return nil, &VerificationError{
			Strategy: s.Name(),
			Reason:   ReasonNotApplicable,
			Err:      fmt.Errorf("unsupported algorithm %q", alg),
		}
	}

	idToken, err := s.verifier.Verify(ctx, raw)
	if err != nil {
		return nil, &VerificationError{Strategy: s.Name(), Reason: classifyOIDCError(err), Err: err}
	}

	claims := &Claims{}
	if err := idToken.Claims(claims); err != nil {
		return nil, &VerificationError{Strategy: s.Name(), Reason: ReasonInvalidClaims, Err: err}
	}
	if claims.Subject == "" {
		claims.Subject = idToken.Subject
	}
	if claims.Subject == "" {
		return nil, &VerificationError{
			Strategy: s.Name(),
			Reason:   ReasonInvalidClaims,
			Err:      errors.New("token has no subject"),
		}
	}

	return claims, nil
}

func classifyOIDCError(err error) FailureReason {
	var expired *oidc.TokenExpiredError
	if errors.As(err, &expired) {
		return ReasonExpired
	}

	msg := err.Error()
	switch {
	case strings.Contains(msg, "malformed"):
		return ReasonMalformed
	case strings.Contains(msg, "verify signature"):
		return ReasonBadSignature
	default:
		return ReasonInvalidClaims
	}
}
