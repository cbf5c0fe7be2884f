package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var hmacMethods = []string{"HS256", "HS384", "HS512"}

// HMACStrategy verifies shared-secret tokens issued by the login service
type HMACStrategy struct {
	secret []byte
	parser *jwt.Parser
}

// NewHMACStrategy creates an HMAC verification strategy. An empty issuer
// disables the issuer check.
func NewHMACStrategy(secret []byte, issuer string, leeway time.Duration) *HMACStrategy {
	return NewHMACStrategyWithClock(secret, issuer, leeway, nil)
}

// NewHMACStrategyWithClock is NewHMACStrategy with an injectable clock
func NewHMACStrategyWithClock(secret []byte, issuer string, leeway time.Duration, now func() time.Time) *HMACStrategy {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods(hmacMethods),
		jwt.WithLeeway(leeway),
		jwt.WithExpirationRequired(),
	}
	if issuer != "" {
		opts = append(opts, jwt.WithIssuer(issuer))
	}
	if now != nil {
		opts = append(opts, jwt.WithTimeFunc(now))
	}

	return &HMACStrategy{
		secret: secret,
		parser: jwt.NewParser(opts...),
	}
}

// Name identifies the strategy in logs
func (s *HMACStrategy) Name() string {
	return "hmac"
}

// Verify parses and validates raw
func (s *HMACStrategy) Verify(ctx context.Context, raw string) (*Claims, error) {
	alg, err := peekAlgorithm(raw)
	if err != nil {
		return nil, &VerificationError{Strategy: s.Name(), Reason: ReasonMalformed, Err: err}
	}
	if !containsString(hmacMethods, alg) {
		return nil, &VerificationError{
			Strategy: s.Name(),
			Reason:   ReasonNotApplicable,
			Err:      fmt.Errorf("unsupported algorithm %q", alg),
		}
	}

	claims := &Claims{}
	_, err = s.parser.ParseWithClaims(raw, claims, func(t *jwt.Token) (interface{}, error) {
		return s.secret, nil
	})
	if err != nil {
		return nil, &VerificationError{Strategy: s.Name(), Reason: classifyJWTError(err), Err: err}
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

func classifyJWTError(err error) FailureReason {
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return ReasonExpired
	case errors.Is(err, jwt.ErrTokenMalformed):
		return ReasonMalformed
	case errors.Is(err, jwt.ErrTokenSignatureInvalid), errors.Is(err, jwt.ErrTokenUnverifiable):
		return ReasonBadSignature
	default:
		return ReasonInvalidClaims
	}
}
