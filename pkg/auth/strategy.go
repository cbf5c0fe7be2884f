package auth

import (
	"context"
	"fmt"
)

// FailureReason is the typed cause of a strategy failure
type FailureReason string

const (
	ReasonMalformed     FailureReason = "malformed"
	ReasonExpired       FailureReason = "expired"
	ReasonBadSignature  FailureReason = "bad_signature"
	ReasonInvalidClaims FailureReason = "invalid_claims"
	// ReasonNotApplicable means the strategy does not handle this token's algorithm
	ReasonNotApplicable FailureReason = "not_applicable"
)

// Strategy verifies a raw bearer token
type Strategy interface {
	Name() string
	Verify(ctx context.Context, raw string) (*Claims, error)
}

// VerificationError is returned by strategies on failure
type VerificationError struct {
	Strategy string
	Reason   FailureReason
	Err      error
}

func (e *VerificationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s verification failed (%s): %v", e.Strategy, e.Reason, e.Err)
	}
	return fmt.Sprintf("%s verification failed (%s)", e.Strategy, e.Reason)
}

func (e *VerificationError) Unwrap() error {
	return e.Err
}

// peekAlgorithm returns the alg header without verifying the token
func peekAlgorithm(raw string) (string, error) {
	token, _, err := newUnverifiedParser().ParseUnverified(raw, &Claims{})
	if err != nil {
		return "", err
	}
	alg, _ := token.Header["alg"].(string)
	return alg, nil
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
