package auth

import (
	"context"
	"errors"

	"github.com/sirupsen/logrus"
)

// Verifier runs the configured strategies in order and enforces the revocation list
type Verifier struct {
	strategies  []Strategy
	revocations *RevocationList
	logger      logrus.FieldLogger
}

// NewVerifier creates a verifier. revocations may be nil to skip the revocation check.
func NewVerifier(revocations *RevocationList, logger logrus.FieldLogger, strategies ...Strategy) *Verifier {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Verifier{
		strategies:  strategies,
		revocations: revocations,
		logger:      logger,
	}
}

// Verify authenticates raw and returns its claims
func (v *Verifier) Verify(ctx context.Context, raw string) (*Claims, error) {
	if raw == "" {
		return nil, NewError(KindInvalidToken, "missing bearer token")
	}

	var (
		claims  *Claims
		lastErr *VerificationError
	)
	for _, strategy := range v.strategies {
		c, err := strategy.Verify(ctx, raw)
		if err == nil {
			claims = c
			break
		}

		var verr *VerificationError
		if !errors.As(err, &verr) {
			verr = &VerificationError{Strategy: strategy.Name(), Reason: ReasonInvalidClaims, Err: err}
		}
		if verr.Reason != ReasonNotApplicable || lastErr == nil {
			lastErr = verr
		}
		v.logger.WithFields(logrus.Fields{
			"strategy": strategy.Name(),
			"reason":   verr.Reason,
		}).Debug("token strategy rejected credential")
	}

	if claims == nil {
		return nil, classifyFailure(lastErr)
	}

	if v.revocations != nil && claims.ID != "" {
		revoked, err := v.revocations.IsRevoked(ctx, claims.ID)
		if err != nil {
			v.logger.WithError(err).WithField("jti", claims.ID).
				Error("revocation list lookup failed, accepting token")
		} else if revoked {
			return nil, NewError(KindTokenRevoked, "token has been revoked")
		}
	}

	return claims, nil
}

func classifyFailure(lastErr *VerificationError) *Error {
	if lastErr == nil {
		return NewError(KindInvalidToken, "no verification strategy configured")
	}
	if lastErr.Reason == ReasonExpired {
		return WrapError(KindTokenExpired, "token has expired", lastErr)
	}
	return WrapError(KindInvalidToken, "invalid token", lastErr)
}
