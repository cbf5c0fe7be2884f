package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// DefaultTokenTTL is the lifetime of issued access tokens
const DefaultTokenTTL = 15 * time.Minute

// Issuer mints HMAC access tokens. The login service owns issuance in production;
// this is used by the developer CLI and tests.
type Issuer struct {
	secret []byte
	issuer string
	ttl    time.Duration
	now    func() time.Time
}

// NewIssuer creates a new token issuer
func NewIssuer(secret []byte, issuer string, ttl time.Duration) *Issuer {
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	return &Issuer{
		secret: secret,
		issuer: issuer,
		ttl:    ttl,
		now:    time.Now,
	}
}

// IssueRequest describes the token to mint
type IssueRequest struct {
	Subject    string
	Role       string
	Email      string
	SessionID  string
	ClinicID   string
	LocationID string
	// TTL overrides the issuer default when positive
	TTL time.Duration
}

// Issue signs a new HS256 token. A fresh jti is generated for every token.
func (i *Issuer) Issue(req IssueRequest) (string, *Claims, error) {
	if req.Subject == "" {
		return "", nil, errors.New("subject is required")
	}

	ttl := i.ttl
	if req.TTL > 0 {
		ttl = req.TTL
	}
	now := i.now()

	claims := &Claims{
		Role:       req.Role,
		Email:      req.Email,
		SessionID:  req.SessionID,
		ClinicID:   req.ClinicID,
		LocationID: req.LocationID,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   req.Subject,
			Issuer:    i.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
	if err != nil {
		return "", nil, fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, claims, nil
}

// DecodeUnverified decodes the payload of raw without checking its signature.
// Only use it to recover routing hints from a token that has already been verified.
func DecodeUnverified(raw string) (*Claims, error) {
	claims := &Claims{}
	if _, _, err := newUnverifiedParser().ParseUnverified(raw, claims); err != nil {
		return nil, err
	}
	return claims, nil
}

func newUnverifiedParser() *jwt.Parser {
	return jwt.NewParser()
}
