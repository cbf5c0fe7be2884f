package auth

import (
	"context"
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/carepoint/gatekeeper/pkg/storage"
	"github.com/golang-jwt/jwt/v5"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testSecret   = "test-secret"
	testIssuer   = "gatekeeper"
	testIDP      = "https://idp.example.com"
	testClientID = "gatekeeper-api"
)

func setupVerifierTest(t *testing.T) (*Verifier, *miniredis.Miniredis, *rsa.PrivateKey, *test.Hook) {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	store, err := storage.NewRedisStore(storage.Config{RedisURL: "redis://" + mr.Addr(), OpTimeout: time.Second})
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	logger, hook := test.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)

	verifier := NewVerifier(
		NewRevocationList(store),
		logger,
		NewHMACStrategy([]byte(testSecret), testIssuer, 0),
		NewStaticOIDCStrategy(OIDCConfig{IssuerURL: testIDP, ClientID: testClientID}, []crypto.PublicKey{&key.PublicKey}, nil),
	)
	return verifier, mr, key, hook
}

func issueHMAC(t *testing.T, secret string, issuedAt time.Time, ttl time.Duration) (string, *Claims) {
	t.Helper()
	issuer := NewIssuer([]byte(secret), testIssuer, ttl)
	issuer.now = func() time.Time { return issuedAt }
	raw, claims, err := issuer.Issue(IssueRequest{Subject: "u1", Role: "DOCTOR", SessionID: "s1"})
	require.NoError(t, err)
	return raw, claims
}

func signRS256(t *testing.T, key *rsa.PrivateKey, expiresAt time.Time) string {
	t.Helper()
	claims := &Claims{
		Role:      "NURSE",
		SessionID: "s2",
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        "oidc-jti",
			Subject:   "u2",
			Issuer:    testIDP,
			Audience:  jwt.ClaimStrings{testClientID},
			IssuedAt:  jwt.NewNumericDate(expiresAt.Add(-time.Hour)),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}
	raw, err := jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SignedString(key)
	require.NoError(t, err)
	return raw
}

func TestVerifier_PrimaryStrategy(t *testing.T) {
	verifier, _, _, _ := setupVerifierTest(t)
	raw, issued := issueHMAC(t, testSecret, time.Now(), time.Hour)

	claims, err := verifier.Verify(context.Background(), raw)
	require.NoError(t, err)
	assert.Equal(t, "u1", claims.Subject)
	assert.Equal(t, "DOCTOR", claims.Role)
	assert.Equal(t, issued.ID, claims.ID)
}

func TestVerifier_SecondaryStrategy(t *testing.T) {
	verifier, _, key, _ := setupVerifierTest(t)
	raw := signRS256(t, key, time.Now().Add(time.Hour))

	claims, err := verifier.Verify(context.Background(), raw)
	require.NoError(t, err)
	assert.Equal(t, "u2", claims.Subject)
	assert.Equal(t, "NURSE", claims.Role)
	assert.Equal(t, "s2", claims.SessionID)
}

func TestVerifier_Failures(t *testing.T) {
	verifier, _, key, _ := setupVerifierTest(t)
	otherKey, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	expiredHMAC, _ := issueHMAC(t, testSecret, time.Now().Add(-2*time.Hour), time.Hour)
	wrongSecret, _ := issueHMAC(t, "other-secret", time.Now(), time.Hour)

	tests := []struct {
		name string
		raw  string
		want Kind
	}{
		{"empty", "", KindInvalidToken},
		{"malformed", "not.a.jwt", KindInvalidToken},
		{"expired hmac", expiredHMAC, KindTokenExpired},
		{"wrong secret", wrongSecret, KindInvalidToken},
		{"expired oidc", signRS256(t, key, time.Now().Add(-time.Minute)), KindTokenExpired},
		{"unknown signing key", signRS256(t, otherKey, time.Now().Add(time.Hour)), KindInvalidToken},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := verifier.Verify(context.Background(), tt.raw)
			require.Error(t, err)
			e, ok := AsError(err)
			require.True(t, ok)
			assert.Equal(t, tt.want, e.Kind)
		})
	}
}

func TestVerifier_LastAttemptedStrategyWins(t *testing.T) {
	expired := &VerificationError{Strategy: "a", Reason: ReasonExpired}
	badSig := &VerificationError{Strategy: "b", Reason: ReasonBadSignature}

	verifier := NewVerifier(nil, nil, stubStrategy{"a", expired}, stubStrategy{"b", badSig})
	_, err := verifier.Verify(context.Background(), "x")
	assert.True(t, IsKind(err, KindInvalidToken))

	verifier = NewVerifier(nil, nil, stubStrategy{"b", badSig}, stubStrategy{"a", expired})
	_, err = verifier.Verify(context.Background(), "x")
	assert.True(t, IsKind(err, KindTokenExpired))

	skipped := &VerificationError{Strategy: "c", Reason: ReasonNotApplicable}
	verifier = NewVerifier(nil, nil, stubStrategy{"a", expired}, stubStrategy{"c", skipped})
	_, err = verifier.Verify(context.Background(), "x")
	assert.True(t, IsKind(err, KindTokenExpired))
}

func TestVerifier_RevokedToken(t *testing.T) {
	verifier, mr, _, _ := setupVerifierTest(t)
	raw, claims := issueHMAC(t, testSecret, time.Now(), time.Hour)

	require.NoError(t, mr.Set(storage.BlacklistKey(claims.ID), "1"))

	_, err := verifier.Verify(context.Background(), raw)
	assert.True(t, IsKind(err, KindTokenRevoked))
}

func TestVerifier_RevocationStoreDownFailsOpen(t *testing.T) {
	verifier, mr, _, hook := setupVerifierTest(t)
	raw, _ := issueHMAC(t, testSecret, time.Now(), time.Hour)

	mr.SetError("READONLY")
	claims, err := verifier.Verify(context.Background(), raw)
	require.NoError(t, err)
	assert.Equal(t, "u1", claims.Subject)

	entry := hook.LastEntry()
	require.NotNil(t, entry)
	assert.Equal(t, logrus.ErrorLevel, entry.Level)
}

func TestRevocationList_Revoke(t *testing.T) {
	verifier, mr, _, _ := setupVerifierTest(t)
	raw, claims := issueHMAC(t, testSecret, time.Now(), time.Hour)

	require.NoError(t, verifier.revocations.Revoke(context.Background(), claims.ID, time.Hour))
	assert.Equal(t, time.Hour, mr.TTL(storage.BlacklistKey(claims.ID)))

	_, err := verifier.Verify(context.Background(), raw)
	assert.True(t, IsKind(err, KindTokenRevoked))

	assert.Error(t, verifier.revocations.Revoke(context.Background(), "", time.Hour))
}

type stubStrategy struct {
	name string
	err  error
}

func (s stubStrategy) Name() string { return s.name }

func (s stubStrategy) Verify(ctx context.Context, raw string) (*Claims, error) {
	return nil, s.err
}
