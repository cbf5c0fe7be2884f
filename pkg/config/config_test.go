package config

import (
	"testing"
	"time"

	"github.com/carepoint/gatekeeper/pkg/rbac"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setRequired(t *testing.T) {
	t.Helper()
	t.Setenv("GATEKEEPER_JWT_SECRET", "test-secret")
	t.Setenv("GATEKEEPER_POSTGRES_URL", "postgres://localhost/clinics")
}

func TestGetEnvHelpers(t *testing.T) {
	t.Setenv("TEST_STR", "custom")
	t.Setenv("TEST_BOOL", "1")
	t.Setenv("TEST_INT", "42")
	t.Setenv("TEST_BAD_INT", "forty")
	t.Setenv("TEST_DURATION", "90s")
	t.Setenv("TEST_FLOAT", "0.25")
	t.Setenv("TEST_LIST", " a, ,b ,c")

	assert.Equal(t, "custom", getEnv("TEST_STR", "default"))
	assert.Equal(t, "default", getEnv("TEST_STR_UNSET", "default"))
	assert.True(t, getEnvBool("TEST_BOOL", false))
	assert.True(t, getEnvBool("TEST_BOOL_UNSET", true))
	assert.Equal(t, 42, getEnvInt("TEST_INT", 7))
	assert.Equal(t, 7, getEnvInt("TEST_BAD_INT", 7))
	assert.Equal(t, int64(42), getEnvInt64("TEST_INT", 7))
	assert.Equal(t, 90*time.Second, getEnvDuration("TEST_DURATION", time.Second))
	assert.Equal(t, time.Second, getEnvDuration("TEST_STR", time.Second))
	assert.Equal(t, 0.25, getEnvFloat("TEST_FLOAT", 1))
	assert.Equal(t, []string{"a", "b", "c"}, getEnvList("TEST_LIST", nil))
	assert.Nil(t, getEnvList("TEST_LIST_UNSET", nil))
}

func TestLoad_Defaults(t *testing.T) {
	setRequired(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, EnvDevelopment, cfg.Environment)
	assert.False(t, cfg.IsProduction())
	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, int64(10), cfg.Lockout.Threshold)
	assert.Equal(t, 15*time.Minute, cfg.Lockout.AttemptWindow)
	assert.Len(t, cfg.Lockout.Escalation, 5)
	assert.Equal(t, int64(5), cfg.Session.MaxConcurrent)
	assert.Equal(t, time.Hour, cfg.Session.TTL)
	assert.Equal(t, 5*time.Minute, cfg.RBAC.CacheTTL)
	assert.Equal(t, []string{rbac.RoleSuperAdmin}, cfg.Clinics.ExemptRoles)
	assert.Empty(t, cfg.OriginAllowList)
	assert.Equal(t, 500*time.Millisecond, cfg.Redis.OpTimeout)
}

func TestLoad_Overrides(t *testing.T) {
	setRequired(t)
	t.Setenv("GATEKEEPER_ENV", "Production")
	t.Setenv("GATEKEEPER_LOCKOUT_THRESHOLD", "3")
	t.Setenv("GATEKEEPER_LOCKOUT_ESCALATION_MINUTES", "1,2,4")
	t.Setenv("GATEKEEPER_MAX_SESSIONS", "2")
	t.Setenv("GATEKEEPER_ORIGIN_ALLOWLIST", "10.0.0.0/8, 192.168.1.5")
	t.Setenv("GATEKEEPER_REDIS_DB", "2")
	t.Setenv("GATEKEEPER_TIME_ZONE", "UTC")

	cfg, err := Load()
	require.NoError(t, err)

	assert.True(t, cfg.IsProduction())
	assert.Equal(t, int64(3), cfg.Lockout.Threshold)
	assert.Equal(t, []time.Duration{time.Minute, 2 * time.Minute, 4 * time.Minute}, cfg.Lockout.Escalation)
	assert.Equal(t, int64(2), cfg.Session.MaxConcurrent)
	assert.Equal(t, []string{"10.0.0.0/8", "192.168.1.5"}, cfg.OriginAllowList)
	assert.Equal(t, 2, cfg.Redis.RedisDB)

	hours, err := cfg.RBAC.BusinessHours()
	require.NoError(t, err)
	assert.Equal(t, 7, hours.StartHour)
	assert.Equal(t, 19, hours.EndHour)
}

func TestLoad_BadEscalation(t *testing.T) {
	setRequired(t)
	t.Setenv("GATEKEEPER_LOCKOUT_ESCALATION_MINUTES", "10,soon")

	_, err := Load()
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"no secret or issuer", map[string]string{"GATEKEEPER_JWT_SECRET": ""}},
		{"oidc without client", map[string]string{"GATEKEEPER_JWT_SECRET": "", "GATEKEEPER_OIDC_ISSUER_URL": "https://id.example.com"}},
		{"bad environment", map[string]string{"GATEKEEPER_ENV": "qa"}},
		{"zero threshold", map[string]string{"GATEKEEPER_LOCKOUT_THRESHOLD": "0"}},
		{"zero sessions", map[string]string{"GATEKEEPER_MAX_SESSIONS": "0"}},
		{"empty business hours", map[string]string{"GATEKEEPER_BUSINESS_START_HOUR": "9", "GATEKEEPER_BUSINESS_END_HOUR": "9"}},
		{"business hours out of range", map[string]string{"GATEKEEPER_BUSINESS_START_HOUR": "25"}},
		{"unknown time zone", map[string]string{"GATEKEEPER_TIME_ZONE": "Mars/Olympus"}},
		{"bad log level", map[string]string{"GATEKEEPER_LOG_LEVEL": "loud"}},
		{"no postgres", map[string]string{"GATEKEEPER_POSTGRES_URL": ""}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setRequired(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			_, err := Load()
			assert.Error(t, err)
		})
	}
}

func TestValidate_OIDCOnly(t *testing.T) {
	t.Setenv("GATEKEEPER_POSTGRES_URL", "postgres://localhost/clinics")
	t.Setenv("GATEKEEPER_OIDC_ISSUER_URL", "https://id.example.com")
	t.Setenv("GATEKEEPER_OIDC_CLIENT_ID", "gatekeeper")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Empty(t, cfg.Auth.JWTSecret)
}
