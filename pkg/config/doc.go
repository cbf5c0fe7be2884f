// Package config loads the gateway configuration from GATEKEEPER_* environment
// variables and validates it.
//
// # Variables
//
// Core:
//
//	GATEKEEPER_ENV="production"            # production, staging, development
//	GATEKEEPER_ADDR=":8080"
//	GATEKEEPER_REDIS_URL="redis://redis:6379/0"
//	GATEKEEPER_POSTGRES_URL="postgres://gatekeeper@db/clinics?sslmode=disable"
//
// Token verification (at least one of secret or OIDC issuer):
//
//	GATEKEEPER_JWT_SECRET="..."
//	GATEKEEPER_JWT_ISSUER="carepoint"
//	GATEKEEPER_OIDC_ISSUER_URL="https://id.example.com"
//	GATEKEEPER_OIDC_CLIENT_ID="gatekeeper"
//
// Lockout, sessions and RBAC:
//
//	GATEKEEPER_LOCKOUT_THRESHOLD=10
//	GATEKEEPER_LOCKOUT_WINDOW="15m"
//	GATEKEEPER_LOCKOUT_ESCALATION_MINUTES="10,25,45,60,360"
//	GATEKEEPER_MAX_SESSIONS=5
//	GATEKEEPER_SESSION_TTL="1h"
//	GATEKEEPER_REAP_SCHEDULE="*/5 * * * *"
//	GATEKEEPER_ROLES_FILE="/etc/gatekeeper/roles.yaml"
//	GATEKEEPER_POLICY_FILE="/etc/gatekeeper/routes.yaml"
//	GATEKEEPER_BUSINESS_START_HOUR=7
//	GATEKEEPER_BUSINESS_END_HOUR=19
//	GATEKEEPER_TIME_ZONE="America/Chicago"
//	GATEKEEPER_ORIGIN_ALLOWLIST="10.0.0.0/8,192.168.1.5"
//
// Malformed numeric and duration values fall back to their defaults.
// Malformed escalation lists are rejected.
package config
