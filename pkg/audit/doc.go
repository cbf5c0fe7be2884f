// Package audit records security events produced by the authorization pipeline.
//
// # Overview
//
// Every denial, lockout and permission decision becomes a SecurityEvent. Events are
// write-only from the pipeline's perspective and are read by external audit tooling.
//
// # Event Types
//
// Authentication: auth.failed, auth.lockout_created
// Session: session.limit_exceeded, session.fingerprint_mismatch
// Tenant: tenant.access_denied
// Authorization: authz.role_denied, authz.permission_decision
// Network: network.origin_denied
//
// # Sinks
//
//   - RedisLogger: per-identity bounded list at security:events:{identity}
//   - LogrusLogger: structured log lines, level derived from the event Level
//   - MultiLogger: fan-out to several sinks
//   - AsyncLogger: buffered wrapper that drops when full so callers never block
//
// The pipeline always writes through an AsyncLogger. Recording must never delay
// or change the outcome of a request.
//
// # Usage Example
//
//	sink := audit.NewAsyncLogger(
//		audit.NewMultiLogger(
//			audit.NewRedisLogger(store, 100, 7*24*time.Hour),
//			audit.NewLogrusLogger(logger),
//		),
//		1024, logger,
//	)
//	defer sink.Close()
//
//	sink.Record(ctx, audit.NewEvent(ctx, audit.EventTypeAuthFailed, "ip:10.0.0.7", audit.LevelMedium, nil))
package audit
