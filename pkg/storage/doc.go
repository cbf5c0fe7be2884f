// Package storage provides the shared key-value store used by the authorization pipeline.
//
// # Overview
//
// Attempt counters, lockout windows, session records, the per-user active-session set,
// the token revocation list and security events all live in one external store shared by
// every gatekeeper replica. This package defines the narrow Store contract the pipeline
// stages depend on and a Redis implementation of it.
//
// # Atomicity
//
// Counters and set membership are mutated by many requests at once. Operations that would
// otherwise be read-modify-write in application code run server side as Lua scripts:
//
//   - IncrWithWindow: INCR, then PEXPIRE only when the key was just created
//   - SetAddBounded: SISMEMBER / SCARD / SADD as one step, rejecting when the set is full
//
// # Timeouts
//
// Every call derives a child context bounded by Config.OpTimeout, so a stalled store
// never blocks a request indefinitely. Request cancellation propagates the same way.
//
// # Keys
//
// Key builders in keys.go produce the layout shared with the login service:
//
//	session:{ownerId}:{sessionId}
//	auth:attempts:{identity}
//	auth:lockout:{identity}
//	jwt:blacklist:{jti}
//	user:{ownerId}:sessions
//	security:events:{identity}
package storage
