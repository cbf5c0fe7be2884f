// Package lockout tracks failed authentication attempts and escalating lockouts
// per client identity.
//
// Each identity (an IP as "ip:<addr>" or an account as "user:<subject>") cycles
// through three states:
//
//	Clear -> Accumulating -> Locked -> Clear
//
// RecordFailure atomically increments auth:attempts:{identity}. The counter is
// created with a fixed attempt window. When the count reaches the threshold, a
// lockout is written to auth:lockout:{identity} with a duration taken from the
// escalation table at index (attempts - threshold), clamped to the last entry.
// The counter's expiry is then pushed past the lockout so the next failure after
// the lockout expires escalates further.
//
// Lockouts cannot be released early except by a successful authentication, which
// calls Clear to delete both keys.
package lockout
