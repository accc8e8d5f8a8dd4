// Package revocation records bearer tokens that were explicitly invalidated
// before their natural expiry.
//
// Token validation and revocation are separate steps: a revoked token still
// passes signature and expiry checks, and callers consult a [Store] on top.
// [MemoryStore] is the default and is lost on restart; [RedisStore] is the
// shared alternative for multi-instance deployments. Both key entries by the
// SHA-256 of the token. [Sweeper] drops entries older than the retention
// window, which must be at least the maximum token lifetime.
package revocation
