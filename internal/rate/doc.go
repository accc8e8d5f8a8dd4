// Package rate keeps fixed-window failure counters in Redis.
//
// A window opens on the first failure (INCR, then EXPIRE when the count is
// 1) and closes when the key expires. Keys:
//   - <prefix>:al:<identifier>  failed logins per account
//   - <prefix>:ali:<ip>         failed logins per client IP
package rate
