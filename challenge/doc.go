// Package challenge issues and verifies one-time codes for email, SMS and
// authenticator apps.
//
// Email and SMS codes are six random digits stored as a SHA-256 digest under
// (account, channel); issuing again overwrites the previous code and a
// successful verification deletes it. Verification codes live for 10 minutes
// and login codes for 5. TOTP codes follow RFC 6238 and need no stored state
// beyond the per-account secret.
//
// Pending logins, the state between a good password and a good second
// factor, are kept in the same [Store] and consumed atomically.
package challenge
