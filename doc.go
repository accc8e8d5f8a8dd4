// Package twostep is an authentication core for password login with an
// optional second factor delivered by email, SMS or an authenticator app.
//
// An [Engine] is assembled with [Builder] and is safe for concurrent use
// once [Builder.Build] returns. Callers supply an [AccountStore] and a
// delivery.EmailSender; everything else has an in-memory default that can
// be swapped for Redis.
//
// # Login
//
// [Engine.LoginInitiate] checks the password. Accounts without a second
// factor receive a signed JWT at once. Otherwise the result carries a
// challenge ID that [Engine.LoginComplete] redeems together with the code.
// A pending login can be redeemed only once.
//
// # Tokens
//
// Tokens are HS256 JWTs. [Engine.Authenticate] consults the revocation
// store first and the signature and expiry second. [Engine.Logout] records
// a token as revoked; revocations are kept for Config.Revocation.Retention,
// which must be at least the token lifetime.
//
// # Errors
//
// Failures are reported as sentinel errors such as [ErrAuthenticationFailed]
// or as an [*Error] whose message is that of the kind and whose cause stays
// reachable with errors.Is.
package twostep
