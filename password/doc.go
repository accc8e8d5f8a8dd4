// Package password hashes and verifies account passwords.
//
// New hashes are argon2id in PHC string format:
//
//	$argon2id$v=19$m=<memory>,t=<time>,p=<threads>$<salt>$<hash>
//
// [Hasher] also verifies bcrypt hashes ($2a$, $2b$, $2y$) so that accounts
// carried over from bcrypt-based stores can still sign in. Such hashes, and
// argon2id hashes with weaker parameters, are reported by [Hasher.NeedsUpgrade].
//
// Length and confirmation policy live in the caller; this package only sees
// the bytes it is given and never logs them.
package password
