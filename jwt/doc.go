// Package jwt issues and validates HS256 session tokens.
//
// A token carries the account identity in "sub" plus "iat", "exp" and a
// random "jti". Validation is a pure function of the token, the signing
// secret and the clock; revocation is checked elsewhere.
package jwt
