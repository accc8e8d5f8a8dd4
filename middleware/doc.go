// Package middleware adapts token authentication to net/http.
//
// [Guard] reads the Authorization header, calls Authenticate on the
// configured [Authenticator] and stores the resulting claims in the request
// context. It makes no decision of its own beyond pass or reject.
package middleware
