// ABOUTME: Package auth verifies caller JWTs and propagates identity
// ABOUTME: User accounts live with the external authentication provider

// Package auth authenticates API callers.
//
// Tokens are HS256 JWTs whose "sub" claim is the user id that owns
// conversations. The gateway does not manage user accounts; it only verifies
// that a caller presents a valid token and threads the resulting Identity
// through request contexts.
package auth
