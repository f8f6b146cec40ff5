// Package auth mints and verifies the HS256 bearer tokens that guard the
// HTTP bridge. A token carries a subject and a scope: read for status,
// journal and message streaming, write for everything including publish.
//
// Tokens are validated by signature only; there is no server-side session
// store, so revocation means rotating the secret.
package auth
