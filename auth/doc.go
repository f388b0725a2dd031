// Package auth maps bearer tokens to identities.
//
// Tokens are HS256 JWTs whose subject is the user id and whose username
// claim is the display name. Registration and passwords live elsewhere;
// this package only verifies tokens and signs development ones.
package auth
