// Package session stores user documents in Redis and manages the refresh-token
// sessions embedded in them.
//
// # Storage model
//
// Each user is one JSON document holding the email, the argon2id password hash and
// an ordered list of [Session] entries. A session records only the SHA-256 hash of
// its raw refresh token. Writes to a document go through optimistic WATCH/MULTI
// transactions in [Store.Update], so concurrent session creation and removal on
// the same user never lose an update.
//
// # Lookup
//
// Refresh tokens embed their owner's id and are signed (see package refresh), so
// [Manager.FindUserByRefreshToken] verifies the signature and then loads exactly
// one document.
//
// # Boundaries
//
// This package does not issue access tokens, read cookies or make HTTP decisions.
package session
