// Package goTasks is the authentication core of the goTasks backend: signup and
// login with argon2id passwords, short-lived JWT access tokens, refresh-token
// sessions embedded in Redis user documents, and the CSRF double-submit check.
//
// The package is designed for concurrent server workloads: Engine methods are safe to call
// from multiple goroutines after initialization through [Builder.Build].
//
// # Architecture boundaries
//
// goTasks exposes [Engine], [Builder], [Config] and the error sentinels the HTTP layer
// maps to status codes. Token codecs live in jwt and refresh, document storage and
// session bookkeeping in session, rate limiting and audit dispatch under internal/.
// HTTP concerns (headers, cookies, status codes) belong to middleware and
// internal/httpapi; the Engine never touches an http.Request.
//
// # Hot path
//
// [Engine.VerifyAccessToken] is purely cryptographic and never calls Redis.
// Session validation costs one GET; every session write is one optimistic
// WATCH/MULTI transaction on the owner's document.
package goTasks
