// Package refresh implements encoding and signature verification for opaque refresh
// tokens.
//
// # Token format
//
// Three base64url segments joined by dots: the owning user id, a 256-bit random
// secret, and an HMAC-SHA256 signature over the first two segments. The browser
// treats the value as opaque; the server recovers the user id without a storage scan
// and rejects forged tokens before any lookup. Tokens are never stored in plaintext;
// the session store retains only the token hash.
//
// # Architecture boundaries
//
// This package owns token encoding/decoding and structural validation. Session
// membership, expiry and revocation are handled by the session package.
//
// # What this package must NOT do
//
//   - Access Redis or any I/O.
//   - Import goTasks, jwt, or session.
package refresh
