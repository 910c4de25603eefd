// Package rate provides a Redis-backed fixed-window request limiter.
//
// # Window semantics
//
// Each (scope, key) pair owns one counter at <prefix>:<scope>:<key>. The first hit
// in a window sets the expiry; later hits only increment. INCR and PEXPIRE run in
// a single script so a crash between them cannot leave a counter without expiry.
//
// Scopes used by the engine: signup, login, refresh. Keys are client IPs.
package rate
