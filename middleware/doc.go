// Package middleware exposes the HTTP guards that sit in front of goTasks
// handlers. Every decision is delegated to [goTasks.Engine].
//
// # Guards
//
//   - [RequireAccessToken] verifies the x-access-token header. Stateless, no Redis call.
//   - [RequireSession] validates the refreshToken cookie against the owner's sessions.
//   - [RequireCSRF] compares the XSRF-TOKEN cookie with the X-XSRF-TOKEN header.
//   - [RateLimitAuth] charges the client IP against the auth endpoint budget.
//
// The token endpoints mount RequireSession followed by RequireCSRF, so session
// validation always runs before the CSRF check.
//
// # Architecture boundaries
//
// This package translates HTTP semantics into Engine calls. It does NOT parse
// or create tokens and does NOT access Redis directly.
package middleware
