// Package internal contains helper utilities that are intentionally private to goTasks,
// chiefly secure random generation for refresh secrets and CSRF tokens.
//
// # Sub-packages
//
//   - apierr: error-to-HTTP mapping shared by middleware and handlers
//   - audit: buffered asynchronous audit dispatch
//   - config: YAML/ENV server configuration loading
//   - httpapi: chi router, handlers and cookies
//   - rate: Redis-backed fixed-window rate limiting
//   - security: configuration posture report
//
// # What this package must NOT do
//
//   - Export types that appear in the public goTasks API.
//   - Use a non-cryptographic random source.
package internal
