// Package client is a Go client for the goTasks API that coordinates
// access-token refreshes.
//
// The access token lives in memory only. The refresh and CSRF cookies live
// in the client's own cookie jar. When a request is rejected with 401 the
// client refreshes the token once, collapsing concurrent refreshes into a
// single call, and retries the request once. A failed refresh logs the client
// out and every waiting caller receives ErrSessionTerminated.
package client
