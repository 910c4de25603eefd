// Package httpapi is the REST surface of the service: a chi router with the
// shared middleware stack (panic recovery, request ids, access logs, client
// address, body limits, deadlines), the auth endpoints that set and clear the
// refresh and CSRF cookies, and the owner-scoped lists and tasks endpoints.
package httpapi
