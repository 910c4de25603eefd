// Package jwt issues and verifies the short-lived access tokens presented in the
// x-access-token header. Verification is purely cryptographic and never touches storage.
package jwt
