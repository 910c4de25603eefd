// Package security summarizes the security posture of a server configuration.
//
// The report is logged once at startup and printed by the security-report
// command so operators can review token lifetimes, hashing cost and cookie
// attributes without reading the config files.
package security
