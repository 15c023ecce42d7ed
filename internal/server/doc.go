// Package server hosts the vidstream API from a single HTTP server.
//
// The server builds a consistent middleware chain of request IDs, logging,
// audit, metrics, security headers, CORS, and auth so handlers all share
// common protections and instrumentation.
package server
