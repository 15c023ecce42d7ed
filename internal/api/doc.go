// Package api implements the HTTP handlers for the vidstream REST surface.
// Handlers decode requests, call into storage and the auth layer, and encode
// every response in the uniform envelope. Route registration and middleware
// live in internal/server.
package api
