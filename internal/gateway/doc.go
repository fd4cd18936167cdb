// ABOUTME: Package gateway runs the HTTP server and wires all components together
// ABOUTME: Owns route registration, auth middleware and graceful shutdown

// Package gateway exposes the chat service over a JSON HTTP API. It builds
// the store, provider registry, search client and chat service from config,
// guards the API routes with bearer token auth, and maps service errors onto
// HTTP status codes.
package gateway
