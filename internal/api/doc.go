// Package api implements the HTTP REST API and WebSocket server for Hearth Core.
//
// This package provides:
//   - REST endpoints for the inbox, discovery services, things, links and rules
//   - WebSocket hub for real-time event broadcasts
//   - JWT authentication with ticket-based WebSocket auth
//   - Middleware stack (request ID, logging, recovery, CORS)
//   - TLS support for production deployments
//
// # Architecture
//
// The API server sits between user interfaces (web admin, mobile apps) and
// the discovery pipeline. Discovery results surface in the inbox; operators
// approve or ignore them through the REST endpoints, and the resulting
// lifecycle events are broadcast to WebSocket clients by the daemon.
//
// # Security
//
// Authentication uses JWT bearer tokens issued by POST /auth/login against
// the configured admin account. WebSocket connections use single-use tickets
// to prevent token leakage in URLs.
//
// See docs/interfaces/api.md for the full API specification.
package api
