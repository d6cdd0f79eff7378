// Package client talks to the caption backend over its REST API.
//
// # Overview
//
// The package provides:
//  1. Transport-agnostic contracts (AuthAPI, CaptionAPI, Client) consumed by
//     the session manager and the caption feed.
//  2. HTTPClient, the net/http implementation. It injects the bearer token
//     found on the request context (WithAccessToken), tags every request with
//     an X-Request-ID, paces outbound calls with a token bucket and maps
//     non-2xx responses to *APIError.
//  3. Local persistence bootstrap (InitDatabase, RunMigrations) wiring an
//     SQLite database and applying embedded goose migrations.
//
// # Error Handling
//
// *APIError unwraps to a status sentinel (ErrUnauthorized, ErrNotFound,
// ErrMethodNotAllowed, ErrServer, ...). Transport failures wrap
// ErrUnavailable. A cancelled context is returned as-is so callers can tell a
// superseded request from a failed one.
//
// Concurrency & Contexts
//
// HTTPClient is safe for concurrent use. All operations accept
// context.Context and honor cancellation/timeouts.
package client
