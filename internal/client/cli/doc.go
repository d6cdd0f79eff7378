// Package cli provides the interactive captionkeeper command-line client.
//
// It wires configuration, local storage, the caption API, the session
// manager and the caption feed behind a small REPL. On start the persisted
// session is restored and the first page of captions is loaded.
//
// Key features:
//   - Register / Login / Google sign-in / Logout, username change
//   - Browse all or trending captions with cursor paging
//   - Search with page numbers, clear back to the browse listing
//   - Client-side view filtering by text, tags and favorites
//   - Favorite toggling (local for anonymous viewers), add and delete
//
// The REPL is started via App.Run(ctx), which blocks until the user exits.
// See App and runREPL for details.
package cli
