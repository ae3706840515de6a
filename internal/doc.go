// Package internal contains the implementation packages behind the
// codecraft command.
//
// # Package Organization
//
//   - buffers: the three source buffers and the active tab
//   - preview: composes the buffers into one document and drives the sandbox
//   - sandbox: holds the current preview frame and its isolation policy
//   - projects: project and progress persistence (memory, SQLite, Postgres, REST)
//   - editor: one editor session tying buffers, preview and persistence together
//   - catalog, progress: lesson content and per-owner lesson progress
//   - notify: user-facing success and failure messages
//   - watcher: mirrors a workspace directory into the buffers
//   - websocket, middleware, health, server: the HTTP surface
//   - app: builds all of the above from configuration
//   - config, logging, errors, version: ambient support
//
// # Data Flow
//
// An edit reaches a buffer set through the HTTP API or the workspace
// watcher. The preview pipeline recomposes the document on every change and
// renders it into the sandbox, which bumps the frame generation. The
// websocket hub broadcasts the generation and browsers refetch the document.
// Project saves and loads go through the session to whichever store the
// configuration selects.
package internal
