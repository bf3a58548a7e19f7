// Package http implements the REST transport of the sync server.
//
// Devices open sessions, submit batches and close sessions under /sync;
// operators review and resolve escalated conflicts. Route wiring lives in
// routes.go. Tracing, access logging, compression and device authentication
// are handled by the middlewares of this package before requests reach the
// service layer.
package http
