// Package server runs the transports and background workers of the sync
// server under one lifecycle: everything starts together, and the first
// failure or a termination signal stops all of it gracefully.
package server
