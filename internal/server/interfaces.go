package server

import "context"

// Server defines the common lifecycle contract for transport servers managed
// by this package.
type Server interface {
	// RunServer serves until the listener is closed. It returns nil after a
	// graceful shutdown.
	RunServer() error

	// Shutdown stops accepting requests and waits for in-flight ones until
	// ctx is done.
	Shutdown(ctx context.Context) error
}

// Runner is a background job that stops when ctx is done.
type Runner interface {
	Run(ctx context.Context) error
}
