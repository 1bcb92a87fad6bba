// Package backend manages local model runtimes that serve an
// OpenAI-compatible API.
package backend

import "context"

// Manager defines the interface for managing model runtimes.
type Manager interface {
	// Endpoint returns the base URL of the OpenAI-compatible API of the named
	// runtime. It lazily starts the runtime if it's not running.
	Endpoint(ctx context.Context, name string) (string, error)

	// Stop terminates the named runtime.
	Stop(ctx context.Context, name string) error

	// Close releases any resources held by the manager (e.g. docker client).
	Close() error
}
