// Package modules contains domain-oriented dependency modules for the
// composition root.
package modules

import (
	"context"

	"github.com/riverqueue/river"

	"changegate.io/changegate/internal/api/handlers"
)

// Module represents a domain-specific dependency unit in the composition root.
type Module interface {
	// Name returns a stable module identifier for logging/debugging.
	Name() string

	// RegisterWorkers registers module workers into a shared River worker registry.
	RegisterWorkers(*river.Workers)

	// Shutdown performs module-local graceful cleanup.
	Shutdown(context.Context) error
}

// ServerDepsContributor is implemented by modules that inject dependencies
// into the HTTP server deps.
type ServerDepsContributor interface {
	ContributeServerDeps(*handlers.ServerDeps)
}
