// Package engine implements the backend-agnostic core of spec.md
// §4.2–§4.5: the dependency resolver (C2), dispatch selector (C3), job
// lifecycle controller (C4), and worker registry (C5). Every operation is
// written purely against internal/store.Store/Tx, so it runs unchanged
// against the SQLite adapter or the in-memory one — grounded on spec.md
// §9's own note that "the store-side code remains a set of functions over
// the store adapter."
package engine

import (
	"context"

	"github.com/whatsnext/whatsnext/internal/logging"
	"github.com/whatsnext/whatsnext/internal/store"
	"golang.org/x/sync/singleflight"
)

// Engine bundles a Store with the singleflight group used to collapse
// duplicate concurrent empty-queue probes (see dispatch.go), mirroring
// the teacher's pattern of a thin service struct wrapping its storage
// handle plus whatever auxiliary coordination state an operation needs.
type Engine struct {
	store store.Store
	log   *logging.Logger

	probeGroup singleflight.Group
}

// New builds an Engine over the given Store.
func New(s store.Store, log *logging.Logger) *Engine {
	if log == nil {
		log = logging.NewCLI()
	}
	return &Engine{store: s, log: log}
}

// Healthy reports whether the underlying store can currently serve reads.
func (e *Engine) Healthy(ctx context.Context) error {
	return e.store.Healthy(ctx)
}
