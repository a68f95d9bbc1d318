package usecases

import (
	"context"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/0xcro3dile/docchat-go/internal/domain/ports"
)

// Reconciler drops registry entries whose session directory disappeared
// from the storage root behind the service's back.
type Reconciler struct {
	watcher  ports.FileWatcher
	registry ports.SessionRegistry
	memory   *ConversationMemory
	root     string
	log      *zap.Logger
}

// NewReconciler creates a Reconciler watching root. memory may be nil.
func NewReconciler(watcher ports.FileWatcher, registry ports.SessionRegistry, memory *ConversationMemory, root string, log *zap.Logger) *Reconciler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Reconciler{
		watcher:  watcher,
		registry: registry,
		memory:   memory,
		root:     filepath.Clean(root),
		log:      log.Named("reconciler"),
	}
}

// Run blocks until ctx is cancelled or the watcher stops.
func (r *Reconciler) Run(ctx context.Context) error {
	events, err := r.watcher.Watch(ctx, r.root)
	if err != nil {
		return err
	}

	for event := range events {
		if event.Operation != ports.FileDeleted {
			continue
		}
		if filepath.Dir(filepath.Clean(event.Path)) != r.root {
			continue
		}
		id := filepath.Base(event.Path)
		if !r.registry.Exists(id) {
			continue
		}

		r.registry.Delete(id)
		if r.memory != nil {
			r.memory.Forget(id)
		}
		r.log.Info("session directory removed, dropping session", zap.String("session_id", id))
	}
	return ctx.Err()
}
