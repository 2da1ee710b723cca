package session

import (
	"log/slog"
	"sync"
)

// InvalidateFunc is the invalidation capability injected into the
// uploader and poller. It is invoked whenever the service reports an
// authorization failure.
type InvalidateFunc func()

// Guard turns authorization failures into a single logical session
// invalidation: clear the store, then run the notify hook exactly once.
// Concurrent uploads can each hit a 401 and call Invalidate; clearing
// an already-cleared store is a no-op and the user-facing notice is
// not duplicated.
type Guard struct {
	store  *Store
	notify func()
	once   sync.Once
	logger *slog.Logger
}

// NewGuard creates a guard over the given store. notify runs once on
// the first invalidation (e.g. printing "session expired" and flipping
// the UI back to the login entry point); it may be nil.
func NewGuard(store *Store, notify func(), logger *slog.Logger) *Guard {
	if logger == nil {
		logger = slog.Default()
	}

	return &Guard{store: store, notify: notify, logger: logger}
}

// Invalidate clears the credential and fires the one-time notice.
// Safe to call from multiple goroutines and multiple times.
func (g *Guard) Invalidate() {
	if err := g.store.Clear(); err != nil {
		g.logger.Warn("clearing session on invalidation",
			slog.String("error", err.Error()),
		)
	}

	g.once.Do(func() {
		g.logger.Info("session invalidated")

		if g.notify != nil {
			g.notify()
		}
	})
}
