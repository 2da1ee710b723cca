// Package poller keeps the client's view of server-side video state
// fresh: an on-demand refresh (foreground or background), a fixed
// 10-second cadence, and a guarded result download. The snapshot is
// always the output of the most recently applied refresh, replaced
// wholesale; a refresh in flight never partially overwrites it.
package poller

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/vidqueue/vidqueue-go/internal/api"
	"github.com/vidqueue/vidqueue-go/internal/session"
)

// DefaultInterval is the background refresh cadence.
const DefaultInterval = 10 * time.Second

// Mode distinguishes the user-visible blocking reload from the silent
// periodic one. Each mode drives its own indicator and its own
// in-progress gate.
type Mode int

const (
	// Foreground refreshes show the full-page loading state.
	Foreground Mode = iota
	// Background refreshes only spin the refresh control.
	Background
)

func (m Mode) String() string {
	if m == Foreground {
		return "foreground"
	}

	return "background"
}

// Lister is the remote operation the poller depends on.
type Lister interface {
	ListVideos(ctx context.Context) ([]api.Video, error)
}

// Snapshot is the complete view published to observers after every
// applied refresh.
type Snapshot struct {
	Videos     []api.Video
	Loading    bool   // foreground refresh outstanding
	Refreshing bool   // background refresh outstanding
	Err        string // user-facing message from the last failed refresh
}

// Poller maintains the authoritative video list. It owns the snapshot
// exclusively; no other component writes it.
type Poller struct {
	gateway    Lister
	invalidate session.InvalidateFunc
	interval   time.Duration
	logger     *slog.Logger

	// OnUpdate observes every applied snapshot. May be nil. Called
	// with the mutex released, one call at a time.
	OnUpdate func(Snapshot)

	mu         sync.Mutex
	videos     []api.Video
	loading    bool
	refreshing bool
	lastErr    string
	tornDown   bool

	// generation guards against out-of-order completion between
	// overlapping refreshes: each refresh takes a number at start and
	// its result is discarded if a newer refresh already applied.
	generation  uint64
	lastApplied uint64

	// publishMu serializes OnUpdate calls so observers see snapshots
	// one at a time even when refreshes overlap.
	publishMu sync.Mutex

	stop     chan struct{}
	stopOnce sync.Once
	done     chan struct{}
}

// New creates a poller. interval <= 0 selects DefaultInterval.
func New(gateway Lister, invalidate session.InvalidateFunc, interval time.Duration, logger *slog.Logger) *Poller {
	if logger == nil {
		logger = slog.Default()
	}

	if interval <= 0 {
		interval = DefaultInterval
	}

	return &Poller{
		gateway:    gateway,
		invalidate: invalidate,
		interval:   interval,
		logger:     logger,
		stop:       make(chan struct{}),
		done:       make(chan struct{}),
	}
}

// Snapshot returns the current view.
func (p *Poller) Snapshot() Snapshot {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.snapshotLocked()
}

// Refresh fetches the video list and replaces the snapshot atomically.
// A refresh already outstanding in the same mode makes the call a
// no-op; an overlapping refresh in the other mode runs to completion
// and the generation counter decides which result is kept.
func (p *Poller) Refresh(ctx context.Context, mode Mode) {
	p.mu.Lock()

	if p.tornDown {
		p.mu.Unlock()
		return
	}

	if mode == Foreground {
		if p.loading {
			p.mu.Unlock()
			return
		}

		p.loading = true
	} else {
		if p.refreshing {
			p.mu.Unlock()
			return
		}

		p.refreshing = true
	}

	p.generation++
	gen := p.generation
	snap := p.snapshotLocked()
	p.mu.Unlock()

	p.publish(snap)

	p.logger.Debug("refresh started",
		slog.String("mode", mode.String()),
		slog.Uint64("generation", gen),
	)

	videos, err := p.gateway.ListVideos(ctx)

	if err != nil && (errors.Is(err, api.ErrUnauthorized) || errors.Is(err, session.ErrNotLoggedIn)) {
		p.invalidate()
	}

	p.apply(mode, gen, videos, err)
}

// apply installs a settled refresh result, unless the poller was torn
// down or a newer refresh already applied (stale results from
// adversarial latency are discarded, not merged).
func (p *Poller) apply(mode Mode, gen uint64, videos []api.Video, err error) {
	p.mu.Lock()

	if mode == Foreground {
		p.loading = false
	} else {
		p.refreshing = false
	}

	if p.tornDown || gen < p.lastApplied {
		stale := p.snapshotLocked()
		tornDown := p.tornDown
		p.mu.Unlock()

		p.logger.Debug("discarding refresh result",
			slog.Uint64("generation", gen),
			slog.Bool("torn_down", tornDown),
		)

		if !tornDown {
			// Indicator change is still worth publishing.
			p.publish(stale)
		}

		return
	}

	p.lastApplied = gen

	if err != nil {
		// Fail-safe: an empty list over silently stale data.
		p.videos = nil
		p.lastErr = api.UserMessage(err)

		p.logger.Warn("refresh failed",
			slog.String("mode", mode.String()),
			slog.String("error", err.Error()),
		)
	} else {
		p.videos = videos
		p.lastErr = ""
	}

	snap := p.snapshotLocked()
	p.mu.Unlock()

	p.publish(snap)
}

// Run performs one immediate foreground refresh, then a background
// refresh every interval until Stop is called or ctx is canceled.
func (p *Poller) Run(ctx context.Context) {
	defer close(p.done)

	p.Refresh(ctx, Foreground)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-p.stop:
			return
		case <-ticker.C:
			p.Refresh(ctx, Background)
		}
	}
}

// Stop tears the poller down: future scheduled refreshes are canceled
// and any refresh still in flight completes but its result is
// discarded. Idempotent.
func (p *Poller) Stop() {
	p.stopOnce.Do(func() {
		p.mu.Lock()
		p.tornDown = true
		p.mu.Unlock()

		close(p.stop)

		p.logger.Debug("poller stopped")
	})
}

// Done is closed when Run returns.
func (p *Poller) Done() <-chan struct{} {
	return p.done
}

// Find returns the snapshot entry for a video ID.
func (p *Poller) Find(id string) (api.Video, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for i := range p.videos {
		if p.videos[i].ID == id {
			return p.videos[i], true
		}
	}

	return api.Video{}, false
}

func (p *Poller) snapshotLocked() Snapshot {
	videos := make([]api.Video, len(p.videos))
	copy(videos, p.videos)

	return Snapshot{
		Videos:     videos,
		Loading:    p.loading,
		Refreshing: p.refreshing,
		Err:        p.lastErr,
	}
}

func (p *Poller) publish(snap Snapshot) {
	if p.OnUpdate == nil {
		return
	}

	p.publishMu.Lock()
	defer p.publishMu.Unlock()

	p.OnUpdate(snap)
}
