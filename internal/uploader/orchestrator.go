package uploader

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/vidqueue/vidqueue-go/internal/api"
	"github.com/vidqueue/vidqueue-go/internal/session"
)

// ErrNoFilesSelected is returned by Submit for an empty batch. The
// call has no side effects in that case.
var ErrNoFilesSelected = errors.New("uploader: no files selected")

// Submitter is the single remote operation the orchestrator depends on.
type Submitter interface {
	SubmitVideo(ctx context.Context, name string, r io.Reader, size int64) (string, error)
}

// Outcome aggregates a settled batch. AllSucceeded is true iff every
// item reached PhaseSucceeded; only then does the caller fire its
// downstream success action.
type Outcome struct {
	AllSucceeded bool
	Succeeded    int
	Failed       int
	Items        []Item
}

// Orchestrator drives one batch of uploads at a time. All items are
// dispatched concurrently and independently: one item's failure never
// cancels or blocks its siblings, and the batch settles only when
// every item is terminal. The join is never fail-fast.
//
// Submit imposes no queue-level lock against re-entrant calls; the
// upload command runs batches one at a time.
type Orchestrator struct {
	gateway    Submitter
	invalidate session.InvalidateFunc
	logger     *slog.Logger

	// parallel bounds concurrent submissions; 0 means unbounded so no
	// item's start waits on another's progress.
	parallel int

	// OnQueue observes the full queue the moment a batch is published;
	// OnItem observes every individual phase transition. Both may be
	// nil. OnItem is called from worker goroutines, one call at a time.
	OnQueue func([]Item)
	OnItem  func(Item)

	mu    sync.Mutex
	queue []Item

	// openFunc is the file-open seam. Defaults to openFile.
	// Tests override it to submit in-memory payloads.
	openFunc func(path string) (io.ReadCloser, int64, error)
}

// New creates an orchestrator. invalidate is the session guard
// capability, invoked once per authorization failure (not deduplicated
// across items; the guard itself is idempotent).
func New(gateway Submitter, invalidate session.InvalidateFunc, parallel int, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}

	return &Orchestrator{
		gateway:    gateway,
		invalidate: invalidate,
		parallel:   parallel,
		logger:     logger,
		openFunc:   openFile,
	}
}

// Queue returns a snapshot of the current batch.
func (o *Orchestrator) Queue() []Item {
	o.mu.Lock()
	defer o.mu.Unlock()

	return o.snapshotLocked()
}

// Submit builds the tracked queue for the given files and drives every
// submission to a terminal phase. The previous batch's queue is
// replaced wholesale; observers see the new batch appear at once.
func (o *Orchestrator) Submit(ctx context.Context, paths []string) (*Outcome, error) {
	if len(paths) == 0 {
		return nil, ErrNoFilesSelected
	}

	items := make([]Item, 0, len(paths))
	for _, p := range paths {
		items = append(items, Item{
			ID:    uuid.NewString(),
			Path:  p,
			Name:  api.NormalizeName(filepath.Base(p)),
			Phase: PhaseQueued,
		})
	}

	o.mu.Lock()
	o.queue = items
	published := o.snapshotLocked()
	o.mu.Unlock()

	o.logger.Info("batch submitted",
		slog.Int("files", len(published)),
	)

	if o.OnQueue != nil {
		o.OnQueue(published)
	}

	// Dispatch in input order; completion order is unconstrained.
	var g errgroup.Group
	if o.parallel > 0 {
		g.SetLimit(o.parallel)
	}

	for i := range published {
		g.Go(func() error {
			o.runItem(ctx, published[i].ID)

			// Failures are recorded on the item, never returned:
			// returning an error here would make the join fail-fast.
			return nil
		})
	}

	// Join waits for all items to settle regardless of failures.
	_ = g.Wait() //nolint:errcheck // goroutines always return nil

	return o.outcome(), nil
}

// runItem drives a single item to a terminal phase.
func (o *Orchestrator) runItem(ctx context.Context, id string) {
	item, ok := o.transition(id, PhaseInFlight, "")
	if !ok {
		return
	}

	r, size, err := o.openFunc(item.Path)
	if err != nil {
		o.logger.Warn("cannot open file for upload",
			slog.String("path", item.Path),
			slog.String("error", err.Error()),
		)
		o.transition(id, PhaseFailed, err.Error())

		return
	}
	defer r.Close()

	o.setSize(id, size)

	message, err := o.gateway.SubmitVideo(ctx, item.Name, r, size)
	if err != nil {
		if errors.Is(err, api.ErrUnauthorized) || errors.Is(err, session.ErrNotLoggedIn) {
			// Once per occurrence; the guard deduplicates the notice.
			o.invalidate()
		}

		o.logger.Warn("upload failed",
			slog.String("name", item.Name),
			slog.String("error", err.Error()),
		)
		o.transition(id, PhaseFailed, api.UserMessage(err))

		return
	}

	o.logger.Info("upload succeeded",
		slog.String("name", item.Name),
	)
	o.transition(id, PhaseSucceeded, message)
}

// transition moves an item to the given phase and notifies OnItem.
// Phases are monotonic: a terminal item is never regressed, and the
// stale transition is dropped with ok=false.
func (o *Orchestrator) transition(id string, phase Phase, detail string) (Item, bool) {
	o.mu.Lock()

	idx := o.indexLocked(id)
	if idx < 0 || o.queue[idx].Phase.Terminal() {
		o.mu.Unlock()
		return Item{}, false
	}

	o.queue[idx].Phase = phase
	if detail != "" {
		o.queue[idx].Detail = detail
	}

	updated := o.queue[idx]
	o.mu.Unlock()

	if o.OnItem != nil {
		o.OnItem(updated)
	}

	return updated, true
}

// setSize records the file size discovered at open time.
func (o *Orchestrator) setSize(id string, size int64) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if idx := o.indexLocked(id); idx >= 0 {
		o.queue[idx].Size = size
	}
}

// outcome computes the aggregate after every item has settled.
func (o *Orchestrator) outcome() *Outcome {
	o.mu.Lock()
	defer o.mu.Unlock()

	out := &Outcome{Items: o.snapshotLocked()}
	for i := range out.Items {
		if out.Items[i].Phase == PhaseSucceeded {
			out.Succeeded++
		} else {
			out.Failed++
		}
	}

	out.AllSucceeded = out.Failed == 0

	return out
}

func (o *Orchestrator) indexLocked(id string) int {
	for i := range o.queue {
		if o.queue[i].ID == id {
			return i
		}
	}

	return -1
}

func (o *Orchestrator) snapshotLocked() []Item {
	snap := make([]Item, len(o.queue))
	copy(snap, o.queue)

	return snap
}

// openFile opens a local file and stats its size.
func openFile(path string) (io.ReadCloser, int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, fmt.Errorf("opening %s: %w", path, err)
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, 0, fmt.Errorf("stat %s: %w", path, err)
	}

	return f, info.Size(), nil
}
