// Package watch auto-submits new video files dropped into a directory.
// It debounces fsnotify events until a file's size settles (a copy in
// progress keeps growing), skips files the history ledger already
// recorded as submitted, and hands settled files to the uploader in
// small batches.
package watch

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/vidqueue/vidqueue-go/internal/history"
	"github.com/vidqueue/vidqueue-go/internal/uploader"
)

// Settle and poll timings. A file is considered settled when its size
// has not changed across one settle interval.
const (
	defaultSettleDelay = 2 * time.Second
	sweepInterval      = 1 * time.Second
)

// defaultExtensions are the video container formats accepted when the
// config does not override them.
var defaultExtensions = []string{".mp4", ".mov", ".mkv", ".avi", ".webm", ".m4v"}

// Submitter drives a batch of settled files. Satisfied by
// *uploader.Orchestrator.
type Submitter interface {
	Submit(ctx context.Context, paths []string) (*uploader.Outcome, error)
}

// pending tracks a file whose writes have not settled yet.
type pending struct {
	size     int64
	lastSeen time.Time
}

// Watcher observes one directory and submits new video files.
type Watcher struct {
	dir         string
	extensions  map[string]bool
	settleDelay time.Duration
	submitter   Submitter
	ledger      *history.Ledger // nil = no dedupe
	logger      *slog.Logger

	mu      sync.Mutex
	pending map[string]*pending

	// OnBatch observes each settled batch's outcome. May be nil.
	OnBatch func(*uploader.Outcome)
}

// New creates a watcher for dir. extensions may be nil to accept the
// default video formats; entries are matched case-insensitively.
func New(dir string, extensions []string, submitter Submitter, ledger *history.Ledger, logger *slog.Logger) *Watcher {
	if logger == nil {
		logger = slog.Default()
	}

	if len(extensions) == 0 {
		extensions = defaultExtensions
	}

	extSet := make(map[string]bool, len(extensions))
	for _, ext := range extensions {
		extSet[strings.ToLower(ext)] = true
	}

	return &Watcher{
		dir:         dir,
		extensions:  extSet,
		settleDelay: defaultSettleDelay,
		submitter:   submitter,
		ledger:      ledger,
		logger:      logger,
		pending:     make(map[string]*pending),
	}
}

// Run watches the directory until ctx is canceled. Files already in
// the directory at startup are considered too: they get an initial
// sweep so a watch started after a copy still picks the file up.
func (w *Watcher) Run(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	if err := watcher.Add(w.dir); err != nil {
		return err
	}

	w.logger.Info("watching directory",
		slog.String("dir", w.dir),
	)

	w.scanExisting()

	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}

			w.handleEvent(event)

		case watchErr, ok := <-watcher.Errors:
			if !ok {
				return nil
			}

			w.logger.Warn("filesystem watcher error",
				slog.String("error", watchErr.Error()),
			)

		case <-ticker.C:
			w.submitSettled(ctx)
		}
	}
}

// handleEvent records create/write activity for candidate files.
func (w *Watcher) handleEvent(event fsnotify.Event) {
	if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) {
		return
	}

	if !w.accepts(event.Name) {
		return
	}

	info, err := os.Stat(event.Name)
	if err != nil || info.IsDir() {
		// Removed right after creation, or a directory.
		return
	}

	w.track(event.Name, info.Size())
}

// scanExisting seeds the pending set with files already present.
func (w *Watcher) scanExisting() {
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		w.logger.Warn("initial directory scan failed",
			slog.String("dir", w.dir),
			slog.String("error", err.Error()),
		)

		return
	}

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		path := filepath.Join(w.dir, entry.Name())
		if !w.accepts(path) {
			continue
		}

		info, err := entry.Info()
		if err != nil {
			continue
		}

		w.track(path, info.Size())
	}
}

// accepts reports whether the filename has a watched video extension.
// Dotfiles and .partial downloads are never accepted.
func (w *Watcher) accepts(path string) bool {
	name := filepath.Base(path)
	if strings.HasPrefix(name, ".") {
		return false
	}

	return w.extensions[strings.ToLower(filepath.Ext(name))]
}

// track records the latest observed size for a pending file. A size
// change restarts its settle clock.
func (w *Watcher) track(path string, size int64) {
	w.mu.Lock()
	defer w.mu.Unlock()

	entry, ok := w.pending[path]
	if !ok || entry.size != size {
		w.pending[path] = &pending{size: size, lastSeen: time.Now()}
		return
	}
}

// submitSettled collects files whose size has been stable past the
// settle delay, filters out already-submitted ones, and submits the
// rest as one batch.
func (w *Watcher) submitSettled(ctx context.Context) {
	settled := w.takeSettled()
	if len(settled) == 0 {
		return
	}

	paths := make([]string, 0, len(settled))

	for _, path := range settled {
		info, err := os.Stat(path)
		if err != nil {
			continue
		}

		if w.ledger != nil {
			seen, err := w.ledger.WasSubmitted(ctx, path, info.Size(), info.ModTime().UnixNano())
			if err != nil {
				w.logger.Warn("ledger lookup failed",
					slog.String("path", path),
					slog.String("error", err.Error()),
				)
			} else if seen {
				w.logger.Debug("skipping already-submitted file",
					slog.String("path", path),
				)

				continue
			}
		}

		paths = append(paths, path)
	}

	if len(paths) == 0 {
		return
	}

	w.logger.Info("submitting settled files",
		slog.Int("count", len(paths)),
	)

	outcome, err := w.submitter.Submit(ctx, paths)
	if err != nil {
		w.logger.Warn("batch submission failed",
			slog.String("error", err.Error()),
		)

		return
	}

	w.recordOutcome(ctx, outcome)

	if w.OnBatch != nil {
		w.OnBatch(outcome)
	}
}

// takeSettled removes and returns pending files whose size survived a
// re-stat unchanged past the settle delay. Files still growing stay
// pending with their clock restarted.
func (w *Watcher) takeSettled() []string {
	w.mu.Lock()
	defer w.mu.Unlock()

	now := time.Now()

	var settled []string

	for path, entry := range w.pending {
		if now.Sub(entry.lastSeen) < w.settleDelay {
			continue
		}

		info, err := os.Stat(path)
		if err != nil {
			// Vanished while pending.
			delete(w.pending, path)
			continue
		}

		if info.Size() != entry.size {
			entry.size = info.Size()
			entry.lastSeen = now

			continue
		}

		settled = append(settled, path)
		delete(w.pending, path)
	}

	return settled
}

// recordOutcome writes each item's terminal phase to the ledger so the
// same file is not picked up again.
func (w *Watcher) recordOutcome(ctx context.Context, outcome *uploader.Outcome) {
	if w.ledger == nil {
		return
	}

	for i := range outcome.Items {
		item := &outcome.Items[i]

		result := history.OutcomeFailed
		if item.Phase == uploader.PhaseSucceeded {
			result = history.OutcomeSucceeded
		}

		var mtimeNS int64
		if info, err := os.Stat(item.Path); err == nil {
			mtimeNS = info.ModTime().UnixNano()
		}

		rec := &history.Record{
			Path:    item.Path,
			Name:    item.Name,
			Size:    item.Size,
			MtimeNS: mtimeNS,
			Outcome: result,
			Detail:  item.Detail,
		}
		if err := w.ledger.Record(ctx, rec); err != nil {
			w.logger.Warn("recording submission outcome failed",
				slog.String("path", item.Path),
				slog.String("error", err.Error()),
			)
		}
	}
}
