package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"sync"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/vidqueue/vidqueue-go/internal/config"
	"github.com/vidqueue/vidqueue-go/internal/history"
	"github.com/vidqueue/vidqueue-go/internal/uploader"
)

func newUploadCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "upload <files...>",
		Short: "Upload video files for processing",
		Long: `Upload one or more video files for server-side processing.

All files are uploaded concurrently; one file's failure does not stop
the others. The command exits successfully only when every upload in
the batch succeeded.`,
		Args: cobra.MinimumNArgs(1),
		RunE: runUpload,
	}

	cmd.Flags().IntP("parallel", "p", 0, "max concurrent uploads (0 = unbounded, overrides config)")

	return cmd
}

func runUpload(cmd *cobra.Command, args []string) error {
	logger := buildLogger()
	ctx := cmd.Context()

	parallel := resolvedCfg.Upload.Parallel
	if cmd.Flags().Changed("parallel") {
		parallel, _ = cmd.Flags().GetInt("parallel") //nolint:errcheck // flag is registered above
	}

	store := sessionStore(logger)
	guard := sessionGuard(store, logger)

	// No timeout on the upload client: large files take as long as
	// they take. Ctrl-C still cancels via the command context.
	client := newAPIClient(store, &http.Client{}, logger)

	orch := uploader.New(client, guard.Invalidate, parallel, logger)

	printer := newQueuePrinter()
	orch.OnQueue = printer.queued
	orch.OnItem = printer.transition

	outcome, err := orch.Submit(ctx, args)
	if err != nil {
		return err
	}

	recordBatch(ctx, outcome, logger)

	if !outcome.AllSucceeded {
		// Failed items stay listed above with their detail; the exit
		// status carries the aggregate.
		return fmt.Errorf("%d of %d uploads failed", outcome.Failed, len(outcome.Items))
	}

	statusf("All %d uploads completed. Run 'vidqueue videos' to track processing.\n", outcome.Succeeded)

	return nil
}

// recordBatch writes every settled item to the history ledger.
// Ledger trouble never fails the upload command.
func recordBatch(ctx context.Context, outcome *uploader.Outcome, logger *slog.Logger) {
	ledger, err := history.Open(ctx, config.HistoryPath(), nil)
	if err != nil {
		logger.Warn("history ledger unavailable", "error", err.Error())
		return
	}
	defer ledger.Close()

	for i := range outcome.Items {
		item := &outcome.Items[i]

		result := history.OutcomeFailed
		if item.Phase == uploader.PhaseSucceeded {
			result = history.OutcomeSucceeded
		}

		var mtimeNS int64
		if info, statErr := os.Stat(item.Path); statErr == nil {
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
		if recErr := ledger.Record(ctx, rec); recErr != nil {
			logger.Warn("recording upload outcome", "error", recErr.Error())
		}
	}
}

// queuePrinter renders per-item progress. On a TTY the in-flight line
// is rewritten in place; otherwise each transition gets its own line
// so logs stay readable.
type queuePrinter struct {
	tty bool

	mu       sync.Mutex
	inFlight int
}

func newQueuePrinter() *queuePrinter {
	return &queuePrinter{
		tty: isatty.IsTerminal(os.Stderr.Fd()),
	}
}

// queued announces the whole batch at once.
func (qp *queuePrinter) queued(items []uploader.Item) {
	statusf("Uploading %d file(s):\n", len(items))

	for i := range items {
		statusf("  %s  queued\n", items[i].Name)
	}
}

// transition reports one item's phase change.
func (qp *queuePrinter) transition(item uploader.Item) {
	qp.mu.Lock()
	defer qp.mu.Unlock()

	switch item.Phase {
	case uploader.PhaseInFlight:
		qp.inFlight++

		if qp.tty {
			statusf("\ruploading... %d in flight", qp.inFlight)
		}

	case uploader.PhaseSucceeded, uploader.PhaseFailed:
		qp.inFlight--

		if qp.tty {
			// Clear the in-place progress line before the result line.
			statusf("\r\033[K")
		}

		if item.Phase == uploader.PhaseSucceeded {
			statusf("  %s  done (%s)\n", item.Name, formatSize(item.Size))
		} else {
			statusf("  %s  FAILED: %s\n", item.Name, item.Detail)
		}

		if qp.tty && qp.inFlight > 0 {
			statusf("\ruploading... %d in flight", qp.inFlight)
		}

	case uploader.PhaseQueued:
		// Initial phase is announced by queued().
	}
}
