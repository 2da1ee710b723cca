package main

import (
	"fmt"
	"net/http"
	"os"

	"github.com/spf13/cobra"

	"github.com/vidqueue/vidqueue-go/internal/config"
	"github.com/vidqueue/vidqueue-go/internal/history"
	"github.com/vidqueue/vidqueue-go/internal/uploader"
	"github.com/vidqueue/vidqueue-go/internal/watch"
)

func newWatchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "watch <dir>",
		Short: "Watch a directory and upload new video files automatically",
		Long: `Watch a directory and upload new video files as they appear.

Files are submitted once their size stops changing, so partially
copied files are left alone. Files already uploaded successfully are
remembered and skipped. Runs until interrupted.`,
		Args: cobra.ExactArgs(1),
		RunE: runWatch,
	}
}

func runWatch(cmd *cobra.Command, args []string) error {
	logger := buildLogger()
	ctx := cmd.Context()

	dir := args[0]

	info, err := os.Stat(dir)
	if err != nil {
		return fmt.Errorf("watch directory: %w", err)
	}

	if !info.IsDir() {
		return fmt.Errorf("%s is not a directory", dir)
	}

	store := sessionStore(logger)
	guard := sessionGuard(store, logger)
	client := newAPIClient(store, &http.Client{}, logger)

	orch := uploader.New(client, guard.Invalidate, resolvedCfg.Upload.Parallel, logger)

	ledger, err := history.Open(ctx, config.HistoryPath(), logger)
	if err != nil {
		// Watch still works without dedupe; warn and continue.
		logger.Warn("history ledger unavailable, duplicate submissions possible",
			"error", err.Error())
		ledger = nil
	} else {
		defer ledger.Close()
	}

	w := watch.New(dir, resolvedCfg.Watch.Extensions, orch, ledger, logger)

	w.OnBatch = func(outcome *uploader.Outcome) {
		for i := range outcome.Items {
			item := &outcome.Items[i]
			if item.Phase == uploader.PhaseSucceeded {
				statusf("uploaded %s (%s)\n", item.Name, formatSize(item.Size))
			} else {
				statusf("failed %s: %s\n", item.Name, item.Detail)
			}
		}
	}

	statusf("Watching %s for new videos. Press Ctrl-C to stop.\n", dir)

	return w.Run(ctx)
}
