package main

import (
	"encoding/json"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/vidqueue/vidqueue-go/internal/config"
	"github.com/vidqueue/vidqueue-go/internal/history"
)

func newHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List past upload submissions",
		RunE:  runHistory,
	}

	cmd.Flags().IntP("limit", "n", 50, "maximum entries to show")

	return cmd
}

func runHistory(cmd *cobra.Command, _ []string) error {
	logger := buildLogger()
	ctx := cmd.Context()

	limit, _ := cmd.Flags().GetInt("limit") //nolint:errcheck // flag is registered above

	ledger, err := history.Open(ctx, config.HistoryPath(), logger)
	if err != nil {
		return err
	}
	defer ledger.Close()

	records, err := ledger.List(ctx, limit)
	if err != nil {
		return err
	}

	if flagJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")

		return enc.Encode(recordsJSON(records))
	}

	if len(records) == 0 {
		statusf("No submissions recorded yet.\n")
		return nil
	}

	rows := make([][]string, 0, len(records))
	for i := range records {
		rec := &records[i]
		rows = append(rows, []string{
			rec.Name,
			formatSize(rec.Size),
			rec.Outcome,
			formatTime(rec.SubmittedAt),
		})
	}

	printTable(os.Stdout, []string{"FILE", "SIZE", "OUTCOME", "SUBMITTED"}, rows)

	return nil
}

// recordJSON is the stable machine-readable shape for --json output.
type recordJSON struct {
	Path        string `json:"path"`
	Name        string `json:"name"`
	Size        int64  `json:"size"`
	Outcome     string `json:"outcome"`
	Detail      string `json:"detail,omitempty"`
	SubmittedAt string `json:"submitted_at"`
}

func recordsJSON(records []history.Record) []recordJSON {
	out := make([]recordJSON, 0, len(records))
	for i := range records {
		rec := &records[i]
		out = append(out, recordJSON{
			Path:        rec.Path,
			Name:        rec.Name,
			Size:        rec.Size,
			Outcome:     rec.Outcome,
			Detail:      rec.Detail,
			SubmittedAt: rec.SubmittedAt.UTC().Format(time.RFC3339),
		})
	}

	return out
}
