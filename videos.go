package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/vidqueue/vidqueue-go/internal/api"
	"github.com/vidqueue/vidqueue-go/internal/poller"
)

func newVideosCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "videos",
		Short: "List submitted videos and their processing status",
		RunE:  runVideos,
	}

	cmd.Flags().BoolP("follow", "f", false, "keep refreshing until all videos reach a terminal status")

	return cmd
}

func newGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <video-id> [dir]",
		Short: "Download the processed result of a completed video",
		Args:  cobra.RangeArgs(1, 2),
		RunE:  runGet,
	}
}

func runVideos(cmd *cobra.Command, _ []string) error {
	logger := buildLogger()
	ctx := cmd.Context()

	follow, _ := cmd.Flags().GetBool("follow") //nolint:errcheck // flag is registered above

	store := sessionStore(logger)
	guard := sessionGuard(store, logger)
	client := newAPIClient(store, nil, logger)

	interval := time.Duration(resolvedCfg.Poll.IntervalSeconds) * time.Second
	p := poller.New(client, guard.Invalidate, interval, logger)

	if !follow {
		p.Refresh(ctx, poller.Foreground)

		snap := p.Snapshot()
		if snap.Err != "" {
			return fmt.Errorf("%s", snap.Err)
		}

		return renderVideos(snap.Videos)
	}

	return followVideos(cmd, p)
}

// followVideos runs the refresh cadence until every video settles or
// the context is canceled. Each applied snapshot is re-rendered.
func followVideos(cmd *cobra.Command, p *poller.Poller) error {
	ctx := cmd.Context()
	settled := make(chan struct{})

	p.OnUpdate = func(snap poller.Snapshot) {
		// Skip indicator-only updates; render applied results.
		if snap.Loading || snap.Refreshing {
			return
		}

		if snap.Err != "" {
			fmt.Fprintf(os.Stderr, "refresh failed: %s\n", snap.Err)
			return
		}

		if err := renderVideos(snap.Videos); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}

		if len(snap.Videos) > 0 && allTerminal(snap.Videos) {
			select {
			case <-settled:
			default:
				close(settled)
			}
		}
	}

	go p.Run(ctx)

	select {
	case <-ctx.Done():
	case <-settled:
		statusf("All videos reached a terminal status.\n")
	}

	p.Stop()
	<-p.Done()

	return nil
}

func allTerminal(videos []api.Video) bool {
	for i := range videos {
		if !videos[i].Status.Terminal() {
			return false
		}
	}

	return true
}

// renderVideos prints the list as a table, or as JSON with --json.
func renderVideos(videos []api.Video) error {
	if flagJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")

		return enc.Encode(videosJSON(videos))
	}

	if len(videos) == 0 {
		statusf("No videos submitted yet.\n")
		return nil
	}

	rows := make([][]string, 0, len(videos))
	for i := range videos {
		v := &videos[i]
		rows = append(rows, []string{
			v.ID,
			v.OriginalFilename,
			string(v.Status),
			formatTime(v.UpdatedAt),
		})
	}

	printTable(os.Stdout, []string{"ID", "FILENAME", "STATUS", "UPDATED"}, rows)

	return nil
}

// videoJSON is the stable machine-readable shape for --json output.
type videoJSON struct {
	ID               string `json:"id"`
	OriginalFilename string `json:"original_filename"`
	Status           string `json:"status"`
	CreatedAt        string `json:"created_at"`
	UpdatedAt        string `json:"updated_at"`
}

func videosJSON(videos []api.Video) []videoJSON {
	out := make([]videoJSON, 0, len(videos))
	for i := range videos {
		v := &videos[i]
		out = append(out, videoJSON{
			ID:               v.ID,
			OriginalFilename: v.OriginalFilename,
			Status:           string(v.Status),
			CreatedAt:        v.CreatedAt.UTC().Format(time.RFC3339),
			UpdatedAt:        v.UpdatedAt.UTC().Format(time.RFC3339),
		})
	}

	return out
}

func runGet(cmd *cobra.Command, args []string) error {
	logger := buildLogger()
	ctx := cmd.Context()

	videoID := args[0]

	dir := "."
	if len(args) > 1 {
		dir = args[1]
	}

	store := sessionStore(logger)
	guard := sessionGuard(store, logger)

	// Downloads share the upload rule: no fixed deadline.
	client := newAPIClient(store, &http.Client{}, logger)

	p := poller.New(client, guard.Invalidate, 0, logger)

	result, err := p.Download(ctx, client, videoID, dir)
	if err != nil {
		return err
	}

	statusf("Saved %s (%s)\n", result.Path, formatSize(result.Size))

	return nil
}
