package poller

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/vidqueue/vidqueue-go/internal/api"
	"github.com/vidqueue/vidqueue-go/internal/session"
)

// ErrItemNotReady is returned when a download is requested for a video
// whose processing has not completed. The UI never offers the action
// for such items, but the contract rejects misuse anyway.
var ErrItemNotReady = errors.New("poller: video is not ready for download")

// BinaryFetcher is the download operation the poller depends on.
type BinaryFetcher interface {
	DownloadVideo(ctx context.Context, videoID string, w io.Writer) (int64, string, error)
}

// DownloadResult reports a completed download.
type DownloadResult struct {
	Path string
	Size int64
}

// Download fetches the processed result for a COMPLETED video into
// dir. Readiness is checked against the current snapshot, or against a
// fresh list when the poller holds no entry for the ID (one-shot use
// without a running cadence).
//
// The stream goes to a .partial file first and is renamed into place
// only when complete, so an interrupted download never leaves a
// half-written file under the final name.
func (p *Poller) Download(ctx context.Context, fetcher BinaryFetcher, videoID, dir string) (*DownloadResult, error) {
	video, ok := p.Find(videoID)
	if !ok {
		videos, err := p.gateway.ListVideos(ctx)
		if err != nil {
			if errors.Is(err, api.ErrUnauthorized) || errors.Is(err, session.ErrNotLoggedIn) {
				p.invalidate()
			}

			return nil, err
		}

		for i := range videos {
			if videos[i].ID == videoID {
				video = videos[i]
				ok = true

				break
			}
		}

		if !ok {
			return nil, fmt.Errorf("%w: %s", api.ErrNotFound, videoID)
		}
	}

	if video.Status != api.StatusCompleted {
		return nil, fmt.Errorf("%w: %s is %s", ErrItemNotReady, videoID, video.Status)
	}

	return p.fetchToFile(ctx, fetcher, video, dir)
}

// fetchToFile streams the binary to <dir>/<name>.partial and renames
// it to the final name on success.
func (p *Poller) fetchToFile(ctx context.Context, fetcher BinaryFetcher, video api.Video, dir string) (*DownloadResult, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil { //nolint:mnd // owner-only dir perms
		return nil, fmt.Errorf("poller: creating %s: %w", dir, err)
	}

	name := downloadName(video)
	targetPath := filepath.Join(dir, name)
	partialPath := targetPath + ".partial"

	f, err := os.Create(partialPath)
	if err != nil {
		return nil, fmt.Errorf("poller: creating partial file: %w", err)
	}

	n, serverName, fetchErr := fetcher.DownloadVideo(ctx, video.ID, f)

	if closeErr := f.Close(); closeErr != nil && fetchErr == nil {
		fetchErr = fmt.Errorf("poller: closing partial file: %w", closeErr)
	}

	if fetchErr != nil {
		os.Remove(partialPath)

		if errors.Is(fetchErr, api.ErrUnauthorized) || errors.Is(fetchErr, session.ErrNotLoggedIn) {
			p.invalidate()
		}

		return nil, fetchErr
	}

	// Prefer the server's suggested filename when it provides one.
	if serverName != "" && serverName != name {
		targetPath = filepath.Join(dir, filepath.Base(serverName))
	}

	if err := os.Rename(partialPath, targetPath); err != nil {
		os.Remove(partialPath)

		return nil, fmt.Errorf("poller: renaming %s: %w", partialPath, err)
	}

	p.logger.Info("download saved",
		slog.String("video_id", video.ID),
		slog.String("path", targetPath),
		slog.Int64("size", n),
	)

	return &DownloadResult{Path: targetPath, Size: n}, nil
}

// downloadName picks a local filename for a video's processed result.
func downloadName(video api.Video) string {
	if video.OriginalFilename != "" {
		return filepath.Base(video.OriginalFilename) + ".zip"
	}

	return "video_" + video.ID + ".zip"
}
