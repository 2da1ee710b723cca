package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
)

// ListVideos fetches the caller's videos with their processing status,
// in the order the server returns them (newest first).
func (c *Client) ListVideos(ctx context.Context) ([]Video, error) {
	c.logger.Debug("listing videos")

	resp, err := c.do(ctx, http.MethodGet, "/videos/status", "", http.NoBody, true)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var raw []videoResponse
	if decErr := json.NewDecoder(resp.Body).Decode(&raw); decErr != nil {
		return nil, fmt.Errorf("api: decoding video list: %w", decErr)
	}

	videos := make([]Video, 0, len(raw))
	for i := range raw {
		videos = append(videos, raw[i].toVideo(c.logger))
	}

	c.logger.Debug("video list fetched",
		slog.Int("count", len(videos)),
	)

	return videos, nil
}

// DownloadVideo streams the processed result for a video to w.
// Returns the number of bytes written and the filename the server
// suggests via Content-Disposition ("" when absent; callers fall back
// to a name derived from the video ID).
func (c *Client) DownloadVideo(ctx context.Context, videoID string, w io.Writer) (int64, string, error) {
	c.logger.Info("downloading video",
		slog.String("video_id", videoID),
	)

	resp, err := c.do(ctx, http.MethodGet, "/videos/"+videoID+"/download", "", http.NoBody, true)
	if err != nil {
		return 0, "", err
	}
	defer resp.Body.Close()

	filename := dispositionFilename(resp.Header.Get("Content-Disposition"))

	n, copyErr := io.Copy(w, resp.Body)
	if copyErr != nil {
		c.logger.Error("streaming download failed",
			slog.String("video_id", videoID),
			slog.Int64("bytes_before_error", n),
			slog.String("error", copyErr.Error()),
		)

		return n, filename, fmt.Errorf("api: streaming download: %w", copyErr)
	}

	c.logger.Debug("download complete",
		slog.String("video_id", videoID),
		slog.Int64("bytes_written", n),
	)

	return n, filename, nil
}

// dispositionFilename extracts the filename parameter from a
// Content-Disposition header, or "" when missing or malformed.
func dispositionFilename(header string) string {
	if header == "" {
		return ""
	}

	_, params, err := mime.ParseMediaType(header)
	if err != nil {
		return ""
	}

	return NormalizeName(params["filename"])
}
