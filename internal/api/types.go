package api

import (
	"log/slog"
	"strings"
	"time"

	"golang.org/x/text/unicode/norm"
)

// Status is the server-side lifecycle status of a submitted video.
type Status string

// Lifecycle statuses as reported by the processing service.
const (
	StatusPending    Status = "PENDING"
	StatusProcessing Status = "PROCESSING"
	StatusCompleted  Status = "COMPLETED"
	StatusFailed     Status = "FAILED"
)

// Terminal reports whether the status can no longer change server-side.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Video is a read-only projection of server-owned processing state.
// The client never mutates these; the full list is replaced wholesale
// on every successful refresh.
type Video struct {
	ID               string
	OriginalFilename string
	Status           Status
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// videoResponse mirrors the service's video JSON exactly. Callers use
// Video via toVideo() normalization.
type videoResponse struct {
	ID               string `json:"id"`
	OriginalFilename string `json:"original_filename"`
	Status           string `json:"status"`
	CreatedAt        string `json:"created_at"`
	UpdatedAt        string `json:"updated_at"`
}

// toVideo normalizes a raw service response into our Video type.
// Unknown statuses pass through uppercased so the UI can still show them.
func (v *videoResponse) toVideo(logger *slog.Logger) Video {
	return Video{
		ID:               v.ID,
		OriginalFilename: NormalizeName(v.OriginalFilename),
		Status:           Status(strings.ToUpper(v.Status)),
		CreatedAt:        parseTimestamp(v.CreatedAt, "created_at", v.ID, logger),
		UpdatedAt:        parseTimestamp(v.UpdatedAt, "updated_at", v.ID, logger),
	}
}

// NormalizeName returns the NFC form of a filename. macOS file pickers
// hand out NFD names; the server compares names byte-wise, so both
// sides must agree on one form.
func NormalizeName(name string) string {
	return norm.NFC.String(name)
}

// parseTimestamp parses an RFC3339 timestamp, falling back to the
// current time with a warning on invalid input.
func parseTimestamp(raw, field, videoID string, logger *slog.Logger) time.Time {
	if raw == "" {
		return time.Now().UTC()
	}

	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		logger.Warn("invalid timestamp, using current time",
			slog.String("field", field),
			slog.String("video_id", videoID),
			slog.String("raw", raw),
		)

		return time.Now().UTC()
	}

	return t
}
