package api

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestListVideos(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/videos/status" {
			t.Errorf("path = %s, want /videos/status", r.URL.Path)
		}

		w.Write([]byte(`[
			{"id": "v1", "original_filename": "a.mp4", "status": "COMPLETED",
			 "created_at": "2026-08-01T10:00:00Z", "updated_at": "2026-08-01T10:05:00Z"},
			{"id": "v2", "original_filename": "b.mp4", "status": "processing",
			 "created_at": "2026-08-01T11:00:00Z", "updated_at": "2026-08-01T11:00:00Z"}
		]`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, nil, staticToken("tok"), testLogger())

	videos, err := c.ListVideos(context.Background())
	if err != nil {
		t.Fatalf("ListVideos: %v", err)
	}

	if len(videos) != 2 {
		t.Fatalf("len = %d, want 2", len(videos))
	}

	if videos[0].ID != "v1" || videos[0].Status != StatusCompleted {
		t.Errorf("videos[0] = %+v", videos[0])
	}

	// Lowercase statuses from older servers are uppercased.
	if videos[1].Status != StatusProcessing {
		t.Errorf("videos[1].Status = %q, want %q", videos[1].Status, StatusProcessing)
	}

	want := time.Date(2026, 8, 1, 10, 5, 0, 0, time.UTC)
	if !videos[0].UpdatedAt.Equal(want) {
		t.Errorf("UpdatedAt = %v, want %v", videos[0].UpdatedAt, want)
	}
}

func TestListVideosEmpty(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`[]`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, nil, staticToken("tok"), testLogger())

	videos, err := c.ListVideos(context.Background())
	if err != nil {
		t.Fatalf("ListVideos: %v", err)
	}

	if len(videos) != 0 {
		t.Errorf("len = %d, want 0", len(videos))
	}
}

func TestListVideosBadTimestampFallsBack(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`[{"id": "v1", "original_filename": "a.mp4", "status": "PENDING",
			"created_at": "not-a-date", "updated_at": ""}]`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, nil, staticToken("tok"), testLogger())

	before := time.Now().Add(-time.Minute)

	videos, err := c.ListVideos(context.Background())
	if err != nil {
		t.Fatalf("ListVideos: %v", err)
	}

	if videos[0].CreatedAt.Before(before) {
		t.Errorf("CreatedAt = %v, want fallback near now", videos[0].CreatedAt)
	}
}

func TestDownloadVideo(t *testing.T) {
	payload := []byte("processed result bytes")

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/videos/v1/download" {
			t.Errorf("path = %s, want /videos/v1/download", r.URL.Path)
		}

		w.Header().Set("Content-Disposition", `attachment; filename="result.zip"`)
		w.Write(payload)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, nil, staticToken("tok"), testLogger())

	var buf bytes.Buffer

	n, filename, err := c.DownloadVideo(context.Background(), "v1", &buf)
	if err != nil {
		t.Fatalf("DownloadVideo: %v", err)
	}

	if n != int64(len(payload)) {
		t.Errorf("n = %d, want %d", n, len(payload))
	}

	if filename != "result.zip" {
		t.Errorf("filename = %q, want %q", filename, "result.zip")
	}

	if !bytes.Equal(buf.Bytes(), payload) {
		t.Errorf("body mismatch")
	}
}

func TestDownloadVideoNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, nil, staticToken("tok"), testLogger())

	var buf bytes.Buffer

	_, _, err := c.DownloadVideo(context.Background(), "missing", &buf)
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("error = %v, want ErrNotFound", err)
	}
}

func TestDispositionFilename(t *testing.T) {
	tests := []struct {
		name   string
		header string
		want   string
	}{
		{"quoted", `attachment; filename="a.zip"`, "a.zip"},
		{"bare", `attachment; filename=a.zip`, "a.zip"},
		{"missing param", `attachment`, ""},
		{"empty", ``, ""},
		{"malformed", `;;;`, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := dispositionFilename(tt.header); got != tt.want {
				t.Errorf("dispositionFilename(%q) = %q, want %q", tt.header, got, tt.want)
			}
		})
	}
}

func TestStatusTerminal(t *testing.T) {
	tests := []struct {
		status Status
		want   bool
	}{
		{StatusPending, false},
		{StatusProcessing, false},
		{StatusCompleted, true},
		{StatusFailed, true},
	}

	for _, tt := range tests {
		if got := tt.status.Terminal(); got != tt.want {
			t.Errorf("%s.Terminal() = %v, want %v", tt.status, got, tt.want)
		}
	}
}

func TestNormalizeName(t *testing.T) {
	nfd := "cafe\u0301.mp4"
	nfc := "caf\u00e9.mp4"

	if got := NormalizeName(nfd); got != nfc {
		t.Errorf("NormalizeName(%q) = %q, want %q", nfd, got, nfc)
	}

	// Already-NFC input passes through unchanged.
	if got := NormalizeName(nfc); got != nfc {
		t.Errorf("NormalizeName(%q) = %q, want unchanged", nfc, got)
	}
}
