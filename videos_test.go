package main

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vidqueue/vidqueue-go/internal/api"
)

func TestAllTerminal(t *testing.T) {
	assert.True(t, allTerminal(nil))

	assert.True(t, allTerminal([]api.Video{
		{ID: "a", Status: api.StatusCompleted},
		{ID: "b", Status: api.StatusFailed},
	}))

	assert.False(t, allTerminal([]api.Video{
		{ID: "a", Status: api.StatusCompleted},
		{ID: "b", Status: api.StatusProcessing},
	}))
}

func TestVideosJSONShape(t *testing.T) {
	created := time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)

	out := videosJSON([]api.Video{{
		ID:               "v1",
		OriginalFilename: "a.mp4",
		Status:           api.StatusCompleted,
		CreatedAt:        created,
		UpdatedAt:        created.Add(5 * time.Minute),
	}})

	require.Len(t, out, 1)
	assert.Equal(t, "v1", out[0].ID)
	assert.Equal(t, "COMPLETED", out[0].Status)
	assert.Equal(t, "2026-08-01T10:00:00Z", out[0].CreatedAt)
	assert.Equal(t, "2026-08-01T10:05:00Z", out[0].UpdatedAt)
}

func TestVideosJSONEmpty(t *testing.T) {
	// Empty list must encode as [], not null.
	assert.NotNil(t, videosJSON(nil))
	assert.Empty(t, videosJSON(nil))
}
