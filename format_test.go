package main

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFormatSize(t *testing.T) {
	tests := []struct {
		bytes int64
		want  string
	}{
		{0, "0 B"},
		{512, "512 B"},
		{1024, "1.0 KB"},
		{1536, "1.5 KB"},
		{5 * 1024 * 1024, "5.0 MB"},
		{3 * 1024 * 1024 * 1024, "3.0 GB"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, formatSize(tt.bytes))
	}
}

func TestFormatTimeCurrentYear(t *testing.T) {
	now := time.Now()
	got := formatTime(now)

	// Current-year timestamps show time of day, not the year.
	assert.NotContains(t, got, now.Format("2006"))
}

func TestFormatTimePastYear(t *testing.T) {
	old := time.Date(2019, 3, 5, 10, 0, 0, 0, time.UTC)

	assert.Contains(t, formatTime(old), "2019")
}

func TestPrintTableAlignsColumns(t *testing.T) {
	var buf bytes.Buffer

	printTable(&buf, []string{"ID", "NAME"}, [][]string{
		{"v1", "short.mp4"},
		{"v2-longer", "x.mp4"},
	})

	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	assert.Len(t, lines, 3)

	// Header padded to the widest cell in each column.
	assert.Contains(t, string(lines[0]), "ID         NAME")
	assert.Contains(t, string(lines[1]), "v1         short.mp4")
}

func TestPrintTableEmptyRows(t *testing.T) {
	var buf bytes.Buffer

	printTable(&buf, []string{"A", "B"}, nil)

	assert.Equal(t, 1, bytes.Count(buf.Bytes(), []byte("\n")))
}
