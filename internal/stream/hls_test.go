package stream

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHLSVariant_RollsSegmentsAndPrunesWindow(t *testing.T) {
	dir := t.TempDir()
	h := newHLSVariant(dir)
	h.windowStart = time.Now().Add(-hlsSegmentDuration * 2) // force an immediate flush

	for i := 0; i < hlsWindowSize+2; i++ {
		h.ingest([]byte("chunk"))
		h.mu.Lock()
		h.windowStart = time.Now().Add(-hlsSegmentDuration * 2)
		h.mu.Unlock()
	}

	h.mu.Lock()
	count := len(h.segments)
	h.mu.Unlock()
	assert.Equal(t, hlsWindowSize, count, "window must never exceed hlsWindowSize segments")

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	// hlsWindowSize segments + playlist.m3u8
	assert.Len(t, entries, hlsWindowSize+1)

	playlist, err := os.ReadFile(filepath.Join(dir, "playlist.m3u8"))
	require.NoError(t, err)
	assert.Contains(t, string(playlist), "#EXTM3U")
}

func TestHLSVariant_Close_RemovesSegments(t *testing.T) {
	dir := t.TempDir()
	h := newHLSVariant(dir)
	h.windowStart = time.Now().Add(-hlsSegmentDuration * 2)
	h.ingest([]byte("chunk"))

	h.Close()

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 0)
}
