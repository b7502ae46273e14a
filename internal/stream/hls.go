package stream

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// hlsSegmentDuration and hlsWindowSize implement spec §4.3's HLS fallback
// knobs: "2 s segments, window of 5 segments, old segments deleted".
const (
	hlsSegmentDuration = 2 * time.Second
	hlsWindowSize       = 5
)

// hlsVariant is the opt-in rolling-playlist fallback for a single camera.
// It segments the same MPEG-TS byte stream the primary broadcaster fans
// out, writing fixed-size time windows to disk and keeping only the most
// recent hlsWindowSize of them. Otherwise identical in lifecycle to the
// primary worker (spec §4.3): it dies with the worker that owns it.
type hlsVariant struct {
	dir string

	mu           sync.Mutex
	buf          []byte
	segments     []string // ordered oldest-first, basenames
	segmentIndex int
	windowStart  time.Time
}

func newHLSVariant(dir string) *hlsVariant {
	_ = os.MkdirAll(dir, 0o755)
	return &hlsVariant{dir: dir, windowStart: time.Now()}
}

// ingest appends a chunk of transcoded output and rolls a new segment
// once hlsSegmentDuration has elapsed since the current segment opened.
func (h *hlsVariant) ingest(chunk []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.buf = append(h.buf, chunk...)
	if time.Since(h.windowStart) < hlsSegmentDuration {
		return
	}
	h.flushSegmentLocked()
}

func (h *hlsVariant) flushSegmentLocked() {
	if len(h.buf) == 0 {
		h.windowStart = time.Now()
		return
	}
	name := fmt.Sprintf("segment-%d.ts", h.segmentIndex)
	h.segmentIndex++
	path := filepath.Join(h.dir, name)
	if err := os.WriteFile(path, h.buf, 0o644); err != nil {
		h.buf = h.buf[:0]
		h.windowStart = time.Now()
		return
	}
	h.buf = h.buf[:0]
	h.windowStart = time.Now()

	h.segments = append(h.segments, name)
	for len(h.segments) > hlsWindowSize {
		stale := h.segments[0]
		h.segments = h.segments[1:]
		_ = os.Remove(filepath.Join(h.dir, stale))
	}
	h.writePlaylistLocked()
}

// writePlaylistLocked renders playlist.m3u8 for the current window.
func (h *hlsVariant) writePlaylistLocked() {
	seq := 0
	if h.segmentIndex > len(h.segments) {
		seq = h.segmentIndex - len(h.segments)
	}
	playlist := fmt.Sprintf("#EXTM3U\n#EXT-X-VERSION:3\n#EXT-X-TARGETDURATION:%d\n#EXT-X-MEDIA-SEQUENCE:%d\n",
		int(hlsSegmentDuration.Seconds()), seq)
	for _, seg := range h.segments {
		playlist += fmt.Sprintf("#EXTINF:%.1f,\n%s\n", hlsSegmentDuration.Seconds(), seg)
	}
	_ = os.WriteFile(filepath.Join(h.dir, "playlist.m3u8"), []byte(playlist), 0o644)
}

// Close removes every segment file this variant produced.
func (h *hlsVariant) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, seg := range h.segments {
		_ = os.Remove(filepath.Join(h.dir, seg))
	}
	_ = os.Remove(filepath.Join(h.dir, "playlist.m3u8"))
}

// PlaylistPath returns the absolute path of this variant's live playlist,
// which the gateway's /cameras/:id/hls/playlist.m3u8 route serves. The
// segment files themselves are not served by any route in this
// repository; this type only produces them.
func (h *hlsVariant) PlaylistPath() string {
	return filepath.Join(h.dir, "playlist.m3u8")
}
