package stream

import (
	"context"
	"os/exec"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestWorker_RunLoop_StopsAfterMaxRestarts exercises spec §8 scenario 6:
// with MaxRestarts=3, the worker must transition STARTING->ERROR exactly
// three times and never schedule a fourth launch attempt.
func TestWorker_RunLoop_StopsAfterMaxRestarts(t *testing.T) {
	orig := newFFmpegCmd
	defer func() { newFFmpegCmd = orig }()
	newFFmpegCmd = func(ctx context.Context, rtspURL string) *exec.Cmd {
		return exec.CommandContext(ctx, "false")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg := WorkerConfig{AutoRestartDelay: time.Millisecond, MaxRestarts: 3}
	w := newWorker(ctx, "CCTV_01", "rtsp://example/stream", cfg, nil)
	defer w.Stop()

	require.Eventually(t, func() bool {
		status, _, restartCount, _ := w.Snapshot()
		return status == StatusError && restartCount == cfg.MaxRestarts
	}, time.Second, 5*time.Millisecond)

	// Give the loop time to attempt a further restart, then confirm it didn't.
	time.Sleep(50 * time.Millisecond)
	status, _, restartCount, _ := w.Snapshot()
	assert.Equal(t, StatusError, status)
	assert.Equal(t, cfg.MaxRestarts, restartCount)
}
