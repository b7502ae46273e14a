package stream

import (
	"context"
	"os/exec"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/fieldops/watchtower/internal/logging"
	"github.com/fieldops/watchtower/internal/metrics"
)

// Status is the worker lifecycle state from spec §4.3/§3.
type Status string

const (
	StatusStarting Status = "STARTING"
	StatusRunning  Status = "RUNNING"
	StatusStopping Status = "STOPPING"
	StatusStopped  Status = "STOPPED"
	StatusError    Status = "ERROR"
)

// WorkerConfig carries the gateway-wide knobs a Worker needs, read once at
// construction from internal/config.
type WorkerConfig struct {
	AutoRestartDelay time.Duration
	MaxRestarts      int
}

// Worker supervises one camera's transcoding child process and fans its
// output to every admitted viewer. One Worker exists per camera while it
// has viewers (or is within its idle grace period); it is created on
// first admission and destroyed after STOPPING→STOPPED (spec §3, §4.3).
//
// Grounded on the reference DVR manager's per-camera runCamera/runLoop
// restart cycle, narrowed to single-process, in-memory fan-out (no
// archival, no FIFOs: this worker only needs one live MPEG-TS output).
type Worker struct {
	CameraID string

	cfg    WorkerConfig
	rtspURL string

	ts  *broadcaster
	hls *hlsVariant // nil until EnableHLS is called; no code path calls it

	mu                   sync.Mutex
	status               Status
	startedAt            time.Time
	viewerCount          int
	lastViewerActivityAt time.Time
	restartCount         int
	lastRestart          time.Time
	lastErrorMessage     string

	onStatusChange func(cameraID string, status Status, message string)

	cancel context.CancelFunc
	done   chan struct{}
}

// newWorker constructs a Worker in STARTING state and launches its
// supervising goroutine. rtspURL is held only in memory, never logged
// unmasked.
func newWorker(parent context.Context, cameraID, rtspURL string, cfg WorkerConfig, onStatusChange func(string, Status, string)) *Worker {
	ctx, cancel := context.WithCancel(parent)
	w := &Worker{
		CameraID:       cameraID,
		cfg:            cfg,
		rtspURL:        rtspURL,
		ts:             newBroadcaster(),
		status:         StatusStarting,
		startedAt:      time.Now(),
		onStatusChange: onStatusChange,
		cancel:         cancel,
		done:           make(chan struct{}),
	}
	metrics.WorkersActive.WithLabelValues(string(StatusStarting)).Inc()
	go w.runLoop(ctx)
	return w
}

func (w *Worker) setStatus(status Status, message string) {
	w.mu.Lock()
	prev := w.status
	w.status = status
	w.lastErrorMessage = message
	w.mu.Unlock()

	if prev != status {
		metrics.WorkersActive.WithLabelValues(string(prev)).Dec()
		metrics.WorkersActive.WithLabelValues(string(status)).Inc()
	}
	if w.onStatusChange != nil {
		w.onStatusChange(w.CameraID, status, message)
	}
}

// Snapshot returns a point-in-time snapshot of the supervisor record.
func (w *Worker) Snapshot() (status Status, viewerCount, restartCount int, lastRestart time.Time) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.status, w.viewerCount, w.restartCount, w.lastRestart
}

// ffmpegArgs builds the low-latency transcode command from spec §4.3:
// TCP transport, ultrafast/zerolatency, fixed 1280x720@25fps, ~1Mbps, no
// B-frames, no audio egress, MPEG-TS to stdout.
func ffmpegArgs(rtspURL string) []string {
	return []string{
		"-rtsp_transport", "tcp",
		"-i", rtspURL,
		"-an", // no audio egress
		"-c:v", "libx264",
		"-preset", "ultrafast",
		"-tune", "zerolatency",
		"-bf", "0", // no B-frames
		"-s", "1280x720",
		"-r", "25",
		"-b:v", "1M",
		"-f", "mpegts",
		"pipe:1",
	}
}

// runLoop is the restart cycle: spawn, stream stdout to the broadcaster,
// and on exit either back off and retry or give up once MaxRestarts is
// exhausted (spec §4.3's restart cap, example in spec §8 item 6).
func (w *Worker) runLoop(ctx context.Context) {
	defer close(w.done)
	defer w.ts.closeAll()

	for {
		if ctx.Err() != nil {
			w.setStatus(StatusStopped, "")
			return
		}

		w.mu.Lock()
		attempt := w.restartCount
		w.mu.Unlock()

		if attempt >= w.cfg.MaxRestarts {
			w.setStatus(StatusError, "Max restart attempts reached")
			logging.Error(ctx, "stream worker exhausted restart budget",
				zap.String("camera_id", w.CameraID),
				zap.Int("max_restarts", w.cfg.MaxRestarts),
			)
			return
		}

		w.setStatus(StatusStarting, "")
		if err := w.runOnce(ctx); err != nil {
			metrics.WorkerRestarts.WithLabelValues(w.CameraID).Inc()
			w.mu.Lock()
			w.restartCount++
			w.lastRestart = time.Now()
			w.mu.Unlock()

			logging.Warn(ctx, "stream worker exited, scheduling restart",
				zap.String("camera_id", w.CameraID),
				zap.Error(err),
			)
			w.setStatus(StatusError, err.Error())

			select {
			case <-ctx.Done():
				w.setStatus(StatusStopped, "")
				return
			case <-time.After(w.cfg.AutoRestartDelay):
			}
			continue
		}

		// Clean exit (ctx cancelled mid-run): stop, don't restart.
		w.setStatus(StatusStopped, "")
		return
	}
}

// newFFmpegCmd builds the child process command. Overridden in tests so
// the restart cycle can be exercised without a real ffmpeg binary or RTSP
// source.
var newFFmpegCmd = func(ctx context.Context, rtspURL string) *exec.Cmd {
	return exec.CommandContext(ctx, "ffmpeg", ffmpegArgs(rtspURL)...)
}

// runOnce spawns ffmpeg, streams its stdout chunks to the broadcaster
// until it exits or ctx is cancelled, and reports RUNNING once the first
// byte flows.
func (w *Worker) runOnce(ctx context.Context) error {
	cmd := newFFmpegCmd(ctx, w.rtspURL)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return err
	}
	if err := cmd.Start(); err != nil {
		return err
	}

	readErr := make(chan error, 1)
	go func() {
		buf := make([]byte, 32*1024)
		first := true
		for {
			n, err := stdout.Read(buf)
			if n > 0 {
				if first {
					w.setStatus(StatusRunning, "")
					first = false
				}
				chunk := make([]byte, n)
				copy(chunk, buf[:n])
				w.ts.send(chunk)
				if w.hls != nil {
					w.hls.ingest(chunk)
				}
			}
			if err != nil {
				readErr <- err
				return
			}
		}
	}()

	select {
	case <-ctx.Done():
		_ = cmd.Wait()
		return nil
	case err := <-readErr:
		waitErr := cmd.Wait()
		if ctx.Err() != nil {
			return nil
		}
		if waitErr != nil {
			return waitErr
		}
		if err != nil && err.Error() != "EOF" {
			return err
		}
		return nil
	}
}

// Subscribe registers a new viewer and bumps the reference count (spec
// §4.3 admission step 5). Call Unsubscribe exactly once when the viewer
// disconnects.
func (w *Worker) Subscribe() chan []byte {
	w.mu.Lock()
	w.viewerCount++
	w.lastViewerActivityAt = time.Now()
	w.mu.Unlock()
	metrics.ViewersActive.WithLabelValues(w.CameraID).Inc()
	return w.ts.subscribe()
}

func (w *Worker) Unsubscribe(ch chan []byte) {
	w.ts.unsubscribe(ch)
	w.mu.Lock()
	if w.viewerCount > 0 {
		w.viewerCount--
	}
	w.lastViewerActivityAt = time.Now()
	w.mu.Unlock()
	metrics.ViewersActive.WithLabelValues(w.CameraID).Dec()
}

// ViewerCount and IdleSince back the reaper's sweep decision.
func (w *Worker) ViewerCount() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.viewerCount
}

func (w *Worker) IdleSince() time.Time {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.lastViewerActivityAt
}

// Stop transitions the worker through STOPPING→STOPPED and releases its
// child process and subscribers.
func (w *Worker) Stop() {
	w.setStatus(StatusStopping, "")
	w.cancel()
	<-w.done

	w.mu.Lock()
	variant := w.hls
	w.mu.Unlock()
	if variant != nil {
		variant.Close()
	}
}

// EnableHLS lazily starts the opt-in HLS playlist variant (spec §4.3
// "Fallback (HLS)"). Idempotent.
func (w *Worker) EnableHLS(segmentDir string) *hlsVariant {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.hls == nil {
		w.hls = newHLSVariant(segmentDir)
	}
	return w.hls
}
