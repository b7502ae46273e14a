// Package stream is the CCTV Stream Gateway: it supervises one transcoding
// worker per actively-viewed camera, admits viewers via single-use stream
// tokens, and reaps workers that have sat idle past the configured
// timeout (spec §4.3). The gateway keeps its own camera table (populated
// by POST /register-camera) so it can resolve a cameraId to its rtspUrl
// without calling back across the plane boundary to the control backend.
package stream

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/fieldops/watchtower/internal/logging"
	"github.com/fieldops/watchtower/internal/metrics"
	"github.com/fieldops/watchtower/internal/registry"
)

var ErrCameraUnknown = errors.New("camera unknown to gateway")

// Supervisor owns the per-camera worker table — the fourth of the five
// shared mutable stores spec §5 names ("the presence maps, session map,
// camera registry, worker table, and replay set").
type Supervisor struct {
	cameras *registry.Registry
	cfg     WorkerConfig

	maxViewersPerCamera   int
	idleTimeout           time.Duration

	mu      sync.Mutex
	workers map[string]*Worker

	ctx context.Context
}

func NewSupervisor(ctx context.Context, cameras *registry.Registry, cfg WorkerConfig, maxViewersPerCamera int, idleTimeout time.Duration) *Supervisor {
	return &Supervisor{
		cameras:             cameras,
		cfg:                 cfg,
		maxViewersPerCamera: maxViewersPerCamera,
		idleTimeout:         idleTimeout,
		workers:             make(map[string]*Worker),
		ctx:                 ctx,
	}
}

// EnsureWorker starts a worker for cameraID if one doesn't already exist
// in a usable state, or returns the existing one (spec §4.3 "Worker
// lifecycle": "if no StreamWorker exists for cameraId (or its status is
// ERROR/STOPPED), start one").
func (s *Supervisor) EnsureWorker(cameraID string) (*Worker, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if w, ok := s.workers[cameraID]; ok {
		status, _, _, _ := w.Snapshot()
		if status != StatusError && status != StatusStopped {
			return w, nil
		}
	}

	cam, err := s.cameras.GetCamera(cameraID)
	if err != nil {
		return nil, ErrCameraUnknown
	}

	w := newWorker(s.ctx, cameraID, cam.RTSPURL, s.cfg, s.onWorkerStatusChange)
	s.workers[cameraID] = w
	logging.Info(s.ctx, "stream worker started",
		zap.String("camera_id", cameraID),
		zap.String("rtsp_url", logging.MaskRTSPURL(cam.RTSPURL)),
	)
	return w, nil
}

func (s *Supervisor) onWorkerStatusChange(cameraID string, status Status, message string) {
	logging.Info(s.ctx, "stream worker status change",
		zap.String("camera_id", cameraID),
		zap.String("status", string(status)),
		zap.String("message", message),
	)
}

// AdmitViewer resolves (spawning if necessary) the worker for cameraID
// and subscribes a new viewer, enforcing the per-camera viewer cap (spec
// §4.3's "resource" error kind).
func (s *Supervisor) AdmitViewer(cameraID string) (*Worker, chan []byte, error) {
	w, err := s.EnsureWorker(cameraID)
	if err != nil {
		return nil, nil, err
	}
	if w.ViewerCount() >= s.maxViewersPerCamera {
		return nil, nil, errors.New("viewer capacity reached for camera")
	}
	return w, w.Subscribe(), nil
}

// Worker returns the current worker for cameraID, if any, without
// starting one.
func (s *Supervisor) Worker(cameraID string) (*Worker, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	w, ok := s.workers[cameraID]
	return w, ok
}

// Snapshot summarizes every known worker, used by the gateway's /health
// endpoint and by the health reporter.
type WorkerSnapshot struct {
	CameraID     string `json:"cameraId"`
	Status       Status `json:"status"`
	ViewerCount  int    `json:"viewerCount"`
	RestartCount int    `json:"restartCount"`
}

func (s *Supervisor) Snapshot() []WorkerSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]WorkerSnapshot, 0, len(s.workers))
	for id, w := range s.workers {
		status, viewers, restarts, _ := w.Snapshot()
		out = append(out, WorkerSnapshot{CameraID: id, Status: status, ViewerCount: viewers, RestartCount: restarts})
	}
	return out
}

// RunReaper sweeps every 30s for workers with zero viewers that have sat
// idle past idleTimeout (default 60s) and stops them (spec §4.3, §8
// example 5: "Both disconnect; after 60 s idle the worker stops").
func (s *Supervisor) RunReaper(ctx context.Context) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.reapOnce()
		}
	}
}

func (s *Supervisor) reapOnce() {
	s.mu.Lock()
	var toStop []*Worker
	for id, w := range s.workers {
		status, viewers, _, _ := w.Snapshot()
		if status == StatusStopped || status == StatusError {
			delete(s.workers, id)
			continue
		}
		if viewers == 0 && time.Since(w.IdleSince()) >= s.idleTimeout {
			toStop = append(toStop, w)
			delete(s.workers, id)
		}
	}
	s.mu.Unlock()

	for _, w := range toStop {
		logging.Info(s.ctx, "stream worker reaped (idle timeout)", zap.String("camera_id", w.CameraID))
		w.Stop()
		metrics.ViewersDropped.WithLabelValues(w.CameraID).Add(0)
	}
}
