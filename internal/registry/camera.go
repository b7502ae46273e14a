// Package registry keeps the camera table and mints stream tokens (spec
// §4.2). The control plane and the Stream Gateway each run their own
// Registry instance; rtspUrl lives only inside a Registry, and the
// registry never emits it outward.
package registry

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/fieldops/watchtower/internal/logging"
)

type CameraStatus string

const (
	StatusOnline  CameraStatus = "ONLINE"
	StatusOffline CameraStatus = "OFFLINE"
	StatusError   CameraStatus = "ERROR"
)

var (
	ErrDuplicateCamera   = errors.New("camera already registered")
	ErrCameraNotFound    = errors.New("camera not found")
	ErrInvalidRTSPURL    = errors.New("rtspUrl must start with rtsp://")
	ErrCameraIDRequired  = errors.New("cameraId is required")
	ErrCameraDisabled    = errors.New("camera is disabled")
)

// Camera is the full internal record, including the secret rtspUrl. Never
// serialize this type directly to an outward-facing response; use
// Public().
type Camera struct {
	CameraID        string
	RTSPURL         string
	Location        string
	Enabled         bool
	RegisteredAt    time.Time
	Status          CameraStatus
	LastStatusUpdate time.Time
}

// PublicCamera is the projection returned to monitors: rtspUrl stripped.
type PublicCamera struct {
	CameraID         string       `json:"cameraId"`
	Location         string       `json:"location"`
	Enabled          bool         `json:"enabled"`
	RegisteredAt     time.Time    `json:"registeredAt"`
	Status           CameraStatus `json:"status"`
	LastStatusUpdate time.Time    `json:"lastStatusUpdate"`
}

func (c *Camera) Public() PublicCamera {
	return PublicCamera{
		CameraID:         c.CameraID,
		Location:         c.Location,
		Enabled:          c.Enabled,
		RegisteredAt:     c.RegisteredAt,
		Status:           c.Status,
		LastStatusUpdate: c.LastStatusUpdate,
	}
}

// RegisterCameraInput is the write-only shape accepted by registerCamera;
// rtspUrl never leaves the registry once accepted here.
type RegisterCameraInput struct {
	CameraID string
	RTSPURL  string
	Location string
	Enabled  *bool // nil defaults to true, per spec §4.2
}

// Registry is the shared camera table. One per process; all
// mutations are bracketed by mu, matching the "per-key lock, single-writer
// read-modify-write" convention spec §5 requires for shared stores.
type Registry struct {
	mu      sync.RWMutex
	cameras map[string]*Camera
}

func New() *Registry {
	return &Registry{cameras: make(map[string]*Camera)}
}

// RegisterCamera validates and inserts a new camera. Default enabled=true,
// initial status=OFFLINE (spec §4.2).
func (r *Registry) RegisterCamera(ctx context.Context, in RegisterCameraInput) (*Camera, error) {
	if in.CameraID == "" {
		return nil, ErrCameraIDRequired
	}
	if !strings.HasPrefix(in.RTSPURL, "rtsp://") {
		return nil, ErrInvalidRTSPURL
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.cameras[in.CameraID]; exists {
		return nil, ErrDuplicateCamera
	}

	enabled := true
	if in.Enabled != nil {
		enabled = *in.Enabled
	}

	cam := &Camera{
		CameraID:         in.CameraID,
		RTSPURL:          in.RTSPURL,
		Location:         in.Location,
		Enabled:          enabled,
		RegisteredAt:     time.Now(),
		Status:           StatusOffline,
		LastStatusUpdate: time.Now(),
	}
	r.cameras[in.CameraID] = cam

	logging.Info(ctx, "camera registered",
		zap.String("camera_id", cam.CameraID),
		zap.String("rtsp_url", logging.MaskRTSPURL(cam.RTSPURL)),
	)
	return cam, nil
}

// GetCamera returns the full internal record, used by the stream gateway
// (from its own registry instance) to obtain the rtspUrl for spawning a
// worker. Never exposed directly over HTTP.
func (r *Registry) GetCamera(cameraID string) (*Camera, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	cam, ok := r.cameras[cameraID]
	if !ok {
		return nil, ErrCameraNotFound
	}
	return cam, nil
}

// ListCameras returns public projections, optionally filtered to enabled
// cameras only (GET /api/cctv/cameras?enabled=true).
func (r *Registry) ListCameras(enabledOnly bool) []PublicCamera {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]PublicCamera, 0, len(r.cameras))
	for _, cam := range r.cameras {
		if enabledOnly && !cam.Enabled {
			continue
		}
		out = append(out, cam.Public())
	}
	return out
}

// UpdateCameraStatus is called by the health-callback sink (spec §4.2).
func (r *Registry) UpdateCameraStatus(ctx context.Context, cameraID string, status CameraStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	cam, ok := r.cameras[cameraID]
	if !ok {
		return ErrCameraNotFound
	}
	cam.Status = status
	cam.LastStatusUpdate = time.Now()

	logging.Info(ctx, "camera status updated",
		zap.String("camera_id", cameraID),
		zap.String("status", string(status)),
	)
	return nil
}
