package registry

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/fieldops/watchtower/internal/authtoken"
	"github.com/fieldops/watchtower/internal/logging"
)

var ErrCameraDisabledForToken = errors.New("camera is disabled")

// StreamTokenResult is the response shape for POST /api/cctv/stream-token.
type StreamTokenResult struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
	CameraID  string    `json:"cameraId"`
}

// Issuer mints stream tokens for a camera, scoped to a monitor. Held
// separately from Registry so the gateway side of the system can depend
// on authtoken.Signer alone when it only needs to validate, not issue.
type Issuer struct {
	registry *Registry
	signer   *authtoken.Signer
	ttl      time.Duration
}

func NewIssuer(registry *Registry, signer *authtoken.Signer, ttl time.Duration) *Issuer {
	return &Issuer{registry: registry, signer: signer, ttl: ttl}
}

// GenerateStreamToken requires the caller already be authenticated as
// MONITOR (checked by the HTTP handler before this is called); the camera
// must exist and be enabled. The audit log records issuance, never the
// token value itself.
func (iss *Issuer) GenerateStreamToken(ctx context.Context, cameraID, monitorID string) (*StreamTokenResult, error) {
	cam, err := iss.registry.GetCamera(cameraID)
	if err != nil {
		return nil, err
	}
	if !cam.Enabled {
		return nil, ErrCameraDisabledForToken
	}

	token, expiresAt, err := iss.signer.SignStream(cameraID, monitorID, []string{"VIEW"}, iss.ttl)
	if err != nil {
		return nil, err
	}

	logging.Info(ctx, "stream token issued",
		zap.String("camera_id", cameraID),
		zap.String("monitor_id", monitorID),
		zap.Time("expires_at", expiresAt),
	)

	return &StreamTokenResult{Token: token, ExpiresAt: expiresAt, CameraID: cameraID}, nil
}
