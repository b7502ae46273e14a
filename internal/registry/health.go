package registry

import (
	"crypto/subtle"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/fieldops/watchtower/internal/logging"
)

// HealthEntry is one element of the batch POST /api/cctv/health-callback
// accepts from the gateway.
type HealthEntry struct {
	CameraID string       `json:"cameraId" binding:"required"`
	Status   CameraStatus `json:"status" binding:"required"`
	Message  string       `json:"message"`
}

// HealthCallbackInput is the request body: a batch, since one gateway
// instance reports for every camera it supervises in a single tick.
type HealthCallbackInput struct {
	Entries []HealthEntry `json:"entries" binding:"required,dive"`
}

// HealthHandler returns a gin handler for the health-callback sink,
// optionally gated by a pre-shared X-Gateway-Secret header (spec §4.2,
// §6). An empty secret disables the check — the control plane and
// gateway are assumed to share a trusted network in that deployment.
func HealthHandler(registry *Registry, sharedSecret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if sharedSecret != "" {
			got := c.GetHeader("X-Gateway-Secret")
			if subtle.ConstantTimeCompare([]byte(got), []byte(sharedSecret)) != 1 {
				c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid gateway secret"})
				return
			}
		}

		var in HealthCallbackInput
		if err := c.ShouldBindJSON(&in); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "malformed health-callback body"})
			return
		}

		ctx := c.Request.Context()
		accepted := 0
		for _, entry := range in.Entries {
			if err := registry.UpdateCameraStatus(ctx, entry.CameraID, entry.Status); err != nil {
				logging.Warn(ctx, "health-callback entry skipped",
					zap.String("camera_id", entry.CameraID),
					zap.Error(err),
				)
				continue
			}
			accepted++
		}

		c.JSON(http.StatusOK, gin.H{"accepted": accepted, "total": len(in.Entries)})
	}
}
