package registry

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/fieldops/watchtower/internal/authtoken"
)

// Handlers binds the registry's control-backend HTTP surface (spec §6):
// GET /api/cctv/cameras, GET /api/cctv/cameras/{id},
// POST /api/cctv/stream-token, POST /api/cctv/health-callback.
type Handlers struct {
	registry *Registry
	issuer   *Issuer
}

func NewHandlers(registry *Registry, issuer *Issuer) *Handlers {
	return &Handlers{registry: registry, issuer: issuer}
}

// Register mounts routes under the given router group. authMiddleware runs
// only in front of the monitor-facing endpoints (cameras, stream-token) and
// stashes clientId/role in the gin context; requireMonitorRole then rejects
// anything that isn't a MONITOR identity (spec §4.4: "kiosks may not ...
// enumerate cameras"). health-callback is gateway-to-control-plane traffic
// and is authenticated separately via X-Gateway-Secret, not a client
// identity.
func (h *Handlers) Register(rg *gin.RouterGroup, healthSecret string, authMiddleware gin.HandlerFunc) {
	monitorRoutes := rg.Group("", authMiddleware, requireMonitorRole)
	monitorRoutes.GET("/cameras", h.listCameras)
	monitorRoutes.GET("/cameras/:id", h.getCamera)
	monitorRoutes.POST("/stream-token", h.generateStreamToken)

	rg.POST("/health-callback", HealthHandler(h.registry, healthSecret))
}

// requireMonitorRole rejects any caller whose identity claims (stashed by
// authMiddleware under "role") aren't MONITOR. Every route in this group is
// monitor-only per spec §4.2/§4.4.
func requireMonitorRole(c *gin.Context) {
	role, _ := c.Get("role")
	if role != string(authtoken.RoleMonitor) {
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "only monitors may access this endpoint"})
		return
	}
	c.Next()
}

func (h *Handlers) listCameras(c *gin.Context) {
	enabledOnly := c.Query("enabled") == "true"
	c.JSON(http.StatusOK, h.registry.ListCameras(enabledOnly))
}

func (h *Handlers) getCamera(c *gin.Context) {
	cam, err := h.registry.GetCamera(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "camera not found"})
		return
	}
	c.JSON(http.StatusOK, cam.Public())
}

type streamTokenRequest struct {
	CameraID string `json:"cameraId" binding:"required"`
}

// generateStreamToken mints a single-use stream token for the camera named
// in the request body. Caller role is already enforced by requireMonitorRole.
func (h *Handlers) generateStreamToken(c *gin.Context) {
	var req streamTokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "cameraId is required"})
		return
	}

	monitorID, _ := c.Get("clientId")
	monitorIDStr, _ := monitorID.(string)

	result, err := h.issuer.GenerateStreamToken(c.Request.Context(), req.CameraID, monitorIDStr)
	if err != nil {
		switch {
		case errors.Is(err, ErrCameraNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "camera not found"})
		case errors.Is(err, ErrCameraDisabledForToken):
			c.JSON(http.StatusForbidden, gin.H{"error": "camera is disabled"})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to issue stream token"})
		}
		return
	}

	c.JSON(http.StatusCreated, result)
}
