package stream

import (
	"errors"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/fieldops/watchtower/internal/authtoken"
	"github.com/fieldops/watchtower/internal/logging"
	"github.com/fieldops/watchtower/internal/registry"
)

// Handlers binds the gateway's HTTP/viewer-transport surface (spec §6):
// GET /health, POST /validate-token, POST /register-camera, GET /cameras,
// and the persistent-connection viewer path.
type Handlers struct {
	cameras    *registry.Registry
	supervisor *Supervisor
	admitter   *Admitter
	allowedOrigins []string
}

func NewHandlers(cameras *registry.Registry, supervisor *Supervisor, admitter *Admitter, allowedOrigins []string) *Handlers {
	return &Handlers{cameras: cameras, supervisor: supervisor, admitter: admitter, allowedOrigins: allowedOrigins}
}

func (h *Handlers) Register(r gin.IRouter) {
	r.GET("/health", h.health)
	r.POST("/validate-token", h.validateToken)
	r.POST("/register-camera", h.registerCamera)
	r.GET("/cameras", h.listCameras)
	r.GET("/webrtc", h.serveViewer)
	r.GET("/cameras/:id/hls/playlist.m3u8", h.serveHLSPlaylist)
}

func (h *Handlers) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "workers": h.supervisor.Snapshot()})
}

type validateTokenRequest struct {
	Token string `json:"token" binding:"required"`
}

func (h *Handlers) validateToken(c *gin.Context) {
	var req validateTokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "token is required"})
		return
	}
	// This endpoint only checks validity; it does not mark the token used
	// for the eventual viewer admission, which re-validates at handshake.
	claims, err := h.admitter.signer.ValidateStream(req.Token)
	if err != nil {
		reason := ErrInvalidSignature
		if errors.Is(err, authtoken.ErrExpired) {
			reason = ErrTokenExpired
		}
		c.JSON(admissionStatusCode(reason), gin.H{"error": reason.Error()})
		return
	}
	if !claims.HasPermission("VIEW") {
		c.JSON(admissionStatusCode(ErrNoViewPermission), gin.H{"error": ErrNoViewPermission.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"cameraId": claims.CameraID, "valid": true})
}

type registerCameraRequest struct {
	CameraID string `json:"cameraId" binding:"required"`
	RTSPURL  string `json:"rtspUrl" binding:"required"`
	Location string `json:"location"`
}

// registerCamera populates the gateway's own camera table (rtspUrl only
// ever needs to live here and in the control plane's registry — the two
// are not networked to each other, per the plane-isolation non-goal).
func (h *Handlers) registerCamera(c *gin.Context) {
	var req registerCameraRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "cameraId and rtspUrl are required"})
		return
	}
	cam, err := h.cameras.RegisterCamera(c.Request.Context(), registry.RegisterCameraInput{
		CameraID: req.CameraID,
		RTSPURL:  req.RTSPURL,
		Location: req.Location,
	})
	if err != nil {
		switch {
		case errors.Is(err, registry.ErrDuplicateCamera):
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		case errors.Is(err, registry.ErrInvalidRTSPURL), errors.Is(err, registry.ErrCameraIDRequired):
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to register camera"})
		}
		return
	}
	c.JSON(http.StatusCreated, cam.Public())
}

func (h *Handlers) listCameras(c *gin.Context) {
	c.JSON(http.StatusOK, h.cameras.ListCameras(false))
}

var viewerUpgrader = websocket.Upgrader{
	WriteBufferPool: &sync.Pool{New: func() any { return make([]byte, 4096) }},
}

// serveViewer performs token admission (spec §4.3) and, once admitted,
// upgrades to a persistent connection carrying the raw MPEG-TS byte
// stream (Open Question (b): WebSocket, not a second WebRTC/MSE
// transport). Media bytes never cross into the signaling hub's
// connection — this is a wholly separate listener (spec §9 "Media flow
// and signaling flow must not share a transport").
func (h *Handlers) serveViewer(c *gin.Context) {
	token := c.Query("token")

	upgrader := viewerUpgrader
	upgrader.CheckOrigin = func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" || len(h.allowedOrigins) == 0 {
			return true
		}
		originURL, err := url.Parse(origin)
		if err != nil {
			return false
		}
		for _, allowed := range h.allowedOrigins {
			if strings.EqualFold(originURL.Host, allowed) {
				return true
			}
		}
		return false
	}

	result, err := h.admitter.Admit(c.Request.Context(), token)
	if err != nil {
		c.JSON(admissionStatusCode(err), gin.H{"error": err.Error()})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logging.Warn(c.Request.Context(), "viewer upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	_, ch, err := h.supervisor.AdmitViewer(result.CameraID)
	if err != nil {
		_ = conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseTryAgainLater, err.Error()))
		return
	}
	worker, _ := h.supervisor.Worker(result.CameraID)
	defer worker.Unsubscribe(ch)

	conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})
	go discardReads(conn)

	for chunk := range ch {
		conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
		if err := conn.WriteMessage(websocket.BinaryMessage, chunk); err != nil {
			return
		}
	}
}

// discardReads drains and ignores any client-sent frames (this transport
// is one-way video push) so the connection's read deadline/pong
// machinery keeps functioning.
func discardReads(conn *websocket.Conn) {
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Handlers) serveHLSPlaylist(c *gin.Context) {
	cameraID := c.Param("id")
	w, ok := h.supervisor.Worker(cameraID)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "no active worker for camera"})
		return
	}
	w.mu.Lock()
	variant := w.hls
	w.mu.Unlock()
	if variant == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "HLS fallback not enabled for this camera"})
		return
	}
	c.File(variant.PlaylistPath())
}

func admissionStatusCode(err error) int {
	switch {
	case errors.Is(err, ErrTokenRequired):
		return http.StatusUnauthorized
	case errors.Is(err, ErrInvalidSignature):
		return http.StatusUnauthorized
	case errors.Is(err, ErrTokenExpired):
		return http.StatusUnauthorized
	case errors.Is(err, ErrTokenAlreadyUsed):
		return http.StatusUnauthorized
	case errors.Is(err, ErrNoViewPermission):
		return http.StatusForbidden
	case errors.Is(err, ErrCameraUnknown):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}
