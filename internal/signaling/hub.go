package signaling

import (
	"context"
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
	"github.com/fieldops/watchtower/internal/metrics"
)

// Hub is the Signaling Hub's connection registry and router: it admits
// connections, owns Presence and Sessions, and dispatches inbound frames
// to the handler for their type (spec §4.1). One Hub per process.
type Hub struct {
	signer         *authtoken.Signer
	sessionTimeout time.Duration
	allowedOrigins []string

	presence *Presence
	sessions *Sessions
}

func NewHub(signer *authtoken.Signer, sessionTimeout time.Duration, allowedOrigins []string) *Hub {
	return &Hub{
		signer:         signer,
		sessionTimeout: sessionTimeout,
		allowedOrigins: allowedOrigins,
		presence:       newPresence(),
		sessions:       newSessions(),
	}
}

var hubUpgrader = websocket.Upgrader{
	WriteBufferPool: &sync.Pool{New: func() any { return make([]byte, 4096) }},
}

// ServeWs admits and upgrades a connection (spec §4.1 "Admission"). Every
// persistent connection carries a bearer credential verified against the
// shared signing key; unauthenticated connections are refused at
// handshake time.
func (h *Hub) ServeWs(c *gin.Context) {
	tokenString := c.Query("token")
	claims, err := h.signer.ValidateIdentity(tokenString)
	if err != nil {
		metrics.TokenValidations.WithLabelValues("rejected").Inc()
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid or missing token"})
		return
	}
	metrics.TokenValidations.WithLabelValues("accepted").Inc()

	upgrader := hubUpgrader
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

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logging.Warn(c.Request.Context(), "hub: upgrade failed", zap.Error(err))
		return
	}

	client := newClient(claims.ClientID, claims.Role, conn, h)
	metrics.PresenceConnections.WithLabelValues(string(claims.Role)).Inc()

	go client.writePump()
	client.readPump()
}

// dispatch decodes the envelope type and runs the matching handler. Per
// spec §4.1: "Every payload is validated before state mutation; unknown
// fields are ignored, missing required fields produce error with a
// code." Unknown event types are rejected the same way.
func (h *Hub) dispatch(c *Client, raw []byte) {
	var env rawEnvelope
	if err := jsonUnmarshal(raw, &env); err != nil {
		h.sendError(c, ErrCodeInvalidTarget, "malformed message")
		return
	}

	ctx := context.Background()
	if c.Role == RoleKiosk {
		h.sessions.Touch(c.ID)
	} else {
		// A monitor's commands target a kioskId carried in the payload;
		// handlers touch the session themselves once they've resolved it.
	}

	switch env.Type {
	case "register-kiosk":
		h.handleRegisterKiosk(ctx, c)
	case "register-monitor":
		h.handleRegisterMonitor(ctx, c)
	case "get-online-kiosks":
		h.handleGetOnlineKiosks(c)
	case "start-monitoring":
		h.handleStartMonitoring(c, raw)
	case "stop-monitoring":
		h.handleStopMonitoring(c, raw)
	case "call-request":
		h.handleCallRequest(c, raw)
	case "call-accept":
		h.handleCallAccept(c, raw)
	case "call-reject":
		h.handleCallReject(c, raw)
	case "call-end":
		h.handleCallEnd(c, raw)
	case "toggle-video":
		h.handleToggle(c, raw, "video")
	case "toggle-audio":
		h.handleToggle(c, raw, "audio")
	case "ping":
		h.handlePing(c)
	default:
		h.sendError(c, ErrCodeInvalidTarget, "unknown event type")
	}
}

// handleDisconnect runs the cleanup spec §4.1 describes for each role.
func (h *Hub) handleDisconnect(c *Client) {
	metrics.PresenceConnections.WithLabelValues(string(c.Role)).Dec()

	switch c.Role {
	case RoleKiosk:
		h.presence.RemoveKiosk(c.ID)
		if sess, ok := h.sessions.Get(c.ID); ok {
			inCall := sess.CallState != CallIdle
			if inCall {
				endCall(sess)
			}
			h.sessions.Delete(c.ID)
			if monitor, ok := h.presence.Monitor(sess.MonitorConnectionHandle); ok {
				if inCall {
					monitor.Send(mustJSON(map[string]any{"type": "call-ended", "fromId": c.ID}))
				}
				monitor.Send(mustJSON(map[string]any{
					"type":    "monitoring-stopped",
					"kioskId": c.ID,
					"reason":  "kiosk disconnected",
				}))
			}
		}
		h.presence.BroadcastToMonitors(mustJSON(KioskOfflineEvent{
			Type: "kiosk-offline", KioskID: c.ID, Timestamp: time.Now().UTC(), Reason: "disconnected",
		}))
	case RoleMonitor:
		h.presence.RemoveMonitor(c.ID)
		for _, sess := range h.sessions.DeleteByMonitor(c.ID) {
			inCall := sess.CallState != CallIdle
			if inCall {
				endCall(sess)
			}
			if kiosk, ok := h.presence.Kiosk(sess.KioskID); ok {
				if inCall {
					kiosk.Send(mustJSON(map[string]any{"type": "call-ended", "fromId": c.ID}))
				}
				kiosk.Send(mustJSON(map[string]any{
					"type":    "monitoring-stopped",
					"kioskId": sess.KioskID,
					"reason":  "monitor disconnected",
				}))
			}
		}
	}
}

// RunReaper scans every ~30s and ends sessions idle past sessionTimeout
// (spec §4.1 "Session timeout reaper").
func (h *Hub) RunReaper(ctx context.Context) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, sess := range h.sessions.ExpiredSessions(h.sessionTimeout) {
				h.sessions.Delete(sess.KioskID)
				if kiosk, ok := h.presence.Kiosk(sess.KioskID); ok {
					kiosk.Send(mustJSON(map[string]any{"type": "monitoring-stopped", "kioskId": sess.KioskID, "reason": "session timeout"}))
				}
				if monitor, ok := h.presence.Monitor(sess.MonitorConnectionHandle); ok {
					monitor.Send(mustJSON(map[string]any{"type": "monitoring-stopped", "kioskId": sess.KioskID, "reason": "session timeout"}))
				}
				logging.Info(ctx, "session reaped on timeout", zap.String("kiosk_id", sess.KioskID))
			}
		}
	}
}
