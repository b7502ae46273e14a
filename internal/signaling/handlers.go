package signaling

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/fieldops/watchtower/internal/logging"
	"github.com/fieldops/watchtower/internal/metrics"
)

// kioskIDPayload is the shared shape of every monitor-issued session/call
// command: `{kioskId}` (spec §6).
type kioskIDPayload struct {
	KioskID string `json:"kioskId"`
}

type togglePayload struct {
	KioskID string `json:"kioskId"`
	Enabled bool   `json:"enabled"`
}

func logCommand(c *Client, event string) {
	logging.Info(context.Background(), "signaling command",
		zap.String("client_id", c.ID), zap.String("role", string(c.Role)), zap.String("event", event))
}

func (h *Hub) handleRegisterKiosk(ctx context.Context, c *Client) {
	if c.Role != RoleKiosk {
		h.sendError(c, ErrCodeBadRole, "only kiosks may register as kiosks")
		return
	}
	h.presence.RegisterKiosk(c.ID, c)
	metrics.SignalingEvents.WithLabelValues("register-kiosk", "ok").Inc()

	h.presence.BroadcastToMonitors(mustJSON(KioskOnlineEvent{
		Type: "kiosk-online", KioskID: c.ID, Timestamp: time.Now().UTC(),
	}))
	c.Send(mustJSON(map[string]any{"type": "kiosk-registered"}))
	logCommand(c, "register-kiosk")
}

func (h *Hub) handleRegisterMonitor(ctx context.Context, c *Client) {
	if c.Role != RoleMonitor {
		h.sendError(c, ErrCodeBadRole, "only monitors may register as monitors")
		return
	}
	h.presence.RegisterMonitor(c.ID, c)
	metrics.SignalingEvents.WithLabelValues("register-monitor", "ok").Inc()

	c.Send(mustJSON(map[string]any{
		"type":         "monitor-registered",
		"onlineKiosks": h.presence.OnlineKioskIDs(),
	}))
	logCommand(c, "register-monitor")
}

func (h *Hub) handleGetOnlineKiosks(c *Client) {
	kiosks := h.presence.OnlineKioskIDs()
	c.Send(mustJSON(map[string]any{
		"type":      "online-kiosks-list",
		"kiosks":    kiosks,
		"count":     len(kiosks),
		"timestamp": time.Now().UTC(),
	}))
}

func (h *Hub) handleStartMonitoring(c *Client, raw []byte) {
	if c.Role != RoleMonitor {
		h.sendError(c, ErrCodeBadRole, "only monitors may start monitoring")
		return
	}
	var payload kioskIDPayload
	if err := jsonUnmarshal(raw, &payload); err != nil || payload.KioskID == "" {
		h.sendError(c, ErrCodeInvalidTarget, "kioskId is required")
		return
	}
	if _, ok := h.presence.Kiosk(payload.KioskID); !ok {
		h.sendError(c, ErrCodeKioskNotFound, "kiosk is not online")
		return
	}

	if _, err := h.sessions.Start(payload.KioskID, c.ID); err != nil {
		if errors.Is(err, ErrSessionConflict) {
			h.sendError(c, ErrCodeSessionConflict, "kiosk already monitored by another session")
			return
		}
		h.sendError(c, ErrCodeInvalidTarget, err.Error())
		return
	}

	metrics.SignalingEvents.WithLabelValues("start-monitoring", "ok").Inc()
	c.Send(mustJSON(map[string]any{"type": "monitoring-started", "kioskId": payload.KioskID}))
	logCommand(c, "start-monitoring")
}

func (h *Hub) handleStopMonitoring(c *Client, raw []byte) {
	if c.Role != RoleMonitor {
		h.sendError(c, ErrCodeBadRole, "only monitors may stop monitoring")
		return
	}
	var payload kioskIDPayload
	if err := jsonUnmarshal(raw, &payload); err != nil || payload.KioskID == "" {
		h.sendError(c, ErrCodeInvalidTarget, "kioskId is required")
		return
	}

	if err := h.sessions.Stop(payload.KioskID, c.ID); err != nil {
		h.sendError(c, errCodeFor(err), err.Error())
		return
	}

	metrics.SignalingEvents.WithLabelValues("stop-monitoring", "ok").Inc()
	c.Send(mustJSON(map[string]any{"type": "monitoring-stopped", "kioskId": payload.KioskID, "reason": "stopped by monitor"}))
	logCommand(c, "stop-monitoring")
}

// resolveAndMutate runs the five-step validation from spec
// §4.1: (1) session exists, (2) [implicitly active — existence implies
// active in this store], (3) sender is a participant, (4) role check is
// left to the caller since it varies by command, (5) state-machine guard
// is applied by the caller via fn.
func (h *Hub) resolveAndMutate(c *Client, kioskID string, fn func(sess *Session) error) error {
	return h.sessions.withSession(kioskID, func(sess *Session) error {
		if c.ID != sess.KioskID && c.ID != sess.MonitorConnectionHandle {
			return ErrNotOwner
		}
		sess.LastActivityAt = time.Now()
		return fn(sess)
	})
}

func (h *Hub) handleCallRequest(c *Client, raw []byte) {
	var payload kioskIDPayload
	if err := jsonUnmarshal(raw, &payload); err != nil || payload.KioskID == "" {
		h.sendError(c, ErrCodeInvalidTarget, "kioskId is required")
		return
	}

	var sess *Session
	err := h.resolveAndMutate(c, payload.KioskID, func(s *Session) error {
		sess = s
		return requestCall(s, c.Role)
	})
	if err != nil {
		h.emitSessionError(c, payload.KioskID, err)
		return
	}

	metrics.SignalingEvents.WithLabelValues("call-request", "ok").Inc()
	h.forwardToPeer(sess, c, mustJSON(map[string]any{"type": "call-request", "fromId": c.ID}))
	c.Send(mustJSON(map[string]any{"type": "call-request-sent", "kioskId": payload.KioskID}))
	logCommand(c, "call-request")
}

func (h *Hub) handleCallAccept(c *Client, raw []byte) {
	var payload kioskIDPayload
	if err := jsonUnmarshal(raw, &payload); err != nil || payload.KioskID == "" {
		h.sendError(c, ErrCodeInvalidTarget, "kioskId is required")
		return
	}

	var sess *Session
	err := h.resolveAndMutate(c, payload.KioskID, func(s *Session) error {
		sess = s
		return acceptCall(s, c.Role)
	})
	if err != nil {
		h.emitSessionError(c, payload.KioskID, err)
		return
	}

	metrics.SignalingEvents.WithLabelValues("call-accept", "ok").Inc()
	h.sendToBothSides(sess, mustJSON(map[string]any{"type": "call-accepted", "fromId": c.ID}))
	c.Send(mustJSON(map[string]any{"type": "call-accept-confirmed", "kioskId": payload.KioskID}))
	logCommand(c, "call-accept")
}

func (h *Hub) handleCallReject(c *Client, raw []byte) {
	var payload kioskIDPayload
	if err := jsonUnmarshal(raw, &payload); err != nil || payload.KioskID == "" {
		h.sendError(c, ErrCodeInvalidTarget, "kioskId is required")
		return
	}

	var sess *Session
	err := h.resolveAndMutate(c, payload.KioskID, func(s *Session) error {
		sess = s
		return rejectCall(s, c.Role)
	})
	if err != nil {
		h.emitSessionError(c, payload.KioskID, err)
		return
	}

	metrics.SignalingEvents.WithLabelValues("call-reject", "ok").Inc()
	h.forwardToInitiator(sess, c, mustJSON(map[string]any{"type": "call-rejected", "fromId": c.ID}))
	logCommand(c, "call-reject")
}

func (h *Hub) handleCallEnd(c *Client, raw []byte) {
	var payload kioskIDPayload
	if err := jsonUnmarshal(raw, &payload); err != nil || payload.KioskID == "" {
		h.sendError(c, ErrCodeInvalidTarget, "kioskId is required")
		return
	}

	var sess *Session
	err := h.resolveAndMutate(c, payload.KioskID, func(s *Session) error {
		sess = s
		return endCall(s)
	})
	if err != nil {
		h.emitSessionError(c, payload.KioskID, err)
		return
	}

	metrics.SignalingEvents.WithLabelValues("call-end", "ok").Inc()
	h.sendToBothSides(sess, mustJSON(map[string]any{"type": "call-ended", "fromId": c.ID}))
	c.Send(mustJSON(map[string]any{"type": "call-end-confirmed", "kioskId": payload.KioskID}))
	logCommand(c, "call-end")
}

func (h *Hub) handleToggle(c *Client, raw []byte, kind string) {
	var payload togglePayload
	if err := jsonUnmarshal(raw, &payload); err != nil || payload.KioskID == "" {
		h.sendError(c, ErrCodeInvalidTarget, "kioskId is required")
		return
	}

	var sess *Session
	err := h.resolveAndMutate(c, payload.KioskID, func(s *Session) error {
		sess = s
		return toggleMedia(s, c.Role, kind, payload.Enabled)
	})
	if err != nil {
		h.emitSessionError(c, payload.KioskID, err)
		return
	}

	metrics.SignalingEvents.WithLabelValues("toggle-"+kind, "ok").Inc()
	h.forwardToPeer(sess, c, mustJSON(map[string]any{
		"type": kind + "-toggled", "fromId": c.ID, "enabled": payload.Enabled,
	}))
	c.Send(mustJSON(map[string]any{"type": kind + "-toggle-confirmed", "enabled": payload.Enabled}))
	logCommand(c, "toggle-"+kind)
}

func (h *Hub) handlePing(c *Client) {
	if c.Role == RoleKiosk {
		h.sessions.Touch(c.ID)
	}
	c.Send(mustJSON(map[string]any{"type": "pong"}))
}

// forwardToPeer sends payload to whichever side c is not.
func (h *Hub) forwardToPeer(sess *Session, c *Client, payload []byte) {
	if c.Role == RoleKiosk {
		if monitor, ok := h.presence.Monitor(sess.MonitorConnectionHandle); ok {
			monitor.Send(payload)
		}
		return
	}
	if kiosk, ok := h.presence.Kiosk(sess.KioskID); ok {
		kiosk.Send(payload)
	}
}

// forwardToInitiator sends payload only to whichever side initiated the
// call (used for call-rejected, spec §4.1).
func (h *Hub) forwardToInitiator(sess *Session, c *Client, payload []byte) {
	h.forwardToPeer(sess, c, payload) // the initiator is always the side not rejecting
}

func (h *Hub) sendToBothSides(sess *Session, payload []byte) {
	if kiosk, ok := h.presence.Kiosk(sess.KioskID); ok {
		kiosk.Send(payload)
	}
	if monitor, ok := h.presence.Monitor(sess.MonitorConnectionHandle); ok {
		monitor.Send(payload)
	}
}

func (h *Hub) emitSessionError(c *Client, kioskID string, err error) {
	metrics.SignalingEvents.WithLabelValues("call-command", "error").Inc()
	h.sendError(c, errCodeFor(err), err.Error())
	logging.Warn(context.Background(), "signaling command rejected",
		zap.String("client_id", c.ID), zap.String("kiosk_id", kioskID), zap.Error(err))
}

func errCodeFor(err error) string {
	switch {
	case errors.Is(err, ErrSessionNotFound):
		return ErrCodeNoSession
	case errors.Is(err, ErrNotOwner):
		return ErrCodeNotOwner
	case errors.Is(err, ErrInvalidState):
		return ErrCodeInvalidState
	case errors.Is(err, ErrNoActiveCall):
		return ErrCodeNoActiveCall
	case errors.Is(err, ErrKioskNotFound):
		return ErrCodeKioskNotFound
	case errors.Is(err, ErrSessionConflict):
		return ErrCodeSessionConflict
	default:
		return ErrCodeInvalidTarget
	}
}
