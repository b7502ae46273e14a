package signaling

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fieldops/watchtower/internal/authtoken"
)

func newTestHub() *Hub {
	return NewHub(authtoken.NewSigner("test-secret-0123456789012345678901"), time.Minute, nil)
}

func newTestClient(hub *Hub, id string, role Role) (*Client, *fakeConn) {
	conn := newFakeConn()
	c := newClient(id, role, conn, hub)
	return c, conn
}

// nextMessage drains one queued outbound message from c's send buffer.
// Client.Send only enqueues onto that channel; nothing drains it to the
// wire unless writePump is running, so tests read the channel directly.
func nextMessage(t *testing.T, c *Client) map[string]any {
	t.Helper()
	select {
	case raw := <-c.send:
		var out map[string]any
		require.NoError(t, json.Unmarshal(raw, &out))
		return out
	default:
		t.Fatalf("no message queued for client %s", c.ID)
		return nil
	}
}

func drainTypes(t *testing.T, c *Client) []string {
	t.Helper()
	var types []string
	for {
		select {
		case raw := <-c.send:
			var env rawEnvelope
			require.NoError(t, json.Unmarshal(raw, &env))
			types = append(types, env.Type)
		default:
			return types
		}
	}
}

func TestHub_RegisterKiosk_ConfirmsAndBroadcasts(t *testing.T) {
	hub := newTestHub()
	monitor, _ := newTestClient(hub, "monitor-1", RoleMonitor)
	hub.presence.RegisterMonitor(monitor.ID, monitor)

	kiosk, _ := newTestClient(hub, "kiosk-1", RoleKiosk)
	hub.dispatch(kiosk, []byte(`{"type":"register-kiosk"}`))

	assert.Equal(t, "kiosk-registered", nextMessage(t, kiosk)["type"])
	assert.Equal(t, "kiosk-online", nextMessage(t, monitor)["type"])

	_, ok := hub.presence.Kiosk("kiosk-1")
	assert.True(t, ok)
}

func TestHub_RegisterKiosk_WrongRoleRejected(t *testing.T) {
	hub := newTestHub()
	monitor, _ := newTestClient(hub, "monitor-1", RoleMonitor)

	hub.dispatch(monitor, []byte(`{"type":"register-kiosk"}`))

	got := nextMessage(t, monitor)
	assert.Equal(t, "error", got["type"])
	assert.Equal(t, ErrCodeBadRole, got["code"])
}

func TestHub_StartMonitoring_UnknownKiosk(t *testing.T) {
	hub := newTestHub()
	monitor, _ := newTestClient(hub, "monitor-1", RoleMonitor)

	hub.dispatch(monitor, []byte(`{"type":"start-monitoring","kioskId":"ghost"}`))

	got := nextMessage(t, monitor)
	assert.Equal(t, "error", got["type"])
	assert.Equal(t, ErrCodeKioskNotFound, got["code"])
}

func TestHub_FullCallLifecycle(t *testing.T) {
	hub := newTestHub()
	kiosk, _ := newTestClient(hub, "kiosk-1", RoleKiosk)
	monitor, _ := newTestClient(hub, "monitor-1", RoleMonitor)

	hub.dispatch(kiosk, []byte(`{"type":"register-kiosk"}`))
	drainTypes(t, kiosk)
	hub.dispatch(monitor, []byte(`{"type":"register-monitor"}`))
	drainTypes(t, monitor)

	hub.dispatch(monitor, []byte(`{"type":"start-monitoring","kioskId":"kiosk-1"}`))
	assert.Equal(t, "monitoring-started", nextMessage(t, monitor)["type"])

	hub.dispatch(monitor, []byte(`{"type":"call-request","kioskId":"kiosk-1"}`))
	assert.Equal(t, "call-request", nextMessage(t, kiosk)["type"])
	assert.Equal(t, "call-request-sent", nextMessage(t, monitor)["type"])

	sess, ok := hub.sessions.Get("kiosk-1")
	require.True(t, ok)
	assert.Equal(t, CallConnecting, sess.CallState)

	hub.dispatch(kiosk, []byte(`{"type":"call-accept","kioskId":"kiosk-1"}`))
	assert.Equal(t, CallConnected, sess.CallState)
	assert.Equal(t, "call-accepted", nextMessage(t, kiosk)["type"])
	assert.Equal(t, "call-accepted", nextMessage(t, monitor)["type"])
	assert.Equal(t, "call-accept-confirmed", nextMessage(t, kiosk)["type"])

	hub.dispatch(kiosk, []byte(`{"type":"toggle-video","kioskId":"kiosk-1","enabled":false}`))
	assert.False(t, sess.Media.KioskVideoEnabled)
	assert.Equal(t, "video-toggled", nextMessage(t, monitor)["type"])
	assert.Equal(t, "video-toggle-confirmed", nextMessage(t, kiosk)["type"])

	hub.dispatch(monitor, []byte(`{"type":"call-end","kioskId":"kiosk-1"}`))
	assert.Equal(t, CallIdle, sess.CallState)
	assert.Equal(t, "call-ended", nextMessage(t, kiosk)["type"])
	assert.Equal(t, "call-ended", nextMessage(t, monitor)["type"])
	assert.Equal(t, "call-end-confirmed", nextMessage(t, monitor)["type"])
}

func TestHub_CallRequest_WithoutSessionFails(t *testing.T) {
	hub := newTestHub()
	monitor, _ := newTestClient(hub, "monitor-1", RoleMonitor)

	hub.dispatch(monitor, []byte(`{"type":"call-request","kioskId":"kiosk-1"}`))

	got := nextMessage(t, monitor)
	assert.Equal(t, "error", got["type"])
	assert.Equal(t, ErrCodeNoSession, got["code"])
}

func TestHub_Ping_RefreshesKioskSessionActivity(t *testing.T) {
	hub := newTestHub()
	kiosk, _ := newTestClient(hub, "kiosk-1", RoleKiosk)
	_, err := hub.sessions.Start("kiosk-1", "monitor-1")
	require.NoError(t, err)
	sess, _ := hub.sessions.Get("kiosk-1")
	sess.LastActivityAt = time.Now().Add(-time.Hour)

	hub.dispatch(kiosk, []byte(`{"type":"ping"}`))

	assert.Equal(t, "pong", nextMessage(t, kiosk)["type"])
	assert.WithinDuration(t, time.Now(), sess.LastActivityAt, time.Second)
}

func TestHub_HandleDisconnect_KioskEndsActiveCallAndNotifiesMonitor(t *testing.T) {
	hub := newTestHub()
	kiosk, _ := newTestClient(hub, "kiosk-1", RoleKiosk)
	monitor, _ := newTestClient(hub, "monitor-1", RoleMonitor)
	hub.presence.RegisterKiosk(kiosk.ID, kiosk)
	hub.presence.RegisterMonitor(monitor.ID, monitor)
	sess, err := hub.sessions.Start("kiosk-1", "monitor-1")
	require.NoError(t, err)
	require.NoError(t, requestCall(sess, RoleMonitor))
	require.NoError(t, acceptCall(sess, RoleKiosk))

	hub.handleDisconnect(kiosk)

	_, ok := hub.sessions.Get("kiosk-1")
	assert.False(t, ok)
	assert.Equal(t, CallIdle, sess.CallState)
	types := drainTypes(t, monitor)
	assert.Contains(t, types, "call-ended")
	assert.Contains(t, types, "monitoring-stopped")
}
