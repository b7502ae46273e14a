package signaling

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newIdleSession() *Session {
	return newSession("kiosk-1", "monitor-1")
}

func TestRequestCall_IdleToConnecting(t *testing.T) {
	sess := newIdleSession()
	require.NoError(t, requestCall(sess, RoleMonitor))
	assert.Equal(t, CallConnecting, sess.CallState)
	assert.Equal(t, RoleMonitor, sess.CallInitiatedBy)
}

func TestRequestCall_RejectsWhenNotIdle(t *testing.T) {
	sess := newIdleSession()
	require.NoError(t, requestCall(sess, RoleMonitor))

	err := requestCall(sess, RoleKiosk)
	assert.ErrorIs(t, err, ErrInvalidState)
}

func TestAcceptCall_FromOppositeSideSucceeds(t *testing.T) {
	sess := newIdleSession()
	require.NoError(t, requestCall(sess, RoleMonitor))

	require.NoError(t, acceptCall(sess, RoleKiosk))
	assert.Equal(t, CallConnected, sess.CallState)
	assert.False(t, sess.CallStartedAt.IsZero())
}

func TestAcceptCall_BySameInitiatorRejected(t *testing.T) {
	sess := newIdleSession()
	require.NoError(t, requestCall(sess, RoleMonitor))

	err := acceptCall(sess, RoleMonitor)
	assert.ErrorIs(t, err, ErrInvalidState)
}

func TestAcceptCall_WhileIdleIsNoActiveCall(t *testing.T) {
	sess := newIdleSession()
	err := acceptCall(sess, RoleKiosk)
	assert.ErrorIs(t, err, ErrNoActiveCall)
}

func TestAcceptCall_WhileAlreadyConnectedIsInvalidState(t *testing.T) {
	sess := newIdleSession()
	require.NoError(t, requestCall(sess, RoleMonitor))
	require.NoError(t, acceptCall(sess, RoleKiosk))

	err := acceptCall(sess, RoleKiosk)
	assert.ErrorIs(t, err, ErrInvalidState)
}

func TestRejectCall_ResetsToIdle(t *testing.T) {
	sess := newIdleSession()
	require.NoError(t, requestCall(sess, RoleMonitor))

	require.NoError(t, rejectCall(sess, RoleKiosk))
	assert.Equal(t, CallIdle, sess.CallState)
	assert.Empty(t, sess.CallInitiatedBy)
}

func TestRejectCall_WhileIdleIsNoActiveCall(t *testing.T) {
	sess := newIdleSession()
	err := rejectCall(sess, RoleKiosk)
	assert.ErrorIs(t, err, ErrNoActiveCall)
}

func TestEndCall_FromConnectingResetsToIdle(t *testing.T) {
	sess := newIdleSession()
	require.NoError(t, requestCall(sess, RoleMonitor))

	require.NoError(t, endCall(sess))
	assert.Equal(t, CallIdle, sess.CallState)
}

func TestEndCall_FromConnectedResetsToIdle(t *testing.T) {
	sess := newIdleSession()
	require.NoError(t, requestCall(sess, RoleMonitor))
	require.NoError(t, acceptCall(sess, RoleKiosk))

	require.NoError(t, endCall(sess))
	assert.Equal(t, CallIdle, sess.CallState)
	assert.True(t, sess.CallStartedAt.IsZero())
}

func TestEndCall_WhileIdleIsNoActiveCall(t *testing.T) {
	sess := newIdleSession()
	err := endCall(sess)
	assert.ErrorIs(t, err, ErrNoActiveCall)
}

func TestToggleMedia_WhileIdleIsNoActiveCall(t *testing.T) {
	sess := newIdleSession()
	err := toggleMedia(sess, RoleKiosk, "video", true)
	assert.ErrorIs(t, err, ErrNoActiveCall)
}

func TestToggleMedia_WhileConnectingIsInvalidState(t *testing.T) {
	sess := newIdleSession()
	require.NoError(t, requestCall(sess, RoleMonitor))

	err := toggleMedia(sess, RoleKiosk, "video", true)
	assert.ErrorIs(t, err, ErrInvalidState)
}

func TestToggleMedia_UpdatesCorrectField(t *testing.T) {
	sess := newIdleSession()
	require.NoError(t, requestCall(sess, RoleMonitor))
	require.NoError(t, acceptCall(sess, RoleKiosk))

	require.NoError(t, toggleMedia(sess, RoleKiosk, "video", false))
	assert.False(t, sess.Media.KioskVideoEnabled)

	require.NoError(t, toggleMedia(sess, RoleMonitor, "audio", true))
	assert.True(t, sess.Media.MonitorAudioEnabled)
}

func TestToggleMedia_IsIdempotent(t *testing.T) {
	sess := newIdleSession()
	require.NoError(t, requestCall(sess, RoleMonitor))
	require.NoError(t, acceptCall(sess, RoleKiosk))

	require.NoError(t, toggleMedia(sess, RoleKiosk, "audio", true))
	require.NoError(t, toggleMedia(sess, RoleKiosk, "audio", true))
	assert.True(t, sess.Media.KioskAudioEnabled)
}
