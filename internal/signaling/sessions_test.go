package signaling

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSessions_Start_CreatesIdleSession(t *testing.T) {
	s := newSessions()

	sess, err := s.Start("kiosk-1", "monitor-1")
	require.NoError(t, err)
	assert.Equal(t, CallIdle, sess.CallState)
	assert.Equal(t, "monitor-1", sess.MonitorConnectionHandle)
}

func TestSessions_Start_SameOwnerIsIdempotent(t *testing.T) {
	s := newSessions()
	first, err := s.Start("kiosk-1", "monitor-1")
	require.NoError(t, err)

	second, err := s.Start("kiosk-1", "monitor-1")
	require.NoError(t, err)
	assert.Same(t, first, second)
}

func TestSessions_Start_DifferentOwnerConflicts(t *testing.T) {
	s := newSessions()
	_, err := s.Start("kiosk-1", "monitor-1")
	require.NoError(t, err)

	_, err = s.Start("kiosk-1", "monitor-2")
	assert.ErrorIs(t, err, ErrSessionConflict)
}

func TestSessions_Stop_RequiresOwnership(t *testing.T) {
	s := newSessions()
	_, err := s.Start("kiosk-1", "monitor-1")
	require.NoError(t, err)

	err = s.Stop("kiosk-1", "monitor-2")
	assert.ErrorIs(t, err, ErrNotOwner)

	err = s.Stop("kiosk-1", "monitor-1")
	assert.NoError(t, err)

	_, ok := s.Get("kiosk-1")
	assert.False(t, ok)
}

func TestSessions_Stop_NotFound(t *testing.T) {
	s := newSessions()
	err := s.Stop("no-such-kiosk", "monitor-1")
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestSessions_DeleteByMonitor_RemovesOnlyThatMonitorsSessions(t *testing.T) {
	s := newSessions()
	_, err := s.Start("kiosk-1", "monitor-1")
	require.NoError(t, err)
	_, err = s.Start("kiosk-2", "monitor-1")
	require.NoError(t, err)
	_, err = s.Start("kiosk-3", "monitor-2")
	require.NoError(t, err)

	removed := s.DeleteByMonitor("monitor-1")
	assert.Len(t, removed, 2)

	_, ok := s.Get("kiosk-3")
	assert.True(t, ok)
}

func TestSessions_ExpiredSessions(t *testing.T) {
	s := newSessions()
	sess, err := s.Start("kiosk-1", "monitor-1")
	require.NoError(t, err)
	sess.LastActivityAt = time.Now().Add(-time.Hour)

	expired := s.ExpiredSessions(time.Minute)
	require.Len(t, expired, 1)
	assert.Equal(t, "kiosk-1", expired[0].KioskID)
}

func TestSessions_WithSession_SerializesMutation(t *testing.T) {
	s := newSessions()
	_, err := s.Start("kiosk-1", "monitor-1")
	require.NoError(t, err)

	err = s.withSession("kiosk-1", func(sess *Session) error {
		sess.CallState = CallConnecting
		return nil
	})
	require.NoError(t, err)

	sess, _ := s.Get("kiosk-1")
	assert.Equal(t, CallConnecting, sess.CallState)
}

func TestSessions_WithSession_MissingSession(t *testing.T) {
	s := newSessions()
	err := s.withSession("ghost", func(*Session) error { return nil })
	assert.ErrorIs(t, err, ErrSessionNotFound)
}
