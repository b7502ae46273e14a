package signaling

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClient_WritePump_DeliversQueuedSends(t *testing.T) {
	conn := newFakeConn()
	c := newClient("kiosk-1", RoleKiosk, conn, nil)

	done := make(chan struct{})
	go func() {
		c.writePump()
		close(done)
	}()
	c.Send([]byte(`{"type":"pong"}`))

	require.Eventually(t, func() bool {
		return conn.lastWrite() != nil
	}, time.Second, 10*time.Millisecond)
	assert.Equal(t, `{"type":"pong"}`, string(conn.lastWrite()))

	// Closing send (rather than conn) drives writePump through its normal
	// exit path so the goroutine doesn't outlive the test.
	close(c.send)
	<-done
}

func TestClient_Send_DropsWhenBufferFull(t *testing.T) {
	conn := newFakeConn()
	c := newClient("kiosk-1", RoleKiosk, conn, nil)

	for i := 0; i < sendBufferSize+10; i++ {
		c.Send([]byte("x"))
	}

	assert.Len(t, c.send, sendBufferSize)
}

func TestClient_ReadPump_DispatchesToHub(t *testing.T) {
	hub := newTestHub()
	conn := newFakeConn()
	c := newClient("kiosk-1", RoleKiosk, conn, hub)

	done := make(chan struct{})
	go func() {
		c.readPump()
		close(done)
	}()

	conn.reads <- []byte(`{"type":"register-kiosk"}`)

	require.Eventually(t, func() bool {
		_, ok := hub.presence.Kiosk("kiosk-1")
		return ok
	}, time.Second, 10*time.Millisecond)

	conn.Close()
	<-done
}
