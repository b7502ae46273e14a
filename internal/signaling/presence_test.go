package signaling

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPresence_RegisterAndLookupKiosk(t *testing.T) {
	p := newPresence()
	c := &Client{ID: "kiosk-1", Role: RoleKiosk}

	p.RegisterKiosk(c.ID, c)

	got, ok := p.Kiosk("kiosk-1")
	assert.True(t, ok)
	assert.Equal(t, c, got)
}

func TestPresence_RemoveKiosk(t *testing.T) {
	p := newPresence()
	p.RegisterKiosk("kiosk-1", &Client{ID: "kiosk-1", Role: RoleKiosk})

	p.RemoveKiosk("kiosk-1")

	_, ok := p.Kiosk("kiosk-1")
	assert.False(t, ok)
}

func TestPresence_OnlineKioskIDs(t *testing.T) {
	p := newPresence()
	p.RegisterKiosk("kiosk-1", &Client{ID: "kiosk-1", Role: RoleKiosk})
	p.RegisterKiosk("kiosk-2", &Client{ID: "kiosk-2", Role: RoleKiosk})

	ids := p.OnlineKioskIDs()
	assert.ElementsMatch(t, []string{"kiosk-1", "kiosk-2"}, ids)
}

func TestPresence_BroadcastToMonitors_ReachesEveryMonitor(t *testing.T) {
	p := newPresence()
	a := newClient("monitor-a", RoleMonitor, &fakeConn{}, nil)
	b := newClient("monitor-b", RoleMonitor, &fakeConn{}, nil)
	p.RegisterMonitor(a.ID, a)
	p.RegisterMonitor(b.ID, b)

	p.BroadcastToMonitors([]byte("hello"))

	assert.Equal(t, []byte("hello"), <-a.send)
	assert.Equal(t, []byte("hello"), <-b.send)
}
