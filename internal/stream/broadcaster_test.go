package stream

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBroadcaster_DeliversToAllSubscribers(t *testing.T) {
	b := newBroadcaster()
	ch1 := b.subscribe()
	ch2 := b.subscribe()
	defer b.unsubscribe(ch1)
	defer b.unsubscribe(ch2)

	b.send([]byte("frame-1"))

	assert.Equal(t, []byte("frame-1"), <-ch1)
	assert.Equal(t, []byte("frame-1"), <-ch2)
}

func TestBroadcaster_DropsSlowSubscriberWithoutBlocking(t *testing.T) {
	b := newBroadcaster()
	slow := b.subscribe()

	for i := 0; i < subscriberBuf+10; i++ {
		b.send([]byte{byte(i)})
	}

	// The slow subscriber's channel should have been closed once full,
	// and send() must never have blocked (the loop above completing at
	// all proves that).
	select {
	case _, ok := <-slow:
		if ok {
			// Drain until closed.
			for ok {
				_, ok = <-slow
			}
		}
	case <-time.After(time.Second):
		t.Fatal("expected slow subscriber channel to be readable/closed")
	}

	require.Equal(t, 0, b.subscriberCount())
}

func TestBroadcaster_UnsubscribeRemoves(t *testing.T) {
	b := newBroadcaster()
	ch := b.subscribe()
	require.Equal(t, 1, b.subscriberCount())
	b.unsubscribe(ch)
	require.Equal(t, 0, b.subscriberCount())
}

func TestBroadcaster_CloseAll(t *testing.T) {
	b := newBroadcaster()
	ch := b.subscribe()
	b.closeAll()
	_, ok := <-ch
	assert.False(t, ok)
}
