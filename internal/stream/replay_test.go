package stream

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalReplaySet_FirstUseThenReplay(t *testing.T) {
	rs := newLocalReplaySet()
	ctx := context.Background()

	used, err := rs.CheckAndMark(ctx, "tok-1", time.Minute)
	require.NoError(t, err)
	assert.False(t, used)

	used, err = rs.CheckAndMark(ctx, "tok-1", time.Minute)
	require.NoError(t, err)
	assert.True(t, used, "second presentation of the same token must be rejected as a replay")
}

func TestLocalReplaySet_SweepRemovesExpired(t *testing.T) {
	rs := newLocalReplaySet()
	ctx := context.Background()

	_, err := rs.CheckAndMark(ctx, "tok-expiring", -time.Second)
	require.NoError(t, err)

	rs.sweep()

	used, err := rs.CheckAndMark(ctx, "tok-expiring", time.Minute)
	require.NoError(t, err)
	assert.False(t, used, "expired entries must be purged by sweep, freeing the token id for reuse")
}

func TestNewReplaySet_NilBusFallsBackToLocal(t *testing.T) {
	rs := NewReplaySet(nil)
	_, ok := rs.(*localReplaySet)
	assert.True(t, ok)
}
