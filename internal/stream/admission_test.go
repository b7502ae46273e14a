package stream

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fieldops/watchtower/internal/authtoken"
)

func TestAdmitter_HappyPath(t *testing.T) {
	signer := authtoken.NewSigner("a-shared-secret-at-least-this-long")
	admitter := NewAdmitter(signer, newLocalReplaySet())

	token, _, err := signer.SignStream("CCTV_01", "monitor-1", []string{"VIEW"}, time.Minute)
	require.NoError(t, err)

	result, err := admitter.Admit(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, "CCTV_01", result.CameraID)
	assert.Equal(t, "monitor-1", result.MonitorID)
}

func TestAdmitter_EmptyToken(t *testing.T) {
	signer := authtoken.NewSigner("a-shared-secret-at-least-this-long")
	admitter := NewAdmitter(signer, newLocalReplaySet())

	_, err := admitter.Admit(context.Background(), "")
	assert.ErrorIs(t, err, ErrTokenRequired)
}

func TestAdmitter_Expired(t *testing.T) {
	signer := authtoken.NewSigner("a-shared-secret-at-least-this-long")
	admitter := NewAdmitter(signer, newLocalReplaySet())

	token, _, err := signer.SignStream("CCTV_01", "monitor-1", []string{"VIEW"}, -time.Second)
	require.NoError(t, err)

	_, err = admitter.Admit(context.Background(), token)
	assert.ErrorIs(t, err, ErrTokenExpired)
}

func TestAdmitter_Replay(t *testing.T) {
	signer := authtoken.NewSigner("a-shared-secret-at-least-this-long")
	admitter := NewAdmitter(signer, newLocalReplaySet())

	token, _, err := signer.SignStream("CCTV_01", "monitor-1", []string{"VIEW"}, time.Minute)
	require.NoError(t, err)

	_, err = admitter.Admit(context.Background(), token)
	require.NoError(t, err)

	_, err = admitter.Admit(context.Background(), token)
	assert.ErrorIs(t, err, ErrTokenAlreadyUsed)
}

func TestAdmitter_NoViewPermission(t *testing.T) {
	signer := authtoken.NewSigner("a-shared-secret-at-least-this-long")
	admitter := NewAdmitter(signer, newLocalReplaySet())

	token, _, err := signer.SignStream("CCTV_01", "monitor-1", []string{"PTZ"}, time.Minute)
	require.NoError(t, err)

	_, err = admitter.Admit(context.Background(), token)
	assert.ErrorIs(t, err, ErrNoViewPermission)
}

func TestAdmitter_WrongSecretRejected(t *testing.T) {
	issuer := authtoken.NewSigner("issuer-secret-0123456789012345678")
	verifier := NewAdmitter(authtoken.NewSigner("different-secret-0123456789012345"), newLocalReplaySet())

	token, _, err := issuer.SignStream("CCTV_01", "monitor-1", []string{"VIEW"}, time.Minute)
	require.NoError(t, err)

	_, err = verifier.Admit(context.Background(), token)
	assert.ErrorIs(t, err, ErrInvalidSignature)
}
