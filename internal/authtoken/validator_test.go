package authtoken

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSignAndValidateIdentity(t *testing.T) {
	s := NewSigner("a-shared-secret-at-least-this-long")

	token, err := s.SignIdentity("kiosk-1", RoleKiosk, time.Hour)
	require.NoError(t, err)

	claims, err := s.ValidateIdentity(token)
	require.NoError(t, err)
	assert.Equal(t, "kiosk-1", claims.ClientID)
	assert.Equal(t, RoleKiosk, claims.Role)
}

func TestSignAndValidateStream(t *testing.T) {
	s := NewSigner("a-shared-secret-at-least-this-long")

	token, expiresAt, err := s.SignStream("CCTV_01", "monitor-1", []string{"VIEW"}, 60*time.Second)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(60*time.Second), expiresAt, 2*time.Second)

	claims, err := s.ValidateStream(token)
	require.NoError(t, err)
	assert.Equal(t, "CCTV_01", claims.CameraID)
	assert.True(t, claims.HasPermission("VIEW"))
	assert.False(t, claims.HasPermission("PTZ"))
}

func TestValidateStream_Expired(t *testing.T) {
	s := NewSigner("a-shared-secret-at-least-this-long")

	token, _, err := s.SignStream("CCTV_01", "monitor-1", []string{"VIEW"}, -1*time.Second)
	require.NoError(t, err)

	_, err = s.ValidateStream(token)
	assert.ErrorIs(t, err, ErrExpired)
}

func TestValidateStream_WrongSecret(t *testing.T) {
	issuer := NewSigner("issuer-secret-0123456789012345678")
	verifier := NewSigner("different-secret-0123456789012345")

	token, _, err := issuer.SignStream("CCTV_01", "monitor-1", []string{"VIEW"}, time.Minute)
	require.NoError(t, err)

	_, err = verifier.ValidateStream(token)
	assert.ErrorIs(t, err, ErrBadSignature)
}

// TestValidateStream_AlgNoneRejected guards against the classic "alg: none"
// forgery: an attacker-crafted token that drops the signature entirely must
// never validate, regardless of its claims.
func TestValidateStream_AlgNoneRejected(t *testing.T) {
	s := NewSigner("a-shared-secret-at-least-this-long")

	token := jwt.NewWithClaims(jwt.SigningMethodNone, &StreamClaims{
		CameraID: "CCTV_01",
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	})
	forged, err := token.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	_, err = s.ValidateStream(forged)
	assert.Error(t, err)
}

func TestValidateStream_MissingSecretReturnsError(t *testing.T) {
	s := NewSigner("")
	_, err := s.ValidateStream("anything")
	assert.ErrorIs(t, err, ErrMissingSecret)
}

func TestValidateIdentity_Malformed(t *testing.T) {
	s := NewSigner("a-shared-secret-at-least-this-long")
	_, err := s.ValidateIdentity("")
	assert.ErrorIs(t, err, ErrMalformed)
}
