package authtoken

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Sentinel errors callers can match on to pick the machine-readable reason
// spec §4.3 requires ("Invalid token signature", "Token expired").
var (
	ErrMalformed     = errors.New("token malformed")
	ErrBadSignature  = errors.New("invalid token signature")
	ErrExpired       = errors.New("token expired")
	ErrMissingSecret = errors.New("signing key not configured")
)

// Signer mints tokens with the shared HMAC key. The teacher validates
// against an externally-hosted JWKS (asymmetric, rotating); this system's
// two services instead share one static secret (§6), so signing and
// validation live together here rather than split across an issuer and a
// JWKS-fetching validator.
type Signer struct {
	secret []byte
}

func NewSigner(secret string) *Signer {
	return &Signer{secret: []byte(secret)}
}

func (s *Signer) ready() bool { return len(s.secret) > 0 }

// SignIdentity mints a client-identity token for clientId/role.
func (s *Signer) SignIdentity(clientID string, role Role, ttl time.Duration) (string, error) {
	if !s.ready() {
		return "", ErrMissingSecret
	}
	now := time.Now()
	claims := &IdentityClaims{
		ClientID: clientID,
		Role:     role,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
}

// SignStream mints a stream token for cameraID/monitorID with the given
// permission scope and TTL (default 60s per spec §3).
func (s *Signer) SignStream(cameraID, monitorID string, permissions []string, ttl time.Duration) (string, time.Time, error) {
	if !s.ready() {
		return "", time.Time{}, ErrMissingSecret
	}
	now := time.Now()
	expiresAt := now.Add(ttl)
	claims := &StreamClaims{
		CameraID:    cameraID,
		MonitorID:   monitorID,
		Permissions: permissions,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expiresAt, nil
}

func (s *Signer) keyFunc(token *jwt.Token) (interface{}, error) {
	if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
		return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
	}
	return s.secret, nil
}

// ValidateIdentity parses and verifies a client-identity token.
func (s *Signer) ValidateIdentity(tokenString string) (*IdentityClaims, error) {
	if tokenString == "" {
		return nil, ErrMalformed
	}
	if !s.ready() {
		return nil, ErrMissingSecret
	}
	claims := &IdentityClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, s.keyFunc)
	if err != nil {
		return nil, classifyJWTError(err)
	}
	if !token.Valid {
		return nil, ErrBadSignature
	}
	return claims, nil
}

// ValidateStream parses and verifies a stream token, per spec §4.3 step 1
// (signature and expiry). Replay and permission checks happen in the
// caller (internal/stream admission), since they need state this package
// does not hold.
func (s *Signer) ValidateStream(tokenString string) (*StreamClaims, error) {
	if tokenString == "" {
		return nil, ErrMalformed
	}
	if !s.ready() {
		return nil, ErrMissingSecret
	}
	claims := &StreamClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, s.keyFunc)
	if err != nil {
		return nil, classifyJWTError(err)
	}
	if !token.Valid {
		return nil, ErrBadSignature
	}
	return claims, nil
}

func classifyJWTError(err error) error {
	if errors.Is(err, jwt.ErrTokenExpired) {
		return ErrExpired
	}
	if errors.Is(err, jwt.ErrTokenSignatureInvalid) || errors.Is(err, jwt.ErrTokenMalformed) {
		return ErrBadSignature
	}
	return ErrBadSignature
}
