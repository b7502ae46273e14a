// Package authtoken signs and validates the two kinds of bearer token this
// system uses, both against the one pre-shared signing key (§6): a
// client-identity token (carries clientId, role) presented at the hub's
// connection handshake, and a stream token (carries cameraId, permissions,
// monitorId) presented at the gateway's viewer handshake.
package authtoken

import "github.com/golang-jwt/jwt/v5"

// Role mirrors the two roles in the data model (§3).
type Role string

const (
	RoleKiosk   Role = "KIOSK"
	RoleMonitor Role = "MONITOR"
)

// IdentityClaims is the client-identity token shape from spec §6:
// "clientId, role".
type IdentityClaims struct {
	ClientID string `json:"clientId"`
	Role     Role   `json:"role"`
	jwt.RegisteredClaims
}

// StreamClaims is the stream-token shape from spec §3/§6: "cameraId,
// issuedAt, expiresAt, permissions=[VIEW], monitorId (audit)".
type StreamClaims struct {
	CameraID    string   `json:"cameraId"`
	Permissions []string `json:"permissions"`
	MonitorID   string   `json:"monitorId"`
	jwt.RegisteredClaims
}

// HasPermission reports whether perm is present in the token's scope.
func (c *StreamClaims) HasPermission(perm string) bool {
	for _, p := range c.Permissions {
		if p == perm {
			return true
		}
	}
	return false
}
