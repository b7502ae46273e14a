// Package signaling is the Signaling Hub (spec §4.1): it admits
// authenticated kiosk and monitor connections, maintains presence, owns
// the session and call state machines, and routes kiosk↔monitor control
// messages. It never sees media bytes — that is the Stream Gateway's job
// (internal/stream), wholly isolated from this package.
package signaling

import (
	"encoding/json"
	"time"

	"github.com/fieldops/watchtower/internal/authtoken"
)

// Role reuses the two roles from the token claims (spec §3).
type Role = authtoken.Role

const (
	RoleKiosk   = authtoken.RoleKiosk
	RoleMonitor = authtoken.RoleMonitor
)

// CallState is the sum type for the per-session call state machine (spec
// §4.1, §9: "encode as a tagged variant rather than free-form strings").
type CallState string

const (
	CallIdle       CallState = "IDLE"
	CallConnecting CallState = "CONNECTING"
	CallConnected  CallState = "CONNECTED"
)

// Envelope is the wire frame for every signaling message: a JSON object
// `{type, ...fields}` (spec §6). Data is kept raw so handlers decode
// only what they expect; unknown fields are ignored by construction.
type Envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"-"`
}

// rawEnvelope is the shape actually unmarshalled off the wire: only the
// type; each handler re-decodes the full raw frame for its own fields.
type rawEnvelope struct {
	Type string `json:"type"`
}

// MediaState tracks each side's most recently confirmed toggle values
// during a CONNECTED call.
type MediaState struct {
	KioskVideoEnabled   bool
	KioskAudioEnabled   bool
	MonitorVideoEnabled bool
	MonitorAudioEnabled bool
}

// Session is the per-kiosk record a monitor creates with start-monitoring
// (spec §3). Exactly one may exist per kioskId.
type Session struct {
	KioskID                 string
	MonitorConnectionHandle string // the monitor clientId that owns this session
	CallState               CallState
	CallInitiatedBy         Role
	CallStartedAt           time.Time
	LastActivityAt          time.Time
	Media                   MediaState
}

func newSession(kioskID, monitorID string) *Session {
	now := time.Now()
	return &Session{
		KioskID:                 kioskID,
		MonitorConnectionHandle: monitorID,
		CallState:               CallIdle,
		LastActivityAt:          now,
	}
}

// Error codes, stable strings per spec §4.1.
const (
	ErrCodeNoSession      = "SIGNALING_NO_SESSION"
	ErrCodeInvalidTarget  = "SIGNALING_INVALID_TARGET"
	ErrCodeNotOwner       = "SIGNALING_NOT_OWNER"
	ErrCodeBadRole        = "SIGNALING_BAD_ROLE"
	ErrCodeInvalidState   = "INVALID_CALL_STATE"
	ErrCodeNoActiveCall   = "NO_ACTIVE_CALL"
	ErrCodeKioskNotFound  = "KIOSK_NOT_FOUND"
	ErrCodeSessionConflict = "SESSION_CONFLICT"
)
