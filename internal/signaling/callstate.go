package signaling

import "time"

// The call state machine from spec §4.1's transition table. Every
// function here assumes the caller already holds the owning Sessions
// lock (via Sessions.withSession) — per spec §5, "per session, state
// transitions are serialized."

// requestCall transitions IDLE → CONNECTING. Any other current state is
// a guard failure (spec: "any | call-request while not IDLE | no-op |
// reply error INVALID_CALL_STATE").
func requestCall(sess *Session, senderRole Role) error {
	if sess.CallState != CallIdle {
		return ErrInvalidState
	}
	sess.CallState = CallConnecting
	sess.CallInitiatedBy = senderRole
	return nil
}

// acceptCall transitions CONNECTING → CONNECTED, only valid from the
// side that did not initiate (spec: "call-accept from the opposite
// side").
func acceptCall(sess *Session, senderRole Role) error {
	if sess.CallState != CallConnecting {
		return callGuardError(sess)
	}
	if sess.CallInitiatedBy == senderRole {
		return ErrInvalidState
	}
	sess.CallState = CallConnected
	sess.CallStartedAt = time.Now()
	return nil
}

// rejectCall transitions CONNECTING → IDLE, only valid from the side
// that did not initiate.
func rejectCall(sess *Session, senderRole Role) error {
	if sess.CallState != CallConnecting {
		return callGuardError(sess)
	}
	if sess.CallInitiatedBy == senderRole {
		return ErrInvalidState
	}
	resetCall(sess)
	return nil
}

// endCall transitions CONNECTING or CONNECTED → IDLE, from either side.
// Also used to model a participant disconnect mid-call (spec: "A
// participant disconnect during CONNECTING or CONNECTED behaves as
// call-end from that side").
func endCall(sess *Session) error {
	if sess.CallState == CallIdle {
		return ErrNoActiveCall
	}
	resetCall(sess)
	return nil
}

func resetCall(sess *Session) {
	sess.CallState = CallIdle
	sess.CallInitiatedBy = ""
	sess.CallStartedAt = time.Time{}
	sess.Media = MediaState{}
}

// callGuardError picks the right error for any call-control command
// (accept/reject/end/toggle) attempted outside its required state (spec:
// "any | accept/reject/end while IDLE | no-op | reply error
// NO_ACTIVE_CALL"). IDLE always means "no call to act on"; any other
// mismatched state (e.g. accept while already CONNECTED, or
// a toggle while CONNECTING) is an invalid transition rather than "no
// active call".
func callGuardError(sess *Session) error {
	if sess.CallState == CallIdle {
		return ErrNoActiveCall
	}
	return ErrInvalidState
}

// toggleMedia applies a toggle-video/toggle-audio command, admitted only
// in CONNECTED (spec §4.1 "Media control"). Idempotent: repeating the
// same value still succeeds.
func toggleMedia(sess *Session, senderRole Role, kind string, enabled bool) error {
	if sess.CallState != CallConnected {
		return callGuardError(sess)
	}
	switch {
	case senderRole == RoleKiosk && kind == "video":
		sess.Media.KioskVideoEnabled = enabled
	case senderRole == RoleKiosk && kind == "audio":
		sess.Media.KioskAudioEnabled = enabled
	case senderRole == RoleMonitor && kind == "video":
		sess.Media.MonitorVideoEnabled = enabled
	case senderRole == RoleMonitor && kind == "audio":
		sess.Media.MonitorAudioEnabled = enabled
	}
	return nil
}
