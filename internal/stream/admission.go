package stream

import (
	"context"
	"errors"
	"time"

	"github.com/fieldops/watchtower/internal/authtoken"
)

// Admission errors map to the machine-readable reasons spec §4.3 requires
// ("Token required", "Invalid token signature", "Token expired", "Token
// already used", "No VIEW permission").
var (
	ErrTokenRequired      = errors.New("token required")
	ErrInvalidSignature   = errors.New("invalid token signature")
	ErrTokenExpired       = errors.New("token expired")
	ErrTokenAlreadyUsed   = errors.New("token already used")
	ErrNoViewPermission   = errors.New("no VIEW permission")
)

// AdmissionResult is returned to the viewer-transport handler once a
// token clears every admission check.
type AdmissionResult struct {
	CameraID  string
	MonitorID string
}

// Admitter runs the four-step admission sequence from spec §4.3:
// signature/expiry, replay, permission, cameraId extraction.
type Admitter struct {
	signer *authtoken.Signer
	replay ReplaySet
}

func NewAdmitter(signer *authtoken.Signer, replay ReplaySet) *Admitter {
	return &Admitter{signer: signer, replay: replay}
}

func (a *Admitter) Admit(ctx context.Context, token string) (*AdmissionResult, error) {
	if token == "" {
		return nil, ErrTokenRequired
	}

	claims, err := a.signer.ValidateStream(token)
	if err != nil {
		if errors.Is(err, authtoken.ErrExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrInvalidSignature
	}

	remaining := time.Until(claims.ExpiresAt.Time)
	if remaining <= 0 {
		return nil, ErrTokenExpired
	}
	alreadyUsed, err := a.replay.CheckAndMark(ctx, token, remaining)
	if err != nil {
		return nil, err
	}
	if alreadyUsed {
		return nil, ErrTokenAlreadyUsed
	}

	if !claims.HasPermission("VIEW") {
		return nil, ErrNoViewPermission
	}

	return &AdmissionResult{CameraID: claims.CameraID, MonitorID: claims.MonitorID}, nil
}
