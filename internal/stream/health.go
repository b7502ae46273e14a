package stream

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"github.com/fieldops/watchtower/internal/logging"
	"github.com/fieldops/watchtower/internal/registry"
	"github.com/fieldops/watchtower/pkg/resilience"
)

// healthCallbackBody mirrors registry.HealthCallbackInput so the gateway
// doesn't need to import registry's gin binding tags.
type healthCallbackBody struct {
	Entries []healthEntry `json:"entries"`
}

type healthEntry struct {
	CameraID string                  `json:"cameraId"`
	Status   registry.CameraStatus   `json:"status"`
	Message  string                  `json:"message"`
}

// HealthReporter periodically posts each worker's status to the control
// plane's health-callback sink (spec §3 StreamHealth, §4.2, §6).
type HealthReporter struct {
	supervisor *Supervisor
	client     *resilience.HTTPClient
	callbackURL string
	secret      string
	interval    time.Duration
}

func NewHealthReporter(supervisor *Supervisor, callbackURL, secret string, interval time.Duration) *HealthReporter {
	return &HealthReporter{
		supervisor:  supervisor,
		client:      resilience.NewHTTPClient("health-callback", 5*time.Second),
		callbackURL: callbackURL,
		secret:      secret,
		interval:    interval,
	}
}

// Run posts a batch every interval until ctx is cancelled. A nil or empty
// callbackURL makes this a no-op loop (local-only deployments have
// nothing to report to).
func (h *HealthReporter) Run(ctx context.Context) {
	if h.callbackURL == "" {
		return
	}
	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			h.reportOnce(ctx)
		}
	}
}

func (h *HealthReporter) reportOnce(ctx context.Context) {
	snapshots := h.supervisor.Snapshot()
	if len(snapshots) == 0 {
		return
	}

	body := healthCallbackBody{Entries: make([]healthEntry, 0, len(snapshots))}
	for _, s := range snapshots {
		body.Entries = append(body.Entries, healthEntry{
			CameraID: s.CameraID,
			Status:   toRegistryStatus(s.Status),
			Message:  healthMessage(s),
		})
	}

	data, err := json.Marshal(body)
	if err != nil {
		logging.Error(ctx, "health reporter: failed to marshal batch", zap.Error(err))
		return
	}

	headers := map[string]string{}
	if h.secret != "" {
		headers["X-Gateway-Secret"] = h.secret
	}
	if err := h.client.PostJSON(ctx, h.callbackURL, data, headers); err != nil {
		logging.Warn(ctx, "health reporter: post failed", zap.Error(err))
	}
}

func toRegistryStatus(s Status) registry.CameraStatus {
	switch s {
	case StatusRunning, StatusStarting, StatusStopping:
		return registry.StatusOnline
	case StatusError:
		return registry.StatusError
	default:
		return registry.StatusOffline
	}
}

func healthMessage(s WorkerSnapshot) string {
	if s.Status == StatusError {
		return "worker in error state"
	}
	return ""
}
