// Package resilience wraps outbound HTTP calls in a circuit breaker so a
// slow or unreachable peer degrades gracefully instead of blocking a
// supervisor loop. Used by the gateway's health-callback poster and any
// other control-plane HTTP call with the same failure profile.
package resilience

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sony/gobreaker"

	"github.com/fieldops/watchtower/internal/metrics"
)

// HTTPClient posts JSON payloads through a named circuit breaker.
type HTTPClient struct {
	name   string
	client *http.Client
	cb     *gobreaker.CircuitBreaker
}

// NewHTTPClient builds a breaker-wrapped client. name identifies this
// breaker in the circuit_breaker_state metric (e.g. "health-callback",
// "camera-registry").
func NewHTTPClient(name string, timeout time.Duration) *HTTPClient {
	st := gobreaker.Settings{
		Name:        name,
		MaxRequests: 3,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		OnStateChange: func(_ string, _ gobreaker.State, to gobreaker.State) {
			var v float64
			switch to {
			case gobreaker.StateClosed:
				v = 0
			case gobreaker.StateOpen:
				v = 1
			case gobreaker.StateHalfOpen:
				v = 2
			}
			metrics.CircuitBreakerState.WithLabelValues(name).Set(v)
		},
	}
	return &HTTPClient{
		name:   name,
		client: &http.Client{Timeout: timeout},
		cb:     gobreaker.NewCircuitBreaker(st),
	}
}

// PostJSON posts body to url with the given headers, through the breaker.
// Returns gobreaker.ErrOpenState (wrapped) when the breaker is open so callers can
// log-and-continue rather than block, matching spec §7's "transient
// failures are retried locally" policy for the health reporter.
func (c *HTTPClient) PostJSON(ctx context.Context, url string, body []byte, headers map[string]string) error {
	_, err := c.cb.Execute(func() (interface{}, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		for k, v := range headers {
			req.Header.Set(k, v)
		}
		resp, err := c.client.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()
		io.Copy(io.Discard, resp.Body)
		if resp.StatusCode >= 300 {
			return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
		}
		return nil, nil
	})
	if err != nil {
		if err == gobreaker.ErrOpenState {
			metrics.CircuitBreakerFailures.WithLabelValues(c.name).Inc()
			return fmt.Errorf("%s: circuit open: %w", c.name, err)
		}
		return fmt.Errorf("%s: %w", c.name, err)
	}
	return nil
}
