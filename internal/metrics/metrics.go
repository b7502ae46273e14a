// Package metrics declares the Prometheus series shared across the hub,
// gateway, and control-plane binaries. Naming convention, kept from the
// teacher: namespace_subsystem_name.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "watchtower"

var (
	// Signaling hub.
	PresenceConnections = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "presence",
		Name:      "connections_active",
		Help:      "Current number of registered presence entries.",
	}, []string{"role"})

	SessionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "session",
		Name:      "active",
		Help:      "Current number of active monitor/kiosk sessions.",
	})

	CallStateTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "call",
		Name:      "transitions_total",
		Help:      "Call state machine transitions.",
	}, []string{"from", "to"})

	SignalingEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "signaling",
		Name:      "events_total",
		Help:      "Inbound signaling events processed, by type and outcome.",
	}, []string{"event", "outcome"})

	// Stream gateway.
	WorkersActive = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "worker",
		Name:      "active",
		Help:      "Current number of stream workers, by status.",
	}, []string{"status"})

	WorkerRestarts = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "worker",
		Name:      "restarts_total",
		Help:      "Worker restart attempts, by camera.",
	}, []string{"camera_id"})

	ViewersActive = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "viewer",
		Name:      "active",
		Help:      "Current viewer count, by camera.",
	}, []string{"camera_id"})

	ViewersDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "viewer",
		Name:      "dropped_total",
		Help:      "Viewers dropped because their outbound queue overflowed.",
	}, []string{"camera_id"})

	TokenValidations = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "token",
		Name:      "validations_total",
		Help:      "Stream token admission outcomes.",
	}, []string{"outcome"})

	// Shared.
	CircuitBreakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "circuit_breaker",
		Name:      "state",
		Help:      "0=closed 1=open 2=half-open, by breaker name.",
	}, []string{"name"})

	CircuitBreakerFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "circuit_breaker",
		Name:      "failures_total",
		Help:      "Calls rejected while a breaker was open.",
	}, []string{"name"})

	RateLimitRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "rate_limit",
		Name:      "requests_total",
		Help:      "Requests admitted by the rate limiter.",
	}, []string{"endpoint"})

	RateLimitExceeded = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "rate_limit",
		Name:      "exceeded_total",
		Help:      "Requests rejected by the rate limiter.",
	}, []string{"endpoint", "limit_type"})
)
