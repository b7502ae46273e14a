// Package config loads and validates the environment-supplied configuration
// shared by the hub, gateway, and control-plane binaries.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds validated environment configuration for all three binaries.
// Not every field is required by every binary; each main.go reads only what
// it needs.
type Config struct {
	// Signing key, shared between the control plane and the gateway (§6).
	// Absence is tolerated: Load leaves this empty rather than failing
	// startup, and each binary's main logs a warning, per spec §6.
	SigningKey string

	// Listen addresses.
	HubAddr          string
	GatewayAddr      string
	ControlPlaneAddr string

	// Redis, optional: when RedisAddr is empty, the bus package degrades to
	// single-instance, in-memory-only behavior.
	RedisAddr     string
	RedisPassword string

	GoEnv    string
	LogLevel string

	AllowedOrigins string

	// Signaling hub knobs.
	SessionTimeout time.Duration

	// Stream gateway knobs (§6).
	MaxViewersPerCamera   int
	StreamTimeoutNoViewer time.Duration
	AutoRestartDelay      time.Duration
	MaxRestarts           int
	HealthCheckInterval   time.Duration
	HealthCallbackURL     string
	GatewaySecret         string

	// Camera registry / token issuer knobs.
	StreamTokenTTL time.Duration

	// Rate limits (ulule/limiter format strings, e.g. "100-M").
	RateLimitWsIP        string
	RateLimitWsUser      string
	RateLimitAPIGlobal   string
	RateLimitAPIPublic   string
	RateLimitAPIRooms    string
	RateLimitAPIMessages string
}

// Load reads and validates environment configuration, returning an
// aggregated error if any required variable is malformed. Unlike
// JWT_SECRET in the teacher, SIGNING_KEY is soft-required: its absence is
// logged, not fatal, matching spec §6.
func Load() (*Config, error) {
	cfg := &Config{}
	var errs []string

	cfg.SigningKey = os.Getenv("SIGNING_KEY")

	cfg.HubAddr = getEnvOrDefault("HUB_ADDR", ":8080")
	cfg.GatewayAddr = getEnvOrDefault("GATEWAY_ADDR", ":8081")
	cfg.ControlPlaneAddr = getEnvOrDefault("CONTROLPLANE_ADDR", ":8082")

	cfg.RedisAddr = os.Getenv("REDIS_ADDR")
	if cfg.RedisAddr != "" && !isValidHostPort(cfg.RedisAddr) {
		errs = append(errs, fmt.Sprintf("REDIS_ADDR must be in format 'host:port' (got %q)", cfg.RedisAddr))
	}
	cfg.RedisPassword = os.Getenv("REDIS_PASSWORD")

	cfg.GoEnv = getEnvOrDefault("GO_ENV", "production")
	cfg.LogLevel = getEnvOrDefault("LOG_LEVEL", "info")
	cfg.AllowedOrigins = os.Getenv("ALLOWED_ORIGINS")

	cfg.SessionTimeout = durationMsOrDefault("SESSION_TIMEOUT_MS", 300_000)

	cfg.MaxViewersPerCamera = intOrDefault("MAX_VIEWERS_PER_CAMERA", 10, &errs)
	cfg.StreamTimeoutNoViewer = durationMsOrDefault("STREAM_TIMEOUT_NO_VIEWERS", 60_000)
	cfg.AutoRestartDelay = durationMsOrDefault("AUTO_RESTART_DELAY", 5_000)
	cfg.MaxRestarts = intOrDefault("MAX_RESTARTS", 5, &errs)
	cfg.HealthCheckInterval = durationMsOrDefault("HEALTH_CHECK_INTERVAL", 30_000)
	cfg.HealthCallbackURL = os.Getenv("HEALTH_CALLBACK_URL")
	cfg.GatewaySecret = os.Getenv("GATEWAY_SECRET")

	cfg.StreamTokenTTL = durationSecOrDefault("STREAM_TOKEN_TTL", 60)

	cfg.RateLimitWsIP = getEnvOrDefault("RATE_LIMIT_WS_IP", "100-M")
	cfg.RateLimitWsUser = getEnvOrDefault("RATE_LIMIT_WS_USER", "10-M")
	cfg.RateLimitAPIGlobal = getEnvOrDefault("RATE_LIMIT_API_GLOBAL", "1000-M")
	cfg.RateLimitAPIPublic = getEnvOrDefault("RATE_LIMIT_API_PUBLIC", "100-M")
	cfg.RateLimitAPIRooms = getEnvOrDefault("RATE_LIMIT_API_ROOMS", "100-M")
	cfg.RateLimitAPIMessages = getEnvOrDefault("RATE_LIMIT_API_MESSAGES", "500-M")

	if len(errs) > 0 {
		return nil, fmt.Errorf("environment validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}

	return cfg, nil
}

func isValidHostPort(addr string) bool {
	parts := strings.Split(addr, ":")
	if len(parts) != 2 || parts[0] == "" {
		return false
	}
	port, err := strconv.Atoi(parts[1])
	return err == nil && port >= 1 && port <= 65535
}

func getEnvOrDefault(key, def string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return def
}

func intOrDefault(key string, def int, errs *[]string) int {
	raw, ok := os.LookupEnv(key)
	if !ok || raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		*errs = append(*errs, fmt.Sprintf("%s must be an integer (got %q)", key, raw))
		return def
	}
	return v
}

func durationMsOrDefault(key string, defMs int) time.Duration {
	raw, ok := os.LookupEnv(key)
	if !ok || raw == "" {
		return time.Duration(defMs) * time.Millisecond
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return time.Duration(defMs) * time.Millisecond
	}
	return time.Duration(v) * time.Millisecond
}

func durationSecOrDefault(key string, defSec int) time.Duration {
	raw, ok := os.LookupEnv(key)
	if !ok || raw == "" {
		return time.Duration(defSec) * time.Second
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return time.Duration(defSec) * time.Second
	}
	return time.Duration(v) * time.Second
}

// Redacted returns a copy of the signing key suitable for log lines: the
// first 8 characters followed by "***", matching the teacher's
// redactSecret convention.
func (c *Config) Redacted() string {
	if len(c.SigningKey) <= 8 {
		if c.SigningKey == "" {
			return "(unset)"
		}
		return "***"
	}
	return c.SigningKey[:8] + "***"
}
