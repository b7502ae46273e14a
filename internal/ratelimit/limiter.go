// Package ratelimit enforces per-IP and per-client rate limits on the
// hub's and gateway's connection handshakes and on the control plane's
// HTTP surface, using a Redis-or-memory store the same way the teacher
// does.
package ratelimit

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/ulule/limiter/v3"
	"github.com/ulule/limiter/v3/drivers/store/memory"
	sredis "github.com/ulule/limiter/v3/drivers/store/redis"
	"go.uber.org/zap"

	"github.com/fieldops/watchtower/internal/config"
	"github.com/fieldops/watchtower/internal/logging"
	"github.com/fieldops/watchtower/internal/metrics"
)

// Limiter holds the named rate limiters used across the three binaries.
type Limiter struct {
	wsIP        *limiter.Limiter
	wsUser      *limiter.Limiter
	apiGlobal   *limiter.Limiter
	apiPublic   *limiter.Limiter
}

// New builds a Limiter. When redisClient is nil the limiter falls back to
// an in-memory store — correct for a single-instance deployment, and for
// tests.
func New(cfg *config.Config, redisClient *redis.Client) (*Limiter, error) {
	wsIPRate, err := limiter.NewRateFromFormatted(cfg.RateLimitWsIP)
	if err != nil {
		return nil, fmt.Errorf("invalid RATE_LIMIT_WS_IP: %w", err)
	}
	wsUserRate, err := limiter.NewRateFromFormatted(cfg.RateLimitWsUser)
	if err != nil {
		return nil, fmt.Errorf("invalid RATE_LIMIT_WS_USER: %w", err)
	}
	apiGlobalRate, err := limiter.NewRateFromFormatted(cfg.RateLimitAPIGlobal)
	if err != nil {
		return nil, fmt.Errorf("invalid RATE_LIMIT_API_GLOBAL: %w", err)
	}
	apiPublicRate, err := limiter.NewRateFromFormatted(cfg.RateLimitAPIPublic)
	if err != nil {
		return nil, fmt.Errorf("invalid RATE_LIMIT_API_PUBLIC: %w", err)
	}

	var store limiter.Store
	if redisClient != nil {
		store, err = sredis.NewStoreWithOptions(redisClient, limiter.StoreOptions{Prefix: "watchtower:limiter:"})
		if err != nil {
			return nil, fmt.Errorf("failed to create redis store: %w", err)
		}
		logging.Info(context.Background(), "rate limiter using redis store")
	} else {
		store = memory.NewStore()
		logging.Warn(context.Background(), "rate limiter using in-memory store (no redis configured)")
	}

	return &Limiter{
		wsIP:      limiter.New(store, wsIPRate),
		wsUser:    limiter.New(store, wsUserRate),
		apiGlobal: limiter.New(store, apiGlobalRate),
		apiPublic: limiter.New(store, apiPublicRate),
	}, nil
}

// CheckConnect enforces the per-IP limit at handshake time, before
// authentication. Used by the hub's upgrade handler; the gateway's viewer
// handshake is limited by Middleware instead.
func (l *Limiter) CheckConnect(ctx context.Context, ip string) bool {
	c, err := l.wsIP.Get(ctx, ip)
	if err != nil {
		logging.Error(ctx, "rate limiter store failed", zap.Error(err))
		return true // fail open: a store outage must not stop admission
	}
	if c.Reached {
		metrics.RateLimitExceeded.WithLabelValues("connect", "ip").Inc()
		return false
	}
	metrics.RateLimitRequests.WithLabelValues("connect").Inc()
	return true
}

// CheckIdentity enforces the per-client limit after authentication
// succeeds, keyed by clientId rather than IP.
func (l *Limiter) CheckIdentity(ctx context.Context, clientID string) bool {
	c, err := l.wsUser.Get(ctx, clientID)
	if err != nil {
		logging.Error(ctx, "rate limiter store failed", zap.Error(err))
		return true
	}
	return !c.Reached
}

// Middleware rate-limits an HTTP endpoint, keyed by the authenticated
// monitor id when present (apiGlobal) or by IP otherwise (apiPublic).
func (l *Limiter) Middleware(endpoint string) gin.HandlerFunc {
	return func(c *gin.Context) {
		var inst *limiter.Limiter
		var key, limitType string

		if monitorID, ok := c.Get("clientId"); ok {
			inst = l.apiGlobal
			key = monitorID.(string)
			limitType = "user"
		} else {
			inst = l.apiPublic
			key = c.ClientIP()
			limitType = "ip"
		}

		ctx := c.Request.Context()
		lc, err := inst.Get(ctx, key)
		if err != nil {
			logging.Error(ctx, "rate limiter store failed", zap.Error(err))
			c.Next()
			return
		}

		c.Header("X-RateLimit-Limit", strconv.FormatInt(lc.Limit, 10))
		c.Header("X-RateLimit-Remaining", strconv.FormatInt(lc.Remaining, 10))
		c.Header("X-RateLimit-Reset", strconv.FormatInt(lc.Reset, 10))

		if lc.Reached {
			metrics.RateLimitExceeded.WithLabelValues(endpoint, limitType).Inc()
			c.Header("Retry-After", strconv.FormatInt(lc.Reset-time.Now().Unix(), 10))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "too many requests"})
			return
		}

		metrics.RateLimitRequests.WithLabelValues(endpoint).Inc()
		c.Next()
	}
}
