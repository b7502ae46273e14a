// Package bus provides an optional Redis-backed distributed layer: a
// pub/sub channel for presence events across multiple hub instances, and a
// SetNX-with-TTL primitive used by the stream token replay set. Both
// degrade gracefully to a no-op when Redis is not configured, the same way
// the teacher's bus.Service treats single-instance mode as first-class,
// not an error state.
package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/fieldops/watchtower/internal/logging"
	"github.com/fieldops/watchtower/internal/metrics"
)

// PresenceEvent is published to other hub instances when a kiosk registers
// or disconnects, so every instance's local broadcast to its own connected
// monitors stays in sync (§9: "a future distributed backing ... a drop-in").
type PresenceEvent struct {
	Type      string          `json:"type"` // "kiosk-online" | "kiosk-offline"
	KioskID   string          `json:"kioskId"`
	Payload   json.RawMessage `json:"payload"`
	Origin    string          `json:"origin"` // instance id, to drop self-echo
}

// Service wraps a Redis client behind a circuit breaker. A nil *Service
// (or one built with no address) behaves as single-instance mode: every
// method becomes a safe no-op.
type Service struct {
	client *redis.Client
	cb     *gobreaker.CircuitBreaker
}

// New connects to Redis. addr == "" returns (nil, nil): the caller then
// runs in single-instance mode.
func New(addr, password string) (*Service, error) {
	if addr == "" {
		return nil, nil
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DialTimeout:  10 * time.Second,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
		PoolSize:     10,
		MinIdleConns: 2,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	st := gobreaker.Settings{
		Name:     "redis",
		MaxRequests: 5,
		Interval: time.Minute,
		Timeout:  15 * time.Second,
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
			metrics.CircuitBreakerState.WithLabelValues("redis").Set(v)
		},
	}

	return &Service{client: rdb, cb: gobreaker.NewCircuitBreaker(st)}, nil
}

// Client exposes the underlying client for components (e.g. the rate
// limiter) that need to hand it to another library's store adapter.
func (s *Service) Client() *redis.Client {
	if s == nil {
		return nil
	}
	return s.client
}

const presenceChannel = "watchtower:presence"

// Publish broadcasts a presence event to every other hub instance.
func (s *Service) Publish(ctx context.Context, ev PresenceEvent) error {
	if s == nil || s.client == nil {
		return nil
	}
	_, err := s.cb.Execute(func() (interface{}, error) {
		data, err := json.Marshal(ev)
		if err != nil {
			return nil, err
		}
		return nil, s.client.Publish(ctx, presenceChannel, data).Err()
	})
	return degrade(ctx, err, "redis publish")
}

// Subscribe runs handler for every presence event published by another
// instance until ctx is cancelled.
func (s *Service) Subscribe(ctx context.Context, wg *sync.WaitGroup, handler func(PresenceEvent)) {
	if s == nil || s.client == nil {
		return
	}
	pubsub := s.client.Subscribe(ctx, presenceChannel)
	if wg != nil {
		wg.Add(1)
	}
	go func() {
		defer pubsub.Close()
		if wg != nil {
			defer wg.Done()
		}
		ch := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				var ev PresenceEvent
				if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
					logging.Error(ctx, "bus: malformed presence event", zap.Error(err))
					continue
				}
				handler(ev)
			}
		}
	}()
}

// SetNXWithTTL atomically inserts key if absent, with the given
// expiration. Returns inserted=true when this call performed the
// insertion (i.e. the key was not already present) — the primitive the
// distributed stream-token replay set needs (spec §4.3, §9).
func (s *Service) SetNXWithTTL(ctx context.Context, key string, ttl time.Duration) (inserted bool, err error) {
	if s == nil || s.client == nil {
		return true, nil // single-instance mode: caller falls back to a local set
	}
	res, execErr := s.cb.Execute(func() (interface{}, error) {
		return s.client.SetNX(ctx, key, "1", ttl).Result()
	})
	if execErr != nil {
		return true, degrade(ctx, execErr, "redis setnx")
	}
	return res.(bool), nil
}

func (s *Service) Ping(ctx context.Context) error {
	if s == nil || s.client == nil {
		return nil
	}
	_, err := s.cb.Execute(func() (interface{}, error) {
		return nil, s.client.Ping(ctx).Err()
	})
	return degrade(ctx, err, "redis ping")
}

func (s *Service) Close() error {
	if s == nil || s.client == nil {
		return nil
	}
	return s.client.Close()
}

// degrade maps an open-circuit error to a nil return (graceful
// degradation, matching the teacher's bus.Service) while still surfacing
// genuine Redis errors to the caller.
func degrade(ctx context.Context, err error, op string) error {
	if err == nil {
		return nil
	}
	if err == gobreaker.ErrOpenState {
		metrics.CircuitBreakerFailures.WithLabelValues("redis").Inc()
		logging.Warn(ctx, "redis circuit open, degrading to local-only", zap.String("op", op))
		return nil
	}
	logging.Error(ctx, "redis operation failed", zap.String("op", op), zap.Error(err))
	return err
}
