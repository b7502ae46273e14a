// Command controlplane runs the camera registry and stream-token issuer:
// the HTTP surface monitors use to discover cameras and obtain a
// single-use token to present to the Stream Gateway.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/fieldops/watchtower/internal/authtoken"
	"github.com/fieldops/watchtower/internal/bus"
	"github.com/fieldops/watchtower/internal/config"
	"github.com/fieldops/watchtower/internal/health"
	"github.com/fieldops/watchtower/internal/logging"
	"github.com/fieldops/watchtower/internal/middleware"
	"github.com/fieldops/watchtower/internal/ratelimit"
	"github.com/fieldops/watchtower/internal/registry"
	"github.com/fieldops/watchtower/internal/tracing"
)

func main() {
	if err := godotenv.Load(); err != nil {
		// No .env file is a normal mode for a deployed container.
	}

	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	development := cfg.GoEnv != "production"
	if err := logging.Initialize(development, "control-plane"); err != nil {
		panic(err)
	}
	if cfg.SigningKey == "" {
		logging.Warn(context.Background(), "SIGNING_KEY is not set; stream tokens cannot be issued")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	tp, err := tracing.InitTracer(ctx, "control-plane", os.Getenv("OTEL_COLLECTOR_ADDR"))
	if err != nil {
		logging.Warn(ctx, "tracing disabled", zap.Error(err))
	}
	if tp != nil {
		defer tp.Shutdown(ctx)
	}

	busService, err := bus.New(cfg.RedisAddr, cfg.RedisPassword)
	if err != nil {
		logging.Fatal(ctx, "failed to initialize bus", zap.Error(err))
	}

	var redisClient *redis.Client
	if busService != nil {
		redisClient = busService.Client()
	}
	limiter, err := ratelimit.New(cfg, redisClient)
	if err != nil {
		logging.Fatal(ctx, "failed to initialize rate limiter", zap.Error(err))
	}

	signer := authtoken.NewSigner(cfg.SigningKey)
	cameras := registry.New()
	issuer := registry.NewIssuer(cameras, signer, cfg.StreamTokenTTL)
	handlers := registry.NewHandlers(cameras, issuer)

	healthHandler := health.NewHandler()
	if busService != nil {
		healthHandler.Register("redis", func(ctx context.Context) error {
			return busService.Ping(ctx)
		})
	}

	router := gin.New()
	router.Use(gin.Recovery(), middleware.CorrelationID())
	if tp != nil {
		router.Use(otelgin.Middleware("control-plane"))
	}

	corsCfg := cors.DefaultConfig()
	corsCfg.AllowOrigins = splitOrigins(cfg.AllowedOrigins)
	router.Use(cors.New(corsCfg))

	api := router.Group("/api/cctv")
	api.Use(limiter.Middleware("cctv"))
	handlers.Register(api, cfg.GatewaySecret, authtoken.GinMiddleware(signer))

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	router.GET("/healthz/live", healthHandler.Liveness)
	router.GET("/healthz/ready", healthHandler.Readiness)

	srv := &http.Server{Addr: cfg.ControlPlaneAddr, Handler: router}

	go func() {
		logging.Info(ctx, "control plane starting", zap.String("addr", cfg.ControlPlaneAddr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logging.Fatal(ctx, "control plane server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logging.Info(ctx, "shutting down control plane")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logging.Error(ctx, "control plane server forced to shutdown", zap.Error(err))
	}
	if busService != nil {
		busService.Close()
	}
}

func splitOrigins(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	origins := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			origins = append(origins, p)
		}
	}
	return origins
}
