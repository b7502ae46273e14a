// Command gateway runs the CCTV Stream Gateway: it supervises one
// ffmpeg transcoding worker per admitted camera and serves viewers over a
// token-gated WebSocket.
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
	"github.com/fieldops/watchtower/internal/stream"
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
	if err := logging.Initialize(development, "stream-gateway"); err != nil {
		panic(err)
	}
	if cfg.SigningKey == "" {
		logging.Warn(context.Background(), "SIGNING_KEY is not set; all stream tokens will be rejected")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	tp, err := tracing.InitTracer(ctx, "stream-gateway", os.Getenv("OTEL_COLLECTOR_ADDR"))
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
	replaySet := stream.NewReplaySet(busService)
	if local, ok := replaySet.(interface{ Run(context.Context) }); ok {
		go local.Run(ctx)
	}
	admitter := stream.NewAdmitter(signer, replaySet)

	workerCfg := stream.WorkerConfig{
		AutoRestartDelay: cfg.AutoRestartDelay,
		MaxRestarts:      cfg.MaxRestarts,
	}
	supervisor := stream.NewSupervisor(ctx, cameras, workerCfg, cfg.MaxViewersPerCamera, cfg.StreamTimeoutNoViewer)
	go supervisor.RunReaper(ctx)

	reporter := stream.NewHealthReporter(supervisor, cfg.HealthCallbackURL, cfg.GatewaySecret, cfg.HealthCheckInterval)
	go reporter.Run(ctx)

	allowedOrigins := splitOrigins(cfg.AllowedOrigins)
	handlers := stream.NewHandlers(cameras, supervisor, admitter, allowedOrigins)

	healthHandler := health.NewHandler()
	if busService != nil {
		healthHandler.Register("redis", func(ctx context.Context) error {
			return busService.Ping(ctx)
		})
	}

	router := gin.New()
	router.Use(gin.Recovery(), middleware.CorrelationID())
	if tp != nil {
		router.Use(otelgin.Middleware("stream-gateway"))
	}

	corsCfg := cors.DefaultConfig()
	corsCfg.AllowOrigins = allowedOrigins
	router.Use(cors.New(corsCfg))
	router.Use(limiter.Middleware("gateway"))

	handlers.Register(router)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	router.GET("/healthz/live", healthHandler.Liveness)
	router.GET("/healthz/ready", healthHandler.Readiness)

	srv := &http.Server{Addr: cfg.GatewayAddr, Handler: router}

	go func() {
		logging.Info(ctx, "stream gateway starting", zap.String("addr", cfg.GatewayAddr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logging.Fatal(ctx, "gateway server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logging.Info(ctx, "shutting down stream gateway")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logging.Error(ctx, "gateway server forced to shutdown", zap.Error(err))
	}
	for _, snap := range supervisor.Snapshot() {
		if w, ok := supervisor.Worker(snap.CameraID); ok {
			w.Stop()
		}
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
