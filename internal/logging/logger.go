// Package logging wraps zap with the context-field-splicing convention used
// across every binary: correlation id, client id, camera id, and service
// name are appended automatically so call sites never repeat them.
package logging

import (
	"context"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	logger *zap.Logger
	once   sync.Once
)

type contextKey string

const (
	CorrelationIDKey contextKey = "correlation_id"
	ClientIDKey      contextKey = "client_id"
	CameraIDKey      contextKey = "camera_id"
)

// Initialize sets up the global logger. Safe to call multiple times; only
// the first call takes effect.
func Initialize(development bool, service string) error {
	var err error
	once.Do(func() {
		var cfg zap.Config
		if development {
			cfg = zap.NewDevelopmentConfig()
			cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		} else {
			cfg = zap.NewProductionConfig()
			cfg.EncoderConfig.TimeKey = "timestamp"
			cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
		}
		cfg.OutputPaths = []string{"stdout"}
		cfg.ErrorOutputPaths = []string{"stderr"}

		var l *zap.Logger
		l, err = cfg.Build(zap.AddCallerSkip(1))
		if err == nil {
			logger = l.With(zap.String("service", service))
		}
	})
	return err
}

// GetLogger returns the global logger, falling back to a development
// logger when Initialize was never called (e.g. in tests).
func GetLogger() *zap.Logger {
	if logger == nil {
		l, _ := zap.NewDevelopment()
		return l
	}
	return logger
}

func Info(ctx context.Context, msg string, fields ...zap.Field) {
	GetLogger().Info(msg, appendContextFields(ctx, fields)...)
}

func Warn(ctx context.Context, msg string, fields ...zap.Field) {
	GetLogger().Warn(msg, appendContextFields(ctx, fields)...)
}

func Error(ctx context.Context, msg string, fields ...zap.Field) {
	GetLogger().Error(msg, appendContextFields(ctx, fields)...)
}

func Fatal(ctx context.Context, msg string, fields ...zap.Field) {
	GetLogger().Fatal(msg, appendContextFields(ctx, fields)...)
}

func appendContextFields(ctx context.Context, fields []zap.Field) []zap.Field {
	if ctx == nil {
		return fields
	}
	if cid, ok := ctx.Value(CorrelationIDKey).(string); ok {
		fields = append(fields, zap.String("correlation_id", cid))
	}
	if cid, ok := ctx.Value(ClientIDKey).(string); ok {
		fields = append(fields, zap.String("client_id", cid))
	}
	if cam, ok := ctx.Value(CameraIDKey).(string); ok {
		fields = append(fields, zap.String("camera_id", cam))
	}
	return fields
}

// MaskRTSPURL redacts credentials and host detail from an rtsp:// URL so it
// is safe to log, enforcing P8 (rtspUrl never appears in a log line). The
// scheme and path are kept; user info and host are replaced.
func MaskRTSPURL(rtspURL string) string {
	if rtspURL == "" {
		return ""
	}
	schemeIdx := -1
	for i := 0; i+2 < len(rtspURL); i++ {
		if rtspURL[i] == ':' && rtspURL[i+1] == '/' && rtspURL[i+2] == '/' {
			schemeIdx = i
			break
		}
	}
	if schemeIdx < 0 {
		return "rtsp://***"
	}
	scheme := rtspURL[:schemeIdx]
	rest := rtspURL[schemeIdx+3:]
	pathIdx := -1
	for i, c := range rest {
		if c == '/' {
			pathIdx = i
			break
		}
	}
	if pathIdx < 0 {
		return scheme + "://***"
	}
	return scheme + "://***" + rest[pathIdx:]
}

// MaskToken shows only a short prefix of a signed token, never the full
// value, for diagnostic log lines.
func MaskToken(token string) string {
	if len(token) <= 8 {
		return "***"
	}
	return token[:8] + "***"
}
