package logger

import (
	"context"
	"io"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type ctxKey string

const requestIDKey ctxKey = "request_id"

// Config mirrors config.LoggerConfig but avoids importing the config package here.
type Config struct {
	Level    string
	Encoding string
	// Output defaults to stderr so command output on stdout stays clean.
	Output io.Writer
}

// New builds a zap.Logger using the provided configuration.
func New(cfg Config) (*zap.Logger, error) {
	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.TimeKey = "timestamp"
	encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	level := zapcore.InfoLevel
	if err := level.Set(cfg.Level); err != nil {
		// fall back to info level if parsing fails
		level = zapcore.InfoLevel
	}

	var encoder zapcore.Encoder
	switch cfg.Encoding {
	case "json":
		encoder = zapcore.NewJSONEncoder(encoderCfg)
	default:
		encoderCfg.EncodeLevel = zapcore.CapitalLevelEncoder
		encoder = zapcore.NewConsoleEncoder(encoderCfg)
	}

	var out io.Writer = os.Stderr
	if cfg.Output != nil {
		out = cfg.Output
	}

	core := zapcore.NewCore(
		encoder,
		zapcore.Lock(zapcore.AddSync(out)),
		level,
	)

	return zap.New(core, zap.AddCaller()), nil
}

// ContextWithRequestID attaches a request ID to the provided context.
func ContextWithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey, requestID)
}

// RequestIDFromContext returns the request ID stored in ctx, if any.
func RequestIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	reqID, _ := ctx.Value(requestIDKey).(string)
	return reqID
}

// WithRequestID enriches the logger with the request ID stored in the context.
func WithRequestID(ctx context.Context, base *zap.Logger) *zap.Logger {
	if ctx == nil || base == nil {
		return base
	}
	if reqID := RequestIDFromContext(ctx); reqID != "" {
		return base.With(zap.String("request_id", reqID))
	}
	return base
}
