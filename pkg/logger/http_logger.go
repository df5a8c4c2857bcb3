package logger

import (
	"os"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// HTTPLogger writes one JSON line per HTTP request, separate from the
// application log. HTTP_LOG_PATH sends it to a file instead of stdout.
type HTTPLogger struct {
	log *zap.Logger
}

// NewHTTPLogger creates the access logger.
func NewHTTPLogger() (*HTTPLogger, error) {
	sink := zapcore.AddSync(os.Stdout)
	if path := os.Getenv("HTTP_LOG_PATH"); path != "" {
		f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, err
		}
		sink = zapcore.AddSync(f)
	}
	return newHTTPLogger(sink), nil
}

func newHTTPLogger(ws zapcore.WriteSyncer) *HTTPLogger {
	encCfg := zap.NewProductionEncoderConfig()
	encCfg.TimeKey = "time"
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	encCfg.MessageKey = "msg"

	core := zapcore.NewCore(zapcore.NewJSONEncoder(encCfg), ws, zapcore.InfoLevel)
	return &HTTPLogger{log: zap.New(core).Named("http")}
}

// LogRequest records a completed request.
func (h *HTTPLogger) LogRequest(ip, method, uri string, status int, latency time.Duration, userAgent, requestID string) {
	fields := []zap.Field{
		zap.String("ip", ip),
		zap.String("method", method),
		zap.String("uri", uri),
		zap.Int("status", status),
		zap.Duration("latency", latency),
		zap.String("user_agent", userAgent),
		zap.String("request_id", requestID),
	}
	switch {
	case status >= 500:
		h.log.Error("request", fields...)
	case status >= 400:
		h.log.Warn("request", fields...)
	default:
		h.log.Info("request", fields...)
	}
}

// Sync flushes buffered entries.
func (h *HTTPLogger) Sync() error {
	return h.log.Sync()
}
