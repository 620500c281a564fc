package cmd

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"

	"github.com/ThreeDotsLabs/watermill"
	"go.opentelemetry.io/contrib/bridges/otelslog"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/syntalk/im-server/config"
	"github.com/syntalk/im-server/infra/otel"
	"github.com/syntalk/im-server/internal/service"
)

func parseLevel(s string) slog.Level {
	switch s {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// ProvideLogger builds the process logger: text or JSON to stdout, optional
// size-rotated file sink, optional OTLP bridge when telemetry is configured.
// The returned LevelVar lets configuration reloads adjust verbosity live.
func ProvideLogger(cfg *config.Config, telemetry *otel.Providers) (*slog.Logger, *slog.LevelVar) {
	level := new(slog.LevelVar)
	level.Set(parseLevel(cfg.Log.Level))

	var sink io.Writer = os.Stdout
	if cfg.Log.File != "" {
		sink = io.MultiWriter(os.Stdout, &lumberjack.Logger{
			Filename:   cfg.Log.File,
			MaxSize:    cfg.Log.MaxSizeMB,
			MaxBackups: cfg.Log.MaxBackups,
		})
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if cfg.Log.Format == "json" {
		handler = slog.NewJSONHandler(sink, opts)
	} else {
		handler = slog.NewTextHandler(sink, opts)
	}

	if telemetry.Logs != nil {
		handler = teeHandler{handlers: []slog.Handler{
			handler,
			otelslog.NewHandler(cfg.Service.Name, otelslog.WithLoggerProvider(telemetry.Logs)),
		}}
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger, level
}

// ProvideWatermillLogger adapts the process logger for the message router.
func ProvideWatermillLogger(log *slog.Logger) watermill.LoggerAdapter {
	return watermill.NewSlogLogger(log.With(slog.String("component", "watermill")))
}

func ProvideVersion() service.Version {
	return service.Version(version + "+" + commit)
}

// teeHandler forwards each record to every sink. Enabled is true when any
// sink accepts the level, so the console filter cannot silence the export
// path.
type teeHandler struct {
	handlers []slog.Handler
}

func (t teeHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, h := range t.handlers {
		if h.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (t teeHandler) Handle(ctx context.Context, rec slog.Record) error {
	var errs []error
	for _, h := range t.handlers {
		if h.Enabled(ctx, rec.Level) {
			errs = append(errs, h.Handle(ctx, rec.Clone()))
		}
	}
	return errors.Join(errs...)
}

func (t teeHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := make([]slog.Handler, len(t.handlers))
	for i, h := range t.handlers {
		next[i] = h.WithAttrs(attrs)
	}
	return teeHandler{handlers: next}
}

func (t teeHandler) WithGroup(name string) slog.Handler {
	next := make([]slog.Handler, len(t.handlers))
	for i, h := range t.handlers {
		next[i] = h.WithGroup(name)
	}
	return teeHandler{handlers: next}
}
