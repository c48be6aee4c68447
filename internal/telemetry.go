// Package internal contains the telemetry facilities shared across the library.
package internal

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/lmittmann/tint"
	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"
	"go.opentelemetry.io/contrib/bridges/otelslog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const scopeName = "github.com/FerroO2000/condotto"

var logLevel = new(slog.LevelVar)

// SetLogLevel sets the minimum level for all loggers created afterwards.
func SetLogLevel(level slog.Level) {
	logLevel.Set(level)
}

func newLogHandler() slog.Handler {
	stderr := os.Stderr

	consoleHandler := slog.Handler(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: logLevel}))
	if isatty.IsTerminal(stderr.Fd()) || isatty.IsCygwinTerminal(stderr.Fd()) {
		consoleHandler = tint.NewHandler(colorable.NewColorable(stderr), &tint.Options{
			Level:      logLevel,
			TimeFormat: time.TimeOnly,
		})
	}

	// The otelslog handler is a no-op until a logger provider is installed.
	return newFanoutHandler(consoleHandler, otelslog.NewHandler(scopeName))
}

// Telemetry bundles the logger, tracer, and meter used by a single component.
type Telemetry struct {
	logger *slog.Logger
	tracer trace.Tracer
	meter  metric.Meter
}

// NewTelemetry returns the telemetry for a component of the given kind and name.
func NewTelemetry(kind, name string) *Telemetry {
	return &Telemetry{
		logger: slog.New(newLogHandler()).With("kind", kind, "name", name),
		tracer: otel.Tracer(scopeName),
		meter:  otel.Meter(scopeName),
	}
}

// LogDebug logs a message at debug level.
func (t *Telemetry) LogDebug(msg string, args ...any) {
	t.logger.Debug(msg, args...)
}

// LogInfo logs a message at info level.
func (t *Telemetry) LogInfo(msg string, args ...any) {
	t.logger.Info(msg, args...)
}

// LogWarn logs a message at warn level.
func (t *Telemetry) LogWarn(msg string, args ...any) {
	t.logger.Warn(msg, args...)
}

// LogError logs a message and an error at error level.
func (t *Telemetry) LogError(msg string, err error, args ...any) {
	t.logger.Error(msg, append([]any{"error", err}, args...)...)
}

// NewTrace starts a new span.
func (t *Telemetry) NewTrace(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, name, opts...)
}

// NewCounter registers an observable counter backed by the given callback.
func (t *Telemetry) NewCounter(name string, callback func() int64) {
	_, err := t.meter.Int64ObservableCounter(name,
		metric.WithInt64Callback(func(_ context.Context, obs metric.Int64Observer) error {
			obs.Observe(callback())
			return nil
		}),
	)
	if err != nil {
		t.LogError("failed to register counter", err, "counter", name)
	}
}

// NewUpDownCounter registers an observable up/down counter backed by the given callback.
func (t *Telemetry) NewUpDownCounter(name string, callback func() int64) {
	_, err := t.meter.Int64ObservableUpDownCounter(name,
		metric.WithInt64Callback(func(_ context.Context, obs metric.Int64Observer) error {
			obs.Observe(callback())
			return nil
		}),
	)
	if err != nil {
		t.LogError("failed to register up/down counter", err, "counter", name)
	}
}

// fanoutHandler duplicates records to every wrapped handler.
type fanoutHandler struct {
	handlers []slog.Handler
}

func newFanoutHandler(handlers ...slog.Handler) *fanoutHandler {
	return &fanoutHandler{handlers: handlers}
}

func (h *fanoutHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, handler := range h.handlers {
		if handler.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (h *fanoutHandler) Handle(ctx context.Context, record slog.Record) error {
	var firstErr error
	for _, handler := range h.handlers {
		if !handler.Enabled(ctx, record.Level) {
			continue
		}

		if err := handler.Handle(ctx, record.Clone()); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (h *fanoutHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	handlers := make([]slog.Handler, len(h.handlers))
	for idx, handler := range h.handlers {
		handlers[idx] = handler.WithAttrs(attrs)
	}
	return newFanoutHandler(handlers...)
}

func (h *fanoutHandler) WithGroup(name string) slog.Handler {
	handlers := make([]slog.Handler, len(h.handlers))
	for idx, handler := range h.handlers {
		handlers[idx] = handler.WithGroup(name)
	}
	return newFanoutHandler(handlers...)
}
