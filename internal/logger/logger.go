// Package logger configures process-wide structured logging: JSON to
// stdout by default, or OpenTelemetry export when OTEL_ENABLED is set.
// It also keeps atomic counters for the engine's recoverable failures,
// which are degraded silently at the call site but still need to be
// observable in aggregate.
package logger

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"os"
	"strconv"
	"strings"
	"sync/atomic"

	"go.opentelemetry.io/contrib/bridges/otelslog"
	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploggrpc"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

var (
	Logger          *slog.Logger
	programLevel    = new(slog.LevelVar)
	errorSampleRate int32 = 1 // log every error by default; raise via ERROR_SAMPLE_RATE
	shutdownFunc    func(context.Context) error
)

// Counters for recoverable engine failures. Incremented regardless of
// log sampling.
var (
	RejectedExpressions atomic.Int64 // failed the character whitelist
	EvaluationFaults    atomic.Int64 // passed the whitelist, failed to evaluate
	SkippedBlocks       atomic.Int64 // extraction blocks dropped for missing fields
	SuppressedRuns      atomic.Int64 // synthesis calls short-circuited by limitations mode
)

func init() {
	level, err := ParseLevel(os.Getenv("LOG_LEVEL"))
	if err != nil {
		level = slog.LevelInfo
	}
	programLevel.Set(level)

	if s := os.Getenv("ERROR_SAMPLE_RATE"); s != "" {
		if rate, err := strconv.Atoi(s); err == nil && rate > 0 {
			atomic.StoreInt32(&errorSampleRate, int32(rate))
		}
	}

	if strings.ToLower(os.Getenv("OTEL_ENABLED")) == "true" {
		serviceName := os.Getenv("OTEL_SERVICE_NAME")
		if serviceName == "" {
			serviceName = "narrative-engine"
		}
		shutdown, err := setupOTELLogging(context.Background(), serviceName)
		if err != nil {
			fmt.Fprintf(os.Stderr, "OTEL logging setup failed, falling back to JSON: %v\n", err)
			setupJSONLogging()
			return
		}
		shutdownFunc = shutdown
		return
	}

	setupJSONLogging()
}

func setupJSONLogging() {
	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: programLevel})
	Logger = slog.New(handler)
	slog.SetDefault(Logger)
}

func setupOTELLogging(ctx context.Context, serviceName string) (func(context.Context) error, error) {
	res, err := resource.New(ctx, resource.WithAttributes(semconv.ServiceName(serviceName)))
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	exporter, err := otlploggrpc.New(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create OTLP exporter: %w", err)
	}

	provider := sdklog.NewLoggerProvider(
		sdklog.WithResource(res),
		sdklog.WithProcessor(sdklog.NewBatchProcessor(exporter)),
	)

	handler := &levelHandler{
		level:   programLevel,
		handler: otelslog.NewHandler(serviceName, otelslog.WithLoggerProvider(provider)),
	}
	Logger = slog.New(handler)
	slog.SetDefault(Logger)

	return provider.Shutdown, nil
}

// levelHandler filters an underlying handler by the program level, since
// the otelslog bridge does not do level filtering itself.
type levelHandler struct {
	level   slog.Leveler
	handler slog.Handler
}

func (h *levelHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

func (h *levelHandler) Handle(ctx context.Context, r slog.Record) error {
	return h.handler.Handle(ctx, r)
}

func (h *levelHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &levelHandler{level: h.level, handler: h.handler.WithAttrs(attrs)}
}

func (h *levelHandler) WithGroup(name string) slog.Handler {
	return &levelHandler{level: h.level, handler: h.handler.WithGroup(name)}
}

// Shutdown flushes the OTEL pipeline if one is active.
func Shutdown(ctx context.Context) error {
	if shutdownFunc != nil {
		return shutdownFunc(ctx)
	}
	return nil
}

// SetLevel sets the minimum log level.
func SetLevel(level slog.Level) {
	programLevel.Set(level)
}

// ParseLevel converts a level name to a slog.Level.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToUpper(s) {
	case "DEBUG":
		return slog.LevelDebug, nil
	case "", "INFO":
		return slog.LevelInfo, nil
	case "WARN", "WARNING":
		return slog.LevelWarn, nil
	case "ERROR":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log level: %s", s)
	}
}

func shouldSample() bool {
	rate := atomic.LoadInt32(&errorSampleRate)
	if rate <= 1 {
		return true
	}
	return rand.Intn(int(rate)) == 0
}

// Debug logs a debug-level message.
func Debug(msg string, args ...any) {
	Logger.Debug(msg, args...)
}

// Info logs an info-level message.
func Info(msg string, args ...any) {
	Logger.Info(msg, args...)
}

// Warn logs a warning, subject to sampling.
func Warn(msg string, args ...any) {
	if shouldSample() {
		Logger.Warn(msg, args...)
	}
}

// Error logs an error, subject to sampling.
func Error(msg string, args ...any) {
	if shouldSample() {
		Logger.Error(msg, args...)
	}
}

// RejectedCondition records a conditional that could not be evaluated,
// distinguishing whitelist rejections from downstream evaluation faults.
// The caller treats either as a false condition; this is the only trace
// left behind.
func RejectedCondition(err error) {
	if isUnsafe(err) {
		RejectedExpressions.Add(1)
		Warn("expression rejected by whitelist", "error", err)
		return
	}
	EvaluationFaults.Add(1)
	Warn("expression failed to evaluate", "error", err)
}

// SkippedBlock records an extraction block dropped for a missing required
// field.
func SkippedBlock(name, reason string) {
	SkippedBlocks.Add(1)
	Debug("extraction block skipped", "block", name, "reason", reason)
}

// SuppressedRun records a synthesis call short-circuited by limitations
// mode.
func SuppressedRun(reason string) {
	SuppressedRuns.Add(1)
	Info("insight synthesis suppressed", "reason", reason)
}

// isUnsafe reports whether err carries the whitelist-rejection marker.
// Matching by message keeps this package free of an import cycle with the
// engine package that owns the sentinel.
func isUnsafe(err error) bool {
	return err != nil && strings.Contains(err.Error(), "outside the allowed set")
}
