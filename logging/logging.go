// Package logging builds the *slog.Logger the SDK's own diagnostics
// (bootstrap retries, PKI scan results, datastream fallbacks) are written
// to. The token fetchers do not log. The SDK does not own process-wide logger setup
// for the embedding application (spec.md §1's "CLI/packaging/logging setup"
// is out of scope) — every SDK constructor that takes a *slog.Logger treats
// nil as slog.Default(). This package is the house-style convenience
// constructor an embedding app can use to get the same logger shape the
// platform's own services use, grounded on pkg/observability/logger.go.
package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/lmittmann/tint"
	"go.opentelemetry.io/contrib/bridges/otelslog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploghttp"
	"go.opentelemetry.io/otel/log/global"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	"go.opentelemetry.io/otel/sdk/resource"
)

// Config selects the local handler shape and, optionally, layers an OTLP log
// exporter on top of it.
type Config struct {
	// Format is "json" for slog.NewJSONHandler, or "" (default) for a
	// tint-colored text handler.
	Format string
	Level  slog.Level
	// AddSource includes the call site (file:line) on every record.
	AddSource bool

	// OTLPEnabled layers an OTLP HTTP log exporter on top of the local
	// handler: every record is written to both, so logs stay visible
	// locally even when the OTLP collector is unreachable.
	OTLPEnabled bool
	ServiceName string
}

// New builds a *slog.Logger per cfg, writing the local handler's output to
// out (os.Stderr if nil).
func New(ctx context.Context, cfg Config, out io.Writer) (*slog.Logger, error) {
	if out == nil {
		out = os.Stderr
	}

	local := localHandler(cfg, out)
	if !cfg.OTLPEnabled {
		return slog.New(local), nil
	}

	otelHandler, err := otlpHandler(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return slog.New(&fanoutHandler{local: local, otel: otelHandler}), nil
}

func localHandler(cfg Config, out io.Writer) slog.Handler {
	if cfg.Format == "json" {
		return slog.NewJSONHandler(out, &slog.HandlerOptions{Level: cfg.Level, AddSource: cfg.AddSource})
	}
	return tint.NewHandler(out, &tint.Options{
		Level:      cfg.Level,
		AddSource:  cfg.AddSource,
		TimeFormat: "15:04:05",
	})
}

func otlpHandler(ctx context.Context, cfg Config) (slog.Handler, error) {
	res, err := resource.New(ctx, resource.WithAttributes(
		attribute.String("service.name", cfg.ServiceName),
	))
	if err != nil {
		return nil, fmt.Errorf("logging: build OTel resource: %w", err)
	}

	exporter, err := otlploghttp.New(ctx)
	if err != nil {
		return nil, fmt.Errorf("logging: build OTLP log exporter: %w", err)
	}

	provider := sdklog.NewLoggerProvider(
		sdklog.WithResource(res),
		sdklog.WithProcessor(sdklog.NewBatchProcessor(exporter)),
	)
	global.SetLoggerProvider(provider)

	return otelslog.NewHandler(cfg.ServiceName, otelslog.WithLoggerProvider(provider)), nil
}

// fanoutHandler writes every record to both the local handler and the OTel
// bridge handler, so a collector outage never blanks local diagnostics.
type fanoutHandler struct {
	local slog.Handler
	otel  slog.Handler
}

func (h *fanoutHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.local.Enabled(ctx, level) || h.otel.Enabled(ctx, level)
}

func (h *fanoutHandler) Handle(ctx context.Context, record slog.Record) error {
	localErr := h.local.Handle(ctx, record)
	otelErr := h.otel.Handle(ctx, record)
	if localErr != nil {
		return localErr
	}
	return otelErr
}

func (h *fanoutHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &fanoutHandler{local: h.local.WithAttrs(attrs), otel: h.otel.WithAttrs(attrs)}
}

func (h *fanoutHandler) WithGroup(name string) slog.Handler {
	return &fanoutHandler{local: h.local.WithGroup(name), otel: h.otel.WithGroup(name)}
}
