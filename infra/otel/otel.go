// Package otel wires optional OTLP export for traces and logs. With no
// endpoint configured every provider stays nil and telemetry is a no-op,
// so local runs need no collector.
package otel

import (
	"context"
	"errors"

	otelapi "go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploggrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/fx"

	"github.com/syntalk/im-server/config"
)

// Providers bundles the configured exporters for the rest of the app.
type Providers struct {
	Tracer *sdktrace.TracerProvider
	Logs   *sdklog.LoggerProvider
}

// Enabled reports whether telemetry export is configured.
func (p *Providers) Enabled() bool { return p.Tracer != nil }

func Setup(ctx context.Context, cfg *config.Config) (*Providers, error) {
	if cfg.Otel.Endpoint == "" {
		return &Providers{}, nil
	}

	res := resource.NewSchemaless(
		attribute.String("service.name", cfg.Service.Name),
	)

	traceOpts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(cfg.Otel.Endpoint)}
	logOpts := []otlploggrpc.Option{otlploggrpc.WithEndpoint(cfg.Otel.Endpoint)}
	if cfg.Otel.Insecure {
		traceOpts = append(traceOpts, otlptracegrpc.WithInsecure())
		logOpts = append(logOpts, otlploggrpc.WithInsecure())
	}

	traceExp, err := otlptracegrpc.New(ctx, traceOpts...)
	if err != nil {
		return nil, err
	}
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(traceExp),
		sdktrace.WithResource(res),
	)
	otelapi.SetTracerProvider(tp)
	otelapi.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	logExp, err := otlploggrpc.New(ctx, logOpts...)
	if err != nil {
		return nil, err
	}
	lp := sdklog.NewLoggerProvider(
		sdklog.WithProcessor(sdklog.NewBatchProcessor(logExp)),
		sdklog.WithResource(res),
	)

	return &Providers{Tracer: tp, Logs: lp}, nil
}

func (p *Providers) Shutdown(ctx context.Context) error {
	var errs []error
	if p.Tracer != nil {
		errs = append(errs, p.Tracer.Shutdown(ctx))
	}
	if p.Logs != nil {
		errs = append(errs, p.Logs.Shutdown(ctx))
	}
	return errors.Join(errs...)
}

var Module = fx.Module("otel",
	fx.Provide(func(cfg *config.Config) (*Providers, error) {
		return Setup(context.Background(), cfg)
	}),
	fx.Invoke(func(lc fx.Lifecycle, p *Providers) {
		lc.Append(fx.Hook{OnStop: p.Shutdown})
	}),
)
