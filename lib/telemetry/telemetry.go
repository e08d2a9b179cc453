package telemetry

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/trace"
)

type OtlpConnConfig struct {
	GrpcEndpoint string            `json:"grpc_endpoint" env:"GRPC_ENDPOINT"`
	HttpEndpoint string            `json:"http_endpoint" env:"HTTP_ENDPOINT"`
	Headers      map[string]string `json:"headers"       env:"HEADERS"`
}

func (c OtlpConnConfig) enabled() bool {
	return c.GrpcEndpoint != "" || c.HttpEndpoint != ""
}

type OtlpConfig struct {
	Traces  OtlpConnConfig `json:"traces"  envPrefix:"TRACES_"`
	Metrics OtlpConnConfig `json:"metrics" envPrefix:"METRICS_"`
}

type Config struct {
	Otlp OtlpConfig `json:"otlp" envPrefix:"OTLP_"`
}

// Telemetry holds whichever providers were configured. Providers whose
// exporter endpoints are empty are left nil and the otel globals keep their
// no-op defaults.
type Telemetry struct {
	TracerProvider *trace.TracerProvider
	MeterProvider  *metric.MeterProvider
}

func (t Telemetry) Shutdown(ctx context.Context) error {
	var errs []error
	if t.TracerProvider != nil {
		errs = append(errs, t.TracerProvider.Shutdown(ctx))
	}
	if t.MeterProvider != nil {
		errs = append(errs, t.MeterProvider.Shutdown(ctx))
	}
	return errors.Join(errs...)
}

func Setup(ctx context.Context, serviceName string, config Config) (Telemetry, error) {
	ctx, cancel := context.WithTimeout(ctx, time.Second*15)
	defer cancel()

	var out Telemetry
	if !config.Otlp.Traces.enabled() && !config.Otlp.Metrics.enabled() {
		slog.Info("no otlp endpoints configured, telemetry export disabled")
		return out, nil
	}

	r, err := newResource(serviceName)
	if err != nil {
		return out, err
	}

	if config.Otlp.Traces.enabled() {
		out.TracerProvider, err = newTraceProvider(ctx, r, config.Otlp.Traces)
		if err != nil {
			return out, err
		}
		otel.SetTracerProvider(out.TracerProvider)
	}
	if config.Otlp.Metrics.enabled() {
		out.MeterProvider, err = newMetricProvider(ctx, r, config.Otlp.Metrics)
		if err != nil {
			return out, errors.Join(err, out.Shutdown(ctx))
		}
		otel.SetMeterProvider(out.MeterProvider)
	}

	return out, nil
}
