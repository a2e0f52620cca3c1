package metrics

import (
	"context"
	"strings"

	"github.com/hashicorp/go-multierror"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/fx"

	config "github.com/tigerroll/capture/pkg/batch/core/config"
	metrics "github.com/tigerroll/capture/pkg/batch/core/metrics"
	"github.com/tigerroll/capture/pkg/batch/support/util/exception"
	logger "github.com/tigerroll/capture/pkg/batch/support/util/logger"
)

// Backend bundles the recorder and tracer selected by configuration.
type Backend struct {
	Recorder metrics.MetricRecorder
	Tracer   metrics.Tracer
	shutdown []func(ctx context.Context) error
}

// Shutdown flushes and stops exporters started for the backend.
func (b *Backend) Shutdown(ctx context.Context) error {
	var result *multierror.Error
	for _, fn := range b.shutdown {
		if err := fn(ctx); err != nil {
			result = multierror.Append(result, err)
		}
	}
	return result.ErrorOrNil()
}

// NewBackend builds the recorder and tracer for cfg.Backend: "none", "prometheus" or "otel".
func NewBackend(ctx context.Context, cfg config.MetricsConfig) (*Backend, error) {
	switch strings.ToLower(cfg.Backend) {
	case "", "none":
		return &Backend{Recorder: metrics.NewNoOpMetricRecorder(), Tracer: metrics.NewNoOpTracer()}, nil
	case "prometheus":
		return &Backend{Recorder: NewPrometheusRecorder(cfg.Textfile), Tracer: metrics.NewNoOpTracer()}, nil
	case "otel":
		return newOTLPBackend(ctx, cfg)
	default:
		return nil, exception.NewUnsupportedConfigurationError("metrics", "unknown metrics backend %q", cfg.Backend)
	}
}

func newOTLPBackend(ctx context.Context, cfg config.MetricsConfig) (*Backend, error) {
	serviceName := cfg.ServiceName
	if serviceName == "" {
		serviceName = "capture"
	}
	res := resource.NewSchemaless(attribute.String("service.name", serviceName))

	var (
		traceExp  sdktrace.SpanExporter
		metricExp sdkmetric.Exporter
		err       error
	)
	switch strings.ToLower(cfg.OTLPProtocol) {
	case "", "grpc":
		traceOpts := []otlptracegrpc.Option{otlptracegrpc.WithInsecure()}
		metricOpts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithInsecure()}
		if cfg.OTLPEndpoint != "" {
			traceOpts = append(traceOpts, otlptracegrpc.WithEndpoint(cfg.OTLPEndpoint))
			metricOpts = append(metricOpts, otlpmetricgrpc.WithEndpoint(cfg.OTLPEndpoint))
		}
		if traceExp, err = otlptracegrpc.New(ctx, traceOpts...); err != nil {
			return nil, exception.NewBatchError("metrics", "failed to create OTLP trace exporter", err, exception.KindConfiguration)
		}
		if metricExp, err = otlpmetricgrpc.New(ctx, metricOpts...); err != nil {
			return nil, exception.NewBatchError("metrics", "failed to create OTLP metric exporter", err, exception.KindConfiguration)
		}
	case "http":
		traceOpts := []otlptracehttp.Option{otlptracehttp.WithInsecure()}
		metricOpts := []otlpmetrichttp.Option{otlpmetrichttp.WithInsecure()}
		if cfg.OTLPEndpoint != "" {
			traceOpts = append(traceOpts, otlptracehttp.WithEndpoint(cfg.OTLPEndpoint))
			metricOpts = append(metricOpts, otlpmetrichttp.WithEndpoint(cfg.OTLPEndpoint))
		}
		if traceExp, err = otlptracehttp.New(ctx, traceOpts...); err != nil {
			return nil, exception.NewBatchError("metrics", "failed to create OTLP trace exporter", err, exception.KindConfiguration)
		}
		if metricExp, err = otlpmetrichttp.New(ctx, metricOpts...); err != nil {
			return nil, exception.NewBatchError("metrics", "failed to create OTLP metric exporter", err, exception.KindConfiguration)
		}
	default:
		return nil, exception.NewUnsupportedConfigurationError("metrics", "unknown OTLP protocol %q", cfg.OTLPProtocol)
	}

	tp := sdktrace.NewTracerProvider(sdktrace.WithBatcher(traceExp), sdktrace.WithResource(res))
	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(metricExp)),
		sdkmetric.WithResource(res),
	)
	recorder, err := NewOpenTelemetryRecorder(mp, mp.ForceFlush)
	if err != nil {
		return nil, exception.NewBatchError("metrics", "failed to create OTel instruments", err, exception.KindInternal)
	}
	logger.Infof("OTLP export enabled (protocol=%s, endpoint=%s).", cfg.OTLPProtocol, cfg.OTLPEndpoint)
	return &Backend{
		Recorder: recorder,
		Tracer:   NewOpenTelemetryTracer(tp),
		shutdown: []func(ctx context.Context) error{tp.Shutdown, mp.Shutdown},
	}, nil
}

type backendParams struct {
	fx.In
	Lifecycle fx.Lifecycle
	Config    *config.Config
}

type backendResult struct {
	fx.Out
	Recorder metrics.MetricRecorder
	Tracer   metrics.Tracer
}

func provideBackend(p backendParams) (backendResult, error) {
	backend, err := NewBackend(context.Background(), p.Config.Capture.Metrics)
	if err != nil {
		return backendResult{}, err
	}
	p.Lifecycle.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			if err := backend.Recorder.Flush(ctx); err != nil {
				logger.Warnf("Failed to flush metrics: %v", err)
			}
			return backend.Shutdown(ctx)
		},
	})
	return backendResult{Recorder: backend.Recorder, Tracer: backend.Tracer}, nil
}

// Module provides the configured MetricRecorder and Tracer.
var Module = fx.Options(
	fx.Provide(provideBackend),
)
