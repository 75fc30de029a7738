package telemetry

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

// TracerName — имя инструментирования для всех спанов сервиса.
const TracerName = "github.com/shaiso/Pipeworks"

// Экспортёры спанов.
const (
	ExporterNone   = "none"
	ExporterStdout = "stdout"
	ExporterOTLP   = "otlp"
)

// TracingConfig — настройки трассировки процесса.
type TracingConfig struct {
	// ServiceName — значение service.name в ресурсе.
	ServiceName string

	// Exporter — none, stdout или otlp.
	Exporter string

	// Endpoint — host:port OTLP/HTTP коллектора (default: из OTEL_EXPORTER_OTLP_*).
	Endpoint string

	// Insecure — OTLP без TLS.
	Insecure bool

	// SampleRatio — доля сэмплируемых трасс (0 или больше 1 означает все).
	SampleRatio float64

	// Writer — вывод stdout-экспортёра (default: os.Stdout).
	Writer io.Writer
}

// ShutdownFunc сбрасывает накопленные спаны и останавливает провайдер.
type ShutdownFunc func(ctx context.Context) error

// SetupTracing устанавливает глобальный TracerProvider с экспортёром из cfg.
// Для ExporterNone провайдер не меняется, спаны остаются noop.
func SetupTracing(ctx context.Context, cfg TracingConfig) (ShutdownFunc, error) {
	var exporter sdktrace.SpanExporter

	switch strings.ToLower(strings.TrimSpace(cfg.Exporter)) {
	case "", ExporterNone:
		return func(context.Context) error { return nil }, nil

	case ExporterStdout:
		w := cfg.Writer
		if w == nil {
			w = os.Stdout
		}
		exp, err := stdouttrace.New(stdouttrace.WithWriter(w))
		if err != nil {
			return nil, fmt.Errorf("create stdout exporter: %w", err)
		}
		exporter = exp

	case ExporterOTLP:
		var opts []otlptracehttp.Option
		if cfg.Endpoint != "" {
			opts = append(opts, otlptracehttp.WithEndpoint(cfg.Endpoint))
		}
		if cfg.Insecure {
			opts = append(opts, otlptracehttp.WithInsecure())
		}
		exp, err := otlptracehttp.New(ctx, opts...)
		if err != nil {
			return nil, fmt.Errorf("create otlp exporter: %w", err)
		}
		exporter = exp

	default:
		return nil, fmt.Errorf("unknown trace exporter %q", cfg.Exporter)
	}

	tp := NewTracerProvider(cfg, sdktrace.WithBatcher(exporter))
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.TraceContext{})
	return tp.Shutdown, nil
}

// NewTracerProvider создаёт SDK-провайдер с ресурсом и сэмплером из cfg.
// opts задают обработчики спанов (экспортёр, SpanRecorder в тестах).
func NewTracerProvider(cfg TracingConfig, opts ...sdktrace.TracerProviderOption) *sdktrace.TracerProvider {
	ratio := cfg.SampleRatio
	if ratio <= 0 || ratio > 1 {
		ratio = 1
	}
	name := cfg.ServiceName
	if name == "" {
		name = "pipeworks"
	}

	base := []sdktrace.TracerProviderOption{
		sdktrace.WithResource(resource.NewSchemaless(attribute.String("service.name", name))),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(ratio))),
	}
	return sdktrace.NewTracerProvider(append(base, opts...)...)
}

// Tracer возвращает tracer из глобального провайдера.
// До SetupTracing спаны ничего не стоят (noop).
func Tracer() trace.Tracer {
	return otel.Tracer(TracerName)
}
