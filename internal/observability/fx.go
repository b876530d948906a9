package observability

import (
	"github.com/smallbiznis/tenantry/internal/observability/logger"
	"github.com/smallbiznis/tenantry/internal/observability/metrics"
	"github.com/smallbiznis/tenantry/internal/observability/tracing"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Module wires logging, tracing and metrics from a single Config. Logging is
// provided first because the tracing and metrics providers log their exporter
// state on start.
var Module = fx.Module("observability",
	fx.Provide(LoadConfig),
	loggingModule,
	tracingModule,
	metricsModule,
	fx.Invoke(announce),
)

var loggingModule = fx.Options(
	fx.Provide(Config.loggerConfig, logger.New),
)

var tracingModule = fx.Options(
	fx.Provide(Config.tracingConfig, tracing.NewProvider),
)

var metricsModule = fx.Options(
	fx.Provide(
		Config.metricsConfig,
		metrics.NewProvider,
		metrics.New,
		metrics.NewHTTPMetrics,
	),
)

// announce forces the tracer provider to be built at startup and records
// which signals this process exports.
func announce(cfg Config, _ *sdktrace.TracerProvider, log *zap.Logger) {
	log.Info("observability configured",
		zap.String("service", cfg.ServiceName),
		zap.String("environment", cfg.Environment),
		zap.String("log_level", cfg.LogLevel),
		zap.Bool("otel_exporting", cfg.OtelEnabled),
		zap.String("otel_protocol", cfg.OtelExporterProtocol),
		zap.Float64("otel_sampling_ratio", cfg.OtelSamplingRatio),
	)
}

func (c Config) loggerConfig() logger.Config {
	return logger.Config{
		ServiceName:         c.ServiceName,
		Environment:         c.Environment,
		Version:             c.Version,
		Level:               c.LogLevel,
		Format:              c.LogFormat,
		Debug:               c.Debug(),
		IncludeCaller:       true,
		IncludeStackOnError: c.Debug(),
	}
}

func (c Config) tracingConfig() tracing.Config {
	return tracing.Config{
		Enabled:          c.OtelEnabled,
		ServiceName:      c.ServiceName,
		ServiceVersion:   c.Version,
		Environment:      c.Environment,
		ExporterEndpoint: c.OtelExporterEndpoint,
		ExporterProtocol: c.OtelExporterProtocol,
		SamplingRatio:    c.OtelSamplingRatio,
	}
}

func (c Config) metricsConfig() metrics.Config {
	return metrics.Config{
		Enabled:          c.OtelEnabled,
		ExporterEndpoint: c.OtelExporterEndpoint,
		ExporterProtocol: c.OtelExporterProtocol,
		ServiceName:      c.ServiceName,
		Environment:      c.Environment,
	}
}
