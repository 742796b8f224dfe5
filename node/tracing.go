package node

import (
	"io"

	otelpyroscope "github.com/grafana/otel-profiling-go"
	"github.com/grafana/pyroscope-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	cfg "github.com/stratis-go/fullnode/config"
)

const applicationName = "fullnode"

// setupTracing returns a tracer provider exporting finished spans to w, or
// nil when neither stdout tracing nor pyroscope span profiles are enabled.
// The returned trace.TracerProvider is the one components should take
// their tracers from; the sdk provider is kept for Shutdown.
func setupTracing(instCfg *cfg.InstrumentationConfig, w io.Writer) (*sdktrace.TracerProvider, trace.TracerProvider, error) {
	if !instCfg.TraceStdout && !instCfg.PyroscopeTrace {
		return nil, nil, nil
	}

	exp, err := stdouttrace.New(stdouttrace.WithWriter(w), stdouttrace.WithPrettyPrint())
	if err != nil {
		return nil, nil, err
	}
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sdktrace.NewBatchSpanProcessor(exp)))

	var provider trace.TracerProvider = tp
	if instCfg.PyroscopeTrace {
		// annotate goroutines with the span ID so that profiling samples
		// carry matching labels
		provider = otelpyroscope.NewTracerProvider(tp)
	}

	otel.SetTracerProvider(provider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))
	return tp, provider, nil
}

// setupPyroscope starts continuous profiling against the configured
// pyroscope server, or returns nil when none is configured.
func setupPyroscope(instCfg *cfg.InstrumentationConfig) (*pyroscope.Profiler, error) {
	if instCfg.PyroscopeURL == "" {
		return nil, nil
	}
	return pyroscope.Start(pyroscope.Config{
		ApplicationName: applicationName,
		ServerAddress:   instCfg.PyroscopeURL,
		Logger:          nil, // use the noop logger by passing nil
		Tags:            map[string]string{"namespace": instCfg.Namespace},
		ProfileTypes:    toPyroscopeProfiles(instCfg.PyroscopeProfileTypes),
	})
}

func toPyroscopeProfiles(profiles []string) []pyroscope.ProfileType {
	pts := make([]pyroscope.ProfileType, 0, len(profiles))
	for _, p := range profiles {
		pts = append(pts, pyroscope.ProfileType(p))
	}
	return pts
}
