package sqlitemgmt

import (
	"context"
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/ferneyholguin/sqlitemgmt/internal/metrics"
)

const instrumentationName = "github.com/ferneyholguin/sqlitemgmt"

type tracer = trace.Tracer

func newTracer(tp trace.TracerProvider) trace.Tracer {
	if tp == nil {
		tp = noop.NewTracerProvider()
	}
	return tp.Tracer(instrumentationName, trace.WithInstrumentationVersion(LibraryVersion))
}

// registerMetrics registers the operation metrics, reusing collectors already registered by
// another Manager on the same registry.
func registerMetrics(reg prometheus.Registerer) (*metrics.Metrics, error) {
	m := metrics.New()
	if err := reg.Register(m); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(*metrics.Metrics); ok {
				return existing, nil
			}
		}
		return nil, err
	}
	return m, nil
}

// observe wraps an operation in a span and records its metrics. An empty table means the
// operation is not bound to an entity.
func (m *Manager) observe(ctx context.Context, table, op string, fn func(ctx context.Context) error) error {
	start := time.Now()
	attrs := []attribute.KeyValue{
		attribute.String("db.system", "sqlite"),
		attribute.String("db.operation", op),
	}
	if table != "" {
		attrs = append(attrs, attribute.String("db.sql.table", table))
	}
	ctx, span := m.tracer.Start(ctx, "sqlitemgmt."+op,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attrs...),
	)
	defer span.End()

	err := fn(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	m.metrics.Observe(table, op, start, err)
	return err
}
