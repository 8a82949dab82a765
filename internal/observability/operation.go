package observability

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	skerrors "github.com/MasterChonk/SkillToken-V2/pkg/errors"
)

// Operation tracks a high-level operation with span, metrics, and logging.
type Operation struct {
	ctx     context.Context
	span    trace.Span
	metrics *Metrics
	name    string
	start   time.Time
	logger  *slog.Logger
}

// StartOperation begins tracking an operation with a span, logger context, and timing.
// Callers must end it from a deferred closure so the final error is observed:
//
//	op, ctx := observability.StartOperation(ctx, m, "registry.issue")
//	defer func() { op.End(err) }()
func StartOperation(ctx context.Context, m *Metrics, name string, attrs ...attribute.KeyValue) (*Operation, context.Context) {
	ctx, span := StartSpan(ctx, name, attrs...)
	logger := slog.Default().With("operation", name)
	logger.DebugContext(ctx, "operation started")

	return &Operation{
		ctx:     ctx,
		span:    span,
		metrics: m,
		name:    name,
		start:   time.Now(),
		logger:  logger,
	}, ctx
}

// End finishes the operation, recording duration and status. Domain
// rejections (unauthorized, not found, ...) log at info; anything else is an error.
func (o *Operation) End(err error) {
	duration := time.Since(o.start).Seconds()
	status := "ok"
	if err != nil {
		status = "error"
		code := skerrors.CodeOf(err)
		switch code {
		case skerrors.CodeInternal, skerrors.CodeUnknown:
			o.logger.ErrorContext(o.ctx, "operation failed", "error", err, "duration", duration)
		default:
			o.logger.InfoContext(o.ctx, "operation rejected", "code", string(code), "error", err, "duration", duration)
		}
		if o.metrics != nil {
			o.metrics.ErrorsTotal.WithLabelValues(o.name, string(code)).Inc()
		}
	} else {
		o.logger.DebugContext(o.ctx, "operation completed", "duration", duration)
	}

	EndSpan(o.span, err)
	if o.metrics != nil {
		o.metrics.OperationDuration.WithLabelValues(o.name, status).Observe(duration)
		o.metrics.OperationTotal.WithLabelValues(o.name, status).Inc()
	}
}
