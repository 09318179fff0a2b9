package middleware

import (
	"context"

	"github.com/absmach/fledge/client"
	"github.com/absmach/fledge/pkg/transport"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var _ client.Service = (*tracing)(nil)

type tracing struct {
	tracer trace.Tracer
	svc    client.Service
}

func Tracing(tracer trace.Tracer, svc client.Service) client.Service {
	return &tracing{tracer, svc}
}

func (tm *tracing) Join(ctx context.Context) error {
	ctx, span := tm.tracer.Start(ctx, "join", trace.WithAttributes(
		attribute.String("session_id", client.SessionID(ctx)),
	))
	defer span.End()

	return tm.svc.Join(ctx)
}

func (tm *tracing) Fit(ctx context.Context, ins transport.FitIns) (res transport.FitRes, err error) {
	ctx, span := tm.tracer.Start(ctx, "fit", trace.WithAttributes(
		attribute.String("session_id", client.SessionID(ctx)),
		attribute.Int("tensors", len(ins.Parameters.Tensors)),
		attribute.String("tensor_type", ins.Parameters.TensorType),
	))
	defer func() {
		record(span, err)
		span.End()
	}()

	res, err = tm.svc.Fit(ctx, ins)
	span.SetAttributes(attribute.Int64("num_examples", res.NumExamples))

	return res, err
}

func (tm *tracing) Evaluate(ctx context.Context, ins transport.EvaluateIns) (res transport.EvaluateRes, err error) {
	ctx, span := tm.tracer.Start(ctx, "evaluate", trace.WithAttributes(
		attribute.String("session_id", client.SessionID(ctx)),
		attribute.Int("tensors", len(ins.Parameters.Tensors)),
	))
	defer func() {
		record(span, err)
		span.End()
	}()

	res, err = tm.svc.Evaluate(ctx, ins)
	span.SetAttributes(
		attribute.Float64("loss", float64(res.Loss)),
		attribute.Int64("num_examples", res.NumExamples),
	)

	return res, err
}

func (tm *tracing) Parameters(ctx context.Context, ins transport.GetParametersIns) (transport.GetParametersRes, error) {
	ctx, span := tm.tracer.Start(ctx, "get-parameters")
	defer span.End()

	return tm.svc.Parameters(ctx, ins)
}

func (tm *tracing) Properties(ctx context.Context, ins transport.GetPropertiesIns) (transport.GetPropertiesRes, error) {
	ctx, span := tm.tracer.Start(ctx, "get-properties")
	defer span.End()

	return tm.svc.Properties(ctx, ins)
}

func record(span trace.Span, err error) {
	if err == nil {
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}
