package middleware

import (
	"context"
	"time"

	"github.com/absmach/fledge/client"
	"github.com/absmach/fledge/pkg/transport"
	"github.com/go-kit/kit/metrics"
)

var _ client.Service = (*metricsMiddleware)(nil)

type metricsMiddleware struct {
	counter metrics.Counter
	latency metrics.Histogram
	svc     client.Service
}

func Metrics(counter metrics.Counter, latency metrics.Histogram, svc client.Service) client.Service {
	return &metricsMiddleware{
		counter: counter,
		latency: latency,
		svc:     svc,
	}
}

func (mm *metricsMiddleware) Join(ctx context.Context) error {
	defer func(begin time.Time) {
		mm.counter.With("method", "join").Add(1)
		mm.latency.With("method", "join").Observe(time.Since(begin).Seconds())
	}(time.Now())

	return mm.svc.Join(ctx)
}

func (mm *metricsMiddleware) Fit(ctx context.Context, ins transport.FitIns) (transport.FitRes, error) {
	defer func(begin time.Time) {
		mm.counter.With("method", "fit").Add(1)
		mm.latency.With("method", "fit").Observe(time.Since(begin).Seconds())
	}(time.Now())

	return mm.svc.Fit(ctx, ins)
}

func (mm *metricsMiddleware) Evaluate(ctx context.Context, ins transport.EvaluateIns) (transport.EvaluateRes, error) {
	defer func(begin time.Time) {
		mm.counter.With("method", "evaluate").Add(1)
		mm.latency.With("method", "evaluate").Observe(time.Since(begin).Seconds())
	}(time.Now())

	return mm.svc.Evaluate(ctx, ins)
}

func (mm *metricsMiddleware) Parameters(ctx context.Context, ins transport.GetParametersIns) (transport.GetParametersRes, error) {
	defer func(begin time.Time) {
		mm.counter.With("method", "get-parameters").Add(1)
		mm.latency.With("method", "get-parameters").Observe(time.Since(begin).Seconds())
	}(time.Now())

	return mm.svc.Parameters(ctx, ins)
}

func (mm *metricsMiddleware) Properties(ctx context.Context, ins transport.GetPropertiesIns) (transport.GetPropertiesRes, error) {
	defer func(begin time.Time) {
		mm.counter.With("method", "get-properties").Add(1)
		mm.latency.With("method", "get-properties").Observe(time.Since(begin).Seconds())
	}(time.Now())

	return mm.svc.Properties(ctx, ins)
}
