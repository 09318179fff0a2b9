package middleware

import (
	"context"
	"log/slog"
	"time"

	"github.com/absmach/fledge/client"
	"github.com/absmach/fledge/pkg/transport"
)

var _ client.Service = (*loggingMiddleware)(nil)

type loggingMiddleware struct {
	logger *slog.Logger
	svc    client.Service
}

func Logging(logger *slog.Logger, svc client.Service) client.Service {
	return &loggingMiddleware{
		logger: logger,
		svc:    svc,
	}
}

func (lm *loggingMiddleware) Join(ctx context.Context) (err error) {
	defer func(begin time.Time) {
		args := []any{
			slog.String("duration", time.Since(begin).String()),
			slog.String("session_id", client.SessionID(ctx)),
		}
		if err != nil {
			args = append(args, slog.Any("error", err))
			lm.logger.Warn("Join failed", args...)

			return
		}
		lm.logger.Info("Join completed successfully", args...)
	}(time.Now())

	return lm.svc.Join(ctx)
}

func (lm *loggingMiddleware) Fit(ctx context.Context, ins transport.FitIns) (res transport.FitRes, err error) {
	defer func(begin time.Time) {
		args := []any{
			slog.String("duration", time.Since(begin).String()),
			slog.String("session_id", client.SessionID(ctx)),
			slog.Group("instruction",
				slog.Int("tensors", len(ins.Parameters.Tensors)),
				slog.Any("config", ins.Config),
			),
		}
		if err != nil {
			args = append(args, slog.Any("error", err))
			lm.logger.Warn("Fit round failed", args...)

			return
		}
		args = append(args, slog.Group("result",
			slog.Int64("num_examples", res.NumExamples),
			slog.Any("metrics", res.Metrics),
		))
		lm.logger.Info("Fit round completed successfully", args...)
	}(time.Now())

	return lm.svc.Fit(ctx, ins)
}

func (lm *loggingMiddleware) Evaluate(ctx context.Context, ins transport.EvaluateIns) (res transport.EvaluateRes, err error) {
	defer func(begin time.Time) {
		args := []any{
			slog.String("duration", time.Since(begin).String()),
			slog.String("session_id", client.SessionID(ctx)),
			slog.Int("tensors", len(ins.Parameters.Tensors)),
		}
		if err != nil {
			args = append(args, slog.Any("error", err))
			lm.logger.Warn("Evaluate round failed", args...)

			return
		}
		args = append(args, slog.Group("result",
			slog.Float64("loss", float64(res.Loss)),
			slog.Int64("num_examples", res.NumExamples),
		))
		lm.logger.Info("Evaluate round completed successfully", args...)
	}(time.Now())

	return lm.svc.Evaluate(ctx, ins)
}

func (lm *loggingMiddleware) Parameters(ctx context.Context, ins transport.GetParametersIns) (res transport.GetParametersRes, err error) {
	defer func(begin time.Time) {
		args := []any{
			slog.String("duration", time.Since(begin).String()),
		}
		if err != nil {
			args = append(args, slog.Any("error", err))
			lm.logger.Warn("Get parameters failed", args...)

			return
		}
		lm.logger.Info("Get parameters completed successfully", args...)
	}(time.Now())

	return lm.svc.Parameters(ctx, ins)
}

func (lm *loggingMiddleware) Properties(ctx context.Context, ins transport.GetPropertiesIns) (res transport.GetPropertiesRes, err error) {
	defer func(begin time.Time) {
		args := []any{
			slog.String("duration", time.Since(begin).String()),
		}
		if err != nil {
			args = append(args, slog.Any("error", err))
			lm.logger.Warn("Get properties failed", args...)

			return
		}
		lm.logger.Info("Get properties completed successfully", args...)
	}(time.Now())

	return lm.svc.Properties(ctx, ins)
}
