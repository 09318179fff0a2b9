package client

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/absmach/fledge/engine"
	"github.com/absmach/fledge/pkg/fl"
	"github.com/absmach/fledge/pkg/gate"
	"github.com/absmach/fledge/pkg/transport"
	"github.com/google/uuid"
)

const modelName = "linear-rating"

// Service executes round instructions against the local training engine.
type Service interface {
	// Join acknowledges that the server registered this client.
	Join(ctx context.Context) error

	// Fit trains on the received parameters and returns the updated ones once
	// the last epoch has completed.
	Fit(ctx context.Context, ins transport.FitIns) (transport.FitRes, error)

	// Evaluate scores the received parameters on the local evaluation split.
	Evaluate(ctx context.Context, ins transport.EvaluateIns) (transport.EvaluateRes, error)

	// Parameters returns the current local parameters.
	Parameters(ctx context.Context, ins transport.GetParametersIns) (transport.GetParametersRes, error)

	// Properties describes the client and its local data.
	Properties(ctx context.Context, ins transport.GetPropertiesIns) (transport.GetPropertiesRes, error)
}

type service struct {
	cfg      Config
	engine   engine.Engine
	observer Observer
	logger   *slog.Logger
}

var _ Service = (*service)(nil)

func NewService(cfg Config, eng engine.Engine, observer Observer, logger *slog.Logger) Service {
	if cfg.DefaultEpochs <= 0 {
		cfg.DefaultEpochs = DefEpochs
	}
	if observer == nil {
		observer = Observers{}
	}

	return &service{
		cfg:      cfg,
		engine:   eng,
		observer: observer,
		logger:   logger,
	}
}

func (s *service) Join(ctx context.Context) error {
	s.logger.Debug("joined federation", slog.String("session_id", SessionID(ctx)))

	return nil
}

type fitResult struct {
	params  fl.ParameterSet
	samples int
	loss    float64
}

func (s *service) Fit(ctx context.Context, ins transport.FitIns) (res transport.FitRes, err error) {
	round := s.newRound(ctx, fl.FitRound)
	defer func() {
		s.finishRound(ctx, round, err)
	}()

	if err := s.ensureIdle(); err != nil {
		return transport.FitRes{}, err
	}

	params, err := s.codec().Decode(ins.Parameters)
	if err != nil {
		return transport.FitRes{}, err
	}
	epochs, err := s.epochs(ins.Config)
	if err != nil {
		return transport.FitRes{}, err
	}
	round.Epochs = epochs
	opts, err := trainOptions(ins.Config)
	if err != nil {
		return transport.FitRes{}, err
	}

	if err := s.engine.SetParameters(params); err != nil {
		return transport.FitRes{}, err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g := gate.New[fitResult]()
	g.Close()
	cb := &roundCallback{
		ctx:      ctx,
		roundID:  round.ID,
		engine:   s.engine,
		gate:     g,
		observer: s.observer,
	}
	if err := s.engine.EnableTraining(cb); err != nil {
		return transport.FitRes{}, err
	}
	if err := s.engine.Train(ctx, epochs, opts...); err != nil {
		s.engine.DisableTraining()

		return transport.FitRes{}, err
	}

	result, err := g.Await(ctx, s.cfg.RoundTimeout)
	switch {
	case errors.Is(err, gate.ErrTimeout):
		cancel()

		return transport.FitRes{}, fmt.Errorf("%w: waited %s for %d epochs", fl.ErrTrainingTimeout, s.cfg.RoundTimeout, epochs)
	case errors.Is(err, gate.ErrCanceled):
		return transport.FitRes{}, errors.Join(fl.ErrCanceled, err)
	case err != nil:
		return transport.FitRes{}, err
	}

	round.NumSamples = result.samples
	round.Loss = result.loss

	return transport.FitRes{
		Status:      transport.Status{Code: transport.StatusOK, Message: "Success"},
		Parameters:  s.codec().Encode(result.params),
		NumExamples: int64(result.samples),
		Metrics:     fl.Config{"loss": result.loss},
	}, nil
}

func (s *service) Evaluate(ctx context.Context, ins transport.EvaluateIns) (res transport.EvaluateRes, err error) {
	round := s.newRound(ctx, fl.EvaluateRound)
	defer func() {
		s.finishRound(ctx, round, err)
	}()

	if err := s.ensureIdle(); err != nil {
		return transport.EvaluateRes{}, err
	}

	params, err := s.codec().Decode(ins.Parameters)
	if err != nil {
		return transport.EvaluateRes{}, err
	}
	if err := s.engine.SetParameters(params); err != nil {
		return transport.EvaluateRes{}, err
	}
	s.engine.DisableTraining()

	loss, mae, err := s.engine.Evaluate(ctx)
	if err != nil {
		return transport.EvaluateRes{}, err
	}
	samples := s.engine.EvaluationSampleCount()

	round.NumSamples = samples
	round.Loss = loss
	round.MAE = mae

	return transport.EvaluateRes{
		Status:      transport.Status{Code: transport.StatusOK, Message: "Success"},
		Loss:        float32(loss),
		NumExamples: int64(samples),
		Metrics:     fl.Config{"mae": mae},
	}, nil
}

func (s *service) Parameters(_ context.Context, _ transport.GetParametersIns) (transport.GetParametersRes, error) {
	return transport.GetParametersRes{
		Status:     transport.Status{Code: transport.StatusOK, Message: "Success"},
		Parameters: s.codec().Encode(s.engine.Parameters()),
	}, nil
}

func (s *service) Properties(_ context.Context, _ transport.GetPropertiesIns) (transport.GetPropertiesRes, error) {
	return transport.GetPropertiesRes{
		Status: transport.Status{Code: transport.StatusOK, Message: "Success"},
		Properties: fl.Config{
			"client_id":    s.cfg.ClientID,
			"model":        modelName,
			"num_train":    int64(s.engine.TrainingSampleCount()),
			"num_test":     int64(s.engine.EvaluationSampleCount()),
			"tensor_count": int64(len(s.engine.Parameters())),
			"tensor_type":  s.tensorType(),
		},
	}, nil
}

// codec decodes only what fits the engine's layout: the same tensor count
// and no tensor larger than the engine's largest one.
func (s *service) codec() fl.Codec {
	current := s.engine.Parameters()
	largest := 0
	for _, blob := range current {
		largest = max(largest, len(blob))
	}

	return fl.NewCodec(
		fl.WithCompression(s.cfg.CompressTensors),
		fl.WithTensorCount(len(current)),
		fl.WithMaxTensorSize(largest),
	)
}

func (s *service) tensorType() string {
	if s.cfg.CompressTensors {
		return fl.TensorTypeFloat32Snappy
	}

	return fl.TensorTypeFloat32
}

// ensureIdle rejects a round while the previous one still owns the engine.
func (s *service) ensureIdle() error {
	if st := s.engine.State(); st != engine.Idle {
		return fmt.Errorf("%w: engine is %s", fl.ErrState, st)
	}

	return nil
}

// epochs reads the epoch count, accepting the local_epochs alias. A missing
// count falls back to the configured default.
func (s *service) epochs(cfg fl.Config) (int, error) {
	for _, key := range []string{EpochsKey, LocalEpochsKey} {
		n, ok, err := cfg.Int(key)
		if err != nil {
			return 0, err
		}
		if !ok {
			continue
		}
		if n <= 0 {
			return 0, fmt.Errorf("%w: %q must be positive, got %d", fl.ErrConfig, key, n)
		}

		return int(n), nil
	}

	s.logger.Warn("fit config has no epoch count, using default", slog.Int("epochs", s.cfg.DefaultEpochs))

	return s.cfg.DefaultEpochs, nil
}

func trainOptions(cfg fl.Config) ([]engine.TrainOption, error) {
	var opts []engine.TrainOption

	lr, ok, err := cfg.Float(LearningRateKey)
	if err != nil {
		return nil, err
	}
	if ok {
		opts = append(opts, engine.WithLearningRate(lr))
	}

	batch, ok, err := cfg.Int(BatchSizeKey)
	if err != nil {
		return nil, err
	}
	if ok {
		opts = append(opts, engine.WithBatchSize(int(batch)))
	}

	return opts, nil
}

func (s *service) newRound(ctx context.Context, kind fl.RoundKind) *fl.Round {
	return &fl.Round{
		ID:        uuid.NewString(),
		SessionID: SessionID(ctx),
		Kind:      kind,
		StartedAt: time.Now(),
	}
}

func (s *service) finishRound(ctx context.Context, round *fl.Round, err error) {
	round.FinishedAt = time.Now()
	if err != nil {
		round.Error = err.Error()
	}
	s.observer.RoundCompleted(context.WithoutCancel(ctx), *round)
}

// roundCallback bridges the engine's training goroutine to the waiting round.
type roundCallback struct {
	ctx      context.Context
	roundID  string
	engine   engine.Engine
	gate     *gate.Gate[fitResult]
	observer Observer
}

func (c *roundCallback) EpochCompleted(p engine.Progress) {
	c.observer.EpochCompleted(c.ctx, c.roundID, p)

	if !p.Terminal() {
		return
	}
	c.engine.DisableTraining()
	c.gate.Open(fitResult{
		params:  c.engine.Parameters(),
		samples: c.engine.TrainingSampleCount(),
		loss:    p.Loss,
	})
}

func (c *roundCallback) TrainingAborted(err error) {
	c.gate.Fail(err)
}

type sessionKey struct{}

// WithSessionID tags ctx with the session that rounds run in.
func WithSessionID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, sessionKey{}, id)
}

func SessionID(ctx context.Context) string {
	id, _ := ctx.Value(sessionKey{}).(string)

	return id
}
