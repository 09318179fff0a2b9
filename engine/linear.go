package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/absmach/fledge/pkg/fl"
)

const (
	weightsTensor = 0
	biasTensor    = 1

	numParams = NumFeatures + 1
)

var _ Engine = (*Linear)(nil)

// Linear is the reference engine: a linear rating model over the user
// behaviour features with its bias, exchanged as two tensors.
type Linear struct {
	mu       sync.Mutex
	state    State
	callback Callback
	cancel   context.CancelFunc
	data     Dataset

	// weights holds an immutable snapshot; mutation publishes a new one.
	weights atomic.Pointer[snapshot]

	source    DatasetSource
	optimizer Optimizer
	rng       *rand.Rand
	wg        sync.WaitGroup
	logger    *slog.Logger
}

type snapshot struct {
	values []float32
	params fl.ParameterSet
}

func newSnapshot(values []float32) *snapshot {
	return &snapshot{
		values: values,
		params: fl.ParameterSet{
			fl.EncodeTensor(values[:NumFeatures]),
			fl.EncodeTensor(values[NumFeatures:]),
		},
	}
}

type Option func(*Linear)

func WithOptimizer(o Optimizer) Option {
	return func(l *Linear) {
		l.optimizer = o
	}
}

// WithDatasetSource sets where LoadData fetches data from. Without a source
// the engine always uses synthetic data.
func WithDatasetSource(s DatasetSource) Option {
	return func(l *Linear) {
		l.source = s
	}
}

func NewLinear(logger *slog.Logger, opts ...Option) *Linear {
	l := &Linear{
		state:     Idle,
		optimizer: SGD{},
		rng:       rand.New(rand.NewPCG(syntheticSeed, 0)),
		logger:    logger,
	}
	for _, opt := range opts {
		opt(l)
	}
	l.weights.Store(newSnapshot(make([]float32, numParams)))

	return l
}

// Layout returns the blob sizes SetParameters accepts.
func Layout() []int {
	return []int{fl.TensorSize(NumFeatures), fl.TensorSize(1)}
}

func (l *Linear) Parameters() fl.ParameterSet {
	return l.weights.Load().params.Clone()
}

func (l *Linear) SetParameters(ps fl.ParameterSet) error {
	if got, want := ps.Sizes(), Layout(); !slices.Equal(got, want) {
		return fmt.Errorf("%w: got tensor sizes %v, expected %v", fl.ErrShapeMismatch, got, want)
	}

	weights, err := fl.DecodeTensor(ps[weightsTensor])
	if err != nil {
		return fmt.Errorf("%w: %w", fl.ErrShapeMismatch, err)
	}
	bias, err := fl.DecodeTensor(ps[biasTensor])
	if err != nil {
		return fmt.Errorf("%w: %w", fl.ErrShapeMismatch, err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.state == TrainingInProgress {
		return fmt.Errorf("%w: cannot replace parameters while training", fl.ErrState)
	}
	l.weights.Store(newSnapshot(append(weights, bias...)))

	return nil
}

func (l *Linear) EnableTraining(cb Callback) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	switch l.state {
	case Idle, TrainingEnabled:
		l.state = TrainingEnabled
		l.callback = cb

		return nil
	default:
		return fmt.Errorf("%w: cannot enable training in state %s", fl.ErrState, l.state)
	}
}

func (l *Linear) DisableTraining() {
	l.mu.Lock()
	defer l.mu.Unlock()

	switch l.state {
	case TrainingEnabled:
		l.state = Idle
		l.callback = nil
	case TrainingInProgress:
		l.cancel()
	}
}

func (l *Linear) Train(ctx context.Context, epochs int, opts ...TrainOption) error {
	if epochs <= 0 {
		return fmt.Errorf("%w: epochs must be positive, got %d", fl.ErrConfig, epochs)
	}
	cfg := newTrainConfig(opts...)

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.state != TrainingEnabled {
		return fmt.Errorf("%w: cannot train in state %s", fl.ErrState, l.state)
	}
	if len(l.data.Train) == 0 {
		return fmt.Errorf("%w: no training data loaded", fl.ErrState)
	}

	ctx, cancel := context.WithCancel(ctx)
	l.state = TrainingInProgress
	l.cancel = cancel
	cb := l.callback
	samples := slices.Clone(l.data.Train)

	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		defer cancel()

		l.run(ctx, epochs, cfg, samples, cb)
	}()

	return nil
}

func (l *Linear) run(ctx context.Context, epochs int, cfg TrainConfig, samples []Sample, cb Callback) {
	values := slices.Clone(l.weights.Load().values)

	for epoch := range epochs {
		if err := ctx.Err(); err != nil {
			l.finish()
			l.logger.Warn("training aborted", slog.Int("epoch", epoch), slog.Any("error", err))
			if cb != nil {
				cb.TrainingAborted(errors.Join(fl.ErrCanceled, err))
			}

			return
		}

		loss := l.epoch(values, samples, cfg)
		l.weights.Store(newSnapshot(slices.Clone(values)))

		p := Progress{Epoch: epoch, Epochs: epochs, Loss: loss}
		l.logger.Debug("epoch completed", slog.Int("epoch", epoch+1), slog.Int("epochs", epochs), slog.Float64("loss", loss))

		if p.Terminal() {
			l.finish()
		}
		if cb != nil {
			cb.EpochCompleted(p)
		}
	}
}

// epoch runs one shuffled mini-batch pass and returns the mean squared error
// of the predictions made before each batch update.
func (l *Linear) epoch(values []float32, samples []Sample, cfg TrainConfig) float64 {
	l.rng.Shuffle(len(samples), func(i, j int) {
		samples[i], samples[j] = samples[j], samples[i]
	})

	grads := make([]float32, numParams)
	var total float64
	for start := 0; start < len(samples); start += cfg.BatchSize {
		batch := samples[start:min(start+cfg.BatchSize, len(samples))]
		clear(grads)

		scale := 2 / float32(len(batch))
		for _, s := range batch {
			diff := predict(values, s.Features) - s.Label
			total += float64(diff) * float64(diff)
			for i, x := range s.Features {
				grads[i] += scale * diff * x
			}
			grads[NumFeatures] += scale * diff
		}
		l.optimizer.Step(values, grads, cfg.LearningRate)
	}

	return total / float64(len(samples))
}

func (l *Linear) finish() {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.state = Idle
	l.callback = nil
	l.cancel = nil
}

func (l *Linear) Evaluate(ctx context.Context) (float64, float64, error) {
	samples, err := l.beginEvaluation()
	if err != nil {
		return 0, 0, err
	}

	defer func() {
		l.mu.Lock()
		l.state = Idle
		l.mu.Unlock()
	}()

	values := l.weights.Load().values
	var sqErr, absErr float64
	for _, s := range samples {
		if err := ctx.Err(); err != nil {
			return 0, 0, errors.Join(fl.ErrCanceled, err)
		}
		diff := float64(clampRating(predict(values, s.Features)) - s.Label)
		sqErr += diff * diff
		absErr += max(diff, -diff)
	}
	n := float64(len(samples))

	return sqErr / n, absErr / n, nil
}

func (l *Linear) beginEvaluation() ([]Sample, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.state != Idle {
		return nil, fmt.Errorf("%w: cannot evaluate in state %s", fl.ErrState, l.state)
	}
	if len(l.data.Test) == 0 {
		return nil, fmt.Errorf("%w: no evaluation data loaded", fl.ErrState)
	}
	l.state = EvaluationEnabled

	return l.data.Test, nil
}

func (l *Linear) TrainingSampleCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	return len(l.data.Train)
}

func (l *Linear) EvaluationSampleCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	return len(l.data.Test)
}

func (l *Linear) LoadData(ctx context.Context, slice string) error {
	ds := Dataset{}
	if l.source != nil {
		var err error
		ds, err = l.source.Load(ctx, slice)
		if err != nil {
			l.logger.Warn("dataset source unavailable, using synthetic data", slog.String("slice", slice), slog.Any("error", err))
			ds = Dataset{}
		}
	}
	if len(ds.Train) == 0 {
		ds = Synthetic(slice)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.state != Idle {
		return fmt.Errorf("%w: cannot load data in state %s", fl.ErrState, l.state)
	}
	l.data = ds
	l.logger.Info("dataset loaded",
		slog.String("slice", slice),
		slog.Int("training_samples", len(ds.Train)),
		slog.Int("evaluation_samples", len(ds.Test)),
	)

	return nil
}

func (l *Linear) State() State {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.state
}

func (l *Linear) Close() error {
	l.mu.Lock()
	if l.cancel != nil {
		l.cancel()
	}
	l.mu.Unlock()

	l.wg.Wait()

	l.mu.Lock()
	defer l.mu.Unlock()
	l.state = Idle
	l.callback = nil

	return nil
}

func predict(values, features []float32) float32 {
	y := values[NumFeatures]
	for i, x := range features {
		y += values[i] * x
	}

	return y
}
