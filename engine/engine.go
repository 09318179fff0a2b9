// Package engine defines the local training engine driven by federated
// rounds, together with a reference linear rating model.
package engine

import (
	"context"

	"github.com/absmach/fledge/pkg/fl"
)

type State uint8

const (
	Idle State = iota
	TrainingEnabled
	TrainingInProgress
	EvaluationEnabled
)

func (s State) String() string {
	switch s {
	case Idle:
		return "Idle"
	case TrainingEnabled:
		return "TrainingEnabled"
	case TrainingInProgress:
		return "TrainingInProgress"
	case EvaluationEnabled:
		return "EvaluationEnabled"
	default:
		return "Unknown"
	}
}

// Progress is reported once per completed epoch.
type Progress struct {
	Epoch  int     `json:"epoch"`
	Epochs int     `json:"epochs"`
	Loss   float64 `json:"loss"`
}

// Terminal reports whether p is the last epoch of its training run.
func (p Progress) Terminal() bool {
	return p.Epoch == p.Epochs-1
}

// Callback receives training events on the engine's training goroutine.
// Implementations may call Parameters and DisableTraining but must not block
// on the caller of Train.
type Callback interface {
	EpochCompleted(p Progress)
	TrainingAborted(err error)
}

type Engine interface {
	// Parameters returns a copy of the current weights. It is safe to call in
	// any state and from callbacks.
	Parameters() fl.ParameterSet

	// SetParameters replaces the weights atomically. It fails with
	// fl.ErrShapeMismatch when ps does not match the model layout and with
	// fl.ErrState while training is in progress.
	SetParameters(ps fl.ParameterSet) error

	// EnableTraining registers cb and moves the engine to TrainingEnabled.
	EnableTraining(cb Callback) error

	// DisableTraining returns the engine to Idle. While training is in
	// progress it stops the run, which is then reported as aborted.
	DisableTraining()

	// Train starts epochs passes over the training split on the engine's
	// training goroutine and returns immediately. Progress is delivered to
	// the registered callback; the last event is epoch epochs-1.
	Train(ctx context.Context, epochs int, opts ...TrainOption) error

	// Evaluate runs one pass over the evaluation split without touching the
	// weights and returns the mean squared error and mean absolute error.
	Evaluate(ctx context.Context) (loss, mae float64, err error)

	TrainingSampleCount() int
	EvaluationSampleCount() int

	// LoadData provisions the training and evaluation splits for slice.
	LoadData(ctx context.Context, slice string) error

	State() State

	// Close stops any running training and waits for it to exit.
	Close() error
}

const (
	DefaultLearningRate = 0.001
	DefaultBatchSize    = 16
)

type TrainConfig struct {
	LearningRate float64
	BatchSize    int
}

type TrainOption func(*TrainConfig)

func WithLearningRate(lr float64) TrainOption {
	return func(c *TrainConfig) {
		if lr > 0 {
			c.LearningRate = lr
		}
	}
}

func WithBatchSize(n int) TrainOption {
	return func(c *TrainConfig) {
		if n > 0 {
			c.BatchSize = n
		}
	}
}

func newTrainConfig(opts ...TrainOption) TrainConfig {
	cfg := TrainConfig{
		LearningRate: DefaultLearningRate,
		BatchSize:    DefaultBatchSize,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	return cfg
}
