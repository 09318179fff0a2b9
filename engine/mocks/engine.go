package mocks

import (
	"context"

	"github.com/absmach/fledge/engine"
	"github.com/absmach/fledge/pkg/fl"
	"github.com/stretchr/testify/mock"
)

var _ engine.Engine = (*Engine)(nil)

// Engine is a testify mock of engine.Engine.
type Engine struct {
	mock.Mock
}

func (m *Engine) Parameters() fl.ParameterSet {
	args := m.Called()
	if ps, ok := args.Get(0).(fl.ParameterSet); ok {
		return ps
	}

	return nil
}

func (m *Engine) SetParameters(ps fl.ParameterSet) error {
	args := m.Called(ps)

	return args.Error(0)
}

func (m *Engine) EnableTraining(cb engine.Callback) error {
	args := m.Called(cb)

	return args.Error(0)
}

func (m *Engine) DisableTraining() {
	m.Called()
}

func (m *Engine) Train(ctx context.Context, epochs int, opts ...engine.TrainOption) error {
	args := m.Called(ctx, epochs, opts)

	return args.Error(0)
}

func (m *Engine) Evaluate(ctx context.Context) (float64, float64, error) {
	args := m.Called(ctx)

	return args.Get(0).(float64), args.Get(1).(float64), args.Error(2)
}

func (m *Engine) TrainingSampleCount() int {
	args := m.Called()

	return args.Int(0)
}

func (m *Engine) EvaluationSampleCount() int {
	args := m.Called()

	return args.Int(0)
}

func (m *Engine) LoadData(ctx context.Context, slice string) error {
	args := m.Called(ctx, slice)

	return args.Error(0)
}

func (m *Engine) State() engine.State {
	args := m.Called()

	return args.Get(0).(engine.State)
}

func (m *Engine) Close() error {
	args := m.Called()

	return args.Error(0)
}
