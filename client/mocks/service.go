package mocks

import (
	"context"

	"github.com/absmach/fledge/client"
	"github.com/absmach/fledge/pkg/transport"
	"github.com/stretchr/testify/mock"
)

var _ client.Service = (*Service)(nil)

// Service is a testify mock of client.Service.
type Service struct {
	mock.Mock
}

func (m *Service) Join(ctx context.Context) error {
	args := m.Called(ctx)

	return args.Error(0)
}

func (m *Service) Fit(ctx context.Context, ins transport.FitIns) (transport.FitRes, error) {
	args := m.Called(ctx, ins)

	return args.Get(0).(transport.FitRes), args.Error(1)
}

func (m *Service) Evaluate(ctx context.Context, ins transport.EvaluateIns) (transport.EvaluateRes, error) {
	args := m.Called(ctx, ins)

	return args.Get(0).(transport.EvaluateRes), args.Error(1)
}

func (m *Service) Parameters(ctx context.Context, ins transport.GetParametersIns) (transport.GetParametersRes, error) {
	args := m.Called(ctx, ins)

	return args.Get(0).(transport.GetParametersRes), args.Error(1)
}

func (m *Service) Properties(ctx context.Context, ins transport.GetPropertiesIns) (transport.GetPropertiesRes, error) {
	args := m.Called(ctx, ins)

	return args.Get(0).(transport.GetPropertiesRes), args.Error(1)
}
