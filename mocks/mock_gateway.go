package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"docdash/internal/port"
)

// MockGateway is a mock implementation of port.Gateway.
type MockGateway struct {
	mock.Mock
}

func (m *MockGateway) PutObject(ctx context.Context, input port.PutInput) (*port.GatewayResponse, error) {
	args := m.Called(ctx, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*port.GatewayResponse), args.Error(1)
}

func (m *MockGateway) GetResult(ctx context.Context, key string) (*port.GatewayResponse, error) {
	args := m.Called(ctx, key)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*port.GatewayResponse), args.Error(1)
}
