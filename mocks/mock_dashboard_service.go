package mocks

import (
	"context"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"

	"docdash/internal/domain"
	"docdash/internal/service"
)

// MockDashboardService is a mock implementation of service.DashboardService.
type MockDashboardService struct {
	mock.Mock
}

func (m *MockDashboardService) CreateSession(ctx context.Context) (*domain.SessionSummary, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.SessionSummary), args.Error(1)
}

func (m *MockDashboardService) GetSession(ctx context.Context, id uuid.UUID) (*domain.SessionSummary, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.SessionSummary), args.Error(1)
}

func (m *MockDashboardService) DeleteSession(ctx context.Context, id uuid.UUID) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockDashboardService) UploadBatch(ctx context.Context, input service.UploadBatchInput) (*service.BatchResult, error) {
	args := m.Called(ctx, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.BatchResult), args.Error(1)
}

func (m *MockDashboardService) Poll(ctx context.Context, id uuid.UUID) (*domain.PollOutcome, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.PollOutcome), args.Error(1)
}

func (m *MockDashboardService) RetryAll(ctx context.Context, id uuid.UUID) (*domain.PollOutcome, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.PollOutcome), args.Error(1)
}

func (m *MockDashboardService) Results(ctx context.Context, id uuid.UUID) (*service.ResultsView, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.ResultsView), args.Error(1)
}

func (m *MockDashboardService) Export(ctx context.Context, id uuid.UUID, format domain.ExportFormat) (*service.ExportFile, error) {
	args := m.Called(ctx, id, format)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.ExportFile), args.Error(1)
}
