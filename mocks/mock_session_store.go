package mocks

import (
	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"

	"docdash/internal/domain"
)

// MockSessionStore is a mock implementation of port.SessionStore.
type MockSessionStore struct {
	mock.Mock
}

func (m *MockSessionStore) Create() (*domain.Session, error) {
	args := m.Called()
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Session), args.Error(1)
}

func (m *MockSessionStore) Delete(id uuid.UUID) error {
	args := m.Called(id)
	return args.Error(0)
}

func (m *MockSessionStore) Acquire(id uuid.UUID) (*domain.Session, func(), error) {
	args := m.Called(id)
	if args.Get(0) == nil {
		return nil, nil, args.Error(2)
	}
	release, _ := args.Get(1).(func())
	if release == nil {
		release = func() {}
	}
	return args.Get(0).(*domain.Session), release, args.Error(2)
}
