package service

import (
	"context"

	"github.com/google/uuid"

	"docdash/internal/domain"
	"docdash/internal/port"
)

// UploadBatchInput is the DTO for upload batch requests.
type UploadBatchInput struct {
	SessionID uuid.UUID
	Label     string
	Files     []UploadFile
	PollAfter bool
}

// DashboardService defines the session-scoped dashboard contract.
type DashboardService interface {
	CreateSession(ctx context.Context) (*domain.SessionSummary, error)
	GetSession(ctx context.Context, id uuid.UUID) (*domain.SessionSummary, error)
	DeleteSession(ctx context.Context, id uuid.UUID) error
	UploadBatch(ctx context.Context, input UploadBatchInput) (*BatchResult, error)
	Poll(ctx context.Context, id uuid.UUID) (*domain.PollOutcome, error)
	RetryAll(ctx context.Context, id uuid.UUID) (*domain.PollOutcome, error)
	Results(ctx context.Context, id uuid.UUID) (*ResultsView, error)
	Export(ctx context.Context, id uuid.UUID, format domain.ExportFormat) (*ExportFile, error)
}

type dashboardService struct {
	store    port.SessionStore
	pipeline *Pipeline
}

// NewDashboardService creates a new DashboardService implementation.
func NewDashboardService(store port.SessionStore, pipeline *Pipeline) DashboardService {
	return &dashboardService{
		store:    store,
		pipeline: pipeline,
	}
}

func (s *dashboardService) CreateSession(ctx context.Context) (*domain.SessionSummary, error) {
	sess, err := s.store.Create()
	if err != nil {
		return nil, err
	}
	return s.pipeline.Summary(sess), nil
}

func (s *dashboardService) GetSession(ctx context.Context, id uuid.UUID) (*domain.SessionSummary, error) {
	var summary *domain.SessionSummary
	err := s.withSession(id, func(sess *domain.Session) error {
		summary = s.pipeline.Summary(sess)
		return nil
	})
	return summary, err
}

func (s *dashboardService) DeleteSession(ctx context.Context, id uuid.UUID) error {
	return s.store.Delete(id)
}

func (s *dashboardService) UploadBatch(ctx context.Context, input UploadBatchInput) (*BatchResult, error) {
	if err := s.pipeline.ValidateBatch(input.Label, input.Files); err != nil {
		return nil, err
	}
	var result *BatchResult
	err := s.withSession(input.SessionID, func(sess *domain.Session) error {
		var err error
		result, err = s.pipeline.UploadBatch(ctx, sess, input.Label, input.Files, input.PollAfter)
		return err
	})
	return result, err
}

func (s *dashboardService) Poll(ctx context.Context, id uuid.UUID) (*domain.PollOutcome, error) {
	var outcome *domain.PollOutcome
	err := s.withSession(id, func(sess *domain.Session) error {
		var err error
		outcome, err = s.pipeline.Poll(ctx, sess)
		return err
	})
	return outcome, err
}

func (s *dashboardService) RetryAll(ctx context.Context, id uuid.UUID) (*domain.PollOutcome, error) {
	var outcome *domain.PollOutcome
	err := s.withSession(id, func(sess *domain.Session) error {
		var err error
		outcome, err = s.pipeline.RetryAll(ctx, sess)
		return err
	})
	return outcome, err
}

func (s *dashboardService) Results(ctx context.Context, id uuid.UUID) (*ResultsView, error) {
	var view *ResultsView
	err := s.withSession(id, func(sess *domain.Session) error {
		view = s.pipeline.Results(sess)
		return nil
	})
	return view, err
}

func (s *dashboardService) Export(ctx context.Context, id uuid.UUID, format domain.ExportFormat) (*ExportFile, error) {
	var file *ExportFile
	err := s.withSession(id, func(sess *domain.Session) error {
		var err error
		file, err = s.pipeline.Export(sess, format)
		return err
	})
	return file, err
}

// withSession runs fn while holding the session exclusively.
func (s *dashboardService) withSession(id uuid.UUID, fn func(*domain.Session) error) error {
	sess, release, err := s.store.Acquire(id)
	if err != nil {
		return err
	}
	defer release()
	return fn(sess)
}
