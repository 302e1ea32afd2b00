package service

import (
	"context"
	"net/http"
	"unicode/utf8"

	"go.uber.org/zap"

	"docdash/internal/domain"
	"docdash/internal/metrics"
	"docdash/internal/port"
	"docdash/internal/resilience"
)

const (
	// snippetLimit caps how much of a response body is echoed back to the user.
	snippetLimit = 512

	circuitOpenReason = "storage gateway unavailable: too many recent failures, request not sent"
)

// UploadService pushes files into the backend bucket.
type UploadService interface {
	// Submit writes one target. On acceptance its object key is added to
	// pending (when pending is non-nil). The label is not re-validated.
	Submit(ctx context.Context, pending *domain.PendingSet, target domain.UploadTarget) domain.UploadOutcome
	// SubmitBatch submits every target independently, in order.
	SubmitBatch(ctx context.Context, pending *domain.PendingSet, targets []domain.UploadTarget) []domain.UploadOutcome
}

type uploadService struct {
	uploader port.ObjectUploader
	metrics  *metrics.PipelineMetrics
	logger   *zap.Logger
}

// NewUploadService creates a new UploadService implementation.
func NewUploadService(uploader port.ObjectUploader, m *metrics.PipelineMetrics, logger *zap.Logger) UploadService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &uploadService{
		uploader: uploader,
		metrics:  m,
		logger:   logger.Named("upload"),
	}
}

func (s *uploadService) Submit(ctx context.Context, pending *domain.PendingSet, target domain.UploadTarget) domain.UploadOutcome {
	key := target.ObjectKey()
	outcome := domain.UploadOutcome{
		ObjectKey: key,
		Filename:  target.Filename,
	}

	resp, err := s.uploader.PutObject(ctx, port.PutInput{
		Key:         key,
		Body:        target.Body,
		ContentType: contentTypeFor(target.Body),
	})
	switch {
	case err != nil:
		outcome.Status = domain.UploadStatusTransportFailed
		outcome.Reason = transportReason(err)
		s.logger.Warn("upload transport failure", zap.String("key", key), zap.Error(err))
	case resp.StatusCode == http.StatusOK:
		outcome.Status = domain.UploadStatusAccepted
		outcome.StatusCode = resp.StatusCode
		outcome.RequestURL = resp.URL
		outcome.BodySnippet = snippet(resp.Body)
		if pending != nil {
			pending.Add(key)
		}
		s.logger.Info("upload accepted", zap.String("key", key), zap.Int("bytes", len(target.Body)))
	default:
		outcome.Status = domain.UploadStatusRejected
		outcome.StatusCode = resp.StatusCode
		outcome.RequestURL = resp.URL
		outcome.BodySnippet = snippet(resp.Body)
		s.logger.Warn("upload rejected",
			zap.String("key", key),
			zap.Int("status", resp.StatusCode),
			zap.String("body", outcome.BodySnippet),
		)
	}

	s.metrics.ObserveUpload(string(outcome.Status))
	return outcome
}

func (s *uploadService) SubmitBatch(ctx context.Context, pending *domain.PendingSet, targets []domain.UploadTarget) []domain.UploadOutcome {
	outcomes := make([]domain.UploadOutcome, 0, len(targets))
	for _, t := range targets {
		outcomes = append(outcomes, s.Submit(ctx, pending, t))
	}
	return outcomes
}

// transportReason describes an error that produced no status code. An open
// breaker means the request was never sent.
func transportReason(err error) string {
	if resilience.IsCircuitOpen(err) {
		return circuitOpenReason
	}
	return err.Error()
}

// contentTypeFor sniffs the payload; the object content is the body as-is.
func contentTypeFor(body []byte) string {
	if len(body) == 0 {
		return "application/octet-stream"
	}
	return http.DetectContentType(body)
}

// snippet truncates body to snippetLimit bytes on a rune boundary.
func snippet(body []byte) string {
	if len(body) <= snippetLimit {
		return string(body)
	}
	cut := snippetLimit
	for cut > 0 && !utf8.RuneStart(body[cut]) {
		cut--
	}
	return string(body[:cut]) + "..."
}
