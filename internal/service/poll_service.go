package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"docdash/internal/domain"
	"docdash/internal/metrics"
	"docdash/internal/port"
)

// PollService fetches analysis results for pending object keys.
type PollService interface {
	// PollAll runs passes over the active keys of pending until none are
	// left or the attempt budget is spent. The budget is cumulative: a later
	// call resumes with whatever pending.AttemptsUsed leaves. Resolved and
	// failed keys are never fetched. The outcome is always non-nil; the
	// error is set only when ctx ended the run early.
	PollAll(ctx context.Context, pending *domain.PendingSet, maxAttempts int, retryDelay time.Duration) (*domain.PollOutcome, error)
}

// SleepFunc blocks for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

type pollService struct {
	fetcher port.ResultFetcher
	metrics *metrics.PipelineMetrics
	logger  *zap.Logger
	sleep   SleepFunc
}

// PollOption customizes a PollService.
type PollOption func(*pollService)

// WithSleep replaces the wait between passes (for testing).
func WithSleep(fn SleepFunc) PollOption {
	return func(s *pollService) { s.sleep = fn }
}

// NewPollService creates a new PollService implementation.
func NewPollService(fetcher port.ResultFetcher, m *metrics.PipelineMetrics, logger *zap.Logger, opts ...PollOption) PollService {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &pollService{
		fetcher: fetcher,
		metrics: m,
		logger:  logger.Named("poll"),
		sleep:   sleepContext,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *pollService) PollAll(ctx context.Context, pending *domain.PendingSet, maxAttempts int, retryDelay time.Duration) (*domain.PollOutcome, error) {
	start := time.Now()
	passes, requests := 0, 0
	var runErr error

	for runErr == nil {
		active := pending.Active()
		if len(active) == 0 || pending.Remaining(maxAttempts) == 0 {
			break
		}
		if passes > 0 {
			if err := s.sleep(ctx, retryDelay); err != nil {
				runErr = err
				break
			}
		}

		pending.AttemptsUsed++
		passes++
		for _, key := range active {
			if err := ctx.Err(); err != nil {
				runErr = err
				break
			}
			requests++
			s.pollKey(ctx, pending, key)
		}
		s.logger.Debug("poll pass complete",
			zap.Int("attempt", pending.AttemptsUsed),
			zap.Int("max_attempts", maxAttempts),
			zap.Int("keys", len(active)),
		)
	}

	outcome := pending.Outcome(maxAttempts)
	outcome.Passes = passes
	outcome.Requests = requests
	outcome.Canceled = runErr != nil
	s.metrics.ObservePollRun(passes, time.Since(start), outcome.BudgetExhausted)

	fields := []zap.Field{
		zap.Int("passes", passes),
		zap.Int("requests", requests),
		zap.Int("resolved", outcome.Count(domain.KeyStateResolved)),
		zap.Int("still_pending", outcome.Count(domain.KeyStateStillPending)),
		zap.Int("failed", outcome.Count(domain.KeyStateFailed)),
		zap.Int("attempts_remaining", outcome.AttemptsRemaining),
	}
	switch {
	case runErr != nil:
		s.logger.Info("poll run interrupted", append(fields, zap.Error(runErr))...)
	case outcome.BudgetExhausted:
		s.logger.Warn("poll budget exhausted with keys still pending", fields...)
	default:
		s.logger.Info("poll run finished", fields...)
	}
	return outcome, runErr
}

// pollKey fetches one key and records the classification on pending.
func (s *pollService) pollKey(ctx context.Context, pending *domain.PendingSet, key string) {
	resp, err := s.fetcher.GetResult(ctx, key)
	if err != nil {
		// Transport errors spend budget but leave the key pollable.
		pending.NoteError(key, transportReason(err))
		s.metrics.ObservePollRequest(metrics.PollResultTransport)
		s.logger.Warn("result fetch failed", zap.String("key", key), zap.Error(err))
		return
	}

	switch resp.StatusCode {
	case http.StatusOK:
		result, err := decodeResult(resp.Body, key)
		if err != nil {
			pending.Fail(key, &domain.PollFailure{
				Kind:       domain.FailureMalformed,
				StatusCode: resp.StatusCode,
				Body:       snippet(resp.Body),
				Reason:     err.Error(),
			})
			s.metrics.ObservePollRequest(metrics.PollResultMalformed)
			s.logger.Warn("malformed result body", zap.String("key", key), zap.Error(err))
			return
		}
		pending.Resolve(key, result)
		s.metrics.ObservePollRequest(metrics.PollResultResolved)
		s.logger.Info("result resolved", zap.String("key", key), zap.String("document_id", result.DocumentID))
	case http.StatusNotFound:
		s.metrics.ObservePollRequest(metrics.PollResultNotReady)
	default:
		pending.Fail(key, &domain.PollFailure{
			Kind:       domain.FailureStatus,
			StatusCode: resp.StatusCode,
			Body:       snippet(resp.Body),
		})
		s.metrics.ObservePollRequest(metrics.PollResultStatus)
		s.logger.Warn("unexpected result status",
			zap.String("key", key),
			zap.Int("status", resp.StatusCode),
			zap.String("url", resp.URL),
		)
	}
}

// decodeResult parses a results body. A missing documentId falls back to key.
func decodeResult(body []byte, key string) (*domain.AnalysisResult, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return nil, fmt.Errorf("decoding result: expected a JSON object")
	}
	var result domain.AnalysisResult
	if err := json.Unmarshal(trimmed, &result); err != nil {
		return nil, fmt.Errorf("decoding result: %w", err)
	}
	if result.DocumentID == "" {
		result.DocumentID = key
	}
	return &result, nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
