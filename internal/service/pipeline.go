package service

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"docdash/internal/config"
	"docdash/internal/csvexport"
	"docdash/internal/domain"
	"docdash/internal/normalize"
	"docdash/internal/xlsxexport"
)

// Content types of exported files.
const (
	ContentTypeCSV  = "text/csv; charset=utf-8"
	ContentTypeXLSX = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

// UploadFile is one file of an upload batch.
type UploadFile struct {
	Filename string
	Body     []byte
}

// BatchResult reports an upload batch and, when requested, the polling run
// that followed it.
type BatchResult struct {
	Uploads []domain.UploadOutcome `json:"uploads"`
	Poll    *domain.PollOutcome    `json:"poll,omitempty"`
}

// ResultsView is the rendered state of a session's resolved documents.
type ResultsView struct {
	Label    string       `json:"label" msgpack:"label"`
	Table    domain.Table `json:"table" msgpack:"table"`
	Resolved int          `json:"resolved" msgpack:"resolved"`
	Pending  int          `json:"pending" msgpack:"pending"`
	Failed   int          `json:"failed" msgpack:"failed"`
}

// ExportFile is a rendered download.
type ExportFile struct {
	Filename    string
	ContentType string
	Data        []byte
}

// Pipeline runs submit, wait, poll and normalize against one session. It
// does not serialize access; callers hand it one session at a time.
type Pipeline struct {
	upload     UploadService
	poll       PollService
	normalizer *normalize.Normalizer
	profile    *normalize.Profile
	pollCfg    config.PollConfig
	uploadCfg  config.UploadConfig
	logger     *zap.Logger
	sleep      SleepFunc
	now        func() time.Time
}

// PipelineOption customizes a Pipeline.
type PipelineOption func(*Pipeline)

// WithPostUploadSleep replaces the wait between uploading and polling (for testing).
func WithPostUploadSleep(fn SleepFunc) PipelineOption {
	return func(p *Pipeline) { p.sleep = fn }
}

// WithClock replaces the clock used for export filenames (for testing).
func WithClock(now func() time.Time) PipelineOption {
	return func(p *Pipeline) { p.now = now }
}

// NewPipeline creates a Pipeline. profile may be nil.
func NewPipeline(
	upload UploadService,
	poll PollService,
	normalizer *normalize.Normalizer,
	profile *normalize.Profile,
	pollCfg config.PollConfig,
	uploadCfg config.UploadConfig,
	logger *zap.Logger,
	opts ...PipelineOption,
) *Pipeline {
	if logger == nil {
		logger = zap.NewNop()
	}
	p := &Pipeline{
		upload:     upload,
		poll:       poll,
		normalizer: normalizer,
		profile:    profile,
		pollCfg:    pollCfg,
		uploadCfg:  uploadCfg,
		logger:     logger.Named("pipeline"),
		sleep:      sleepContext,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// MaxAttempts returns the configured attempt budget.
func (p *Pipeline) MaxAttempts() int {
	return p.pollCfg.MaxAttempts
}

// ValidateBatch checks a batch before any network call.
func (p *Pipeline) ValidateBatch(label string, files []UploadFile) error {
	if err := domain.ValidateLabel(label); err != nil {
		return err
	}
	if len(files) == 0 {
		return domain.ErrNoFiles
	}
	if p.uploadCfg.MaxFiles > 0 && len(files) > p.uploadCfg.MaxFiles {
		return domain.ErrTooManyFiles
	}
	if limit := p.uploadCfg.MaxFileSizeBytes(); limit > 0 {
		for _, f := range files {
			if int64(len(f.Body)) > limit {
				return fmt.Errorf("%s: %w", f.Filename, domain.ErrFileTooLarge)
			}
		}
	}
	return nil
}

// UploadBatch starts a new batch on sess and submits every file. When
// pollAfter is set and at least one upload was accepted, it waits the
// post-upload delay and polls.
func (p *Pipeline) UploadBatch(ctx context.Context, sess *domain.Session, label string, files []UploadFile, pollAfter bool) (*BatchResult, error) {
	if err := p.ValidateBatch(label, files); err != nil {
		return nil, err
	}

	sess.StartBatch(label)
	targets := make([]domain.UploadTarget, 0, len(files))
	for _, f := range files {
		targets = append(targets, domain.NewUploadTarget(label, f.Filename, f.Body))
	}
	sess.Uploads = p.upload.SubmitBatch(ctx, sess.Pending, targets)

	accepted := sess.Pending.Len()
	p.logger.Info("upload batch submitted",
		zap.String("session_id", sess.ID.String()),
		zap.String("label", label),
		zap.Int("files", len(files)),
		zap.Int("accepted", accepted),
	)

	result := &BatchResult{Uploads: sess.Uploads}
	if !pollAfter || accepted == 0 {
		return result, nil
	}

	if err := p.sleep(ctx, p.pollCfg.PostUploadDelay); err != nil {
		return result, err
	}
	outcome, err := p.poll.PollAll(ctx, sess.Pending, p.pollCfg.MaxAttempts, p.pollCfg.RetryDelay)
	result.Poll = outcome
	return result, err
}

// Poll continues polling sess with whatever budget remains.
func (p *Pipeline) Poll(ctx context.Context, sess *domain.Session) (*domain.PollOutcome, error) {
	if sess.Pending.Len() == 0 {
		return nil, domain.ErrNothingToPoll
	}
	return p.poll.PollAll(ctx, sess.Pending, p.pollCfg.MaxAttempts, p.pollCfg.RetryDelay)
}

// RetryAll marks every key unresolved, restores the full budget and polls.
func (p *Pipeline) RetryAll(ctx context.Context, sess *domain.Session) (*domain.PollOutcome, error) {
	if sess.Pending.Len() == 0 {
		return nil, domain.ErrNothingToPoll
	}
	sess.Pending.ResetAll()
	p.logger.Info("retrying all keys",
		zap.String("session_id", sess.ID.String()),
		zap.Int("keys", sess.Pending.Len()),
	)
	return p.poll.PollAll(ctx, sess.Pending, p.pollCfg.MaxAttempts, p.pollCfg.RetryDelay)
}

// Rows normalizes the resolved documents of sess in upload order.
func (p *Pipeline) Rows(sess *domain.Session) []domain.ConsolidatedRow {
	return p.normalizer.NormalizeAll(sess.Pending.Results())
}

// Results renders the resolved documents of sess as a table.
func (p *Pipeline) Results(sess *domain.Session) *ResultsView {
	outcome := sess.Pending.Outcome(p.pollCfg.MaxAttempts)
	return &ResultsView{
		Label:    sess.Label,
		Table:    normalize.BuildTable(p.Rows(sess), p.profile),
		Resolved: outcome.Count(domain.KeyStateResolved),
		Pending:  outcome.Count(domain.KeyStateStillPending),
		Failed:   outcome.Count(domain.KeyStateFailed),
	}
}

// Export renders the resolved documents of sess in format.
func (p *Pipeline) Export(sess *domain.Session, format domain.ExportFormat) (*ExportFile, error) {
	rows := p.Rows(sess)
	if len(rows) == 0 {
		return nil, domain.ErrNoResults
	}
	table := normalize.BuildTable(rows, p.profile)

	var buf bytes.Buffer
	file := &ExportFile{Filename: csvexport.BuildFilename(sess.Label, string(format), p.now())}
	switch format {
	case domain.ExportFormatCSV:
		if err := csvexport.WriteTable(&buf, table); err != nil {
			return nil, fmt.Errorf("writing csv: %w", err)
		}
		file.ContentType = ContentTypeCSV
	case domain.ExportFormatXLSX:
		if err := xlsxexport.WriteTable(&buf, table); err != nil {
			return nil, fmt.Errorf("writing xlsx: %w", err)
		}
		file.ContentType = ContentTypeXLSX
	default:
		return nil, domain.ErrUnsupportedExport
	}
	file.Data = buf.Bytes()
	return file, nil
}

// Summary describes sess.
func (p *Pipeline) Summary(sess *domain.Session) *domain.SessionSummary {
	return &domain.SessionSummary{
		ID:                sess.ID,
		Label:             sess.Label,
		Uploads:           sess.Uploads,
		Entries:           sess.Pending.Entries(),
		AttemptsUsed:      sess.Pending.AttemptsUsed,
		AttemptsRemaining: sess.Pending.Remaining(p.pollCfg.MaxAttempts),
		CreatedAt:         sess.CreatedAt,
		UpdatedAt:         sess.UpdatedAt,
	}
}
