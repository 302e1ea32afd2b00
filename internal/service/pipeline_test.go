package service_test

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"docdash/internal/config"
	"docdash/internal/csvexport"
	"docdash/internal/domain"
	"docdash/internal/normalize"
	"docdash/internal/port"
	"docdash/internal/service"
	"docdash/mocks"
)

func testPollConfig() config.PollConfig {
	return config.PollConfig{
		MaxAttempts:     3,
		RetryDelay:      10 * time.Second,
		PostUploadDelay: 12 * time.Second,
	}
}

func testUploadConfig() config.UploadConfig {
	return config.UploadConfig{MaxFileSizeMB: 1, MaxFiles: 3}
}

type pipelineFixture struct {
	gw       *mocks.MockGateway
	pipeline *service.Pipeline
	sleeps   *sleepRecorder
}

func newPipelineFixture(t *testing.T) *pipelineFixture {
	t.Helper()
	gw := new(mocks.MockGateway)
	sleeps := &sleepRecorder{}
	upload := service.NewUploadService(gw, nil, nil)
	poll := service.NewPollService(gw, nil, nil, service.WithSleep(sleeps.sleep))
	p := service.NewPipeline(
		upload, poll,
		normalize.New(normalize.Options{Location: time.UTC}),
		nil,
		testPollConfig(), testUploadConfig(), nil,
		service.WithPostUploadSleep(sleeps.sleep),
		service.WithClock(func() time.Time { return time.Date(2025, 3, 9, 8, 0, 0, 0, time.UTC) }),
	)
	return &pipelineFixture{gw: gw, pipeline: p, sleeps: sleeps}
}

func files(names ...string) []service.UploadFile {
	out := make([]service.UploadFile, 0, len(names))
	for _, n := range names {
		out = append(out, service.UploadFile{Filename: n, Body: []byte("content of " + n)})
	}
	return out
}

func docBody(id string, skus ...string) string {
	list := ""
	for i, s := range skus {
		if i > 0 {
			list += ","
		}
		list += `"` + s + `"`
	}
	return `{"documentId": "` + id + `", "classifiedData": "po", "structuredFields": {"vendor": "Acme", "sku": [` + list + `]}}`
}

func TestPipeline_ValidateBatch(t *testing.T) {
	f := newPipelineFixture(t)

	tests := []struct {
		name  string
		label string
		files []service.UploadFile
		want  error
	}{
		{"missing label", "  ", files("a.pdf"), domain.ErrMissingLabel},
		{"no files", "acme", nil, domain.ErrNoFiles},
		{"too many files", "acme", files("a", "b", "c", "d"), domain.ErrTooManyFiles},
		{"file too large", "acme", []service.UploadFile{{Filename: "big.pdf", Body: make([]byte, 1024*1024+1)}}, domain.ErrFileTooLarge},
		{"valid", "acme", files("a.pdf"), nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := f.pipeline.ValidateBatch(tt.label, tt.files)
			if tt.want == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestPipeline_UploadBatch_MissingLabelMakesNoCalls(t *testing.T) {
	f := newPipelineFixture(t)
	sess := domain.NewSession()

	_, err := f.pipeline.UploadBatch(context.Background(), sess, "", files("a.pdf"), true)
	assert.ErrorIs(t, err, domain.ErrMissingLabel)
	f.gw.AssertNotCalled(t, "PutObject", mock.Anything, mock.Anything)
}

func TestPipeline_UploadBatch_WaitsThenPolls(t *testing.T) {
	f := newPipelineFixture(t)
	sess := domain.NewSession()

	f.gw.On("PutObject", mock.Anything, putFor("acme/a.pdf")).Return(&port.GatewayResponse{StatusCode: 200}, nil)
	f.gw.On("PutObject", mock.Anything, putFor("acme/b.pdf")).Return(&port.GatewayResponse{StatusCode: 403}, nil)
	f.gw.On("GetResult", mock.Anything, "acme/a.pdf").Return(ready(docBody("acme/a.pdf", "S-1", "S-2")), nil)

	result, err := f.pipeline.UploadBatch(context.Background(), sess, "acme", files("a.pdf", "b.pdf"), true)
	require.NoError(t, err)

	require.Len(t, result.Uploads, 2)
	assert.True(t, result.Uploads[0].Accepted())
	assert.Equal(t, domain.UploadStatusRejected, result.Uploads[1].Status)
	require.NotNil(t, result.Poll)
	assert.Equal(t, 1, result.Poll.Count(domain.KeyStateResolved))
	assert.Equal(t, []time.Duration{12 * time.Second}, f.sleeps.delays)
	assert.Equal(t, "acme", sess.Label)

	view := f.pipeline.Results(sess)
	assert.Equal(t, 1, view.Resolved)
	require.Len(t, view.Table.Rows, 2)
	assert.Equal(t, []string{"Document ID", "Classification", "Classified At", "Item #", "vendor", "sku"}, view.Table.Columns)
	assert.Equal(t, []string{"acme/a.pdf", "po", "", "2", "Acme", "S-2"}, view.Table.Rows[1])
}

func TestPipeline_UploadBatch_NothingAcceptedSkipsPolling(t *testing.T) {
	f := newPipelineFixture(t)
	sess := domain.NewSession()

	f.gw.On("PutObject", mock.Anything, mock.Anything).Return(&port.GatewayResponse{StatusCode: 500}, nil)

	result, err := f.pipeline.UploadBatch(context.Background(), sess, "acme", files("a.pdf"), true)
	require.NoError(t, err)
	assert.Nil(t, result.Poll)
	assert.Empty(t, f.sleeps.delays)
	f.gw.AssertNotCalled(t, "GetResult", mock.Anything, mock.Anything)
}

func TestPipeline_NewBatchResetsSession(t *testing.T) {
	f := newPipelineFixture(t)
	sess := domain.NewSession()

	f.gw.On("PutObject", mock.Anything, mock.Anything).Return(&port.GatewayResponse{StatusCode: 200}, nil)
	f.gw.On("GetResult", mock.Anything, mock.Anything).Return(notReady(), nil)

	_, err := f.pipeline.UploadBatch(context.Background(), sess, "first", files("a.pdf"), true)
	require.NoError(t, err)
	assert.Equal(t, 3, sess.Pending.AttemptsUsed)

	_, err = f.pipeline.UploadBatch(context.Background(), sess, "second", files("b.pdf"), false)
	require.NoError(t, err)
	assert.Equal(t, []string{"second/b.pdf"}, sess.Pending.Keys())
	assert.Equal(t, 0, sess.Pending.AttemptsUsed)
	require.Len(t, sess.Uploads, 1)
}

func TestPipeline_PollRequiresUploads(t *testing.T) {
	f := newPipelineFixture(t)
	sess := domain.NewSession()

	_, err := f.pipeline.Poll(context.Background(), sess)
	assert.ErrorIs(t, err, domain.ErrNothingToPoll)
	_, err = f.pipeline.RetryAll(context.Background(), sess)
	assert.ErrorIs(t, err, domain.ErrNothingToPoll)
}

func TestPipeline_RetryAllRetriesFailedKeys(t *testing.T) {
	f := newPipelineFixture(t)
	sess := domain.NewSession()
	sess.StartBatch("acme")
	sess.Pending.Add("acme/a.pdf")

	f.gw.On("GetResult", mock.Anything, "acme/a.pdf").Return(&port.GatewayResponse{StatusCode: 502}, nil).Once()
	f.gw.On("GetResult", mock.Anything, "acme/a.pdf").Return(ready(docBody("acme/a.pdf", "S-1")), nil).Once()

	outcome, err := f.pipeline.Poll(context.Background(), sess)
	require.NoError(t, err)
	assert.Equal(t, 1, outcome.Count(domain.KeyStateFailed))

	outcome, err = f.pipeline.Poll(context.Background(), sess)
	require.NoError(t, err)
	assert.Equal(t, 0, outcome.Requests)

	outcome, err = f.pipeline.RetryAll(context.Background(), sess)
	require.NoError(t, err)
	assert.Equal(t, 1, outcome.Count(domain.KeyStateResolved))
	assert.Equal(t, 1, outcome.AttemptsUsed)
}

func TestPipeline_RowsFollowUploadOrder(t *testing.T) {
	f := newPipelineFixture(t)
	sess := domain.NewSession()
	sess.StartBatch("acme")
	sess.Pending.Add("acme/a.pdf")
	sess.Pending.Add("acme/b.pdf")

	// b resolves on the first pass, a only on the second.
	f.gw.On("GetResult", mock.Anything, "acme/a.pdf").Return(notReady(), nil).Once()
	f.gw.On("GetResult", mock.Anything, "acme/a.pdf").Return(ready(docBody("acme/a.pdf", "A1", "A2")), nil).Once()
	f.gw.On("GetResult", mock.Anything, "acme/b.pdf").Return(ready(docBody("acme/b.pdf")), nil).Once()

	_, err := f.pipeline.Poll(context.Background(), sess)
	require.NoError(t, err)

	rows := f.pipeline.Rows(sess)
	require.Len(t, rows, 3)
	assert.Equal(t, "acme/a.pdf", rows[0].DocumentID)
	assert.Equal(t, "acme/a.pdf", rows[1].DocumentID)
	assert.Equal(t, "acme/b.pdf", rows[2].DocumentID)
	assert.Equal(t, "", rows[2].Get("sku"))
	assert.Equal(t, "Acme", rows[2].Get("vendor"))
}

func resolvedSession(t *testing.T, f *pipelineFixture) *domain.Session {
	t.Helper()
	sess := domain.NewSession()
	sess.StartBatch("Acme Corp")
	sess.Pending.Add("Acme Corp/a.pdf")
	f.gw.On("GetResult", mock.Anything, "Acme Corp/a.pdf").Return(ready(docBody("Acme Corp/a.pdf", "S-1")), nil)
	_, err := f.pipeline.Poll(context.Background(), sess)
	require.NoError(t, err)
	return sess
}

func TestPipeline_ExportCSV(t *testing.T) {
	f := newPipelineFixture(t)
	sess := resolvedSession(t, f)

	file, err := f.pipeline.Export(sess, domain.ExportFormatCSV)
	require.NoError(t, err)
	assert.Equal(t, "Acme_Corp_2025-03-09.csv", file.Filename)
	assert.Equal(t, service.ContentTypeCSV, file.ContentType)
	assert.True(t, bytes.HasPrefix(file.Data, csvexport.BOM))
	assert.Contains(t, string(file.Data), "Document ID,Classification,Classified At,Item #,vendor,sku")
}

func TestPipeline_ExportXLSX(t *testing.T) {
	f := newPipelineFixture(t)
	sess := resolvedSession(t, f)

	file, err := f.pipeline.Export(sess, domain.ExportFormatXLSX)
	require.NoError(t, err)
	assert.Equal(t, "Acme_Corp_2025-03-09.xlsx", file.Filename)
	assert.Equal(t, service.ContentTypeXLSX, file.ContentType)

	wb, err := excelize.OpenReader(bytes.NewReader(file.Data))
	require.NoError(t, err)
	defer func() { _ = wb.Close() }()
	rows, err := wb.GetRows("Results")
	require.NoError(t, err)
	assert.Len(t, rows, 2)
}

func TestPipeline_ExportErrors(t *testing.T) {
	f := newPipelineFixture(t)

	_, err := f.pipeline.Export(domain.NewSession(), domain.ExportFormatCSV)
	assert.ErrorIs(t, err, domain.ErrNoResults)

	sess := resolvedSession(t, f)
	_, err = f.pipeline.Export(sess, domain.ExportFormat("pdf"))
	assert.ErrorIs(t, err, domain.ErrUnsupportedExport)
}

func TestPipeline_Summary(t *testing.T) {
	f := newPipelineFixture(t)
	sess := resolvedSession(t, f)

	summary := f.pipeline.Summary(sess)
	assert.Equal(t, sess.ID, summary.ID)
	assert.Equal(t, "Acme Corp", summary.Label)
	assert.Equal(t, 1, summary.AttemptsUsed)
	assert.Equal(t, 2, summary.AttemptsRemaining)
	require.Len(t, summary.Entries, 1)
	assert.True(t, summary.Entries[0].Resolved)
}
