package main

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const resultBody = `{
	"documentId": "doc-1",
	"classifiedData": "invoice",
	"classificationTimestamp": 1714557600000,
	"structuredFields": {"po_number": "PO-9", "sku": ["A", "B"]}
}`

// fakeGateway accepts every PUT and answers GETs with 404 until notReady
// calls have been served.
func fakeGateway(t *testing.T, notReady int32) *httptest.Server {
	t.Helper()
	var gets int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodPut:
			w.WriteHeader(http.StatusOK)
		case http.MethodGet:
			if atomic.AddInt32(&gets, 1) <= notReady {
				w.WriteHeader(http.StatusNotFound)
				return
			}
			_, _ = w.Write([]byte(resultBody))
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func setEnv(t *testing.T, baseURL string) {
	t.Helper()
	t.Setenv("DOCDASH_GATEWAY_MODE", "http")
	t.Setenv("DOCDASH_GATEWAY_BASE_URL", baseURL)
	t.Setenv("DOCDASH_GATEWAY_BUCKET_PREFIX", "ocr")
	t.Setenv("DOCDASH_POLL_MAX_ATTEMPTS", "3")
	t.Setenv("DOCDASH_POLL_RETRY_DELAY", "0s")
	t.Setenv("DOCDASH_POLL_POST_UPLOAD_DELAY", "0s")
	t.Setenv("DOCDASH_EXPORT_TIMEZONE", "UTC")
	t.Setenv("DOCDASH_LOG_LEVEL", "error")
	t.Setenv("DOCDASH_RESILIENCE_RATE_PER_SECOND", "1000")
	t.Setenv("DOCDASH_RESILIENCE_BURST", "100")
}

func writeInput(t *testing.T, dir, name string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte("%PDF-1.4 test"), 0o600))
	return path
}

func TestRun_UploadsPollsAndWritesCSV(t *testing.T) {
	srv := fakeGateway(t, 1)
	setEnv(t, srv.URL)
	dir := t.TempDir()
	in := writeInput(t, dir, "inv1.pdf")
	out := filepath.Join(dir, "results.csv")

	var stdout, stderr bytes.Buffer
	code := run(context.Background(), []string{"--label", "Bungasari", "--out", out, in}, &stdout, &stderr)

	require.Equal(t, exitOK, code, stderr.String())
	assert.Contains(t, stdout.String(), "Bungasari/inv1.pdf")
	assert.Contains(t, stdout.String(), "1 resolved")

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	csv := string(data)
	assert.Contains(t, csv, "po_number")
	assert.Equal(t, 3, strings.Count(csv, "\n"), "header plus one row per line item")
}

func TestRun_WritesXLSXByExtension(t *testing.T) {
	srv := fakeGateway(t, 0)
	setEnv(t, srv.URL)
	dir := t.TempDir()
	in := writeInput(t, dir, "inv1.pdf")
	out := filepath.Join(dir, "results.xlsx")

	var stdout, stderr bytes.Buffer
	code := run(context.Background(), []string{"-l", "Bungasari", "-o", out, in}, &stdout, &stderr)

	require.Equal(t, exitOK, code, stderr.String())
	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(data, []byte("PK")), "xlsx is a zip archive")
}

func TestRun_ValidationErrorsExitOne(t *testing.T) {
	srv := fakeGateway(t, 0)
	setEnv(t, srv.URL)
	dir := t.TempDir()
	in := writeInput(t, dir, "inv1.pdf")

	tests := []struct {
		name string
		args []string
	}{
		{"missing label", []string{in}},
		{"no files", []string{"--label", "Acme"}},
		{"unreadable file", []string{"--label", "Acme", filepath.Join(dir, "missing.pdf")}},
		{"unsupported output", []string{"--label", "Acme", "--out", "results.txt", in}},
		{"unknown flag", []string{"--bogus"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var stdout, stderr bytes.Buffer
			code := run(context.Background(), tt.args, &stdout, &stderr)
			assert.Equal(t, exitInvalid, code)
			assert.Contains(t, stderr.String(), "docdash:")
		})
	}
}

func TestRun_BackendTroubleStillExitsZero(t *testing.T) {
	srv := fakeGateway(t, 100)
	setEnv(t, srv.URL)
	dir := t.TempDir()
	in := writeInput(t, dir, "inv1.pdf")

	var stdout, stderr bytes.Buffer
	code := run(context.Background(), []string{"--label", "Acme", "--out", filepath.Join(dir, "r.csv"), in}, &stdout, &stderr)

	assert.Equal(t, exitOK, code)
	assert.Contains(t, stdout.String(), "attempt budget exhausted")
	assert.Contains(t, stderr.String(), "no resolved documents yet")
}

func TestRun_NoPollSkipsExport(t *testing.T) {
	srv := fakeGateway(t, 0)
	setEnv(t, srv.URL)
	dir := t.TempDir()
	in := writeInput(t, dir, "inv1.pdf")
	out := filepath.Join(dir, "results.csv")

	var stdout, stderr bytes.Buffer
	code := run(context.Background(), []string{"--label", "Acme", "--no-poll", "--out", out, in}, &stdout, &stderr)

	assert.Equal(t, exitOK, code)
	assert.NoFileExists(t, out)
	assert.Contains(t, stdout.String(), "accepted")
}

func TestExportFormat(t *testing.T) {
	f, err := exportFormat("")
	require.NoError(t, err)
	assert.Equal(t, "csv", string(f))

	f, err = exportFormat("Out.XLSX")
	require.NoError(t, err)
	assert.Equal(t, "xlsx", string(f))

	_, err = exportFormat("out.json")
	assert.True(t, isValidation(err))
}
