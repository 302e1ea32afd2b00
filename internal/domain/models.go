package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// UploadTarget is one file destined for the backend bucket.
type UploadTarget struct {
	Label    string
	Filename string
	Body     []byte
}

// NewUploadTarget creates an UploadTarget for the given label and file.
func NewUploadTarget(label, filename string, body []byte) UploadTarget {
	return UploadTarget{Label: label, Filename: filename, Body: body}
}

// ObjectKey returns the normalized label followed by the filename.
// It is derived from the current field values on every call.
func (t UploadTarget) ObjectKey() string {
	return NormalizeLabel(t.Label) + t.Filename
}

// NormalizeLabel appends a trailing separator to a non-empty label.
func NormalizeLabel(label string) string {
	if label == "" || strings.HasSuffix(label, "/") {
		return label
	}
	return label + "/"
}

// ValidateLabel reports ErrMissingLabel for an empty or blank label.
func ValidateLabel(label string) error {
	if strings.TrimSpace(label) == "" {
		return ErrMissingLabel
	}
	return nil
}

// UploadOutcome reports how a single upload ended.
type UploadOutcome struct {
	ObjectKey   string       `json:"object_key" msgpack:"object_key"`
	Filename    string       `json:"filename" msgpack:"filename"`
	RequestURL  string       `json:"request_url,omitempty" msgpack:"request_url,omitempty"`
	Status      UploadStatus `json:"status" msgpack:"status"`
	StatusCode  int          `json:"status_code,omitempty" msgpack:"status_code,omitempty"`
	BodySnippet string       `json:"body_snippet,omitempty" msgpack:"body_snippet,omitempty"`
	Reason      string       `json:"reason,omitempty" msgpack:"reason,omitempty"`
}

// Accepted reports whether the backend confirmed the write.
func (o UploadOutcome) Accepted() bool {
	return o.Status == UploadStatusAccepted
}

// AnalysisResult is a resolved document's payload as returned by the results endpoint.
type AnalysisResult struct {
	DocumentID     string    `json:"documentId"`
	Classification string    `json:"classifiedData,omitempty"`
	ClassifiedAt   Timestamp `json:"classificationTimestamp,omitempty"`
	Fields         FieldSet  `json:"structuredFields"`
}

// ConsolidatedRow is one (document, line item) pair flattened for display and export.
type ConsolidatedRow struct {
	DocumentID     string       `json:"document_id" msgpack:"document_id"`
	Classification string       `json:"classification" msgpack:"classification"`
	ClassifiedAt   string       `json:"classified_at" msgpack:"classified_at"`
	ItemIndex      int          `json:"item_index" msgpack:"item_index"`
	Values         []FieldValue `json:"values" msgpack:"values"`
}

// FieldValue is a named cell of a ConsolidatedRow.
type FieldValue struct {
	Name  string `json:"name" msgpack:"name"`
	Value string `json:"value" msgpack:"value"`
}

// Get returns the value of the named field, or "" if the row does not carry it.
func (r ConsolidatedRow) Get(name string) string {
	for _, v := range r.Values {
		if v.Name == name {
			return v.Value
		}
	}
	return ""
}

// Table is the column-ordered rendering of merged rows.
type Table struct {
	Columns []string   `json:"columns" msgpack:"columns"`
	Rows    [][]string `json:"rows" msgpack:"rows"`
}

// Session is the per-user state carried across pipeline invocations.
type Session struct {
	ID        uuid.UUID       `json:"id"`
	Label     string          `json:"label"`
	Pending   *PendingSet     `json:"-"`
	Uploads   []UploadOutcome `json:"uploads"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// NewSession creates an empty session.
func NewSession() *Session {
	now := time.Now()
	return &Session{
		ID:        uuid.New(),
		Pending:   NewPendingSet(),
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// StartBatch discards the previous batch: pending keys, results, attempts and upload outcomes.
func (s *Session) StartBatch(label string) {
	s.Label = label
	s.Pending.Reset()
	s.Uploads = nil
	s.UpdatedAt = time.Now()
}

// SessionSummary is the JSON view of a session.
type SessionSummary struct {
	ID                uuid.UUID       `json:"id"`
	Label             string          `json:"label"`
	Uploads           []UploadOutcome `json:"uploads"`
	Entries           []PendingEntry  `json:"entries"`
	AttemptsUsed      int             `json:"attempts_used"`
	AttemptsRemaining int             `json:"attempts_remaining"`
	CreatedAt         time.Time       `json:"created_at"`
	UpdatedAt         time.Time       `json:"updated_at"`
}
