// Package normalize flattens per-document analysis results into uniform rows
// and renders merged rows as a column-ordered table.
package normalize

import (
	"fmt"
	"strings"
	"time"
	"unicode"

	"github.com/araddon/dateparse"

	"docdash/internal/config"
	"docdash/internal/domain"
)

// InvalidTimestamp replaces classification timestamps that cannot be converted.
const InvalidTimestamp = "Invalid timestamp"

// Options configures value formatting.
type Options struct {
	Location         *time.Location
	DateLayout       string
	TimestampLayout  string
	DateFields       []string
	PreferMonthFirst bool
}

// Normalizer turns AnalysisResults into ConsolidatedRows.
type Normalizer struct {
	loc              *time.Location
	dateLayout       string
	timestampLayout  string
	dateFields       []string
	preferMonthFirst bool
}

// New creates a Normalizer. Zero options fall back to UTC, ISO dates, and
// the delivery/order date fields.
func New(opts Options) *Normalizer {
	n := &Normalizer{
		loc:              opts.Location,
		dateLayout:       opts.DateLayout,
		timestampLayout:  opts.TimestampLayout,
		preferMonthFirst: opts.PreferMonthFirst,
	}
	if n.loc == nil {
		n.loc = time.UTC
	}
	if n.dateLayout == "" {
		n.dateLayout = "2006-01-02"
	}
	if n.timestampLayout == "" {
		n.timestampLayout = "2006-01-02 15:04:05 MST"
	}
	fields := opts.DateFields
	if len(fields) == 0 {
		fields = []string{"delivery_date", "order_date"}
	}
	for _, f := range fields {
		if c := canonical(f); c != "" {
			n.dateFields = append(n.dateFields, c)
		}
	}
	return n
}

// NewFromConfig creates a Normalizer from export settings.
func NewFromConfig(cfg *config.ExportConfig) (*Normalizer, error) {
	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		return nil, fmt.Errorf("loading timezone %q: %w", cfg.Timezone, err)
	}
	return New(Options{
		Location:         loc,
		DateLayout:       cfg.DateLayout,
		TimestampLayout:  cfg.TimestampLayout,
		DateFields:       cfg.DateFields,
		PreferMonthFirst: cfg.PreferMonthFirst,
	}), nil
}

// Normalize flattens one document. Scalar fields repeat on every row, list
// field i lands on row i, and shorter lists are padded with "". A document
// without list fields still yields one row.
func (n *Normalizer) Normalize(result domain.AnalysisResult) []domain.ConsolidatedRow {
	rowCount := 1
	for _, f := range result.Fields.Lists() {
		if len(f.List) > rowCount {
			rowCount = len(f.List)
		}
	}

	classifiedAt := n.FormatTimestamp(result.ClassifiedAt)
	rows := make([]domain.ConsolidatedRow, rowCount)
	for i := range rows {
		values := make([]domain.FieldValue, 0, len(result.Fields))
		for _, f := range result.Fields {
			v := f.Value
			if f.IsList {
				v = ""
				if i < len(f.List) {
					v = f.List[i]
				}
			}
			if n.isDateField(f.Name) {
				v = n.FormatDate(v)
			}
			values = append(values, domain.FieldValue{Name: f.Name, Value: v})
		}
		rows[i] = domain.ConsolidatedRow{
			DocumentID:     result.DocumentID,
			Classification: result.Classification,
			ClassifiedAt:   classifiedAt,
			ItemIndex:      i,
			Values:         values,
		}
	}
	return rows
}

// NormalizeAll normalizes results in order and merges their rows.
func (n *Normalizer) NormalizeAll(results []domain.AnalysisResult) []domain.ConsolidatedRow {
	docs := make([][]domain.ConsolidatedRow, 0, len(results))
	for i := range results {
		docs = append(docs, n.Normalize(results[i]))
	}
	return Merge(docs...)
}

// Merge concatenates per-document rows in argument order. It neither
// deduplicates nor sorts.
func Merge(docs ...[]domain.ConsolidatedRow) []domain.ConsolidatedRow {
	total := 0
	for _, d := range docs {
		total += len(d)
	}
	out := make([]domain.ConsolidatedRow, 0, total)
	for _, d := range docs {
		out = append(out, d...)
	}
	return out
}

// FormatDate reformats a recognizable date to the configured layout and
// returns anything else unchanged.
func (n *Normalizer) FormatDate(s string) (out string) {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return s
	}
	defer func() {
		if r := recover(); r != nil {
			out = s
		}
	}()
	t, err := dateparse.ParseAny(trimmed, dateparse.PreferMonthFirst(n.preferMonthFirst))
	if err != nil {
		return s
	}
	return t.Format(n.dateLayout)
}

// FormatTimestamp renders epoch milliseconds in the configured zone. An
// absent timestamp renders as "", an unconvertible one as InvalidTimestamp.
func (n *Normalizer) FormatTimestamp(ts domain.Timestamp) string {
	if !ts.Valid {
		return ""
	}
	ms, err := ts.EpochMillis()
	if err != nil {
		return InvalidTimestamp
	}
	t := time.UnixMilli(ms).In(n.loc)
	if t.Year() < 1 || t.Year() > 9999 {
		return InvalidTimestamp
	}
	return t.Format(n.timestampLayout)
}

func (n *Normalizer) isDateField(name string) bool {
	c := canonical(name)
	for _, f := range n.dateFields {
		if strings.Contains(c, f) {
			return true
		}
	}
	return false
}

// canonical lowercases name and drops separators, so "Delivery Date",
// "delivery_date" and "deliveryDate" compare equal.
func canonical(name string) string {
	var b strings.Builder
	for _, r := range name {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(unicode.ToLower(r))
		}
	}
	return b.String()
}
