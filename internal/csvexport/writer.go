package csvexport

import (
	"encoding/csv"
	"fmt"
	"io"
	"regexp"
	"strings"
	"time"

	"docdash/internal/domain"
)

// UTF-8 BOM bytes for Excel compatibility on Windows.
var BOM = []byte{0xEF, 0xBB, 0xBF}

// Writer wraps csv.Writer for exporting consolidated tables as CSV.
type Writer struct {
	csv *csv.Writer
}

// NewWriter creates a Writer that writes CSV to w.
func NewWriter(w io.Writer) *Writer {
	return &Writer{csv: csv.NewWriter(w)}
}

// WriteHeader writes the table's column row.
func (w *Writer) WriteHeader(table domain.Table) error {
	return w.csv.Write(table.Columns)
}

// WriteRows writes the table's data rows. Short rows are padded to the
// header width so every record has the same field count.
func (w *Writer) WriteRows(table domain.Table) error {
	width := len(table.Columns)
	for _, row := range table.Rows {
		if len(row) < width {
			padded := make([]string, width)
			copy(padded, row)
			row = padded
		}
		if err := w.csv.Write(row); err != nil {
			return err
		}
	}
	return nil
}

// Flush flushes the underlying csv.Writer buffer.
func (w *Writer) Flush() {
	w.csv.Flush()
}

// Error returns any error from the underlying csv.Writer.
func (w *Writer) Error() error {
	return w.csv.Error()
}

// WriteTable writes the BOM, header and rows of table to out and flushes.
func WriteTable(out io.Writer, table domain.Table) error {
	if _, err := out.Write(BOM); err != nil {
		return err
	}
	w := NewWriter(out)
	if err := w.WriteHeader(table); err != nil {
		return err
	}
	if err := w.WriteRows(table); err != nil {
		return err
	}
	w.Flush()
	return w.Error()
}

// nonAlphanumeric matches characters that are not alphanumeric, hyphen, or underscore.
var nonAlphanumeric = regexp.MustCompile(`[^a-zA-Z0-9_-]+`)

// multiUnderscore matches consecutive underscores.
var multiUnderscore = regexp.MustCompile(`_{2,}`)

// SanitizeFilename cleans a label for use in Content-Disposition.
// Replaces non-alphanumeric chars (except - _) with _, collapses consecutive
// underscores, and truncates to 100 chars.
func SanitizeFilename(name string) string {
	s := nonAlphanumeric.ReplaceAllString(name, "_")
	s = multiUnderscore.ReplaceAllString(s, "_")
	s = strings.Trim(s, "_")
	if len(s) > 100 {
		s = s[:100]
	}
	return s
}

// BuildFilename returns a sanitized download filename.
// Format: {sanitized_label}_{YYYY-MM-DD}.{ext}, with "results" standing in
// for a label that sanitizes to nothing.
func BuildFilename(label, ext string, now time.Time) string {
	sanitized := SanitizeFilename(label)
	if sanitized == "" {
		sanitized = "results"
	}
	return fmt.Sprintf("%s_%s.%s", sanitized, now.Format("2006-01-02"), strings.TrimPrefix(ext, "."))
}
