package normalize

import (
	"strconv"

	"docdash/internal/domain"
)

// Fixed leading columns of every table.
const (
	ColumnDocumentID     = "Document ID"
	ColumnClassification = "Classification"
	ColumnClassifiedAt   = "Classified At"
	ColumnItem           = "Item #"
)

var baseColumns = []string{ColumnDocumentID, ColumnClassification, ColumnClassifiedAt, ColumnItem}

// BuildTable lays rows out under a common header. Profile columns come first,
// then any remaining fields in the order they first appear. Rows missing a
// column get "".
func BuildTable(rows []domain.ConsolidatedRow, profile *Profile) domain.Table {
	var fields, headers []string
	placed := make(map[string]bool)

	if profile != nil {
		for _, c := range profile.Columns {
			fields = append(fields, c.Field)
			h := c.Header
			if h == "" {
				h = c.Field
			}
			headers = append(headers, h)
			placed[c.Field] = true
		}
	}
	if profile.includeUnlisted() {
		for _, r := range rows {
			for _, v := range r.Values {
				if !placed[v.Name] {
					placed[v.Name] = true
					fields = append(fields, v.Name)
					headers = append(headers, v.Name)
				}
			}
		}
	}

	table := domain.Table{
		Columns: append(append([]string{}, baseColumns...), headers...),
		Rows:    make([][]string, 0, len(rows)),
	}
	for _, r := range rows {
		values := make(map[string]string, len(r.Values))
		for _, v := range r.Values {
			values[v.Name] = v.Value
		}
		line := make([]string, 0, len(table.Columns))
		line = append(line, r.DocumentID, r.Classification, r.ClassifiedAt, strconv.Itoa(r.ItemIndex+1))
		for _, f := range fields {
			line = append(line, values[f])
		}
		table.Rows = append(table.Rows, line)
	}
	return table
}
