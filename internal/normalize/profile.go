package normalize

import (
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// Column pins a field to a position in the exported table, optionally under
// a different header.
type Column struct {
	Field  string `yaml:"field"`
	Header string `yaml:"header"`
}

// Profile describes the column layout of exported tables.
//
//	columns:
//	  - field: po_number
//	    header: PO Number
//	  - field: delivery_date
//	include_unlisted: true
type Profile struct {
	Columns         []Column `yaml:"columns"`
	IncludeUnlisted *bool    `yaml:"include_unlisted"`
}

// includeUnlisted defaults to true when the profile leaves it out.
func (p *Profile) includeUnlisted() bool {
	return p == nil || p.IncludeUnlisted == nil || *p.IncludeUnlisted
}

// ParseProfile decodes a YAML column profile.
func ParseProfile(r io.Reader) (*Profile, error) {
	var p Profile
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&p); err != nil {
		if err == io.EOF {
			return &Profile{}, nil
		}
		return nil, fmt.Errorf("decoding column profile: %w", err)
	}
	seen := make(map[string]bool, len(p.Columns))
	for i, c := range p.Columns {
		if c.Field == "" {
			return nil, fmt.Errorf("column profile: column %d has no field", i+1)
		}
		if seen[c.Field] {
			return nil, fmt.Errorf("column profile: field %q listed twice", c.Field)
		}
		seen[c.Field] = true
	}
	return &p, nil
}

// LoadProfile reads a column profile from path. An empty path yields a nil
// profile, which keeps first-appearance column order.
func LoadProfile(path string) (*Profile, error) {
	if path == "" {
		return nil, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening column profile: %w", err)
	}
	defer f.Close()
	return ParseProfile(f)
}
