package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
)

// Field is one entry of a document's structured fields. A field is either a
// scalar header value or a list whose index i describes line item i.
type Field struct {
	Name   string
	Value  string
	List   []string
	IsList bool
}

// FieldSet keeps structured fields in the order the backend sent them.
type FieldSet []Field

// Lists returns the list fields in order.
func (fs FieldSet) Lists() []Field {
	var out []Field
	for _, f := range fs {
		if f.IsList {
			out = append(out, f)
		}
	}
	return out
}

// UnmarshalJSON decodes a JSON object while preserving key order.
func (fs *FieldSet) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*fs = nil
		return nil
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return fmt.Errorf("structured fields: expected object, got %v", tok)
	}

	var out FieldSet
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := keyTok.(string)
		if !ok {
			return fmt.Errorf("structured fields: expected key, got %v", keyTok)
		}

		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return fmt.Errorf("structured fields: decoding %q: %w", key, err)
		}

		field := Field{Name: key}
		trimmed := bytes.TrimSpace(raw)
		if len(trimmed) > 0 && trimmed[0] == '[' {
			var items []json.RawMessage
			if err := json.Unmarshal(trimmed, &items); err != nil {
				return fmt.Errorf("structured fields: decoding list %q: %w", key, err)
			}
			field.IsList = true
			field.List = make([]string, len(items))
			for i, item := range items {
				field.List[i] = scalarString(item)
			}
		} else {
			field.Value = scalarString(trimmed)
		}
		out = append(out, field)
	}

	if _, err := dec.Token(); err != nil {
		return err
	}
	*fs = out
	return nil
}

// MarshalJSON encodes the set as a JSON object in field order.
func (fs FieldSet) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, f := range fs {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(f.Name)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')

		var val []byte
		if f.IsList {
			list := f.List
			if list == nil {
				list = []string{}
			}
			val, err = json.Marshal(list)
		} else {
			val, err = json.Marshal(f.Value)
		}
		if err != nil {
			return nil, err
		}
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// scalarString renders a JSON value as display text.
func scalarString(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return ""
	}
	switch raw[0] {
	case '"':
		var s string
		if err := json.Unmarshal(raw, &s); err == nil {
			return s
		}
	case '{', '[':
		var buf bytes.Buffer
		if err := json.Compact(&buf, raw); err == nil {
			return buf.String()
		}
	}
	return string(raw)
}

// Timestamp holds the backend's classification time, sent either as a
// string or a number of epoch milliseconds.
type Timestamp struct {
	Raw   string
	Valid bool
}

// UnmarshalJSON accepts any JSON value. Strings and numbers keep their text;
// other values keep their compact JSON form and fail EpochMillis later, so a
// bad timestamp never rejects the whole result.
func (t *Timestamp) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*t = Timestamp{}
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*t = Timestamp{Raw: s, Valid: s != ""}
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err == nil {
		*t = Timestamp{Raw: n.String(), Valid: true}
		return nil
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, data); err != nil {
		return fmt.Errorf("classification timestamp: %w", err)
	}
	*t = Timestamp{Raw: buf.String(), Valid: true}
	return nil
}

// MarshalJSON encodes the raw value, or null when unset.
func (t Timestamp) MarshalJSON() ([]byte, error) {
	if !t.Valid {
		return []byte("null"), nil
	}
	return json.Marshal(t.Raw)
}

// EpochMillis parses the raw value as epoch milliseconds.
func (t Timestamp) EpochMillis() (int64, error) {
	if !t.Valid {
		return 0, fmt.Errorf("timestamp not set")
	}
	if ms, err := strconv.ParseInt(t.Raw, 10, 64); err == nil {
		return ms, nil
	}
	f, err := strconv.ParseFloat(t.Raw, 64)
	if err != nil {
		return 0, fmt.Errorf("parsing epoch millis %q: %w", t.Raw, err)
	}
	if math.IsNaN(f) || math.IsInf(f, 0) || math.Abs(f) > math.MaxInt64 {
		return 0, fmt.Errorf("epoch millis %q out of range", t.Raw)
	}
	return int64(f), nil
}
