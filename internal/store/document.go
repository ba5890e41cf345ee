package store

import (
	"bytes"
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"io"
)

// Document is an opaque JSON object stored in a jsonb column.
// The store never interprets its contents.
type Document map[string]any

// Value implements driver.Valuer.
func (d Document) Value() (driver.Value, error) {
	if d == nil {
		return "{}", nil
	}
	b, err := json.Marshal(d)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan implements sql.Scanner.
func (d *Document) Scan(src any) error {
	var raw []byte
	switch v := src.(type) {
	case nil:
		*d = Document{}
		return nil
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("cannot scan %T into Document", src)
	}

	doc := Document{}
	if len(bytes.TrimSpace(raw)) > 0 {
		if err := DecodeDocument(bytes.NewReader(raw), &doc); err != nil {
			return fmt.Errorf("failed to decode document: %w", err)
		}
	}
	*d = doc
	return nil
}

// DecodeDocument decodes JSON from r into v, keeping numbers as json.Number
// so integers wider than a float64 mantissa come back unchanged.
func DecodeDocument(r io.Reader, v any) error {
	dec := json.NewDecoder(r)
	dec.UseNumber()
	return dec.Decode(v)
}
