package models

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// -----------------------------------------------------------------------------
// Ordered field map
// -----------------------------------------------------------------------------

// MField is one named value of a tick row, kept as raw JSON.
type MField struct {
	Key   string
	Value json.RawMessage
}

// MFields is a JSON object that remembers the order its keys arrived in.
// Rows coming from a tick backend are stored this way so provider-specific
// columns survive untouched.
type MFields []MField

// -----------------------------------------------------------------------------

// Get returns the raw value stored under key.
func (f MFields) Get(key string) (json.RawMessage, bool) {
	for _, field := range f {
		if field.Key == key {
			return field.Value, true
		}
	}
	return nil, false
}

// -----------------------------------------------------------------------------

func (f MFields) Has(key string) bool {
	_, ok := f.Get(key)
	return ok
}

// -----------------------------------------------------------------------------

func (f MFields) Keys() []string {
	keys := make([]string, len(f))
	for i, field := range f {
		keys[i] = field.Key
	}
	return keys
}

// -----------------------------------------------------------------------------

// Clone copies the slice and every raw value so callers can never alias a source row.
func (f MFields) Clone() MFields {
	if f == nil {
		return nil
	}
	out := make(MFields, len(f))
	for i, field := range f {
		out[i] = MField{Key: field.Key, Value: append(json.RawMessage(nil), field.Value...)}
	}
	return out
}

// -----------------------------------------------------------------------------

// With returns a copy where key holds value. An existing key keeps its position,
// a new key is appended.
func (f MFields) With(key string, value json.RawMessage) MFields {
	out := f.Clone()
	for i := range out {
		if out[i].Key == key {
			out[i].Value = value
			return out
		}
	}
	return append(out, MField{Key: key, Value: value})
}

// -----------------------------------------------------------------------------

// WithValue marshals value and stores it under key.
func (f MFields) WithValue(key string, value interface{}) (MFields, error) {
	raw, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("failed to encode field %s: %w", key, err)
	}
	return f.With(key, raw), nil
}

// -----------------------------------------------------------------------------
// JSON
// -----------------------------------------------------------------------------

func (f MFields) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, field := range f {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(field.Key)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		if len(field.Value) == 0 {
			buf.WriteString("null")
		} else {
			buf.Write(field.Value)
		}
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// -----------------------------------------------------------------------------

func (f *MFields) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if bytes.Equal(trimmed, []byte("null")) {
		*f = nil
		return nil
	}

	dec := json.NewDecoder(bytes.NewReader(trimmed))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("expected JSON object, got %v", tok)
	}

	out := MFields{}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := tok.(string)
		if !ok {
			return fmt.Errorf("expected object key, got %v", tok)
		}

		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return fmt.Errorf("failed to decode field %s: %w", key, err)
		}
		out = append(out, MField{Key: key, Value: raw})
	}

	// closing brace
	if _, err := dec.Token(); err != nil {
		return err
	}

	*f = out
	return nil
}
