package types

import (
	"bytes"
	"encoding/json"
	"io"

	"github.com/pkg/errors"
)

// ErrNotObject is returned when a record line is valid JSON but not an object.
var ErrNotObject = errors.New("record is not a JSON object")

// NewRecord returns an empty Record.
func NewRecord() *Record {
	return &Record{values: make(map[string]json.RawMessage)}
}

// Keys returns the record's keys in insertion order.
func (r *Record) Keys() []string {
	return r.keys
}

// Len returns the number of keys.
func (r *Record) Len() int {
	return len(r.keys)
}

// SetRaw stores an already encoded JSON value. Setting an existing key
// replaces its value but keeps its position.
func (r *Record) SetRaw(key string, raw json.RawMessage) {
	if r.values == nil {
		r.values = make(map[string]json.RawMessage)
	}
	if _, ok := r.values[key]; !ok {
		r.keys = append(r.keys, key)
	}
	r.values[key] = raw
}

// Set encodes `value` and stores it under `key`.
func (r *Record) Set(key string, value interface{}) error {
	raw, err := marshalNoEscape(value)
	if err != nil {
		return errors.Wrapf(err, "cannot encode field %q", key)
	}
	r.SetRaw(key, raw)
	return nil
}

// Raw returns the encoded value for `key`.
func (r *Record) Raw(key string) (json.RawMessage, bool) {
	raw, ok := r.values[key]
	return raw, ok
}

// String
// Returns the string value under `key`. `present` is false when the key is
// missing or null; any other non-string value is an error.
func (r *Record) String(key string) (value string, present bool, err error) {
	raw, ok := r.values[key]
	if !ok || string(bytes.TrimSpace(raw)) == "null" {
		return "", false, nil
	}
	if err := json.Unmarshal(raw, &value); err != nil {
		return "", false, errors.Errorf("field %q is not a string: %s",
			key, abbreviate(raw, 40))
	}
	return value, true, nil
}

// Reencode rewrites every value in the encoding Set produces: compact,
// with <, > and & unescaped. Numbers keep their literal form; keys of
// nested objects come out sorted.
func (r *Record) Reencode() error {
	for _, key := range r.keys {
		dec := json.NewDecoder(bytes.NewReader(r.values[key]))
		dec.UseNumber()
		var value interface{}
		if err := dec.Decode(&value); err != nil {
			return errors.Wrapf(err, "cannot decode field %q", key)
		}
		if err := r.Set(key, value); err != nil {
			return err
		}
	}
	return nil
}

// MarshalJSON writes the fields in insertion order.
func (r *Record) MarshalJSON() ([]byte, error) {
	buf := bytes.NewBuffer(make([]byte, 0, 64*len(r.keys)))
	buf.WriteByte('{')
	for idx, key := range r.keys {
		if idx > 0 {
			buf.WriteByte(',')
		}
		encodedKey, err := marshalNoEscape(key)
		if err != nil {
			return nil, err
		}
		buf.Write(encodedKey)
		buf.WriteByte(':')
		buf.Write(r.values[key])
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON reads an object, keeping the key order of the input.
func (r *Record) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return ErrNotObject
	}
	r.keys = r.keys[:0]
	r.values = make(map[string]json.RawMessage)
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := keyTok.(string)
		if !ok {
			return errors.Errorf("unexpected object key %v", keyTok)
		}
		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return errors.Wrapf(err, "cannot decode field %q", key)
		}
		r.SetRaw(key, raw)
	}
	_, err = dec.Token()
	return err
}

// marshalNoEscape encodes like json.Marshal but leaves <, > and & alone.
func marshalNoEscape(value interface{}) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(value); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

func abbreviate(raw []byte, n int) string {
	if len(raw) <= n {
		return string(raw)
	}
	return string(raw[:n]) + "..."
}

// NewOutputRecord
// Builds an OutputRecord, replacing nil slices with empty ones so they
// encode as [] rather than null.
func NewOutputRecord(original, masked string, maskInfo []string,
	tokens []string, tokenIDs []int, positions []int) *OutputRecord {
	if maskInfo == nil {
		maskInfo = []string{}
	}
	if tokens == nil {
		tokens = []string{}
	}
	if tokenIDs == nil {
		tokenIDs = []int{}
	}
	if positions == nil {
		positions = []int{}
	}
	return &OutputRecord{
		OriginalStatement:  original,
		StatementWithMask:  masked,
		MaskInfo:           maskInfo,
		Tokens:             tokens,
		TokenIDs:           tokenIDs,
		MaskTokenPositions: positions,
	}
}

// MarkerPairs
// Number of complete start/end marker pairs found in the token positions.
func (rec *OutputRecord) MarkerPairs() int {
	return len(rec.MaskTokenPositions) / 2
}

// Encoder writes one JSON document per line without HTML escaping.
type Encoder struct {
	enc *json.Encoder
}

// NewEncoder returns a line-delimited JSON encoder over `w`.
func NewEncoder(w io.Writer) *Encoder {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	return &Encoder{enc: enc}
}

// Encode writes `value` followed by a newline.
func (e *Encoder) Encode(value interface{}) error {
	return e.enc.Encode(value)
}
