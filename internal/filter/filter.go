// Package filter models the JSON query filter accepted by the find API.
//
// A filter is a JSON object. The "where" key holds a condition on the queried
// entity's own fields and the "require" key maps dotted relation paths to
// conditions on the entity at the far end of each path. Every other key
// (order, limit, skip, include, ...) is carried through untouched.
package filter

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
)

// ErrMalformedFilter is returned when a serialized filter cannot be parsed.
var ErrMalformedFilter = errors.New("malformed filter")

const (
	// KeyWhere is the filter key holding the root-local condition.
	KeyWhere = "where"
	// KeyRequire is the filter key holding relation-path requirements.
	KeyRequire = "require"
	// KeyInclude is the filter key holding eager-load includes.
	KeyInclude = "include"
	// KeyOrder is the filter key holding sort order.
	KeyOrder = "order"
	// KeyLimit is the filter key holding the page size.
	KeyLimit = "limit"
	// KeySkip is the filter key holding the page offset.
	KeySkip = "skip"
	// KeyOffset is an alias of KeySkip.
	KeyOffset = "offset"
	// KeyFields is the filter key holding the field projection.
	KeyFields = "fields"
)

// Requirement pairs a dotted relation path with a condition on the entity
// the path ends at.
type Requirement struct {
	Path      string
	Condition Condition
}

// Filter is a parsed query filter.
type Filter struct {
	// Where is the root-local condition; nil when absent.
	Where Condition
	// Require lists requirements in document order.
	Require []Requirement
	// Rest holds every other top-level key verbatim.
	Rest map[string]json.RawMessage
}

// Parse decodes a serialized filter. Numbers are kept as json.Number so
// identifiers round-trip without float conversion. Require entries keep the
// order they appear in the document; a repeated path replaces the earlier
// condition in place.
func Parse(data []byte) (*Filter, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	if err := expectDelim(dec, '{'); err != nil {
		return nil, err
	}

	f := &Filter{}
	for dec.More() {
		key, err := readKey(dec)
		if err != nil {
			return nil, err
		}
		switch key {
		case KeyWhere:
			cond, err := decodeCondition(dec, KeyWhere)
			if err != nil {
				return nil, err
			}
			f.Where = cond
		case KeyRequire:
			reqs, err := decodeRequire(dec)
			if err != nil {
				return nil, err
			}
			f.Require = reqs
		default:
			var raw json.RawMessage
			if err := dec.Decode(&raw); err != nil {
				return nil, malformed("value of %q: %v", key, err)
			}
			if f.Rest == nil {
				f.Rest = make(map[string]json.RawMessage)
			}
			f.Rest[key] = raw
		}
	}

	if err := expectDelim(dec, '}'); err != nil {
		return nil, err
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, malformed("unexpected data after filter object")
	}
	return f, nil
}

// HasRequire reports whether the filter carries at least one requirement.
func (f *Filter) HasRequire() bool {
	return f != nil && len(f.Require) > 0
}

// Raw returns a pass-through value by key.
func (f *Filter) Raw(key string) (json.RawMessage, bool) {
	if f == nil || f.Rest == nil {
		return nil, false
	}
	raw, ok := f.Rest[key]
	return raw, ok
}

// WithWhere returns a copy of f with the given where condition and no
// requirements. Pass-through values are shared, not copied.
func (f *Filter) WithWhere(where Condition) *Filter {
	out := &Filter{Where: where}
	if f != nil && len(f.Rest) > 0 {
		out.Rest = make(map[string]json.RawMessage, len(f.Rest))
		for k, v := range f.Rest {
			out.Rest[k] = v
		}
	}
	return out
}

// MarshalJSON encodes the filter with keys sorted and require entries in
// their original order.
func (f Filter) MarshalJSON() ([]byte, error) {
	keys := make([]string, 0, len(f.Rest)+2)
	for k := range f.Rest {
		if k == KeyWhere || k == KeyRequire {
			continue
		}
		keys = append(keys, k)
	}
	if f.Where != nil {
		keys = append(keys, KeyWhere)
	}
	if len(f.Require) > 0 {
		keys = append(keys, KeyRequire)
	}
	sort.Strings(keys)

	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		writeKey(&buf, k)

		switch k {
		case KeyWhere:
			b, err := json.Marshal(f.Where)
			if err != nil {
				return nil, fmt.Errorf("failed to encode where: %w", err)
			}
			buf.Write(b)
		case KeyRequire:
			if err := writeRequire(&buf, f.Require); err != nil {
				return nil, err
			}
		default:
			buf.Write(f.Rest[k])
		}
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON implements json.Unmarshaler using Parse.
func (f *Filter) UnmarshalJSON(data []byte) error {
	parsed, err := Parse(data)
	if err != nil {
		return err
	}
	*f = *parsed
	return nil
}

// String returns the JSON encoding, or an empty string if encoding fails.
func (f *Filter) String() string {
	if f == nil {
		return ""
	}
	b, err := f.MarshalJSON()
	if err != nil {
		return ""
	}
	return string(b)
}

func decodeRequire(dec *json.Decoder) ([]Requirement, error) {
	tok, err := dec.Token()
	if err != nil {
		return nil, malformed("require: %v", err)
	}
	if tok == nil {
		return nil, nil
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return nil, malformed("require must be an object")
	}

	var reqs []Requirement
	index := make(map[string]int)
	for dec.More() {
		path, err := readKey(dec)
		if err != nil {
			return nil, err
		}
		cond, err := decodeCondition(dec, "require."+path)
		if err != nil {
			return nil, err
		}
		if i, seen := index[path]; seen {
			reqs[i].Condition = cond
			continue
		}
		index[path] = len(reqs)
		reqs = append(reqs, Requirement{Path: path, Condition: cond})
	}
	if err := expectDelim(dec, '}'); err != nil {
		return nil, err
	}
	return reqs, nil
}

func decodeCondition(dec *json.Decoder, field string) (Condition, error) {
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, malformed("%s: %v", field, err)
	}
	if v == nil {
		return nil, nil
	}
	m, ok := v.(map[string]any)
	if !ok {
		return nil, malformed("%s must be an object", field)
	}
	return m, nil
}

func readKey(dec *json.Decoder) (string, error) {
	tok, err := dec.Token()
	if err != nil {
		return "", malformed("%v", err)
	}
	key, ok := tok.(string)
	if !ok {
		return "", malformed("expected object key, got %v", tok)
	}
	return key, nil
}

func expectDelim(dec *json.Decoder, want json.Delim) error {
	tok, err := dec.Token()
	if err != nil {
		return malformed("%v", err)
	}
	if d, ok := tok.(json.Delim); !ok || d != want {
		return malformed("expected %q, got %v", string(want), tok)
	}
	return nil
}

func writeRequire(buf *bytes.Buffer, reqs []Requirement) error {
	buf.WriteByte('{')
	for i, r := range reqs {
		if i > 0 {
			buf.WriteByte(',')
		}
		writeKey(buf, r.Path)
		b, err := json.Marshal(r.Condition)
		if err != nil {
			return fmt.Errorf("failed to encode require %q: %w", r.Path, err)
		}
		buf.Write(b)
	}
	buf.WriteByte('}')
	return nil
}

func writeKey(buf *bytes.Buffer, key string) {
	b, _ := json.Marshal(key)
	buf.Write(b)
	buf.WriteByte(':')
}

func malformed(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrMalformedFilter, fmt.Sprintf(format, args...))
}
