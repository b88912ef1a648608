package entity

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
)

// Payload is the content of a record keyed by field name. Identifiers and
// modification markers are never part of a payload.
type Payload map[string]any

// Normalize returns a copy of p in generic JSON form with absent, null and
// empty values removed, so that a missing field compares equal to an empty one.
func (p Payload) Normalize() (Payload, error) {
	if len(p) == 0 {
		return Payload{}, nil
	}
	raw, err := json.Marshal(map[string]any(p))
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}
	var generic map[string]any
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&generic); err != nil {
		return nil, fmt.Errorf("decode payload: %w", err)
	}
	out := Payload{}
	for k, v := range generic {
		if nv, keep := normalizeValue(v); keep {
			out[k] = nv
		}
	}
	return out, nil
}

func normalizeValue(v any) (any, bool) {
	switch val := v.(type) {
	case nil:
		return nil, false
	case string:
		return val, val != ""
	case json.Number:
		// Compare numbers by value so 3 and 3.0 are equal.
		if f, err := val.Float64(); err == nil {
			return f, true
		}
		return val.String(), true
	case []any:
		if len(val) == 0 {
			return nil, false
		}
		items := make([]any, 0, len(val))
		for _, item := range val {
			nv, keep := normalizeValue(item)
			if !keep {
				nv = nil
			}
			items = append(items, nv)
		}
		return items, true
	case map[string]any:
		m := make(map[string]any, len(val))
		for k, item := range val {
			if nv, keep := normalizeValue(item); keep {
				m[k] = nv
			}
		}
		return m, len(m) > 0
	default:
		return val, true
	}
}

// Canonical returns the canonical JSON encoding of the normalized payload.
// encoding/json writes map keys sorted, which makes the encoding
// order-independent.
func (p Payload) Canonical() ([]byte, error) {
	n, err := p.Normalize()
	if err != nil {
		return nil, err
	}
	return json.Marshal(map[string]any(n))
}

// Hash returns the hex SHA-256 of the canonical encoding.
func (p Payload) Hash() (string, error) {
	c, err := p.Canonical()
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(c)
	return hex.EncodeToString(sum[:]), nil
}

// FieldDiff describes one field whose values differ between two payloads.
type FieldDiff struct {
	Field  string `json:"field"`
	Local  any    `json:"local,omitempty"`
	Remote any    `json:"remote,omitempty"`
}

// Diff compares local against remote field by field and returns the fields
// that differ, sorted by name. Arrays are compared by order.
func Diff(local, remote Payload) ([]FieldDiff, error) {
	l, err := local.Normalize()
	if err != nil {
		return nil, fmt.Errorf("local: %w", err)
	}
	r, err := remote.Normalize()
	if err != nil {
		return nil, fmt.Errorf("remote: %w", err)
	}

	fields := make(map[string]struct{}, len(l)+len(r))
	for k := range l {
		fields[k] = struct{}{}
	}
	for k := range r {
		fields[k] = struct{}{}
	}

	var diffs []FieldDiff
	for field := range fields {
		lv, _ := json.Marshal(l[field])
		rv, _ := json.Marshal(r[field])
		if !bytes.Equal(lv, rv) {
			diffs = append(diffs, FieldDiff{Field: field, Local: l[field], Remote: r[field]})
		}
	}
	sort.Slice(diffs, func(i, j int) bool { return diffs[i].Field < diffs[j].Field })
	return diffs, nil
}

// Equal reports whether two payloads are field-for-field equal after
// normalization.
func Equal(a, b Payload) (bool, error) {
	diffs, err := Diff(a, b)
	if err != nil {
		return false, err
	}
	return len(diffs) == 0, nil
}
