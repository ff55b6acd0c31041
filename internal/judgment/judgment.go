// Package judgment extracts structured results from raw oracle text.
//
// The oracle is asked for JSON but is never guaranteed to produce it. This
// package treats "the oracle ignored the output contract" as an expected,
// first-class condition: Parse returns a *ParseFailure value instead of the
// structured judgment, and every caller branches on it explicitly. Nothing
// here panics or hides the failure behind a zero value.
package judgment

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Judgment is a decoded oracle response: a loose key/value map with typed
// accessors for the fields callers expect.
type Judgment map[string]any

// ParseFailure reports that no decodable JSON object was found in the raw
// oracle text. The raw text is preserved for diagnostics.
type ParseFailure struct {
	Raw string
}

func (e *ParseFailure) Error() string {
	return fmt.Sprintf("no parseable JSON object in oracle response (%d bytes)", len(e.Raw))
}

// IsParseFailure reports whether err is a ParseFailure.
func IsParseFailure(err error) bool {
	var pf *ParseFailure
	return errors.As(err, &pf)
}

// Parse locates the first balanced brace-delimited substring of raw and
// decodes it as a JSON object. On failure it returns a *ParseFailure carrying
// the raw text; it never returns any other error kind.
func Parse(raw string) (Judgment, error) {
	for _, candidate := range findJSONCandidates(raw) {
		var j Judgment
		if err := json.Unmarshal([]byte(candidate), &j); err == nil {
			return j, nil
		}
		// A later candidate may still decode; malformed early objects are
		// common when the oracle echoes the requested schema before the
		// actual answer.
	}
	return nil, &ParseFailure{Raw: raw}
}

// Float returns the named field coerced to float64.
func (j Judgment) Float(key string) (float64, bool) {
	v, ok := j[key]
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	}
	return 0, false
}

// FloatOr returns the named field or a default when absent/mistyped.
func (j Judgment) FloatOr(key string, def float64) float64 {
	if f, ok := j.Float(key); ok {
		return f
	}
	return def
}

// Str returns the named field as a string.
func (j Judgment) Str(key string) (string, bool) {
	v, ok := j[key]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

// StrOr returns the named field or a default when absent/mistyped.
func (j Judgment) StrOr(key, def string) string {
	if s, ok := j.Str(key); ok {
		return s
	}
	return def
}

// Strs returns the named field as a string slice, skipping non-string
// elements rather than failing the whole list.
func (j Judgment) Strs(key string) []string {
	v, ok := j[key]
	if !ok {
		return nil
	}
	items, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

// Map returns the named field as a nested Judgment.
func (j Judgment) Map(key string) (Judgment, bool) {
	v, ok := j[key]
	if !ok {
		return nil, false
	}
	m, ok := v.(map[string]any)
	return Judgment(m), ok
}
