package judgment

import (
	"errors"
	"testing"
)

func TestParseExtractsObjectFromProse(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		wantKey string
		wantVal string
	}{
		{
			name:    "bare object",
			raw:     `{"decision": "approve"}`,
			wantKey: "decision",
			wantVal: "approve",
		},
		{
			name:    "markdown fenced",
			raw:     "Here is my assessment:\n```json\n{\"decision\": \"revise\"}\n```\nLet me know.",
			wantKey: "decision",
			wantVal: "revise",
		},
		{
			name:    "braces inside strings",
			raw:     `{"note": "use {curly} syntax", "decision": "approve"}`,
			wantKey: "decision",
			wantVal: "approve",
		},
		{
			name:    "escaped quotes",
			raw:     `{"decision": "say \"yes\""}`,
			wantKey: "decision",
			wantVal: `say "yes"`,
		},
		{
			name:    "malformed object before valid one",
			raw:     `{"decision": } then the real answer {"decision": "approve"}`,
			wantKey: "decision",
			wantVal: "approve",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			j, err := Parse(tt.raw)
			if err != nil {
				t.Fatalf("Parse() error = %v", err)
			}
			got, ok := j.Str(tt.wantKey)
			if !ok || got != tt.wantVal {
				t.Errorf("Str(%q) = %q, %v; want %q", tt.wantKey, got, ok, tt.wantVal)
			}
		})
	}
}

func TestParseFailure(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"empty", ""},
		{"no braces", "I cannot provide a structured answer."},
		{"unbalanced", `{"decision": "approve"`},
		{"array only", `[1, 2, 3]`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(tt.raw)
			if err == nil {
				t.Fatal("Parse() expected error, got nil")
			}
			if !IsParseFailure(err) {
				t.Errorf("IsParseFailure(%v) = false, want true", err)
			}
			var pf *ParseFailure
			if errors.As(err, &pf) && pf.Raw != tt.raw {
				t.Errorf("ParseFailure.Raw = %q, want %q", pf.Raw, tt.raw)
			}
		})
	}
}

func TestAccessors(t *testing.T) {
	j, err := Parse(`{
		"score": 7.5,
		"count": 3,
		"rating": "good",
		"items": ["a", 2, "b"],
		"nested": {"inner": "value"}
	}`)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	if f, ok := j.Float("score"); !ok || f != 7.5 {
		t.Errorf("Float(score) = %v, %v", f, ok)
	}
	if f, ok := j.Float("count"); !ok || f != 3 {
		t.Errorf("Float(count) = %v, %v", f, ok)
	}
	if _, ok := j.Float("rating"); ok {
		t.Error("Float(rating) should fail on a string field")
	}
	if got := j.FloatOr("missing", 6.0); got != 6.0 {
		t.Errorf("FloatOr(missing) = %v, want 6.0", got)
	}
	if s := j.StrOr("rating", "fair"); s != "good" {
		t.Errorf("StrOr(rating) = %q", s)
	}
	if s := j.StrOr("missing", "fair"); s != "fair" {
		t.Errorf("StrOr(missing) = %q", s)
	}
	if got := j.Strs("items"); len(got) != 2 || got[0] != "a" || got[1] != "b" {
		t.Errorf("Strs(items) = %v, want [a b] (non-strings skipped)", got)
	}
	if got := j.Strs("rating"); got != nil {
		t.Errorf("Strs(rating) = %v, want nil", got)
	}
	m, ok := j.Map("nested")
	if !ok {
		t.Fatal("Map(nested) not found")
	}
	if s := m.StrOr("inner", ""); s != "value" {
		t.Errorf("nested inner = %q, want value", s)
	}
}
