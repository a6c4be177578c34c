package phrase

import (
	"errors"
	"reflect"
	"testing"
)

func TestParseDefaultTable(t *testing.T) {
	table := DefaultTable()

	tests := []struct {
		name     string
		text     string
		declared []string
		want     Bindings
	}{
		{
			name:     "delete last words",
			text:     "delete last 3 words",
			declared: []string{"n"},
			want:     Bindings{"n": "3"},
		},
		{
			name:     "repeat times",
			text:     "repeat 5 times",
			declared: []string{"count"},
			want:     Bindings{"count": "5"},
		},
		{
			name:     "word number",
			text:     "delete last three words",
			declared: []string{"n"},
			want:     Bindings{"n": "3"},
		},
		{
			name:     "wait milliseconds",
			text:     "wait 500 milliseconds",
			declared: []string{"duration_ms"},
			want:     Bindings{"duration_ms": "500"},
		},
		{
			name:     "wait seconds normalizes to ms",
			text:     "wait 2 seconds",
			declared: []string{"duration_ms"},
			want:     Bindings{"duration_ms": "2000"},
		},
		{
			name:     "wait bare number defaults to ms",
			text:     "wait 750",
			declared: []string{"duration_ms"},
			want:     Bindings{"duration_ms": "750"},
		},
		{
			name:     "wait minutes",
			text:     "pause for 1 minute",
			declared: []string{"duration_ms"},
			want:     Bindings{"duration_ms": "60000"},
		},
		{
			name:     "quoted text double",
			text:     `type "hello there"`,
			declared: []string{"text"},
			want:     Bindings{"text": "hello there"},
		},
		{
			name:     "quoted text single",
			text:     "write 'ship it'",
			declared: []string{"text"},
			want:     Bindings{"text": "ship it"},
		},
		{
			name:     "press key",
			text:     "press ctrl+shift+p",
			declared: []string{"key"},
			want:     Bindings{"key": "ctrl+shift+p"},
		},
		{
			name:     "click at coordinates",
			text:     "click at 120 640",
			declared: []string{"x", "y"},
			want:     Bindings{"x": "120", "y": "640"},
		},
		{
			name:     "move pixels",
			text:     "move 40 pixels left",
			declared: []string{"pixels", "direction"},
			want:     Bindings{"pixels": "40", "direction": "left"},
		},
		{
			name:     "select lines",
			text:     "select ten lines",
			declared: []string{"n"},
			want:     Bindings{"n": "10"},
		},
		{
			name:     "open target",
			text:     "open https://example.com/docs",
			declared: []string{"target"},
			want:     Bindings{"target": "https://example.com/docs"},
		},
		{
			name:     "case insensitive with extra spaces",
			text:     "  Repeat  12  Times ",
			declared: []string{"count"},
			want:     Bindings{"count": "12"},
		},
		{
			name:     "undeclared captures are dropped",
			text:     "click at 10 20",
			declared: []string{"x"},
			want:     Bindings{"x": "10"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := table.Parse(tt.text, tt.declared)
			if err != nil {
				t.Fatalf("Parse(%q) error = %v", tt.text, err)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Parse(%q) = %v, want %v", tt.text, got, tt.want)
			}
		})
	}
}

func TestParseFailures(t *testing.T) {
	table := DefaultTable()

	tests := []struct {
		name     string
		text     string
		declared []string
		reason   FailureReason
	}{
		{
			name:     "no pattern",
			text:     "defenestrate the build",
			declared: []string{"n"},
			reason:   NoPatternMatched,
		},
		{
			name:     "matched pattern lacks declared variable",
			text:     "repeat 5 times",
			declared: []string{"count", "delay"},
			reason:   MissingRequiredVariable,
		},
		{
			name:     "partial match does not count",
			text:     "repeat 5 times and then some",
			declared: []string{"count"},
			reason:   NoPatternMatched,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := table.Parse(tt.text, tt.declared)
			var perr *ParseError
			if !errors.As(err, &perr) {
				t.Fatalf("Parse(%q) error = %v, want ParseError", tt.text, err)
			}
			if perr.Reason != tt.reason {
				t.Errorf("Reason = %v, want %v", perr.Reason, tt.reason)
			}
		})
	}
}

func TestParseTypeConversionFailed(t *testing.T) {
	table, err := NewTable([]Pattern{{
		Name:     "huge",
		Template: "count to {n}",
		Captures: []Capture{{Var: "n", Type: Int}},
	}})
	if err != nil {
		t.Fatalf("NewTable() error = %v", err)
	}

	_, err = table.Parse("count to 99999999999999999999999999", []string{"n"})
	var perr *ParseError
	if !errors.As(err, &perr) {
		t.Fatalf("error = %v, want ParseError", err)
	}
	if perr.Reason != TypeConversionFailed {
		t.Errorf("Reason = %v, want TypeConversionFailed", perr.Reason)
	}
	if perr.Var != "n" {
		t.Errorf("Var = %q, want %q", perr.Var, "n")
	}
}

func TestPriorityOrder(t *testing.T) {
	// The unit-aware pattern outranks a looser one that also matches, so
	// "wait 2 seconds" binds 2000 rather than failing on "2 seconds".
	table, err := NewTable([]Pattern{
		{
			Name:     "loose",
			Template: "wait {what}",
			Captures: []Capture{{Var: "duration_ms", Type: Ident}},
			Priority: 10,
		},
		{
			Name:     "typed",
			Template: "wait {duration}",
			Captures: []Capture{{Var: "duration_ms", Type: Duration}},
			Priority: 100,
		},
	})
	if err != nil {
		t.Fatalf("NewTable() error = %v", err)
	}

	got, err := table.Parse("wait 2 seconds", []string{"duration_ms"})
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if got["duration_ms"] != "2000" {
		t.Errorf("duration_ms = %q, want %q", got["duration_ms"], "2000")
	}
}

func TestEqualPriorityKeepsDeclarationOrder(t *testing.T) {
	table, err := NewTable([]Pattern{
		{
			Name:     "first",
			Template: "go {speed}",
			Captures: []Capture{{Var: "v", Type: Ident}},
			Priority: 50,
		},
		{
			Name:     "second",
			Template: "go {pace}",
			Captures: []Capture{{Var: "v", Type: Ident}},
			Priority: 50,
		},
	})
	if err != nil {
		t.Fatalf("NewTable() error = %v", err)
	}

	if got := table.Patterns()[0].Name; got != "first" {
		t.Errorf("first pattern = %q, want %q", got, "first")
	}
}

func TestNewTableRejectsBadPatterns(t *testing.T) {
	tests := []struct {
		name    string
		pattern Pattern
	}{
		{
			name:    "unclosed placeholder",
			pattern: Pattern{Name: "p", Template: "go {speed"},
		},
		{
			name: "placeholder count mismatch",
			pattern: Pattern{
				Name:     "p",
				Template: "go {a} {b}",
				Captures: []Capture{{Var: "a", Type: Ident}},
			},
		},
		{
			name: "captures without placeholders",
			pattern: Pattern{
				Name:     "p",
				Template: "go",
				Captures: []Capture{{Var: "a", Type: Ident}},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewTable([]Pattern{tt.pattern}); err == nil {
				t.Error("NewTable() succeeded, want error")
			}
		})
	}
}
