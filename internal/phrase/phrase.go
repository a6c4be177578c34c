// Package phrase extracts variable bindings from free text commands.
//
// A Table holds ordered patterns; each pattern is a template with typed
// captures ("delete last {n} words"). Parsing tries patterns in priority
// order and returns the bindings of the first full match. All bindings
// are rendered to strings: numbers in decimal, durations in
// milliseconds.
package phrase

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// CaptureType selects how a capture's text is matched and converted.
type CaptureType int

const (
	// Int matches a decimal number or a spelled-out number word and
	// converts it to decimal digits.
	Int CaptureType = iota

	// Quoted matches a single- or double-quoted string and strips the
	// quotes.
	Quoted

	// Duration matches a number with an optional time unit and converts
	// to whole milliseconds. A bare number is taken as milliseconds.
	Duration

	// Ident matches a single unquoted token.
	Ident
)

func (t CaptureType) String() string {
	switch t {
	case Int:
		return "int"
	case Quoted:
		return "quoted"
	case Duration:
		return "duration"
	case Ident:
		return "ident"
	default:
		return fmt.Sprintf("CaptureType(%d)", int(t))
	}
}

// Capture names one variable a pattern extracts.
type Capture struct {
	Var  string
	Type CaptureType
}

// Pattern is one phrase template. Template uses {placeholders} that
// correspond positionally to Captures. Higher Priority patterns are
// tried first; equal priorities keep their declaration order.
type Pattern struct {
	Name     string
	Template string
	Captures []Capture
	Priority int

	re *regexp.Regexp
}

// FailureReason classifies why parsing failed.
type FailureReason int

const (
	// NoPatternMatched means no pattern in the table matched the text.
	NoPatternMatched FailureReason = iota

	// MissingRequiredVariable means the matched pattern does not produce
	// a variable the macro declares.
	MissingRequiredVariable

	// TypeConversionFailed means a captured value could not be converted
	// to its declared type.
	TypeConversionFailed
)

func (r FailureReason) String() string {
	switch r {
	case NoPatternMatched:
		return "no pattern matched"
	case MissingRequiredVariable:
		return "missing required variable"
	case TypeConversionFailed:
		return "type conversion failed"
	default:
		return fmt.Sprintf("FailureReason(%d)", int(r))
	}
}

// ParseError reports why a text could not be parsed into bindings. It is
// local to the offending text; the caller drops the command and moves on.
type ParseError struct {
	Reason  FailureReason
	Text    string
	Pattern string
	Var     string
}

func (e *ParseError) Error() string {
	msg := fmt.Sprintf("phrase: %s for %q", e.Reason, e.Text)
	if e.Pattern != "" {
		msg += fmt.Sprintf(" (pattern %q", e.Pattern)
		if e.Var != "" {
			msg += fmt.Sprintf(", variable %q", e.Var)
		}
		msg += ")"
	}
	return msg
}

// wordNumbers spells out the small counts people actually dictate.
var wordNumbers = map[string]int{
	"one": 1, "two": 2, "three": 3, "four": 4, "five": 5,
	"six": 6, "seven": 7, "eight": 8, "nine": 9, "ten": 10,
	"eleven": 11, "twelve": 12, "thirteen": 13, "fourteen": 14,
	"fifteen": 15, "sixteen": 16, "seventeen": 17, "eighteen": 18,
	"nineteen": 19, "twenty": 20,
}

var numberWordAlt string

func init() {
	words := make([]string, 0, len(wordNumbers))
	for w := range wordNumbers {
		words = append(words, w)
	}
	sort.Slice(words, func(i, j int) bool { return len(words[i]) > len(words[j]) })
	numberWordAlt = strings.Join(words, "|")
}

// groupFor returns the regexp fragment for a capture type. Duration uses
// two groups (value, unit); the rest use one.
func groupFor(t CaptureType) string {
	switch t {
	case Int:
		return `(\d+|` + numberWordAlt + `)`
	case Quoted:
		return `["']([^"']*)["']`
	case Duration:
		return `(\d+)\s*(milliseconds?|millis|ms|seconds?|secs?|s|minutes?|mins?|m)?`
	default:
		return `([^\s"']+)`
	}
}

// compile builds the anchored, case-insensitive regexp for a pattern.
func (p *Pattern) compile() error {
	tmpl := p.Template
	var b strings.Builder
	b.WriteString(`(?i)^\s*`)

	idx := 0
	for {
		open := strings.IndexByte(tmpl, '{')
		if open < 0 {
			b.WriteString(literalFragment(tmpl))
			break
		}
		closing := strings.IndexByte(tmpl[open:], '}')
		if closing < 0 {
			return fmt.Errorf("phrase: pattern %q: unclosed placeholder", p.Name)
		}
		b.WriteString(literalFragment(tmpl[:open]))
		if idx >= len(p.Captures) {
			return fmt.Errorf("phrase: pattern %q: more placeholders than captures", p.Name)
		}
		b.WriteString(groupFor(p.Captures[idx].Type))
		idx++
		tmpl = tmpl[open+closing+1:]
	}
	if idx != len(p.Captures) {
		return fmt.Errorf("phrase: pattern %q: %d placeholders for %d captures", p.Name, idx, len(p.Captures))
	}
	b.WriteString(`\s*$`)

	re, err := regexp.Compile(b.String())
	if err != nil {
		return fmt.Errorf("phrase: pattern %q: %w", p.Name, err)
	}
	p.re = re
	return nil
}

// literalFragment quotes literal template text, collapsing runs of
// whitespace so spoken input with extra spaces still matches.
func literalFragment(s string) string {
	fields := strings.Fields(s)
	if len(fields) == 0 {
		if strings.TrimSpace(s) == "" && s != "" {
			return `\s+`
		}
		return ""
	}
	quoted := make([]string, len(fields))
	for i, f := range fields {
		quoted[i] = regexp.QuoteMeta(f)
	}
	frag := strings.Join(quoted, `\s+`)
	if strings.HasPrefix(s, " ") || strings.HasPrefix(s, "\t") {
		frag = `\s+` + frag
	}
	if strings.HasSuffix(s, " ") || strings.HasSuffix(s, "\t") {
		frag += `\s+`
	}
	return frag
}

// convert renders one captured value per its type. Duration receives the
// unit group alongside the value.
func convert(c Capture, value, unit string) (string, error) {
	switch c.Type {
	case Int:
		if n, ok := wordNumbers[strings.ToLower(value)]; ok {
			return strconv.Itoa(n), nil
		}
		n, err := strconv.Atoi(value)
		if err != nil {
			return "", err
		}
		return strconv.Itoa(n), nil
	case Duration:
		n, err := strconv.Atoi(value)
		if err != nil {
			return "", err
		}
		switch strings.ToLower(unit) {
		case "", "ms", "milli", "millis", "millisecond", "milliseconds":
			return strconv.Itoa(n), nil
		case "s", "sec", "secs", "second", "seconds":
			return strconv.Itoa(n * 1000), nil
		case "m", "min", "mins", "minute", "minutes":
			return strconv.Itoa(n * 60 * 1000), nil
		default:
			return "", fmt.Errorf("unknown unit %q", unit)
		}
	default:
		return value, nil
	}
}

// Table is an ordered pattern set.
type Table struct {
	patterns []*Pattern
}

// NewTable compiles patterns and orders them by descending priority,
// preserving declaration order within a priority.
func NewTable(patterns []Pattern) (*Table, error) {
	t := &Table{patterns: make([]*Pattern, len(patterns))}
	for i := range patterns {
		p := patterns[i]
		if err := p.compile(); err != nil {
			return nil, err
		}
		t.patterns[i] = &p
	}
	sort.SliceStable(t.patterns, func(i, j int) bool {
		return t.patterns[i].Priority > t.patterns[j].Priority
	})
	return t, nil
}

// Patterns returns the table's patterns in match order.
func (t *Table) Patterns() []*Pattern { return t.patterns }

// Bindings maps variable names to rendered string values.
type Bindings map[string]string

// Parse matches text against the table and returns exactly the declared
// variables. The first pattern that matches AND covers every declared
// variable wins; a matching pattern that misses a declared variable is an
// error, not a fallthrough, so authoring mistakes surface instead of
// silently resolving to a lesser pattern.
func (t *Table) Parse(text string, declared []string) (Bindings, error) {
	for _, p := range t.patterns {
		m := p.re.FindStringSubmatch(text)
		if m == nil {
			continue
		}

		all := make(Bindings, len(p.Captures))
		gi := 1
		for _, c := range p.Captures {
			value := m[gi]
			gi++
			unit := ""
			if c.Type == Duration {
				unit = m[gi]
				gi++
			}
			v, err := convert(c, value, unit)
			if err != nil {
				return nil, &ParseError{
					Reason:  TypeConversionFailed,
					Text:    text,
					Pattern: p.Name,
					Var:     c.Var,
				}
			}
			all[c.Var] = v
		}

		out := make(Bindings, len(declared))
		for _, name := range declared {
			v, ok := all[name]
			if !ok {
				return nil, &ParseError{
					Reason:  MissingRequiredVariable,
					Text:    text,
					Pattern: p.Name,
					Var:     name,
				}
			}
			out[name] = v
		}
		return out, nil
	}
	return nil, &ParseError{Reason: NoPatternMatched, Text: text}
}

// DefaultTable is the built-in phrase vocabulary.
func DefaultTable() *Table {
	t, err := NewTable([]Pattern{
		{
			Name:     "wait-duration",
			Template: "wait {duration}",
			Captures: []Capture{{Var: "duration_ms", Type: Duration}},
			Priority: 100,
		},
		{
			Name:     "pause-duration",
			Template: "pause for {duration}",
			Captures: []Capture{{Var: "duration_ms", Type: Duration}},
			Priority: 100,
		},
		{
			Name:     "delete-last-words",
			Template: "delete last {n} words",
			Captures: []Capture{{Var: "n", Type: Int}},
			Priority: 90,
		},
		{
			Name:     "delete-last-word",
			Template: "delete last word",
			Captures: nil,
			Priority: 90,
		},
		{
			Name:     "repeat-times",
			Template: "repeat {count} times",
			Captures: []Capture{{Var: "count", Type: Int}},
			Priority: 90,
		},
		{
			Name:     "select-lines",
			Template: "select {n} lines",
			Captures: []Capture{{Var: "n", Type: Int}},
			Priority: 90,
		},
		{
			Name:     "type-text",
			Template: "type {text}",
			Captures: []Capture{{Var: "text", Type: Quoted}},
			Priority: 80,
		},
		{
			Name:     "write-text",
			Template: "write {text}",
			Captures: []Capture{{Var: "text", Type: Quoted}},
			Priority: 80,
		},
		{
			Name:     "press-key",
			Template: "press {key}",
			Captures: []Capture{{Var: "key", Type: Ident}},
			Priority: 80,
		},
		{
			Name:     "hit-key",
			Template: "hit {key}",
			Captures: []Capture{{Var: "key", Type: Ident}},
			Priority: 80,
		},
		{
			Name:     "click-at",
			Template: "click at {x} {y}",
			Captures: []Capture{{Var: "x", Type: Int}, {Var: "y", Type: Int}},
			Priority: 80,
		},
		{
			Name:     "click-button",
			Template: "click {button}",
			Captures: []Capture{{Var: "button", Type: Ident}},
			Priority: 70,
		},
		{
			Name:     "move-pixels",
			Template: "move {pixels} pixels {direction}",
			Captures: []Capture{{Var: "pixels", Type: Int}, {Var: "direction", Type: Ident}},
			Priority: 70,
		},
		{
			Name:     "open-target",
			Template: "open {target}",
			Captures: []Capture{{Var: "target", Type: Ident}},
			Priority: 60,
		},
	})
	if err != nil {
		panic(err)
	}
	return t
}
