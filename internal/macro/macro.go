// Package macro defines the macro data model consumed from the authoring
// layer: named, ordered action sequences with template parameters.
//
// Action parameters are template strings. A parameter may reference a
// runtime variable as {name}; substitution happens per execution against
// that run's bindings. Typed parameters (durations, coordinates) stay
// strings until after substitution.
package macro

import (
	"fmt"
	"regexp"
)

// ActionType identifies what an action does.
type ActionType string

// The closed set of action types.
const (
	KeyPress          ActionType = "key_press"
	TextPaste         ActionType = "text_paste"
	MouseClick        ActionType = "mouse_click"
	MouseMove         ActionType = "mouse_move"
	Wait              ActionType = "wait"
	OpenFile          ActionType = "open_file"
	OpenURL           ActionType = "open_url"
	OpenApplication   ActionType = "open_application"
	SwitchApplication ActionType = "switch_application"
	RunScript         ActionType = "run_script"
)

// actionTypes is the set of valid action types.
var actionTypes = map[ActionType]bool{
	KeyPress:          true,
	TextPaste:         true,
	MouseClick:        true,
	MouseMove:         true,
	Wait:              true,
	OpenFile:          true,
	OpenURL:           true,
	OpenApplication:   true,
	SwitchApplication: true,
	RunScript:         true,
}

// Valid reports whether the action type is known.
func (t ActionType) Valid() bool { return actionTypes[t] }

// Action is one step of a macro.
type Action struct {
	// Type identifies the operation.
	Type ActionType

	// Params maps parameter names to template values. Values may contain
	// {variable} placeholders.
	Params map[string]string
}

// Macro is a named, ordered action sequence.
type Macro struct {
	// ID is the stable identifier used by trigger mappings.
	ID string

	// Name is the human-readable name.
	Name string

	// Dynamic marks macros whose parameters are resolved from
	// runtime-extracted variables.
	Dynamic bool

	// Variables lists the variable names a dynamic macro requires.
	Variables []string

	// Actions run strictly in slice order.
	Actions []Action
}

// Bindings maps variable names to rendered values for one execution.
type Bindings map[string]string

// UnboundVariableError reports a {placeholder} with no binding. It is a
// fatal authoring or binding mismatch, never silently ignored.
type UnboundVariableError struct {
	// Name is the unbound variable.
	Name string
}

func (e *UnboundVariableError) Error() string {
	return fmt.Sprintf("macro: unbound variable {%s}", e.Name)
}

var placeholderRE = regexp.MustCompile(`\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// Placeholders returns the variable names referenced by a template value,
// in order of first appearance.
func Placeholders(template string) []string {
	var names []string
	seen := make(map[string]bool)
	for _, m := range placeholderRE.FindAllStringSubmatch(template, -1) {
		if !seen[m[1]] {
			seen[m[1]] = true
			names = append(names, m[1])
		}
	}
	return names
}

// Substitute renders a template value against bindings. Every placeholder
// must resolve; the first unresolved one fails with UnboundVariableError.
func Substitute(template string, b Bindings) (string, error) {
	var unbound *UnboundVariableError
	out := placeholderRE.ReplaceAllStringFunc(template, func(m string) string {
		name := m[1 : len(m)-1]
		v, ok := b[name]
		if !ok {
			if unbound == nil {
				unbound = &UnboundVariableError{Name: name}
			}
			return m
		}
		return v
	})
	if unbound != nil {
		return "", unbound
	}
	return out, nil
}

// Render returns a copy of the action with all parameter templates
// substituted against bindings.
func (a Action) Render(b Bindings) (Action, error) {
	out := Action{Type: a.Type, Params: make(map[string]string, len(a.Params))}
	for name, tmpl := range a.Params {
		v, err := Substitute(tmpl, b)
		if err != nil {
			return Action{}, err
		}
		out.Params[name] = v
	}
	return out, nil
}

// Validate checks the macro for authoring errors: empty or unknown fields
// and, for dynamic macros, placeholders that do not appear in Variables.
func (m Macro) Validate() error {
	if m.ID == "" {
		return fmt.Errorf("macro: empty id")
	}

	declared := make(map[string]bool, len(m.Variables))
	for _, v := range m.Variables {
		declared[v] = true
	}

	for i, a := range m.Actions {
		if !a.Type.Valid() {
			return fmt.Errorf("macro %q: action %d: unknown type %q", m.ID, i, a.Type)
		}
		if !m.Dynamic {
			continue
		}
		for _, tmpl := range a.Params {
			for _, name := range Placeholders(tmpl) {
				if !declared[name] {
					return fmt.Errorf("macro %q: action %d: %w", m.ID, i, &UnboundVariableError{Name: name})
				}
			}
		}
	}
	return nil
}
