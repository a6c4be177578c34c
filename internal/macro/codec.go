package macro

import (
	"fmt"
	"sort"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// Library is an immutable set of macros keyed by id.
type Library map[string]Macro

// DecodeLibrary parses the authoring layer's macro library JSON:
//
//	{"macros": [
//	  {"id": "m1", "name": "...", "dynamic": true,
//	   "variables": ["count"],
//	   "actions": [{"type": "wait", "params": {"duration": "{count}"}}]}
//	]}
//
// Every macro is validated; any authoring error rejects the whole
// document.
func DecodeLibrary(data []byte) (Library, error) {
	if !gjson.ValidBytes(data) {
		return nil, fmt.Errorf("macro: invalid library JSON")
	}

	doc := gjson.ParseBytes(data)
	macros := doc.Get("macros")
	if !macros.IsArray() {
		return nil, fmt.Errorf("macro: library missing \"macros\" array")
	}

	lib := make(Library)
	var decodeErr error
	macros.ForEach(func(_, item gjson.Result) bool {
		m := Macro{
			ID:      item.Get("id").String(),
			Name:    item.Get("name").String(),
			Dynamic: item.Get("dynamic").Bool(),
		}
		item.Get("variables").ForEach(func(_, v gjson.Result) bool {
			m.Variables = append(m.Variables, v.String())
			return true
		})
		item.Get("actions").ForEach(func(_, av gjson.Result) bool {
			a := Action{
				Type:   ActionType(av.Get("type").String()),
				Params: make(map[string]string),
			}
			av.Get("params").ForEach(func(k, v gjson.Result) bool {
				a.Params[k.String()] = v.String()
				return true
			})
			m.Actions = append(m.Actions, a)
			return true
		})

		if err := m.Validate(); err != nil {
			decodeErr = err
			return false
		}
		if _, dup := lib[m.ID]; dup {
			decodeErr = fmt.Errorf("macro: duplicate id %q", m.ID)
			return false
		}
		lib[m.ID] = m
		return true
	})
	if decodeErr != nil {
		return nil, decodeErr
	}
	return lib, nil
}

// EncodeLibrary serializes a library back to the authoring JSON format.
// Macros are emitted in lexical id order so output is stable.
func EncodeLibrary(lib Library) ([]byte, error) {
	out := []byte(`{"macros":[]}`)

	ids := make([]string, 0, len(lib))
	for id := range lib {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for i, id := range ids {
		m := lib[id]
		base := fmt.Sprintf("macros.%d", i)

		var err error
		set := func(path string, value any) {
			if err != nil {
				return
			}
			out, err = sjson.SetBytes(out, path, value)
		}

		set(base+".id", m.ID)
		set(base+".name", m.Name)
		set(base+".dynamic", m.Dynamic)
		if len(m.Variables) > 0 {
			set(base+".variables", m.Variables)
		}
		for j, a := range m.Actions {
			ab := fmt.Sprintf("%s.actions.%d", base, j)
			set(ab+".type", string(a.Type))

			names := make([]string, 0, len(a.Params))
			for name := range a.Params {
				names = append(names, name)
			}
			sort.Strings(names)
			for _, name := range names {
				set(ab+".params."+name, a.Params[name])
			}
		}
		if err != nil {
			return nil, fmt.Errorf("macro: encoding %q: %w", id, err)
		}
	}
	return out, nil
}
