// Package trigger maps input events to macro ids.
//
// Mappings are keyed by (device id, event signature). Resolution happens
// on the input dispatch path, so the resolver holds an immutable snapshot
// that reloads swap atomically.
package trigger

import (
	"fmt"
	"sync"

	"github.com/tidwall/gjson"

	"github.com/rionhunter/macrokit/internal/input"
)

// Mapping binds one device event signature to a macro.
type Mapping struct {
	// DeviceID selects the source device. Empty matches any device.
	DeviceID string

	// Signature is the event signature, e.g. "key:F13" or "note:60".
	// Text-bearing events use the fixed signatures "text" and "speech".
	Signature string

	// MacroID names the macro to run.
	MacroID string
}

// Match is a successful resolution.
type Match struct {
	// MacroID is the mapped macro.
	MacroID string

	// Text carries the event's free text, when the event has any. Dynamic
	// macros parse it for variable bindings.
	Text string
}

type key struct {
	deviceID  string
	signature string
}

// Resolver resolves events against the current mapping snapshot.
type Resolver struct {
	mu sync.RWMutex
	m  map[key]string
}

// NewResolver creates a resolver with an initial mapping set.
func NewResolver(mappings []Mapping) *Resolver {
	r := &Resolver{}
	r.Replace(mappings)
	return r
}

// Replace swaps in a new mapping set atomically. In-flight resolutions
// finish against the old snapshot.
func (r *Resolver) Replace(mappings []Mapping) {
	m := make(map[key]string, len(mappings))
	for _, t := range mappings {
		m[key{t.DeviceID, t.Signature}] = t.MacroID
	}
	r.mu.Lock()
	r.m = m
	r.mu.Unlock()
}

// Len returns the number of active mappings.
func (r *Resolver) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.m)
}

// Resolve looks up the event's signature, first for the exact device,
// then for the any-device wildcard. Unmatched events resolve to nothing;
// that is silence, not an error.
func (r *Resolver) Resolve(ev input.Event) (Match, bool) {
	sig := ev.Signature()
	if sig == "" {
		return Match{}, false
	}

	r.mu.RLock()
	id, ok := r.m[key{ev.DeviceID, sig}]
	if !ok {
		id, ok = r.m[key{"", sig}]
	}
	r.mu.RUnlock()
	if !ok {
		return Match{}, false
	}

	m := Match{MacroID: id}
	if ev.HasText() {
		m.Text = ev.Text
	}
	return m, true
}

// DecodeMappings parses the trigger configuration JSON:
//
//	{"triggers": [
//	  {"device": "kb-main", "event": "key:F13", "macro": "m1"}
//	]}
//
// The device field may be omitted for an any-device mapping. Duplicate
// (device, event) pairs reject the document since their resolution order
// would be undefined.
func DecodeMappings(data []byte) ([]Mapping, error) {
	if !gjson.ValidBytes(data) {
		return nil, fmt.Errorf("trigger: invalid mapping JSON")
	}

	doc := gjson.ParseBytes(data)
	arr := doc.Get("triggers")
	if !arr.IsArray() {
		return nil, fmt.Errorf("trigger: missing \"triggers\" array")
	}

	var out []Mapping
	seen := make(map[key]bool)
	var decodeErr error
	arr.ForEach(func(_, item gjson.Result) bool {
		m := Mapping{
			DeviceID:  item.Get("device").String(),
			Signature: item.Get("event").String(),
			MacroID:   item.Get("macro").String(),
		}
		if m.Signature == "" || m.MacroID == "" {
			decodeErr = fmt.Errorf("trigger: mapping %d: event and macro are required", len(out))
			return false
		}
		k := key{m.DeviceID, m.Signature}
		if seen[k] {
			decodeErr = fmt.Errorf("trigger: duplicate mapping for %s/%s", m.DeviceID, m.Signature)
			return false
		}
		seen[k] = true
		out = append(out, m)
		return true
	})
	if decodeErr != nil {
		return nil, decodeErr
	}
	return out, nil
}
