package macro

import (
	"reflect"
	"strings"
	"testing"
)

const libraryJSON = `{
  "macros": [
    {
      "id": "delete_words",
      "name": "Delete last N words",
      "dynamic": true,
      "variables": ["n"],
      "actions": [
        {"type": "key_press", "params": {"key": "ctrl+backspace", "repeat": "{n}"}}
      ]
    },
    {
      "id": "open_report",
      "name": "Open report",
      "actions": [
        {"type": "open_file", "params": {"path": "/srv/report.pdf"}},
        {"type": "wait", "params": {"duration": "250"}}
      ]
    }
  ]
}`

func TestDecodeLibrary(t *testing.T) {
	lib, err := DecodeLibrary([]byte(libraryJSON))
	if err != nil {
		t.Fatalf("DecodeLibrary() error = %v", err)
	}
	if len(lib) != 2 {
		t.Fatalf("len(lib) = %d, want 2", len(lib))
	}

	dw := lib["delete_words"]
	if !dw.Dynamic {
		t.Error("delete_words should be dynamic")
	}
	if !reflect.DeepEqual(dw.Variables, []string{"n"}) {
		t.Errorf("Variables = %v, want [n]", dw.Variables)
	}
	if got := dw.Actions[0].Params["repeat"]; got != "{n}" {
		t.Errorf("repeat param = %q, want %q", got, "{n}")
	}

	or := lib["open_report"]
	if len(or.Actions) != 2 || or.Actions[1].Type != Wait {
		t.Errorf("open_report actions = %v", or.Actions)
	}
}

func TestDecodeLibraryErrors(t *testing.T) {
	tests := []struct {
		name string
		data string
		want string
	}{
		{"invalid JSON", `{"macros": [`, "invalid library JSON"},
		{"missing array", `{"version": 1}`, "missing"},
		{
			"duplicate id",
			`{"macros": [{"id": "a", "actions": []}, {"id": "a", "actions": []}]}`,
			"duplicate id",
		},
		{
			"invalid macro",
			`{"macros": [{"id": "a", "actions": [{"type": "teleport"}]}]}`,
			"unknown type",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeLibrary([]byte(tt.data))
			if err == nil {
				t.Fatal("DecodeLibrary() succeeded, want error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error = %v, want substring %q", err, tt.want)
			}
		})
	}
}

func TestEncodeLibraryRoundTrip(t *testing.T) {
	lib, err := DecodeLibrary([]byte(libraryJSON))
	if err != nil {
		t.Fatalf("DecodeLibrary() error = %v", err)
	}

	data, err := EncodeLibrary(lib)
	if err != nil {
		t.Fatalf("EncodeLibrary() error = %v", err)
	}

	again, err := DecodeLibrary(data)
	if err != nil {
		t.Fatalf("DecodeLibrary(encoded) error = %v", err)
	}
	if !reflect.DeepEqual(lib, again) {
		t.Errorf("round trip mismatch:\n got %#v\nwant %#v", again, lib)
	}

	// Stable output.
	data2, err := EncodeLibrary(lib)
	if err != nil {
		t.Fatalf("EncodeLibrary() error = %v", err)
	}
	if string(data) != string(data2) {
		t.Error("EncodeLibrary output is not deterministic")
	}
}

func TestStoreReplace(t *testing.T) {
	s := NewStore(Library{"a": {ID: "a"}})

	if _, ok := s.Get("a"); !ok {
		t.Fatal("Get(a) should find the initial macro")
	}

	s.Replace(Library{"b": {ID: "b"}})

	if _, ok := s.Get("a"); ok {
		t.Error("Get(a) should miss after Replace")
	}
	if _, ok := s.Get("b"); !ok {
		t.Error("Get(b) should hit after Replace")
	}
	if s.Len() != 1 {
		t.Errorf("Len() = %d, want 1", s.Len())
	}
}
