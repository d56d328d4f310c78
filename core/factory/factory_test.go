package factory

import (
	"testing"
	"time"
)

type sample struct{ A int }

type sampleConf struct {
	A int `json:"a"`
}

// Test registry registration and instantiation using Decode.
func TestRegistry_Create(t *testing.T) {
	reg := NewRegistry[*sample]()
	if err := reg.Register("s", func(conf map[string]any) (*sample, error) {
		var c sampleConf
		if err := Decode(conf, &c); err != nil {
			return nil, err
		}
		return &sample{A: c.A}, nil
	}); err != nil {
		t.Fatalf("register: %v", err)
	}
	inst, err := reg.Create(ModuleConfig{Type: "s", Conf: map[string]any{"a": 3}})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if inst.A != 3 {
		t.Fatalf("expected 3 got %d", inst.A)
	}
}

// Test duplicate registration and unknown type errors.
func TestRegistry_Errors(t *testing.T) {
	reg := NewRegistry[int]()
	if err := reg.Register("x", func(map[string]any) (int, error) { return 1, nil }); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := reg.Register("x", nil); err == nil {
		t.Fatal("expected duplicate error")
	}
	if _, err := reg.Create(ModuleConfig{Type: "y"}); err == nil {
		t.Fatal("expected unknown type error")
	}
}

// Values from env overrides arrive as strings and must still decode.
func TestDecode_WeakTypes(t *testing.T) {
	var c struct {
		Path  string        `json:"path"`
		Size  int           `json:"max_size_mb"`
		Every time.Duration `json:"every"`
	}
	err := Decode(map[string]any{"path": "runs.jsonl", "max_size_mb": "5", "every": "2m"}, &c)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if c.Size != 5 || c.Every != 2*time.Minute || c.Path != "runs.jsonl" {
		t.Fatalf("unexpected %+v", c)
	}
}
