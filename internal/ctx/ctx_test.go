package ctx

import (
	"testing"

	"github.com/mincamlc/mincamlc/internal/runtime"
)

func TestNewRegistersEveryRuntimeBuiltin(t *testing.T) {
	c := New()
	builtins := c.Builtins()
	if len(builtins) != len(runtime.Builtins) {
		t.Fatalf("got %d registered built-ins, want %d (one per internal/runtime.Builtins entry)", len(builtins), len(runtime.Builtins))
	}
	for i, b := range builtins {
		want := runtime.Builtins[i]
		v := c.GetVar(b.Id)
		if v.Name != want.Name {
			t.Errorf("built-in %d name = %q, want %q", i, v.Name, want.Name)
		}
		if !b.Type.Equal(want.Type) {
			t.Errorf("built-in %q type = %v, want %v", v.Name, b.Type, want.Type)
		}
	}
}

func TestLookupBuiltinResolvesRuntimeNames(t *testing.T) {
	c := New()
	for _, want := range runtime.Builtins {
		id, ok := c.LookupBuiltin(want.Name)
		if !ok {
			t.Fatalf("LookupBuiltin(%q) = not found", want.Name)
		}
		if c.GetVar(id).Name != want.Name {
			t.Fatalf("LookupBuiltin(%q) resolved to a different variable", want.Name)
		}
	}
}
