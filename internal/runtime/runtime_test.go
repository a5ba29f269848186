package runtime

import "testing"

func TestLookupKnownBuiltin(t *testing.T) {
	sig, ok := Lookup("sqrt")
	if !ok {
		t.Fatal("Lookup(sqrt) = not found, want found")
	}
	if sig.Symbol != "sqrt" {
		t.Errorf("Symbol = %q, want sqrt", sig.Symbol)
	}
}

func TestLookupUnknownBuiltin(t *testing.T) {
	if _, ok := Lookup("does_not_exist"); ok {
		t.Fatal("Lookup(does_not_exist) = found, want not found")
	}
}

func TestBuiltinsHaveUniqueNames(t *testing.T) {
	seen := make(map[string]bool, len(Builtins))
	for _, b := range Builtins {
		if seen[b.Name] {
			t.Fatalf("duplicate built-in name %q", b.Name)
		}
		seen[b.Name] = true
	}
}
