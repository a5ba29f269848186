// Package runtime is the single source of truth for the fixed set of
// built-in functions every lowered program may call: their MinCaml-
// visible name, source-language type, and the external symbol
// internal/codegen declares them against. Per spec.md §6, linking a
// runtime is out of scope — this package supplies the contract (names,
// types, symbols), not an implementation to link in.
//
// Grounded on the teacher's own treatment of printf/atoi/atof in
// ir/llvm/transform.go (genPrintf/genAtoi/genAtof: one llvm.AddFunction
// declaration per external symbol, with no definition emitted — the
// object file records an undefined external symbol and expects it to
// be supplied by whatever links the final executable, exactly as libc
// supplies printf/atoi/atof at link time there).
package runtime

import "github.com/mincamlc/mincamlc/internal/types"

// Signature names one built-in's source type and external symbol.
// internal/ctx.New builds its variable table directly from Builtins, so
// there is exactly one place this table is written, not two kept in
// sync by hand.
type Signature struct {
	Name   string // MinCaml-visible name.
	Type   types.Type
	Symbol string // External symbol internal/codegen and internal/codegen/native declare and call.
	Doc    string
}

// Builtins is the fixed built-in contract: every entry is declared in
// internal/codegen and internal/codegen/native as an imported data
// symbol holding the built-in's code address (spec.md §4.4/§6) — the
// emitted object file expects a runtime providing these symbols at
// link time. Symbol equals Name unmangled (libm already supplies
// sqrt/sin/cos under these names; the rest need a small runtime shim),
// matching the teacher's own printf/atoi/atof external declarations,
// which likewise expect libc to supply those three symbols verbatim.
var Builtins = []Signature{
	{"print_int", types.MkFun([]types.Type{types.MkInt()}, types.MkUnit()), "print_int", "Writes a decimal integer followed by no trailing newline."},
	{"print_newline", types.MkFun([]types.Type{types.MkUnit()}, types.MkUnit()), "print_newline", "Writes a single newline character."},
	{"float_of_int", types.MkFun([]types.Type{types.MkInt()}, types.MkFloat()), "float_of_int", "Converts an i64 to its nearest f64 representation."},
	{"int_of_float", types.MkFun([]types.Type{types.MkFloat()}, types.MkInt()), "int_of_float", "Rounds an f64 to the nearest i64."},
	{"truncate", types.MkFun([]types.Type{types.MkFloat()}, types.MkInt()), "truncate", "Truncates an f64 toward zero to an i64."},
	{"abs_float", types.MkFun([]types.Type{types.MkFloat()}, types.MkFloat()), "abs_float", "Computes the absolute value of an f64."},
	{"sqrt", types.MkFun([]types.Type{types.MkFloat()}, types.MkFloat()), "sqrt", "Computes the square root of an f64 (libm sqrt)."},
	{"sin", types.MkFun([]types.Type{types.MkFloat()}, types.MkFloat()), "sin", "Computes the sine of an f64 in radians (libm sin)."},
	{"cos", types.MkFun([]types.Type{types.MkFloat()}, types.MkFloat()), "cos", "Computes the cosine of an f64 in radians (libm cos)."},
}

// Lookup returns the Signature for name, if it is a known built-in.
func Lookup(name string) (Signature, bool) {
	for _, s := range Builtins {
		if s.Name == name {
			return s, true
		}
	}
	return Signature{}, false
}
