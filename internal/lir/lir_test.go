package lir

import (
	"testing"

	"github.com/mincamlc/mincamlc/internal/ctx"
)

func TestBlockByLabel(t *testing.T) {
	entry := &Block{Label: "entry", Exit: ExitJump("loop")}
	loop := &Block{Label: "loop", Exit: ExitReturn(ctx.VarId(1))}
	f := &Fun{Name: ctx.VarId(0), Blocks: []*Block{entry, loop}}

	if got := f.BlockByLabel("loop"); got != loop {
		t.Fatalf("BlockByLabel(loop) = %v, want %v", got, loop)
	}
	if got := f.BlockByLabel("missing"); got != nil {
		t.Fatalf("BlockByLabel(missing) = %v, want nil", got)
	}
}

func TestAtomConstructors(t *testing.T) {
	if a := AtomUnit(); !a.IsUnit {
		t.Error("AtomUnit().IsUnit = false")
	}
	if a := AtomInt(7); a.IntVal != 7 || a.IsFloat() {
		t.Errorf("AtomInt(7) = %+v", a)
	}
	if a := AtomFloat(1.5); a.FloatVal != 1.5 || !a.IsFloat() {
		t.Errorf("AtomFloat(1.5) = %+v", a)
	}
	if a := AtomVar(ctx.VarId(3)); !a.IsVar || a.Var != 3 {
		t.Errorf("AtomVar(3) = %+v", a)
	}
}

func TestArithOpAndCmpStrings(t *testing.T) {
	if OpAdd.String() != "add" || OpMul.String() != "mul" {
		t.Errorf("ArithOp.String() mismatched names")
	}
	if CmpLessThan.String() != "lt" || CmpNotEqual.String() != "neq" {
		t.Errorf("Cmp.String() mismatched names")
	}
}
