package sema

import (
	"testing"

	"github.com/mincamlc/mincamlc/internal/ctx"
	"github.com/mincamlc/mincamlc/internal/lir"
)

func TestValidateProgramAcceptsWellFormedFunction(t *testing.T) {
	c := ctx.New()
	arg := c.Declare("x")
	fname := c.Declare("f")

	entry := &lir.Block{
		Label: "entry",
		Stmts: nil,
		Exit:  lir.ExitReturn(arg),
	}
	f := &lir.Fun{Name: fname, Args: []ctx.VarId{arg}, Blocks: []*lir.Block{entry}}

	if errs := ValidateProgram(c, []*lir.Fun{f}, fname); len(errs) != 0 {
		t.Fatalf("ValidateProgram on well-formed function = %v, want no errors", errs)
	}
}

func TestValidateProgramCatchesUndefinedVariable(t *testing.T) {
	c := ctx.New()
	fname := c.Declare("f")
	bogus := c.Declare("bogus") // never assigned, never an argument

	entry := &lir.Block{
		Label: "entry",
		Exit:  lir.ExitReturn(bogus),
	}
	f := &lir.Fun{Name: fname, Blocks: []*lir.Block{entry}}

	errs := ValidateProgram(c, []*lir.Fun{f}, fname)
	if len(errs) == 0 {
		t.Fatal("expected an error for a return of an undefined variable, got none")
	}
}

func TestValidateProgramCatchesMissingJumpLabel(t *testing.T) {
	c := ctx.New()
	fname := c.Declare("f")
	v := c.Declare("v")

	entry := &lir.Block{
		Label: "entry",
		Stmts: []lir.Stmt{lir.Asgn(v, lir.ExprAtom(lir.AtomInt(0)))},
		Exit:  lir.ExitJump("nowhere"),
	}
	f := &lir.Fun{Name: fname, Blocks: []*lir.Block{entry}}

	errs := ValidateProgram(c, []*lir.Fun{f}, fname)
	if len(errs) == 0 {
		t.Fatal("expected an error for a jump to a missing label, got none")
	}
}

func TestValidateProgramCatchesMissingMain(t *testing.T) {
	c := ctx.New()
	mainID := c.Declare("main")

	errs := ValidateProgram(c, nil, mainID)
	if len(errs) == 0 {
		t.Fatal("expected an error when main has no lowered body, got none")
	}
}
