package lower

import (
	"testing"

	"github.com/mincamlc/mincamlc/internal/ast"
	"github.com/mincamlc/mincamlc/internal/ctx"
	"github.com/mincamlc/mincamlc/internal/lir"
	"github.com/mincamlc/mincamlc/internal/sema"
	"github.com/mincamlc/mincamlc/internal/typecheck"
)

// lowerSource drives the whole front end exactly as internal/driver does,
// returning lowered functions ready for sema/codegen.
func lowerSource(t *testing.T, src string) ([]*lir.Fun, *ctx.Ctx, ctx.VarId) {
	t.Helper()
	c := ctx.New()
	p := ast.NewParser(src, c)
	prog, err := p.ParseProgram()
	if err != nil {
		t.Fatalf("ParseProgram(%q): %v", src, err)
	}
	env, err := typecheck.CheckProgram(c, prog)
	if err != nil {
		t.Fatalf("CheckProgram(%q): %v", src, err)
	}
	for id, ty := range env {
		c.SetType(id, ty)
	}
	funs, mainID, err := LowerProgram(c, prog)
	if err != nil {
		t.Fatalf("LowerProgram(%q): %v", src, err)
	}
	return funs, c, mainID
}

func TestLowerSimpleArithmeticIsConsistent(t *testing.T) {
	funs, c, mainID := lowerSource(t, "print_int (1 + 2 * 3)")
	if len(funs) == 0 {
		t.Fatal("LowerProgram produced no functions")
	}
	if errs := sema.ValidateProgram(c, funs, mainID); len(errs) != 0 {
		t.Fatalf("sema.ValidateProgram found defects in lowered output: %v", errs)
	}
}

func TestLowerIfIsConsistent(t *testing.T) {
	funs, c, mainID := lowerSource(t, "print_int (if 1 = 1 then 2 else 3)")
	if errs := sema.ValidateProgram(c, funs, mainID); len(errs) != 0 {
		t.Fatalf("sema.ValidateProgram found defects in lowered if: %v", errs)
	}
}

func TestLowerLetRecIsConsistent(t *testing.T) {
	funs, c, mainID := lowerSource(t, "let rec fact n = if n <= 1 then 1 else n * (fact (n + (0-1))) in print_int (fact 5)")
	if len(funs) < 2 {
		t.Fatalf("expected at least 2 lowered functions (main + fact), got %d", len(funs))
	}
	if errs := sema.ValidateProgram(c, funs, mainID); len(errs) != 0 {
		t.Fatalf("sema.ValidateProgram found defects in lowered letrec: %v", errs)
	}
}
