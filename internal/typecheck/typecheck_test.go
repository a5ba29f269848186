package typecheck

import (
	"testing"

	"github.com/mincamlc/mincamlc/internal/ast"
	"github.com/mincamlc/mincamlc/internal/ctx"
	"github.com/mincamlc/mincamlc/internal/types"
)

func check(t *testing.T, src string) (*ast.Expr, *ctx.Ctx, TypeEnv) {
	t.Helper()
	c := ctx.New()
	p := ast.NewParser(src, c)
	e, err := p.ParseProgram()
	if err != nil {
		t.Fatalf("ParseProgram(%q): %v", src, err)
	}
	env, err := CheckProgram(c, e)
	if err != nil {
		t.Fatalf("CheckProgram(%q): %v", src, err)
	}
	return e, c, env
}

func TestCheckArithmeticIsInt(t *testing.T) {
	e, _, _ := check(t, "let x = 1 + 2 * 3 in ()")
	if e.Rhs.Type == nil || e.Rhs.Type.Kind != types.Int {
		t.Fatalf("type = %v, want Int", e.Rhs.Type)
	}
}

func TestCheckFloatArithmeticIsFloat(t *testing.T) {
	e, _, _ := check(t, "let x = 1.0 +. 2.0 in ()")
	if e.Rhs.Type == nil || e.Rhs.Type.Kind != types.Float {
		t.Fatalf("type = %v, want Float", e.Rhs.Type)
	}
}

func TestCheckLetBindsResolvedType(t *testing.T) {
	e, _, env := check(t, "let x = 1 in print_int (x + 1)")
	if e.Kind != ast.KLet {
		t.Fatalf("top-level kind = %v, want KLet", e.Kind)
	}
	xTy, ok := env[e.Bndr.Id]
	if !ok || xTy.Kind != types.Int {
		t.Fatalf("env[x] = %v, ok=%v, want Int", xTy, ok)
	}
}

func TestCheckUnboundVarReported(t *testing.T) {
	c := ctx.New()
	p := ast.NewParser("y + 1", c)
	e, err := p.ParseProgram()
	if err != nil {
		t.Fatalf("ParseProgram: %v", err)
	}
	_, err = CheckProgram(c, e)
	if err == nil {
		t.Fatal("expected unbound-variable error, got nil")
	}
	if _, ok := err.(*UnboundVar); !ok {
		t.Fatalf("err = %T(%v), want *UnboundVar", err, err)
	}
}

func TestCheckMismatchedBranchesReportsUnifyError(t *testing.T) {
	_, c2, _ := func() (*ast.Expr, *ctx.Ctx, TypeEnv) {
		c := ctx.New()
		p := ast.NewParser("if true then 1 else 1.0", c)
		e, err := p.ParseProgram()
		if err != nil {
			t.Fatalf("ParseProgram: %v", err)
		}
		_, err = CheckProgram(c, e)
		if err == nil {
			t.Fatal("expected unify error for mismatched if-branches, got nil")
		}
		if _, ok := err.(*UnifyError); !ok {
			t.Fatalf("err = %T(%v), want *UnifyError", err, err)
		}
		return e, c, nil
	}()
	_ = c2
}

func TestCheckLetRecFunctionApplication(t *testing.T) {
	e, _, env := check(t, "let rec id x = x in print_int (id 1)")
	if e.Kind != ast.KLetRec {
		t.Fatalf("top-level kind = %v, want KLetRec", e.Kind)
	}
	fTy, ok := env[e.FunBndr.Id]
	if !ok || fTy.Kind != types.Fun {
		t.Fatalf("env[id] = %v, ok=%v, want Fun", fTy, ok)
	}
	app := e.Body.AppArgs[0]
	if app.Type == nil || app.Type.Kind != types.Int {
		t.Fatalf("application result type = %v, want Int", app.Type)
	}
}
