// Package sema performs post-lowering consistency checks over
// internal/lir, the lowered-IR-level analogue of the teacher's
// ir/validate.go ("ValidateTree"): a single tree-walking pass collecting
// every defect before returning, rather than failing at the first one,
// so a user sees every bad function in one run.
//
// spec.md §3 describes IR-consistency defects (dangling jump targets,
// references to a VarId never assigned) as cases where "code-gen
// panics" — this package exists to catch them earlier, as reported
// errors, so a malformed lowering is a compiler error rather than a
// runtime panic deep inside internal/codegen.
package sema

import (
	"fmt"

	"github.com/mincamlc/mincamlc/internal/ctx"
	"github.com/mincamlc/mincamlc/internal/lir"
)

// ValidateProgram checks every function in funs for internal
// consistency and returns every defect found, not just the first.
// Mirrors ValidateTree's "collect everything, report together" shape.
func ValidateProgram(c *ctx.Ctx, funs []*lir.Fun, mainID ctx.VarId) []error {
	var errs []error

	names := make(map[ctx.VarId]*lir.Fun, len(funs))
	for _, f := range funs {
		names[f.Name] = f
	}
	if _, ok := names[mainID]; !ok {
		errs = append(errs, fmt.Errorf("sema: main function %s has no lowered body", c.GetVar(mainID).Name))
	}

	// A VarId is well-defined program-wide if it names a built-in or any
	// top-level Fun (spec.md §3's (c)/(d) clauses):
	// every EApp to a built-in (internal/lower's lowerApp) and every
	// ExprTuplePut storing a closure's code pointer (lowerLetRec, into the
	// *enclosing* function's blocks, naming a *different* top-level Fun)
	// reads one of these VarIds without it ever being a block argument or
	// an Asgn in the function that reads it.
	globals := make(map[ctx.VarId]bool, len(names)+8)
	for id := range names {
		globals[id] = true
	}
	for _, b := range c.Builtins() {
		globals[b.Id] = true
	}

	for _, f := range funs {
		errs = append(errs, validateFun(f, globals)...)
	}
	return errs
}

// validateFun checks one function: every label an Exit targets must
// name a block that actually exists in the same function, and every
// VarId an Expr/Exit reads must have been defined earlier — as a
// function argument, by an Asgn statement occurring before its use in
// block emission order, or program-wide via globals (built-ins and
// top-level function names). Grounded on validateExpr/validateRel's
// "identifier not declared" checks, restated for VarId identity instead
// of name-string lookup in a scope stack.
func validateFun(f *lir.Fun, globals map[ctx.VarId]bool) []error {
	var errs []error

	if len(f.Blocks) == 0 {
		return []error{fmt.Errorf("sema: function %d has no basic blocks", f.Name)}
	}

	labels := make(map[lir.Label]bool, len(f.Blocks))
	for _, b := range f.Blocks {
		if labels[b.Label] {
			errs = append(errs, fmt.Errorf("sema: function %d has duplicate block label %q", f.Name, b.Label))
		}
		labels[b.Label] = true
	}

	defined := make(map[ctx.VarId]bool, len(f.Args)+len(globals))
	for id := range globals {
		defined[id] = true
	}
	for _, a := range f.Args {
		defined[a] = true
	}

	for _, b := range f.Blocks {
		for _, st := range b.Stmts {
			for _, used := range exprOperands(st.Rhs) {
				if !defined[used] {
					errs = append(errs, fmt.Errorf("sema: function %d block %q uses undefined variable %d", f.Name, b.Label, used))
				}
			}
			if st.Kind == lir.SAsgn {
				defined[st.Lhs] = true
			}
		}
		errs = append(errs, validateExit(f, b, defined, labels)...)
	}
	return errs
}

func validateExit(f *lir.Fun, b *lir.Block, defined map[ctx.VarId]bool, labels map[lir.Label]bool) []error {
	var errs []error
	switch b.Exit.Kind {
	case lir.XReturn:
		if !defined[b.Exit.Var] {
			errs = append(errs, fmt.Errorf("sema: function %d block %q returns undefined variable %d", f.Name, b.Label, b.Exit.Var))
		}
	case lir.XBranch:
		if !defined[b.Exit.V1] {
			errs = append(errs, fmt.Errorf("sema: function %d block %q branches on undefined variable %d", f.Name, b.Label, b.Exit.V1))
		}
		if !defined[b.Exit.V2] {
			errs = append(errs, fmt.Errorf("sema: function %d block %q branches on undefined variable %d", f.Name, b.Label, b.Exit.V2))
		}
		if !labels[b.Exit.ThenLabel] {
			errs = append(errs, fmt.Errorf("sema: function %d block %q branches to missing label %q", f.Name, b.Label, b.Exit.ThenLabel))
		}
		if !labels[b.Exit.ElseLabel] {
			errs = append(errs, fmt.Errorf("sema: function %d block %q branches to missing label %q", f.Name, b.Label, b.Exit.ElseLabel))
		}
	case lir.XJump:
		if !labels[b.Exit.JumpLabel] {
			errs = append(errs, fmt.Errorf("sema: function %d block %q jumps to missing label %q", f.Name, b.Label, b.Exit.JumpLabel))
		}
	}
	return errs
}

// exprOperands returns every VarId an Expr reads, independent of kind.
func exprOperands(e lir.Expr) []ctx.VarId {
	var ids []ctx.VarId
	switch e.Kind {
	case lir.EAtom:
		if e.Atom.IsVar {
			ids = append(ids, e.Atom.Var)
		}
	case lir.EIBinOp, lir.EFBinOp:
		ids = append(ids, e.Arg1, e.Arg2)
	case lir.ENeg, lir.EFNeg:
		ids = append(ids, e.Arg1)
	case lir.EApp:
		ids = append(ids, e.Fun)
		ids = append(ids, e.AppArgs...)
	case lir.ETuple:
		// element values arrive via subsequent ETuplePut statements in
		// this lowering, so ETuple itself reads nothing.
	case lir.ETuplePut:
		ids = append(ids, e.Tuple, e.ElemVal)
	case lir.ETupleGet:
		ids = append(ids, e.Tuple)
	case lir.EArrayAlloc:
		ids = append(ids, e.LenVar, e.ElemVal)
	case lir.EArrayGet:
		ids = append(ids, e.Array, e.IdxVar)
	case lir.EArrayPut:
		ids = append(ids, e.Array, e.IdxVar, e.ElemVal)
	}
	return ids
}
