// Package lower performs closure conversion and basic-block construction,
// turning a type-checked internal/ast.Expr into the internal/lir functions
// internal/codegen consumes. spec.md §1 names this an external collaborator
// pass; it is supplied here (per SPEC_FULL.md's expansion) because without
// it there is no lowered IR to drive the core CodeGen component.
//
// Every first-class function value is converted to an explicit closure: a
// heap tuple whose slot 0 holds the function's code pointer and whose
// remaining slots hold its captured free variables (spec.md §4.3, §9's
// "closure/function duality" note). No known-function optimization is
// attempted — spec.md's Non-goals exclude inlining/dead-code elimination,
// and every call to a user function, including self-recursion, goes
// uniformly through a TupleGet-then-indirect-App sequence; built-in calls
// name the built-in's VarId as the callee and read no slot 0. Grounded on the Block/Fun shape in
// original_source/src/lower/block.rs and fun.rs.
package lower

import (
	"fmt"

	"github.com/mincamlc/mincamlc/internal/ast"
	"github.com/mincamlc/mincamlc/internal/ctx"
	"github.com/mincamlc/mincamlc/internal/lir"
	"github.com/mincamlc/mincamlc/internal/types"
	"github.com/mincamlc/mincamlc/internal/util"
)

// session carries the state threaded through one whole-program lowering
// run: the Ctx (for fresh names and type bookkeeping), the label supply,
// and the growing list of emitted top-level functions.
type session struct {
	c       *ctx.Ctx
	labels  *util.Labeler
	funs    []*lir.Fun
	builtin map[ctx.VarId]bool
}

// builder accumulates blocks for one Fun under construction.
type builder struct {
	s       *session
	blocks  []*lir.Block
	cur     int // index into blocks of the block currently being appended to
}

// LowerProgram closure-converts and lowers the whole program expr into a
// set of basic-block functions, returning the synthesized entry function's
// VarId (spec.md §4.5's "user-level main"). It is named "mincaml_main" so
// its symbol does not clash with the exported "main" entry point each back
// end emits to call it.
func LowerProgram(c *ctx.Ctx, expr *ast.Expr) (funs []*lir.Fun, mainID ctx.VarId, err error) {
	s := &session{c: c, labels: &util.Labeler{}, builtin: map[ctx.VarId]bool{}}
	for _, b := range c.Builtins() {
		s.builtin[b.Id] = true
	}

	mainID = c.Declare("mincaml_main")
	c.SetType(mainID, types.MkFun(nil, types.MkUnit()))

	b := s.newBuilder()
	if _, err := b.lower(expr); err != nil {
		return nil, 0, err
	}
	// The top-level expression is unified with Unit by the type checker;
	// its value (always a Unit encoded as word 0) is discarded and the
	// synthesized main simply returns 0.
	zero := b.fresh(types.MkInt())
	b.emit(lir.Asgn(zero, lir.ExprAtom(lir.AtomInt(0))))
	b.finish(lir.ExitReturn(zero))

	mainFun := &lir.Fun{Name: mainID, Args: nil, Blocks: b.blocks, ReturnType: lir.RepWord}
	s.funs = append(s.funs, mainFun)

	return s.funs, mainID, nil
}

func (s *session) newBuilder() *builder {
	b := &builder{s: s}
	b.blocks = []*lir.Block{{Label: lir.Label(s.labels.New(util.LabelBlock))}}
	return b
}

func (b *builder) curBlock() *lir.Block { return b.blocks[b.cur] }

func (b *builder) emit(st lir.Stmt) { blk := b.curBlock(); blk.Stmts = append(blk.Stmts, st) }

// finish sets the exit of the currently open block. Every block must have
// finish called on it exactly once.
func (b *builder) finish(ex lir.Exit) { b.curBlock().Exit = ex }

// newBlock appends a fresh empty block and makes it current, returning its
// label.
func (b *builder) newBlock() lir.Label {
	l := lir.Label(b.s.labels.New(util.LabelBlock))
	b.blocks = append(b.blocks, &lir.Block{Label: l})
	b.cur = len(b.blocks) - 1
	return l
}

func (b *builder) fresh(ty types.Type) ctx.VarId {
	id := b.s.c.Declare("")
	b.s.c.SetType(id, ty)
	return id
}

// lower recursively lowers e into the current block(s), returning the
// VarId holding its value. It may create and switch through several new
// blocks (If) before returning, in which case the "current" block when it
// returns is always the continuation point for whatever follows e.
func (b *builder) lower(e *ast.Expr) (ctx.VarId, error) {
	switch e.Kind {
	case ast.KUnit:
		v := b.fresh(types.MkUnit())
		b.emit(lir.Asgn(v, lir.ExprAtom(lir.AtomUnit())))
		return v, nil

	case ast.KBool:
		v := b.fresh(types.MkBool())
		iv := int64(0)
		if e.BoolVal {
			iv = 1
		}
		b.emit(lir.Asgn(v, lir.ExprAtom(lir.AtomInt(iv))))
		return v, nil

	case ast.KInt:
		v := b.fresh(types.MkInt())
		b.emit(lir.Asgn(v, lir.ExprAtom(lir.AtomInt(e.IntVal))))
		return v, nil

	case ast.KFloat:
		v := b.fresh(types.MkFloat())
		b.emit(lir.Asgn(v, lir.ExprAtom(lir.AtomFloat(e.FloatVal))))
		return v, nil

	case ast.KVar:
		if e.Resolved == nil {
			return 0, fmt.Errorf("lower: unresolved variable %q reached lowering", e.Name)
		}
		return e.Resolved.Id, nil

	case ast.KNot:
		a, err := b.lower(e.E1)
		if err != nil {
			return 0, err
		}
		v := b.fresh(types.MkBool())
		one := b.fresh(types.MkInt())
		b.emit(lir.Asgn(one, lir.ExprAtom(lir.AtomInt(1))))
		b.emit(lir.Asgn(v, lir.ExprIBinOp(lir.OpSub, one, a)))
		return v, nil

	case ast.KNeg:
		a, err := b.lower(e.E1)
		if err != nil {
			return 0, err
		}
		v := b.fresh(types.MkInt())
		b.emit(lir.Asgn(v, lir.ExprNeg(a)))
		return v, nil

	case ast.KFNeg:
		a, err := b.lower(e.E1)
		if err != nil {
			return 0, err
		}
		v := b.fresh(types.MkFloat())
		b.emit(lir.Asgn(v, lir.ExprFNeg(a)))
		return v, nil

	case ast.KAdd, ast.KSub, ast.KMul, ast.KDiv:
		return b.lowerArith(e, types.MkInt(), false)

	case ast.KFAdd, ast.KFSub, ast.KFMul, ast.KFDiv:
		return b.lowerArith(e, types.MkFloat(), true)

	case ast.KEq, ast.KLe:
		return b.lowerCompare(e)

	case ast.KIf:
		return b.lowerIf(e)

	case ast.KLet:
		rhs, err := b.lower(e.Rhs)
		if err != nil {
			return 0, err
		}
		b.s.c.SetType(e.Bndr.Id, b.s.c.VarType(rhs))
		b.emit(lir.Asgn(e.Bndr.Id, lir.ExprAtom(lir.AtomVar(rhs))))
		return b.lower(e.Body)

	case ast.KLetRec:
		if err := b.lowerLetRec(e); err != nil {
			return 0, err
		}
		return b.lower(e.Body)

	case ast.KApp:
		return b.lowerApp(e)

	case ast.KTuple:
		elemVars := make([]ctx.VarId, len(e.Elems))
		elemTys := make([]types.Type, len(e.Elems))
		for i, el := range e.Elems {
			v, err := b.lower(el)
			if err != nil {
				return 0, err
			}
			elemVars[i] = v
			elemTys[i] = b.s.c.VarType(v)
		}
		tup := b.fresh(types.MkTuple(elemTys))
		b.emit(lir.Asgn(tup, lir.ExprTuple(len(elemVars))))
		for i, v := range elemVars {
			b.emit(lir.ExprStmt(lir.ExprTuplePut(tup, i, v)))
		}
		return tup, nil

	case ast.KLetTuple:
		rhs, err := b.lower(e.Rhs)
		if err != nil {
			return 0, err
		}
		rhsTy := b.s.c.VarType(rhs)
		for i, bndr := range e.Bndrs {
			elemTy := rhsTy.Elems[i]
			b.s.c.SetType(bndr.Id, elemTy)
			b.emit(lir.Asgn(bndr.Id, lir.ExprTupleGet(rhs, i)))
		}
		return b.lower(e.Body)

	case ast.KArray:
		lenVar, err := b.lower(e.E1)
		if err != nil {
			return 0, err
		}
		elemVar, err := b.lower(e.E2)
		if err != nil {
			return 0, err
		}
		elemTy := b.s.c.VarType(elemVar)
		arr := b.fresh(types.MkArray(elemTy))
		b.emit(lir.Asgn(arr, lir.ExprArrayAlloc(lenVar, elemVar)))
		return arr, nil

	case ast.KGet:
		arrVar, err := b.lower(e.E1)
		if err != nil {
			return 0, err
		}
		idxVar, err := b.lower(e.E2)
		if err != nil {
			return 0, err
		}
		elemTy := *b.s.c.VarType(arrVar).Elem
		v := b.fresh(elemTy)
		b.emit(lir.Asgn(v, lir.ExprArrayGet(arrVar, idxVar)))
		return v, nil

	case ast.KPut:
		arrVar, err := b.lower(e.E1)
		if err != nil {
			return 0, err
		}
		idxVar, err := b.lower(e.E2)
		if err != nil {
			return 0, err
		}
		valVar, err := b.lower(e.E3)
		if err != nil {
			return 0, err
		}
		v := b.fresh(types.MkUnit())
		b.emit(lir.Asgn(v, lir.ExprArrayPut(arrVar, idxVar, valVar)))
		return v, nil
	}
	return 0, fmt.Errorf("lower: unhandled expr kind %d", e.Kind)
}

func (b *builder) lowerArith(e *ast.Expr, operandTy types.Type, isFloat bool) (ctx.VarId, error) {
	a1, err := b.lower(e.E1)
	if err != nil {
		return 0, err
	}
	a2, err := b.lower(e.E2)
	if err != nil {
		return 0, err
	}
	var op lir.ArithOp
	switch e.Kind {
	case ast.KAdd, ast.KFAdd:
		op = lir.OpAdd
	case ast.KSub, ast.KFSub:
		op = lir.OpSub
	case ast.KMul, ast.KFMul:
		op = lir.OpMul
	case ast.KDiv, ast.KFDiv:
		op = lir.OpDiv
	}
	v := b.fresh(operandTy)
	if isFloat {
		b.emit(lir.Asgn(v, lir.ExprFBinOp(op, a1, a2)))
	} else {
		b.emit(lir.Asgn(v, lir.ExprIBinOp(op, a1, a2)))
	}
	return v, nil
}

func cmpKindOf(kind ast.Kind) lir.Cmp {
	if kind == ast.KEq {
		return lir.CmpEqual
	}
	return lir.CmpLessThanOrEqual
}

// lowerCompare lowers Eq/Le into a Word boolean via a control-flow diamond
// producing 1/0: lir has no standalone compare-to-value instruction, only
// a Branch that tests a Cmp at a block's exit.
func (b *builder) lowerCompare(e *ast.Expr) (ctx.VarId, error) {
	a1, err := b.lower(e.E1)
	if err != nil {
		return 0, err
	}
	a2, err := b.lower(e.E2)
	if err != nil {
		return 0, err
	}
	result := b.fresh(types.MkBool())
	entryIdx := b.cur

	thenLabel := b.newBlock()
	one := b.fresh(types.MkInt())
	b.emit(lir.Asgn(one, lir.ExprAtom(lir.AtomInt(1))))
	b.emit(lir.Asgn(result, lir.ExprAtom(lir.AtomVar(one))))

	elseLabel := b.newBlock()
	zero := b.fresh(types.MkInt())
	b.emit(lir.Asgn(zero, lir.ExprAtom(lir.AtomInt(0))))
	b.emit(lir.Asgn(result, lir.ExprAtom(lir.AtomVar(zero))))

	contLabel := b.newBlock()

	b.blocks[entryIdx].Exit = lir.ExitBranch(a1, a2, cmpKindOf(e.Kind), thenLabel, elseLabel)
	for _, l := range []lir.Label{thenLabel, elseLabel} {
		blk := b.blockByLabel(l)
		blk.Exit = lir.ExitJump(contLabel)
	}
	b.cur = b.blockIndexByLabel(contLabel)
	return result, nil
}

func (b *builder) blockByLabel(l lir.Label) *lir.Block {
	for _, blk := range b.blocks {
		if blk.Label == l {
			return blk
		}
	}
	panic("lower: unknown block label " + string(l))
}

func (b *builder) blockIndexByLabel(l lir.Label) int {
	for i, blk := range b.blocks {
		if blk.Label == l {
			return i
		}
	}
	panic("lower: unknown block label " + string(l))
}

// lowerIf lowers a three-way conditional into a Branch over the condition
// compared against the word constant 1, two arm blocks each assigning a
// shared result variable, and a continuation block — the same
// diamond shape as lowerCompare, generalized to arbitrary arm expressions.
func (b *builder) lowerIf(e *ast.Expr) (ctx.VarId, error) {
	cond, err := b.lower(e.E1)
	if err != nil {
		return 0, err
	}
	entryIdx := b.cur
	trueConst := b.fresh(types.MkInt())
	b.emit(lir.Asgn(trueConst, lir.ExprAtom(lir.AtomInt(1))))

	thenLabel := b.newBlock()
	thenVal, err := b.lower(e.E2)
	if err != nil {
		return 0, err
	}
	thenEndIdx := b.cur

	elseLabel := b.newBlock()
	elseVal, err := b.lower(e.E3)
	if err != nil {
		return 0, err
	}
	elseEndIdx := b.cur

	resultTy := b.s.c.VarType(thenVal)
	result := b.fresh(resultTy)
	b.blocks[thenEndIdx].Stmts = append(b.blocks[thenEndIdx].Stmts,
		lir.Asgn(result, lir.ExprAtom(lir.AtomVar(thenVal))))
	b.blocks[elseEndIdx].Stmts = append(b.blocks[elseEndIdx].Stmts,
		lir.Asgn(result, lir.ExprAtom(lir.AtomVar(elseVal))))

	contLabel := b.newBlock()

	b.blocks[entryIdx].Exit = lir.ExitBranch(cond, trueConst, lir.CmpEqual, thenLabel, elseLabel)
	b.blocks[thenEndIdx].Exit = lir.ExitJump(contLabel)
	b.blocks[elseEndIdx].Exit = lir.ExitJump(contLabel)
	b.cur = b.blockIndexByLabel(contLabel)
	return result, nil
}

// freeVars returns the distinct resolved VarIds referenced by e that are
// not declared within e itself and are not built-ins, in first-occurrence
// order. Used to compute a closure's capture list.
func freeVars(s *session, e *ast.Expr, bound map[ctx.VarId]bool, out *[]ctx.VarId, seen map[ctx.VarId]bool) {
	add := func(id ctx.VarId) {
		if bound[id] || s.builtin[id] || seen[id] {
			return
		}
		seen[id] = true
		*out = append(*out, id)
	}
	if e == nil {
		return
	}
	switch e.Kind {
	case ast.KVar:
		if e.Resolved != nil {
			add(e.Resolved.Id)
		}
	case ast.KLet:
		freeVars(s, e.Rhs, bound, out, seen)
		inner := cloneBound(bound)
		inner[e.Bndr.Id] = true
		freeVars(s, e.Body, inner, out, seen)
	case ast.KLetRec:
		inner := cloneBound(bound)
		inner[e.FunBndr.Id] = true
		for _, a := range e.Args {
			inner[a.Id] = true
		}
		freeVars(s, e.Rhs, inner, out, seen)
		outer := cloneBound(bound)
		outer[e.FunBndr.Id] = true
		freeVars(s, e.Body, outer, out, seen)
	case ast.KLetTuple:
		freeVars(s, e.Rhs, bound, out, seen)
		inner := cloneBound(bound)
		for _, bn := range e.Bndrs {
			inner[bn.Id] = true
		}
		freeVars(s, e.Body, inner, out, seen)
	case ast.KApp:
		freeVars(s, e.Fun, bound, out, seen)
		for _, a := range e.AppArgs {
			freeVars(s, a, bound, out, seen)
		}
	case ast.KTuple:
		for _, el := range e.Elems {
			freeVars(s, el, bound, out, seen)
		}
	default:
		for _, sub := range []*ast.Expr{e.E1, e.E2, e.E3, e.Rhs, e.Body, e.Fun} {
			freeVars(s, sub, bound, out, seen)
		}
	}
}

func cloneBound(m map[ctx.VarId]bool) map[ctx.VarId]bool {
	out := make(map[ctx.VarId]bool, len(m)+1)
	for k, v := range m {
		out[k] = v
	}
	return out
}

// lowerLetRec closure-converts one LetRec binding: it emits a new top-level
// Fun (keyed by a fresh code-pointer VarId distinct from the user-visible
// binder) and, at the binding site, allocates the closure tuple and binds
// the source-level name (FunBndr.Id) to it.
func (b *builder) lowerLetRec(e *ast.Expr) error {
	var fvs []ctx.VarId
	bound := map[ctx.VarId]bool{e.FunBndr.Id: true}
	for _, a := range e.Args {
		bound[a.Id] = true
	}
	freeVars(b.s, e.Rhs, bound, &fvs, map[ctx.VarId]bool{})

	codeID := b.s.c.Declare(b.s.c.GetVar(e.FunBndr.Id).Name + "$code")

	fb := b.s.newBuilder()
	envVar := fb.fresh(types.MkInt())
	// Self-identity: the function's own closure is exactly the env tuple it
	// was invoked with (spec.md §9's closure/function duality).
	fb.emit(lir.Asgn(e.FunBndr.Id, lir.ExprAtom(lir.AtomVar(envVar))))
	for i, fv := range fvs {
		fb.emit(lir.Asgn(fv, lir.ExprTupleGet(envVar, i+1)))
	}
	resultVar, err := fb.lower(e.Rhs)
	if err != nil {
		return err
	}
	fb.finish(lir.ExitReturn(resultVar))

	retTy := b.s.c.VarType(resultVar)
	fun := &lir.Fun{
		Name:       codeID,
		Args:       append([]ctx.VarId{envVar}, varIds(e.Args)...),
		Blocks:     fb.blocks,
		ReturnType: repOf(retTy),
	}
	b.s.funs = append(b.s.funs, fun)

	elemTys := make([]types.Type, 1+len(fvs))
	elemTys[0] = types.MkInt()
	for i, fv := range fvs {
		elemTys[i+1] = b.s.c.VarType(fv)
	}
	closureTy := types.MkTuple(elemTys)
	b.s.c.SetType(e.FunBndr.Id, closureTy)

	b.emit(lir.Asgn(e.FunBndr.Id, lir.ExprTuple(1+len(fvs))))
	b.emit(lir.ExprStmt(lir.ExprTuplePut(e.FunBndr.Id, 0, codeID)))
	for i, fv := range fvs {
		b.emit(lir.ExprStmt(lir.ExprTuplePut(e.FunBndr.Id, i+1, fv)))
	}
	return nil
}

func varIds(bs []*ast.Binder) []ctx.VarId {
	out := make([]ctx.VarId, len(bs))
	for i, bn := range bs {
		out[i] = bn.Id
	}
	return out
}

func repOf(t types.Type) lir.RepType {
	if types.RepTypeOf(t) == types.FloatRep {
		return lir.RepFloat
	}
	return lir.RepWord
}

// lowerApp lowers a function application. Built-in calls pass only the
// source arguments (no env) with the built-in's VarId as the callee, which
// the back ends call through its imported data symbol; every other call goes through
// the uniform closure convention: extract the code pointer from slot 0,
// then indirect-call it with the closure itself prepended as the env
// argument.
func (b *builder) lowerApp(e *ast.Expr) (ctx.VarId, error) {
	if e.Type == nil {
		return 0, fmt.Errorf("lower: App node has no inferred type (type checker not run?)")
	}
	ret := *e.Type

	argVars := make([]ctx.VarId, len(e.AppArgs))
	for i, a := range e.AppArgs {
		v, err := b.lower(a)
		if err != nil {
			return 0, err
		}
		argVars[i] = v
	}

	if id, ok := e.Fun.ResolvedVarID(); ok && b.s.builtin[id] {
		result := b.fresh(ret)
		b.emit(lir.Asgn(result, lir.ExprApp(id, argVars, repOf(ret))))
		return result, nil
	}

	cloVar, err := b.lower(e.Fun)
	if err != nil {
		return 0, err
	}
	codeptr := b.fresh(types.MkInt())
	b.emit(lir.Asgn(codeptr, lir.ExprTupleGet(cloVar, 0)))

	args := append([]ctx.VarId{cloVar}, argVars...)
	result := b.fresh(ret)
	b.emit(lir.Asgn(result, lir.ExprApp(codeptr, args, repOf(ret))))
	return result, nil
}
