// Package typecheck implements Hindley-Milner-style type inference over the
// surface AST: unification, occurs-check, and substitution normalization.
// It is grounded line-for-line on original_source/src/type_check.rs,
// restated in the teacher's Go idiom (internal/util.Stack backs the scope
// chain, the way internal/util.Stack backs vslc's parser state stacks).
package typecheck

import (
	"fmt"

	"github.com/mincamlc/mincamlc/internal/ast"
	"github.com/mincamlc/mincamlc/internal/ctx"
	"github.com/mincamlc/mincamlc/internal/types"
	"github.com/mincamlc/mincamlc/internal/util"
)

// TypeEnv maps every variable declared during inference to its ground
// source type once checking succeeds.
type TypeEnv map[ctx.VarId]types.Type

// UnifyError reports two types that cannot be unified.
type UnifyError struct{ T1, T2 types.Type }

func (e *UnifyError) Error() string {
	return fmt.Sprintf("cannot unify %v with %v", e.T1, e.T2)
}

// InfiniteType reports an occurs-check failure.
type InfiniteType struct{ T1, T2 types.Type }

func (e *InfiniteType) Error() string {
	return fmt.Sprintf("infinite type: %v occurs in %v", e.T1, e.T2)
}

// UnboundVar reports a reference to an identifier not in scope.
type UnboundVar struct{ Name string }

func (e *UnboundVar) Error() string {
	return fmt.Sprintf("unbound variable %q", e.Name)
}

// binding is one scope-frame entry: the resolved binder plus its type.
type binding struct {
	id ctx.VarId
	ty types.Type
}

type substEnv map[types.TyVar]types.Type

// scope is the lexical environment, a stack of frames mapping display name
// to binding, generalized from internal/util.Stack.
type scope struct {
	frames util.Stack[map[string]binding]
}

func newScope() *scope {
	s := &scope{}
	s.frames.Push(map[string]binding{})
	return s
}

func (s *scope) push() { s.frames.Push(map[string]binding{}) }
func (s *scope) pop()  { s.frames.Pop() }

func (s *scope) add(name string, b binding) {
	top, _ := s.frames.Peek()
	top[name] = b
}

func (s *scope) get(name string) (binding, bool) {
	for _, frame := range s.frames.All() {
		if b, ok := frame[name]; ok {
			return b, true
		}
	}
	return binding{}, false
}

// checker threads the substitution environment, the output TypeEnv, and the
// scope chain through recursive inference, mirroring type_check.rs's
// explicit parameter threading (no implicit global state, per spec.md §9).
type checker struct {
	c       *ctx.Ctx
	subst   substEnv
	tyEnv   TypeEnv
	sc      *scope
	nextTv  types.TyVar
}

// CheckProgram runs HM inference over expr, returning a TypeEnv in which
// every type is ground. On success, every ast.Expr Var node has been
// rewritten to carry the Binder it resolved to.
func CheckProgram(c *ctx.Ctx, expr *ast.Expr) (TypeEnv, error) {
	ch := &checker{
		c:     c,
		subst: substEnv{},
		tyEnv: TypeEnv{},
		sc:    newScope(),
	}

	for _, b := range c.Builtins() {
		ch.tyEnv[b.Id] = b.Type
		name := c.GetVar(b.Id).Name
		ch.sc.add(name, binding{id: b.Id, ty: b.Type})
	}

	ty, err := ch.check(expr)
	if err != nil {
		return nil, err
	}
	if err := ch.unify(types.MkUnit(), ty); err != nil {
		return nil, err
	}

	for id, t := range ch.tyEnv {
		ch.tyEnv[id] = ch.normalize(t)
	}
	ch.normalizeNodeTypes(expr)
	return ch.tyEnv, nil
}

// normalizeNodeTypes walks the AST re-normalizing every node's Type
// annotation, since nodes checked early may reference tyvars only resolved
// by later unification (e.g. a Let's body constrains its bound tyvar).
func (ch *checker) normalizeNodeTypes(e *ast.Expr) {
	if e == nil {
		return
	}
	if e.Type != nil {
		n := ch.normalize(*e.Type)
		e.Type = &n
	}
	for _, sub := range []*ast.Expr{e.E1, e.E2, e.E3, e.Rhs, e.Body, e.Fun} {
		ch.normalizeNodeTypes(sub)
	}
	for _, sub := range e.Elems {
		ch.normalizeNodeTypes(sub)
	}
	for _, sub := range e.AppArgs {
		ch.normalizeNodeTypes(sub)
	}
}

func (ch *checker) fresh() types.Type {
	v := ch.nextTv
	ch.nextTv++
	return types.MkVar(v)
}

// deref follows a chain of variable-to-type bindings to either a
// non-variable type or an unbound variable, the way type_check.rs's
// deref_ty does.
func (ch *checker) deref(t types.Type) types.Type {
	for t.Kind == types.Var {
		next, ok := ch.subst[t.TyVar]
		if !ok {
			return t
		}
		t = next
	}
	return t
}

func (ch *checker) occursCheck(v types.TyVar, t types.Type) bool {
	t = ch.deref(t)
	switch t.Kind {
	case types.Unit, types.Bool, types.Int, types.Float:
		return false
	case types.Fun:
		for _, a := range t.Args {
			if ch.occursCheck(v, a) {
				return true
			}
		}
		return ch.occursCheck(v, *t.Ret)
	case types.Tuple:
		for _, e := range t.Elems {
			if ch.occursCheck(v, e) {
				return true
			}
		}
		return false
	case types.Array:
		return ch.occursCheck(v, *t.Elem)
	case types.Var:
		return t.TyVar == v
	}
	return false
}

func (ch *checker) unify(t1, t2 types.Type) error {
	t1 = ch.deref(t1)
	t2 = ch.deref(t2)

	switch {
	case t1.Kind == types.Unit && t2.Kind == types.Unit,
		t1.Kind == types.Bool && t2.Kind == types.Bool,
		t1.Kind == types.Int && t2.Kind == types.Int,
		t1.Kind == types.Float && t2.Kind == types.Float:
		return nil

	case t1.Kind == types.Fun && t2.Kind == types.Fun:
		if len(t1.Args) != len(t2.Args) {
			return &UnifyError{t1, t2}
		}
		for i := range t1.Args {
			if err := ch.unify(t1.Args[i], t2.Args[i]); err != nil {
				return err
			}
		}
		return ch.unify(*t1.Ret, *t2.Ret)

	case t1.Kind == types.Var && t2.Kind == types.Var && t1.TyVar == t2.TyVar:
		return nil

	case t1.Kind == types.Var:
		if ch.occursCheck(t1.TyVar, t2) {
			return &InfiniteType{t1, t2}
		}
		ch.subst[t1.TyVar] = t2
		return nil

	case t2.Kind == types.Var:
		if ch.occursCheck(t2.TyVar, t1) {
			return &InfiniteType{t1, t2}
		}
		ch.subst[t2.TyVar] = t1
		return nil

	case t1.Kind == types.Tuple && t2.Kind == types.Tuple:
		if len(t1.Elems) != len(t2.Elems) {
			return &UnifyError{t1, t2}
		}
		for i := range t1.Elems {
			if err := ch.unify(t1.Elems[i], t2.Elems[i]); err != nil {
				return err
			}
		}
		return nil

	case t1.Kind == types.Array && t2.Kind == types.Array:
		return ch.unify(*t1.Elem, *t2.Elem)

	default:
		return &UnifyError{t1, t2}
	}
}

// normalize walks t, replacing every Var with its dereferenced type.
// Unresolved type variables (reachable from nothing at the top level)
// default to Unit, per SPEC_FULL.md's Open Question resolution.
func (ch *checker) normalize(t types.Type) types.Type {
	switch t.Kind {
	case types.Unit, types.Bool, types.Int, types.Float:
		return t
	case types.Fun:
		args := make([]types.Type, len(t.Args))
		for i, a := range t.Args {
			args[i] = ch.normalize(a)
		}
		ret := ch.normalize(*t.Ret)
		return types.MkFun(args, ret)
	case types.Tuple:
		elems := make([]types.Type, len(t.Elems))
		for i, e := range t.Elems {
			elems[i] = ch.normalize(e)
		}
		return types.MkTuple(elems)
	case types.Array:
		return types.MkArray(ch.normalize(*t.Elem))
	case types.Var:
		d := ch.deref(t)
		if d.Kind == types.Var {
			return types.MkUnit()
		}
		return ch.normalize(d)
	}
	return t
}

// check infers e's type and annotates e.Type with it on success. The
// annotation lets internal/lower recover a node's result type (needed for
// App and If) without re-deriving it from already-lowered variables.
func (ch *checker) check(e *ast.Expr) (types.Type, error) {
	ty, err := ch.checkInner(e)
	if err != nil {
		return types.Type{}, err
	}
	e.Type = &ty
	return ty, nil
}

func (ch *checker) checkInner(e *ast.Expr) (types.Type, error) {
	switch e.Kind {
	case ast.KUnit:
		return types.MkUnit(), nil
	case ast.KBool:
		return types.MkBool(), nil
	case ast.KInt:
		return types.MkInt(), nil
	case ast.KFloat:
		return types.MkFloat(), nil

	case ast.KNot:
		t, err := ch.check(e.E1)
		if err != nil {
			return types.Type{}, err
		}
		if err := ch.unify(types.MkBool(), t); err != nil {
			return types.Type{}, err
		}
		return types.MkBool(), nil

	case ast.KNeg:
		t, err := ch.check(e.E1)
		if err != nil {
			return types.Type{}, err
		}
		if err := ch.unify(types.MkInt(), t); err != nil {
			return types.Type{}, err
		}
		return types.MkInt(), nil

	case ast.KFNeg:
		t, err := ch.check(e.E1)
		if err != nil {
			return types.Type{}, err
		}
		if err := ch.unify(types.MkFloat(), t); err != nil {
			return types.Type{}, err
		}
		return types.MkFloat(), nil

	case ast.KAdd, ast.KSub, ast.KMul, ast.KDiv:
		t1, err := ch.check(e.E1)
		if err != nil {
			return types.Type{}, err
		}
		t2, err := ch.check(e.E2)
		if err != nil {
			return types.Type{}, err
		}
		if err := ch.unify(types.MkInt(), t1); err != nil {
			return types.Type{}, err
		}
		if err := ch.unify(types.MkInt(), t2); err != nil {
			return types.Type{}, err
		}
		return types.MkInt(), nil

	case ast.KFAdd, ast.KFSub, ast.KFMul, ast.KFDiv:
		t1, err := ch.check(e.E1)
		if err != nil {
			return types.Type{}, err
		}
		t2, err := ch.check(e.E2)
		if err != nil {
			return types.Type{}, err
		}
		if err := ch.unify(types.MkFloat(), t1); err != nil {
			return types.Type{}, err
		}
		if err := ch.unify(types.MkFloat(), t2); err != nil {
			return types.Type{}, err
		}
		return types.MkFloat(), nil

	case ast.KEq, ast.KLe:
		t1, err := ch.check(e.E1)
		if err != nil {
			return types.Type{}, err
		}
		t2, err := ch.check(e.E2)
		if err != nil {
			return types.Type{}, err
		}
		if err := ch.unify(t1, t2); err != nil {
			return types.Type{}, err
		}
		return types.MkBool(), nil

	case ast.KIf:
		t1, err := ch.check(e.E1)
		if err != nil {
			return types.Type{}, err
		}
		t2, err := ch.check(e.E2)
		if err != nil {
			return types.Type{}, err
		}
		t3, err := ch.check(e.E3)
		if err != nil {
			return types.Type{}, err
		}
		if err := ch.unify(t1, types.MkBool()); err != nil {
			return types.Type{}, err
		}
		if err := ch.unify(t2, t3); err != nil {
			return types.Type{}, err
		}
		return t2, nil

	case ast.KLet:
		bndrTy := ch.fresh()
		ch.tyEnv[e.Bndr.Id] = bndrTy
		rhsTy, err := ch.check(e.Rhs)
		if err != nil {
			return types.Type{}, err
		}
		if err := ch.unify(bndrTy, rhsTy); err != nil {
			return types.Type{}, err
		}
		ch.sc.push()
		ch.sc.add(e.Bndr.Name, binding{id: e.Bndr.Id, ty: bndrTy})
		ret, err := ch.check(e.Body)
		ch.sc.pop()
		return ret, err

	case ast.KVar:
		b, ok := ch.sc.get(e.Name)
		if !ok {
			return types.Type{}, &UnboundVar{e.Name}
		}
		e.Resolved = &ast.Binder{Name: e.Name, Id: b.id}
		return b.ty, nil

	case ast.KLetRec:
		argTys := make([]types.Type, len(e.Args))
		for i := range e.Args {
			argTys[i] = ch.fresh()
		}
		rhsTy := ch.fresh()
		funTy := types.MkFun(argTys, rhsTy)
		ch.tyEnv[e.FunBndr.Id] = funTy

		ch.sc.push()
		ch.sc.add(e.FunBndr.Name, binding{id: e.FunBndr.Id, ty: funTy})
		ch.sc.push()
		for i, a := range e.Args {
			ch.tyEnv[a.Id] = argTys[i]
			ch.sc.add(a.Name, binding{id: a.Id, ty: argTys[i]})
		}

		rhsTy2, err := ch.check(e.Rhs)
		if err != nil {
			return types.Type{}, err
		}
		if err := ch.unify(rhsTy, rhsTy2); err != nil {
			return types.Type{}, err
		}
		ch.sc.pop()
		ret, err := ch.check(e.Body)
		ch.sc.pop()
		return ret, err

	case ast.KApp:
		argTys := make([]types.Type, len(e.AppArgs))
		for i, a := range e.AppArgs {
			t, err := ch.check(a)
			if err != nil {
				return types.Type{}, err
			}
			argTys[i] = t
		}
		retTy := ch.fresh()
		funTy := types.MkFun(argTys, retTy)
		funTy2, err := ch.check(e.Fun)
		if err != nil {
			return types.Type{}, err
		}
		if err := ch.unify(funTy, funTy2); err != nil {
			return types.Type{}, err
		}
		return retTy, nil

	case ast.KTuple:
		elemTys := make([]types.Type, len(e.Elems))
		for i, el := range e.Elems {
			t, err := ch.check(el)
			if err != nil {
				return types.Type{}, err
			}
			elemTys[i] = t
		}
		return types.MkTuple(elemTys), nil

	case ast.KLetTuple:
		elemTys := make([]types.Type, len(e.Bndrs))
		for i, b := range e.Bndrs {
			t := ch.fresh()
			ch.tyEnv[b.Id] = t
			elemTys[i] = t
		}
		tupleTy := types.MkTuple(elemTys)
		rhsTy, err := ch.check(e.Rhs)
		if err != nil {
			return types.Type{}, err
		}
		if err := ch.unify(rhsTy, tupleTy); err != nil {
			return types.Type{}, err
		}
		ch.sc.push()
		for i, b := range e.Bndrs {
			ch.sc.add(b.Name, binding{id: b.Id, ty: elemTys[i]})
		}
		ret, err := ch.check(e.Body)
		ch.sc.pop()
		return ret, err

	case ast.KArray:
		lenTy, err := ch.check(e.E1)
		if err != nil {
			return types.Type{}, err
		}
		if err := ch.unify(lenTy, types.MkInt()); err != nil {
			return types.Type{}, err
		}
		elemTy, err := ch.check(e.E2)
		if err != nil {
			return types.Type{}, err
		}
		return types.MkArray(elemTy), nil

	case ast.KGet:
		elemTy := ch.fresh()
		arrTy := types.MkArray(elemTy)
		t1, err := ch.check(e.E1)
		if err != nil {
			return types.Type{}, err
		}
		if err := ch.unify(t1, arrTy); err != nil {
			return types.Type{}, err
		}
		t2, err := ch.check(e.E2)
		if err != nil {
			return types.Type{}, err
		}
		if err := ch.unify(t2, types.MkInt()); err != nil {
			return types.Type{}, err
		}
		return elemTy, nil

	case ast.KPut:
		elemTy := ch.fresh()
		arrTy := types.MkArray(elemTy)
		t1, err := ch.check(e.E1)
		if err != nil {
			return types.Type{}, err
		}
		if err := ch.unify(t1, arrTy); err != nil {
			return types.Type{}, err
		}
		t2, err := ch.check(e.E2)
		if err != nil {
			return types.Type{}, err
		}
		if err := ch.unify(t2, types.MkInt()); err != nil {
			return types.Type{}, err
		}
		t3, err := ch.check(e.E3)
		if err != nil {
			return types.Type{}, err
		}
		if err := ch.unify(t3, elemTy); err != nil {
			return types.Type{}, err
		}
		return types.MkUnit(), nil
	}
	return types.Type{}, fmt.Errorf("typecheck: unhandled expr kind %d", e.Kind)
}
