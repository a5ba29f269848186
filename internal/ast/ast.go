// Package ast defines the surface syntax tree consumed by internal/typecheck.
// It is out of scope as a *design* subject per spec.md §1 (the lexer/parser
// is an external collaborator), but a minimal implementation is included so
// the pipeline is runnable end to end and the core subsystems have a real
// driver to exercise them, in the style of the teacher's frontend package.
package ast

import (
	"github.com/mincamlc/mincamlc/internal/ctx"
	"github.com/mincamlc/mincamlc/internal/types"
)

// Kind enumerates Expr variants, mirroring original_source's Expr enum.
type Kind uint8

const (
	KUnit Kind = iota
	KBool
	KInt
	KFloat
	KNot
	KNeg
	KAdd
	KSub
	KMul
	KDiv
	KFNeg
	KFAdd
	KFSub
	KFMul
	KFDiv
	KEq
	KLe
	KIf
	KLet
	KVar
	KLetRec
	KApp
	KTuple
	KLetTuple
	KArray
	KGet
	KPut
)

// Binder is a fresh binding occurrence: the parser assigns its VarId
// immediately (via ctx.Declare) so the type checker can install it in both
// the scope chain and the flat TypeEnv without allocating identity itself.
type Binder struct {
	Name string
	Id   ctx.VarId
}

// Expr is the surface AST node, a tagged union of all MinCaml-family forms.
// Only the fields relevant to Kind are populated; the rest are zero.
type Expr struct {
	Kind Kind

	// Type is filled in by the type checker with this node's ground
	// inferred type; internal/lower consults it instead of re-deriving a
	// result type from variable bookkeeping (needed for App and If, whose
	// result isn't otherwise recoverable once lowered).
	Type *types.Type

	BoolVal  bool
	IntVal   int64
	FloatVal float64

	E1 *Expr // Not, Neg, FNeg, single-arg forms, If-cond, Array-len, Get-array, Put-array
	E2 *Expr // binary RHS, If-then, Get-index, Put-index
	E3 *Expr // If-else, Put-value

	// Let
	Bndr *Binder
	Rhs  *Expr
	Body *Expr

	// Var: Name is set by the parser; Resolved is filled in by the type
	// checker the first time the binder is found in scope (spec.md §4.2).
	Name     string
	Resolved *Binder

	// LetRec
	FunBndr *Binder
	Args    []*Binder

	// App
	Fun     *Expr
	AppArgs []*Expr

	// Tuple / LetTuple binders
	Elems []*Expr
	Bndrs []*Binder
}

// ResolvedVarID reports whether e is a Var node that has already been
// resolved by the type checker, returning its binder's VarId.
func (e *Expr) ResolvedVarID() (ctx.VarId, bool) {
	if e.Kind == KVar && e.Resolved != nil {
		return e.Resolved.Id, true
	}
	return 0, false
}
