// native.go drives riscv64 text-assembly generation over internal/lir,
// grounded on backend/riscv/function.go (genFunction/genFunctionCall's
// prologue/epilogue and caller-saved-register save/restore sequence) and
// backend/riscv/expression.go/conditional.go (instruction selection for
// binary/unary operators and comparisons). Unlike the teacher's tree-walking
// codegen over a typed AST, this back end walks the already-lowered
// block/statement/exit form internal/lir provides, so there is no operand
// type-dispatch switch to write: every statement's destination RepType is
// already known (internal/ctx.VarRepType), exactly the same simplification
// internal/codegen's LLVM path takes.
//
// Every lowered value is spilled to its stack slot between statements — no
// register stays live across a statement boundary — trading code density
// for a trivial, always-correct allocator. This mirrors the discipline
// genFunctionCall already imposes around calls (save every caller-saved
// temporary, no exceptions); here it is simply applied to every statement,
// not only call sites.
package native

import (
	"fmt"
	"math"

	"github.com/mincamlc/mincamlc/internal/ctx"
	"github.com/mincamlc/mincamlc/internal/lir"
	"github.com/mincamlc/mincamlc/internal/types"
	"github.com/mincamlc/mincamlc/internal/util"
)

const wordSize = 8
const stackAlign = 16

// Backend emits riscv64 assembly text for a whole lowered program.
type Backend struct {
	c        *ctx.Ctx
	rf       RegisterFile
	w        util.AsmWriter
	builtins map[ctx.VarId]bool
	labelSeq int
}

// New returns a Backend bound to c's variable/type tables.
func New(c *ctx.Ctx) *Backend {
	builtins := make(map[ctx.VarId]bool)
	for _, b := range c.Builtins() {
		builtins[b.Id] = true
	}
	return &Backend{c: c, rf: NewRISCV64(), builtins: builtins}
}

func (be *Backend) uniqueLabel(prefix string) string {
	be.labelSeq++
	return fmt.Sprintf(".L%s_%d", prefix, be.labelSeq)
}

// frame is the per-function stack-slot assignment: every argument and
// every distinct Asgn destination gets one word-sized slot, addressed
// fp-relative, mirroring genFunction's N-byte local-variable area (here
// sized per-VarId instead of per-declared-local-count, since lir has
// already flattened every binder to a VarId).
type frame struct {
	slot map[ctx.VarId]int // offset from fp, negative, below the saved ra/fp; slot itself holds the value
	size int                // total bytes reserved for the locals area (excludes saved ra/fp)
}

func buildFrame(f *lir.Fun) *frame {
	fr := &frame{slot: map[ctx.VarId]int{}}
	assign := func(id ctx.VarId) {
		if _, ok := fr.slot[id]; ok {
			return
		}
		fr.size += wordSize
		// Slots start below the saved ra/fp pair at fp-8 and fp-16.
		fr.slot[id] = -fr.size - 2*wordSize
	}
	for _, a := range f.Args {
		assign(a)
	}
	for _, blk := range f.Blocks {
		for _, st := range blk.Stmts {
			if st.Kind == lir.SAsgn {
				assign(st.Lhs)
			}
		}
	}
	if res := fr.size % stackAlign; res != 0 {
		fr.size += stackAlign - res
	}
	return fr
}

// Generate emits every function plus a zero-arg "main" wrapper calling
// mainID, returning the full assembly text for the compilation unit.
func (be *Backend) Generate(funs []*lir.Fun, mainID ctx.VarId) (string, error) {
	be.w.WriteString("\t.text\n")
	for _, f := range funs {
		if err := be.genFunction(f); err != nil {
			return "", err
		}
	}
	mainFn := be.c.GetVar(mainID)
	be.w.WriteString("\t.globl\tmain\n")
	be.w.Label("main")
	be.w.Ins2imm("addi", be.rf.SP().String(), be.rf.SP().String(), -16)
	be.w.LoadStore("sd", be.rf.RA().String(), 8, be.rf.SP().String())
	be.w.Ins1("call", mainFn.SymbolName)
	be.w.Ins3("add", "a0", "zero", "zero")
	be.w.LoadStore("ld", be.rf.RA().String(), 8, be.rf.SP().String())
	be.w.Ins2imm("addi", be.rf.SP().String(), be.rf.SP().String(), 16)
	be.w.WriteString("\tret\n")
	return be.w.String(), nil
}

func (be *Backend) genFunction(f *lir.Fun) error {
	name := be.c.GetVar(f.Name).SymbolName
	fr := buildFrame(f)
	frameBytes := fr.size + 16 // +16 for saved ra/fp, matching genFunction's N+16.

	be.w.Label(name)
	be.w.Ins2imm("addi", be.rf.SP().String(), be.rf.SP().String(), -frameBytes)
	be.w.LoadStore("sd", be.rf.RA().String(), frameBytes-wordSize, be.rf.SP().String())
	be.w.LoadStore("sd", be.rf.FP().String(), frameBytes-2*wordSize, be.rf.SP().String())
	be.w.Ins2imm("addi", be.rf.FP().String(), be.rf.SP().String(), frameBytes)

	// Spill incoming arguments from a0../fa0.. into their stack slots.
	ai, af := 0, 0
	for _, argID := range f.Args {
		off := fr.slot[argID]
		if be.c.VarRepType(argID) == types.FloatRep {
			be.w.LoadStore("fsd", be.rf.ArgF(af).String(), off, be.rf.FP().String())
			af++
		} else {
			be.w.LoadStore("sd", be.rf.ArgI(ai).String(), off, be.rf.FP().String())
			ai++
		}
	}

	for _, blk := range f.Blocks {
		be.w.Label(name + "_" + string(blk.Label))
		for _, st := range blk.Stmts {
			if err := be.genStmt(fr, st); err != nil {
				return err
			}
		}
		be.genExit(fr, name, frameBytes, blk.Exit)
	}
	return nil
}

func (be *Backend) epilogue(frameBytes int) {
	be.w.LoadStore("ld", be.rf.RA().String(), frameBytes-wordSize, be.rf.SP().String())
	be.w.LoadStore("ld", be.rf.FP().String(), frameBytes-2*wordSize, be.rf.SP().String())
	be.w.Ins2imm("addi", be.rf.SP().String(), be.rf.SP().String(), frameBytes)
}

func (be *Backend) genExit(fr *frame, fname string, frameBytes int, ex lir.Exit) {
	switch ex.Kind {
	case lir.XReturn:
		r := be.load(fr, ex.Var)
		be.moveToReturnReg(r)
		be.free(r)
		be.epilogue(frameBytes)
		be.w.WriteString("\tret\n")

	case lir.XBranch:
		rep := be.c.VarRepType(ex.V1)
		v1 := be.load(fr, ex.V1)
		v2 := be.load(fr, ex.V2)
		thenLbl := fname + "_" + string(ex.ThenLabel)
		elseLbl := fname + "_" + string(ex.ElseLabel)
		be.genBranch(rep, ex.Cond, v1, v2, thenLbl)
		be.free(v1)
		be.free(v2)
		be.w.Ins1("j", elseLbl)

	case lir.XJump:
		be.w.Ins1("j", fname+"_"+string(ex.JumpLabel))
	}
}

func (be *Backend) moveToReturnReg(r Register) {
	if r.Type() == RegFloat {
		if r.String() != "fa0" {
			be.w.Ins2("fmv.d", "fa0", r.String())
		}
	} else if r.String() != "a0" {
		be.w.Ins2("mv", "a0", r.String())
	}
}

// genBranch emits a comparison-and-branch to thenLbl; the else path falls
// through to the caller's unconditional jump, restating conditional.go's
// two-target-label diamond without needing a dedicated condition-code
// register (RISC-V's branches compare two registers directly).
func (be *Backend) genBranch(rep types.RepType, cond lir.Cmp, v1, v2 Register, thenLbl string) {
	if rep == types.FloatRep {
		cmpReg := mustTempI(be.rf)
		switch cond {
		case lir.CmpEqual:
			be.w.Ins3("feq.d", cmpReg.String(), v1.String(), v2.String())
		case lir.CmpNotEqual:
			be.w.Ins3("feq.d", cmpReg.String(), v1.String(), v2.String())
			be.w.Ins3("xori", cmpReg.String(), cmpReg.String(), "1")
		case lir.CmpLessThan:
			be.w.Ins3("flt.d", cmpReg.String(), v1.String(), v2.String())
		case lir.CmpLessThanOrEqual:
			be.w.Ins3("fle.d", cmpReg.String(), v1.String(), v2.String())
		case lir.CmpGreaterThan:
			be.w.Ins3("flt.d", cmpReg.String(), v2.String(), v1.String())
		default: // CmpGreaterThanOrEqual
			be.w.Ins3("fle.d", cmpReg.String(), v2.String(), v1.String())
		}
		be.w.Ins2("bnez", cmpReg.String(), thenLbl)
		be.rf.FreeI(cmpReg.Id())
		return
	}
	switch cond {
	case lir.CmpEqual:
		be.w.Ins3("beq", v1.String(), v2.String(), thenLbl)
	case lir.CmpNotEqual:
		be.w.Ins3("bne", v1.String(), v2.String(), thenLbl)
	case lir.CmpLessThan:
		be.w.Ins3("blt", v1.String(), v2.String(), thenLbl)
	case lir.CmpLessThanOrEqual:
		be.w.Ins3("ble", v1.String(), v2.String(), thenLbl)
	case lir.CmpGreaterThan:
		be.w.Ins3("bgt", v1.String(), v2.String(), thenLbl)
	default: // CmpGreaterThanOrEqual
		be.w.Ins3("bge", v1.String(), v2.String(), thenLbl)
	}
}

func (be *Backend) genStmt(fr *frame, st lir.Stmt) error {
	switch st.Kind {
	case lir.SAsgn:
		r, err := be.genExpr(fr, st.Rhs, be.c.VarRepType(st.Lhs))
		if err != nil {
			return err
		}
		be.store(fr, st.Lhs, r)
		be.free(r)
	case lir.SExpr:
		r, err := be.genExpr(fr, st.Rhs, types.Word)
		if err != nil {
			return err
		}
		be.free(r)
	}
	return nil
}

// load reads id's stack slot into a freshly allocated temporary register.
func (be *Backend) load(fr *frame, id ctx.VarId) Register {
	off, ok := fr.slot[id]
	if !ok {
		panic(fmt.Sprintf("native: variable %d has no stack slot in this function", id))
	}
	if be.c.VarRepType(id) == types.FloatRep {
		r := mustTempF(be.rf)
		be.w.LoadStore("fld", r.String(), off, be.rf.FP().String())
		return r
	}
	r := mustTempI(be.rf)
	be.w.LoadStore("ld", r.String(), off, be.rf.FP().String())
	return r
}

func (be *Backend) store(fr *frame, id ctx.VarId, r Register) {
	off, ok := fr.slot[id]
	if !ok {
		panic(fmt.Sprintf("native: variable %d has no stack slot in this function", id))
	}
	if r.Type() == RegFloat {
		be.w.LoadStore("fsd", r.String(), off, be.rf.FP().String())
	} else {
		be.w.LoadStore("sd", r.String(), off, be.rf.FP().String())
	}
}

func (be *Backend) free(r Register) {
	if r.Type() == RegFloat {
		be.rf.FreeF(r.Id())
	} else {
		be.rf.FreeI(r.Id())
	}
}

func (be *Backend) genExpr(fr *frame, e lir.Expr, resultRep types.RepType) (Register, error) {
	switch e.Kind {
	case lir.EAtom:
		return be.genAtom(fr, e.Atom)

	case lir.EIBinOp:
		a1 := be.load(fr, e.Arg1)
		a2 := be.load(fr, e.Arg2)
		defer be.free(a2)
		be.w.Ins3(intOpMnemonic(e.Op), a1.String(), a1.String(), a2.String())
		return a1, nil

	case lir.EFBinOp:
		a1 := be.load(fr, e.Arg1)
		a2 := be.load(fr, e.Arg2)
		defer be.free(a2)
		be.w.Ins3(floatOpMnemonic(e.Op), a1.String(), a1.String(), a2.String())
		return a1, nil

	case lir.ENeg:
		a := be.load(fr, e.Arg1)
		be.w.Ins3("sub", a.String(), "zero", a.String())
		return a, nil

	case lir.EFNeg:
		a := be.load(fr, e.Arg1)
		be.w.Ins2("fneg.d", a.String(), a.String())
		return a, nil

	case lir.EApp:
		return be.genApp(fr, e, resultRep)

	case lir.ETuple:
		r := mustTempI(be.rf)
		be.w.Ins2("li", "a0", fmt.Sprintf("%d", e.Len*wordSize))
		be.w.Ins1("call", "malloc")
		be.w.Ins2("mv", r.String(), "a0")
		return r, nil

	case lir.ETuplePut:
		base := be.load(fr, e.Tuple)
		val := be.load(fr, e.ElemVal)
		be.w.LoadStore(storeOp(val), val.String(), e.Idx*wordSize, base.String())
		be.free(val)
		return base, nil

	case lir.ETupleGet:
		base := be.load(fr, e.Tuple)
		r := be.allocResult(resultRep)
		be.w.LoadStore(loadOp(resultRep), r.String(), e.Idx*wordSize, base.String())
		be.free(base)
		return r, nil

	case lir.EArrayAlloc:
		return be.genArrayAlloc(fr, e)

	case lir.EArrayGet:
		arr := be.load(fr, e.Array)
		idx := be.load(fr, e.IdxVar)
		be.w.Ins2imm("slli", idx.String(), idx.String(), 3)
		be.w.Ins3("add", arr.String(), arr.String(), idx.String())
		be.free(idx)
		r := be.allocResult(resultRep)
		be.w.LoadStore(loadOp(resultRep), r.String(), 0, arr.String())
		be.free(arr)
		return r, nil

	case lir.EArrayPut:
		arr := be.load(fr, e.Array)
		idx := be.load(fr, e.IdxVar)
		val := be.load(fr, e.ElemVal)
		be.w.Ins2imm("slli", idx.String(), idx.String(), 3)
		be.w.Ins3("add", arr.String(), arr.String(), idx.String())
		be.w.LoadStore(storeOp(val), val.String(), 0, arr.String())
		be.free(idx)
		be.free(val)
		return arr, nil
	}
	return nil, fmt.Errorf("native: unhandled expr kind %d", e.Kind)
}

func (be *Backend) allocResult(rep types.RepType) Register {
	if rep == types.FloatRep {
		return mustTempF(be.rf)
	}
	return mustTempI(be.rf)
}

func (be *Backend) genAtom(fr *frame, a lir.Atom) (Register, error) {
	switch {
	case a.IsUnit:
		r := mustTempI(be.rf)
		be.w.Ins2("li", r.String(), "0")
		return r, nil
	case a.IsVar:
		return be.load(fr, a.Var), nil
	case a.IsFloat():
		// riscv64 has no immediate-load form for the D extension, so the
		// double's raw IEEE-754 bit pattern is materialized into a scratch
		// integer register with the standard li pseudo-instruction (which a
		// real assembler expands to lui/addi/slli as needed) and moved
		// across register files with fmv.d.x. Where backend/riscv/riscv.go
		// fills this gap with a .CFP32_-named data-segment constant and a
		// load from it, this avoids needing a data segment at all.
		bits := int64(math.Float64bits(a.FloatVal))
		itmp := mustTempI(be.rf)
		be.w.Ins2("li", itmp.String(), fmt.Sprintf("%d", bits))
		r := mustTempF(be.rf)
		be.w.Ins2("fmv.d.x", r.String(), itmp.String())
		be.free(itmp)
		return r, nil
	default:
		r := mustTempI(be.rf)
		be.w.Ins2("li", r.String(), fmt.Sprintf("%d", a.IntVal))
		return r, nil
	}
}

func intOpMnemonic(op lir.ArithOp) string {
	switch op {
	case lir.OpAdd:
		return "add"
	case lir.OpSub:
		return "sub"
	case lir.OpMul:
		return "mul"
	default:
		return "div"
	}
}

func floatOpMnemonic(op lir.ArithOp) string {
	switch op {
	case lir.OpAdd:
		return "fadd.d"
	case lir.OpSub:
		return "fsub.d"
	case lir.OpMul:
		return "fmul.d"
	default:
		return "fdiv.d"
	}
}

func loadOp(rep types.RepType) string {
	if rep == types.FloatRep {
		return "fld"
	}
	return "ld"
}

func storeOp(r Register) string {
	if r.Type() == RegFloat {
		return "fsd"
	}
	return "sd"
}

// genApp lowers a call. Built-ins and closures alike are invoked through
// "jalr" against a code address loaded into a register, never a direct
// "call <symbol>" — a built-in's symbol names an imported data slot
// holding its code address (spec.md §4.4 Phase 1 step 3 / §6), loaded
// through loadCallee the same way a closure's code pointer is loaded
// from its own stack slot. Grounded on codegen.rs's declare_data +
// call_indirect treating built-ins and closures identically.
func (be *Backend) genApp(fr *frame, e lir.Expr, resultRep types.RepType) (Register, error) {
	ai, af := 0, 0
	for _, argID := range e.AppArgs {
		r := be.load(fr, argID)
		if r.Type() == RegFloat {
			be.w.Ins2("fmv.d", be.rf.ArgF(af).String(), r.String())
			af++
		} else {
			be.w.Ins2("mv", be.rf.ArgI(ai).String(), r.String())
			ai++
		}
		be.free(r)
	}

	callee := be.loadCallee(fr, e.Fun)
	be.w.Ins2("jalr", "ra", "0("+callee.String()+")")
	be.free(callee)

	if resultRep == types.FloatRep {
		r := mustTempF(be.rf)
		be.w.Ins2("fmv.d", r.String(), "fa0")
		return r, nil
	}
	r := mustTempI(be.rf)
	be.w.Ins2("mv", r.String(), "a0")
	return r, nil
}

// loadCallee materializes the code address a call site should jalr
// through. A built-in's symbol names an imported data slot (an address,
// not a function), so it takes "la" (symbol address) followed by a "ld"
// (the address stored there) to recover the code pointer; any other
// callee has already had its code pointer extracted into a stack slot
// by internal/lower (lowerLetRec's closure-construction ExprTuplePut, or
// an earlier TupleGet), so a plain load suffices.
func (be *Backend) loadCallee(fr *frame, id ctx.VarId) Register {
	if be.builtins[id] {
		name := be.c.GetVar(id).SymbolName
		r := mustTempI(be.rf)
		be.w.Ins2("la", r.String(), name)
		be.w.LoadStore("ld", r.String(), 0, r.String())
		return r
	}
	return be.load(fr, id)
}

// genArrayAlloc synthesizes the malloc-plus-fill loop for array literals,
// restating internal/codegen's genArrayAlloc in text assembly: a header
// block tests the cursor against the bound, a body block stores the
// replicated element and advances, grounded on codegen.rs's ArrayAlloc
// arm the same way the LLVM path is.
func (be *Backend) genArrayAlloc(fr *frame, e lir.Expr) (Register, error) {
	lenReg := be.load(fr, e.LenVar)
	be.w.Ins2imm("slli", "a0", lenReg.String(), 3)
	be.free(lenReg)

	be.w.Ins1("call", "malloc")
	arr := mustTempI(be.rf)
	be.w.Ins2("mv", arr.String(), "a0")

	// malloc may clobber every temporary, so the byte size is recomputed
	// from the length's stack slot after the call.
	sizeReg := be.load(fr, e.LenVar)
	be.w.Ins2imm("slli", sizeReg.String(), sizeReg.String(), 3)
	bound := mustTempI(be.rf)
	be.w.Ins3("add", bound.String(), arr.String(), sizeReg.String())
	be.free(sizeReg)

	idx := mustTempI(be.rf)
	be.w.Ins2("mv", idx.String(), arr.String())

	elem := be.load(fr, e.ElemVal)

	header := be.uniqueLabel("array_hdr")
	cont := be.uniqueLabel("array_cont")

	be.w.Label(header)
	be.w.Ins3("beq", idx.String(), bound.String(), cont)
	be.w.LoadStore(storeOp(elem), elem.String(), 0, idx.String())
	be.w.Ins2imm("addi", idx.String(), idx.String(), wordSize)
	be.w.Ins1("j", header)
	be.w.Label(cont)

	be.free(idx)
	be.free(bound)
	be.free(elem)
	return arr, nil
}
