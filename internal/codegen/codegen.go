// Package codegen lowers internal/lir functions to LLVM IR and emits a
// relocatable object file, the default and primary back end (spec.md §4.4).
// Grounded file-for-file on the teacher's ir/llvm/transform.go (GenLLVM,
// genFuncHeader, genFuncBody, genExpression, genIf) and restated against
// original_source/src/codegen.rs's Env/VarVal, codegen_fun, codegen_expr
// shapes, which this package's Fun/Block/Stmt/Expr walk mirrors closely.
//
// Unlike cranelift, go-llvm gives no declare_var/def_var SSA construction,
// so every variable — function argument or block-local binding alike — gets
// a stack slot (CreateAlloca) up front and is read/written through
// load/store, the same alloca-per-variable discipline transform.go's
// genFuncBody/genDeclaration use. This sidesteps needing phi nodes for the
// If/compare diamonds internal/lower produces: both arms simply store to
// the same alloca before jumping to the continuation block.
package codegen

import (
	"fmt"
	"os"

	"tinygo.org/x/go-llvm"

	"github.com/mincamlc/mincamlc/internal/ctx"
	"github.com/mincamlc/mincamlc/internal/lir"
	"github.com/mincamlc/mincamlc/internal/types"
	"github.com/mincamlc/mincamlc/internal/util"
)

// wordSize is the byte stride of every tuple slot and array element,
// including floats (spec.md §6).
const wordSize = 8

var floatRep = uint8(types.FloatRep)

// Backend holds the LLVM state for one compilation unit: one Context, one
// Module, one Builder reused across every function (the teacher reuses a
// single Builder the same way in its sequential code path).
type Backend struct {
	c     *ctx.Ctx
	diags *util.Diagnostics

	llctx   llvm.Context
	builder llvm.Builder
	module  llvm.Module

	mallocFn    llvm.Value
	builtinData map[ctx.VarId]llvm.Value
	topFuncs    map[ctx.VarId]llvm.Value

	curFn llvm.Value
}

// New creates a Backend for one module named moduleName (conventionally the
// source file's base name, matching transform.go's filepath.Base(opt.Src)).
func New(c *ctx.Ctx, moduleName string, diags *util.Diagnostics) *Backend {
	llctx := llvm.NewContext()
	return &Backend{
		c:           c,
		diags:       diags,
		llctx:       llctx,
		builder:     llctx.NewBuilder(),
		module:      llctx.NewModule(moduleName),
		builtinData: map[ctx.VarId]llvm.Value{},
		topFuncs:    map[ctx.VarId]llvm.Value{},
	}
}

// Dispose releases the underlying LLVM resources.
func (be *Backend) Dispose() {
	be.builder.Dispose()
	be.module.Dispose()
	be.llctx.Dispose()
}

// Generate emits every function in funs plus the user-level entry point
// mainID into the module, in the same two-phase (declare then define) order
// as init_module_env/codegen_fun and genFuncHeader/genFuncBody.
func (be *Backend) Generate(funs []*lir.Fun, mainID ctx.VarId) error {
	be.declareMalloc()
	be.declareBuiltins()
	be.declareFuncs(funs)

	for _, f := range funs {
		be.defineFun(f)
	}
	return be.genMain(mainID)
}

// Verify runs the LLVM module verifier. Per spec.md §7 a verification
// failure is reported to diags rather than treated as fatal.
func (be *Backend) Verify() {
	if err := llvm.VerifyModule(be.module, llvm.ReturnStatusAction); err != nil {
		be.diags.Append(fmt.Sprintf("llvm verifier: %v", err))
	}
}

// Dump prints the generated LLVM IR, matching transform.go's opt.Verbose
// path.
func (be *Backend) Dump() {
	be.module.Dump()
}

// EmitObject finalizes code generation for the given target triple/CPU and
// writes a relocatable object file to path. triple == "" uses the host's
// default triple, mirroring transform.go's genTargetTriple fallback.
func (be *Backend) EmitObject(path, triple, cpu string) error {
	llvm.InitializeAllTargetInfos()
	llvm.InitializeAllTargetMCs()
	llvm.InitializeAllAsmParsers()
	llvm.InitializeAllAsmPrinters()
	llvm.InitializeAllTargets()

	if triple == "" {
		triple = llvm.DefaultTargetTriple()
	}
	if cpu == "" {
		cpu = "generic"
	}

	target, err := llvm.GetTargetFromTriple(triple)
	if err != nil {
		return err
	}
	tm := target.CreateTargetMachine(triple, cpu, "",
		llvm.CodeGenLevelNone, llvm.RelocDefault, llvm.CodeModelDefault)
	defer tm.Dispose()

	td := tm.CreateTargetData()
	defer td.Dispose()
	be.module.SetDataLayout(td.String())
	be.module.SetTarget(tm.Triple())

	buf, err := tm.EmitToMemoryBuffer(be.module, llvm.ObjectFile)
	if err != nil {
		return err
	}
	return os.WriteFile(path, buf.Bytes(), 0o644)
}

func (be *Backend) llvmType(rep uint8) llvm.Type {
	if rep == floatRep {
		return llvm.DoubleType()
	}
	return llvm.Int64Type()
}

func (be *Backend) declareMalloc() {
	i64 := llvm.Int64Type()
	ftyp := llvm.FunctionType(i64, []llvm.Type{i64}, false)
	be.mallocFn = llvm.AddFunction(be.module, "malloc", ftyp)
	be.mallocFn.SetLinkage(llvm.ExternalLinkage)
}

// declareBuiltins declares one imported data symbol per built-in (spec.md
// §4.4 Phase 1 step 3 / §6), an i64 slot the runtime that links against
// this object file is expected to define, holding the built-in's code
// address. Built-ins are never called through a direct CreateCall to a
// declared function; genApp loads this slot and calls through it exactly
// the way it calls a closure's code pointer. Grounded on
// original_source/src/codegen.rs's init_module_env/declare_data, which
// declares printf/sin/cos the same way — as imported globals, not
// imported functions.
func (be *Backend) declareBuiltins() {
	for _, bi := range be.c.Builtins() {
		name := be.c.GetVar(bi.Id).SymbolName
		g := llvm.AddGlobal(be.module, llvm.Int64Type(), name)
		g.SetLinkage(llvm.ExternalLinkage)
		be.builtinData[bi.Id] = g
	}
}

// declareFuncs forward-declares every lowered function (including closure
// code bodies and the synthesized "main" entry), matching
// init_module_env's declare-before-define split.
func (be *Backend) declareFuncs(funs []*lir.Fun) {
	for _, f := range funs {
		argTys := make([]llvm.Type, len(f.Args))
		for i, a := range f.Args {
			argTys[i] = be.llvmType(uint8(be.c.VarRepType(a)))
		}
		retTy := be.llvmType(uint8(f.ReturnType))
		ftyp := llvm.FunctionType(retTy, argTys, false)
		name := be.c.GetVar(f.Name).SymbolName
		fn := llvm.AddFunction(be.module, name, ftyp)
		be.topFuncs[f.Name] = fn
	}
}

// collectLocals returns every VarId assigned anywhere in f, in
// first-occurrence order, so defineFun can allocate all of them up front.
func collectLocals(f *lir.Fun) []ctx.VarId {
	seen := make(map[ctx.VarId]bool)
	var out []ctx.VarId
	for _, blk := range f.Blocks {
		for _, st := range blk.Stmts {
			if st.Kind == lir.SAsgn && !seen[st.Lhs] {
				seen[st.Lhs] = true
				out = append(out, st.Lhs)
			}
		}
	}
	return out
}

func (be *Backend) defineFun(f *lir.Fun) {
	fn := be.topFuncs[f.Name]
	be.curFn = fn

	blockMap := make(map[lir.Label]llvm.BasicBlock, len(f.Blocks))
	for _, blk := range f.Blocks {
		blockMap[blk.Label] = llvm.AddBasicBlock(fn, string(blk.Label))
	}

	entry := blockMap[f.Blocks[0].Label]
	be.builder.SetInsertPointAtEnd(entry)

	locals := make(map[ctx.VarId]llvm.Value)
	for i, argID := range f.Args {
		ty := be.llvmType(uint8(be.c.VarRepType(argID)))
		alloc := be.builder.CreateAlloca(ty, "")
		be.builder.CreateStore(fn.Param(i), alloc)
		locals[argID] = alloc
	}
	for _, id := range collectLocals(f) {
		if _, ok := locals[id]; ok {
			continue
		}
		ty := be.llvmType(uint8(be.c.VarRepType(id)))
		locals[id] = be.builder.CreateAlloca(ty, "")
	}

	for _, blk := range f.Blocks {
		be.builder.SetInsertPointAtEnd(blockMap[blk.Label])
		for _, st := range blk.Stmts {
			be.genStmt(locals, st)
		}
		be.genExit(locals, blockMap, blk.Exit)
	}
}

// genMain builds the process entry point: it calls the synthesized
// top-level "main" function and returns 0, matching make_main's shape
// (spec.md §4.5).
func (be *Backend) genMain(mainID ctx.VarId) error {
	mainFn, ok := be.topFuncs[mainID]
	if !ok {
		return fmt.Errorf("codegen: synthesized main function not declared")
	}

	i32 := llvm.Int32Type()
	ftyp := llvm.FunctionType(i32, nil, false)
	entryFn := llvm.AddFunction(be.module, "main", ftyp)
	bb := llvm.AddBasicBlock(entryFn, "")
	be.builder.SetInsertPointAtEnd(bb)
	be.builder.CreateCall(mainFn, nil, "")
	be.builder.CreateRet(llvm.ConstInt(i32, 0, false))
	return nil
}

func (be *Backend) useVar(locals map[ctx.VarId]llvm.Value, id ctx.VarId) llvm.Value {
	if alloc, ok := locals[id]; ok {
		return be.builder.CreateLoad(alloc, "")
	}
	// A reference to a top-level function or built-in not going through
	// App (e.g. a closure's code pointer stored into its tuple): take its
	// address. Mirrors Env::use_var's Fun/Data re-materialization in
	// codegen.rs.
	if fn, ok := be.topFuncs[id]; ok {
		return be.builder.CreatePtrToInt(fn, llvm.Int64Type(), "")
	}
	// A built-in is an imported data symbol holding its own code address
	// (declareBuiltins), so reading it is a load, not a ptrtoint — the
	// same Env::use_var Data case codegen.rs reads declare_data globals
	// through.
	if g, ok := be.builtinData[id]; ok {
		return be.builder.CreateLoad(g, "")
	}
	panic(fmt.Sprintf("codegen: variable %d has no binding in this function", id))
}

func (be *Backend) genStmt(locals map[ctx.VarId]llvm.Value, st lir.Stmt) {
	switch st.Kind {
	case lir.SAsgn:
		rep := be.c.VarRepType(st.Lhs)
		val := be.genExpr(locals, st.Rhs, rep)
		be.builder.CreateStore(val, locals[st.Lhs])
	case lir.SExpr:
		be.genExpr(locals, st.Rhs, types.Word)
	}
}

func (be *Backend) genExit(locals map[ctx.VarId]llvm.Value, blockMap map[lir.Label]llvm.BasicBlock, ex lir.Exit) {
	switch ex.Kind {
	case lir.XReturn:
		be.builder.CreateRet(be.useVar(locals, ex.Var))

	case lir.XBranch:
		rep := be.c.VarRepType(ex.V1)
		v1 := be.useVar(locals, ex.V1)
		v2 := be.useVar(locals, ex.V2)
		thenBB := blockMap[ex.ThenLabel]
		elseBB := blockMap[ex.ElseLabel]

		var cond llvm.Value
		if rep == types.FloatRep {
			cond = be.builder.CreateFCmp(floatPredicate(ex.Cond), v1, v2, "")
		} else {
			cond = be.builder.CreateICmp(intPredicate(ex.Cond), v1, v2, "")
		}
		be.builder.CreateCondBr(cond, thenBB, elseBB)

	case lir.XJump:
		be.builder.CreateBr(blockMap[ex.JumpLabel])
	}
}

func intPredicate(c lir.Cmp) llvm.IntPredicate {
	switch c {
	case lir.CmpEqual:
		return llvm.IntEQ
	case lir.CmpNotEqual:
		return llvm.IntNE
	case lir.CmpLessThan:
		return llvm.IntSLT
	case lir.CmpLessThanOrEqual:
		return llvm.IntSLE
	case lir.CmpGreaterThan:
		return llvm.IntSGT
	default:
		return llvm.IntSGE
	}
}

func floatPredicate(c lir.Cmp) llvm.FloatPredicate {
	switch c {
	case lir.CmpEqual:
		return llvm.FloatOEQ
	case lir.CmpNotEqual:
		return llvm.FloatONE
	case lir.CmpLessThan:
		return llvm.FloatOLT
	case lir.CmpLessThanOrEqual:
		return llvm.FloatOLE
	case lir.CmpGreaterThan:
		return llvm.FloatOGT
	default:
		return llvm.FloatOGE
	}
}

// genExpr generates the value of one lowered Expr. resultRep is the
// representation type of the statement's destination (for a bare
// expression statement it is unused but still threaded through).
func (be *Backend) genExpr(locals map[ctx.VarId]llvm.Value, e lir.Expr, resultRep types.RepType) llvm.Value {
	switch e.Kind {
	case lir.EAtom:
		return be.genAtom(locals, e.Atom)

	case lir.EIBinOp:
		a1 := be.useVar(locals, e.Arg1)
		a2 := be.useVar(locals, e.Arg2)
		return be.genIntBinOp(e.Op, a1, a2)

	case lir.EFBinOp:
		a1 := be.useVar(locals, e.Arg1)
		a2 := be.useVar(locals, e.Arg2)
		return be.genFloatBinOp(e.Op, a1, a2)

	case lir.ENeg:
		a := be.useVar(locals, e.Arg1)
		return be.builder.CreateSub(llvm.ConstInt(llvm.Int64Type(), 0, true), a, "")

	case lir.EFNeg:
		a := be.useVar(locals, e.Arg1)
		return be.builder.CreateFNeg(a, "")

	case lir.EApp:
		return be.genApp(locals, e, resultRep)

	case lir.ETuple:
		size := llvm.ConstInt(llvm.Int64Type(), uint64(e.Len*wordSize), false)
		call := be.builder.CreateCall(be.mallocFn, []llvm.Value{size}, "")
		return call

	case lir.ETuplePut:
		tuple := be.useVar(locals, e.Tuple)
		val := be.useVar(locals, e.ElemVal)
		be.storeAt(tuple, int64(e.Idx*wordSize), val)
		return llvm.ConstInt(llvm.Int64Type(), 0, false)

	case lir.ETupleGet:
		tuple := be.useVar(locals, e.Tuple)
		ty := be.llvmType(uint8(resultRep))
		return be.loadAt(tuple, int64(e.Idx*wordSize), ty)

	case lir.EArrayAlloc:
		return be.genArrayAlloc(locals, e)

	case lir.EArrayGet:
		arr := be.useVar(locals, e.Array)
		idx := be.useVar(locals, e.IdxVar)
		off := be.builder.CreateMul(idx, llvm.ConstInt(llvm.Int64Type(), wordSize, false), "")
		addr := be.builder.CreateAdd(arr, off, "")
		ty := be.llvmType(uint8(resultRep))
		ptr := be.builder.CreateIntToPtr(addr, llvm.PointerType(ty, 0), "")
		return be.builder.CreateLoad(ptr, "")

	case lir.EArrayPut:
		arr := be.useVar(locals, e.Array)
		idx := be.useVar(locals, e.IdxVar)
		val := be.useVar(locals, e.ElemVal)
		off := be.builder.CreateMul(idx, llvm.ConstInt(llvm.Int64Type(), wordSize, false), "")
		addr := be.builder.CreateAdd(arr, off, "")
		ptr := be.builder.CreateIntToPtr(addr, llvm.PointerType(val.Type(), 0), "")
		be.builder.CreateStore(val, ptr)
		return llvm.ConstInt(llvm.Int64Type(), 0, false)
	}
	panic(fmt.Sprintf("codegen: unhandled expr kind %d", e.Kind))
}

func (be *Backend) genAtom(locals map[ctx.VarId]llvm.Value, a lir.Atom) llvm.Value {
	switch {
	case a.IsUnit:
		return llvm.ConstInt(llvm.Int64Type(), 0, false)
	case a.IsVar:
		return be.useVar(locals, a.Var)
	case a.IsFloat():
		return llvm.ConstFloat(llvm.DoubleType(), a.FloatVal)
	default:
		return llvm.ConstInt(llvm.Int64Type(), uint64(a.IntVal), true)
	}
}

func (be *Backend) genIntBinOp(op lir.ArithOp, a1, a2 llvm.Value) llvm.Value {
	switch op {
	case lir.OpAdd:
		return be.builder.CreateAdd(a1, a2, "")
	case lir.OpSub:
		return be.builder.CreateSub(a1, a2, "")
	case lir.OpMul:
		return be.builder.CreateMul(a1, a2, "")
	default: // OpDiv
		return be.builder.CreateSDiv(a1, a2, "")
	}
}

func (be *Backend) genFloatBinOp(op lir.ArithOp, a1, a2 llvm.Value) llvm.Value {
	switch op {
	case lir.OpAdd:
		return be.builder.CreateFAdd(a1, a2, "")
	case lir.OpSub:
		return be.builder.CreateFSub(a1, a2, "")
	case lir.OpMul:
		return be.builder.CreateFMul(a1, a2, "")
	default: // OpDiv
		return be.builder.CreateFDiv(a1, a2, "")
	}
}

// genApp lowers a call. Every callee — a built-in's imported data symbol
// or a closure's code-pointer word extracted from its slot 0 — arrives
// through useVar as a plain i64, cast to a function pointer of the exact
// arity/ABI this call site needs and invoked indirectly (there is no one
// true signature for a code-pointer value — each call site reconstructs
// the one it needs, the same signature-per-call-site approach
// codegen.rs's call_indirect takes, with built-ins going through that
// same path instead of a direct call).
func (be *Backend) genApp(locals map[ctx.VarId]llvm.Value, e lir.Expr, resultRep types.RepType) llvm.Value {
	argVals := make([]llvm.Value, len(e.AppArgs))
	for i, a := range e.AppArgs {
		argVals[i] = be.useVar(locals, a)
	}

	callee := be.useVar(locals, e.Fun)
	paramTys := make([]llvm.Type, len(argVals))
	for i, v := range argVals {
		paramTys[i] = v.Type()
	}
	retTy := be.llvmType(uint8(resultRep))
	fnTy := llvm.FunctionType(retTy, paramTys, false)
	fnPtr := be.builder.CreateIntToPtr(callee, llvm.PointerType(fnTy, 0), "")
	return be.builder.CreateCall(fnPtr, argVals, "")
}

// genArrayAlloc synthesizes the malloc-plus-fill loop for array literals,
// using three fresh basic blocks — header, body, continuation — built at
// code-gen time, not in internal/lower; grounded line-for-line on
// codegen.rs's ArrayAlloc arm (loop_block/loop_doit_block/cont_block).
func (be *Backend) genArrayAlloc(locals map[ctx.VarId]llvm.Value, e lir.Expr) llvm.Value {
	i64 := llvm.Int64Type()
	wordConst := llvm.ConstInt(i64, wordSize, false)

	lenVal := be.useVar(locals, e.LenVar)
	sizeVal := be.builder.CreateMul(lenVal, wordConst, "")
	arrVal := be.builder.CreateCall(be.mallocFn, []llvm.Value{sizeVal}, "")
	elemVal := be.useVar(locals, e.ElemVal)

	boundAlloc := be.builder.CreateAlloca(i64, "")
	boundVal := be.builder.CreateAdd(arrVal, sizeVal, "")
	be.builder.CreateStore(boundVal, boundAlloc)

	idxAlloc := be.builder.CreateAlloca(i64, "")
	be.builder.CreateStore(arrVal, idxAlloc)

	header := llvm.AddBasicBlock(be.curFn, "")
	body := llvm.AddBasicBlock(be.curFn, "")
	cont := llvm.AddBasicBlock(be.curFn, "")

	be.builder.CreateBr(header)

	be.builder.SetInsertPointAtEnd(header)
	idxVal := be.builder.CreateLoad(idxAlloc, "")
	boundLoaded := be.builder.CreateLoad(boundAlloc, "")
	done := be.builder.CreateICmp(llvm.IntEQ, idxVal, boundLoaded, "")
	be.builder.CreateCondBr(done, cont, body)

	be.builder.SetInsertPointAtEnd(body)
	ptr := be.builder.CreateIntToPtr(idxVal, llvm.PointerType(elemVal.Type(), 0), "")
	be.builder.CreateStore(elemVal, ptr)
	nextIdx := be.builder.CreateAdd(idxVal, wordConst, "")
	be.builder.CreateStore(nextIdx, idxAlloc)
	be.builder.CreateBr(header)

	be.builder.SetInsertPointAtEnd(cont)
	return arrVal
}

func (be *Backend) storeAt(base llvm.Value, offset int64, val llvm.Value) {
	addr := base
	if offset != 0 {
		addr = be.builder.CreateAdd(base, llvm.ConstInt(llvm.Int64Type(), uint64(offset), true), "")
	}
	ptr := be.builder.CreateIntToPtr(addr, llvm.PointerType(val.Type(), 0), "")
	be.builder.CreateStore(val, ptr)
}

func (be *Backend) loadAt(base llvm.Value, offset int64, ty llvm.Type) llvm.Value {
	addr := base
	if offset != 0 {
		addr = be.builder.CreateAdd(base, llvm.ConstInt(llvm.Int64Type(), uint64(offset), true), "")
	}
	ptr := be.builder.CreateIntToPtr(addr, llvm.PointerType(ty, 0), "")
	return be.builder.CreateLoad(ptr, "")
}
