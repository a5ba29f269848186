// Package native is the supplementary register-allocated text-assembly
// back end, targeting riscv64 (-t riscv64), exercised alongside the
// default LLVM back end (internal/codegen). Adapted from the teacher's
// backend/regfile and backend/riscv packages: the Register/RegisterFile
// interfaces are kept verbatim in shape, and the riscv64 register
// constants/calling-convention aliases are restated from
// backend/riscv/riscv.go, retargeted to allocate for internal/lir values
// instead of vslc's symbol-table identifiers.
package native

import "fmt"

// Register is one physical register: its dense index, its class (integer
// or float), and its assembler name. Mirrors backend/regfile.Register.
type Register interface {
	Id() int
	Type() int
	String() string
}

// Register classes.
const (
	RegInt = iota
	RegFloat
)

// RegisterFile is a virtual register file offering temporary-register
// allocation plus the fixed special-purpose registers every function
// prologue/epilogue needs. Mirrors backend/regfile.RegisterFile, trimmed
// to the subset this back end's spill-every-statement allocator uses (no
// GetI/GetF by absolute index: every value lives on the stack between
// statements, so only SP/FP/RA and "next free temp" are needed).
type RegisterFile interface {
	SP() Register
	FP() Register
	RA() Register
	GetNextTempI() (Register, bool)
	GetNextTempF() (Register, bool)
	FreeI(id int)
	FreeF(id int)
	ArgI(i int) Register
	ArgF(i int) Register
	ResetTemps()
}

type riscvReg struct {
	id  int
	typ int
}

func (r riscvReg) Id() int   { return r.id }
func (r riscvReg) Type() int { return r.typ }

func (r riscvReg) String() string {
	if r.typ == RegFloat {
		return riscv64FloatNames[r.id]
	}
	return riscv64IntNames[r.id]
}

// Register index constants, restated from backend/riscv/riscv.go's x0..x31
// and f0..f31 enumerations (the D-extension double-precision file).
const (
	regZero = 0
	regRA   = 1
	regSP   = 2
	regFP   = 8
	regA0   = 10 // a0..a7 = x10..x17
	regT0   = 5  // t0..t2 = x5..x7
	regT3   = 28 // t3..t6 = x28..x31
)

var riscv64IntNames = [...]string{
	"zero", "ra", "sp", "gp", "tp", "t0", "t1", "t2",
	"fp", "s1", "a0", "a1", "a2", "a3", "a4", "a5",
	"a6", "a7", "s2", "s3", "s4", "s5", "s6", "s7",
	"s8", "s9", "s10", "s11", "t3", "t4", "t5", "t6",
}

var riscv64FloatNames = [...]string{
	"ft0", "ft1", "ft2", "ft3", "ft4", "ft5", "ft6", "ft7",
	"fs0", "fs1", "fa0", "fa1", "fa2", "fa3", "fa4", "fa5",
	"fa6", "fa7", "fs2", "fs3", "fs4", "fs5", "fs6", "fs7",
	"fs8", "fs9", "fs10", "fs11", "ft8", "ft9", "ft10", "ft11",
}

// tempIntIdx/tempFloatIdx are the caller-saved temporary registers this
// back end draws from: t0-t6 (int), ft0-ft7 (float), the same pool
// backend/riscv/function.go's genFunctionCall spills around calls.
var tempIntIdx = []int{5, 6, 7, 28, 29, 30, 31}
var tempFloatIdx = []int{0, 1, 2, 3, 4, 5, 6, 7}

// riscv64RegisterFile implements RegisterFile with a simple free-list: a
// temporary is handed out by GetNextTempI/F and returned by FreeI/F. Every
// lowered value is spilled to its stack slot between statements (see
// native.go's genStmt), so at most a handful of temporaries are ever live
// at once and a free-list is sufficient — the teacher's regalloc.go's
// graph-coloring spill/reload machinery is not used. The free-list hands
// out the lowest free temporary and never spills: exhaustion panics (see
// mustTempI/mustTempF).
type riscv64RegisterFile struct {
	freeInt   []bool
	freeFloat []bool
}

// NewRISCV64 returns the register file for the riscv64 target.
func NewRISCV64() RegisterFile {
	rf := &riscv64RegisterFile{
		freeInt:   make([]bool, len(tempIntIdx)),
		freeFloat: make([]bool, len(tempFloatIdx)),
	}
	rf.ResetTemps()
	return rf
}

func (rf *riscv64RegisterFile) ResetTemps() {
	for i := range rf.freeInt {
		rf.freeInt[i] = true
	}
	for i := range rf.freeFloat {
		rf.freeFloat[i] = true
	}
}

func (rf *riscv64RegisterFile) SP() Register { return riscvReg{id: regSP, typ: RegInt} }
func (rf *riscv64RegisterFile) FP() Register { return riscvReg{id: regFP, typ: RegInt} }
func (rf *riscv64RegisterFile) RA() Register { return riscvReg{id: regRA, typ: RegInt} }

func (rf *riscv64RegisterFile) ArgI(i int) Register { return riscvReg{id: regA0 + i, typ: RegInt} }
func (rf *riscv64RegisterFile) ArgF(i int) Register { return riscvReg{id: regA0 + i, typ: RegFloat} }

func (rf *riscv64RegisterFile) GetNextTempI() (Register, bool) {
	for i, free := range rf.freeInt {
		if free {
			rf.freeInt[i] = false
			return riscvReg{id: tempIntIdx[i], typ: RegInt}, true
		}
	}
	return nil, false
}

func (rf *riscv64RegisterFile) GetNextTempF() (Register, bool) {
	for i, free := range rf.freeFloat {
		if free {
			rf.freeFloat[i] = false
			return riscvReg{id: tempFloatIdx[i], typ: RegFloat}, true
		}
	}
	return nil, false
}

func (rf *riscv64RegisterFile) FreeI(id int) {
	for i, t := range tempIntIdx {
		if t == id {
			rf.freeInt[i] = true
			return
		}
	}
}

func (rf *riscv64RegisterFile) FreeF(id int) {
	for i, t := range tempFloatIdx {
		if t == id {
			rf.freeFloat[i] = true
			return
		}
	}
}

// mustTempI/F panic on exhaustion: with the spill-every-statement
// discipline this back end uses, at most four integer temporaries
// (genArrayAlloc's array, bound, cursor and element) and two float
// temporaries are ever live at once, below the
// seven integer / eight float temporaries available, so exhaustion
// signals a genuine back-end bug rather than a program that legitimately
// needs more registers.
func mustTempI(rf RegisterFile) Register {
	r, ok := rf.GetNextTempI()
	if !ok {
		panic(fmt.Sprintf("native: integer register file exhausted"))
	}
	return r
}

func mustTempF(rf RegisterFile) Register {
	r, ok := rf.GetNextTempF()
	if !ok {
		panic(fmt.Sprintf("native: float register file exhausted"))
	}
	return r
}
