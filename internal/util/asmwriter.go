package util

import (
	"fmt"
	"strings"
)

// AsmWriter buffers textual assembly output. Adapted from the teacher's
// util.Writer (src/util/io.go): the Ins1/Ins2/Ins3/LoadStore/Label
// instruction-formatting helpers are kept as-is, but the channel-based
// Flush/Close hookup to a concurrent listener goroutine is dropped per
// spec.md §5's synchronous-pipeline mandate — a compilation unit builds
// one buffer and returns its String() once, with no background writer.
type AsmWriter struct {
	sb strings.Builder
}

// Write appends a formatted line to the buffer, unindented.
func (w *AsmWriter) Write(format string, args ...interface{}) {
	w.sb.WriteString(fmt.Sprintf(format, args...))
}

// WriteString appends s to the buffer verbatim.
func (w *AsmWriter) WriteString(s string) { w.sb.WriteString(s) }

// Ins1 writes a one-operand instruction line.
func (w *AsmWriter) Ins1(op, rs1 string) {
	w.sb.WriteString(fmt.Sprintf("\t%s\t%s\n", op, rs1))
}

// Ins2 writes a two-operand instruction line.
func (w *AsmWriter) Ins2(op, rd, rs1 string) {
	w.sb.WriteString(fmt.Sprintf("\t%s\t%s, %s\n", op, rd, rs1))
}

// Ins2imm writes a destination/source/immediate instruction line.
func (w *AsmWriter) Ins2imm(op, rd, rs1 string, imm int) {
	w.sb.WriteString(fmt.Sprintf("\t%s\t%s, %s, %d\n", op, rd, rs1, imm))
}

// Ins3 writes a three-operand instruction line.
func (w *AsmWriter) Ins3(op, rd, rs1, rs2 string) {
	w.sb.WriteString(fmt.Sprintf("\t%s\t%s, %s, %s\n", op, rd, rs1, rs2))
}

// LoadStore writes a load/store instruction addressing offset(pointer).
func (w *AsmWriter) LoadStore(op, reg string, offset int, pointer string) {
	w.sb.WriteString(fmt.Sprintf("\t%s\t%s, %d(%s)\n", op, reg, offset, pointer))
}

// Label writes a bare label line.
func (w *AsmWriter) Label(name string) {
	w.sb.WriteString(fmt.Sprintf("%s:\n", name))
}

// String returns the buffered assembly text.
func (w *AsmWriter) String() string { return w.sb.String() }
