// diagnostics.go adapts the teacher's util/perror.go channel-based error
// collector to the synchronous pipeline mandated by spec.md §5: no
// background goroutine, just a plain (unlocked) buffer appended to from the single
// compiler thread. Used by code-gen's back-end verification path (spec.md
// §7: verification failures are printed, but do not halt emission).
package util

// Diagnostics buffers non-fatal messages collected during a compiler pass.
type Diagnostics struct {
	messages []string
}

// Append records a diagnostic message.
func (d *Diagnostics) Append(msg string) {
	d.messages = append(d.messages, msg)
}

// Len returns the number of buffered diagnostics.
func (d *Diagnostics) Len() int {
	return len(d.messages)
}

// Messages returns the buffered diagnostics in report order.
func (d *Diagnostics) Messages() []string {
	out := make([]string, len(d.messages))
	copy(out, d.messages)
	return out
}

// Flush empties the buffer.
func (d *Diagnostics) Flush() {
	d.messages = d.messages[:0]
}
