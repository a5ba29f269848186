// labeler.go adapts the teacher's util/label.go. The original exposed a
// package-level goroutine reached through global channels; spec.md §9 calls
// that pattern out explicitly ("a systems-language reimplementation should
// move this into the Ctx... and pass it explicitly") so here it is a plain
// struct with no background goroutine, one per lowering session.
package util

import "fmt"

// Label kinds, matching the teacher's labelPrefixes table.
const (
	LabelArrayHeader = iota
	LabelArrayBody
	LabelArrayCont
	LabelBlock
)

var labelPrefixes = [...]string{
	LabelArrayHeader: "Lahdr",
	LabelArrayBody:   "Labody",
	LabelArrayCont:   "Lacont",
	LabelBlock:       "L",
}

// Labeler generates block labels for internal/lower. One Labeler serves a
// whole program's lowering, so its labels are unique across every function.
type Labeler struct {
	counts [len(labelPrefixes)]int
}

// New returns a label of the given kind, suffixed with a dense counter so
// repeated labels of one kind don't collide.
func (l *Labeler) New(kind int) string {
	n := l.counts[kind]
	l.counts[kind]++
	return fmt.Sprintf("%s_%03d", labelPrefixes[kind], n)
}
