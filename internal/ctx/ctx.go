// Package ctx provides the compilation-unit-wide context: a fresh-name
// supply, the variable table mapping VarId to Var, and the built-in
// registry. It lives for the whole compilation unit, the way the teacher's
// global symbol table (ir/llvm/transform.go's symTab) lives for one module.
package ctx

import (
	"fmt"
	"sync"

	"github.com/mincamlc/mincamlc/internal/runtime"
	"github.com/mincamlc/mincamlc/internal/types"
)

// VarId is an opaque, densely-assigned integer identifying a binder, user
// or built-in.
type VarId uint32

// Uniq is a stable dense index assigned to every Var. The back ends key
// their local slots by VarId, not by Uniq.
type Uniq uint32

// Var is the record a VarId resolves to.
type Var struct {
	Id         VarId
	Name       string  // Display name.
	SymbolName string  // Linkage name.
	Type       *types.Type
	Rep        types.RepType
	Uniq       Uniq
}

// Builtin pairs a built-in's VarId with its declared source type.
type Builtin struct {
	Id   VarId
	Type types.Type
}

// Ctx is the context for one compilation unit. Safe for concurrent use by
// multiple reader goroutines; writes (Declare/SetType) are expected to
// happen during a single-threaded setup phase per spec.md §5, but the
// mutex keeps the registry consistent with the teacher's symTab pattern
// regardless.
type Ctx struct {
	mu      sync.RWMutex
	vars    map[VarId]*Var
	nextId  VarId
	nextUq  Uniq
	builtin []Builtin
}

// New returns a Ctx with the fixed built-in set from internal/runtime
// (spec.md §6) already registered. internal/runtime.Builtins is the one
// place this table is written; Ctx never hardcodes its own copy, so the
// two cannot drift apart.
func New() *Ctx {
	c := &Ctx{
		vars: make(map[VarId]*Var, 16),
	}
	for _, b := range runtime.Builtins {
		c.declareBuiltin(b.Name, b.Type)
	}
	return c
}

func (c *Ctx) declareBuiltin(name string, ty types.Type) VarId {
	c.mu.Lock()
	defer c.mu.Unlock()
	id := c.nextId
	c.nextId++
	uq := c.nextUq
	c.nextUq++
	tyCopy := ty
	v := &Var{
		Id:         id,
		Name:       name,
		SymbolName: name,
		Type:       &tyCopy,
		Rep:        types.RepTypeOf(ty),
		Uniq:       uq,
	}
	c.vars[id] = v
	c.builtin = append(c.builtin, Builtin{Id: id, Type: ty})
	return id
}

// FreshUniq returns the next dense Uniq index.
func (c *Ctx) FreshUniq() Uniq {
	c.mu.Lock()
	defer c.mu.Unlock()
	u := c.nextUq
	c.nextUq++
	return u
}

// Declare registers a new user binder with the given display name and
// returns its VarId. The type is attached later via SetType once inferred.
func (c *Ctx) Declare(name string) VarId {
	c.mu.Lock()
	defer c.mu.Unlock()
	id := c.nextId
	c.nextId++
	uq := c.nextUq
	c.nextUq++
	c.vars[id] = &Var{
		Id:         id,
		Name:       name,
		SymbolName: symbolName(name, id),
		Uniq:       uq,
	}
	return id
}

func symbolName(name string, id VarId) string {
	if name == "" {
		return fmt.Sprintf("_anon_%d", id)
	}
	return name
}

// SetType attaches the ground source type (and derived RepType) to a
// previously declared variable.
func (c *Ctx) SetType(id VarId, t types.Type) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.vars[id]
	if !ok {
		panic(fmt.Sprintf("ctx: SetType on unknown VarId %d", id))
	}
	tyCopy := t
	v.Type = &tyCopy
	v.Rep = types.RepTypeOf(t)
}

// GetVar resolves a VarId to its Var record.
func (c *Ctx) GetVar(id VarId) Var {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.vars[id]
	if !ok {
		panic(fmt.Sprintf("ctx: unknown VarId %d", id))
	}
	return *v
}

// VarType returns the ground source type of a variable. Panics if the
// variable has no type attached yet — every variable must be typed before
// code-gen per spec.md §3.
func (c *Ctx) VarType(id VarId) types.Type {
	v := c.GetVar(id)
	if v.Type == nil {
		panic(fmt.Sprintf("ctx: variable %d has no type", id))
	}
	return *v.Type
}

// VarRepType returns the back-end representation type of a variable.
func (c *Ctx) VarRepType(id VarId) types.RepType {
	return c.GetVar(id).Rep
}

// Builtins returns the registered built-ins in declaration order.
func (c *Ctx) Builtins() []Builtin {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]Builtin, len(c.builtin))
	copy(out, c.builtin)
	return out
}

// LookupBuiltin returns the VarId of a built-in by name, if registered.
func (c *Ctx) LookupBuiltin(name string) (VarId, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, b := range c.builtin {
		if c.vars[b.Id].Name == name {
			return b.Id, true
		}
	}
	return 0, false
}
