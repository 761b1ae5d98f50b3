// Package scope resolves variables across nested rule applications.
//
// A Cursor maps variables local to a rule body onto the variables of the
// scope that applied the rule. A Scope tracks which variables the planner
// has already seen bound, consulting its parent through a Cursor so a rule
// body can be planned against the caller's bindings without renaming.
package scope

import (
	"slices"

	"github.com/roach88/deduce/internal/ir"
)

// Cursor is an alias map from local variables to the set of variables they
// stand for in the enclosing scope.
type Cursor struct {
	aliases map[ir.VarID][]ir.Variable
}

// NewCursor returns an empty cursor.
func NewCursor() *Cursor {
	return &Cursor{aliases: make(map[ir.VarID][]ir.Variable)}
}

// Resolve returns the alias set of v, or {v} when none is registered.
func (c *Cursor) Resolve(v ir.Variable) []ir.Variable {
	if c != nil {
		if remote, ok := c.aliases[v.ID]; ok {
			return remote
		}
	}
	return []ir.Variable{v}
}

// Link registers remote as an alias of local. Linking the same pair twice is
// a no-op.
func (c *Cursor) Link(local, remote ir.Variable) {
	if local.IsBlank() || remote.IsBlank() {
		return
	}
	set := c.aliases[local.ID]
	if slices.ContainsFunc(set, func(v ir.Variable) bool { return v.ID == remote.ID }) {
		return
	}
	c.aliases[local.ID] = append(set, remote)
}

// Relink replaces every alias of local with remote. Rule applications use it
// so a later slot mapping for the same rule variable overrides an earlier one.
func (c *Cursor) Relink(local, remote ir.Variable) {
	if local.IsBlank() || remote.IsBlank() {
		return
	}
	delete(c.aliases, local.ID)
	c.Link(local, remote)
}

// Has reports whether local has registered aliases.
func (c *Cursor) Has(local ir.Variable) bool {
	if c == nil {
		return false
	}
	_, ok := c.aliases[local.ID]
	return ok
}

// Enumerate returns the transitive alias closure of v within this cursor,
// excluding v itself, in discovery order.
func (c *Cursor) Enumerate(v ir.Variable) []ir.Variable {
	if c == nil {
		return nil
	}
	var out []ir.Variable
	seen := map[ir.VarID]bool{v.ID: true}
	queue := []ir.Variable{v}
	for len(queue) > 0 {
		next := queue[0]
		queue = queue[1:]
		for _, alias := range c.aliases[next.ID] {
			if seen[alias.ID] {
				continue
			}
			seen[alias.ID] = true
			out = append(out, alias)
			queue = append(queue, alias)
		}
	}
	return out
}
