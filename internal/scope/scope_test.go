package scope

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/deduce/internal/ir"
)

// =============================================================================
// Cursor
// =============================================================================

func TestCursorResolveDefaultsToSelf(t *testing.T) {
	c := NewCursor()
	x := ir.NewVariable("x")

	got := c.Resolve(x)
	require.Len(t, got, 1)
	assert.Equal(t, x.ID, got[0].ID)
}

func TestCursorLinkIsIdempotent(t *testing.T) {
	c := NewCursor()
	local := ir.NewVariable("local")
	remote := ir.NewVariable("remote")

	c.Link(local, remote)
	c.Link(local, remote)

	assert.Len(t, c.Resolve(local), 1)
}

func TestCursorLinkAccumulatesAliases(t *testing.T) {
	c := NewCursor()
	local := ir.NewVariable("local")
	a := ir.NewVariable("a")
	b := ir.NewVariable("b")

	c.Link(local, a)
	c.Link(local, b)

	assert.Equal(t, []ir.Variable{a, b}, c.Resolve(local))
}

func TestCursorRelinkOverrides(t *testing.T) {
	c := NewCursor()
	local := ir.NewVariable("local")
	a := ir.NewVariable("a")
	b := ir.NewVariable("b")

	c.Relink(local, a)
	c.Relink(local, b)

	assert.Equal(t, []ir.Variable{b}, c.Resolve(local))
}

func TestCursorIgnoresBlank(t *testing.T) {
	c := NewCursor()
	local := ir.NewVariable("local")

	c.Link(local, ir.Blank)
	assert.False(t, c.Has(local))
}

func TestCursorEnumerateIsTransitive(t *testing.T) {
	c := NewCursor()
	a := ir.NewVariable("a")
	b := ir.NewVariable("b")
	d := ir.NewVariable("d")

	c.Link(a, b)
	c.Link(b, d)
	c.Link(d, a)

	assert.Equal(t, []ir.Variable{b, d}, c.Enumerate(a))
}

// =============================================================================
// Scope
// =============================================================================

func TestScopeBind(t *testing.T) {
	x := ir.NewVariable("x")
	s := New()

	assert.False(t, s.IsBound(x))
	s.Bind(x)
	assert.True(t, s.IsBound(x))

	s.Bind(ir.Blank)
	assert.False(t, s.IsBound(ir.Blank))
}

func TestScopeResolvesThroughParent(t *testing.T) {
	caller := ir.NewVariable("caller")
	other := ir.NewVariable("other")
	local := ir.NewVariable("local")

	parent := New(caller)

	c := NewCursor()
	c.Link(local, other)
	c.Link(local, caller)
	child := parent.Child(c)

	assert.True(t, child.IsBound(local), "bound through one of its aliases")
	assert.False(t, child.IsBound(other), "unlinked variables do not consult the parent")
}

func TestScopeResolvesAcrossNesting(t *testing.T) {
	root := ir.NewVariable("root")
	mid := ir.NewVariable("mid")
	leaf := ir.NewVariable("leaf")

	outer := New(root)

	c1 := NewCursor()
	c1.Link(mid, root)
	middle := outer.Child(c1)

	c2 := NewCursor()
	c2.Link(leaf, mid)
	inner := middle.Child(c2)

	assert.True(t, inner.IsBound(leaf))
}

func TestScopeIsBoundTerm(t *testing.T) {
	s := New()
	assert.True(t, s.IsBoundTerm(ir.String("constant")))
	assert.False(t, s.IsBoundTerm(ir.NewVariable("x")))
	assert.False(t, s.IsBoundTerm(nil))
}

func TestScopeCloneIsIndependent(t *testing.T) {
	x := ir.NewVariable("x")
	s := New()
	clone := s.Clone()
	clone.Bind(x)

	assert.False(t, s.IsBound(x))
	assert.True(t, clone.IsBound(x))
}
