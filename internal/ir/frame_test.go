package ir

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFrameBind(t *testing.T) {
	x := NewVariable("x")

	t.Run("unbound adds binding", func(t *testing.T) {
		f, err := NewFrame().Bind(x, Int(1))
		require.NoError(t, err)
		got, ok := f.Get(x)
		require.True(t, ok)
		assert.Equal(t, Int(1), got)
	})

	t.Run("equal value is a no-op", func(t *testing.T) {
		f, err := NewFrame().Bind(x, Int(1))
		require.NoError(t, err)
		g, err := f.Bind(x, Int(1))
		require.NoError(t, err)
		assert.True(t, f.Equal(g))
	})

	t.Run("different value conflicts", func(t *testing.T) {
		f, err := NewFrame().Bind(x, Int(1))
		require.NoError(t, err)
		_, err = f.Bind(x, Int(2))
		assert.ErrorIs(t, err, ErrBindingConflict)
	})

	t.Run("int and float of same magnitude conflict", func(t *testing.T) {
		f, err := NewFrame().Bind(x, Int(1))
		require.NoError(t, err)
		_, err = f.Bind(x, Float(1))
		assert.ErrorIs(t, err, ErrBindingConflict)
	})

	t.Run("blank is never written", func(t *testing.T) {
		f, err := NewFrame().Bind(Blank, Int(1))
		require.NoError(t, err)
		assert.Equal(t, 0, f.Len())
		_, ok := f.Get(Blank)
		assert.False(t, ok)
	})
}

func TestFrameBindIsCopyOnWrite(t *testing.T) {
	x := NewVariable("x")
	y := NewVariable("y")

	base, err := NewFrame().Bind(x, Int(1))
	require.NoError(t, err)

	left, err := base.Bind(y, String("left"))
	require.NoError(t, err)
	right, err := base.Bind(y, String("right"))
	require.NoError(t, err)

	assert.Equal(t, 1, base.Len(), "base frame must not observe branch bindings")
	l, _ := left.Get(y)
	r, _ := right.Get(y)
	assert.Equal(t, String("left"), l)
	assert.Equal(t, String("right"), r)
}

func TestFrameUnifyWithScalar(t *testing.T) {
	f := NewFrame()

	g, err := f.Unify(String("a"), String("a"))
	require.NoError(t, err)
	assert.Equal(t, 0, g.Len())

	_, err = f.Unify(String("a"), String("b"))
	assert.ErrorIs(t, err, ErrBindingConflict)

	g, err = f.Unify(nil, String("a"))
	require.NoError(t, err)
	assert.Equal(t, 0, g.Len())
}

func TestFrameResolve(t *testing.T) {
	x := NewVariable("x")
	f, err := NewFrame().Bind(x, Int(9))
	require.NoError(t, err)

	got, ok := f.Resolve(x)
	require.True(t, ok)
	assert.Equal(t, Int(9), got)

	got, ok = f.Resolve(String("lit"))
	require.True(t, ok)
	assert.Equal(t, String("lit"), got)

	_, ok = f.Resolve(NewVariable("unbound"))
	assert.False(t, ok)
}

func TestFrameProject(t *testing.T) {
	x := NewVariable("x")
	y := NewVariable("y")
	f, _ := NewFrame().Bind(x, Int(1))
	f, _ = f.Bind(y, Int(2))

	p := f.Project([]Variable{y})
	assert.Equal(t, 1, p.Len())
	_, ok := p.Get(x)
	assert.False(t, ok)
}

func TestFrameIdentityIgnoresBindingOrder(t *testing.T) {
	x := NewVariable("x")
	y := NewVariable("y")

	a, _ := NewFrame().Bind(x, Int(1))
	a, _ = a.Bind(y, String("b"))

	b, _ := NewFrame().Bind(y, String("b"))
	b, _ = b.Bind(x, Int(1))

	assert.Equal(t, a.Identity(), b.Identity())
	assert.True(t, a.Equal(b))
}

func TestFrameSetDeduplicates(t *testing.T) {
	x := NewVariable("x")
	one, _ := NewFrame().Bind(x, Int(1))
	oneAgain, _ := NewFrame().Bind(x, Int(1))
	two, _ := NewFrame().Bind(x, Int(2))
	oneFloat, _ := NewFrame().Bind(x, Float(1))

	set := NewFrameSet()
	assert.True(t, set.Add(one))
	assert.False(t, set.Add(oneAgain))
	assert.True(t, set.Add(two))
	assert.True(t, set.Add(oneFloat))

	require.Equal(t, 3, set.Len())
	assert.True(t, set.Contains(oneAgain))
	assert.True(t, set.Frames()[0].Equal(one), "insertion order is kept")
}

func TestFrameSetFoldsNegativeZero(t *testing.T) {
	x := NewVariable("x")
	zero, _ := NewFrame().Bind(x, Float(0))
	negZero, _ := NewFrame().Bind(x, Float(math.Copysign(0, -1)))

	require.True(t, zero.Equal(negZero))
	assert.Equal(t, zero.Identity(), negZero.Identity())

	set := NewFrameSet()
	set.Add(zero)
	assert.False(t, set.Add(negZero))
	assert.Equal(t, 1, set.Len())

	assert.Equal(t, Selector{Is: Float(0)}.Key(), Selector{Is: Float(math.Copysign(0, -1))}.Key())
}

func TestSelectorMatches(t *testing.T) {
	d := Datum{The: String("person/name"), Of: String("alice"), Is: String("Alice")}

	assert.True(t, Selector{}.Matches(d))
	assert.True(t, Selector{The: String("person/name")}.Matches(d))
	assert.False(t, Selector{The: String("person/age")}.Matches(d))
	assert.False(t, Selector{Of: String("alice"), Is: String("Bob")}.Matches(d))
}

func TestSelectorKeyDistinguishesKinds(t *testing.T) {
	a := Selector{Is: Int(1)}
	b := Selector{Is: Float(1)}
	c := Selector{Of: Int(1)}

	assert.NotEqual(t, a.Key(), b.Key())
	assert.NotEqual(t, a.Key(), c.Key())
	assert.Equal(t, a.Key(), Selector{Is: Int(1)}.Key())
}
