package testutil

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/deduce/internal/ir"
)

func TestFact(t *testing.T) {
	d := Fact("m1", "movie/year", 2009)

	assert.Equal(t, ir.String("m1"), d.Of)
	assert.Equal(t, ir.String("movie/year"), d.The)
	assert.Equal(t, ir.Int(2009), d.Is)
	assert.Nil(t, d.Cause)
}

func TestScalarPanicsOnUnsupported(t *testing.T) {
	assert.Panics(t, func() { Scalar(struct{}{}) })
}

func TestEntity(t *testing.T) {
	facts := Entity("m1", "movie/title", "Up", "movie/year", 2009)

	require.Len(t, facts, 2)
	assert.Equal(t, ir.String("Up"), facts[0].Is)
	assert.Equal(t, ir.Int(2009), facts[1].Is)

	assert.Panics(t, func() { Entity("m1", "movie/title") })
}

func TestMemory(t *testing.T) {
	s := Memory(t,
		Entity("m1", "movie/title", "Up"),
		Entity("m2", "movie/title", "Coco"),
	)

	got, err := s.Select(context.Background(), ir.Selector{The: ir.String("movie/title")})
	require.NoError(t, err)
	assert.Len(t, got, 2)
}

func TestRules(t *testing.T) {
	unit := Rules(t, `
rule: title: {
	match: {movie: "?m", title: "?t"}
	when: [{match: {the: "movie/title", of: "?m", is: "?t"}}]
}
`)
	_, ok := unit.Program.Lookup("title")
	assert.True(t, ok)
}
