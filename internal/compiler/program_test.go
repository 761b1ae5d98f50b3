package compiler

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/deduce/internal/ir"
	"github.com/roach88/deduce/internal/syntax"
)

const movies = `
rule: "movie-by-cast": {
	match: { title: "?title", actor: "?actor" }
	when: cast: [
		{ match: { of: "?movie", the: "movie/title", is: "?title" } },
		{ match: { of: "?movie", the: "movie/cast", is: "?person" } },
		{ match: { of: "?person", the: "person/name", is: "?actor" } },
	]
}

query: "titles-with": {
	rule: "movie-by-cast"
	match: { title: "?title", actor: "?actor" }
	select: { title: "?title" }
}

query: everything: {
	rule: "movie-by-cast"
	match: { title: "?t", actor: "?a" }
}
`

func TestCompileQueries(t *testing.T) {
	unit, err := CompileString(movies)
	require.NoError(t, err)
	require.Len(t, unit.Queries, 2)

	q, ok := unit.Query("titles-with")
	require.True(t, ok)
	assert.Equal(t, "movie-by-cast", q.Application.Name)
	assert.Equal(t, []string{"actor", "title"}, q.Names())
	require.NotNil(t, q.Select)
	assert.Equal(t, "{title: ?title}", q.Select.String())

	all, ok := unit.Query("everything")
	require.True(t, ok)
	assert.Nil(t, all.Select)

	_, ok = unit.Query("missing")
	assert.False(t, ok)
}

func TestQueryBind(t *testing.T) {
	unit, err := CompileString(movies)
	require.NoError(t, err)
	q, _ := unit.Query("titles-with")

	frame, err := q.Bind(map[string]any{"actor": "Ed Asner"})
	require.NoError(t, err)

	value, ok := frame.Get(q.Vars["actor"])
	require.True(t, ok)
	assert.Equal(t, ir.String("Ed Asner"), value)

	_, ok = frame.Get(q.Vars["title"])
	assert.False(t, ok)
}

func TestQueryBindUnknownVariable(t *testing.T) {
	unit, err := CompileString(movies)
	require.NoError(t, err)
	q, _ := unit.Query("titles-with")

	_, err = q.Bind(map[string]any{"director": "Pete Docter"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no variable ?director")
}

func TestCompileQueryNoRule(t *testing.T) {
	_, err := CompileString(`query: q: { match: { x: "?x" } }`)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "query.q.rule: rule is required")
}

func TestCompileQueryUnknownRule(t *testing.T) {
	_, err := CompileString(`query: q: { rule: "nope", match: { x: "?x" } }`)
	require.Error(t, err)
	assert.True(t, syntax.HasCode(err, syntax.ErrCodeUnknownRule))
}

func TestCompileQuerySelectUnmentionedVariable(t *testing.T) {
	_, err := CompileString(`
		rule: r: { match: { x: "?x" } }
		query: q: {
			rule: "r"
			match: { x: "?x" }
			select: { y: "?y" }
		}
	`)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "?y is not mentioned")
}

func TestCompileRulesInDependencyOrder(t *testing.T) {
	// "uses" is declared before the rule it applies.
	unit, err := CompileString(`
		rule: uses: {
			match: { x: "?x" }
			when: main: [{ rule: "base", match: { x: "?x" } }]
		}
		rule: base: {
			match: { x: "?x" }
			when: main: [{ match: { of: "?x", the: "kind" } }]
		}
	`)
	require.NoError(t, err)

	rules := unit.Program.Rules()
	require.Len(t, rules, 2)
	assert.Equal(t, "base", rules[0].Name)
	assert.Equal(t, "uses", rules[1].Name)
}

func TestCompileInvalidCUE(t *testing.T) {
	_, err := CompileBytes("broken.cue", []byte("rule: {"))
	require.Error(t, err)

	var ce *CompileError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, "cue", ce.Field)
	assert.Contains(t, err.Error(), "broken.cue")
}

func TestCompileEmptyDocument(t *testing.T) {
	unit, err := CompileString("")
	require.NoError(t, err)
	assert.Empty(t, unit.Program.Rules())
	assert.Empty(t, unit.Queries)
}
