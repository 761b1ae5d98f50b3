package harness

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGolden_Movies(t *testing.T) {
	result, err := RunWithGolden(t, loadScenario(t, "movies"))
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
}

func TestGolden_Catalog(t *testing.T) {
	result, err := RunWithGolden(t, loadScenario(t, "catalog"))
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
}

func TestSnapshot_Deterministic(t *testing.T) {
	s := loadScenario(t, "family")

	first, err := Run(t.Context(), s)
	require.NoError(t, err)
	second, err := Run(t.Context(), s)
	require.NoError(t, err)

	a, err := Snapshot(s.Name, first)
	require.NoError(t, err)
	b, err := Snapshot(s.Name, second)
	require.NoError(t, err)
	assert.Equal(t, string(a), string(b))
}

func TestSnapshot_Format(t *testing.T) {
	result := NewResult()
	result.Queries = append(result.Queries, QueryResult{
		Query:   "q",
		Args:    map[string]any{"n": 1},
		Records: []any{map[string]any{"b": int64(2), "a": 1.5}},
	})

	data, err := Snapshot("tiny", result)
	require.NoError(t, err)
	assert.Equal(t,
		`{"queries":[{"args":{"n":1},"query":"q","records":[{"a":1.5,"b":2}]}],"scenario":"tiny"}`+"\n",
		string(data))
}

func TestSnapshot_RulesError(t *testing.T) {
	result := NewResult()
	result.RulesError = "boom"

	data, err := Snapshot("broken", result)
	require.NoError(t, err)
	assert.Equal(t, `{"queries":[],"rules_error":"boom","scenario":"broken"}`+"\n", string(data))
}
