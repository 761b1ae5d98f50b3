package cli

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidate_Valid(t *testing.T) {
	rules, _ := fixtures(t)

	stdout, _, err := execute(t, "validate", rules)
	require.NoError(t, err)
	assert.Contains(t, stdout, "✓ Rules valid: 1 rule(s), 2 query(ies)")
}

func TestValidate_ValidJSON(t *testing.T) {
	rules, _ := fixtures(t)

	stdout, _, err := execute(t, "validate", rules, "--format", "json")
	require.NoError(t, err)

	var resp struct {
		Status string           `json:"status"`
		Data   ValidationResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(stdout), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.True(t, resp.Data.Valid)
	assert.Equal(t, "1", resp.Data.Format)
	assert.Equal(t, 1, resp.Data.Rules)
	assert.Equal(t, 2, resp.Data.Queries)
}

func TestValidate_StructuralErrors(t *testing.T) {
	path := writeFile(t, t.TempDir(), "broken.cue", `
rule: nomatch: {
	when: [{ match: { of: "?x", the: "a", is: "?y" } }]
}

rule: badslot: {
	match: { x: "x" }
	when: [{ match: { of: "?x", the: "a", is: "?y" } }]
}
`)

	stdout, _, err := execute(t, "validate", path)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, err.Error(), "validation failed with 2 error(s)")
	assert.Contains(t, stdout, "✗ Validation failed")
	assert.Contains(t, stdout, "E101")
	assert.Contains(t, stdout, "match is required")
	assert.Contains(t, stdout, "E102")
}

func TestValidate_CompileError(t *testing.T) {
	path := writeFile(t, t.TempDir(), "cycle.cue", `
rule: a: { match: { x: "?x" }, when: [{ rule: "b", match: { x: "?x" } }] }
rule: b: { match: { x: "?x" }, when: [{ rule: "a", match: { x: "?x" } }] }
`)

	stdout, _, err := execute(t, "validate", path, "--format", "json")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	var resp struct {
		Status string           `json:"status"`
		Data   ValidationResult `json:"data"`
		Error  *CLIError        `json:"error"`
	}
	require.NoError(t, json.Unmarshal([]byte(stdout), &resp))
	assert.Equal(t, "error", resp.Status)
	assert.False(t, resp.Data.Valid)
	require.Len(t, resp.Data.Errors, 1)
	assert.Equal(t, "RULE_CYCLE", resp.Data.Errors[0].Code)
	assert.Contains(t, resp.Data.Errors[0].Message, "rules apply each other")
}

func TestValidate_UnplannableQuery(t *testing.T) {
	path := writeFile(t, t.TempDir(), "sizes.cue", `
rule: size: {
	match: { text: "?text", size: "?size" }
	when: count: [{ operator: "text/length", match: { of: "?text", is: "?size" } }]
}

rule: sized: {
	match: { size: "?size" }
	when: any: [{ rule: "size", match: { text: "?t", size: "?size" } }]
}

query: "of-text": {
	rule: "size"
	match: { text: "?text", size: "?size" }
}

query: "any-size": {
	rule: "sized"
	match: { size: "?size" }
}
`)

	stdout, _, err := execute(t, "validate", path, "--format", "json")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	var resp struct {
		Status string           `json:"status"`
		Data   ValidationResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(stdout), &resp))
	assert.False(t, resp.Data.Valid)
	require.Len(t, resp.Data.Errors, 1, "of-text plans once its text argument is bound")
	assert.Equal(t, "query.any-size", resp.Data.Errors[0].Field)
	assert.Equal(t, "UNBOUND_VARIABLE", resp.Data.Errors[0].Code)
}

func TestValidate_MissingFile(t *testing.T) {
	stdout, _, err := execute(t, "validate", "/nonexistent/rules.cue")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, stdout, "Error [E002]")
}

func TestValidate_MissingArgs(t *testing.T) {
	_, _, err := execute(t, "validate")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "accepts 1 arg")
}
