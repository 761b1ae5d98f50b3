package cli

import (
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_CreatesDatabase(t *testing.T) {
	_, facts := fixtures(t)
	db := filepath.Join(t.TempDir(), "facts.db")

	stdout, _, err := execute(t, "load", facts, "--db", db)
	require.NoError(t, err)
	assert.Contains(t, stdout, "✓ Loaded 11 fact(s)")
	assert.Contains(t, stdout, "(11 new, 11 in store)")
}

func TestLoad_Idempotent(t *testing.T) {
	_, facts := fixtures(t)
	db := filepath.Join(t.TempDir(), "facts.db")

	_, _, err := execute(t, "load", facts, "--db", db)
	require.NoError(t, err)

	stdout, _, err := execute(t, "load", facts, "--db", db, "--format", "json")
	require.NoError(t, err)

	var resp struct {
		Status string     `json:"status"`
		Data   LoadResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(stdout), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, moviesFactCount, resp.Data.Read)
	assert.Equal(t, 0, resp.Data.Asserted)
	assert.Equal(t, moviesFactCount, resp.Data.Total)
	assert.Equal(t, int64(2), resp.Data.Seq)
	assert.True(t, strings.HasPrefix(resp.Data.Cause, "#"))
	assert.NotEmpty(t, resp.Data.Transaction)
}

func TestLoad_Accumulates(t *testing.T) {
	_, facts := fixtures(t)
	dir := t.TempDir()
	db := filepath.Join(dir, "facts.db")
	more := writeFile(t, dir, "more.yaml", `facts:
  - {of: m4, the: movie/title, is: Luca}
  - {of: m1, the: movie/title, is: Up}
`)

	_, _, err := execute(t, "load", facts, "--db", db)
	require.NoError(t, err)

	stdout, _, err := execute(t, "load", more, "--db", db)
	require.NoError(t, err)
	assert.Contains(t, stdout, "(1 new, 12 in store)")
}

func TestLoad_BadFacts(t *testing.T) {
	dir := t.TempDir()
	bad := writeFile(t, dir, "bad.yaml", "facts:\n  - {of: m1, the: movie/title, is: Up, year: 2009}\n")

	stdout, _, err := execute(t, "load", bad, "--db", filepath.Join(dir, "facts.db"))
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, stdout, "Error [E009]")
	assert.Contains(t, stdout, `unknown fact field "year"`)
}

func TestLoad_MissingFacts(t *testing.T) {
	dir := t.TempDir()

	stdout, _, err := execute(t, "load", filepath.Join(dir, "none.yaml"), "--db", filepath.Join(dir, "facts.db"))
	require.Error(t, err)
	assert.Contains(t, stdout, "Error [E009]")
	assert.Contains(t, stdout, "failed to read facts file")
}
