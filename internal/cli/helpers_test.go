package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

const moviesRules = `
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

query: "cast-of": {
	rule: "movie-by-cast"
	match: { title: "?title", actor: "?actor" }
	select: { title: "?title", actors: ["?actor"] }
}
`

const moviesFacts = `facts:
  - {of: m1, the: movie/title, is: Up}
  - {of: m1, the: movie/year, is: 2009}
  - {of: m1, the: movie/cast, is: p1}
  - {of: m1, the: movie/cast, is: p2}
  - {of: m2, the: movie/title, is: Coco}
  - {of: m2, the: movie/cast, is: p3}
  - {of: m3, the: movie/title, is: Inside Out}
  - {of: m3, the: movie/cast, is: p2}
  - {of: p1, the: person/name, is: Ed Asner}
  - {of: p2, the: person/name, is: John Ratzenberger}
  - {of: p3, the: person/name, is: Anthony Gonzalez}
`

const moviesFactCount = 11

// writeFile writes content to name under dir and returns the path.
func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

// fixtures writes the movie rules and facts into a temp dir.
func fixtures(t *testing.T) (rules, facts string) {
	t.Helper()
	dir := t.TempDir()
	return writeFile(t, dir, "movies.cue", moviesRules), writeFile(t, dir, "movies.yaml", moviesFacts)
}

// execute runs the root command with args and returns stdout and stderr.
func execute(t *testing.T, args ...string) (stdout, stderr string, err error) {
	t.Helper()
	out := &bytes.Buffer{}
	errOut := &bytes.Buffer{}
	cmd := NewRootCommand()
	cmd.SetOut(out)
	cmd.SetErr(errOut)
	cmd.SetArgs(args)
	err = cmd.Execute()
	return out.String(), errOut.String(), err
}
