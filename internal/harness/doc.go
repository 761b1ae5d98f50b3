// Package harness runs rule scenarios end to end.
//
// A scenario loads facts into a fresh store, compiles a CUE rules document,
// runs the document's named queries and checks the projected records.
//
// # Scenario Format
//
// Scenarios are YAML files:
//
//	name: movie-cast
//	description: "Titles reachable through the cast"
//	store: memory            # memory (default) or sqlite
//	cache_size: 64           # optional result cache in front of the store
//	rules_file: movies.cue   # or inline with rules: |
//	facts:
//	  - {of: m1, the: movie/title, is: Up}
//	  - {of: m1, the: movie/cast, is: p1}
//	queries:
//	  - query: titles-with
//	    args: {actor: "Ed Asner"}
//	    expect:
//	      - {title: Up}
//	  - query: broken
//	    error: "unbound"
//
// Paths are relative to the scenario file. Fact values follow the scalar
// encoding used everywhere else: {"/": hex} is a reference and
// {bytes: base64} is a byte string.
//
// # Expectations
//
// expect lists the records a query must return, in any order. Aggregated
// lists inside a record are compared as sets. error names a substring of the
// error the query must fail with. A query with neither is only recorded, which
// is useful with golden files.
//
// A scenario-level error expects the rules document itself to be rejected.
//
// # Golden Files
//
// RunWithGolden snapshots every query's normalised records to
// testdata/golden/<name>.golden using goldie. Regenerate with:
//
//	go test ./internal/harness -update
package harness
