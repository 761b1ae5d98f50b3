package harness

import (
	"context"
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/deduce/internal/ir"
)

// Snapshot renders a result as canonical JSON for golden comparison.
// Records are already normalised, so the output is independent of store
// order and of the order aggregates were collected in.
func Snapshot(name string, result *Result) ([]byte, error) {
	queries := make([]any, len(result.Queries))
	for i, qr := range result.Queries {
		entry := map[string]any{
			"query":   qr.Query,
			"records": qr.Records,
		}
		if len(qr.Args) > 0 {
			args, err := normalize(qr.Args)
			if err != nil {
				return nil, err
			}
			entry["args"] = args
		}
		if qr.Error != "" {
			entry["error"] = qr.Error
		}
		queries[i] = entry
	}

	snapshot := map[string]any{
		"scenario": name,
		"queries":  queries,
	}
	if result.RulesError != "" {
		snapshot["rules_error"] = result.RulesError
	}

	data, err := ir.MarshalCanonical(snapshot)
	if err != nil {
		return nil, err
	}
	return append(data, '\n'), nil
}

// RunWithGolden executes a scenario and compares its snapshot against a
// golden file stored in testdata/golden/{scenario.Name}.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
//
// Returns the result so callers can assert on expectations too.
func RunWithGolden(t *testing.T, scenario *Scenario) (*Result, error) {
	t.Helper()

	result, err := Run(context.Background(), scenario)
	if err != nil {
		return nil, err
	}
	if err := AssertGolden(t, scenario.Name, result); err != nil {
		return nil, err
	}
	return result, nil
}

// AssertGolden compares an already computed result against its golden file.
func AssertGolden(t *testing.T, name string, result *Result) error {
	t.Helper()

	data, err := Snapshot(name, result)
	if err != nil {
		return err
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, name, data)
	return nil
}
