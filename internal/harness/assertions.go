package harness

import (
	"fmt"
	"slices"
	"strings"

	"github.com/google/go-cmp/cmp"

	"github.com/roach88/deduce/internal/ir"
	"github.com/roach88/deduce/internal/projection"
)

// AssertionError is returned when a query's records differ from its
// expectation.
type AssertionError struct {
	Query    string
	Expected []string // canonical records, sorted
	Actual   []string // canonical records, sorted
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder
	fmt.Fprintf(&buf, "query %s: records differ (-want +got):\n", e.Query)
	buf.WriteString(cmp.Diff(e.Expected, e.Actual))
	return buf.String()
}

// normalize converts a record value into plain canonical form: scalars
// through ir.FromAny/ir.ToAny, lists sorted by canonical encoding.
func normalize(v any) (any, error) {
	switch val := v.(type) {
	case projection.Record:
		return normalize(val.Plain())
	case map[string]any:
		if s, err := ir.FromAny(val); err == nil {
			return ir.ToAny(s), nil
		}
		out := make(map[string]any, len(val))
		for k, item := range val {
			n, err := normalize(item)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", k, err)
			}
			out[k] = n
		}
		return out, nil
	case []any:
		items := make([]any, len(val))
		for i, item := range val {
			n, err := normalize(item)
			if err != nil {
				return nil, err
			}
			items[i] = n
		}
		return sortCanonical(items)
	default:
		s, err := ir.FromAny(val)
		if err != nil {
			return nil, err
		}
		return ir.ToAny(s), nil
	}
}

// sortCanonical orders values by their canonical encoding.
func sortCanonical(items []any) ([]any, error) {
	keys := make([]string, len(items))
	for i, item := range items {
		data, err := ir.MarshalCanonical(item)
		if err != nil {
			return nil, err
		}
		keys[i] = string(data)
	}
	order := make([]int, len(items))
	for i := range order {
		order[i] = i
	}
	slices.SortStableFunc(order, func(a, b int) int {
		return strings.Compare(keys[a], keys[b])
	})
	out := make([]any, len(items))
	for i, j := range order {
		out[i] = items[j]
	}
	return out, nil
}

// normalizeRecords normalises and sorts a list of records.
func normalizeRecords[R ~map[string]any](records []R) ([]any, error) {
	items := make([]any, len(records))
	for i, rec := range records {
		n, err := normalize(map[string]any(rec))
		if err != nil {
			return nil, fmt.Errorf("record %d: %w", i, err)
		}
		items[i] = n
	}
	return sortCanonical(items)
}

// canonicalStrings encodes each normalised record.
func canonicalStrings(items []any) ([]string, error) {
	out := make([]string, len(items))
	for i, item := range items {
		data, err := ir.MarshalCanonical(item)
		if err != nil {
			return nil, err
		}
		out[i] = string(data)
	}
	return out, nil
}

// assertRecords compares normalised records against an expectation
// written in YAML.
func assertRecords(query string, expected []map[string]any, actual []any) error {
	want, err := normalizeRecords(expected)
	if err != nil {
		return fmt.Errorf("query %s: expect: %w", query, err)
	}
	wantText, err := canonicalStrings(want)
	if err != nil {
		return fmt.Errorf("query %s: expect: %w", query, err)
	}
	gotText, err := canonicalStrings(actual)
	if err != nil {
		return fmt.Errorf("query %s: %w", query, err)
	}
	if slices.Equal(wantText, gotText) {
		return nil
	}
	return &AssertionError{Query: query, Expected: wantText, Actual: gotText}
}

// assertError checks a query's failure against an expected substring.
func assertError(query, expected, actual string) error {
	if actual == "" {
		return fmt.Errorf("query %s: expected error containing %q, got none", query, expected)
	}
	if !strings.Contains(actual, expected) {
		return fmt.Errorf("query %s: expected error containing %q, got %q", query, expected, actual)
	}
	return nil
}
