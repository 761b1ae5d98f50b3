package harness

// QueryResult is the outcome of one query step.
type QueryResult struct {
	Query string         `json:"query"`
	Args  map[string]any `json:"args,omitempty"`

	// Records are normalised: scalars in their plain encoding, aggregated
	// lists sorted, records sorted by canonical encoding.
	Records []any `json:"records"`

	// Error is the text of the query's error, if it failed.
	Error string `json:"error,omitempty"`
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass indicates overall scenario success.
	// True if every expectation holds.
	Pass bool `json:"pass"`

	// Queries holds one entry per query step, in scenario order.
	Queries []QueryResult `json:"queries"`

	// RulesError is the text of the rules document's compile error, if any.
	RulesError string `json:"rules_error,omitempty"`

	// Errors contains failed expectation messages.
	// Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`
}

// NewResult creates a new passing result.
// Used as the starting point for scenario execution.
func NewResult() *Result {
	return &Result{
		Pass:    true,
		Queries: []QueryResult{},
		Errors:  []string{},
	}
}

// AddError adds a failed expectation and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}
