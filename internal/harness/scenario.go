package harness

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/roach88/deduce/internal/ir"
)

// Store kinds a scenario can run against.
const (
	StoreMemory = "memory"
	StoreSQLite = "sqlite"
)

// Scenario is one end-to-end rules test.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Store selects the fact store: "memory" (default) or "sqlite".
	Store string `yaml:"store,omitempty"`

	// CacheSize puts a result cache of this many facts in front of the store.
	CacheSize int `yaml:"cache_size,omitempty"`

	// Rules is an inline CUE rules document.
	Rules string `yaml:"rules,omitempty"`

	// RulesFile is a path to a CUE rules document, relative to the scenario.
	RulesFile string `yaml:"rules_file,omitempty"`

	// Facts are asserted before any query runs.
	Facts []FactEntry `yaml:"facts"`

	// Queries run in order against the loaded facts.
	Queries []QueryStep `yaml:"queries"`

	// Error expects the rules document to be rejected with an error
	// containing this text. No queries run.
	Error string `yaml:"error,omitempty"`

	// Dir is the directory relative paths resolve against.
	Dir string `yaml:"-"`
}

// QueryStep runs one named query.
type QueryStep struct {
	// Query names a query declared in the rules document.
	Query string `yaml:"query"`

	// Args binds query variables by name.
	Args map[string]any `yaml:"args,omitempty"`

	// Expect lists the records the query returns, in any order. Nil skips
	// the check; an empty list expects no records.
	Expect []map[string]any `yaml:"expect"`

	// Error expects the query to fail with an error containing this text.
	Error string `yaml:"error,omitempty"`
}

// FactEntry is one fact as written in YAML.
type FactEntry struct {
	Of    any
	The   any
	Is    any
	Cause any
	Line  int
}

var factFields = map[string]bool{"of": true, "the": true, "is": true, "cause": true}

// UnmarshalYAML decodes {of, the, is, cause?}. All three of of, the and is
// must be present; is may be null.
func (e *FactEntry) UnmarshalYAML(node *yaml.Node) error {
	var raw map[string]any
	if err := node.Decode(&raw); err != nil {
		return err
	}
	for key := range raw {
		if !factFields[key] {
			return fmt.Errorf("line %d: unknown fact field %q", node.Line, key)
		}
	}
	for _, key := range []string{"of", "the", "is"} {
		if _, ok := raw[key]; !ok {
			return fmt.Errorf("line %d: fact needs %q", node.Line, key)
		}
	}
	e.Of, e.The, e.Is, e.Cause = raw["of"], raw["the"], raw["is"], raw["cause"]
	e.Line = node.Line
	return nil
}

// Datum converts the entry into a fact.
func (e FactEntry) Datum() (ir.Datum, error) {
	var d ir.Datum
	var err error
	if d.Of, err = ir.FromAny(e.Of); err != nil {
		return d, fmt.Errorf("line %d: of: %w", e.Line, err)
	}
	if d.The, err = ir.FromAny(e.The); err != nil {
		return d, fmt.Errorf("line %d: the: %w", e.Line, err)
	}
	if d.Is, err = ir.FromAny(e.Is); err != nil {
		return d, fmt.Errorf("line %d: is: %w", e.Line, err)
	}
	if e.Cause != nil {
		cause, err := ir.FromAny(e.Cause)
		if err != nil {
			return d, fmt.Errorf("line %d: cause: %w", e.Line, err)
		}
		ref, ok := cause.(ir.Ref)
		if !ok {
			return d, fmt.Errorf("line %d: cause must be a reference, got %s", e.Line, cause.Kind())
		}
		d.Cause = ref
	}
	return d, nil
}

// Datums converts every entry.
func Datums(entries []FactEntry) ([]ir.Datum, error) {
	facts := make([]ir.Datum, 0, len(entries))
	for _, e := range entries {
		d, err := e.Datum()
		if err != nil {
			return nil, err
		}
		facts = append(facts, d)
	}
	return facts, nil
}

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data, filepath.Dir(path))
}

// ParseScenario parses scenario YAML, resolving paths against dir.
func ParseScenario(data []byte, dir string) (*Scenario, error) {
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true) // Reject unknown fields
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	scenario.Dir = dir
	if scenario.RulesFile != "" && !filepath.IsAbs(scenario.RulesFile) && dir != "" {
		scenario.RulesFile = filepath.Join(dir, scenario.RulesFile)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}

	switch {
	case s.Rules == "" && s.RulesFile == "":
		return fmt.Errorf("one of rules or rules_file is required")
	case s.Rules != "" && s.RulesFile != "":
		return fmt.Errorf("rules and rules_file are mutually exclusive")
	}
	if s.RulesFile != "" {
		if _, err := os.Stat(s.RulesFile); os.IsNotExist(err) {
			return fmt.Errorf("rules file not found: %s", s.RulesFile)
		}
	}

	switch s.Store {
	case "", StoreMemory, StoreSQLite:
	default:
		return fmt.Errorf("unknown store %q: must be %s or %s", s.Store, StoreMemory, StoreSQLite)
	}
	if s.CacheSize < 0 {
		return fmt.Errorf("cache_size must be non-negative")
	}

	if s.Error != "" {
		if len(s.Queries) > 0 {
			return fmt.Errorf("a scenario expecting a rules error cannot run queries")
		}
		return nil
	}
	if len(s.Queries) == 0 {
		return fmt.Errorf("queries list is required and must be non-empty")
	}
	for i, q := range s.Queries {
		if q.Query == "" {
			return fmt.Errorf("queries[%d]: query is required", i)
		}
		if q.Expect != nil && q.Error != "" {
			return fmt.Errorf("queries[%d]: expect and error are mutually exclusive", i)
		}
	}
	return nil
}

// factsDocument is the layout of a standalone facts file.
type factsDocument struct {
	Facts []FactEntry `yaml:"facts"`
}

// ReadFacts parses a facts document:
//
//	facts:
//	  - {of: m1, the: movie/title, is: Up}
func ReadFacts(r io.Reader) ([]ir.Datum, error) {
	var doc factsDocument
	decoder := yaml.NewDecoder(r)
	decoder.KnownFields(true)
	if err := decoder.Decode(&doc); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	return Datums(doc.Facts)
}

// LoadFacts reads a facts document from path.
func LoadFacts(path string) ([]ir.Datum, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read facts file: %w", err)
	}
	defer f.Close()
	return ReadFacts(f)
}
