package compiler

import (
	"fmt"
	"strings"

	"cuelang.org/go/cue"

	"github.com/roach88/deduce/internal/formula"
)

// Validation error codes (E100-E199)
const (
	// Rule errors (E101-E109)
	ErrRuleNoMatch        = "E101" // match is required
	ErrSlotNotVariable    = "E102" // match slot must name a variable
	ErrBranchNotList      = "E103" // branch must be a list
	ErrInvalidConjunct    = "E104" // conjunct has no known discriminant
	ErrUnknownOperator    = "E105" // operator not in the registry
	ErrUnknownRule        = "E106" // applied rule is not declared
	ErrUnknownRecurSlot   = "E107" // recur names a slot the rule lacks
	ErrNegatedRecursion   = "E108" // not wraps recur
	ErrMalformedStructure = "E109" // value has the wrong shape

	// Query errors (E110-E119)
	ErrQueryNoRule      = "E110" // rule is required
	ErrUnboundSelection = "E111" // select reads a variable match never mentions
)

// ValidationError represents a schema validation error.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code"`
	Line    int    `json:"line,omitempty"`
}

// Error implements the error interface.
func (e ValidationError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("[%s] line %d: %s: %s", e.Code, e.Line, e.Field, e.Message)
	}
	return fmt.Sprintf("[%s] %s: %s", e.Code, e.Field, e.Message)
}

// validator accumulates errors across a document.
type validator struct {
	rules map[string]bool
	errs  []ValidationError
}

func (c *validator) report(v cue.Value, field, code, format string, args ...any) {
	c.errs = append(c.errs, ValidationError{
		Field:   field,
		Message: fmt.Sprintf(format, args...),
		Code:    code,
		Line:    v.Pos().Line(),
	})
}

// Validate checks the structure of a rules document without compiling it.
// Returns all errors found (does not fail-fast). Planning errors such as
// unbound variables are only found by Compile and the planner.
func Validate(v cue.Value) []ValidationError {
	c := &validator{rules: make(map[string]bool)}
	if err := v.Err(); err != nil {
		c.report(v, "cue", ErrMalformedStructure, "%v", err)
		return c.errs
	}

	rulesVal := lookup(v, "rule")
	if rulesVal.Exists() {
		iter, err := rulesVal.Fields()
		if err != nil {
			c.report(rulesVal, "rule", ErrMalformedStructure, "rule must be a struct of named rules")
		} else {
			for iter.Next() {
				c.rules[label(iter)] = true
			}
			iter, _ = rulesVal.Fields()
			for iter.Next() {
				c.validateRule("rule."+label(iter), iter.Value())
			}
		}
	}

	queriesVal := lookup(v, "query")
	if queriesVal.Exists() {
		iter, err := queriesVal.Fields()
		if err != nil {
			c.report(queriesVal, "query", ErrMalformedStructure, "query must be a struct of named queries")
		} else {
			for iter.Next() {
				c.validateQuery("query."+label(iter), iter.Value())
			}
		}
	}

	return c.errs
}

func (c *validator) validateRule(path string, v cue.Value) {
	// E101: match is required
	matchVal := lookup(v, fieldMatch)
	if !matchVal.Exists() {
		c.report(v, path+".match", ErrRuleNoMatch, "match is required")
		return
	}

	slots := make(map[string]bool)
	iter, err := matchVal.Fields()
	if err != nil {
		c.report(matchVal, path+".match", ErrMalformedStructure, "match must be a struct of slots")
		return
	}
	for iter.Next() {
		slot := label(iter)
		slots[slot] = true

		// E102: every slot names a variable
		s, err := iter.Value().String()
		if err != nil || !isVariableRef(s) {
			c.report(iter.Value(), path+".match."+slot, ErrSlotNotVariable,
				"slot %q must name a variable such as \"?%s\"", slot, slot)
		}
	}

	whenVal := lookup(v, "when")
	if !whenVal.Exists() {
		return
	}
	if whenVal.IncompleteKind() == cue.ListKind {
		c.validateBranch(path+".when", whenVal, slots)
		return
	}
	branches, err := whenVal.Fields()
	if err != nil {
		c.report(whenVal, path+".when", ErrMalformedStructure, "when must be a struct of named branches")
		return
	}
	for branches.Next() {
		c.validateBranch(path+".when."+label(branches), branches.Value(), slots)
	}
}

func (c *validator) validateBranch(path string, v cue.Value, slots map[string]bool) {
	// E103: branch must be a list
	iter, err := v.List()
	if err != nil {
		c.report(v, path, ErrBranchNotList, "branch must be a list of conjuncts")
		return
	}
	for i := 0; iter.Next(); i++ {
		c.validateConjunct(fmt.Sprintf("%s[%d]", path, i), iter.Value(), slots, false)
	}
}

func (c *validator) validateConjunct(path string, v cue.Value, slots map[string]bool, negated bool) {
	if v.IncompleteKind() != cue.StructKind {
		c.report(v, path, ErrInvalidConjunct, "conjunct must be a struct")
		return
	}

	switch {
	case lookup(v, fieldNot).Exists():
		c.validateConjunct(path+".not", lookup(v, fieldNot), slots, true)

	case lookup(v, fieldRecur).Exists():
		// E108: recursion cannot be negated
		if negated {
			c.report(v, path, ErrNegatedRecursion, "recur cannot be negated")
		}
		// E107: recur slots must exist on the rule
		iter, err := lookup(v, fieldRecur).Fields()
		if err != nil {
			c.report(v, path+".recur", ErrMalformedStructure, "recur must be a struct of slots")
			return
		}
		for iter.Next() {
			if slot := label(iter); !slots[slot] {
				c.report(iter.Value(), path+".recur."+slot, ErrUnknownRecurSlot,
					"recur names slot %q that the rule does not declare", slot)
			}
		}

	case lookup(v, fieldOperator).Exists():
		// E105: operator must be registered
		name, err := lookup(v, fieldOperator).String()
		if err != nil {
			c.report(v, path+".operator", ErrMalformedStructure, "operator must be a string")
			return
		}
		if _, ok := formula.Lookup(name); !ok {
			c.report(v, path+".operator", ErrUnknownOperator,
				"unknown operator %q, expected one of %s", name, strings.Join(formula.Names(), ", "))
		}

	case lookup(v, fieldRule).Exists():
		// E106: applied rules must be declared
		name, err := lookup(v, fieldRule).String()
		if err != nil {
			c.report(v, path+".rule", ErrMalformedStructure, "rule must be a string")
			return
		}
		if !c.rules[name] {
			c.report(v, path+".rule", ErrUnknownRule, "unknown rule %q", name)
		}

	case lookup(v, fieldMatch).Exists():
		iter, err := lookup(v, fieldMatch).Fields()
		if err != nil {
			c.report(v, path+".match", ErrMalformedStructure, "match must be a struct")
			return
		}
		for iter.Next() {
			switch slot := label(iter); slot {
			case "the", "of", "is":
			default:
				c.report(iter.Value(), path+".match."+slot, ErrMalformedStructure,
					"a fact pattern only has the, of and is")
			}
		}

	default:
		// E104: no discriminant
		c.report(v, path, ErrInvalidConjunct, "conjunct needs one of match, operator, rule, not or recur")
	}
}

func (c *validator) validateQuery(path string, v cue.Value) {
	// E110: rule is required
	ruleVal := lookup(v, fieldRule)
	if !ruleVal.Exists() {
		c.report(v, path+".rule", ErrQueryNoRule, "rule is required")
		return
	}
	name, err := ruleVal.String()
	if err != nil {
		c.report(ruleVal, path+".rule", ErrMalformedStructure, "rule must be a string")
		return
	}
	if !c.rules[name] {
		c.report(ruleVal, path+".rule", ErrUnknownRule, "unknown rule %q", name)
	}

	mentioned := make(map[string]bool)
	if iter, err := lookup(v, fieldMatch).Fields(); err == nil {
		for iter.Next() {
			if s, err := iter.Value().String(); err == nil && isVariableRef(s) {
				mentioned[s] = true
			}
		}
	}

	// E111: select may only read variables the match mentions
	selectVal := lookup(v, "select")
	if !selectVal.Exists() {
		return
	}
	raw, err := decode(selectVal, path+".select")
	if err != nil {
		c.report(selectVal, path+".select", ErrMalformedStructure, "%v", err)
		return
	}
	for _, ref := range variableRefs(raw) {
		if !mentioned[ref] {
			c.report(selectVal, path+".select", ErrUnboundSelection,
				"%s is not mentioned in the query's match", ref)
		}
	}
}

// isVariableRef reports whether s names a (non-blank) variable.
func isVariableRef(s string) bool {
	return strings.HasPrefix(s, "?") && !strings.HasPrefix(s, "??") && s != "?" && s != "?_"
}

// variableRefs collects variable references in a decoded select document.
func variableRefs(raw any) []string {
	var out []string
	switch val := raw.(type) {
	case string:
		if isVariableRef(val) {
			out = append(out, val)
		}
	case []any:
		for _, item := range val {
			out = append(out, variableRefs(item)...)
		}
	case map[string]any:
		for _, item := range val {
			out = append(out, variableRefs(item)...)
		}
	}
	return out
}
