package syntax

import (
	"fmt"

	"github.com/roach88/deduce/internal/ir"
)

// Program is the arena that owns compiled rules. Rule applications refer to
// their rule by RuleID rather than by pointer.
type Program struct {
	rules []*DeductiveRule
	index map[string]RuleID
}

// NewProgram returns an empty program.
func NewProgram() *Program {
	return &Program{index: make(map[string]RuleID)}
}

// Add stores rule and assigns its ID.
func (p *Program) Add(rule *DeductiveRule) (RuleID, error) {
	if _, dup := p.index[rule.Name]; dup {
		return 0, &CompileError{
			Code:    ErrCodeInvalidTerm,
			Message: fmt.Sprintf("rule %q declared twice", rule.Name),
			Rule:    rule.Name,
		}
	}
	id := RuleID(len(p.rules))
	rule.ID = id
	p.rules = append(p.rules, rule)
	p.index[rule.Name] = id
	return id, nil
}

// Rule returns the rule with the given ID.
func (p *Program) Rule(id RuleID) *DeductiveRule {
	return p.rules[id]
}

// Lookup returns the rule named name.
func (p *Program) Lookup(name string) (*DeductiveRule, bool) {
	id, ok := p.index[name]
	if !ok {
		return nil, false
	}
	return p.rules[id], true
}

// Rules returns every rule in declaration order.
func (p *Program) Rules() []*DeductiveRule {
	return p.rules
}

// Apply builds an application of the named rule.
func (p *Program) Apply(name string, match map[string]ir.Term) (*RuleApplication, error) {
	rule, ok := p.Lookup(name)
	if !ok {
		return nil, &CompileError{
			Code:     ErrCodeUnknownRule,
			Message:  fmt.Sprintf("unknown rule %q", name),
			Conjunct: name,
		}
	}
	return newRuleApplication(rule, match)
}
