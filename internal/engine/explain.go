package engine

import (
	"fmt"
	"strings"

	"github.com/roach88/deduce/internal/ir"
)

// explainer renders plan trees as indented text.
type explainer struct {
	b     strings.Builder
	depth int
	seen  map[*RulePlan]bool
}

func (w *explainer) line(format string, args ...any) {
	w.b.WriteString(strings.Repeat("  ", w.depth))
	fmt.Fprintf(&w.b, format, args...)
	w.b.WriteByte('\n')
}

func (w *explainer) nested(fn func()) {
	w.depth++
	fn()
	w.depth--
}

// Explain renders the committed plan tree with the live cost chosen for
// each step. A rule plan that appears twice is expanded only the first time.
func Explain(p Plan) string {
	w := &explainer{seen: make(map[*RulePlan]bool)}
	p.explain(w)
	return w.b.String()
}

func (p *SelectPlan) explain(w *explainer) {
	w.line("select {the: %s, of: %s, is: %s} cost=%s",
		ir.FormatTerm(p.Pattern.The), ir.FormatTerm(p.Pattern.Of), ir.FormatTerm(p.Pattern.Is), p.cost)
}

func (p *FormulaPlan) explain(w *explainer) {
	w.line("formula %s cost=%s", p.Formula, p.cost)
}

func (p *JoinPlan) explain(w *explainer) {
	name := p.Name
	if name == "" {
		name = "(empty)"
	}
	w.line("branch %s cost=%s", name, p.cost)
	w.nested(func() {
		for _, step := range p.Steps {
			step.explain(w)
		}
	})
}

func (p *NegationPlan) explain(w *explainer) {
	w.line("not cost=%s", p.cost)
	w.nested(func() { p.Operand.explain(w) })
}

func (p *RulePlan) explain(w *explainer) {
	bound := make([]string, 0, len(p.Bound))
	for _, param := range p.Rule.Match {
		for _, v := range p.Bound {
			if v.ID == param.Var.ID {
				bound = append(bound, param.Name)
				break
			}
		}
	}
	header := fmt.Sprintf("rule %s bound=[%s]", p.Rule.Name, strings.Join(bound, ", "))
	if p.Rule.Recurs {
		header += " recursive"
	}
	if w.seen[p] {
		w.line("%s (see above)", header)
		return
	}
	w.seen[p] = true
	w.line("%s", header)
	w.nested(func() {
		for _, branch := range p.Branches {
			branch.explain(w)
		}
	})
}

func (p *ApplicationPlan) explain(w *explainer) {
	w.line("apply %s cost=%s", p.Application, p.cost)
	w.nested(func() { p.Rule.explain(w) })
}

func (p *RecursionPlan) explain(w *explainer) {
	w.line("%s cost=%s", p.Recursion, p.cost)
}
