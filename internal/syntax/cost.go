package syntax

import (
	"math"
	"strconv"

	"github.com/roach88/deduce/internal/ir"
)

// Cost is a static estimate of the work a conjunct does when the variable
// it is attached to is left unbound. Inf means the variable must already be
// bound before the conjunct can run.
type Cost float64

// Inf is the cost of a cell that must be bound on entry.
var Inf = Cost(math.Inf(1))

// Select cell weights by position.
const (
	EntityCost    Cost = 500
	AttributeCost Cost = 200
	ValueCost     Cost = 300

	// FormulaCost is the base cost of a formula application.
	FormulaCost Cost = 1

	// RecursionCost is the base cost of a recursion request. It exceeds any
	// unbound Select so recursion is planned after the conjuncts that bind
	// its arguments.
	RecursionCost Cost = 2 * (EntityCost + AttributeCost + ValueCost)
)

// IsInf reports whether c is infinite.
func (c Cost) IsInf() bool {
	return math.IsInf(float64(c), 1)
}

func (c Cost) String() string {
	if c.IsInf() {
		return "inf"
	}
	return strconv.FormatFloat(float64(c), 'f', -1, 64)
}

// Combine merges two estimates for the same variable. An infinite operand
// yields to a finite one; two finite operands add up.
func Combine(a, b Cost) Cost {
	switch {
	case a.IsInf():
		return b
	case b.IsInf():
		return a
	default:
		return a + b
	}
}

// Cells maps variables to costs, remembering insertion order.
type Cells struct {
	vars []ir.Variable
	cost map[ir.VarID]Cost
}

// NewCells returns an empty table.
func NewCells() *Cells {
	return &Cells{cost: make(map[ir.VarID]Cost)}
}

// Set assigns the cost of v, replacing any previous estimate.
func (c *Cells) Set(v ir.Variable, cost Cost) {
	if v.IsBlank() {
		return
	}
	if _, ok := c.cost[v.ID]; !ok {
		c.vars = append(c.vars, v)
	}
	c.cost[v.ID] = cost
}

// Combine merges cost into the estimate for v.
func (c *Cells) Combine(v ir.Variable, cost Cost) {
	if v.IsBlank() {
		return
	}
	if prev, ok := c.cost[v.ID]; ok {
		c.cost[v.ID] = Combine(prev, cost)
		return
	}
	c.Set(v, cost)
}

// Get returns the cost of v.
func (c *Cells) Get(v ir.Variable) (Cost, bool) {
	cost, ok := c.cost[v.ID]
	return cost, ok
}

// Has reports whether v has a cell.
func (c *Cells) Has(v ir.Variable) bool {
	_, ok := c.cost[v.ID]
	return ok
}

// Vars returns the variables in insertion order.
func (c *Cells) Vars() []ir.Variable {
	return c.vars
}

// Len returns the number of cells.
func (c *Cells) Len() int {
	return len(c.vars)
}

// Required returns the variables whose cost is infinite.
func (c *Cells) Required() []ir.Variable {
	var out []ir.Variable
	for _, v := range c.vars {
		if c.cost[v.ID].IsInf() {
			out = append(out, v)
		}
	}
	return out
}

// Total sums the finite cells.
func (c *Cells) Total() Cost {
	var total Cost
	for _, v := range c.vars {
		if cost := c.cost[v.ID]; !cost.IsInf() {
			total += cost
		}
	}
	return total
}
