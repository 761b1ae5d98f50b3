// Package syntax compiles rule bodies into cost-annotated conjuncts.
//
// Every conjunct carries a cell table mapping the variables it mentions to
// the estimated cost of running it with that variable unbound. An infinite
// cell means the variable must be bound before the conjunct runs. Joins and
// rules aggregate these tables so a caller can plan a rule application from
// the outside, and the planner in package engine orders conjuncts by them.
//
// Syntax nodes depend only on the rule text. They are built once, shared by
// every call site, and never mutated after construction.
package syntax
