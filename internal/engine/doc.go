// Package engine plans and evaluates deductive rules.
//
// ARCHITECTURE:
//
// Planning:
// The Planner turns a rule application plus the set of caller variables
// already bound into a Plan tree. Each branch is ordered greedily: the ready
// conjunct with the lowest live cost runs next, and conjuncts that still need
// an unbound variable wait until an earlier step binds it. Rule plans depend
// only on the rule and its bound signature variables, so they are memoized
// and shared across queries.
//
// Evaluation:
// Plan nodes thread a selection of frames through a left-deep pipeline.
// Selects query the Querier once per frame, formulas run pure operators,
// negations keep a frame only when their operand yields nothing, and rule
// applications copy each caller frame into a rule-local frame and unify the
// answers back.
//
// Recursion:
// A recursive rule is evaluated by tabling. Every distinct initial frame is
// one call, evaluated once. A recursion step registers its frame as a waiter
// on the call it asks for and resumes the rest of its branch on each answer
// that call produces. Work is processed breadth-first from a FIFO worklist
// until no new answers appear.
//
// Suspension only happens inside Querier.Select. All other work is
// synchronous, and frames are copy-on-write so one selection can be shared by
// every branch of a rule.
package engine
