// Package testutil holds builders shared by tests across packages.
package testutil

import (
	"testing"

	"github.com/roach88/deduce/internal/compiler"
	"github.com/roach88/deduce/internal/ir"
	"github.com/roach88/deduce/internal/memory"
)

// Scalar converts a plain Go value with ir.FromAny and panics on failure.
// Intended for literals in tests.
func Scalar(v any) ir.Scalar {
	s, err := ir.FromAny(v)
	if err != nil {
		panic(err)
	}
	return s
}

// Fact builds a datum from plain Go values.
func Fact(of, the, is any) ir.Datum {
	return ir.Datum{The: Scalar(the), Of: Scalar(of), Is: Scalar(is)}
}

// Entity collects facts about one entity.
//
//	testutil.Entity("m1", "movie/title", "Up", "movie/year", 2009)
func Entity(of any, pairs ...any) []ir.Datum {
	if len(pairs)%2 != 0 {
		panic("testutil.Entity: attributes and values must pair up")
	}
	facts := make([]ir.Datum, 0, len(pairs)/2)
	for i := 0; i < len(pairs); i += 2 {
		facts = append(facts, Fact(of, pairs[i], pairs[i+1]))
	}
	return facts
}

// Memory returns a memory store loaded with facts.
func Memory(t testing.TB, facts ...[]ir.Datum) *memory.Store {
	t.Helper()
	s := memory.New()
	for _, batch := range facts {
		s.Assert(batch...)
	}
	return s
}

// Rules compiles a CUE rules document and fails the test on error.
func Rules(t testing.TB, src string) *compiler.Unit {
	t.Helper()
	unit, err := compiler.CompileString(src)
	if err != nil {
		t.Fatalf("compile rules: %v", err)
	}
	return unit
}
