package ir

import "strings"

// Pattern describes a fact match as an (attribute, entity, value) triple of
// terms. A nil position behaves like the blank variable.
type Pattern struct {
	The Term // attribute
	Of  Term // entity
	Is  Term // value
}

// Datum is a committed fact owned by the external store.
type Datum struct {
	The   Scalar `json:"the"`   // attribute
	Of    Scalar `json:"of"`    // entity
	Is    Scalar `json:"is"`    // value
	Cause Ref    `json:"cause"` // causal link (transaction that asserted it)
}

// Selector is the query shape sent to a fact store. A nil field is unset and
// matches any value; set fields must match exactly.
type Selector struct {
	The Scalar
	Of  Scalar
	Is  Scalar
}

// Matches reports whether d satisfies every set field of the selector.
func (s Selector) Matches(d Datum) bool {
	if s.The != nil && !Equal(s.The, d.The) {
		return false
	}
	if s.Of != nil && !Equal(s.Of, d.Of) {
		return false
	}
	if s.Is != nil && !Equal(s.Is, d.Is) {
		return false
	}
	return true
}

// Key returns a canonical string for the selector, stable across field
// order. Used by caches to identify equivalent selectors.
func (s Selector) Key() string {
	var b strings.Builder
	for _, part := range []struct {
		name  string
		value Scalar
	}{{"the", s.The}, {"of", s.Of}, {"is", s.Is}} {
		if part.value == nil {
			continue
		}
		if b.Len() > 0 {
			b.WriteByte(',')
		}
		b.WriteString(part.name)
		b.WriteByte('=')
		b.Write(AppendBinary(nil, part.value))
	}
	return b.String()
}

// String renders the selector for logs.
func (s Selector) String() string {
	render := func(v Scalar) string {
		if v == nil {
			return "_"
		}
		return FormatTerm(v)
	}
	return "{the: " + render(s.The) + ", of: " + render(s.Of) + ", is: " + render(s.Is) + "}"
}
