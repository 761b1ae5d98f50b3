// Package memory is an in-process fact store.
//
// Facts are kept in three ordered indexes so every selector shape is a prefix
// scan:
//
//	EAV  of, the, is   used when the entity is known
//	AEV  the, of, is   used when only the attribute is known
//	VAE  is, the, of   used when only the value is known
//
// Select returns facts in index order, which makes results deterministic
// across runs. The store is safe for concurrent use.
package memory

import (
	"context"
	"sync"

	"github.com/google/btree"

	"github.com/roach88/deduce/internal/ir"
)

// The degree of the index btrees.
const btreeDegree = 32

type index int

const (
	eav index = iota
	aev
	vae
)

// fact is a datum placed in one index. The order decides how Less compares.
type fact struct {
	order index
	ir.Datum
}

// key returns the fact's fields in index order.
func (f *fact) key() [3]ir.Scalar {
	switch f.order {
	case aev:
		return [3]ir.Scalar{f.The, f.Of, f.Is}
	case vae:
		return [3]ir.Scalar{f.Is, f.The, f.Of}
	default:
		return [3]ir.Scalar{f.Of, f.The, f.Is}
	}
}

// Less implements the btree.Item interface. Unset fields sort first, so a
// fact with a nil suffix is a lower bound for its prefix.
func (f *fact) Less(than btree.Item) bool {
	a, b := f.key(), than.(*fact).key()
	for i := range a {
		if c := ir.Compare(a[i], b[i]); c != 0 {
			return c < 0
		}
	}
	return false
}

// Store holds facts in memory.
type Store struct {
	mu      sync.RWMutex
	indexes [3]*btree.BTree
}

// New returns an empty store.
func New() *Store {
	s := &Store{}
	for i := range s.indexes {
		s.indexes[i] = btree.New(btreeDegree)
	}
	return s
}

// Load returns a store holding facts.
func Load(facts ...ir.Datum) *Store {
	s := New()
	s.Assert(facts...)
	return s
}

// Assert adds facts to the store. A fact is identified by its attribute,
// entity and value; asserting it again keeps the first cause. Returns the
// number of facts that were new.
func (s *Store) Assert(facts ...ir.Datum) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	added := 0
	for _, d := range facts {
		if s.indexes[eav].Has(&fact{order: eav, Datum: d}) {
			continue
		}
		for i, t := range s.indexes {
			t.ReplaceOrInsert(&fact{order: index(i), Datum: d})
		}
		added++
	}
	return added
}

// Retract removes facts from the store. Returns the number removed.
func (s *Store) Retract(facts ...ir.Datum) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for _, d := range facts {
		if s.indexes[eav].Delete(&fact{order: eav, Datum: d}) == nil {
			continue
		}
		s.indexes[aev].Delete(&fact{order: aev, Datum: d})
		s.indexes[vae].Delete(&fact{order: vae, Datum: d})
		removed++
	}
	return removed
}

// Len returns the number of facts in the store.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.indexes[eav].Len()
}

// Select returns every fact matching sel.
func (s *Store) Select(ctx context.Context, sel ir.Selector) ([]ir.Datum, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	order := chooseIndex(sel)
	pivot := &fact{order: order, Datum: ir.Datum{The: sel.The, Of: sel.Of, Is: sel.Is}}
	prefix := pivot.key()
	width := 0
	for width < len(prefix) && prefix[width] != nil {
		width++
	}
	// The pivot's unset suffix sorts lowest; anything set past the first gap
	// is filtered instead.
	for i := width; i < len(prefix); i++ {
		prefix[i] = nil
	}
	pivot = fromKey(order, prefix)

	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []ir.Datum
	s.indexes[order].AscendGreaterOrEqual(pivot, func(i btree.Item) bool {
		f := i.(*fact)
		key := f.key()
		for j := 0; j < width; j++ {
			if !ir.Equal(key[j], prefix[j]) {
				return false
			}
		}
		if sel.Matches(f.Datum) {
			out = append(out, f.Datum)
		}
		return true
	})
	return out, nil
}

// chooseIndex picks the index whose leading field is set.
func chooseIndex(sel ir.Selector) index {
	switch {
	case sel.Of != nil:
		return eav
	case sel.The != nil:
		return aev
	case sel.Is != nil:
		return vae
	default:
		return eav
	}
}

// fromKey builds a pivot fact from fields in index order.
func fromKey(order index, key [3]ir.Scalar) *fact {
	f := &fact{order: order}
	switch order {
	case aev:
		f.The, f.Of, f.Is = key[0], key[1], key[2]
	case vae:
		f.Is, f.The, f.Of = key[0], key[1], key[2]
	default:
		f.Of, f.The, f.Is = key[0], key[1], key[2]
	}
	return f
}
