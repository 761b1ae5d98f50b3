package projection

import (
	"fmt"

	"github.com/roach88/deduce/internal/ir"
)

// Record is one projected result. Values are ir.Scalar, nested Record, or
// []any for aggregates.
type Record map[string]any

// group is one output record plus the content keys already collected under
// each aggregate path.
type group struct {
	record Record
	seen   map[string]map[string]bool
}

// Project builds one record per frame and merges records that agree on every
// non-aggregate field. Records keep the order in which their first frame
// appeared.
func Project(frames []ir.Frame, shape *Shape) ([]Record, error) {
	var groups []*group
	index := make(map[string]*group)

	for _, f := range frames {
		rec := build(shape, f)
		key, err := contentKey(strip(shape, rec))
		if err != nil {
			return nil, err
		}
		g, ok := index[key]
		if !ok {
			g = &group{record: Record{}, seen: make(map[string]map[string]bool)}
			index[key] = g
			groups = append(groups, g)
		}
		if err := g.merge("", shape, g.record, rec); err != nil {
			return nil, err
		}
	}

	out := make([]Record, len(groups))
	for i, g := range groups {
		out[i] = g.record
	}
	return out, nil
}

// build evaluates a shape against one frame. Each aggregate holds at most one
// member at this point.
func build(s *Shape, f ir.Frame) Record {
	rec := make(Record, len(s.Fields))
	for _, field := range s.Fields {
		if value, ok := buildNode(field.Node, f); ok {
			rec[field.Name] = value
		}
	}
	return rec
}

func buildNode(n Node, f ir.Frame) (any, bool) {
	switch node := n.(type) {
	case Value:
		return f.Resolve(node.Term)
	case *Shape:
		return build(node, f), true
	case Collect:
		member, ok := buildNode(node.Of, f)
		if !ok {
			return []any{}, true
		}
		return []any{member}, true
	}
	return nil, false
}

// strip drops aggregate fields, leaving the grouping key of a record.
func strip(s *Shape, rec Record) Record {
	out := make(Record, len(rec))
	for _, field := range s.Fields {
		value, ok := rec[field.Name]
		if !ok {
			continue
		}
		switch node := field.Node.(type) {
		case Collect:
		case *Shape:
			out[field.Name] = strip(node, value.(Record))
		default:
			out[field.Name] = value
		}
	}
	return out
}

// merge folds src into dst. Non-aggregate fields are equal by construction;
// aggregate members are appended unless an equal member is already there.
func (g *group) merge(path string, s *Shape, dst, src Record) error {
	for _, field := range s.Fields {
		value, ok := src[field.Name]
		if !ok {
			continue
		}
		at := path + "/" + field.Name
		switch node := field.Node.(type) {
		case Collect:
			items, _ := dst[field.Name].([]any)
			if items == nil {
				items = []any{}
			}
			seen := g.seen[at]
			if seen == nil {
				seen = make(map[string]bool)
				g.seen[at] = seen
			}
			for _, member := range value.([]any) {
				key, err := contentKey(member)
				if err != nil {
					return err
				}
				if seen[key] {
					continue
				}
				seen[key] = true
				items = append(items, member)
			}
			dst[field.Name] = items
		case *Shape:
			inner, _ := dst[field.Name].(Record)
			if inner == nil {
				inner = Record{}
				dst[field.Name] = inner
			}
			if err := g.merge(at, node, inner, value.(Record)); err != nil {
				return err
			}
		default:
			dst[field.Name] = value
		}
	}
	return nil
}

// contentKey is the canonical encoding of a projected value.
func contentKey(v any) (string, error) {
	data, err := ir.MarshalCanonical(canonical(v))
	if err != nil {
		return "", fmt.Errorf("projection key: %w", err)
	}
	return string(data), nil
}

func canonical(v any) any {
	switch val := v.(type) {
	case Record:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[k] = canonical(item)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = canonical(item)
		}
		return out
	default:
		return v
	}
}

// Plain converts a record into JSON/YAML-ready Go values.
func (r Record) Plain() map[string]any {
	return plain(r).(map[string]any)
}

func plain(v any) any {
	switch val := v.(type) {
	case Record:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[k] = plain(item)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = plain(item)
		}
		return out
	case ir.Scalar:
		return ir.ToAny(val)
	default:
		return v
	}
}
