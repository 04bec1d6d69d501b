// Package configtree holds model configuration documents as ordered,
// path-addressable trees. Leaves are scalars, lists or nested maps; key order
// is kept so a generated config reads like the baseline it was derived from.
package configtree

import (
	"fmt"
	"reflect"
	"slices"
)

// Map is an ordered string-keyed mapping.
type Map struct {
	keys []string
	vals map[string]any
}

// NewMap returns an empty Map.
func NewMap() *Map {
	return &Map{vals: map[string]any{}}
}

// Get returns the value stored under key.
func (m *Map) Get(key string) (any, bool) {
	v, ok := m.vals[key]
	return v, ok
}

// Set stores v under key, keeping the original position of an existing key.
func (m *Map) Set(key string, v any) {
	if _, ok := m.vals[key]; !ok {
		m.keys = append(m.keys, key)
	}
	m.vals[key] = v
}

// Delete removes key if present.
func (m *Map) Delete(key string) {
	if _, ok := m.vals[key]; !ok {
		return
	}
	delete(m.vals, key)
	for i, k := range m.keys {
		if k == key {
			m.keys = append(m.keys[:i:i], m.keys[i+1:]...)
			break
		}
	}
}

// Keys returns the keys in insertion order.
func (m *Map) Keys() []string {
	out := make([]string, len(m.keys))
	copy(out, m.keys)
	return out
}

// Len is the number of keys; a nil Map is empty.
func (m *Map) Len() int {
	if m == nil {
		return 0
	}
	return len(m.keys)
}

// Without returns a deep copy of m minus the given keys.
func (m *Map) Without(keys ...string) *Map {
	out := m.Clone()
	if out == nil {
		return NewMap()
	}
	for _, k := range keys {
		out.Delete(k)
	}
	return out
}

// Equal reports whether m and o hold the same keys in the same order with
// equal values.
func (m *Map) Equal(o *Map) bool {
	if m.Len() == 0 || o.Len() == 0 {
		return m.Len() == o.Len()
	}
	return slices.Equal(m.keys, o.keys) && reflect.DeepEqual(m.vals, o.vals)
}

// Clone returns a deep copy of m. Cloning a nil Map yields nil.
func (m *Map) Clone() *Map {
	if m == nil {
		return nil
	}
	out := &Map{keys: make([]string, len(m.keys)), vals: make(map[string]any, len(m.vals))}
	copy(out.keys, m.keys)
	for k, v := range m.vals {
		out.vals[k] = CloneValue(v)
	}
	return out
}

// CloneValue deep-copies maps and lists; scalars are returned as is.
func CloneValue(v any) any {
	switch t := v.(type) {
	case *Map:
		if t == nil {
			return t
		}
		return t.Clone()
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = CloneValue(e)
		}
		return out
	default:
		return v
	}
}

// Tree is a configuration document rooted at a Map.
type Tree struct {
	root *Map
}

// New returns an empty tree.
func New() *Tree {
	return &Tree{root: NewMap()}
}

// FromMap wraps m without copying it.
func FromMap(m *Map) *Tree {
	if m == nil {
		m = NewMap()
	}
	return &Tree{root: m}
}

// Root exposes the top-level mapping.
func (t *Tree) Root() *Map {
	return t.root
}

// Clone returns an independent deep copy of the tree.
func (t *Tree) Clone() *Tree {
	return &Tree{root: t.root.Clone()}
}

// Get returns the value at p.
func (t *Tree) Get(p Path) (any, error) {
	parent, err := t.parent(p)
	if err != nil {
		return nil, err
	}
	last := len(p) - 1
	v, ok := parent.Get(p[last])
	if !ok {
		return nil, &PathError{Path: p, Segment: last, Err: ErrSegmentNotFound}
	}
	return v, nil
}

// Set assigns v to the last segment of p. Every earlier segment must already
// exist as a mapping.
func (t *Tree) Set(p Path, v any) error {
	parent, err := t.parent(p)
	if err != nil {
		return err
	}
	parent.Set(p[len(p)-1], v)
	return nil
}

func (t *Tree) parent(p Path) (*Map, error) {
	if len(p) == 0 {
		return nil, fmt.Errorf("tree lookup: %w", ErrEmptyPath)
	}
	cur := t.root
	for i, seg := range p[:len(p)-1] {
		v, ok := cur.Get(seg)
		if !ok {
			return nil, &PathError{Path: p, Segment: i, Err: ErrSegmentNotFound}
		}
		next, ok := v.(*Map)
		if !ok {
			return nil, &PathError{Path: p, Segment: i, Err: ErrNotMapping}
		}
		cur = next
	}
	return cur, nil
}
