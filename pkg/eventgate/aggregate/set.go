package aggregate

import "reflect"

// Set is an insertion-ordered set of entities compared by identity.
// Pointer entities are equal only when they point at the same value;
// comparable value entities fall back to ==. Entities of a non-comparable
// value type are never deduplicated.
type Set struct {
	index map[identity]int
	items []Entity
}

type identity struct {
	typ reflect.Type
	ptr uintptr
	val any
}

// NewSet creates a set containing entities.
func NewSet(entities ...Entity) *Set {
	s := &Set{index: make(map[identity]int)}
	for _, e := range entities {
		s.Add(e)
	}
	return s
}

// Add inserts e and reports whether it was not already present.
// Nil entities are ignored.
func (s *Set) Add(e Entity) bool {
	if IsNil(e) {
		return false
	}
	if s.index == nil {
		s.index = make(map[identity]int)
	}

	id, ok := identify(e)
	if !ok {
		s.items = append(s.items, e)
		return true
	}
	if _, exists := s.index[id]; exists {
		return false
	}
	s.index[id] = len(s.items)
	s.items = append(s.items, e)
	return true
}

// AddAll inserts every entity of other.
func (s *Set) AddAll(other *Set) {
	if other == nil {
		return
	}
	for _, e := range other.items {
		s.Add(e)
	}
}

// Contains reports whether e is in the set. Non-comparable value entities
// are never reported as present.
func (s *Set) Contains(e Entity) bool {
	if s == nil || IsNil(e) {
		return false
	}
	id, ok := identify(e)
	if !ok {
		return false
	}
	_, exists := s.index[id]
	return exists
}

// Len returns the number of entities.
func (s *Set) Len() int {
	if s == nil {
		return 0
	}
	return len(s.items)
}

// Items returns the entities in insertion order.
func (s *Set) Items() []Entity {
	if s == nil {
		return nil
	}
	out := make([]Entity, len(s.items))
	copy(out, s.items)
	return out
}

// Pending returns the entities that currently hold events, in insertion order.
func (s *Set) Pending() []Entity {
	if s == nil {
		return nil
	}
	out := make([]Entity, 0, len(s.items))
	for _, e := range s.items {
		if e.HasPendingEvents() {
			out = append(out, e)
		}
	}
	return out
}

func identify(e Entity) (identity, bool) {
	v := reflect.ValueOf(e)
	if !v.IsValid() {
		return identity{}, false
	}
	switch v.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Chan, reflect.Func, reflect.UnsafePointer:
		return identity{typ: v.Type(), ptr: v.Pointer()}, true
	}
	if v.Type().Comparable() {
		return identity{typ: v.Type(), val: e}, true
	}
	return identity{}, false
}

// IsNil reports whether e is nil or a typed nil.
func IsNil(e Entity) bool {
	if e == nil {
		return true
	}
	v := reflect.ValueOf(e)
	switch v.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Chan, reflect.Func, reflect.Interface:
		return v.IsNil()
	}
	return false
}
