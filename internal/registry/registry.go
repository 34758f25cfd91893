// Package registry provides a small sorted, deduplicated container used to
// track orders (and other comparable entries) with fast existence checks and
// stable ascending iteration order.
package registry

import (
	"reflect"
	"sort"
)

// Comparable is implemented by element types that define a total order over
// themselves. Compare must return a negative value, zero, or a positive value
// when the receiver sorts before, equal to, or after other.
type Comparable[T any] interface {
	Compare(other T) int
}

// Registry is a sorted set over elements of a comparable type. Two elements
// that compare equal occupy a single slot (replace-on-match semantics).
//
// Registry is not internally synchronized; callers must serialize access.
// This keeps the structure reusable across single-threaded (simulated) and
// mutex-guarded (live) callers with different locking needs.
type Registry[T Comparable[T]] struct {
	elements []T
}

// New creates an empty registry.
func New[T Comparable[T]]() *Registry[T] {
	return &Registry[T]{}
}

// AddOrReplace inserts e at its sorted position, or overwrites the existing
// element that compares equal to it.
func (r *Registry[T]) AddOrReplace(e T) {
	if slot, ok := r.search(e); ok {
		r.elements[slot] = e
		return
	}
	r.Add(e)
}

// Add appends e and re-sorts. Unlike AddOrReplace, an element comparing equal
// to an existing entry is kept alongside it until the next AddOrReplace.
func (r *Registry[T]) Add(e T) {
	r.elements = append(r.elements, e)
	r.sort()
}

// Get returns the stored element comparing equal to e.
func (r *Registry[T]) Get(e T) (T, bool) {
	if slot, ok := r.search(e); ok {
		return r.elements[slot], true
	}
	var zero T
	return zero, false
}

// Contains reports whether an element comparing equal to e is present.
func (r *Registry[T]) Contains(e T) bool {
	_, ok := r.search(e)
	return ok
}

// Remove deletes the element comparing equal to e, shifting the tail left.
// It reports whether an element was removed.
func (r *Registry[T]) Remove(e T) bool {
	slot, ok := r.search(e)
	if !ok {
		return false
	}
	copy(r.elements[slot:], r.elements[slot+1:])
	var zero T
	r.elements[len(r.elements)-1] = zero
	r.elements = r.elements[:len(r.elements)-1]
	return true
}

// At returns the element at position i in ascending order.
func (r *Registry[T]) At(i int) T {
	return r.elements[i]
}

// Len returns the number of elements stored.
func (r *Registry[T]) Len() int {
	return len(r.elements)
}

// IsEmpty reports whether the registry holds no elements.
func (r *Registry[T]) IsEmpty() bool {
	return len(r.elements) == 0
}

// Clear drops all elements.
func (r *Registry[T]) Clear() {
	for i := range r.elements {
		var zero T
		r.elements[i] = zero
	}
	r.elements = r.elements[:0]
}

// Items returns a copy of the elements in ascending order.
func (r *Registry[T]) Items() []T {
	out := make([]T, len(r.elements))
	copy(out, r.elements)
	return out
}

// AddAll merges every element of other into this registry.
func (r *Registry[T]) AddAll(other *Registry[T]) {
	if other == nil || other.IsEmpty() {
		return
	}
	for _, e := range other.elements {
		r.AddOrReplace(e)
	}
}

// RemoveNils compacts the registry by dropping nil elements. Only meaningful
// for pointer or interface element types; other kinds are left untouched.
func (r *Registry[T]) RemoveNils() {
	n := 0
	for _, e := range r.elements {
		if !isNil(e) {
			r.elements[n] = e
			n++
		}
	}
	for i := n; i < len(r.elements); i++ {
		var zero T
		r.elements[i] = zero
	}
	r.elements = r.elements[:n]
}

func (r *Registry[T]) sort() {
	sort.Slice(r.elements, func(i, j int) bool {
		return r.elements[i].Compare(r.elements[j]) < 0
	})
}

// search locates the slot of an element comparing equal to e.
func (r *Registry[T]) search(e T) (int, bool) {
	slot := sort.Search(len(r.elements), func(i int) bool {
		return r.elements[i].Compare(e) >= 0
	})
	if slot < len(r.elements) && r.elements[slot].Compare(e) == 0 {
		return slot, true
	}
	return 0, false
}

func isNil[T any](v T) bool {
	rv := reflect.ValueOf(&v).Elem()
	switch rv.Kind() {
	case reflect.Ptr, reflect.Interface, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan:
		return rv.IsNil()
	}
	return false
}
