// Package orderedlist keeps a sibling sequence densely positioned.
//
// A List holds its items in slice order, and the slice index of every item is
// always its position minus Base. Insert, Move and Remove only renumber the
// interval that actually shifted, so after each operation the positions are
// exactly Base..Base+len-1.
package orderedlist

import (
	"fmt"
	"sort"

	"concord-backend/internal/apperr"
)

type Item interface {
	Position() int
	SetPosition(int)
}

type List[T Item] struct {
	Items []T
	// Base is the position assigned to the first item. Groups use 1 so the
	// pinned default group keeps position 0.
	Base int
}

func New[T Item](items []T, base int) *List[T] {
	return &List[T]{Items: items, Base: base}
}

func (l *List[T]) Len() int {
	return len(l.Items)
}

// Insert places item at index, clamped to [0, len]. A nil or negative index
// appends.
func (l *List[T]) Insert(item T, index *int) int {
	n := l.Len()
	at := n
	if index != nil && *index >= 0 {
		at = min(*index, n)
	}

	var zero T
	l.Items = append(l.Items, zero)
	copy(l.Items[at+1:], l.Items[at:n])
	l.Items[at] = item

	l.renumber(at, n)
	return at
}

// Prepend inserts a block at the head, keeping the block's own order. The
// existing items shift by len(items).
func (l *List[T]) Prepend(items ...T) {
	if len(items) == 0 {
		return
	}
	merged := make([]T, 0, len(items)+len(l.Items))
	merged = append(merged, items...)
	merged = append(merged, l.Items...)
	l.Items = merged
	l.renumber(0, len(l.Items)-1)
}

// Move relocates the item at from to index, clamped to [0, len-1]. A nil or
// negative index leaves the list untouched.
func (l *List[T]) Move(from int, index *int) (int, error) {
	n := l.Len()
	if from < 0 || from >= n {
		return 0, apperr.NotFound("no item at index %d", from)
	}
	if index == nil || *index < 0 {
		return from, nil
	}
	to := min(*index, n-1)
	if to == from {
		return from, nil
	}

	item := l.Items[from]
	if to > from {
		// moving forward, the items in between shift back by one
		copy(l.Items[from:to], l.Items[from+1:to+1])
		l.Items[to] = item
		l.renumber(from, to)
	} else {
		copy(l.Items[to+1:from+1], l.Items[to:from])
		l.Items[to] = item
		l.renumber(to, from)
	}
	return to, nil
}

// Remove drops the item at index; every later item shifts by -1.
func (l *List[T]) Remove(at int) (T, error) {
	var zero T
	n := l.Len()
	if at < 0 || at >= n {
		return zero, apperr.NotFound("no item at index %d", at)
	}

	item := l.Items[at]
	copy(l.Items[at:], l.Items[at+1:])
	l.Items[n-1] = zero
	l.Items = l.Items[:n-1]

	l.renumber(at, n-2)
	return item, nil
}

// Find returns the index of the first item matching fn, or -1.
func (l *List[T]) Find(fn func(T) bool) int {
	for i, item := range l.Items {
		if fn(item) {
			return i
		}
	}
	return -1
}

// Sort restores slice order from the stored positions. Documents read back
// from storage are not guaranteed to keep array order.
func (l *List[T]) Sort() {
	sort.SliceStable(l.Items, func(i, j int) bool {
		return l.Items[i].Position() < l.Items[j].Position()
	})
}

// Dense reports whether positions are exactly Base..Base+len-1 in slice order.
func (l *List[T]) Dense() bool {
	return l.Check() == nil
}

func (l *List[T]) Check() error {
	for i, item := range l.Items {
		if item.Position() != l.Base+i {
			return fmt.Errorf("item %d has position %d, want %d", i, item.Position(), l.Base+i)
		}
	}
	return nil
}

func (l *List[T]) renumber(from, to int) {
	for i := from; i <= to && i < len(l.Items); i++ {
		l.Items[i].SetPosition(l.Base + i)
	}
}
