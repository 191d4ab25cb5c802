package orderedlist_test

import (
	"concord-backend/internal/apperr"
	"concord-backend/internal/orderedlist"
	"errors"
	"math/rand"
	"slices"
	"testing"
)

type entry struct {
	name string
	pos  int
}

func (e *entry) Position() int     { return e.pos }
func (e *entry) SetPosition(p int) { e.pos = p }

func build(base int, names ...string) *orderedlist.List[*entry] {
	items := make([]*entry, len(names))
	for i, n := range names {
		items[i] = &entry{name: n, pos: base + i}
	}
	return orderedlist.New(items, base)
}

func names(l *orderedlist.List[*entry]) []string {
	out := make([]string, len(l.Items))
	for i, e := range l.Items {
		out[i] = e.name
	}
	return out
}

func ptr(i int) *int { return &i }

func TestInsert(t *testing.T) {
	tests := []struct {
		name     string
		index    *int
		expected []string
		at       int
	}{
		{name: "Head", index: ptr(0), expected: []string{"x", "a", "b", "c"}, at: 0},
		{name: "Middle", index: ptr(1), expected: []string{"a", "x", "b", "c"}, at: 1},
		{name: "Tail", index: ptr(3), expected: []string{"a", "b", "c", "x"}, at: 3},
		{name: "Clamped past tail", index: ptr(42), expected: []string{"a", "b", "c", "x"}, at: 3},
		{name: "Nil appends", index: nil, expected: []string{"a", "b", "c", "x"}, at: 3},
		{name: "Negative appends", index: ptr(-1), expected: []string{"a", "b", "c", "x"}, at: 3},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			l := build(0, "a", "b", "c")
			at := l.Insert(&entry{name: "x"}, tc.index)

			if at != tc.at {
				t.Errorf("Insert returned index %d, want %d", at, tc.at)
			}
			if got := names(l); !slices.Equal(got, tc.expected) {
				t.Errorf("got order %v, want %v", got, tc.expected)
			}
			if err := l.Check(); err != nil {
				t.Error(err)
			}
		})
	}
}

func TestInsertIntoEmpty(t *testing.T) {
	l := build(0)
	l.Insert(&entry{name: "x"}, ptr(5))

	if got := names(l); !slices.Equal(got, []string{"x"}) {
		t.Errorf("got order %v", got)
	}
	if l.Items[0].pos != 0 {
		t.Errorf("got position %d, want 0", l.Items[0].pos)
	}
}

func TestMove(t *testing.T) {
	tests := []struct {
		name     string
		from     int
		index    *int
		expected []string
	}{
		{name: "Forward", from: 0, index: ptr(2), expected: []string{"b", "c", "a", "d"}},
		{name: "Backward", from: 3, index: ptr(1), expected: []string{"a", "d", "b", "c"}},
		{name: "To head", from: 2, index: ptr(0), expected: []string{"c", "a", "b", "d"}},
		{name: "Clamped to tail", from: 1, index: ptr(99), expected: []string{"a", "c", "d", "b"}},
		{name: "Same position is a no-op", from: 2, index: ptr(2), expected: []string{"a", "b", "c", "d"}},
		{name: "Nil is a no-op", from: 1, index: nil, expected: []string{"a", "b", "c", "d"}},
		{name: "Negative is a no-op", from: 1, index: ptr(-3), expected: []string{"a", "b", "c", "d"}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			l := build(0, "a", "b", "c", "d")
			if _, err := l.Move(tc.from, tc.index); err != nil {
				t.Fatal(err)
			}

			if got := names(l); !slices.Equal(got, tc.expected) {
				t.Errorf("got order %v, want %v", got, tc.expected)
			}
			if err := l.Check(); err != nil {
				t.Error(err)
			}
		})
	}
}

func TestMoveOutOfRange(t *testing.T) {
	l := build(0, "a")
	_, err := l.Move(3, ptr(0))
	if !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("got error %v, want ErrNotFound", err)
	}
}

func TestRemove(t *testing.T) {
	l := build(0, "a", "b", "c", "d")

	removed, err := l.Remove(1)
	if err != nil {
		t.Fatal(err)
	}
	if removed.name != "b" {
		t.Errorf("removed %q, want b", removed.name)
	}
	if got := names(l); !slices.Equal(got, []string{"a", "c", "d"}) {
		t.Errorf("got order %v", got)
	}
	if err := l.Check(); err != nil {
		t.Error(err)
	}

	if _, err := l.Remove(3); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("got error %v, want ErrNotFound", err)
	}
}

func TestPrepend(t *testing.T) {
	l := build(0, "c")
	l.Prepend(&entry{name: "a", pos: 7}, &entry{name: "b", pos: 9})

	if got := names(l); !slices.Equal(got, []string{"a", "b", "c"}) {
		t.Errorf("got order %v", got)
	}
	if err := l.Check(); err != nil {
		t.Error(err)
	}
}

func TestBaseOffset(t *testing.T) {
	l := build(1, "a", "b")
	l.Insert(&entry{name: "x"}, ptr(0))

	if l.Items[0].pos != 1 {
		t.Errorf("head position is %d, want 1", l.Items[0].pos)
	}
	if err := l.Check(); err != nil {
		t.Error(err)
	}
}

func TestSort(t *testing.T) {
	l := orderedlist.New([]*entry{{name: "c", pos: 2}, {name: "a", pos: 0}, {name: "b", pos: 1}}, 0)
	if l.Dense() {
		t.Fatal("unsorted list reported dense")
	}
	l.Sort()
	if got := names(l); !slices.Equal(got, []string{"a", "b", "c"}) {
		t.Errorf("got order %v", got)
	}
	if !l.Dense() {
		t.Error("sorted list is not dense")
	}
}

func TestDensityUnderRandomOperations(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	l := build(0)

	for step := range 5000 {
		switch op := rng.Intn(3); {
		case op == 0 || l.Len() == 0:
			l.Insert(&entry{}, ptr(rng.Intn(l.Len()+3)-1))
		case op == 1:
			if _, err := l.Move(rng.Intn(l.Len()), ptr(rng.Intn(l.Len()+3)-1)); err != nil {
				t.Fatal(err)
			}
		default:
			if _, err := l.Remove(rng.Intn(l.Len())); err != nil {
				t.Fatal(err)
			}
		}

		if err := l.Check(); err != nil {
			t.Fatalf("step %d: %v", step, err)
		}
	}
}
