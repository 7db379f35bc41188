package pool

import "testing"

type item struct {
	values []int
	tag    string
}

func newItemPool() *Pool[item] {
	return New(nil, func(it *item) {
		it.values = it.values[:0]
		it.tag = ""
	})
}

func TestPool_AcquireCreatesWhenEmpty(t *testing.T) {
	p := newItemPool()

	a := p.Acquire()
	b := p.Acquire()

	if a == b {
		t.Fatal("expected two distinct objects")
	}
	if p.Allocated() != 2 {
		t.Errorf("expected 2 allocations, got %d", p.Allocated())
	}
}

func TestPool_ReleaseResetsAndReuses(t *testing.T) {
	p := newItemPool()

	a := p.Acquire()
	a.values = append(a.values, 1, 2, 3)
	a.tag = "used"
	p.Release(a)

	if p.Len() != 1 {
		t.Fatalf("expected 1 free object, got %d", p.Len())
	}

	b := p.Acquire()
	if b != a {
		t.Error("expected the released object to be reused")
	}
	if len(b.values) != 0 || b.tag != "" {
		t.Errorf("expected reset object, got %+v", b)
	}
	if cap(b.values) < 3 {
		t.Error("expected backing storage to survive the reset")
	}
	if p.Allocated() != 1 {
		t.Errorf("expected 1 allocation, got %d", p.Allocated())
	}
}

func TestPool_ReleaseNil(t *testing.T) {
	p := newItemPool()
	p.Release(nil)

	if p.Len() != 0 {
		t.Errorf("expected nil release to be ignored, got %d free", p.Len())
	}
}

func TestPool_CustomConstructor(t *testing.T) {
	p := New(func() *item { return &item{tag: "fresh"} }, nil)

	if got := p.Acquire().tag; got != "fresh" {
		t.Errorf("expected constructor to run, got tag %q", got)
	}
}
