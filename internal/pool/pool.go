// Package pool provides an explicit free-list allocator for objects that are created and
// destroyed every simulation step (arbiters, contacts, islands, scratch lists).
//
// Unlike sync.Pool, objects are never reclaimed by the garbage collector behind the caller's
// back, and every released object is reset before it can be handed out again.
//
// A Pool is not safe for concurrent use. Owners either keep one pool per goroutine or
// serialize access with their own lock.
package pool

// Pool is a free-list of *T.
type Pool[T any] struct {
	free    []*T
	newFn   func() *T
	resetFn func(*T)

	allocated int
}

// New creates a pool. newFn may be nil, in which case new(T) is used.
// resetFn may be nil when T needs no cleanup.
func New[T any](newFn func() *T, resetFn func(*T)) *Pool[T] {
	if newFn == nil {
		newFn = func() *T { return new(T) }
	}
	return &Pool[T]{
		free:    make([]*T, 0, 16),
		newFn:   newFn,
		resetFn: resetFn,
	}
}

// Acquire returns a recycled object or a fresh one.
func (p *Pool[T]) Acquire() *T {
	n := len(p.free)
	if n == 0 {
		p.allocated++
		return p.newFn()
	}

	v := p.free[n-1]
	p.free[n-1] = nil
	p.free = p.free[:n-1]
	return v
}

// Release resets v and puts it back on the free-list.
func (p *Pool[T]) Release(v *T) {
	if v == nil {
		return
	}
	if p.resetFn != nil {
		p.resetFn(v)
	}
	p.free = append(p.free, v)
}

// Len returns the number of objects currently waiting on the free-list.
func (p *Pool[T]) Len() int {
	return len(p.free)
}

// Allocated returns how many objects the pool had to create so far.
func (p *Pool[T]) Allocated() int {
	return p.allocated
}
