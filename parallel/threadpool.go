// Package parallel provides the task-batch executor used by the world and the collision
// systems to spread islands, pairs and axis sorts over the available cores.
//
// A batch is built with AddTask and run with Execute. Execute wakes every worker, runs tasks
// on the calling goroutine too, and returns once the batch is exhausted and every worker is
// idle again. Tasks must not call Execute themselves.
package parallel

import (
	"runtime"
	"sync"
	"sync/atomic"
)

type task struct {
	fn    func(param any)
	param any
}

// ThreadPool is a fixed set of worker goroutines coordinated by two alternating start
// handles. The handle for batch k+1 is created before batch k is released, so a worker that
// finishes late can never miss the next signal.
type ThreadPool struct {
	tasks  []task
	cursor atomic.Int64

	threadCount int
	handles     [2]chan struct{}
	current     int
	done        sync.WaitGroup

	executing atomic.Bool
	stopping  atomic.Bool
	closed    bool
}

// NewThreadPool starts workers goroutines in addition to the caller. A negative count uses
// GOMAXPROCS-1.
func NewThreadPool(workers int) *ThreadPool {
	if workers < 0 {
		workers = max(runtime.GOMAXPROCS(0)-1, 0)
	}

	p := &ThreadPool{
		tasks:       make([]task, 0, 64),
		threadCount: workers,
	}
	p.handles[0] = make(chan struct{})
	p.handles[1] = make(chan struct{})

	for range workers {
		go p.worker()
	}

	return p
}

// ThreadCount returns the number of goroutines taking part in a batch, caller included.
func (p *ThreadPool) ThreadCount() int {
	return p.threadCount + 1
}

// AddTask queues fn(param) for the next Execute.
func (p *ThreadPool) AddTask(fn func(param any), param any) {
	p.tasks = append(p.tasks, task{fn: fn, param: param})
}

// Execute runs all queued tasks and blocks until they are finished.
func (p *ThreadPool) Execute() {
	if !p.executing.CompareAndSwap(false, true) {
		panic("parallel: Execute called from inside a running batch")
	}
	defer p.executing.Store(false)

	if p.closed || p.threadCount == 0 || len(p.tasks) <= 1 {
		for _, t := range p.tasks {
			t.fn(t.param)
		}
		p.reset()
		return
	}

	p.release()
	p.runTasks()
	p.done.Wait()
	p.reset()
}

// Close stops the workers. Further batches run on the calling goroutine only.
func (p *ThreadPool) Close() {
	if p.closed {
		return
	}
	p.closed = true
	if p.threadCount == 0 {
		return
	}

	p.stopping.Store(true)
	p.release()
	p.done.Wait()
}

// release prepares the following handle and opens the current one.
func (p *ThreadPool) release() {
	next := 1 - p.current
	p.handles[next] = make(chan struct{})
	p.done.Add(p.threadCount)
	close(p.handles[p.current])
	p.current = next
}

func (p *ThreadPool) reset() {
	clear(p.tasks)
	p.tasks = p.tasks[:0]
	p.cursor.Store(0)
}

func (p *ThreadPool) runTasks() {
	n := int64(len(p.tasks))
	for {
		i := p.cursor.Add(1) - 1
		if i >= n {
			return
		}
		t := p.tasks[i]
		t.fn(t.param)
	}
}

func (p *ThreadPool) worker() {
	idx := 0
	for {
		<-p.handles[idx]
		idx = 1 - idx

		if p.stopping.Load() {
			p.done.Done()
			return
		}

		p.runTasks()
		p.done.Done()
	}
}
