// Package taskpool provides a fixed-size goroutine pool with waitable task
// handles and a fan-out/fan-in barrier.
//
// The load worker depends only on the Runner interface, so the per-chunk
// barrier can later be replaced by a dependency-aware scheduler without
// changing the worker.
package taskpool

import (
	"context"
	"fmt"
	"sync"

	"github.com/ajitpratap0/framefeed/pkg/errors"
)

// Task is one unit of work executed by the pool.
type Task func(ctx context.Context) error

// Runner executes independent tasks and blocks until every one completed.
// The returned slice is index-aligned with tasks; nil entries succeeded.
type Runner interface {
	RunAll(ctx context.Context, tasks []Task) []error
}

// ErrClosed is returned by handles of tasks submitted after Close.
var ErrClosed = errors.New(errors.ErrorTypeInternal, "task pool is closed")

// Handle is the waitable result of a submitted task.
type Handle struct {
	done chan struct{}
	err  error
}

// Wait blocks until the task finished and returns its error.
func (h *Handle) Wait() error {
	<-h.done
	return h.err
}

// Done is closed once the task finished.
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

type job struct {
	ctx    context.Context
	task   Task
	handle *Handle
}

// Pool runs tasks on a fixed number of worker goroutines. Tasks beyond the
// worker count queue until a worker is free.
type Pool struct {
	size  int
	jobs  chan job
	wg    sync.WaitGroup
	mu    sync.RWMutex
	close bool
}

// New starts a pool with size workers; size is floored at 1.
func New(size int) *Pool {
	if size < 1 {
		size = 1
	}
	p := &Pool{
		size: size,
		jobs: make(chan job, size),
	}
	for i := 0; i < size; i++ {
		p.wg.Add(1)
		go p.worker()
	}
	return p
}

// Size returns the number of workers.
func (p *Pool) Size() int {
	return p.size
}

func (p *Pool) worker() {
	defer p.wg.Done()
	for j := range p.jobs {
		j.handle.err = run(j.ctx, j.task)
		close(j.handle.done)
	}
}

func run(ctx context.Context, task Task) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.New(errors.ErrorTypeInternal, fmt.Sprintf("task panicked: %v", r))
		}
	}()
	return task(ctx)
}

// Submit queues task and returns its handle. It blocks while the queue is
// full.
func (p *Pool) Submit(ctx context.Context, task Task) *Handle {
	h := &Handle{done: make(chan struct{})}

	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.close {
		h.err = ErrClosed
		close(h.done)
		return h
	}
	p.jobs <- job{ctx: ctx, task: task, handle: h}
	return h
}

// RunAll submits every task and waits for all of them.
func (p *Pool) RunAll(ctx context.Context, tasks []Task) []error {
	handles := make([]*Handle, len(tasks))
	for i, t := range tasks {
		handles[i] = p.Submit(ctx, t)
	}
	errs := make([]error, len(tasks))
	for i, h := range handles {
		errs[i] = h.Wait()
	}
	return errs
}

// Close stops accepting tasks and waits for queued ones to finish.
func (p *Pool) Close() {
	p.mu.Lock()
	if p.close {
		p.mu.Unlock()
		return
	}
	p.close = true
	close(p.jobs)
	p.mu.Unlock()

	p.wg.Wait()
}

// FirstError returns the first non-nil error and its index, or (-1, nil).
func FirstError(errs []error) (int, error) {
	for i, err := range errs {
		if err != nil {
			return i, err
		}
	}
	return -1, nil
}
