// Package worker provides a bounded, supervised task pool for detached
// callback processing. The HTTP gateway answers 202 before a callback is
// processed; the actual work runs on this pool so that a crashed task is
// recovered and logged instead of silently vanishing, and so the number of
// in-flight callback tasks stays bounded under load.
package worker

import (
	"context"
	"runtime/debug"
	"sync"

	"github.com/rs/zerolog/log"
)

// Task is one unit of detached work. The context passed in is the pool's
// long-lived context, not the originating HTTP request's (which is gone by
// the time the task runs).
type Task func(ctx context.Context)

// Pool runs tasks on a fixed set of goroutines fed by a bounded queue.
type Pool struct {
	workers int
	tasks   chan Task
	wg      sync.WaitGroup

	closeOnce sync.Once
}

// NewPool builds a pool with the given worker count and queue depth.
// Non-positive values fall back to 4 workers and a queue of 64.
func NewPool(workers, depth int) *Pool {
	if workers <= 0 {
		workers = 4
	}
	if depth <= 0 {
		depth = 64
	}
	return &Pool{workers: workers, tasks: make(chan Task, depth)}
}

// Start launches the worker goroutines. Tasks submitted before Start sit in
// the queue. ctx is handed to every task; the workers drain the queue until
// Close.
func (p *Pool) Start(ctx context.Context) {
	p.wg.Add(p.workers)
	for i := 0; i < p.workers; i++ {
		go p.run(ctx)
	}
}

// TrySubmit enqueues a task without blocking. It returns false when the
// queue is saturated; callers treat that as an internal fault (the upstream
// job system will retry the callback).
func (p *Pool) TrySubmit(t Task) bool {
	if t == nil {
		return false
	}
	select {
	case p.tasks <- t:
		return true
	default:
		return false
	}
}

// Close stops accepting tasks, drains the queue, and waits for in-flight
// tasks to finish.
func (p *Pool) Close() {
	p.closeOnce.Do(func() { close(p.tasks) })
	p.wg.Wait()
}

func (p *Pool) run(ctx context.Context) {
	defer p.wg.Done()
	for t := range p.tasks {
		p.exec(ctx, t)
	}
}

// exec runs one task under a panic guard. The guard is the pool's own last
// line of defense; callback tasks additionally convert their failures into
// delivery-state transitions.
func (p *Pool) exec(ctx context.Context, t Task) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().
				Interface("panic", r).
				Bytes("stack", debug.Stack()).
				Msg("worker task panicked")
		}
	}()
	t(ctx)
}
