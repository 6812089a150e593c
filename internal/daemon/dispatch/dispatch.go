// Package dispatch implements the daemon's single cooperative task
// queue. Every mutation of the state store, lock manager, or fuse
// engine is funneled through one goroutine consuming this queue, so the
// invariants in the core subsystems — written assuming an
// uninterruptible mutation — hold even though Go's runtime is genuinely
// parallel. The RPC accept loop, the cron scheduler, and the fsnotify
// config watcher each run on their own goroutine but communicate with
// the core exclusively by enqueuing a closure here.
package dispatch

import (
	"context"
	"sync"
)

// job is a unit of work submitted to the queue, paired with a channel
// the submitter waits on for the job's return value.
type job struct {
	fn     func() interface{}
	result chan interface{}
}

// Queue is a single-goroutine, single-writer task queue.
type Queue struct {
	jobs chan job
	wg   sync.WaitGroup
}

// New creates a Queue with the given buffer size and starts its worker
// goroutine bound to ctx: the worker exits when ctx is cancelled, after
// draining jobs already enqueued.
func New(ctx context.Context, buffer int) *Queue {
	q := &Queue{jobs: make(chan job, buffer)}
	q.wg.Add(1)
	go q.run(ctx)
	return q
}

func (q *Queue) run(ctx context.Context) {
	defer q.wg.Done()
	for {
		select {
		case j, ok := <-q.jobs:
			if !ok {
				return
			}
			j.result <- j.fn()
		case <-ctx.Done():
			// Drain any jobs already queued before this goroutine exits,
			// so a caller blocked in Do during shutdown still gets a
			// response instead of hanging forever.
			for {
				select {
				case j := <-q.jobs:
					j.result <- j.fn()
				default:
					return
				}
			}
		}
	}
}

// Do submits fn and blocks until it has run on the queue's goroutine,
// returning its result.
func (q *Queue) Do(fn func() interface{}) interface{} {
	j := job{fn: fn, result: make(chan interface{}, 1)}
	q.jobs <- j
	return <-j.result
}

// Enqueue submits fn to run on the queue's goroutine without waiting
// for it to complete. Used by periodic jobs (cron ticks) that don't
// need a return value synchronously.
func (q *Queue) Enqueue(fn func()) {
	j := job{fn: func() interface{} { fn(); return nil }, result: make(chan interface{}, 1)}
	select {
	case q.jobs <- j:
	default:
		// Queue full: hand the job to a goroutine that blocks until the
		// queue has room rather than drop it, since every job here
		// represents a state mutation that must eventually happen.
		go func() { q.jobs <- j }()
	}
}

// Wait blocks until the worker goroutine has exited (after ctx passed
// to New is cancelled and pending jobs drained).
func (q *Queue) Wait() {
	q.wg.Wait()
}
