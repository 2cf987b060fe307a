// Package task runs deferred background work for the core: debounced
// save flushes and other off-frame jobs. The runner executes tasks on a
// single worker goroutine; Reset, Wait and Deinit form the rendezvous
// barrier the foreground uses before tearing the engine down.
package task

import (
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// tick is the worker's scheduling granularity.
const tick = 5 * time.Millisecond

// Spec describes one background task.
type Spec struct {
	// Name identifies the task in logs.
	Name string

	// Interval re-arms the task periodically. Zero means run once.
	Interval time.Duration

	// Handler does the work. It should check StopRequested at safe
	// points when it runs for long.
	Handler func(*Task)

	// Cleanup runs when the task is retired: after a one-shot handler
	// completes, or when the runner cancels the task via Reset or
	// Deinit. Flush-on-teardown work belongs here.
	Cleanup func()
}

// Task is one scheduled unit of work.
type Task struct {
	spec Spec
	stop atomic.Bool
	next time.Time
}

// StopRequested reports whether the task has been asked to cancel.
// Handlers check this at safe points.
func (t *Task) StopRequested() bool {
	return t.stop.Load()
}

// Runner owns the worker goroutine and the pending task list.
type Runner struct {
	mu      sync.Mutex
	cond    *sync.Cond
	tasks   []*Task
	current *Task
	busy    bool
	stopped bool
	quit    chan struct{}
	done    chan struct{}
	log     *zap.Logger
}

// NewRunner creates a runner and starts its worker goroutine. A nil
// logger defaults to a no-op logger.
func NewRunner(log *zap.Logger) *Runner {
	if log == nil {
		log = zap.NewNop()
	}
	r := &Runner{
		quit: make(chan struct{}),
		done: make(chan struct{}),
		log:  log,
	}
	r.cond = sync.NewCond(&r.mu)
	go r.loop()
	return r
}

// Push schedules a task. One-shot tasks run as soon as the worker is
// free; periodic tasks first run after their interval elapses. Pushing
// onto a deinitialized runner is a no-op.
func (r *Runner) Push(spec Spec) {
	t := &Task{spec: spec}
	if spec.Interval > 0 {
		t.next = time.Now().Add(spec.Interval)
	} else {
		t.next = time.Now()
	}

	r.mu.Lock()
	if r.stopped {
		r.mu.Unlock()
		return
	}
	r.tasks = append(r.tasks, t)
	r.mu.Unlock()
}

// Reset cancels all pending tasks, including an in-flight one, and runs
// their cleanups. It waits for an in-flight handler to reach its next
// safe point first, so no cleanup runs concurrently with its own
// handler.
func (r *Runner) Reset() {
	r.mu.Lock()
	cancelled := r.tasks
	r.tasks = nil
	for _, t := range cancelled {
		t.stop.Store(true)
	}
	if r.current != nil {
		r.current.stop.Store(true)
		cancelled = append(cancelled, r.current)
	}
	for r.busy {
		r.cond.Wait()
	}
	r.mu.Unlock()

	for _, t := range cancelled {
		if t.spec.Cleanup != nil {
			t.spec.Cleanup()
		}
	}
}

// Wait blocks until the pending list is drained and the worker is idle.
// Periodic tasks never drain on their own; cancel them with Reset before
// waiting, as the unload path does.
func (r *Runner) Wait() {
	r.mu.Lock()
	for len(r.tasks) > 0 || r.busy {
		r.cond.Wait()
	}
	r.mu.Unlock()
}

// Deinit cancels pending tasks, runs their cleanups and stops the
// worker. The runner cannot be reused afterwards.
func (r *Runner) Deinit() {
	r.mu.Lock()
	if r.stopped {
		r.mu.Unlock()
		return
	}
	r.stopped = true
	r.mu.Unlock()

	r.Reset()
	close(r.quit)
	<-r.done
}

func (r *Runner) loop() {
	defer close(r.done)
	for {
		select {
		case <-r.quit:
			return
		default:
		}

		t := r.takeDue()
		if t == nil {
			select {
			case <-r.quit:
				return
			case <-time.After(tick):
			}
			continue
		}

		if !t.StopRequested() && t.spec.Handler != nil {
			t.spec.Handler(t)
		}

		r.mu.Lock()
		if t.spec.Interval > 0 && !t.StopRequested() && !r.stopped {
			t.next = time.Now().Add(t.spec.Interval)
			r.tasks = append(r.tasks, t)
			r.current = nil
			r.busy = false
			r.cond.Broadcast()
			r.mu.Unlock()
			continue
		}
		r.current = nil
		r.busy = false
		r.cond.Broadcast()
		r.mu.Unlock()

		// One-shot completed (or task cancelled mid-flight): retire it.
		if t.spec.Interval == 0 && !t.StopRequested() && t.spec.Cleanup != nil {
			t.spec.Cleanup()
		}
	}
}

// takeDue removes and returns one due task, marking the worker busy.
func (r *Runner) takeDue() *Task {
	now := time.Now()
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, t := range r.tasks {
		if t.StopRequested() || !t.next.After(now) {
			r.tasks = append(r.tasks[:i], r.tasks[i+1:]...)
			r.current = t
			r.busy = true
			return t
		}
	}
	return nil
}
