package task

import (
	"sync/atomic"
	"testing"
	"time"
)

func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal(msg)
}

func TestOneShotRunsOnceThenCleansUp(t *testing.T) {
	r := NewRunner(nil)
	defer r.Deinit()

	var ran, cleaned atomic.Int32
	r.Push(Spec{
		Name:    "once",
		Handler: func(*Task) { ran.Add(1) },
		Cleanup: func() { cleaned.Add(1) },
	})

	r.Wait()
	waitFor(t, func() bool { return cleaned.Load() == 1 }, "one-shot cleanup did not run")
	if ran.Load() != 1 {
		t.Errorf("handler ran %d times, want 1", ran.Load())
	}
}

func TestPeriodicReArms(t *testing.T) {
	r := NewRunner(nil)
	defer r.Deinit()

	var runs atomic.Int32
	r.Push(Spec{
		Name:     "tick",
		Interval: 5 * time.Millisecond,
		Handler:  func(*Task) { runs.Add(1) },
	})

	waitFor(t, func() bool { return runs.Load() >= 3 }, "periodic task did not repeat")
}

func TestResetCancelsPeriodicAndRunsCleanupOnce(t *testing.T) {
	r := NewRunner(nil)
	defer r.Deinit()

	var runs, cleanups atomic.Int32
	r.Push(Spec{
		Name:     "tick",
		Interval: 5 * time.Millisecond,
		Handler:  func(*Task) { runs.Add(1) },
		Cleanup:  func() { cleanups.Add(1) },
	})

	waitFor(t, func() bool { return runs.Load() >= 1 }, "periodic task never ran")
	r.Reset()
	r.Wait()

	if cleanups.Load() != 1 {
		t.Errorf("cleanup ran %d times, want 1", cleanups.Load())
	}

	// No further executions after the barrier.
	settled := runs.Load()
	time.Sleep(30 * time.Millisecond)
	if runs.Load() != settled {
		t.Error("periodic task ran again after Reset")
	}
}

func TestResetWaitsForInflightHandler(t *testing.T) {
	r := NewRunner(nil)
	defer r.Deinit()

	started := make(chan struct{})
	var handlerDone, cleanupAfterHandler atomic.Bool
	r.Push(Spec{
		Name:     "slow",
		Interval: time.Millisecond,
		Handler: func(*Task) {
			select {
			case started <- struct{}{}:
			default:
			}
			time.Sleep(30 * time.Millisecond)
			handlerDone.Store(true)
		},
		Cleanup: func() {
			cleanupAfterHandler.Store(handlerDone.Load())
		},
	})

	<-started
	r.Reset()

	if !cleanupAfterHandler.Load() {
		t.Error("cleanup ran while its handler was still in flight")
	}
}

func TestWaitDrainsOneShots(t *testing.T) {
	r := NewRunner(nil)
	defer r.Deinit()

	var runs atomic.Int32
	for i := 0; i < 5; i++ {
		r.Push(Spec{Name: "job", Handler: func(*Task) { runs.Add(1) }})
	}

	r.Wait()
	if runs.Load() != 5 {
		t.Errorf("drained with %d runs, want 5", runs.Load())
	}
}

func TestStopRequestedVisibleToHandler(t *testing.T) {
	r := NewRunner(nil)

	observed := make(chan bool, 1)
	r.Push(Spec{
		Name:     "observer",
		Interval: time.Millisecond,
		Handler: func(task *Task) {
			time.Sleep(20 * time.Millisecond)
			select {
			case observed <- task.StopRequested():
			default:
			}
		},
	})

	// Let the handler start, then cancel mid-flight.
	time.Sleep(10 * time.Millisecond)
	r.Deinit()

	select {
	case stopped := <-observed:
		if !stopped {
			t.Skip("cancellation raced past the handler's check")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("handler never reported")
	}
}

func TestDeinitIsIdempotentAndStopsPush(t *testing.T) {
	r := NewRunner(nil)
	r.Deinit()
	r.Deinit()

	var ran atomic.Int32
	r.Push(Spec{Name: "late", Handler: func(*Task) { ran.Add(1) }})
	time.Sleep(20 * time.Millisecond)
	if ran.Load() != 0 {
		t.Error("task pushed after Deinit was executed")
	}
}
