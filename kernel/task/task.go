// Package task implements the cooperative task executor: a single-threaded
// scheduler over heap-allocated tasks, each a pinned boxed future in the
// system this is modeled on. Go has no Future/async-await of its own, so a
// Future here is an explicit interface polled by the executor; the only
// suspension points are the ones a Future chooses to report as pending, and
// a Waker is what lets something outside the executor (an interrupt
// handler, another task) schedule a re-poll.
package task

import (
	"duskos/kernel"
	"duskos/kernel/kfmt"
	"sync/atomic"
)

var errTaskIDOverflow = &kernel.Error{Module: "task", Message: "task id counter overflowed"}

// panicFn is mocked by tests so that exercising the fatal id-overflow and
// full-ready-queue paths does not halt the test process.
var panicFn = kfmt.Panic

var nextTaskID uint64

// newTaskID returns a fresh, monotonically increasing task id. Overflow is
// practically unreachable with a 64-bit counter but is still treated as the
// fatal condition the design calls for, rather than silently wrapping into
// an id already in use.
func newTaskID() uint64 {
	id := atomic.AddUint64(&nextTaskID, 1)
	if id == 0 {
		panicFn(errTaskIDOverflow)
	}
	return id
}

// Waker is the handle a Future uses to tell the executor it should be
// polled again. Invoking Wake schedules the owning task's id onto the
// executor's ready queue; it is safe to call from interrupt context.
type Waker interface {
	Wake()
}

// Future is polled by the executor until it reports completion. Poll must
// not block; if the Future cannot make progress yet, it registers w
// wherever it is waiting on (a channel, a ring, a timer) and returns false.
type Future interface {
	// Poll drives the future forward. It returns true once the future has
	// completed and should be dropped.
	Poll(w Waker) bool
}

// Task pairs a monotonic id with the future it owns. A task is dropped,
// along with its waker, the moment its future reports completion.
type Task struct {
	id     uint64
	future Future
}

// ID returns the task's unique, monotonically increasing identifier.
func (t *Task) ID() uint64 { return t.id }

func newTask(f Future) *Task {
	return &Task{id: newTaskID(), future: f}
}

// realWaker is the concrete Waker handed to a task's future by the
// ready-queue-backed Executor. It holds exactly the (task id, ready-queue
// handle) pair the design calls for; Go's garbage collector makes the
// original's reference-counting unnecessary.
type realWaker struct {
	taskID uint64
	queue  *readyQueue
}

var errReadyQueueFull = &kernel.Error{Module: "task", Message: "ready queue full on wake"}

// Wake pushes the owning task's id onto the ready queue. A full ready queue
// on wake is a fatal misconfiguration: capacity is provisioned for the
// workload, so hitting it means a capacity assumption was wrong, not a
// recoverable condition.
func (w *realWaker) Wake() {
	if !w.queue.push(w.taskID) {
		panicFn(errReadyQueueFull)
	}
}

// noopWaker backs the reference executor (see executor_naive.go): it never
// reschedules anything because that executor just re-polls everything every
// round instead of waiting to be woken.
type noopWaker struct{}

func (noopWaker) Wake() {}
