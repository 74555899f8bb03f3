package task

import "duskos/kernel/cpu"

// hardware seams, mocked in tests: real STI/HLT instructions have no
// meaning, and no backing assembly to link against, outside a ring-0 build.
var (
	disableInterruptsFn       = cpu.DisableInterrupts
	enableInterruptsFn        = cpu.EnableInterrupts
	enableInterruptsAndHaltFn = cpu.EnableInterruptsAndHalt
)

// Executor is a single-threaded, cooperative scheduler: it polls ready
// tasks to completion and, when there is nothing ready, masks interrupts
// just long enough to check the ready queue before halting the CPU.
type Executor struct {
	tasks  map[uint64]*Task
	wakers map[uint64]*realWaker
	queue  *readyQueue
}

// NewExecutor builds an Executor whose ready queue holds up to
// queueCapacity pending wakeups; queueCapacity must be a power of two.
func NewExecutor(queueCapacity uint64) *Executor {
	return &Executor{
		tasks:  make(map[uint64]*Task),
		wakers: make(map[uint64]*realWaker),
		queue:  newReadyQueue(queueCapacity),
	}
}

// Spawn adds f to the executor as a new task and schedules its first poll.
// It returns the new task's id.
func (e *Executor) Spawn(f Future) uint64 {
	t := newTask(f)
	e.tasks[t.id] = t
	e.queue.push(t.id) // queue is freshly sized for the workload; never full here
	return t.id
}

// NumTasks reports how many tasks are still owned by the executor.
func (e *Executor) NumTasks() int { return len(e.tasks) }

// wakerFor lazily builds (and caches) the realWaker for a task id.
func (e *Executor) wakerFor(id uint64) *realWaker {
	if w, ok := e.wakers[id]; ok {
		return w
	}
	w := &realWaker{taskID: id, queue: e.queue}
	e.wakers[id] = w
	return w
}

// RunReadyTasks drains the ready queue, polling each still-live task once.
// A task that completes is dropped along with its waker; a task that
// reports pending is left alone, since its own waker is what will
// reschedule it.
func (e *Executor) RunReadyTasks() {
	for {
		id, ok := e.queue.pop()
		if !ok {
			return
		}

		t, exists := e.tasks[id]
		if !exists {
			continue // task finished (or was never spawned) by the time this wake fired
		}

		w := e.wakerFor(id)
		if t.future.Poll(w) {
			delete(e.tasks, id)
			delete(e.wakers, id)
		}
	}
}

// sleepIfIdle is the race-free idle path: interrupts are masked while the
// ready queue is inspected, and the eventual re-enable is fused with the
// halt instruction so that a wakeup landing between the check and the halt
// cannot be lost. Splitting "enable interrupts" and "halt" into two
// instructions that a compiler or scheduler could reorder would reopen
// exactly that race.
func (e *Executor) sleepIfIdle() {
	disableInterruptsFn()
	if e.queue.empty() {
		enableInterruptsAndHaltFn()
		return
	}
	enableInterruptsFn()
}

// Run polls ready tasks and idles until none remain. Tasks that never
// complete (the keyboard consumer, say) keep this loop running forever, as
// intended on real hardware; it only returns once every spawned task has
// finished, which matters for finite workloads such as tests.
func (e *Executor) Run() {
	for len(e.tasks) > 0 {
		e.RunReadyTasks()
		if len(e.tasks) == 0 {
			return
		}
		e.sleepIfIdle()
	}
}
