package task

// NaiveExecutor is the non-efficient reference executor named in the
// design: instead of waiting for a waker, it polls every still-pending
// future again on every round with a no-op waker. It exists to validate the
// waker-based Executor against equivalent observable behaviour on finite
// workloads, not for production use — busy-polling defeats the entire point
// of the idle-halt protocol.
type NaiveExecutor struct {
	pending []*Task
}

// Spawn adds f as a new task.
func (e *NaiveExecutor) Spawn(f Future) uint64 {
	t := newTask(f)
	e.pending = append(e.pending, t)
	return t.id
}

// NumTasks reports how many tasks have not yet completed.
func (e *NaiveExecutor) NumTasks() int { return len(e.pending) }

// Run polls every pending task on every round until all have completed.
func (e *NaiveExecutor) Run() {
	for len(e.pending) > 0 {
		next := e.pending[:0]
		for _, t := range e.pending {
			if !t.future.Poll(noopWaker{}) {
				next = append(next, t)
			}
		}
		e.pending = next
	}
}
