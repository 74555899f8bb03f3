// Package keyboard implements the scancode stream (spec C8): a lock-free
// bridge between the keyboard IRQ handler and exactly one consumer task.
// The producer side must never allocate or block, since it runs with
// interrupts off inside the dispatcher; the consumer side is a task.Future
// with the classic check-register-recheck shape needed to avoid a lost
// wakeup between the producer's push and the consumer's registration.
package keyboard

import (
	"duskos/kernel/task"
	"sync/atomic"
)

// ringCapacity is the scancode ring's fixed capacity, per spec §4.8.
const ringCapacity = 100

// Stream is the process-wide scancode source: a bounded byte ring plus a
// single registered waker. It is lazily constructed (see Init/Get) exactly
// like the teacher's package-level device singletons, since there is
// exactly one keyboard and exactly one consumer in this kernel.
type Stream struct {
	buf        [ringCapacity]byte
	rIndex     uint64
	wIndex     uint64
	waker      atomic.Value // stores *wakerBox; boxed so a cleared waker can still be stored as a consistent concrete type
	overflowed uint64       // count of bytes dropped due to a full ring; diagnostic only
}

// wakerBox lets a nil waker be stored in an atomic.Value, which panics on a
// bare nil interface but accepts a consistently-typed pointer wrapping one.
type wakerBox struct {
	w task.Waker
}

var stream *Stream

// Init installs the process-wide Stream, replacing any previous one. It is
// meant to be called exactly once at boot, before interrupts are enabled.
func Init() *Stream {
	stream = &Stream{}
	return stream
}

// Get returns the process-wide Stream, or nil if Init has not run yet. The
// IRQ handler must tolerate a nil Stream (interrupts can in principle fire
// before Init, though the boot sequence is written to avoid it).
func Get() *Stream {
	return stream
}

// Push is called from keyboard IRQ context: it enqueues b, drops it if the
// ring is full (a documented loss policy rather than a fatal condition, since
// blocking or growing the heap from interrupt context is not an option), and
// then wakes the registered consumer, if any. Push performs no allocation.
func (s *Stream) Push(b byte) {
	w := atomic.LoadUint64(&s.wIndex)
	r := atomic.LoadUint64(&s.rIndex)
	if w-r >= ringCapacity {
		atomic.AddUint64(&s.overflowed, 1)
		return
	}
	s.buf[w%ringCapacity] = b
	atomic.StoreUint64(&s.wIndex, w+1)

	if box, ok := s.waker.Load().(*wakerBox); ok && box != nil && box.w != nil {
		box.w.Wake()
	}
}

// Overflowed reports how many scancodes have been dropped because the ring
// was full when Push ran.
func (s *Stream) Overflowed() uint64 {
	return atomic.LoadUint64(&s.overflowed)
}

// tryPop removes and returns the oldest byte, or reports false if empty.
func (s *Stream) tryPop() (byte, bool) {
	r := atomic.LoadUint64(&s.rIndex)
	w := atomic.LoadUint64(&s.wIndex)
	if r == w {
		return 0, false
	}
	b := s.buf[r%ringCapacity]
	atomic.StoreUint64(&s.rIndex, r+1)
	return b, true
}

// Next is a task.Future that resolves once to the next available scancode
// byte, then reports itself complete; Result holds the byte once Poll has
// returned true. A task that wants a continuous stream spawns a fresh Next
// each time (see Chars in consumer.go).
type Next struct {
	Result byte
	s      *Stream
}

// NextScancode returns a Future that yields the next byte from s.
func NextScancode(s *Stream) *Next {
	return &Next{s: s}
}

// Poll implements task.Future. It first tries a fast-path pop; if the ring
// is empty, it registers w as the stream's waker and retries once more
// before reporting pending. The second try is required: a scancode can
// arrive between the fast-path miss and the registration, and without the
// recheck that wakeup would be lost forever (the producer only wakes
// whatever waker was registered at the moment it ran).
func (n *Next) Poll(w task.Waker) bool {
	if b, ok := n.s.tryPop(); ok {
		n.Result = b
		return true
	}

	n.s.waker.Store(&wakerBox{w: w})

	if b, ok := n.s.tryPop(); ok {
		n.s.waker.Store(&wakerBox{})
		n.Result = b
		return true
	}
	return false
}
