package task

import "sync/atomic"

// readyQueue is a bounded, lock-free queue of task ids: the classic
// sequence-counted ring (each slot carries its own publication sequence
// number instead of a single shared head/tail pair) so that multiple
// producers — wakers firing from interrupt context and from other tasks —
// can push concurrently without a spinlock, while the executor pops as the
// sole consumer.
type readyQueue struct {
	capacity uint64
	mask     uint64
	slots    []queueSlot
	enqPos   uint64
	deqPos   uint64
}

type queueSlot struct {
	seq uint64
	val uint64
}

// newReadyQueue builds a queue with room for capacity entries, which must be
// a power of two.
func newReadyQueue(capacity uint64) *readyQueue {
	q := &readyQueue{
		capacity: capacity,
		mask:     capacity - 1,
		slots:    make([]queueSlot, capacity),
	}
	for i := range q.slots {
		q.slots[i].seq = uint64(i)
	}
	return q
}

// push enqueues id, returning false if the queue is full. Safe for any
// number of concurrent callers.
func (q *readyQueue) push(id uint64) bool {
	for {
		pos := atomic.LoadUint64(&q.enqPos)
		slot := &q.slots[pos&q.mask]
		seq := atomic.LoadUint64(&slot.seq)

		diff := int64(seq) - int64(pos)
		switch {
		case diff == 0:
			// A capacity-1 ring passes the sequence check even when its
			// only slot is occupied, so fullness is also checked directly.
			if pos-atomic.LoadUint64(&q.deqPos) >= q.capacity {
				return false // full
			}
			if atomic.CompareAndSwapUint64(&q.enqPos, pos, pos+1) {
				slot.val = id
				atomic.StoreUint64(&slot.seq, pos+1)
				return true
			}
		case diff < 0:
			return false // full
		default:
			// another producer has already claimed this slot; retry
		}
	}
}

// pop dequeues the oldest id, returning false if the queue is empty. Only
// the executor itself is expected to call pop.
func (q *readyQueue) pop() (uint64, bool) {
	for {
		pos := atomic.LoadUint64(&q.deqPos)
		slot := &q.slots[pos&q.mask]
		seq := atomic.LoadUint64(&slot.seq)

		diff := int64(seq) - int64(pos+1)
		switch {
		case diff == 0:
			if atomic.CompareAndSwapUint64(&q.deqPos, pos, pos+1) {
				val := slot.val
				atomic.StoreUint64(&slot.seq, pos+q.capacity)
				return val, true
			}
		case diff < 0:
			return 0, false // empty
		default:
			// a concurrent pop is mid-flight; retry
		}
	}
}

// empty is a non-destructive check used by the idle-halt race check: it must
// be safe to call with interrupts disabled and must not itself suspend.
func (q *readyQueue) empty() bool {
	pos := atomic.LoadUint64(&q.deqPos)
	slot := &q.slots[pos&q.mask]
	seq := atomic.LoadUint64(&slot.seq)
	return int64(seq)-int64(pos+1) < 0
}
