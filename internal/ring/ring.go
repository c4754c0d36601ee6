// Package ring implements the bounded single-producer/single-consumer
// datagram queue described in spec.md §4.6, shared by the receiver's
// network loop (producer) and the disk writer (consumer).
//
// Grounded on gocanopen's Fifo (fifo.go): a fixed-capacity, preallocated
// circular buffer. That Fifo streams raw bytes; this Ring streams whole
// fixed-size datagram slots, and — per spec.md §9's DESIGN NOTES — replaces
// the sentinel block-index-0 termination convention with an explicit
// Close() so that a genuine index-0 datagram arriving off the wire can be
// treated strictly as an invariant violation rather than a shutdown signal.
package ring

import (
	"errors"
	"sync"
)

// ErrClosed is returned by Reserve and Peek once the ring has been closed
// and drained.
var ErrClosed = errors.New("ring: closed")

// Slot is one fixed-size datagram buffer owned by the ring.
type Slot struct {
	Data []byte
	n    int // valid bytes in Data, set by the producer before Confirm
}

// Bytes returns the valid portion of the slot as filled by the producer.
func (s *Slot) Bytes() []byte { return s.Data[:s.n] }

// SetLen records how many bytes of Data are valid. Called by the producer
// between Reserve and Confirm.
func (s *Slot) SetLen(n int) { s.n = n }

// Ring is a bounded queue of *Slot. Capacity is fixed at construction
// (default MAX_BLOCKS_QUEUED-equivalent, chosen by the caller).
type Ring struct {
	slotSize int

	mu     sync.Mutex
	cond   *sync.Cond
	free   []*Slot // available for Reserve
	filled []*Slot // confirmed, awaiting Peek/Pop
	closed bool
}

// New creates a ring with the given capacity (number of slots) and slot
// byte size (6+B, per spec.md §4.6).
func New(capacity int, slotSize int) *Ring {
	r := &Ring{slotSize: slotSize}
	r.cond = sync.NewCond(&r.mu)
	r.free = make([]*Slot, 0, capacity)
	for i := 0; i < capacity; i++ {
		r.free = append(r.free, &Slot{Data: make([]byte, slotSize)})
	}
	return r
}

// Reserve blocks until a free slot is available (or the ring is closed) and
// returns it for the producer to fill. The slot is not yet visible to the
// consumer until Confirm is called.
func (r *Ring) Reserve() (*Slot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for len(r.free) == 0 && !r.closed {
		r.cond.Wait()
	}
	if r.closed && len(r.free) == 0 {
		return nil, ErrClosed
	}
	last := len(r.free) - 1
	s := r.free[last]
	r.free = r.free[:last]
	return s, nil
}

// Confirm publishes a previously reserved slot to the consumer, in arrival
// order — the ring preserves FIFO order among confirmed slots (spec.md §5,
// "ring buffer preserves the arrival order of admitted datagrams").
func (r *Ring) Confirm(s *Slot) {
	r.mu.Lock()
	r.filled = append(r.filled, s)
	r.mu.Unlock()
	r.cond.Broadcast()
}

// Peek blocks until the oldest confirmed-but-unconsumed slot is available
// (or the ring is closed and drained) and returns it without releasing it.
func (r *Ring) Peek() (*Slot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for len(r.filled) == 0 && !r.closed {
		r.cond.Wait()
	}
	if len(r.filled) == 0 {
		return nil, ErrClosed
	}
	return r.filled[0], nil
}

// Pop releases the oldest confirmed slot back to the free pool, making it
// available for a future Reserve.
func (r *Ring) Pop() {
	r.mu.Lock()
	if len(r.filled) > 0 {
		s := r.filled[0]
		r.filled = r.filled[1:]
		r.free = append(r.free, s)
	}
	r.mu.Unlock()
	r.cond.Broadcast()
}

// Depth returns the current fill-depth (confirmed, unconsumed slots),
// observable for telemetry (spec.md §4.6). The receiver does not feed it
// into the Stats error-rate estimate.
func (r *Ring) Depth() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.filled)
}

// Capacity returns the total number of slots the ring was constructed with.
func (r *Ring) Capacity() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	// free was allocated with the full capacity and never holds more than
	// that, so its cap stays fixed even while slots are reserved or filled.
	return cap(r.free)
}

// Close signals that no further slots will be reserved. Blocked Reserve
// calls wake and fail with ErrClosed once the free list is exhausted;
// blocked Peek calls wake and fail with ErrClosed once all confirmed
// slots have been drained by the consumer. Pop never blocks.
func (r *Ring) Close() {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()
	r.cond.Broadcast()
}
