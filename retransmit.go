package tsunami

import "github.com/ttproto/tsunami/internal/bitmap"

// defaultRetransmitCapacity is the table's initial capacity; it grows by
// doubling when full (spec.md §4.4).
const defaultRetransmitCapacity = 2048

// maxRetransmitBuffer is the burst cap that triggers RESTART escalation
// (spec.md §4.4).
const maxRetransmitBuffer = defaultRetransmitCapacity

// RetransmitTable is the receiver-side ordered sequence of block indices
// pending re-request (spec.md §4.4). Grounded on gocanopen's Fifo
// (fifo.go) doubling/circular-buffer growth idiom, re-expressed over
// block indices rather than raw bytes since that's the unit this table
// actually queues.
type RetransmitTable struct {
	entries []uint32
}

// NewRetransmitTable creates an empty table with the default initial
// capacity.
func NewRetransmitTable() *RetransmitTable {
	return &RetransmitTable{entries: make([]uint32, 0, defaultRetransmitCapacity)}
}

// Len returns the number of entries currently queued.
func (t *RetransmitTable) Len() int { return len(t.entries) }

// Enqueue appends a block index to the table, growing capacity by
// doubling if needed.
func (t *RetransmitTable) Enqueue(blockIndex uint32) {
	if len(t.entries) == cap(t.entries) {
		grown := make([]uint32, len(t.entries), cap(t.entries)*2)
		copy(grown, t.entries)
		t.entries = grown
	}
	t.entries = append(t.entries, blockIndex)
}

// EnqueueRange enqueues every index in [from, to] inclusive, ascending,
// used for forward-gap detection (spec.md §4.3 step 4).
func (t *RetransmitTable) EnqueueRange(from, to uint32) {
	for k := from; k <= to; k++ {
		t.Enqueue(k)
	}
}

// Clear empties the table without shrinking its capacity.
func (t *RetransmitTable) Clear() {
	t.entries = t.entries[:0]
}

// First returns the table's first entry; callers must check Len() > 0.
func (t *RetransmitTable) First() uint32 {
	return t.entries[0]
}

// ClearBelow drops queued entries strictly less than k, used when a
// RESTART moves the cursor forward (spec.md §4.2 step 1).
func (t *RetransmitTable) ClearBelow(k uint32) {
	kept := t.entries[:0]
	for _, idx := range t.entries {
		if idx >= k {
			kept = append(kept, idx)
		}
	}
	t.entries = kept
}

// RetransmitDecision is the outcome of one emission cycle (spec.md §4.4).
// Restart signals that a wire RESTART record must be sent (overload
// escalation only). ResetCursor signals that the receiver must locally
// reset next_block/stats.total_blocks/stats.this_blocks to ResetTo, which
// happens both on overload escalation and in fire-and-forget mode (the
// latter sends a RETRANSMIT burst on the wire, not a RESTART record, but
// still resets its own cursor so it never blocks waiting on a block the
// sender may have silently discarded).
type RetransmitDecision struct {
	Restart      bool
	ResetCursor  bool
	ResetTo      uint32
	Retransmits  []uint32
}

// Emit implements spec.md §4.4's retransmit request emission procedure.
// received is consulted to compact the table (drop already-received
// entries); noRetransmit selects fire-and-forget mode.
func (t *RetransmitTable) Emit(received *bitmap.Bitmap, noRetransmit bool) RetransmitDecision {
	if t.Len() == 0 {
		return RetransmitDecision{}
	}

	// Overload escalation: table occupancy exceeds the burst cap.
	if t.Len() > maxRetransmitBuffer {
		first := t.First()
		t.Clear()
		return RetransmitDecision{Restart: true, ResetCursor: true, ResetTo: first}
	}

	if noRetransmit {
		// Fire-and-forget: emit the RETRANSMIT burst once (the sender
		// discards these per spec.md §4.2), then reset the cursor so the
		// receiver does not block on blocks the sender may silently drop.
		first := t.First()
		pending := make([]uint32, t.Len())
		copy(pending, t.entries)
		t.Clear()
		return RetransmitDecision{ResetCursor: true, ResetTo: first, Retransmits: pending}
	}

	// Normal case: compact in place, dropping already-received entries.
	kept := t.entries[:0]
	pending := make([]uint32, 0, t.Len())
	for _, idx := range t.entries {
		if !received.Test(idx) {
			kept = append(kept, idx)
			pending = append(pending, idx)
		}
	}
	t.entries = kept
	return RetransmitDecision{Retransmits: pending}
}
