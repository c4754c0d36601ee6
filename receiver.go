package tsunami

import (
	"errors"
	"fmt"
	"net"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/ttproto/tsunami/internal/bitmap"
	"github.com/ttproto/tsunami/internal/ring"
)

// ReceiverState is the client-side transfer state machine (spec.md §4.8):
// NEGOTIATING -> REQUESTING -> RECEIVING -> {COMPLETED, ABORTED}.
type ReceiverState int

const (
	ReceiverNegotiating ReceiverState = iota
	ReceiverRequesting
	ReceiverReceiving
	ReceiverCompleted
	ReceiverAborted
)

// Receiver implements the client-side loss-detection and retransmission
// engine (spec.md §4.3, C6). It owns the UDP socket and publishes admitted
// datagrams to a ring buffer consumed by a concurrent disk writer.
//
// Grounded on gocanopen's pkg/sdo/download_block.go rxDownloadBlockSubBlock:
// sequence-number gap/duplicate classification against a running cursor,
// re-targeted here from a 7-bit CAN sub-block sequence number to a 32-bit
// wire block index, and from a CRC-guarded byte stream to whole
// fixed-size datagrams queued on a ring.
type Receiver struct {
	State ReceiverState

	udpConn *net.UDPConn
	control net.Conn

	meta   FileMeta
	params Params

	nextBlock uint32
	received  *bitmap.Bitmap

	table *RetransmitTable
	stats *Stats

	ring *ring.Ring

	iteration int
}

// NewReceiver constructs a receiver for a negotiated transfer. received
// and the blocks-left accounting are shared with the disk writer via the
// bitmap package and the ring's consumer (internal/diskio.Writer owns the
// authoritative blocksLeft counter; the receiver consults it through
// BlocksLeftFunc).
func NewReceiver(udpConn *net.UDPConn, control net.Conn, meta FileMeta, params Params, received *bitmap.Bitmap, r *ring.Ring) *Receiver {
	return &Receiver{
		State:      ReceiverReceiving,
		udpConn:    udpConn,
		control:    control,
		meta:       meta,
		params:     params,
		nextBlock:  1,
		received:   received,
		table:     NewRetransmitTable(),
		stats:     NewStats(params.HistoryWeight),
		ring:      r,
	}
}

// BlocksLeftFunc is supplied by the caller (the Client facade), wired to
// the disk writer's authoritative counter.
type BlocksLeftFunc func() int64

// Run executes the receiver loop until the transfer completes or aborts.
// blocksLeft reports the disk writer's live blocks-left counter.
func (r *Receiver) Run(blocksLeft BlocksLeftFunc) error {
	n := r.meta.BlockCount()
	if n == 0 {
		// L=0 boundary (SPEC_FULL §12 item 4): trivially complete.
		r.State = ReceiverCompleted
		r.ring.Close()
		return nil
	}

	staging := make([]byte, DatagramHeaderSize+int(r.meta.BlockSize))
	for {
		nRead, _, err := r.udpConn.ReadFromUDP(staging)
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				// A closed socket (e.g. Client.Abandon) is not transient:
				// end the transfer and release the disk writer.
				r.State = ReceiverAborted
				r.ring.Close()
				return fmt.Errorf("%w: %v", ErrDataClosed, err)
			}
			// Transient UDP errors: re-emit pending retransmits, log,
			// keep going (spec.md §4.3 step 1, §4.8 "Failure semantics").
			log.Warnf("[CLIENT][RX] udp read error: %v", err)
			r.emitRetransmits(blocksLeft)
			continue
		}

		dg, err := DecodeDatagram(staging[:nRead])
		if err != nil {
			log.Warnf("[CLIENT][RX] malformed datagram: %v", err)
			continue
		}
		if dg.BlockIndex == 0 {
			log.Errorf("[CLIENT][RX] %v", ErrZeroBlockIndex)
			continue
		}

		if r.received.Test(dg.BlockIndex) && dg.BlockType != BlockTerminate {
			continue // already accepted; drop (dedup)
		}

		if err := r.admit(dg); err != nil {
			return err
		}

		if dg.BlockType == BlockOriginal && dg.BlockIndex > r.nextBlock {
			if !r.params.NoRetransmit {
				r.table.EnqueueRange(r.nextBlock, dg.BlockIndex-1)
			}
		}

		if dg.BlockType == BlockOriginal {
			r.nextBlock = dg.BlockIndex + 1
			r.stats.RecordAccepted(dg.BlockIndex)
		}

		if dg.BlockIndex >= n || dg.BlockType == BlockTerminate {
			if blocksLeft() == 0 || r.params.NoRetransmit {
				r.State = ReceiverCompleted
				r.sendStop()
				r.ring.Close()
				return nil
			}
			r.emitRetransmits(blocksLeft)
		}

		r.iteration++
		if r.iteration%MaintenanceInterval == 0 {
			now := time.Now()
			if r.stats.ShouldMaintain(now) {
				r.emitRetransmits(blocksLeft)
				r.stats.Tick(now)
			}
		}
	}
}

// admit reserves a ring slot, copies the staging bytes, and confirms it
// for the disk writer (spec.md §4.3 step 3).
func (r *Receiver) admit(dg Datagram) error {
	slot, err := r.ring.Reserve()
	if err != nil {
		return fmt.Errorf("tsunami: ring reserve: %w", err)
	}
	full := DatagramHeaderSize + len(dg.Payload)
	if cap(slot.Data) < full {
		return fmt.Errorf("tsunami: ring slot too small for datagram")
	}
	EncodeDatagram(slot.Data, dg.BlockIndex, dg.BlockType, dg.Payload) //nolint:errcheck
	slot.SetLen(full)
	r.ring.Confirm(slot)
	return nil
}

// emitRetransmits runs the retransmit request emission procedure
// (spec.md §4.4) and writes the resulting control records to the control
// channel as one contiguous burst.
func (r *Receiver) emitRetransmits(blocksLeft BlocksLeftFunc) {
	decision := r.table.Emit(r.received, r.params.NoRetransmit)

	buf := make([]byte, 0, ControlRecordSize*(len(decision.Retransmits)+1))
	rec := make([]byte, ControlRecordSize)

	if decision.Restart {
		ControlRecord{Type: RequestRestart, Block: decision.ResetTo}.Encode(rec) //nolint:errcheck
		buf = append(buf, rec...)
	}
	for _, blk := range decision.Retransmits {
		ControlRecord{Type: RequestRetransmit, Block: blk}.Encode(rec) //nolint:errcheck
		buf = append(buf, rec...)
	}
	if len(buf) > 0 {
		if _, err := r.control.Write(buf); err != nil {
			log.Warnf("[CLIENT][TX] control write error: %v", err)
		}
	}
	if decision.ResetCursor {
		r.nextBlock = decision.ResetTo
		r.stats.ResetTo(decision.ResetTo)
		log.Debugf("[CLIENT] cursor reset to block=%d", decision.ResetTo)
	}
}

// sendStop writes a single STOP control record, ending the server's
// sender loop (spec.md §4.8).
func (r *Receiver) sendStop() {
	rec := make([]byte, ControlRecordSize)
	ControlRecord{Type: RequestStop}.Encode(rec) //nolint:errcheck
	if _, err := r.control.Write(rec); err != nil {
		log.Warnf("[CLIENT][TX] STOP write error: %v", err)
	}
}

// SendErrorRate writes an ERROR_RATE control record reporting the current
// EWMA estimate (spec.md §4.5). Neither Run nor the Client facade calls it,
// so no ERROR_RATE records are sent during a transfer unless a caller
// invokes it.
func (r *Receiver) SendErrorRate() {
	rec := make([]byte, ControlRecordSize)
	ControlRecord{Type: RequestErrorRate, ErrorRate: r.stats.ErrorRate()}.Encode(rec) //nolint:errcheck
	if _, err := r.control.Write(rec); err != nil {
		log.Warnf("[CLIENT][TX] ERROR_RATE write error: %v", err)
	}
}
