package tsunami

import (
	"fmt"
	"io"
	"net"

	log "github.com/sirupsen/logrus"
)

// SenderState is the server-side transfer state machine (spec.md §4.8):
// NEGOTIATING -> FILE_OPENING -> TRANSFERRING -> {STOPPED, ABORTED}.
type SenderState int

const (
	SenderNegotiating SenderState = iota
	SenderFileOpening
	SenderTransferring
	SenderStopped
	SenderAborted
)

// Sender implements the rate-paced UDP block sender (spec.md §4.2, C5).
// Grounded on gocanopen's SDO client block-transfer send loop
// (sdo_client.go / pkg/sdo/download_block.go txDownloadBlockSubBlock):
// a cursor over a byte source, chunked into fixed-size units, paced by a
// per-unit delay, draining inbound protocol messages between sends.
type Sender struct {
	state  SenderState
	file   io.ReaderAt
	meta   FileMeta
	params Params
	pacer  *Pacer

	udpConn *net.UDPConn
	dataDst *net.UDPAddr

	control  net.Conn
	records  chan ControlRecord
	controlErr chan error

	block uint32 // 1-based cursor
	table *RetransmitTable

	datagramBuf []byte
}

// NewSender constructs a sender ready to transmit file against the given
// negotiated parameters and metadata. control is the TCP control
// connection (already past handshake); udpConn is a connected or
// unconnected UDP socket used to send datagrams to dataDst.
func NewSender(file io.ReaderAt, meta FileMeta, params Params, control net.Conn, udpConn *net.UDPConn, dataDst *net.UDPAddr) *Sender {
	return &Sender{
		state:       SenderFileOpening,
		file:        file,
		meta:        meta,
		params:      params,
		pacer:       NewPacer(params),
		udpConn:     udpConn,
		dataDst:     dataDst,
		control:     control,
		records:     make(chan ControlRecord, 64),
		controlErr:  make(chan error, 1),
		block:       1,
		table:       NewRetransmitTable(),
		datagramBuf: make([]byte, DatagramHeaderSize+int(meta.BlockSize)),
	}
}

// readControlRecords runs in its own goroutine, continuously decoding
// 12-byte control records off the TCP control channel and forwarding
// them on s.records. This satisfies spec.md §5's latency bound (ERROR_RATE/
// RESTART/RETRANSMIT observed within one IPD period) without making the
// main send loop block on control-channel reads.
func (s *Sender) readControlRecords() {
	buf := make([]byte, ControlRecordSize)
	for {
		if _, err := io.ReadFull(s.control, buf); err != nil {
			s.controlErr <- err
			close(s.records)
			return
		}
		rec, err := DecodeControlRecord(buf)
		if err != nil {
			s.controlErr <- err
			close(s.records)
			return
		}
		s.records <- rec
	}
}

// Run executes the sender loop until STOP is received, the control
// channel closes, or every block has been transmitted and acknowledged
// by the client abandoning/closing the channel (spec.md §4.2).
func (s *Sender) Run() error {
	s.state = SenderTransferring
	go s.readControlRecords()

	n := s.meta.BlockCount()
	for {
		if s.drainControlRecords() {
			s.state = SenderStopped
			return nil
		}
		select {
		case err := <-s.controlErr:
			if err == io.EOF {
				s.state = SenderStopped
				return nil
			}
			s.state = SenderAborted
			return fmt.Errorf("tsunami: control channel error: %w", err)
		default:
		}

		if s.block > n {
			// Last original block already sent; keep servicing the
			// retransmit stream and wait for STOP/closure (spec.md §4.2
			// step 3). A TERMINATE datagram nudges a lingering client.
			if n > 0 {
				s.sendDatagram(n, BlockTerminate, s.blockPayload(n))
			}
			if s.waitForStopOrClose() {
				s.state = SenderStopped
				return nil
			}
			continue
		}

		payload := s.blockPayload(s.block)
		s.sendDatagram(s.block, BlockOriginal, payload)
		log.Debugf("[SERVER][TX] ORIGINAL | block=%d/%d ipd=%dus", s.block, n, s.pacer.IPDCurrent())
		s.pacer.Sleep()
		s.block++
	}
}

// drainControlRecords non-blockingly processes every control record
// currently queued (spec.md §4.2 step 1). It returns true if a STOP was
// observed.
func (s *Sender) drainControlRecords() bool {
	for {
		select {
		case rec, ok := <-s.records:
			if !ok {
				return false
			}
			if s.handleRecord(rec) {
				return true
			}
		default:
			return false
		}
	}
}

// waitForStopOrClose blocks (via the records channel, fed by the reader
// goroutine) until STOP arrives or the control channel closes, servicing
// RETRANSMIT/ERROR_RATE/RESTART in the meantime. Returns true on STOP or
// channel closure.
func (s *Sender) waitForStopOrClose() bool {
	rec, ok := <-s.records
	if !ok {
		return true
	}
	return s.handleRecord(rec)
}

// handleRecord applies one control record per spec.md §4.2 step 1.
// Returns true iff it was a STOP.
func (s *Sender) handleRecord(rec ControlRecord) bool {
	switch rec.Type {
	case RequestStop:
		log.Debugf("[SERVER][RX] STOP")
		return true
	case RequestErrorRate:
		s.pacer.OnErrorRate(rec.ErrorRate)
		log.Debugf("[SERVER][RX] ERROR_RATE=%d -> ipd=%dus", rec.ErrorRate, s.pacer.IPDCurrent())
	case RequestRestart:
		n := s.meta.BlockCount()
		if rec.Block < 1 || rec.Block > n {
			log.Warnf("[SERVER][RX] RESTART out of range: %d (n=%d)", rec.Block, n)
			return false
		}
		s.block = rec.Block
		s.table.ClearBelow(rec.Block)
		log.Debugf("[SERVER][RX] RESTART -> block=%d", s.block)
	case RequestRetransmit:
		if s.params.NoRetransmit {
			return false
		}
		payload := s.blockPayload(rec.Block)
		if payload != nil {
			s.sendDatagram(rec.Block, BlockRetransmit, payload)
			log.Debugf("[SERVER][TX] RETRANSMIT | block=%d", rec.Block)
		}
	}
	return false
}

// blockPayload reads the block's bytes from the file (short for the
// final block, per spec.md §4.2 "Short last block").
func (s *Sender) blockPayload(blockIndex uint32) []byte {
	length := s.meta.BlockLength(blockIndex)
	if length == 0 {
		return nil
	}
	buf := make([]byte, length)
	offset := s.meta.Offset(blockIndex)
	if _, err := s.file.ReadAt(buf, offset); err != nil && err != io.EOF {
		log.Errorf("[SERVER] reading block %d at offset %d: %v", blockIndex, offset, err)
		return nil
	}
	return buf
}

// sendDatagram encodes and sends one UDP data-channel datagram. The
// datagram is always sent at full 6+B length; trailing bytes beyond a
// short payload are left as whatever was previously in datagramBuf
// (unspecified per spec.md §3, MUST be ignored by the receiver).
func (s *Sender) sendDatagram(blockIndex uint32, blockType BlockType, payload []byte) {
	n, err := EncodeDatagram(s.datagramBuf, blockIndex, blockType, payload)
	if err != nil {
		log.Errorf("[SERVER] encoding datagram for block %d: %v", blockIndex, err)
		return
	}
	full := s.datagramBuf[:DatagramHeaderSize+int(s.meta.BlockSize)]
	_ = n

	s.pacer.WaitGuard(len(payload)) // guard admits by block payload bytes, matching its configured burst

	var sendErr error
	if s.dataDst != nil {
		_, sendErr = s.udpConn.WriteToUDP(full, s.dataDst)
	} else {
		_, sendErr = s.udpConn.Write(full)
	}
	if sendErr != nil {
		log.Warnf("[SERVER][TX] udp send error block=%d: %v", blockIndex, sendErr)
	}
}
