package tsunami

import (
	"encoding/binary"
	"fmt"
)

// Block types carried on the data channel, 16-bit big-endian on the wire.
type BlockType uint16

const (
	BlockOriginal   BlockType = 1
	BlockRetransmit BlockType = 2
	BlockTerminate  BlockType = 3
)

func (t BlockType) String() string {
	switch t {
	case BlockOriginal:
		return "ORIGINAL"
	case BlockRetransmit:
		return "RETRANSMIT"
	case BlockTerminate:
		return "TERMINATE"
	default:
		return fmt.Sprintf("BlockType(%d)", uint16(t))
	}
}

// Request types carried on the control channel, 16-bit big-endian.
type RequestType uint16

const (
	RequestRetransmit RequestType = 0
	RequestRestart    RequestType = 1
	RequestStop       RequestType = 2
	RequestErrorRate  RequestType = 3
)

func (t RequestType) String() string {
	switch t {
	case RequestRetransmit:
		return "RETRANSMIT"
	case RequestRestart:
		return "RESTART"
	case RequestStop:
		return "STOP"
	case RequestErrorRate:
		return "ERROR_RATE"
	default:
		return fmt.Sprintf("RequestType(%d)", uint16(t))
	}
}

// DatagramHeaderSize is the fixed 6-byte header preceding every block
// payload: a u32 block index followed by a u16 block type.
const DatagramHeaderSize = 6

// ControlRecordSize is the fixed wire size of a receiver->sender control
// record: request_type (u16), block (u32), error_rate (u32), 2 bytes padding.
const ControlRecordSize = 12

// Datagram is a decoded UDP data-channel packet. Payload aliases into the
// caller's buffer; it is not copied by decode.
type Datagram struct {
	BlockIndex uint32
	BlockType  BlockType
	Payload    []byte
}

// EncodeDatagram writes a wire-format datagram into dst, which must be at
// least DatagramHeaderSize+len(payload) bytes (normally DatagramHeaderSize+B).
// Trailing bytes of dst beyond the supplied payload are left untouched, per
// spec: the final block's trailing bytes are unspecified and ignored by
// the receiver.
func EncodeDatagram(dst []byte, blockIndex uint32, blockType BlockType, payload []byte) (int, error) {
	if len(dst) < DatagramHeaderSize+len(payload) {
		return 0, fmt.Errorf("tsunami: datagram buffer too small: have %d need %d", len(dst), DatagramHeaderSize+len(payload))
	}
	binary.BigEndian.PutUint32(dst[0:4], blockIndex)
	binary.BigEndian.PutUint16(dst[4:6], uint16(blockType))
	n := copy(dst[DatagramHeaderSize:], payload)
	return DatagramHeaderSize + n, nil
}

// DecodeDatagram parses the fixed 6-byte header of a received datagram. The
// returned Payload aliases buf[6:] verbatim — callers that need the exact
// useful length for a short final block must consult FileMeta separately;
// the wire datagram itself is always a fixed B-byte payload region.
func DecodeDatagram(buf []byte) (Datagram, error) {
	if len(buf) < DatagramHeaderSize {
		return Datagram{}, fmt.Errorf("tsunami: short datagram: %d bytes", len(buf))
	}
	return Datagram{
		BlockIndex: binary.BigEndian.Uint32(buf[0:4]),
		BlockType:  BlockType(binary.BigEndian.Uint16(buf[4:6])),
		Payload:    buf[DatagramHeaderSize:],
	}, nil
}

// ControlRecord is a decoded 12-byte receiver->sender control message.
type ControlRecord struct {
	Type      RequestType
	Block     uint32
	ErrorRate uint32
}

// Encode writes the control record in its 12-byte wire layout.
func (r ControlRecord) Encode(dst []byte) error {
	if len(dst) < ControlRecordSize {
		return fmt.Errorf("tsunami: control record buffer too small: have %d need %d", len(dst), ControlRecordSize)
	}
	binary.BigEndian.PutUint16(dst[0:2], uint16(r.Type))
	binary.BigEndian.PutUint32(dst[2:6], r.Block)
	binary.BigEndian.PutUint32(dst[6:10], r.ErrorRate)
	dst[10] = 0
	dst[11] = 0
	return nil
}

// DecodeControlRecord parses one 12-byte control record.
func DecodeControlRecord(buf []byte) (ControlRecord, error) {
	if len(buf) < ControlRecordSize {
		return ControlRecord{}, fmt.Errorf("tsunami: short control record: %d bytes", len(buf))
	}
	return ControlRecord{
		Type:      RequestType(binary.BigEndian.Uint16(buf[0:2])),
		Block:     binary.BigEndian.Uint32(buf[2:6]),
		ErrorRate: binary.BigEndian.Uint32(buf[6:10]),
	}, nil
}
