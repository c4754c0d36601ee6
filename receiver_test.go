package tsunami

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ttproto/tsunami/internal/bitmap"
	"github.com/ttproto/tsunami/internal/ring"
)

func newTestReceiver(t *testing.T, meta FileMeta) (*Receiver, *net.UDPConn, net.Conn) {
	t.Helper()
	recvConn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.ParseIP("127.0.0.1")})
	require.NoError(t, err)

	controlRecv, controlTest := net.Pipe()

	received := bitmap.New(meta.BlockCount())
	r := ring.New(8, DatagramHeaderSize+int(meta.BlockSize))
	recv := NewReceiver(recvConn, controlRecv, meta, NewDefaultParams(), received, r)
	return recv, recvConn, controlTest
}

func sendBlock(t *testing.T, dst *net.UDPAddr, blockIndex uint32, blockType BlockType, payload []byte) {
	t.Helper()
	conn, err := net.DialUDP("udp", nil, dst)
	require.NoError(t, err)
	defer conn.Close()
	buf := make([]byte, DatagramHeaderSize+len(payload))
	_, err = EncodeDatagram(buf, blockIndex, blockType, payload)
	require.NoError(t, err)
	_, err = conn.Write(buf)
	require.NoError(t, err)
}

func readControlRecord(t *testing.T, conn net.Conn) ControlRecord {
	t.Helper()
	buf := make([]byte, ControlRecordSize)
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, err := readFull(conn, buf)
	require.NoError(t, err)
	rec, err := DecodeControlRecord(buf)
	require.NoError(t, err)
	return rec
}

func readFull(conn net.Conn, buf []byte) (int, error) {
	total := 0
	for total < len(buf) {
		n, err := conn.Read(buf[total:])
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

func TestReceiverZeroBlockFileCompletesImmediately(t *testing.T) {
	meta := FileMeta{Length: 0, BlockSize: 4}
	recv, recvConn, _ := newTestReceiver(t, meta)
	defer recvConn.Close()

	err := recv.Run(func() int64 { return 0 })
	require.NoError(t, err)
	assert.Equal(t, ReceiverCompleted, recv.State)
}

func TestReceiverHappyPathSendsStopOnCompletion(t *testing.T) {
	meta := FileMeta{Length: 10, BlockSize: 4} // 3 blocks
	recv, recvConn, controlTest := newTestReceiver(t, meta)
	defer recvConn.Close()
	defer controlTest.Close()

	done := make(chan error, 1)
	go func() { done <- recv.Run(func() int64 { return 0 }) }()

	dst := recvConn.LocalAddr().(*net.UDPAddr)
	sendBlock(t, dst, 1, BlockOriginal, []byte("AAAA"))
	sendBlock(t, dst, 2, BlockOriginal, []byte("BBBB"))
	sendBlock(t, dst, 3, BlockOriginal, []byte("CC"))

	rec := readControlRecord(t, controlTest)
	assert.Equal(t, RequestStop, rec.Type)

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("receiver did not complete")
	}
	assert.Equal(t, ReceiverCompleted, recv.State)
}

func TestReceiverEnqueuesRetransmitOnGap(t *testing.T) {
	meta := FileMeta{Length: 10, BlockSize: 4} // 3 blocks
	recv, recvConn, controlTest := newTestReceiver(t, meta)
	defer recvConn.Close()
	defer controlTest.Close()

	done := make(chan error, 1)
	go func() { done <- recv.Run(func() int64 { return 1 }) }()

	dst := recvConn.LocalAddr().(*net.UDPAddr)
	sendBlock(t, dst, 1, BlockOriginal, []byte("AAAA"))
	// block 2 lost
	sendBlock(t, dst, 3, BlockOriginal, []byte("CC"))

	rec := readControlRecord(t, controlTest)
	assert.Equal(t, RequestRetransmit, rec.Type)
	assert.EqualValues(t, 2, rec.Block)

	recvConn.Close()
	controlTest.Close()
	<-done
}
