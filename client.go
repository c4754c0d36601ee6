package tsunami

import (
	"fmt"
	"net"
	"os"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/ttproto/tsunami/internal/bitmap"
	"github.com/ttproto/tsunami/internal/diskio"
	"github.com/ttproto/tsunami/internal/ring"
)

// defaultMaxBlocksQueued is the ring buffer's default capacity
// (spec.md §4.6, MAX_BLOCKS_QUEUED).
const defaultMaxBlocksQueued = 64

// Client is the top-level client-side facade, exposing the four
// procedures the out-of-scope CLI shell needs (spec.md §6): open a
// session, request a transfer, close the session, abandon a transfer.
//
// Grounded on gocanopen's Network (network.go), whose AddNode/Read/Write
// methods are the request-driven API shape a CLI builds on; Client does
// the analogous thing for Open/RequestFile/Close/Abandon.
type Client struct {
	control net.Conn
	session *Session

	mu       chan struct{} // 1-buffered mutex so Abandon can run from another goroutine
	transfer *activeTransfer
}

type activeTransfer struct {
	udpConn *net.UDPConn
	ring    *ring.Ring
	writer  *diskio.Writer
	writeCh chan error
}

// Open dials the server's control address and runs the handshake.
func Open(addr string, secret []byte) (*Client, error) {
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("tsunami: dialing %q: %w", addr, err)
	}
	session := NewSession()
	if err := session.HandshakeClient(conn, secret); err != nil {
		conn.Close()
		return nil, err
	}
	c := &Client{control: conn, session: session, mu: make(chan struct{}, 1)}
	c.mu <- struct{}{}
	return c, nil
}

// Close tears down the control session (spec.md §3, "destroyed by either
// side closing the stream").
func (c *Client) Close() error {
	return c.control.Close()
}

// RequestFile negotiates and runs one file transfer to localPath, blocking
// until the transfer completes or fails.
func (c *Client) RequestFile(remotePath, localPath string, params Params) error {
	udpConn, err := net.ListenUDP("udp", &net.UDPAddr{Port: 0})
	if err != nil {
		return fmt.Errorf("tsunami: opening udp socket: %w", err)
	}
	udpPort := uint16(udpConn.LocalAddr().(*net.UDPAddr).Port)

	meta, err := c.session.NegotiateFileClient(c.control, remotePath, params, udpPort)
	if err != nil {
		udpConn.Close()
		return err
	}

	out, err := os.OpenFile(localPath, os.O_CREATE|os.O_RDWR|os.O_TRUNC, 0o644)
	if err != nil {
		udpConn.Close()
		return fmt.Errorf("%w: %v", ErrFileOpenFailed, err)
	}
	if meta.Length > 0 {
		if err := out.Truncate(int64(meta.Length)); err != nil {
			out.Close()
			udpConn.Close()
			return fmt.Errorf("tsunami: preallocating %q: %w", localPath, err)
		}
	}

	n := meta.BlockCount()
	received := bitmap.New(n)
	r := ring.New(defaultMaxBlocksQueued, DatagramHeaderSize+int(meta.BlockSize))
	writer := diskio.New(out, meta.BlockSize, meta.Length, n, r, received)

	transfer := &activeTransfer{udpConn: udpConn, ring: r, writer: writer, writeCh: make(chan error, 1)}
	c.transfer = transfer

	go func() {
		transfer.writeCh <- writer.Run()
	}()

	recv := NewReceiver(udpConn, c.control, meta, params, received, r)
	start := time.Now()
	runErr := recv.Run(writer.BlocksLeft)

	writeErr := <-transfer.writeCh
	out.Close()
	udpConn.Close()
	c.transfer = nil

	if runErr != nil {
		return runErr
	}
	if writeErr != nil {
		return writeErr
	}

	elapsed := time.Since(start)
	log.Infof("[CLIENT][STATS] path=%q bytes=%d duration=%s throughput=%.2fMbit/s",
		remotePath, meta.Length, elapsed, float64(meta.Length)*8/elapsed.Seconds()/1e6)
	return nil
}

// Abandon cancels an in-progress transfer: closes the UDP socket, drains
// and closes the ring buffer, and signals the disk thread (spec.md §5,
// "Cancellation & timeout").
func (c *Client) Abandon() {
	t := c.transfer
	if t == nil {
		return
	}
	t.udpConn.Close()
	t.ring.Close()
}
