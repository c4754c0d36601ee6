package tsunami

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"strings"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

// SessionState tracks the control session's handshake lifecycle
// (spec.md §3, "Lifecycles").
type SessionState int

const (
	SessionNegotiating SessionState = iota
	SessionAuthenticated
	SessionClosed
)

// Session wraps the control channel's handshake (spec.md §4.1), shared by
// both Server and Client facades. Grounded on gocanopen's bus_manager.go
// (a thin struct wrapping the transport plus session-scoped state) and
// sdo_client.go's explicit state field.
//
// Each Session carries a google/uuid-tagged SessionID used only in log
// fields (SPEC_FULL §3); it never appears on the wire.
type Session struct {
	ID    uuid.UUID
	State SessionState
}

// NewSession creates a session handle with a fresh correlation ID.
func NewSession() *Session {
	return &Session{ID: uuid.New(), State: SessionNegotiating}
}

// writeU32 / readU32 etc. are small big-endian wire helpers; per spec.md §9
// DESIGN NOTES these are explicit encode/decode calls, never aliased
// pointer access over a buffer.

func writeU16(w io.Writer, v uint16) error { return binary.Write(w, binary.BigEndian, v) }
func writeU32(w io.Writer, v uint32) error { return binary.Write(w, binary.BigEndian, v) }
func writeU64(w io.Writer, v uint64) error { return binary.Write(w, binary.BigEndian, v) }

func readU16(r io.Reader) (uint16, error) {
	var v uint16
	err := binary.Read(r, binary.BigEndian, &v)
	return v, err
}
func readU32(r io.Reader) (uint32, error) {
	var v uint32
	err := binary.Read(r, binary.BigEndian, &v)
	return v, err
}
func readU64(r io.Reader) (uint64, error) {
	var v uint64
	err := binary.Read(r, binary.BigEndian, &v)
	return v, err
}

// HandshakeServer executes the server side of version negotiation and
// challenge-response authentication (spec.md §4.1 steps 1-2). secret is
// zeroed before returning, on every path (SPEC_FULL §11).
func (s *Session) HandshakeServer(rw io.ReadWriter, secret []byte) error {
	defer ZeroSecret(secret)

	if err := writeU32(rw, ProtocolRevision); err != nil {
		return fmt.Errorf("tsunami: sending protocol revision: %w", err)
	}
	clientRev, err := readU32(rw)
	if err != nil {
		return fmt.Errorf("tsunami: reading client protocol revision: %w", err)
	}
	if clientRev != ProtocolRevision {
		return fmt.Errorf("%w: server=%#x client=%#x", ErrVersionMismatch, ProtocolRevision, clientRev)
	}

	challenge, err := GenerateChallenge()
	if err != nil {
		return err
	}
	if _, err := rw.Write(challenge[:]); err != nil {
		return fmt.Errorf("tsunami: sending challenge: %w", err)
	}

	var clientDigest [DigestSize]byte
	if _, err := io.ReadFull(rw, clientDigest[:]); err != nil {
		return fmt.Errorf("tsunami: reading client digest: %w", err)
	}
	expected := ComputeDigest(challenge, secret)

	if !DigestsEqual(expected, clientDigest) {
		_, _ = rw.Write([]byte{1})
		log.Warnf("[SERVER][AUTH] session=%s authentication failed", s.ID)
		return ErrAuthFailed
	}
	if _, err := rw.Write([]byte{0}); err != nil {
		return fmt.Errorf("tsunami: sending auth status: %w", err)
	}
	s.State = SessionAuthenticated
	log.Debugf("[SERVER][AUTH] session=%s authenticated", s.ID)
	return nil
}

// HandshakeClient executes the client side of version negotiation and
// challenge-response authentication.
func (s *Session) HandshakeClient(rw io.ReadWriter, secret []byte) error {
	defer ZeroSecret(secret)

	serverRev, err := readU32(rw)
	if err != nil {
		return fmt.Errorf("tsunami: reading server protocol revision: %w", err)
	}
	if err := writeU32(rw, ProtocolRevision); err != nil {
		return fmt.Errorf("tsunami: sending protocol revision: %w", err)
	}
	if serverRev != ProtocolRevision {
		return fmt.Errorf("%w: client=%#x server=%#x", ErrVersionMismatch, ProtocolRevision, serverRev)
	}

	var challenge [ChallengeSize]byte
	if _, err := io.ReadFull(rw, challenge[:]); err != nil {
		return fmt.Errorf("tsunami: reading challenge: %w", err)
	}
	digest := ComputeDigest(challenge, secret)
	if _, err := rw.Write(digest[:]); err != nil {
		return fmt.Errorf("tsunami: sending digest: %w", err)
	}

	status := make([]byte, 1)
	if _, err := io.ReadFull(rw, status); err != nil {
		return fmt.Errorf("tsunami: reading auth status: %w", err)
	}
	if status[0] != 0 {
		return ErrAuthFailed
	}
	s.State = SessionAuthenticated
	return nil
}

// NegotiateFileClient executes the client side of the per-transfer file
// open dialog (spec.md §4.1 step 3). udpPort is the port the client's
// receiver is already listening on. Returns the server-reported FileMeta.
func (s *Session) NegotiateFileClient(rw io.ReadWriter, path string, params Params, udpPort uint16) (FileMeta, error) {
	if _, err := io.WriteString(rw, path+"\n"); err != nil {
		return FileMeta{}, fmt.Errorf("tsunami: sending file path: %w", err)
	}
	status := make([]byte, 1)
	if _, err := io.ReadFull(rw, status); err != nil {
		return FileMeta{}, fmt.Errorf("tsunami: reading open status: %w", err)
	}
	if status[0] != 0 {
		return FileMeta{}, fmt.Errorf("%w: %q", ErrFileNotFound, path)
	}

	if err := writeU32(rw, params.BlockSize); err != nil {
		return FileMeta{}, err
	}
	if err := writeU32(rw, params.TargetRate); err != nil {
		return FileMeta{}, err
	}
	if err := writeU32(rw, params.ErrorRate); err != nil {
		return FileMeta{}, err
	}
	if err := writeU16(rw, params.SlowerNum); err != nil {
		return FileMeta{}, err
	}
	if err := writeU16(rw, params.SlowerDen); err != nil {
		return FileMeta{}, err
	}
	if err := writeU16(rw, params.FasterNum); err != nil {
		return FileMeta{}, err
	}
	if err := writeU16(rw, params.FasterDen); err != nil {
		return FileMeta{}, err
	}

	fileSize, err := readU64(rw)
	if err != nil {
		return FileMeta{}, fmt.Errorf("tsunami: reading file size: %w", err)
	}
	blockSizeEcho, err := readU32(rw)
	if err != nil {
		return FileMeta{}, fmt.Errorf("tsunami: reading block size echo: %w", err)
	}
	if blockSizeEcho != params.BlockSize {
		return FileMeta{}, fmt.Errorf("%w: requested %d got %d", ErrBlockSizeMismatch, params.BlockSize, blockSizeEcho)
	}
	if _, err := readU32(rw); err != nil { // block_count, recomputed client-side from FileMeta
		return FileMeta{}, fmt.Errorf("tsunami: reading block count: %w", err)
	}
	epoch, err := readU32(rw)
	if err != nil {
		return FileMeta{}, fmt.Errorf("tsunami: reading epoch: %w", err)
	}

	if err := writeU16(rw, udpPort); err != nil {
		return FileMeta{}, fmt.Errorf("tsunami: sending udp port: %w", err)
	}

	return FileMeta{Length: fileSize, BlockSize: blockSizeEcho, Epoch: epoch}, nil
}

// ServerFileOpenResult is what NegotiateFileServer hands back to the
// caller once a file has been accepted and parameters exchanged.
type ServerFileOpenResult struct {
	Path     string
	Params   Params
	Meta     FileMeta
	UDPPort  uint16
}

// NegotiateFileServer executes the server side of the file open dialog.
// resolve is called with the requested path and must return the file's
// length in bytes, or a non-nil error if the file should be rejected
// (e.g. not found) — the server reports that as a non-zero status byte
// rather than tearing down the session (spec.md §4.8 "Failure semantics").
func (s *Session) NegotiateFileServer(rw io.ReadWriter, epochFunc func() uint32, resolve func(path string) (uint64, error)) (ServerFileOpenResult, error) {
	br := bufio.NewReader(rw)
	line, err := br.ReadString('\n')
	if err != nil {
		return ServerFileOpenResult{}, fmt.Errorf("tsunami: reading file path: %w", err)
	}
	path := strings.TrimRight(line, "\r\n")

	length, resolveErr := resolve(path)
	if resolveErr != nil {
		if _, err := rw.Write([]byte{1}); err != nil {
			return ServerFileOpenResult{}, fmt.Errorf("tsunami: sending reject status: %w", err)
		}
		return ServerFileOpenResult{}, fmt.Errorf("%w: %q: %v", ErrFileNotFound, path, resolveErr)
	}
	if _, err := rw.Write([]byte{0}); err != nil {
		return ServerFileOpenResult{}, fmt.Errorf("tsunami: sending accept status: %w", err)
	}

	var p Params
	if p.BlockSize, err = readU32(br); err != nil {
		return ServerFileOpenResult{}, err
	}
	if p.TargetRate, err = readU32(br); err != nil {
		return ServerFileOpenResult{}, err
	}
	if p.ErrorRate, err = readU32(br); err != nil {
		return ServerFileOpenResult{}, err
	}
	if p.SlowerNum, err = readU16(br); err != nil {
		return ServerFileOpenResult{}, err
	}
	if p.SlowerDen, err = readU16(br); err != nil {
		return ServerFileOpenResult{}, err
	}
	if p.FasterNum, err = readU16(br); err != nil {
		return ServerFileOpenResult{}, err
	}
	if p.FasterDen, err = readU16(br); err != nil {
		return ServerFileOpenResult{}, err
	}

	meta := FileMeta{Length: length, BlockSize: p.BlockSize, Epoch: epochFunc()}

	if err := writeU64(rw, meta.Length); err != nil {
		return ServerFileOpenResult{}, err
	}
	if err := writeU32(rw, p.BlockSize); err != nil {
		return ServerFileOpenResult{}, err
	}
	if err := writeU32(rw, meta.BlockCount()); err != nil {
		return ServerFileOpenResult{}, err
	}
	if err := writeU32(rw, meta.Epoch); err != nil {
		return ServerFileOpenResult{}, err
	}

	udpPort, err := readU16(br)
	if err != nil {
		return ServerFileOpenResult{}, fmt.Errorf("tsunami: reading client udp port: %w", err)
	}

	return ServerFileOpenResult{Path: path, Params: p, Meta: meta, UDPPort: udpPort}, nil
}
