package tsunami

import (
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
)

// Server is the top-level server-side facade: it accepts control
// connections, runs the handshake, negotiates one file transfer per
// client request, and drives a Sender for each.
//
// Grounded on gocanopen's Network (network.go / pkg/network/network.go),
// which embeds a *BusManager and a *SDOClient and wires one transfer
// engine per remote peer; Server does the analogous thing for one Sender
// per accepted control session.
type Server struct {
	Root   string // directory files are served from
	Secret []byte // shared secret, copied per-session and zeroed after use
	Params Params
}

// NewServer creates a server rooted at root, using secret for
// authentication and params as the default (pre-negotiation) parameter
// set offered to NegotiateFileServer's echo-back logic.
func NewServer(root string, secret []byte, params Params) *Server {
	return &Server{Root: root, Secret: append([]byte(nil), secret...), Params: params}
}

// Serve accepts control connections on ln until it returns an error (e.g.
// the listener is closed). Each connection is handled in its own
// goroutine (spec.md §5: sender loop runs per accepted session).
func (s *Server) Serve(ln net.Listener) error {
	for {
		conn, err := ln.Accept()
		if err != nil {
			return err
		}
		go func() {
			if err := s.handleConn(conn); err != nil {
				log.Warnf("[SERVER] session error: %v", err)
			}
		}()
	}
}

func (s *Server) handleConn(conn net.Conn) error {
	defer conn.Close()
	session := NewSession()

	secretCopy := append([]byte(nil), s.Secret...)
	if err := session.HandshakeServer(conn, secretCopy); err != nil {
		return fmt.Errorf("handshake: %w", err)
	}

	for {
		result, err := session.NegotiateFileServer(conn, func() uint32 { return uint32(time.Now().Unix()) }, s.resolve)
		if err != nil {
			if errors.Is(err, ErrFileNotFound) {
				// Rejection already sent as a status byte; keep the session.
				log.Warnf("[SERVER] session=%s %v", session.ID, err)
				continue
			}
			return fmt.Errorf("file open: %w", err)
		}

		file, err := os.Open(filepath.Join(s.Root, result.Path))
		if err != nil {
			return fmt.Errorf("opening %q: %w", result.Path, err)
		}

		host, _, _ := net.SplitHostPort(conn.RemoteAddr().String())
		dst := &net.UDPAddr{IP: net.ParseIP(host), Port: int(result.UDPPort)}
		udpConn, err := net.ListenUDP("udp", &net.UDPAddr{Port: 0})
		if err != nil {
			file.Close()
			return fmt.Errorf("opening udp socket: %w", err)
		}

		sender := NewSender(file, result.Meta, result.Params, conn, udpConn, dst)
		log.Debugf("[SERVER][TRANSFER] session=%s path=%q blocks=%d", session.ID, result.Path, result.Meta.BlockCount())
		err = sender.Run()
		udpConn.Close()
		file.Close()
		if err != nil {
			return fmt.Errorf("transfer %q: %w", result.Path, err)
		}
	}
}

// resolve validates the requested path stays within Root and returns the
// file's length, matching spec.md §4.8's "File-open failure on the server
// is reported as a non-zero status byte".
func (s *Server) resolve(path string) (uint64, error) {
	clean := filepath.Clean(path)
	if strings.HasPrefix(clean, "..") || filepath.IsAbs(clean) {
		return 0, ErrFileNotFound
	}
	info, err := os.Stat(filepath.Join(s.Root, clean))
	if err != nil {
		return 0, err
	}
	if info.IsDir() {
		return 0, ErrFileNotFound
	}
	return uint64(info.Size()), nil
}
