package session

import (
	"crypto/tls"
	"net"
	"os"

	"github.com/nexusrtc/rtcd/reactor"
)

// PlainHandshaker is the no-op strategy of spec.md §4.3: the handshake is
// considered complete as soon as the socket is writable, and Read/Write
// delegate straight to the syscalls Session already performs.
type PlainHandshaker struct{}

func (PlainHandshaker) Handshake(events reactor.Events) (reactor.Events, bool, error) {
	return 0, true, nil
}
func (PlainHandshaker) Read(buf []byte) (int, error)  { return 0, nil } // Session bypasses Read/Write when finished
func (PlainHandshaker) Write(buf []byte) (int, error) { return 0, nil }
func (PlainHandshaker) Finished() bool                { return true }

// TLSHandshaker drives a TLS state machine for a TCP session, used by the
// HTTP subsystem's signaling listener when it is configured with a
// certificate (spec.md §4.2's "optional TLS handshake"). crypto/tls only
// exposes a blocking Handshake, so unlike a WANT_READ/WANT_WRITE-driven C
// DTLS library, we run it once the fd is wrapped as a net.Conn and trust
// the kernel socket buffer rather than the reactor to supply backpressure
// during the handshake — after which Read/Write go through tls.Conn same
// as any other session.
type TLSHandshaker struct {
	conn      *tls.Conn
	done      bool
	cfg       *tls.Config
	handshook bool
}

// NewTLSHandshaker wraps fd (already connected/accepted) in a TLS server
// or client connection.
func NewTLSHandshaker(fd int, cfg *tls.Config, isClient bool) (*TLSHandshaker, error) {
	f := os.NewFile(uintptr(fd), "session")
	nc, err := net.FileConn(f)
	if err != nil {
		return nil, err
	}
	var tc *tls.Conn
	if isClient {
		tc = tls.Client(nc, cfg)
	} else {
		tc = tls.Server(nc, cfg)
	}
	return &TLSHandshaker{conn: tc, cfg: cfg}, nil
}

func (h *TLSHandshaker) Handshake(events reactor.Events) (reactor.Events, bool, error) {
	if err := h.conn.Handshake(); err != nil {
		return 0, false, err
	}
	h.done = true
	return 0, true, nil
}

func (h *TLSHandshaker) Read(buf []byte) (int, error)  { return h.conn.Read(buf) }
func (h *TLSHandshaker) Write(buf []byte) (int, error) { return h.conn.Write(buf) }
func (h *TLSHandshaker) Finished() bool                { return h.done }

// MigrateTo transfers this TLS state into another handshaker without
// renegotiating, used for session migration (spec.md §4.3).
func (h *TLSHandshaker) MigrateTo(other *TLSHandshaker) {
	other.conn = h.conn
	other.done = h.done
	other.cfg = h.cfg
}
