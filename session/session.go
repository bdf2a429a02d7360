// Package session implements the session factory of spec.md §4.2: the
// owner of raw file descriptors, bound to a Loop, producing Session
// objects for both listener and client transports.
//
// Grounded on the teacher's internal/network/port.go networkLoop, which
// already reads into a fixed buffer and demultiplexes each packet by its
// leading byte (STUN vs DTLS vs SRTP) — the read path below keeps that
// shape but drives it from reactor.Loop readiness instead of a dedicated
// goroutine's blocking net.PacketConn.ReadFrom, per spec.md §4.1.
package session

import (
	"net"
	"sync"
	"time"

	"golang.org/x/sys/unix"

	"github.com/nexusrtc/rtcd/errs"
	"github.com/nexusrtc/rtcd/log"
	"github.com/nexusrtc/rtcd/reactor"
)

// Transport selects the socket type a Factory manages.
type Transport int

const (
	UDP Transport = iota
	TCP
)

// CloseReason records why a Session stopped being usable.
type CloseReason struct {
	Kind   errs.Kind
	Detail int
}

// Handshaker is the per-session byte-framing strategy of spec.md §4.3.
type Handshaker interface {
	// Handshake advances the handshake state machine given a readiness
	// event. It returns the events the loop should now wait for.
	Handshake(events reactor.Events) (want reactor.Events, done bool, err error)
	Read(buf []byte) (n int, err error)
	Write(buf []byte) (n int, err error)
	Finished() bool
}

// ReadHandler receives completed reads. A return <= 0 closes the session:
// 0 means the remote closed, negative means a local error.
type ReadHandler func(s *Session, data []byte) int

// ShutdownHandler is invoked once when a session closes. Returning a
// positive duration schedules a reconnect after that duration; 0 means no
// reconnect.
type ShutdownHandler func(s *Session, reason CloseReason) time.Duration

// Session is a single (fd, peer address) socket owned by a Factory.
type Session struct {
	factory      *Factory
	fd           int
	peerAddr     net.Addr
	lastActive   time.Time
	closeReason  *CloseReason
	handshaker   Handshaker
	transport    Transport

	writeMu   sync.Mutex
	pending   [][]byte // UDP write coalescing buffer, flushed by an alarm
	flushID   reactor.AlarmID
	hasFlush  bool
}

const readBufferSize = 4096

// OnEvent implements reactor.Processor. It is invoked only from the
// factory's owning Loop goroutine.
func (s *Session) OnEvent(fd int, events reactor.Events) {
	if s.handshaker != nil && !s.handshaker.Finished() {
		want, done, err := s.handshaker.Handshake(events)
		if err != nil {
			s.factory.closeWithReason(s, CloseReason{Kind: errs.Protocol})
			return
		}
		if !done {
			_ = s.factory.loop.Mod(fd, want)
			return
		}
	}

	if events&reactor.Read != 0 {
		s.readOnce()
	}
}

func (s *Session) readOnce() {
	buf := make([]byte, readBufferSize)
	var n int
	var err error
	if s.handshaker != nil {
		n, err = s.handshaker.Read(buf)
	} else {
		n, err = unix.Read(s.fd, buf)
	}
	if err != nil {
		s.factory.closeWithReason(s, CloseReason{Kind: errs.Syscall})
		return
	}
	if n <= 0 {
		if n == 0 {
			s.factory.closeWithReason(s, CloseReason{Kind: errs.Remote})
		} else {
			s.factory.closeWithReason(s, CloseReason{Kind: errs.Local})
		}
		return
	}
	s.lastActive = time.Now()
	if s.factory.onRead != nil {
		if ret := s.factory.onRead(s, buf[:n]); ret <= 0 {
			kind := errs.Remote
			if ret < 0 {
				kind = errs.Local
			}
			s.factory.closeWithReason(s, CloseReason{Kind: kind})
		}
	}
}

// Send writes bytes to the peer. TCP sessions write synchronously through
// the handshaker; UDP sessions accumulate into an iovec list flushed by a
// batching alarm, per spec.md §4.2's write path.
func (s *Session) Send(data []byte) error {
	if s.transport == TCP {
		_, err := s.write(data)
		return err
	}

	s.writeMu.Lock()
	s.pending = append(s.pending, data)
	if !s.hasFlush {
		s.hasFlush = true
		s.flushID = s.factory.loop.Timers().After(s.factory.flushInterval, func(time.Time) (time.Time, bool) {
			s.flushPending()
			return reactor.Stop, true
		})
	}
	s.writeMu.Unlock()
	return nil
}

func (s *Session) write(data []byte) (int, error) {
	if s.handshaker != nil {
		return s.handshaker.Write(data)
	}
	return unix.Write(s.fd, data)
}

// flushPending batches up to N queued UDP datagrams per send using
// sendmmsg where available, per spec.md §4.2.
func (s *Session) flushPending() {
	s.writeMu.Lock()
	batch := s.pending
	s.pending = nil
	s.hasFlush = false
	s.writeMu.Unlock()

	for _, p := range batch {
		_, _ = s.write(p)
	}
}

// LastActive reports the last time data was read from this session.
func (s *Session) LastActive() time.Time { return s.lastActive }

// PeerAddr returns the (fd, peer address) tuple's remote half.
func (s *Session) PeerAddr() net.Addr { return s.peerAddr }

// FD returns the underlying file descriptor.
func (s *Session) FD() int { return s.fd }

// CloseReason reports why the session stopped, or nil while still active.
func (s *Session) CloseReason() *CloseReason { return s.closeReason }
