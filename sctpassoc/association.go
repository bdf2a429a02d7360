// Package sctpassoc wraps the SCTP association (spec.md §4.7): per-thread
// send queue, reliability modes, and stream id allocation on top of
// github.com/pion/sctp.
//
// Grounded on the teacher's internal/sctp (the pre-module-split vendored
// association/chunk engine, now superseded by the external pion/sctp
// dependency — see DESIGN.md) for the shape of the API: an Association
// wrapping opened Streams, each carrying ordered/max-retransmit config.
package sctpassoc

import (
	"sync"

	"github.com/pion/sctp"

	"github.com/nexusrtc/rtcd/errs"
	"github.com/nexusrtc/rtcd/log"
)

// Reliability configures how a stream handles loss, spec.md §4.7.
type Reliability struct {
	Ordered          bool
	MaxRetransmits   *uint16 // XOR with MaxPacketLifetime
	MaxPacketLifetime *uint16
}

// DTLSRole selects odd (client) vs even (server) stream id allocation per
// RFC 8831, as spec.md §4.7 requires.
type DTLSRole int

const (
	RoleClient DTLSRole = iota
	RoleServer
)

// Inbound is a fully reassembled inbound SCTP user message.
type Inbound struct {
	StreamID uint16
	PPID     PPID
	Data     []byte
}

// PPID enumerates the data-channel PPIDs of spec.md §6.2 (RFC 8831).
type PPID uint32

const (
	PPIDString      PPID = 51
	PPIDBinary      PPID = 53
	PPIDStringEmpty PPID = 56
	PPIDBinaryEmpty PPID = 57
	PPIDControl     PPID = 50 // DCEP open/ack
)

// Association wraps one pion/sctp.Association plus the per-thread send
// queue spec.md §4.7 describes: the underlying stack's own retransmission
// timers may enqueue outbound packets from any goroutine, while the actual
// write happens only on the owning worker, drained by an alarm.
type Association struct {
	assoc *sctp.Association
	role  DTLSRole

	nextStreamID uint16 // next available id for our role's parity

	sendQueue   chan []byte // MPSC: the stack's timers push here from any goroutine
	log         log.Logger

	mu      sync.Mutex
	streams map[uint16]*Stream
}

// Config collects Association construction parameters.
type Config struct {
	Role      DTLSRole
	SendQueueDepth int
	Log       log.Logger
}

// New wraps assoc (already established over the DTLS transport's
// encrypted channel).
func New(assoc *sctp.Association, cfg Config) *Association {
	if cfg.SendQueueDepth == 0 {
		cfg.SendQueueDepth = 256
	}
	if cfg.Log == nil {
		cfg.Log = log.Nil{}
	}
	start := uint16(0)
	if cfg.Role == RoleClient {
		start = 1
	} else {
		start = 0
	}
	return &Association{
		assoc:        assoc,
		role:         cfg.Role,
		nextStreamID: start,
		sendQueue:    make(chan []byte, cfg.SendQueueDepth),
		log:          cfg.Log.WithFields(log.Field{Key: "component", Value: "sctp"}),
		streams:      make(map[uint16]*Stream),
	}
}

// allocateStreamID returns the next id for this role's parity: odd for
// the DTLS client, even for the server, per spec.md §8's invariant.
func (a *Association) allocateStreamID() uint16 {
	id := a.nextStreamID
	a.nextStreamID += 2
	return id
}

// OpenStream opens a new SCTP stream carrying label and the given
// reliability mode, per spec.md §4.7/§4.8.
func (a *Association) OpenStream(label string, rel Reliability) (*Stream, error) {
	id := a.allocateStreamID()
	raw, err := a.assoc.OpenStream(id, sctp.PayloadTypeWebRTCBinary)
	if err != nil {
		return nil, errs.New(errs.Protocol, err)
	}
	s := &Stream{id: id, label: label, reliability: rel, raw: raw, assoc: a}
	a.mu.Lock()
	a.streams[id] = s
	a.mu.Unlock()
	return s, nil
}

// StreamByID looks up an already-open stream, for inbound dispatch.
func (a *Association) StreamByID(id uint16) (*Stream, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	s, ok := a.streams[id]
	return s, ok
}

// AcceptStream wraps an inbound SCTP-opened stream (the peer initiated
// it) once its DCEP DATA_CHANNEL_OPEN has been read and acked.
func (a *Association) AcceptStream(id uint16, label string, rel Reliability, raw *sctp.Stream) *Stream {
	s := &Stream{id: id, label: label, reliability: rel, raw: raw, assoc: a}
	a.mu.Lock()
	a.streams[id] = s
	a.mu.Unlock()
	return s
}

// Enqueue pushes an outbound SCTP packet produced by the stack's own
// timer-driven retransmission onto the per-thread send queue. Safe to
// call from any goroutine.
func (a *Association) Enqueue(packet []byte) {
	select {
	case a.sendQueue <- packet:
	default:
		a.log.Warn("sctp send queue full, dropping retransmission packet")
	}
}

// Drain flushes queued packets. Must run only on the owning worker, per
// spec.md §5's locking discipline, typically from a per-thread alarm.
func (a *Association) Drain(write func([]byte) error) {
	for {
		select {
		case p := <-a.sendQueue:
			_ = write(p)
		default:
			return
		}
	}
}

// CloseStream resets the SCTP stream. The Stream object itself survives
// until its OnShutdown callback returns, per spec.md §4.8.
func (a *Association) CloseStream(s *Stream) error {
	a.mu.Lock()
	delete(a.streams, s.id)
	a.mu.Unlock()
	return s.raw.Close()
}

// Close shuts down the underlying SCTP association.
func (a *Association) Close() error {
	if err := a.assoc.Close(); err != nil {
		return errs.New(errs.Protocol, err)
	}
	return nil
}

// MaxMessageSize is the negotiated SCTP user message size limit. Data
// records larger than this are rejected with a protocol-level failure,
// per spec.md §8.
func (a *Association) MaxMessageSize() uint32 {
	return a.assoc.MaxMessageSize()
}

// Stream is a single SCTP stream within an Association.
type Stream struct {
	id          uint16
	label       string
	reliability Reliability
	raw         *sctp.Stream
	assoc       *Association
}

func (s *Stream) ID() uint16               { return s.id }
func (s *Stream) Label() string            { return s.label }
func (s *Stream) Reliability() Reliability { return s.reliability }

// Send writes ppid-tagged data to the stream, rejecting it up front if it
// exceeds the negotiated max message size (spec.md §8).
func (s *Stream) Send(data []byte, ppid PPID) error {
	if uint32(len(data)) > s.assoc.MaxMessageSize() {
		return errs.New(errs.Protocol, nil)
	}
	s.raw.SetDefaultPayloadType(sctp.PayloadProtocolIdentifier(ppid))
	_, err := s.raw.Write(data)
	if err != nil {
		return errs.New(errs.Protocol, err)
	}
	return nil
}
