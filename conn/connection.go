// Package conn implements the Connection of spec.md §4.8: the object that
// composes the ICE Lite server, the DTLS transport, and the SCTP
// association into one addressable peer connection, and resolves inbound
// stream opens against a port's handler map.
package conn

import (
	"fmt"
	"sync"
	"time"

	"github.com/nexusrtc/rtcd/dtlstransport"
	"github.com/nexusrtc/rtcd/errs"
	"github.com/nexusrtc/rtcd/ice"
	"github.com/nexusrtc/rtcd/log"
	"github.com/nexusrtc/rtcd/muxstream"
	"github.com/nexusrtc/rtcd/reactor"
	"github.com/nexusrtc/rtcd/sctpassoc"
	"github.com/nexusrtc/rtcd/util"
)

// StreamConfig is the argument to OpenStream, per spec.md §4.8: "config.label
// is the demultiplex key on the peer side".
type StreamConfig struct {
	Label       string
	Reliability sctpassoc.Reliability
}

// BoundStream pairs a raw SCTP stream with whatever typed wrapper the
// handler map produced for its label (a muxstream.CodedByteStream,
// RawByteStream, RPCStream, or nil if the application drives the raw
// stream itself).
type BoundStream struct {
	raw      *sctpassoc.Stream
	Delegate any
}

// ID returns the underlying SCTP stream id.
func (s *BoundStream) ID() uint16 { return s.raw.ID() }

// Label returns the stream's demultiplex label.
func (s *BoundStream) Label() string { return s.raw.Label() }

// ShutdownFunc is invoked once when a Connection closes. A positive
// duration return schedules a reconnect, per spec.md §4.8/§7.
type ShutdownFunc func(reason CloseReason) time.Duration

// CloseReason records why a Connection stopped being usable.
type CloseReason struct {
	Kind   errs.Kind
	Detail int
}

// Connection composes spec.md §4.5 (ice.Server), §4.6 (dtlstransport.Transport),
// and §4.7 (sctpassoc.Association) into one peer connection, and owns the
// per-connection stream registry spec.md §4.8 describes.
type Connection struct {
	ID string

	ICE  *ice.Server
	DTLS *dtlstransport.Transport
	SCTP *sctpassoc.Association

	handlers  *muxstream.HandlerMap
	scheduler *reactor.Scheduler
	log       log.Logger

	onShutdown ShutdownFunc
	reconnect  func(d time.Duration)

	mu             sync.Mutex
	streamsByID    map[uint16]*BoundStream
	streamsByLabel map[string]*BoundStream
	closed         bool
}

// Config collects Connection construction parameters.
type Config struct {
	ID         string
	ICE        *ice.Server
	DTLS       *dtlstransport.Transport
	SCTP       *sctpassoc.Association
	Handlers   *muxstream.HandlerMap
	Scheduler  *reactor.Scheduler
	Log        log.Logger
	OnShutdown ShutdownFunc
	Reconnect  func(d time.Duration)
}

// New creates a Connection over already-constructed ICE/DTLS/SCTP layers.
func New(cfg Config) *Connection {
	if cfg.Log == nil {
		cfg.Log = log.Nil{}
	}
	return &Connection{
		ID:             cfg.ID,
		ICE:            cfg.ICE,
		DTLS:           cfg.DTLS,
		SCTP:           cfg.SCTP,
		handlers:       cfg.Handlers,
		scheduler:      cfg.Scheduler,
		log:            cfg.Log.WithFields(log.Field{Key: "component", Value: "conn"}, log.Field{Key: "id", Value: cfg.ID}),
		onShutdown:     cfg.OnShutdown,
		reconnect:      cfg.Reconnect,
		streamsByID:    make(map[uint16]*BoundStream),
		streamsByLabel: make(map[string]*BoundStream),
	}
}

// OpenStream allocates a new SCTP stream with cfg.Label, per spec.md §4.8.
// If the handler map has a registered entry for the label, its OnOpen
// factory is used to wrap the stream (e.g. as an RPCStream); otherwise the
// stream is returned bare for the caller to drive directly.
func (c *Connection) OpenStream(cfg StreamConfig) (*BoundStream, error) {
	raw, err := c.SCTP.OpenStream(cfg.Label, cfg.Reliability)
	if err != nil {
		return nil, err
	}
	bound := &BoundStream{raw: raw}
	if c.handlers != nil {
		if entry, ok := c.handlers.Resolve(cfg.Label); ok && entry.OnOpen != nil {
			bound.Delegate = entry.OnOpen(cfg.Label)
		}
	}

	c.mu.Lock()
	c.streamsByID[raw.ID()] = bound
	c.streamsByLabel[cfg.Label] = bound
	c.mu.Unlock()
	return bound, nil
}

// DispatchInboundOpen resolves a peer-initiated stream open against the
// handler map, per spec.md §4.8: "First match wins among explicit
// entries; otherwise the director is consulted; otherwise the stream is
// rejected."
func (c *Connection) DispatchInboundOpen(id uint16, label string, rel sctpassoc.Reliability, raw *sctpassoc.Stream) (*BoundStream, error) {
	if c.handlers == nil {
		return nil, errs.New(errs.Invalid, fmt.Errorf("conn: no handler map configured"))
	}
	entry, ok := c.handlers.Resolve(label)
	if !ok {
		return nil, errs.New(errs.Invalid, fmt.Errorf("conn: no handler for label %q", label))
	}

	bound := &BoundStream{raw: raw}
	if entry.OnOpen != nil {
		bound.Delegate = entry.OnOpen(label)
	}

	c.mu.Lock()
	c.streamsByID[id] = bound
	c.streamsByLabel[label] = bound
	c.mu.Unlock()
	return bound, nil
}

// StreamByID looks up a previously bound stream by SCTP stream id, for
// routing an inbound SCTP message to its wrapper's HandleRead.
func (c *Connection) StreamByID(id uint16) (*BoundStream, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.streamsByID[id]
	return s, ok
}

// HandleDCEPOpen parses a DATA_CHANNEL_OPEN control message received on a
// new SCTP stream, resolves its label against the handler map, acks it,
// and returns the bound stream. This is the concrete path
// DispatchInboundOpen's doc comment describes for a peer-initiated stream.
func (c *Connection) HandleDCEPOpen(id uint16, raw *sctpassoc.Stream, controlMsg []byte) (*BoundStream, error) {
	open, err := sctpassoc.UnmarshalChannelOpen(controlMsg)
	if err != nil {
		return nil, err
	}
	bound, err := c.DispatchInboundOpen(id, open.Label, open.Reliability(), raw)
	if err != nil {
		return nil, err
	}
	if err := raw.Send(sctpassoc.MarshalChannelAck(), sctpassoc.PPIDControl); err != nil {
		return nil, err
	}
	return bound, nil
}

// Send enqueues bytes on stream with the PPID spec.md §6.2 assigns for the
// binary/text distinction, using the empty-message PPID when data is
// zero-length (RFC 8831 §6.6).
func (c *Connection) Send(stream *BoundStream, data []byte, binary bool) error {
	ppid := sctpassoc.PPIDString
	switch {
	case binary && len(data) == 0:
		ppid = sctpassoc.PPIDBinaryEmpty
	case binary:
		ppid = sctpassoc.PPIDBinary
	case len(data) == 0:
		ppid = sctpassoc.PPIDStringEmpty
	}
	return stream.raw.Send(data, ppid)
}

// CloseStream resets the SCTP stream; the BoundStream survives in the
// registry until its OnShutdown callback (wired by the handler factory)
// returns, per spec.md §4.8.
func (c *Connection) CloseStream(stream *BoundStream) error {
	c.mu.Lock()
	delete(c.streamsByID, stream.raw.ID())
	delete(c.streamsByLabel, stream.raw.Label())
	c.mu.Unlock()
	return c.SCTP.CloseStream(stream.raw)
}

// Close tears the connection down in SCTP -> DTLS -> ICE -> session order
// and schedules a reconnect if the shutdown callback asks for one, per
// spec.md §4.8.
func (c *Connection) Close(reason CloseReason) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.mu.Unlock()

	var teardownErrs []error
	if c.SCTP != nil {
		teardownErrs = append(teardownErrs, c.SCTP.Close())
	}
	if c.DTLS != nil {
		teardownErrs = append(teardownErrs, c.DTLS.Close())
	}
	if c.ICE != nil {
		teardownErrs = append(teardownErrs, c.ICE.Close())
	}
	if err := util.FlattenErrs(teardownErrs); err != nil {
		c.log.Warn("connection teardown error: " + err.Error())
	}

	var timeout time.Duration
	if c.onShutdown != nil {
		timeout = c.onShutdown(reason)
	}
	if timeout > 0 && c.reconnect != nil {
		c.reconnect(timeout)
	}
}

// Closed reports whether Close has already run.
func (c *Connection) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}
