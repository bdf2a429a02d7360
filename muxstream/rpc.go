package muxstream

import (
	"time"

	"github.com/nexusrtc/rtcd/errs"
	"github.com/nexusrtc/rtcd/reactor"
)

// ReplyStatus is the first argument delivered to a reply callback, per
// spec.md §4.13: "fulfills the saved reply callback with (type == 0 ? OK :
// EUSER), payload)", plus the timeout/goaway kinds §7 adds on top.
type ReplyStatus int

const (
	OK ReplyStatus = iota
	EUser
	ETimeout
	EGoaway
)

// ReplyFunc is a pending RPC request's completion callback.
type ReplyFunc func(status ReplyStatus, payload []byte)

type pendingRequest struct {
	reply    ReplyFunc
	deadline time.Time
	alarmID  reactor.AlarmID
}

// RPCStream frames `<header><length><payload>` per spec.md §4.13 and
// implements Request/Notify/Reply dispatch plus a pending-request table
// with per-request deadlines driven by a single rescheduling alarm.
type RPCStream struct {
	base
	sender    Sender
	scheduler *reactor.Scheduler
	parse     []byte

	nextMsgID uint32
	pending   map[uint32]*pendingRequest

	OnRequest func(msgType int32, msgID uint32, payload []byte)
	OnNotify  func(msgType int32, payload []byte)
}

// NewRPCStream creates an RPCStream. scheduler is the owning connection's
// (or worker's) alarm scheduler, used for per-request timeouts.
func NewRPCStream(label string, sender Sender, scheduler *reactor.Scheduler) *RPCStream {
	return &RPCStream{
		base:      base{label: label},
		sender:    sender,
		scheduler: scheduler,
		pending:   make(map[uint32]*pendingRequest),
	}
}

// HandleRead appends newly read bytes and dispatches every full frame
// the buffer now contains.
func (s *RPCStream) HandleRead(data []byte) {
	s.parse = append(s.parse, data...)
	for {
		h, hdrLen, ok := DecodeHeader(s.parse)
		if !ok {
			return
		}
		rest := s.parse[hdrLen:]
		n, lenBytes, ok := DecodeLength(rest)
		if !ok {
			return
		}
		if len(rest) < lenBytes+int(n) {
			return
		}
		payload := rest[lenBytes : lenBytes+int(n)]
		s.dispatch(h, payload)
		s.parse = rest[lenBytes+int(n):]
	}
}

func (s *RPCStream) dispatch(h Header, payload []byte) {
	switch h.Kind() {
	case KindRequest:
		if s.OnRequest != nil {
			s.OnRequest(h.Type, h.MsgID, payload)
		}
	case KindNotify:
		if s.OnNotify != nil {
			s.OnNotify(h.Type, payload)
		}
	case KindReply:
		s.fulfil(h.MsgID, h.Type, payload)
	}
}

func (s *RPCStream) fulfil(msgID uint32, replyType int32, payload []byte) {
	p, ok := s.pending[msgID]
	if !ok {
		return // reply to an id we no longer track (already timed out or goaway'd)
	}
	delete(s.pending, msgID)
	s.scheduler.Cancel(p.alarmID)
	status := OK
	if replyType != 0 {
		status = EUser
	}
	p.reply(status, payload)
}

func frame(h Header, payload []byte) []byte {
	out := EncodeHeader(h)
	out = append(out, EncodeLength(uint32(len(payload)))...)
	out = append(out, payload...)
	return out
}

// Notify sends a one-way message (msgid=0), per spec.md §4.13.
func (s *RPCStream) Notify(msgType int32, payload []byte) error {
	return s.sender.Send(frame(Header{Type: msgType, MsgID: 0}, payload), 0)
}

// Request sends a request and registers a reply callback with the given
// timeout. The callback fires exactly once, with ETimeout if no reply
// arrives in time.
func (s *RPCStream) Request(msgType int32, payload []byte, timeout time.Duration, reply ReplyFunc) error {
	s.nextMsgID++
	id := s.nextMsgID
	if id == 0 {
		s.nextMsgID++
		id = s.nextMsgID
	}

	p := &pendingRequest{reply: reply, deadline: time.Now().Add(timeout)}
	p.alarmID = s.scheduler.Set(p.deadline, func(time.Time) (time.Time, bool) {
		if _, ok := s.pending[id]; ok {
			delete(s.pending, id)
			reply(ETimeout, nil)
		}
		return reactor.Stop, true
	})
	s.pending[id] = p

	if err := s.sender.Send(frame(Header{Type: msgType, MsgID: id}, payload), 0); err != nil {
		delete(s.pending, id)
		s.scheduler.Cancel(p.alarmID)
		return errs.New(errs.Protocol, err)
	}
	return nil
}

// Reply sends a reply to an inbound request. status OK encodes as type=0;
// any other outcome is carried as a nonzero type, per spec.md §4.13.
func (s *RPCStream) Reply(msgID uint32, ok bool, payload []byte) error {
	replyType := int32(0)
	if !ok {
		replyType = 1
	}
	return s.sender.Send(frame(Header{Type: replyType, MsgID: msgID}, payload), 0)
}

// Goaway fails every pending request with EGoaway, called when the
// connection closes, per spec.md §7.
func (s *RPCStream) Goaway() {
	for id, p := range s.pending {
		delete(s.pending, id)
		s.scheduler.Cancel(p.alarmID)
		p.reply(EGoaway, nil)
	}
}
