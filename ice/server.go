// Package ice implements the ICE Lite server of spec.md §4.5: a pure STUN
// Binding responder that never gathers or paces candidates itself, only
// selects among tuples offered to it by inbound requests.
//
// Grounded on the teacher's internal/network/port.go networkLoop, which
// already demuxes STUN off the wire and answers Binding requests inline;
// here that inline logic becomes its own state machine so it can run
// against any session, TCP or UDP, as spec.md §4.5 requires. STUN
// message encode/decode itself is delegated to github.com/pion/stun/v3,
// the teacher's real (non-vendored) STUN dependency.
package ice

import (
	"crypto/hmac"
	"crypto/sha1"
	"net"

	"github.com/pion/stun/v3"

	"github.com/nexusrtc/rtcd/log"
	"github.com/nexusrtc/rtcd/util"
)

// State is the ICE Lite server's connectivity state machine.
type State int

const (
	New State = iota
	Connected
	Completed
	Disconnected
)

func (s State) String() string {
	switch s {
	case New:
		return "NEW"
	case Connected:
		return "CONNECTED"
	case Completed:
		return "COMPLETED"
	case Disconnected:
		return "DISCONNECTED"
	default:
		return "UNKNOWN"
	}
}

// Sender abstracts "send these bytes to this tuple" so Server does not
// need to know whether the tuple lives on a UDP or TCP session.
type Sender interface {
	SendTo(tuple Tuple, data []byte) error
}

// Credentials is a {ufrag, pwd} short-term authentication pair.
type Credentials struct {
	Ufrag string
	Pwd   string
}

const maxTuples = 8

// Server is one ICE Lite agent bound to a single Connection, per spec.md
// §4.5/§3.
type Server struct {
	sender Sender
	log    log.Logger

	current Credentials
	old     *Credentials // previous credentials, kept across an ICE restart

	tuples   []Tuple // front = most recently valid; bounded to maxTuples
	selected *Tuple
	state    State

	bestNomination uint32 // highest NOMINATION value seen for the selected tuple

	onStateChange func(State)
}

// Tuple is a (local session, remote address) pair per spec.md's Glossary.
type Tuple struct {
	SessionID int // opaque id of the owning session/fd, for equality
	Addr      net.Addr
}

func tupleEqual(a, b Tuple) bool {
	return a.SessionID == b.SessionID && a.Addr.String() == b.Addr.String()
}

// NewCredentials mints a fresh {ufrag, pwd} short-term pair, per RFC 5389's
// recommended lengths (4 and 22 bytes, PWD widened here for margin).
func NewCredentials() Credentials {
	return Credentials{Ufrag: util.RandSeq(4), Pwd: util.RandSeq(24)}
}

// NewServer creates an ICE Lite server authenticating against creds.
func NewServer(sender Sender, creds Credentials, logger log.Logger) *Server {
	if logger == nil {
		logger = log.Nil{}
	}
	return &Server{
		sender:  sender,
		log:     logger.WithFields(log.Field{Key: "component", Value: "ice"}),
		current: creds,
		state:   New,
	}
}

// SetOnStateChange registers a callback for state transitions.
func (s *Server) SetOnStateChange(f func(State)) { s.onStateChange = f }

// Restart rotates credentials, keeping the old pair valid for one more
// round of requests so in-flight packets from before the restart still
// authenticate (spec.md §4.5 step 4).
func (s *Server) Restart(creds Credentials) {
	old := s.current
	s.old = &old
	s.current = creds
}

// State returns the current connectivity state.
func (s *Server) State() State { return s.state }

// Selected returns the currently selected tuple, if any.
func (s *Server) Selected() (Tuple, bool) {
	if s.selected == nil {
		return Tuple{}, false
	}
	return *s.selected, true
}

// HandleBindingRequest processes one inbound STUN message from tuple,
// implementing the ordered checks of spec.md §4.5.
func (s *Server) HandleBindingRequest(tuple Tuple, raw []byte) {
	msg := &stun.Message{Raw: append([]byte(nil), raw...)}
	if err := msg.Decode(); err != nil {
		return // not a parseable STUN message at all; silently drop
	}

	if msg.Type.Method != stun.MethodBinding {
		s.replyError(tuple, msg, stun.CodeBadRequest)
		return
	}
	if msg.Type.Class == stun.ClassIndication {
		return
	}

	var fingerprint stun.Fingerprint
	if fingerprint.GetFrom(msg) != nil {
		s.replyError(tuple, msg, stun.CodeBadRequest)
		return
	}

	var username stun.Username
	var integrity stun.MessageIntegrity
	var priority stun.Priority
	if username.GetFrom(msg) != nil || integrity.GetFrom(msg) != nil || priority.GetFrom(msg) != nil {
		s.replyError(tuple, msg, stun.CodeBadRequest)
		return
	}

	pwd, ok := s.authenticate(msg)
	if !ok {
		s.replyError(tuple, msg, stun.CodeUnauthorized)
		return
	}

	var controlled stun.AttrType = stun.AttrICEControlled
	if msg.Contains(controlled) {
		s.replyError(tuple, msg, stun.CodeRoleConflict)
		return
	}

	s.acceptTuple(tuple, msg)
	s.replySuccess(tuple, msg, pwd)
}

// authenticate checks MESSAGE-INTEGRITY against current credentials,
// falling back to the old pair to support an in-flight ICE restart.
func (s *Server) authenticate(msg *stun.Message) (pwd string, ok bool) {
	if verifyIntegrity(msg, s.current.Pwd) {
		return s.current.Pwd, true
	}
	if s.old != nil && verifyIntegrity(msg, s.old.Pwd) {
		return s.old.Pwd, true
	}
	return "", false
}

func verifyIntegrity(msg *stun.Message, pwd string) bool {
	var mi stun.MessageIntegrity
	if mi.GetFrom(msg) != nil {
		return false
	}
	key := stun.NewShortTermIntegrity(pwd)
	mac := hmac.New(sha1.New, []byte(key))
	return mi.Check(msg, mac) == nil
}

// acceptTuple inserts/promotes tuple and, if the request nominates it,
// makes it the selected tuple, per spec.md §4.5's tuple bookkeeping.
// Every valid request advances a fresh server from NEW to CONNECTED, even
// before any tuple is ever selected.
func (s *Server) acceptTuple(tuple Tuple, msg *stun.Message) {
	s.insertTuple(tuple)

	if s.state == New {
		s.setState(Connected)
	}

	nominated := msg.Contains(stun.AttrUseCandidate)
	var nomination uint32
	if a, err := msg.Get(stun.AttrNomination); err == nil && len(a) >= 4 {
		nomination = uint32(a[0])<<24 | uint32(a[1])<<16 | uint32(a[2])<<8 | uint32(a[3])
	}

	if nominated || nomination > s.bestNomination {
		s.promote(tuple, nomination)
	}
}

func (s *Server) insertTuple(tuple Tuple) {
	for _, t := range s.tuples {
		if tupleEqual(t, tuple) {
			s.moveToFront(tuple)
			return
		}
	}
	s.tuples = append([]Tuple{tuple}, s.tuples...)
	if len(s.tuples) > maxTuples {
		s.evictOldestNonSelected()
	}
}

func (s *Server) moveToFront(tuple Tuple) {
	filtered := s.tuples[:0]
	filtered = append(filtered, tuple)
	for _, t := range s.tuples {
		if !tupleEqual(t, tuple) {
			filtered = append(filtered, t)
		}
	}
	s.tuples = filtered
}

// evictOldestNonSelected drops the oldest tuple that is not currently
// selected, testable per spec.md §8: "Ninth added tuple evicts the oldest
// non-selected tuple."
func (s *Server) evictOldestNonSelected() {
	for i := len(s.tuples) - 1; i >= 0; i-- {
		if s.selected == nil || !tupleEqual(s.tuples[i], *s.selected) {
			s.tuples = append(s.tuples[:i], s.tuples[i+1:]...)
			return
		}
	}
}

func (s *Server) promote(tuple Tuple, nomination uint32) {
	t := tuple
	s.selected = &t
	s.bestNomination = nomination
	s.setState(Completed)
}

// RemoveTuple drops a tuple from bookkeeping (e.g. its session closed). If
// it was selected, the first remaining tuple is promoted, or the server
// transitions to Disconnected.
func (s *Server) RemoveTuple(tuple Tuple) {
	for i, t := range s.tuples {
		if tupleEqual(t, tuple) {
			s.tuples = append(s.tuples[:i], s.tuples[i+1:]...)
			break
		}
	}
	if s.selected != nil && tupleEqual(*s.selected, tuple) {
		if len(s.tuples) > 0 {
			s.promote(s.tuples[0], 0)
		} else {
			s.selected = nil
			s.setState(Disconnected)
		}
	}
}

// Close marks the server disconnected. It owns no OS resources itself
// (the underlying session/fd is closed by whoever owns the tuple), so this
// only updates bookkeeping and notifies onStateChange.
func (s *Server) Close() error {
	s.selected = nil
	s.tuples = nil
	s.setState(Disconnected)
	return nil
}

func (s *Server) setState(next State) {
	if s.state == next {
		return
	}
	s.state = next
	if s.onStateChange != nil {
		s.onStateChange(next)
	}
}

func (s *Server) replySuccess(tuple Tuple, req *stun.Message, pwd string) {
	addr, ok := tuple.Addr.(*net.UDPAddr)
	var xorAddr stun.XORMappedAddress
	if ok {
		xorAddr = stun.XORMappedAddress{IP: addr.IP, Port: addr.Port}
	}
	resp := stun.MustBuild(req, stun.BindingSuccess, xorAddr,
		stun.NewShortTermIntegrity(pwd), stun.Fingerprint)
	_ = s.sender.SendTo(tuple, resp.Raw)
}

func (s *Server) replyError(tuple Tuple, req *stun.Message, code stun.ErrorCode) {
	resp := stun.MustBuild(req, stun.BindingError, code, stun.Fingerprint)
	_ = s.sender.SendTo(tuple, resp.Raw)
}
