package sctpassoc

import (
	"encoding/binary"

	"github.com/nexusrtc/rtcd/errs"
)

// DCEP message types (RFC 8832).
const (
	dcepMessageTypeAck  = 0x02
	dcepMessageTypeOpen = 0x03
)

// ChannelType is the DATA_CHANNEL_OPEN channel type field, selecting the
// reliability mode a peer-initiated stream asked for.
type ChannelType byte

const (
	ChannelReliable               ChannelType = 0x00
	ChannelReliableUnordered      ChannelType = 0x80
	ChannelPartialReliableRexmit  ChannelType = 0x01
	ChannelPartialReliableRexmitUnordered ChannelType = 0x81
	ChannelPartialReliableTimed   ChannelType = 0x02
	ChannelPartialReliableTimedUnordered  ChannelType = 0x82
)

const openHeaderLength = 12

// ChannelOpen is a parsed DATA_CHANNEL_OPEN message, the control message
// spec.md §6.2 files under PPID 50 alongside the user-data PPIDs.
type ChannelOpen struct {
	ChannelType          ChannelType
	Priority             uint16
	ReliabilityParameter uint32
	Label                string
	Protocol             string
}

// Reliability derives the stream Reliability this open message asked for,
// so DispatchInboundOpen can hand it straight to Connection.OpenStream's
// peer-accept path.
func (c ChannelOpen) Reliability() Reliability {
	ordered := c.ChannelType&0x80 == 0
	rel := Reliability{Ordered: ordered}
	switch c.ChannelType &^ 0x80 {
	case 0x01:
		v := uint16(c.ReliabilityParameter)
		rel.MaxRetransmits = &v
	case 0x02:
		v := uint16(c.ReliabilityParameter)
		rel.MaxPacketLifetime = &v
	}
	return rel
}

// UnmarshalChannelOpen decodes a DATA_CHANNEL_OPEN message body.
func UnmarshalChannelOpen(raw []byte) (ChannelOpen, error) {
	if len(raw) < openHeaderLength {
		return ChannelOpen{}, errs.New(errs.Protocol, shortBuffer("DATA_CHANNEL_OPEN"))
	}
	if raw[0] != dcepMessageTypeOpen {
		return ChannelOpen{}, errs.New(errs.Protocol, wrongMessageType("DATA_CHANNEL_OPEN", raw[0]))
	}

	labelLen := binary.BigEndian.Uint16(raw[8:10])
	protoLen := binary.BigEndian.Uint16(raw[10:12])
	want := openHeaderLength + int(labelLen) + int(protoLen)
	if len(raw) != want {
		return ChannelOpen{}, errs.New(errs.Protocol, shortBuffer("DATA_CHANNEL_OPEN body"))
	}

	return ChannelOpen{
		ChannelType:          ChannelType(raw[1]),
		Priority:             binary.BigEndian.Uint16(raw[2:4]),
		ReliabilityParameter: binary.BigEndian.Uint32(raw[4:8]),
		Label:                string(raw[openHeaderLength : openHeaderLength+int(labelLen)]),
		Protocol:             string(raw[openHeaderLength+int(labelLen) : want]),
	}, nil
}

// Marshal encodes a DATA_CHANNEL_OPEN message, for the client side of a
// locally-initiated stream that must announce itself to the peer.
func (c ChannelOpen) Marshal() []byte {
	out := make([]byte, openHeaderLength+len(c.Label)+len(c.Protocol))
	out[0] = dcepMessageTypeOpen
	out[1] = byte(c.ChannelType)
	binary.BigEndian.PutUint16(out[2:4], c.Priority)
	binary.BigEndian.PutUint32(out[4:8], c.ReliabilityParameter)
	binary.BigEndian.PutUint16(out[8:10], uint16(len(c.Label)))
	binary.BigEndian.PutUint16(out[10:12], uint16(len(c.Protocol)))
	copy(out[openHeaderLength:], c.Label)
	copy(out[openHeaderLength+len(c.Label):], c.Protocol)
	return out
}

// MarshalChannelAck encodes the single-byte DATA_CHANNEL_ACK message a
// stream acceptor sends back once it has accepted a peer-initiated open.
func MarshalChannelAck() []byte {
	return []byte{dcepMessageTypeAck}
}

// IsChannelAck reports whether raw is a DATA_CHANNEL_ACK message.
func IsChannelAck(raw []byte) bool {
	return len(raw) == 1 && raw[0] == dcepMessageTypeAck
}

type shortBuffer string

func (s shortBuffer) Error() string { return "sctpassoc: short buffer decoding " + string(s) }

type wrongMessageTypeErr struct {
	want string
	got  byte
}

func (e wrongMessageTypeErr) Error() string {
	return "sctpassoc: unexpected message type decoding " + e.want
}

func wrongMessageType(want string, got byte) error {
	return wrongMessageTypeErr{want: want, got: got}
}
