package muxstream

import "encoding/binary"

// Header is the {type, msgid} pair framed before every RPC payload, per
// spec.md §4.13. type > 0 with msgid != 0 is a Request; type > 0 with
// msgid == 0 is a Notify; type <= 0 with msgid != 0 is a Reply.
type Header struct {
	Type  int32
	MsgID uint32
}

// sizeFlag bits select how many bytes Type/MsgID occupy on the wire, so
// small values (the overwhelming majority) cost one byte each instead of
// always paying for a fixed 8-byte header.
const (
	flagType1 = 1 << 0
	flagType4 = 1 << 1
	flagMsg1  = 1 << 2
	flagMsg4  = 1 << 3
)

// EncodeHeader serializes h as a leading size-flags byte followed by the
// variable-width Type and MsgID fields.
func EncodeHeader(h Header) []byte {
	var flags byte
	var typeBytes, msgBytes []byte

	if h.Type >= -128 && h.Type <= 127 {
		flags |= flagType1
		typeBytes = []byte{byte(int8(h.Type))}
	} else {
		flags |= flagType4
		typeBytes = make([]byte, 4)
		binary.BigEndian.PutUint32(typeBytes, uint32(h.Type))
	}

	if h.MsgID <= 0xff {
		flags |= flagMsg1
		msgBytes = []byte{byte(h.MsgID)}
	} else {
		flags |= flagMsg4
		msgBytes = make([]byte, 4)
		binary.BigEndian.PutUint32(msgBytes, h.MsgID)
	}

	out := make([]byte, 0, 1+len(typeBytes)+len(msgBytes))
	out = append(out, flags)
	out = append(out, typeBytes...)
	out = append(out, msgBytes...)
	return out
}

// DecodeHeader parses a header previously produced by EncodeHeader,
// returning the header and the number of bytes consumed.
func DecodeHeader(buf []byte) (h Header, consumed int, ok bool) {
	if len(buf) < 1 {
		return Header{}, 0, false
	}
	flags := buf[0]
	pos := 1

	switch {
	case flags&flagType1 != 0:
		if len(buf) < pos+1 {
			return Header{}, 0, false
		}
		h.Type = int32(int8(buf[pos]))
		pos++
	case flags&flagType4 != 0:
		if len(buf) < pos+4 {
			return Header{}, 0, false
		}
		h.Type = int32(binary.BigEndian.Uint32(buf[pos : pos+4]))
		pos += 4
	default:
		return Header{}, 0, false
	}

	switch {
	case flags&flagMsg1 != 0:
		if len(buf) < pos+1 {
			return Header{}, 0, false
		}
		h.MsgID = uint32(buf[pos])
		pos++
	case flags&flagMsg4 != 0:
		if len(buf) < pos+4 {
			return Header{}, 0, false
		}
		h.MsgID = binary.BigEndian.Uint32(buf[pos : pos+4])
		pos += 4
	default:
		return Header{}, 0, false
	}

	return h, pos, true
}

// Kind classifies a decoded header per spec.md §4.13.
type Kind int

const (
	KindRequest Kind = iota
	KindNotify
	KindReply
)

func (h Header) Kind() Kind {
	switch {
	case h.MsgID != 0 && h.Type > 0:
		return KindRequest
	case h.MsgID == 0 && h.Type > 0:
		return KindNotify
	default:
		return KindReply
	}
}
