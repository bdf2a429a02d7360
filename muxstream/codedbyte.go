package muxstream

// CodedByteStream decodes a variable-length record length prefix (see
// EncodeLength/DecodeLength) before delivering each full record, per
// spec.md §4.13.
type CodedByteStream struct {
	base
	sender Sender
	parse  []byte // accumulates partial reads across socket boundaries

	OnRecord func(data []byte)
}

// NewCodedByteStream creates a CodedByteStream writing through sender.
func NewCodedByteStream(label string, sender Sender) *CodedByteStream {
	return &CodedByteStream{base: base{label: label}, sender: sender}
}

// HandleRead appends newly read bytes and delivers every full record the
// buffer now contains, in order, leaving any partial trailing record
// buffered for the next call.
func (s *CodedByteStream) HandleRead(data []byte) {
	s.parse = append(s.parse, data...)
	for {
		n, consumed, ok := DecodeLength(s.parse)
		if !ok {
			return // length prefix itself is incomplete
		}
		if len(s.parse) < consumed+int(n) {
			return // record body not fully buffered yet
		}
		record := s.parse[consumed : consumed+int(n)]
		if s.OnRecord != nil {
			s.OnRecord(record)
		}
		s.parse = s.parse[consumed+int(n):]
	}
}

// Send prefixes payload with its encoded length and writes it.
func (s *CodedByteStream) Send(payload []byte) error {
	framed := append(EncodeLength(uint32(len(payload))), payload...)
	return s.sender.Send(framed, 0)
}
