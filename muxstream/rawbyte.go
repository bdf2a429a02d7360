package muxstream

// RawByteStream is a pass-through mode: OnRecord fires once per socket
// read with no framing, and Send hands each record to an
// application-provided writer, per spec.md §4.13.
type RawByteStream struct {
	base
	sender Sender

	OnRecord func(data []byte)
	Writer   func(record []byte) []byte // serializes a record before it is sent
}

// NewRawByteStream creates a RawByteStream writing through sender.
func NewRawByteStream(label string, sender Sender) *RawByteStream {
	return &RawByteStream{base: base{label: label}, sender: sender}
}

// HandleRead delivers data directly, once per call.
func (s *RawByteStream) HandleRead(data []byte) {
	if s.OnRecord != nil {
		s.OnRecord(data)
	}
}

// Send serializes record with the configured Writer (identity if unset)
// and writes it without any length framing.
func (s *RawByteStream) Send(record []byte) error {
	out := record
	if s.Writer != nil {
		out = s.Writer(record)
	}
	return s.sender.Send(out, 0)
}
