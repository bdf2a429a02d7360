// Package rtpengine implements the RTP parameter modeling and mapping of
// spec.md §4.10: per-codec payload-type/clock-rate/fmtp/feedback records,
// the mid/rid/ssrc lookup tables a Connection needs to demultiplex inbound
// RTP, and the producer-to-consumer parameter derivation algorithm.
package rtpengine

// CodecParameters mirrors one negotiated codec entry, the RTP-level
// counterpart of sdpneg.OfferedCodec once a payload type has been accepted
// into a session's RTPParameters.
type CodecParameters struct {
	MimeType     string // "video/VP8", "audio/opus", ...
	PayloadType  uint8
	ClockRate    uint32
	Channels     uint16
	Parameters   map[string]string
	RTCPFeedback []string
}

// HeaderExtension is one negotiated RTP header extension, identified by its
// URI (RFC 8285) and the numeric id both peers agreed to use for it.
type HeaderExtension struct {
	URI string
	ID  int
}

// Encoding describes one simulcast/spatial encoding layer within an RTP
// stream: its SSRC, optional RTX SSRC, the rid that selects it, and (for a
// single-stream SVC encoding) its scalability mode.
type Encoding struct {
	SSRC            uint32
	RTX             uint32 // 0 if this encoding has no associated RTX SSRC
	Rid             string
	MaxBitrate      uint64
	ScalabilityMode string
}

// RTPParameters is the full per-media-section parameter set spec.md §4.9
// hands to rtpengine once negotiation settles on it: the accepted codecs,
// the header extensions both sides recognize, and the encodings carried in
// this direction.
type RTPParameters struct {
	MediaPath  string // stable id spec.md §4.10 derives from mid
	Codecs     []CodecParameters
	HeaderExts []HeaderExtension
	Encodings  []Encoding
	MID        string

	// SSRCSeed is the base SSRC spec.md §3's Producer.rtp_parameters
	// carries, used by §4.10 step 3 to allocate the single SSRC (and,
	// for RTX, SSRCSeed+1) a derived consumer advertises.
	SSRCSeed uint32
}

// CodecByPayloadType finds the codec registered under pt, if any.
func (p *RTPParameters) CodecByPayloadType(pt uint8) (CodecParameters, bool) {
	for _, c := range p.Codecs {
		if c.PayloadType == pt {
			return c, true
		}
	}
	return CodecParameters{}, false
}

// ExtensionID returns the negotiated id for uri, if both sides recognized it.
func (p *RTPParameters) ExtensionID(uri string) (int, bool) {
	for _, e := range p.HeaderExts {
		if e.URI == uri {
			return e.ID, true
		}
	}
	return 0, false
}

// EncodingByRid finds the encoding whose rid matches, used to route
// simulcast RTP packets to the right producer layer.
func (p *RTPParameters) EncodingByRid(rid string) (Encoding, bool) {
	for _, e := range p.Encodings {
		if e.Rid == rid {
			return e, true
		}
	}
	return Encoding{}, false
}
