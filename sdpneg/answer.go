package sdpneg

import (
	"crypto/rand"
	"fmt"
	"strconv"
	"strings"

	"github.com/pion/sdp/v3"

	"github.com/nexusrtc/rtcd/rtpengine"
)

// LocalEndpoint describes this server's side of the negotiation: the
// values spec.md §4.9 says the answer must carry regardless of what any
// individual offer contains (ice-lite, setup:active, one fingerprint).
type LocalEndpoint struct {
	Fingerprint    string // "sha-256 AA:BB:..."
	Candidates     []Candidate
	Ufrag, Pwd     string
}

// AnsweredSection pairs a parsed offer section with the sections this
// negotiator decided to accept into it.
type AnsweredSection struct {
	Section
	Params rtpengine.RTPParameters
	Reject bool
}

// Negotiate runs spec.md §4.9's negotiate phase: select codecs and
// extensions per section, assign each accepted section a media path, and
// produce the structured answer description.
func Negotiate(offer *Offer, rtpIDPrefix string) []AnsweredSection {
	out := make([]AnsweredSection, 0, len(offer.Sections))
	for _, sec := range offer.Sections {
		as := AnsweredSection{Section: sec}
		if sec.Kind == "application" {
			out = append(out, as)
			continue
		}
		codecs := SelectCodecs(sec)
		if len(codecs) == 0 {
			as.Reject = true
			out = append(out, as)
			continue
		}
		as.Params = rtpengine.RTPParameters{
			MediaPath:  rtpengine.MediaPathFor(rtpIDPrefix, sec.Mid),
			Codecs:     codecs,
			HeaderExts: SelectExtensions(sec),
			MID:        sec.Mid,
		}
		for _, rid := range sec.SimulcastRids {
			as.Params.Encodings = append(as.Params.Encodings, rtpengine.Encoding{Rid: rid})
		}
		out = append(out, as)
	}
	return out
}

// BuildAnswer renders the negotiated sections and the local endpoint's ICE
// Lite / DTLS parameters into a wire-format SDP answer, per spec.md §4.9's
// answer phase.
func BuildAnswer(sections []AnsweredSection, local LocalEndpoint, sessionName string) ([]byte, error) {
	sd := &sdp.SessionDescription{
		Version: 0,
		Origin: sdp.Origin{
			Username:       "-",
			SessionID:      randomNumericID(),
			SessionVersion: 2,
			NetworkType:    "IN",
			AddressType:    "IP4",
			UnicastAddress: "0.0.0.0",
		},
		SessionName: sdp.SessionName(sessionName),
		TimeDescriptions: []sdp.TimeDescription{
			{Timing: sdp.Timing{StartTime: 0, StopTime: 0}},
		},
		Attributes: []sdp.Attribute{
			{Key: "group", Value: groupValue(sections)},
			{Key: "ice-lite"},
		},
	}

	for _, as := range sections {
		md := &sdp.MediaDescription{
			MediaName: sdp.MediaName{
				Media:   as.Kind,
				Port:    sdp.RangedPort{Value: 9},
				Protos:  strings.Split(as.Protocol, "/"),
				Formats: formatsFor(as),
			},
			ConnectionInformation: &sdp.ConnectionInformation{
				NetworkType: "IN",
				AddressType: "IP4",
				Address:     &sdp.Address{Address: "0.0.0.0"},
			},
		}

		if as.Reject {
			md.MediaName.Port = sdp.RangedPort{Value: 0}
			md.Attributes = append(md.Attributes, sdp.Attribute{Key: "mid", Value: as.Mid})
			sd.MediaDescriptions = append(sd.MediaDescriptions, md)
			continue
		}

		md.Attributes = append(md.Attributes,
			sdp.Attribute{Key: "mid", Value: as.Mid},
			sdp.Attribute{Key: "ice-ufrag", Value: local.Ufrag},
			sdp.Attribute{Key: "ice-pwd", Value: local.Pwd},
			sdp.Attribute{Key: "fingerprint", Value: local.Fingerprint},
			sdp.Attribute{Key: "setup", Value: "active"},
			sdp.Attribute{Key: "rtcp-mux"},
		)

		if as.Kind == "application" {
			md.Attributes = append(md.Attributes, sdp.Attribute{Key: "sctp-port", Value: "5000"})
		} else {
			md.Attributes = append(md.Attributes, sdp.Attribute{Key: "recvonly"})
			for _, c := range as.Params.Codecs {
				md.Attributes = append(md.Attributes, rtpmapAttr(as.Kind, c))
				if len(c.Parameters) > 0 {
					md.Attributes = append(md.Attributes, fmtpAttr(c))
				}
				for _, fb := range c.RTCPFeedback {
					md.Attributes = append(md.Attributes, sdp.Attribute{
						Key:   "rtcp-fb",
						Value: fmt.Sprintf("%d %s", c.PayloadType, fb),
					})
				}
			}
			for _, ext := range as.Params.HeaderExts {
				md.Attributes = append(md.Attributes, sdp.Attribute{
					Key:   "extmap",
					Value: fmt.Sprintf("%d %s", ext.ID, ext.URI),
				})
			}
		}

		for i, c := range local.Candidates {
			md.Attributes = append(md.Attributes, sdp.Attribute{
				Key:   "candidate",
				Value: candidateLine(c, i),
			})
		}
		md.Attributes = append(md.Attributes, sdp.Attribute{Key: "end-of-candidates"})

		sd.MediaDescriptions = append(sd.MediaDescriptions, md)
	}

	return sd.Marshal()
}

func groupValue(sections []AnsweredSection) string {
	mids := make([]string, 0, len(sections))
	for _, s := range sections {
		mids = append(mids, s.Mid)
	}
	return "BUNDLE " + strings.Join(mids, " ")
}

func formatsFor(as AnsweredSection) []string {
	if as.Kind == "application" {
		return []string{"webrtc-datachannel"}
	}
	fmts := make([]string, 0, len(as.Params.Codecs))
	for _, c := range as.Params.Codecs {
		fmts = append(fmts, strconv.Itoa(int(c.PayloadType)))
	}
	return fmts
}

func rtpmapAttr(kind string, c rtpengine.CodecParameters) sdp.Attribute {
	name := strings.TrimPrefix(c.MimeType, kind+"/")
	val := fmt.Sprintf("%d %s/%d", c.PayloadType, name, c.ClockRate)
	if c.Channels > 0 {
		val = fmt.Sprintf("%s/%d", val, c.Channels)
	}
	return sdp.Attribute{Key: "rtpmap", Value: val}
}

func fmtpAttr(c rtpengine.CodecParameters) sdp.Attribute {
	parts := make([]string, 0, len(c.Parameters))
	for k, v := range c.Parameters {
		if v == "" {
			parts = append(parts, k)
			continue
		}
		parts = append(parts, k+"="+v)
	}
	return sdp.Attribute{Key: "fmtp", Value: fmt.Sprintf("%d %s", c.PayloadType, strings.Join(parts, ";"))}
}

func candidateLine(c Candidate, idx int) string {
	foundation := idx + 1
	return fmt.Sprintf("%d 1 %s %d %s %d typ host", foundation, orUDP(c.Transport), basePriority(idx), c.IP, c.Port)
}

func orUDP(transport string) string {
	if transport == "" {
		return "udp"
	}
	return strings.ToLower(transport)
}

func basePriority(idx int) uint32 {
	return 2130706431 - uint32(idx)
}

func randomNumericID() uint64 {
	var b [8]byte
	_, _ = rand.Read(b[:])
	var v uint64
	for _, x := range b {
		v = v<<8 | uint64(x)
	}
	return v
}
