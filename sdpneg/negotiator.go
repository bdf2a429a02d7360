// Package sdpneg implements the SDP offer/answer negotiator of spec.md
// §4.9: it consumes the raw text tokenizer spec.md §1 calls out of scope
// (github.com/pion/sdp/v3) and builds codec selection, extension-id
// assignment, and answer generation on top — the negotiation semantics
// are core, the tokenizer is not.
package sdpneg

import (
	"net"
	"strconv"
	"strings"

	"github.com/pion/sdp/v3"

	"github.com/nexusrtc/rtcd/errs"
	"github.com/nexusrtc/rtcd/rtpengine"
)

// MediaStreamConfig is one negotiated m-section, per spec.md §3.
type MediaStreamConfig struct {
	Direction  Direction
	MediaPath  string
	Mid        string
	Kind       string // "audio" | "video" | "application"
	Network    string
	RTPProto   string // "UDP" | "TCP"
	Params     rtpengine.RTPParameters
	Pause      bool
	State      SectionState
}

type Direction int

const (
	DirSend Direction = iota
	DirRecv
)

type SectionState int

const (
	StateOpen SectionState = iota
	StateClosed
	StateReuse
)

// Offer is the structured representation of an inbound offer, per
// spec.md §4.9's "Parse phase".
type Offer struct {
	SessionFingerprint string // "sha-256 AA:BB:..." at the session level, if present
	Sections           []Section
}

// Section is one parsed m-section.
type Section struct {
	Mid          string
	Protocol     string
	Kind         string
	Candidates   []Candidate
	Ufrag, Pwd   string
	Fingerprint  string
	Codecs       []OfferedCodec
	Extensions   map[string]int // uri -> id
	SSRCs        []SSRCAttr
	SimulcastRids []string
}

type Candidate struct {
	IP        net.IP
	Port      int
	Priority  uint32
	Transport string
}

type OfferedCodec struct {
	PayloadType int
	Name        string
	ClockRate   uint32
	Channels    uint16
	Fmtp        map[string]string
	RTCPFeedback []string
	IsRTX        bool
	AptPayloadType int // fmtp apt= target, for RTX
}

type SSRCAttr struct {
	SSRC  uint32
	CName string
	MSID  string
}

// ParseOffer decodes raw SDP text into a structured Offer.
func ParseOffer(raw []byte) (*Offer, error) {
	var sd sdp.SessionDescription
	if err := sd.Unmarshal(raw); err != nil {
		return nil, errs.New(errs.Protocol, err)
	}

	offer := &Offer{}
	if fp, ok := sd.Attribute("fingerprint"); ok {
		offer.SessionFingerprint = fp
	}

	for _, md := range sd.MediaDescriptions {
		sec := Section{
			Kind:       md.MediaName.Media,
			Protocol:   strings.Join(md.MediaName.Protos, "/"),
			Extensions: make(map[string]int),
		}
		for _, a := range md.Attributes {
			switch a.Key {
			case "mid":
				sec.Mid = a.Value
			case "ice-ufrag":
				sec.Ufrag = a.Value
			case "ice-pwd":
				sec.Pwd = a.Value
			case "fingerprint":
				sec.Fingerprint = a.Value
			case "candidate":
				if c, ok := parseCandidate(a.Value); ok {
					sec.Candidates = append(sec.Candidates, c)
				}
			case "rtpmap":
				parseRtpmap(&sec, a.Value)
			case "fmtp":
				parseFmtpAttr(&sec, a.Value)
			case "rtcp-fb":
				parseRtcpFb(&sec, a.Value)
			case "extmap":
				parseExtmap(&sec, a.Value)
			case "ssrc":
				parseSSRC(&sec, a.Value)
			case "rid":
				if fields := strings.Fields(a.Value); len(fields) >= 2 && fields[1] == "send" {
					sec.SimulcastRids = append(sec.SimulcastRids, fields[0])
				}
			}
		}
		offer.Sections = append(offer.Sections, sec)
	}
	return offer, nil
}

func parseCandidate(v string) (Candidate, bool) {
	f := strings.Fields(v)
	if len(f) < 6 {
		return Candidate{}, false
	}
	port, _ := strconv.Atoi(f[5])
	return Candidate{IP: net.ParseIP(f[4]), Port: port, Transport: f[2]}, true
}

func parseRtpmap(sec *Section, v string) {
	// "<pt> <name>/<clockrate>[/<channels>]"
	parts := strings.SplitN(v, " ", 2)
	if len(parts) != 2 {
		return
	}
	pt, _ := strconv.Atoi(parts[0])
	nameParts := strings.Split(parts[1], "/")
	codec := OfferedCodec{PayloadType: pt, Name: nameParts[0]}
	if len(nameParts) > 1 {
		cr, _ := strconv.ParseUint(nameParts[1], 10, 32)
		codec.ClockRate = uint32(cr)
	}
	if len(nameParts) > 2 {
		ch, _ := strconv.ParseUint(nameParts[2], 10, 16)
		codec.Channels = uint16(ch)
	}
	codec.IsRTX = strings.EqualFold(codec.Name, "rtx")
	sec.Codecs = append(sec.Codecs, codec)
}

func parseFmtpAttr(sec *Section, v string) {
	parts := strings.SplitN(v, " ", 2)
	if len(parts) != 2 {
		return
	}
	pt, _ := strconv.Atoi(parts[0])
	fmtp := parseFmtp(parts[1])
	for i := range sec.Codecs {
		if sec.Codecs[i].PayloadType == pt {
			sec.Codecs[i].Fmtp = fmtp
			if apt, ok := fmtp["apt"]; ok {
				if aptPT, err := strconv.Atoi(apt); err == nil {
					sec.Codecs[i].AptPayloadType = aptPT
				}
			}
		}
	}
}

func parseRtcpFb(sec *Section, v string) {
	parts := strings.SplitN(v, " ", 2)
	if len(parts) != 2 {
		return
	}
	pt, _ := strconv.Atoi(parts[0])
	for i := range sec.Codecs {
		if sec.Codecs[i].PayloadType == pt {
			sec.Codecs[i].RTCPFeedback = append(sec.Codecs[i].RTCPFeedback, parts[1])
		}
	}
}

func parseExtmap(sec *Section, v string) {
	parts := strings.Fields(v)
	if len(parts) < 2 {
		return
	}
	id, err := strconv.Atoi(parts[0])
	if err != nil {
		return
	}
	if _, known := recognizedExtensions[parts[1]]; known {
		sec.Extensions[parts[1]] = id
	}
}

func parseSSRC(sec *Section, v string) {
	fields := strings.SplitN(v, " ", 2)
	ssrc64, err := strconv.ParseUint(fields[0], 10, 32)
	if err != nil {
		return
	}
	ssrc := uint32(ssrc64)

	var entry *SSRCAttr
	for i := range sec.SSRCs {
		if sec.SSRCs[i].SSRC == ssrc {
			entry = &sec.SSRCs[i]
			break
		}
	}
	if entry == nil {
		sec.SSRCs = append(sec.SSRCs, SSRCAttr{SSRC: ssrc})
		entry = &sec.SSRCs[len(sec.SSRCs)-1]
	}
	if len(fields) < 2 {
		return
	}
	kv := strings.SplitN(fields[1], ":", 2)
	if len(kv) != 2 {
		return
	}
	switch kv[0] {
	case "cname":
		entry.CName = kv[1]
	case "msid":
		entry.MSID = kv[1]
	}
}

func parseFmtp(line string) map[string]string {
	f := make(map[string]string)
	for _, p := range strings.Split(line, ";") {
		kv := strings.SplitN(strings.TrimSpace(p), "=", 2)
		key := strings.ToLower(kv[0])
		val := ""
		if len(kv) > 1 {
			val = kv[1]
		}
		f[key] = val
	}
	return f
}
