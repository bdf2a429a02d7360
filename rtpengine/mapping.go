package rtpengine

import (
	"fmt"
	"strconv"
	"strings"
)

// SSRCInfo is the per-SSRC bookkeeping a Connection keeps to demultiplex
// inbound RTP/RTCP without re-parsing SDP on every packet, per spec.md
// §4.10's ssrc -> {cname, msid, track_id} map.
type SSRCInfo struct {
	CName   string
	MSID    string
	TrackID string
	MediaPath string
	IsRTX   bool
	Primary uint32 // for an RTX SSRC, the media SSRC it repairs; 0 otherwise
}

// Mapper holds the lookup tables one negotiated Connection needs: mid to
// media path, rid/track id to label, ssrc to stream identity, and the RTX
// recovery table spec.md §4.10 calls ssrc_recovery_map.
type Mapper struct {
	midToMediaPath map[string]string
	labelByTrack   map[string]string
	ssrcInfo       map[uint32]SSRCInfo
	recovery       map[uint32]uint32 // rtx ssrc -> media ssrc
}

// NewMapper creates an empty Mapper.
func NewMapper() *Mapper {
	return &Mapper{
		midToMediaPath: make(map[string]string),
		labelByTrack:   make(map[string]string),
		ssrcInfo:       make(map[uint32]SSRCInfo),
		recovery:       make(map[uint32]uint32),
	}
}

// BindMediaPath records the media_path spec.md §4.10 derives for mid. The
// derivation itself (stable hash of mid plus direction) lives in the SDP
// negotiator, which owns mid allocation; Mapper only stores the result.
func (m *Mapper) BindMediaPath(mid, mediaPath string) {
	m.midToMediaPath[mid] = mediaPath
}

// MediaPath looks up the media path bound to mid.
func (m *Mapper) MediaPath(mid string) (string, bool) {
	p, ok := m.midToMediaPath[mid]
	return p, ok
}

// BindTrackLabel associates a rid or track id with a label, so an inbound
// data-channel-carried control message naming a track can be routed to the
// right consumer without a second round trip.
func (m *Mapper) BindTrackLabel(trackID, label string) {
	m.labelByTrack[trackID] = label
}

// TrackLabel looks up the label bound to trackID.
func (m *Mapper) TrackLabel(trackID string) (string, bool) {
	l, ok := m.labelByTrack[trackID]
	return l, ok
}

// BindSSRC registers the stream identity for ssrc.
func (m *Mapper) BindSSRC(ssrc uint32, info SSRCInfo) {
	m.ssrcInfo[ssrc] = info
}

// SSRCInfo looks up the stream identity bound to ssrc.
func (m *Mapper) SSRCInfo(ssrc uint32) (SSRCInfo, bool) {
	info, ok := m.ssrcInfo[ssrc]
	return info, ok
}

// BindRecovery records that rtxSSRC repairs mediaSSRC, per spec.md §4.10's
// ssrc_recovery_map. RTP router RTX unwrapping consults this to rewrite a
// recovered packet's SSRC back to the media SSRC before re-encoding it for
// consumers that did not negotiate RTX.
func (m *Mapper) BindRecovery(rtxSSRC, mediaSSRC uint32) {
	m.recovery[rtxSSRC] = mediaSSRC
}

// RecoveredSSRC returns the media SSRC that rtxSSRC repairs, if known.
func (m *Mapper) RecoveredSSRC(rtxSSRC uint32) (uint32, bool) {
	media, ok := m.recovery[rtxSSRC]
	return media, ok
}

// ConsumerKind selects the shape of a derived consumer, per spec.md §4.11.
type ConsumerKind int

const (
	ConsumerSimple ConsumerKind = iota
	ConsumerSimulcast
	ConsumerPipe
)

const (
	uriTransportWideCC = "http://www.ietf.org/id/draft-holmer-rmcat-transport-wide-cc-extensions-01"
	uriAbsSendTime      = "http://www.webrtc.org/experiments/rtp-hdrext/abs-send-time"
)

// DeriveConsumerParams implements spec.md §4.10's consumer_params(producer,
// capability, out) derivation. Pipe consumers forward the producer's
// parameters unchanged, since they exist to relay into another router, not
// to transcode or re-lay out SSRCs. SIMPLE and SIMULCAST consumers both go
// through the full three-step derivation: codecs are intersected against
// the local capability (step 1), header extensions are intersected and
// RTCP feedback pruned by what transport feedback extension is actually
// available (step 2), and exactly one consumer-side encoding is allocated
// from the producer's ssrc_seed, mangling scalability_mode when the
// producer itself was simulcast (step 3).
func DeriveConsumerParams(producer, capability RTPParameters, kind ConsumerKind, localMID string) RTPParameters {
	out := RTPParameters{
		MediaPath: producer.MediaPath,
		MID:       localMID,
	}

	if kind == ConsumerPipe {
		out.Codecs = producer.Codecs
		out.HeaderExts = producer.HeaderExts
		out.Encodings = producer.Encodings
		out.SSRCSeed = producer.SSRCSeed
		return out
	}

	out.Codecs = intersectCodecs(producer.Codecs, capability.Codecs)
	out.HeaderExts = intersectExtensions(producer.HeaderExts, capability.HeaderExts)
	pruneRTCPFeedback(out.Codecs, out.HeaderExts)
	out.Encodings = []Encoding{deriveEncoding(producer, out.Codecs)}
	return out
}

// intersectCodecs keeps each producer codec whose mime type is also
// offered by capability, along with its RTX companion if one exists.
func intersectCodecs(producerCodecs, capabilityCodecs []CodecParameters) []CodecParameters {
	var out []CodecParameters
	for _, pc := range producerCodecs {
		if pc.aptTarget() != 0 {
			continue // RTX entries are appended alongside their primary, below
		}
		if !capabilitySupports(capabilityCodecs, pc.MimeType) {
			continue
		}
		kept := pc
		kept.RTCPFeedback = append([]string(nil), pc.RTCPFeedback...)
		out = append(out, kept)
		if rtx, ok := findRTXCodec(producerCodecs, pc.PayloadType); ok {
			out = append(out, rtx)
		}
	}
	return out
}

func capabilitySupports(codecs []CodecParameters, mimeType string) bool {
	for _, c := range codecs {
		if strings.EqualFold(c.MimeType, mimeType) {
			return true
		}
	}
	return false
}

func findRTXCodec(codecs []CodecParameters, mediaPT uint8) (CodecParameters, bool) {
	for _, c := range codecs {
		if c.aptTarget() == int(mediaPT) {
			return c, true
		}
	}
	return CodecParameters{}, false
}

// aptTarget returns the apt= fmtp target payload type for an RTX codec, or
// 0 if this codec isn't RTX (payload type 0 is reserved and never a valid
// apt target).
func (c CodecParameters) aptTarget() int {
	apt, ok := c.Parameters["apt"]
	if !ok {
		return 0
	}
	n, err := strconv.Atoi(apt)
	if err != nil {
		return 0
	}
	return n
}

// intersectExtensions keeps each producer extension also present in
// capability, under the id the producer side negotiated.
func intersectExtensions(producerExts, capabilityExts []HeaderExtension) []HeaderExtension {
	var out []HeaderExtension
	for _, pe := range producerExts {
		for _, ce := range capabilityExts {
			if pe.URI == ce.URI {
				out = append(out, pe)
				break
			}
		}
	}
	return out
}

// pruneRTCPFeedback drops goog-remb and/or transport-cc feedback entries
// from codecs depending on which transport-wide feedback extension is
// actually negotiated, per spec.md §4.10 step 2.
func pruneRTCPFeedback(codecs []CodecParameters, exts []HeaderExtension) {
	transportCC := hasExtension(exts, uriTransportWideCC)
	absSendTime := hasExtension(exts, uriAbsSendTime)

	for i := range codecs {
		var kept []string
		for _, fb := range codecs[i].RTCPFeedback {
			switch {
			case transportCC && strings.Contains(fb, "goog-remb"):
				continue
			case !transportCC && absSendTime && strings.Contains(fb, "transport-cc"):
				continue
			case !transportCC && !absSendTime && (strings.Contains(fb, "goog-remb") || strings.Contains(fb, "transport-cc")):
				continue
			}
			kept = append(kept, fb)
		}
		codecs[i].RTCPFeedback = kept
	}
}

func hasExtension(exts []HeaderExtension, uri string) bool {
	for _, e := range exts {
		if e.URI == uri {
			return true
		}
	}
	return false
}

// deriveEncoding allocates the single consumer-side encoding spec.md
// §4.10 step 3 describes: ssrc = producer.ssrc_seed, rtx.ssrc = ssrc+1 if
// the kept codec set has an RTX entry, maxBitrate = max across producer
// encodings, and scalability_mode propagated (mangled to L<n>T<t> if the
// producer itself used simulcast).
func deriveEncoding(producer RTPParameters, keptCodecs []CodecParameters) Encoding {
	ssrc := producer.SSRCSeed
	enc := Encoding{SSRC: ssrc}

	for _, c := range keptCodecs {
		if c.aptTarget() != 0 {
			enc.RTX = ssrc + 1
			break
		}
	}

	var maxBitrate uint64
	for _, e := range producer.Encodings {
		if e.MaxBitrate > maxBitrate {
			maxBitrate = e.MaxBitrate
		}
	}
	enc.MaxBitrate = maxBitrate

	switch len(producer.Encodings) {
	case 0:
	case 1:
		enc.ScalabilityMode = producer.Encodings[0].ScalabilityMode
	default:
		nLayers := len(producer.Encodings)
		tempLayers := 1
		for _, e := range producer.Encodings {
			if _, t, ok := parseScalabilityMode(e.ScalabilityMode); ok {
				tempLayers = t
				break
			}
		}
		enc.ScalabilityMode = fmt.Sprintf("L%dT%d", nLayers, tempLayers)
	}
	return enc
}

// parseScalabilityMode parses a "L<spatial>T<temporal>" scalability mode
// string, e.g. "L1T3".
func parseScalabilityMode(mode string) (spatial, temporal int, ok bool) {
	var l, tpart string
	idx := strings.IndexByte(mode, 'L')
	tIdx := strings.IndexByte(mode, 'T')
	if idx != 0 || tIdx <= idx {
		return 0, 0, false
	}
	l = mode[idx+1 : tIdx]
	tpart = mode[tIdx+1:]
	spatial, err := strconv.Atoi(l)
	if err != nil {
		return 0, 0, false
	}
	temporal, err = strconv.Atoi(tpart)
	if err != nil {
		return 0, 0, false
	}
	return spatial, temporal, true
}

// MediaPathFor derives the stable media path spec.md §4.10 assigns to a
// producer: "/p/<rtp_id>/<media_path>" mirrors the producer id format of
// spec.md §4.11, keyed off the session's rtp_id and the mid being bound.
func MediaPathFor(rtpID, mid string) string {
	return fmt.Sprintf("%s/%s", rtpID, mid)
}
