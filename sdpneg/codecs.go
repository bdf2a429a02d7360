package sdpneg

import (
	"strings"

	"github.com/nexusrtc/rtcd/rtpengine"
)

// preferredCodecs is the fixed codec preference order of spec.md §4.9: an
// offer's codecs are accepted in this order regardless of the order the
// remote offered them in.
var preferredCodecs = []string{"VP8", "VP9", "H264", "AV1", "opus"}

// recognizedExtensions is the set of header extension URIs this
// negotiator assigns ids for. An offered extmap whose URI is not in this
// set is dropped rather than echoed back, per spec.md §4.9's "unknown
// extensions are not negotiated".
var recognizedExtensions = map[string]struct{}{
	"urn:ietf:params:rtp-hdrext:sdes:mid":                      {},
	"urn:ietf:params:rtp-hdrext:sdes:rtp-stream-id":             {},
	"urn:ietf:params:rtp-hdrext:sdes:repaired-rtp-stream-id":    {},
	"http://www.webrtc.org/experiments/rtp-hdrext/abs-send-time": {},
	"urn:3gpp:video-orientation":                                {},
	"http://www.ietf.org/id/draft-holmer-rmcat-transport-wide-cc-extensions-01": {},
}

// SelectCodecs narrows an offered section's codecs to the ones this
// negotiator accepts, in preference order, pairing each accepted codec
// with its RTX companion when the offer carries one.
func SelectCodecs(sec Section) []rtpengine.CodecParameters {
	var out []rtpengine.CodecParameters
	for _, name := range preferredCodecs {
		for _, oc := range sec.Codecs {
			if oc.IsRTX || !strings.EqualFold(oc.Name, name) {
				continue
			}
			out = append(out, rtpengine.CodecParameters{
				MimeType:     sec.Kind + "/" + oc.Name,
				PayloadType:  uint8(oc.PayloadType),
				ClockRate:    oc.ClockRate,
				Channels:     oc.Channels,
				Parameters:   oc.Fmtp,
				RTCPFeedback: oc.RTCPFeedback,
			})
			if rtx, ok := findRTX(sec, oc.PayloadType); ok {
				out = append(out, rtx)
			}
		}
	}
	return out
}

func findRTX(sec Section, mediaPT int) (rtpengine.CodecParameters, bool) {
	for _, oc := range sec.Codecs {
		if oc.IsRTX && oc.AptPayloadType == mediaPT {
			return rtpengine.CodecParameters{
				MimeType:    sec.Kind + "/rtx",
				PayloadType: uint8(oc.PayloadType),
				ClockRate:   oc.ClockRate,
				Parameters:  oc.Fmtp,
			}, true
		}
	}
	return rtpengine.CodecParameters{}, false
}

// SelectExtensions narrows an offered section's extmap entries to the
// recognized set, preserving the remote's chosen ids so both sides agree
// on the numbering without a second negotiation round.
func SelectExtensions(sec Section) []rtpengine.HeaderExtension {
	out := make([]rtpengine.HeaderExtension, 0, len(sec.Extensions))
	for uri, id := range sec.Extensions {
		out = append(out, rtpengine.HeaderExtension{URI: uri, ID: id})
	}
	return out
}
