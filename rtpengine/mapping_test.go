package rtpengine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeriveConsumerParamsIntersectsCodecsAndPrunesFeedback(t *testing.T) {
	producer := RTPParameters{
		MediaPath: "rtp1/0",
		Codecs: []CodecParameters{
			{MimeType: "video/VP8", PayloadType: 96, RTCPFeedback: []string{"nack", "nack pli", "goog-remb", "transport-cc"}},
			{MimeType: "video/rtx", PayloadType: 97, Parameters: map[string]string{"apt": "96"}},
			{MimeType: "video/H264", PayloadType: 98},
		},
		HeaderExts: []HeaderExtension{
			{URI: uriTransportWideCC, ID: 3},
			{URI: "urn:ietf:params:rtp-hdrext:sdes:mid", ID: 1},
		},
		Encodings: []Encoding{{SSRC: 1000}},
		SSRCSeed:  9000,
	}
	capability := RTPParameters{
		Codecs: []CodecParameters{
			{MimeType: "video/VP8", PayloadType: 96},
		},
		HeaderExts: []HeaderExtension{
			{URI: uriTransportWideCC, ID: 3},
			{URI: "urn:ietf:params:rtp-hdrext:sdes:mid", ID: 1},
		},
	}

	out := DeriveConsumerParams(producer, capability, ConsumerSimple, "1")

	require.Len(t, out.Codecs, 2, "VP8 plus its RTX companion; H264 excluded by capability")
	assert.Equal(t, "video/VP8", out.Codecs[0].MimeType)
	assert.Equal(t, "video/rtx", out.Codecs[1].MimeType)
	assert.Equal(t, []string{"nack", "nack pli", "transport-cc"}, out.Codecs[0].RTCPFeedback, "goog-remb dropped: transport-cc is active")

	require.Len(t, out.Encodings, 1)
	assert.Equal(t, uint32(9000), out.Encodings[0].SSRC)
	assert.Equal(t, uint32(9001), out.Encodings[0].RTX)
}

func TestDeriveConsumerParamsMangleScalabilityModeForSimulcast(t *testing.T) {
	producer := RTPParameters{
		Codecs: []CodecParameters{{MimeType: "video/VP8", PayloadType: 96}},
		Encodings: []Encoding{
			{SSRC: 1, Rid: "f", ScalabilityMode: "L1T3", MaxBitrate: 1_000_000},
			{SSRC: 2, Rid: "h", MaxBitrate: 500_000},
			{SSRC: 3, Rid: "q", MaxBitrate: 200_000},
		},
		SSRCSeed: 4242,
	}
	capability := RTPParameters{Codecs: []CodecParameters{{MimeType: "video/VP8", PayloadType: 96}}}

	out := DeriveConsumerParams(producer, capability, ConsumerSimulcast, "1")

	require.Len(t, out.Encodings, 1, "a simulcast producer still collapses to one consumer-side encoding")
	assert.Equal(t, uint32(4242), out.Encodings[0].SSRC)
	assert.Equal(t, "L3T3", out.Encodings[0].ScalabilityMode)
	assert.Equal(t, uint64(1_000_000), out.Encodings[0].MaxBitrate)
}

func TestDeriveConsumerParamsPipePassesThroughUnchanged(t *testing.T) {
	producer := RTPParameters{
		Codecs:    []CodecParameters{{MimeType: "video/VP8", PayloadType: 96}},
		Encodings: []Encoding{{SSRC: 1}, {SSRC: 2}},
		SSRCSeed:  77,
	}
	out := DeriveConsumerParams(producer, RTPParameters{}, ConsumerPipe, "1")
	assert.Equal(t, producer.Encodings, out.Encodings)
	assert.Equal(t, producer.Codecs, out.Codecs)
}

func TestParseScalabilityMode(t *testing.T) {
	spatial, temporal, ok := parseScalabilityMode("L2T3")
	require.True(t, ok)
	assert.Equal(t, 2, spatial)
	assert.Equal(t, 3, temporal)

	_, _, ok = parseScalabilityMode("")
	assert.False(t, ok)
}
