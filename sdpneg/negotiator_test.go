package sdpneg

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleOffer = "v=0\r\n" +
	"o=- 123456 2 IN IP4 127.0.0.1\r\n" +
	"s=-\r\n" +
	"t=0 0\r\n" +
	"a=group:BUNDLE 0\r\n" +
	"m=video 9 UDP/TLS/RTP/SAVPF 96 97\r\n" +
	"c=IN IP4 0.0.0.0\r\n" +
	"a=mid:0\r\n" +
	"a=ice-ufrag:abcd\r\n" +
	"a=ice-pwd:efghijklmnopqrstuvwxyzabcd\r\n" +
	"a=fingerprint:sha-256 AA:BB:CC\r\n" +
	"a=rtpmap:96 VP8/90000\r\n" +
	"a=rtcp-fb:96 nack\r\n" +
	"a=rtpmap:97 rtx/90000\r\n" +
	"a=fmtp:97 apt=96\r\n" +
	"a=extmap:1 urn:ietf:params:rtp-hdrext:sdes:mid\r\n" +
	"a=ssrc:1111 cname:stream1\r\n"

func TestParseOfferExtractsSection(t *testing.T) {
	offer, err := ParseOffer([]byte(sampleOffer))
	require.NoError(t, err)
	require.Len(t, offer.Sections, 1)

	sec := offer.Sections[0]
	assert.Equal(t, "video", sec.Kind)
	assert.Equal(t, "0", sec.Mid)
	assert.Equal(t, "abcd", sec.Ufrag)
	assert.Len(t, sec.Codecs, 2)
	assert.Equal(t, 1, sec.Extensions["urn:ietf:params:rtp-hdrext:sdes:mid"])
	require.Len(t, sec.SSRCs, 1)
	assert.Equal(t, "stream1", sec.SSRCs[0].CName)
}

func TestSelectCodecsPairsRTXWithMedia(t *testing.T) {
	offer, err := ParseOffer([]byte(sampleOffer))
	require.NoError(t, err)

	codecs := SelectCodecs(offer.Sections[0])
	require.Len(t, codecs, 2)
	assert.Equal(t, "video/VP8", codecs[0].MimeType)
	assert.Equal(t, "video/rtx", codecs[1].MimeType)
	assert.Contains(t, codecs[0].RTCPFeedback, "nack")
}

func TestNegotiateRejectsUnsupportedCodecOnlySection(t *testing.T) {
	const raw = "v=0\r\n" +
		"o=- 1 2 IN IP4 127.0.0.1\r\n" +
		"s=-\r\nt=0 0\r\n" +
		"m=video 9 UDP/TLS/RTP/SAVPF 98\r\n" +
		"c=IN IP4 0.0.0.0\r\n" +
		"a=mid:0\r\n" +
		"a=rtpmap:98 H265/90000\r\n"

	offer, err := ParseOffer([]byte(raw))
	require.NoError(t, err)

	answered := Negotiate(offer, "rtp1")
	require.Len(t, answered, 1)
	assert.True(t, answered[0].Reject)
}
