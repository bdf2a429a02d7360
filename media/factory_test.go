package media

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nexusrtc/rtcd/rtpengine"
)

func videoParams() rtpengine.RTPParameters {
	return rtpengine.RTPParameters{
		MediaPath: "rtp1/0",
		Codecs:    []rtpengine.CodecParameters{{MimeType: "video/VP8", PayloadType: 96}},
		Encodings: []rtpengine.Encoding{{SSRC: 1000}},
		SSRCSeed:  5000,
	}
}

func videoCapability() rtpengine.RTPParameters {
	return rtpengine.RTPParameters{
		Codecs: []rtpengine.CodecParameters{{MimeType: "video/VP8", PayloadType: 96}},
	}
}

func TestEnsureProducerCreatesOnce(t *testing.T) {
	f := NewFactory("rtp1")

	p1, created1 := f.EnsureProducer("0", videoParams())
	require.True(t, created1)

	p2, created2 := f.EnsureProducer("0", videoParams())
	assert.False(t, created2)
	assert.Same(t, p1, p2)
	assert.Equal(t, "/p/rtp1/0", p1.ID)
}

func TestFirstVideoConsumerGetsProbator(t *testing.T) {
	f := NewFactory("rtp1")
	p, _ := f.EnsureProducer("0", videoParams())

	c1, probator1 := f.CreateConsumer(p, videoCapability(), Simple, "1")
	require.NotNil(t, c1)
	require.NotNil(t, probator1)
	assert.Equal(t, ProbatorMID, probator1.Params.MID)
	require.Len(t, c1.Params.Encodings, 1)
	assert.Equal(t, uint32(5000), c1.Params.Encodings[0].SSRC)

	c2, probator2 := f.CreateConsumer(p, videoCapability(), Simple, "2")
	require.NotNil(t, c2)
	assert.Nil(t, probator2, "only the first video consumer synthesizes a probator")
}

func TestCloseConsumerFreesSlotForReuse(t *testing.T) {
	f := NewFactory("rtp1")
	p, _ := f.EnsureProducer("0", videoParams())

	c, _ := f.CreateConsumer(p, videoCapability(), Simple, "1")
	f.CloseConsumer(c.ID)

	assert.NotContains(t, f.consumers, c.ID)
}
