package rtprouter

import (
	"testing"

	"github.com/pion/rtp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nexusrtc/rtcd/media"
	"github.com/nexusrtc/rtcd/rtpengine"
)

type fakeSender struct {
	sentRTP      []*rtp.Packet
	controlFrames map[string][][]byte
}

func newFakeSender() *fakeSender {
	return &fakeSender{controlFrames: make(map[string][][]byte)}
}

func (f *fakeSender) SendRTP(consumerID string, packet *rtp.Packet) error {
	f.sentRTP = append(f.sentRTP, packet)
	return nil
}

func (f *fakeSender) SendControlFrame(label string, payload []byte) error {
	f.controlFrames[label] = append(f.controlFrames[label], payload)
	return nil
}

func TestReceiveRTPFansOutToAttachedConsumers(t *testing.T) {
	mapper := rtpengine.NewMapper()
	mapper.BindSSRC(1000, rtpengine.SSRCInfo{MediaPath: "rtp1/0"})

	sender := newFakeSender()
	r := New(sender, mapper)

	producer := media.NewProducer("rtp1", "rtp1/0", rtpengine.RTPParameters{
		MediaPath: "rtp1/0",
		Codecs:    []rtpengine.CodecParameters{{MimeType: "video/VP8", PayloadType: 96}},
		SSRCSeed:  2000,
	})
	capability := rtpengine.RTPParameters{Codecs: []rtpengine.CodecParameters{{MimeType: "video/VP8", PayloadType: 96}}}
	c := media.NewConsumer(producer, capability, media.Simple, "1")
	r.Attach(producer, c)

	packet := &rtp.Packet{Header: rtp.Header{SSRC: 1000, PayloadType: 96}, Payload: []byte{1, 2, 3}}
	closed := r.ReceiveRTP(1000, packet)

	require.False(t, closed)
	require.Len(t, sender.sentRTP, 1)
	assert.Equal(t, packet.Payload, sender.sentRTP[0].Payload)
}

func TestReceiveRTPUnrecognizedSSRCReportsClosed(t *testing.T) {
	mapper := rtpengine.NewMapper()
	r := New(newFakeSender(), mapper)

	closed := r.ReceiveRTP(9999, &rtp.Packet{Header: rtp.Header{SSRC: 9999}})
	assert.True(t, closed)
}

func TestCloseProducerNotifiesSubscribersAndDetaches(t *testing.T) {
	mapper := rtpengine.NewMapper()
	mapper.BindSSRC(1000, rtpengine.SSRCInfo{MediaPath: "rtp1/0"})
	sender := newFakeSender()
	r := New(sender, mapper)

	producer := media.NewProducer("rtp1", "rtp1/0", rtpengine.RTPParameters{MediaPath: "rtp1/0"})
	c := media.NewConsumer(producer, rtpengine.RTPParameters{}, media.Simple, "1")
	r.Attach(producer, c)

	require.NoError(t, r.CloseProducer(producer))

	assert.True(t, producer.Closed)
	assert.NotEmpty(t, sender.controlFrames["$syscall"])
	closed := r.ReceiveRTP(1000, &rtp.Packet{Header: rtp.Header{SSRC: 1000}})
	assert.True(t, closed, "producer removed from the graph after close")
}

func TestPubSubFanout(t *testing.T) {
	sender := newFakeSender()
	r := New(sender, rtpengine.NewMapper())

	r.Publish("chat")
	r.Subscribe("chat", "peerB")
	r.Subscribe("chat", "peerC")

	r.PublisherSend("chat", []byte("hello"))

	require.Len(t, sender.controlFrames["peerB"], 1)
	require.Len(t, sender.controlFrames["peerC"], 1)
	assert.Equal(t, []byte("hello"), sender.controlFrames["peerB"][0])
}
