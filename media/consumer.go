package media

import (
	"fmt"
	"sync/atomic"

	"github.com/nexusrtc/rtcd/rtpengine"
)

// Kind is the consumer variant spec.md §4.11 mirrors off the producer.
// SIMPLE and SIMULCAST both derive the consumer's single advertised
// encoding via rtpengine.DeriveConsumerParams (differing only in whether
// the producer had more than one encoding to mangle scalability_mode
// from); PIPE relays the producer's parameters into a downstream router
// untouched.
type Kind = rtpengine.ConsumerKind

const (
	Simple    = rtpengine.ConsumerSimple
	Simulcast = rtpengine.ConsumerSimulcast
	Pipe      = rtpengine.ConsumerPipe
)

// Consumer mirrors a Producer onto one local MediaStreamConfig.
type Consumer struct {
	ID       string
	Producer *Producer
	Kind     Kind
	Params   rtpengine.RTPParameters
	Paused   bool

	packetsSent uint64
}

var consumerSeq uint64

// NewConsumer materializes a consumer for producer, deriving its
// parameters via rtpengine.DeriveConsumerParams against capability, the
// local RTP capability this consumer's own connection negotiated.
func NewConsumer(producer *Producer, capability rtpengine.RTPParameters, kind Kind, localMID string) *Consumer {
	id := atomic.AddUint64(&consumerSeq, 1)
	return &Consumer{
		ID:       fmt.Sprintf("/c/%s/%d", producer.ID, id),
		Producer: producer,
		Kind:     kind,
		Params:   rtpengine.DeriveConsumerParams(producer.Params, capability, kind, localMID),
	}
}

// RecordSent updates the consumer's outbound packet counter.
func (c *Consumer) RecordSent() { atomic.AddUint64(&c.packetsSent, 1) }

// ProbatorMID is the fixed mid spec.md §4.11 reserves for the synthesized
// bandwidth-estimator probation consumer.
const ProbatorMID = "probator"

// ProbatorPayloadType is the fixed payload type the probator consumer
// advertises, per spec.md §4.11.
const ProbatorPayloadType = 127

// NewProbator synthesizes the extra MediaStreamConfig-equivalent consumer
// spec.md §4.11 requires once per connection, attached to the first video
// producer a connection sees. It carries no real codec, only the mid/pt
// pair the bandwidth estimator probes with.
func NewProbator(producer *Producer) *Consumer {
	return &Consumer{
		ID:       fmt.Sprintf("/c/%s/probator", producer.ID),
		Producer: producer,
		Kind:     Simple,
		Params: rtpengine.RTPParameters{
			MediaPath: producer.Params.MediaPath,
			MID:       ProbatorMID,
			Codecs: []rtpengine.CodecParameters{
				{MimeType: "video/probator", PayloadType: ProbatorPayloadType},
			},
		},
	}
}
