// Package media implements the Producer/Consumer factory of spec.md §4.11:
// given negotiated RTP parameters it mints the producer and consumer
// objects the RTP router wires together, including the bandwidth-estimator
// probation consumer spec.md requires for the first video consumer on a
// connection.
package media

import (
	"fmt"
	"sync/atomic"

	"github.com/nexusrtc/rtcd/rtpengine"
)

// Producer owns the RTP parameters for one inbound media stream, keyed by
// the producer id spec.md §4.11 defines as "/p/<rtp_id>/<media_path>".
type Producer struct {
	ID     string
	Params rtpengine.RTPParameters
	Closed bool

	packetsReceived uint64
	bytesReceived   uint64
}

// NewProducer derives a producer id from rtpID and mediaPath and wraps
// params, per spec.md §4.11's "on inbound RTP with a new mid" rule.
func NewProducer(rtpID, mediaPath string, params rtpengine.RTPParameters) *Producer {
	return &Producer{
		ID:     fmt.Sprintf("/p/%s/%s", rtpID, mediaPath),
		Params: params,
	}
}

// RecordPacket updates producer stats on each inbound RTP packet.
func (p *Producer) RecordPacket(wireBytes int) {
	atomic.AddUint64(&p.packetsReceived, 1)
	atomic.AddUint64(&p.bytesReceived, uint64(wireBytes))
}

// Stats reports the producer's running packet/byte counters.
func (p *Producer) Stats() (packets, bytes uint64) {
	return atomic.LoadUint64(&p.packetsReceived), atomic.LoadUint64(&p.bytesReceived)
}

// Close marks the producer dead; the router is responsible for detaching
// its consumers and emitting close_track control frames.
func (p *Producer) Close() { p.Closed = true }
