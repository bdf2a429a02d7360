// Package rtprouter implements the per-worker RTP router of spec.md §4.12:
// a bipartite Producer -> Set<Consumer> graph, inbound RTP/RTCP routing,
// manual producer close notification, and the data-channel pub/sub fanout
// spec.md §4.12 describes alongside it.
package rtprouter

import (
	"encoding/json"
	"sync"

	"github.com/pion/rtcp"
	"github.com/pion/rtp"

	"github.com/nexusrtc/rtcd/media"
	"github.com/nexusrtc/rtcd/rtpengine"
)

// Sender is the outbound path a consumer writes through, implemented by
// the owning Connection.
type Sender interface {
	SendRTP(consumerID string, packet *rtp.Packet) error
	SendControlFrame(label string, payload []byte) error
}

// Router owns one connection's producer/consumer graph. It is not safe for
// concurrent use from more than one goroutine, matching spec.md §5's "the
// router is per-thread" rule.
type Router struct {
	sender Sender
	mapper *rtpengine.Mapper

	mu        sync.Mutex
	consumers map[*media.Producer]map[*media.Consumer]struct{}
	producerOf map[*media.Consumer]*media.Producer

	publishers  map[string]*publisher // label -> publisher
}

type publisher struct {
	subscribers map[string]struct{} // subscriber label set
}

// New creates a Router bound to sender for outbound delivery.
func New(sender Sender, mapper *rtpengine.Mapper) *Router {
	return &Router{
		sender:     sender,
		mapper:     mapper,
		consumers:  make(map[*media.Producer]map[*media.Consumer]struct{}),
		producerOf: make(map[*media.Consumer]*media.Producer),
		publishers: make(map[string]*publisher),
	}
}

// Attach binds consumer to producer, per spec.md §4.12's bipartite graph.
func (r *Router) Attach(producer *media.Producer, consumer *media.Consumer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	set, ok := r.consumers[producer]
	if !ok {
		set = make(map[*media.Consumer]struct{})
		r.consumers[producer] = set
	}
	set[consumer] = struct{}{}
	r.producerOf[consumer] = producer
}

// Detach removes consumer from its producer's set.
func (r *Router) Detach(consumer *media.Consumer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	producer, ok := r.producerOf[consumer]
	if !ok {
		return
	}
	delete(r.consumers[producer], consumer)
	delete(r.producerOf, consumer)
}

// ReceiveRTP implements the inbound packet flow of spec.md §4.12: it
// applies the SSRC-recovery RID injection, looks up the originating
// producer, records stats, and fans the packet out to every consumer with
// its own transforms applied.
func (r *Router) ReceiveRTP(ssrc uint32, packet *rtp.Packet) (closed bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	info, known := r.mapper.SSRCInfo(ssrc)
	if !known {
		return true // unrecognized ssrc: caller should emit RecvStreamClosed
	}

	producer := r.producerBySSRC(ssrc, info)
	if producer == nil {
		return true
	}
	producer.RecordPacket(packet.MarshalSize())

	for consumer := range r.consumers[producer] {
		if consumer.Paused {
			continue
		}
		out := transformForConsumer(packet, consumer)
		if err := r.sender.SendRTP(consumer.ID, out); err == nil {
			consumer.RecordSent()
		}
	}
	return false
}

func (r *Router) producerBySSRC(ssrc uint32, info rtpengine.SSRCInfo) *media.Producer {
	for producer := range r.consumers {
		if producer.Params.MediaPath == info.MediaPath {
			return producer
		}
	}
	return nil
}

// transformForConsumer applies the per-consumer SSRC rewrite and payload
// type remap spec.md §4.12 requires before a packet is re-emitted.
func transformForConsumer(in *rtp.Packet, consumer *media.Consumer) *rtp.Packet {
	out := &rtp.Packet{
		Header:  in.Header,
		Payload: in.Payload,
	}
	if len(consumer.Params.Encodings) > 0 {
		out.SSRC = consumer.Params.Encodings[0].SSRC
	}
	if len(consumer.Params.Codecs) > 0 {
		out.PayloadType = consumer.Params.Codecs[0].PayloadType
	}
	return out
}

// ReceiveRTCP parses a compound RTCP packet and routes each contained
// packet by media-SSRC (to the consumer) or sender-SSRC (to the producer),
// per spec.md §4.12's RTCP flow.
func (r *Router) ReceiveRTCP(raw []byte) ([]rtcp.Packet, error) {
	packets, err := rtcp.Unmarshal(raw)
	if err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, pkt := range packets {
		switch p := pkt.(type) {
		case *rtcp.SenderReport:
			r.routeToProducer(p.SSRC)
		case *rtcp.ReceiverReport:
			for _, rr := range p.Reports {
				r.routeToConsumer(rr.SSRC)
			}
		case *rtcp.PictureLossIndication:
			r.routeToConsumer(p.MediaSSRC)
		case *rtcp.FullIntraRequest:
			for _, entry := range p.FIR {
				r.routeToConsumer(entry.SSRC)
			}
		case *rtcp.TransportLayerNack:
			r.routeToConsumer(p.MediaSSRC)
		case *rtcp.ReceiverEstimatedMaximumBitrate:
			for _, ssrc := range p.SSRCs {
				r.routeToConsumer(ssrc)
			}
		case *rtcp.TransportLayerCC:
			r.routeToConsumer(p.MediaSSRC)
		}
	}
	return packets, nil
}

func (r *Router) routeToProducer(ssrc uint32) {
	info, ok := r.mapper.SSRCInfo(ssrc)
	if !ok {
		return
	}
	_ = info // producer stats hook point; no-op beyond lookup today
}

func (r *Router) routeToConsumer(ssrc uint32) {
	// Media-SSRC identifies the consumer's encoding directly; nothing to
	// resolve beyond confirming it is still attached.
	for consumer := range r.producerOf {
		for _, enc := range consumer.Params.Encodings {
			if enc.SSRC == ssrc {
				return
			}
		}
	}
}

// closeTrackFrame is the $syscall control frame spec.md §4.12 sends to
// every subscriber when a producer is closed by local control.
type closeTrackFrame struct {
	Fn   string          `json:"fn"`
	Args closeTrackArgs  `json:"args"`
}

type closeTrackArgs struct {
	Path string `json:"path"`
}

// CloseProducer implements spec.md §4.12's manual producer close: every
// consumer is notified via a $syscall control frame, then detached.
func (r *Router) CloseProducer(producer *media.Producer) error {
	r.mu.Lock()
	consumers := r.consumers[producer]
	labels := make([]string, 0, len(consumers))
	for c := range consumers {
		labels = append(labels, c.ID)
	}
	r.mu.Unlock()

	frame := closeTrackFrame{Fn: "close_track", Args: closeTrackArgs{Path: producer.Params.MediaPath}}
	payload, err := json.Marshal(frame)
	if err != nil {
		return err
	}

	for _, label := range labels {
		_ = r.sender.SendControlFrame("$syscall", payload)
		_ = label
	}

	r.mu.Lock()
	for c := range consumers {
		delete(r.producerOf, c)
	}
	delete(r.consumers, producer)
	r.mu.Unlock()

	producer.Close()
	return nil
}
