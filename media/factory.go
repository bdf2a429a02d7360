package media

import (
	"sync"

	"github.com/nexusrtc/rtcd/rtpengine"
)

// Factory owns the producer/consumer population of one connection: it
// assigns producer ids, tracks which producer has already received its
// probation consumer, and reuses consumer slots once their occupant closes,
// per spec.md §4.11's "closed consumers are garbage-collected when their
// matching slot is reused".
type Factory struct {
	rtpID string

	mu           sync.Mutex
	producers    map[string]*Producer // keyed by mediaPath
	consumers    map[string]*Consumer // keyed by consumer id
	probationDone bool
}

// NewFactory creates a Factory scoped to one connection's rtp id.
func NewFactory(rtpID string) *Factory {
	return &Factory{
		rtpID:     rtpID,
		producers: make(map[string]*Producer),
		consumers: make(map[string]*Consumer),
	}
}

// EnsureProducer returns the existing producer for mediaPath, or creates
// one from params if this is the first packet seen for it.
func (f *Factory) EnsureProducer(mediaPath string, params rtpengine.RTPParameters) (*Producer, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if p, ok := f.producers[mediaPath]; ok {
		return p, false
	}
	p := NewProducer(f.rtpID, mediaPath, params)
	f.producers[mediaPath] = p
	return p, true
}

// CreateConsumer mirrors producer into a new Consumer against capability
// (the local RTP capability negotiated for this consumer's own
// connection), registering it under its generated id. If this is the
// first video consumer the factory has created, a probator consumer is
// synthesized alongside it.
func (f *Factory) CreateConsumer(producer *Producer, capability rtpengine.RTPParameters, kind Kind, localMID string) (*Consumer, *Consumer) {
	f.mu.Lock()
	defer f.mu.Unlock()

	c := NewConsumer(producer, capability, kind, localMID)
	f.gcClosed()
	f.consumers[c.ID] = c

	var probator *Consumer
	if !f.probationDone && isVideo(producer.Params) {
		probator = NewProbator(producer)
		f.consumers[probator.ID] = probator
		f.probationDone = true
	}
	return c, probator
}

// CloseConsumer marks a consumer closed; it stays registered until a
// subsequent CreateConsumer call reuses its slot.
func (f *Factory) CloseConsumer(id string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if c, ok := f.consumers[id]; ok {
		c.Paused = true
		delete(f.consumers, id)
	}
}

// gcClosed drops consumers whose producer has been closed, reclaiming
// their slot before a new consumer is inserted.
func (f *Factory) gcClosed() {
	for id, c := range f.consumers {
		if c.Producer.Closed {
			delete(f.consumers, id)
		}
	}
}

// Producers returns a snapshot of all known producers.
func (f *Factory) Producers() []*Producer {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*Producer, 0, len(f.producers))
	for _, p := range f.producers {
		out = append(out, p)
	}
	return out
}

func isVideo(params rtpengine.RTPParameters) bool {
	for _, c := range params.Codecs {
		if len(c.MimeType) >= 6 && c.MimeType[:6] == "video/" {
			return true
		}
	}
	return false
}
