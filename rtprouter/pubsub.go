package rtprouter

// Publish registers a stream under label as a pub/sub source, per spec.md
// §4.12's "Publish(stream) registers a stream under its label".
func (r *Router) Publish(label string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.publishers[label]; !ok {
		r.publishers[label] = &publisher{subscribers: make(map[string]struct{})}
	}
}

// Subscribe establishes a one-way fan-out from label to subscriberLabel.
// Subscribing to a label with no publisher yet is not an error: the
// subscription takes effect as soon as Publish registers it.
func (r *Router) Subscribe(label, subscriberLabel string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.publishers[label]
	if !ok {
		p = &publisher{subscribers: make(map[string]struct{})}
		r.publishers[label] = p
	}
	p.subscribers[subscriberLabel] = struct{}{}
}

// Unsubscribe removes subscriberLabel from label's fan-out set.
func (r *Router) Unsubscribe(label, subscriberLabel string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if p, ok := r.publishers[label]; ok {
		delete(p.subscribers, subscriberLabel)
	}
}

// PublisherSend fans bytes received on label out to every subscriber, per
// spec.md §4.12's "on a publisher send, every subscriber receives the
// bytes".
func (r *Router) PublisherSend(label string, data []byte) {
	r.mu.Lock()
	p, ok := r.publishers[label]
	if !ok {
		r.mu.Unlock()
		return
	}
	subs := make([]string, 0, len(p.subscribers))
	for s := range p.subscribers {
		subs = append(subs, s)
	}
	r.mu.Unlock()

	for _, sub := range subs {
		_ = r.sender.SendControlFrame(sub, data)
	}
}
