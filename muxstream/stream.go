package muxstream

import (
	"github.com/nexusrtc/rtcd/errs"
)

// CloseReason is delivered to a Stream's OnShutdown exactly once, per
// spec.md §3/§7.
type CloseReason struct {
	Kind    errs.Kind
	Detail  int
	Message string
}

// Sender is the underlying SCTP stream a multiplexed Stream writes
// through (sctpassoc.Stream satisfies this).
type Sender interface {
	Send(data []byte, ppidHint int) error
}

// base holds the state every stream mode shares: label, close bookkeeping,
// and idempotent Close, per spec.md §3's Stream data model.
type base struct {
	label       string
	closeReason *CloseReason
	onShutdown  func(CloseReason)
}

// Close tears the stream down with reason. Per spec.md §8, calling Close
// twice is a no-op after the first call.
func (b *base) Close(reason CloseReason) {
	if b.closeReason != nil {
		return
	}
	b.closeReason = &reason
	if b.onShutdown != nil {
		b.onShutdown(reason)
	}
}

func (b *base) Closed() bool { return b.closeReason != nil }
