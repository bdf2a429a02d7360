package muxstream

import (
	"testing"
	"time"

	"github.com/nexusrtc/rtcd/reactor"
)

// loopbackSender feeds Send() straight into a peer RPCStream's HandleRead,
// simulating a connected pair of streams for roundtrip tests.
type loopbackSender struct {
	peer *RPCStream
}

func (l *loopbackSender) Send(data []byte, _ int) error {
	l.peer.HandleRead(data)
	return nil
}

func TestRPCRoundTrip(t *testing.T) {
	sched := reactor.NewScheduler()

	var client, server *RPCStream
	client = NewRPCStream("rpc", &loopbackSender{}, sched)
	server = NewRPCStream("rpc", &loopbackSender{}, sched)
	client.sender = &loopbackSender{peer: server}
	server.sender = &loopbackSender{peer: client}

	server.OnRequest = func(msgType int32, msgID uint32, payload []byte) {
		if msgType != 7 || string(payload) != "ping" {
			t.Errorf("server got request (%d, %q), want (7, ping)", msgType, payload)
		}
		_ = server.Reply(msgID, true, []byte("pong"))
	}

	var gotStatus ReplyStatus
	var gotPayload []byte
	done := make(chan struct{})
	err := client.Request(7, []byte("ping"), 5*time.Second, func(status ReplyStatus, payload []byte) {
		gotStatus = status
		gotPayload = payload
		close(done)
	})
	if err != nil {
		t.Fatalf("Request() error = %v", err)
	}

	select {
	case <-done:
	default:
		t.Fatal("reply callback should fire synchronously in this loopback setup")
	}

	if gotStatus != OK {
		t.Fatalf("status = %v, want OK", gotStatus)
	}
	if string(gotPayload) != "pong" {
		t.Fatalf("payload = %q, want pong", gotPayload)
	}
}

func TestRPCTimeoutFiresETimeout(t *testing.T) {
	sched := reactor.NewScheduler()
	now := time.Now()
	sched.SetNow(func() time.Time { return now })

	client := NewRPCStream("rpc", &loopbackSender{}, sched)
	server := NewRPCStream("rpc", &loopbackSender{}, sched)
	client.sender = &loopbackSender{peer: server}
	// server never replies

	var gotStatus ReplyStatus
	_ = client.Request(7, []byte("ping"), time.Second, func(status ReplyStatus, payload []byte) {
		gotStatus = status
	})

	now = now.Add(2 * time.Second)
	sched.RunDue()

	if gotStatus != ETimeout {
		t.Fatalf("status = %v, want ETimeout after the deadline elapses with no reply", gotStatus)
	}
}

func TestRPCGoawayFailsAllPending(t *testing.T) {
	sched := reactor.NewScheduler()
	client := NewRPCStream("rpc", &loopbackSender{}, sched)

	results := make([]ReplyStatus, 0, 2)
	record := func(status ReplyStatus, _ []byte) { results = append(results, status) }

	client.pending[1] = &pendingRequest{reply: record}
	client.pending[2] = &pendingRequest{reply: record}

	client.Goaway()

	if len(results) != 2 {
		t.Fatalf("got %d results, want 2", len(results))
	}
	for _, r := range results {
		if r != EGoaway {
			t.Fatalf("result = %v, want EGoaway", r)
		}
	}
	if len(client.pending) != 0 {
		t.Fatal("Goaway must clear the pending table")
	}
}
