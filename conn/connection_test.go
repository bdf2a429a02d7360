package conn

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nexusrtc/rtcd/muxstream"
	"github.com/nexusrtc/rtcd/sctpassoc"
)

func TestCloseInvokesShutdownAndSchedulesReconnect(t *testing.T) {
	var gotReason CloseReason
	var gotReconnect time.Duration

	c := New(Config{
		ID: "conn1",
		OnShutdown: func(reason CloseReason) time.Duration {
			gotReason = reason
			return 5 * time.Second
		},
		Reconnect: func(d time.Duration) { gotReconnect = d },
	})

	c.Close(CloseReason{Detail: 42})

	assert.Equal(t, 42, gotReason.Detail)
	assert.Equal(t, 5*time.Second, gotReconnect)
	assert.True(t, c.Closed())
}

func TestCloseIsIdempotent(t *testing.T) {
	calls := 0
	c := New(Config{OnShutdown: func(CloseReason) time.Duration {
		calls++
		return 0
	}})

	c.Close(CloseReason{})
	c.Close(CloseReason{})

	assert.Equal(t, 1, calls)
}

func TestDispatchInboundOpenRejectsUnknownLabel(t *testing.T) {
	c := New(Config{Handlers: muxstream.NewHandlerMap()})
	_, err := c.DispatchInboundOpen(4, "unregistered", sctpassoc.Reliability{}, nil)
	require.Error(t, err)
}
