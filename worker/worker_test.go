package worker

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/nexusrtc/rtcd/reactor"
)

func TestWorkerDrainsTasksBeforeStopping(t *testing.T) {
	loop, err := reactor.Open(8, 10*time.Millisecond, nil)
	require.NoError(t, err)
	defer loop.Close()

	w := New(0, loop, nil)

	var ran int32
	w.Enqueue(func() { atomic.AddInt32(&ran, 1) })
	w.Enqueue(func() { atomic.AddInt32(&ran, 1) })

	var iterations int32
	w.Run(func() bool {
		return atomic.AddInt32(&iterations, 1) <= 1
	})

	require.Equal(t, int32(2), atomic.LoadInt32(&ran))
}
