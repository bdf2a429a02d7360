// Package worker implements the Worker + Server model of spec.md §4.14:
// a Server owns N Workers, each running one reactor.Loop on its own
// goroutine, draining a cross-worker task queue once per loop iteration.
package worker

import (
	"sync"
	"time"

	"github.com/nexusrtc/rtcd/log"
	"github.com/nexusrtc/rtcd/reactor"
)

// Task is cross-worker work enqueued by another worker (or the server),
// e.g. a signaling handler on one worker routing a message to the worker
// that owns a given connection.
type Task func()

const taskQueueDepth = 1024

// Worker owns one Loop and one goroutine for its lifetime, per spec.md
// §4.14/§5.
type Worker struct {
	id   int
	loop *reactor.Loop
	log  log.Logger

	tasks chan Task // MPSC: any worker may enqueue, only this worker's goroutine drains it

	running  sync.WaitGroup
	stopOnce sync.Once
	done     chan struct{}
}

// New creates a Worker bound to loop.
func New(id int, loop *reactor.Loop, logger log.Logger) *Worker {
	if logger == nil {
		logger = log.Nil{}
	}
	return &Worker{
		id:    id,
		loop:  loop,
		log:   logger.WithFields(log.Field{Key: "component", Value: "worker"}, log.Field{Key: "worker_id", Value: id}),
		tasks: make(chan Task, taskQueueDepth),
		done:  make(chan struct{}),
	}
}

// ID returns this worker's index within its Server.
func (w *Worker) ID() int { return w.id }

// Loop exposes the worker's reactor.Loop for port binding.
func (w *Worker) Loop() *reactor.Loop { return w.loop }

// Enqueue schedules fn to run on this worker's goroutine before its next
// Poll. Safe to call from any goroutine, per spec.md §4.14's
// single-producer/multi-consumer task queue (here: multi-producer, since
// any worker may be the sender).
func (w *Worker) Enqueue(fn Task) {
	select {
	case w.tasks <- fn:
	default:
		w.log.Warn("worker task queue full, dropping cross-worker task")
	}
}

// drainTasks runs every queued task once, per spec.md §4.14: "drained
// once per loop iteration before Poll".
func (w *Worker) drainTasks() {
	for {
		select {
		case fn := <-w.tasks:
			fn()
		default:
			return
		}
	}
}

// Run drives the loop until alive reports false, draining the task queue
// once per iteration before each Poll call.
func (w *Worker) Run(alive func() bool) {
	w.running.Add(1)
	defer w.running.Done()
	for alive() {
		w.drainTasks()
		w.loop.Poll()
	}
	close(w.done)
}

// Wait blocks until Run has returned.
func (w *Worker) Wait() { w.running.Wait() }

// pollInterval bounds how quickly a stopped Server's alive flag is
// re-checked when the loop would otherwise idle past its poll_timeout.
const pollInterval = 50 * time.Millisecond
