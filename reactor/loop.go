// Package reactor implements the event loop of spec.md §4.1: a
// single-threaded, edge-triggered readiness loop plus the alarm scheduler
// every other component (sessions, RPC timeouts, reconnect backoff) is
// built on.
//
// The teacher wraps ICE/DTLS/SCTP libraries that each run their own
// goroutine-per-connection read loop (see internal/mux.Mux.readLoop). Spec
// §4.1 instead asks for ONE readiness loop per worker multiplexing many
// file descriptors, which is exactly what epoll gives a Go program when
// driven directly instead of through net.Conn's blocking-looking API. We
// use golang.org/x/sys/unix, the idiomatic way Go networking code in this
// domain reaches the raw primitive (it's already an indirect dependency of
// the pack through pion/transport).
package reactor

import (
	"sync"
	"time"

	"golang.org/x/sys/unix"

	"github.com/nexusrtc/rtcd/errs"
	"github.com/nexusrtc/rtcd/log"
)

// Events a Processor can register interest in.
type Events uint32

const (
	Read Events = 1 << iota
	Write
)

func (e Events) toEpoll() uint32 {
	var m uint32
	if e&Read != 0 {
		m |= unix.EPOLLIN
	}
	if e&Write != 0 {
		m |= unix.EPOLLOUT
	}
	return m
}

// Processor handles readiness notifications for a single fd. OnEvent runs
// on the loop's owning goroutine; it must not block.
type Processor interface {
	OnEvent(fd int, events Events)
}

// Loop is a non-blocking readiness loop bound to one OS thread for its
// lifetime: all Add/Mod/Del/Poll calls must happen from that same
// goroutine, per spec.md §4.1's concurrency note.
type Loop struct {
	epfd        int
	pollTimeout time.Duration
	log         log.Logger

	mu         sync.Mutex // guards processors map only; Poll itself is single-threaded
	processors map[int]Processor

	timers *Scheduler
}

// Open allocates a Loop. maxFD is advisory capacity for the processor
// table (it grows geometrically past this per spec.md §8's boundary
// behavior; Go maps already do this, so maxFD only pre-sizes it).
func Open(maxFD int, pollTimeout time.Duration, logger log.Logger) (*Loop, error) {
	epfd, err := unix.EpollCreate1(0)
	if err != nil {
		return nil, errs.WithDetail(errs.Syscall, int(err.(unix.Errno)), err)
	}
	if logger == nil {
		logger = log.Nil{}
	}
	return &Loop{
		epfd:        epfd,
		pollTimeout: pollTimeout,
		log:         logger.WithFields(log.Field{Key: "component", Value: "reactor"}),
		processors:  make(map[int]Processor, maxFD),
		timers:      NewScheduler(),
	}, nil
}

// Add registers fd with the loop. Adding an fd twice is a programming
// error and panics, matching spec.md §4.1 ("Attempting to Add an already
// registered fd is a programming error").
func (l *Loop) Add(fd int, p Processor, events Events) error {
	l.mu.Lock()
	if _, exists := l.processors[fd]; exists {
		l.mu.Unlock()
		panic("reactor: fd already registered")
	}
	l.processors[fd] = p
	l.mu.Unlock()

	ev := unix.EpollEvent{Events: events.toEpoll(), Fd: int32(fd)}
	if err := unix.EpollCtl(l.epfd, unix.EPOLL_CTL_ADD, fd, &ev); err != nil {
		l.mu.Lock()
		delete(l.processors, fd)
		l.mu.Unlock()
		return -1 // registration failure returned as a negative value, per spec.md §4.1
	}
	return nil
}

// Mod updates the interest set for fd.
func (l *Loop) Mod(fd int, events Events) error {
	ev := unix.EpollEvent{Events: events.toEpoll(), Fd: int32(fd)}
	if err := unix.EpollCtl(l.epfd, unix.EPOLL_CTL_MOD, fd, &ev); err != nil {
		return -1
	}
	return nil
}

// Del unregisters fd. It does not close fd; the caller owns that.
func (l *Loop) Del(fd int) {
	_ = unix.EpollCtl(l.epfd, unix.EPOLL_CTL_DEL, fd, nil)
	l.mu.Lock()
	delete(l.processors, fd)
	l.mu.Unlock()
}

// ModProcessor atomically replaces the Processor bound to fd without
// touching its epoll registration or closing the fd — used for session
// migration (HTTP -> WebSocket upgrade reuses the same socket, spec.md §4.4).
func (l *Loop) ModProcessor(fd int, p Processor) {
	l.mu.Lock()
	l.processors[fd] = p
	l.mu.Unlock()
}

// Timers exposes the loop's alarm scheduler.
func (l *Loop) Timers() *Scheduler { return l.timers }

// Poll waits up to the loop's poll_timeout, dispatches ready events, then
// runs due alarms. Per spec.md §4.1, a Poll failure from the underlying
// mechanism is logged and never propagated — the loop is the event source
// and has nowhere to report upward.
func (l *Loop) Poll() {
	events := make([]unix.EpollEvent, 128)
	timeoutMS := int(l.pollTimeout / time.Millisecond)

	n, err := unix.EpollWait(l.epfd, events, timeoutMS)
	if err != nil {
		if err != unix.EINTR {
			l.log.Error("epoll_wait failed: " + err.Error())
		}
	} else {
		for i := 0; i < n; i++ {
			fd := int(events[i].Fd)
			var ev Events
			if events[i].Events&unix.EPOLLIN != 0 {
				ev |= Read
			}
			if events[i].Events&(unix.EPOLLOUT) != 0 {
				ev |= Write
			}
			l.mu.Lock()
			p := l.processors[fd]
			l.mu.Unlock()
			if p != nil {
				p.OnEvent(fd, ev)
			}
		}
	}

	l.timers.RunDue()
}

// Close releases the underlying epoll fd. Registered fds are left open;
// callers must Del/close them first.
func (l *Loop) Close() error {
	return unix.Close(l.epfd)
}
