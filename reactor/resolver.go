package reactor

import (
	"net"
	"sync"

	"golang.org/x/sys/unix"

	"github.com/nexusrtc/rtcd/errs"
	"github.com/nexusrtc/rtcd/log"
)

// Resolver runs DNS lookups off the loop's own goroutine and delivers each
// completion back onto the loop through a self-pipe registered for read
// readiness, so a slow lookup never stalls every other fd a worker owns.
// The lookup itself runs on a throwaway goroutine (net.Resolver already does
// its own non-blocking I/O internally) and the self-pipe stands in for a
// pollable resolver channel fd, draining completions from Loop.Poll the same
// way every other registered fd does.
type Resolver struct {
	loop    *Loop
	readFD  int
	writeFD int
	log     log.Logger

	mu      sync.Mutex
	pending []resolution
}

type resolution struct {
	addr net.Addr
	err  error
	cb   func(net.Addr, error)
}

// NewResolver creates a Resolver bound to loop. Callers must Close it
// before the loop itself is closed.
func NewResolver(loop *Loop, logger log.Logger) (*Resolver, error) {
	if logger == nil {
		logger = log.Nil{}
	}
	fds := make([]int, 2)
	if err := unix.Pipe2(fds, unix.O_NONBLOCK|unix.O_CLOEXEC); err != nil {
		return nil, errs.WithDetail(errs.Syscall, int(err.(unix.Errno)), err)
	}
	r := &Resolver{
		loop:    loop,
		readFD:  fds[0],
		writeFD: fds[1],
		log:     logger.WithFields(log.Field{Key: "component", Value: "resolver"}),
	}
	if err := loop.Add(r.readFD, r, Read); err != nil {
		_ = unix.Close(fds[0])
		_ = unix.Close(fds[1])
		return nil, errs.New(errs.Syscall, nil)
	}
	return r, nil
}

// Resolve looks up address ("host:port") for network ("udp4" or "tcp4")
// asynchronously. cb runs on the loop's own goroutine once resolution
// completes, never from the background lookup goroutine directly, so it
// may touch loop-owned state without locking.
func (r *Resolver) Resolve(network, address string, cb func(net.Addr, error)) {
	go func() {
		var addr net.Addr
		var err error
		if network == "tcp4" || network == "tcp" {
			addr, err = net.ResolveTCPAddr(network, address)
		} else {
			addr, err = net.ResolveUDPAddr(network, address)
		}
		r.complete(resolution{addr: addr, err: err, cb: cb})
	}()
}

func (r *Resolver) complete(res resolution) {
	r.mu.Lock()
	r.pending = append(r.pending, res)
	r.mu.Unlock()
	var b [1]byte
	_, _ = unix.Write(r.writeFD, b[:]) // best-effort wake; a full pipe means a wake is already pending
}

// OnEvent drains every completed lookup and invokes its callback, per
// Loop's single-threaded-loop invariant (spec.md §4.1).
func (r *Resolver) OnEvent(fd int, events Events) {
	buf := make([]byte, 64)
	for {
		if _, err := unix.Read(r.readFD, buf); err != nil {
			break
		}
	}

	r.mu.Lock()
	pending := r.pending
	r.pending = nil
	r.mu.Unlock()

	for _, res := range pending {
		res.cb(res.addr, res.err)
	}
}

// Close unregisters and releases the self-pipe.
func (r *Resolver) Close() error {
	r.loop.Del(r.readFD)
	_ = unix.Close(r.readFD)
	return unix.Close(r.writeFD)
}
