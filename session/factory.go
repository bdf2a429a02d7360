package session

import (
	"math/rand"
	"net"
	"time"

	"golang.org/x/sys/unix"

	"github.com/nexusrtc/rtcd/errs"
	"github.com/nexusrtc/rtcd/log"
	"github.com/nexusrtc/rtcd/reactor"
)

// FactoryMethod produces the Handshaker a newly accepted/connected Session
// should use. Returning nil means plain framing (spec.md §4.3).
type FactoryMethod func(s *Session) Handshaker

// Factory owns one transport type and the set of sessions on it, per
// spec.md §4.2.
type Factory struct {
	loop          *reactor.Loop
	transport     Transport
	sessionTimeout time.Duration
	flushInterval time.Duration
	factoryMethod FactoryMethod
	onRead        ReadHandler
	onShutdown    ShutdownHandler

	listenFD int
	sessions map[int]*Session
	log      log.Logger
	resolver *reactor.Resolver

	retryAttempts map[int]int // fd -> consecutive reconnect attempt, for backoff
}

// Config collects Factory construction parameters.
type Config struct {
	SessionTimeout time.Duration
	FlushInterval  time.Duration // UDP write-coalescing window
	FactoryMethod  FactoryMethod
	OnRead         ReadHandler
	OnShutdown     ShutdownHandler
	Log            log.Logger
}

// NewFactory creates a Factory bound to loop, with its own pollable
// resolver for asynchronous connect-time name lookups (spec.md §4.1/§5).
func NewFactory(loop *reactor.Loop, transport Transport, cfg Config) (*Factory, error) {
	if cfg.FlushInterval == 0 {
		cfg.FlushInterval = time.Millisecond
	}
	if cfg.Log == nil {
		cfg.Log = log.Nil{}
	}
	resolver, err := reactor.NewResolver(loop, cfg.Log)
	if err != nil {
		return nil, err
	}
	return &Factory{
		loop:           loop,
		transport:      transport,
		sessionTimeout: cfg.SessionTimeout,
		flushInterval:  cfg.FlushInterval,
		factoryMethod:  cfg.FactoryMethod,
		onRead:         cfg.OnRead,
		onShutdown:     cfg.OnShutdown,
		sessions:       make(map[int]*Session),
		log:            cfg.Log.WithFields(log.Field{Key: "component", Value: "session-factory"}),
		resolver:       resolver,
		retryAttempts:  make(map[int]int),
	}, nil
}

// Listen binds and listens on port (0 requests OS assignment; the actual
// port is read back via getsockname) and registers for READ readiness.
func (f *Factory) Listen(port int) (actualPort int, err error) {
	domain := unix.AF_INET
	sockType := unix.SOCK_STREAM
	if f.transport == UDP {
		sockType = unix.SOCK_DGRAM
	}

	fd, err := unix.Socket(domain, sockType|unix.SOCK_NONBLOCK, 0)
	if err != nil {
		return 0, errs.WithDetail(errs.Syscall, int(err.(unix.Errno)), err)
	}
	_ = unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEPORT, 1)

	sa := &unix.SockaddrInet4{Port: port}
	if err := unix.Bind(fd, sa); err != nil {
		_ = unix.Close(fd)
		return 0, errs.WithDetail(errs.Syscall, int(err.(unix.Errno)), err)
	}

	if f.transport == TCP {
		if err := unix.Listen(fd, 128); err != nil {
			_ = unix.Close(fd)
			return 0, errs.WithDetail(errs.Syscall, int(err.(unix.Errno)), err)
		}
	}

	bound, err := unix.Getsockname(fd)
	if err != nil {
		_ = unix.Close(fd)
		return 0, errs.New(errs.Syscall, err)
	}
	if in4, ok := bound.(*unix.SockaddrInet4); ok {
		actualPort = in4.Port
	}

	f.listenFD = fd
	if f.transport == TCP {
		if err := f.loop.Add(fd, listenerProcessor{f}, reactor.Read); err != nil {
			_ = unix.Close(fd)
			return 0, errs.New(errs.Syscall, nil)
		}
	} else {
		s := f.newSession(fd, nil)
		if err := f.loop.Add(fd, s, reactor.Read); err != nil {
			_ = unix.Close(fd)
			return 0, errs.New(errs.Syscall, nil)
		}
	}

	return actualPort, nil
}

// listenerProcessor dispatches READ readiness on a TCP listen fd to Accept.
type listenerProcessor struct{ f *Factory }

func (p listenerProcessor) OnEvent(fd int, events reactor.Events) {
	p.f.Accept()
}

// Accept drains the listen queue, invoking FactoryMethod for each new
// connection.
func (f *Factory) Accept() {
	for {
		connFD, _, err := unix.Accept(f.listenFD)
		if err != nil {
			return // EAGAIN or similar: queue drained
		}
		_ = unix.SetNonblock(connFD, true)
		s := f.newSession(connFD, nil)
		_ = f.loop.Add(connFD, s, reactor.Read)
	}
}

// Open is the client side: resolves address asynchronously through the
// factory's reactor-owned resolver, then creates a connecting socket and
// registers for WRITE readiness to detect connect completion. cb runs on
// the loop's own goroutine. A blocking net.Resolve* call here would stall
// every other fd the worker owns until the lookup returns.
func (f *Factory) Open(address string, cb func(*Session, error)) {
	network := "udp4"
	if f.transport == TCP {
		network = "tcp4"
	}
	f.resolver.Resolve(network, address, func(addr net.Addr, err error) {
		if err != nil {
			cb(nil, errs.New(errs.Resolve, err))
			return
		}
		if f.transport == TCP {
			s, err := f.openTCP(addr.(*net.TCPAddr))
			cb(s, err)
			return
		}
		s, err := f.openUDP(addr.(*net.UDPAddr))
		cb(s, err)
	})
}

func (f *Factory) openTCP(addr *net.TCPAddr) (*Session, error) {
	fd, err := unix.Socket(unix.AF_INET, unix.SOCK_STREAM|unix.SOCK_NONBLOCK, 0)
	if err != nil {
		return nil, errs.New(errs.Syscall, err)
	}
	sa := toSockaddr(addr.IP, addr.Port)
	err = unix.Connect(fd, sa)
	if err != nil && err != unix.EINPROGRESS {
		_ = unix.Close(fd)
		return nil, errs.New(errs.Syscall, err)
	}
	s := f.newSession(fd, addr)
	_ = f.loop.Add(fd, s, reactor.Write)
	return s, nil
}

func (f *Factory) openUDP(addr *net.UDPAddr) (*Session, error) {
	fd, err := unix.Socket(unix.AF_INET, unix.SOCK_DGRAM|unix.SOCK_NONBLOCK, 0)
	if err != nil {
		return nil, errs.New(errs.Syscall, err)
	}
	sa := toSockaddr(addr.IP, addr.Port)
	if err := unix.Connect(fd, sa); err != nil {
		_ = unix.Close(fd)
		return nil, errs.New(errs.Syscall, err)
	}
	s := f.newSession(fd, addr)
	_ = f.loop.Add(fd, s, reactor.Read)
	return s, nil
}

func toSockaddr(ip net.IP, port int) unix.Sockaddr {
	var a [4]byte
	copy(a[:], ip.To4())
	return &unix.SockaddrInet4{Port: port, Addr: a}
}

func (f *Factory) newSession(fd int, peer net.Addr) *Session {
	s := &Session{
		factory:    f,
		fd:         fd,
		peerAddr:   peer,
		lastActive: time.Now(),
		transport:  f.transport,
	}
	if f.factoryMethod != nil {
		s.handshaker = f.factoryMethod(s)
	}
	f.sessions[fd] = s
	return s
}

// Close removes fd from the loop, closes it, and either schedules a
// reconnect (if OnShutdown returned a positive duration) or forgets the
// session entirely.
func (f *Factory) Close(s *Session, reason CloseReason) {
	f.closeWithReason(s, reason)
}

func (f *Factory) closeWithReason(s *Session, reason CloseReason) {
	if s.closeReason != nil {
		return // idempotent
	}
	s.closeReason = &reason
	f.loop.Del(s.fd)
	_ = unix.Close(s.fd)
	delete(f.sessions, s.fd)

	var retryAfter time.Duration
	if f.onShutdown != nil && reason.Kind != errs.Migrated && reason.Kind != errs.Shutdown {
		retryAfter = f.onShutdown(s, reason)
	}
	if retryAfter > 0 {
		f.scheduleReconnect(s, retryAfter)
	}
}

// scheduleReconnect implements the exponential-backoff-with-jitter retry
// policy of spec.md §7: capped at one hour and 63 doublings, ±20% jitter.
func (f *Factory) scheduleReconnect(s *Session, base time.Duration) {
	attempt := f.retryAttempts[s.fd]
	if attempt > 63 {
		attempt = 63
	}
	backoff := base
	for i := 0; i < attempt; i++ {
		backoff *= 2
		if backoff > time.Hour {
			backoff = time.Hour
			break
		}
	}
	jitter := 1 + (rand.Float64()*0.4 - 0.2) // ±20%
	delay := time.Duration(float64(backoff) * jitter)

	f.retryAttempts[s.fd] = attempt + 1
	f.loop.Timers().After(delay, func(time.Time) (time.Time, bool) {
		f.Reconnect(s)
		return reactor.Stop, true
	})
}

// Reconnect reopens the original address into the same Session object: fd
// is replaced, close_reason cleared, generation (the Session pointer)
// unchanged, so outstanding user handles to it remain valid.
func (f *Factory) Reconnect(s *Session) {
	if s.peerAddr == nil {
		return // listener-origin sessions are never reconnected
	}
	var fd int
	var err error
	switch addr := s.peerAddr.(type) {
	case *net.TCPAddr:
		fd, err = unix.Socket(unix.AF_INET, unix.SOCK_STREAM|unix.SOCK_NONBLOCK, 0)
		if err == nil {
			e := unix.Connect(fd, toSockaddr(addr.IP, addr.Port))
			if e != nil && e != unix.EINPROGRESS {
				err = e
			}
		}
	case *net.UDPAddr:
		fd, err = unix.Socket(unix.AF_INET, unix.SOCK_DGRAM|unix.SOCK_NONBLOCK, 0)
		if err == nil {
			err = unix.Connect(fd, toSockaddr(addr.IP, addr.Port))
		}
	}
	if err != nil {
		f.scheduleReconnect(s, time.Second) // resolve/connect failed, retry later
		return
	}

	s.fd = fd
	s.closeReason = nil
	s.lastActive = time.Now()
	f.sessions[fd] = s
	events := reactor.Read
	if f.transport == TCP {
		events = reactor.Write
	}
	_ = f.loop.Add(fd, s, events)
}

// CheckTimeout closes every session idle longer than sessionTimeout and
// returns the next time a check should run.
func (f *Factory) CheckTimeout() time.Time {
	now := time.Now()
	for _, s := range f.sessions {
		if f.sessionTimeout > 0 && now.Sub(s.lastActive) > f.sessionTimeout {
			f.closeWithReason(s, CloseReason{Kind: errs.Timeout})
		}
	}
	return now.Add(f.sessionTimeout)
}

// Sessions returns a snapshot of active sessions, for diagnostics.
func (f *Factory) Sessions() []*Session {
	out := make([]*Session, 0, len(f.sessions))
	for _, s := range f.sessions {
		out = append(out, s)
	}
	return out
}
