package worker

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/nexusrtc/rtcd/config"
	"github.com/nexusrtc/rtcd/log"
	"github.com/nexusrtc/rtcd/reactor"
	"github.com/nexusrtc/rtcd/session"
)

// Server owns N Workers and the set of ports they all bind, per spec.md
// §4.14.
type Server struct {
	workers []*Worker
	ports   map[string]config.PortConfig

	alive   int32 // atomic bool
	log     log.Logger

	pollTimeout time.Duration
	waitGroup   *sync.WaitGroup
}

// Config collects Server construction parameters.
type Config struct {
	WorkerCount int
	PollTimeout time.Duration
	Log         log.Logger
}

// New creates a Server with workerCount idle Workers, each with its own
// Loop, ready for ports to be registered via AddPort.
func New(cfg Config) (*Server, error) {
	if cfg.WorkerCount <= 0 {
		cfg.WorkerCount = 1
	}
	if cfg.PollTimeout == 0 {
		cfg.PollTimeout = 100 * time.Millisecond
	}
	if cfg.Log == nil {
		cfg.Log = log.Nil{}
	}

	s := &Server{
		ports:       make(map[string]config.PortConfig),
		log:         cfg.Log.WithFields(log.Field{Key: "component", Value: "server"}),
		pollTimeout: cfg.PollTimeout,
	}
	for i := 0; i < cfg.WorkerCount; i++ {
		loop, err := reactor.Open(256, cfg.PollTimeout, cfg.Log)
		if err != nil {
			return nil, err
		}
		s.workers = append(s.workers, New(i, loop, cfg.Log))
	}
	return s, nil
}

// AddPort registers address in the server's port table, per spec.md
// §4.14's Server.port -> PortConfig map.
func (s *Server) AddPort(address string, pc config.PortConfig) {
	s.ports[address] = pc
}

// Workers returns the server's worker set.
func (s *Server) Workers() []*Worker { return s.workers }

// WorkerFor picks the worker that should own a new connection, round
// robin by address hash. Spec.md §4.14 leaves the assignment policy
// unspecified beyond "a peer that wishes to consume a producer on another
// worker is expected to be routed to the same worker" (§4.12); round robin
// is the simplest policy satisfying that at accept time.
func (s *Server) WorkerFor(i int) *Worker {
	return s.workers[i%len(s.workers)]
}

// Start binds every registered port on every worker (SO_REUSEPORT lets the
// kernel load-balance inbound UDP/TCP across them) and runs each worker's
// loop on its own goroutine until Stop flips the alive flag.
func (s *Server) Start() error {
	atomic.StoreInt32(&s.alive, 1)

	for _, w := range s.workers {
		for address, pc := range s.ports {
			factory, err := session.NewFactory(w.loop, session.UDP, session.Config{
				SessionTimeout: pc.Server.Transport.SessionTimeout,
				Log:            s.log,
			})
			if err != nil {
				return err
			}
			if _, err := factory.Listen(portOf(address)); err != nil {
				return err
			}
		}
	}

	var wg sync.WaitGroup
	for _, w := range s.workers {
		wg.Add(1)
		worker := w
		go func() {
			defer wg.Done()
			worker.Run(func() bool { return atomic.LoadInt32(&s.alive) == 1 })
		}()
	}
	s.waitGroup = &wg
	return nil
}

// Stop flips the alive flag; each Worker notices on its next iteration,
// closes its connections, drains its task queue, then exits, per spec.md
// §4.14's cooperative shutdown.
func (s *Server) Stop() {
	atomic.StoreInt32(&s.alive, 0)
	if s.waitGroup != nil {
		s.waitGroup.Wait()
	}
}

func portOf(address string) int {
	for i := len(address) - 1; i >= 0; i-- {
		if address[i] == ':' {
			return atoiSafe(address[i+1:])
		}
	}
	return 0
}

func atoiSafe(s string) int {
	n := 0
	for _, c := range s {
		if c < '0' || c > '9' {
			return n
		}
		n = n*10 + int(c-'0')
	}
	return n
}
