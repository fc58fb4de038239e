// Package server implements the slave side of network rendering. A
// RenderServer accepts one master session at a time, replays the scene
// commands it receives into a local scene context, renders it and hands the
// accumulated film back on request.
package server

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"runtime"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/df07/go-render-farm/pkg/log"
	"github.com/df07/go-render-farm/pkg/wire"
)

var (
	ErrBusy           = errors.New("server: busy with another session")
	ErrNoSession      = errors.New("server: no active session")
	ErrAccessDenied   = errors.New("server: session ID mismatch")
	ErrUnknownCommand = errors.New("server: unknown command")
	ErrNotRendering   = errors.New("server: scene not rendering")
)

// errDone ends a connection after a command that owns the rest of it
var errDone = errors.New("done")

// Config holds the slave settings
type Config struct {
	Port          int
	Threads       int
	WriteFlmFile  bool
	CacheDir      string
	Password      string
	ReadTimeout   time.Duration
	StatsInterval time.Duration
	// MaxBlockSize bounds compressed parameter blocks
	MaxBlockSize uint32
}

// DefaultConfig returns the slave defaults
func DefaultConfig() Config {
	return Config{
		Port:          18018,
		Threads:       runtime.NumCPU(),
		CacheDir:      os.TempDir(),
		ReadTimeout:   120 * time.Second,
		StatsInterval: 5 * time.Second,
		MaxBlockSize:  256 << 20,
	}
}

// State is the session state of a server
type State int

const (
	Ready State = iota
	Busy
)

func (s State) String() string {
	if s == Busy {
		return "BUSY"
	}
	return "READY"
}

// RenderServer is a render slave
type RenderServer struct {
	config   Config
	logger   log.Logger
	handlers map[string]handler
	capture  *log.Capture

	listeners []net.Listener
	port      string
	closing   atomic.Bool
	conns     sync.WaitGroup

	// mu guards session and fileCounter
	mu          sync.Mutex
	session     *session
	fileCounter int
}

// New creates a server with every command registered
func New(config Config) *RenderServer {
	s := &RenderServer{
		config:   config,
		logger:   log.New("server"),
		handlers: map[string]handler{},
		capture:  log.NewCapture(log.SeverityWarning, 1000),
	}
	s.registerCommands()
	return s
}

// Start binds the listeners. An IPv6 bind failure is ignored when IPv4
// succeeded.
func (s *RenderServer) Start() error {
	ln4, err := net.Listen("tcp4", fmt.Sprintf(":%d", s.config.Port))
	if err != nil {
		s.logger.Criticalf("Unable to bind port %d: %v", s.config.Port, err)
		return err
	}
	_, port, _ := net.SplitHostPort(ln4.Addr().String())
	s.port = port
	s.listeners = append(s.listeners, ln4)

	ln6, err := net.Listen("tcp6", net.JoinHostPort("::", port))
	if err != nil {
		s.logger.Infof("IPv6 listener not available: %v", err)
	} else {
		s.listeners = append(s.listeners, ln6)
	}

	log.AddCapture(s.capture)
	s.logger.Noticef("Server listening on port %s", port)
	return nil
}

// Port returns the bound port
func (s *RenderServer) Port() string {
	return s.port
}

// Addr returns the IPv4 listener address
func (s *RenderServer) Addr() net.Addr {
	if len(s.listeners) == 0 {
		return nil
	}
	return s.listeners[0].Addr()
}

// Serve accepts connections until ctx is done, then ends the active session
func (s *RenderServer) Serve(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		<-gctx.Done()
		s.closing.Store(true)
		for _, ln := range s.listeners {
			ln.Close()
		}
		return nil
	})
	for _, ln := range s.listeners {
		g.Go(func() error { return s.acceptLoop(ln) })
	}

	err := g.Wait()
	s.conns.Wait()
	s.endSession()
	log.RemoveCapture(s.capture)
	return err
}

func (s *RenderServer) acceptLoop(ln net.Listener) error {
	for {
		conn, err := ln.Accept()
		if err != nil {
			if s.closing.Load() {
				return nil
			}
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				continue
			}
			return err
		}
		s.conns.Add(1)
		go func() {
			defer s.conns.Done()
			s.handle(conn)
		}()
	}
}

// request is the connection a command is read from
type request struct {
	conn    net.Conn
	r       *bufio.Reader
	timeout time.Duration
}

// extend pushes the read deadline forward
func (q *request) extend() {
	if q.timeout > 0 {
		q.conn.SetReadDeadline(time.Now().Add(q.timeout))
	}
}

func (q *request) line() (string, error) {
	q.extend()
	return wire.ReadLine(q.r)
}

// handle reads and dispatches commands until the peer closes the stream
func (s *RenderServer) handle(conn net.Conn) {
	defer conn.Close()
	q := &request{conn: conn, r: bufio.NewReader(conn), timeout: s.config.ReadTimeout}

	for {
		cmd, err := q.line()
		if err != nil {
			if !errors.Is(err, io.EOF) {
				s.logger.Errorf("Error reading from %s: %v", conn.RemoteAddr(), err)
			}
			return
		}

		h, ok := s.handlers[cmd]
		if !ok {
			s.logger.Errorf("%v '%s'", ErrUnknownCommand, cmd)
			return
		}
		s.logger.Debugf("Server processing command: '%s'", cmd)
		if err := h(s, q); err != nil {
			if !errors.Is(err, errDone) {
				s.logger.Errorf("Command %s failed: %v", cmd, err)
			}
			return
		}
	}
}

func (s *RenderServer) nextCacheFile(ext string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	name := s.port + "_" + strconv.Itoa(s.fileCounter) + ext
	s.fileCounter++
	return name
}
