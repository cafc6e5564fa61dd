// Package controller implements the signal-controller side of the GB/T
// 43229 session protocol: a bounded TCP accept loop, per-session
// handshake, heartbeat, and classified-frame dispatch, grounded on the
// teacher's internal/server package.
package controller

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/kstaniek/gbt43229-signal-link/internal/deviceid"
	"github.com/kstaniek/gbt43229-signal-link/internal/logging"
	"github.com/kstaniek/gbt43229-signal-link/internal/metrics"
	"github.com/kstaniek/gbt43229-signal-link/internal/reassemble"
	"github.com/kstaniek/gbt43229-signal-link/internal/session"
	"github.com/kstaniek/gbt43229-signal-link/internal/wire"
)

const (
	defaultMaxClients       = 64
	defaultHandshakeTimeout = 3 * time.Second
	defaultReadDeadline     = 30 * time.Second
	defaultTxBuffer         = 64
)

// Handler is invoked for every frame of an established session that passes
// session.Validate, handshake and heartbeat frames included; for frames the
// server answers itself it runs after the server's reply.
type Handler func(cs *ClientSession, kind session.Kind, dt wire.DataTable)

// Server owns the TCP listener and coordinates session lifecycle, mirroring
// the teacher's Server in internal/server/server.go almost module-for-
// module: options pattern, readyCh/errCh, acceptOnce, atomic counters,
// graceful Shutdown draining a sync.WaitGroup.
type Server struct {
	mu   sync.RWMutex
	addr string
	self deviceid.ID

	readDeadline     time.Duration
	handshakeTimeout time.Duration
	heartbeatEvery   time.Duration
	heartbeatTimeout time.Duration

	readyOnce sync.Once
	readyCh   chan struct{}
	lastErrMu sync.Mutex
	lastErr   error
	errCh     chan error
	listener  net.Listener

	table      *sessionTable
	wg         sync.WaitGroup
	logger     *slog.Logger
	nextConnID uint64

	onFrame Handler
}

type ServerOption func(*Server)

// NewServer constructs a Server with default timers; opts may override any
// of them.
func NewServer(self deviceid.ID, opts ...ServerOption) *Server {
	s := &Server{
		self:             self,
		readDeadline:     defaultReadDeadline,
		handshakeTimeout: defaultHandshakeTimeout,
		heartbeatEvery:   session.HeartbeatInterval,
		heartbeatTimeout: session.HeartbeatTimeout,
		readyCh:          make(chan struct{}),
		errCh:            make(chan error, 1),
		table:            newSessionTable(defaultMaxClients),
		logger:           logging.L(),
	}
	for _, o := range opts {
		o(s)
	}
	if s.addr == "" {
		s.addr = ":0"
	}
	return s
}

func WithListenAddr(a string) ServerOption { return func(s *Server) { s.addr = a } }
func WithMaxClients(n int) ServerOption {
	return func(s *Server) {
		if n > 0 {
			s.table = newSessionTable(n)
		}
	}
}
func WithReadDeadline(d time.Duration) ServerOption {
	return func(s *Server) {
		if d > 0 {
			s.readDeadline = d
		}
	}
}
func WithHandshakeTimeout(d time.Duration) ServerOption {
	return func(s *Server) {
		if d > 0 {
			s.handshakeTimeout = d
		}
	}
}
func WithHeartbeatInterval(d time.Duration) ServerOption {
	return func(s *Server) {
		if d > 0 {
			s.heartbeatEvery = d
		}
	}
}
func WithHeartbeatTimeout(d time.Duration) ServerOption {
	return func(s *Server) {
		if d > 0 {
			s.heartbeatTimeout = d
		}
	}
}
func WithLogger(l *slog.Logger) ServerOption {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}
func WithFrameHandler(fn Handler) ServerOption {
	return func(s *Server) { s.onFrame = fn }
}

func (s *Server) Addr() string           { s.mu.RLock(); defer s.mu.RUnlock(); return s.addr }
func (s *Server) setAddr(a string)       { s.mu.Lock(); s.addr = a; s.mu.Unlock() }
func (s *Server) Ready() <-chan struct{} { return s.readyCh }
func (s *Server) Errors() <-chan error   { return s.errCh }
func (s *Server) ActiveSessions() int    { return s.table.count() }

func (s *Server) setError(err error) {
	if err == nil {
		return
	}
	s.lastErrMu.Lock()
	s.lastErr = err
	s.lastErrMu.Unlock()
	select {
	case s.errCh <- err:
	default:
	}
}

func (s *Server) LastError() error {
	s.lastErrMu.Lock()
	defer s.lastErrMu.Unlock()
	return s.lastErr
}

// Serve accepts vehicle detectors, runs each handshake inline on the accept
// path, and then spawns the reader and writer goroutines for each (spec §4.6
// Server multiplexer).
func (s *Server) Serve(ctx context.Context) error {
	s.mu.Lock()
	addr := s.addr
	s.mu.Unlock()
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		wrap := fmt.Errorf("%w: %v", ErrListen, err)
		s.setError(wrap)
		return wrap
	}
	s.setAddr(ln.Addr().String())
	s.listener = ln
	s.readyOnce.Do(func() { close(s.readyCh) })
	s.logger.Info("tcp_listen", "addr", s.Addr())

	metrics.SetReadinessFunc(func() bool { return true })
	s.startHeartbeatLoop(ctx)

	go func() { <-ctx.Done(); _ = ln.Close() }()
	for {
		if err := s.acceptOnce(ctx, ln); err != nil {
			if errors.Is(err, context.Canceled) || ctx.Err() != nil {
				return nil
			}
			return err
		}
	}
}

func (s *Server) acceptOnce(ctx context.Context, ln net.Listener) error {
	conn, err := ln.Accept()
	if err != nil {
		select {
		case <-ctx.Done():
			return context.Canceled
		default:
		}
		if ne, ok := err.(net.Error); ok && ne.Timeout() {
			return nil
		}
		wrap := fmt.Errorf("%w: %v", ErrAccept, err)
		s.setError(wrap)
		return wrap
	}
	connID := atomic.AddUint64(&s.nextConnID, 1)
	connLogger := s.logger.With("conn_id", connID, "remote", conn.RemoteAddr().String())
	if tcp, ok := conn.(*net.TCPConn); ok {
		_ = tcp.SetNoDelay(true)
		_ = tcp.SetKeepAlive(true)
		_ = tcp.SetKeepAlivePeriod(30 * time.Second)
	}

	cs := newClientSession(connID, conn, reassemble.DefaultCapacity, func(format string, args ...any) {
		connLogger.Warn(fmt.Sprintf(format, args...))
	})

	if !s.table.add(cs) {
		metrics.IncSessionsRejected()
		connLogger.Warn("session_reject_max", "max_clients", s.table.max)
		_ = conn.Close()
		return nil
	}

	peer, err := s.handshake(ctx, cs, s.self)
	if err != nil {
		metrics.IncHandshakeFailures()
		connLogger.Warn("handshake_failed", "error", err)
		s.table.remove(cs)
		_ = conn.Close()
		return nil
	}
	cs.setEstablished(peer)
	metrics.IncSessionsAccepted()
	metrics.SetSessionsActive(s.table.count())
	connLogger = connLogger.With("peer", peer.String())
	connLogger.Info("session_established")

	cs.Tx = s.newWriter(ctx, cs, connLogger)
	s.startReader(ctx, cs, connLogger)
	return nil
}

// Shutdown closes the listener and all sessions, waiting for reader/writer
// goroutines to exit (spec §5 Cancellation/shutdown).
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	ln := s.listener
	s.listener = nil
	s.mu.Unlock()
	if ln != nil {
		_ = ln.Close()
	}
	s.table.closeAll()
	metrics.SetSessionsActive(0)

	done := make(chan struct{})
	go func() { s.wg.Wait(); close(done) }()
	select {
	case <-ctx.Done():
		return fmt.Errorf("%w: %v", ErrShutdown, ctx.Err())
	case <-done:
		s.logger.Info("controller_shutdown")
		return nil
	}
}
