package detector

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"sync/atomic"
	"time"

	"github.com/kstaniek/gbt43229-signal-link/internal/deviceid"
	"github.com/kstaniek/gbt43229-signal-link/internal/detector/sensor"
	"github.com/kstaniek/gbt43229-signal-link/internal/logging"
	"github.com/kstaniek/gbt43229-signal-link/internal/metrics"
	"github.com/kstaniek/gbt43229-signal-link/internal/reassemble"
	"github.com/kstaniek/gbt43229-signal-link/internal/session"
	"github.com/kstaniek/gbt43229-signal-link/internal/transport"
	"github.com/kstaniek/gbt43229-signal-link/internal/wire"
)

const defaultTxBuffer = 16

// Dialer resolves and opens the connection to the signal controller on
// each (re)connect attempt. cmd/vehicle-detector supplies either a static
// host:port dialer or one backed by internal/discovery's mDNS browse,
// per SPEC_FULL.md §6.3's fallback ordering.
type Dialer func(ctx context.Context) (net.Conn, error)

// Engine drives one DetectorSession across its reconnect lifetime (spec
// §4.7 Client engine). It has no teacher-side TCP-client equivalent; the
// connect/backoff shape is grounded on cmd/can-server/backend_serial.go's
// reconnect loop, generalized from "reopen a serial port" to "redial a TCP
// connection".
type Engine struct {
	self   deviceid.ID
	dial   Dialer
	source sensor.Source
	logger *slog.Logger

	connectRetry       time.Duration
	handshakeTimeout   time.Duration
	heartbeatInterval  time.Duration
	heartbeatTimeout   time.Duration
	realtimeInterval   time.Duration
	statisticsInterval time.Duration
	readDeadline       time.Duration

	current atomic.Pointer[session]
}

type Option func(*Engine)

func New(self deviceid.ID, dial Dialer, source sensor.Source, opts ...Option) *Engine {
	e := &Engine{
		self:               self,
		dial:               dial,
		source:             source,
		logger:             logging.L(),
		connectRetry:       session.ConnectRetry,
		handshakeTimeout:   3 * time.Second,
		heartbeatInterval:  session.HeartbeatInterval,
		heartbeatTimeout:   session.HeartbeatTimeout,
		realtimeInterval:   session.RealtimeInterval,
		statisticsInterval: session.StatisticsInterval,
		readDeadline:       30 * time.Second,
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}
func WithConnectRetry(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.connectRetry = d
		}
	}
}
func WithHandshakeTimeout(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.handshakeTimeout = d
		}
	}
}
func WithHeartbeatInterval(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.heartbeatInterval = d
		}
	}
}
func WithHeartbeatTimeout(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.heartbeatTimeout = d
		}
	}
}
func WithRealtimeInterval(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.realtimeInterval = d
		}
	}
}
func WithStatisticsInterval(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.statisticsInterval = d
		}
	}
}

// Run drives the connect/handshake/serve/reconnect loop until ctx is
// canceled (spec §4.7, §5 shutdown).
func (e *Engine) Run(ctx context.Context) error {
	first := true
	connected := false
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}
		if !first {
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(e.connectRetry):
			}
		}
		first = false

		metrics.IncConnectAttempts()
		conn, err := e.dial(ctx)
		if err != nil {
			e.logger.Warn("connect_failed", "error", err)
			continue
		}
		if tcp, ok := conn.(*net.TCPConn); ok {
			_ = tcp.SetNoDelay(true)
			_ = tcp.SetKeepAlive(true)
			_ = tcp.SetKeepAlivePeriod(30 * time.Second)
		}

		sess := newSession(conn, reassemble.DefaultCapacity, func(format string, args ...any) {
			e.logger.Warn(fmt.Sprintf(format, args...))
		})
		if err := e.handshake(ctx, sess); err != nil {
			e.logger.Warn("handshake_failed", "error", err)
			sess.close()
			metrics.IncHandshakeFailures()
			continue
		}
		if connected {
			metrics.IncReconnects()
		}
		connected = true
		e.logger.Info("session_established", "peer", sess.Peer().String())
		e.runSession(ctx, sess)
	}
}

// runSession spawns the reader, writer, and upload-timer goroutines for
// one connection and blocks until the session ends (peer close, fatal
// read error, or heartbeat timeout).
func (e *Engine) runSession(ctx context.Context, sess *session) {
	sessCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	send := func(frame []byte) error {
		_ = sess.conn.SetWriteDeadline(time.Now().Add(2 * time.Second))
		_, err := sess.conn.Write(frame)
		return err
	}
	sess.tx = transport.NewAsyncTx(sessCtx, defaultTxBuffer, send, transport.Hooks{
		OnError: func(err error) { e.logger.Warn("write_error", "error", err) },
		OnAfter: func() { metrics.IncFramesTx() },
		OnDrop: func() error {
			e.logger.Warn("write_queue_full_drop")
			return nil
		},
	})

	e.current.Store(sess)
	defer e.current.Store(nil)

	done := make(chan struct{})
	go e.readLoop(sessCtx, sess, done)
	go e.heartbeatMonitor(sessCtx, sess, cancel)
	e.startUploadTimers(sessCtx, sess)

	<-done
	sess.close()
}

func (e *Engine) heartbeatMonitor(ctx context.Context, sess *session, stop context.CancelFunc) {
	t := time.NewTicker(e.heartbeatInterval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if sess.heartbeatAge() > e.heartbeatTimeout {
				e.logger.Warn("heartbeat_timeout")
				metrics.IncHeartbeatTimeouts()
				stop()
				return
			}
		}
	}
}

// handshake sends SET_REQ/COMMUNICATION and waits for SET_RESP (spec §4.5
// Handshake, client side).
func (e *Engine) handshake(ctx context.Context, sess *session) error {
	deadline := time.Now().Add(e.handshakeTimeout)
	if err := sess.conn.SetDeadline(deadline); err != nil {
		return fmt.Errorf("detector: set deadline: %w", err)
	}
	defer func() { _ = sess.conn.SetDeadline(time.Time{}) }()

	req := wire.DataTable{
		Sender:          e.self,
		ProtocolVersion: wire.ProtocolVersion,
		Operation:       wire.OpSetReq,
		ObjectID:        wire.ObjectComm,
	}
	frame, err := wire.Encode(req)
	if err != nil {
		return fmt.Errorf("detector: encode set_req: %w", err)
	}
	if _, err := sess.conn.Write(frame); err != nil {
		return fmt.Errorf("detector: write set_req: %w", err)
	}

	dt, err := readOneFrame(ctx, sess)
	if err != nil {
		return fmt.Errorf("detector: read set_resp: %w", err)
	}
	if session.Classify(dt) != session.HandshakeAck {
		return fmt.Errorf("detector: expected SET_RESP/COMMUNICATION, got operation %s object 0x%04X", dt.Operation, uint16(dt.ObjectID))
	}
	sess.setEstablished(dt.Sender)
	return nil
}

// readOneFrame blocks until the reassembler yields the first outcome from
// sess.conn or the connection deadline / ctx expires.
func readOneFrame(ctx context.Context, sess *session) (wire.DataTable, error) {
	buf := make([]byte, 4096)
	for {
		select {
		case <-ctx.Done():
			return wire.DataTable{}, ctx.Err()
		default:
		}
		n, err := sess.conn.Read(buf)
		if n > 0 {
			var got *reassemble.Result
			sess.reasm.Feed(buf[:n], func(res reassemble.Result) {
				if got == nil {
					r := res
					got = &r
				}
			})
			if got != nil {
				if got.Err != nil {
					return wire.DataTable{}, got.Err
				}
				return got.Frame, nil
			}
		}
		if err != nil {
			return wire.DataTable{}, err
		}
	}
}
