// Package detector implements the vehicle-detector side of the GB/T 43229
// session protocol: connect-with-backoff, handshake, reassembler feed, and
// the realtime/statistics/heartbeat upload timers (spec §4.7 Client
// engine), grounded on the teacher's cmd/can-server/backend_serial.go
// reconnect-loop shape (the teacher has no TCP client, only a reconnecting
// serial reader).
package detector

import (
	"net"
	"sync"
	"time"

	"github.com/kstaniek/gbt43229-signal-link/internal/deviceid"
	"github.com/kstaniek/gbt43229-signal-link/internal/reassemble"
	"github.com/kstaniek/gbt43229-signal-link/internal/transport"
)

// session is one live connection to the signal controller (spec §3
// DetectorSession). It holds the last-heartbeat timestamp; the interval
// settings live on Engine, which starts the upload and heartbeat tickers
// afresh for each connection.
type session struct {
	conn  net.Conn
	reasm *reassemble.Reassembler
	tx    *transport.AsyncTx

	mu            sync.RWMutex
	peer          deviceid.ID
	established   bool
	lastHeartbeat time.Time
}

func newSession(conn net.Conn, capacity int, onNoise func(string, ...any)) *session {
	return &session{
		conn:          conn,
		reasm:         reassemble.New(capacity, onNoise),
		lastHeartbeat: time.Now(),
	}
}

func (s *session) setEstablished(peer deviceid.ID) {
	s.mu.Lock()
	s.peer = peer
	s.established = true
	s.lastHeartbeat = time.Now()
	s.mu.Unlock()
}

func (s *session) touchHeartbeat() {
	s.mu.Lock()
	s.lastHeartbeat = time.Now()
	s.mu.Unlock()
}

func (s *session) heartbeatAge() time.Duration {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return time.Since(s.lastHeartbeat)
}

func (s *session) Peer() deviceid.ID {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.peer
}

func (s *session) close() {
	_ = s.conn.Close()
	if s.tx != nil {
		s.tx.Close()
	}
}
