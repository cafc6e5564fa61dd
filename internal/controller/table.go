package controller

import (
	"net"
	"sync"
	"time"

	"github.com/kstaniek/gbt43229-signal-link/internal/deviceid"
	"github.com/kstaniek/gbt43229-signal-link/internal/reassemble"
	"github.com/kstaniek/gbt43229-signal-link/internal/transport"
)

// ClientSession is one connected vehicle detector, from accept to teardown
// (spec §3 ClientSession).
type ClientSession struct {
	ID     uint64
	Conn   net.Conn
	Remote string
	Tx     *transport.AsyncTx
	Reasm  *reassemble.Reassembler

	mu            sync.RWMutex
	peer          deviceid.ID
	established   bool
	lastHeartbeat time.Time
}

func newClientSession(id uint64, conn net.Conn, capacity int, onNoise func(string, ...any)) *ClientSession {
	return &ClientSession{
		ID:            id,
		Conn:          conn,
		Remote:        conn.RemoteAddr().String(),
		Reasm:         reassemble.New(capacity, onNoise),
		lastHeartbeat: time.Now(),
	}
}

// Peer returns the handshaken peer identity, if any.
func (c *ClientSession) Peer() (deviceid.ID, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.peer, c.established
}

func (c *ClientSession) setEstablished(id deviceid.ID) {
	c.mu.Lock()
	c.peer = id
	c.established = true
	c.lastHeartbeat = time.Now()
	c.mu.Unlock()
}

func (c *ClientSession) touchHeartbeat() {
	c.mu.Lock()
	c.lastHeartbeat = time.Now()
	c.mu.Unlock()
}

func (c *ClientSession) heartbeatAge() time.Duration {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return time.Since(c.lastHeartbeat)
}

func (c *ClientSession) isEstablished() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.established
}

// sessionTable is the bounded, mutex-guarded collection of active sessions
// (spec §5: maximum sessions = 64), mirroring the teacher's Server.clients
// map shape but keyed on *ClientSession rather than a hub client.
type sessionTable struct {
	mu       sync.RWMutex
	sessions map[*ClientSession]struct{}
	max      int
}

func newSessionTable(max int) *sessionTable {
	return &sessionTable{sessions: make(map[*ClientSession]struct{}), max: max}
}

// add registers cs, returning false if the table is already at capacity.
func (t *sessionTable) add(cs *ClientSession) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.max > 0 && len(t.sessions) >= t.max {
		return false
	}
	t.sessions[cs] = struct{}{}
	return true
}

func (t *sessionTable) remove(cs *ClientSession) {
	t.mu.Lock()
	delete(t.sessions, cs)
	t.mu.Unlock()
}

func (t *sessionTable) count() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.sessions)
}

func (t *sessionTable) snapshot() []*ClientSession {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]*ClientSession, 0, len(t.sessions))
	for cs := range t.sessions {
		out = append(out, cs)
	}
	return out
}

func (t *sessionTable) closeAll() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for cs := range t.sessions {
		_ = cs.Conn.Close()
		if cs.Tx != nil {
			cs.Tx.Close()
		}
		delete(t.sessions, cs)
	}
}
