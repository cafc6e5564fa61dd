package detector

import (
	"net"
	"testing"
	"time"

	"github.com/kstaniek/gbt43229-signal-link/internal/deviceid"
)

func TestSession_EstablishedLifecycle(t *testing.T) {
	srvConn, cliConn := net.Pipe()
	defer srvConn.Close()
	defer cliConn.Close()

	sess := newSession(srvConn, 4096, nil)
	if sess.Peer() != (deviceid.ID{}) {
		t.Fatalf("expected zero-value peer before handshake")
	}

	peer := deviceid.ID{AdminCode: 0x1AD24, DeviceType: 0x01, DeviceID: 0x01}
	sess.setEstablished(peer)
	if got := sess.Peer(); !got.Equal(peer) {
		t.Fatalf("Peer() = %+v, want %+v", got, peer)
	}
}

func TestSession_HeartbeatAge(t *testing.T) {
	srvConn, cliConn := net.Pipe()
	defer srvConn.Close()
	defer cliConn.Close()

	sess := newSession(srvConn, 4096, nil)
	time.Sleep(5 * time.Millisecond)
	before := sess.heartbeatAge()
	sess.touchHeartbeat()
	after := sess.heartbeatAge()
	if after >= before {
		t.Fatalf("expected touchHeartbeat to reset age: before=%v after=%v", before, after)
	}
}

func TestSession_Close(t *testing.T) {
	srvConn, cliConn := net.Pipe()
	defer cliConn.Close()
	sess := newSession(srvConn, 4096, nil)
	sess.close()
	if _, err := srvConn.Write([]byte{0x01}); err == nil {
		t.Fatalf("expected write on closed session conn to fail")
	}
}
