package detector

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/kstaniek/gbt43229-signal-link/internal/deviceid"
	"github.com/kstaniek/gbt43229-signal-link/internal/reassemble"
	"github.com/kstaniek/gbt43229-signal-link/internal/session"
	"github.com/kstaniek/gbt43229-signal-link/internal/transport"
	"github.com/kstaniek/gbt43229-signal-link/internal/wire"
)

func TestDispatch_HeartbeatQueryTriggersResponse(t *testing.T) {
	srvConn, cliConn := net.Pipe()
	defer srvConn.Close()
	defer cliConn.Close()

	self := deviceid.ID{AdminCode: 1, DeviceType: 1, DeviceID: 1}
	controllerID := deviceid.ID{AdminCode: 2, DeviceType: 2, DeviceID: 2}
	e := New(self, noopDialer, fakeSource{})
	sess := newSession(srvConn, 4096, nil)
	sess.setEstablished(controllerID)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sess.tx = transport.NewAsyncTx(ctx, 4, func(frame []byte) error {
		_, err := srvConn.Write(frame)
		return err
	}, transport.Hooks{})
	defer sess.tx.Close()

	query := wire.DataTable{
		Sender:          controllerID,
		Receiver:        self,
		ProtocolVersion: wire.ProtocolVersion,
		Operation:       wire.OpQueryReq,
		ObjectID:        wire.ObjectComm,
	}
	e.dispatch(sess, reassemble.Result{Frame: query})

	_ = cliConn.SetReadDeadline(time.Now().Add(time.Second))
	buf := make([]byte, 256)
	n, err := cliConn.Read(buf)
	if err != nil {
		t.Fatalf("read heartbeat response: %v", err)
	}
	dt, err := wire.Decode(buf[:n])
	if err != nil {
		t.Fatalf("decode heartbeat response: %v", err)
	}
	if dt.Operation != wire.OpQueryResp || dt.ObjectID != wire.ObjectComm {
		t.Fatalf("unexpected response %+v", dt)
	}
}

func TestDispatch_TouchesHeartbeatOnAck(t *testing.T) {
	srvConn, cliConn := net.Pipe()
	defer srvConn.Close()
	defer cliConn.Close()

	self := deviceid.ID{AdminCode: 1, DeviceType: 1, DeviceID: 1}
	e := New(self, noopDialer, fakeSource{})
	sess := newSession(srvConn, 4096, nil)
	stale := sess.heartbeatAge()
	time.Sleep(5 * time.Millisecond)

	ack := wire.DataTable{ProtocolVersion: wire.ProtocolVersion, Operation: wire.OpSetResp, ObjectID: wire.ObjectComm}
	e.dispatch(sess, reassemble.Result{Frame: ack})

	if sess.heartbeatAge() >= stale {
		t.Fatalf("expected heartbeat age reset after HandshakeAck frame")
	}
}

func TestDispatch_RejectsUnrecognizedOperation(t *testing.T) {
	srvConn, cliConn := net.Pipe()
	defer srvConn.Close()
	defer cliConn.Close()

	self := deviceid.ID{AdminCode: 1, DeviceType: 1, DeviceID: 1}
	controllerID := deviceid.ID{AdminCode: 2, DeviceType: 2, DeviceID: 2}
	e := New(self, noopDialer, fakeSource{})
	sess := newSession(srvConn, 4096, nil)
	sess.setEstablished(controllerID)

	bogus := wire.DataTable{
		Sender:          controllerID,
		Receiver:        self,
		ProtocolVersion: wire.ProtocolVersion,
		Operation:       0xFF,
		ObjectID:        wire.ObjectComm,
	}

	done := make(chan struct{})
	go func() {
		e.dispatch(sess, reassemble.Result{Frame: bogus})
		close(done)
	}()

	_ = cliConn.SetReadDeadline(time.Now().Add(time.Second))
	buf := make([]byte, 256)
	n, err := cliConn.Read(buf)
	if err != nil {
		t.Fatalf("read error resp: %v", err)
	}
	<-done
	dt, err := wire.Decode(buf[:n])
	if err != nil {
		t.Fatalf("decode error resp: %v", err)
	}
	if dt.Operation != wire.OpErrorResp || dt.ObjectID != wire.ObjectError {
		t.Fatalf("unexpected response %+v", dt)
	}
	if len(dt.Content) != 1 || dt.Content[0] != session.ErrCodeOperation {
		t.Fatalf("unexpected error code %v, want %d", dt.Content, session.ErrCodeOperation)
	}
}

func TestReadLoop_ExitsOnEOF(t *testing.T) {
	srvConn, cliConn := net.Pipe()
	defer srvConn.Close()

	self := deviceid.ID{AdminCode: 1, DeviceType: 1, DeviceID: 1}
	e := New(self, noopDialer, fakeSource{})
	sess := newSession(srvConn, 4096, nil)

	done := make(chan struct{})
	go e.readLoop(context.Background(), sess, done)

	cliConn.Close()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("readLoop did not exit after peer closed connection")
	}
}
