package detector

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/kstaniek/gbt43229-signal-link/internal/deviceid"
	"github.com/kstaniek/gbt43229-signal-link/internal/metrics"
	"github.com/kstaniek/gbt43229-signal-link/internal/transport"
	"github.com/kstaniek/gbt43229-signal-link/internal/wire"
)

func TestUpload_SendsFrameAndIncrementsMetric(t *testing.T) {
	srvConn, cliConn := net.Pipe()
	defer srvConn.Close()
	defer cliConn.Close()

	self := deviceid.ID{AdminCode: 1, DeviceType: 1, DeviceID: 1}
	e := New(self, noopDialer, fakeSource{})
	sess := newSession(srvConn, 4096, nil)
	sess.setEstablished(deviceid.ID{AdminCode: 2, DeviceType: 2, DeviceID: 2})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	send := func(frame []byte) error {
		_, err := srvConn.Write(frame)
		return err
	}
	sess.tx = transport.NewAsyncTx(ctx, 4, send, transport.Hooks{})
	defer sess.tx.Close()

	pre := metrics.Snap()
	e.upload(sess, wire.ObjectRealtime, "realtime", make([]byte, 12))

	_ = cliConn.SetReadDeadline(time.Now().Add(time.Second))
	buf := make([]byte, 256)
	n, err := cliConn.Read(buf)
	if err != nil {
		t.Fatalf("read upload frame: %v", err)
	}
	dt, err := wire.Decode(buf[:n])
	if err != nil {
		t.Fatalf("decode upload frame: %v", err)
	}
	if dt.Operation != wire.OpUpload || dt.ObjectID != wire.ObjectRealtime {
		t.Fatalf("unexpected upload frame %+v", dt)
	}

	deadline := time.Now().Add(200 * time.Millisecond)
	for time.Now().Before(deadline) && metrics.Snap().Uploads == pre.Uploads {
		time.Sleep(2 * time.Millisecond)
	}
	if metrics.Snap().Uploads <= pre.Uploads {
		t.Fatalf("expected Uploads metric to increment")
	}
}

func TestUpload_NoopWithoutTx(t *testing.T) {
	srvConn, cliConn := net.Pipe()
	defer srvConn.Close()
	defer cliConn.Close()

	self := deviceid.ID{AdminCode: 1, DeviceType: 1, DeviceID: 1}
	e := New(self, noopDialer, fakeSource{})
	sess := newSession(srvConn, 4096, nil)
	// sess.tx left nil: upload should return without panicking or writing.
	e.upload(sess, wire.ObjectRealtime, "realtime", make([]byte, 12))

	_ = cliConn.SetReadDeadline(time.Now().Add(50 * time.Millisecond))
	if _, err := cliConn.Read(make([]byte, 8)); err == nil {
		t.Fatalf("expected no frame written when tx is nil")
	}
}

func TestSendStatus_EmitsDetectorStatusUpload(t *testing.T) {
	srvConn, cliConn := net.Pipe()
	defer srvConn.Close()
	defer cliConn.Close()

	self := deviceid.ID{AdminCode: 1, DeviceType: 1, DeviceID: 1}
	e := New(self, noopDialer, fakeSource{})
	sess := newSession(srvConn, 4096, nil)
	sess.setEstablished(deviceid.ID{AdminCode: 2, DeviceType: 2, DeviceID: 2})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sess.tx = transport.NewAsyncTx(ctx, 4, func(frame []byte) error {
		_, err := srvConn.Write(frame)
		return err
	}, transport.Hooks{})
	defer sess.tx.Close()

	e.current.Store(sess)
	e.SendStatus()

	_ = cliConn.SetReadDeadline(time.Now().Add(time.Second))
	buf := make([]byte, 256)
	n, err := cliConn.Read(buf)
	if err != nil {
		t.Fatalf("read status frame: %v", err)
	}
	dt, err := wire.Decode(buf[:n])
	if err != nil {
		t.Fatalf("decode status frame: %v", err)
	}
	if dt.Operation != wire.OpUpload || dt.ObjectID != wire.ObjectDetectorOps {
		t.Fatalf("unexpected status frame %+v", dt)
	}
}
