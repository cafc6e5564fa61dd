package controller

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/kstaniek/gbt43229-signal-link/internal/deviceid"
	"github.com/kstaniek/gbt43229-signal-link/internal/wire"
)

func TestHandshake_Success(t *testing.T) {
	srvConn, cliConn := net.Pipe()
	defer srvConn.Close()
	defer cliConn.Close()

	self := deviceid.ID{AdminCode: 0x1AD24, DeviceType: 0x01, DeviceID: 0x01}
	peer := deviceid.ID{AdminCode: 0x1AD25, DeviceType: 0x02, DeviceID: 0x100}
	srv := NewServer(self, WithHandshakeTimeout(time.Second))
	cs := newClientSession(1, srvConn, 4096, nil)

	req := wire.DataTable{
		Sender:          peer,
		ProtocolVersion: wire.ProtocolVersion,
		Operation:       wire.OpSetReq,
		ObjectID:        wire.ObjectComm,
	}
	frame, err := wire.Encode(req)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	done := make(chan error, 1)
	var got deviceid.ID
	go func() {
		var herr error
		got, herr = srv.handshake(context.Background(), cs, self)
		done <- herr
	}()

	if _, err := cliConn.Write(frame); err != nil {
		t.Fatalf("client write: %v", err)
	}

	respBuf := make([]byte, 256)
	_ = cliConn.SetReadDeadline(time.Now().Add(time.Second))
	n, err := cliConn.Read(respBuf)
	if err != nil {
		t.Fatalf("client read resp: %v", err)
	}
	resp, err := wire.Decode(respBuf[:n])
	if err != nil {
		t.Fatalf("decode resp: %v", err)
	}
	if resp.Operation != wire.OpSetResp || resp.ObjectID != wire.ObjectComm {
		t.Fatalf("resp = %+v, want SET_RESP/COMMUNICATION", resp)
	}
	if !resp.Sender.Equal(self) {
		t.Fatalf("resp sender = %+v, want %+v", resp.Sender, self)
	}

	if err := <-done; err != nil {
		t.Fatalf("handshake returned error: %v", err)
	}
	if !got.Equal(peer) {
		t.Fatalf("handshake returned peer = %+v, want %+v", got, peer)
	}
}

func TestHandshake_WrongFirstFrameRejected(t *testing.T) {
	srvConn, cliConn := net.Pipe()
	defer srvConn.Close()
	defer cliConn.Close()

	self := deviceid.ID{AdminCode: 1, DeviceType: 1, DeviceID: 1}
	srv := NewServer(self, WithHandshakeTimeout(time.Second))
	cs := newClientSession(1, srvConn, 4096, nil)

	// A heartbeat query is not a valid handshake opener.
	bad := wire.DataTable{ProtocolVersion: wire.ProtocolVersion, Operation: wire.OpQueryReq, ObjectID: wire.ObjectComm}
	frame, err := wire.Encode(bad)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	done := make(chan error, 1)
	go func() {
		_, herr := srv.handshake(context.Background(), cs, self)
		done <- herr
	}()

	if _, err := cliConn.Write(frame); err != nil {
		t.Fatalf("client write: %v", err)
	}
	if err := <-done; err == nil {
		t.Fatalf("expected handshake error for non-SET_REQ opener")
	}
}

func TestHandshake_TimesOut(t *testing.T) {
	srvConn, cliConn := net.Pipe()
	defer srvConn.Close()
	defer cliConn.Close()

	self := deviceid.ID{AdminCode: 1, DeviceType: 1, DeviceID: 1}
	srv := NewServer(self, WithHandshakeTimeout(30*time.Millisecond))
	cs := newClientSession(1, srvConn, 4096, nil)

	start := time.Now()
	_, err := srv.handshake(context.Background(), cs, self)
	if err == nil {
		t.Fatalf("expected timeout error")
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Fatalf("handshake took too long to time out: %v", elapsed)
	}
}
