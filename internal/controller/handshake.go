package controller

import (
	"context"
	"fmt"
	"time"

	"github.com/kstaniek/gbt43229-signal-link/internal/deviceid"
	"github.com/kstaniek/gbt43229-signal-link/internal/reassemble"
	"github.com/kstaniek/gbt43229-signal-link/internal/session"
	"github.com/kstaniek/gbt43229-signal-link/internal/wire"
)

// handshake performs the bounded SET_REQ/SET_RESP exchange on object
// COMMUNICATION required immediately after accept (spec §4.5 Handshake),
// adapted from the teacher's internal/cnl/handshake.go timeout-bounded
// exchange shape.
func (s *Server) handshake(ctx context.Context, cs *ClientSession, self deviceid.ID) (deviceid.ID, error) {
	deadline := time.Now().Add(s.handshakeTimeout)
	if err := cs.Conn.SetDeadline(deadline); err != nil {
		return deviceid.ID{}, fmt.Errorf("%w: set deadline: %v", ErrHandshake, err)
	}
	defer func() { _ = cs.Conn.SetDeadline(time.Time{}) }()

	dt, err := readOneFrame(ctx, cs)
	if err != nil {
		if code := wire.ErrorCode(err); code != 0 {
			s.sendErrorResp(cs, code, s.logger)
		}
		return deviceid.ID{}, fmt.Errorf("%w: %v", ErrHandshake, err)
	}
	if session.Classify(dt) != session.Handshake {
		return deviceid.ID{}, fmt.Errorf("%w: expected SET_REQ/COMMUNICATION, got operation %s object 0x%04X", ErrHandshake, dt.Operation, uint16(dt.ObjectID))
	}

	resp := wire.DataTable{
		LinkAddr:        0,
		Sender:          self,
		Receiver:        dt.Sender,
		ProtocolVersion: wire.ProtocolVersion,
		Operation:       wire.OpSetResp,
		ObjectID:        wire.ObjectComm,
	}
	frame, err := wire.Encode(resp)
	if err != nil {
		return deviceid.ID{}, fmt.Errorf("%w: encode set_resp: %v", ErrHandshake, err)
	}
	if _, err := cs.Conn.Write(frame); err != nil {
		return deviceid.ID{}, fmt.Errorf("%w: write set_resp: %v", ErrHandshake, err)
	}
	return dt.Sender, nil
}

// readOneFrame blocks on cs.Conn until the reassembler yields the first
// outcome (decoded frame or decode error) or the connection's deadline /
// ctx expires.
func readOneFrame(ctx context.Context, cs *ClientSession) (wire.DataTable, error) {
	buf := make([]byte, 4096)
	for {
		select {
		case <-ctx.Done():
			return wire.DataTable{}, ctx.Err()
		default:
		}
		n, err := cs.Conn.Read(buf)
		if n > 0 {
			var got *reassemble.Result
			cs.Reasm.Feed(buf[:n], func(res reassemble.Result) {
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
