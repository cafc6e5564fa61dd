package detector

import (
	"context"
	"errors"
	"io"
	"net"
	"time"

	"github.com/kstaniek/gbt43229-signal-link/internal/deviceid"
	"github.com/kstaniek/gbt43229-signal-link/internal/metrics"
	"github.com/kstaniek/gbt43229-signal-link/internal/reassemble"
	"github.com/kstaniek/gbt43229-signal-link/internal/session"
	"github.com/kstaniek/gbt43229-signal-link/internal/wire"
)

// readLoop feeds the reassembler from sess.conn and dispatches each
// outcome, closing done when the connection ends (spec §4.7 step 2).
func (e *Engine) readLoop(ctx context.Context, sess *session, done chan<- struct{}) {
	defer close(done)
	buf := make([]byte, 4096)
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		_ = sess.conn.SetReadDeadline(time.Now().Add(e.readDeadline))
		n, err := sess.conn.Read(buf)
		if n > 0 {
			sess.reasm.Feed(buf[:n], func(res reassemble.Result) {
				e.dispatch(sess, res)
			})
		}
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) {
				return
			}
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				continue
			}
			e.logger.Warn("read_error", "error", err)
			return
		}
	}
}

func (e *Engine) dispatch(sess *session, res reassemble.Result) {
	if res.Err != nil {
		metrics.IncDecodeError(wire.DecodeErrorKind(res.Err))
		e.logger.Warn("decode_error", "error", res.Err)
		return
	}
	metrics.IncFramesRx()
	dt := res.Frame
	if code, ok := session.Validate(dt); !ok {
		e.logger.Warn("semantic_validation_failed", "code", code, "link_addr", dt.LinkAddr,
			"protocol_version", dt.ProtocolVersion, "operation", dt.Operation.String(), "object_id", dt.ObjectID)
		e.sendErrorResp(sess, code, dt.Sender)
		return
	}

	switch session.Classify(dt) {
	case session.HeartbeatQuery:
		sess.touchHeartbeat()
		e.respondHeartbeat(sess, dt)
	case session.HandshakeAck:
		sess.touchHeartbeat()
	case session.UploadStatisticsAck, session.UploadStatusAck:
		e.logger.Debug("upload_acked", "object_id", dt.ObjectID)
	case session.ErrorReport:
		e.logger.Warn("controller_error_report", "content", dt.Content)
	default:
		e.logger.Debug("unrecognized_frame", "operation", dt.Operation.String(), "object_id", dt.ObjectID)
	}
}

func (e *Engine) sendErrorResp(sess *session, code byte, peer deviceid.ID) {
	resp := wire.DataTable{
		Sender:          e.self,
		Receiver:        peer,
		ProtocolVersion: wire.ProtocolVersion,
		Operation:       wire.OpErrorResp,
		ObjectID:        wire.ObjectError,
		Content:         []byte{code},
	}
	frame, err := wire.Encode(resp)
	if err != nil {
		e.logger.Error("encode_error_resp_failed", "error", err)
		return
	}
	if sess.tx != nil {
		if err := sess.tx.SendFrame(frame); err != nil {
			e.logger.Warn("error_resp_dropped", "error", err)
		}
		return
	}
	_ = sess.conn.SetWriteDeadline(time.Now().Add(2 * time.Second))
	_, _ = sess.conn.Write(frame)
}

func (e *Engine) respondHeartbeat(sess *session, query wire.DataTable) {
	resp := wire.DataTable{
		Sender:          e.self,
		Receiver:        query.Sender,
		ProtocolVersion: wire.ProtocolVersion,
		Operation:       wire.OpQueryResp,
		ObjectID:        wire.ObjectComm,
	}
	frame, err := wire.Encode(resp)
	if err != nil {
		e.logger.Error("encode_heartbeat_resp_failed", "error", err)
		return
	}
	if sess.tx != nil {
		if err := sess.tx.SendFrame(frame); err != nil {
			e.logger.Warn("heartbeat_resp_dropped", "error", err)
		}
	}
}
