package controller

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"time"

	"github.com/kstaniek/gbt43229-signal-link/internal/metrics"
	"github.com/kstaniek/gbt43229-signal-link/internal/reassemble"
	"github.com/kstaniek/gbt43229-signal-link/internal/session"
	"github.com/kstaniek/gbt43229-signal-link/internal/wire"
)

// startReader launches the per-session read loop: refresh the deadline,
// read, feed the reassembler, dispatch every yielded outcome (spec §4.6
// step 3), grounded on the teacher's internal/server/reader.go.
func (s *Server) startReader(ctx context.Context, cs *ClientSession, logger *slog.Logger) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer s.teardown(cs, logger)

		buf := make([]byte, 4096)
		for {
			select {
			case <-ctx.Done():
				return
			default:
			}
			_ = cs.Conn.SetReadDeadline(time.Now().Add(s.readDeadline))
			n, err := cs.Conn.Read(buf)
			if n > 0 {
				cs.Reasm.Feed(buf[:n], func(res reassemble.Result) {
					s.dispatch(ctx, cs, res, logger)
				})
			}
			if err != nil {
				if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) {
					return
				}
				if ne, ok := err.(net.Error); ok && ne.Timeout() {
					continue
				}
				wrap := fmt.Errorf("%w: %v", ErrConnRead, err)
				s.setError(wrap)
				return
			}
		}
	}()
}

// dispatch classifies one reassembler outcome and reacts per spec §4.5.
func (s *Server) dispatch(ctx context.Context, cs *ClientSession, res reassemble.Result, logger *slog.Logger) {
	if res.Err != nil {
		metrics.IncDecodeError(wire.DecodeErrorKind(res.Err))
		logger.Warn("decode_error", "error", res.Err)
		s.sendErrorResp(cs, wire.ErrorCode(res.Err), logger)
		return
	}

	metrics.IncFramesRx()
	dt := res.Frame
	if code, ok := session.Validate(dt); !ok {
		logger.Warn("semantic_validation_failed", "code", code, "link_addr", dt.LinkAddr,
			"protocol_version", dt.ProtocolVersion, "operation", dt.Operation.String(), "object_id", dt.ObjectID)
		s.sendErrorResp(cs, code, logger)
		return
	}
	kind := session.Classify(dt)

	switch kind {
	case session.HeartbeatQuery:
		// Detectors do not query the controller; log and ignore.
		logger.Debug("unexpected_heartbeat_query")
	case session.HeartbeatResponse, session.Handshake:
		cs.touchHeartbeat()
	case session.UploadRealtime:
		cs.touchHeartbeat()
		metrics.IncUpload("realtime")
	case session.UploadStatistics:
		cs.touchHeartbeat()
		metrics.IncUpload("statistics")
		s.ackUpload(cs, dt, logger)
	case session.UploadStatus:
		cs.touchHeartbeat()
		metrics.IncUpload("detector-status")
		s.ackUpload(cs, dt, logger)
	case session.ErrorReport:
		logger.Warn("peer_error_report", "content", dt.Content)
	default:
		logger.Debug("unrecognized_frame", "operation", dt.Operation.String(), "object_id", dt.ObjectID)
	}

	if s.onFrame != nil {
		s.onFrame(cs, kind, dt)
	}
}

func (s *Server) ackUpload(cs *ClientSession, dt wire.DataTable, logger *slog.Logger) {
	resp := wire.DataTable{
		Sender:          dt.Receiver,
		Receiver:        dt.Sender,
		ProtocolVersion: wire.ProtocolVersion,
		Operation:       wire.OpUploadResp,
		ObjectID:        dt.ObjectID,
	}
	frame, err := wire.Encode(resp)
	if err != nil {
		logger.Error("encode_upload_resp_failed", "error", err)
		return
	}
	if cs.Tx != nil {
		if err := cs.Tx.SendFrame(frame); err != nil {
			logger.Warn("upload_resp_dropped", "error", err)
		}
	}
}

func (s *Server) sendErrorResp(cs *ClientSession, code byte, logger *slog.Logger) {
	peer, _ := cs.Peer()
	resp := wire.DataTable{
		Sender:          s.self,
		Receiver:        peer,
		ProtocolVersion: wire.ProtocolVersion,
		Operation:       wire.OpErrorResp,
		ObjectID:        wire.ObjectError,
		Content:         []byte{code},
	}
	frame, err := wire.Encode(resp)
	if err != nil {
		logger.Error("encode_error_resp_failed", "error", err)
		return
	}
	if cs.Tx != nil {
		if err := cs.Tx.SendFrame(frame); err != nil {
			logger.Warn("error_resp_dropped", "error", err)
		}
		return
	}
	// Tx not yet started (error occurred mid-handshake read); write directly.
	_ = cs.Conn.SetWriteDeadline(time.Now().Add(2 * time.Second))
	_, _ = cs.Conn.Write(frame)
}

func (s *Server) teardown(cs *ClientSession, logger *slog.Logger) {
	_ = cs.Conn.Close()
	if cs.Tx != nil {
		cs.Tx.Close()
	}
	s.table.remove(cs)
	metrics.SetSessionsActive(s.table.count())
	logger.Info("session_closed")
}
