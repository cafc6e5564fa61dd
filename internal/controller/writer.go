package controller

import (
	"context"
	"log/slog"
	"time"

	"github.com/kstaniek/gbt43229-signal-link/internal/metrics"
	"github.com/kstaniek/gbt43229-signal-link/internal/transport"
)

// newWriter starts the per-session serialized writer (spec §5: "outbound
// writes per session are serialized"), grounded on the teacher's
// internal/server/writer.go but rebuilt on transport.AsyncTx since this
// protocol sends individual request/response frames rather than batched
// telemetry.
func (s *Server) newWriter(ctx context.Context, cs *ClientSession, logger *slog.Logger) *transport.AsyncTx {
	send := func(frame []byte) error {
		_ = cs.Conn.SetWriteDeadline(time.Now().Add(2 * time.Second))
		_, err := cs.Conn.Write(frame)
		return err
	}
	return transport.NewAsyncTx(ctx, defaultTxBuffer, send, transport.Hooks{
		OnError: func(err error) {
			logger.Warn("write_error", "error", err)
		},
		OnAfter: func() {
			metrics.IncFramesTx()
		},
		OnDrop: func() error {
			logger.Warn("write_queue_full_drop")
			return nil
		},
	})
}
