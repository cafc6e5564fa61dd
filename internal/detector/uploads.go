package detector

import (
	"context"
	"time"

	"github.com/kstaniek/gbt43229-signal-link/internal/metrics"
	"github.com/kstaniek/gbt43229-signal-link/internal/wire"
)

// startUploadTimers runs the REALTIME_INTERVAL and STATISTICS_INTERVAL
// tickers that drive the client's spontaneous uploads (spec §4.5
// Uploads). DETECTOR_STATUS is application-driven per spec.md and is not
// ticked here; UploadStatus is exposed via Engine.SendStatus for a caller
// to invoke on its own policy.
func (e *Engine) startUploadTimers(ctx context.Context, sess *session) {
	go e.tickUploads(ctx, sess, e.realtimeInterval, wire.ObjectRealtime, "realtime", e.source.Realtime)
	go e.tickUploads(ctx, sess, e.statisticsInterval, wire.ObjectStatistics, "statistics", e.source.Statistics)
}

func (e *Engine) tickUploads(ctx context.Context, sess *session, interval time.Duration, object wire.ObjectID, label string, content func() []byte) {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			e.upload(sess, object, label, content())
		}
	}
}

func (e *Engine) upload(sess *session, object wire.ObjectID, label string, content []byte) {
	dt := wire.DataTable{
		Sender:          e.self,
		Receiver:        sess.Peer(),
		ProtocolVersion: wire.ProtocolVersion,
		Operation:       wire.OpUpload,
		ObjectID:        object,
		Content:         content,
	}
	frame, err := wire.Encode(dt)
	if err != nil {
		e.logger.Error("encode_upload_failed", "object", label, "error", err)
		return
	}
	if sess.tx == nil {
		return
	}
	if err := sess.tx.SendFrame(frame); err != nil {
		// spec §4.5: send failures log and do not retry the specific sample.
		e.logger.Debug("upload_dropped", "object", label, "error", err)
		return
	}
	metrics.IncUpload(label)
}

// SendStatus emits one DETECTOR_STATUS upload on the currently established
// session, if any. It is exported so cmd/vehicle-detector can drive it on
// its own application policy (spec.md §4.5: "driven by application
// policy"), rather than on a fixed ticker like the other two upload kinds.
// It is a no-op when no session is established.
func (e *Engine) SendStatus() {
	sess := e.current.Load()
	if sess == nil {
		return
	}
	e.upload(sess, wire.ObjectDetectorOps, "detector-status", e.source.Status())
}
