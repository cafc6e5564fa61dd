package controller

import (
	"context"
	"time"

	"github.com/kstaniek/gbt43229-signal-link/internal/metrics"
	"github.com/kstaniek/gbt43229-signal-link/internal/wire"
)

// startHeartbeatLoop runs the HEARTBEAT_INTERVAL ticker that issues
// QUERY_REQ to every established session and purges sessions past
// HEARTBEAT_TIMEOUT (spec §4.5 Heartbeat, §4.6 step 4), grounded on the
// teacher's ticker-driven background-goroutine pattern in
// cmd/can-server/metrics_logger.go.
func (s *Server) startHeartbeatLoop(ctx context.Context) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		t := time.NewTicker(s.heartbeatEvery)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				s.tickHeartbeats()
			}
		}
	}()
}

func (s *Server) tickHeartbeats() {
	for _, cs := range s.table.snapshot() {
		if !cs.isEstablished() {
			continue
		}
		if cs.heartbeatAge() > s.heartbeatTimeout {
			metrics.IncHeartbeatTimeouts()
			s.logger.Warn("heartbeat_timeout", "conn_id", cs.ID, "remote", cs.Remote)
			_ = cs.Conn.Close()
			continue
		}
		s.sendHeartbeatQuery(cs)
	}
}

func (s *Server) sendHeartbeatQuery(cs *ClientSession) {
	peer, _ := cs.Peer()
	dt := wire.DataTable{
		Sender:          s.self,
		Receiver:        peer,
		ProtocolVersion: wire.ProtocolVersion,
		Operation:       wire.OpQueryReq,
		ObjectID:        wire.ObjectComm,
	}
	frame, err := wire.Encode(dt)
	if err != nil {
		s.logger.Error("encode_heartbeat_query_failed", "error", err)
		return
	}
	if cs.Tx != nil {
		if err := cs.Tx.SendFrame(frame); err != nil {
			s.logger.Warn("heartbeat_query_dropped", "error", err)
		}
	}
}
