package metrics

import "testing"

func TestSnap_CountersIncrement(t *testing.T) {
	before := Snap()
	IncFramesRx()
	IncFramesTx()
	IncSessionsAccepted()
	IncSessionsRejected()
	IncHandshakeFailures()
	IncHeartbeatTimeouts()
	IncDecodeError(DecodeErrCRC)
	IncUpload("realtime")
	IncConnectAttempts()
	IncReconnects()
	after := Snap()

	deltas := map[string]uint64{
		"FramesRx":          after.FramesRx - before.FramesRx,
		"FramesTx":          after.FramesTx - before.FramesTx,
		"SessionsAccepted":  after.SessionsAccepted - before.SessionsAccepted,
		"SessionsRejected":  after.SessionsRejected - before.SessionsRejected,
		"HandshakeFailures": after.HandshakeFailures - before.HandshakeFailures,
		"HeartbeatTimeouts": after.HeartbeatTimeouts - before.HeartbeatTimeouts,
		"DecodeErrors":      after.DecodeErrors - before.DecodeErrors,
		"Uploads":           after.Uploads - before.Uploads,
		"ConnectAttempts":   after.ConnectAttempts - before.ConnectAttempts,
		"Reconnects":        after.Reconnects - before.Reconnects,
	}
	for name, d := range deltas {
		if d != 1 {
			t.Errorf("%s delta = %d, want 1", name, d)
		}
	}
}

func TestReadinessFunc_DefaultReady(t *testing.T) {
	SetReadinessFunc(nil)
	if !IsReady() {
		t.Errorf("expected IsReady() == true with no readiness function registered")
	}
}

func TestReadinessFunc_Custom(t *testing.T) {
	SetReadinessFunc(func() bool { return false })
	defer SetReadinessFunc(nil)
	if IsReady() {
		t.Errorf("expected IsReady() == false when readiness function returns false")
	}
}

func TestInitBuildInfo_DoesNotPanic(t *testing.T) {
	InitBuildInfo("test", "abc123", "2026-08-01")
}
