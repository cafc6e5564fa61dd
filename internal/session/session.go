// Package session classifies decoded GB/T 43229 frames into the handful of
// message kinds that drive the shared session state machine (spec §4.5,
// §9 DESIGN NOTES: "a cleaner structure is a sum type of message kinds").
package session

import (
	"time"

	"github.com/kstaniek/gbt43229-signal-link/internal/wire"
)

// Timing constants from spec §4.5/§4.7. Both internal/controller and
// internal/detector use these as their defaults; each also accepts an
// override via its functional-options constructor so tests do not have to
// wait out real 5s/15s/60s intervals.
const (
	ConnectRetry       = 5 * time.Second
	HeartbeatInterval  = 5 * time.Second
	HeartbeatTimeout   = 15 * time.Second
	RealtimeInterval   = 2 * time.Second
	StatisticsInterval = 60 * time.Second
)

// Kind is the closed set of message categories the session core acts on.
// Any (operation, object_id) pair not named here classifies as Unknown and
// is logged and dropped by both endpoints.
type Kind int

const (
	Unknown Kind = iota
	Handshake
	HandshakeAck
	HeartbeatQuery
	HeartbeatResponse
	UploadRealtime
	UploadStatistics
	UploadStatus
	UploadStatisticsAck
	UploadStatusAck
	ErrorReport
)

func (k Kind) String() string {
	switch k {
	case Handshake:
		return "handshake"
	case HandshakeAck:
		return "handshake-ack"
	case HeartbeatQuery:
		return "heartbeat-query"
	case HeartbeatResponse:
		return "heartbeat-response"
	case UploadRealtime:
		return "upload-realtime"
	case UploadStatistics:
		return "upload-statistics"
	case UploadStatus:
		return "upload-status"
	case UploadStatisticsAck:
		return "upload-statistics-ack"
	case UploadStatusAck:
		return "upload-status-ack"
	case ErrorReport:
		return "error-report"
	default:
		return "unknown"
	}
}

// Classify maps a decoded DataTable's (operation, object_id) pair to a
// Kind. It does not inspect Content.
func Classify(d wire.DataTable) Kind {
	switch d.ObjectID {
	case wire.ObjectComm:
		switch d.Operation {
		case wire.OpSetReq:
			return Handshake
		case wire.OpSetResp:
			return HandshakeAck
		case wire.OpQueryReq:
			return HeartbeatQuery
		case wire.OpQueryResp:
			return HeartbeatResponse
		}
	case wire.ObjectRealtime:
		if d.Operation == wire.OpUpload {
			return UploadRealtime
		}
	case wire.ObjectStatistics:
		switch d.Operation {
		case wire.OpUpload:
			return UploadStatistics
		case wire.OpUploadResp:
			return UploadStatisticsAck
		}
	case wire.ObjectDetectorOps:
		switch d.Operation {
		case wire.OpUpload:
			return UploadStatus
		case wire.OpUploadResp:
			return UploadStatusAck
		}
	case wire.ObjectError:
		if d.Operation == wire.OpErrorResp {
			return ErrorReport
		}
	}
	return Unknown
}

// IsRecognizedObject reports whether id is one of the four object
// identifiers the session core understands (spec §6); all others are
// logged and ignored by both endpoints.
func IsRecognizedObject(id wire.ObjectID) bool {
	switch id {
	case wire.ObjectComm, wire.ObjectDetectorOps, wire.ObjectRealtime, wire.ObjectStatistics:
		return true
	default:
		return false
	}
}

// IsRecognizedOperation reports whether op is one of the seven operation
// codes spec §3 defines.
func IsRecognizedOperation(op wire.Operation) bool {
	switch op {
	case wire.OpQueryReq, wire.OpSetReq, wire.OpUpload, wire.OpQueryResp, wire.OpSetResp, wire.OpUploadResp, wire.OpErrorResp:
		return true
	default:
		return false
	}
}

// Semantic ERROR_RESP codes spec §4.5 defines above the codec-level 1/2/3/128
// produced by wire.ErrorCode. These are checked once a frame has already
// decoded successfully.
const (
	ErrCodeLinkAddr    byte = 4
	ErrCodeProtocolVer byte = 5
	ErrCodeOperation   byte = 6
	ErrCodeObjectID    byte = 7
)

// Validate checks the fields a successful wire.Decode cannot reject on its
// own: the reserved link address, protocol version, and the operation/object
// identifiers' membership in the sets spec §3/§6 define. It returns the
// ERROR_RESP code to send and ok=false on the first field that fails; a
// recognized (operation, object_id) pair that doesn't name an actual
// message (e.g. QUERY_REQ against TRAFFIC_REALTIME) is not a Validate
// failure — Classify reports that combination as Unknown instead.
func Validate(d wire.DataTable) (code byte, ok bool) {
	switch {
	case d.LinkAddr != 0:
		return ErrCodeLinkAddr, false
	case d.ProtocolVersion != wire.ProtocolVersion:
		return ErrCodeProtocolVer, false
	case !IsRecognizedOperation(d.Operation):
		return ErrCodeOperation, false
	case !IsRecognizedObject(d.ObjectID):
		return ErrCodeObjectID, false
	default:
		return 0, true
	}
}
