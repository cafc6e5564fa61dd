package wire

import (
	"encoding/binary"
	"fmt"

	"github.com/kstaniek/gbt43229-signal-link/internal/deviceid"
)

// Operation is the 8-bit operation code (spec §3).
type Operation uint8

const (
	OpQueryReq   Operation = 0x80
	OpSetReq     Operation = 0x81
	OpUpload     Operation = 0x82
	OpQueryResp  Operation = 0x83
	OpSetResp    Operation = 0x84
	OpUploadResp Operation = 0x85
	OpErrorResp  Operation = 0x86
)

func (o Operation) String() string {
	switch o {
	case OpQueryReq:
		return "QUERY_REQ"
	case OpSetReq:
		return "SET_REQ"
	case OpUpload:
		return "UPLOAD"
	case OpQueryResp:
		return "QUERY_RESP"
	case OpSetResp:
		return "SET_RESP"
	case OpUploadResp:
		return "UPLOAD_RESP"
	case OpErrorResp:
		return "ERROR_RESP"
	default:
		return fmt.Sprintf("op(0x%02X)", uint8(o))
	}
}

// ObjectID is the 16-bit object identifier (spec §6).
type ObjectID uint16

const (
	ObjectError       ObjectID = 0x0000
	ObjectComm        ObjectID = 0x0101
	ObjectDetectorOps ObjectID = 0x0205
	ObjectRealtime    ObjectID = 0x0301
	ObjectStatistics  ObjectID = 0x0302
)

// ProtocolVersion is the single fixed version byte this repository speaks.
const ProtocolVersion uint8 = 0x10

// MaxContentLen is the largest content length spec §3 allows.
const MaxContentLen = 1500

// headerLen is the fixed serialized header size (link_addr + 2*DeviceId +
// protocol_version + operation + object_id), before content and CRC.
const headerLen = 2 + 7 + 7 + 1 + 1 + 2 // = 20

// minUnescapedLen is the smallest a decoded (unescaped) frame interior can
// be: the fixed header plus the 2-byte CRC, with zero content bytes.
const minUnescapedLen = headerLen + 2

// MaxUnescapedLen is the largest unescaped frame interior spec §4.3 allows.
const MaxUnescapedLen = 2048

// DataTable is the logical message carried by one frame (spec §3).
type DataTable struct {
	LinkAddr        uint16 // reserved, always 0x0000
	Sender          deviceid.ID
	Receiver        deviceid.ID
	ProtocolVersion uint8
	Operation       Operation
	ObjectID        ObjectID
	Content         []byte // length in [0, MaxContentLen]
}

// Equal reports whether d and o carry the same logical message (used by
// round-trip tests; treats a nil and empty Content as equal).
func (d DataTable) Equal(o DataTable) bool {
	if d.LinkAddr != o.LinkAddr || !d.Sender.Equal(o.Sender) || !d.Receiver.Equal(o.Receiver) ||
		d.ProtocolVersion != o.ProtocolVersion || d.Operation != o.Operation || d.ObjectID != o.ObjectID {
		return false
	}
	if len(d.Content) != len(o.Content) {
		return false
	}
	for i := range d.Content {
		if d.Content[i] != o.Content[i] {
			return false
		}
	}
	return true
}

func putDeviceID(b []byte, id deviceid.ID) {
	b[0] = byte(id.AdminCode)
	b[1] = byte(id.AdminCode >> 8)
	b[2] = byte(id.AdminCode >> 16)
	binary.LittleEndian.PutUint16(b[3:5], id.DeviceType)
	binary.LittleEndian.PutUint16(b[5:7], id.DeviceID)
}

func getDeviceID(b []byte) deviceid.ID {
	return deviceid.ID{
		AdminCode:  uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16,
		DeviceType: binary.LittleEndian.Uint16(b[3:5]),
		DeviceID:   binary.LittleEndian.Uint16(b[5:7]),
	}
}

// serializeHeader writes the header+content (unescaped, CRC not yet
// appended) into a freshly allocated slice, per the octet order in spec §6.
func serializeHeader(d DataTable) []byte {
	buf := make([]byte, headerLen+len(d.Content))
	binary.LittleEndian.PutUint16(buf[0:2], d.LinkAddr)
	putDeviceID(buf[2:9], d.Sender)
	putDeviceID(buf[9:16], d.Receiver)
	buf[16] = d.ProtocolVersion
	buf[17] = byte(d.Operation)
	binary.LittleEndian.PutUint16(buf[18:20], uint16(d.ObjectID))
	copy(buf[20:], d.Content)
	return buf
}

// Encode serializes d into a complete wire frame: 0xC0, the escaped
// header|content|CRC, 0xC0 (spec §4.3 Encode).
func Encode(d DataTable) ([]byte, error) {
	if len(d.Content) > MaxContentLen {
		return nil, fmt.Errorf("wire encode: content length %d: %w", len(d.Content), ErrInvalidParam)
	}
	plain := serializeHeader(d)
	crc := CRC16(plain)
	plain = append(plain, byte(crc), byte(crc>>8))

	out := make([]byte, 1+escapedLen(len(plain))+1)
	out[0] = delimiter
	n, err := escape(plain, out[1:len(out)-1])
	if err != nil {
		return nil, err
	}
	out[1+n] = delimiter
	return out[:1+n+1], nil
}

// Decode parses a complete wire frame (including both delimiters) into a
// DataTable, per spec §4.3 Decode. The returned error is one of the
// sentinel errors in errors.go (wrapped with context).
func Decode(frame []byte) (DataTable, error) {
	if len(frame) < 2 {
		return DataTable{}, fmt.Errorf("decode: frame too short (%d bytes): %w", len(frame), newFrameStartErr())
	}
	if frame[0] != delimiter {
		return DataTable{}, fmt.Errorf("decode: first byte 0x%02X: %w", frame[0], newFrameStartErr())
	}
	if frame[len(frame)-1] != delimiter {
		return DataTable{}, fmt.Errorf("decode: last byte 0x%02X: %w", frame[len(frame)-1], newFrameEndErr())
	}
	interior, err := Unescape(frame[1 : len(frame)-1])
	if err != nil {
		return DataTable{}, err
	}
	if len(interior) > MaxUnescapedLen {
		return DataTable{}, fmt.Errorf("decode: unescaped length %d: %w", len(interior), ErrOversize)
	}
	if len(interior) < minUnescapedLen {
		return DataTable{}, fmt.Errorf("decode: unescaped length %d < %d: %w", len(interior), minUnescapedLen, ErrIncomplete)
	}

	plain := interior[:len(interior)-2]
	wantCRC := uint16(interior[len(interior)-2]) | uint16(interior[len(interior)-1])<<8
	gotCRC := CRC16(plain)
	if gotCRC != wantCRC {
		return DataTable{}, fmt.Errorf("decode: crc got 0x%04X want 0x%04X: %w", gotCRC, wantCRC, ErrCRC)
	}

	var d DataTable
	d.LinkAddr = binary.LittleEndian.Uint16(plain[0:2])
	d.Sender = getDeviceID(plain[2:9])
	d.Receiver = getDeviceID(plain[9:16])
	d.ProtocolVersion = plain[16]
	d.Operation = Operation(plain[17])
	d.ObjectID = ObjectID(binary.LittleEndian.Uint16(plain[18:20]))
	if n := len(plain) - headerLen; n > 0 {
		d.Content = append([]byte(nil), plain[headerLen:]...)
	}
	return d, nil
}
