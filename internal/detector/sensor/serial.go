package sensor

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/tarm/serial"
)

// Port abstracts tarm/serial for testability, mirroring the teacher's
// internal/serial.Port.
type Port interface {
	Read(p []byte) (int, error)
	Write(p []byte) (int, error)
	Close() error
}

// OpenPort is a hook for tests, overriding the real tarm/serial.OpenPort
// call (grounded on the teacher's internal/serial.Open).
var OpenPort = func(name string, baud int, readTimeout time.Duration) (Port, error) {
	cfg := &serial.Config{Name: name, Baud: baud, ReadTimeout: readTimeout}
	return serial.OpenPort(cfg)
}

// Serial reads newline-delimited CSV samples ("vehicle_count,occupancy_pct,
// avg_speed_kmh,headway_ms,queue_length") from a real attached sensor and
// reformats them into the wire payload layouts Simulated also produces, so
// internal/detector does not need to know which backend is in use.
//
// Grounded on the teacher's cmd/can-server/backend_serial.go RX-loop shape
// (background goroutine reading into an accumulator) and
// internal/serial/port.go's Port abstraction; here the reader runs
// synchronously under a mutex instead since each Source call pulls
// exactly one sample rather than broadcasting continuously.
type Serial struct {
	port   Port
	reader *bufio.Reader
	laneID uint8

	mu   sync.Mutex
	last sample
}

type sample struct {
	vehicleCount int
	occupancyPct int
	avgSpeedKmh  int
	headwayMs    int
	queueLength  int
}

// NewSerial opens dev at baud and wraps it as a Source.
func NewSerial(dev string, baud int, readTimeout time.Duration, laneID uint8) (*Serial, error) {
	p, err := OpenPort(dev, baud, readTimeout)
	if err != nil {
		return nil, fmt.Errorf("sensor: open serial %s: %w", dev, err)
	}
	return &Serial{port: p, reader: bufio.NewReader(p), laneID: laneID}, nil
}

// readSample reads the next CSV line, falling back to the last
// successfully parsed sample on a read timeout or parse error so a
// flaky link does not stall uploads.
func (s *Serial) readSample() sample {
	s.mu.Lock()
	defer s.mu.Unlock()

	line, err := s.reader.ReadString('\n')
	if err != nil {
		return s.last
	}
	fields := strings.Split(strings.TrimSpace(line), ",")
	if len(fields) < 5 {
		return s.last
	}
	parsed := make([]int, 5)
	for i, f := range fields[:5] {
		v, err := strconv.Atoi(strings.TrimSpace(f))
		if err != nil {
			return s.last
		}
		parsed[i] = v
	}
	s.last = sample{
		vehicleCount: parsed[0],
		occupancyPct: parsed[1],
		avgSpeedKmh:  parsed[2],
		headwayMs:    parsed[3],
		queueLength:  parsed[4],
	}
	return s.last
}

func (s *Serial) Realtime() []byte {
	sm := s.readSample()
	buf := make([]byte, 12)
	binary.LittleEndian.PutUint16(buf[0:2], uint16(sm.vehicleCount))
	buf[2] = uint8(sm.occupancyPct)
	binary.LittleEndian.PutUint16(buf[3:5], uint16(sm.avgSpeedKmh))
	binary.LittleEndian.PutUint16(buf[5:7], uint16(sm.headwayMs))
	buf[7] = s.laneID
	buf[8] = uint8(sm.queueLength)
	buf[9] = 0
	binary.LittleEndian.PutUint16(buf[10:12], 0)
	return buf
}

func (s *Serial) Statistics() []byte {
	sm := s.readSample()
	buf := make([]byte, 16)
	binary.LittleEndian.PutUint32(buf[0:4], uint32(sm.vehicleCount))
	buf[4] = uint8(sm.occupancyPct)
	binary.LittleEndian.PutUint16(buf[5:7], uint16(sm.avgSpeedKmh))
	buf[7] = uint8(sm.queueLength)
	binary.LittleEndian.PutUint16(buf[8:10], 60)
	buf[10] = s.laneID
	binary.LittleEndian.PutUint32(buf[11:15], 0)
	buf[15] = 0
	return buf
}

func (s *Serial) Status() []byte {
	buf := make([]byte, 6)
	buf[0] = 0
	buf[1] = s.laneID
	binary.LittleEndian.PutUint32(buf[2:6], 0)
	return buf
}

func (s *Serial) Close() error { return s.port.Close() }
