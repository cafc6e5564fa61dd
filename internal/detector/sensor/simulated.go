package sensor

import (
	"encoding/binary"
	"math/rand"
)

// Simulated is a PRNG-driven traffic-data generator: the default Source,
// supplied because spec.md treats payload content as opaque to the
// framing/session core and leaves the implementer "free in choice of value
// sources" (spec.md §9). Byte layouts are not specified by spec.md beyond
// the 12-byte TRAFFIC_REALTIME content shown in spec.md §8 scenario 2;
// this layout satisfies that length.
type Simulated struct {
	rng *rand.Rand

	laneID      uint8
	queueLength uint8
}

// NewSimulated creates a Simulated source seeded with seed. This package
// does not call time.Now itself, so the output is deterministic for a given
// seed.
func NewSimulated(seed int64, laneID uint8) *Simulated {
	return &Simulated{rng: rand.New(rand.NewSource(seed)), laneID: laneID}
}

// Realtime content layout (12 bytes, little-endian):
//
//	vehicle_count   uint16
//	occupancy_pct   uint8
//	avg_speed_kmh   uint16
//	headway_ms      uint16
//	lane_id         uint8
//	queue_length    uint8
//	status          uint8
//	reserved        uint16
func (s *Simulated) Realtime() []byte {
	buf := make([]byte, 12)
	binary.LittleEndian.PutUint16(buf[0:2], uint16(s.rng.Intn(8)))
	buf[2] = uint8(s.rng.Intn(101))
	binary.LittleEndian.PutUint16(buf[3:5], uint16(20+s.rng.Intn(80)))
	binary.LittleEndian.PutUint16(buf[5:7], uint16(500+s.rng.Intn(4500)))
	buf[7] = s.laneID
	s.queueLength = uint8(s.rng.Intn(6))
	buf[8] = s.queueLength
	buf[9] = 0 // status: 0 = OK
	binary.LittleEndian.PutUint16(buf[10:12], 0)
	return buf
}

// Statistics content layout (16 bytes, little-endian), aggregating the
// STATISTICS_INTERVAL window:
//
//	total_vehicles   uint32
//	avg_occupancy_pct uint8
//	avg_speed_kmh    uint16
//	max_queue        uint8
//	interval_sec     uint16
//	lane_id          uint8
//	reserved         uint32
//	reserved2        uint8
func (s *Simulated) Statistics() []byte {
	buf := make([]byte, 16)
	binary.LittleEndian.PutUint32(buf[0:4], uint32(s.rng.Intn(600)))
	buf[4] = uint8(s.rng.Intn(101))
	binary.LittleEndian.PutUint16(buf[5:7], uint16(20+s.rng.Intn(80)))
	buf[7] = uint8(s.rng.Intn(6))
	binary.LittleEndian.PutUint16(buf[8:10], 60)
	buf[10] = s.laneID
	binary.LittleEndian.PutUint32(buf[11:15], 0)
	buf[15] = 0
	return buf
}

// Status content layout (6 bytes, little-endian):
//
//	device_status  uint8 (0 = OK, non-zero = fault code)
//	lane_id        uint8
//	uptime_sec     uint32
func (s *Simulated) Status() []byte {
	buf := make([]byte, 6)
	buf[0] = 0
	buf[1] = s.laneID
	binary.LittleEndian.PutUint32(buf[2:6], uint32(s.rng.Intn(1<<20)))
	return buf
}

func (s *Simulated) Close() error { return nil }
