// Package sensor supplies the vehicle detector's upload content. spec.md
// treats the traffic-data generator as an external collaborator specified
// only by interface; this package provides two concrete collaborators
// behind the Source interface (SPEC_FULL.md §6.4).
package sensor

// Source produces the opaque content bytes for each upload kind the
// detector sends. Callers treat the returned bytes as already in wire
// layout; Source does not know about framing or CRC.
type Source interface {
	// Realtime returns one TRAFFIC_REALTIME (object 0x0301) content
	// payload.
	Realtime() []byte
	// Statistics returns one TRAFFIC_STATS (object 0x0302) content
	// payload.
	Statistics() []byte
	// Status returns one DETECTOR_STATUS (object 0x0205) content
	// payload.
	Status() []byte
	// Close releases any underlying resource (a serial port, for
	// example). Simulated sources have nothing to release.
	Close() error
}
