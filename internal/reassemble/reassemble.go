// Package reassemble turns a TCP byte stream into a sequence of complete
// GB/T 43229 frames, tolerant of fragmentation, concatenation, and
// inter-frame noise (spec §4.4).
package reassemble

import (
	"bytes"
	"fmt"

	"github.com/kstaniek/gbt43229-signal-link/internal/wire"
)

// DefaultCapacity is the minimum buffer capacity spec §4.4 requires
// (RX_CAP >= 4096).
const DefaultCapacity = 4096

// compactThreshold mirrors the teacher's CompactBuffer heuristic: only copy
// the unread tail into a fresh backing array once the buffer has grown
// past this size and most of it is already consumed.
const compactThreshold = 1024

const delimiter = 0xC0

// Result is one outcome of a Feed call: either a successfully decoded
// frame, or a decode error for the bytes between one pair of delimiters.
type Result struct {
	Frame wire.DataTable
	Err   error
}

// Reassembler holds the append-only receive buffer for one connection.
type Reassembler struct {
	buf      bytes.Buffer
	capacity int
	onNoise  func(format string, args ...any)
}

// New creates a Reassembler with the given capacity (at least
// DefaultCapacity is enforced). onNoise, if non-nil, receives a
// human-readable diagnostic each time the buffer is cleared for overflowing
// capacity; bytes discarded as pure noise are dropped without a diagnostic.
// Pass nil to discard diagnostics.
func New(capacity int, onNoise func(format string, args ...any)) *Reassembler {
	if capacity < DefaultCapacity {
		capacity = DefaultCapacity
	}
	if onNoise == nil {
		onNoise = func(string, ...any) {}
	}
	return &Reassembler{capacity: capacity, onNoise: onNoise}
}

// compact reclaims consumed prefix capacity once the backing array has
// grown large relative to what is still unread, mirroring the teacher's
// CompactBuffer in internal/serial/codec.go.
func (r *Reassembler) compact() {
	data := r.buf.Bytes()
	if len(data) < compactThreshold {
		return
	}
	if c := r.buf.Cap(); c > 0 && len(data)*4 < c {
		clone := make([]byte, len(data))
		copy(clone, data)
		r.buf.Reset()
		r.buf.Write(clone)
	}
}

// Feed appends chunk to the buffer and extracts every complete frame it can
// find, invoking emit once per outcome (spec §4.4 steps 1-3). emit is
// called synchronously and in arrival order; Feed returns once the buffer
// holds no more complete frames.
func (r *Reassembler) Feed(chunk []byte, emit func(Result)) {
	if r.buf.Len()+len(chunk) > r.capacity {
		r.onNoise("reassemble: buffer would overflow capacity %d (have %d bytes, got %d more); dropping buffered bytes", r.capacity, r.buf.Len(), len(chunk))
		r.buf.Reset()
		// A chunk bigger than capacity on its own still cannot be buffered
		// whole; keep its capacity-sized tail so a delimiter arriving right
		// at the boundary is not permanently lost.
		if len(chunk) > r.capacity {
			chunk = chunk[len(chunk)-r.capacity:]
		}
	}
	r.buf.Write(chunk)

	for {
		data := r.buf.Bytes()
		s := bytes.IndexByte(data, delimiter)
		if s < 0 {
			r.buf.Reset()
			return
		}
		// The escape codec guarantees no unescaped 0xC0 survives inside a
		// valid frame, so the next 0xC0 after the opener is unambiguously
		// the closer (spec §4.4; the defensive "preceded by 0xDB" check
		// spec §9 mentions is optional and not needed when the escape
		// codec is correct, so it is omitted here).
		rel := bytes.IndexByte(data[s+1:], delimiter)
		if rel < 0 {
			if s > 0 {
				r.buf.Next(s)
			}
			r.compact()
			return
		}
		e := s + 1 + rel

		frameBytes := data[s : e+1]
		dt, err := wire.Decode(frameBytes)
		r.buf.Next(e + 1)
		if err != nil {
			emit(Result{Err: fmt.Errorf("reassemble: %w", err)})
		} else {
			emit(Result{Frame: dt})
		}
	}
}
