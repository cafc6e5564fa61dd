// Package metrics exposes the Prometheus counters and gauges shared by the
// signal controller and vehicle detector binaries.
package metrics

import (
	"net/http"
	"sync"
	"sync/atomic"

	"github.com/kstaniek/gbt43229-signal-link/internal/logging"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Prometheus series (spec SPEC_FULL.md §6.5).
var (
	FramesRx = promauto.NewCounter(prometheus.CounterOpts{
		Name: "frames_rx_total",
		Help: "Total wire frames successfully decoded.",
	})
	FramesTx = promauto.NewCounter(prometheus.CounterOpts{
		Name: "frames_tx_total",
		Help: "Total wire frames written to a peer.",
	})
	SessionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "sessions_active",
		Help: "Current number of established sessions.",
	})
	SessionsAccepted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sessions_accepted_total",
		Help: "Total inbound connections accepted (controller only).",
	})
	SessionsRejected = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sessions_rejected_total",
		Help: "Total inbound connections rejected, e.g. session table full.",
	})
	HandshakeFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "handshake_failures_total",
		Help: "Total handshake attempts that failed or timed out.",
	})
	HeartbeatTimeouts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "heartbeat_timeouts_total",
		Help: "Total sessions dropped for missing a heartbeat deadline.",
	})
	DecodeErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "decode_errors_total",
		Help: "Total frame decode errors by taxonomy kind.",
	}, []string{"kind"})
	Uploads = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "uploads_total",
		Help: "Total upload messages processed by object.",
	}, []string{"object"})
	ConnectAttempts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "connect_attempts_total",
		Help: "Total outbound connection attempts (detector only).",
	})
	Reconnects = promauto.NewCounter(prometheus.CounterOpts{
		Name: "reconnects_total",
		Help: "Total successful reconnects after a dropped session (detector only).",
	})
	BuildInfo = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "build_info",
		Help: "Build metadata (value is always 1).",
	}, []string{"version", "commit", "date"})

	readinessMu sync.RWMutex
	readinessFn func() bool
)

// Decode error label constants (stable label values to bound cardinality),
// mirroring the wire error taxonomy in internal/wire/errors.go.
const (
	DecodeErrFrame      = "frame"
	DecodeErrEscape     = "escape"
	DecodeErrCRC        = "crc"
	DecodeErrIncomplete = "incomplete"
	DecodeErrOversize   = "oversize"
	DecodeErrOther      = "other"
)

// StartHTTP serves Prometheus metrics at /metrics and readiness at /ready.
func StartHTTP(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
		if IsReady() {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("ready\n"))
			return
		}
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("not ready\n"))
	})

	srv := &http.Server{
		Addr:    addr,
		Handler: mux,
	}
	go func() {
		logging.L().Info("metrics_listen", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logging.L().Error("metrics_http_error", "error", err)
		}
	}()
	return srv
}

// Local mirrored counters, cheap to read for periodic logging without
// scraping Prometheus in-process.
var (
	localFramesRx          uint64
	localFramesTx          uint64
	localSessionsAccepted  uint64
	localSessionsRejected  uint64
	localHandshakeFailures uint64
	localHeartbeatTimeouts uint64
	localDecodeErrors      uint64
	localUploads           uint64
	localConnectAttempts   uint64
	localReconnects        uint64
)

// Snapshot is a cheap copy of the local counters.
type Snapshot struct {
	FramesRx          uint64
	FramesTx          uint64
	SessionsAccepted  uint64
	SessionsRejected  uint64
	HandshakeFailures uint64
	HeartbeatTimeouts uint64
	DecodeErrors      uint64
	Uploads           uint64
	ConnectAttempts   uint64
	Reconnects        uint64
}

func Snap() Snapshot {
	return Snapshot{
		FramesRx:          atomic.LoadUint64(&localFramesRx),
		FramesTx:          atomic.LoadUint64(&localFramesTx),
		SessionsAccepted:  atomic.LoadUint64(&localSessionsAccepted),
		SessionsRejected:  atomic.LoadUint64(&localSessionsRejected),
		HandshakeFailures: atomic.LoadUint64(&localHandshakeFailures),
		HeartbeatTimeouts: atomic.LoadUint64(&localHeartbeatTimeouts),
		DecodeErrors:      atomic.LoadUint64(&localDecodeErrors),
		Uploads:           atomic.LoadUint64(&localUploads),
		ConnectAttempts:   atomic.LoadUint64(&localConnectAttempts),
		Reconnects:        atomic.LoadUint64(&localReconnects),
	}
}

func IncFramesRx() {
	FramesRx.Inc()
	atomic.AddUint64(&localFramesRx, 1)
}

func IncFramesTx() {
	FramesTx.Inc()
	atomic.AddUint64(&localFramesTx, 1)
}

func SetSessionsActive(n int) { SessionsActive.Set(float64(n)) }

func IncSessionsAccepted() {
	SessionsAccepted.Inc()
	atomic.AddUint64(&localSessionsAccepted, 1)
}

func IncSessionsRejected() {
	SessionsRejected.Inc()
	atomic.AddUint64(&localSessionsRejected, 1)
}

func IncHandshakeFailures() {
	HandshakeFailures.Inc()
	atomic.AddUint64(&localHandshakeFailures, 1)
}

func IncHeartbeatTimeouts() {
	HeartbeatTimeouts.Inc()
	atomic.AddUint64(&localHeartbeatTimeouts, 1)
}

func IncDecodeError(kind string) {
	DecodeErrors.WithLabelValues(kind).Inc()
	atomic.AddUint64(&localDecodeErrors, 1)
}

func IncUpload(object string) {
	Uploads.WithLabelValues(object).Inc()
	atomic.AddUint64(&localUploads, 1)
}

func IncConnectAttempts() {
	ConnectAttempts.Inc()
	atomic.AddUint64(&localConnectAttempts, 1)
}

func IncReconnects() {
	Reconnects.Inc()
	atomic.AddUint64(&localReconnects, 1)
}

// InitBuildInfo sets the build info gauge and pre-registers the decode-error
// label series so the first real occurrence does not pay registration
// latency. Upload label series are not pre-registered.
func InitBuildInfo(version, commit, date string) {
	BuildInfo.WithLabelValues(version, commit, date).Set(1)
	for _, lbl := range []string{
		DecodeErrFrame, DecodeErrEscape, DecodeErrCRC, DecodeErrIncomplete, DecodeErrOversize, DecodeErrOther,
	} {
		DecodeErrors.WithLabelValues(lbl).Add(0)
	}
}

// SetReadinessFunc registers a function used by /ready and IsReady.
func SetReadinessFunc(fn func() bool) { readinessMu.Lock(); readinessFn = fn; readinessMu.Unlock() }

// IsReady invokes the registered readiness function if present.
func IsReady() bool {
	readinessMu.RLock()
	fn := readinessFn
	readinessMu.RUnlock()
	if fn == nil {
		return true
	}
	return fn()
}
