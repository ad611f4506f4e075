package playback

import (
	"fmt"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/ideamans/go-http-playback-proxy/internal/domain"
	"github.com/ideamans/go-http-playback-proxy/internal/observability"
)

// toleranceFraction and toleranceFloorMs implement spec.md §4.8's "±10% or
// ±50 ms, whichever is larger" timing drift tolerance.
const (
	toleranceFraction = 0.10
	toleranceFloorMs  = 50.0
)

// Tolerance returns the allowed drift around a target millisecond offset,
// used by tests asserting streaming fidelity.
func Tolerance(targetMs int64) time.Duration {
	frac := float64(targetMs) * toleranceFraction
	ms := math.Max(frac, toleranceFloorMs)
	return time.Duration(ms) * time.Millisecond
}

// streamHopByHop lists response headers stripped before writing to the
// playback client, per spec.md §4.8 ("transfer-encoding, connection,
// keep-alive, proxy-*, te, trailer, upgrade").
var streamHopByHop = []string{
	"Transfer-Encoding", "Connection", "Keep-Alive",
	"Proxy-Authenticate", "Proxy-Authorization", "Proxy-Connection",
	"Te", "Trailer", "Upgrade",
}

// Sleeper abstracts wall-clock waiting so tests can inject a fake clock;
// production code passes RealSleeper.
type Sleeper interface {
	Sleep(d time.Duration)
}

// RealSleeper sleeps on the real wall clock via time.Sleep.
type RealSleeper struct{}

// Sleep blocks for d.
func (RealSleeper) Sleep(d time.Duration) { time.Sleep(d) }

// Stream writes tx to w against wall-clock deadlines anchored at
// arrivedAt (spec.md §4.8's `T0`), implementing the TTFB sleep, per-chunk
// sleep+write, and close-deadline sleep in order. A write error (client
// disconnect) after headers are sent is abandoned silently, matching
// spec.md §4.8's "If the client disconnects mid-stream, abandon the write
// silently". logger may be nil; when set, a target deadline already
// passed by more than Tolerance when reached is logged as a non-fatal
// TimingDeadlineMissed (spec.md §7); a smaller lag is not logged.
func Stream(w http.ResponseWriter, tx *domain.Transaction, arrivedAt time.Time, sleeper Sleeper, logger *zerolog.Logger, metrics *observability.Metrics) {
	if sleeper == nil {
		sleeper = RealSleeper{}
	}

	sleepUntil(arrivedAt, tx.TTFBMs, sleeper, logger, metrics, tx.URL, "ttfb")

	header := w.Header()
	for name, v := range tx.RawHeaders {
		for _, value := range v.AsSlice() {
			header.Add(name, value)
		}
	}
	for _, name := range streamHopByHop {
		header.Del(name)
	}
	header.Set("Content-Length", strconv.FormatInt(tx.TotalBytes(), 10))
	header.Set("Connection", "close")

	status := http.StatusOK
	if tx.StatusCode != nil {
		status = *tx.StatusCode
	}
	w.WriteHeader(status)
	flusher, canFlush := w.(http.Flusher)

	for i, chunk := range tx.Chunks {
		sleepUntil(arrivedAt, chunk.TargetTimeMs, sleeper, logger, metrics, tx.URL, fmt.Sprintf("chunk:%d", i))
		if _, err := w.Write(chunk.Bytes); err != nil {
			return
		}
		if canFlush {
			flusher.Flush()
		}
	}

	sleepUntil(arrivedAt, tx.TargetCloseTime, sleeper, logger, metrics, tx.URL, "close")
}

// sleepUntil blocks until targetMs has elapsed since base. If that instant
// has already passed it returns immediately, and logs/counts a
// missed-deadline warning only when the lag exceeds Tolerance(targetMs)
// (spec.md §7's TimingDeadlineMissed: "log, continue").
func sleepUntil(base time.Time, targetMs int64, sleeper Sleeper, logger *zerolog.Logger, metrics *observability.Metrics, url, stage string) {
	deadline := base.Add(time.Duration(targetMs) * time.Millisecond)
	d := time.Until(deadline)
	if d > 0 {
		sleeper.Sleep(d)
		return
	}
	if d < -Tolerance(targetMs) {
		if logger != nil {
			logger.Warn().Str("url", url).Str("stage", stage).Dur("behind", -d).Msg("playback: timing deadline missed")
		}
		if metrics != nil {
			metrics.TimingDeadlineMissTotal.Inc()
		}
	}
}
