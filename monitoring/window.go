package monitoring

import (
	"sync"
	"time"

	"github.com/ruteri/storage-policy-backend/interfaces"
)

// window is the rolling metric buffer backing health aggregation. Entries
// older than the window duration are evicted on write and on read, so the
// buffer stays bounded by traffic within one window.
type window struct {
	mu       sync.Mutex
	duration time.Duration
	metrics  []interfaces.OperationMetric
}

func newWindow(duration time.Duration) *window {
	return &window{duration: duration}
}

func (w *window) record(m interfaces.OperationMetric) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.evictLocked(time.Now())
	w.metrics = append(w.metrics, m)
}

// snapshot returns the metrics currently inside the window.
func (w *window) snapshot() []interfaces.OperationMetric {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.evictLocked(time.Now())
	out := make([]interfaces.OperationMetric, len(w.metrics))
	copy(out, w.metrics)
	return out
}

func (w *window) evictLocked(now time.Time) {
	cutoff := now.Add(-w.duration)
	idx := 0
	for idx < len(w.metrics) && w.metrics[idx].Timestamp.Before(cutoff) {
		idx++
	}
	if idx > 0 {
		w.metrics = append(w.metrics[:0], w.metrics[idx:]...)
	}
}
