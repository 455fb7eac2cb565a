package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Timer measures elapsed time for histogram observations
type Timer struct {
	start time.Time
}

// NewTimer creates a timer starting now
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// Duration returns the time elapsed since the timer was created
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}

// ObserveDuration records the elapsed time on the given observer
func (t *Timer) ObserveDuration(obs prometheus.Observer) {
	obs.Observe(t.Duration().Seconds())
}
