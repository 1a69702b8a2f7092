package copy

import "time"

// RateMeter is an exponentially-smoothed bytes/sec meter (spec.md §4.7
// "two exponentially-smoothed rate meters"). Each Add call folds the
// instantaneous rate since the last sample into a running average with
// weight decaying over period, so a meter used for live display can use a
// short period (snappy) while a second instance over the same byte stream
// uses a longer one for a stable ETA.
type RateMeter struct {
	period time.Duration

	rate     float64 // bytes/sec, exponentially smoothed
	lastTime time.Time
	start    time.Time
	total    int64

	now func() time.Time
}

// NewRateMeter returns a meter smoothed over period (lftp's default display
// period is one second; a longer period, e.g. 30s, gives a steadier ETA).
func NewRateMeter(period time.Duration) *RateMeter {
	return &RateMeter{period: period, now: time.Now}
}

// Reset clears accumulated rate and restarts the clock, used when a
// transfer begins or resumes after a seek discontinuity.
func (m *RateMeter) Reset() {
	n := m.now()
	m.rate = 0
	m.lastTime = n
	m.start = n
	m.total = 0
}

// Add folds n newly-transferred bytes into the smoothed rate.
func (m *RateMeter) Add(n int) {
	if n <= 0 {
		return
	}
	now := m.now()
	if m.lastTime.IsZero() {
		m.lastTime = now
		m.start = now
	}
	m.total += int64(n)
	dt := now.Sub(m.lastTime).Seconds()
	if dt <= 0 {
		return
	}
	inst := float64(n) / dt
	// Exponential decay: weight this sample by how much of the smoothing
	// period has elapsed since the last one, capped at 1 so a long gap
	// doesn't overshoot and simply replaces the average outright.
	alpha := dt / m.period.Seconds()
	if alpha > 1 {
		alpha = 1
	}
	m.rate = m.rate*(1-alpha) + inst*alpha
	m.lastTime = now
}

// Get returns the current smoothed rate in bytes/sec.
func (m *RateMeter) Get() float64 { return m.rate }

// ETASeconds estimates how many seconds remain to transfer bytesLeft at the
// current rate; ok is false when the rate is not yet known (no bytes
// transferred) so a caller can render "unknown" instead of an infinite or
// bogus value.
func (m *RateMeter) ETASeconds(bytesLeft int64) (secs float64, ok bool) {
	if m.rate <= 0 || bytesLeft <= 0 {
		return 0, bytesLeft <= 0
	}
	return float64(bytesLeft) / m.rate, true
}
