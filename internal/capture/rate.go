package capture

import (
	"math"
	"sync"
	"time"
)

const (
	// rateWindow is the number of arrivals the meter keeps.
	rateWindow = 90

	// A stream is stable when the FPS stddev stays under 15% of the mean and
	// the mean jitter under 20% of the expected interval.
	fpsStabilityThreshold    = 0.15
	jitterStabilityThreshold = 0.20
)

// RateStats describes the recent frame arrival rate.
type RateStats struct {
	Frames    int     `json:"frames"` // arrivals in the window
	FPSMean   float64 `json:"fps_mean"`
	FPSStdDev float64 `json:"fps_stddev"`
	FPSMin    float64 `json:"fps_min"`
	FPSMax    float64 `json:"fps_max"`
	JitterMS  float64 `json:"jitter_ms"` // mean deviation from the expected interval
	Stable    bool    `json:"stable"`
}

// RateMeter tracks frame arrivals over a sliding window.
type RateMeter struct {
	mu    sync.Mutex
	times []time.Time
	next  int
	full  bool
}

// Observe records one arrival.
func (m *RateMeter) Observe(t time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.times == nil {
		m.times = make([]time.Time, rateWindow)
	}
	m.times[m.next] = t
	m.next = (m.next + 1) % len(m.times)
	if m.next == 0 {
		m.full = true
	}
}

// Stats computes rate statistics over the current window.
func (m *RateMeter) Stats() RateStats {
	m.mu.Lock()
	var window []time.Time
	if m.full {
		window = append(window, m.times[m.next:]...)
		window = append(window, m.times[:m.next]...)
	} else {
		window = append(window, m.times[:m.next]...)
	}
	m.mu.Unlock()

	return rateStats(window)
}

// rateStats expects arrivals in order.
func rateStats(times []time.Time) RateStats {
	n := len(times)
	st := RateStats{Frames: n}
	if n < 2 {
		return st
	}

	span := times[n-1].Sub(times[0]).Seconds()
	if span <= 0 {
		return st
	}
	st.FPSMean = float64(n-1) / span

	intervals := make([]float64, 0, n-1)
	for i := 1; i < n; i++ {
		if d := times[i].Sub(times[i-1]).Seconds(); d > 0 {
			intervals = append(intervals, d)
		}
	}
	if len(intervals) == 0 {
		return st
	}

	var sumSq float64
	st.FPSMin, st.FPSMax = math.Inf(1), 0
	for _, d := range intervals {
		fps := 1 / d
		st.FPSMin = math.Min(st.FPSMin, fps)
		st.FPSMax = math.Max(st.FPSMax, fps)
		sumSq += (fps - st.FPSMean) * (fps - st.FPSMean)
	}
	st.FPSStdDev = math.Sqrt(sumSq / float64(len(intervals)))

	expected := 1 / st.FPSMean
	var jitter float64
	for _, d := range intervals {
		jitter += math.Abs(d - expected)
	}
	jitter /= float64(len(intervals))
	st.JitterMS = jitter * 1000

	st.Stable = st.FPSStdDev < st.FPSMean*fpsStabilityThreshold &&
		jitter < expected*jitterStabilityThreshold
	return st
}
