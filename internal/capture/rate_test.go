package capture

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func arrivals(start time.Time, intervals ...time.Duration) []time.Time {
	out := []time.Time{start}
	for _, d := range intervals {
		start = start.Add(d)
		out = append(out, start)
	}
	return out
}

func TestRateStatsSteady(t *testing.T) {
	var iv []time.Duration
	for i := 0; i < 29; i++ {
		iv = append(iv, 100*time.Millisecond)
	}
	st := rateStats(arrivals(time.Unix(0, 0), iv...))

	assert.Equal(t, 30, st.Frames)
	assert.InDelta(t, 10.0, st.FPSMean, 0.001)
	assert.InDelta(t, 0.0, st.FPSStdDev, 0.001)
	assert.InDelta(t, 10.0, st.FPSMin, 0.001)
	assert.InDelta(t, 10.0, st.FPSMax, 0.001)
	assert.InDelta(t, 0.0, st.JitterMS, 0.001)
	assert.True(t, st.Stable)
}

func TestRateStatsUnsteady(t *testing.T) {
	st := rateStats(arrivals(time.Unix(0, 0),
		50*time.Millisecond, 250*time.Millisecond, 50*time.Millisecond, 250*time.Millisecond))

	assert.InDelta(t, 20.0, st.FPSMax, 0.001)
	assert.InDelta(t, 4.0, st.FPSMin, 0.001)
	assert.False(t, st.Stable)
}

func TestRateStatsTooFew(t *testing.T) {
	assert.Equal(t, RateStats{}, rateStats(nil))
	assert.Equal(t, RateStats{Frames: 1}, rateStats(arrivals(time.Now())))
	now := time.Now()
	assert.Equal(t, RateStats{Frames: 2}, rateStats([]time.Time{now, now}))
}

func TestRateMeterWindow(t *testing.T) {
	var m RateMeter
	start := time.Unix(100, 0)
	for i := 0; i < rateWindow+10; i++ {
		m.Observe(start.Add(time.Duration(i) * 40 * time.Millisecond))
	}
	st := m.Stats()
	assert.Equal(t, rateWindow, st.Frames)
	assert.InDelta(t, 25.0, st.FPSMean, 0.01)
	assert.True(t, st.Stable)
}
