package heartbeat

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pulsewatch/internal/models"
)

func TestFoldFirstSample(t *testing.T) {
	s := Fold(models.ResponseStats{}, 42.5)

	assert.Equal(t, int64(1), s.TotalPings)
	assert.Equal(t, 42.5, s.Avg)
	assert.Equal(t, 42.5, s.Min)
	assert.Equal(t, 42.5, s.Max)
}

func TestFoldBounds(t *testing.T) {
	samples := []float64{100, 20, 350, 80, 41, 999.5, 0.25}

	var s models.ResponseStats
	for _, v := range samples {
		s = Fold(s, v)

		// Invariant holds after every step, not just at the end.
		assert.LessOrEqual(t, s.Min, s.Avg)
		assert.LessOrEqual(t, s.Avg, s.Max)
	}

	assert.Equal(t, int64(len(samples)), s.TotalPings)
	assert.Equal(t, 0.25, s.Min)
	assert.Equal(t, 999.5, s.Max)
}

func TestFoldStreamingMean(t *testing.T) {
	samples := []float64{10, 20, 30, 40}

	var s models.ResponseStats
	for _, v := range samples {
		s = Fold(s, v)
	}

	assert.InDelta(t, 25.0, s.Avg, 1e-9)
}

// Feeding the same sequence into a fresh aggregate must reproduce identical
// results, including when the fold is "interrupted" and resumed from the
// intermediate value, which is what a process restart amounts to.
func TestFoldReproducible(t *testing.T) {
	samples := []float64{5, 123.4, 9000, 0.001, 77, 77, 31.5}

	fold := func(start models.ResponseStats, vals []float64) models.ResponseStats {
		s := start
		for _, v := range vals {
			s = Fold(s, v)
		}
		return s
	}

	oneShot := fold(models.ResponseStats{}, samples)
	again := fold(models.ResponseStats{}, samples)
	require.Equal(t, oneShot, again)

	// Restart after every prefix length.
	for cut := 0; cut <= len(samples); cut++ {
		resumed := fold(fold(models.ResponseStats{}, samples[:cut]), samples[cut:])
		assert.Equal(t, oneShot, resumed, "restart after %d samples", cut)
	}
}
