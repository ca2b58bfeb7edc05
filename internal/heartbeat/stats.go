package heartbeat

import "pulsewatch/internal/models"

// Fold incorporates one response-time sample (milliseconds) into the running
// aggregate. It is a pure function of (stats, sample): replaying the same
// sample sequence from the same starting point always yields the same result,
// so the aggregate survives process restarts via the persisted monitor row.
func Fold(s models.ResponseStats, sampleMs float64) models.ResponseStats {
	s.TotalPings++
	s.Avg = (s.Avg*float64(s.TotalPings-1) + sampleMs) / float64(s.TotalPings)
	if s.TotalPings == 1 {
		s.Min = sampleMs
		s.Max = sampleMs
		return s
	}
	if sampleMs < s.Min {
		s.Min = sampleMs
	}
	if sampleMs > s.Max {
		s.Max = sampleMs
	}
	return s
}
