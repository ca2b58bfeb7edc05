package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestIntervalAndGraceCompose(t *testing.T) {
	m := Monitor{
		IntervalDays: 1, IntervalHours: 2, IntervalMinutes: 30,
		GraceHours: 1, GraceMinutes: 15,
	}

	assert.Equal(t, 26*time.Hour+30*time.Minute, m.Interval())
	assert.Equal(t, 75*time.Minute, m.Grace())
}

func TestDeadline(t *testing.T) {
	m := Monitor{IntervalMinutes: 5, GraceMinutes: 5}

	_, ok := m.Deadline()
	assert.False(t, ok, "never-pinged monitor has no deadline")

	last := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	m.LastPing = &last
	deadline, ok := m.Deadline()
	assert.True(t, ok)
	assert.Equal(t, last.Add(10*time.Minute), deadline)
}

func TestStats(t *testing.T) {
	m := Monitor{AvgResponseTime: 50, MinResponseTime: 10, MaxResponseTime: 90, TotalPings: 4}

	s := m.Stats()
	assert.Equal(t, ResponseStats{Avg: 50, Min: 10, Max: 90, TotalPings: 4}, s)
}
