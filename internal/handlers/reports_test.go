package handlers

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"pulsewatch/internal/models"
)

func logAt(monitorID int64, status bool, rt *float64, minute int) *models.PingLog {
	return &models.PingLog{
		MonitorID:    monitorID,
		Status:       status,
		ResponseTime: rt,
		Timestamp:    time.Date(2026, 3, 1, 12, minute, 0, 0, time.UTC),
	}
}

func rt(v float64) *float64 { return &v }

func TestCountDownTransitions(t *testing.T) {
	logs := []*models.PingLog{
		logAt(1, true, rt(10), 0),
		logAt(1, false, nil, 11), // flip 1
		logAt(1, true, rt(12), 12),
		logAt(2, false, nil, 13), // first sighting of 2, not a flip
		logAt(1, false, nil, 25), // flip 2
		logAt(2, false, nil, 26), // still down, no flip
		logAt(2, true, rt(8), 27),
		logAt(2, false, nil, 40), // flip 3
	}

	assert.Equal(t, 3, countDownTransitions(logs))
}

func TestCountDownTransitionsEmpty(t *testing.T) {
	assert.Equal(t, 0, countDownTransitions(nil))
}

func TestResponseTimeSeries(t *testing.T) {
	logs := []*models.PingLog{
		logAt(1, true, rt(100), 0),
		logAt(1, false, nil, 5), // sweep rows carry no response time
		logAt(1, true, rt(20), 10),
		logAt(1, true, rt(60), 15),
	}

	series, stats := responseTimeSeries(logs)

	assert.Len(t, series, 3)
	assert.Equal(t, "2026-03-01 12:00", series[0]["name"])
	assert.Equal(t, 100.0, series[0]["value"])
	assert.Equal(t, 60.0, stats["avg_response"])
	assert.Equal(t, 20.0, stats["min_response"])
	assert.Equal(t, 100.0, stats["max_response"])
}

func TestResponseTimeSeriesNoSamples(t *testing.T) {
	series, stats := responseTimeSeries([]*models.PingLog{logAt(1, false, nil, 0)})

	assert.Empty(t, series)
	assert.Nil(t, stats["avg_response"])
	assert.Nil(t, stats["min_response"])
	assert.Nil(t, stats["max_response"])
}

func TestResponseTimeSeriesCapped(t *testing.T) {
	logs := make([]*models.PingLog, 0, ReportSeriesLimit+20)
	for i := 0; i < ReportSeriesLimit+20; i++ {
		logs = append(logs, logAt(1, true, rt(float64(i)), i%60))
	}

	series, stats := responseTimeSeries(logs)

	assert.Len(t, series, ReportSeriesLimit)
	// The aggregate still covers every sample, not just the charted ones.
	assert.Equal(t, float64(ReportSeriesLimit+19), stats["max_response"])
}
