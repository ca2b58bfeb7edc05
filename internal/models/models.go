package models

import (
	"encoding/json"
	"time"
)

// Owner is the principal that monitors belong to. API requests are
// authenticated by the owner's API key and scoped to their monitors.
type Owner struct {
	ID        int64     `json:"id" db:"id"`
	APIKey    string    `json:"api_key" db:"api_key"`
	Name      string    `json:"name" db:"name"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// Monitor is a dead-man's-switch liveness contract: the monitored subject
// must ping the token URL at least once per interval, with grace as extra
// slack, or the sweep marks it down.
type Monitor struct {
	ID          int64  `json:"id" db:"id"`
	OwnerID     int64  `json:"-" db:"owner_id"`
	Token       string `json:"token" db:"token"`
	Name        string `json:"name" db:"name"`
	Description string `json:"description,omitempty" db:"description"`
	URL         string `json:"url,omitempty" db:"url"`

	IntervalDays    int `json:"interval_days" db:"interval_days"`
	IntervalHours   int `json:"interval_hours" db:"interval_hours"`
	IntervalMinutes int `json:"interval_minutes" db:"interval_minutes"`
	GraceDays       int `json:"grace_days" db:"grace_days"`
	GraceHours      int `json:"grace_hours" db:"grace_hours"`
	GraceMinutes    int `json:"grace_minutes" db:"grace_minutes"`

	NotifyEmail    string `json:"notify_email,omitempty" db:"notify_email"`
	NotifyWebhook  string `json:"notify_webhook,omitempty" db:"notify_webhook"`
	NotifyTelegram int64  `json:"notify_telegram,omitempty" db:"notify_telegram"`

	IsActive bool       `json:"is_active" db:"is_active"`
	IsUp     bool       `json:"is_up" db:"is_up"`
	LastPing *time.Time `json:"last_ping,omitempty" db:"last_ping"`

	ResponseTimeThreshold int     `json:"response_time_threshold" db:"response_time_threshold"`
	AvgResponseTime       float64 `json:"avg_response_time" db:"avg_response_time"`
	MinResponseTime       float64 `json:"min_response_time" db:"min_response_time"`
	MaxResponseTime       float64 `json:"max_response_time" db:"max_response_time"`
	TotalPings            int64   `json:"total_pings" db:"total_pings"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// Interval is the expected gap between pings as a single duration.
func (m *Monitor) Interval() time.Duration {
	return compose(m.IntervalDays, m.IntervalHours, m.IntervalMinutes)
}

// Grace is the extra slack allowed past the interval before the monitor
// is considered failed.
func (m *Monitor) Grace() time.Duration {
	return compose(m.GraceDays, m.GraceHours, m.GraceMinutes)
}

// Deadline returns the instant after which the monitor counts as failed,
// and false when the monitor has never been pinged.
func (m *Monitor) Deadline() (time.Time, bool) {
	if m.LastPing == nil {
		return time.Time{}, false
	}
	return m.LastPing.Add(m.Interval() + m.Grace()), true
}

func compose(days, hours, minutes int) time.Duration {
	return time.Duration(days)*24*time.Hour +
		time.Duration(hours)*time.Hour +
		time.Duration(minutes)*time.Minute
}

// PingLog is an immutable record of a single liveness signal. status=false
// rows are written by the sweep when a monitor misses its deadline.
type PingLog struct {
	ID           int64           `json:"id" db:"id"`
	MonitorID    int64           `json:"monitor_id" db:"monitor_id"`
	Status       bool            `json:"status" db:"status"`
	Timestamp    time.Time       `json:"timestamp" db:"timestamp"`
	ResponseTime *float64        `json:"response_time,omitempty" db:"response_time"`
	Payload      json.RawMessage `json:"payload,omitempty" db:"payload"`
}

// FailureEpisode is one continuous span of down-time for a monitor, from
// detection by the sweep until (optionally) notification. At most one
// un-notified episode may exist per monitor at any time.
type FailureEpisode struct {
	ID               int64      `json:"id" db:"id"`
	MonitorID        int64      `json:"monitor_id" db:"monitor_id"`
	FailedAt         time.Time  `json:"failed_at" db:"failed_at"`
	NotificationSent bool       `json:"notification_sent" db:"notification_sent"`
	NotificationTime *time.Time `json:"notification_time,omitempty" db:"notification_time"`
}

// ResponseStats is the running response-time aggregate for a monitor.
type ResponseStats struct {
	Avg        float64 `json:"avg_response_time"`
	Min        float64 `json:"min_response_time"`
	Max        float64 `json:"max_response_time"`
	TotalPings int64   `json:"total_pings"`
}

// Stats extracts the running aggregate from a monitor.
func (m *Monitor) Stats() ResponseStats {
	return ResponseStats{
		Avg:        m.AvgResponseTime,
		Min:        m.MinResponseTime,
		Max:        m.MaxResponseTime,
		TotalPings: m.TotalPings,
	}
}
