package handlers

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMonitorRequestValidate(t *testing.T) {
	req := monitorRequest{Name: "db-backup", IntervalHours: 1, GraceMinutes: 10}

	params, msg := req.validate()
	assert.Empty(t, msg)
	assert.Equal(t, "db-backup", params.Name)
	assert.Equal(t, 1, params.IntervalHours)
	assert.Equal(t, 1000, params.ResponseTimeThreshold, "threshold defaults when unset")
	assert.True(t, params.IsActive, "active defaults to true")
}

func TestMonitorRequestRejectsZeroInterval(t *testing.T) {
	req := monitorRequest{Name: "x"}

	_, msg := req.validate()
	assert.Contains(t, msg, "interval")
}

func TestMonitorRequestRejectsMissingName(t *testing.T) {
	req := monitorRequest{IntervalMinutes: 5}

	_, msg := req.validate()
	assert.Contains(t, msg, "name")
}

func TestMonitorRequestRejectsNegativeComponents(t *testing.T) {
	req := monitorRequest{Name: "x", IntervalMinutes: 5, GraceHours: -1}

	_, msg := req.validate()
	assert.Contains(t, msg, "negative")
}

func TestMonitorRequestExplicitInactive(t *testing.T) {
	inactive := false
	req := monitorRequest{Name: "x", IntervalMinutes: 5, IsActive: &inactive}

	params, msg := req.validate()
	assert.Empty(t, msg)
	assert.False(t, params.IsActive)
}
