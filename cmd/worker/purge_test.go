package main

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type fakePurger struct {
	calls chan time.Time
}

func (p *fakePurger) PurgeOldLogs(_ context.Context, cutoff time.Time) (int64, error) {
	p.calls <- cutoff
	return 0, nil
}

// The first purge happens at startup, not a day later.
func TestStartPurgeRunsImmediately(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	p := &fakePurger{calls: make(chan time.Time, 1)}
	go startPurge(ctx, p, 30)

	select {
	case cutoff := <-p.calls:
		assert.WithinDuration(t, time.Now().AddDate(0, 0, -30), cutoff, time.Minute)
	case <-time.After(time.Second):
		t.Fatal("no purge pass at startup")
	}
}
