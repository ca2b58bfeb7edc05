package heartbeat

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"pulsewatch/internal/models"
)

// Store is the transactional persistence surface the engine mutates monitors
// through. Both mutation methods must be atomic: a partial write (log row
// without the monitor update, or vice versa) must never be observable.
type Store interface {
	// MonitorByToken resolves the public ping credential to a monitor.
	MonitorByToken(ctx context.Context, token string) (*models.Monitor, error)
	// ActiveMonitors returns every monitor with monitoring enabled.
	ActiveMonitors(ctx context.Context) ([]*models.Monitor, error)
	// RecordPing applies one ping in a single transaction: last_ping/is_up,
	// the new stats aggregate, a status=true log row, and deletion of any
	// un-notified failure episode.
	RecordPing(ctx context.Context, monitorID int64, at time.Time, responseMs *float64, payload json.RawMessage, stats models.ResponseStats) error
	// MarkFailed transitions a monitor to down in a single transaction.
	// seenPing is the last_ping the sweep evaluated: a monitor already down,
	// or pinged again since the sweep read it, is left untouched
	// (transitioned=false). On transition it writes a status=false log row
	// and a fresh failure episode, returning the episode ID.
	MarkFailed(ctx context.Context, monitorID int64, at, seenPing time.Time) (episodeID int64, transitioned bool, err error)
}

// FailureQueue receives failure episodes for asynchronous notification
// dispatch. Implemented by the RabbitMQ publisher.
type FailureQueue interface {
	EnqueueFailure(ctx context.Context, episodeID, monitorID int64) error
}

// Service ingests pings and runs the deadline sweep.
type Service struct {
	store Store
	queue FailureQueue
	now   func() time.Time // injectable clock for tests
}

func NewService(store Store, queue FailureQueue) *Service {
	return &Service{store: store, queue: queue, now: time.Now}
}

// Ingest processes one liveness signal for the given token. responseMs is the
// caller-supplied or handler-measured response time; nil leaves the stats
// aggregate untouched. The returned monitor reflects the post-ping state.
func (s *Service) Ingest(ctx context.Context, token string, responseMs *float64, payload json.RawMessage) (*models.Monitor, error) {
	m, err := s.store.MonitorByToken(ctx, token)
	if err != nil {
		return nil, err
	}

	now := s.now()
	stats := m.Stats()
	if responseMs != nil {
		stats = Fold(stats, *responseMs)
	}

	if err := s.store.RecordPing(ctx, m.ID, now, responseMs, payload, stats); err != nil {
		return nil, err
	}

	m.LastPing = &now
	m.IsUp = true
	m.AvgResponseTime = stats.Avg
	m.MinResponseTime = stats.Min
	m.MaxResponseTime = stats.Max
	m.TotalPings = stats.TotalPings
	return m, nil
}

// RunOnce performs a single sweep pass: every active monitor whose deadline
// (last_ping + interval + grace) has expired while still marked up is
// transitioned to down and its new failure episode is enqueued for
// notification. Returns the number of monitors transitioned.
//
// Per-monitor errors are logged and do not abort the rest of the pass.
func (s *Service) RunOnce(ctx context.Context) int {
	monitors, err := s.store.ActiveMonitors(ctx)
	if err != nil {
		log.Printf("[sweep] load monitors: %v", err)
		return 0
	}

	now := s.now()
	failed := 0
	for _, m := range monitors {
		deadline, ok := m.Deadline()
		if !ok {
			continue // never pinged, nothing to evaluate
		}
		if !m.IsUp || !now.After(deadline) {
			continue
		}

		episodeID, transitioned, err := s.store.MarkFailed(ctx, m.ID, now, *m.LastPing)
		if err != nil {
			log.Printf("[sweep] mark monitor %d failed: %v", m.ID, err)
			continue
		}
		if !transitioned {
			// Lost the race to another sweep instance or a concurrent ping.
			continue
		}
		failed++
		log.Printf("[sweep] monitor %d (%s) is DOWN (deadline %s)", m.ID, m.Name, deadline.Format(time.RFC3339))

		if err := s.queue.EnqueueFailure(ctx, episodeID, m.ID); err != nil {
			log.Printf("[sweep] enqueue notification for episode %d: %v", episodeID, err)
		}
	}
	return failed
}

// StartSweeper runs RunOnce on a fixed cadence until ctx is cancelled. A pass
// runs to completion before the next tick is taken, so a slow pass delays
// rather than overlaps its successor within this process.
func (s *Service) StartSweeper(ctx context.Context, intervalSec int) {
	ticker := time.NewTicker(time.Duration(intervalSec) * time.Second)
	defer ticker.Stop()

	log.Printf("[sweep] started (interval=%ds)", intervalSec)

	for {
		select {
		case <-ctx.Done():
			log.Println("[sweep] stopped")
			return
		case <-ticker.C:
			s.RunOnce(ctx)
		}
	}
}
