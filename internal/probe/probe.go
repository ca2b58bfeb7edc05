package probe

import (
	"context"
	"encoding/json"
	"log"
	"net/url"
	"time"

	probing "github.com/prometheus-community/pro-bing"

	"pulsewatch/internal/models"
)

// Lister returns the monitors that have a probe target configured.
type Lister interface {
	MonitorsWithURL(ctx context.Context) ([]*models.Monitor, error)
}

// Ingestor is the ping path a successful probe is fed through, so probed
// monitors get the same log/stats/recovery handling as self-reporting ones.
type Ingestor interface {
	Ingest(ctx context.Context, token string, responseMs *float64, payload json.RawMessage) (*models.Monitor, error)
}

// Prober ICMP-probes monitors that carry a URL and pings them on success
// with the measured round-trip time. An unreachable host is simply not
// pinged; the sweep takes care of marking it down.
type Prober struct {
	lister   Lister
	ingestor Ingestor
}

func NewProber(lister Lister, ingestor Ingestor) *Prober {
	return &Prober{lister: lister, ingestor: ingestor}
}

// Start runs probe rounds on a fixed cadence until ctx is cancelled.
func (p *Prober) Start(ctx context.Context, intervalSec int) {
	ticker := time.NewTicker(time.Duration(intervalSec) * time.Second)
	defer ticker.Stop()

	log.Printf("[probe] started (interval=%ds)", intervalSec)

	for {
		select {
		case <-ctx.Done():
			log.Println("[probe] stopped")
			return
		case <-ticker.C:
			p.runOnce(ctx)
		}
	}
}

func (p *Prober) runOnce(ctx context.Context) {
	monitors, err := p.lister.MonitorsWithURL(ctx)
	if err != nil {
		log.Printf("[probe] load monitors: %v", err)
		return
	}

	for _, m := range monitors {
		host := hostFromURL(m.URL)
		if host == "" {
			continue
		}

		rtt, ok := probeHost(host)
		if !ok {
			log.Printf("[probe] monitor %d (%s): %s unreachable", m.ID, m.Name, host)
			continue
		}

		ms := float64(rtt.Microseconds()) / 1000
		if _, err := p.ingestor.Ingest(ctx, m.Token, &ms, nil); err != nil {
			log.Printf("[probe] record ping for monitor %d: %v", m.ID, err)
		}
	}
}

// probeHost sends ICMP pings to the target and returns the average
// round-trip time when at least one packet came back.
func probeHost(target string) (time.Duration, bool) {
	pinger, err := probing.NewPinger(target)
	if err != nil {
		log.Printf("[probe] failed to create pinger for %s: %v", target, err)
		return 0, false
	}
	pinger.Count = 3
	pinger.Timeout = 5 * time.Second
	pinger.SetPrivileged(true)
	if err := pinger.Run(); err != nil {
		return 0, false
	}
	stats := pinger.Statistics()
	if stats.PacketsRecv == 0 {
		return 0, false
	}
	return stats.AvgRtt, true
}

// hostFromURL pulls the hostname out of a monitor URL. Bare hostnames are
// accepted as-is.
func hostFromURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	if u.Hostname() != "" {
		return u.Hostname()
	}
	// "example.com" parses with an empty host and the name in Path.
	if u.Scheme == "" && u.Opaque == "" {
		return u.Path
	}
	return ""
}
