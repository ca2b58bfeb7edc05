package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"

	tele "gopkg.in/telebot.v3"

	"pulsewatch/internal/models"
)

// Store is the slice of the persistence layer the dispatcher needs.
type Store interface {
	EpisodeWithMonitor(ctx context.Context, episodeID int64) (*models.FailureEpisode, *models.Monitor, error)
	MarkEpisodeNotified(ctx context.Context, episodeID int64, at time.Time) error
}

// Mailer delivers a plain-text failure email. Nil on the Dispatcher disables
// the email branch.
type Mailer interface {
	Send(ctx context.Context, to, subject, body string) error
}

// TelegramSender is the telebot send surface, narrowed for fakes in tests.
type TelegramSender interface {
	Send(to tele.Recipient, what interface{}, opts ...interface{}) (*tele.Message, error)
}

// webhookPayload is the JSON body POSTed to a monitor's webhook target.
type webhookPayload struct {
	CheckName string  `json:"check_name"`
	CheckID   int64   `json:"check_id"`
	Status    string  `json:"status"`
	LastPing  *string `json:"last_ping"`
	FailedAt  string  `json:"failed_at"`
}

// Dispatcher delivers failure notifications to a monitor's configured
// targets. Delivery is at-most-once per episode: every configured target is
// attempted, individual failures are logged, and the episode is marked sent
// regardless, so job-queue redelivery never duplicates a notification.
type Dispatcher struct {
	store    Store
	mailer   Mailer
	telegram TelegramSender
	client   *http.Client
	now      func() time.Time
}

// NewDispatcher wires a dispatcher. mailer and telegram may be nil when the
// corresponding transport isn't configured; webhookTimeout bounds a single
// outbound POST.
func NewDispatcher(store Store, mailer Mailer, telegram TelegramSender, webhookTimeout time.Duration) *Dispatcher {
	return &Dispatcher{
		store:    store,
		mailer:   mailer,
		telegram: telegram,
		client:   &http.Client{Timeout: webhookTimeout},
		now:      time.Now,
	}
}

// Dispatch handles one failure-notification job. Unknown episodes and
// already-notified episodes are no-ops.
func (d *Dispatcher) Dispatch(ctx context.Context, episodeID int64) error {
	episode, monitor, err := d.store.EpisodeWithMonitor(ctx, episodeID)
	if err != nil {
		return fmt.Errorf("load episode %d: %w", episodeID, err)
	}

	// Redelivered job for an episode we already handled.
	if episode.NotificationSent {
		return nil
	}

	if monitor.NotifyEmail != "" {
		d.sendEmail(ctx, monitor, episode)
	}
	if monitor.NotifyWebhook != "" {
		d.sendWebhook(ctx, monitor, episode)
	}
	if monitor.NotifyTelegram != 0 {
		d.sendTelegram(monitor, episode)
	}

	// Mark handled even when some target failed: notification delivery is
	// at-most-once, retries belong to nobody.
	if err := d.store.MarkEpisodeNotified(ctx, episodeID, d.now()); err != nil {
		return fmt.Errorf("mark episode %d notified: %w", episodeID, err)
	}
	return nil
}

func (d *Dispatcher) sendEmail(ctx context.Context, m *models.Monitor, e *models.FailureEpisode) {
	if d.mailer == nil {
		log.Printf("[notify] email target set for monitor %d but SMTP is not configured", m.ID)
		return
	}

	lastPing := "never"
	if m.LastPing != nil {
		lastPing = m.LastPing.Format(time.RFC3339)
	}
	subject := fmt.Sprintf("Monitor failed: %s", m.Name)
	body := fmt.Sprintf(
		"Your monitor %q has failed.\n\nLast successful ping: %s\nFailed at: %s\n\nPlease check your application or service.\n",
		m.Name, lastPing, e.FailedAt.Format(time.RFC3339),
	)

	if err := d.mailer.Send(ctx, m.NotifyEmail, subject, body); err != nil {
		log.Printf("[notify] email for monitor %d to %s: %v", m.ID, m.NotifyEmail, err)
		return
	}
	log.Printf("[notify] sent failure email for monitor %d to %s", m.ID, m.NotifyEmail)
}

func (d *Dispatcher) sendWebhook(ctx context.Context, m *models.Monitor, e *models.FailureEpisode) {
	payload := webhookPayload{
		CheckName: m.Name,
		CheckID:   m.ID,
		Status:    "down",
		FailedAt:  e.FailedAt.Format(time.RFC3339),
	}
	if m.LastPing != nil {
		s := m.LastPing.Format(time.RFC3339)
		payload.LastPing = &s
	}

	data, err := json.Marshal(payload)
	if err != nil {
		log.Printf("[notify] marshal webhook payload for monitor %d: %v", m.ID, err)
		return
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.NotifyWebhook, bytes.NewReader(data))
	if err != nil {
		log.Printf("[notify] build webhook request for monitor %d: %v", m.ID, err)
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		log.Printf("[notify] webhook for monitor %d to %s: %v", m.ID, m.NotifyWebhook, err)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		log.Printf("[notify] webhook for monitor %d returned status %d", m.ID, resp.StatusCode)
		return
	}
	log.Printf("[notify] sent failure webhook for monitor %d to %s", m.ID, m.NotifyWebhook)
}

func (d *Dispatcher) sendTelegram(m *models.Monitor, e *models.FailureEpisode) {
	if d.telegram == nil {
		log.Printf("[notify] telegram target set for monitor %d but bot is not configured", m.ID)
		return
	}

	text := fmt.Sprintf("🔴 %s is DOWN\nFailed at: %s", m.Name, e.FailedAt.Format("2006-01-02 15:04:05 MST"))
	if _, err := d.telegram.Send(&tele.Chat{ID: m.NotifyTelegram}, text); err != nil {
		log.Printf("[notify] telegram for monitor %d to chat %d: %v", m.ID, m.NotifyTelegram, err)
		return
	}
	log.Printf("[notify] sent failure telegram for monitor %d to chat %d", m.ID, m.NotifyTelegram)
}
