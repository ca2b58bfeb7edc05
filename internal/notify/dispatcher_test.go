package notify

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tele "gopkg.in/telebot.v3"

	"pulsewatch/internal/models"
)

type fakeStore struct {
	episode *models.FailureEpisode
	monitor *models.Monitor

	markedID int64
	markedAt time.Time
}

func (s *fakeStore) EpisodeWithMonitor(_ context.Context, episodeID int64) (*models.FailureEpisode, *models.Monitor, error) {
	if s.episode == nil || s.episode.ID != episodeID {
		return nil, nil, errors.New("episode not found")
	}
	return s.episode, s.monitor, nil
}

func (s *fakeStore) MarkEpisodeNotified(_ context.Context, episodeID int64, at time.Time) error {
	s.markedID = episodeID
	s.markedAt = at
	return nil
}

type fakeMailer struct {
	sent []string // recipients
	err  error
}

func (m *fakeMailer) Send(_ context.Context, to, _, _ string) error {
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, to)
	return nil
}

type fakeTelegram struct {
	chats []int64
}

func (f *fakeTelegram) Send(to tele.Recipient, _ interface{}, _ ...interface{}) (*tele.Message, error) {
	chat := to.(*tele.Chat)
	f.chats = append(f.chats, chat.ID)
	return &tele.Message{}, nil
}

func testEpisode(m *models.Monitor) (*fakeStore, *models.FailureEpisode) {
	e := &models.FailureEpisode{
		ID:        11,
		MonitorID: m.ID,
		FailedAt:  time.Date(2026, 3, 1, 12, 30, 0, 0, time.UTC),
	}
	return &fakeStore{episode: e, monitor: m}, e
}

func TestDispatchWebhook(t *testing.T) {
	var got webhookPayload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(body, &got))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
	}))
	defer srv.Close()

	lastPing := time.Date(2026, 3, 1, 12, 20, 0, 0, time.UTC)
	store, _ := testEpisode(&models.Monitor{
		ID: 3, Name: "api-gateway", NotifyWebhook: srv.URL, LastPing: &lastPing,
	})
	d := NewDispatcher(store, nil, nil, 10*time.Second)

	require.NoError(t, d.Dispatch(context.Background(), 11))

	assert.Equal(t, "api-gateway", got.CheckName)
	assert.Equal(t, int64(3), got.CheckID)
	assert.Equal(t, "down", got.Status)
	require.NotNil(t, got.LastPing)
	assert.Equal(t, "2026-03-01T12:20:00Z", *got.LastPing)
	assert.Equal(t, "2026-03-01T12:30:00Z", got.FailedAt)
	assert.Equal(t, int64(11), store.markedID, "episode marked sent after delivery")
}

func TestDispatchWebhookNullLastPing(t *testing.T) {
	var got webhookPayload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(body, &got))
	}))
	defer srv.Close()

	store, _ := testEpisode(&models.Monitor{ID: 3, Name: "n", NotifyWebhook: srv.URL})
	d := NewDispatcher(store, nil, nil, 10*time.Second)

	require.NoError(t, d.Dispatch(context.Background(), 11))
	assert.Nil(t, got.LastPing)
}

func TestDispatchIdempotent(t *testing.T) {
	mailer := &fakeMailer{}
	store, e := testEpisode(&models.Monitor{ID: 3, NotifyEmail: "ops@example.com"})
	e.NotificationSent = true
	d := NewDispatcher(store, mailer, nil, 10*time.Second)

	require.NoError(t, d.Dispatch(context.Background(), 11))

	assert.Empty(t, mailer.sent, "already-notified episode sends nothing")
	assert.Zero(t, store.markedID, "no re-marking either")
}

func TestDispatchEmailFailureStillMarksAndContinues(t *testing.T) {
	received := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		received++
	}))
	defer srv.Close()

	mailer := &fakeMailer{err: errors.New("smtp down")}
	store, _ := testEpisode(&models.Monitor{
		ID: 3, Name: "n", NotifyEmail: "ops@example.com", NotifyWebhook: srv.URL,
	})
	d := NewDispatcher(store, mailer, nil, 10*time.Second)

	require.NoError(t, d.Dispatch(context.Background(), 11))

	assert.Equal(t, 1, received, "webhook branch runs despite email failure")
	assert.Equal(t, int64(11), store.markedID, "failed delivery still marks the episode handled")
}

func TestDispatchWebhookNon2xxStillMarks(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	store, _ := testEpisode(&models.Monitor{ID: 3, Name: "n", NotifyWebhook: srv.URL})
	d := NewDispatcher(store, nil, nil, 10*time.Second)

	require.NoError(t, d.Dispatch(context.Background(), 11))
	assert.Equal(t, int64(11), store.markedID)
}

func TestDispatchEmailAndTelegram(t *testing.T) {
	mailer := &fakeMailer{}
	tg := &fakeTelegram{}
	store, _ := testEpisode(&models.Monitor{
		ID: 3, Name: "n", NotifyEmail: "ops@example.com", NotifyTelegram: -100123,
	})
	d := NewDispatcher(store, mailer, tg, 10*time.Second)

	require.NoError(t, d.Dispatch(context.Background(), 11))

	assert.Equal(t, []string{"ops@example.com"}, mailer.sent)
	assert.Equal(t, []int64{-100123}, tg.chats)
	assert.Equal(t, int64(11), store.markedID)
}

func TestDispatchUnknownEpisode(t *testing.T) {
	store := &fakeStore{}
	d := NewDispatcher(store, nil, nil, 10*time.Second)

	assert.Error(t, d.Dispatch(context.Background(), 99))
	assert.Zero(t, store.markedID)
}
