package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	tele "gopkg.in/telebot.v3"

	"pulsewatch/internal/config"
	"pulsewatch/internal/database"
	"pulsewatch/internal/heartbeat"
	"pulsewatch/internal/mq"
	"pulsewatch/internal/notify"
	"pulsewatch/internal/probe"
)

const (
	// PurgeIntervalSec is how often the log-retention purge runs.
	PurgeIntervalSec = 24 * 60 * 60
)

func main() {
	// Load .env if present.
	_ = godotenv.Load()

	cfg := config.Load()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// --- Database ---
	db, err := database.New(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("database: %v", err)
	}
	defer db.Close()

	if err := db.Migrate(ctx); err != nil {
		log.Fatalf("migrate: %v", err)
	}
	log.Println("database connected and migrated")

	// --- RabbitMQ ---
	publisher, err := mq.NewPublisher(cfg.RabbitMQURL)
	if err != nil {
		log.Fatalf("rabbitmq publisher: %v", err)
	}
	defer publisher.Close()

	consumer, err := mq.NewConsumer(cfg.RabbitMQURL)
	if err != nil {
		log.Fatalf("rabbitmq consumer: %v", err)
	}
	defer consumer.Close()
	log.Println("rabbitmq connected")

	// --- Notification transports ---
	var mailer notify.Mailer
	if cfg.SMTPHost != "" {
		smtp, err := notify.NewSMTPMailer(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUser, cfg.SMTPPass, cfg.SMTPFrom)
		if err != nil {
			log.Fatalf("smtp: %v", err)
		}
		mailer = smtp
		log.Println("smtp mailer configured")
	}

	var telegram notify.TelegramSender
	if cfg.BotToken != "" {
		bot, err := tele.NewBot(tele.Settings{Token: cfg.BotToken})
		if err != nil {
			log.Fatalf("telegram bot: %v", err)
		}
		telegram = bot
		log.Println("telegram bot configured")
	}

	dispatcher := notify.NewDispatcher(db, mailer, telegram,
		time.Duration(cfg.WebhookTimeout)*time.Second)

	// --- Sweep evaluator ---
	hbService := heartbeat.NewService(db, publisher)
	go hbService.StartSweeper(ctx, cfg.SweepInterval)

	// --- Notification dispatch listener ---
	l := newListener(dispatcher, consumer)
	go l.start(ctx)

	// --- Active prober for URL monitors ---
	prober := probe.NewProber(db, hbService)
	go prober.Start(ctx, cfg.ProbeInterval)

	// --- Log retention purge ---
	go startPurge(ctx, db, cfg.LogRetentionDays)

	// --- Graceful shutdown ---
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("shutting down worker...")
	cancel()
}

// logPurger is the slice of the store the purge loop needs.
type logPurger interface {
	PurgeOldLogs(ctx context.Context, cutoff time.Time) (int64, error)
}

// startPurge deletes ping logs past the retention window: once at startup,
// then once a day. A process restarted more often than daily would otherwise
// never purge at all.
func startPurge(ctx context.Context, store logPurger, retentionDays int) {
	log.Printf("[purge] started (retention=%dd)", retentionDays)
	purgeOnce(ctx, store, retentionDays)

	ticker := time.NewTicker(PurgeIntervalSec * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("[purge] stopped")
			return
		case <-ticker.C:
			purgeOnce(ctx, store, retentionDays)
		}
	}
}

func purgeOnce(ctx context.Context, store logPurger, retentionDays int) {
	cutoff := time.Now().AddDate(0, 0, -retentionDays)
	n, err := store.PurgeOldLogs(ctx, cutoff)
	if err != nil {
		log.Printf("[purge] delete old logs: %v", err)
		return
	}
	log.Printf("[purge] removed %d ping logs older than %s", n, cutoff.Format("2006-01-02"))
}
