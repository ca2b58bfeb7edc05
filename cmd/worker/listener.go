package main

import (
	"context"
	"encoding/json"
	"log"

	"pulsewatch/internal/mq"
	"pulsewatch/internal/notify"
)

// listener consumes failure jobs from RabbitMQ and hands them to the
// notification dispatcher.
type listener struct {
	dispatcher *notify.Dispatcher
	consumer   *mq.Consumer
}

func newListener(d *notify.Dispatcher, c *mq.Consumer) *listener {
	return &listener{dispatcher: d, consumer: c}
}

func (l *listener) start(ctx context.Context) {
	failureCh, err := l.consumer.Consume(mq.QueueFailure)
	if err != nil {
		log.Fatalf("[listener] failed to consume %s: %v", mq.QueueFailure, err)
	}

	log.Println("[listener] consuming from failures")

	for {
		select {
		case <-ctx.Done():
			log.Println("[listener] stopped")
			return
		case d, ok := <-failureCh:
			if !ok {
				return
			}
			l.handleFailure(ctx, d.Body)
			// Ack regardless of the dispatch outcome: delivery is
			// at-most-once and the sent flag makes redelivery a no-op, so
			// requeueing buys nothing.
			d.Ack(false)
		}
	}
}

func (l *listener) handleFailure(ctx context.Context, body []byte) {
	var msg mq.FailureMsg
	if err := json.Unmarshal(body, &msg); err != nil {
		log.Printf("[listener] bad failure message: %v", err)
		return
	}
	if err := l.dispatcher.Dispatch(ctx, msg.EpisodeID); err != nil {
		log.Printf("[listener] dispatch episode %d: %v", msg.EpisodeID, err)
	}
}
