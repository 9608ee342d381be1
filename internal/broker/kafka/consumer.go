package kafka

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/BearBump/FareWatch/internal/broker/messages"
	"github.com/pkg/errors"
	"github.com/segmentio/kafka-go"
)

type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type Consumer struct {
	r messageReader
}

func NewConsumer(brokers []string, topic, groupID string) *Consumer {
	cfg := kafka.ReaderConfig{
		Brokers:           brokers,
		GroupID:           groupID,
		HeartbeatInterval: 3 * time.Second,
		SessionTimeout:    30 * time.Second,
	}
	if groupID != "" {
		cfg.GroupTopics = []string{topic}
	} else {
		cfg.Topic = topic
	}
	return &Consumer{
		r: kafka.NewReader(cfg),
	}
}

func newConsumerWithReader(r messageReader) *Consumer {
	return &Consumer{r: r}
}

func (c *Consumer) Close() error {
	return c.r.Close()
}

// Consume читает alert.checked и отдаёт handler-у декодированные события.
// Битый payload логируется и коммитится, чтобы не заклинить группу на
// одном сообщении.
func (c *Consumer) Consume(ctx context.Context, handler func(ctx context.Context, m messages.AlertChecked) error) error {
	for {
		msg, err := c.r.FetchMessage(ctx)
		if err != nil {
			return errors.Wrap(err, "fetch message")
		}

		var m messages.AlertChecked
		if err := json.Unmarshal(msg.Value, &m); err != nil {
			slog.Error("skip malformed alert.checked event",
				"offset", msg.Offset, "error", err.Error())
			if err := c.r.CommitMessages(ctx, msg); err != nil {
				return errors.Wrap(err, "commit message")
			}
			continue
		}

		if err := handler(ctx, m); err != nil {
			// Важно: commit делаем только при успехе, иначе потеряем событие.
			return err
		}
		if err := c.r.CommitMessages(ctx, msg); err != nil {
			return errors.Wrap(err, "commit message")
		}
	}
}
