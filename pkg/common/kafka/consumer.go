package kafka

import (
	"context"
	"encoding/json"

	"github.com/medcoder-ai/platform/pkg/common/config"
	"github.com/medcoder-ai/platform/pkg/common/logger"
	"github.com/segmentio/kafka-go"
)

type Consumer struct {
	reader *kafka.Reader
}

type TaskHandler func(ctx context.Context, task TaskMessage) error

func NewConsumer(topic string, groupID string) *Consumer {
	cfg := config.Load()
	if groupID == "" {
		groupID = cfg.KafkaGroupID
	}

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  cfg.KafkaBrokers,
		Topic:    topic,
		GroupID:  groupID,
		MinBytes: 1,
		MaxBytes: 1e6,
	})

	return &Consumer{reader: reader}
}

// Consume pulls tasks until the context is cancelled. Handler errors are
// logged but the message is still committed: the retry coordinator owns
// redelivery semantics, so replaying a task the coordinator already dead-
// lettered would double-count attempts.
func (c *Consumer) Consume(ctx context.Context, handler TaskHandler) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
			message, err := c.reader.FetchMessage(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				logger.Log.WithError(err).Error("Failed to fetch task")
				continue
			}

			var task TaskMessage
			if err := json.Unmarshal(message.Value, &task); err != nil {
				logger.Log.WithError(err).Error("Failed to unmarshal task")
				c.reader.CommitMessages(ctx, message)
				continue
			}

			if err := handler(ctx, task); err != nil {
				logger.Log.WithError(err).WithFields(map[string]interface{}{
					"task_id":   task.ID,
					"report_id": task.ReportID,
				}).Error("Coding task ended in failure")
			}

			if err := c.reader.CommitMessages(ctx, message); err != nil {
				logger.Log.WithError(err).Error("Failed to commit task")
			}
		}
	}
}

func (c *Consumer) Close() error {
	return c.reader.Close()
}
