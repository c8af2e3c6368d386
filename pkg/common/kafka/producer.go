package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/medcoder-ai/platform/pkg/common/config"
	"github.com/medcoder-ai/platform/pkg/common/logger"
	"github.com/segmentio/kafka-go"
)

// TaskMessage is the envelope pushed onto the coding task topic. The payload
// is just the report identifier; workers load everything else from the store.
type TaskMessage struct {
	ID        string    `json:"id"`
	ReportID  string    `json:"report_id"`
	Source    string    `json:"source"`
	Attempt   int       `json:"attempt"`
	Timestamp time.Time `json:"timestamp"`
}

type Producer struct {
	writer *kafka.Writer
}

func NewProducer(topic string) *Producer {
	cfg := config.Load()
	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.KafkaBrokers...),
		Topic:        topic,
		Balancer:     &kafka.LeastBytes{},
		RequiredAcks: kafka.RequireAll,
		Async:        false,
		BatchSize:    1,
		BatchTimeout: 10 * time.Millisecond,
	}

	return &Producer{writer: writer}
}

func (p *Producer) PublishTask(ctx context.Context, reportID, source string, attempt int) error {
	task := TaskMessage{
		ID:        uuid.New().String(),
		ReportID:  reportID,
		Source:    source,
		Attempt:   attempt,
		Timestamp: time.Now().UTC(),
	}

	taskBytes, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("failed to marshal task: %w", err)
	}

	message := kafka.Message{
		// Key by report id so re-submissions of the same unit land on the
		// same partition and preserve ordering.
		Key:   []byte(reportID),
		Value: taskBytes,
		Headers: []kafka.Header{
			{Key: "source", Value: []byte(source)},
		},
	}

	if err := p.writer.WriteMessages(ctx, message); err != nil {
		logger.Log.WithError(err).WithFields(map[string]interface{}{
			"task_id":   task.ID,
			"report_id": reportID,
		}).Error("Failed to publish coding task")
		return err
	}

	logger.Log.WithFields(map[string]interface{}{
		"task_id":   task.ID,
		"report_id": reportID,
		"topic":     p.writer.Topic,
	}).Info("Coding task published")

	return nil
}

func (p *Producer) Close() error {
	return p.writer.Close()
}
