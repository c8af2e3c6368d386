package scheduler

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/medcoder-ai/platform/pkg/common/kafka"
	"github.com/medcoder-ai/platform/pkg/common/logger"
	"github.com/redis/go-redis/v9"
)

// DistributedScheduler pushes unit identifiers onto the shared broker
// topic; independent worker processes pull and execute. The pipeline code
// is identical to local mode.
type DistributedScheduler struct {
	producer  *kafka.Producer
	source    string
	submitted atomic.Int64
}

func NewDistributedScheduler(producer *kafka.Producer, source string) *DistributedScheduler {
	return &DistributedScheduler{producer: producer, source: source}
}

func (s *DistributedScheduler) Submit(ctx context.Context, reportID uuid.UUID) error {
	if err := s.producer.PublishTask(ctx, reportID.String(), s.source, 0); err != nil {
		return fmt.Errorf("enqueueing coding task: %w", err)
	}
	s.submitted.Add(1)
	return nil
}

func (s *DistributedScheduler) Metrics() QueueMetrics {
	// Depth and worker counts live with the broker and the worker
	// processes; the API side only sees what it submitted.
	return QueueMetrics{
		Mode:      "distributed",
		Submitted: s.submitted.Load(),
	}
}

// Lease prevents two workers from executing the same unit concurrently.
type Lease interface {
	Acquire(ctx context.Context, reportID string) (bool, error)
	Release(ctx context.Context, reportID string)
}

// RedisLease takes a SETNX lease keyed by report id, expiring after ttl so
// a crashed worker cannot park a unit forever.
type RedisLease struct {
	client   *redis.Client
	workerID string
	ttl      time.Duration
}

func NewRedisLease(client *redis.Client, workerID string, ttl time.Duration) *RedisLease {
	return &RedisLease{client: client, workerID: workerID, ttl: ttl}
}

func leaseKey(reportID string) string {
	return fmt.Sprintf("coding:inflight:%s", reportID)
}

func (l *RedisLease) Acquire(ctx context.Context, reportID string) (bool, error) {
	return l.client.SetNX(ctx, leaseKey(reportID), l.workerID, l.ttl).Result()
}

func (l *RedisLease) Release(ctx context.Context, reportID string) {
	if err := l.client.Del(ctx, leaseKey(reportID)).Err(); err != nil {
		logger.Log.WithError(err).WithField("report_id", reportID).Warn("failed to release in-flight lease")
	}
}

// Worker is the distributed-mode consumer loop. Each worker process bounds
// its own concurrency with the same semaphore discipline as local mode, so
// the per-process ceiling is equivalent in both topologies.
type Worker struct {
	consumer    *kafka.Consumer
	coordinator *Coordinator
	lease       Lease
	sem         chan struct{}

	running   atomic.Int64
	completed atomic.Int64
	failed    atomic.Int64
}

func NewWorker(consumer *kafka.Consumer, coordinator *Coordinator, lease Lease, concurrency int) *Worker {
	if concurrency <= 0 {
		concurrency = 1
	}
	return &Worker{
		consumer:    consumer,
		coordinator: coordinator,
		lease:       lease,
		sem:         make(chan struct{}, concurrency),
	}
}

// Run consumes tasks until the context is cancelled.
func (w *Worker) Run(ctx context.Context) error {
	return w.consumer.Consume(ctx, w.handle)
}

func (w *Worker) handle(ctx context.Context, task kafka.TaskMessage) error {
	reportID, err := uuid.Parse(task.ReportID)
	if err != nil {
		logger.Log.WithError(err).WithField("task_id", task.ID).Error("task carries invalid report id")
		return nil
	}

	acquired, err := w.lease.Acquire(ctx, task.ReportID)
	if err != nil {
		logger.Log.WithError(err).WithField("report_id", task.ReportID).Warn("lease acquisition failed, executing anyway")
	} else if !acquired {
		logger.Log.WithField("report_id", task.ReportID).Info("unit already in flight on another worker, skipping")
		return nil
	}
	if err == nil {
		defer w.lease.Release(ctx, task.ReportID)
	}

	w.sem <- struct{}{}
	defer func() { <-w.sem }()

	w.running.Add(1)
	defer w.running.Add(-1)

	if runErr := w.coordinator.Run(ctx, reportID); runErr != nil {
		w.failed.Add(1)
		return runErr
	}
	w.completed.Add(1)
	return nil
}

func (w *Worker) Metrics() QueueMetrics {
	return QueueMetrics{
		Mode:      "distributed-worker",
		InFlight:  w.running.Load(),
		Completed: w.completed.Load(),
		Failed:    w.failed.Load(),
		Workers:   cap(w.sem),
	}
}
