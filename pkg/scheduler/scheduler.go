package scheduler

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/medcoder-ai/platform/pkg/common/logger"
)

// Scheduler accepts a unit-of-work identifier and arranges pipeline
// execution. Submit is fire-and-forget: callers observe progress through the
// report state machine. The local and distributed implementations are
// interchangeable; nothing downstream branches on which one is active.
type Scheduler interface {
	Submit(ctx context.Context, reportID uuid.UUID) error
	Metrics() QueueMetrics
}

// QueueMetrics is the operational view of a scheduler backend.
type QueueMetrics struct {
	Mode      string `json:"mode"`
	Submitted int64  `json:"submitted"`
	Queued    int64  `json:"queued"`
	InFlight  int64  `json:"in_flight"`
	Completed int64  `json:"completed"`
	Failed    int64  `json:"failed"`
	Workers   int    `json:"workers"`
}

// LocalScheduler executes pipelines on an in-process worker pool bounded by
// a fixed concurrency limit. In-flight submissions are de-duplicated by
// report id so the same unit never runs twice concurrently.
type LocalScheduler struct {
	coordinator *Coordinator
	baseCtx     context.Context
	sem         chan struct{}
	wg          sync.WaitGroup

	mu       sync.Mutex
	inFlight map[uuid.UUID]struct{}

	submitted atomic.Int64
	queued    atomic.Int64
	running   atomic.Int64
	completed atomic.Int64
	failed    atomic.Int64
}

// NewLocalScheduler binds the pool to baseCtx: execution outlives the
// submitting request but stops with the process.
func NewLocalScheduler(baseCtx context.Context, coordinator *Coordinator, concurrency int) *LocalScheduler {
	if concurrency <= 0 {
		concurrency = 1
	}
	return &LocalScheduler{
		coordinator: coordinator,
		baseCtx:     baseCtx,
		sem:         make(chan struct{}, concurrency),
		inFlight:    make(map[uuid.UUID]struct{}),
	}
}

func (s *LocalScheduler) Submit(ctx context.Context, reportID uuid.UUID) error {
	s.mu.Lock()
	if _, dup := s.inFlight[reportID]; dup {
		s.mu.Unlock()
		logger.Log.WithField("report_id", reportID).Info("submission already in flight, skipping")
		return nil
	}
	s.inFlight[reportID] = struct{}{}
	s.mu.Unlock()

	s.submitted.Add(1)
	s.queued.Add(1)
	s.wg.Add(1)

	go func() {
		defer s.wg.Done()
		defer func() {
			s.mu.Lock()
			delete(s.inFlight, reportID)
			s.mu.Unlock()
		}()

		select {
		case s.sem <- struct{}{}:
		case <-s.baseCtx.Done():
			s.queued.Add(-1)
			return
		}
		defer func() { <-s.sem }()

		s.queued.Add(-1)
		s.running.Add(1)
		defer s.running.Add(-1)

		if err := s.coordinator.Run(s.baseCtx, reportID); err != nil {
			s.failed.Add(1)
			return
		}
		s.completed.Add(1)
	}()

	return nil
}

func (s *LocalScheduler) Metrics() QueueMetrics {
	return QueueMetrics{
		Mode:      "local",
		Submitted: s.submitted.Load(),
		Queued:    s.queued.Load(),
		InFlight:  s.running.Load(),
		Completed: s.completed.Load(),
		Failed:    s.failed.Load(),
		Workers:   cap(s.sem),
	}
}

// Drain waits for in-flight work during shutdown.
func (s *LocalScheduler) Drain() {
	s.wg.Wait()
}
