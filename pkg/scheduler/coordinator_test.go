package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/medcoder-ai/platform/pkg/common/logger"
	"github.com/medcoder-ai/platform/pkg/report"
)

func init() {
	logger.Init("scheduler-test")
}

type memoryReportStore struct {
	mu      sync.Mutex
	reports map[uuid.UUID]*report.Report
}

func newMemoryReportStore() *memoryReportStore {
	return &memoryReportStore{reports: make(map[uuid.UUID]*report.Report)}
}

func (s *memoryReportStore) Create(ctx context.Context, r *report.Report) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	clone := *r
	s.reports[r.ID] = &clone
	return nil
}

func (s *memoryReportStore) Get(ctx context.Context, id uuid.UUID) (*report.Report, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rep, ok := s.reports[id]
	if !ok {
		return nil, report.ErrNotFound
	}
	clone := *rep
	return &clone, nil
}

func (s *memoryReportStore) Update(ctx context.Context, r *report.Report) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.reports[r.ID]; !ok {
		return report.ErrNotFound
	}
	clone := *r
	s.reports[r.ID] = &clone
	return nil
}

func (s *memoryReportStore) ListByStatus(ctx context.Context, status string, limit int) ([]*report.Report, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*report.Report
	for _, rep := range s.reports {
		if rep.Status == status {
			clone := *rep
			out = append(out, &clone)
		}
	}
	return out, nil
}

type memoryDeadLetterStore struct {
	mu      sync.Mutex
	records map[uuid.UUID]*DeadLetterRecord
}

func newMemoryDeadLetterStore() *memoryDeadLetterStore {
	return &memoryDeadLetterStore{records: make(map[uuid.UUID]*DeadLetterRecord)}
}

func (s *memoryDeadLetterStore) Record(ctx context.Context, reportID uuid.UUID, reason string, attempts int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now().UTC()
	if rec, ok := s.records[reportID]; ok {
		rec.Reason = reason
		rec.Attempts += attempts
		rec.History = append(rec.History, AttemptRecord{Attempt: attempts, Reason: reason, At: now})
		rec.LastFailedAt = now
		rec.Resolved = false
		return nil
	}
	s.records[reportID] = &DeadLetterRecord{
		ID:            uuid.New(),
		ReportID:      reportID,
		Reason:        reason,
		Attempts:      attempts,
		History:       []AttemptRecord{{Attempt: attempts, Reason: reason, At: now}},
		FirstFailedAt: now,
		LastFailedAt:  now,
	}
	return nil
}

func (s *memoryDeadLetterStore) List(ctx context.Context, filter DeadLetterFilter) ([]*DeadLetterRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*DeadLetterRecord
	for _, rec := range s.records {
		if filter.Reason != "" && rec.Reason != filter.Reason {
			continue
		}
		if filter.Resolved != nil && rec.Resolved != *filter.Resolved {
			continue
		}
		clone := *rec
		out = append(out, &clone)
	}
	return out, nil
}

func (s *memoryDeadLetterStore) GetByReport(ctx context.Context, reportID uuid.UUID) (*DeadLetterRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[reportID]
	if !ok {
		return nil, ErrDeadLetterNotFound
	}
	clone := *rec
	return &clone, nil
}

func (s *memoryDeadLetterStore) Resolve(ctx context.Context, reportID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[reportID]
	if !ok {
		return ErrDeadLetterNotFound
	}
	rec.Resolved = true
	return nil
}

func (s *memoryDeadLetterStore) Statistics(ctx context.Context) (map[string]int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	stats := make(map[string]int64)
	for _, rec := range s.records {
		if !rec.Resolved {
			stats[rec.Reason]++
		}
	}
	return stats, nil
}

type countingRunner struct {
	mu       sync.Mutex
	calls    int
	failWith error
	passAt   int
	reports  *report.Service
}

func (r *countingRunner) Execute(ctx context.Context, rep *report.Report) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	if r.passAt > 0 && r.calls >= r.passAt {
		if rep.Status == report.StatusPending {
			if err := r.reports.Start(ctx, rep); err != nil {
				return err
			}
		}
		return r.reports.Complete(ctx, rep, nil)
	}
	return r.failWith
}

func (r *countingRunner) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls
}

func seedReport(t *testing.T, reports *report.Service) *report.Report {
	t.Helper()
	rep, err := reports.Create(context.Background(), uuid.New())
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	return rep
}

func TestCoordinatorExhaustionDeadLetters(t *testing.T) {
	store := newMemoryReportStore()
	deadLetters := newMemoryDeadLetterStore()
	reports := report.NewService(store, nil)
	runner := &countingRunner{failWith: errors.New("suggestion backend unreachable")}

	coord := NewCoordinator(reports, deadLetters, runner, 3, time.Millisecond)
	rep := seedReport(t, reports)

	if err := coord.Run(context.Background(), rep.ID); err == nil {
		t.Fatal("Run() expected error after exhaustion, got nil")
	}

	if got := runner.count(); got != 3 {
		t.Fatalf("runner called %d times, want 3", got)
	}

	final, err := reports.Get(context.Background(), rep.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if final.Status != report.StatusFailed {
		t.Fatalf("status = %s, want %s", final.Status, report.StatusFailed)
	}
	if final.ErrorKind != ErrorKindRetryExhausted {
		t.Fatalf("error kind = %s, want %s", final.ErrorKind, ErrorKindRetryExhausted)
	}

	rec, err := deadLetters.GetByReport(context.Background(), rep.ID)
	if err != nil {
		t.Fatalf("GetByReport() error = %v", err)
	}
	if rec.Resolved {
		t.Fatal("dead-letter record should start unresolved")
	}
	if len(deadLetters.records) != 1 {
		t.Fatalf("dead-letter records = %d, want exactly 1", len(deadLetters.records))
	}
}

func TestCoordinatorRecoversBeforeExhaustion(t *testing.T) {
	store := newMemoryReportStore()
	deadLetters := newMemoryDeadLetterStore()
	reports := report.NewService(store, nil)
	runner := &countingRunner{failWith: errors.New("transient"), passAt: 2, reports: reports}

	coord := NewCoordinator(reports, deadLetters, runner, 3, time.Millisecond)
	rep := seedReport(t, reports)

	if err := coord.Run(context.Background(), rep.ID); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if got := runner.count(); got != 2 {
		t.Fatalf("runner called %d times, want 2", got)
	}
	if _, err := deadLetters.GetByReport(context.Background(), rep.ID); !errors.Is(err, ErrDeadLetterNotFound) {
		t.Fatalf("expected no dead-letter record, got err = %v", err)
	}
}

func TestCoordinatorTerminalReportIsNoOp(t *testing.T) {
	store := newMemoryReportStore()
	deadLetters := newMemoryDeadLetterStore()
	reports := report.NewService(store, nil)
	runner := &countingRunner{failWith: errors.New("should not run")}

	coord := NewCoordinator(reports, deadLetters, runner, 3, time.Millisecond)
	rep := seedReport(t, reports)

	if err := reports.Start(context.Background(), rep); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if err := reports.Complete(context.Background(), rep, nil); err != nil {
		t.Fatalf("Complete() error = %v", err)
	}

	if err := coord.Run(context.Background(), rep.ID); err != nil {
		t.Fatalf("Run() on terminal report error = %v", err)
	}
	if got := runner.count(); got != 0 {
		t.Fatalf("runner called %d times on terminal report, want 0", got)
	}
}

func TestCoordinatorContextCancelStopsRetries(t *testing.T) {
	store := newMemoryReportStore()
	deadLetters := newMemoryDeadLetterStore()
	reports := report.NewService(store, nil)
	runner := &countingRunner{failWith: errors.New("always failing")}

	coord := NewCoordinator(reports, deadLetters, runner, 3, time.Minute)
	rep := seedReport(t, reports)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := coord.Run(ctx, rep.ID); err == nil {
		t.Fatal("Run() expected error under cancelled context")
	}
	if got := runner.count(); got != 1 {
		t.Fatalf("runner called %d times under cancelled context, want 1", got)
	}
}

func TestLocalSchedulerDeduplicatesInFlight(t *testing.T) {
	store := newMemoryReportStore()
	deadLetters := newMemoryDeadLetterStore()
	reports := report.NewService(store, nil)

	release := make(chan struct{})
	started := make(chan struct{}, 1)
	runner := runnerFunc(func(ctx context.Context, rep *report.Report) error {
		select {
		case started <- struct{}{}:
		default:
		}
		<-release
		if rep.Status == report.StatusPending {
			rep.Start()
		}
		return rep.Complete(nil)
	})

	coord := NewCoordinator(reports, deadLetters, runner, 1, time.Millisecond)
	sched := NewLocalScheduler(context.Background(), coord, 2)
	rep := seedReport(t, reports)

	if err := sched.Submit(context.Background(), rep.ID); err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	<-started
	if err := sched.Submit(context.Background(), rep.ID); err != nil {
		t.Fatalf("duplicate Submit() error = %v", err)
	}
	close(release)
	sched.Drain()

	metrics := sched.Metrics()
	if metrics.Submitted != 1 {
		t.Fatalf("submitted = %d, want 1 after dedupe", metrics.Submitted)
	}
	if metrics.Completed != 1 {
		t.Fatalf("completed = %d, want 1", metrics.Completed)
	}
}

type runnerFunc func(ctx context.Context, rep *report.Report) error

func (f runnerFunc) Execute(ctx context.Context, rep *report.Report) error {
	return f(ctx, rep)
}

func TestDeadLetterServiceRetryResubmits(t *testing.T) {
	store := newMemoryReportStore()
	deadLetters := newMemoryDeadLetterStore()
	reports := report.NewService(store, nil)
	runner := &countingRunner{failWith: errors.New("parser exploded"), reports: reports}

	coord := NewCoordinator(reports, deadLetters, runner, 2, time.Millisecond)
	sched := NewLocalScheduler(context.Background(), coord, 1)
	svc := NewDeadLetterService(deadLetters, reports, sched)
	rep := seedReport(t, reports)

	if err := coord.Run(context.Background(), rep.ID); err == nil {
		t.Fatal("expected exhaustion")
	}

	runner.mu.Lock()
	runner.passAt = runner.calls + 1
	runner.mu.Unlock()

	if err := svc.Retry(context.Background(), rep.ID); err != nil {
		t.Fatalf("Retry() error = %v", err)
	}
	sched.Drain()

	final, err := reports.Get(context.Background(), rep.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if final.Status != report.StatusComplete {
		t.Fatalf("status after retry = %s, want %s", final.Status, report.StatusComplete)
	}
	if final.RetryCount == 0 {
		t.Fatal("retry count should be bumped by ResetForRetry")
	}

	rec, err := deadLetters.GetByReport(context.Background(), rep.ID)
	if err != nil {
		t.Fatalf("GetByReport() error = %v", err)
	}
	if !rec.Resolved {
		t.Fatal("dead-letter record should be resolved after retry")
	}
}

func TestDeadLetterServiceRetryUnknownReport(t *testing.T) {
	store := newMemoryReportStore()
	deadLetters := newMemoryDeadLetterStore()
	reports := report.NewService(store, nil)
	coord := NewCoordinator(reports, deadLetters, &countingRunner{}, 3, time.Millisecond)
	sched := NewLocalScheduler(context.Background(), coord, 1)
	svc := NewDeadLetterService(deadLetters, reports, sched)

	if err := svc.Retry(context.Background(), uuid.New()); !errors.Is(err, ErrDeadLetterNotFound) {
		t.Fatalf("Retry() error = %v, want ErrDeadLetterNotFound", err)
	}
}
