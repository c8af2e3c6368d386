package report

import (
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/medcoder-ai/platform/pkg/common/models"
)

func TestNewReportInitialState(t *testing.T) {
	rep := NewReport(uuid.New())
	if rep.Status != StatusPending {
		t.Fatalf("expected PENDING, got %s", rep.Status)
	}
	if rep.Percent != 0 || rep.Stage != StageQueued {
		t.Fatalf("expected percent=0 stage=queued, got %d %s", rep.Percent, rep.Stage)
	}
}

func TestStartOnlyFromPending(t *testing.T) {
	rep := NewReport(uuid.New())
	if err := rep.Start(); err != nil {
		t.Fatalf("start from pending failed: %v", err)
	}
	if rep.Status != StatusProcessing || rep.StartedAt == nil {
		t.Fatalf("expected PROCESSING with start timestamp, got %s", rep.Status)
	}
	if err := rep.Start(); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected invalid transition on double start, got %v", err)
	}
}

func TestAdvanceMonotonicProgress(t *testing.T) {
	rep := NewReport(uuid.New())
	rep.Start()

	if err := rep.Advance(20, "extracting entities"); err != nil {
		t.Fatalf("advance failed: %v", err)
	}
	if err := rep.Advance(20, "still extracting"); err != nil {
		t.Fatalf("equal percent should be accepted: %v", err)
	}
	if err := rep.Advance(10, "backwards"); !errors.Is(err, ErrProgressRegress) {
		t.Fatalf("expected progress regression rejected, got %v", err)
	}
	if rep.Percent != 20 {
		t.Fatalf("rejected advance mutated percent: %d", rep.Percent)
	}
}

func TestAdvanceRequiresProcessing(t *testing.T) {
	rep := NewReport(uuid.New())
	if err := rep.Advance(10, "early"); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected advance rejected while PENDING, got %v", err)
	}
}

func TestCompleteOnlyFromProcessing(t *testing.T) {
	rep := NewReport(uuid.New())
	if err := rep.Complete(&models.ReportPayload{}); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected complete rejected from PENDING, got %v", err)
	}

	rep.Start()
	if err := rep.Complete(&models.ReportPayload{}); err != nil {
		t.Fatalf("complete failed: %v", err)
	}
	if rep.Status != StatusComplete || rep.Percent != 100 || rep.CompletedAt == nil {
		t.Fatalf("unexpected completed report: %+v", rep)
	}
}

func TestTerminalStatesAreFinal(t *testing.T) {
	completed := NewReport(uuid.New())
	completed.Start()
	completed.Complete(&models.ReportPayload{})

	if err := completed.Advance(99, "late"); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected advance rejected on COMPLETE, got %v", err)
	}
	if err := completed.Fail("late", "nope"); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected fail rejected on COMPLETE, got %v", err)
	}

	failed := NewReport(uuid.New())
	failed.Start()
	failed.Fail("retry_exhausted", "suggestion service down")

	if err := failed.Start(); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected start rejected on FAILED, got %v", err)
	}
	if err := failed.Complete(&models.ReportPayload{}); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected complete rejected on FAILED, got %v", err)
	}
}

func TestFailFromPendingForPreExecutionErrors(t *testing.T) {
	rep := NewReport(uuid.New())
	if err := rep.Fail("validation", "missing note text"); err != nil {
		t.Fatalf("expected PENDING→FAILED allowed, got %v", err)
	}
	if rep.Status != StatusFailed {
		t.Fatalf("expected FAILED, got %s", rep.Status)
	}
}

func TestResetForRetry(t *testing.T) {
	rep := NewReport(uuid.New())
	rep.Start()
	rep.Fail("retry_exhausted", "boom")

	if err := rep.ResetForRetry(); err != nil {
		t.Fatalf("reset failed: %v", err)
	}
	if rep.Status != StatusPending || rep.Percent != 0 || rep.RetryCount != 1 {
		t.Fatalf("unexpected reset state: %+v", rep)
	}
	if rep.ErrorKind != "" || rep.Payload != nil {
		t.Fatal("expected error and payload cleared on reset")
	}

	if err := rep.ResetForRetry(); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected reset only from FAILED, got %v", err)
	}
}

func TestEstimateRemaining(t *testing.T) {
	rep := NewReport(uuid.New())
	rep.Start()
	started := time.Now().UTC().Add(-time.Minute)
	rep.StartedAt = &started
	rep.Advance(50, "halfway")

	remaining := rep.EstimateRemaining(time.Now().UTC())
	if remaining < 50*time.Second || remaining > 70*time.Second {
		t.Fatalf("expected roughly a minute remaining, got %s", remaining)
	}

	fresh := NewReport(uuid.New())
	if fresh.EstimateRemaining(time.Now()) != 0 {
		t.Fatal("expected zero estimate before processing starts")
	}
}
