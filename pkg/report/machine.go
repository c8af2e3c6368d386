package report

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/medcoder-ai/platform/pkg/common/models"
)

var (
	ErrInvalidTransition = errors.New("invalid report state transition")
	ErrTerminalReport    = errors.New("report is terminal")
	ErrProgressRegress   = errors.New("progress percent must not decrease")
)

// NewReport creates a unit of work in its only initial state.
func NewReport(encounterID uuid.UUID) *Report {
	return &Report{
		ID:          uuid.New(),
		EncounterID: encounterID,
		Status:      StatusPending,
		Percent:     0,
		Stage:       StageQueued,
		CreatedAt:   time.Now().UTC(),
	}
}

func (r *Report) Terminal() bool {
	return r.Status == StatusComplete || r.Status == StatusFailed
}

// Start moves PENDING→PROCESSING and stamps the start time.
func (r *Report) Start() error {
	if r.Status != StatusPending {
		return fmt.Errorf("start from %s: %w", r.Status, ErrInvalidTransition)
	}
	now := time.Now().UTC()
	r.Status = StatusProcessing
	r.StartedAt = &now
	return nil
}

// Advance updates progress while PROCESSING. Percent is monotonically
// non-decreasing; a lower value is rejected.
func (r *Report) Advance(percent int, stage string) error {
	if r.Status != StatusProcessing {
		return fmt.Errorf("advance from %s: %w", r.Status, ErrInvalidTransition)
	}
	if percent < r.Percent {
		return fmt.Errorf("percent %d after %d: %w", percent, r.Percent, ErrProgressRegress)
	}
	r.Percent = percent
	r.Stage = stage
	return nil
}

// Complete moves PROCESSING→COMPLETE. The payload is immutable afterwards.
func (r *Report) Complete(payload *models.ReportPayload) error {
	if r.Status != StatusProcessing {
		return fmt.Errorf("complete from %s: %w", r.Status, ErrInvalidTransition)
	}
	now := time.Now().UTC()
	r.Status = StatusComplete
	r.Percent = 100
	r.Stage = "complete"
	r.CompletedAt = &now
	r.Payload = payload
	return nil
}

// Fail moves PROCESSING→FAILED, or PENDING→FAILED for pre-execution errors.
func (r *Report) Fail(errorKind, message string) error {
	if r.Status != StatusProcessing && r.Status != StatusPending {
		return fmt.Errorf("fail from %s: %w", r.Status, ErrInvalidTransition)
	}
	now := time.Now().UTC()
	r.Status = StatusFailed
	r.Stage = "failed"
	r.CompletedAt = &now
	r.ErrorKind = errorKind
	r.ErrorMessage = message
	return nil
}

// ResetForRetry is the operator escape hatch out of FAILED: the report goes
// back to PENDING with its retry count bumped, ready for resubmission.
func (r *Report) ResetForRetry() error {
	if r.Status != StatusFailed {
		return fmt.Errorf("reset from %s: %w", r.Status, ErrInvalidTransition)
	}
	r.Status = StatusPending
	r.Percent = 0
	r.Stage = StageQueued
	r.RetryCount++
	r.ErrorKind = ""
	r.ErrorMessage = ""
	r.StartedAt = nil
	r.CompletedAt = nil
	r.Payload = nil
	return nil
}

// Elapsed returns time spent processing so far, or the final duration once
// terminal.
func (r *Report) Elapsed(now time.Time) time.Duration {
	if r.StartedAt == nil {
		return 0
	}
	if r.CompletedAt != nil {
		return r.CompletedAt.Sub(*r.StartedAt)
	}
	return now.Sub(*r.StartedAt)
}

// EstimateRemaining projects time left from elapsed time and current percent.
func (r *Report) EstimateRemaining(now time.Time) time.Duration {
	if r.Status != StatusProcessing || r.Percent <= 0 {
		return 0
	}
	elapsed := r.Elapsed(now)
	return time.Duration(float64(elapsed) * float64(100-r.Percent) / float64(r.Percent))
}
