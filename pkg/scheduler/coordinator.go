package scheduler

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/medcoder-ai/platform/pkg/common/logger"
	"github.com/medcoder-ai/platform/pkg/report"
)

// ErrorKindRetryExhausted is the error kind stamped on a report when the
// retry budget is spent. It is the only error class surfaced to operators as
// a true failure.
const ErrorKindRetryExhausted = "retry_exhausted"

// Runner executes the full pipeline for one report.
type Runner interface {
	Execute(ctx context.Context, rep *report.Report) error
}

// Coordinator wraps pipeline execution with bounded retries and exponential
// backoff. On exhaustion it marks the report FAILED and writes the
// dead-letter record. One Coordinator is shared by both scheduler modes, so
// the retry semantics are identical whether a unit runs in-process or on a
// distributed worker.
type Coordinator struct {
	reports     *report.Service
	deadLetters DeadLetterStore
	runner      Runner
	maxAttempts int
	baseDelay   time.Duration
}

func NewCoordinator(reports *report.Service, deadLetters DeadLetterStore, runner Runner, maxAttempts int, baseDelay time.Duration) *Coordinator {
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	if baseDelay <= 0 {
		baseDelay = time.Second
	}
	return &Coordinator{
		reports:     reports,
		deadLetters: deadLetters,
		runner:      runner,
		maxAttempts: maxAttempts,
		baseDelay:   baseDelay,
	}
}

// Run drives one unit of work to COMPLETE, FAILED, or retry exhaustion.
func (c *Coordinator) Run(ctx context.Context, reportID uuid.UUID) error {
	rep, err := c.reports.Get(ctx, reportID)
	if err != nil {
		logger.Log.WithError(err).WithField("report_id", reportID).Error("cannot load report for execution")
		return err
	}
	if rep.Terminal() {
		return nil
	}

	var lastErr error
	delay := c.baseDelay
	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		lastErr = c.runner.Execute(ctx, rep)
		if lastErr == nil {
			return nil
		}

		logger.Log.WithError(lastErr).WithFields(map[string]interface{}{
			"report_id": reportID,
			"attempt":   attempt,
			"stage":     failingStage(lastErr),
		}).Warn("pipeline attempt failed")

		if attempt == c.maxAttempts {
			break
		}

		if err := c.reports.RecordAttempt(ctx, rep); err != nil {
			logger.Log.WithError(err).WithField("report_id", reportID).Warn("failed to record retry attempt")
		}

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			lastErr = ctx.Err()
			attempt = c.maxAttempts
		}
		delay *= 2
	}

	c.exhaust(ctx, rep, lastErr)
	return lastErr
}

// failingStage names the pipeline stage behind a fatal error, "unknown" for
// untagged errors.
func failingStage(err error) string {
	var se interface{ FailedStage() string }
	if errors.As(err, &se) {
		return se.FailedStage()
	}
	return "unknown"
}

func (c *Coordinator) exhaust(ctx context.Context, rep *report.Report, cause error) {
	reason := cause.Error()

	if err := c.reports.Fail(ctx, rep, ErrorKindRetryExhausted, reason); err != nil {
		logger.Log.WithError(err).WithField("report_id", rep.ID).Error("failed to mark report FAILED")
	}
	if err := c.deadLetters.Record(ctx, rep.ID, reason, c.maxAttempts); err != nil {
		logger.Log.WithError(err).WithField("report_id", rep.ID).Error("failed to write dead-letter record")
	}

	logger.Log.WithFields(map[string]interface{}{
		"report_id": rep.ID,
		"attempts":  c.maxAttempts,
		"reason":    reason,
	}).Error("retry budget exhausted, report dead-lettered")
}
