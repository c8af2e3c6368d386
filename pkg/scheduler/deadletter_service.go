package scheduler

import (
	"context"

	"github.com/google/uuid"
	"github.com/medcoder-ai/platform/pkg/common/logger"
	"github.com/medcoder-ai/platform/pkg/report"
)

// DeadLetterService exposes the operator affordances over parked units:
// inspect, re-trigger one, re-trigger in bulk, and count by failure reason.
type DeadLetterService struct {
	store     DeadLetterStore
	reports   *report.Service
	scheduler Scheduler
}

func NewDeadLetterService(store DeadLetterStore, reports *report.Service, scheduler Scheduler) *DeadLetterService {
	return &DeadLetterService{store: store, reports: reports, scheduler: scheduler}
}

func (s *DeadLetterService) ListFailed(ctx context.Context, filter DeadLetterFilter) ([]*DeadLetterRecord, error) {
	return s.store.List(ctx, filter)
}

// Retry resets a dead-lettered report to PENDING, marks the record
// resolved, and resubmits the unit.
func (s *DeadLetterService) Retry(ctx context.Context, reportID uuid.UUID) error {
	if _, err := s.store.GetByReport(ctx, reportID); err != nil {
		return err
	}

	rep, err := s.reports.Get(ctx, reportID)
	if err != nil {
		return err
	}
	if err := s.reports.ResetForRetry(ctx, rep); err != nil {
		return err
	}
	if err := s.store.Resolve(ctx, reportID); err != nil {
		return err
	}

	logger.Log.WithFields(map[string]interface{}{
		"report_id": reportID,
		"retries":   rep.RetryCount,
	}).Info("dead-lettered unit resubmitted")

	return s.scheduler.Submit(ctx, reportID)
}

// BulkRetry re-triggers every unresolved record matching the filter and
// returns how many were resubmitted.
func (s *DeadLetterService) BulkRetry(ctx context.Context, filter DeadLetterFilter) (int, error) {
	unresolved := false
	filter.Resolved = &unresolved

	records, err := s.store.List(ctx, filter)
	if err != nil {
		return 0, err
	}

	retried := 0
	for _, rec := range records {
		if err := s.Retry(ctx, rec.ReportID); err != nil {
			logger.Log.WithError(err).WithField("report_id", rec.ReportID).Warn("bulk retry skipped unit")
			continue
		}
		retried++
	}
	return retried, nil
}

func (s *DeadLetterService) Statistics(ctx context.Context) (map[string]int64, error) {
	return s.store.Statistics(ctx)
}
