package report

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/medcoder-ai/platform/pkg/common/logger"
	"github.com/medcoder-ai/platform/pkg/common/models"
)

// ErrNotReady is returned when a result is requested before the report
// reaches COMPLETE.
var ErrNotReady = errors.New("report result not ready")

// Service persists state-machine transitions and keeps the hot status
// snapshot current. It assumes single-writer usage per report: the scheduler
// guarantees only the executing worker calls the mutating methods.
type Service struct {
	store     Store
	snapshots SnapshotStore
}

func NewService(store Store, snapshots SnapshotStore) *Service {
	return &Service{store: store, snapshots: snapshots}
}

func (s *Service) Create(ctx context.Context, encounterID uuid.UUID) (*Report, error) {
	rep := NewReport(encounterID)
	if err := s.store.Create(ctx, rep); err != nil {
		return nil, err
	}
	s.snapshot(ctx, rep)
	return rep, nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Report, error) {
	return s.store.Get(ctx, id)
}

func (s *Service) Start(ctx context.Context, rep *Report) error {
	if err := rep.Start(); err != nil {
		return err
	}
	return s.persist(ctx, rep)
}

func (s *Service) Advance(ctx context.Context, rep *Report, percent int, stage string) error {
	if err := rep.Advance(percent, stage); err != nil {
		return err
	}
	return s.persist(ctx, rep)
}

func (s *Service) Complete(ctx context.Context, rep *Report, payload *models.ReportPayload) error {
	if err := rep.Complete(payload); err != nil {
		return err
	}
	return s.persist(ctx, rep)
}

func (s *Service) Fail(ctx context.Context, rep *Report, errorKind, message string) error {
	if err := rep.Fail(errorKind, message); err != nil {
		return err
	}
	return s.persist(ctx, rep)
}

func (s *Service) ResetForRetry(ctx context.Context, rep *Report) error {
	if err := rep.ResetForRetry(); err != nil {
		return err
	}
	return s.persist(ctx, rep)
}

// RecordAttempt bumps the retry counter between coordinator attempts.
func (s *Service) RecordAttempt(ctx context.Context, rep *Report) error {
	rep.RetryCount++
	return s.persist(ctx, rep)
}

// Status serves the poll-friendly view, preferring the Redis snapshot and
// falling back to the durable store.
func (s *Service) Status(ctx context.Context, id uuid.UUID) (StatusView, error) {
	if s.snapshots != nil {
		if view, ok := s.snapshots.Get(ctx, id.String()); ok {
			return withEstimate(view, time.Now().UTC()), nil
		}
	}
	rep, err := s.store.Get(ctx, id)
	if err != nil {
		return StatusView{}, err
	}
	return withEstimate(viewOf(rep), time.Now().UTC()), nil
}

// Result returns the payload of a COMPLETE report, ErrNotReady otherwise.
func (s *Service) Result(ctx context.Context, id uuid.UUID) (*models.ReportPayload, error) {
	rep, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if rep.Status != StatusComplete {
		return nil, ErrNotReady
	}
	return rep.Payload, nil
}

func (s *Service) persist(ctx context.Context, rep *Report) error {
	if err := s.store.Update(ctx, rep); err != nil {
		return err
	}
	s.snapshot(ctx, rep)
	return nil
}

func (s *Service) snapshot(ctx context.Context, rep *Report) {
	if s.snapshots == nil {
		return
	}
	if err := s.snapshots.Put(ctx, viewOf(rep)); err != nil {
		logger.Log.WithError(err).WithField("report_id", rep.ID).Debug("failed to write status snapshot")
	}
}

func viewOf(rep *Report) StatusView {
	return StatusView{
		ReportID:     rep.ID.String(),
		Status:       rep.Status,
		Percent:      rep.Percent,
		Stage:        rep.Stage,
		RetryCount:   rep.RetryCount,
		StartedAt:    rep.StartedAt,
		ErrorKind:    rep.ErrorKind,
		ErrorMessage: rep.ErrorMessage,
	}
}

func withEstimate(view StatusView, now time.Time) StatusView {
	if view.Status == StatusProcessing && view.Percent > 0 && view.StartedAt != nil {
		elapsed := now.Sub(*view.StartedAt)
		remaining := time.Duration(float64(elapsed) * float64(100-view.Percent) / float64(view.Percent))
		view.EstimatedRemainingSecs = remaining.Seconds()
	}
	return view
}
