package scheduler

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

var ErrDeadLetterNotFound = errors.New("dead-letter record not found")

// AttemptRecord is one entry in a dead letter's retry history.
type AttemptRecord struct {
	Attempt int       `json:"attempt"`
	Reason  string    `json:"reason"`
	At      time.Time `json:"at"`
}

// DeadLetterRecord parks a unit of work whose retry budget is exhausted
// until an operator or automatic process re-runs it.
type DeadLetterRecord struct {
	ID            uuid.UUID       `json:"id"`
	ReportID      uuid.UUID       `json:"report_id"`
	Reason        string          `json:"reason"`
	Attempts      int             `json:"attempts"`
	History       []AttemptRecord `json:"history,omitempty"`
	FirstFailedAt time.Time       `json:"first_failed_at"`
	LastFailedAt  time.Time       `json:"last_failed_at"`
	Resolved      bool            `json:"resolved"`
}

type DeadLetterModel struct {
	ID            uuid.UUID      `gorm:"type:uuid;primaryKey;column:id"`
	ReportID      uuid.UUID      `gorm:"type:uuid;column:report_id;uniqueIndex"`
	Reason        string         `gorm:"column:reason;index"`
	Attempts      int            `gorm:"column:attempts"`
	History       datatypes.JSON `gorm:"column:history"`
	FirstFailedAt time.Time      `gorm:"column:first_failed_at"`
	LastFailedAt  time.Time      `gorm:"column:last_failed_at"`
	Resolved      bool           `gorm:"column:resolved;index"`
}

func (DeadLetterModel) TableName() string {
	return "coding_dead_letters"
}

func (m *DeadLetterModel) ToDomain() (*DeadLetterRecord, error) {
	rec := &DeadLetterRecord{
		ID:            m.ID,
		ReportID:      m.ReportID,
		Reason:        m.Reason,
		Attempts:      m.Attempts,
		FirstFailedAt: m.FirstFailedAt,
		LastFailedAt:  m.LastFailedAt,
		Resolved:      m.Resolved,
	}
	if len(m.History) > 0 {
		if err := json.Unmarshal(m.History, &rec.History); err != nil {
			return nil, err
		}
	}
	return rec, nil
}

// DeadLetterFilter narrows list and bulk-retry operations.
type DeadLetterFilter struct {
	Reason   string
	Resolved *bool
	Limit    int
}

// DeadLetterStore persists dead-letter records.
type DeadLetterStore interface {
	Record(ctx context.Context, reportID uuid.UUID, reason string, attempts int) error
	List(ctx context.Context, filter DeadLetterFilter) ([]*DeadLetterRecord, error)
	GetByReport(ctx context.Context, reportID uuid.UUID) (*DeadLetterRecord, error)
	Resolve(ctx context.Context, reportID uuid.UUID) error
	Statistics(ctx context.Context) (map[string]int64, error)
}

type DeadLetterRepository struct {
	db *gorm.DB
}

func NewDeadLetterRepository(db *gorm.DB) *DeadLetterRepository {
	return &DeadLetterRepository{db: db}
}

func (r *DeadLetterRepository) AutoMigrate() error {
	return r.db.AutoMigrate(&DeadLetterModel{})
}

// Record creates or refreshes the record for a report. A report that faults
// again after an operator retry reuses its row: the history accumulates and
// the resolved flag drops back to false.
func (r *DeadLetterRepository) Record(ctx context.Context, reportID uuid.UUID, reason string, attempts int) error {
	now := time.Now().UTC()

	var model DeadLetterModel
	result := r.db.WithContext(ctx).First(&model, "report_id = ?", reportID)
	if errors.Is(result.Error, gorm.ErrRecordNotFound) {
		history, err := json.Marshal([]AttemptRecord{{Attempt: attempts, Reason: reason, At: now}})
		if err != nil {
			return err
		}
		model = DeadLetterModel{
			ID:            uuid.New(),
			ReportID:      reportID,
			Reason:        reason,
			Attempts:      attempts,
			History:       datatypes.JSON(history),
			FirstFailedAt: now,
			LastFailedAt:  now,
		}
		return r.db.WithContext(ctx).Create(&model).Error
	}
	if result.Error != nil {
		return result.Error
	}

	var history []AttemptRecord
	if len(model.History) > 0 {
		if err := json.Unmarshal(model.History, &history); err != nil {
			history = nil
		}
	}
	history = append(history, AttemptRecord{Attempt: attempts, Reason: reason, At: now})
	historyJSON, err := json.Marshal(history)
	if err != nil {
		return err
	}

	return r.db.WithContext(ctx).Model(&model).Updates(map[string]interface{}{
		"reason":         reason,
		"attempts":       model.Attempts + attempts,
		"history":        datatypes.JSON(historyJSON),
		"last_failed_at": now,
		"resolved":       false,
	}).Error
}

func (r *DeadLetterRepository) List(ctx context.Context, filter DeadLetterFilter) ([]*DeadLetterRecord, error) {
	query := r.db.WithContext(ctx).Model(&DeadLetterModel{})
	if filter.Reason != "" {
		query = query.Where("reason = ?", filter.Reason)
	}
	if filter.Resolved != nil {
		query = query.Where("resolved = ?", *filter.Resolved)
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}

	var rows []DeadLetterModel
	if err := query.Order("last_failed_at desc").Limit(limit).Find(&rows).Error; err != nil {
		return nil, err
	}

	records := make([]*DeadLetterRecord, 0, len(rows))
	for i := range rows {
		rec, err := rows[i].ToDomain()
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, nil
}

func (r *DeadLetterRepository) GetByReport(ctx context.Context, reportID uuid.UUID) (*DeadLetterRecord, error) {
	var model DeadLetterModel
	result := r.db.WithContext(ctx).First(&model, "report_id = ?", reportID)
	if errors.Is(result.Error, gorm.ErrRecordNotFound) {
		return nil, ErrDeadLetterNotFound
	}
	if result.Error != nil {
		return nil, result.Error
	}
	return model.ToDomain()
}

func (r *DeadLetterRepository) Resolve(ctx context.Context, reportID uuid.UUID) error {
	return r.db.WithContext(ctx).Model(&DeadLetterModel{}).
		Where("report_id = ?", reportID).
		Update("resolved", true).Error
}

func (r *DeadLetterRepository) Statistics(ctx context.Context) (map[string]int64, error) {
	type reasonCount struct {
		Reason string
		Count  int64
	}
	var counts []reasonCount
	err := r.db.WithContext(ctx).Model(&DeadLetterModel{}).
		Select("reason, count(*) as count").
		Where("resolved = ?", false).
		Group("reason").
		Find(&counts).Error
	if err != nil {
		return nil, err
	}

	stats := make(map[string]int64, len(counts))
	for _, c := range counts {
		stats[c.Reason] = c.Count
	}
	return stats, nil
}
