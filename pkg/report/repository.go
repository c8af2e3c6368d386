package report

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

var ErrNotFound = errors.New("report not found")

// Store persists report records.
type Store interface {
	Create(ctx context.Context, r *Report) error
	Get(ctx context.Context, id uuid.UUID) (*Report, error)
	Update(ctx context.Context, r *Report) error
	ListByStatus(ctx context.Context, status string, limit int) ([]*Report, error)
}

type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) AutoMigrate() error {
	return r.db.AutoMigrate(&ReportModel{})
}

func (r *Repository) Create(ctx context.Context, rep *Report) error {
	model, err := fromDomain(rep)
	if err != nil {
		return err
	}
	return r.db.WithContext(ctx).Create(model).Error
}

func (r *Repository) Get(ctx context.Context, id uuid.UUID) (*Report, error) {
	var model ReportModel
	result := r.db.WithContext(ctx).First(&model, "id = ?", id)
	if errors.Is(result.Error, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if result.Error != nil {
		return nil, result.Error
	}
	return model.ToDomain()
}

func (r *Repository) Update(ctx context.Context, rep *Report) error {
	model, err := fromDomain(rep)
	if err != nil {
		return err
	}
	return r.db.WithContext(ctx).Save(model).Error
}

func (r *Repository) ListByStatus(ctx context.Context, status string, limit int) ([]*Report, error) {
	if limit <= 0 {
		limit = 50
	}
	var rows []ReportModel
	result := r.db.WithContext(ctx).Where("status = ?", status).
		Order("created_at desc").Limit(limit).Find(&rows)
	if result.Error != nil {
		return nil, result.Error
	}
	reports := make([]*Report, 0, len(rows))
	for i := range rows {
		rep, err := rows[i].ToDomain()
		if err != nil {
			return nil, err
		}
		reports = append(reports, rep)
	}
	return reports, nil
}
