package crosswalk

import (
	"context"
	"time"

	"github.com/medcoder-ai/platform/pkg/common/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// MappingStore is the durable source behind the cache.
type MappingStore interface {
	FetchMappings(ctx context.Context, codes []string) (map[string][]models.CrosswalkMapping, error)
	TopRequested(ctx context.Context, n int) ([]string, error)
	RecordLookups(ctx context.Context, codes []string) error
}

type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) AutoMigrate() error {
	return r.db.AutoMigrate(&MappingModel{}, &LookupCountModel{})
}

// FetchMappings loads mapping rows for all requested codes in one query.
func (r *Repository) FetchMappings(ctx context.Context, codes []string) (map[string][]models.CrosswalkMapping, error) {
	if len(codes) == 0 {
		return map[string][]models.CrosswalkMapping{}, nil
	}

	var rows []MappingModel
	result := r.db.WithContext(ctx).Where("source_code IN ?", codes).Find(&rows)
	if result.Error != nil {
		return nil, result.Error
	}

	out := make(map[string][]models.CrosswalkMapping, len(codes))
	for _, code := range codes {
		out[code] = nil
	}
	for i := range rows {
		row := &rows[i]
		out[row.SourceCode] = append(out[row.SourceCode], row.ToDomain())
	}
	return out, nil
}

func (r *Repository) TopRequested(ctx context.Context, n int) ([]string, error) {
	if n <= 0 {
		return nil, nil
	}
	var counters []LookupCountModel
	result := r.db.WithContext(ctx).Order("count desc").Limit(n).Find(&counters)
	if result.Error != nil {
		return nil, result.Error
	}
	codes := make([]string, 0, len(counters))
	for _, c := range counters {
		codes = append(codes, c.SourceCode)
	}
	return codes, nil
}

func (r *Repository) RecordLookups(ctx context.Context, codes []string) error {
	now := time.Now().UTC()
	for _, code := range codes {
		err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "source_code"}},
			DoUpdates: clause.Assignments(map[string]interface{}{
				"count":      gorm.Expr("crosswalk_lookup_counts.count + 1"),
				"updated_at": now,
			}),
		}).Create(&LookupCountModel{SourceCode: code, Count: 1, UpdatedAt: now}).Error
		if err != nil {
			return err
		}
	}
	return nil
}

// SeedIfEmpty loads the curated catalog into an empty reference table so a
// fresh deployment has a usable crosswalk before any ETL runs.
func (r *Repository) SeedIfEmpty(ctx context.Context, catalog Catalog) error {
	var count int64
	if err := r.db.WithContext(ctx).Model(&MappingModel{}).Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	now := time.Now().UTC()
	for source, entries := range catalog.Mappings {
		for _, entry := range entries {
			row := MappingModel{
				SourceCode:        source,
				SourceSystem:      catalog.SourceSystem,
				TargetCode:        entry.Target,
				TargetSystem:      catalog.TargetSystem,
				TargetDescription: entry.Description,
				Confidence:        entry.Confidence,
				Kind:              entry.Kind,
				CreatedAt:         now,
			}
			if err := r.db.WithContext(ctx).Create(&row).Error; err != nil {
				return err
			}
		}
	}
	return nil
}
