package encounter

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

var ErrNotFound = errors.New("encounter not found")

type Store interface {
	Create(ctx context.Context, enc *Encounter) error
	Get(ctx context.Context, id uuid.UUID) (*Encounter, error)
}

type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) AutoMigrate() error {
	return r.db.AutoMigrate(&EncounterModel{})
}

func (r *Repository) Create(ctx context.Context, enc *Encounter) error {
	model, err := fromDomain(enc)
	if err != nil {
		return err
	}
	return r.db.WithContext(ctx).Create(model).Error
}

func (r *Repository) Get(ctx context.Context, id uuid.UUID) (*Encounter, error) {
	var model EncounterModel
	result := r.db.WithContext(ctx).First(&model, "id = ?", id)
	if errors.Is(result.Error, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if result.Error != nil {
		return nil, result.Error
	}
	return model.ToDomain()
}
