package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/pipemetric/insights-api/internal/domain"
)

// RefreshRepository persists the history of pipeline refresh runs.
type RefreshRepository struct {
	db *gorm.DB
}

func NewRefreshRepository(db *gorm.DB) *RefreshRepository {
	return &RefreshRepository{db: db}
}

func (r *RefreshRepository) Create(ctx context.Context, record *domain.RefreshRecord) error {
	return r.db.WithContext(ctx).Create(record).Error
}

// List returns refresh runs newest first, capped at limit.
func (r *RefreshRepository) List(ctx context.Context, limit int) ([]domain.RefreshRecord, error) {
	var records []domain.RefreshRecord
	query := r.db.WithContext(ctx).Order("started_at DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&records).Error; err != nil {
		return nil, err
	}
	return records, nil
}

// Latest returns the most recent refresh run, or gorm.ErrRecordNotFound
// when history is empty.
func (r *RefreshRepository) Latest(ctx context.Context) (*domain.RefreshRecord, error) {
	var record domain.RefreshRecord
	if err := r.db.WithContext(ctx).Order("started_at DESC").First(&record).Error; err != nil {
		return nil, err
	}
	return &record, nil
}
