package repository

import (
	"context"
	"errors"

	"sms-backend/models"

	"gorm.io/gorm"
)

// ProviderRepositoryImpl implements ProviderRepository
type ProviderRepositoryImpl struct {
	*BaseRepository[models.Provider, models.ProviderFilter]
}

func NewProviderRepository(db *gorm.DB) ProviderRepository {
	return &ProviderRepositoryImpl{BaseRepository: NewBaseRepository[models.Provider, models.ProviderFilter](db)}
}

func (r *ProviderRepositoryImpl) ByName(ctx context.Context, name string) (*models.Provider, error) {
	db := r.getDB(ctx)
	var row models.Provider
	if err := db.Where("name = ?", name).Last(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &row, nil
}

func (r *ProviderRepositoryImpl) applyFilter(db *gorm.DB, f models.ProviderFilter) *gorm.DB {
	if f.ID != nil {
		db = db.Where("id = ?", *f.ID)
	}
	if f.UUID != nil {
		db = db.Where("uuid = ?", *f.UUID)
	}
	if f.Name != nil {
		db = db.Where("name = ?", *f.Name)
	}
	if f.Type != nil {
		db = db.Where("type = ?", *f.Type)
	}
	if f.IsActive != nil {
		db = db.Where("is_active = ?", *f.IsActive)
	}
	return db
}

func (r *ProviderRepositoryImpl) ByFilter(ctx context.Context, filter models.ProviderFilter, orderBy string, limit, offset int) ([]*models.Provider, error) {
	db := r.getDB(ctx)
	query := r.applyFilter(db.Model(&models.Provider{}), filter)
	if orderBy != "" {
		query = query.Order(orderBy)
	}
	if limit > 0 {
		query = query.Limit(limit)
	}
	if offset > 0 {
		query = query.Offset(offset)
	}
	var rows []*models.Provider
	if err := query.Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *ProviderRepositoryImpl) Count(ctx context.Context, filter models.ProviderFilter) (int64, error) {
	db := r.getDB(ctx)
	query := r.applyFilter(db.Model(&models.Provider{}), filter)
	var count int64
	if err := query.Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

func (r *ProviderRepositoryImpl) Exists(ctx context.Context, filter models.ProviderFilter) (bool, error) {
	c, err := r.Count(ctx, filter)
	if err != nil {
		return false, err
	}
	return c > 0, nil
}
