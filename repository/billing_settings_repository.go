package repository

import (
	"context"
	"errors"

	"sms-backend/models"

	"gorm.io/gorm"
)

// BillingSettingsRepositoryImpl implements BillingSettingsRepository
type BillingSettingsRepositoryImpl struct {
	*BaseRepository[models.BillingSettings, models.BillingSettingsFilter]
}

func NewBillingSettingsRepository(db *gorm.DB) BillingSettingsRepository {
	return &BillingSettingsRepositoryImpl{BaseRepository: NewBaseRepository[models.BillingSettings, models.BillingSettingsFilter](db)}
}

func (r *BillingSettingsRepositoryImpl) ByCustomer(ctx context.Context, customerID uint) (*models.BillingSettings, error) {
	db := r.getDB(ctx)
	var row models.BillingSettings
	if err := db.Where("customer_id = ?", customerID).Last(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &row, nil
}

func (r *BillingSettingsRepositoryImpl) Global(ctx context.Context) (*models.BillingSettings, error) {
	db := r.getDB(ctx)
	var row models.BillingSettings
	if err := db.Where("customer_id IS NULL").Last(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &row, nil
}

func (r *BillingSettingsRepositoryImpl) ListCustomerIDsWithSettings(ctx context.Context) ([]uint, error) {
	db := r.getDB(ctx)
	var ids []uint
	err := db.Model(&models.BillingSettings{}).
		Where("customer_id IS NOT NULL").
		Pluck("customer_id", &ids).Error
	if err != nil {
		return nil, err
	}
	return ids, nil
}

func (r *BillingSettingsRepositoryImpl) applyFilter(db *gorm.DB, f models.BillingSettingsFilter) *gorm.DB {
	if f.ID != nil {
		db = db.Where("id = ?", *f.ID)
	}
	if f.UUID != nil {
		db = db.Where("uuid = ?", *f.UUID)
	}
	if f.CustomerID != nil {
		db = db.Where("customer_id = ?", *f.CustomerID)
	}
	if f.Frequency != nil {
		db = db.Where("frequency = ?", *f.Frequency)
	}
	return db
}

func (r *BillingSettingsRepositoryImpl) ByFilter(ctx context.Context, filter models.BillingSettingsFilter, orderBy string, limit, offset int) ([]*models.BillingSettings, error) {
	db := r.getDB(ctx)
	query := r.applyFilter(db.Model(&models.BillingSettings{}), filter)
	if orderBy != "" {
		query = query.Order(orderBy)
	}
	if limit > 0 {
		query = query.Limit(limit)
	}
	if offset > 0 {
		query = query.Offset(offset)
	}
	var rows []*models.BillingSettings
	if err := query.Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *BillingSettingsRepositoryImpl) Count(ctx context.Context, filter models.BillingSettingsFilter) (int64, error) {
	db := r.getDB(ctx)
	query := r.applyFilter(db.Model(&models.BillingSettings{}), filter)
	var count int64
	if err := query.Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

func (r *BillingSettingsRepositoryImpl) Exists(ctx context.Context, filter models.BillingSettingsFilter) (bool, error) {
	c, err := r.Count(ctx, filter)
	if err != nil {
		return false, err
	}
	return c > 0, nil
}
