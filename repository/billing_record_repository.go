package repository

import (
	"context"
	"errors"
	"time"

	"sms-backend/models"
	"sms-backend/utils"

	"gorm.io/gorm"
)

// BillingRecordRepositoryImpl implements BillingRecordRepository
type BillingRecordRepositoryImpl struct {
	*BaseRepository[models.BillingRecord, models.BillingRecordFilter]
}

func NewBillingRecordRepository(db *gorm.DB) BillingRecordRepository {
	return &BillingRecordRepositoryImpl{BaseRepository: NewBaseRepository[models.BillingRecord, models.BillingRecordFilter](db)}
}

func (r *BillingRecordRepositoryImpl) ListPending(ctx context.Context, limit int) ([]*models.BillingRecord, error) {
	status := models.BillingRecordStatusPending
	filter := models.BillingRecordFilter{Status: &status}
	return r.ByFilter(ctx, filter, "billing_date ASC, id ASC", limit, 0)
}

// Claim is the self-concurrency guard for charge processing: only the caller
// that wins the pending -> processing flip may talk to the ledger.
func (r *BillingRecordRepositoryImpl) Claim(ctx context.Context, recordID uint) (bool, error) {
	db := r.getDB(ctx)
	res := db.Model(&models.BillingRecord{}).
		Where("id = ? AND status = ?", recordID, models.BillingRecordStatusPending).
		Updates(map[string]any{
			"status":     models.BillingRecordStatusProcessing,
			"updated_at": utils.UTCNow(),
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *BillingRecordRepositoryImpl) ListProcessingOlderThan(ctx context.Context, cutoff time.Time, limit int) ([]*models.BillingRecord, error) {
	db := r.getDB(ctx)
	var rows []*models.BillingRecord
	err := db.Model(&models.BillingRecord{}).
		Where("status = ?", models.BillingRecordStatusProcessing).
		Where("updated_at < ?", cutoff).
		Order("id ASC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *BillingRecordRepositoryImpl) HasOverlapping(ctx context.Context, customerID uint, start, end time.Time) (bool, error) {
	db := r.getDB(ctx)
	var count int64
	err := db.Model(&models.BillingRecord{}).
		Where("customer_id = ?", customerID).
		Where("status <> ?", models.BillingRecordStatusCancelled).
		Where("period_start < ? AND ? < period_end", end, start).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *BillingRecordRepositoryImpl) LastPeriodEnd(ctx context.Context, customerID uint) (*time.Time, error) {
	db := r.getDB(ctx)
	var row models.BillingRecord
	err := db.Model(&models.BillingRecord{}).
		Where("customer_id = ?", customerID).
		Where("status <> ?", models.BillingRecordStatusCancelled).
		Order("period_end DESC").
		First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &row.PeriodEnd, nil
}

func (r *BillingRecordRepositoryImpl) applyFilter(db *gorm.DB, f models.BillingRecordFilter) *gorm.DB {
	if f.ID != nil {
		db = db.Where("id = ?", *f.ID)
	}
	if f.UUID != nil {
		db = db.Where("uuid = ?", *f.UUID)
	}
	if f.CustomerID != nil {
		db = db.Where("customer_id = ?", *f.CustomerID)
	}
	if f.Status != nil {
		db = db.Where("status = ?", *f.Status)
	}
	if f.BillingType != nil {
		db = db.Where("billing_type = ?", *f.BillingType)
	}
	if f.PeriodFrom != nil {
		db = db.Where("period_start >= ?", *f.PeriodFrom)
	}
	if f.PeriodTo != nil {
		db = db.Where("period_end <= ?", *f.PeriodTo)
	}
	return db
}

func (r *BillingRecordRepositoryImpl) ByFilter(ctx context.Context, filter models.BillingRecordFilter, orderBy string, limit, offset int) ([]*models.BillingRecord, error) {
	db := r.getDB(ctx)
	query := r.applyFilter(db.Model(&models.BillingRecord{}), filter)
	if orderBy != "" {
		query = query.Order(orderBy)
	}
	if limit > 0 {
		query = query.Limit(limit)
	}
	if offset > 0 {
		query = query.Offset(offset)
	}
	var rows []*models.BillingRecord
	if err := query.Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *BillingRecordRepositoryImpl) Count(ctx context.Context, filter models.BillingRecordFilter) (int64, error) {
	db := r.getDB(ctx)
	query := r.applyFilter(db.Model(&models.BillingRecord{}), filter)
	var count int64
	if err := query.Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

func (r *BillingRecordRepositoryImpl) Exists(ctx context.Context, filter models.BillingRecordFilter) (bool, error) {
	c, err := r.Count(ctx, filter)
	if err != nil {
		return false, err
	}
	return c > 0, nil
}
