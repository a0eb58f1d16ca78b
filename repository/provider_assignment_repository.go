package repository

import (
	"context"
	"time"

	"sms-backend/models"
	"sms-backend/utils"

	"gorm.io/gorm"
)

// ProviderAssignmentRepositoryImpl implements ProviderAssignmentRepository
type ProviderAssignmentRepositoryImpl struct {
	*BaseRepository[models.ProviderAssignment, models.ProviderAssignmentFilter]
}

func NewProviderAssignmentRepository(db *gorm.DB) ProviderAssignmentRepository {
	return &ProviderAssignmentRepositoryImpl{BaseRepository: NewBaseRepository[models.ProviderAssignment, models.ProviderAssignmentFilter](db)}
}

func (r *ProviderAssignmentRepositoryImpl) ListActiveByCustomer(ctx context.Context, customerID uint) ([]*models.ProviderAssignment, error) {
	active := true
	filter := models.ProviderAssignmentFilter{CustomerID: &customerID, IsActive: &active}
	return r.ByFilter(ctx, filter, "priority ASC, id ASC", 0, 0)
}

// RecordUsage bumps both usage counters in a single UPDATE. A counter whose
// watermark has been crossed is restarted at 1 and its watermark advanced;
// the watermark never moves backwards.
func (r *ProviderAssignmentRepositoryImpl) RecordUsage(ctx context.Context, assignmentID uint, now time.Time) error {
	db := r.getDB(ctx)
	dayStart := utils.StartOfDay(now)
	monthStart := utils.StartOfMonth(now)
	return db.Model(&models.ProviderAssignment{}).
		Where("id = ?", assignmentID).
		Updates(map[string]any{
			"daily_usage":        gorm.Expr("CASE WHEN last_reset_daily < ? THEN 1 ELSE daily_usage + 1 END", dayStart),
			"last_reset_daily":   gorm.Expr("CASE WHEN last_reset_daily < ? THEN ?::timestamptz ELSE last_reset_daily END", dayStart, dayStart),
			"monthly_usage":      gorm.Expr("CASE WHEN last_reset_monthly < ? THEN 1 ELSE monthly_usage + 1 END", monthStart),
			"last_reset_monthly": gorm.Expr("CASE WHEN last_reset_monthly < ? THEN ?::timestamptz ELSE last_reset_monthly END", monthStart, monthStart),
			"updated_at":         utils.UTCNow(),
		}).Error
}

func (r *ProviderAssignmentRepositoryImpl) applyFilter(db *gorm.DB, f models.ProviderAssignmentFilter) *gorm.DB {
	if f.ID != nil {
		db = db.Where("id = ?", *f.ID)
	}
	if f.UUID != nil {
		db = db.Where("uuid = ?", *f.UUID)
	}
	if f.CustomerID != nil {
		db = db.Where("customer_id = ?", *f.CustomerID)
	}
	if f.ProviderID != nil {
		db = db.Where("provider_id = ?", *f.ProviderID)
	}
	if f.IsActive != nil {
		db = db.Where("is_active = ?", *f.IsActive)
	}
	return db
}

func (r *ProviderAssignmentRepositoryImpl) ByFilter(ctx context.Context, filter models.ProviderAssignmentFilter, orderBy string, limit, offset int) ([]*models.ProviderAssignment, error) {
	db := r.getDB(ctx)
	query := r.applyFilter(db.Model(&models.ProviderAssignment{}), filter)
	if orderBy != "" {
		query = query.Order(orderBy)
	}
	if limit > 0 {
		query = query.Limit(limit)
	}
	if offset > 0 {
		query = query.Offset(offset)
	}
	var rows []*models.ProviderAssignment
	if err := query.Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *ProviderAssignmentRepositoryImpl) Count(ctx context.Context, filter models.ProviderAssignmentFilter) (int64, error) {
	db := r.getDB(ctx)
	query := r.applyFilter(db.Model(&models.ProviderAssignment{}), filter)
	var count int64
	if err := query.Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

func (r *ProviderAssignmentRepositoryImpl) Exists(ctx context.Context, filter models.ProviderAssignmentFilter) (bool, error) {
	c, err := r.Count(ctx, filter)
	if err != nil {
		return false, err
	}
	return c > 0, nil
}
