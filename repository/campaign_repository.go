package repository

import (
	"context"
	"errors"
	"time"

	"sms-backend/models"
	"sms-backend/utils"

	"gorm.io/gorm"
)

// CampaignRepositoryImpl implements CampaignRepository
type CampaignRepositoryImpl struct {
	*BaseRepository[models.Campaign, models.CampaignFilter]
}

func NewCampaignRepository(db *gorm.DB) CampaignRepository {
	return &CampaignRepositoryImpl{BaseRepository: NewBaseRepository[models.Campaign, models.CampaignFilter](db)}
}

func (r *CampaignRepositoryImpl) ByUUID(ctx context.Context, id string) (*models.Campaign, error) {
	db := r.getDB(ctx)
	var row models.Campaign
	if err := db.Where("uuid = ?", id).Last(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &row, nil
}

func (r *CampaignRepositoryImpl) ListByStatus(ctx context.Context, status models.CampaignStatus, limit int) ([]*models.Campaign, error) {
	filter := models.CampaignFilter{Status: &status}
	return r.ByFilter(ctx, filter, "id ASC", limit, 0)
}

func (r *CampaignRepositoryImpl) ListDueScheduled(ctx context.Context, now time.Time, limit int) ([]*models.Campaign, error) {
	status := models.CampaignStatusScheduled
	filter := models.CampaignFilter{Status: &status, ScheduledBefore: &now}
	return r.ByFilter(ctx, filter, "scheduled_at ASC", limit, 0)
}

// UpdateStatus flips status with an optimistic guard on the current value.
// The guard is what makes dispatcher/state-machine races safe without
// multi-document transactions.
func (r *CampaignRepositoryImpl) UpdateStatus(ctx context.Context, campaignID uint, from, to models.CampaignStatus) (bool, error) {
	db := r.getDB(ctx)
	res := db.Model(&models.Campaign{}).
		Where("id = ? AND status = ?", campaignID, from).
		Updates(map[string]any{
			"status":     to,
			"updated_at": utils.UTCNow(),
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// IncrementCounters applies counter deltas and derives progress inside one
// UPDATE so concurrent workers never observe a stale progress value.
func (r *CampaignRepositoryImpl) IncrementCounters(ctx context.Context, campaignID uint, sentDelta, failedDelta, deliveredDelta int, costDelta float64) error {
	db := r.getDB(ctx)
	return db.Model(&models.Campaign{}).
		Where("id = ?", campaignID).
		Updates(map[string]any{
			"sent_count":      gorm.Expr("sent_count + ?", sentDelta),
			"failed_count":    gorm.Expr("failed_count + ?", failedDelta),
			"delivered_count": gorm.Expr("delivered_count + ?", deliveredDelta),
			"actual_cost":     gorm.Expr("actual_cost + ?", costDelta),
			"progress": gorm.Expr(
				"CASE WHEN contact_count > 0 THEN ROUND(100.0 * (sent_count + failed_count + delivered_count + ?) / contact_count) ELSE 0 END",
				sentDelta+failedDelta+deliveredDelta),
			"updated_at": utils.UTCNow(),
		}).Error
}

// UpdateFields writes only the named columns plus updated_at. Counter
// columns stay owned by IncrementCounters unless the caller names them
// explicitly, as the restart reset does.
func (r *CampaignRepositoryImpl) UpdateFields(ctx context.Context, campaignID uint, fields map[string]any) error {
	db := r.getDB(ctx)
	updates := make(map[string]any, len(fields)+1)
	for column, value := range fields {
		updates[column] = value
	}
	updates["updated_at"] = utils.UTCNow()
	return db.Model(&models.Campaign{}).
		Where("id = ?", campaignID).
		Updates(updates).Error
}

func (r *CampaignRepositoryImpl) applyFilter(db *gorm.DB, f models.CampaignFilter) *gorm.DB {
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
	if f.ProviderID != nil {
		db = db.Where("provider_id = ?", *f.ProviderID)
	}
	if f.Name != nil {
		db = db.Where("name = ?", *f.Name)
	}
	if f.ScheduledBefore != nil {
		db = db.Where("scheduled_at <= ?", *f.ScheduledBefore)
	}
	if f.CreatedAfter != nil {
		db = db.Where("created_at >= ?", *f.CreatedAfter)
	}
	if f.CreatedBefore != nil {
		db = db.Where("created_at < ?", *f.CreatedBefore)
	}
	return db
}

func (r *CampaignRepositoryImpl) ByFilter(ctx context.Context, filter models.CampaignFilter, orderBy string, limit, offset int) ([]*models.Campaign, error) {
	db := r.getDB(ctx)
	query := r.applyFilter(db.Model(&models.Campaign{}), filter)
	if orderBy != "" {
		query = query.Order(orderBy)
	}
	if limit > 0 {
		query = query.Limit(limit)
	}
	if offset > 0 {
		query = query.Offset(offset)
	}
	var rows []*models.Campaign
	if err := query.Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *CampaignRepositoryImpl) Count(ctx context.Context, filter models.CampaignFilter) (int64, error) {
	db := r.getDB(ctx)
	query := r.applyFilter(db.Model(&models.Campaign{}), filter)
	var count int64
	if err := query.Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

func (r *CampaignRepositoryImpl) Exists(ctx context.Context, filter models.CampaignFilter) (bool, error) {
	c, err := r.Count(ctx, filter)
	if err != nil {
		return false, err
	}
	return c > 0, nil
}
