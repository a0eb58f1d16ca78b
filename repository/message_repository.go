package repository

import (
	"context"
	"errors"
	"time"

	"sms-backend/models"

	"gorm.io/gorm"
)

// MessageRepositoryImpl implements MessageRepository
type MessageRepositoryImpl struct {
	*BaseRepository[models.Message, models.MessageFilter]
}

func NewMessageRepository(db *gorm.DB) MessageRepository {
	return &MessageRepositoryImpl{BaseRepository: NewBaseRepository[models.Message, models.MessageFilter](db)}
}

func (r *MessageRepositoryImpl) ByMessageID(ctx context.Context, messageID string) (*models.Message, error) {
	db := r.getDB(ctx)
	var row models.Message
	if err := db.Where("message_id = ?", messageID).Last(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &row, nil
}

// ListForPeriod pages by id so an interrupted aggregation can resume where it
// stopped. The billing timestamp is SentAt, else FailedAt, else CreatedAt.
func (r *MessageRepositoryImpl) ListForPeriod(ctx context.Context, customerID uint, start, end time.Time, afterID uint, limit int) ([]*models.Message, error) {
	db := r.getDB(ctx)
	var rows []*models.Message
	err := db.Model(&models.Message{}).
		Where("customer_id = ?", customerID).
		Where("id > ?", afterID).
		Where("COALESCE(sent_at, failed_at, created_at) >= ? AND COALESCE(sent_at, failed_at, created_at) < ?", start, end).
		Order("id ASC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *MessageRepositoryImpl) UnbilledUsage(ctx context.Context, customerID uint, since time.Time) (int, float64, error) {
	db := r.getDB(ctx)
	var agg struct {
		Count int
		Cost  float64
	}
	err := db.Model(&models.Message{}).
		Select("COUNT(*) AS count, COALESCE(SUM(cost), 0) AS cost").
		Where("customer_id = ?", customerID).
		Where("status IN ?", []models.MessageStatus{models.MessageStatusSent, models.MessageStatusDelivered}).
		Where("sent_at >= ?", since).
		Scan(&agg).Error
	if err != nil {
		return 0, 0, err
	}
	return agg.Count, agg.Cost, nil
}

// ListRetryable returns queued messages with remaining retry budget
func (r *MessageRepositoryImpl) ListRetryable(ctx context.Context, limit int) ([]*models.Message, error) {
	db := r.getDB(ctx)
	var rows []*models.Message
	err := db.Model(&models.Message{}).
		Where("status = ?", models.MessageStatusQueued).
		Where("retry_count < max_retries").
		Order("id ASC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *MessageRepositoryImpl) applyFilter(db *gorm.DB, f models.MessageFilter) *gorm.DB {
	if f.ID != nil {
		db = db.Where("id = ?", *f.ID)
	}
	if f.UUID != nil {
		db = db.Where("uuid = ?", *f.UUID)
	}
	if f.CustomerID != nil {
		db = db.Where("customer_id = ?", *f.CustomerID)
	}
	if f.CampaignID != nil {
		db = db.Where("campaign_id = ?", *f.CampaignID)
	}
	if f.ProviderID != nil {
		db = db.Where("provider_id = ?", *f.ProviderID)
	}
	if f.To != nil {
		db = db.Where("\"to\" = ?", *f.To)
	}
	if f.MessageID != nil {
		db = db.Where("message_id = ?", *f.MessageID)
	}
	if f.Status != nil {
		db = db.Where("status = ?", *f.Status)
	}
	if f.Prefix != nil {
		db = db.Where("prefix = ?", *f.Prefix)
	}
	if f.SentAfter != nil {
		db = db.Where("sent_at >= ?", *f.SentAfter)
	}
	if f.SentBefore != nil {
		db = db.Where("sent_at < ?", *f.SentBefore)
	}
	if f.CreatedAfter != nil {
		db = db.Where("created_at >= ?", *f.CreatedAfter)
	}
	if f.CreatedBefore != nil {
		db = db.Where("created_at < ?", *f.CreatedBefore)
	}
	return db
}

func (r *MessageRepositoryImpl) ByFilter(ctx context.Context, filter models.MessageFilter, orderBy string, limit, offset int) ([]*models.Message, error) {
	db := r.getDB(ctx)
	query := r.applyFilter(db.Model(&models.Message{}), filter)
	if orderBy != "" {
		query = query.Order(orderBy)
	}
	if limit > 0 {
		query = query.Limit(limit)
	}
	if offset > 0 {
		query = query.Offset(offset)
	}
	var rows []*models.Message
	if err := query.Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *MessageRepositoryImpl) Count(ctx context.Context, filter models.MessageFilter) (int64, error) {
	db := r.getDB(ctx)
	query := r.applyFilter(db.Model(&models.Message{}), filter)
	var count int64
	if err := query.Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

func (r *MessageRepositoryImpl) Exists(ctx context.Context, filter models.MessageFilter) (bool, error) {
	c, err := r.Count(ctx, filter)
	if err != nil {
		return false, err
	}
	return c > 0, nil
}
