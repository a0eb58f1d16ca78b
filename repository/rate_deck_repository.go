package repository

import (
	"context"
	"errors"

	"sms-backend/models"

	"gorm.io/gorm"
)

// RateDeckRepositoryImpl implements RateDeckRepository
type RateDeckRepositoryImpl struct {
	*BaseRepository[models.RateDeck, models.RateDeckFilter]
}

func NewRateDeckRepository(db *gorm.DB) RateDeckRepository {
	return &RateDeckRepositoryImpl{BaseRepository: NewBaseRepository[models.RateDeck, models.RateDeckFilter](db)}
}

func (r *RateDeckRepositoryImpl) ByCustomerAndService(ctx context.Context, customerID uint, service models.RateDeckService) (*models.RateDeck, error) {
	db := r.getDB(ctx)
	var row models.RateDeck
	err := db.Where("customer_id = ? AND service = ? AND is_active = ?", customerID, service, true).
		Last(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &row, nil
}

// LongestPrefixRate matches the destination against deck prefixes, longest
// first, entirely in SQL.
func (r *RateDeckRepositoryImpl) LongestPrefixRate(ctx context.Context, rateDeckID uint, destination string) (*models.Rate, error) {
	db := r.getDB(ctx)
	var row models.Rate
	err := db.Model(&models.Rate{}).
		Where("rate_deck_id = ?", rateDeckID).
		Where("? LIKE prefix || '%'", destination).
		Order("LENGTH(prefix) DESC").
		First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &row, nil
}

func (r *RateDeckRepositoryImpl) SaveRates(ctx context.Context, rates []*models.Rate) error {
	if len(rates) == 0 {
		return nil
	}
	db := r.getDB(ctx)
	return db.CreateInBatches(rates, 500).Error
}

func (r *RateDeckRepositoryImpl) applyFilter(db *gorm.DB, f models.RateDeckFilter) *gorm.DB {
	if f.ID != nil {
		db = db.Where("id = ?", *f.ID)
	}
	if f.UUID != nil {
		db = db.Where("uuid = ?", *f.UUID)
	}
	if f.CustomerID != nil {
		db = db.Where("customer_id = ?", *f.CustomerID)
	}
	if f.Service != nil {
		db = db.Where("service = ?", *f.Service)
	}
	if f.IsActive != nil {
		db = db.Where("is_active = ?", *f.IsActive)
	}
	return db
}

func (r *RateDeckRepositoryImpl) ByFilter(ctx context.Context, filter models.RateDeckFilter, orderBy string, limit, offset int) ([]*models.RateDeck, error) {
	db := r.getDB(ctx)
	query := r.applyFilter(db.Model(&models.RateDeck{}), filter)
	if orderBy != "" {
		query = query.Order(orderBy)
	}
	if limit > 0 {
		query = query.Limit(limit)
	}
	if offset > 0 {
		query = query.Offset(offset)
	}
	var rows []*models.RateDeck
	if err := query.Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *RateDeckRepositoryImpl) Count(ctx context.Context, filter models.RateDeckFilter) (int64, error) {
	db := r.getDB(ctx)
	query := r.applyFilter(db.Model(&models.RateDeck{}), filter)
	var count int64
	if err := query.Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

func (r *RateDeckRepositoryImpl) Exists(ctx context.Context, filter models.RateDeckFilter) (bool, error) {
	c, err := r.Count(ctx, filter)
	if err != nil {
		return false, err
	}
	return c > 0, nil
}
