package repository

import (
	"context"
	"errors"

	"sms-backend/models"

	"gorm.io/gorm"
)

// ContactRepositoryImpl implements ContactRepository
type ContactRepositoryImpl struct {
	db *gorm.DB
}

func NewContactRepository(db *gorm.DB) ContactRepository {
	return &ContactRepositoryImpl{db: db}
}

func (r *ContactRepositoryImpl) getDB(ctx context.Context) *gorm.DB {
	if tx, ok := ctx.Value(TxContextKey).(*gorm.DB); ok && tx != nil {
		return tx
	}
	return r.db
}

func (r *ContactRepositoryImpl) ListByID(ctx context.Context, listID uint) (*models.ContactList, error) {
	db := r.getDB(ctx)
	var row models.ContactList
	if err := db.Last(&row, listID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &row, nil
}

func (r *ContactRepositoryImpl) CountByList(ctx context.Context, listID uint) (int64, error) {
	db := r.getDB(ctx)
	var count int64
	err := db.Model(&models.Contact{}).
		Where("contact_list_id = ?", listID).
		Count(&count).Error
	if err != nil {
		return 0, err
	}
	return count, nil
}

// ListUnprocessed anti-joins contacts against the campaign's message rows so a
// restarted drainer never double-sends a contact.
func (r *ContactRepositoryImpl) ListUnprocessed(ctx context.Context, listID, campaignID uint, limit int) ([]*models.Contact, error) {
	db := r.getDB(ctx)
	var rows []*models.Contact
	err := db.Model(&models.Contact{}).
		Joins("LEFT JOIN messages ON messages.contact_id = contacts.id AND messages.campaign_id = ?", campaignID).
		Where("contacts.contact_list_id = ?", listID).
		Where("messages.id IS NULL").
		Order("contacts.id ASC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *ContactRepositoryImpl) SaveList(ctx context.Context, list *models.ContactList) error {
	db := r.getDB(ctx)
	return db.Save(list).Error
}

func (r *ContactRepositoryImpl) SaveContacts(ctx context.Context, contacts []*models.Contact) error {
	if len(contacts) == 0 {
		return nil
	}
	db := r.getDB(ctx)
	return db.CreateInBatches(contacts, 500).Error
}
