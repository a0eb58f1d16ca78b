package models

import (
	"time"

	"sms-backend/utils"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ContactList is a named set of destination numbers owned by a customer
type ContactList struct {
	ID   uint      `gorm:"primaryKey" json:"id"`
	UUID uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:uk_contact_lists_uuid" json:"uuid"`

	CustomerID uint   `gorm:"not null;index:idx_contact_lists_customer_id" json:"customer_id"`
	Name       string `gorm:"size:255;not null" json:"name"`

	ContactCount int   `gorm:"not null;default:0" json:"contact_count"`
	IsActive     *bool `gorm:"default:true" json:"is_active"`

	CreatedAt time.Time `gorm:"default:(CURRENT_TIMESTAMP AT TIME ZONE 'UTC')" json:"created_at"`
	UpdatedAt time.Time `gorm:"default:(CURRENT_TIMESTAMP AT TIME ZONE 'UTC')" json:"updated_at"`

	// Relations
	Contacts []Contact `gorm:"foreignKey:ContactListID" json:"contacts,omitempty"`
}

// TableName returns the table name for the model
func (ContactList) TableName() string {
	return "contact_lists"
}

// BeforeCreate is called before creating a new record
func (l *ContactList) BeforeCreate(tx *gorm.DB) error {
	if l.UUID == uuid.Nil {
		l.UUID = uuid.New()
	}
	if l.CreatedAt.IsZero() {
		l.CreatedAt = utils.UTCNow()
	}
	return nil
}

// Contact is one destination number inside a contact list
type Contact struct {
	ID            uint `gorm:"primaryKey" json:"id"`
	ContactListID uint `gorm:"not null;index:idx_contacts_contact_list_id" json:"contact_list_id"`

	PhoneNumber string  `gorm:"size:20;not null;index:idx_contacts_phone_number" json:"phone_number"`
	Name        *string `gorm:"size:255" json:"name,omitempty"`

	CreatedAt time.Time `gorm:"default:(CURRENT_TIMESTAMP AT TIME ZONE 'UTC')" json:"created_at"`
}

// TableName returns the table name for the model
func (Contact) TableName() string {
	return "contacts"
}

// ContactFilter represents filter criteria for contact queries
type ContactFilter struct {
	ID            *uint
	ContactListID *uint
	PhoneNumber   *string
}

// ContactListFilter represents filter criteria for contact list queries
type ContactListFilter struct {
	ID         *uint
	UUID       *uuid.UUID
	CustomerID *uint
	IsActive   *bool
}
