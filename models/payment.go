package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Payment is an immutable ledger entry applied to one invoice. Amount is in
// minor units of Currency, which always equals the invoice currency.
type Payment struct {
	ID          uuid.UUID     `gorm:"type:uuid;primaryKey" json:"id"`
	CreatedAt   time.Time     `json:"created_at"`
	InvoiceID   uuid.UUID     `gorm:"type:uuid;not null;index" json:"invoice_id"`
	Amount      int64         `gorm:"not null" json:"amount"`
	Currency    string        `gorm:"size:3;not null" json:"currency"`
	PaymentDate time.Time     `gorm:"not null" json:"payment_date"`
	Method      PaymentMethod `gorm:"type:varchar(20);not null" json:"method"`
	Reference   string        `gorm:"size:255" json:"reference,omitempty"`
	Notes       string        `gorm:"type:text" json:"notes,omitempty"`
	ProofID     *uuid.UUID    `gorm:"type:uuid;index" json:"proof_id,omitempty"`
}

// TableName overrides the table name
func (Payment) TableName() string {
	return "payments"
}

func (p *Payment) BeforeCreate(tx *gorm.DB) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	return nil
}

// BeforeUpdate keeps ledger rows append-only.
func (p *Payment) BeforeUpdate(tx *gorm.DB) error {
	return ErrImmutablePayment
}
