package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Recurrence is embedded in Invoice. A recurring invoice acts as the template
// for the instances the scheduler generates.
type Recurrence struct {
	IsRecurring       bool       `gorm:"not null;default:false" json:"is_recurring"`
	Frequency         Frequency  `gorm:"type:varchar(20)" json:"frequency,omitempty"`
	EndDate           *time.Time `json:"end_date,omitempty"`
	SendOnGenerate    bool       `gorm:"not null;default:false" json:"send_on_generate"`
	LastGeneratedDate *time.Time `json:"last_generated_date,omitempty"`
	GeneratedCount    int        `gorm:"not null;default:0" json:"generated_count"`
	Exhausted         bool       `gorm:"not null;default:false" json:"exhausted"`
}

type Invoice struct {
	ID            uuid.UUID     `gorm:"type:uuid;primaryKey" json:"id"`
	CreatedAt     time.Time     `json:"created_at"`
	UpdatedAt     time.Time     `json:"updated_at"`
	AccountID     uuid.UUID     `gorm:"type:uuid;not null;index;uniqueIndex:idx_invoice_account_number,priority:1" json:"account_id"`
	InvoiceNumber string        `gorm:"size:50;not null;uniqueIndex:idx_invoice_account_number,priority:2" json:"invoice_number"`
	ClientID      uuid.UUID     `gorm:"type:uuid;not null;index" json:"client_id"`
	Currency      string        `gorm:"size:3;not null" json:"currency"`
	Items         []LineItem    `gorm:"foreignKey:InvoiceID;constraint:OnDelete:CASCADE" json:"items"`
	Subtotal      int64         `gorm:"not null" json:"subtotal"`
	Tax           int64         `gorm:"not null;default:0" json:"tax"`
	Total         int64         `gorm:"not null" json:"total"`
	IssueDate     time.Time     `gorm:"not null;uniqueIndex:idx_invoice_template_period,priority:2" json:"issue_date"`
	DueDate       time.Time     `gorm:"not null" json:"due_date"`
	Notes         string        `gorm:"type:text" json:"notes"`
	Terms         string        `gorm:"type:text" json:"terms"`
	Status        InvoiceStatus `gorm:"type:varchar(32);not null;default:'draft';index" json:"status"`
	Recurrence    Recurrence    `gorm:"embedded;embeddedPrefix:recurrence_" json:"recurrence"`
	TemplateID    *uuid.UUID    `gorm:"type:uuid;uniqueIndex:idx_invoice_template_period,priority:1" json:"template_id,omitempty"`
	ActiveProofID *uuid.UUID    `gorm:"type:uuid" json:"active_proof_id,omitempty"`
	Version       int64         `gorm:"not null;default:1" json:"version"`
	SentAt        *time.Time    `json:"sent_at,omitempty"`
	PaidAt        *time.Time    `json:"paid_at,omitempty"`
	CancelledAt   *time.Time    `json:"cancelled_at,omitempty"`
}

// TableName overrides the table name
func (Invoice) TableName() string {
	return "invoices"
}

func (i *Invoice) BeforeCreate(tx *gorm.DB) error {
	if i.ID == uuid.Nil {
		i.ID = uuid.New()
	}
	return nil
}

// IsDraft returns true if the invoice is still editable.
func (i *Invoice) IsDraft() bool {
	return i.Status == StatusDraft
}

// LineItem is one billable row. UnitPrice and LineTotal are minor units of the
// invoice currency.
type LineItem struct {
	ID          uuid.UUID       `gorm:"type:uuid;primaryKey" json:"id"`
	InvoiceID   uuid.UUID       `gorm:"type:uuid;not null;index" json:"invoice_id"`
	Position    int             `gorm:"not null" json:"position"`
	Description string          `gorm:"size:500;not null" json:"description"`
	Quantity    decimal.Decimal `gorm:"type:decimal(18,4);not null" json:"quantity"`
	UnitPrice   int64           `gorm:"not null" json:"unit_price"`
	LineTotal   int64           `gorm:"not null" json:"line_total"`
}

func (LineItem) TableName() string {
	return "invoice_line_items"
}

func (l *LineItem) BeforeCreate(tx *gorm.DB) error {
	if l.ID == uuid.Nil {
		l.ID = uuid.New()
	}
	return nil
}

// InvoiceSequence tracks the last invoice number issued per account.
type InvoiceSequence struct {
	AccountID  uuid.UUID `gorm:"type:uuid;primaryKey"`
	LastNumber int64     `gorm:"not null"`
}

func (InvoiceSequence) TableName() string {
	return "invoice_sequences"
}
