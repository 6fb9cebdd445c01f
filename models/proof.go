package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// PaymentProof is a client-submitted artifact claiming payment of an invoice.
// PriorStatus records the status the invoice held before payment_submitted so
// a rejection can restore it.
type PaymentProof struct {
	ID                uuid.UUID       `gorm:"type:uuid;primaryKey" json:"id"`
	InvoiceID         uuid.UUID       `gorm:"type:uuid;not null;index" json:"invoice_id"`
	BlobRef           string          `gorm:"size:255;not null" json:"blob_ref"`
	ContentType       string          `gorm:"size:100" json:"content_type,omitempty"`
	ReferenceText     string          `gorm:"size:255" json:"reference_text,omitempty"`
	ReferenceVerified bool            `gorm:"not null;default:false" json:"reference_verified"`
	UploadedAt        time.Time       `gorm:"not null" json:"uploaded_at"`
	PriorStatus       InvoiceStatus   `gorm:"type:varchar(32);not null" json:"prior_status"`
	Resolution        ProofResolution `gorm:"type:varchar(20);not null;default:''" json:"resolution,omitempty"`
	ReviewerComment   string          `gorm:"type:text" json:"reviewer_comment,omitempty"`
	ResolvedAt        *time.Time      `json:"resolved_at,omitempty"`
}

// TableName overrides the table name
func (PaymentProof) TableName() string {
	return "payment_proofs"
}

func (p *PaymentProof) BeforeCreate(tx *gorm.DB) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	return nil
}

// IsResolved reports whether a reviewer (or a superseding action) closed the proof.
func (p *PaymentProof) IsResolved() bool {
	return p.Resolution != ProofPending
}

// ProofBlob stores uploaded proof bytes for the database-backed proof store.
type ProofBlob struct {
	Ref         string    `gorm:"size:64;primaryKey"`
	CreatedAt   time.Time
	ContentType string `gorm:"size:100"`
	Size        int64  `gorm:"not null"`
	Data        []byte `gorm:"not null"`
}

func (ProofBlob) TableName() string {
	return "proof_blobs"
}
