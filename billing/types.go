package billing

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/yourusername/billdesk/models"
)

type LineItemInput struct {
	Description string
	Quantity    decimal.Decimal
	// UnitPrice is in major units of the invoice currency.
	UnitPrice decimal.Decimal
}

type RecurrenceInput struct {
	Frequency models.Frequency
	EndDate   *time.Time
	// SendOnGenerate overrides Config.SendOnGenerate when set.
	SendOnGenerate *bool
}

type CreateInvoiceInput struct {
	AccountID  uuid.UUID
	ClientID   uuid.UUID
	Currency   string
	Items      []LineItemInput
	IssueDate  time.Time
	DueDate    time.Time
	Notes      string
	Terms      string
	Recurrence *RecurrenceInput
}

// UpdateDraftInput replaces the editable parts of a draft. Nil fields are left
// unchanged; a non-nil Items replaces every line.
type UpdateDraftInput struct {
	InvoiceID uuid.UUID
	ClientID  *uuid.UUID
	Items     []LineItemInput
	IssueDate *time.Time
	DueDate   *time.Time
	Notes     *string
	Terms     *string
}

type RecordPaymentInput struct {
	InvoiceID uuid.UUID
	Amount    decimal.Decimal
	// Currency, when given, must match the invoice currency.
	Currency  string
	Method    models.PaymentMethod
	Date      time.Time
	Reference string
	Notes     string
}

type SubmitProofInput struct {
	InvoiceID   uuid.UUID
	Blob        []byte
	ContentType string
	// BlobRef points at an artifact already in the proof store. Used instead
	// of Blob when set.
	BlobRef       string
	ReferenceText string
}

type ConfirmInput struct {
	InvoiceID       uuid.UUID
	ReviewerComment string
}

type RejectInput struct {
	InvoiceID       uuid.UUID
	ReviewerComment string
}

type ListInvoicesFilter struct {
	AccountID *uuid.UUID
	ClientID  *uuid.UUID
	Status    models.InvoiceStatus
	Limit     int
	Offset    int
}

// Balance is an invoice's settlement position in minor units.
type Balance struct {
	Total     int64  `json:"total"`
	Paid      int64  `json:"paid"`
	Remaining int64  `json:"remaining"`
	Currency  string `json:"currency"`
}

// TickFailure records a template whose generation stopped during a tick.
type TickFailure struct {
	TemplateID uuid.UUID
	Period     time.Time
	Err        error
}

// TickReport summarizes one recurrence run.
type TickReport struct {
	Generated []models.Invoice
	Failures  []TickFailure
}
