package handlers

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/yourusername/billdesk/billing"
	"github.com/yourusername/billdesk/models"
	"github.com/yourusername/billdesk/money"
)

// Amount is a money value in major units plus its display form.
type Amount struct {
	Amount    string `json:"amount"`
	Formatted string `json:"formatted"`
}

func newAmount(minor int64, c money.Currency) Amount {
	return Amount{Amount: money.Decimal(minor, c), Formatted: money.Format(minor, c)}
}

type LineItemResponse struct {
	ID          uuid.UUID `json:"id"`
	Position    int       `json:"position"`
	Description string    `json:"description"`
	Quantity    string    `json:"quantity"`
	UnitPrice   Amount    `json:"unit_price"`
	LineTotal   Amount    `json:"line_total"`
}

type InvoiceResponse struct {
	ID            uuid.UUID            `json:"id"`
	InvoiceNumber string               `json:"invoice_number"`
	AccountID     uuid.UUID            `json:"account_id"`
	ClientID      uuid.UUID            `json:"client_id"`
	Status        models.InvoiceStatus `json:"status"`
	Currency      string               `json:"currency"`
	Items         []LineItemResponse   `json:"items"`
	Subtotal      Amount               `json:"subtotal"`
	Tax           Amount               `json:"tax"`
	Total         Amount               `json:"total"`
	IssueDate     string               `json:"issue_date"`
	DueDate       string               `json:"due_date"`
	Notes         string               `json:"notes,omitempty"`
	Terms         string               `json:"terms,omitempty"`
	Recurrence    *models.Recurrence   `json:"recurrence,omitempty"`
	TemplateID    *uuid.UUID           `json:"template_id,omitempty"`
	ActiveProofID *uuid.UUID           `json:"active_proof_id,omitempty"`
	Version       int64                `json:"version"`
	SentAt        *time.Time           `json:"sent_at,omitempty"`
	PaidAt        *time.Time           `json:"paid_at,omitempty"`
	CancelledAt   *time.Time           `json:"cancelled_at,omitempty"`
	CreatedAt     time.Time            `json:"created_at"`
	UpdatedAt     time.Time            `json:"updated_at"`
}

type PaymentResponse struct {
	ID          uuid.UUID            `json:"id"`
	InvoiceID   uuid.UUID            `json:"invoice_id"`
	Amount      Amount               `json:"amount"`
	Currency    string               `json:"currency"`
	PaymentDate string               `json:"payment_date"`
	Method      models.PaymentMethod `json:"method"`
	Reference   string               `json:"reference,omitempty"`
	Notes       string               `json:"notes,omitempty"`
	ProofID     *uuid.UUID           `json:"proof_id,omitempty"`
	CreatedAt   time.Time            `json:"created_at"`
}

type BalanceResponse struct {
	Currency  string `json:"currency"`
	Total     Amount `json:"total"`
	Paid      Amount `json:"paid"`
	Remaining Amount `json:"remaining"`
}

func (h *InvoiceHandler) invoiceResponse(inv *models.Invoice) InvoiceResponse {
	cur := h.lookup(inv.Currency)
	resp := InvoiceResponse{
		ID:            inv.ID,
		InvoiceNumber: inv.InvoiceNumber,
		AccountID:     inv.AccountID,
		ClientID:      inv.ClientID,
		Status:        inv.Status,
		Currency:      inv.Currency,
		Items:         make([]LineItemResponse, 0, len(inv.Items)),
		Subtotal:      newAmount(inv.Subtotal, cur),
		Tax:           newAmount(inv.Tax, cur),
		Total:         newAmount(inv.Total, cur),
		IssueDate:     inv.IssueDate.Format(time.DateOnly),
		DueDate:       inv.DueDate.Format(time.DateOnly),
		Notes:         inv.Notes,
		Terms:         inv.Terms,
		TemplateID:    inv.TemplateID,
		ActiveProofID: inv.ActiveProofID,
		Version:       inv.Version,
		SentAt:        inv.SentAt,
		PaidAt:        inv.PaidAt,
		CancelledAt:   inv.CancelledAt,
		CreatedAt:     inv.CreatedAt,
		UpdatedAt:     inv.UpdatedAt,
	}
	if inv.Recurrence.IsRecurring {
		r := inv.Recurrence
		resp.Recurrence = &r
	}
	for _, item := range inv.Items {
		resp.Items = append(resp.Items, LineItemResponse{
			ID:          item.ID,
			Position:    item.Position,
			Description: item.Description,
			Quantity:    item.Quantity.String(),
			UnitPrice:   newAmount(item.UnitPrice, cur),
			LineTotal:   newAmount(item.LineTotal, cur),
		})
	}
	return resp
}

func (h *InvoiceHandler) paymentResponse(p *models.Payment) PaymentResponse {
	return PaymentResponse{
		ID:          p.ID,
		InvoiceID:   p.InvoiceID,
		Amount:      newAmount(p.Amount, h.lookup(p.Currency)),
		Currency:    p.Currency,
		PaymentDate: p.PaymentDate.Format(time.DateOnly),
		Method:      p.Method,
		Reference:   p.Reference,
		Notes:       p.Notes,
		ProofID:     p.ProofID,
		CreatedAt:   p.CreatedAt,
	}
}

// lookup falls back to a two-decimal currency so a table edit never breaks reads.
func (h *InvoiceHandler) lookup(code string) money.Currency {
	c, err := h.currencies.Lookup(code)
	if err != nil {
		return money.Currency{Code: code, MinorUnits: 2, Symbol: code + " "}
	}
	return c
}

// Date accepts "2006-01-02" or RFC 3339 in request bodies.
type Date struct {
	time.Time
}

func (d *Date) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	if s == "" || s == "null" {
		return nil
	}
	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		if t, err = time.Parse(time.RFC3339, s); err != nil {
			return errors.New("dates must be YYYY-MM-DD")
		}
	}
	d.Time = t
	return nil
}

func (d *Date) value() time.Time {
	if d == nil {
		return time.Time{}
	}
	return d.Time
}

func (d *Date) ptr() *time.Time {
	if d == nil {
		return nil
	}
	t := d.Time
	return &t
}

// respondError maps billing errors onto HTTP status codes.
func respondError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	code := "Internal"
	switch {
	case errors.Is(err, billing.ErrValidation):
		status, code = http.StatusBadRequest, "Validation"
	case errors.Is(err, billing.ErrNotFound):
		status, code = http.StatusNotFound, "NotFound"
	case errors.Is(err, billing.ErrInvalidState):
		status, code = http.StatusConflict, "InvalidState"
	case errors.Is(err, billing.ErrDuplicateProof):
		status, code = http.StatusConflict, "DuplicateProof"
	case errors.Is(err, billing.ErrConflict):
		status, code = http.StatusConflict, "Conflict"
	case errors.Is(err, billing.ErrOverpayment):
		status, code = http.StatusUnprocessableEntity, "Overpayment"
	case errors.Is(err, billing.ErrProofStorage):
		status, code = http.StatusBadGateway, "ProofStorage"
	case errors.Is(err, billing.ErrConsistency):
		status, code = http.StatusInternalServerError, "Consistency"
	}
	_ = c.Error(err)

	message := err.Error()
	var opErr *billing.OperationError
	if errors.As(err, &opErr) && opErr.Detail != "" {
		message = opErr.Detail
	}
	if status == http.StatusInternalServerError {
		message = "internal error"
	}
	c.JSON(status, gin.H{"error": message, "code": code})
}
