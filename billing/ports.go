package billing

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/yourusername/billdesk/models"
	"gorm.io/gorm"
)

// ClientDirectory resolves billed parties. The engine never writes clients.
type ClientDirectory interface {
	GetClient(ctx context.Context, id uuid.UUID) (*models.Client, error)
}

// ProofStore persists uploaded payment-proof artifacts and hands back an
// opaque reference.
type ProofStore interface {
	Put(ctx context.Context, data []byte, contentType string) (string, error)
	Exists(ctx context.Context, ref string) (bool, error)
	Get(ctx context.Context, ref string) (*models.ProofBlob, error)
	// Claim locks ref for the rest of tx so it cannot be deleted before the
	// proof pointing at it commits. It fails if the artifact is gone.
	Claim(tx *gorm.DB, ref string) error
	// Delete removes ref unless a payment proof points at it.
	Delete(ctx context.Context, ref string) error
}

// StatusChange describes one committed invoice transition.
type StatusChange struct {
	InvoiceID     uuid.UUID            `json:"invoice_id"`
	InvoiceNumber string               `json:"invoice_number"`
	AccountID     uuid.UUID            `json:"account_id"`
	ClientID      uuid.UUID            `json:"client_id"`
	Operation     string               `json:"operation"`
	From          models.InvoiceStatus `json:"from"`
	To            models.InvoiceStatus `json:"to"`
	At            time.Time            `json:"at"`
}

// Notifier is told about status changes after they commit. Failures are
// logged and never roll anything back.
type Notifier interface {
	InvoiceStatusChanged(ctx context.Context, change StatusChange) error
}

// ReferenceChecker reports whether a payment reference can be matched to a
// settled transfer.
type ReferenceChecker interface {
	VerifyReference(ctx context.Context, reference string) (bool, error)
}

// Clock supplies the current time.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }

type nopNotifier struct{}

func (nopNotifier) InvoiceStatusChanged(context.Context, StatusChange) error { return nil }
