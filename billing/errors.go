package billing

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

var (
	// ErrValidation is returned for malformed input. Nothing is persisted.
	ErrValidation = errors.New("validation failed")

	// ErrInvalidState is returned when the operation is not allowed for the
	// invoice's current status.
	ErrInvalidState = errors.New("invalid state for operation")

	// ErrOverpayment is returned when an amount exceeds the outstanding balance.
	ErrOverpayment = errors.New("amount exceeds outstanding balance")

	// ErrDuplicateProof is returned when an unresolved payment proof already exists.
	ErrDuplicateProof = errors.New("an unresolved payment proof already exists")

	// ErrConsistency signals broken ledger or totals invariants. It indicates a
	// defect and is never corrected automatically.
	ErrConsistency = errors.New("internal consistency violation")

	// ErrNotFound is returned when the invoice (or a referenced record) does not exist.
	ErrNotFound = errors.New("resource not found")

	// ErrConflict is returned when a concurrent writer changed the invoice first.
	ErrConflict = errors.New("concurrent modification")

	// ErrProofStorage is returned when the proof blob could not be persisted.
	ErrProofStorage = errors.New("proof storage failed")
)

// OperationError carries the failing operation and invoice alongside one of
// the sentinel errors above.
type OperationError struct {
	// Op is the service operation, e.g. "RecordPayment".
	Op string

	// InvoiceID is the invoice the operation targeted, if any.
	InvoiceID uuid.UUID

	// Err is the underlying error.
	Err error

	// Detail is a human-readable explanation.
	Detail string
}

func (e *OperationError) Error() string {
	target := ""
	if e.InvoiceID != uuid.Nil {
		target = " invoice " + e.InvoiceID.String()
	}
	if e.Detail != "" {
		return fmt.Sprintf("billing: %s%s: %v: %s", e.Op, target, e.Err, e.Detail)
	}
	return fmt.Sprintf("billing: %s%s: %v", e.Op, target, e.Err)
}

func (e *OperationError) Unwrap() error {
	return e.Err
}

func opError(op string, id uuid.UUID, err error, format string, args ...interface{}) error {
	return &OperationError{Op: op, InvoiceID: id, Err: err, Detail: fmt.Sprintf(format, args...)}
}

// mapRepoError maps storage errors to service errors.
func mapRepoError(op string, id uuid.UUID, err error) error {
	var opErr *OperationError
	switch {
	case err == nil:
		return nil
	case errors.As(err, &opErr):
		return err
	case errors.Is(err, gorm.ErrRecordNotFound):
		return &OperationError{Op: op, InvoiceID: id, Err: ErrNotFound}
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return &OperationError{Op: op, InvoiceID: id, Err: ErrConflict, Detail: err.Error()}
	default:
		return fmt.Errorf("billing: %s: %w", op, err)
	}
}
