package billing

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/yourusername/billdesk/models"
	"github.com/yourusername/billdesk/money"
	"gorm.io/gorm"
)

// RemainingBalance is total minus the sum of payments. A negative result is a
// consistency error and is returned as computed, never clamped.
func RemainingBalance(total int64, payments []models.Payment) (int64, error) {
	var paid int64
	for _, p := range payments {
		paid += p.Amount
	}
	remaining := total - paid
	if remaining < 0 {
		return remaining, fmt.Errorf("%w: payments of %d exceed total %d", ErrConsistency, paid, total)
	}
	return remaining, nil
}

func listPayments(tx *gorm.DB, invoiceID uuid.UUID) ([]models.Payment, error) {
	var payments []models.Payment
	err := tx.Where("invoice_id = ?", invoiceID).
		Order("payment_date").
		Order("created_at").
		Find(&payments).Error
	return payments, err
}

// remaining loads the ledger for inv and returns its outstanding balance.
func (s *Service) remaining(tx *gorm.DB, op string, inv *models.Invoice) (int64, error) {
	payments, err := listPayments(tx, inv.ID)
	if err != nil {
		return 0, err
	}
	rem, err := RemainingBalance(inv.Total, payments)
	if err != nil {
		s.log.Error().Err(err).Str("op", op).Str("invoice_id", inv.ID.String()).Msg("ledger invariant broken")
		return 0, &OperationError{Op: op, InvoiceID: inv.ID, Err: err}
	}
	return rem, nil
}

// RecordPayment applies a manual payment. The invoice becomes paid when the
// balance reaches zero and partial otherwise. A proof under review is
// superseded by any manual payment; the client may submit a new one against
// the remaining balance.
func (s *Service) RecordPayment(ctx context.Context, in RecordPaymentInput) (*models.Invoice, *models.Payment, error) {
	const op = "RecordPayment"
	if !in.Amount.IsPositive() {
		return nil, nil, opError(op, in.InvoiceID, ErrValidation, "amount must be positive")
	}
	method := in.Method
	if method == "" {
		method = models.MethodOther
	}
	if _, err := models.ParsePaymentMethod(string(method)); err != nil {
		return nil, nil, opError(op, in.InvoiceID, ErrValidation, "%v", err)
	}

	var payment models.Payment
	inv, err := s.withInvoice(ctx, op, in.InvoiceID, func(tx *gorm.DB, inv *models.Invoice) error {
		if inv.Status == models.StatusDraft || inv.Status.IsTerminal() {
			return opError(op, inv.ID, ErrInvalidState, "cannot record a payment on a %s invoice", inv.Status)
		}
		if in.Currency != "" && !strings.EqualFold(in.Currency, inv.Currency) {
			return opError(op, inv.ID, ErrValidation, "payment currency %s does not match invoice currency %s", in.Currency, inv.Currency)
		}
		cur, err := s.currency(op, inv.ID, inv.Currency)
		if err != nil {
			return err
		}
		amount, err := money.ToMinor(in.Amount, cur)
		if err != nil {
			return opError(op, inv.ID, ErrValidation, "%v", err)
		}
		rem, err := s.remaining(tx, op, inv)
		if err != nil {
			return err
		}
		if amount > rem {
			return opError(op, inv.ID, ErrOverpayment, "%s exceeds outstanding %s", money.Format(amount, cur), money.Format(rem, cur))
		}

		ev := EventPayPartially
		if amount == rem {
			ev = EventPayInFull
		}
		to, err := Transition(inv.Status, ev)
		if err != nil {
			return transitionError(op, inv.ID, err)
		}

		now := s.now()
		date := now
		if !in.Date.IsZero() {
			date = in.Date.UTC()
		}
		payment = models.Payment{
			ID:          uuid.New(),
			InvoiceID:   inv.ID,
			Amount:      amount,
			Currency:    inv.Currency,
			PaymentDate: date,
			Method:      method,
			Reference:   in.Reference,
			Notes:       in.Notes,
		}
		if err := tx.Create(&payment).Error; err != nil {
			return err
		}

		if inv.Status == models.StatusPaymentSubmitted && inv.ActiveProofID != nil {
			if err := resolveProof(tx, op, inv, models.ProofSuperseded, "superseded by manual payment", now); err != nil {
				return err
			}
		}

		inv.Status = to
		if to == models.StatusPaid {
			inv.PaidAt = &now
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return inv, &payment, nil
}

// GetBalance reports total, paid and remaining amounts for an invoice.
func (s *Service) GetBalance(ctx context.Context, id uuid.UUID) (*Balance, error) {
	const op = "GetBalance"
	var inv models.Invoice
	db := s.db.WithContext(ctx)
	if err := db.First(&inv, "id = ?", id).Error; err != nil {
		return nil, mapRepoError(op, id, err)
	}
	payments, err := listPayments(db, id)
	if err != nil {
		return nil, mapRepoError(op, id, err)
	}
	rem, err := RemainingBalance(inv.Total, payments)
	if err != nil {
		s.log.Error().Err(err).Str("op", op).Str("invoice_id", id.String()).Msg("ledger invariant broken")
		return nil, &OperationError{Op: op, InvoiceID: id, Err: err}
	}
	return &Balance{
		Total:     inv.Total,
		Paid:      inv.Total - rem,
		Remaining: rem,
		Currency:  inv.Currency,
	}, nil
}

// ListPayments returns the ledger of an invoice in payment order.
func (s *Service) ListPayments(ctx context.Context, id uuid.UUID) ([]models.Payment, error) {
	const op = "ListPayments"
	db := s.db.WithContext(ctx)
	var count int64
	if err := db.Model(&models.Invoice{}).Where("id = ?", id).Count(&count).Error; err != nil {
		return nil, mapRepoError(op, id, err)
	}
	if count == 0 {
		return nil, &OperationError{Op: op, InvoiceID: id, Err: ErrNotFound}
	}
	payments, err := listPayments(db, id)
	if err != nil {
		return nil, mapRepoError(op, id, err)
	}
	return payments, nil
}
