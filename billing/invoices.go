package billing

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/yourusername/billdesk/models"
	"gorm.io/gorm"
)

// CreateInvoice validates the input, prices the lines and stores a new draft
// with the account's next invoice number.
func (s *Service) CreateInvoice(ctx context.Context, in CreateInvoiceInput) (*models.Invoice, error) {
	const op = "CreateInvoice"
	if in.AccountID == uuid.Nil {
		return nil, opError(op, uuid.Nil, ErrValidation, "account is required")
	}
	if in.ClientID == uuid.Nil {
		return nil, opError(op, uuid.Nil, ErrValidation, "client is required")
	}
	cur, err := s.currency(op, uuid.Nil, in.Currency)
	if err != nil {
		return nil, err
	}
	lines, err := buildLineItems(in.Items, cur)
	if err != nil {
		return nil, opError(op, uuid.Nil, ErrValidation, "%v", err)
	}

	issue := dateOnly(in.IssueDate)
	if in.IssueDate.IsZero() {
		issue = dateOnly(s.now())
	}
	due := dateOnly(in.DueDate)
	if in.DueDate.IsZero() {
		due = issue
	}
	if due.Before(issue) {
		return nil, opError(op, uuid.Nil, ErrValidation, "due date %s is before issue date %s", due.Format(time.DateOnly), issue.Format(time.DateOnly))
	}

	var recurrence models.Recurrence
	if in.Recurrence != nil {
		recurrence, err = s.buildRecurrence(*in.Recurrence, issue)
		if err != nil {
			return nil, opError(op, uuid.Nil, ErrValidation, "%v", err)
		}
	}

	client, err := s.resolveClient(ctx, op, uuid.Nil, in.ClientID)
	if err != nil {
		return nil, err
	}
	if client.AccountID != in.AccountID {
		return nil, opError(op, uuid.Nil, ErrValidation, "client %s belongs to another account", in.ClientID)
	}

	inv := &models.Invoice{
		ID:         uuid.New(),
		AccountID:  in.AccountID,
		ClientID:   in.ClientID,
		Currency:   cur.Code,
		IssueDate:  issue,
		DueDate:    due,
		Notes:      in.Notes,
		Terms:      in.Terms,
		Status:     models.StatusDraft,
		Recurrence: recurrence,
		Version:    1,
	}
	if err := applyLines(inv, lines); err != nil {
		return nil, opError(op, uuid.Nil, ErrValidation, "%v", err)
	}
	if inv.Total <= 0 {
		return nil, opError(op, uuid.Nil, ErrValidation, "invoice total must be positive")
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		number, err := s.nextInvoiceNumber(tx, inv.AccountID)
		if err != nil {
			return err
		}
		inv.InvoiceNumber = number
		return tx.Create(inv).Error
	})
	if err != nil {
		return nil, mapRepoError(op, inv.ID, err)
	}

	s.log.Info().
		Str("invoice_id", inv.ID.String()).
		Str("invoice_number", inv.InvoiceNumber).
		Int64("total", inv.Total).
		Str("currency", inv.Currency).
		Msg("invoice created")
	return inv, nil
}

func (s *Service) buildRecurrence(in RecurrenceInput, issue time.Time) (models.Recurrence, error) {
	freq, err := models.ParseFrequency(string(in.Frequency))
	if err != nil {
		return models.Recurrence{}, err
	}
	r := models.Recurrence{
		IsRecurring:    true,
		Frequency:      freq,
		SendOnGenerate: s.cfg.SendOnGenerate,
	}
	if in.SendOnGenerate != nil {
		r.SendOnGenerate = *in.SendOnGenerate
	}
	if in.EndDate != nil {
		end := dateOnly(*in.EndDate)
		if end.Before(issue) {
			return models.Recurrence{}, errors.New("recurrence end date is before the issue date")
		}
		r.EndDate = &end
	}
	return r, nil
}

// resolveClient looks a client up in the directory. It must run outside any
// open transaction.
func (s *Service) resolveClient(ctx context.Context, op string, invoiceID, clientID uuid.UUID) (*models.Client, error) {
	client, err := s.clients.GetClient(ctx, clientID)
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound), errors.Is(err, ErrNotFound):
		return nil, opError(op, invoiceID, ErrValidation, "unknown client %s", clientID)
	case err != nil:
		return nil, mapRepoError(op, invoiceID, err)
	}
	return client, nil
}

// UpdateDraft edits a draft invoice. Sent invoices are frozen.
func (s *Service) UpdateDraft(ctx context.Context, in UpdateDraftInput) (*models.Invoice, error) {
	const op = "UpdateDraft"
	var client *models.Client
	if in.ClientID != nil {
		var err error
		if client, err = s.resolveClient(ctx, op, in.InvoiceID, *in.ClientID); err != nil {
			return nil, err
		}
	}

	return s.withInvoice(ctx, op, in.InvoiceID, func(tx *gorm.DB, inv *models.Invoice) error {
		if !inv.IsDraft() {
			return opError(op, inv.ID, ErrInvalidState, "only draft invoices can be edited, status is %s", inv.Status)
		}
		if client != nil {
			if client.AccountID != inv.AccountID {
				return opError(op, inv.ID, ErrValidation, "client %s belongs to another account", client.ID)
			}
			inv.ClientID = client.ID
		}
		if in.IssueDate != nil {
			inv.IssueDate = dateOnly(*in.IssueDate)
		}
		if in.DueDate != nil {
			inv.DueDate = dateOnly(*in.DueDate)
		}
		if inv.DueDate.Before(inv.IssueDate) {
			return opError(op, inv.ID, ErrValidation, "due date is before issue date")
		}
		if inv.Recurrence.EndDate != nil && inv.Recurrence.EndDate.Before(inv.IssueDate) {
			return opError(op, inv.ID, ErrValidation, "recurrence end date is before the issue date")
		}
		if in.Notes != nil {
			inv.Notes = *in.Notes
		}
		if in.Terms != nil {
			inv.Terms = *in.Terms
		}
		if in.Items == nil {
			return nil
		}

		cur, err := s.currency(op, inv.ID, inv.Currency)
		if err != nil {
			return err
		}
		lines, err := buildLineItems(in.Items, cur)
		if err != nil {
			return opError(op, inv.ID, ErrValidation, "%v", err)
		}
		if err := applyLines(inv, lines); err != nil {
			return opError(op, inv.ID, ErrValidation, "%v", err)
		}
		if inv.Total <= 0 {
			return opError(op, inv.ID, ErrValidation, "invoice total must be positive")
		}
		if err := tx.Where("invoice_id = ?", inv.ID).Delete(&models.LineItem{}).Error; err != nil {
			return err
		}
		return tx.Create(&inv.Items).Error
	})
}

// SendInvoice freezes a draft and marks it sent.
func (s *Service) SendInvoice(ctx context.Context, id uuid.UUID) (*models.Invoice, error) {
	const op = "SendInvoice"
	return s.withInvoice(ctx, op, id, func(tx *gorm.DB, inv *models.Invoice) error {
		to, err := Transition(inv.Status, EventSend)
		if err != nil {
			return transitionError(op, inv.ID, err)
		}
		now := s.now()
		inv.Status = to
		inv.SentAt = &now
		return nil
	})
}

// DeleteInvoice removes a draft together with its lines.
func (s *Service) DeleteInvoice(ctx context.Context, id uuid.UUID) error {
	const op = "DeleteInvoice"
	unlock := s.locks.Lock(id)
	defer unlock()

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var inv models.Invoice
		if err := loadInvoice(tx, id, &inv, true); err != nil {
			return mapRepoError(op, id, err)
		}
		if !inv.IsDraft() {
			return opError(op, id, ErrInvalidState, "only draft invoices can be deleted, status is %s", inv.Status)
		}
		if err := tx.Where("invoice_id = ?", id).Delete(&models.LineItem{}).Error; err != nil {
			return err
		}
		res := tx.Where("id = ? AND version = ?", id, inv.Version).Delete(&models.Invoice{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return opError(op, id, ErrConflict, "invoice changed since version %d", inv.Version)
		}
		return nil
	})
	if err != nil {
		return mapRepoError(op, id, err)
	}
	s.log.Info().Str("invoice_id", id.String()).Msg("draft invoice deleted")
	return nil
}

// CancelInvoice moves any non-terminal invoice to cancelled. An open payment
// proof is marked superseded.
func (s *Service) CancelInvoice(ctx context.Context, id uuid.UUID) (*models.Invoice, error) {
	const op = "CancelInvoice"
	return s.withInvoice(ctx, op, id, func(tx *gorm.DB, inv *models.Invoice) error {
		to, err := Transition(inv.Status, EventCancel)
		if err != nil {
			return transitionError(op, inv.ID, err)
		}
		now := s.now()
		if inv.ActiveProofID != nil {
			if err := resolveProof(tx, op, inv, models.ProofSuperseded, "invoice cancelled", now); err != nil {
				return err
			}
		}
		inv.Status = to
		inv.CancelledAt = &now
		return nil
	})
}

// GetInvoice returns the invoice with its lines.
func (s *Service) GetInvoice(ctx context.Context, id uuid.UUID) (*models.Invoice, error) {
	var inv models.Invoice
	if err := loadInvoice(s.db.WithContext(ctx), id, &inv, false); err != nil {
		return nil, mapRepoError("GetInvoice", id, err)
	}
	return &inv, nil
}

// ListInvoices returns invoices matching filter, newest issue date first.
func (s *Service) ListInvoices(ctx context.Context, filter ListInvoicesFilter) ([]models.Invoice, error) {
	q := s.db.WithContext(ctx).Preload("Items", func(db *gorm.DB) *gorm.DB {
		return db.Order("position")
	})
	if filter.AccountID != nil {
		q = q.Where("account_id = ?", *filter.AccountID)
	}
	if filter.ClientID != nil {
		q = q.Where("client_id = ?", *filter.ClientID)
	}
	if filter.Status != "" {
		if _, err := models.ParseInvoiceStatus(string(filter.Status)); err != nil {
			return nil, opError("ListInvoices", uuid.Nil, ErrValidation, "%v", err)
		}
		q = q.Where("status = ?", filter.Status)
	}
	if filter.Limit > 0 {
		q = q.Limit(filter.Limit)
	}
	if filter.Offset > 0 {
		q = q.Offset(filter.Offset)
	}

	var invoices []models.Invoice
	if err := q.Order("issue_date DESC").Order("invoice_number DESC").Find(&invoices).Error; err != nil {
		return nil, mapRepoError("ListInvoices", uuid.Nil, err)
	}
	return invoices, nil
}

// transitionError wraps a Transition failure, which already carries its sentinel.
func transitionError(op string, id uuid.UUID, err error) error {
	return &OperationError{Op: op, InvoiceID: id, Err: err}
}

func dateOnly(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
