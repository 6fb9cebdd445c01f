package billing

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/yourusername/billdesk/models"
	"gorm.io/gorm"
)

func eligibleTemplate(inv *models.Invoice) bool {
	if !inv.Recurrence.IsRecurring || inv.Recurrence.Exhausted {
		return false
	}
	return inv.Status != models.StatusDraft && inv.Status != models.StatusCancelled
}

// RunRecurrenceTick generates every instance that has come due by now, one
// per missed period and in period order. A template whose generation fails is
// left where it stopped and reported; the remaining templates still run.
func (s *Service) RunRecurrenceTick(ctx context.Context, now time.Time) (*TickReport, error) {
	const op = "RunRecurrenceTick"
	now = now.UTC()

	var templates []models.Invoice
	err := s.db.WithContext(ctx).
		Where("recurrence_is_recurring = ? AND recurrence_exhausted = ?", true, false).
		Where("status NOT IN ?", []models.InvoiceStatus{models.StatusDraft, models.StatusCancelled}).
		Order("issue_date").
		Order("id").
		Find(&templates).Error
	if err != nil {
		return nil, mapRepoError(op, uuid.Nil, err)
	}

	report := &TickReport{}
	var errs []error
	for i := range templates {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		id := templates[i].ID
		generated, period, err := s.generateForTemplate(ctx, id, now)
		report.Generated = append(report.Generated, generated...)
		if err != nil {
			s.log.Warn().Err(err).
				Str("template_id", id.String()).
				Time("period", period).
				Msg("recurring generation stopped")
			report.Failures = append(report.Failures, TickFailure{TemplateID: id, Period: period, Err: err})
			errs = append(errs, err)
		}
	}

	s.log.Info().
		Int("templates", len(templates)).
		Int("generated", len(report.Generated)).
		Int("failures", len(report.Failures)).
		Msg("recurrence tick finished")
	return report, errors.Join(errs...)
}

// generateForTemplate catches one template up to now. On failure it returns
// the period that could not be generated.
func (s *Service) generateForTemplate(ctx context.Context, id uuid.UUID, now time.Time) ([]models.Invoice, time.Time, error) {
	const op = "RunRecurrenceTick"
	var out []models.Invoice
	clientChecked := false
	for {
		if err := ctx.Err(); err != nil {
			return out, time.Time{}, err
		}
		var tmpl models.Invoice
		if err := s.db.WithContext(ctx).First(&tmpl, "id = ?", id).Error; err != nil {
			return out, time.Time{}, mapRepoError(op, id, err)
		}
		if !eligibleTemplate(&tmpl) {
			return out, time.Time{}, nil
		}
		next, err := nextPeriod(&tmpl)
		if err != nil {
			return out, time.Time{}, &OperationError{Op: op, InvoiceID: id, Err: err}
		}
		expired := tmpl.Recurrence.EndDate != nil && next.After(dateOnly(*tmpl.Recurrence.EndDate))
		if !expired && next.After(now) {
			return out, time.Time{}, nil
		}
		if !expired && !clientChecked {
			if _, err := s.resolveClient(ctx, op, id, tmpl.ClientID); err != nil {
				return out, next, err
			}
			clientChecked = true
		}

		inst, err := s.materialize(ctx, id, now)
		if err != nil {
			return out, next, err
		}
		if inst != nil {
			out = append(out, *inst)
		}
	}
}

// materialize generates at most one period of the template under its lock.
// It re-evaluates the schedule after locking, so a period another worker
// already produced only advances the template.
func (s *Service) materialize(ctx context.Context, id uuid.UUID, now time.Time) (*models.Invoice, error) {
	const op = "RunRecurrenceTick"
	var created *models.Invoice
	_, err := s.withInvoice(ctx, op, id, func(tx *gorm.DB, tmpl *models.Invoice) error {
		if !eligibleTemplate(tmpl) {
			return errUnchanged
		}
		next, err := nextPeriod(tmpl)
		if err != nil {
			return &OperationError{Op: op, InvoiceID: id, Err: err}
		}
		if tmpl.Recurrence.EndDate != nil && next.After(dateOnly(*tmpl.Recurrence.EndDate)) {
			tmpl.Recurrence.Exhausted = true
			s.log.Info().Str("template_id", id.String()).Msg("recurring schedule exhausted")
			return nil
		}
		if next.After(now) {
			return errUnchanged
		}

		var existing int64
		if err := tx.Model(&models.Invoice{}).
			Where("template_id = ? AND issue_date = ?", tmpl.ID, next).
			Count(&existing).Error; err != nil {
			return err
		}
		if existing == 0 {
			inst, err := s.newInstance(tx, tmpl, next)
			if err != nil {
				return err
			}
			created = inst
		}
		tmpl.Recurrence.LastGeneratedDate = &next
		tmpl.Recurrence.GeneratedCount++
		return nil
	})
	if err != nil {
		return nil, err
	}
	if created != nil {
		s.log.Info().
			Str("template_id", id.String()).
			Str("invoice_id", created.ID.String()).
			Str("invoice_number", created.InvoiceNumber).
			Time("issue_date", created.IssueDate).
			Msg("recurring invoice generated")
		if created.Status != models.StatusDraft {
			s.notify(ctx, op, models.StatusDraft, created)
		}
	}
	return created, nil
}

// newInstance inserts the invoice for period next, copied from tmpl.
func (s *Service) newInstance(tx *gorm.DB, tmpl *models.Invoice, next time.Time) (*models.Invoice, error) {
	number, err := s.nextInvoiceNumber(tx, tmpl.AccountID)
	if err != nil {
		return nil, err
	}
	templateID := tmpl.ID
	inst := &models.Invoice{
		ID:            uuid.New(),
		AccountID:     tmpl.AccountID,
		InvoiceNumber: number,
		ClientID:      tmpl.ClientID,
		Currency:      tmpl.Currency,
		IssueDate:     next,
		DueDate:       next.AddDate(0, 0, dueOffsetDays(tmpl)),
		Notes:         tmpl.Notes,
		Terms:         tmpl.Terms,
		Status:        models.StatusDraft,
		TemplateID:    &templateID,
		Version:       1,
	}
	if tmpl.Recurrence.SendOnGenerate {
		now := s.now()
		inst.Status = models.StatusSent
		inst.SentAt = &now
	}
	lines := make([]models.LineItem, len(tmpl.Items))
	for i, l := range tmpl.Items {
		lines[i] = models.LineItem{
			Position:    l.Position,
			Description: l.Description,
			Quantity:    l.Quantity,
			UnitPrice:   l.UnitPrice,
			LineTotal:   l.LineTotal,
		}
	}
	if err := applyLines(inst, lines); err != nil {
		return nil, &OperationError{Op: "RunRecurrenceTick", InvoiceID: tmpl.ID, Err: ErrConsistency, Detail: err.Error()}
	}
	if err := checkTotals(inst); err != nil {
		return nil, &OperationError{Op: "RunRecurrenceTick", InvoiceID: tmpl.ID, Err: ErrConsistency, Detail: err.Error()}
	}
	if err := tx.Create(inst).Error; err != nil {
		return nil, err
	}
	return inst, nil
}
