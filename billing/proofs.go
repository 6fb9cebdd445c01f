package billing

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/yourusername/billdesk/models"
	"gorm.io/gorm"
)

// SubmitProof stores a client's payment artifact and puts the invoice under
// review. The artifact is written before the transition; if storing fails the
// invoice is left untouched.
func (s *Service) SubmitProof(ctx context.Context, in SubmitProofInput) (*models.Invoice, *models.PaymentProof, error) {
	const op = "SubmitProof"
	if in.BlobRef == "" && len(in.Blob) == 0 {
		return nil, nil, opError(op, in.InvoiceID, ErrValidation, "a proof artifact is required")
	}
	if s.cfg.ProofMaxBytes > 0 && int64(len(in.Blob)) > s.cfg.ProofMaxBytes {
		return nil, nil, opError(op, in.InvoiceID, ErrValidation, "proof is %d bytes, limit is %d", len(in.Blob), s.cfg.ProofMaxBytes)
	}

	current, err := s.GetInvoice(ctx, in.InvoiceID)
	if err != nil {
		return nil, nil, err
	}
	if err := checkProofAllowed(op, current); err != nil {
		return nil, nil, err
	}

	ref := in.BlobRef
	stored := false
	if ref == "" {
		ref, err = s.proofs.Put(ctx, in.Blob, in.ContentType)
		if err != nil {
			s.log.Warn().Err(err).Str("invoice_id", in.InvoiceID.String()).Msg("proof upload failed")
			return nil, nil, opError(op, in.InvoiceID, ErrProofStorage, "%v", err)
		}
		stored = true
	} else {
		ok, err := s.proofs.Exists(ctx, ref)
		if err != nil {
			return nil, nil, opError(op, in.InvoiceID, ErrProofStorage, "%v", err)
		}
		if !ok {
			return nil, nil, opError(op, in.InvoiceID, ErrValidation, "unknown proof reference %q", ref)
		}
	}

	verified := s.verifyReference(ctx, in.InvoiceID, in.ReferenceText)

	var proof models.PaymentProof
	inv, err := s.withInvoice(ctx, op, in.InvoiceID, func(tx *gorm.DB, inv *models.Invoice) error {
		if err := checkProofAllowed(op, inv); err != nil {
			return err
		}
		to, err := Transition(inv.Status, EventSubmitProof)
		if err != nil {
			return transitionError(op, inv.ID, err)
		}
		if err := s.proofs.Claim(tx, ref); err != nil {
			s.log.Warn().Err(err).Str("invoice_id", inv.ID.String()).Str("blob_ref", ref).Msg("proof artifact vanished before review")
			return opError(op, inv.ID, ErrProofStorage, "%v", err)
		}
		proof = models.PaymentProof{
			ID:                uuid.New(),
			InvoiceID:         inv.ID,
			BlobRef:           ref,
			ContentType:       in.ContentType,
			ReferenceText:     strings.TrimSpace(in.ReferenceText),
			ReferenceVerified: verified,
			UploadedAt:        s.now(),
			PriorStatus:       inv.Status,
		}
		if err := tx.Create(&proof).Error; err != nil {
			return err
		}
		inv.ActiveProofID = &proof.ID
		inv.Status = to
		return nil
	})
	if err != nil {
		if stored {
			if derr := s.proofs.Delete(context.WithoutCancel(ctx), ref); derr != nil {
				s.log.Warn().Err(derr).Str("blob_ref", ref).Msg("orphaned proof artifact not removed")
			}
		}
		return nil, nil, err
	}
	return inv, &proof, nil
}

func checkProofAllowed(op string, inv *models.Invoice) error {
	if inv.ActiveProofID != nil || inv.Status == models.StatusPaymentSubmitted {
		return opError(op, inv.ID, ErrDuplicateProof, "invoice %s is already under review", inv.InvoiceNumber)
	}
	if inv.Status != models.StatusSent && inv.Status != models.StatusPartial {
		return opError(op, inv.ID, ErrInvalidState, "cannot submit a proof for a %s invoice", inv.Status)
	}
	return nil
}

func (s *Service) verifyReference(ctx context.Context, invoiceID uuid.UUID, reference string) bool {
	reference = strings.TrimSpace(reference)
	if s.references == nil || reference == "" {
		return false
	}
	ok, err := s.references.VerifyReference(ctx, reference)
	if err != nil {
		s.log.Warn().Err(err).Str("invoice_id", invoiceID.String()).Msg("payment reference check failed")
		return false
	}
	return ok
}

// ConfirmPayment accepts the open proof and records one payment for the whole
// outstanding balance. Confirming an invoice that is already paid through an
// accepted proof returns it unchanged.
func (s *Service) ConfirmPayment(ctx context.Context, in ConfirmInput) (*models.Invoice, error) {
	const op = "ConfirmPayment"
	return s.withInvoice(ctx, op, in.InvoiceID, func(tx *gorm.DB, inv *models.Invoice) error {
		if inv.Status == models.StatusPaid {
			settled, err := paidByAcceptedProof(tx, inv.ID)
			if err != nil {
				return err
			}
			if settled {
				return errUnchanged
			}
		}
		to, err := Transition(inv.Status, EventConfirmProof)
		if err != nil {
			return transitionError(op, inv.ID, err)
		}
		proof, err := activeProof(tx, op, inv)
		if err != nil {
			return err
		}
		rem, err := s.remaining(tx, op, inv)
		if err != nil {
			return err
		}
		if rem <= 0 {
			s.log.Error().Str("invoice_id", inv.ID.String()).Msg("invoice under review has nothing outstanding")
			return opError(op, inv.ID, ErrConsistency, "no outstanding balance to confirm")
		}

		now := s.now()
		payment := models.Payment{
			ID:          uuid.New(),
			InvoiceID:   inv.ID,
			Amount:      rem,
			Currency:    inv.Currency,
			PaymentDate: now,
			Method:      models.MethodTransfer,
			Reference:   proof.ReferenceText,
			ProofID:     &proof.ID,
		}
		if err := tx.Create(&payment).Error; err != nil {
			return err
		}
		if err := resolveProof(tx, op, inv, models.ProofAccepted, in.ReviewerComment, now); err != nil {
			return err
		}
		inv.Status = to
		inv.PaidAt = &now
		return nil
	})
}

// RejectProof closes the open proof and returns the invoice to the status it
// held before the proof was submitted.
func (s *Service) RejectProof(ctx context.Context, in RejectInput) (*models.Invoice, error) {
	const op = "RejectProof"
	return s.withInvoice(ctx, op, in.InvoiceID, func(tx *gorm.DB, inv *models.Invoice) error {
		to, err := Transition(inv.Status, EventRejectProof)
		if err != nil {
			return transitionError(op, inv.ID, err)
		}
		proof, err := activeProof(tx, op, inv)
		if err != nil {
			return err
		}
		switch proof.PriorStatus {
		case models.StatusSent, models.StatusPartial:
			to = proof.PriorStatus
		default:
			s.log.Error().Str("invoice_id", inv.ID.String()).Str("prior_status", string(proof.PriorStatus)).Msg("proof has unexpected prior status")
			return opError(op, inv.ID, ErrConsistency, "proof prior status %q", proof.PriorStatus)
		}
		if err := resolveProof(tx, op, inv, models.ProofRejected, in.ReviewerComment, s.now()); err != nil {
			return err
		}
		inv.Status = to
		return nil
	})
}

// paidByAcceptedProof reports whether the invoice ledger holds the payment
// written when a proof was confirmed.
func paidByAcceptedProof(tx *gorm.DB, invoiceID uuid.UUID) (bool, error) {
	var n int64
	err := tx.Model(&models.Payment{}).
		Joins("JOIN payment_proofs ON payment_proofs.id = payments.proof_id").
		Where("payments.invoice_id = ? AND payment_proofs.resolution = ?", invoiceID, models.ProofAccepted).
		Count(&n).Error
	return n > 0, err
}

func activeProof(tx *gorm.DB, op string, inv *models.Invoice) (*models.PaymentProof, error) {
	if inv.ActiveProofID == nil {
		return nil, opError(op, inv.ID, ErrConsistency, "invoice under review has no open proof")
	}
	var proof models.PaymentProof
	if err := tx.First(&proof, "id = ?", *inv.ActiveProofID).Error; err != nil {
		return nil, mapRepoError(op, inv.ID, err)
	}
	if proof.IsResolved() {
		return nil, opError(op, inv.ID, ErrConsistency, "open proof %s is already %s", proof.ID, proof.Resolution)
	}
	return &proof, nil
}

// GetActiveProof returns the proof under review together with its stored
// artifact.
func (s *Service) GetActiveProof(ctx context.Context, id uuid.UUID) (*models.PaymentProof, *models.ProofBlob, error) {
	const op = "GetActiveProof"
	inv, err := s.GetInvoice(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	if inv.ActiveProofID == nil {
		return nil, nil, opError(op, id, ErrNotFound, "invoice %s has no proof under review", inv.InvoiceNumber)
	}
	var proof models.PaymentProof
	if err := s.db.WithContext(ctx).First(&proof, "id = ?", *inv.ActiveProofID).Error; err != nil {
		return nil, nil, mapRepoError(op, id, err)
	}
	blob, err := s.proofs.Get(ctx, proof.BlobRef)
	if err != nil {
		s.log.Error().Err(err).Str("invoice_id", id.String()).Str("blob_ref", proof.BlobRef).Msg("proof artifact unreadable")
		return nil, nil, opError(op, id, ErrProofStorage, "%v", err)
	}
	return &proof, blob, nil
}

// resolveProof closes the invoice's open proof and detaches it.
func resolveProof(tx *gorm.DB, op string, inv *models.Invoice, resolution models.ProofResolution, comment string, at time.Time) error {
	res := tx.Model(&models.PaymentProof{}).
		Where("id = ? AND resolution = ?", *inv.ActiveProofID, models.ProofPending).
		Updates(map[string]interface{}{
			"resolution":       resolution,
			"reviewer_comment": comment,
			"resolved_at":      at,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return opError(op, inv.ID, ErrConsistency, "open proof %s is already resolved", *inv.ActiveProofID)
	}
	inv.ActiveProofID = nil
	return nil
}
