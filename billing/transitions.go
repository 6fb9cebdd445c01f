package billing

import (
	"fmt"

	"github.com/yourusername/billdesk/models"
)

// Event is a command that may move an invoice between statuses.
type Event int

const (
	EventSend Event = iota
	EventSubmitProof
	EventPayInFull
	EventPayPartially
	EventConfirmProof
	EventRejectProof
	EventCancel
)

func (e Event) String() string {
	switch e {
	case EventSend:
		return "send"
	case EventSubmitProof:
		return "submit_proof"
	case EventPayInFull:
		return "record_payment(full)"
	case EventPayPartially:
		return "record_payment(partial)"
	case EventConfirmProof:
		return "confirm_proof"
	case EventRejectProof:
		return "reject_proof"
	case EventCancel:
		return "cancel"
	default:
		return fmt.Sprintf("event(%d)", int(e))
	}
}

// Transition returns the status an invoice moves to when ev is applied in
// status from. For EventRejectProof the real target is the proof's stored
// prior status; StatusSent is returned when none is known.
func Transition(from models.InvoiceStatus, ev Event) (models.InvoiceStatus, error) {
	invalid := func() (models.InvoiceStatus, error) {
		return "", fmt.Errorf("%w: cannot %s from %s", ErrInvalidState, ev, from)
	}
	switch from {
	case models.StatusDraft:
		switch ev {
		case EventSend:
			return models.StatusSent, nil
		case EventCancel:
			return models.StatusCancelled, nil
		case EventSubmitProof, EventPayInFull, EventPayPartially, EventConfirmProof, EventRejectProof:
			return invalid()
		}
	case models.StatusSent, models.StatusPartial:
		switch ev {
		case EventSubmitProof:
			return models.StatusPaymentSubmitted, nil
		case EventPayInFull:
			return models.StatusPaid, nil
		case EventPayPartially:
			return models.StatusPartial, nil
		case EventCancel:
			return models.StatusCancelled, nil
		case EventSend, EventConfirmProof, EventRejectProof:
			return invalid()
		}
	case models.StatusPaymentSubmitted:
		switch ev {
		case EventConfirmProof, EventPayInFull:
			return models.StatusPaid, nil
		case EventPayPartially:
			return models.StatusPartial, nil
		case EventRejectProof:
			return models.StatusSent, nil
		case EventCancel:
			return models.StatusCancelled, nil
		case EventSend, EventSubmitProof:
			return invalid()
		}
	case models.StatusPaid, models.StatusCancelled:
		switch ev {
		case EventSend, EventSubmitProof, EventPayInFull, EventPayPartially, EventConfirmProof, EventRejectProof, EventCancel:
			return invalid()
		}
	default:
		return "", fmt.Errorf("%w: unknown invoice status %q", ErrConsistency, from)
	}
	return "", fmt.Errorf("%w: unknown event %s", ErrConsistency, ev)
}
