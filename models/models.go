package models

import "errors"

// ErrImmutablePayment is returned when something tries to update a ledger row.
var ErrImmutablePayment = errors.New("payments are immutable")

// All lists every persisted model, in migration order.
func All() []interface{} {
	return []interface{}{
		&Client{},
		&Invoice{},
		&LineItem{},
		&InvoiceSequence{},
		&Payment{},
		&PaymentProof{},
		&ProofBlob{},
	}
}
