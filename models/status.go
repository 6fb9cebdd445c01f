package models

import (
	"database/sql/driver"
	"fmt"
)

// --- Invoice Status Enum ---
type InvoiceStatus string

const (
	StatusDraft            InvoiceStatus = "draft"
	StatusSent             InvoiceStatus = "sent"
	StatusPaymentSubmitted InvoiceStatus = "payment_submitted"
	StatusPartial          InvoiceStatus = "partial"
	StatusPaid             InvoiceStatus = "paid"
	StatusCancelled        InvoiceStatus = "cancelled"
)

// ParseInvoiceStatus converts a raw string into a known status.
func ParseInvoiceStatus(s string) (InvoiceStatus, error) {
	v := InvoiceStatus(s)
	switch v {
	case StatusDraft, StatusSent, StatusPaymentSubmitted, StatusPartial, StatusPaid, StatusCancelled:
		return v, nil
	default:
		return "", fmt.Errorf("invalid InvoiceStatus value: %q", s)
	}
}

// IsTerminal reports whether no further mutation is allowed.
func (s InvoiceStatus) IsTerminal() bool {
	return s == StatusPaid || s == StatusCancelled
}

// Scan implements the sql.Scanner interface for InvoiceStatus
func (s *InvoiceStatus) Scan(value interface{}) error {
	str, err := scanString("InvoiceStatus", value)
	if err != nil {
		return err
	}
	v, err := ParseInvoiceStatus(str)
	if err != nil {
		return err
	}
	*s = v
	return nil
}

// Value implements the driver.Valuer interface for InvoiceStatus
func (s InvoiceStatus) Value() (driver.Value, error) {
	if _, err := ParseInvoiceStatus(string(s)); err != nil {
		return nil, err
	}
	return string(s), nil
}

// --- Payment Method Enum ---
type PaymentMethod string

const (
	MethodCash     PaymentMethod = "cash"
	MethodTransfer PaymentMethod = "transfer"
	MethodCard     PaymentMethod = "card"
	MethodOther    PaymentMethod = "other"
)

func ParsePaymentMethod(s string) (PaymentMethod, error) {
	v := PaymentMethod(s)
	switch v {
	case MethodCash, MethodTransfer, MethodCard, MethodOther:
		return v, nil
	default:
		return "", fmt.Errorf("invalid PaymentMethod value: %q", s)
	}
}

func (m *PaymentMethod) Scan(value interface{}) error {
	str, err := scanString("PaymentMethod", value)
	if err != nil {
		return err
	}
	v, err := ParsePaymentMethod(str)
	if err != nil {
		return err
	}
	*m = v
	return nil
}

func (m PaymentMethod) Value() (driver.Value, error) {
	return string(m), nil
}

// --- Recurrence Frequency Enum ---
type Frequency string

const (
	FrequencyWeekly       Frequency = "weekly"
	FrequencyBiweekly     Frequency = "biweekly"
	FrequencyMonthly      Frequency = "monthly"
	FrequencyQuarterly    Frequency = "quarterly"
	FrequencySemiannually Frequency = "semiannually"
	FrequencyAnnually     Frequency = "annually"
)

func ParseFrequency(s string) (Frequency, error) {
	v := Frequency(s)
	switch v {
	case FrequencyWeekly, FrequencyBiweekly, FrequencyMonthly, FrequencyQuarterly, FrequencySemiannually, FrequencyAnnually:
		return v, nil
	default:
		return "", fmt.Errorf("invalid Frequency value: %q", s)
	}
}

// Scan accepts NULL and the empty string for non-recurring invoices.
func (f *Frequency) Scan(value interface{}) error {
	if value == nil {
		*f = ""
		return nil
	}
	str, err := scanString("Frequency", value)
	if err != nil {
		return err
	}
	if str == "" {
		*f = ""
		return nil
	}
	v, err := ParseFrequency(str)
	if err != nil {
		return err
	}
	*f = v
	return nil
}

func (f Frequency) Value() (driver.Value, error) {
	return string(f), nil
}

// --- Proof Resolution Enum ---
type ProofResolution string

const (
	ProofPending    ProofResolution = ""
	ProofAccepted   ProofResolution = "accepted"
	ProofRejected   ProofResolution = "rejected"
	ProofSuperseded ProofResolution = "superseded"
)

func scanString(name string, value interface{}) (string, error) {
	switch v := value.(type) {
	case string:
		return v, nil
	case []byte:
		return string(v), nil
	default:
		return "", fmt.Errorf("failed to scan %s: value is not string or []byte", name)
	}
}
