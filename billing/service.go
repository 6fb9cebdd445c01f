// Package billing implements the invoice lifecycle: drafting, sending,
// payment application, payment-proof review, cancellation and recurring
// regeneration. All money is handled in integer minor units.
package billing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/yourusername/billdesk/models"
	"github.com/yourusername/billdesk/money"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type Config struct {
	// NumberPrefix is prepended to per-account invoice sequence numbers.
	NumberPrefix string
	// SendOnGenerate is the default for new recurring templates.
	SendOnGenerate bool
	// ProofMaxBytes caps uploaded proof artifacts. Zero disables the check.
	ProofMaxBytes int64
}

type Dependencies struct {
	Config     Config
	DB         *gorm.DB
	Currencies money.Table
	Clients    ClientDirectory
	Proofs     ProofStore
	Notifier   Notifier
	References ReferenceChecker
	Clock      Clock
	Logger     *zerolog.Logger
}

type Service struct {
	cfg        Config
	db         *gorm.DB
	currencies money.Table
	clients    ClientDirectory
	proofs     ProofStore
	notifier   Notifier
	references ReferenceChecker
	clock      Clock
	log        zerolog.Logger
	locks      *keyedMutex
}

func NewService(deps Dependencies) *Service {
	cfg := deps.Config
	if cfg.NumberPrefix == "" {
		cfg.NumberPrefix = "INV-"
	}
	currencies := deps.Currencies
	if currencies == nil {
		currencies = money.DefaultTable()
	}
	notifier := deps.Notifier
	if notifier == nil {
		notifier = nopNotifier{}
	}
	clock := deps.Clock
	if clock == nil {
		clock = systemClock{}
	}
	log := zerolog.Nop()
	if deps.Logger != nil {
		log = deps.Logger.With().Str("component", "billing").Logger()
	}
	return &Service{
		cfg:        cfg,
		db:         deps.DB,
		currencies: currencies,
		clients:    deps.Clients,
		proofs:     deps.Proofs,
		notifier:   notifier,
		references: deps.References,
		clock:      clock,
		log:        log,
		locks:      newKeyedMutex(),
	}
}

func (s *Service) now() time.Time {
	return s.clock.Now().UTC()
}

// errUnchanged makes withInvoice roll back and return the invoice as loaded.
var errUnchanged = errors.New("unchanged")

// withInvoice runs fn against the locked, freshly loaded invoice inside one
// transaction and persists the result. The row is written back only if its
// version is unchanged since it was read.
func (s *Service) withInvoice(ctx context.Context, op string, id uuid.UUID, fn func(tx *gorm.DB, inv *models.Invoice) error) (*models.Invoice, error) {
	unlock := s.locks.Lock(id)
	defer unlock()

	var inv models.Invoice
	var from models.InvoiceStatus
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := loadInvoice(tx, id, &inv, true); err != nil {
			return mapRepoError(op, id, err)
		}
		from = inv.Status
		version := inv.Version

		if err := fn(tx, &inv); err != nil {
			return err
		}
		if err := checkTotals(&inv); err != nil {
			s.log.Error().Err(err).Str("op", op).Str("invoice_id", id.String()).Msg("totals invariant broken")
			return opError(op, id, ErrConsistency, "%v", err)
		}

		inv.Version = version + 1
		res := tx.Model(&inv).
			Where("version = ?", version).
			Select("*").
			Omit(clause.Associations, "CreatedAt").
			Updates(&inv)
		if res.Error != nil {
			return mapRepoError(op, id, res.Error)
		}
		if res.RowsAffected == 0 {
			return opError(op, id, ErrConflict, "invoice changed since version %d", version)
		}
		return nil
	})
	if errors.Is(err, errUnchanged) {
		return &inv, nil
	}
	if err != nil {
		return nil, mapRepoError(op, id, err)
	}

	if inv.Status != from {
		s.log.Info().
			Str("op", op).
			Str("invoice_id", inv.ID.String()).
			Str("invoice_number", inv.InvoiceNumber).
			Str("from", string(from)).
			Str("to", string(inv.Status)).
			Msg("invoice status changed")
		s.notify(ctx, op, from, &inv)
	}
	return &inv, nil
}

func (s *Service) notify(ctx context.Context, op string, from models.InvoiceStatus, inv *models.Invoice) {
	change := StatusChange{
		InvoiceID:     inv.ID,
		InvoiceNumber: inv.InvoiceNumber,
		AccountID:     inv.AccountID,
		ClientID:      inv.ClientID,
		Operation:     op,
		From:          from,
		To:            inv.Status,
		At:            s.now(),
	}
	if err := s.notifier.InvoiceStatusChanged(ctx, change); err != nil {
		s.log.Warn().Err(err).Str("invoice_id", inv.ID.String()).Msg("status notification failed")
	}
}

func loadInvoice(tx *gorm.DB, id uuid.UUID, inv *models.Invoice, forUpdate bool) error {
	q := tx
	if forUpdate {
		q = q.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	if err := q.First(inv, "id = ?", id).Error; err != nil {
		return err
	}
	return tx.Where("invoice_id = ?", id).Order("position").Find(&inv.Items).Error
}

func (s *Service) currency(op string, id uuid.UUID, code string) (money.Currency, error) {
	c, err := s.currencies.Lookup(code)
	if err != nil {
		return money.Currency{}, opError(op, id, ErrValidation, "%v", err)
	}
	return c, nil
}

// nextInvoiceNumber reserves the next number for account inside tx.
func (s *Service) nextInvoiceNumber(tx *gorm.DB, account uuid.UUID) (string, error) {
	if err := tx.Clauses(clause.OnConflict{DoNothing: true}).
		Create(&models.InvoiceSequence{AccountID: account}).Error; err != nil {
		return "", err
	}
	var seq models.InvoiceSequence
	if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&seq, "account_id = ?", account).Error; err != nil {
		return "", err
	}
	next := seq.LastNumber + 1
	if err := tx.Model(&models.InvoiceSequence{}).
		Where("account_id = ?", account).
		Update("last_number", next).Error; err != nil {
		return "", err
	}
	return formatInvoiceNumber(s.cfg.NumberPrefix, next), nil
}

func formatInvoiceNumber(prefix string, n int64) string {
	return fmt.Sprintf("%s%06d", prefix, n)
}
