package cmd

import (
	"errors"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/yourusername/billdesk/billing"
	"github.com/yourusername/billdesk/config"
	"github.com/yourusername/billdesk/database"
	"github.com/yourusername/billdesk/logger"
	"github.com/yourusername/billdesk/money"
	"github.com/yourusername/billdesk/notify"
	"github.com/yourusername/billdesk/storage"
	"github.com/yourusername/billdesk/utils"
	"gorm.io/gorm"
)

// app holds the collaborators shared by the serve, tick and balance commands.
type app struct {
	db         *gorm.DB
	service    *billing.Service
	clients    *storage.ClientDirectory
	currencies money.Table
	log        zerolog.Logger
	closers    []func() error
}

func newApp(cfg *config.Config) (*app, error) {
	log := logger.WithComponent("app")

	currencies, err := money.LoadTable(cfg.Billing.CurrencyFile)
	if err != nil {
		return nil, err
	}

	db, err := database.Open(cfg.Database, log)
	if err != nil {
		return nil, err
	}
	a := &app{
		db:         db,
		clients:    storage.NewClientDirectory(db),
		currencies: currencies,
		log:        log,
		closers:    []func() error{func() error { return database.Close(db) }},
	}

	notifiers := notify.Multi{notify.NewLogNotifier(logger.WithComponent("notify"))}
	if len(cfg.Kafka.Brokers) > 0 {
		kafka, err := notify.NewKafkaNotifier(cfg.Kafka.Brokers, cfg.Kafka.Topic, cfg.Kafka.Timeout)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("kafka notifier: %w", err)
		}
		notifiers = append(notifiers, kafka)
		a.closers = append(a.closers, kafka.Close)
		log.Info().Strs("brokers", cfg.Kafka.Brokers).Str("topic", cfg.Kafka.Topic).Msg("publishing status changes to kafka")
	}

	var references billing.ReferenceChecker
	if cfg.Stellar.VerifyReferences {
		references = utils.NewStellarClient(cfg.Stellar.HorizonURL, cfg.Stellar.Network)
	}

	serviceLog := logger.Get()
	a.service = billing.NewService(billing.Dependencies{
		Config: billing.Config{
			NumberPrefix:   cfg.Billing.NumberPrefix,
			SendOnGenerate: cfg.Billing.SendOnGenerate,
			ProofMaxBytes:  cfg.Billing.ProofMaxBytes,
		},
		DB:         db,
		Currencies: currencies,
		Clients:    a.clients,
		Proofs:     storage.NewDBProofStore(db),
		Notifier:   notifiers,
		References: references,
		Logger:     serviceLog,
	})
	return a, nil
}

func (a *app) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i]())
	}
	return errors.Join(errs...)
}
