package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/yourusername/billdesk/models"
	"gorm.io/gorm"
)

var ErrInvalidClient = errors.New("invalid client")

// ClientDirectory reads and seeds billed parties.
type ClientDirectory struct {
	db *gorm.DB
}

func NewClientDirectory(db *gorm.DB) *ClientDirectory {
	return &ClientDirectory{db: db}
}

// GetClient returns a live client. Soft-deleted clients are reported as
// gorm.ErrRecordNotFound.
func (d *ClientDirectory) GetClient(ctx context.Context, id uuid.UUID) (*models.Client, error) {
	var client models.Client
	if err := d.db.WithContext(ctx).First(&client, "id = ?", id).Error; err != nil {
		return nil, fmt.Errorf("client %s: %w", id, err)
	}
	return &client, nil
}

func (d *ClientDirectory) CreateClient(ctx context.Context, account uuid.UUID, name, email string) (*models.Client, error) {
	name = strings.TrimSpace(name)
	if account == uuid.Nil || name == "" {
		return nil, fmt.Errorf("%w: account and name are required", ErrInvalidClient)
	}
	client := models.Client{AccountID: account, Name: name, Email: strings.TrimSpace(email)}
	if err := d.db.WithContext(ctx).Create(&client).Error; err != nil {
		return nil, fmt.Errorf("create client: %w", err)
	}
	return &client, nil
}

// DeleteClient soft-deletes a client. Existing invoices keep their reference.
func (d *ClientDirectory) DeleteClient(ctx context.Context, id uuid.UUID) error {
	res := d.db.WithContext(ctx).Delete(&models.Client{}, "id = ?", id)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("client %s: %w", id, gorm.ErrRecordNotFound)
	}
	return nil
}
