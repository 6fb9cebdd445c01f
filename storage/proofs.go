package storage

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/yourusername/billdesk/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ErrBlobNotFound is returned for references with no stored artifact.
var ErrBlobNotFound = errors.New("proof blob not found")

// DBProofStore keeps payment-proof artifacts in the proof_blobs table,
// addressed by the SHA-256 of their content.
type DBProofStore struct {
	db *gorm.DB
}

func NewDBProofStore(db *gorm.DB) *DBProofStore {
	return &DBProofStore{db: db}
}

// Put stores data and returns its reference. Storing the same bytes twice
// yields the same reference.
func (s *DBProofStore) Put(ctx context.Context, data []byte, contentType string) (string, error) {
	if len(data) == 0 {
		return "", errors.New("empty proof artifact")
	}
	sum := sha256.Sum256(data)
	ref := hex.EncodeToString(sum[:])
	blob := models.ProofBlob{
		Ref:         ref,
		ContentType: contentType,
		Size:        int64(len(data)),
		Data:        data,
	}
	if err := s.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&blob).Error; err != nil {
		return "", fmt.Errorf("store proof blob: %w", err)
	}
	return ref, nil
}

func (s *DBProofStore) Exists(ctx context.Context, ref string) (bool, error) {
	var count int64
	if err := s.db.WithContext(ctx).Model(&models.ProofBlob{}).Where("ref = ?", ref).Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

// Get returns the stored artifact.
func (s *DBProofStore) Get(ctx context.Context, ref string) (*models.ProofBlob, error) {
	var blob models.ProofBlob
	if err := s.db.WithContext(ctx).First(&blob, "ref = ?", ref).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrBlobNotFound, ref)
		}
		return nil, fmt.Errorf("proof blob %s: %w", ref, err)
	}
	return &blob, nil
}

// Claim share-locks the blob row inside tx. A concurrent Delete waits for tx
// and then sees the proof that references the blob.
func (s *DBProofStore) Claim(tx *gorm.DB, ref string) error {
	var blob models.ProofBlob
	err := tx.Clauses(clause.Locking{Strength: "SHARE"}).
		Select("ref").
		First(&blob, "ref = ?", ref).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("%w: %s", ErrBlobNotFound, ref)
	}
	return err
}

// Delete removes an artifact unless a payment proof still points at it. The
// blob row is locked before the reference check so a proof committed under
// Claim is always seen.
func (s *DBProofStore) Delete(ctx context.Context, ref string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var blob models.ProofBlob
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Select("ref").
			First(&blob, "ref = ?", ref).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		var refs int64
		if err := tx.Model(&models.PaymentProof{}).Where("blob_ref = ?", ref).Count(&refs).Error; err != nil {
			return err
		}
		if refs > 0 {
			return nil
		}
		return tx.Where("ref = ?", ref).Delete(&models.ProofBlob{}).Error
	})
}
