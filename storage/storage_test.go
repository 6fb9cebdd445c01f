package storage

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yourusername/billdesk/models"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })
	require.NoError(t, db.AutoMigrate(models.All()...))
	return db
}

func TestDBProofStore(t *testing.T) {
	db := setupTestDB(t)
	store := NewDBProofStore(db)
	ctx := context.Background()

	ref, err := store.Put(ctx, []byte("bank receipt"), "application/pdf")
	require.NoError(t, err)
	assert.Len(t, ref, 64)

	again, err := store.Put(ctx, []byte("bank receipt"), "application/pdf")
	require.NoError(t, err)
	assert.Equal(t, ref, again)

	ok, err := store.Exists(ctx, ref)
	require.NoError(t, err)
	assert.True(t, ok)

	blob, err := store.Get(ctx, ref)
	require.NoError(t, err)
	assert.Equal(t, []byte("bank receipt"), blob.Data)
	assert.Equal(t, int64(12), blob.Size)

	_, err = store.Put(ctx, nil, "")
	assert.Error(t, err)

	require.NoError(t, store.Delete(ctx, ref))
	ok, err = store.Exists(ctx, ref)
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = store.Get(ctx, ref)
	assert.ErrorIs(t, err, ErrBlobNotFound)
	assert.NoError(t, store.Delete(ctx, ref))
}

func TestDBProofStoreKeepsReferencedBlobs(t *testing.T) {
	db := setupTestDB(t)
	store := NewDBProofStore(db)
	ctx := context.Background()

	ref, err := store.Put(ctx, []byte("shared receipt"), "image/png")
	require.NoError(t, err)
	require.NoError(t, db.Create(&models.PaymentProof{
		InvoiceID:   uuid.New(),
		BlobRef:     ref,
		UploadedAt:  time.Now(),
		PriorStatus: models.StatusSent,
	}).Error)

	require.NoError(t, store.Delete(ctx, ref))
	ok, err := store.Exists(ctx, ref)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestDBProofStoreClaim(t *testing.T) {
	db := setupTestDB(t)
	store := NewDBProofStore(db)
	ctx := context.Background()

	ref, err := store.Put(ctx, []byte("wire confirmation"), "application/pdf")
	require.NoError(t, err)

	err = db.Transaction(func(tx *gorm.DB) error {
		if err := store.Claim(tx, ref); err != nil {
			return err
		}
		return tx.Create(&models.PaymentProof{
			InvoiceID:   uuid.New(),
			BlobRef:     ref,
			UploadedAt:  time.Now(),
			PriorStatus: models.StatusSent,
		}).Error
	})
	require.NoError(t, err)

	require.NoError(t, store.Delete(ctx, ref))
	blob, err := store.Get(ctx, ref)
	require.NoError(t, err)
	assert.Equal(t, []byte("wire confirmation"), blob.Data)

	err = db.Transaction(func(tx *gorm.DB) error {
		return store.Claim(tx, "0000000000000000000000000000000000000000000000000000000000000000")
	})
	assert.ErrorIs(t, err, ErrBlobNotFound)
}

func TestClientDirectory(t *testing.T) {
	db := setupTestDB(t)
	dir := NewClientDirectory(db)
	ctx := context.Background()
	account := uuid.New()

	client, err := dir.CreateClient(ctx, account, " Acme ", "billing@acme.test")
	require.NoError(t, err)
	assert.Equal(t, "Acme", client.Name)

	got, err := dir.GetClient(ctx, client.ID)
	require.NoError(t, err)
	assert.Equal(t, account, got.AccountID)

	_, err = dir.CreateClient(ctx, account, "", "")
	assert.ErrorIs(t, err, ErrInvalidClient)

	require.NoError(t, dir.DeleteClient(ctx, client.ID))
	_, err = dir.GetClient(ctx, client.ID)
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)

	assert.ErrorIs(t, dir.DeleteClient(ctx, client.ID), gorm.ErrRecordNotFound)
}
