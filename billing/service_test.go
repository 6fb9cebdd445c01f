package billing

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
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

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type fakeClients struct {
	mu      sync.Mutex
	clients map[uuid.UUID]models.Client
}

func (f *fakeClients) GetClient(ctx context.Context, id uuid.UUID) (*models.Client, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.clients[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return &c, nil
}

func (f *fakeClients) add(account uuid.UUID, name string) uuid.UUID {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := uuid.New()
	f.clients[id] = models.Client{ID: id, AccountID: account, Name: name}
	return id
}

func (f *fakeClients) remove(id uuid.UUID) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.clients, id)
}

type fakeProofStore struct {
	mu      sync.Mutex
	blobs   map[string][]byte
	PutErr  error
	deleted []string
	// lost makes Put report success without keeping the bytes, as if a
	// concurrent cleanup removed them right after the write.
	lost bool
}

func (f *fakeProofStore) Put(ctx context.Context, data []byte, contentType string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.PutErr != nil {
		return "", f.PutErr
	}
	sum := sha256.Sum256(data)
	ref := hex.EncodeToString(sum[:])
	if !f.lost {
		f.blobs[ref] = data
	}
	return ref, nil
}

func (f *fakeProofStore) Get(ctx context.Context, ref string) (*models.ProofBlob, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.blobs[ref]
	if !ok {
		return nil, errors.New("no such blob")
	}
	return &models.ProofBlob{Ref: ref, Size: int64(len(data)), Data: data}, nil
}

func (f *fakeProofStore) Claim(tx *gorm.DB, ref string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.blobs[ref]; !ok {
		return errors.New("no such blob")
	}
	return nil
}

func (f *fakeProofStore) Exists(ctx context.Context, ref string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.blobs[ref]
	return ok, nil
}

func (f *fakeProofStore) Delete(ctx context.Context, ref string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.blobs, ref)
	f.deleted = append(f.deleted, ref)
	return nil
}

type recordingNotifier struct {
	mu      sync.Mutex
	changes []StatusChange
	err     error
}

func (n *recordingNotifier) InvoiceStatusChanged(ctx context.Context, change StatusChange) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.changes = append(n.changes, change)
	return n.err
}

func (n *recordingNotifier) transitions() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]string, 0, len(n.changes))
	for _, c := range n.changes {
		out = append(out, string(c.From)+"->"+string(c.To))
	}
	return out
}

type MockReferenceChecker struct {
	VerifyReferenceFunc func(ctx context.Context, reference string) (bool, error)
}

func (m *MockReferenceChecker) VerifyReference(ctx context.Context, reference string) (bool, error) {
	return m.VerifyReferenceFunc(ctx, reference)
}

type testEnv struct {
	svc      *Service
	db       *gorm.DB
	clients  *fakeClients
	proofs   *fakeProofStore
	notifier *recordingNotifier
	clock    *fakeClock
	account  uuid.UUID
	client   uuid.UUID
}

func newTestEnv(t *testing.T, cfg Config) *testEnv {
	t.Helper()
	env := &testEnv{
		db:       setupTestDB(t),
		clients:  &fakeClients{clients: map[uuid.UUID]models.Client{}},
		proofs:   &fakeProofStore{blobs: map[string][]byte{}},
		notifier: &recordingNotifier{},
		clock:    &fakeClock{now: time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)},
		account:  uuid.New(),
	}
	env.client = env.clients.add(env.account, "Acme Ltd")
	env.svc = NewService(Dependencies{
		Config:   cfg,
		DB:       env.db,
		Clients:  env.clients,
		Proofs:   env.proofs,
		Notifier: env.notifier,
		Clock:    env.clock,
	})
	return env
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func (e *testEnv) createDraft(t *testing.T, amount string) *models.Invoice {
	t.Helper()
	inv, err := e.svc.CreateInvoice(context.Background(), CreateInvoiceInput{
		AccountID: e.account,
		ClientID:  e.client,
		Currency:  "USD",
		Items:     []LineItemInput{{Description: "Consulting", Quantity: dec("1"), UnitPrice: dec(amount)}},
		IssueDate: day(2024, 3, 1),
		DueDate:   day(2024, 3, 31),
	})
	require.NoError(t, err)
	return inv
}

func (e *testEnv) createSent(t *testing.T, amount string) *models.Invoice {
	t.Helper()
	inv := e.createDraft(t, amount)
	inv, err := e.svc.SendInvoice(context.Background(), inv.ID)
	require.NoError(t, err)
	return inv
}

func (e *testEnv) pay(t *testing.T, id uuid.UUID, amount string) (*models.Invoice, error) {
	t.Helper()
	inv, _, err := e.svc.RecordPayment(context.Background(), RecordPaymentInput{
		InvoiceID: id,
		Amount:    dec(amount),
		Method:    models.MethodTransfer,
	})
	return inv, err
}

func (e *testEnv) submitProof(t *testing.T, id uuid.UUID, reference string) (*models.Invoice, *models.PaymentProof, error) {
	t.Helper()
	return e.svc.SubmitProof(context.Background(), SubmitProofInput{
		InvoiceID:     id,
		Blob:          []byte("receipt for " + id.String()),
		ContentType:   "application/pdf",
		ReferenceText: reference,
	})
}

func (e *testEnv) paymentCount(t *testing.T, id uuid.UUID) int64 {
	t.Helper()
	var n int64
	require.NoError(t, e.db.Model(&models.Payment{}).Where("invoice_id = ?", id).Count(&n).Error)
	return n
}

func requireOpError(t *testing.T, err error, target error) *OperationError {
	t.Helper()
	require.ErrorIs(t, err, target)
	var opErr *OperationError
	require.True(t, errors.As(err, &opErr), "expected *OperationError, got %T", err)
	return opErr
}
