package billing

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yourusername/billdesk/models"
)

func TestRemainingBalance(t *testing.T) {
	rem, err := RemainingBalance(100000, []models.Payment{{Amount: 40000}, {Amount: 10000}})
	require.NoError(t, err)
	assert.Equal(t, int64(50000), rem)

	rem, err = RemainingBalance(100, []models.Payment{{Amount: 150}})
	assert.ErrorIs(t, err, ErrConsistency)
	assert.Equal(t, int64(-50), rem)
}

func TestPartialThenFullPayment(t *testing.T) {
	env := newTestEnv(t, Config{})
	ctx := context.Background()
	inv := env.createSent(t, "1000.00")

	partial, err := env.pay(t, inv.ID, "400")
	require.NoError(t, err)
	assert.Equal(t, models.StatusPartial, partial.Status)

	bal, err := env.svc.GetBalance(ctx, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, Balance{Total: 100000, Paid: 40000, Remaining: 60000, Currency: "USD"}, *bal)

	paid, err := env.pay(t, inv.ID, "600.00")
	require.NoError(t, err)
	assert.Equal(t, models.StatusPaid, paid.Status)
	assert.NotNil(t, paid.PaidAt)

	bal, err = env.svc.GetBalance(ctx, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), bal.Remaining)

	_, err = env.pay(t, inv.ID, "1")
	requireOpError(t, err, ErrInvalidState)

	payments, err := env.svc.ListPayments(ctx, inv.ID)
	require.NoError(t, err)
	require.Len(t, payments, 2)
	assert.Equal(t, int64(40000), payments[0].Amount)
	assert.Equal(t, int64(60000), payments[1].Amount)
	assert.Equal(t, "USD", payments[0].Currency)

	assert.Equal(t, []string{"draft->sent", "sent->partial", "partial->paid"}, env.notifier.transitions())
}

func TestRecordPaymentRejections(t *testing.T) {
	env := newTestEnv(t, Config{})
	ctx := context.Background()
	inv := env.createSent(t, "100.00")

	tests := []struct {
		name   string
		input  RecordPaymentInput
		target error
	}{
		{"zero amount", RecordPaymentInput{InvoiceID: inv.ID, Amount: dec("0")}, ErrValidation},
		{"negative amount", RecordPaymentInput{InvoiceID: inv.ID, Amount: dec("-5")}, ErrValidation},
		{"currency mismatch", RecordPaymentInput{InvoiceID: inv.ID, Amount: dec("5"), Currency: "EUR"}, ErrValidation},
		{"excess precision", RecordPaymentInput{InvoiceID: inv.ID, Amount: dec("5.001")}, ErrValidation},
		{"unknown method", RecordPaymentInput{InvoiceID: inv.ID, Amount: dec("5"), Method: "barter"}, ErrValidation},
		{"overpayment", RecordPaymentInput{InvoiceID: inv.ID, Amount: dec("100.01")}, ErrOverpayment},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := env.svc.RecordPayment(ctx, tt.input)
			requireOpError(t, err, tt.target)
		})
	}
	assert.Zero(t, env.paymentCount(t, inv.ID))

	draft := env.createDraft(t, "10.00")
	_, err := env.pay(t, draft.ID, "5")
	requireOpError(t, err, ErrInvalidState)
}

func TestConcurrentPaymentsCannotOverpay(t *testing.T) {
	env := newTestEnv(t, Config{})
	inv := env.createSent(t, "1000.00")

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, _, errs[i] = env.svc.RecordPayment(context.Background(), RecordPaymentInput{
				InvoiceID: inv.ID,
				Amount:    dec("600"),
				Method:    models.MethodCard,
			})
		}(i)
	}
	wg.Wait()

	var succeeded, overpaid int
	for _, err := range errs {
		switch {
		case err == nil:
			succeeded++
		default:
			assert.ErrorIs(t, err, ErrOverpayment)
			overpaid++
		}
	}
	assert.Equal(t, 1, succeeded)
	assert.Equal(t, 1, overpaid)
	assert.Equal(t, int64(1), env.paymentCount(t, inv.ID))

	bal, err := env.svc.GetBalance(context.Background(), inv.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(40000), bal.Remaining)
}

func TestPaymentWhileProofUnderReview(t *testing.T) {
	ctx := context.Background()

	t.Run("partial payment supersedes the proof and moves to partial", func(t *testing.T) {
		env := newTestEnv(t, Config{})
		inv := env.createSent(t, "1000.00")
		_, proof, err := env.submitProof(t, inv.ID, "ref-1")
		require.NoError(t, err)
		assert.Equal(t, models.StatusSent, proof.PriorStatus)

		partial, err := env.pay(t, inv.ID, "400")
		require.NoError(t, err)
		assert.Equal(t, models.StatusPartial, partial.Status)
		assert.Nil(t, partial.ActiveProofID)

		var stored models.PaymentProof
		require.NoError(t, env.db.First(&stored, "id = ?", proof.ID).Error)
		assert.Equal(t, models.ProofSuperseded, stored.Resolution)
		assert.NotNil(t, stored.ResolvedAt)

		_, err = env.svc.RejectProof(ctx, RejectInput{InvoiceID: inv.ID, ReviewerComment: "unreadable"})
		requireOpError(t, err, ErrInvalidState)

		bal, err := env.svc.GetBalance(ctx, inv.ID)
		require.NoError(t, err)
		assert.Equal(t, int64(60000), bal.Remaining)

		env.clock.Advance(time.Hour)
		resubmitted, second, err := env.svc.SubmitProof(ctx, SubmitProofInput{
			InvoiceID:   inv.ID,
			Blob:        []byte("second receipt"),
			ContentType: "image/png",
		})
		require.NoError(t, err)
		assert.Equal(t, models.StatusPaymentSubmitted, resubmitted.Status)
		assert.Equal(t, models.StatusPartial, second.PriorStatus)

		rejected, err := env.svc.RejectProof(ctx, RejectInput{InvoiceID: inv.ID})
		require.NoError(t, err)
		assert.Equal(t, models.StatusPartial, rejected.Status)
		assert.Equal(t, []string{
			"draft->sent",
			"sent->payment_submitted",
			"payment_submitted->partial",
			"partial->payment_submitted",
			"payment_submitted->partial",
		}, env.notifier.transitions())
	})

	t.Run("full payment supersedes the proof", func(t *testing.T) {
		env := newTestEnv(t, Config{})
		inv := env.createSent(t, "1000.00")
		_, proof, err := env.submitProof(t, inv.ID, "ref-2")
		require.NoError(t, err)

		paid, err := env.pay(t, inv.ID, "1000")
		require.NoError(t, err)
		assert.Equal(t, models.StatusPaid, paid.Status)
		assert.Nil(t, paid.ActiveProofID)

		var stored models.PaymentProof
		require.NoError(t, env.db.First(&stored, "id = ?", proof.ID).Error)
		assert.Equal(t, models.ProofSuperseded, stored.Resolution)

		_, err = env.svc.ConfirmPayment(ctx, ConfirmInput{InvoiceID: inv.ID})
		requireOpError(t, err, ErrInvalidState)
		assert.Equal(t, int64(1), env.paymentCount(t, inv.ID))
	})
}

func TestPaymentsAreImmutable(t *testing.T) {
	env := newTestEnv(t, Config{})
	inv := env.createSent(t, "10.00")
	_, payment, err := env.svc.RecordPayment(context.Background(), RecordPaymentInput{InvoiceID: inv.ID, Amount: dec("5")})
	require.NoError(t, err)
	assert.Equal(t, models.MethodOther, payment.Method)

	payment.Amount = 1
	err = env.db.Save(payment).Error
	assert.ErrorIs(t, err, models.ErrImmutablePayment)
}

func TestGetBalanceDetectsOverpaidLedger(t *testing.T) {
	env := newTestEnv(t, Config{})
	inv := env.createSent(t, "10.00")
	require.NoError(t, env.db.Create(&models.Payment{
		InvoiceID:   inv.ID,
		Amount:      2000,
		Currency:    "USD",
		PaymentDate: env.clock.Now(),
		Method:      models.MethodCash,
	}).Error)

	_, err := env.svc.GetBalance(context.Background(), inv.ID)
	requireOpError(t, err, ErrConsistency)

	_, err = env.pay(t, inv.ID, "1")
	requireOpError(t, err, ErrConsistency)
}
