package utils

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"testing"

	"github.com/stellar/go/clients/horizonclient"
	hProtocol "github.com/stellar/go/protocols/horizon"
	"github.com/stellar/go/support/render/problem"
	"github.com/stretchr/testify/assert"
)

type MockHorizon struct {
	TransactionDetailFunc func(txHash string) (hProtocol.Transaction, error)
	calls                 int
}

func (m *MockHorizon) TransactionDetail(txHash string) (hProtocol.Transaction, error) {
	m.calls++
	return m.TransactionDetailFunc(txHash)
}

var txHash = strings.Repeat("ab", 32)

func TestIsTransactionHash(t *testing.T) {
	assert.True(t, IsTransactionHash(txHash))
	assert.False(t, IsTransactionHash("WIRE-2024-0042"))
	assert.False(t, IsTransactionHash(strings.Repeat("zz", 32)))
	assert.False(t, IsTransactionHash(txHash[:62]))
}

func TestVerifyReference(t *testing.T) {
	tests := []struct {
		name      string
		ref       string
		detail    func(string) (hProtocol.Transaction, error)
		want      bool
		wantErr   bool
		wantCalls int
	}{
		{
			name: "Successful transaction",
			ref:  "  " + strings.ToUpper(txHash) + " ",
			detail: func(h string) (hProtocol.Transaction, error) {
				assert.Equal(t, txHash, h)
				return hProtocol.Transaction{Hash: h, Successful: true}, nil
			},
			want:      true,
			wantCalls: 1,
		},
		{
			name: "Failed transaction",
			ref:  txHash,
			detail: func(h string) (hProtocol.Transaction, error) {
				return hProtocol.Transaction{Hash: h, Successful: false}, nil
			},
			wantCalls: 1,
		},
		{
			name: "Unknown transaction",
			ref:  txHash,
			detail: func(string) (hProtocol.Transaction, error) {
				return hProtocol.Transaction{}, &horizonclient.Error{Problem: problem.P{
					Type:   "https://stellar.org/horizon-errors/not_found",
					Status: http.StatusNotFound,
				}}
			},
			wantCalls: 1,
		},
		{
			name: "Horizon unavailable",
			ref:  txHash,
			detail: func(string) (hProtocol.Transaction, error) {
				return hProtocol.Transaction{}, errors.New("connection reset")
			},
			wantErr:   true,
			wantCalls: 1,
		},
		{
			name: "Bank reference is not looked up",
			ref:  "WIRE-2024-0042",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := &MockHorizon{TransactionDetailFunc: tt.detail}
			client := &StellarClient{client: mock}

			ok, err := client.VerifyReference(context.Background(), tt.ref)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
			assert.Equal(t, tt.want, ok)
			assert.Equal(t, tt.wantCalls, mock.calls)
		})
	}
}

func TestVerifyReferenceCancelled(t *testing.T) {
	mock := &MockHorizon{}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := (&StellarClient{client: mock}).VerifyReference(ctx, txHash)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, mock.calls)
}

func TestNewStellarClient(t *testing.T) {
	custom := NewStellarClient("http://localhost:8000", "testnet")
	assert.Equal(t, "http://localhost:8000", custom.client.(*horizonclient.Client).HorizonURL)

	assert.Same(t, horizonclient.DefaultPublicNetClient, NewStellarClient("", "public").client)
	assert.Same(t, horizonclient.DefaultTestNetClient, NewStellarClient("", "testnet").client)
}
