package utils

import (
	"context"
	"encoding/hex"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/stellar/go/clients/horizonclient"
	hProtocol "github.com/stellar/go/protocols/horizon"
)

type horizonAPI interface {
	TransactionDetail(txHash string) (hProtocol.Transaction, error)
}

// StellarClient checks payment references that are Stellar transaction
// hashes against Horizon.
type StellarClient struct {
	client horizonAPI
}

// NewStellarClient targets horizonURL, or the public Horizon instance of
// network ("testnet" or "public") when horizonURL is empty.
func NewStellarClient(horizonURL, network string) *StellarClient {
	var client *horizonclient.Client
	switch {
	case horizonURL != "":
		client = &horizonclient.Client{
			HorizonURL: horizonURL,
			HTTP:       &http.Client{Timeout: 10 * time.Second},
		}
	case network == "public":
		client = horizonclient.DefaultPublicNetClient
	default:
		client = horizonclient.DefaultTestNetClient
	}
	return &StellarClient{client: client}
}

// IsTransactionHash reports whether ref looks like a Stellar transaction hash.
func IsTransactionHash(ref string) bool {
	if len(ref) != 64 {
		return false
	}
	_, err := hex.DecodeString(ref)
	return err == nil
}

// VerifyReference reports whether ref names a successful transaction on the
// ledger. References that are not transaction hashes are never verified.
func (s *StellarClient) VerifyReference(ctx context.Context, ref string) (bool, error) {
	ref = strings.ToLower(strings.TrimSpace(ref))
	if !IsTransactionHash(ref) {
		return false, nil
	}
	if err := ctx.Err(); err != nil {
		return false, err
	}

	tx, err := s.client.TransactionDetail(ref)
	if err != nil {
		if horizonclient.IsNotFoundError(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to load transaction %s: %w", ref, err)
	}
	return tx.Successful, nil
}
