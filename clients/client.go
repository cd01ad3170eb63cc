package clients

import (
	"context"

	"github.com/gagliardetto/solana-go"
	"github.com/vitwit/storefront/types"
)

// TokenBalance is a raw token amount with the scale of its mint.
type TokenBalance struct {
	Amount   uint64
	Decimals uint8
}

// Ledger is the read side of the chain the storefront settles on.
type Ledger interface {
	// TokenBalance returns the balance of the owner's associated token account
	// for mint. It returns ErrAccountNotFound when the account does not exist yet.
	TokenBalance(ctx context.Context, owner, mint solana.PublicKey) (*TokenBalance, error)

	// FindReference returns the oldest confirmed transaction that includes
	// reference as an account key. It returns ErrReferenceNotFound until one lands.
	FindReference(ctx context.Context, reference solana.PublicKey) (*types.Confirmation, error)

	GetNetwork() types.Network
	Close()
}

// Wallet is the connected user wallet.
type Wallet interface {
	// PublicKey returns the wallet identity, or false when not connected.
	PublicKey() (solana.PublicKey, bool)

	// SignAndSend signs the transaction as fee payer and broadcasts it.
	SignAndSend(ctx context.Context, tx *solana.Transaction) (solana.Signature, error)
}

// Backend is the merchant API that builds transactions.
type Backend interface {
	CreateOrder(ctx context.Context, req *types.OrderRequest) (*types.OrderResponse, error)
	GetPartner(ctx context.Context, partnerID string) (*types.Partner, error)
}
