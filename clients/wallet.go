package clients

import (
	"context"
	"fmt"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
)

// KeypairWallet signs with a local private key and broadcasts over RPC.
type KeypairWallet struct {
	key    solana.PrivateKey
	client *rpc.Client
}

var _ Wallet = (*KeypairWallet)(nil)

// NewKeypairWallet wraps an already loaded private key.
func NewKeypairWallet(key solana.PrivateKey, rpcURL string) *KeypairWallet {
	return &KeypairWallet{
		key:    key,
		client: rpc.New(rpcURL),
	}
}

// LoadKeypairWallet reads a solana-keygen JSON file.
func LoadKeypairWallet(path, rpcURL string) (*KeypairWallet, error) {
	key, err := solana.PrivateKeyFromSolanaKeygenFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load keypair %s: %w", path, err)
	}
	return NewKeypairWallet(key, rpcURL), nil
}

func (w *KeypairWallet) PublicKey() (solana.PublicKey, bool) {
	return w.key.PublicKey(), true
}

// SignAndSend adds the wallet signature next to any the backend already
// placed and broadcasts the transaction.
func (w *KeypairWallet) SignAndSend(ctx context.Context, tx *solana.Transaction) (solana.Signature, error) {
	owner := w.key.PublicKey()

	if _, err := tx.PartialSign(func(key solana.PublicKey) *solana.PrivateKey {
		if key.Equals(owner) {
			return &w.key
		}
		return nil
	}); err != nil {
		return solana.Signature{}, fmt.Errorf("failed to sign transaction: %w", err)
	}

	sig, err := w.client.SendTransactionWithOpts(ctx, tx, rpc.TransactionOpts{
		PreflightCommitment: rpc.CommitmentConfirmed,
	})
	if err != nil {
		return solana.Signature{}, fmt.Errorf("broadcast failed: %w", err)
	}

	return sig, nil
}
