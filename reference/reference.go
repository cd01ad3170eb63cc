// Package reference generates the per-purchase correlation keys that tie an
// off-chain buy action to the transaction that settles it on the ledger.
package reference

import (
	"fmt"

	"github.com/gagliardetto/solana-go"
)

// Generator produces a fresh reference for every purchase attempt.
type Generator func() (solana.PublicKey, error)

// New returns the public half of a freshly generated ed25519 keypair. The
// private half is discarded: the reference is only ever a read-only account
// key, and uniqueness rests on the size of the key space.
func New() (solana.PublicKey, error) {
	key, err := solana.NewRandomPrivateKey()
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("failed to generate reference: %w", err)
	}
	return key.PublicKey(), nil
}
