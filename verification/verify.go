package verification

import (
	"encoding/base64"
	"fmt"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
	"github.com/vitwit/storefront/types"
)

// DecodeTransaction decodes the base64 wire transaction returned by the backend.
func DecodeTransaction(encoded string) (*solana.Transaction, error) {
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("invalid base64: %w", err)
	}

	tx, err := solana.TransactionFromDecoder(bin.NewBinDecoder(raw))
	if err != nil {
		return nil, fmt.Errorf("failed to decode transaction: %w", err)
	}

	if len(tx.Message.AccountKeys) == 0 || len(tx.Message.Instructions) == 0 {
		return nil, fmt.Errorf("transaction has no instructions")
	}

	return tx, nil
}

// VerifyOrderTransaction checks that tx is bound to this purchase: the wallet
// pays the fee and signs, and the reference is one of the account keys so the
// ledger can be searched for it.
func VerifyOrderTransaction(tx *solana.Transaction, payer, reference solana.PublicKey) error {
	keys := tx.Message.AccountKeys

	if !keys[0].Equals(payer) {
		return fmt.Errorf("fee payer %s is not the connected wallet %s", keys[0], payer)
	}

	if !tx.Message.IsSigner(payer) {
		return fmt.Errorf("wallet %s is not a required signer", payer)
	}

	for _, key := range keys {
		if key.Equals(reference) {
			if tx.Message.IsSigner(reference) {
				return fmt.Errorf("reference %s must not be a signer", reference)
			}
			return nil
		}
	}

	return fmt.Errorf("reference %s not present in transaction", reference)
}

// Verify decodes and checks an order transaction in one step.
func Verify(encoded string, payer, reference solana.PublicKey) (*solana.Transaction, error) {
	tx, err := DecodeTransaction(encoded)
	if err != nil {
		return nil, types.NewError(types.ErrInvalidTransaction, "invalid order transaction", err)
	}

	if err := VerifyOrderTransaction(tx, payer, reference); err != nil {
		return nil, types.NewError(types.ErrInvalidTransaction, "order transaction not bound to this purchase", err)
	}

	return tx, nil
}
