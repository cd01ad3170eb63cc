package utils

import (
	"fmt"
	"math/big"

	"github.com/gagliardetto/solana-go"
	"github.com/shopspring/decimal"
)

// ValidateAmount checks if an amount string is a valid, positive decimal
func ValidateAmount(amount string) (decimal.Decimal, error) {
	if amount == "" {
		return decimal.Zero, fmt.Errorf("amount cannot be empty")
	}

	dec, err := decimal.NewFromString(amount)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid amount format: %w", err)
	}

	if !dec.IsPositive() {
		return decimal.Zero, fmt.Errorf("amount must be positive")
	}

	return dec, nil
}

// ParsePublicKey validates a base58 Solana address.
func ParsePublicKey(address string) (solana.PublicKey, error) {
	if address == "" {
		return solana.PublicKey{}, fmt.Errorf("address cannot be empty")
	}

	pk, err := solana.PublicKeyFromBase58(address)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("invalid solana address %q: %w", address, err)
	}
	return pk, nil
}

// ScaleAmount converts a raw token amount into its human value, e.g.
// 1500 with 2 decimals is 15.
func ScaleAmount(raw uint64, decimals uint8) decimal.Decimal {
	return decimal.NewFromBigInt(new(big.Int).SetUint64(raw), -int32(decimals))
}
