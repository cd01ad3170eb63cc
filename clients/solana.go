package clients

import (
	"context"
	"errors"
	"fmt"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/token"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/vitwit/storefront/types"
)

// referenceScanLimit is the page size used when looking a reference up.
const referenceScanLimit = 1000

// SolanaLedger reads balances and reference transactions over JSON-RPC
type SolanaLedger struct {
	network    types.Network
	rpcURL     string
	commitment rpc.CommitmentType
	client     *rpc.Client
}

var _ Ledger = (*SolanaLedger)(nil)

// NewSolanaLedger creates a ledger client for the cluster behind rpcURL.
func NewSolanaLedger(network types.Network, rpcURL string, commitment string) (*SolanaLedger, error) {
	if rpcURL == "" {
		u, err := network.DefaultRPCUrl()
		if err != nil {
			return nil, err
		}
		rpcURL = u
	}

	c := rpc.CommitmentConfirmed
	if commitment != "" {
		c = rpc.CommitmentType(commitment)
	}

	return &SolanaLedger{
		network:    network,
		rpcURL:     rpcURL,
		commitment: c,
		client:     rpc.New(rpcURL),
	}, nil
}

// TokenBalance reads the owner's associated token account and the mint scale.
func (s *SolanaLedger) TokenBalance(ctx context.Context, owner, mint solana.PublicKey) (*TokenBalance, error) {
	ata, _, err := solana.FindAssociatedTokenAddress(owner, mint)
	if err != nil {
		return nil, fmt.Errorf("failed to derive token account: %w", err)
	}

	var account token.Account
	if err := s.decodeAccount(ctx, ata, &account); err != nil {
		if errors.Is(err, rpc.ErrNotFound) {
			return nil, ErrAccountNotFound
		}
		return nil, fmt.Errorf("failed to read token account %s: %w", ata, err)
	}

	var m token.Mint
	if err := s.decodeAccount(ctx, mint, &m); err != nil {
		return nil, fmt.Errorf("failed to read mint %s: %w", mint, err)
	}

	return &TokenBalance{
		Amount:   account.Amount,
		Decimals: m.Decimals,
	}, nil
}

func (s *SolanaLedger) decodeAccount(ctx context.Context, address solana.PublicKey, out any) error {
	info, err := s.client.GetAccountInfoWithOpts(ctx, address, &rpc.GetAccountInfoOpts{
		Encoding:   solana.EncodingBase64,
		Commitment: s.commitment,
	})
	if err != nil {
		return err
	}

	if err := bin.NewBinDecoder(info.GetBinary()).Decode(out); err != nil {
		return fmt.Errorf("failed to decode account data: %w", err)
	}
	return nil
}

// FindReference looks for a successful transaction that includes reference.
func (s *SolanaLedger) FindReference(ctx context.Context, reference solana.PublicKey) (*types.Confirmation, error) {
	limit := referenceScanLimit
	sigs, err := s.client.GetSignaturesForAddressWithOpts(ctx, reference, &rpc.GetSignaturesForAddressOpts{
		Limit:      &limit,
		Commitment: s.commitment,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to query signatures for %s: %w", reference, err)
	}

	// newest first; settle on the oldest successful one
	for i := len(sigs) - 1; i >= 0; i-- {
		sig := sigs[i]
		if sig == nil || sig.Err != nil {
			continue
		}

		c := &types.Confirmation{
			Signature:          sig.Signature,
			Slot:               sig.Slot,
			ConfirmationStatus: string(sig.ConfirmationStatus),
		}
		if sig.BlockTime != nil {
			t := sig.BlockTime.Time()
			c.BlockTime = &t
		}
		return c, nil
	}

	return nil, ErrReferenceNotFound
}

func (s *SolanaLedger) GetNetwork() types.Network { return s.network }

func (s *SolanaLedger) Close() {
	_ = s.client.Close()
}
