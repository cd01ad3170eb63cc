// Package clientstest provides in-memory ledger, wallet and backend fakes.
package clientstest

import (
	"context"
	"encoding/base64"
	"errors"
	"sync"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/system"
	"github.com/stretchr/testify/require"
	"github.com/vitwit/storefront/clients"
	"github.com/vitwit/storefront/types"
)

var memoProgramID = solana.MustPublicKeyFromBase58("MemoSq4gqABAXKb96qnH8TysNcWxMyWCqXgDLGmfcHr")

// UnsignedTransfer builds a base64 transaction paying a shop from payer with
// reference attached as a read-only key, like a Solana Pay backend would.
func UnsignedTransfer(t testing.TB, payer, reference solana.PublicKey) string {
	t.Helper()

	shop := solana.NewWallet().PublicKey()
	tx, err := solana.NewTransaction(
		[]solana.Instruction{
			system.NewTransferInstruction(1_000_000, payer, shop).Build(),
			solana.NewInstruction(memoProgramID, solana.AccountMetaSlice{solana.Meta(reference)}, []byte("storefront")),
		},
		solana.Hash{7},
		solana.TransactionPayer(payer),
	)
	require.NoError(t, err)

	tx.Signatures = make([]solana.Signature, tx.Message.Header.NumRequiredSignatures)
	raw, err := tx.MarshalBinary()
	require.NoError(t, err)

	return base64.StdEncoding.EncodeToString(raw)
}

// Ledger is a scripted clients.Ledger.
type Ledger struct {
	mu sync.Mutex

	balances   map[[2]solana.PublicKey]clients.TokenBalance
	balanceErr error
	balanceN   int

	confirmAfter map[solana.PublicKey]int
	findErr      error
	findCalls    map[solana.PublicKey]int
}

var _ clients.Ledger = (*Ledger)(nil)

func NewLedger() *Ledger {
	return &Ledger{
		balances:     make(map[[2]solana.PublicKey]clients.TokenBalance),
		confirmAfter: make(map[solana.PublicKey]int),
		findCalls:    make(map[solana.PublicKey]int),
	}
}

func (l *Ledger) SetBalance(owner, mint solana.PublicKey, amount uint64, decimals uint8) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.balances[[2]solana.PublicKey{owner, mint}] = clients.TokenBalance{Amount: amount, Decimals: decimals}
}

// SetBalanceError makes every balance read fail with err until cleared with nil.
func (l *Ledger) SetBalanceError(err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.balanceErr = err
}

func (l *Ledger) BalanceCalls() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.balanceN
}

// ConfirmAfter makes reference visible on the n-th lookup.
func (l *Ledger) ConfirmAfter(reference solana.PublicKey, n int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.confirmAfter[reference] = n
}

// SetFindError makes lookups that would otherwise report not-found fail with err.
func (l *Ledger) SetFindError(err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.findErr = err
}

func (l *Ledger) FindCalls(reference solana.PublicKey) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.findCalls[reference]
}

// Queried lists every reference looked up at least once.
func (l *Ledger) Queried() []solana.PublicKey {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]solana.PublicKey, 0, len(l.findCalls))
	for ref := range l.findCalls {
		out = append(out, ref)
	}
	return out
}

func (l *Ledger) TokenBalance(ctx context.Context, owner, mint solana.PublicKey) (*clients.TokenBalance, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.balanceN++

	if l.balanceErr != nil {
		return nil, l.balanceErr
	}
	b, ok := l.balances[[2]solana.PublicKey{owner, mint}]
	if !ok {
		return nil, clients.ErrAccountNotFound
	}
	return &b, nil
}

func (l *Ledger) FindReference(ctx context.Context, reference solana.PublicKey) (*types.Confirmation, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.findCalls[reference]++
	n := l.findCalls[reference]

	if after, ok := l.confirmAfter[reference]; ok && n >= after {
		return &types.Confirmation{
			Signature:          solana.Signature{byte(n)},
			Slot:               uint64(100 + n),
			ConfirmationStatus: "confirmed",
		}, nil
	}
	if l.findErr != nil {
		return nil, l.findErr
	}
	return nil, clients.ErrReferenceNotFound
}

func (l *Ledger) GetNetwork() types.Network { return types.NetworkSolanaLocal }

func (l *Ledger) Close() {}

// ErrUserRejected mimics a wallet declining to sign.
var ErrUserRejected = errors.New("user rejected the request")

// Wallet is a scripted clients.Wallet.
type Wallet struct {
	mu sync.Mutex

	key       solana.PublicKey
	connected bool
	err       error
	sent      []*solana.Transaction

	// OnSend runs after a successful send, e.g. to land the transaction.
	OnSend func(tx *solana.Transaction)
}

var _ clients.Wallet = (*Wallet)(nil)

func NewWallet() *Wallet {
	return &Wallet{key: solana.NewWallet().PublicKey(), connected: true}
}

func (w *Wallet) Key() solana.PublicKey { return w.key }

func (w *Wallet) SetConnected(connected bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.connected = connected
}

// SetError makes SignAndSend fail with err until cleared with nil.
func (w *Wallet) SetError(err error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.err = err
}

func (w *Wallet) Sent() []*solana.Transaction {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]*solana.Transaction(nil), w.sent...)
}

func (w *Wallet) PublicKey() (solana.PublicKey, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.key, w.connected
}

func (w *Wallet) SignAndSend(ctx context.Context, tx *solana.Transaction) (solana.Signature, error) {
	w.mu.Lock()
	if w.err != nil {
		err := w.err
		w.mu.Unlock()
		return solana.Signature{}, err
	}
	w.sent = append(w.sent, tx)
	n := len(w.sent)
	onSend := w.OnSend
	w.mu.Unlock()

	if onSend != nil {
		onSend(tx)
	}
	return solana.Signature{0xff, byte(n)}, nil
}

// Backend is a scripted clients.Backend.
type Backend struct {
	mu sync.Mutex

	partner    *types.Partner
	partnerErr error
	partnerN   int

	orders []types.OrderRequest

	// Order answers CreateOrder. The default builds a valid transaction.
	Order func(req *types.OrderRequest) (*types.OrderResponse, error)
}

var _ clients.Backend = (*Backend)(nil)

// NewBackend returns a backend whose partner issues mint and whose orders
// succeed with a transaction bound to the request.
func NewBackend(t testing.TB, partnerID, tokenName string, mint solana.PublicKey) *Backend {
	return &Backend{
		partner: &types.Partner{
			ID: partnerID,
			AssociatedProgram: types.LoyaltyProgram{
				TokenName:    tokenName,
				TokenAddress: mint.String(),
			},
		},
		Order: func(req *types.OrderRequest) (*types.OrderResponse, error) {
			return &types.OrderResponse{Transaction: UnsignedTransfer(t, req.Account, req.Reference)}, nil
		},
	}
}

func (b *Backend) SetPartnerError(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.partnerErr = err
}

func (b *Backend) PartnerCalls() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.partnerN
}

func (b *Backend) Orders() []types.OrderRequest {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]types.OrderRequest(nil), b.orders...)
}

func (b *Backend) CreateOrder(ctx context.Context, req *types.OrderRequest) (*types.OrderResponse, error) {
	b.mu.Lock()
	b.orders = append(b.orders, *req)
	order := b.Order
	b.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return order(req)
}

func (b *Backend) GetPartner(ctx context.Context, partnerID string) (*types.Partner, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.partnerN++

	if b.partnerErr != nil {
		return nil, b.partnerErr
	}
	p := *b.partner
	return &p, nil
}
