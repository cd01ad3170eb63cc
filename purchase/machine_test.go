package purchase

import (
	"context"
	"errors"
	"net/http"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vitwit/storefront/balance"
	"github.com/vitwit/storefront/clients"
	"github.com/vitwit/storefront/clients/clientstest"
	"github.com/vitwit/storefront/settlement"
	"github.com/vitwit/storefront/types"
)

var fastPoll = types.PollConfig{
	Interval:    time.Millisecond,
	MaxInterval: 2 * time.Millisecond,
	Multiplier:  1.5,
	Timeout:     5 * time.Second,
}

type harness struct {
	mint    solana.PublicKey
	ledger  *clientstest.Ledger
	backend *clientstest.Backend
	wallet  *clientstest.Wallet
	machine *Machine
}

func newHarness(t *testing.T, poll types.PollConfig) *harness {
	t.Helper()

	h := &harness{
		mint:   solana.NewWallet().PublicKey(),
		ledger: clientstest.NewLedger(),
		wallet: clientstest.NewWallet(),
	}
	h.backend = clientstest.NewBackend(t, "p1", "MOON", h.mint)

	reader := balance.NewReader(h.backend, h.ledger, "p1", time.Minute, nil, nil)
	h.machine = NewMachine(
		NewRequester(h.backend, nil, types.NetworkSolanaLocal, nil, nil),
		NewDispatcher(types.NetworkSolanaLocal, nil, nil),
		settlement.NewPoller(h.ledger, poll, nil, nil),
		reader,
		types.NetworkSolanaLocal,
		nil, nil,
	)
	t.Cleanup(h.machine.Close)
	return h
}

// landAfter makes every sent transaction visible on the n-th lookup.
func (h *harness) landAfter(n int) {
	h.wallet.OnSend = func(*solana.Transaction) {
		orders := h.backend.Orders()
		h.ledger.ConfirmAfter(orders[len(orders)-1].Reference, n)
	}
}

func (h *harness) connect(t *testing.T) {
	t.Helper()
	h.machine.ConnectWallet(context.Background(), h.wallet)
}

func await(t *testing.T, m *Machine, id string) types.PurchaseAttempt {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	a, err := m.Await(ctx, id)
	require.NoError(t, err)
	return a
}

func TestBuyConfirms(t *testing.T) {
	h := newHarness(t, fastPoll)
	h.ledger.SetBalance(h.wallet.Key(), h.mint, 250, 2)
	h.connect(t)
	h.landAfter(3)

	st := h.machine.State()
	assert.True(t, st.Connected)
	assert.True(t, decimal.RequireFromString("2.5").Equal(st.Balance.Amount))
	assert.Equal(t, "MOON", st.Balance.TokenName)

	// the purchase spends points
	h.ledger.SetBalance(h.wallet.Key(), h.mint, 150, 2)

	attempt, err := h.machine.Buy(context.Background(), "coffee", decimal.NewFromInt(10))
	require.NoError(t, err)
	assert.NotEmpty(t, attempt.ID)
	assert.NotNil(t, attempt.Signature)

	done := await(t, h.machine, attempt.ID)
	assert.Equal(t, types.StatusConfirmed, done.Status)
	require.NotNil(t, done.Confirmation)
	assert.Equal(t, 3, done.Confirmation.Attempts)
	assert.Equal(t, attempt.Reference, h.backend.Orders()[0].Reference)

	st = h.machine.State()
	assert.False(t, st.Loading)
	assert.Equal(t, MsgConfirmed, st.Message)

	assert.Eventually(t, func() bool {
		return decimal.RequireFromString("1.5").Equal(h.machine.State().Balance.Amount)
	}, time.Second, 5*time.Millisecond)
}

func TestBuyWithoutWallet(t *testing.T) {
	h := newHarness(t, fastPoll)

	_, err := h.machine.Buy(context.Background(), "coffee", decimal.NewFromInt(10))
	assert.True(t, types.IsCode(err, types.ErrWalletNotConnected))
	assert.Empty(t, h.backend.Orders())
	assert.Equal(t, types.StatusNone, h.machine.State().Attempt.Status)
	assert.False(t, h.machine.State().Loading)

	h.wallet.SetConnected(false)
	h.connect(t)
	_, err = h.machine.Buy(context.Background(), "coffee", decimal.NewFromInt(10))
	assert.True(t, types.IsCode(err, types.ErrWalletNotConnected))
	assert.Empty(t, h.backend.Orders())
}

func TestBuyOrderRejected(t *testing.T) {
	h := newHarness(t, fastPoll)
	h.connect(t)
	h.backend.Order = func(*types.OrderRequest) (*types.OrderResponse, error) {
		return &types.OrderResponse{Error: "insufficient funds"},
			&clients.OrderRejectedError{StatusCode: http.StatusBadRequest, Message: "insufficient funds"}
	}

	attempt, err := h.machine.Buy(context.Background(), "coffee", decimal.NewFromInt(10))
	assert.True(t, types.IsCode(err, types.ErrOrderRejected))
	assert.Equal(t, types.StatusFailed, attempt.Status)

	st := h.machine.State()
	assert.Equal(t, "insufficient funds", st.Message)
	assert.False(t, st.Loading)
	assert.Empty(t, h.wallet.Sent())
	assert.Empty(t, h.ledger.Queried())
}

func TestBuyOrderFailed(t *testing.T) {
	h := newHarness(t, fastPoll)
	h.connect(t)
	h.backend.Order = func(*types.OrderRequest) (*types.OrderResponse, error) {
		return nil, errors.New("connection refused")
	}

	attempt, err := h.machine.Buy(context.Background(), "coffee", decimal.NewFromInt(10))
	assert.True(t, types.IsCode(err, types.ErrOrderFailed))
	assert.Equal(t, types.StatusFailed, attempt.Status)
	assert.Equal(t, MsgOrderFailed, h.machine.State().Message)
	assert.Empty(t, h.ledger.Queried())
}

func TestBuyRejectsUnboundTransaction(t *testing.T) {
	h := newHarness(t, fastPoll)
	h.connect(t)
	h.backend.Order = func(req *types.OrderRequest) (*types.OrderResponse, error) {
		other := solana.NewWallet().PublicKey()
		return &types.OrderResponse{Transaction: clientstest.UnsignedTransfer(t, req.Account, other)}, nil
	}

	attempt, err := h.machine.Buy(context.Background(), "coffee", decimal.NewFromInt(10))
	assert.True(t, types.IsCode(err, types.ErrInvalidTransaction))
	assert.Equal(t, types.StatusFailed, attempt.Status)
	assert.Equal(t, MsgOrderFailed, h.machine.State().Message)
	assert.Empty(t, h.wallet.Sent())
}

func TestBuyWalletRejected(t *testing.T) {
	h := newHarness(t, fastPoll)
	h.connect(t)
	h.wallet.SetError(clientstest.ErrUserRejected)

	attempt, err := h.machine.Buy(context.Background(), "coffee", decimal.NewFromInt(10))
	assert.True(t, types.IsCode(err, types.ErrWalletRejected))
	assert.ErrorIs(t, err, clientstest.ErrUserRejected)
	assert.Equal(t, types.StatusAwaitingSignature, attempt.Status)

	st := h.machine.State()
	assert.False(t, st.Loading)
	assert.Equal(t, MsgNotSent, st.Message)

	time.Sleep(20 * time.Millisecond)
	assert.Empty(t, h.ledger.Queried())

	// retrying gets a fresh order
	h.wallet.SetError(nil)
	h.landAfter(1)
	retry, err := h.machine.Buy(context.Background(), "coffee", decimal.NewFromInt(10))
	require.NoError(t, err)
	assert.NotEqual(t, attempt.Reference, retry.Reference)
	assert.Len(t, h.backend.Orders(), 2)

	assert.Equal(t, types.StatusConfirmed, await(t, h.machine, retry.ID).Status)
}

func TestBuySupersedesLiveAttempt(t *testing.T) {
	h := newHarness(t, fastPoll)
	h.connect(t)

	first, err := h.machine.Buy(context.Background(), "coffee", decimal.NewFromInt(10))
	require.NoError(t, err)
	assert.Eventually(t, func() bool { return h.ledger.FindCalls(first.Reference) > 0 }, time.Second, time.Millisecond)

	h.landAfter(2)
	second, err := h.machine.Buy(context.Background(), "tea", decimal.NewFromInt(7))
	require.NoError(t, err)
	assert.NotEqual(t, first.Reference, second.Reference)

	_, err = h.machine.Await(context.Background(), first.ID)
	assert.True(t, types.IsCode(err, types.ErrAttemptSuperseded))

	done := await(t, h.machine, second.ID)
	assert.Equal(t, types.StatusConfirmed, done.Status)
	assert.Equal(t, "tea", done.ItemID)

	stale := h.ledger.FindCalls(first.Reference)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, stale, h.ledger.FindCalls(first.Reference))
	assert.Equal(t, second.ID, h.machine.State().Attempt.ID)
}

func TestBuyTimesOut(t *testing.T) {
	poll := fastPoll
	poll.Timeout = 30 * time.Millisecond
	h := newHarness(t, poll)
	h.connect(t)

	attempt, err := h.machine.Buy(context.Background(), "coffee", decimal.NewFromInt(10))
	require.NoError(t, err)

	done := await(t, h.machine, attempt.ID)
	assert.Equal(t, types.StatusTimedOut, done.Status)
	assert.Equal(t, MsgTimedOut, h.machine.State().Message)
	assert.False(t, h.machine.State().Loading)

	calls := h.ledger.FindCalls(attempt.Reference)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, calls, h.ledger.FindCalls(attempt.Reference))
}

func TestCancelAbandonsAttempt(t *testing.T) {
	h := newHarness(t, fastPoll)
	h.connect(t)

	attempt, err := h.machine.Buy(context.Background(), "coffee", decimal.NewFromInt(10))
	require.NoError(t, err)
	assert.True(t, h.machine.State().Loading)

	h.machine.Cancel()
	st := h.machine.State()
	assert.False(t, st.Loading)
	assert.Equal(t, types.StatusAbandoned, st.Attempt.Status)
	assert.Equal(t, MsgCancelled, st.Message)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	done, err := h.machine.Await(ctx, attempt.ID)
	require.NoError(t, err)
	assert.Equal(t, types.StatusAbandoned, done.Status)

	time.Sleep(10 * time.Millisecond)
	calls := h.ledger.FindCalls(attempt.Reference)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, calls, h.ledger.FindCalls(attempt.Reference))

	// late landing is ignored
	h.ledger.ConfirmAfter(attempt.Reference, 1)
	time.Sleep(10 * time.Millisecond)
	assert.Equal(t, types.StatusAbandoned, h.machine.State().Attempt.Status)

	// nothing live to cancel
	h.machine.Cancel()
	assert.Equal(t, st.Generation, h.machine.State().Generation)
}

func TestAwaitSkipsStatesFromBeforeAttempt(t *testing.T) {
	h := newHarness(t, fastPoll)

	// a subscriber nobody reads holds earlier states in the publisher
	slow := make(chan types.State)
	slowSub := h.machine.Subscribe(slow)
	defer slowSub.Unsubscribe()

	h.connect(t)
	attempt, err := h.machine.Buy(context.Background(), "coffee", decimal.NewFromInt(10))
	require.NoError(t, err)

	type result struct {
		attempt types.PurchaseAttempt
		err     error
	}
	out := make(chan result, 1)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		a, err := h.machine.Await(ctx, attempt.ID)
		out <- result{a, err}
	}()

	time.Sleep(20 * time.Millisecond)
	go func() {
		for range slow {
		}
	}()
	h.ledger.ConfirmAfter(attempt.Reference, 1)

	r := <-out
	require.NoError(t, r.err)
	assert.Equal(t, types.StatusConfirmed, r.attempt.Status)
}

func TestBuyDropsOrderOfSupersededAttempt(t *testing.T) {
	h := newHarness(t, fastPoll)
	h.connect(t)

	started := make(chan struct{})
	release := make(chan struct{})
	var calls atomic.Int32
	order := h.backend.Order
	h.backend.Order = func(req *types.OrderRequest) (*types.OrderResponse, error) {
		if calls.Add(1) == 1 {
			close(started)
			<-release
		}
		return order(req)
	}

	first := make(chan error, 1)
	go func() {
		_, err := h.machine.Buy(context.Background(), "coffee", decimal.NewFromInt(10))
		first <- err
	}()
	<-started

	h.landAfter(1)
	second, err := h.machine.Buy(context.Background(), "tea", decimal.NewFromInt(7))
	require.NoError(t, err)
	close(release)

	assert.True(t, types.IsCode(<-first, types.ErrAttemptSuperseded))
	assert.Equal(t, types.StatusConfirmed, await(t, h.machine, second.ID).Status)

	orders := h.backend.Orders()
	require.Len(t, orders, 2)
	stale := orders[0].Reference
	assert.NotEqual(t, stale, second.Reference)
	assert.Len(t, h.wallet.Sent(), 1)
	assert.Equal(t, 0, h.ledger.FindCalls(stale))
	assert.Equal(t, second.ID, h.machine.State().Attempt.ID)
}

func TestCloseStopsPolling(t *testing.T) {
	h := newHarness(t, fastPoll)
	h.connect(t)

	attempt, err := h.machine.Buy(context.Background(), "coffee", decimal.NewFromInt(10))
	require.NoError(t, err)

	h.machine.Close()
	calls := h.ledger.FindCalls(attempt.Reference)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, calls, h.ledger.FindCalls(attempt.Reference))

	_, err = h.machine.Buy(context.Background(), "coffee", decimal.NewFromInt(10))
	assert.Error(t, err)
}

func TestBuySendsOrderParameters(t *testing.T) {
	h := newHarness(t, fastPoll)
	h.connect(t)
	h.machine.SetUsePoints(true)
	h.landAfter(1)

	attempt, err := h.machine.Buy(context.Background(), "coffee", decimal.RequireFromString("12.5"))
	require.NoError(t, err)
	assert.True(t, attempt.UsePoints)

	orders := h.backend.Orders()
	require.Len(t, orders, 1)
	assert.Equal(t, attempt.Reference, orders[0].Reference)
	assert.Equal(t, "p1", orders[0].PartnerID)
	assert.True(t, orders[0].UsePoints)
	assert.Equal(t, h.wallet.Key(), orders[0].Account)
	assert.Equal(t, "12.5", orders[0].PriceAmount.String())
}

func TestSubscribeSeesTransitionsInOrder(t *testing.T) {
	h := newHarness(t, fastPoll)
	ch := make(chan types.State, 64)
	sub := h.machine.Subscribe(ch)
	defer sub.Unsubscribe()

	h.connect(t)
	h.landAfter(2)
	_, err := h.machine.Buy(context.Background(), "coffee", decimal.NewFromInt(10))
	require.NoError(t, err)

	var seen []types.PurchaseStatus
	timeout := time.After(5 * time.Second)
	for len(seen) == 0 || seen[len(seen)-1] != types.StatusConfirmed {
		select {
		case s := <-ch:
			if n := len(seen); n == 0 || seen[n-1] != s.Attempt.Status {
				seen = append(seen, s.Attempt.Status)
			}
		case <-timeout:
			t.Fatalf("no confirmation, saw %v", seen)
		}
	}

	assert.Equal(t, []types.PurchaseStatus{
		types.StatusNone,
		types.StatusAwaitingTransaction,
		types.StatusAwaitingSignature,
		types.StatusPolling,
		types.StatusConfirmed,
	}, seen)
}
