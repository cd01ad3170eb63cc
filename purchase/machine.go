package purchase

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/event"
	"github.com/gagliardetto/solana-go"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/vitwit/storefront/clients"
	"github.com/vitwit/storefront/logger"
	"github.com/vitwit/storefront/metrics"
	"github.com/vitwit/storefront/settlement"
	"github.com/vitwit/storefront/types"
)

// Status messages shown next to the buy button.
const (
	MsgConfirmed = "Transaction confirmed! Thank you for your purchase!"
	MsgTimedOut  = "Payment not confirmed yet, check your wallet"
	MsgNotSent   = "Transaction was not sent"
	MsgCancelled = "Purchase cancelled"
)

var errClosed = errors.New("purchase machine closed")

// BalanceReader is what the machine needs from the balance package.
type BalanceReader interface {
	Read(ctx context.Context, owner *solana.PublicKey) types.BalanceSnapshot
	PartnerID() string
}

// Machine owns the single purchase attempt and the state derived from it.
// Every asynchronous result is checked against the attempt generation that
// started it, so a superseded attempt can never write state.
type Machine struct {
	requester  *Requester
	dispatcher *Dispatcher
	poller     *settlement.Poller
	balance    BalanceReader
	network    string
	log        logger.Logger
	metrics    metrics.Recorder

	root   context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.Mutex
	state   types.State
	wallet  clients.Wallet
	gen     uint64
	stop    context.CancelFunc
	closed  bool
	pending []types.State
	wake    chan struct{}
	feed    event.FeedOf[types.State]
}

func NewMachine(
	requester *Requester,
	dispatcher *Dispatcher,
	poller *settlement.Poller,
	balance BalanceReader,
	network types.Network,
	log logger.Logger,
	rec metrics.Recorder,
) *Machine {
	root, cancel := context.WithCancel(context.Background())
	m := &Machine{
		requester:  requester,
		dispatcher: dispatcher,
		poller:     poller,
		balance:    balance,
		network:    network.String(),
		log:        logger.OrNoop(log),
		metrics:    metrics.OrNoop(rec),
		root:       root,
		cancel:     cancel,
		wake:       make(chan struct{}, 1),
		state: types.State{
			Attempt: types.PurchaseAttempt{Status: types.StatusNone},
			Balance: types.BalanceSnapshot{Amount: decimal.Zero},
		},
	}
	go m.publish()
	return m
}

// State returns a snapshot of the current state.
func (m *Machine) State() types.State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Subscribe delivers every state change to ch, in order. Delivery waits for
// the slowest subscriber, so ch must be drained.
func (m *Machine) Subscribe(ch chan<- types.State) event.Subscription {
	return m.feed.Subscribe(ch)
}

// commit queues the current state for subscribers and releases m.mu.
// Callers hold m.mu.
func (m *Machine) commit() {
	m.state.Attempt.UpdatedAt = time.Now()
	m.pending = append(m.pending, m.state)
	m.mu.Unlock()

	select {
	case m.wake <- struct{}{}:
	default:
	}
}

func (m *Machine) publish() {
	for {
		select {
		case <-m.root.Done():
			return
		case <-m.wake:
		}

		m.mu.Lock()
		batch := m.pending
		m.pending = nil
		m.mu.Unlock()

		for _, s := range batch {
			m.feed.Send(s)
		}
	}
}

// ConnectWallet makes w the active wallet and reloads the balance for it.
func (m *Machine) ConnectWallet(ctx context.Context, w clients.Wallet) {
	m.mu.Lock()
	m.wallet = w
	_, m.state.Connected = w.PublicKey()
	m.commit()

	m.RefreshBalance(ctx)
}

// DisconnectWallet drops the wallet. A live attempt keeps polling since its
// transaction may already be on the ledger.
func (m *Machine) DisconnectWallet(ctx context.Context) {
	m.mu.Lock()
	m.wallet = nil
	m.state.Connected = false
	m.commit()

	m.RefreshBalance(ctx)
}

// SetUsePoints toggles paying partly with loyalty points on later purchases.
func (m *Machine) SetUsePoints(usePoints bool) {
	m.mu.Lock()
	m.state.UsePoints = usePoints
	m.commit()
}

// RefreshBalance rereads the loyalty balance of the connected wallet.
func (m *Machine) RefreshBalance(ctx context.Context) types.BalanceSnapshot {
	m.mu.Lock()
	w := m.wallet
	m.mu.Unlock()

	var owner *solana.PublicKey
	if w != nil {
		if key, ok := w.PublicKey(); ok {
			owner = &key
		}
	}

	snap := m.balance.Read(ctx, owner)

	m.mu.Lock()
	if m.wallet != w {
		// wallet changed while reading; the newer refresh wins
		m.mu.Unlock()
		return snap
	}
	m.state.Balance = snap
	m.commit()
	return snap
}

// Buy starts a purchase of itemID at price, superseding any live attempt.
// It returns once the transaction was broadcast and polling started, or
// with the error that ended the attempt.
func (m *Machine) Buy(ctx context.Context, itemID string, price decimal.Decimal) (types.PurchaseAttempt, error) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return types.PurchaseAttempt{}, errClosed
	}

	w := m.wallet
	var owner solana.PublicKey
	connected := false
	if w != nil {
		owner, connected = w.PublicKey()
	}
	if !connected {
		m.mu.Unlock()
		return types.PurchaseAttempt{}, types.NewError(types.ErrWalletNotConnected, "connect a wallet first", nil)
	}

	usePoints := m.state.UsePoints
	req, err := m.requester.Prepare(owner, price, m.balance.PartnerID(), usePoints)
	if err != nil {
		m.mu.Unlock()
		return types.PurchaseAttempt{}, err
	}

	m.supersede()
	m.gen++
	gen := m.gen
	m.state.Generation = gen
	attemptCtx, stop := context.WithCancel(m.root)
	m.stop = stop

	now := time.Now()
	m.state.Attempt = types.PurchaseAttempt{
		ID:          newAttemptID(),
		Reference:   req.Reference,
		ItemID:      itemID,
		PriceAmount: price,
		UsePoints:   usePoints,
		Status:      types.StatusAwaitingTransaction,
		StartedAt:   now,
	}
	m.state.Loading = true
	m.state.Message = ""
	attemptID := m.state.Attempt.ID
	m.commit()

	labels := map[string]string{"network": m.network}
	m.metrics.IncCounter(metrics.PurchaseStarted, labels)
	fields := map[string]any{
		"attempt":   attemptID,
		"item":      itemID,
		"reference": req.Reference.String(),
	}
	m.log.Info("Purchase started", fields)

	// in-flight calls end when the caller gives up or the attempt is superseded
	callCtx, cancelCall := context.WithCancel(ctx)
	defer cancelCall()
	unbind := context.AfterFunc(attemptCtx, cancelCall)
	defer unbind()

	order, err := m.requester.Send(callCtx, req)

	m.mu.Lock()
	if m.gen != gen {
		m.mu.Unlock()
		return types.PurchaseAttempt{}, superseded(attemptID)
	}
	if err != nil {
		m.state.Attempt.Status = types.StatusFailed
		m.state.Attempt.ErrorMessage = userMessage(err)
		m.state.Loading = false
		m.state.Message = m.state.Attempt.ErrorMessage
		m.stop()
		attempt := m.state.Attempt
		m.commit()
		return attempt, err
	}
	m.state.Attempt.Status = types.StatusAwaitingSignature
	m.commit()

	sig, err := m.dispatcher.Dispatch(callCtx, w, order)

	m.mu.Lock()
	if m.gen != gen {
		m.mu.Unlock()
		return types.PurchaseAttempt{}, superseded(attemptID)
	}
	if err != nil {
		// the attempt stays awaiting a signature; a retry starts a new one
		m.state.Attempt.ErrorMessage = userMessage(err)
		m.state.Loading = false
		m.state.Message = m.state.Attempt.ErrorMessage
		attempt := m.state.Attempt
		m.commit()
		return attempt, err
	}
	m.state.Attempt.Signature = &sig
	m.state.Attempt.Status = types.StatusPolling
	attempt := m.state.Attempt

	m.wg.Add(1)
	go m.poll(attemptCtx, gen, attempt.ID, req.Reference, owner)

	m.commit()
	return attempt, nil
}

// poll waits for the attempt's reference to land and records the outcome.
func (m *Machine) poll(ctx context.Context, gen uint64, attemptID string, ref, owner solana.PublicKey) {
	defer m.wg.Done()

	fields := map[string]any{"attempt": attemptID, "reference": ref.String()}
	labels := map[string]string{"network": m.network}

	c, err := m.poller.Run(ctx, ref)

	m.mu.Lock()
	if m.gen != gen || ctx.Err() != nil {
		m.mu.Unlock()
		return
	}

	switch {
	case err == nil:
		m.state.Attempt.Status = types.StatusConfirmed
		m.state.Attempt.Confirmation = c
		m.state.Message = MsgConfirmed
		fields["signature"] = c.Signature.String()
		fields["attempts"] = c.Attempts
		m.metrics.IncCounter(metrics.PurchaseConfirmed, labels)
		m.log.Info("Purchase confirmed", fields)
	case types.IsCode(err, types.ErrConfirmationTimeout):
		m.state.Attempt.Status = types.StatusTimedOut
		m.state.Attempt.ErrorMessage = MsgTimedOut
		m.state.Message = MsgTimedOut
		m.metrics.IncCounter(metrics.PurchaseTimedOut, labels)
		m.log.Warn("Purchase not confirmed in time", fields)
	default:
		m.state.Attempt.Status = types.StatusFailed
		m.state.Attempt.ErrorMessage = MsgOrderFailed
		m.state.Message = MsgOrderFailed
		fields["error"] = err
		m.log.Error("Confirmation polling failed", fields)
	}
	m.state.Loading = false
	m.stop()
	confirmed := m.state.Attempt.Status == types.StatusConfirmed
	m.commit()

	if confirmed {
		m.refreshFor(owner)
	}
}

// refreshFor reloads the balance after a purchase if owner is still connected.
func (m *Machine) refreshFor(owner solana.PublicKey) {
	m.mu.Lock()
	w := m.wallet
	m.mu.Unlock()
	if w == nil {
		return
	}
	if key, ok := w.PublicKey(); !ok || !key.Equals(owner) {
		return
	}
	m.RefreshBalance(m.root)
}

// supersede abandons the live attempt. Callers hold m.mu.
func (m *Machine) supersede() {
	if m.stop != nil {
		m.stop()
		m.stop = nil
	}

	prev := m.state.Attempt
	if !prev.Status.IsLive() {
		return
	}
	m.metrics.IncCounter(metrics.PurchaseAbandoned, map[string]string{"network": m.network})
	m.log.Info("Purchase superseded", map[string]any{
		"attempt":   prev.ID,
		"reference": prev.Reference.String(),
		"status":    prev.Status.String(),
	})
}

// Await blocks until attempt id reaches a terminal status. States queued
// before the attempt started may still be in flight; they carry an older
// generation and are skipped.
func (m *Machine) Await(ctx context.Context, id string) (types.PurchaseAttempt, error) {
	ch := make(chan types.State, 8)
	sub := m.Subscribe(ch)
	defer sub.Unsubscribe()

	current := m.State()
	if current.Attempt.ID != id {
		return types.PurchaseAttempt{}, superseded(id)
	}
	if current.Attempt.Status.IsTerminal() {
		return current.Attempt, nil
	}
	gen := current.Generation

	for {
		select {
		case s := <-ch:
			switch {
			case s.Attempt.ID == id:
				if s.Attempt.Status.IsTerminal() {
					return s.Attempt, nil
				}
			case s.Generation > gen:
				return types.PurchaseAttempt{}, superseded(id)
			}
		case err := <-sub.Err():
			if err == nil {
				err = errClosed
			}
			return types.PurchaseAttempt{}, err
		case <-m.root.Done():
			return types.PurchaseAttempt{}, errClosed
		case <-ctx.Done():
			return types.PurchaseAttempt{}, ctx.Err()
		}
	}
}

// Cancel abandons the live attempt: its poller and in-flight calls stop and
// it ends as Abandoned. A finished attempt is left as it is.
func (m *Machine) Cancel() {
	m.mu.Lock()
	if !m.state.Attempt.Status.IsLive() {
		m.mu.Unlock()
		return
	}
	m.supersede()
	m.gen++
	m.state.Generation = m.gen
	m.state.Attempt.Status = types.StatusAbandoned
	m.state.Attempt.ErrorMessage = MsgCancelled
	m.state.Message = MsgCancelled
	m.state.Loading = false
	m.commit()
}

// Close cancels every attempt and waits for pollers to exit. Subscribers
// must keep draining until Close returns.
func (m *Machine) Close() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	m.gen++
	m.mu.Unlock()

	m.cancel()
	m.wg.Wait()
}

func superseded(id string) error {
	return types.NewError(types.ErrAttemptSuperseded, "purchase attempt "+id+" was superseded", nil)
}

// userMessage is the status line for err. Malformed transactions get the
// generic message; the detail is only logged.
func userMessage(err error) string {
	if types.IsCode(err, types.ErrInvalidTransaction) {
		return MsgOrderFailed
	}
	var se *types.StorefrontError
	if errors.As(err, &se) && se.Message != "" {
		return se.Message
	}
	return MsgOrderFailed
}

func newAttemptID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}
