package balance

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/shopspring/decimal"
	"github.com/vitwit/storefront/clients"
	"github.com/vitwit/storefront/logger"
	"github.com/vitwit/storefront/metrics"
	"github.com/vitwit/storefront/types"
	"github.com/vitwit/storefront/utils"
)

const partnerCacheSize = 16

// Reader resolves the partner loyalty token and reads the wallet's balance of it.
type Reader struct {
	backend   clients.Backend
	ledger    clients.Ledger
	partnerID string
	partners  *expirable.LRU[string, *types.Partner]
	log       logger.Logger
	metrics   metrics.Recorder

	mu       sync.Mutex
	last     types.BalanceSnapshot
	resolved string
}

// NewReader creates a balance reader. Partner records are cached for ttl; a
// zero ttl caches them until the reader is dropped.
func NewReader(
	backend clients.Backend,
	ledger clients.Ledger,
	partnerID string,
	ttl time.Duration,
	log logger.Logger,
	rec metrics.Recorder,
) *Reader {
	return &Reader{
		backend:   backend,
		ledger:    ledger,
		partnerID: partnerID,
		partners:  expirable.NewLRU[string, *types.Partner](partnerCacheSize, nil, ttl),
		log:       logger.OrNoop(log),
		metrics:   metrics.OrNoop(rec),
		last:      types.BalanceSnapshot{Amount: decimal.Zero},
	}
}

// Partner returns the configured partner, fetching it on a cache miss.
func (r *Reader) Partner(ctx context.Context) (*types.Partner, error) {
	if p, ok := r.partners.Get(r.partnerID); ok {
		return p, nil
	}

	p, err := r.backend.GetPartner(ctx, r.partnerID)
	if err != nil {
		return nil, err
	}
	r.partners.Add(r.partnerID, p)

	r.mu.Lock()
	r.resolved = p.ID
	r.mu.Unlock()

	return p, nil
}

// PartnerID is the id the backend reported for the partner, or the configured
// one until the partner has been fetched.
func (r *Reader) PartnerID() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.resolved != "" {
		return r.resolved
	}
	return r.partnerID
}

// Last returns the most recent snapshot without touching the ledger.
func (r *Reader) Last() types.BalanceSnapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.last
}

// Read refreshes the snapshot for owner. A nil owner means no wallet is
// connected and yields zero. A missing token account also yields zero. Any
// other failure is logged and the previous amount is kept.
func (r *Reader) Read(ctx context.Context, owner *solana.PublicKey) types.BalanceSnapshot {
	if owner == nil {
		return r.store(func(s *types.BalanceSnapshot) { s.Amount = decimal.Zero })
	}

	start := time.Now()
	labels := map[string]string{"network": r.ledger.GetNetwork().String()}
	defer func() { r.metrics.ObserveLatency(metrics.BalanceRead, time.Since(start), labels) }()

	partner, err := r.Partner(ctx)
	if err != nil {
		r.fail("Error getting partner", owner, err, labels)
		return r.Last()
	}

	program := partner.AssociatedProgram
	r.store(func(s *types.BalanceSnapshot) { s.TokenName = program.TokenName })

	mint, err := utils.ParsePublicKey(program.TokenAddress)
	if err != nil {
		r.fail("Invalid loyalty token address", owner, err, labels)
		return r.Last()
	}

	bal, err := r.ledger.TokenBalance(ctx, *owner, mint)
	switch {
	case errors.Is(err, clients.ErrAccountNotFound):
		r.log.Info("Wallet has no loyalty token account yet", map[string]any{
			"owner": owner.String(),
			"mint":  mint.String(),
		})
		return r.store(func(s *types.BalanceSnapshot) { s.Amount = decimal.Zero })
	case err != nil:
		r.fail("Error getting loyalty balance", owner, err, labels)
		return r.Last()
	}

	amount := utils.ScaleAmount(bal.Amount, bal.Decimals)
	r.log.Debug("Loyalty balance read", map[string]any{
		"owner":  owner.String(),
		"token":  program.TokenName,
		"amount": amount.String(),
	})
	return r.store(func(s *types.BalanceSnapshot) { s.Amount = amount })
}

func (r *Reader) store(update func(*types.BalanceSnapshot)) types.BalanceSnapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	update(&r.last)
	return r.last
}

func (r *Reader) fail(msg string, owner *solana.PublicKey, err error, labels map[string]string) {
	r.metrics.IncCounter(metrics.BalanceReadFailed, labels)
	r.log.Error(msg, map[string]any{
		"owner": owner.String(),
		"error": err,
	})
}
