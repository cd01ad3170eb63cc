// Package storefront implements a Solana Pay checkout: it asks the merchant
// backend for a transaction bound to a fresh reference, has the wallet sign
// and send it, and watches the ledger until that reference lands.
package storefront

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/event"
	"github.com/vitwit/storefront/balance"
	"github.com/vitwit/storefront/catalog"
	"github.com/vitwit/storefront/clients"
	"github.com/vitwit/storefront/config"
	"github.com/vitwit/storefront/logger"
	"github.com/vitwit/storefront/metrics"
	"github.com/vitwit/storefront/purchase"
	"github.com/vitwit/storefront/reference"
	"github.com/vitwit/storefront/settlement"
	"github.com/vitwit/storefront/types"
)

// Storefront is the main struct that wires the purchase flow together
type Storefront struct {
	config  *types.Config
	catalog *catalog.Catalog
	ledger  clients.Ledger
	backend clients.Backend
	balance *balance.Reader
	machine *purchase.Machine

	logger       logger.Logger
	metrics      metrics.Recorder
	timeout      time.Duration
	httpClient   *http.Client
	newReference reference.Generator
}

// New creates a Storefront for cfg. The ledger and backend are built from
// cfg unless supplied through options.
func New(cfg *types.Config, opts ...Option) (*Storefront, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if err := config.Validate(cfg); err != nil {
		return nil, err
	}

	s := &Storefront{
		config:  cfg,
		timeout: cfg.RequestTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = logger.OrNoop(s.logger)
	s.metrics = metrics.OrNoop(s.metrics)

	items, err := catalog.New(cfg.Catalog)
	if err != nil {
		return nil, types.NewError(types.ErrConfigError, "invalid catalog", err)
	}
	s.catalog = items

	if s.ledger == nil {
		l, err := clients.NewSolanaLedger(cfg.Network, cfg.RPCUrl, cfg.Commitment)
		if err != nil {
			return nil, fmt.Errorf("failed to create ledger client for %s: %w", cfg.Network, err)
		}
		s.ledger = l
	}
	if s.backend == nil {
		s.backend = clients.NewHTTPBackend(cfg.BackendAPI, s.httpClient, s.timeout)
	}

	s.balance = balance.NewReader(s.backend, s.ledger, cfg.PartnerID, cfg.PartnerTTL, s.logger, s.metrics)
	s.machine = purchase.NewMachine(
		purchase.NewRequester(s.backend, s.newReference, cfg.Network, s.logger, s.metrics),
		purchase.NewDispatcher(cfg.Network, s.logger, s.metrics),
		settlement.NewPoller(s.ledger, cfg.Poll, s.logger, s.metrics),
		s.balance,
		cfg.Network,
		s.logger,
		s.metrics,
	)

	s.logger.Info("Storefront ready", map[string]any{
		"network": cfg.Network.String(),
		"testnet": cfg.Network.IsTestnet(),
		"backend": cfg.BackendAPI,
		"partner": cfg.PartnerID,
		"items":   items.Len(),
	})
	return s, nil
}

// ConnectWallet makes w the paying wallet and loads its loyalty balance.
func (s *Storefront) ConnectWallet(ctx context.Context, w clients.Wallet) {
	s.machine.ConnectWallet(ctx, w)
}

func (s *Storefront) DisconnectWallet(ctx context.Context) {
	s.machine.DisconnectWallet(ctx)
}

// SetUsePoints chooses whether later purchases spend loyalty points.
func (s *Storefront) SetUsePoints(usePoints bool) {
	s.machine.SetUsePoints(usePoints)
}

// Buy purchases a catalog item at its listed price. It returns once the
// wallet has broadcast the transaction; use Await for the outcome.
func (s *Storefront) Buy(ctx context.Context, itemID string) (types.PurchaseAttempt, error) {
	item, err := s.catalog.Lookup(itemID)
	if err != nil {
		return types.PurchaseAttempt{}, err
	}
	return s.machine.Buy(ctx, item.ID, item.PriceUSD)
}

// Await blocks until the attempt reaches a terminal status.
func (s *Storefront) Await(ctx context.Context, attemptID string) (types.PurchaseAttempt, error) {
	return s.machine.Await(ctx, attemptID)
}

// Cancel abandons the live attempt and stops watching for it.
func (s *Storefront) Cancel() {
	s.machine.Cancel()
}

func (s *Storefront) RefreshBalance(ctx context.Context) types.BalanceSnapshot {
	return s.machine.RefreshBalance(ctx)
}

// Partner returns the loyalty program of the configured partner.
func (s *Storefront) Partner(ctx context.Context) (*types.Partner, error) {
	return s.balance.Partner(ctx)
}

func (s *Storefront) State() types.State {
	return s.machine.State()
}

// Subscribe delivers every state change to ch. ch must be drained.
func (s *Storefront) Subscribe(ch chan<- types.State) event.Subscription {
	return s.machine.Subscribe(ch)
}

func (s *Storefront) Catalog() []types.CatalogItem {
	return s.catalog.Items()
}

func (s *Storefront) Network() types.Network {
	return s.ledger.GetNetwork()
}

// Close stops polling and closes client connections.
func (s *Storefront) Close() {
	s.machine.Close()
	s.ledger.Close()
}

// Version information
const Version = "1.0.0"

// GetVersion returns version information
func GetVersion() map[string]any {
	return map[string]any{
		"library_version": Version,
		"supported_networks": []string{
			types.NetworkSolanaMainnet.String(),
			types.NetworkSolanaDevnet.String(),
			types.NetworkSolanaTestnet.String(),
			types.NetworkSolanaLocal.String(),
		},
		"supported_standards": []string{"spl"},
	}
}
