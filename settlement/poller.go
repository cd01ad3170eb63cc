package settlement

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gagliardetto/solana-go"
	"github.com/vitwit/storefront/clients"
	"github.com/vitwit/storefront/logger"
	"github.com/vitwit/storefront/metrics"
	"github.com/vitwit/storefront/types"
)

// Poller watches the ledger for the transaction carrying a reference.
type Poller struct {
	ledger  clients.Ledger
	cfg     types.PollConfig
	log     logger.Logger
	metrics metrics.Recorder
}

// NewPoller creates a poller. Zero fields of cfg fall back to the defaults,
// except Timeout where zero means poll until the context is cancelled.
func NewPoller(ledger clients.Ledger, cfg types.PollConfig, log logger.Logger, rec metrics.Recorder) *Poller {
	def := types.DefaultPollConfig()
	if cfg.Interval <= 0 {
		cfg.Interval = def.Interval
	}
	if cfg.MaxInterval < cfg.Interval {
		cfg.MaxInterval = cfg.Interval
	}
	if cfg.Multiplier < 1 {
		cfg.Multiplier = def.Multiplier
	}

	return &Poller{
		ledger:  ledger,
		cfg:     cfg,
		log:     logger.OrNoop(log),
		metrics: metrics.OrNoop(rec),
	}
}

func (p *Poller) newBackOff() backoff.BackOff {
	b := &backoff.ExponentialBackOff{
		InitialInterval:     p.cfg.Interval,
		RandomizationFactor: 0,
		Multiplier:          p.cfg.Multiplier,
		MaxInterval:         p.cfg.MaxInterval,
		MaxElapsedTime:      p.cfg.Timeout,
		Stop:                backoff.Stop,
		Clock:               backoff.SystemClock,
	}
	b.Reset()
	return b
}

// Run blocks until the ledger reports a transaction for reference. A lookup
// that finds nothing is expected; any other lookup failure is logged and
// retried. Run returns ctx.Err() when cancelled and a CONFIRMATION_TIMEOUT
// error once the configured timeout has elapsed.
func (p *Poller) Run(ctx context.Context, reference solana.PublicKey) (*types.Confirmation, error) {
	labels := map[string]string{"network": p.ledger.GetNetwork().String()}
	fields := map[string]any{"reference": reference.String()}

	if p.cfg.Timeout == 0 {
		p.log.Warn("Polling for confirmation without a timeout", fields)
	}

	b := p.newBackOff()
	start := time.Now()
	timer := time.NewTimer(b.NextBackOff())
	defer timer.Stop()

	for attempt := 1; ; attempt++ {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-timer.C:
		}

		p.metrics.IncCounter(metrics.PollAttempt, labels)
		c, err := p.ledger.FindReference(ctx, reference)
		switch {
		case err == nil:
			c.Attempts = attempt
			p.metrics.ObserveLatency(metrics.Confirmation, time.Since(start), labels)
			return c, nil
		case ctx.Err() != nil:
			return nil, ctx.Err()
		case errors.Is(err, clients.ErrReferenceNotFound):
		default:
			p.log.Warn("Reference lookup failed, retrying", map[string]any{
				"reference": reference.String(),
				"attempt":   attempt,
				"error":     err,
			})
		}

		next := b.NextBackOff()
		if next == backoff.Stop {
			return nil, types.NewError(
				types.ErrConfirmationTimeout,
				fmt.Sprintf("no transaction for reference %s after %d lookups", reference, attempt),
				nil,
			)
		}
		timer.Reset(next)
	}
}
