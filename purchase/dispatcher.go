package purchase

import (
	"context"
	"fmt"

	"github.com/gagliardetto/solana-go"
	"github.com/vitwit/storefront/clients"
	"github.com/vitwit/storefront/logger"
	"github.com/vitwit/storefront/metrics"
	"github.com/vitwit/storefront/types"
)

// Dispatcher hands order transactions to the wallet.
type Dispatcher struct {
	network string
	log     logger.Logger
	metrics metrics.Recorder
}

func NewDispatcher(network types.Network, log logger.Logger, rec metrics.Recorder) *Dispatcher {
	return &Dispatcher{
		network: network.String(),
		log:     logger.OrNoop(log),
		metrics: metrics.OrNoop(rec),
	}
}

// Dispatch signs and broadcasts the order through wallet. Each order is
// dispatched at most once; a rejected order is spent and a retry needs a
// fresh order.
func (d *Dispatcher) Dispatch(ctx context.Context, wallet clients.Wallet, order *Order) (solana.Signature, error) {
	if !order.dispatched.CompareAndSwap(false, true) {
		return solana.Signature{}, types.NewError(types.ErrAlreadyDispatched, "order transaction already dispatched", nil)
	}

	fields := map[string]any{"reference": order.Request.Reference.String()}

	owner, ok := wallet.PublicKey()
	if !ok || !owner.Equals(order.Request.Account) {
		d.log.Warn("Wallet changed before signing", fields)
		return solana.Signature{}, types.NewError(types.ErrWalletRejected, MsgNotSent,
			fmt.Errorf("wallet is no longer %s", order.Request.Account))
	}

	sig, err := wallet.SignAndSend(ctx, order.Transaction)
	if err != nil {
		d.metrics.IncCounter(metrics.DispatchRejected, map[string]string{"network": d.network})
		fields["error"] = err
		d.log.Error("Wallet did not send transaction", fields)
		return solana.Signature{}, types.NewError(types.ErrWalletRejected, MsgNotSent, err)
	}

	fields["signature"] = sig.String()
	d.log.Info("Transaction sent", fields)
	return sig, nil
}
