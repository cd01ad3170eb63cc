package purchase

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/shopspring/decimal"
	"github.com/vitwit/storefront/clients"
	"github.com/vitwit/storefront/logger"
	"github.com/vitwit/storefront/metrics"
	"github.com/vitwit/storefront/reference"
	"github.com/vitwit/storefront/types"
	"github.com/vitwit/storefront/verification"
)

// MsgOrderFailed is shown when the order endpoint could not be reached or understood.
const MsgOrderFailed = "Error creating transaction"

// Order is a verified, wallet-ready transaction bound to one reference.
type Order struct {
	Request     types.OrderRequest
	Encoded     string
	Transaction *solana.Transaction

	dispatched atomic.Bool
}

// Requester asks the backend for the transaction of a purchase.
type Requester struct {
	backend      clients.Backend
	newReference reference.Generator
	network      string
	log          logger.Logger
	metrics      metrics.Recorder
}

func NewRequester(
	backend clients.Backend,
	gen reference.Generator,
	network types.Network,
	log logger.Logger,
	rec metrics.Recorder,
) *Requester {
	if gen == nil {
		gen = reference.New
	}
	return &Requester{
		backend:      backend,
		newReference: gen,
		network:      network.String(),
		log:          logger.OrNoop(log),
		metrics:      metrics.OrNoop(rec),
	}
}

// Prepare assembles an order request under a brand new reference.
func (r *Requester) Prepare(owner solana.PublicKey, price decimal.Decimal, partnerID string, usePoints bool) (*types.OrderRequest, error) {
	ref, err := r.newReference()
	if err != nil {
		return nil, types.NewError(types.ErrOrderFailed, MsgOrderFailed, err)
	}

	return &types.OrderRequest{
		Reference:   ref,
		PriceAmount: price,
		PartnerID:   partnerID,
		UsePoints:   usePoints,
		Account:     owner,
	}, nil
}

// Send calls the order endpoint and verifies the returned transaction is
// bound to the request. A non-200 answer is an ORDER_REJECTED error carrying
// the server message; transport, parse and binding failures are ORDER_FAILED
// or INVALID_TRANSACTION errors with a generic message.
func (r *Requester) Send(ctx context.Context, req *types.OrderRequest) (*Order, error) {
	labels := map[string]string{"network": r.network}
	fields := map[string]any{
		"reference": req.Reference.String(),
		"amount":    req.PriceAmount.String(),
		"usePoints": req.UsePoints,
	}

	start := time.Now()
	resp, err := r.backend.CreateOrder(ctx, req)
	r.metrics.ObserveLatency(metrics.OrderRequest, time.Since(start), labels)

	var rejected *clients.OrderRejectedError
	switch {
	case errors.As(err, &rejected):
		r.metrics.IncCounter(metrics.OrderRejected, labels)
		fields["status"] = rejected.StatusCode
		fields["error"] = rejected.Message
		r.log.Error("Order rejected", fields)
		return nil, types.NewError(types.ErrOrderRejected, rejected.Message, nil)
	case err != nil:
		r.metrics.IncCounter(metrics.OrderFailed, labels)
		fields["error"] = err
		r.log.Error("Order request failed", fields)
		return nil, types.NewError(types.ErrOrderFailed, MsgOrderFailed, err)
	}

	tx, err := verification.Verify(resp.Transaction, req.Account, req.Reference)
	if err != nil {
		r.metrics.IncCounter(metrics.OrderFailed, labels)
		fields["error"] = err
		r.log.Error("Order transaction rejected", fields)
		return nil, err
	}

	r.log.Debug("Order transaction received", fields)
	return &Order{
		Request:     *req,
		Encoded:     resp.Transaction,
		Transaction: tx,
	}, nil
}

// Request is Prepare followed by Send.
func (r *Requester) Request(ctx context.Context, owner solana.PublicKey, price decimal.Decimal, partnerID string, usePoints bool) (*Order, error) {
	req, err := r.Prepare(owner, price, partnerID, usePoints)
	if err != nil {
		return nil, err
	}
	return r.Send(ctx, req)
}
