package metrics

import "time"

// Event names
const (
	PurchaseStarted   = "purchase_started"
	OrderRejected     = "order_rejected"
	OrderFailed       = "order_failed"
	DispatchRejected  = "dispatch_rejected"
	PurchaseConfirmed = "purchase_confirmed"
	PurchaseTimedOut  = "purchase_timed_out"
	PurchaseAbandoned = "purchase_superseded"
	PollAttempt       = "poll_attempt"
	BalanceReadFailed = "balance_read_failed"
)

// Latency names
const (
	OrderRequest = "order_request"
	Confirmation = "confirmation"
	BalanceRead  = "balance_read"
)

type Recorder interface {
	IncCounter(name string, labels map[string]string)
	ObserveLatency(name string, duration time.Duration, labels map[string]string)
}
