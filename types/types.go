package types

import (
	"errors"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/shopspring/decimal"
)

// PurchaseStatus represents the lifecycle state of a purchase attempt
type PurchaseStatus string

const (
	StatusNone                PurchaseStatus = "none"
	StatusAwaitingTransaction PurchaseStatus = "awaiting_transaction"
	StatusAwaitingSignature   PurchaseStatus = "awaiting_signature"
	StatusPolling             PurchaseStatus = "polling"
	StatusConfirmed           PurchaseStatus = "confirmed"
	StatusFailed              PurchaseStatus = "failed"
	StatusTimedOut            PurchaseStatus = "timed_out"
	StatusAbandoned           PurchaseStatus = "abandoned"
)

// IsTerminal reports whether no further transition can happen for the attempt.
func (s PurchaseStatus) IsTerminal() bool {
	return s == StatusConfirmed || s == StatusFailed || s == StatusTimedOut || s == StatusAbandoned
}

// IsLive reports whether the attempt still owns its reference.
func (s PurchaseStatus) IsLive() bool {
	return s != StatusNone && !s.IsTerminal()
}

func (s PurchaseStatus) String() string {
	return string(s)
}

// PurchaseAttempt is the single record describing the current buy action.
type PurchaseAttempt struct {
	// ID correlates log lines and metrics for one attempt.
	ID string `json:"id"`

	// Reference is the correlation key embedded in the transaction.
	Reference solana.PublicKey `json:"reference"`

	ItemID       string          `json:"itemId,omitempty"`
	PriceAmount  decimal.Decimal `json:"priceAmount"`
	UsePoints    bool            `json:"usePoints"`
	Status       PurchaseStatus  `json:"status"`
	ErrorMessage string          `json:"errorMessage,omitempty"`

	// Signature is set once the wallet has broadcast the transaction.
	Signature *solana.Signature `json:"signature,omitempty"`

	// Confirmation is set once the ledger reported a transaction for Reference.
	Confirmation *Confirmation `json:"confirmation,omitempty"`

	StartedAt time.Time `json:"startedAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Confirmation describes the ledger transaction that settled an attempt.
type Confirmation struct {
	Signature          solana.Signature `json:"signature"`
	Slot               uint64           `json:"slot"`
	BlockTime          *time.Time       `json:"blockTime,omitempty"`
	ConfirmationStatus string           `json:"confirmationStatus,omitempty"`
	Attempts           int              `json:"attempts"`
}

// BalanceSnapshot is the human-scaled loyalty token balance of the wallet.
type BalanceSnapshot struct {
	TokenName string          `json:"tokenName"`
	Amount    decimal.Decimal `json:"amount"`
}

// LoyaltyProgram is the token a partner issues as points.
type LoyaltyProgram struct {
	TokenName    string `json:"tokenName" validate:"required"`
	TokenAddress string `json:"tokenAddress" validate:"required"`
}

// Partner maps a merchant configuration to its loyalty token.
type Partner struct {
	ID                string         `json:"id" validate:"required"`
	AssociatedProgram LoyaltyProgram `json:"associatedProgram" validate:"required"`
}

// OrderRequest carries everything the order endpoint needs to build a transaction.
type OrderRequest struct {
	Reference   solana.PublicKey
	PriceAmount decimal.Decimal
	PartnerID   string
	UsePoints   bool
	Account     solana.PublicKey
}

// OrderBody is the JSON body posted to the order endpoint.
type OrderBody struct {
	Account string `json:"account"`
}

// OrderResponse is the JSON body returned by the order endpoint.
type OrderResponse struct {
	// Transaction is the base64 encoded, wallet-ready transaction.
	Transaction string `json:"transaction,omitempty"`

	// Error is the server supplied reason for a non-200 response.
	Error string `json:"error,omitempty"`
}

// State is what a storefront view renders.
type State struct {
	Attempt   PurchaseAttempt `json:"attempt"`
	Loading   bool            `json:"loading"`
	Message   string          `json:"message,omitempty"`
	Balance   BalanceSnapshot `json:"balance"`
	UsePoints bool            `json:"usePoints"`
	Connected bool            `json:"connected"`

	// Generation grows with every attempt started or cancelled. A state
	// with a lower generation than one already seen is stale.
	Generation uint64 `json:"generation"`
}

// CatalogItem is a purchasable product.
type CatalogItem struct {
	ID       string          `json:"id" mapstructure:"id" validate:"required"`
	Name     string          `json:"name" mapstructure:"name" validate:"required"`
	PriceUSD decimal.Decimal `json:"priceUsd" mapstructure:"price_usd"`
	Image    string          `json:"image,omitempty" mapstructure:"image"`
}

// PollConfig bounds the confirmation poller.
type PollConfig struct {
	// Interval is the first delay between ledger queries.
	Interval time.Duration `json:"interval" mapstructure:"interval" validate:"gt=0"`

	// MaxInterval caps the backoff growth.
	MaxInterval time.Duration `json:"maxInterval" mapstructure:"max_interval" validate:"gtefield=Interval"`

	// Multiplier grows the delay after every empty query. 1 keeps it fixed.
	Multiplier float64 `json:"multiplier" mapstructure:"multiplier" validate:"gte=1"`

	// Timeout gives up polling after this long. Zero polls until cancelled.
	Timeout time.Duration `json:"timeout" mapstructure:"timeout" validate:"gte=0"`
}

// Config contains global configuration for the storefront
type Config struct {
	BackendAPI     string        `json:"backendApi" mapstructure:"backend_api" validate:"required,url"`
	PartnerID      string        `json:"partnerId" mapstructure:"partner_id" validate:"required"`
	Network        Network       `json:"network" mapstructure:"network" validate:"required"`
	RPCUrl         string        `json:"rpcUrl,omitempty" mapstructure:"rpc_url" validate:"omitempty,url"`
	Commitment     string        `json:"commitment,omitempty" mapstructure:"commitment" validate:"omitempty,oneof=processed confirmed finalized"`
	RequestTimeout time.Duration `json:"requestTimeout,omitempty" mapstructure:"request_timeout" validate:"gte=0"`
	PartnerTTL     time.Duration `json:"partnerTtl,omitempty" mapstructure:"partner_ttl" validate:"gte=0"`
	Poll           PollConfig    `json:"poll" mapstructure:"poll"`
	LogLevel       string        `json:"logLevel,omitempty" mapstructure:"log_level" validate:"omitempty,oneof=debug info warn error"`
	LogFile        string        `json:"logFile,omitempty" mapstructure:"log_file"`
	EnableMetrics  bool          `json:"enableMetrics,omitempty" mapstructure:"enable_metrics"`
	KeypairPath    string        `json:"keypairPath,omitempty" mapstructure:"keypair_path"`
	Catalog        []CatalogItem `json:"catalog,omitempty" mapstructure:"catalog" validate:"dive"`
}

// DefaultPollConfig mirrors the 500 ms cadence of the storefront, bounded.
func DefaultPollConfig() PollConfig {
	return PollConfig{
		Interval:    500 * time.Millisecond,
		MaxInterval: 5 * time.Second,
		Multiplier:  1.5,
		Timeout:     2 * time.Minute,
	}
}

// Error types
type StorefrontError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Err     error  `json:"-"`
}

func (e *StorefrontError) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *StorefrontError) Unwrap() error {
	return e.Err
}

// Common error codes
const (
	ErrWalletNotConnected  = "WALLET_NOT_CONNECTED"
	ErrOrderRejected       = "ORDER_REJECTED"
	ErrOrderFailed         = "ORDER_FAILED"
	ErrInvalidTransaction  = "INVALID_TRANSACTION"
	ErrWalletRejected      = "WALLET_REJECTED"
	ErrConfirmationTimeout = "CONFIRMATION_TIMEOUT"
	ErrAttemptSuperseded   = "ATTEMPT_SUPERSEDED"
	ErrAlreadyDispatched   = "ALREADY_DISPATCHED"
	ErrUnknownItem         = "UNKNOWN_ITEM"
	ErrConfigError         = "CONFIG_ERROR"
)

// NewError builds a coded error, optionally wrapping a cause.
func NewError(code, message string, err error) *StorefrontError {
	return &StorefrontError{Code: code, Message: message, Err: err}
}

// IsCode reports whether err carries the given StorefrontError code.
func IsCode(err error, code string) bool {
	var se *StorefrontError
	return errors.As(err, &se) && se.Code == code
}
