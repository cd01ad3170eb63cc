package storefront

import (
	"net/http"
	"time"

	"github.com/vitwit/storefront/clients"
	"github.com/vitwit/storefront/logger"
	"github.com/vitwit/storefront/metrics"
	"github.com/vitwit/storefront/reference"
)

type Option func(*Storefront)

func WithLogger(l logger.Logger) Option {
	return func(s *Storefront) {
		s.logger = l
	}
}

func WithMetrics(r metrics.Recorder) Option {
	return func(s *Storefront) {
		s.metrics = r
	}
}

// WithTimeout bounds each backend request.
func WithTimeout(t time.Duration) Option {
	return func(s *Storefront) {
		s.timeout = t
	}
}

func WithHTTPClient(c *http.Client) Option {
	return func(s *Storefront) {
		s.httpClient = c
	}
}

// WithLedger replaces the JSON-RPC ledger client.
func WithLedger(l clients.Ledger) Option {
	return func(s *Storefront) {
		s.ledger = l
	}
}

// WithBackend replaces the HTTP merchant backend.
func WithBackend(b clients.Backend) Option {
	return func(s *Storefront) {
		s.backend = b
	}
}

func WithReferenceGenerator(g reference.Generator) Option {
	return func(s *Storefront) {
		s.newReference = g
	}
}
