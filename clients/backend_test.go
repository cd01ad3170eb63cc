package clients

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vitwit/storefront/types"
)

func TestHTTPBackend_CreateOrder(t *testing.T) {
	ref := solana.NewWallet().PublicKey()
	account := solana.NewWallet().PublicKey()

	var gotQuery map[string]string
	var gotBody types.OrderBody

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/transaction", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		q := r.URL.Query()
		gotQuery = map[string]string{
			"reference": q.Get("reference"),
			"amount":    q.Get("amount"),
			"pid":       q.Get("pid"),
			"usePoints": q.Get("usePoints"),
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"transaction":"AQID"}`))
	}))
	defer srv.Close()

	b := NewHTTPBackend(srv.URL+"/", nil, 5*time.Second)
	resp, err := b.CreateOrder(context.Background(), &types.OrderRequest{
		Reference:   ref,
		PriceAmount: decimal.NewFromInt(10),
		PartnerID:   "partner-1",
		UsePoints:   true,
		Account:     account,
	})
	require.NoError(t, err)
	assert.Equal(t, "AQID", resp.Transaction)

	assert.Equal(t, map[string]string{
		"reference": ref.String(),
		"amount":    "10",
		"pid":       "partner-1",
		"usePoints": "true",
	}, gotQuery)
	assert.Equal(t, account.String(), gotBody.Account)
}

func TestHTTPBackend_CreateOrderRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"insufficient funds"}`))
	}))
	defer srv.Close()

	b := NewHTTPBackend(srv.URL, nil, 5*time.Second)
	resp, err := b.CreateOrder(context.Background(), &types.OrderRequest{
		Reference:   solana.NewWallet().PublicKey(),
		PriceAmount: decimal.NewFromInt(10),
		Account:     solana.NewWallet().PublicKey(),
	})

	var rejected *OrderRejectedError
	require.True(t, errors.As(err, &rejected))
	assert.Equal(t, http.StatusBadRequest, rejected.StatusCode)
	assert.Equal(t, "insufficient funds", rejected.Message)
	require.NotNil(t, resp)
	assert.Equal(t, "insufficient funds", resp.Error)
}

func TestHTTPBackend_CreateOrderMalformed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`not json`))
	}))
	defer srv.Close()

	b := NewHTTPBackend(srv.URL, nil, 5*time.Second)
	_, err := b.CreateOrder(context.Background(), &types.OrderRequest{
		Reference:   solana.NewWallet().PublicKey(),
		PriceAmount: decimal.NewFromInt(1),
		Account:     solana.NewWallet().PublicKey(),
	})
	require.Error(t, err)

	var rejected *OrderRejectedError
	assert.False(t, errors.As(err, &rejected))
}

func TestHTTPBackend_GetPartner(t *testing.T) {
	mint := solana.NewWallet().PublicKey()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		if r.URL.Path != "/partner/p1" {
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"error":"no such partner"}`))
			return
		}
		_, _ = w.Write([]byte(`{"id":"p1","associatedProgram":{"tokenName":"MOON","tokenAddress":"` + mint.String() + `"}}`))
	}))
	defer srv.Close()

	b := NewHTTPBackend(srv.URL, nil, 5*time.Second)

	p, err := b.GetPartner(context.Background(), "p1")
	require.NoError(t, err)
	assert.Equal(t, "p1", p.ID)
	assert.Equal(t, mint.String(), p.AssociatedProgram.TokenAddress)

	_, err = b.GetPartner(context.Background(), "p2")
	assert.Error(t, err)
}
