package clients

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/vitwit/storefront/types"
	"github.com/vitwit/storefront/utils"
)

// maxResponseBytes bounds backend response bodies.
const maxResponseBytes = 1 << 20

// HTTPBackend talks to the merchant API over JSON/HTTP.
type HTTPBackend struct {
	baseURL string
	client  *http.Client
}

var _ Backend = (*HTTPBackend)(nil)

// NewHTTPBackend creates a backend client. A nil httpClient gets one with timeout.
func NewHTTPBackend(baseURL string, httpClient *http.Client, timeout time.Duration) *HTTPBackend {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: timeout}
	}
	return &HTTPBackend{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  httpClient,
	}
}

// CreateOrder asks the backend to build the transaction for req. A non-200
// answer yields both the parsed response and an *OrderRejectedError.
func (b *HTTPBackend) CreateOrder(ctx context.Context, req *types.OrderRequest) (*types.OrderResponse, error) {
	params := url.Values{}
	params.Set("reference", req.Reference.String())
	params.Set("amount", req.PriceAmount.String())
	params.Set("pid", req.PartnerID)
	params.Set("usePoints", strconv.FormatBool(req.UsePoints))

	body, err := json.Marshal(types.OrderBody{Account: req.Account.String()})
	if err != nil {
		return nil, fmt.Errorf("failed to encode order body: %w", err)
	}

	endpoint := b.baseURL + "/transaction?" + params.Encode()
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create order request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	status, data, err := b.do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("order request failed: %w", err)
	}

	ok := status == http.StatusOK
	resp, err := utils.ParseOrderResponse(data, ok)
	if err != nil {
		return nil, fmt.Errorf("order response (status %d): %w", status, err)
	}

	if !ok {
		return resp, &OrderRejectedError{StatusCode: status, Message: resp.Error}
	}

	return resp, nil
}

// GetPartner fetches the partner configuration and its loyalty program.
func (b *HTTPBackend) GetPartner(ctx context.Context, partnerID string) (*types.Partner, error) {
	endpoint := b.baseURL + "/partner/" + url.PathEscape(partnerID)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create partner request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	status, data, err := b.do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("partner request failed: %w", err)
	}

	if status != http.StatusOK {
		return nil, fmt.Errorf("error getting partner %s, got status %d: %s", partnerID, status, data)
	}

	return utils.ParsePartner(data)
}

func (b *HTTPBackend) do(req *http.Request) (int, []byte, error) {
	resp, err := b.client.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return 0, nil, fmt.Errorf("error reading body: %w", err)
	}

	return resp.StatusCode, data, nil
}
