package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"os"
	"strings"
	"syscall"
	"time"

	"github.com/mwork/payin-api/internal/pkg/metrics"
)

const (
	defaultTimeout = 10 * time.Second
	maxErrorBody   = 1000
)

// Config holds provider API configuration
type Config struct {
	BaseURL   string
	APIKey    string
	Timeout   time.Duration
	UserAgent string
}

// HTTPClient talks to the provider's JSON API with bearer authentication.
type HTTPClient struct {
	baseURL string
	apiKey  string
	ua      string
	http    *http.Client
}

// NewHTTPClient creates a new provider client.
func NewHTTPClient(cfg Config) *HTTPClient {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   5 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   10,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   5 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}

	return &HTTPClient{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		ua:      cfg.UserAgent,
		http: &http.Client{
			Timeout:   timeout,
			Transport: transport,
		},
	}
}

func (c *HTTPClient) Name() string { return NameHTTP }

// CreateOrder opens a payment order with the provider.
func (c *HTTPClient) CreateOrder(ctx context.Context, req CreateOrderRequest) (*Order, error) {
	if !req.Amount.IsPositive() {
		return nil, fmt.Errorf("%w: amount must be > 0", ErrProviderRejected)
	}
	if strings.TrimSpace(req.Reference) == "" {
		return nil, fmt.Errorf("%w: reference must be non-empty", ErrProviderRejected)
	}

	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("provider create order: encode: %w", err)
	}

	var out Order
	headers := map[string]string{}
	if req.IdempotencyKey != "" {
		headers["Idempotency-Key"] = req.IdempotencyKey
	}
	if err := c.do(ctx, "create_order", http.MethodPost, "/v1/payins", payload, headers, &out); err != nil {
		return nil, err
	}
	if out.OrderID == "" {
		return nil, fmt.Errorf("%w: create order: response without orderId", ErrProviderFailure)
	}
	return &out, nil
}

// GetOrder reads the provider's current view of an order.
func (c *HTTPClient) GetOrder(ctx context.Context, orderID string) (*Order, error) {
	if strings.TrimSpace(orderID) == "" {
		return nil, ErrOrderNotFound
	}
	var out Order
	if err := c.do(ctx, "get_order", http.MethodGet, "/v1/payins/"+url.PathEscape(orderID), nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetRates fetches the fee table for a market.
func (c *HTTPClient) GetRates(ctx context.Context, market string) (*RateTable, error) {
	var out RateTable
	if err := c.do(ctx, "get_rates", http.MethodGet, "/v1/rates/"+url.PathEscape(market), nil, nil, &out); err != nil {
		return nil, err
	}
	if out.Market == "" {
		out.Market = market
	}
	return &out, nil
}

func (c *HTTPClient) do(ctx context.Context, op, method, path string, payload []byte, headers map[string]string, out interface{}) error {
	if c == nil || c.http == nil {
		return fmt.Errorf("provider %s: client is not initialized", op)
	}
	if c.baseURL == "" {
		return fmt.Errorf("%w: %s: base_url is empty", ErrProviderFailure, op)
	}

	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("provider %s: request error: %w", op, err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	if c.ua != "" {
		req.Header.Set("User-Agent", c.ua)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	metrics.ProviderLatency.WithLabelValues(op).Observe(time.Since(start).Seconds())
	if err != nil {
		return classifyRequestError(ctx, op, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return classifyRequestError(ctx, op, err)
	}

	switch {
	case resp.StatusCode == http.StatusNotFound && method == http.MethodGet:
		return fmt.Errorf("%w: %s", ErrOrderNotFound, op)
	case resp.StatusCode >= 500:
		return fmt.Errorf("%w: %s: status=%d body=%s", ErrProviderFailure, op, resp.StatusCode, truncate(respBody))
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return fmt.Errorf("%w: %s: status=%d body=%s", ErrProviderRejected, op, resp.StatusCode, truncate(respBody))
	}

	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("%w: %s: failed to parse response: %v", ErrProviderFailure, op, err)
	}
	return nil
}

func classifyRequestError(ctx context.Context, op string, err error) error {
	if isTimeoutError(ctx, err) {
		return fmt.Errorf("%w: %s: %v", ErrProviderTimeout, op, err)
	}
	if isNetworkError(err) {
		return fmt.Errorf("%w: %s: network error: %v", ErrProviderFailure, op, err)
	}
	return fmt.Errorf("%w: %s: %v", ErrProviderFailure, op, err)
}

func isTimeoutError(ctx context.Context, err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(ctx.Err(), context.DeadlineExceeded) ||
		errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, os.ErrDeadlineExceeded) {
		return true
	}

	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

func isNetworkError(err error) bool {
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		err = urlErr.Err
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return true
	}

	return errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ENETUNREACH) ||
		errors.Is(err, syscall.EHOSTUNREACH)
}

func truncate(b []byte) string {
	if len(b) > maxErrorBody {
		return string(b[:maxErrorBody]) + "...<truncated>"
	}
	return string(b)
}
