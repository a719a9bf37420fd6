// Package gateway holds the exchange REST client. The client is plain
// request/response plumbing: auth header, timeout, JSON envelope decoding.
// It never retries; the lifecycle engine owns all retry decisions.
package gateway

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// OrderRecord is the exchange's view of an order, as returned inside the
// response envelope. Decimal fields accept both quoted and bare numbers.
type OrderRecord struct {
	OrderID       string          `json:"orderID"`
	Symbol        string          `json:"symbol"`
	Side          string          `json:"side"`
	Price         decimal.Decimal `json:"price"`
	Quantity      decimal.Decimal `json:"quantity"`
	Status        string          `json:"status"`
	AveragePrice  decimal.Decimal `json:"averagePrice"`
	CumQuantity   decimal.Decimal `json:"cumQuantity"`
	CumCommission decimal.Decimal `json:"cumCommission"`
	Created       time.Time       `json:"created"`
}

// OrderSpec is a limit order placement request.
type OrderSpec struct {
	Symbol   string          `json:"symbol"`
	Side     string          `json:"side"`
	Type     string          `json:"type"`
	Quantity decimal.Decimal `json:"quantity"`
	Price    decimal.Decimal `json:"price"`
}

// SymbolInfo is one entry of /api/symbols.
type SymbolInfo struct {
	Symbol string `json:"symbol"`
	Base   string `json:"base"`
	Quote  string `json:"quote"`
}

// TickerPrice is one entry of /api/prices.
type TickerPrice struct {
	Symbol    string          `json:"symbol"`
	LastTrade decimal.Decimal `json:"lastTrade"`
}

// RESTClient talks to an ATAIX-style exchange API. HTTPClient is injectable so
// tests can point it at httptest. Limiter, when set, paces every request.
type RESTClient struct {
	BaseURL    string
	APIKey     string
	HTTPClient *http.Client
	Limiter    RateLimiter
}

// NewDefaultHTTPClient returns an http.Client with the request timeout used in production.
func NewDefaultHTTPClient() *http.Client {
	return &http.Client{Timeout: 20 * time.Second}
}

type envelope struct {
	Status bool            `json:"status"`
	Result json.RawMessage `json:"result"`
}

// balanceResp has its payload at the top level, unlike the other endpoints.
type balanceResp struct {
	Status    bool            `json:"status"`
	Available decimal.Decimal `json:"available"`
}

// GetOrder fetches the authoritative state of one order.
func (c *RESTClient) GetOrder(orderID string) (*OrderRecord, error) {
	var rec OrderRecord
	if err := c.do(http.MethodGet, "/api/orders/"+orderID, nil, &rec); err != nil {
		return nil, fmt.Errorf("get order %s: %w", orderID, err)
	}
	return &rec, nil
}

// PlaceOrder submits a limit order and returns the created record.
func (c *RESTClient) PlaceOrder(spec OrderSpec) (*OrderRecord, error) {
	if spec.Type == "" {
		spec.Type = "limit"
	}
	var rec OrderRecord
	if err := c.do(http.MethodPost, "/api/orders", spec, &rec); err != nil {
		return nil, fmt.Errorf("place %s %s: %w", spec.Side, spec.Symbol, err)
	}
	if rec.OrderID == "" {
		return nil, fmt.Errorf("place %s %s: empty orderID in response", spec.Side, spec.Symbol)
	}
	return &rec, nil
}

// CancelOrder cancels an open order.
func (c *RESTClient) CancelOrder(orderID string) error {
	if err := c.do(http.MethodDelete, "/api/orders/"+orderID, nil, nil); err != nil {
		return fmt.Errorf("cancel order %s: %w", orderID, err)
	}
	return nil
}

// GetSymbols lists all trading pairs.
func (c *RESTClient) GetSymbols() ([]SymbolInfo, error) {
	var symbols []SymbolInfo
	if err := c.do(http.MethodGet, "/api/symbols", nil, &symbols); err != nil {
		return nil, fmt.Errorf("get symbols: %w", err)
	}
	return symbols, nil
}

// GetPrices lists last-trade prices for all pairs.
func (c *RESTClient) GetPrices() ([]TickerPrice, error) {
	var prices []TickerPrice
	if err := c.do(http.MethodGet, "/api/prices", nil, &prices); err != nil {
		return nil, fmt.Errorf("get prices: %w", err)
	}
	return prices, nil
}

// GetBalance returns the available balance for one currency.
func (c *RESTClient) GetBalance(currency string) (decimal.Decimal, error) {
	resp, err := c.request(http.MethodGet, "/api/user/balances/"+currency, nil)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("get balance %s: %w", currency, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return decimal.Decimal{}, fmt.Errorf("get balance %s: status %d", currency, resp.StatusCode)
	}
	var br balanceResp
	if err := json.NewDecoder(resp.Body).Decode(&br); err != nil {
		return decimal.Decimal{}, fmt.Errorf("get balance %s: decode: %w", currency, err)
	}
	if !br.Status {
		return decimal.Decimal{}, fmt.Errorf("get balance %s: rejected by exchange", currency)
	}
	return br.Available, nil
}

// do issues a request and decodes the {status, result} envelope into out.
func (c *RESTClient) do(method, endpoint string, body, out interface{}) error {
	resp, err := c.request(method, endpoint, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("status %d", resp.StatusCode)
	}
	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return fmt.Errorf("decode envelope: %w", err)
	}
	if !env.Status {
		return fmt.Errorf("rejected by exchange")
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(env.Result, out); err != nil {
		return fmt.Errorf("decode result: %w", err)
	}
	return nil
}

func (c *RESTClient) request(method, endpoint string, body interface{}) (*http.Response, error) {
	if c == nil || c.HTTPClient == nil {
		return nil, fmt.Errorf("http client not set")
	}
	if c.Limiter != nil {
		c.Limiter.Wait()
	}
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return nil, fmt.Errorf("encode body: %w", err)
		}
	}
	req, err := http.NewRequest(method, c.BaseURL+endpoint, &buf)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-API-Key", c.APIKey)
	req.Header.Set("X-Request-ID", uuid.NewString())
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return c.HTTPClient.Do(req)
}
