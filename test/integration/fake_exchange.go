package integration

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// FakeExchange is an in-process ATAIX-style exchange for integration tests.
// It serves the order endpoints plus symbols, prices, and balances, and lets
// the test fill any open order between scan cycles.
type FakeExchange struct {
	mu     sync.Mutex
	orders map[string]*fakeOrder
	nextID int

	PlaceCount  int
	CancelCount int
	QueryCount  int

	server *httptest.Server
}

type fakeOrder struct {
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

func NewFakeExchange() *FakeExchange {
	f := &FakeExchange{orders: make(map[string]*fakeOrder)}
	f.server = httptest.NewServer(http.HandlerFunc(f.handle))
	return f
}

func (f *FakeExchange) URL() string { return f.server.URL }

func (f *FakeExchange) Close() { f.server.Close() }

// Fill marks an open order as filled at avgPrice with the given commission.
func (f *FakeExchange) Fill(orderID, avgPrice, commission string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	o, ok := f.orders[orderID]
	if !ok {
		return fmt.Errorf("fill: unknown order %s", orderID)
	}
	o.Status = "filled"
	o.AveragePrice = decimal.RequireFromString(avgPrice)
	o.CumQuantity = o.Quantity
	o.CumCommission = decimal.RequireFromString(commission)
	return nil
}

// OpenOrderIDs returns the ids of all orders still in status new.
func (f *FakeExchange) OpenOrderIDs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var ids []string
	for id, o := range f.orders {
		if o.Status == "new" {
			ids = append(ids, id)
		}
	}
	return ids
}

func (f *FakeExchange) handle(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if r.Header.Get("X-API-Key") == "" {
		http.Error(w, "missing api key", http.StatusUnauthorized)
		return
	}

	path := r.URL.Path
	switch {
	case path == "/api/orders" && r.Method == http.MethodPost:
		var spec struct {
			Symbol   string          `json:"symbol"`
			Side     string          `json:"side"`
			Quantity decimal.Decimal `json:"quantity"`
			Price    decimal.Decimal `json:"price"`
		}
		if err := json.NewDecoder(r.Body).Decode(&spec); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		f.PlaceCount++
		f.nextID++
		o := &fakeOrder{
			OrderID:  fmt.Sprintf("ex-%d", f.nextID),
			Symbol:   spec.Symbol,
			Side:     spec.Side,
			Price:    spec.Price,
			Quantity: spec.Quantity,
			Status:   "new",
			Created:  time.Now().UTC(),
		}
		f.orders[o.OrderID] = o
		writeResult(w, o)

	case strings.HasPrefix(path, "/api/orders/") && r.Method == http.MethodGet:
		f.QueryCount++
		id := strings.TrimPrefix(path, "/api/orders/")
		o, ok := f.orders[id]
		if !ok {
			writeRejected(w)
			return
		}
		writeResult(w, o)

	case strings.HasPrefix(path, "/api/orders/") && r.Method == http.MethodDelete:
		f.CancelCount++
		id := strings.TrimPrefix(path, "/api/orders/")
		o, ok := f.orders[id]
		if !ok || o.Status != "new" {
			writeRejected(w)
			return
		}
		o.Status = "cancelled"
		writeResult(w, o)

	case path == "/api/symbols":
		writeResult(w, []map[string]string{
			{"symbol": "TRX/USDT", "base": "TRX", "quote": "USDT"},
		})

	case path == "/api/prices":
		writeResult(w, []map[string]string{
			{"symbol": "TRX/USDT", "lastTrade": "0.25"},
		})

	case strings.HasPrefix(path, "/api/user/balances/"):
		json.NewEncoder(w).Encode(map[string]interface{}{
			"status":    true,
			"available": "100.0",
		})

	default:
		http.NotFound(w, r)
	}
}

func writeResult(w http.ResponseWriter, result interface{}) {
	json.NewEncoder(w).Encode(map[string]interface{}{
		"status": true,
		"result": result,
	})
}

func writeRejected(w http.ResponseWriter) {
	json.NewEncoder(w).Encode(map[string]interface{}{"status": false})
}
