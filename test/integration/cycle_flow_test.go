package integration

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/shopspring/decimal"

	"cycle-trader-go/gateway"
	"cycle-trader-go/infrastructure/logger"
	"cycle-trader-go/internal/engine"
	"cycle-trader-go/ledger"
	"cycle-trader-go/order"
	"cycle-trader-go/report"
)

func newFlowEngine(t *testing.T, ex *FakeExchange) (*engine.Engine, *order.Store, *ledger.Ledger) {
	t.Helper()
	dir := t.TempDir()
	store := order.NewStore(filepath.Join(dir, "orders.json"))
	hist := ledger.New(filepath.Join(dir, "history.txt"))

	client := &gateway.RESTClient{
		BaseURL:    ex.URL(),
		APIKey:     "test-key",
		HTTPClient: gateway.NewDefaultHTTPClient(),
	}
	eng, err := engine.New(client, store, hist, logger.NewNop(), nil, engine.Config{})
	if err != nil {
		t.Fatalf("init engine: %v", err)
	}
	return eng, store, hist
}

// TestFullCycleOverREST drives one complete lineage through the real REST
// client against an in-process exchange: buy, reprice, fill, convert, sell
// fill, report.
func TestFullCycleOverREST(t *testing.T) {
	ex := NewFakeExchange()
	defer ex.Close()
	eng, store, hist := newFlowEngine(t, ex)

	confirmAll := func(order.Order) bool { return true }
	confirmNone := func(order.Order) bool { return false }
	markup := func(order.Order) (decimal.Decimal, bool) {
		return decimal.NewFromInt(10), true
	}

	// Opening buy: 0.25 last price at 4% discount.
	buy, err := eng.PlaceBuy("TRX/USDT", decimal.RequireFromString("0.25"),
		decimal.NewFromInt(4), decimal.NewFromInt(100))
	if err != nil {
		t.Fatalf("place buy: %v", err)
	}
	if !buy.Price.Equal(decimal.RequireFromString("0.24")) {
		t.Fatalf("buy price = %s, want 0.24", buy.Price)
	}

	// Cycle 1: still unfilled, operator agrees to chase the price up.
	if err := eng.ScanBuys(confirmAll); err != nil {
		t.Fatalf("scan buys: %v", err)
	}
	open := ex.OpenOrderIDs()
	if len(open) != 1 || open[0] == buy.OrderID {
		t.Fatalf("expected one replacement order, got %v", open)
	}

	// Cycle 2: the replacement fills at a slightly better price.
	if err := ex.Fill(open[0], "0.2420", "0.0005"); err != nil {
		t.Fatalf("fill buy: %v", err)
	}
	if err := eng.ScanBuys(confirmNone); err != nil {
		t.Fatalf("scan buys: %v", err)
	}
	if err := eng.ConvertFills(markup); err != nil {
		t.Fatalf("convert: %v", err)
	}

	orders, err := store.LoadAll()
	if err != nil {
		t.Fatalf("load store: %v", err)
	}
	if len(orders) != 1 || orders[0].Side != order.SideSell {
		t.Fatalf("expected one sell in store, got %+v", orders)
	}
	sell := orders[0]
	if sell.OriginalID != buy.OrderID {
		t.Fatalf("lineage lost: sell originalID = %s, want %s", sell.OriginalID, buy.OrderID)
	}
	// 0.242 * 1.10 = 0.2662
	if !sell.Price.Equal(decimal.RequireFromString("0.2662")) {
		t.Fatalf("sell price = %s, want 0.2662", sell.Price)
	}

	// Cycle 3: the sell fills and the lineage closes.
	if err := ex.Fill(sell.OrderID, "0.2662", "0.0006"); err != nil {
		t.Fatalf("fill sell: %v", err)
	}
	if err := eng.ScanSells(confirmNone); err != nil {
		t.Fatalf("scan sells: %v", err)
	}
	orders, err = store.LoadAll()
	if err != nil {
		t.Fatalf("load store: %v", err)
	}
	if len(orders) != 0 {
		t.Fatalf("store should be empty after close, got %+v", orders)
	}

	// The whole chain shares one lineage id in the history file.
	events, err := hist.ReadAll()
	if err != nil {
		t.Fatalf("read history: %v", err)
	}
	wantKinds := []ledger.Kind{
		ledger.KindBuyPlaced,
		ledger.KindBuyRepriced,
		ledger.KindBuyFilled,
		ledger.KindSellPlaced,
		ledger.KindSellFilled,
	}
	if len(events) != len(wantKinds) {
		t.Fatalf("got %d events, want %d: %+v", len(events), len(wantKinds), events)
	}
	for i, ev := range events {
		if ev.Kind != wantKinds[i] {
			t.Fatalf("event %d kind = %s, want %s", i, ev.Kind, wantKinds[i])
		}
		if ev.OriginalID != buy.OrderID {
			t.Fatalf("event %d originalID = %s, want %s", i, ev.OriginalID, buy.OrderID)
		}
	}

	raw, err := os.ReadFile(hist.Path())
	if err != nil {
		t.Fatalf("read history file: %v", err)
	}
	if !strings.Contains(string(raw), "УСПЕШНАЯ ПРОДАЖА: OrderID "+sell.OrderID) {
		t.Fatalf("history file missing sell fill line:\n%s", raw)
	}

	// The report sees one closed, profitable lineage.
	summary := report.Aggregate(events)
	if len(summary.Lineages) != 1 {
		t.Fatalf("expected 1 lineage, got %d", len(summary.Lineages))
	}
	lin := summary.Lineages[0]
	if lin.Mismatch {
		t.Fatalf("closed lineage must not be mismatched")
	}
	// spent = 0.242*100 + 0.0005, income = 0.2662*100 - 0.0006
	if !lin.Profit.Equal(decimal.RequireFromString("2.4189")) {
		t.Fatalf("profit = %s, want 2.4189", lin.Profit)
	}
	var buf bytes.Buffer
	if err := report.RenderHTML(&buf, summary); err != nil {
		t.Fatalf("render report: %v", err)
	}
	if !strings.Contains(buf.String(), "OriginalID: "+buy.OrderID) {
		t.Fatalf("report missing lineage section")
	}
}

// TestScanSurvivesExchangeRejection checks that a rejected query leaves the
// order open for the next cycle instead of failing the scan.
func TestScanSurvivesExchangeRejection(t *testing.T) {
	ex := NewFakeExchange()
	defer ex.Close()
	eng, store, _ := newFlowEngine(t, ex)

	buy, err := eng.PlaceBuy("TRX/USDT", decimal.RequireFromString("0.25"),
		decimal.NewFromInt(2), decimal.NewFromInt(10))
	if err != nil {
		t.Fatalf("place buy: %v", err)
	}

	// Simulate the exchange forgetting the order: delete it server-side.
	ex.mu.Lock()
	delete(ex.orders, buy.OrderID)
	ex.mu.Unlock()

	if err := eng.ScanBuys(func(order.Order) bool { return true }); err != nil {
		t.Fatalf("scan must not fail on a per-order error: %v", err)
	}
	orders, err := store.LoadAll()
	if err != nil {
		t.Fatalf("load store: %v", err)
	}
	if len(orders) != 1 || orders[0].OrderID != buy.OrderID {
		t.Fatalf("order must stay tracked for the next cycle, got %+v", orders)
	}
}
