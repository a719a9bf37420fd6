// Package engine drives every tracked order through its lifecycle: placement,
// polling, repricing, buy→sell conversion, and closure. All decisions that need
// an operator (reprice confirmation, sell markup) are injected callbacks, so
// the state machine itself runs the same under a terminal, a daemon policy, or
// a test.
package engine

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"cycle-trader-go/gateway"
	"cycle-trader-go/infrastructure/logger"
	"cycle-trader-go/ledger"
	"cycle-trader-go/monitor"
	"cycle-trader-go/order"
)

// Gateway is the slice of the exchange client the engine needs. The exchange is
// the source of truth for fills; the engine never invents a status.
type Gateway interface {
	GetOrder(orderID string) (*gateway.OrderRecord, error)
	PlaceOrder(spec gateway.OrderSpec) (*gateway.OrderRecord, error)
	CancelOrder(orderID string) error
}

// ConfirmFunc decides whether one open order may be cancelled and replaced.
// Called at most once per candidate per scan cycle.
type ConfirmFunc func(order.Order) bool

// MarkupFunc supplies the sell markup percent for one filled buy. Returning
// false leaves the buy in the store for a later conversion pass.
type MarkupFunc func(order.Order) (decimal.Decimal, bool)

// Config holds the engine knobs.
type Config struct {
	// RepriceStepPct is the percentage a replacement order moves by:
	// up for buys, down for sells. Defaults to 1.
	RepriceStepPct decimal.Decimal
}

// Engine is the order lifecycle state machine.
type Engine struct {
	gw      Gateway
	store   *order.Store
	history *ledger.Ledger
	log     *logger.Logger
	mon     *monitor.Monitor
	stepPct decimal.Decimal
}

// New validates the wiring and returns an engine. The monitor may be nil.
func New(gw Gateway, store *order.Store, history *ledger.Ledger, log *logger.Logger, mon *monitor.Monitor, cfg Config) (*Engine, error) {
	if gw == nil {
		return nil, errors.New("gateway is required")
	}
	if store == nil {
		return nil, errors.New("order store is required")
	}
	if history == nil {
		return nil, errors.New("ledger is required")
	}
	if log == nil {
		log = logger.NewNop()
	}
	step := cfg.RepriceStepPct
	if step.IsZero() {
		step = decimal.NewFromInt(1)
	}
	if step.IsNegative() {
		return nil, fmt.Errorf("repriceStepPct must be positive, got %s", step)
	}
	return &Engine{gw: gw, store: store, history: history, log: log, mon: mon, stepPct: step}, nil
}

// PlaceBuy places the opening buy of a new lineage at lastPrice discounted by
// discountPct percent, persists it, and logs a buy-placed event.
func (e *Engine) PlaceBuy(symbol string, lastPrice, discountPct, quantity decimal.Decimal) (order.Order, error) {
	price := order.MarkedUp(lastPrice, discountPct.Neg())
	rec, err := e.placeOrder(gateway.OrderSpec{
		Symbol:   symbol,
		Side:     string(order.SideBuy),
		Type:     "limit",
		Quantity: quantity,
		Price:    price,
	})
	if err != nil {
		return order.Order{}, err
	}
	o := recordToOrder(rec, order.SideBuy, rec.OrderID)
	if err := e.store.Upsert(o); err != nil {
		return order.Order{}, fmt.Errorf("persist buy %s: %w", o.OrderID, err)
	}
	e.appendEvent(ledger.KindBuyPlaced, o, o.Price, o.Quantity, o.Commission, o.Created)
	if e.mon != nil {
		e.mon.RecordOrderPlaced(string(order.SideBuy))
	}
	e.log.Info("buy placed",
		zap.String("orderID", o.OrderID),
		zap.String("symbol", o.Symbol),
		zap.String("price", o.Price.String()),
		zap.String("quantity", o.Quantity.String()))
	return o, nil
}

// ScanBuys polls every open buy once. Fills are logged and marked in place for
// the conversion pass; unfilled buys are repriced upward when confirm approves;
// anything else is left to the exchange. One order's failure never blocks the rest.
func (e *Engine) ScanBuys(confirm ConfirmFunc) error {
	orders, err := e.store.LoadAll()
	if err != nil {
		return fmt.Errorf("buy scan: %w", err)
	}
	for _, o := range orders {
		if o.Side != order.SideBuy {
			continue
		}
		if o.Status == order.StatusFilled {
			// Already logged on a previous cycle; waiting for conversion.
			continue
		}
		rec, err := e.getOrder(o.OrderID)
		if err != nil {
			e.skipOrder(o, "poll failed", err)
			continue
		}
		switch order.NormalizeStatus(rec.Status) {
		case order.StatusFilled:
			e.handleBuyFill(o, rec)
		case order.StatusNew:
			if confirm != nil && confirm(o) {
				e.reprice(o, rec)
			}
		default:
			e.log.Info("order in unexpected status, leaving unchanged",
				zap.String("orderID", o.OrderID),
				zap.String("status", rec.Status))
		}
	}
	e.finishScan("buy")
	return nil
}

// ConvertFills turns filled buys into sell orders at fill price plus the markup
// percent supplied per order. The filled buy leaves the store only after the
// sell is placed and logged.
func (e *Engine) ConvertFills(markup MarkupFunc) error {
	if markup == nil {
		return errors.New("markup func is required")
	}
	orders, err := e.store.LoadAll()
	if err != nil {
		return fmt.Errorf("convert pass: %w", err)
	}
	for _, o := range orders {
		if o.Side != order.SideBuy || o.Status != order.StatusFilled {
			continue
		}
		pct, ok := markup(o)
		if !ok {
			continue
		}
		if !pct.IsPositive() {
			e.log.Warn("markup must be positive, skipping conversion",
				zap.String("orderID", o.OrderID),
				zap.String("markup", pct.String()))
			continue
		}
		sellPrice := order.MarkedUp(o.Price, pct)
		rec, err := e.placeOrder(gateway.OrderSpec{
			Symbol:   o.Symbol,
			Side:     string(order.SideSell),
			Type:     "limit",
			Quantity: o.Quantity,
			Price:    sellPrice,
		})
		if err != nil {
			e.skipOrder(o, "sell placement failed", err)
			continue
		}
		sell := recordToOrder(rec, order.SideSell, o.Lineage())
		e.appendEvent(ledger.KindSellPlaced, sell, sell.Price, sell.Quantity, sell.Commission, sell.Created)
		if err := e.store.Replace(o.OrderID, sell); err != nil {
			e.skipOrder(o, "store update failed after sell placement", err)
			continue
		}
		if e.mon != nil {
			e.mon.RecordOrderPlaced(string(order.SideSell))
		}
		e.log.Info("buy converted to sell",
			zap.String("buyOrderID", o.OrderID),
			zap.String("sellOrderID", sell.OrderID),
			zap.String("sellPrice", sell.Price.String()))
	}
	e.finishScan("convert")
	return nil
}

// ScanSells polls every open sell once. Fills close the lineage: the event is
// logged with the exchange's fill data, then the order leaves the store for
// good. Unfilled sells are repriced downward when confirm approves.
func (e *Engine) ScanSells(confirm ConfirmFunc) error {
	orders, err := e.store.LoadAll()
	if err != nil {
		return fmt.Errorf("sell scan: %w", err)
	}
	for _, o := range orders {
		if o.Side != order.SideSell || o.Status != order.StatusNew {
			continue
		}
		rec, err := e.getOrder(o.OrderID)
		if err != nil {
			e.skipOrder(o, "poll failed", err)
			continue
		}
		switch order.NormalizeStatus(rec.Status) {
		case order.StatusFilled:
			e.handleSellFill(o, rec)
		case order.StatusNew:
			if confirm != nil && confirm(o) {
				e.reprice(o, rec)
			}
		default:
			e.log.Info("order in unexpected status, leaving unchanged",
				zap.String("orderID", o.OrderID),
				zap.String("status", rec.Status))
		}
	}
	e.finishScan("sell")
	return nil
}

// handleBuyFill logs the fill with the exchange's numbers and marks the order
// filled in place. The order stays in the store as input for ConvertFills.
func (e *Engine) handleBuyFill(o order.Order, rec *gateway.OrderRecord) {
	price, qty, comm, ts := fillData(o, rec)
	if !e.appendEvent(ledger.KindBuyFilled, o, price, qty, comm, ts) {
		// Retry on the next cycle; status stays new so the poll repeats.
		return
	}
	o.Status = order.StatusFilled
	o.Price = price
	o.Quantity = qty
	o.Commission = comm
	if err := e.store.Upsert(o); err != nil {
		e.skipOrder(o, "store update failed after fill", err)
		return
	}
	if e.mon != nil {
		e.mon.RecordOrderFilled(string(order.SideBuy))
	}
	e.log.Info("buy filled",
		zap.String("orderID", o.OrderID),
		zap.String("price", price.String()),
		zap.String("commission", comm.String()))
}

// handleSellFill logs the fill and removes the order: the lineage is closed and
// the ledger is its only record from here on.
func (e *Engine) handleSellFill(o order.Order, rec *gateway.OrderRecord) {
	price, qty, comm, ts := fillData(o, rec)
	if !e.appendEvent(ledger.KindSellFilled, o, price, qty, comm, ts) {
		return
	}
	if err := e.store.Remove(o.OrderID); err != nil {
		e.skipOrder(o, "store removal failed after fill", err)
		return
	}
	if e.mon != nil {
		e.mon.RecordOrderFilled(string(order.SideSell))
	}
	e.log.Info("sell filled, lineage closed",
		zap.String("orderID", o.OrderID),
		zap.String("originalID", o.Lineage()),
		zap.String("price", price.String()))
}

// reprice cancels o and places a replacement one step away from the old price:
// +step% for buys (chasing up), −step% for sells (chasing down). The lineage id
// carries over so the chain stays one unit of accounting.
func (e *Engine) reprice(o order.Order, rec *gateway.OrderRecord) {
	if err := e.cancelOrder(o.OrderID); err != nil {
		e.skipOrder(o, "cancel failed", err)
		return
	}
	repriceKind := ledger.KindBuyRepriced
	newPrice := order.RepricedUp(o.Price, e.stepPct)
	if o.Side == order.SideSell {
		repriceKind = ledger.KindSellRepriced
		newPrice = order.RepricedDown(o.Price, e.stepPct)
	}
	ts := o.Created
	if rec != nil && !rec.Created.IsZero() {
		ts = rec.Created
	}
	e.appendEvent(repriceKind, o, o.Price, o.Quantity, o.Commission, ts)

	newRec, err := e.placeOrder(gateway.OrderSpec{
		Symbol:   o.Symbol,
		Side:     string(o.Side),
		Type:     "limit",
		Quantity: o.Quantity,
		Price:    newPrice,
	})
	if err != nil {
		// The old order is already cancelled on the exchange; drop it from the
		// store so the next cycle does not poll a dead id.
		if rmErr := e.store.Remove(o.OrderID); rmErr != nil {
			e.log.Error("store removal failed after cancel", zap.String("orderID", o.OrderID), zap.Error(rmErr))
		}
		e.skipOrder(o, "replacement placement failed", err)
		return
	}
	replacement := recordToOrder(newRec, o.Side, o.Lineage())
	if err := e.store.Replace(o.OrderID, replacement); err != nil {
		e.skipOrder(o, "store replace failed", err)
		return
	}
	if e.mon != nil {
		e.mon.RecordOrderRepriced(string(o.Side))
		e.mon.RecordOrderPlaced(string(o.Side))
	}
	e.log.Info("order repriced",
		zap.String("oldOrderID", o.OrderID),
		zap.String("newOrderID", replacement.OrderID),
		zap.String("originalID", replacement.OriginalID),
		zap.String("oldPrice", o.Price.String()),
		zap.String("newPrice", replacement.Price.String()))
}

// Gateway wrappers counting requests and failures per action.

func (e *Engine) getOrder(orderID string) (*gateway.OrderRecord, error) {
	e.countGateway("get")
	rec, err := e.gw.GetOrder(orderID)
	if err != nil {
		e.countGatewayError("get")
	}
	return rec, err
}

func (e *Engine) placeOrder(spec gateway.OrderSpec) (*gateway.OrderRecord, error) {
	e.countGateway("place")
	rec, err := e.gw.PlaceOrder(spec)
	if err != nil {
		e.countGatewayError("place")
	}
	return rec, err
}

func (e *Engine) cancelOrder(orderID string) error {
	e.countGateway("cancel")
	err := e.gw.CancelOrder(orderID)
	if err != nil {
		e.countGatewayError("cancel")
	}
	return err
}

func (e *Engine) countGateway(action string) {
	if e.mon != nil {
		e.mon.RecordGatewayRequest(action)
	}
}

func (e *Engine) countGatewayError(action string) {
	if e.mon != nil {
		e.mon.RecordGatewayError(action)
	}
}

// appendEvent writes one ledger line, reporting but containing failures.
// Returns false when the write failed.
func (e *Engine) appendEvent(kind ledger.Kind, o order.Order, price, qty, comm decimal.Decimal, ts time.Time) bool {
	err := e.history.Append(ledger.Event{
		Kind:       kind,
		OrderID:    o.OrderID,
		OriginalID: o.Lineage(),
		Price:      price,
		Quantity:   qty,
		Symbol:     o.Symbol,
		Time:       ts,
		Commission: comm,
	})
	if err != nil {
		e.log.Error("ledger append failed",
			zap.String("kind", string(kind)),
			zap.String("orderID", o.OrderID),
			zap.Error(err))
		if e.mon != nil {
			e.mon.RecordScanError()
		}
		return false
	}
	return true
}

// skipOrder reports a per-order failure and moves on; the rest of the batch
// continues in the same cycle.
func (e *Engine) skipOrder(o order.Order, msg string, err error) {
	e.log.Error(msg,
		zap.String("orderID", o.OrderID),
		zap.String("symbol", o.Symbol),
		zap.Error(err))
	if e.mon != nil {
		e.mon.RecordScanError()
	}
}

func (e *Engine) finishScan(pass string) {
	if e.mon == nil {
		return
	}
	e.mon.RecordScan(pass)
	if orders, err := e.store.LoadAll(); err == nil {
		e.mon.UpdateOpenOrders(len(orders))
	}
}

// fillData prefers the exchange's authoritative fill numbers over the requested
// ones; a fill at a better average price must be accounted at that price.
func fillData(o order.Order, rec *gateway.OrderRecord) (price, qty, comm decimal.Decimal, ts time.Time) {
	price = o.Price
	if rec.AveragePrice.IsPositive() {
		price = rec.AveragePrice
	}
	qty = o.Quantity
	if rec.CumQuantity.IsPositive() {
		qty = rec.CumQuantity
	}
	comm = rec.CumCommission
	ts = o.Created
	if !rec.Created.IsZero() {
		ts = rec.Created
	}
	return price, qty, comm, ts
}

func recordToOrder(rec *gateway.OrderRecord, side order.Side, originalID string) order.Order {
	return order.Order{
		OrderID:    rec.OrderID,
		OriginalID: originalID,
		Side:       side,
		Symbol:     rec.Symbol,
		Price:      rec.Price,
		Quantity:   rec.Quantity,
		Status:     order.NormalizeStatus(rec.Status),
		Commission: rec.CumCommission,
		Created:    rec.Created,
	}
}
