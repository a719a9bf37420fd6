package order

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Side marks the order direction as the exchange spells it.
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// Status mirrors the exchange-reported order status. The exchange reports
// lowercase values; NormalizeStatus folds whatever casing comes back.
type Status string

const (
	StatusNew       Status = "new"
	StatusFilled    Status = "filled"
	StatusCancelled Status = "cancelled"
)

// NormalizeStatus lowercases an exchange status string.
func NormalizeStatus(s string) Status {
	return Status(strings.ToLower(strings.TrimSpace(s)))
}

// PriceScale is the number of decimal places every computed price is rounded to.
const PriceScale = 4

// Order is a single exchange order tracked by the engine. A repriced order gets
// a fresh OrderID; OriginalID stays stable across the whole repricing chain.
type Order struct {
	OrderID    string          `json:"orderID"`
	OriginalID string          `json:"originalID"`
	Side       Side            `json:"side"`
	Symbol     string          `json:"symbol"`
	Price      decimal.Decimal `json:"price"`
	Quantity   decimal.Decimal `json:"quantity"`
	Status     Status          `json:"status"`
	Commission decimal.Decimal `json:"cumCommission"`
	Created    time.Time       `json:"created"`
}

// Lineage returns OriginalID, falling back to OrderID for the first order in a chain.
func (o Order) Lineage() string {
	if o.OriginalID != "" {
		return o.OriginalID
	}
	return o.OrderID
}

// IsOpen reports whether the order still awaits a fill.
func (o Order) IsOpen() bool {
	return o.Status == StatusNew
}

// RepricedUp returns the price moved up by stepPct percent, rounded to PriceScale.
// Used for buy-side chasing.
func RepricedUp(price, stepPct decimal.Decimal) decimal.Decimal {
	factor := decimal.NewFromInt(1).Add(stepPct.Div(decimal.NewFromInt(100)))
	return price.Mul(factor).Round(PriceScale)
}

// RepricedDown returns the price moved down by stepPct percent, rounded to PriceScale.
// Used for sell-side chasing.
func RepricedDown(price, stepPct decimal.Decimal) decimal.Decimal {
	factor := decimal.NewFromInt(1).Sub(stepPct.Div(decimal.NewFromInt(100)))
	return price.Mul(factor).Round(PriceScale)
}

// MarkedUp returns price increased by pct percent, rounded to PriceScale.
// Used for the buy→sell conversion markup and the initial buy discount
// (pass a negative pct to discount).
func MarkedUp(price, pct decimal.Decimal) decimal.Decimal {
	factor := decimal.NewFromInt(1).Add(pct.Div(decimal.NewFromInt(100)))
	return price.Mul(factor).Round(PriceScale)
}
