// Package ledger implements the append-only trade history file. Each line is
// one immutable event in a fixed label/field layout; the serializer and parser
// below are the two halves of that schema and must round-trip exactly.
package ledger

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Kind identifies the state transition an event records.
type Kind string

const (
	KindBuyPlaced    Kind = "buy-placed"
	KindBuyFilled    Kind = "buy-filled"
	KindBuyRepriced  Kind = "buy-repriced"
	KindSellPlaced   Kind = "sell-placed"
	KindSellFilled   Kind = "sell-filled"
	KindSellRepriced Kind = "sell-repriced"
)

// Line labels as written to the history file. The Russian labels are the wire
// contract inherited from the first version of the history format; changing
// them breaks parsing of existing files.
var kindLabels = map[Kind]string{
	KindBuyPlaced:    "ВЫСТАВЛЕНО НА ПОКУПКУ",
	KindBuyFilled:    "ПОКУПКА",
	KindBuyRepriced:  "ПЕРЕЗАПУСК Buy",
	KindSellPlaced:   "ВЫСТАВЛЕНО НА ПРОДАЖУ",
	KindSellFilled:   "УСПЕШНАЯ ПРОДАЖА",
	KindSellRepriced: "ПЕРЕЗАПУСК Sell",
}

var labelKinds = func() map[string]Kind {
	m := make(map[string]Kind, len(kindLabels))
	for k, l := range kindLabels {
		m[l] = k
	}
	return m
}()

// Label returns the history-file label for the kind.
func (k Kind) Label() string {
	return kindLabels[k]
}

// IsBuy reports whether the kind belongs to the buy side of a lineage.
func (k Kind) IsBuy() bool {
	return k == KindBuyPlaced || k == KindBuyFilled || k == KindBuyRepriced
}

// IsFill reports whether the kind records a confirmed fill. Fill events are the
// only ones that enter profit math, and the only ones written idempotently.
func (k Kind) IsFill() bool {
	return k == KindBuyFilled || k == KindSellFilled
}

// Event is one immutable ledger fact.
type Event struct {
	Kind       Kind
	OrderID    string
	OriginalID string
	Price      decimal.Decimal
	Quantity   decimal.Decimal
	Symbol     string
	Time       time.Time
	Commission decimal.Decimal
}

// timeLayout matches the exchange's created timestamps (millisecond UTC).
const timeLayout = "2006-01-02T15:04:05.000Z"

// FormatLine renders the event as one canonical history line (no trailing newline).
func FormatLine(e Event) string {
	return fmt.Sprintf("%s: OrderID %s, цена %s, кол-во %s, символ %s, время %s, originalID %s, комиссия %s",
		e.Kind.Label(),
		e.OrderID,
		e.Price.String(),
		e.Quantity.String(),
		e.Symbol,
		e.Time.UTC().Format(timeLayout),
		e.OriginalID,
		e.Commission.String(),
	)
}

// ParseLine parses one history line. It returns false for blank lines, unknown
// labels, and malformed field lists; callers treat those as noise, not errors.
func ParseLine(line string) (Event, bool) {
	line = strings.TrimSpace(line)
	if line == "" {
		return Event{}, false
	}
	sep := strings.Index(line, ": OrderID ")
	if sep < 0 {
		return Event{}, false
	}
	kind, ok := labelKinds[strings.TrimSpace(line[:sep])]
	if !ok {
		return Event{}, false
	}
	rest := line[sep+len(": OrderID "):]
	parts := strings.Split(rest, ", ")
	if len(parts) != 7 {
		return Event{}, false
	}

	e := Event{Kind: kind, OrderID: strings.TrimSpace(parts[0])}
	var err error
	if e.Price, err = parseAmount(cutPrefix(parts[1], "цена ")); err != nil {
		return Event{}, false
	}
	if e.Quantity, err = parseAmount(cutPrefix(parts[2], "кол-во ")); err != nil {
		return Event{}, false
	}
	sym, ok := strings.CutPrefix(parts[3], "символ ")
	if !ok {
		return Event{}, false
	}
	e.Symbol = sym
	ts, ok := strings.CutPrefix(parts[4], "время ")
	if !ok {
		return Event{}, false
	}
	if e.Time, err = parseTime(ts); err != nil {
		return Event{}, false
	}
	orig, ok := strings.CutPrefix(parts[5], "originalID ")
	if !ok {
		return Event{}, false
	}
	e.OriginalID = orig
	if e.Commission, err = parseAmount(cutPrefix(parts[6], "комиссия ")); err != nil {
		return Event{}, false
	}
	if e.OrderID == "" {
		return Event{}, false
	}
	return e, true
}

func cutPrefix(s, prefix string) string {
	v, ok := strings.CutPrefix(s, prefix)
	if !ok {
		return ""
	}
	return v
}

// parseAmount reads a decimal field, tolerating a comma decimal separator and a
// stray trailing comma left by earlier writers of the format.
func parseAmount(s string) (decimal.Decimal, error) {
	s = strings.TrimSuffix(strings.TrimSpace(s), ",")
	s = strings.ReplaceAll(s, ",", ".")
	if s == "" {
		return decimal.Decimal{}, fmt.Errorf("empty amount")
	}
	return decimal.NewFromString(s)
}

func parseTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(timeLayout, s); err == nil {
		return t, nil
	}
	return time.Parse(time.RFC3339Nano, s)
}
