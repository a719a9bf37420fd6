package ledger

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func sampleEvent(kind Kind) Event {
	return Event{
		Kind:       kind,
		OrderID:    "8a9b1c",
		OriginalID: "root-1",
		Price:      dec("0.2394"),
		Quantity:   dec("1"),
		Symbol:     "TRX/USDT",
		Time:       time.Date(2025, 4, 3, 10, 15, 30, 120e6, time.UTC),
		Commission: dec("0.0005"),
	}
}

func TestFormatLineShape(t *testing.T) {
	got := FormatLine(sampleEvent(KindBuyFilled))
	want := "ПОКУПКА: OrderID 8a9b1c, цена 0.2394, кол-во 1, символ TRX/USDT, " +
		"время 2025-04-03T10:15:30.120Z, originalID root-1, комиссия 0.0005"
	if got != want {
		t.Fatalf("line mismatch:\n got  %q\n want %q", got, want)
	}
}

func TestLineRoundTripAllKinds(t *testing.T) {
	kinds := []Kind{
		KindBuyPlaced, KindBuyFilled, KindBuyRepriced,
		KindSellPlaced, KindSellFilled, KindSellRepriced,
	}
	for _, kind := range kinds {
		t.Run(string(kind), func(t *testing.T) {
			in := sampleEvent(kind)
			out, ok := ParseLine(FormatLine(in))
			if !ok {
				t.Fatalf("failed to parse own output")
			}
			if out.Kind != in.Kind || out.OrderID != in.OrderID || out.OriginalID != in.OriginalID {
				t.Fatalf("identity fields mismatch: %+v", out)
			}
			if !out.Price.Equal(in.Price) || !out.Quantity.Equal(in.Quantity) || !out.Commission.Equal(in.Commission) {
				t.Fatalf("amount fields mismatch: %+v", out)
			}
			if !out.Time.Equal(in.Time) {
				t.Fatalf("time mismatch: got %s want %s", out.Time, in.Time)
			}
			if out.Symbol != in.Symbol {
				t.Fatalf("symbol mismatch: %s", out.Symbol)
			}
		})
	}
}

func TestParseLineTolerance(t *testing.T) {
	// Comma decimal separator and trailing comma, as older writers produced.
	line := "УСПЕШНАЯ ПРОДАЖА: OrderID x1, цена 0.25, кол-во 1, символ TRX/USDT, " +
		"время 2025-04-03T10:15:30.120Z, originalID x0, комиссия 0,0005,"
	e, ok := ParseLine(line)
	if !ok {
		t.Fatalf("expected tolerant parse")
	}
	if !e.Commission.Equal(dec("0.0005")) {
		t.Fatalf("commission: got %s", e.Commission)
	}
}

func TestParseLineRejectsGarbage(t *testing.T) {
	bad := []string{
		"",
		"random log output",
		"НЕИЗВЕСТНО: OrderID x, цена 1, кол-во 1, символ A, время 2025-04-03T10:15:30.120Z, originalID x, комиссия 0",
		"ПОКУПКА: OrderID x, цена не-число, кол-во 1, символ A, время 2025-04-03T10:15:30.120Z, originalID x, комиссия 0",
		"ПОКУПКА: OrderID x, цена 1, кол-во 1",
	}
	for _, line := range bad {
		if _, ok := ParseLine(line); ok {
			t.Fatalf("expected reject: %q", line)
		}
	}
}

func TestKindClassification(t *testing.T) {
	if !KindBuyRepriced.IsBuy() || KindSellPlaced.IsBuy() {
		t.Fatalf("buy classification wrong")
	}
	if !KindBuyFilled.IsFill() || !KindSellFilled.IsFill() || KindBuyPlaced.IsFill() {
		t.Fatalf("fill classification wrong")
	}
}
