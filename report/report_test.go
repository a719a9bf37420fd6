package report

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cycle-trader-go/ledger"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func at(min int) time.Time {
	return time.Date(2025, 4, 3, 10, min, 0, 0, time.UTC)
}

func ev(kind ledger.Kind, orderID, originalID, price, qty, commission string, t time.Time) ledger.Event {
	return ledger.Event{
		Kind:       kind,
		OrderID:    orderID,
		OriginalID: originalID,
		Price:      dec(price),
		Quantity:   dec(qty),
		Symbol:     "TRX/USDT",
		Time:       t,
		Commission: dec(commission),
	}
}

func TestAggregateComputesProfitPerLineage(t *testing.T) {
	events := []ledger.Event{
		ev(ledger.KindBuyPlaced, "b1", "b1", "0.2", "100", "0", at(0)),
		ev(ledger.KindBuyFilled, "b1", "b1", "0.2", "100", "0", at(1)),
		ev(ledger.KindSellPlaced, "s1", "b1", "0.2199", "100", "0", at(2)),
		ev(ledger.KindSellFilled, "s1", "b1", "0.2199", "100", "0.02", at(3)),
	}

	s := Aggregate(events)
	require.Len(t, s.Lineages, 1)
	lin := s.Lineages[0]
	assert.False(t, lin.Mismatch)
	assert.True(t, lin.Spent.Equal(dec("20")), "spent %s", lin.Spent)
	assert.True(t, lin.Income.Equal(dec("21.97")), "income %s", lin.Income)
	assert.True(t, lin.Profit.Equal(dec("1.97")), "profit %s", lin.Profit)
	assert.True(t, lin.Percent.Equal(dec("9.85")), "percent %s", lin.Percent)
	assert.True(t, s.TotalProfit.Equal(dec("1.97")))
}

func TestAggregateRoundTripScenario(t *testing.T) {
	events := []ledger.Event{
		ev(ledger.KindBuyFilled, "b1", "b1", "10", "2", "0.01", at(0)),
		ev(ledger.KindSellFilled, "s1", "b1", "11", "2", "0.02", at(1)),
	}

	s := Aggregate(events)
	require.Len(t, s.Lineages, 1)
	lin := s.Lineages[0]
	// spent = 20.01, income = 21.98
	assert.True(t, lin.Profit.Equal(dec("1.97")), "profit %s", lin.Profit)
	assert.True(t, lin.Percent.Equal(dec("9.85")), "percent %s", lin.Percent)
}

func TestAggregateChargesBothCommissions(t *testing.T) {
	events := []ledger.Event{
		ev(ledger.KindBuyFilled, "b1", "b1", "0.24", "100", "0.05", at(0)),
		ev(ledger.KindSellFilled, "s1", "b1", "0.264", "100", "0.06", at(1)),
	}

	s := Aggregate(events)
	require.Len(t, s.Lineages, 1)
	lin := s.Lineages[0]
	// spent = 24 + 0.05, income = 26.4 - 0.06
	assert.True(t, lin.Spent.Equal(dec("24.05")), "spent %s", lin.Spent)
	assert.True(t, lin.Income.Equal(dec("26.34")), "income %s", lin.Income)
	assert.True(t, lin.Profit.Equal(dec("2.29")), "profit %s", lin.Profit)
}

func TestAggregateGroupsByLineageAndSortsByTime(t *testing.T) {
	events := []ledger.Event{
		// Second lineage appears first in the file but starts later.
		ev(ledger.KindBuyFilled, "b2", "lin2", "0.3", "10", "0", at(20)),
		ev(ledger.KindSellFilled, "s2", "lin2", "0.33", "10", "0", at(30)),
		ev(ledger.KindSellFilled, "s1", "lin1", "0.11", "10", "0", at(10)),
		ev(ledger.KindBuyFilled, "b1", "lin1", "0.1", "10", "0", at(5)),
	}

	s := Aggregate(events)
	require.Len(t, s.Lineages, 2)
	assert.Equal(t, "lin1", s.Lineages[0].OriginalID)
	assert.Equal(t, "lin2", s.Lineages[1].OriginalID)

	lin1 := s.Lineages[0]
	require.Len(t, lin1.Events, 2)
	assert.Equal(t, ledger.KindBuyFilled, lin1.Events[0].Kind, "events must be chronological")
	assert.Equal(t, ledger.KindSellFilled, lin1.Events[1].Kind)
}

func TestAggregateFlagsMismatch(t *testing.T) {
	events := []ledger.Event{
		ev(ledger.KindBuyFilled, "b1", "b1", "0.2", "100", "0", at(0)),
		ev(ledger.KindSellPlaced, "s1", "b1", "0.22", "100", "0", at(1)),
	}

	s := Aggregate(events)
	require.Len(t, s.Lineages, 1)
	lin := s.Lineages[0]
	assert.True(t, lin.Mismatch, "an open lineage has a buy fill without a sell fill")
	assert.True(t, lin.Profit.IsZero())
	assert.True(t, s.TotalProfit.IsZero(), "mismatched lineages stay out of the total")
}

func TestAggregateZeroSpendGuard(t *testing.T) {
	events := []ledger.Event{
		ev(ledger.KindBuyFilled, "b1", "b1", "0", "0", "0", at(0)),
		ev(ledger.KindSellFilled, "s1", "b1", "0", "0", "0", at(1)),
	}

	s := Aggregate(events)
	require.Len(t, s.Lineages, 1)
	assert.True(t, s.Lineages[0].Percent.IsZero())
}

func TestAggregateIgnoresNonFillEventsInMath(t *testing.T) {
	events := []ledger.Event{
		ev(ledger.KindBuyPlaced, "b1", "b1", "0.24", "100", "0", at(0)),
		ev(ledger.KindBuyRepriced, "b1", "b1", "0.24", "100", "0", at(1)),
		ev(ledger.KindBuyFilled, "b2", "b1", "0.2424", "100", "0", at(2)),
		ev(ledger.KindSellPlaced, "s1", "b1", "0.2666", "100", "0", at(3)),
		ev(ledger.KindSellRepriced, "s1", "b1", "0.2666", "100", "0", at(4)),
		ev(ledger.KindSellFilled, "s2", "b1", "0.2639", "100", "0", at(5)),
	}

	s := Aggregate(events)
	require.Len(t, s.Lineages, 1)
	lin := s.Lineages[0]
	assert.False(t, lin.Mismatch, "repricings must not count as fills")
	assert.Len(t, lin.Events, 6)
	assert.True(t, lin.Spent.Equal(dec("24.24")), "spent %s", lin.Spent)
	assert.True(t, lin.Income.Equal(dec("26.39")), "income %s", lin.Income)
}

func TestRenderHTML(t *testing.T) {
	events := []ledger.Event{
		ev(ledger.KindBuyFilled, "b1", "root-1", "0.2", "100", "0", at(0)),
		ev(ledger.KindSellFilled, "s1", "root-1", "0.2199", "100", "0.02", at(1)),
		ev(ledger.KindBuyFilled, "b2", "root-2", "0.3", "10", "0", at(2)),
	}

	var buf bytes.Buffer
	require.NoError(t, RenderHTML(&buf, Aggregate(events)))
	html := buf.String()

	assert.Contains(t, html, "Отчет по Ордеру")
	assert.Contains(t, html, "OriginalID: root-1")
	assert.Contains(t, html, "ПОКУПКА")
	assert.Contains(t, html, "УСПЕШНАЯ ПРОДАЖА")
	assert.Contains(t, html, "1.97000 USD")
	assert.Contains(t, html, "9.85%")
	assert.Contains(t, html, "Ошибка: количество покупок и продаж не совпадает.")
	assert.True(t, strings.Index(html, "root-1") < strings.Index(html, "root-2"))
}
