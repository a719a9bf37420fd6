// Package report turns the trade history into a per-lineage profit and loss
// report. A lineage is every event sharing one originalID: the opening buy,
// its repricings, the sell side, and the closing fill.
package report

import (
	"fmt"
	"html/template"
	"io"
	"os"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"cycle-trader-go/ledger"
)

const (
	profitScale  = 5
	percentScale = 2
)

// Lineage is the aggregated result for one originalID.
type Lineage struct {
	OriginalID string
	Events     []ledger.Event // chronological
	Buys       []ledger.Event // buy fills, chronological
	Sells      []ledger.Event // sell fills, chronological

	// Mismatch is set when buy and sell fill counts differ; the money fields
	// are zero in that case because pairing them would be a guess.
	Mismatch bool
	Spent    decimal.Decimal
	Income   decimal.Decimal
	Profit   decimal.Decimal
	Percent  decimal.Decimal
}

// Summary is the whole report: one Lineage per originalID, ordered by the time
// of each lineage's earliest event.
type Summary struct {
	Lineages    []Lineage
	TotalProfit decimal.Decimal
}

// Aggregate groups events by lineage and computes profit per closed pair.
// Spent counts the buy commission against you; income counts the sell
// commission against you. Both cash flows use the fill price and quantity.
func Aggregate(events []ledger.Event) Summary {
	groups := make(map[string][]ledger.Event)
	for _, ev := range events {
		groups[ev.OriginalID] = append(groups[ev.OriginalID], ev)
	}

	summary := Summary{TotalProfit: decimal.Zero}
	for id, group := range groups {
		sort.SliceStable(group, func(i, j int) bool {
			return group[i].Time.Before(group[j].Time)
		})
		lin := Lineage{OriginalID: id, Events: group}
		for _, ev := range group {
			if !ev.Kind.IsFill() {
				continue
			}
			if ev.Kind.IsBuy() {
				lin.Buys = append(lin.Buys, ev)
			} else {
				lin.Sells = append(lin.Sells, ev)
			}
		}
		if len(lin.Buys) != len(lin.Sells) {
			lin.Mismatch = true
		} else {
			lin.Spent = decimal.Zero
			lin.Income = decimal.Zero
			for i := range lin.Buys {
				buy, sell := lin.Buys[i], lin.Sells[i]
				lin.Spent = lin.Spent.Add(buy.Price.Mul(buy.Quantity)).Add(buy.Commission)
				lin.Income = lin.Income.Add(sell.Price.Mul(sell.Quantity)).Sub(sell.Commission)
			}
			lin.Profit = lin.Income.Sub(lin.Spent).Round(profitScale)
			if lin.Spent.IsZero() {
				lin.Percent = decimal.Zero
			} else {
				lin.Percent = lin.Income.Sub(lin.Spent).
					Div(lin.Spent).
					Mul(decimal.NewFromInt(100)).
					Round(percentScale)
			}
			summary.TotalProfit = summary.TotalProfit.Add(lin.Profit)
		}
		summary.Lineages = append(summary.Lineages, lin)
	}

	sort.SliceStable(summary.Lineages, func(i, j int) bool {
		return summary.Lineages[i].earliest().Before(summary.Lineages[j].earliest())
	})
	return summary
}

func (l Lineage) earliest() (t time.Time) {
	if len(l.Events) > 0 {
		t = l.Events[0].Time
	}
	return t
}

var reportTmpl = template.Must(template.New("report").Funcs(template.FuncMap{
	"label":  func(k ledger.Kind) string { return k.Label() },
	"amount": func(d decimal.Decimal) string { return d.String() },
	"money":  func(d decimal.Decimal) string { return d.StringFixed(profitScale) },
	"pct":    func(d decimal.Decimal) string { return d.StringFixed(percentScale) },
	"when":   func(t time.Time) string { return t.UTC().Format("2006-01-02 15:04:05") },
	"color": func(d decimal.Decimal) string {
		if d.IsNegative() {
			return "red"
		}
		return "blue"
	},
}).Parse(reportHTML))

const reportHTML = `<html>
<head>
    <title>Отчет по Ордерам</title>
    <style>
        body { font-family: Arial, sans-serif; margin: 20px; }
        .report-section { margin-bottom: 40px; }
        .report-section h2 { color: #4CAF50; }
        table { width: 100%; border-collapse: collapse; margin-top: 10px; }
        table, th, td { border: 1px solid #ddd; }
        th, td { padding: 10px; text-align: left; }
        th { background-color: #f2f2f2; }
        .profit-loss { font-weight: bold; }
        .event-type { font-weight: bold; color: #FF5733; }
        .profit-percentage { font-weight: bold; color: #007BFF; }
    </style>
</head>
<body>
<h1>Отчет по Ордеру</h1>
{{range .Lineages}}
<div class="report-section"><h2>OriginalID: {{.OriginalID}}</h2>
<table><thead><tr><th>Тип события</th><th>OrderID</th><th>Цена</th><th>Кол-во</th><th>Символ</th><th>Время</th><th>Комиссия</th></tr></thead><tbody>
{{- range .Events}}
<tr>
    <td class="event-type">{{label .Kind}}</td>
    <td>{{.OrderID}}</td>
    <td>{{amount .Price}}</td>
    <td>{{amount .Quantity}}</td>
    <td>{{.Symbol}}</td>
    <td>{{when .Time}}</td>
    <td>{{amount .Commission}}</td>
</tr>
{{- end}}
</tbody></table>
{{- if .Mismatch}}
<p class="profit-loss">Ошибка: количество покупок и продаж не совпадает.</p>
{{- else}}
{{- range .Buys}}
<p>Покупка: Цена={{amount .Price}}, Кол-во={{amount .Quantity}}, Комиссия={{amount .Commission}}</p>
{{- end}}
{{- range .Sells}}
<p>Продажа: Цена={{amount .Price}}, Кол-во={{amount .Quantity}}, Комиссия={{amount .Commission}}</p>
{{- end}}
<p class="profit-loss">Доход/Убыток: <span style="color: {{color .Profit}};">{{money .Profit}} USD</span></p>
<p class="profit-percentage" style="color: black;">Процент дохода/убытка: <span style="color: {{color .Percent}};">{{pct .Percent}}%</span></p>
{{- end}}
</div>
{{end}}
</body>
</html>
`

// RenderHTML writes the report document to w.
func RenderHTML(w io.Writer, s Summary) error {
	if err := reportTmpl.Execute(w, s); err != nil {
		return fmt.Errorf("render report: %w", err)
	}
	return nil
}

// WriteFile renders the report into path, truncating any previous report.
func WriteFile(path string, s Summary) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create report file: %w", err)
	}
	if err := RenderHTML(f, s); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
