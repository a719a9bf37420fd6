// Command trader is the interactive operator console: place an opening buy,
// walk the open buys and sells through one scan cycle, or convert filled buys
// into sell orders. Every irreversible step asks the operator first.
package main

import (
	"bufio"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"cycle-trader-go/config"
	"cycle-trader-go/gateway"
	"cycle-trader-go/infrastructure/logger"
	"cycle-trader-go/internal/engine"
	"cycle-trader-go/ledger"
	"cycle-trader-go/order"
)

func main() {
	cfgPath := flag.String("config", "config.yaml", "path to config file")
	mode := flag.String("mode", "buy", "buy | scan-buys | convert | scan-sells")
	flag.Parse()

	cfg, err := config.LoadWithEnvOverrides(*cfgPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	zl, err := logger.New(cfg.Logger)
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}
	defer zl.Close()

	client := &gateway.RESTClient{
		BaseURL: cfg.Gateway.BaseURL,
		APIKey:  cfg.Gateway.APIKey,
		HTTPClient: &http.Client{
			Timeout: time.Duration(cfg.Gateway.TimeoutMs) * time.Millisecond,
		},
		Limiter: gateway.NewTokenBucketLimiter(5, 10),
	}
	store := order.NewStore(cfg.Files.Orders)
	history := ledger.New(cfg.Files.History)
	eng, err := engine.New(client, store, history, zl, nil, engine.Config{
		RepriceStepPct: cfg.Trading.RepriceStepDec(),
	})
	if err != nil {
		log.Fatalf("init engine: %v", err)
	}

	in := bufio.NewScanner(os.Stdin)
	switch *mode {
	case "buy":
		err = runBuy(eng, client, cfg, in)
	case "scan-buys":
		err = eng.ScanBuys(promptReprice(in))
	case "convert":
		err = eng.ConvertFills(promptMarkup(in))
	case "scan-sells":
		err = eng.ScanSells(promptReprice(in))
	default:
		log.Fatalf("unknown mode %q", *mode)
	}
	if err != nil {
		log.Fatalf("%s failed: %v", *mode, err)
	}
}

// runBuy walks the operator through one opening buy: balance, candidate pairs
// under the price ceiling, pair and discount choice, confirmation, placement.
func runBuy(eng *engine.Engine, client *gateway.RESTClient, cfg config.AppConfig, in *bufio.Scanner) error {
	if bal, err := client.GetBalance("USDT"); err != nil {
		fmt.Printf("balance unavailable: %v\n", err)
	} else {
		fmt.Printf("available USDT balance: %s\n", bal.String())
	}

	pairs, err := lowPricePairs(client, cfg.Trading.PriceCeilingDec())
	if err != nil {
		return err
	}
	if len(pairs) == 0 {
		fmt.Printf("no USDT pairs trade at or below %v\n", cfg.Trading.PriceCeiling)
		return nil
	}

	fmt.Printf("\nUSDT pairs with last price <= %v:\n", cfg.Trading.PriceCeiling)
	for _, p := range pairs {
		fmt.Printf("  %-12s %s\n", p.Symbol, p.LastTrade.String())
	}

	pair := promptPair(in, pairs)
	if pair == nil {
		return nil
	}
	discount := promptDiscount(in, cfg.Trading.DiscountOptions)
	if discount == nil {
		return nil
	}

	target := order.MarkedUp(pair.LastTrade, discount.Neg())
	fmt.Printf("\none buy order for %s at %s USDT (last %s, discount %s%%), quantity %v\n",
		pair.Symbol, target.String(), pair.LastTrade.String(), discount.String(), cfg.Trading.Quantity)
	if !promptYes(in, "place it?") {
		fmt.Println("cancelled")
		return nil
	}

	o, err := eng.PlaceBuy(pair.Symbol, pair.LastTrade, *discount, cfg.Trading.QuantityDec())
	if err != nil {
		return err
	}
	fmt.Printf("order %s placed and saved to %s\n", o.OrderID, cfg.Files.Orders)
	return nil
}

// lowPricePairs joins /api/symbols and /api/prices into the USDT pairs trading
// at or below the ceiling, sorted by symbol.
func lowPricePairs(client *gateway.RESTClient, ceiling decimal.Decimal) ([]gateway.TickerPrice, error) {
	symbols, err := client.GetSymbols()
	if err != nil {
		return nil, err
	}
	prices, err := client.GetPrices()
	if err != nil {
		return nil, err
	}
	usdt := make(map[string]bool, len(symbols))
	for _, s := range symbols {
		if strings.EqualFold(s.Quote, "USDT") || strings.HasSuffix(s.Symbol, "/USDT") {
			usdt[s.Symbol] = true
		}
	}
	var out []gateway.TickerPrice
	for _, p := range prices {
		if usdt[p.Symbol] && p.LastTrade.IsPositive() && p.LastTrade.LessThanOrEqual(ceiling) {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out, nil
}

func promptPair(in *bufio.Scanner, pairs []gateway.TickerPrice) *gateway.TickerPrice {
	byName := make(map[string]gateway.TickerPrice, len(pairs))
	for _, p := range pairs {
		byName[strings.ToUpper(p.Symbol)] = p
		// Accept the base currency alone, the way the pairs are usually typed.
		if base, _, ok := strings.Cut(p.Symbol, "/"); ok {
			byName[strings.ToUpper(base)] = p
		}
	}
	for {
		fmt.Print("pair (or exit) --> ")
		if !in.Scan() {
			return nil
		}
		choice := strings.ToUpper(strings.TrimSpace(in.Text()))
		if choice == "EXIT" {
			return nil
		}
		if p, ok := byName[choice]; ok {
			return &p
		}
		fmt.Println("no such pair in the list")
	}
}

func promptDiscount(in *bufio.Scanner, options []float64) *decimal.Decimal {
	opts := make([]string, len(options))
	for i, o := range options {
		opts[i] = decimal.NewFromFloat(o).String()
	}
	for {
		fmt.Printf("discount percent (%s) --> ", strings.Join(opts, ", "))
		if !in.Scan() {
			return nil
		}
		choice := strings.TrimSpace(in.Text())
		if strings.EqualFold(choice, "exit") {
			return nil
		}
		for i, o := range opts {
			if choice == o {
				d := decimal.NewFromFloat(options[i])
				return &d
			}
		}
		fmt.Printf("enter one of: %s\n", strings.Join(opts, ", "))
	}
}

func promptYes(in *bufio.Scanner, question string) bool {
	fmt.Printf("%s (yes/no) --> ", question)
	if !in.Scan() {
		return false
	}
	return strings.EqualFold(strings.TrimSpace(in.Text()), "yes")
}

// promptReprice asks the operator per order whether to cancel and replace it.
func promptReprice(in *bufio.Scanner) engine.ConfirmFunc {
	return func(o order.Order) bool {
		fmt.Printf("\n%s %s still open at %s (order %s)\n",
			o.Symbol, o.Side, o.Price.String(), o.OrderID)
		return promptYes(in, "cancel and reprice?")
	}
}

// promptMarkup asks for the sell markup percent for one filled buy.
func promptMarkup(in *bufio.Scanner) engine.MarkupFunc {
	return func(o order.Order) (decimal.Decimal, bool) {
		fmt.Printf("\nbuy %s filled: %s at %s, quantity %s\n",
			o.OrderID, o.Symbol, o.Price.String(), o.Quantity.String())
		for {
			fmt.Print("sell markup percent (or skip) --> ")
			if !in.Scan() {
				return decimal.Decimal{}, false
			}
			text := strings.TrimSpace(in.Text())
			if strings.EqualFold(text, "skip") || text == "" {
				return decimal.Decimal{}, false
			}
			pct, err := decimal.NewFromString(text)
			if err != nil || !pct.IsPositive() {
				fmt.Println("enter a positive number or skip")
				continue
			}
			return pct, true
		}
	}
}
