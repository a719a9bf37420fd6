// Command report renders the trade history into an HTML profit and loss
// report, one section per order lineage.
package main

import (
	"flag"
	"fmt"
	"log"

	"cycle-trader-go/config"
	"cycle-trader-go/ledger"
	"cycle-trader-go/report"
)

func main() {
	cfgPath := flag.String("config", "config.yaml", "path to config file")
	historyPath := flag.String("history", "", "history file (overrides config)")
	outPath := flag.String("out", "", "output HTML file (overrides config)")
	flag.Parse()

	cfg, err := config.LoadWithEnvOverrides(*cfgPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	history := cfg.Files.History
	if *historyPath != "" {
		history = *historyPath
	}
	out := cfg.Files.Report
	if *outPath != "" {
		out = *outPath
	}

	events, err := ledger.New(history).ReadAll()
	if err != nil {
		log.Fatalf("read history %s: %v", history, err)
	}
	if len(events) == 0 {
		log.Fatalf("no events in %s", history)
	}

	summary := report.Aggregate(events)
	if err := report.WriteFile(out, summary); err != nil {
		log.Fatalf("write report: %v", err)
	}

	closed := 0
	for _, lin := range summary.Lineages {
		if !lin.Mismatch {
			closed++
		}
	}
	fmt.Printf("report written to %s: %d lineages (%d closed), total profit %s USD\n",
		out, len(summary.Lineages), closed, summary.TotalProfit.StringFixed(5))
}
