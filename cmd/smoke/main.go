package main

import (
	"flag"
	"fmt"
	"log"

	"github.com/shopspring/decimal"

	"paystream.org/internal/engine"
	"paystream.org/internal/sim"
)

func main() {
	log.SetFlags(0)
	var (
		records = flag.Int("records", 50_000, "Number of synthetic records to run")
		clients = flag.Int("clients", 64, "Size of the client population")
		seed    = flag.Int64("seed", 0, "Generator seed (0 picks one from the clock)")
	)
	flag.Parse()

	gen := sim.NewGenerator(*clients, *seed)
	eng := engine.New()

	rejections := make(map[string]int)
	var applied int
	for i := 0; i < *records; i++ {
		rec := gen.Next()
		if err := eng.Apply(rec); err != nil {
			reason := engine.Reason(err)
			if reason == "internal" {
				log.Fatalf("unclassified rejection for %s tx=%d: %v", rec.Kind, rec.Tx, err)
			}
			rejections[reason]++
			continue
		}
		applied++
	}

	snapshot := eng.Snapshot()
	var totalHeld decimal.Decimal
	for _, acc := range snapshot {
		if !acc.Total().Equal(acc.Available.Add(acc.Held)) {
			log.Fatalf("balance invariant broken for client %d: available=%s held=%s total=%s",
				acc.Client, acc.Available, acc.Held, acc.Total())
		}
		totalHeld = totalHeld.Add(acc.Held)
	}

	fmt.Printf("smoke run passed: applied=%d rejected=%d accounts=%d held_sum=%s\n",
		applied, *records-applied, len(snapshot), totalHeld.StringFixed(4))
	for reason, n := range rejections {
		fmt.Printf("  rejected %-26s %d\n", reason, n)
	}
}
