package main

import (
	"context"
	"fmt"
	"os"

	"github.com/mmtelinfra/sitestock_backend/config"
	"github.com/mmtelinfra/sitestock_backend/workflow"
)

// ledger-verify runs the consistency checks against the live database and
// exits non-zero when any stock item violates the conservation invariants.
// Intended for cron and for eyeballing before running stock-rebuild.
func main() {
	config.ConnectDatabaseWithRetry()
	if config.GetDB() == nil {
		fmt.Fprintln(os.Stderr, "database not initialized")
		os.Exit(1)
	}

	violations, err := workflow.VerifyLedgerConsistency(context.Background())
	if err != nil {
		fmt.Fprintf(os.Stderr, "verify: %v\n", err)
		os.Exit(1)
	}
	if len(violations) == 0 {
		fmt.Println("ledger clean")
		return
	}
	for _, v := range violations {
		fmt.Printf("%s: %s\n", v.MaterialCode, v.Problem)
	}
	fmt.Printf("%d violations\n", len(violations))
	os.Exit(2)
}
