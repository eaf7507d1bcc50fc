// Command validate audits one capture across the bronze, silver and gold
// layers: success markers, the raw row, per-row location keys, per-location
// totals and partition completeness.
//
// Lake roots and S3 settings come from the same environment variables as the
// ETL service and can be overridden with flags.
//
// Usage:
//
//	go run ./cmd/validate -date-request 20240101_120000
//	go run ./cmd/validate -bronze ./data_lake_1 -silver ./data_lake_2 -gold ./data_lake_3
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/couchcryptid/brewery-data-etl/internal/adapter/blobstore"
	"github.com/couchcryptid/brewery-data-etl/internal/audit"
	"github.com/couchcryptid/brewery-data-etl/internal/config"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: load config: %v\n", err)
		os.Exit(1)
	}

	bronze := flag.String("bronze", cfg.BronzeRoot, "bronze layer root")
	silver := flag.String("silver", cfg.SilverRoot, "silver layer root")
	gold := flag.String("gold", cfg.GoldRoot, "gold layer root")
	dateRequest := flag.String("date-request", "", "capture timestamp to audit (default: latest finished capture)")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	opts := blobstore.Options{S3: blobstore.S3Options{
		Region:         cfg.S3Region,
		Endpoint:       cfg.S3Endpoint,
		ForcePathStyle: cfg.S3ForcePathStyle,
	}}
	if code := run(ctx, opts, *bronze, *silver, *gold, *dateRequest); code != 0 {
		stop()
		os.Exit(code)
	}
}

func run(ctx context.Context, opts blobstore.Options, bronzeRoot, silverRoot, goldRoot, dateRequest string) int {
	fmt.Println("=== Brewery Lake Integrity Validation ===")
	fmt.Println()

	var stores []blobstore.Store
	defer func() {
		for _, st := range stores {
			_ = st.Close()
		}
	}()
	for _, root := range []string{bronzeRoot, silverRoot, goldRoot} {
		st, err := blobstore.Open(ctx, root, opts)
		if err != nil {
			fmt.Fprintf(os.Stderr, "FATAL: open %s: %v\n", root, err)
			return 1
		}
		stores = append(stores, st)
	}

	if dateRequest == "" {
		latest, err := audit.LatestDateRequest(ctx, stores[0])
		if err != nil {
			fmt.Fprintf(os.Stderr, "FATAL: find latest capture: %v\n", err)
			return 1
		}
		dateRequest = latest
	}

	report, err := audit.New(stores[0], stores[1], stores[2], memory.NewGoAllocator()).Run(ctx, dateRequest)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: audit %s: %v\n", dateRequest, err)
		return 1
	}

	fmt.Printf("Capture: %s\n\n", report.DateRequest)
	for _, c := range report.Checks {
		status := "\033[32mPASS\033[0m"
		if !c.Passed() {
			status = fmt.Sprintf("\033[31mFAIL (%d errors)\033[0m", len(c.Errors))
		}
		fmt.Printf("  %-42s %s\n", c.Name, status)
	}

	fmt.Println()
	fmt.Printf("Rows: %d raw, %d tabular, %d analytical\n", report.RawRows, report.Records, report.Locations)

	// Print detailed errors.
	for _, c := range report.Checks {
		if c.Passed() {
			continue
		}
		fmt.Printf("\n--- %s ---\n", c.Name)
		for i, e := range c.Errors {
			fmt.Printf("  [%d] %s\n", i+1, e)
		}
	}

	if report.Passed() {
		fmt.Println("\nAll validations passed.")
		return 0
	}
	fmt.Println("\nValidation FAILED.")
	return 1
}
