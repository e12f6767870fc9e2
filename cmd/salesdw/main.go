// Command salesdw runs the sales warehouse load: extract from the configured
// sources, resolve dimensions, load facts idempotently, verify. Secondary
// modes refresh a single dimension or re-run verification only.
package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"time"

	"salesdw/internal/clock"
	"salesdw/internal/config"
	"salesdw/internal/dimension"
	"salesdw/internal/etl"
	"salesdw/internal/extract"
	"salesdw/internal/facts"
	"salesdw/internal/metrics"
	"salesdw/internal/metrics/datadog"
	"salesdw/internal/sales"
	"salesdw/internal/storage"

	// register all backends with the storage factory; the config selects one.
	_ "salesdw/internal/storage/mssql"
	_ "salesdw/internal/storage/postgres"
	_ "salesdw/internal/storage/sqlite"
)

func main() {
	var (
		cfgPath    string
		verifyOnly bool
		refresh    string
	)
	flag.StringVar(&cfgPath, "config", "", "path to warehouse config JSON")
	flag.BoolVar(&verifyOnly, "verify-only", false, "run post-load verification and exit")
	flag.StringVar(&refresh, "refresh", "", "refresh a single dimension (customer|product) and exit")
	verbose := flag.Bool("v", false, "enable verbose logs")
	flag.Parse()

	if cfgPath == "" {
		fmt.Fprintln(os.Stderr, "usage: salesdw -config path/to/warehouse.json [-verify-only | -refresh customer|product]")
		os.Exit(2)
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		fatalf("%v", err)
	}

	logger := log.New(os.Stderr, "", log.LstdFlags)
	var runLog etl.Logger
	if *verbose {
		runLog = logger
	}

	ctx := context.Background()

	store, err := storage.Open(ctx, storage.Config{Kind: cfg.Warehouse.Kind, DSN: cfg.Warehouse.DSN})
	if err != nil {
		fatalf("open warehouse: %v", err)
	}
	defer store.Close()

	if err := store.EnsureSchema(ctx); err != nil {
		fatalf("ensure schema: %v", err)
	}

	if cfg.Metrics.Backend == "datadog" {
		b, err := datadog.NewBackend(ctx, datadog.Options{
			JobName:    cfg.Metrics.JobName,
			Tags:       datadog.ParseTagsCSV(cfg.Metrics.Tags),
			FlushEvery: time.Duration(cfg.Metrics.FlushSeconds) * time.Second,
		})
		if err != nil {
			logger.Printf("metrics: datadog init failed: %v; metrics disabled", err)
		} else {
			metrics.SetBackend(b)
			defer func() {
				if err := b.Close(); err != nil {
					logger.Printf("metrics: close: %v", err)
				}
			}()
		}
	}

	switch {
	case verifyOnly:
		os.Exit(runVerify(ctx, store, logger))
	case refresh != "":
		os.Exit(runRefresh(ctx, store, logger, cfg, refresh))
	default:
		os.Exit(runCycle(ctx, store, runLog, logger, cfg))
	}
}

func fatalf(format string, a ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", a...)
	os.Exit(1)
}

func runCycle(ctx context.Context, store storage.Store, runLog etl.Logger, logger *log.Logger, cfg config.Config) int {
	srcs, cleanup, err := buildSources(cfg)
	if err != nil {
		logger.Printf("sources: %v", err)
		return 1
	}
	defer cleanup()

	o := etl.New(etl.Options{
		Store:     store,
		Logger:    runLog,
		BatchSize: cfg.Runtime.BatchSize,
		Sources:   srcs,
	})

	res := o.Run(ctx)
	fmt.Printf("extracted=%d invalid=%d duplicate=%d transformed=%d loaded=%d already_loaded=%d bad_refs=%d elapsed=%s\n",
		res.Extracted, res.Invalid, res.Duplicate, res.Transformed,
		res.Loaded, res.AlreadyLoaded, res.BadRefs,
		res.Elapsed.Truncate(time.Millisecond))
	printReport(res.Report)

	if !res.Success {
		logger.Printf("run failed in phase %s: %v", o.Phase(), res.Err)
		return 1
	}
	if !res.Report.OK() {
		logger.Printf("verification failed: orphan_customers=%d orphan_products=%d",
			res.Report.OrphanCustomers, res.Report.OrphanProducts)
		return 1
	}
	return 0
}

func runVerify(ctx context.Context, store storage.Store, logger *log.Logger) int {
	rep, err := facts.NewVerifier(store, logger).Verify(ctx)
	if err != nil {
		logger.Printf("verify: %v", err)
		return 1
	}
	printReport(rep)
	if !rep.OK() {
		return 1
	}
	return 0
}

func runRefresh(ctx context.Context, store storage.Store, logger *log.Logger, cfg config.Config, dim string) int {
	opts := extract.CSVOptions{Windows1252: cfg.Sources.Windows1252}

	var inserted, updated int
	var err error
	switch dim {
	case "customer":
		if cfg.Sources.CustomersCSV == "" {
			logger.Printf("refresh customer: sources.customers_csv is not configured")
			return 2
		}
		var recs []sales.CustomerRecord
		if recs, err = (extract.CustomersCSV{Path: cfg.Sources.CustomersCSV, Opts: opts}).Extract(ctx); err == nil {
			l := dimension.NewCustomerLoader(store, clock.System{}, logger, cfg.Runtime.BatchSize)
			if err = l.Prime(ctx); err == nil {
				inserted, updated, err = l.LoadBatch(ctx, recs)
			}
		}
	case "product":
		if cfg.Sources.ProductsCSV == "" {
			logger.Printf("refresh product: sources.products_csv is not configured")
			return 2
		}
		var recs []sales.ProductRecord
		if recs, err = (extract.ProductsCSV{Path: cfg.Sources.ProductsCSV, Opts: opts}).Extract(ctx); err == nil {
			l := dimension.NewProductLoader(store, clock.System{}, logger, cfg.Runtime.BatchSize)
			if err = l.Prime(ctx); err == nil {
				inserted, updated, err = l.LoadBatch(ctx, recs)
			}
		}
	default:
		logger.Printf("refresh: unknown dimension %q (want customer or product)", dim)
		return 2
	}
	if err != nil {
		logger.Printf("refresh %s: %v", dim, err)
		return 1
	}
	fmt.Printf("refresh %s: inserted=%d updated=%d\n", dim, inserted, updated)
	return 0
}

// buildSources turns the config into extractors. The returned cleanup closes
// the source database connection, if one was opened.
func buildSources(cfg config.Config) (etl.Sources, func(), error) {
	opts := extract.CSVOptions{Windows1252: cfg.Sources.Windows1252}
	cleanup := func() {}

	srcs := etl.Sources{
		PrimarySales: extract.SalesCSV{Path: cfg.Sources.SalesCSV, Opts: opts, Required: true},
	}

	if cfg.Sources.SalesAPIURL != "" {
		srcs.OptionalSales = append(srcs.OptionalSales, extract.SalesAPI{
			URL:    cfg.Sources.SalesAPIURL,
			Client: &http.Client{Timeout: 30 * time.Second},
		})
	}
	if cfg.Sources.HTMLReport != "" {
		srcs.OptionalSales = append(srcs.OptionalSales, extract.SalesHTMLReport{Path: cfg.Sources.HTMLReport})
	}
	if cfg.Sources.CustomersCSV != "" {
		srcs.Customers = append(srcs.Customers, extract.CustomersCSV{Path: cfg.Sources.CustomersCSV, Opts: opts})
	}
	if cfg.Sources.ProductsCSV != "" {
		srcs.Products = append(srcs.Products, extract.ProductsCSV{Path: cfg.Sources.ProductsCSV, Opts: opts})
	}
	if cfg.Sources.OrderDetailsCSV != "" {
		srcs.OrderDetails = append(srcs.OrderDetails, extract.OrderDetailsCSV{Path: cfg.Sources.OrderDetailsCSV, Opts: opts})
	}
	if cfg.Sources.SourceDBDriver != "" {
		// The mssql backend import above also registers the "sqlserver"
		// database/sql driver for source extraction.
		db, err := sql.Open(cfg.Sources.SourceDBDriver, cfg.Sources.SourceDBDSN)
		if err != nil {
			return etl.Sources{}, cleanup, fmt.Errorf("open source db: %w", err)
		}
		cleanup = func() { db.Close() }
		srcs.OrderDetails = append(srcs.OrderDetails, extract.OrderDetailsDB{DB: db, Source: cfg.Sources.SourceDBDriver})
	}
	return srcs, cleanup, nil
}

func printReport(r facts.Report) {
	fmt.Printf("warehouse: facts=%d customers=%d products=%d dates=%d statuses=%d orphans=%d/%d\n",
		r.Facts, r.Customers, r.Products, r.Dates, r.Statuses,
		r.OrphanCustomers, r.OrphanProducts)
	for _, s := range r.ByStatus {
		fmt.Printf("  status %-12s orders=%d total=%.2f\n", s.Status, s.Count, s.Total)
	}
	for _, m := range r.ByMonth {
		fmt.Printf("  month %04d-%02d orders=%d total=%.2f\n", m.Year, m.Month, m.Count, m.Total)
	}
}
