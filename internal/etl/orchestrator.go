// Package etl drives one warehouse load cycle end to end: extraction,
// consolidation, validation, deduplication, dimension loading, fact transform
// and load, and post-load verification. A run either reaches Done or Failed;
// callers only ever see the Result summary.
package etl

import (
	"context"
	"fmt"
	"time"

	"salesdw/internal/clock"
	"salesdw/internal/dimension"
	"salesdw/internal/extract"
	"salesdw/internal/facts"
	"salesdw/internal/metrics"
	"salesdw/internal/sales"
	"salesdw/internal/storage"
)

// Logger is the minimal logging facility the orchestrator uses.
type Logger interface {
	Printf(format string, v ...any)
}

type discardLogger struct{}

func (discardLogger) Printf(string, ...any) {}

// Phase is one step of the run state machine.
type Phase int

const (
	PhaseExtracting Phase = iota
	PhaseConsolidating
	PhaseValidating
	PhaseDeduplicating
	PhaseDimensionLoading
	PhaseFactTransforming
	PhaseFactLoading
	PhaseVerifying
	PhaseDone
	PhaseFailed
)

var phaseNames = [...]string{
	"extracting",
	"consolidating",
	"validating",
	"deduplicating",
	"dimension_loading",
	"fact_transforming",
	"fact_loading",
	"verifying",
	"done",
	"failed",
}

func (p Phase) String() string {
	if int(p) < len(phaseNames) {
		return phaseNames[p]
	}
	return fmt.Sprintf("phase(%d)", int(p))
}

// Sources are the registered extractors for one run. PrimarySales is the
// source whose failure aborts the run; every other source degrades to zero
// records on failure.
type Sources struct {
	PrimarySales  extract.Extractor[sales.Record]
	OptionalSales []extract.Extractor[sales.Record]
	Customers     []extract.Extractor[sales.CustomerRecord]
	Products      []extract.Extractor[sales.ProductRecord]
	OrderDetails  []extract.Extractor[sales.OrderDetail]
}

// Result is the per-run summary, the only thing a caller sees.
type Result struct {
	Success     bool
	Extracted   int
	Transformed int
	Loaded      int
	Invalid     int
	Duplicate   int

	// AlreadyLoaded and BadRefs detail fact rows skipped by the loader's
	// idempotency and referential guards.
	AlreadyLoaded int
	BadRefs       int

	Report  facts.Report
	Elapsed time.Duration
	Err     error
}

// Options configure an Orchestrator.
type Options struct {
	Store     storage.Store
	Clock     clock.Clock
	Logger    Logger
	BatchSize int
	Holidays  dimension.HolidayPolicy
	Sources   Sources
}

// Orchestrator runs one load cycle at a time. It is not safe for concurrent
// Run calls; the surrounding scheduler serializes runs.
type Orchestrator struct {
	store storage.Store
	clk   clock.Clock
	log   Logger
	batch int

	customers *dimension.CustomerLoader
	products  *dimension.ProductLoader
	times     *dimension.TimeLoader
	statuses  *dimension.StatusLoader
	facts     *facts.Loader
	verifier  *facts.Verifier

	sources Sources
	phase   Phase
}

func New(opts Options) *Orchestrator {
	log := opts.Logger
	if log == nil {
		log = discardLogger{}
	}
	clk := opts.Clock
	if clk == nil {
		clk = clock.System{}
	}
	batch := opts.BatchSize
	if batch <= 0 {
		batch = dimension.DefaultBatchSize
	}
	return &Orchestrator{
		store: opts.Store,
		clk:   clk,
		log:   log,
		batch: batch,

		customers: dimension.NewCustomerLoader(opts.Store, clk, log, batch),
		products:  dimension.NewProductLoader(opts.Store, clk, log, batch),
		times:     dimension.NewTimeLoader(opts.Store, clk, log, batch, opts.Holidays),
		statuses:  dimension.NewStatusLoader(opts.Store, clk, log),
		facts:     facts.NewLoader(opts.Store, clk, log, batch),
		verifier:  facts.NewVerifier(opts.Store, log),

		sources: opts.Sources,
		phase:   PhaseExtracting,
	}
}

// Phase returns the current state of the run.
func (o *Orchestrator) Phase() Phase { return o.phase }

// Run executes one full cycle. It never returns raw failures: persistence
// errors and panics terminate the run in Failed with the error captured in
// the Result.
func (o *Orchestrator) Run(ctx context.Context) (res Result) {
	started := time.Now()
	defer func() {
		res.Elapsed = time.Since(started)
		if r := recover(); r != nil {
			o.fail(&res, fmt.Errorf("panic: %v", r))
		}
		o.log.Printf("stage=run phase=%s success=%t extracted=%d transformed=%d loaded=%d invalid=%d duplicate=%d elapsed=%s",
			o.phase, res.Success, res.Extracted, res.Transformed, res.Loaded, res.Invalid, res.Duplicate, res.Elapsed)
		metrics.RecordRows("extracted", int64(res.Extracted))
		metrics.RecordRows("invalid", int64(res.Invalid))
		metrics.RecordRows("duplicate", int64(res.Duplicate))
		metrics.RecordRows("loaded", int64(res.Loaded))
	}()

	raw, customers, products, details, err := o.runExtract(ctx)
	if err != nil {
		o.fail(&res, err)
		return res
	}

	o.transition(PhaseConsolidating)
	consolidated := o.timed(PhaseConsolidating, func() []sales.Record {
		return sales.Consolidate(details, customers, products)
	})
	raw = append(raw, consolidated...)
	res.Extracted = len(raw)

	o.transition(PhaseValidating)
	now := o.clk.Now()
	valid := make([]sales.Record, 0, len(raw))
	start := time.Now()
	for _, rec := range raw {
		if violations := sales.Validate(rec, now); len(violations) > 0 {
			res.Invalid++
			o.log.Printf("stage=validate order=%q violations=%v", rec.OrderID, violations)
			continue
		}
		valid = append(valid, sales.Normalize(rec))
	}
	metrics.RecordPhase(PhaseValidating.String(), nil, time.Since(start))

	o.transition(PhaseDeduplicating)
	deduped, removed := sales.Deduplicate(valid)
	res.Duplicate = removed
	res.Transformed = len(deduped)

	o.transition(PhaseDimensionLoading)
	if err := o.loadDimensions(ctx, customers, products, deduped); err != nil {
		o.fail(&res, err)
		return res
	}

	o.transition(PhaseFactTransforming)
	candidates, err := o.transformFacts(ctx, deduped)
	if err != nil {
		o.fail(&res, err)
		return res
	}

	o.transition(PhaseFactLoading)
	start = time.Now()
	stats, err := o.facts.Load(ctx, candidates)
	metrics.RecordPhase(PhaseFactLoading.String(), err, time.Since(start))
	if err != nil {
		o.fail(&res, err)
		return res
	}
	res.Loaded = stats.Loaded
	res.AlreadyLoaded = stats.AlreadyLoaded
	res.BadRefs = stats.BadRefs

	o.transition(PhaseVerifying)
	report, err := o.verifier.Verify(ctx)
	if err != nil {
		o.fail(&res, err)
		return res
	}
	res.Report = report
	if !report.OK() {
		o.log.Printf("stage=verify warn=orphaned_facts customers=%d products=%d",
			report.OrphanCustomers, report.OrphanProducts)
	}

	o.transition(PhaseDone)
	res.Success = true
	return res
}

// runExtract pulls every source concurrently per record type. Only the
// primary sales source is fatal; any other failure degrades to an empty
// source.
func (o *Orchestrator) runExtract(ctx context.Context) (raw []sales.Record, customers []sales.CustomerRecord, products []sales.ProductRecord, details []sales.OrderDetail, err error) {
	o.transition(PhaseExtracting)
	start := time.Now()
	defer func() {
		metrics.RecordPhase(PhaseExtracting.String(), err, time.Since(start))
	}()

	saleSources := make([]extract.Extractor[sales.Record], 0, 1+len(o.sources.OptionalSales))
	if o.sources.PrimarySales != nil {
		saleSources = append(saleSources, o.sources.PrimarySales)
	}
	saleSources = append(saleSources, o.sources.OptionalSales...)

	saleOutcomes := extract.Run(ctx, o.log, saleSources)
	for i, out := range saleOutcomes {
		if out.Err != nil {
			if i == 0 && o.sources.PrimarySales != nil {
				return nil, nil, nil, nil, fmt.Errorf("primary source %s: %w", out.Source, out.Err)
			}
			continue
		}
		raw = append(raw, out.Records...)
	}

	for _, out := range extract.Run(ctx, o.log, o.sources.Customers) {
		if out.Err == nil {
			customers = append(customers, out.Records...)
		}
	}
	for _, out := range extract.Run(ctx, o.log, o.sources.Products) {
		if out.Err == nil {
			products = append(products, out.Records...)
		}
	}
	for _, out := range extract.Run(ctx, o.log, o.sources.OrderDetails) {
		if out.Err == nil {
			details = append(details, out.Records...)
		}
	}
	return raw, customers, products, details, nil
}

// loadDimensions loads all four dimensions in dependency order. Facts cannot
// transform until every dimension is resolvable.
func (o *Orchestrator) loadDimensions(ctx context.Context, customers []sales.CustomerRecord, products []sales.ProductRecord, deduped []sales.Record) (err error) {
	start := time.Now()
	defer func() {
		metrics.RecordPhase(PhaseDimensionLoading.String(), err, time.Since(start))
	}()

	if err := o.customers.Prime(ctx); err != nil {
		return err
	}
	if err := o.products.Prime(ctx); err != nil {
		return err
	}
	if err := o.times.Prime(ctx); err != nil {
		return err
	}
	if err := o.statuses.Prime(ctx); err != nil {
		return err
	}

	// Sale records carry denormalized customer/product attributes; merge them
	// behind the dedicated sources so the richer source rows win.
	custRecs := append([]sales.CustomerRecord{}, customers...)
	prodRecs := append([]sales.ProductRecord{}, products...)
	for _, r := range deduped {
		// Without an email there is no natural key; facts for such records
		// resolve to the sentinel customer instead.
		if r.CustomerEmail != "" {
			custRecs = append(custRecs, sales.CustomerRecord{
				Name:    r.CustomerName,
				Surname: r.CustomerSurname,
				Email:   r.CustomerEmail,
			})
		}
		prodRecs = append(prodRecs, sales.ProductRecord{
			Name:      r.ProductName,
			Category:  r.Category,
			BasePrice: r.Price,
		})
	}

	if _, _, err := o.customers.LoadBatch(ctx, custRecs); err != nil {
		return err
	}
	if _, _, err := o.products.LoadBatch(ctx, prodRecs); err != nil {
		return err
	}

	dates := make([]time.Time, 0, len(deduped))
	for _, r := range deduped {
		dates = append(dates, r.SaleDate)
	}
	if _, err := o.times.LoadDates(ctx, dates); err != nil {
		return err
	}

	seen := map[string]struct{}{}
	for _, r := range deduped {
		if _, ok := seen[r.Status]; ok {
			continue
		}
		seen[r.Status] = struct{}{}
		if _, err := o.statuses.EnsureStatus(ctx, r.Status); err != nil {
			return err
		}
	}
	return nil
}

// transformFacts resolves all four surrogate keys per record and builds fact
// candidates. Unresolvable customers/products fall back to the sentinel rows;
// a date missing from the time dimension is created lazily; a blank status
// falls back to the default status key.
func (o *Orchestrator) transformFacts(ctx context.Context, deduped []sales.Record) (out []sales.FactCandidate, err error) {
	start := time.Now()
	defer func() {
		metrics.RecordPhase(PhaseFactTransforming.String(), err, time.Since(start))
	}()

	for _, r := range deduped {
		customerID, ok := o.customers.Resolve(r.CustomerEmail)
		if !ok {
			if customerID, err = o.customers.UnknownID(ctx); err != nil {
				return nil, err
			}
		}
		productID, ok := o.products.Resolve(r.ProductName)
		if !ok {
			if productID, err = o.products.UnknownID(ctx); err != nil {
				return nil, err
			}
		}
		timeID, ok := o.times.Resolve(r.SaleDate)
		if !ok {
			if timeID, err = o.times.EnsureDate(ctx, r.SaleDate); err != nil {
				return nil, err
			}
		}
		statusID, ok := o.statuses.Resolve(r.Status)
		if !ok {
			if statusID, err = o.statuses.EnsureStatus(ctx, r.Status); err != nil {
				return nil, err
			}
		}

		out = append(out, sales.FactCandidate{
			OrderID:    r.OrderID,
			CustomerID: customerID,
			ProductID:  productID,
			TimeID:     timeID,
			StatusID:   statusID,
			Quantity:   r.Quantity,
			UnitPrice:  r.Price,
			Total:      r.Total(),
		})
	}
	return out, nil
}

func (o *Orchestrator) transition(p Phase) {
	o.phase = p
	o.log.Printf("stage=run phase=%s", p)
}

func (o *Orchestrator) fail(res *Result, err error) {
	o.phase = PhaseFailed
	res.Success = false
	res.Err = err
	o.log.Printf("stage=run phase=failed err=%q", err)
}

func (o *Orchestrator) timed(p Phase, fn func() []sales.Record) []sales.Record {
	start := time.Now()
	out := fn()
	metrics.RecordPhase(p.String(), nil, time.Since(start))
	return out
}
