package service

import (
	"context"
	"sort"
	"time"

	"github.com/hudsons/salespipe/internal/domain"
	"github.com/hudsons/salespipe/internal/repository"
)

// UpsertSummary reports what one batch changed in the store. Dates is the
// distinct set of sale days touched by the batch, sorted ascending; it is
// the sole input the enrichment phase consumes.
type UpsertSummary struct {
	Inserted int
	Updated  int
	Dates    []time.Time
}

// UpsertEngine applies validated sales records against the store keyed by
// (sale_day, item_name, variation_id). It assumes normalizer-validated
// input: anything malformed at this stage is a contract violation, not a
// recoverable row error.
type UpsertEngine struct {
	sales *repository.SalesRepository
}

// NewUpsertEngine creates an upsert engine.
func NewUpsertEngine(sales *repository.SalesRepository) *UpsertEngine {
	return &UpsertEngine{sales: sales}
}

// Apply upserts a batch and reports the delta. Duplicate identity tuples
// within the batch are legal; the last row wins. Re-running the same batch
// is idempotent: the final row contents are identical.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - records: canonical records from the normalizer, in input order.
// Returns:
//   - *UpsertSummary: inserted/updated counts and touched dates.
//   - error: *domain.ContractViolationError for invalid input,
//     *domain.StoreError for database failures.
func (e *UpsertEngine) Apply(ctx context.Context, records []domain.SalesRecord) (*UpsertSummary, error) {
	if err := validateBatch(records); err != nil {
		return nil, err
	}

	deduped := dedupeLastWins(records)
	dates := distinctDates(deduped)

	existing, err := e.sales.ExistingIdentities(ctx, dates)
	if err != nil {
		return nil, &domain.StoreError{Op: "identity lookup", Err: err}
	}

	summary := &UpsertSummary{Dates: dates}
	for i := range deduped {
		if _, ok := existing[deduped[i].Identity()]; ok {
			summary.Updated++
		} else {
			summary.Inserted++
		}
	}

	if err := e.sales.UpsertBatch(ctx, deduped); err != nil {
		return nil, &domain.StoreError{Op: "upsert", Err: err}
	}

	return summary, nil
}

// validateBatch enforces the normalizer's postconditions.
func validateBatch(records []domain.SalesRecord) error {
	for i := range records {
		r := &records[i]
		switch {
		case r.SaleDay.IsZero():
			return domain.ContractViolationf("record %d has zero sale day", i)
		case r.ItemName == "":
			return domain.ContractViolationf("record %d has empty item name", i)
		case r.VariationID == "":
			return domain.ContractViolationf("record %d has empty variation id", i)
		case r.Quantity < 0:
			return domain.ContractViolationf("record %d has negative quantity %d", i, r.Quantity)
		}
	}
	return nil
}

// dedupeLastWins collapses duplicate identity tuples, keeping the last
// occurrence's values. A single INSERT cannot hit the same conflict key
// twice, so this must happen before the statement is built.
func dedupeLastWins(records []domain.SalesRecord) []domain.SalesRecord {
	index := make(map[domain.IdentityKey]int, len(records))
	deduped := make([]domain.SalesRecord, 0, len(records))

	for i := range records {
		key := records[i].Identity()
		if pos, seen := index[key]; seen {
			deduped[pos] = records[i]
			continue
		}
		index[key] = len(deduped)
		deduped = append(deduped, records[i])
	}
	return deduped
}

// distinctDates returns the sorted distinct sale days of a batch.
func distinctDates(records []domain.SalesRecord) []time.Time {
	seen := make(map[string]time.Time, len(records))
	for i := range records {
		day := domain.NormalizeDay(records[i].SaleDay)
		seen[day.Format(domain.DateLayout)] = day
	}

	dates := make([]time.Time, 0, len(seen))
	for _, d := range seen {
		dates = append(dates, d)
	}
	sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })
	return dates
}
