package repository

import (
	"context"
	"time"

	"github.com/hudsons/salespipe/internal/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// upsertBatchSize bounds the number of rows per INSERT statement.
const upsertBatchSize = 500

// SalesRepository handles daily_items_sale data operations.
type SalesRepository struct {
	db *gorm.DB
}

// NewSalesRepository creates a new SalesRepository.
// Parameters:
//   - db: GORM database handle used for queries.
// Returns:
//   - *SalesRepository: repository instance bound to db.
func NewSalesRepository(db *gorm.DB) *SalesRepository {
	return &SalesRepository{db: db}
}

// ExistingIdentities returns the identity tuples already stored for the
// given sale days. The upsert engine uses this to classify a batch into
// inserts and updates before applying it.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - days: distinct sale days covered by the batch.
// Returns:
//   - map[domain.IdentityKey]struct{}: set of identities present in the store.
//   - error: non-nil if the query fails.
func (r *SalesRepository) ExistingIdentities(ctx context.Context, days []time.Time) (map[domain.IdentityKey]struct{}, error) {
	existing := make(map[domain.IdentityKey]struct{})
	if len(days) == 0 {
		return existing, nil
	}

	var rows []domain.SalesRecord
	if err := r.db.WithContext(ctx).
		Select("sale_day", "item_name", "variation_id").
		Where("sale_day IN ?", days).
		Find(&rows).Error; err != nil {
		return nil, err
	}

	for i := range rows {
		existing[rows[i].Identity()] = struct{}{}
	}
	return existing, nil
}

// UpsertBatch applies validated records against the store keyed by
// (sale_day, item_name, variation_id). Existing rows get their quantity and
// descriptive fields replaced; enrichment columns are never written here, so
// re-ingesting can not clobber an enriched row with nulls.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - records: canonical records, already deduplicated on identity.
// Returns:
//   - error: non-nil if the statement fails.
func (r *SalesRepository) UpsertBatch(ctx context.Context, records []domain.SalesRecord) error {
	if len(records) == 0 {
		return nil
	}

	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "sale_day"},
			{Name: "item_name"},
			{Name: "variation_id"},
		},
		DoUpdates: clause.AssignmentColumns([]string{
			"item_variation_name",
			"category_name",
			"quantity",
			"day_of_week",
			"updated_at",
		}),
	}).CreateInBatches(records, upsertBatchSize).Error
}

// UpdateWeatherForDay writes daily weather aggregates to every row whose
// sale_day equals day. Rows for other days are untouched. Safe to re-run:
// repeated application converges to the same values.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - day: sale day to update.
//   - code: representative WMO weather code for the day.
//   - temperature: daily mean temperature (°C).
//   - humidity: daily mean relative humidity (%).
//   - precipitation: daily precipitation sum (mm).
// Returns:
//   - int64: number of rows updated.
//   - error: non-nil if the update fails.
func (r *SalesRepository) UpdateWeatherForDay(ctx context.Context, day time.Time, code int, temperature, humidity, precipitation float64) (int64, error) {
	res := r.db.WithContext(ctx).
		Model(&domain.SalesRecord{}).
		Where("sale_day = ?", day).
		Updates(map[string]interface{}{
			"weather_code":  code,
			"temperature":   temperature,
			"humidity":      humidity,
			"precipitation": precipitation,
		})
	return res.RowsAffected, res.Error
}

// UpdateCalendarFlags writes holiday and local-event flags to every row whose
// sale_day equals day.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - day: sale day to update.
//   - isHoliday: public holiday flag for the day.
//   - isLocalEvent: local event flag for the day.
// Returns:
//   - int64: number of rows updated.
//   - error: non-nil if the update fails.
func (r *SalesRepository) UpdateCalendarFlags(ctx context.Context, day time.Time, isHoliday, isLocalEvent bool) (int64, error) {
	res := r.db.WithContext(ctx).
		Model(&domain.SalesRecord{}).
		Where("sale_day = ?", day).
		Updates(map[string]interface{}{
			"is_holiday":     isHoliday,
			"is_local_event": isLocalEvent,
		})
	return res.RowsAffected, res.Error
}

// GetByIdentity retrieves a record by its identity tuple.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - day: sale day.
//   - itemName: item name.
//   - variationID: variation ID.
// Returns:
//   - *domain.SalesRecord: record if found.
//   - error: non-nil if lookup fails.
func (r *SalesRepository) GetByIdentity(ctx context.Context, day time.Time, itemName, variationID string) (*domain.SalesRecord, error) {
	var rec domain.SalesRecord
	if err := r.db.WithContext(ctx).
		First(&rec, "sale_day = ? AND item_name = ? AND variation_id = ?", day, itemName, variationID).Error; err != nil {
		return nil, err
	}
	return &rec, nil
}

// ListByDay retrieves all records for one sale day.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - day: sale day to filter by.
// Returns:
//   - []domain.SalesRecord: matching records.
//   - error: non-nil if the query fails.
func (r *SalesRepository) ListByDay(ctx context.Context, day time.Time) ([]domain.SalesRecord, error) {
	var recs []domain.SalesRecord
	if err := r.db.WithContext(ctx).
		Where("sale_day = ?", day).
		Order("item_name, variation_id").
		Find(&recs).Error; err != nil {
		return nil, err
	}
	return recs, nil
}

// DistinctDays returns every distinct sale day present in the store, sorted
// ascending. Used by the standalone backfill command.
// Parameters:
//   - ctx: context for cancellation and deadlines.
// Returns:
//   - []time.Time: distinct sale days.
//   - error: non-nil if the query fails.
func (r *SalesRepository) DistinctDays(ctx context.Context) ([]time.Time, error) {
	var days []time.Time
	if err := r.db.WithContext(ctx).
		Model(&domain.SalesRecord{}).
		Distinct("sale_day").
		Order("sale_day").
		Pluck("sale_day", &days).Error; err != nil {
		return nil, err
	}
	return days, nil
}
