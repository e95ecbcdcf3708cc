package domain

import (
	"time"
)

// SalesRecord represents one observed quantity of one item variation sold on
// one calendar day. The identity of a record is the tuple
// (sale_day, item_name, variation_id); re-ingesting the same identity updates
// quantity and descriptive fields without touching enrichment columns.
type SalesRecord struct {
	ID                uint      `gorm:"primaryKey" json:"id"`
	SaleDay           time.Time `gorm:"type:date;not null;uniqueIndex:idx_daily_sale_identity" json:"sale_day"`
	ItemName          string    `gorm:"type:text;not null;uniqueIndex:idx_daily_sale_identity" json:"item_name"`
	VariationID       string    `gorm:"type:text;not null;uniqueIndex:idx_daily_sale_identity" json:"variation_id"`
	ItemVariationName *string   `gorm:"type:text" json:"item_variation_name,omitempty"`
	CategoryName      *string   `gorm:"type:text" json:"category_name,omitempty"`
	Quantity          int       `gorm:"not null;default:0" json:"quantity"`
	DayOfWeek         int       `gorm:"not null" json:"day_of_week"`

	// Enrichment columns stay null until an enrichment pass covers the day.
	WeatherCode   *int     `json:"weather_code,omitempty"`
	Temperature   *float64 `json:"temperature,omitempty"`
	Humidity      *float64 `json:"humidity,omitempty"`
	Precipitation *float64 `json:"precipitation,omitempty"`
	IsHoliday     *bool    `json:"is_holiday,omitempty"`
	IsLocalEvent  *bool    `json:"is_local_event,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName returns the database table name for SalesRecord.
func (SalesRecord) TableName() string {
	return "daily_items_sale"
}

// IdentityKey uniquely identifies a sales record within the store.
type IdentityKey struct {
	SaleDay     string
	ItemName    string
	VariationID string
}

// Identity returns the record's identity key. SaleDay is rendered in ISO form
// so keys built from the store and keys built from parsed input compare equal.
func (r *SalesRecord) Identity() IdentityKey {
	return IdentityKey{
		SaleDay:     r.SaleDay.Format(DateLayout),
		ItemName:    r.ItemName,
		VariationID: r.VariationID,
	}
}

// DateLayout is the canonical wire and log format for sale dates.
const DateLayout = "2006-01-02"

// DayOfWeekMonday0 converts a date to the pinned day-of-week convention:
// Monday=0 through Sunday=6. Both the normalizer and any consumer of the
// day_of_week column must go through this function.
func DayOfWeekMonday0(t time.Time) int {
	return (int(t.Weekday()) + 6) % 7
}

// NormalizeDay truncates a timestamp to a date at UTC midnight so that date
// equality comparisons are stable regardless of the source timezone offset.
func NormalizeDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
