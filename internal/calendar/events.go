package calendar

import (
	"fmt"
	"time"

	"github.com/hudsons/salespipe/internal/domain"
)

// EventCalendar reports local event days from a configured date list.
type EventCalendar struct {
	dates map[string]struct{}
}

// NewEventCalendar creates an event calendar from YYYY-MM-DD dates.
// Parameters:
//   - dates: local event dates.
// Returns:
//   - *EventCalendar: initialized calendar.
//   - error: non-nil if a date does not parse.
func NewEventCalendar(dates []string) (*EventCalendar, error) {
	set, err := parseDateSet(dates)
	if err != nil {
		return nil, fmt.Errorf("invalid local event: %w", err)
	}
	return &EventCalendar{dates: set}, nil
}

// IsLocalEvent reports whether day has a configured local event.
func (c *EventCalendar) IsLocalEvent(day time.Time) bool {
	_, ok := c.dates[domain.NormalizeDay(day).Format(domain.DateLayout)]
	return ok
}
