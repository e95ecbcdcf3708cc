// Package calendar computes holiday and local-event flags for sale dates.
// Both flags are pure functions of the date plus static configuration; no
// network calls are involved.
package calendar

import (
	"fmt"
	"time"

	"github.com/hudsons/salespipe/internal/domain"
	"github.com/rickar/cal/v2"
)

// weekendToMonday shifts a Saturday or Sunday holiday to the following
// Monday, the standard NSW substitute-day rule.
var weekendToMonday = []cal.AltDay{
	{Day: time.Saturday, Offset: 2},
	{Day: time.Sunday, Offset: 1},
}

// NSW public holidays. Anzac Day carries no substitute day in NSW, and the
// Easter block runs Good Friday through Easter Monday inclusive. Christmas
// and Boxing Day keep their fixed dates and add the following Monday and
// Tuesday when they fall on a weekend.
var (
	newYearsDay = &cal.Holiday{
		Name:     "New Year's Day",
		Type:     cal.ObservancePublic,
		Month:    time.January,
		Day:      1,
		Observed: weekendToMonday,
		Func:     cal.CalcDayOfMonth,
	}
	australiaDay = &cal.Holiday{
		Name:     "Australia Day",
		Type:     cal.ObservancePublic,
		Month:    time.January,
		Day:      26,
		Observed: weekendToMonday,
		Func:     cal.CalcDayOfMonth,
	}
	goodFriday = &cal.Holiday{
		Name:   "Good Friday",
		Type:   cal.ObservancePublic,
		Offset: -2,
		Func:   cal.CalcEasterOffset,
	}
	easterSaturday = &cal.Holiday{
		Name:   "Easter Saturday",
		Type:   cal.ObservancePublic,
		Offset: -1,
		Func:   cal.CalcEasterOffset,
	}
	easterSunday = &cal.Holiday{
		Name: "Easter Sunday",
		Type: cal.ObservancePublic,
		Func: cal.CalcEasterOffset,
	}
	easterMonday = &cal.Holiday{
		Name:   "Easter Monday",
		Type:   cal.ObservancePublic,
		Offset: 1,
		Func:   cal.CalcEasterOffset,
	}
	anzacDay = &cal.Holiday{
		Name:  "Anzac Day",
		Type:  cal.ObservancePublic,
		Month: time.April,
		Day:   25,
		Func:  cal.CalcDayOfMonth,
	}
	kingsBirthday = &cal.Holiday{
		Name:    "King's Birthday",
		Type:    cal.ObservancePublic,
		Month:   time.June,
		Weekday: time.Monday,
		Offset:  2,
		Func:    cal.CalcWeekdayOffset,
	}
	labourDay = &cal.Holiday{
		Name:    "Labour Day",
		Type:    cal.ObservancePublic,
		Month:   time.October,
		Weekday: time.Monday,
		Offset:  1,
		Func:    cal.CalcWeekdayOffset,
	}
	christmasDay = &cal.Holiday{
		Name:  "Christmas Day",
		Type:  cal.ObservancePublic,
		Month: time.December,
		Day:   25,
		Observed: []cal.AltDay{
			{Day: time.Saturday, Offset: 2},
			{Day: time.Sunday, Offset: 1},
		},
		Func: cal.CalcDayOfMonth,
	}
	boxingDay = &cal.Holiday{
		Name:  "Boxing Day",
		Type:  cal.ObservancePublic,
		Month: time.December,
		Day:   26,
		Observed: []cal.AltDay{
			{Day: time.Saturday, Offset: 2},
			{Day: time.Sunday, Offset: 2},
		},
		Func: cal.CalcDayOfMonth,
	}

	nswHolidays = []*cal.Holiday{
		newYearsDay,
		australiaDay,
		goodFriday,
		easterSaturday,
		easterSunday,
		easterMonday,
		anzacDay,
		kingsBirthday,
		labourDay,
		christmasDay,
		boxingDay,
	}
)

// regionCalendar builds the rule calendar for a region; nil means no
// built-in rules (config-supplied extra dates still apply).
func regionCalendar(region string) *cal.Calendar {
	switch region {
	case "AU", "AU-NSW":
		c := &cal.Calendar{Name: region}
		c.AddHoliday(nswHolidays...)
		return c
	default:
		return nil
	}
}

// HolidayCalendar reports public holidays for a configured region, plus any
// extra dates supplied through configuration.
type HolidayCalendar struct {
	rules *cal.Calendar
	extra map[string]struct{}
}

// NewHolidayCalendar creates a holiday calendar.
// Parameters:
//   - region: built-in rule set to use; "AU" and "AU-NSW" are supported,
//     any other value disables the built-in rules (extra dates still apply).
//   - extraDates: additional holiday dates in YYYY-MM-DD form.
// Returns:
//   - *HolidayCalendar: initialized calendar.
//   - error: non-nil if an extra date does not parse.
func NewHolidayCalendar(region string, extraDates []string) (*HolidayCalendar, error) {
	extra, err := parseDateSet(extraDates)
	if err != nil {
		return nil, fmt.Errorf("invalid extra holiday: %w", err)
	}
	return &HolidayCalendar{rules: regionCalendar(region), extra: extra}, nil
}

// IsHoliday reports whether day is a public holiday. A date counts when it
// is the holiday itself or its gazetted substitute day.
func (c *HolidayCalendar) IsHoliday(day time.Time) bool {
	day = domain.NormalizeDay(day)
	if _, ok := c.extra[day.Format(domain.DateLayout)]; ok {
		return true
	}
	if c.rules == nil {
		return false
	}

	actual, observed, _ := c.rules.IsHoliday(day)
	return actual || observed
}

// parseDateSet parses YYYY-MM-DD strings into a lookup set.
func parseDateSet(dates []string) (map[string]struct{}, error) {
	set := make(map[string]struct{}, len(dates))
	for _, s := range dates {
		d, err := time.Parse(domain.DateLayout, s)
		if err != nil {
			return nil, fmt.Errorf("date %q: %w", s, err)
		}
		set[d.Format(domain.DateLayout)] = struct{}{}
	}
	return set, nil
}
