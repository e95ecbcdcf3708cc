package weather

import (
	"math"
	"sort"
)

// dayAccumulator collects one day's hourly samples before aggregation.
type dayAccumulator struct {
	tempSum   float64
	tempCount int
	rhSum     float64
	rhCount   int
	precipSum float64
	codeCount map[int]int
}

// aggregateDaily converts the provider's hourly arrays into per-day
// aggregates: temperature and humidity as daily means, precipitation as the
// daily sum, weather code as the most frequent hourly code (smallest code
// wins a tie, matching a sorted mode). Days missing any of the three sample
// kinds are omitted, which callers treat as "no data"; a day with no humidity
// samples would otherwise store 0, indistinguishable from a measured 0% RH.
func aggregateDaily(payload *hourlyPayload) map[string]Daily {
	h := payload.Hourly
	if len(h.Time) == 0 {
		return map[string]Daily{}
	}

	days := make(map[string]*dayAccumulator)
	for i, ts := range h.Time {
		// Hourly timestamps are "2006-01-02T15:04" localized to the
		// requested timezone; the date prefix is the local day.
		if len(ts) < 10 {
			continue
		}
		day := ts[:10]

		acc, ok := days[day]
		if !ok {
			acc = &dayAccumulator{codeCount: make(map[int]int)}
			days[day] = acc
		}

		if v := at(h.Temperature2M, i); v != nil {
			acc.tempSum += *v
			acc.tempCount++
		}
		if v := at(h.RelativeHumidity2M, i); v != nil {
			acc.rhSum += *v
			acc.rhCount++
		}
		if v := at(h.Precipitation, i); v != nil {
			acc.precipSum += *v
		}
		if i < len(h.WeatherCode) && h.WeatherCode[i] != nil {
			acc.codeCount[*h.WeatherCode[i]]++
		}
	}

	out := make(map[string]Daily, len(days))
	for day, acc := range days {
		if acc.tempCount == 0 || acc.rhCount == 0 || len(acc.codeCount) == 0 {
			continue
		}

		out[day] = Daily{
			Code:          modeCode(acc.codeCount),
			Temperature:   round2(acc.tempSum / float64(acc.tempCount)),
			Humidity:      round2(acc.rhSum / float64(acc.rhCount)),
			Precipitation: round2(acc.precipSum),
		}
	}
	return out
}

// modeCode returns the most frequent code; ties break toward the smallest.
func modeCode(counts map[int]int) int {
	codes := make([]int, 0, len(counts))
	for code := range counts {
		codes = append(codes, code)
	}
	sort.Ints(codes)

	best, bestCount := codes[0], counts[codes[0]]
	for _, code := range codes[1:] {
		if counts[code] > bestCount {
			best, bestCount = code, counts[code]
		}
	}
	return best
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func at(vals []*float64, i int) *float64 {
	if i < len(vals) {
		return vals[i]
	}
	return nil
}
