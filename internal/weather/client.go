// Package weather fetches daily weather aggregates from the Open-Meteo
// archive API. The provider exposes hourly series; this package aggregates
// them to the per-day values the enrichment pipeline stores.
package weather

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/hudsons/salespipe/internal/domain"
)

// hourlyVars are the hourly variables requested from the provider.
const hourlyVars = "temperature_2m,relative_humidity_2m,precipitation,weathercode"

// Daily holds the per-day aggregates written to sales rows:
// mean temperature (°C), mean relative humidity (%), precipitation sum (mm)
// and the most frequent hourly weather code.
type Daily struct {
	Code          int
	Temperature   float64
	Humidity      float64
	Precipitation float64
}

// Config holds configuration for the weather client.
type Config struct {
	BaseURL   string
	Latitude  float64
	Longitude float64
	Timezone  string
	ChunkDays int
	Timeout   time.Duration
}

// Client calls the Open-Meteo archive API.
type Client struct {
	http      *resty.Client
	baseURL   string
	latitude  float64
	longitude float64
	timezone  string
	chunkDays int
}

// NewClient creates a weather client.
// Parameters:
//   - cfg: provider location, chunking and timeout settings.
// Returns:
//   - *Client: initialized client.
func NewClient(cfg *Config) *Client {
	client := resty.New()
	if cfg.Timeout > 0 {
		client.SetTimeout(cfg.Timeout)
	}

	chunkDays := cfg.ChunkDays
	if chunkDays <= 0 {
		chunkDays = 31
	}

	return &Client{
		http:      client,
		baseURL:   cfg.BaseURL,
		latitude:  cfg.Latitude,
		longitude: cfg.Longitude,
		timezone:  cfg.Timezone,
		chunkDays: chunkDays,
	}
}

// DateRange is an inclusive calendar date range.
type DateRange struct {
	Start time.Time
	End   time.Time
}

// Chunks splits the inclusive range start..end into ranges of at most the
// configured chunk size, so one oversized request never covers months of
// hourly data.
// Parameters:
//   - start: first day, inclusive.
//   - end: last day, inclusive.
// Returns:
//   - []DateRange: covering chunks in ascending order.
func (c *Client) Chunks(start, end time.Time) []DateRange {
	start = domain.NormalizeDay(start)
	end = domain.NormalizeDay(end)

	var chunks []DateRange
	for cur := start; !cur.After(end); {
		to := cur.AddDate(0, 0, c.chunkDays-1)
		if to.After(end) {
			to = end
		}
		chunks = append(chunks, DateRange{Start: cur, End: to})
		cur = to.AddDate(0, 0, 1)
	}
	return chunks
}

// hourlyPayload mirrors the provider's hourly response arrays. Values may be
// null for hours the archive has no data for.
type hourlyPayload struct {
	Hourly struct {
		Time               []string   `json:"time"`
		Temperature2M      []*float64 `json:"temperature_2m"`
		RelativeHumidity2M []*float64 `json:"relative_humidity_2m"`
		Precipitation      []*float64 `json:"precipitation"`
		WeatherCode        []*int     `json:"weathercode"`
	} `json:"hourly"`
	Reason string `json:"reason,omitempty"`
}

// FetchChunk fetches hourly weather for one date range and aggregates it to
// per-day values keyed by ISO date. Days absent from the returned map are
// valid "no data" responses, not errors.
// Parameters:
//   - ctx: context bounding the request.
//   - r: inclusive date range to fetch.
// Returns:
//   - map[string]Daily: aggregates keyed by YYYY-MM-DD.
//   - error: non-nil on transport failure, timeout, or provider error status.
func (c *Client) FetchChunk(ctx context.Context, r DateRange) (map[string]Daily, error) {
	var payload hourlyPayload
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"latitude":   fmt.Sprintf("%.4f", c.latitude),
			"longitude":  fmt.Sprintf("%.4f", c.longitude),
			"start_date": r.Start.Format(domain.DateLayout),
			"end_date":   r.End.Format(domain.DateLayout),
			"hourly":     hourlyVars,
			"timezone":   c.timezone,
		}).
		SetResult(&payload).
		SetError(&payload).
		Get(c.baseURL)

	if err != nil {
		return nil, fmt.Errorf("weather request %s..%s failed: %w",
			r.Start.Format(domain.DateLayout), r.End.Format(domain.DateLayout), err)
	}
	if resp.StatusCode() != 200 {
		if payload.Reason != "" {
			return nil, fmt.Errorf("weather API error: %s", payload.Reason)
		}
		return nil, fmt.Errorf("weather API error: status %d", resp.StatusCode())
	}

	return aggregateDaily(&payload), nil
}
