// Package ingest normalizes raw delimited sales data into canonical
// SalesRecord candidates with per-row rejection diagnostics.
package ingest

import (
	"bytes"
	"crypto/md5"
	"encoding/csv"
	"encoding/hex"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/hudsons/salespipe/internal/domain"
)

// Canonical column names after alias resolution.
const (
	colSaleDay           = "sale_day"
	colItemName          = "item_name"
	colItemVariationName = "item_variation_name"
	colCategoryName      = "category_name"
	colVariationID       = "variation_id"
	colQuantity          = "quantity"
)

// headerAliases maps cleaned input headers to canonical column names.
// Resolution is case-insensitive because cleanHeader lowercases first.
var headerAliases = map[string]string{
	// sale_day
	"sale_day":        colSaleDay,
	"sale_day_manual": colSaleDay,
	"sale_date":       colSaleDay,
	"order_date":      colSaleDay,
	"date":            colSaleDay,

	// item_name
	"item_name": colItemName,
	"name":      colItemName,
	"item":      colItemName,

	// item_variation_name
	"item_variation_name": colItemVariationName,
	"item_variation":      colItemVariationName,
	"variation_name":      colItemVariationName,
	"variation":           colItemVariationName,

	// category_name
	"category_name": colCategoryName,
	"category":      colCategoryName,
	"cat_name":      colCategoryName,

	// variation_id
	"variation_id":      colVariationID,
	"item_variation_id": colVariationID,
	"sku":               colVariationID,

	// quantity
	"quantity": colQuantity,
	"qty":      colQuantity,
}

// requiredColumns are the logical columns a row must provide to be accepted.
var requiredColumns = []string{colSaleDay, colItemName, colQuantity}

// dateLayouts are the accepted sale date formats, tried in order.
// ISO is canonical; day-first forms match the upstream export tools.
var dateLayouts = []string{
	domain.DateLayout,
	"02/01/2006",
	"2/1/2006",
	"02-01-2006",
}

// Result holds the outcome of normalizing one batch: canonical records in
// input order plus the rejection report for dropped rows. Records are not
// deduplicated here; duplicate identities within a batch are resolved by the
// upsert engine (last row wins).
type Result struct {
	Records    []domain.SalesRecord
	Rejections []domain.RowRejection
	TotalRows  int
}

// Normalizer maps raw tabular input to canonical sales records.
type Normalizer struct{}

// NewNormalizer creates a Normalizer.
func NewNormalizer() *Normalizer {
	return &Normalizer{}
}

// Normalize parses delimited text with a required header row and produces
// canonical records plus per-row rejections. Row numbers in rejections are
// 1-based and count data rows only.
// Parameters:
//   - data: raw file bytes.
// Returns:
//   - *Result: records, rejections, and total data row count.
//   - error: non-nil only when the input is structurally unreadable
//     (no header row or malformed CSV framing).
func (n *Normalizer) Normalize(data []byte) (*Result, error) {
	headerLine := firstLine(data)
	if strings.TrimSpace(headerLine) == "" {
		return nil, fmt.Errorf("input has no header row")
	}

	reader := csv.NewReader(bytes.NewReader(data))
	reader.Comma = detectDelimiter(headerLine)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	rawHeader, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read header row: %w", err)
	}

	// columns maps canonical names to input column positions. First alias
	// match wins so an explicit canonical header beats a looser alias.
	columns := make(map[string]int, len(rawHeader))
	for i, h := range rawHeader {
		canonical, ok := headerAliases[cleanHeader(h)]
		if !ok {
			continue
		}
		if _, seen := columns[canonical]; !seen {
			columns[canonical] = i
		}
	}

	result := &Result{}
	rowNum := 0
	for {
		fields, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read row %d: %w", rowNum+1, err)
		}
		rowNum++
		result.TotalRows++

		rec, rej := n.normalizeRow(rowNum, fields, columns)
		if rej != nil {
			result.Rejections = append(result.Rejections, *rej)
			continue
		}
		result.Records = append(result.Records, *rec)
	}

	return result, nil
}

// normalizeRow coerces one data row. Returns either a record or a rejection,
// never both.
func (n *Normalizer) normalizeRow(rowNum int, fields []string, columns map[string]int) (*domain.SalesRecord, *domain.RowRejection) {
	get := func(canonical string) string {
		idx, ok := columns[canonical]
		if !ok || idx >= len(fields) {
			return ""
		}
		return strings.TrimSpace(fields[idx])
	}

	for _, required := range requiredColumns {
		if get(required) == "" {
			return nil, &domain.RowRejection{
				Row:    rowNum,
				Reason: domain.RejectMissingField,
				Detail: required,
			}
		}
	}

	day, err := parseSaleDate(get(colSaleDay))
	if err != nil {
		return nil, &domain.RowRejection{
			Row:    rowNum,
			Reason: domain.RejectInvalidDate,
			Detail: get(colSaleDay),
		}
	}

	qty, err := parseQuantity(get(colQuantity))
	if err != nil {
		return nil, &domain.RowRejection{
			Row:    rowNum,
			Reason: domain.RejectInvalidQuantity,
			Detail: get(colQuantity),
		}
	}

	itemName := get(colItemName)

	rec := &domain.SalesRecord{
		SaleDay:   day,
		ItemName:  itemName,
		Quantity:  qty,
		DayOfWeek: domain.DayOfWeekMonday0(day),
	}

	if v := get(colItemVariationName); v != "" {
		rec.ItemVariationName = &v
	}
	if v := get(colCategoryName); v != "" {
		rec.CategoryName = &v
	}

	rec.VariationID = get(colVariationID)
	if rec.VariationID == "" {
		rec.VariationID = SynthesizeVariationID(itemName, get(colItemVariationName))
	}

	return rec, nil
}

// SynthesizeVariationID derives a stable identifier from the item name and
// variation name. Determinism matters: repeated ingests of the same logical
// variation must collide on the store's uniqueness constraint.
// Parameters:
//   - itemName: item name, required.
//   - variationName: variation name, may be empty.
// Returns:
//   - string: synthesized variation ID.
func SynthesizeVariationID(itemName, variationName string) string {
	sum := md5.Sum([]byte(itemName + "\x00" + variationName))
	return "syn-" + hex.EncodeToString(sum[:])[:16]
}

// parseSaleDate parses a date in one of the accepted layouts and normalizes
// it to UTC midnight.
func parseSaleDate(s string) (t time.Time, err error) {
	for _, layout := range dateLayouts {
		if parsed, perr := time.Parse(layout, s); perr == nil {
			return domain.NormalizeDay(parsed), nil
		}
	}
	return t, fmt.Errorf("unparseable date %q", s)
}

// parseQuantity coerces a quantity string to a non-negative integer.
// Integral floats ("12.0") are accepted since spreadsheet exports produce
// them; fractional or negative values are not.
func parseQuantity(s string) (int, error) {
	if n, err := strconv.Atoi(s); err == nil {
		if n < 0 {
			return 0, fmt.Errorf("negative quantity %d", n)
		}
		return n, nil
	}

	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("non-numeric quantity %q", s)
	}
	if f < 0 || f != math.Trunc(f) {
		return 0, fmt.Errorf("invalid quantity %q", s)
	}
	return int(f), nil
}

// cleanHeader normalizes a raw header cell: strips the BOM, trims, collapses
// inner whitespace, lowercases, and replaces spaces with underscores.
func cleanHeader(s string) string {
	s = strings.ReplaceAll(s, "\ufeff", "")
	s = strings.Join(strings.Fields(s), " ")
	s = strings.ToLower(strings.TrimSpace(s))
	return strings.ReplaceAll(s, " ", "_")
}

// detectDelimiter picks the delimiter that occurs most often in the header
// line. Comma wins ties.
func detectDelimiter(headerLine string) rune {
	best := ','
	bestCount := strings.Count(headerLine, ",")
	for _, cand := range []rune{';', '\t', '|'} {
		if c := strings.Count(headerLine, string(cand)); c > bestCount {
			best = cand
			bestCount = c
		}
	}
	return best
}

// firstLine returns the first line of data without its terminator.
func firstLine(data []byte) string {
	if idx := bytes.IndexByte(data, '\n'); idx != -1 {
		return strings.TrimRight(string(data[:idx]), "\r")
	}
	return string(data)
}
