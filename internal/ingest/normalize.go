package ingest

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cast"
	"github.com/xuri/excelize/v2"

	"github.com/AngelCh415/auction-tracker/internal/models"
)

const (
	DateColumn     = "date_ist"
	CampaignColumn = "Campaign Name"
	UnknownTarget  = "Unknown"
)

// TargetColumns in priority order; the first one present on a row wins.
var TargetColumns = []string{"Keyword", "Category Name", "Asset"}

// ColumnRule maps a source column onto a record metric.
type ColumnRule struct {
	Column string
	Metric models.Metric
}

// MetricColumns is evaluated top to bottom; for each metric only the first
// matching column of a row is used.
var MetricColumns = []ColumnRule{
	{"Most Viewed Position", models.Position},
	{"CPM", models.CPM},
	{"Impressions", models.Impressions},
	{"Estimated Budget Consumed", models.Spend},
	{"Budget Consumed", models.Spend},
	{"Spend", models.Spend},
	{"Direct Sales", models.Sales},
	{"Sales", models.Sales},
	{"Direct ROAS", models.ROAS},
	{"ROAS", models.ROAS},
}

var ErrNoData = errors.New("no data")

// SchemaError is returned when a column every grouping depends on is absent
// from the whole input.
type SchemaError struct {
	Column string
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("schema: no %q column found", e.Column)
}

type Options struct {
	// Precision is the number of decimals kept after numeric coercion.
	Precision int
}

func DefaultOptions() Options { return Options{Precision: 2} }

type Stats struct {
	Rows            int `json:"rows"`
	Records         int `json:"records"`
	DroppedNoDate   int `json:"dropped_no_date"`
	MissingCampaign int `json:"missing_campaign"`
	UnknownTarget   int `json:"unknown_target"`
}

// Normalize converts a single set of raw rows into canonical records.
func Normalize(rows []models.RawRow, opts Options) ([]models.Record, error) {
	recs, _, err := NormalizeSets([]models.RowSet{{Rows: rows}}, opts)
	return recs, err
}

// NormalizeSets concatenates every row set and normalizes the result. The
// date column must appear in at least one set, otherwise nothing is returned.
func NormalizeSets(sets []models.RowSet, opts Options) ([]models.Record, Stats, error) {
	var st Stats
	trimmed := make([][]map[string]any, len(sets))
	hasDate := false
	for i, set := range sets {
		for _, c := range set.Columns {
			if strings.TrimSpace(c) == DateColumn {
				hasDate = true
			}
		}
		trimmed[i] = make([]map[string]any, 0, len(set.Rows))
		for _, r := range set.Rows {
			t := trimKeys(r)
			if _, ok := t[DateColumn]; ok {
				hasDate = true
			}
			trimmed[i] = append(trimmed[i], t)
		}
		st.Rows += len(set.Rows)
	}
	if st.Rows == 0 {
		return nil, st, nil
	}
	if !hasDate {
		return nil, st, &SchemaError{Column: DateColumn}
	}

	out := make([]models.Record, 0, st.Rows)
	for _, rows := range trimmed {
		for _, row := range rows {
			d, ok := parseDate(row[DateColumn])
			if !ok {
				st.DroppedNoDate++
				continue
			}
			rec := models.Record{
				CampaignName: cellString(row[CampaignColumn]),
				Target:       resolveTarget(row),
				Date:         d,
			}
			if rec.CampaignName == "" {
				st.MissingCampaign++
			}
			if rec.Target == UnknownTarget {
				st.UnknownTarget++
			}
			for _, rule := range MetricColumns {
				if rec.Get(rule.Metric).Valid {
					continue
				}
				v, ok := row[rule.Column]
				if !ok {
					continue
				}
				rec.Set(rule.Metric, models.Some(Coerce(v, opts.Precision)))
			}
			out = append(out, rec)
		}
	}
	st.Records = len(out)
	return out, st, nil
}

// Coerce parses v as a number, ignoring thousands separators. Anything
// unparseable becomes 0.
func Coerce(v any, places int) float64 {
	if s, ok := v.(string); ok {
		v = strings.ReplaceAll(strings.TrimSpace(s), ",", "")
	}
	f, err := cast.ToFloat64E(v)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0
	}
	return models.Round(f, places)
}

func trimKeys(r models.RawRow) map[string]any {
	out := make(map[string]any, len(r))
	for k, v := range r {
		k = strings.TrimSpace(k)
		if _, dup := out[k]; dup {
			continue
		}
		out[k] = v
	}
	return out
}

func resolveTarget(row map[string]any) string {
	for _, c := range TargetColumns {
		if s := cellString(row[c]); s != "" {
			return s
		}
	}
	return UnknownTarget
}

func cellString(v any) string {
	if v == nil {
		return ""
	}
	return cast.ToString(v)
}

var dateLayouts = []string{
	models.DateLayout,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	time.RFC3339,
	"2006/01/02",
	"01/02/2006",
	"1/2/2006",
	"01-02-2006",
	"02 Jan 2006",
	"Jan 2, 2006",
}

// parseDate accepts text dates, time values and Excel serial numbers.
func parseDate(v any) (time.Time, bool) {
	switch x := v.(type) {
	case nil:
		return time.Time{}, false
	case time.Time:
		return models.Day(x), !x.IsZero()
	case string:
		s := strings.TrimSpace(x)
		if s == "" {
			return time.Time{}, false
		}
		for _, l := range dateLayouts {
			if t, err := time.Parse(l, s); err == nil {
				return models.Day(t), true
			}
		}
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return excelSerial(f)
		}
		return time.Time{}, false
	}
	f, err := cast.ToFloat64E(v)
	if err != nil {
		return time.Time{}, false
	}
	return excelSerial(f)
}

func excelSerial(f float64) (time.Time, bool) {
	if f <= 0 {
		return time.Time{}, false
	}
	t, err := excelize.ExcelDateToTime(f, false)
	if err != nil {
		return time.Time{}, false
	}
	return models.Day(t), true
}
