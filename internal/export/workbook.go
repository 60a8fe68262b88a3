// Package export writes tracker results to an XLSX workbook.
package export

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"

	"github.com/AngelCh415/auction-tracker/internal/models"
	"github.com/AngelCh415/auction-tracker/internal/pivot"
	"github.com/AngelCh415/auction-tracker/internal/segment"
	"github.com/AngelCh415/auction-tracker/internal/trend"
)

const (
	TrackerSheet    = "Tracker"
	TrendSheet      = "Weekly Trend"
	DefaultFilename = "daily_side_by_side_tracker.xlsx"
)

// Book is the set of results to export. Nil parts are skipped.
type Book struct {
	Pivot    *pivot.Matrix
	Segments *segment.Result
	Trend    []trend.Day
}

var bucketTitles = map[string]string{
	segment.BucketTop:     "Top Performers",
	segment.BucketUnder:   "Underperformers",
	segment.BucketNonConv: "Non Converters",
	segment.BucketWaste:   "Waste Audit",
	segment.BucketBidding: "Bidding Candidates",
}

// TopPosition reports whether a position is in the highlighted 1..3 range.
func TopPosition(v float64) bool { return v >= 1 && v <= 3 }

func Write(w io.Writer, b Book) error {
	f, err := Build(b)
	if err != nil {
		return err
	}
	defer f.Close()
	return f.Write(w)
}

// Build renders b into a new workbook. The caller closes it.
func Build(b Book) (*excelize.File, error) {
	f := excelize.NewFile()
	if err := fill(f, b); err != nil {
		f.Close()
		return nil, err
	}
	return f, nil
}

func fill(f *excelize.File, b Book) error {
	if err := f.SetSheetName(f.GetSheetName(0), TrackerSheet); err != nil {
		return err
	}
	if b.Pivot != nil {
		if err := writePivot(f, b.Pivot); err != nil {
			return fmt.Errorf("write tracker sheet: %w", err)
		}
	}
	if b.Segments != nil {
		for _, bk := range b.Segments.Buckets() {
			if err := writeBucket(f, bucketTitles[bk.Name], bk); err != nil {
				return fmt.Errorf("write %s sheet: %w", bk.Name, err)
			}
		}
	}
	if b.Trend != nil {
		if err := writeTrend(f, b.Trend); err != nil {
			return fmt.Errorf("write trend sheet: %w", err)
		}
	}
	return nil
}

func writePivot(f *excelize.File, m *pivot.Matrix) error {
	style, err := f.NewStyle(&excelize.Style{
		Fill: excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{"C6EFCE"}},
		Font: &excelize.Font{Color: "006100"},
	})
	if err != nil {
		return err
	}

	header := []any{"Campaign Name", "Target"}
	for _, c := range m.Columns {
		header = append(header, c.Header())
	}
	if err := setRow(f, TrackerSheet, 1, header); err != nil {
		return err
	}
	for i, r := range m.Rows {
		rowIdx := i + 2
		vals := []any{r.CampaignName, r.Target}
		for _, c := range m.Columns {
			if v, ok := m.Value(r, c); ok {
				vals = append(vals, v)
			} else {
				vals = append(vals, nil)
			}
		}
		if err := setRow(f, TrackerSheet, rowIdx, vals); err != nil {
			return err
		}
		for j, c := range m.Columns {
			v, ok := m.Value(r, c)
			if !ok || c.Metric != models.Position || !TopPosition(v) {
				continue
			}
			cell, _ := excelize.CoordinatesToCellName(j+3, rowIdx)
			if err := f.SetCellStyle(TrackerSheet, cell, cell, style); err != nil {
				return err
			}
		}
	}
	return nil
}

func writeBucket(f *excelize.File, sheet string, bk segment.Bucket) error {
	if _, err := f.NewSheet(sheet); err != nil {
		return err
	}
	// Sales is always zero for non-converting groups, so it is left out.
	withSales := bk.Name != segment.BucketNonConv && bk.Name != segment.BucketWaste
	header := []any{"Campaign Name", "Target", "Avg Position", "Avg CPM", "Spend"}
	if withSales {
		header = append(header, "Sales")
	}
	header = append(header, "ROAS")
	if err := setRow(f, sheet, 1, header); err != nil {
		return err
	}
	for i, g := range bk.Groups {
		vals := []any{g.CampaignName, g.Target, g.Position, g.CPM, g.Spend}
		if withSales {
			vals = append(vals, g.Sales)
		}
		vals = append(vals, g.ROAS)
		if err := setRow(f, sheet, i+2, vals); err != nil {
			return err
		}
	}
	return nil
}

func writeTrend(f *excelize.File, days []trend.Day) error {
	if _, err := f.NewSheet(TrendSheet); err != nil {
		return err
	}
	if err := setRow(f, TrendSheet, 1, []any{"Day", "Spend", "Sales", "ROAS"}); err != nil {
		return err
	}
	for i, d := range days {
		if err := setRow(f, TrendSheet, i+2, []any{d.DayOfWeek, d.Spend, d.Sales, d.ROAS}); err != nil {
			return err
		}
	}
	return nil
}

func setRow(f *excelize.File, sheet string, row int, vals []any) error {
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return err
	}
	return f.SetSheetRow(sheet, cell, &vals)
}
