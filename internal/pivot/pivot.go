// Package pivot builds the daily side-by-side tracker: one row per
// (campaign, target) pair and one column per (date, metric) pair.
package pivot

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/AngelCh415/auction-tracker/internal/models"
)

type Options struct {
	Metrics   []models.Metric
	Policy    Policy
	Precision int
}

func DefaultOptions() Options {
	return Options{Metrics: models.AuctionMetrics, Policy: AdditivePolicy(), Precision: 2}
}

// Column orders date first, then metric in declaration order.
type Column struct {
	Date   time.Time
	Metric models.Metric
}

func (c Column) Less(o Column) bool {
	if !c.Date.Equal(o.Date) {
		return c.Date.Before(o.Date)
	}
	return c.Metric < o.Metric
}

// Header is the flattened column name used by exports.
func (c Column) Header() string {
	return c.Date.Format(models.DateLayout) + " " + c.Metric.Label()
}

type cell struct {
	row models.GroupKey
	col Column
}

// Matrix is sparse: a missing cell means no observation, not zero.
type Matrix struct {
	Rows    []models.GroupKey
	Columns []Column
	cells   map[cell]float64
}

func (m *Matrix) Value(row models.GroupKey, col Column) (float64, bool) {
	v, ok := m.cells[cell{row, col}]
	return v, ok
}

func (m *Matrix) Len() int { return len(m.Rows) }

type acc struct {
	sum   float64
	n     int
	first float64
}

func Build(records []models.Record, opts Options) (*Matrix, error) {
	metrics := append([]models.Metric(nil), opts.Metrics...)
	sort.Slice(metrics, func(i, j int) bool { return metrics[i] < metrics[j] })
	for _, mt := range metrics {
		if _, ok := opts.Policy[mt]; !ok {
			return nil, fmt.Errorf("pivot: no aggregation configured for %s", mt)
		}
	}

	accs := make(map[cell]*acc)
	rows := make(map[models.GroupKey]struct{})
	for _, r := range records {
		if r.CampaignName == "" {
			continue
		}
		key := r.Key()
		rows[key] = struct{}{}
		for _, mt := range metrics {
			v := r.Get(mt)
			if !v.Valid {
				continue
			}
			k := cell{key, Column{Date: models.Day(r.Date), Metric: mt}}
			a, ok := accs[k]
			if !ok {
				a = &acc{first: v.Value}
				accs[k] = a
			}
			a.sum += v.Value
			a.n++
		}
	}

	m := &Matrix{cells: make(map[cell]float64, len(accs))}
	cols := make(map[Column]struct{})
	for k, a := range accs {
		var v float64
		switch opts.Policy[k.col.Metric] {
		case Mean:
			v = a.sum / float64(a.n)
		case Sum:
			v = a.sum
		case First:
			v = a.first
		}
		m.cells[k] = models.Round(v, opts.Precision)
		cols[k.col] = struct{}{}
	}

	for k := range rows {
		m.Rows = append(m.Rows, k)
	}
	sort.Slice(m.Rows, func(i, j int) bool { return m.Rows[i].Less(m.Rows[j]) })
	for c := range cols {
		m.Columns = append(m.Columns, c)
	}
	sort.Slice(m.Columns, func(i, j int) bool { return m.Columns[i].Less(m.Columns[j]) })
	return m, nil
}

// Filter keeps the rows for which keep returns true. Columns are unchanged.
func (m *Matrix) Filter(keep func(models.GroupKey) bool) *Matrix {
	out := &Matrix{Columns: m.Columns, cells: m.cells}
	for _, r := range m.Rows {
		if keep(r) {
			out.Rows = append(out.Rows, r)
		}
	}
	return out
}

// Search keeps rows whose campaign or target contains q, ignoring case.
func (m *Matrix) Search(q string) *Matrix {
	q = strings.ToLower(strings.TrimSpace(q))
	if q == "" {
		return m
	}
	return m.Filter(func(k models.GroupKey) bool {
		return strings.Contains(strings.ToLower(k.CampaignName), q) ||
			strings.Contains(strings.ToLower(k.Target), q)
	})
}
