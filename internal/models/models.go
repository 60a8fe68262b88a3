package models

import (
	"math"
	"time"
)

// RawRow is one parsed spreadsheet/CSV row: column name -> cell value.
type RawRow map[string]any

// RowSet is the rows of a single parsed sheet or file.
type RowSet struct {
	Source  string
	Columns []string
	Rows    []RawRow
}

type Metric int

const (
	Position Metric = iota
	CPM
	Impressions
	Spend
	Sales
	ROAS
)

// AllMetrics is the declared metric order used for pivot columns.
var AllMetrics = []Metric{Position, CPM, Impressions, Spend, Sales, ROAS}

// AuctionMetrics are the metrics of the daily side-by-side tracker.
var AuctionMetrics = []Metric{Position, CPM, Impressions}

func (m Metric) String() string {
	switch m {
	case Position:
		return "position"
	case CPM:
		return "cpm"
	case Impressions:
		return "impressions"
	case Spend:
		return "spend"
	case Sales:
		return "sales"
	case ROAS:
		return "roas"
	}
	return "unknown"
}

// Label is the report column header the metric is read from and exported as.
func (m Metric) Label() string {
	switch m {
	case Position:
		return "Most Viewed Position"
	case CPM:
		return "CPM"
	case Impressions:
		return "Impressions"
	case Spend:
		return "Spend"
	case Sales:
		return "Sales"
	case ROAS:
		return "ROAS"
	}
	return "Unknown"
}

func ParseMetric(s string) (Metric, bool) {
	for _, m := range AllMetrics {
		if m.String() == s {
			return m, true
		}
	}
	return 0, false
}

// Measure is an optional numeric field. Valid is false when the source
// schema had no column for the metric.
type Measure struct {
	Value float64
	Valid bool
}

func Some(v float64) Measure { return Measure{Value: v, Valid: true} }

type Record struct {
	CampaignName string
	Target       string
	Date         time.Time
	Position     Measure
	CPM          Measure
	Impressions  Measure
	Spend        Measure
	Sales        Measure
	ROAS         Measure
}

func (r Record) Get(m Metric) Measure {
	switch m {
	case Position:
		return r.Position
	case CPM:
		return r.CPM
	case Impressions:
		return r.Impressions
	case Spend:
		return r.Spend
	case Sales:
		return r.Sales
	case ROAS:
		return r.ROAS
	}
	return Measure{}
}

func (r *Record) Set(m Metric, v Measure) {
	switch m {
	case Position:
		r.Position = v
	case CPM:
		r.CPM = v
	case Impressions:
		r.Impressions = v
	case Spend:
		r.Spend = v
	case Sales:
		r.Sales = v
	case ROAS:
		r.ROAS = v
	}
}

// GroupKey identifies a (campaign, target) pair.
type GroupKey struct {
	CampaignName string `json:"campaign_name"`
	Target       string `json:"target"`
}

func (r Record) Key() GroupKey {
	return GroupKey{CampaignName: r.CampaignName, Target: r.Target}
}

func (k GroupKey) Less(o GroupKey) bool {
	if k.CampaignName != o.CampaignName {
		return k.CampaignName < o.CampaignName
	}
	return k.Target < o.Target
}

const DateLayout = "2006-01-02"

func Day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Round rounds f half away from zero to places decimals.
func Round(f float64, places int) float64 {
	p := math.Pow10(places)
	return math.Round(f*p) / p
}
