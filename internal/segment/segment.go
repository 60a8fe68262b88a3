// Package segment classifies (campaign, target) groups into the buckets the
// bidding review works from.
package segment

import (
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/go-playground/validator/v10"

	"github.com/AngelCh415/auction-tracker/internal/models"
)

const (
	BucketTop     = "top_performers"
	BucketUnder   = "underperformers"
	BucketNonConv = "non_converters"
	BucketWaste   = "waste_audit"
	BucketBidding = "bidding_candidates"
	DefaultLimit  = 10
)

type Thresholds struct {
	PerfROAS      float64 `json:"perf_roas" validate:"gte=0"`
	BidROAS       float64 `json:"bid_roas" validate:"gte=0"`
	MinWasteSpend float64 `json:"min_waste_spend" validate:"gte=0"`
}

func DefaultThresholds() Thresholds {
	return Thresholds{PerfROAS: 1.4, BidROAS: 1.8, MinWasteSpend: 200}
}

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

func (t Thresholds) Validate() error {
	validateOnce.Do(func() { validate = validator.New() })
	if err := validate.Struct(t); err != nil {
		return fmt.Errorf("invalid thresholds: %w", err)
	}
	return nil
}

type Options struct {
	// Limit caps every bucket except WasteAudit. 0 means DefaultLimit.
	Limit int
	// WasteLimit caps WasteAudit; 0 leaves it uncapped.
	WasteLimit int
}

// Group is the aggregate of every record of a (campaign, target) pair.
type Group struct {
	CampaignName string  `json:"campaign_name"`
	Target       string  `json:"target"`
	Position     float64 `json:"avg_position"`
	CPM          float64 `json:"avg_cpm"`
	Spend        float64 `json:"spend"`
	Sales        float64 `json:"sales"`
	ROAS         float64 `json:"roas"`
	Records      int     `json:"records"`

	// Set when at least one record measured the metric.
	hasCPM, hasSpend, hasSales, hasROAS bool
}

func (g Group) key() models.GroupKey {
	return models.GroupKey{CampaignName: g.CampaignName, Target: g.Target}
}

type Result struct {
	Thresholds        Thresholds `json:"thresholds"`
	Groups            int        `json:"groups"`
	AvgCPM            float64    `json:"avg_cpm"`
	TopPerformers     []Group    `json:"top_performers"`
	Underperformers   []Group    `json:"underperformers"`
	NonConverters     []Group    `json:"non_converters"`
	WasteAudit        []Group    `json:"waste_audit"`
	BiddingCandidates []Group    `json:"bidding_candidates"`
}

type Bucket struct {
	Name   string
	Groups []Group
}

// Buckets lists the buckets in presentation order.
func (r *Result) Buckets() []Bucket {
	return []Bucket{
		{BucketTop, r.TopPerformers},
		{BucketUnder, r.Underperformers},
		{BucketNonConv, r.NonConverters},
		{BucketWaste, r.WasteAudit},
		{BucketBidding, r.BiddingCandidates},
	}
}

func Segment(records []models.Record, th Thresholds, opts Options) (*Result, error) {
	if err := th.Validate(); err != nil {
		return nil, err
	}
	limit := opts.Limit
	if limit <= 0 {
		limit = DefaultLimit
	}

	groups := Aggregate(records)
	res := &Result{
		Thresholds:        th,
		Groups:            len(groups),
		TopPerformers:     []Group{},
		Underperformers:   []Group{},
		NonConverters:     []Group{},
		WasteAudit:        []Group{},
		BiddingCandidates: []Group{},
	}

	var cpmSum float64
	var cpmN int
	for _, g := range groups {
		if g.hasCPM {
			cpmSum += g.CPM
			cpmN++
		}
	}
	if cpmN > 0 {
		res.AvgCPM = cpmSum / float64(cpmN)
	}

	for _, g := range groups {
		switch {
		case !g.hasROAS:
			// nothing measured to classify on
		case g.hasSales && g.Sales == 0:
			res.NonConverters = append(res.NonConverters, g)
			if g.hasSpend && g.Spend > th.MinWasteSpend {
				res.WasteAudit = append(res.WasteAudit, g)
			}
		case g.ROAS >= th.PerfROAS:
			res.TopPerformers = append(res.TopPerformers, g)
		case g.ROAS > 0:
			res.Underperformers = append(res.Underperformers, g)
		}
		if g.hasROAS && g.ROAS >= th.BidROAS && g.hasCPM && cpmN > 0 && g.CPM > res.AvgCPM {
			res.BiddingCandidates = append(res.BiddingCandidates, g)
		}
	}

	bySales := func(a, b Group) bool { return a.Sales > b.Sales }
	bySpend := func(a, b Group) bool { return a.Spend > b.Spend }
	byROAS := func(a, b Group) bool { return a.ROAS > b.ROAS }

	res.TopPerformers = rank(res.TopPerformers, bySales, limit)
	res.Underperformers = rank(res.Underperformers, bySpend, limit)
	res.NonConverters = rank(res.NonConverters, bySpend, limit)
	res.WasteAudit = rank(res.WasteAudit, bySpend, opts.WasteLimit)
	res.BiddingCandidates = rank(res.BiddingCandidates, byROAS, limit)
	res.AvgCPM = models.Round(res.AvgCPM, 2)
	return res, nil
}

// Aggregate folds records into one Group per (campaign, target), sorted by
// key. Records without a campaign name are ignored. A group whose records
// carry neither sales nor ROAS has no ROAS and is left out of every bucket.
func Aggregate(records []models.Record) []Group {
	type sums struct {
		g                 Group
		pos, cpm, roas    float64
		nPos, nCPM, nROAS int
	}
	byKey := make(map[models.GroupKey]*sums)
	for _, r := range records {
		if r.CampaignName == "" {
			continue
		}
		s, ok := byKey[r.Key()]
		if !ok {
			s = &sums{g: Group{CampaignName: r.CampaignName, Target: r.Target}}
			byKey[r.Key()] = s
		}
		s.g.Records++
		if r.Position.Valid {
			s.pos += r.Position.Value
			s.nPos++
		}
		if r.CPM.Valid {
			s.cpm += r.CPM.Value
			s.nCPM++
		}
		if r.ROAS.Valid {
			s.roas += r.ROAS.Value
			s.nROAS++
		}
		if r.Spend.Valid {
			s.g.Spend += r.Spend.Value
			s.g.hasSpend = true
		}
		if r.Sales.Valid {
			s.g.Sales += r.Sales.Value
			s.g.hasSales = true
		}
	}

	out := make([]Group, 0, len(byKey))
	for _, s := range byKey {
		g := s.g
		if s.nPos > 0 {
			g.Position = s.pos / float64(s.nPos)
		}
		if s.nCPM > 0 {
			g.CPM = s.cpm / float64(s.nCPM)
			g.hasCPM = true
		}
		switch {
		case s.nROAS > 0:
			g.ROAS = s.roas / float64(s.nROAS)
			g.hasROAS = true
		case g.hasSales:
			g.ROAS = g.Sales / math.Max(g.Spend, 1)
			g.hasROAS = true
		}
		out = append(out, g)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].key().Less(out[j].key()) })
	return out
}

// rank sorts gs (already in key order) by better, keeping key order on
// ties, caps it to limit and rounds for display.
func rank(gs []Group, better func(a, b Group) bool, limit int) []Group {
	sort.SliceStable(gs, func(i, j int) bool { return better(gs[i], gs[j]) })
	if limit > 0 && len(gs) > limit {
		gs = gs[:limit]
	}
	for i := range gs {
		gs[i].Position = models.Round(gs[i].Position, 2)
		gs[i].CPM = models.Round(gs[i].CPM, 2)
		gs[i].Spend = models.Round(gs[i].Spend, 2)
		gs[i].Sales = models.Round(gs[i].Sales, 2)
		gs[i].ROAS = models.Round(gs[i].ROAS, 2)
	}
	return gs
}
