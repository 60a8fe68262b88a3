package pivot

import (
	"fmt"
	"strings"

	"github.com/AngelCh415/auction-tracker/internal/models"
)

type AggFunc int

const (
	Mean AggFunc = iota
	Sum
	// First keeps the first observed value in input order.
	First
)

func (a AggFunc) String() string {
	switch a {
	case Mean:
		return "mean"
	case Sum:
		return "sum"
	case First:
		return "first"
	}
	return "unknown"
}

func ParseAggFunc(s string) (AggFunc, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "mean", "avg":
		return Mean, nil
	case "sum":
		return Sum, nil
	case "first":
		return First, nil
	}
	return 0, fmt.Errorf("unknown aggregation %q", s)
}

// Policy is the aggregation applied to each metric when several records
// share a (campaign, target, date) cell.
type Policy map[models.Metric]AggFunc

const (
	PolicyAdditive = "additive"
	PolicySnapshot = "snapshot"
)

// AdditivePolicy consolidates overlapping reports: ranks and prices are
// averaged, counts and money are summed.
func AdditivePolicy() Policy {
	return Policy{
		models.Position:    Mean,
		models.CPM:         Mean,
		models.Impressions: Sum,
		models.Spend:       Sum,
		models.Sales:       Sum,
		models.ROAS:        Mean,
	}
}

// SnapshotPolicy assumes one report row per day and keeps the first.
func SnapshotPolicy() Policy {
	p := Policy{}
	for _, m := range models.AllMetrics {
		p[m] = First
	}
	return p
}

func PolicyByName(name string) (Policy, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", PolicyAdditive:
		return AdditivePolicy(), nil
	case PolicySnapshot:
		return SnapshotPolicy(), nil
	}
	return nil, fmt.Errorf("unknown aggregation policy %q", name)
}

// With returns a copy of p with metric m aggregated by f.
func (p Policy) With(m models.Metric, f AggFunc) Policy {
	out := make(Policy, len(p)+1)
	for k, v := range p {
		out[k] = v
	}
	out[m] = f
	return out
}
