package segment

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AngelCh415/auction-tracker/internal/models"
)

var day = time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

func group(campaign, target string, spend, sales float64) models.Record {
	return models.Record{
		CampaignName: campaign,
		Target:       target,
		Date:         day,
		Spend:        models.Some(spend),
		Sales:        models.Some(sales),
	}
}

func withCPM(r models.Record, cpm float64) models.Record {
	r.CPM = models.Some(cpm)
	return r
}

func keys(gs []Group) []string {
	out := make([]string, len(gs))
	for i, g := range gs {
		out[i] = g.CampaignName + "/" + g.Target
	}
	return out
}

func fixture() []models.Record {
	d1 := group("D", "k1", 60, 5)
	d1.ROAS = models.Some(2)
	d2 := group("D", "k1", 40, 5)
	d2.ROAS = models.Some(4)
	return []models.Record{
		withCPM(group("A", "k1", 100, 300), 120),
		withCPM(group("A", "k2", 500, 0), 50),
		withCPM(group("B", "k1", 100, 100), 60),
		group("B", "k2", 50, 0),
		group("C", "k1", 0, 0),
		d1, d2,
		group("", "orphan", 1000, 0),
	}
}

func TestSegmentBuckets(t *testing.T) {
	res, err := Segment(fixture(), DefaultThresholds(), Options{})
	require.NoError(t, err)

	assert.Equal(t, 6, res.Groups, "records without a campaign are ignored")
	assert.Equal(t, 76.67, res.AvgCPM, "mean over groups that report CPM")
	assert.Equal(t, []string{"A/k1", "D/k1"}, keys(res.TopPerformers))
	assert.Equal(t, []string{"B/k1"}, keys(res.Underperformers))
	assert.Equal(t, []string{"A/k2", "B/k2", "C/k1"}, keys(res.NonConverters))
	assert.Equal(t, []string{"A/k2"}, keys(res.WasteAudit))
	assert.Equal(t, []string{"A/k1"}, keys(res.BiddingCandidates))
}

func TestSegmentBucketsAreExclusive(t *testing.T) {
	res, err := Segment(fixture(), DefaultThresholds(), Options{})
	require.NoError(t, err)

	seen := map[string]string{}
	for _, b := range []Bucket{
		{BucketTop, res.TopPerformers},
		{BucketUnder, res.Underperformers},
		{BucketNonConv, res.NonConverters},
	} {
		for _, k := range keys(b.Groups) {
			prev, dup := seen[k]
			assert.False(t, dup, "%s in both %s and %s", k, prev, b.Name)
			seen[k] = b.Name
		}
	}
}

func TestSegmentROAS(t *testing.T) {
	groups := Aggregate(fixture())
	byKey := map[string]Group{}
	for _, g := range groups {
		byKey[g.CampaignName+"/"+g.Target] = g
	}

	assert.Equal(t, 3.0, byKey["A/k1"].ROAS, "sales over spend when no ROAS column")
	assert.Equal(t, 3.0, byKey["D/k1"].ROAS, "mean of reported ROAS")
	assert.Equal(t, 0.0, byKey["C/k1"].ROAS, "zero spend divides by one")
	assert.Equal(t, 2, byKey["D/k1"].Records)
	assert.Equal(t, 100.0, byKey["D/k1"].Spend)
	assert.False(t, byKey["B/k2"].hasCPM)
}

func TestSegmentThresholds(t *testing.T) {
	th := Thresholds{PerfROAS: 0.5, BidROAS: 10, MinWasteSpend: 0}
	res, err := Segment(fixture(), th, Options{})
	require.NoError(t, err)

	assert.Equal(t, []string{"A/k1", "B/k1", "D/k1"}, keys(res.TopPerformers))
	assert.Empty(t, res.Underperformers)
	assert.Equal(t, []string{"A/k2", "B/k2"}, keys(res.WasteAudit), "spend must exceed the minimum")
	assert.Empty(t, res.BiddingCandidates)
	assert.NotNil(t, res.BiddingCandidates)
}

func TestSegmentInvalidThresholds(t *testing.T) {
	_, err := Segment(fixture(), Thresholds{PerfROAS: -1, BidROAS: 1.8}, Options{})
	assert.Error(t, err)
}

func TestSegmentLimits(t *testing.T) {
	var records []models.Record
	for i := 0; i < 12; i++ {
		records = append(records,
			group("Top", fmt.Sprintf("k%02d", i), 10, float64(100+i)),
			group("Waste", fmt.Sprintf("k%02d", i), float64(300+i), 0),
		)
	}

	res, err := Segment(records, DefaultThresholds(), Options{})
	require.NoError(t, err)
	require.Len(t, res.TopPerformers, DefaultLimit)
	assert.Equal(t, "k11", res.TopPerformers[0].Target, "highest sales first")
	assert.Len(t, res.NonConverters, DefaultLimit)
	assert.Len(t, res.WasteAudit, 12, "waste audit is uncapped")
	assert.Equal(t, 311.0, res.WasteAudit[0].Spend)

	res, err = Segment(records, DefaultThresholds(), Options{Limit: 3, WasteLimit: 5})
	require.NoError(t, err)
	assert.Len(t, res.TopPerformers, 3)
	assert.Len(t, res.WasteAudit, 5)
}

func TestSegmentTiesKeepKeyOrder(t *testing.T) {
	records := []models.Record{
		group("B", "x", 10, 50),
		group("A", "y", 10, 50),
		group("A", "x", 10, 50),
	}
	res, err := Segment(records, DefaultThresholds(), Options{})
	require.NoError(t, err)
	assert.Equal(t, []string{"A/x", "A/y", "B/x"}, keys(res.TopPerformers))
}

func TestSegmentRoundsForDisplay(t *testing.T) {
	records := []models.Record{
		withCPM(group("A", "k", 3, 10), 10.004),
		withCPM(group("A", "k", 0, 0), 10.001),
	}
	res, err := Segment(records, DefaultThresholds(), Options{})
	require.NoError(t, err)
	require.Len(t, res.TopPerformers, 1)
	g := res.TopPerformers[0]
	assert.Equal(t, 10.0, g.CPM)
	assert.Equal(t, 3.33, g.ROAS)
}

func TestSegmentEmpty(t *testing.T) {
	res, err := Segment(nil, DefaultThresholds(), Options{})
	require.NoError(t, err)
	assert.Zero(t, res.Groups)
	for _, b := range res.Buckets() {
		assert.NotNil(t, b.Groups, b.Name)
		assert.Empty(t, b.Groups, b.Name)
	}
}

func TestSegmentWithoutSalesColumn(t *testing.T) {
	tracker := func(target string, cpm float64) models.Record {
		return models.Record{
			CampaignName: "C1",
			Target:       target,
			Date:         day,
			Position:     models.Some(2),
			CPM:          models.Some(cpm),
			Impressions:  models.Some(1000),
		}
	}
	res, err := Segment([]models.Record{tracker("K1", 50), tracker("K2", 150)}, DefaultThresholds(), Options{})
	require.NoError(t, err)

	assert.Equal(t, 2, res.Groups)
	assert.Equal(t, 100.0, res.AvgCPM)
	for _, b := range res.Buckets() {
		assert.Empty(t, b.Groups, b.Name)
	}
}

func TestSegmentReportedROASWithoutSales(t *testing.T) {
	r := models.Record{CampaignName: "C1", Target: "K1", Date: day, ROAS: models.Some(2), CPM: models.Some(10)}
	res, err := Segment([]models.Record{r}, DefaultThresholds(), Options{})
	require.NoError(t, err)
	assert.Equal(t, []string{"C1/K1"}, keys(res.TopPerformers))
	assert.Empty(t, res.NonConverters, "absent sales are not zero sales")
}

func TestSegmentSalesWithoutSpend(t *testing.T) {
	r := models.Record{CampaignName: "C1", Target: "K1", Date: day, Sales: models.Some(0)}
	res, err := Segment([]models.Record{r}, Thresholds{PerfROAS: 1.4, BidROAS: 1.8}, Options{})
	require.NoError(t, err)
	assert.Equal(t, []string{"C1/K1"}, keys(res.NonConverters))
	assert.Empty(t, res.WasteAudit, "no spend measured")
}
