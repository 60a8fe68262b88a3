package report

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/AngelCh415/auction-tracker/internal/config"
	"github.com/AngelCh415/auction-tracker/internal/export"
	"github.com/AngelCh415/auction-tracker/internal/fuzzy"
	"github.com/AngelCh415/auction-tracker/internal/ingest"
	"github.com/AngelCh415/auction-tracker/internal/models"
	"github.com/AngelCh415/auction-tracker/internal/pivot"
	"github.com/AngelCh415/auction-tracker/internal/segment"
	"github.com/AngelCh415/auction-tracker/internal/store"
	"github.com/AngelCh415/auction-tracker/internal/telemetry"
	"github.com/AngelCh415/auction-tracker/internal/trend"
)

// MatchLimit is how many campaigns a fuzzy search ranks.
const MatchLimit = 5

// ParamError is a malformed query parameter.
type ParamError struct {
	Param string
	Err   error
}

func (e *ParamError) Error() string { return fmt.Sprintf("parameter %q: %v", e.Param, e.Err) }
func (e *ParamError) Unwrap() error { return e.Err }

type Service struct {
	etl *ingest.ETL
	st  *store.MemoryStore
	tel *telemetry.Metrics
	cfg config.Config
}

func NewService(etl *ingest.ETL, st *store.MemoryStore, tel *telemetry.Metrics, cfg config.Config) *Service {
	return &Service{etl: etl, st: st, tel: tel, cfg: cfg}
}

// Ingest consolidates files into a cached dataset. Files sharing a name are
// all kept under distinct names. Uploading the same files again, in any
// order, returns the cached dataset. When nothing usable was read the
// returned dataset still carries the diagnostics and the error is
// ingest.ErrNoData.
func (s *Service) Ingest(ctx context.Context, files []ingest.File) (*store.Dataset, error) {
	id := store.Key(files)
	if d, err := s.st.Get(id); err == nil {
		return d, nil
	}
	files = append([]ingest.File(nil), files...)
	store.SortFiles(files)
	files = ingest.UniqueNames(files)
	srcs := make([]ingest.Source, 0, len(files))
	for _, f := range files {
		srcs = append(srcs, ingest.Source{Name: f.Name, Data: bytes.NewReader(f.Data)})
	}

	res, err := s.etl.Run(ctx, srcs)
	if err != nil {
		return nil, err
	}
	d := &store.Dataset{
		ID:        id,
		CreatedAt: time.Now().UTC(),
		Sheets:    res.Sheets,
		Skipped:   res.Skipped,
		Stats:     res.Stats,
		Records:   res.Records,
	}
	if res.Empty() {
		return d, ingest.ErrNoData
	}
	s.st.Put(d)
	return d, nil
}

func (s *Service) Dataset(id string) (*store.Dataset, error) { return s.st.Get(id) }

// Datasets lists the cached datasets, oldest first.
func (s *Service) Datasets() []*store.Dataset { return s.st.All() }

// Delete drops a cached dataset.
func (s *Service) Delete(id string) error {
	if !s.st.Delete(id) {
		return store.ErrNotFound
	}
	return nil
}

func norm(s string) string { return strings.ToLower(strings.TrimSpace(s)) }

func csvSet(s string) map[string]struct{} {
	out := map[string]struct{}{}
	for _, p := range strings.Split(s, ",") {
		p = norm(p)
		if p != "" {
			out[p] = struct{}{}
		}
	}
	return out
}

// Select narrows a dataset's records by the shared query parameters:
//
//	from, to    inclusive YYYY-MM-DD bounds
//	campaign    fuzzy campaign search; matching campaigns are kept
//	campaigns   comma separated exact campaign names (case-insensitive)
func (s *Service) Select(d *store.Dataset, v url.Values) ([]models.Record, error) {
	if len(d.Records) == 0 {
		return nil, ingest.ErrNoData
	}
	from, err := dateParam(v, "from")
	if err != nil {
		return nil, err
	}
	to, err := dateParam(v, "to")
	if err != nil {
		return nil, err
	}
	names := csvSet(v.Get("campaigns"))
	if q := v.Get("campaign"); strings.TrimSpace(q) != "" {
		for _, m := range fuzzy.Select(q, d.Campaigns(), MatchLimit) {
			names[norm(m.Candidate)] = struct{}{}
		}
		if len(names) == 0 {
			return []models.Record{}, nil
		}
	}

	out := make([]models.Record, 0, len(d.Records))
	for _, r := range d.Records {
		if !from.IsZero() && r.Date.Before(from) {
			continue
		}
		if !to.IsZero() && r.Date.After(to) {
			continue
		}
		if len(names) > 0 {
			if _, ok := names[norm(r.CampaignName)]; !ok {
				continue
			}
		}
		out = append(out, r)
	}
	return out, nil
}

func (s *Service) dataset(id string, v url.Values) ([]models.Record, error) {
	d, err := s.st.Get(id)
	if err != nil {
		return nil, err
	}
	return s.Select(d, v)
}

// Pivot builds the tracker matrix. Besides the Select parameters it reads
//
//	q        substring search over campaign and target
//	metrics  comma separated metric names (default position,cpm,impressions)
//	policy   additive | snapshot
func (s *Service) Pivot(id string, v url.Values) (*pivot.Matrix, error) {
	recs, err := s.dataset(id, v)
	if err != nil {
		return nil, err
	}
	return s.pivot(recs, v)
}

func (s *Service) pivot(recs []models.Record, v url.Values) (*pivot.Matrix, error) {
	opts, err := s.cfg.PivotOptions()
	if err != nil {
		return nil, err
	}
	if p := v.Get("policy"); p != "" {
		pol, err := pivot.PolicyByName(p)
		if err != nil {
			return nil, &ParamError{Param: "policy", Err: err}
		}
		opts.Policy = pol
	}
	if ms := v.Get("metrics"); ms != "" {
		opts.Metrics = nil
		for name := range csvSet(ms) {
			m, ok := models.ParseMetric(name)
			if !ok {
				return nil, &ParamError{Param: "metrics", Err: fmt.Errorf("unknown metric %q", name)}
			}
			opts.Metrics = append(opts.Metrics, m)
		}
	}
	m, err := pivot.Build(recs, opts)
	if err != nil {
		return nil, err
	}
	return m.Search(v.Get("q")), nil
}

// Segments classifies groups. Thresholds default to the configured ones and
// can be overridden with perf_roas, bid_roas, min_waste_spend and limit.
func (s *Service) Segments(id string, v url.Values) (*segment.Result, error) {
	recs, err := s.dataset(id, v)
	if err != nil {
		return nil, err
	}
	return s.segments(recs, v)
}

func (s *Service) segments(recs []models.Record, v url.Values) (*segment.Result, error) {
	th := s.cfg.Thresholds()
	var err error
	if th.PerfROAS, err = floatParam(v, "perf_roas", th.PerfROAS); err != nil {
		return nil, err
	}
	if th.BidROAS, err = floatParam(v, "bid_roas", th.BidROAS); err != nil {
		return nil, err
	}
	if th.MinWasteSpend, err = floatParam(v, "min_waste_spend", th.MinWasteSpend); err != nil {
		return nil, err
	}
	if err := th.Validate(); err != nil {
		return nil, &ParamError{Param: "thresholds", Err: err}
	}
	res, err := segment.Segment(recs, th, segment.Options{Limit: atoiDef(v.Get("limit"), s.cfg.BucketLimit)})
	if err != nil {
		return nil, err
	}
	for _, b := range res.Buckets() {
		s.tel.BucketSize(b.Name, len(b.Groups))
	}
	return res, nil
}

func (s *Service) Trend(id string, v url.Values) ([]trend.Day, error) {
	recs, err := s.dataset(id, v)
	if err != nil {
		return nil, err
	}
	return trend.Weekly(recs), nil
}

// Campaigns lists campaign names; with q they are fuzzy ranked and filtered.
func (s *Service) Campaigns(id string, v url.Values) ([]fuzzy.Match, error) {
	d, err := s.st.Get(id)
	if err != nil {
		return nil, err
	}
	return fuzzy.Select(v.Get("q"), d.Campaigns(), atoiDef(v.Get("limit"), MatchLimit)), nil
}

// Workbook assembles every view for export with the same parameters.
func (s *Service) Workbook(id string, v url.Values) (export.Book, error) {
	recs, err := s.dataset(id, v)
	if err != nil {
		return export.Book{}, err
	}
	m, err := s.pivot(recs, v)
	if err != nil {
		return export.Book{}, err
	}
	seg, err := s.segments(recs, v)
	if err != nil {
		return export.Book{}, err
	}
	return export.Book{Pivot: m, Segments: seg, Trend: trend.Weekly(recs)}, nil
}

func dateParam(v url.Values, name string) (time.Time, error) {
	s := strings.TrimSpace(v.Get(name))
	if s == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(models.DateLayout, s)
	if err != nil {
		return time.Time{}, &ParamError{Param: name, Err: err}
	}
	return t, nil
}

func floatParam(v url.Values, name string, def float64) (float64, error) {
	s := strings.TrimSpace(v.Get(name))
	if s == "" {
		return def, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, &ParamError{Param: name, Err: err}
	}
	return f, nil
}

func atoiDef(s string, d int) int {
	v, err := strconv.Atoi(s)
	if err != nil || v <= 0 {
		return d
	}
	return v
}
