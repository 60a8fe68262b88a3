package ingest

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path"
	"strings"

	"github.com/AngelCh415/auction-tracker/internal/models"
	"github.com/AngelCh415/auction-tracker/internal/telemetry"
)

// Source is one uploaded or local report file.
type Source struct {
	Name string
	Data io.Reader
}

// File is a report held in memory, as uploaded or downloaded.
type File struct {
	Name string
	Data []byte
}

// UniqueNames renames files whose name was already taken, keeping the
// extension so the reader is still chosen by it: the second "report.csv"
// becomes "report (2).csv". Order is preserved.
func UniqueNames(files []File) []File {
	out := make([]File, len(files))
	taken := make(map[string]bool, len(files))
	for _, f := range files {
		taken[f.Name] = true
	}
	seen := make(map[string]bool, len(files))
	for i, f := range files {
		name := f.Name
		if seen[name] {
			ext := path.Ext(name)
			base := strings.TrimSuffix(name, ext)
			for n := 2; ; n++ {
				name = fmt.Sprintf("%s (%d)%s", base, n, ext)
				if !taken[name] && !seen[name] {
					break
				}
			}
		}
		seen[name] = true
		out[i] = File{Name: name, Data: f.Data}
	}
	return out
}

// SourceError describes a file or sheet that could not be read. It is a
// diagnostic, the remaining sources are still processed.
type SourceError struct {
	Source string `json:"source"`
	Err    string `json:"error"`
}

type Result struct {
	Records []models.Record `json:"-"`
	Sheets  []string        `json:"sheets"`
	Skipped []SourceError   `json:"skipped,omitempty"`
	Stats   Stats           `json:"stats"`
}

func (r *Result) Empty() bool { return r == nil || len(r.Records) == 0 }

type ETL struct {
	log  *slog.Logger
	tel  *telemetry.Metrics
	opts Options
}

func NewETL(log *slog.Logger, tel *telemetry.Metrics, opts Options) *ETL {
	return &ETL{log: log.With(slog.String("component", "ingest")), tel: tel, opts: opts}
}

// Run reads every source and normalizes the combined rows. Unreadable sources
// are skipped; a missing date column aborts the whole run.
func (e *ETL) Run(ctx context.Context, sources []Source) (*Result, error) {
	res := &Result{}
	var sets []models.RowSet
	for _, src := range sources {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		got, err := ReadSource(src.Name, src.Data)
		if err != nil {
			e.log.Warn("skipping source", slog.String("source", src.Name), slog.String("err", err.Error()))
			res.Skipped = append(res.Skipped, SourceError{Source: src.Name, Err: err.Error()})
			e.tel.SourceRead(false)
			continue
		}
		e.tel.SourceRead(true)
		for _, s := range got {
			res.Sheets = append(res.Sheets, s.Source)
		}
		sets = append(sets, got...)
	}

	recs, st, err := NormalizeSets(sets, e.opts)
	if err != nil {
		e.log.Error("normalize failed", slog.String("err", err.Error()), slog.String("sheets", strings.Join(res.Sheets, ",")))
		return nil, err
	}
	res.Records = recs
	res.Stats = st

	e.tel.RecordsIngested(st.Records)
	e.tel.RowsDropped("no_date", st.DroppedNoDate)
	if st.DroppedNoDate > 0 {
		e.log.Warn("rows without a usable date dropped", slog.Int("count", st.DroppedNoDate))
	}
	e.log.Info("ingest complete",
		slog.Int("sources", len(sources)),
		slog.Int("skipped", len(res.Skipped)),
		slog.Int("rows", st.Rows),
		slog.Int("records", st.Records))
	return res, nil
}
