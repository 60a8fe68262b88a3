package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/AngelCh415/auction-tracker/internal/config"
	"github.com/AngelCh415/auction-tracker/internal/export"
	"github.com/AngelCh415/auction-tracker/internal/ingest"
	"github.com/AngelCh415/auction-tracker/internal/report"
	"github.com/AngelCh415/auction-tracker/internal/store"
	"github.com/AngelCh415/auction-tracker/internal/utils"
)

var errNoFiles = errors.New("at least one --file is required")

// session is a loaded set of reports ready to query.
type session struct {
	svc *report.Service
	id  string
}

func load(ctx context.Context) (*session, error) {
	paths := viper.GetStringSlice("file")
	if len(paths) == 0 {
		return nil, errNoFiles
	}

	cfg := config.Default()
	cfg.HTTPTimeout = viper.GetDuration("timeout")
	cfg.Precision = viper.GetInt("precision")
	cfg.Policy = viper.GetString("policy")
	cfg.PerfROAS = viper.GetFloat64("perf-roas")
	cfg.BidROAS = viper.GetFloat64("bid-roas")
	cfg.MinWasteSpend = viper.GetFloat64("min-waste-spend")
	cfg.BucketLimit = viper.GetInt("limit")
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	files := make([]ingest.File, 0, len(paths))
	client := ingest.NewHTTPClient(cfg.HTTPTimeout)
	retry := utils.NewBackoff(200*time.Millisecond, 3)
	for _, p := range paths {
		name, b, err := readFile(ctx, client, retry, p)
		if err != nil {
			slog.Warn("skipping file", slog.String("file", p), slog.String("err", err.Error()))
			continue
		}
		files = append(files, ingest.File{Name: name, Data: b})
	}

	etl := ingest.NewETL(slog.Default(), nil, ingest.Options{Precision: cfg.Precision})
	svc := report.NewService(etl, store.NewMemoryStore(1), nil, cfg)
	d, err := svc.Ingest(ctx, files)
	if err != nil {
		return nil, err
	}
	return &session{svc: svc, id: d.ID}, nil
}

// readFile loads a local report or downloads one given as an http(s) URL.
func readFile(ctx context.Context, c ingest.HTTPClient, retry utils.Backoff, loc string) (string, []byte, error) {
	if ingest.IsRemote(loc) {
		return ingest.Fetch(ctx, c, loc, retry)
	}
	b, err := os.ReadFile(loc)
	return filepath.Base(loc), b, err
}

func query() url.Values {
	v := url.Values{}
	for _, k := range []string{"campaign", "from", "to", "perf-roas", "bid-roas", "min-waste-spend"} {
		if s := viper.GetString(k); s != "" {
			v.Set(paramName(k), s)
		}
	}
	v.Set("limit", strconv.Itoa(viper.GetInt("limit")))
	return v
}

// paramName maps a flag name onto the report query parameter.
func paramName(flag string) string {
	switch flag {
	case "perf-roas":
		return "perf_roas"
	case "bid-roas":
		return "bid_roas"
	case "min-waste-spend":
		return "min_waste_spend"
	}
	return flag
}

func emit(w io.Writer, book export.Book, v any) error {
	if out := viper.GetString("out"); out != "" {
		f, err := os.Create(out)
		if err != nil {
			return err
		}
		if err := export.Write(f, book); err != nil {
			f.Close()
			return err
		}
		slog.Info("workbook written", slog.String("path", out))
		return f.Close()
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func pivotCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pivot",
		Short: "Build the date by metric tracker",
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := load(cmd.Context())
			if err != nil {
				return err
			}
			v := query()
			v.Set("q", viper.GetString("search"))
			v.Set("metrics", viper.GetString("metrics"))
			m, err := s.svc.Pivot(s.id, v)
			if err != nil {
				return err
			}
			return emit(cmd.OutOrStdout(), export.Book{Pivot: m}, m.View())
		},
	}
	cmd.Flags().String("search", "", "keep rows whose campaign or target contains this text")
	cmd.Flags().String("metrics", "", "comma separated metrics (position, cpm, impressions, spend, sales, roas)")
	return cmd
}

func segmentsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "segments",
		Short: "Classify campaign/target groups into bidding segments",
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := load(cmd.Context())
			if err != nil {
				return err
			}
			res, err := s.svc.Segments(s.id, query())
			if err != nil {
				return err
			}
			return emit(cmd.OutOrStdout(), export.Book{Segments: res}, res)
		},
	}
}

func trendCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "trend",
		Short: "Spend, sales and ROAS per weekday",
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := load(cmd.Context())
			if err != nil {
				return err
			}
			days, err := s.svc.Trend(s.id, query())
			if err != nil {
				return err
			}
			return emit(cmd.OutOrStdout(), export.Book{Trend: days}, days)
		},
	}
}

func campaignsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "campaigns [query]",
		Short: "List campaigns, fuzzy ranked when a query is given",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := load(cmd.Context())
			if err != nil {
				return err
			}
			v := url.Values{}
			if len(args) == 1 {
				v.Set("q", args[0])
			}
			ms, err := s.svc.Campaigns(s.id, v)
			if err != nil {
				return err
			}
			for _, m := range ms {
				if len(args) == 1 {
					fmt.Fprintf(cmd.OutOrStdout(), "%3d  %s\n", m.Score, m.Candidate)
				} else {
					fmt.Fprintln(cmd.OutOrStdout(), m.Candidate)
				}
			}
			return nil
		},
	}
}

func exportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "export",
		Short: "Write tracker, segments and weekly trend to one workbook",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if viper.GetString("out") == "" {
				viper.Set("out", export.DefaultFilename)
			}
			s, err := load(cmd.Context())
			if err != nil {
				return err
			}
			book, err := s.svc.Workbook(s.id, query())
			if err != nil {
				return err
			}
			return emit(cmd.OutOrStdout(), book, nil)
		},
	}
}
