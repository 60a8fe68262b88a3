package config

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/kelseyhightower/envconfig"

	"github.com/AngelCh415/auction-tracker/internal/pivot"
	"github.com/AngelCh415/auction-tracker/internal/segment"
)

type Config struct {
	Port         string        `envconfig:"PORT" default:"8080"`
	LogLevel     string        `envconfig:"LOG_LEVEL" default:"info" validate:"oneof=debug info warn error"`
	HTTPTimeout  time.Duration `envconfig:"HTTP_TIMEOUT" default:"15s"`
	MaxUploadMB  int64         `envconfig:"MAX_UPLOAD_MB" default:"32" validate:"gt=0"`
	DatasetCache int           `envconfig:"DATASET_CACHE" default:"16" validate:"gt=0"`

	Precision     int     `envconfig:"TRACKER_PRECISION" default:"2" validate:"gte=0,lte=6"`
	Policy        string  `envconfig:"TRACKER_POLICY" default:"additive" validate:"oneof=additive snapshot"`
	PerfROAS      float64 `envconfig:"TRACKER_PERF_ROAS" default:"1.4" validate:"gte=0"`
	BidROAS       float64 `envconfig:"TRACKER_BID_ROAS" default:"1.8" validate:"gte=0"`
	MinWasteSpend float64 `envconfig:"TRACKER_MIN_WASTE_SPEND" default:"200" validate:"gte=0"`
	BucketLimit   int     `envconfig:"TRACKER_BUCKET_LIMIT" default:"10" validate:"gt=0"`
}

// FromEnv loads the configuration from the environment and validates it.
func FromEnv() (Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return Config{}, fmt.Errorf("load config from env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}
	return nil
}

func (c Config) Level() slog.Level {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(strings.ToUpper(c.LogLevel))); err != nil {
		return slog.LevelInfo
	}
	return lvl
}

func (c Config) Thresholds() segment.Thresholds {
	return segment.Thresholds{PerfROAS: c.PerfROAS, BidROAS: c.BidROAS, MinWasteSpend: c.MinWasteSpend}
}

func (c Config) PivotOptions() (pivot.Options, error) {
	pol, err := pivot.PolicyByName(c.Policy)
	if err != nil {
		return pivot.Options{}, err
	}
	opts := pivot.DefaultOptions()
	opts.Policy = pol
	opts.Precision = c.Precision
	return opts, nil
}

// Default is the configuration with every default applied.
func Default() Config {
	return Config{
		Port:          "8080",
		LogLevel:      "info",
		HTTPTimeout:   15 * time.Second,
		MaxUploadMB:   32,
		DatasetCache:  16,
		Precision:     2,
		Policy:        pivot.PolicyAdditive,
		PerfROAS:      1.4,
		BidROAS:       1.8,
		MinWasteSpend: 200,
		BucketLimit:   segment.DefaultLimit,
	}
}
