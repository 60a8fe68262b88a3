package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	version = "dev"
	rootCmd = &cobra.Command{
		Use:   "tracker",
		Short: "Daily side-by-side auction tracker",
		Long: `tracker consolidates ad performance exports (CSV or XLSX, one row per
campaign/target/day) into a date by metric tracker, weekly trend and
bidding segments.`,
		PersistentPreRunE: initConfig,
		SilenceUsage:      true,
	}
)

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringSliceP("file", "f", nil, "report file or http(s) URL (.csv, .xlsx); repeat or comma separate")
	pf.StringP("out", "o", "", "write an .xlsx workbook to this path instead of JSON to stdout")
	pf.String("log-level", "info", "log level (debug, info, warn, error)")
	pf.Duration("timeout", 15*time.Second, "download timeout for report URLs")
	pf.Int("precision", 2, "decimals kept after coercion and aggregation")
	pf.String("policy", "additive", "duplicate aggregation policy (additive, snapshot)")
	pf.String("campaign", "", "fuzzy campaign filter")
	pf.String("from", "", "first date to include (YYYY-MM-DD)")
	pf.String("to", "", "last date to include (YYYY-MM-DD)")
	pf.Float64("perf-roas", 1.4, "ROAS at or above which a group is a top performer")
	pf.Float64("bid-roas", 1.8, "ROAS at or above which a group is a bidding candidate")
	pf.Float64("min-waste-spend", 200, "spend above which a non-converting group is waste")
	pf.Int("limit", 10, "rows per segment bucket")

	rootCmd.AddCommand(pivotCmd())
	rootCmd.AddCommand(segmentsCmd())
	rootCmd.AddCommand(trendCmd())
	rootCmd.AddCommand(campaignsCmd())
	rootCmd.AddCommand(exportCmd())
	rootCmd.AddCommand(versionCmd())
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	cancel()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func initConfig(cmd *cobra.Command, _ []string) error {
	viper.SetEnvPrefix("TRACKER")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		return fmt.Errorf("bind flags: %w", err)
	}

	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(strings.ToUpper(viper.GetString("log-level")))); err != nil {
		lvl = slog.LevelInfo
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})))
	return nil
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "tracker %s\n", version)
		},
	}
}
