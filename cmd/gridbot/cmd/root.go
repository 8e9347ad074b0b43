package cmd

import (
	"fmt"
	"log/slog"
	"net/http"
	"os"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "gridbot",
	Short: "A grid-trading backtester with a durable minute-bar cache",
	Long: `Gridbot simulates a grid trading strategy minute by minute over
historical equity bars.

It provides tools for:
  - Backtesting the grid strategy over any cached date range
  - Pre-warming the local bar cache for a symbol
  - Importing CSV bar archives into the local data directory
  - Journaling fills and equity curves to CSV or SQLite`,
	SilenceUsage: true,
}

var (
	rootLogLevel    string
	rootMetricsAddr string
)

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&rootLogLevel, "log-level", "info", "log level: debug|info|warn|error")
	rootCmd.PersistentFlags().StringVar(&rootMetricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address (e.g. :9090)")

	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		// A missing .env is fine; it only supplies optional overrides.
		_ = godotenv.Load()

		var level slog.Level
		if err := level.UnmarshalText([]byte(rootLogLevel)); err != nil {
			return fmt.Errorf("bad --log-level %q: %w", rootLogLevel, err)
		}
		slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

		if rootMetricsAddr != "" {
			go func() {
				mux := http.NewServeMux()
				mux.Handle("/metrics", promhttp.Handler())
				if err := http.ListenAndServe(rootMetricsAddr, mux); err != nil {
					slog.Error("metrics server failed", "addr", rootMetricsAddr, "err", err)
				}
			}()
		}
		return nil
	}
}
