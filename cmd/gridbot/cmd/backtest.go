package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/tidwall/pretty"

	"github.com/gridtrading/gridbot/backtest"
	"github.com/gridtrading/gridbot/cache"
	"github.com/gridtrading/gridbot/config"
	"github.com/gridtrading/gridbot/feed"
	"github.com/gridtrading/gridbot/journal"
	"github.com/gridtrading/gridbot/market"
)

var backtestCmd = &cobra.Command{
	Use:   "backtest",
	Short: "Run a backtest from a config file",
	Long: `Run a grid-strategy backtest using settings from a configuration file.

The config file specifies the run window, grid parameters, cache location
and journal destination. Bars are served from the local data directory and
cached in SQLite, so repeat runs over the same window fetch nothing.

Example:
  gridbot backtest -f examples/configs/aapl.yaml --data ./data`,
	RunE: runBacktest,
}

var (
	backtestConfigPath string
	backtestDataDir    string
	backtestSummary    bool
)

func init() {
	rootCmd.AddCommand(backtestCmd)

	backtestCmd.Flags().StringVarP(&backtestConfigPath, "config", "f", "", "path to config file (YAML or JSON) (required)")
	backtestCmd.Flags().StringVar(&backtestDataDir, "data", "./data", "CSV bar directory")
	backtestCmd.Flags().BoolVar(&backtestSummary, "summary", false, "print a JSON run summary to stdout")
	backtestCmd.MarkFlagRequired("config")
}

func runBacktest(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadFromFile(backtestConfigPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	fmt.Printf("Running backtest with config: %s\n", backtestConfigPath)
	fmt.Printf("  Symbol: %s  Window: %s .. %s  Capital: $%.2f\n",
		cfg.Run.Symbol, cfg.Run.StartDate, cfg.Run.EndDate, cfg.Run.StartCapital)
	fmt.Printf("  Grid: buy %.1f%% below, sell %.1f%% above, %.0f%% of cash per lot\n\n",
		cfg.Grid.BuyBelowPct, cfg.Grid.SellAbovePct, cfg.Grid.CapitalPct)

	j, err := openJournal(cfg.Journal)
	if err != nil {
		return fmt.Errorf("create journal: %w", err)
	}
	defer j.Close()

	recon, store, err := openReconciler(cfg.Cache, backtestDataDir)
	if err != nil {
		return err
	}
	defer store.Close()

	driver := backtest.NewDriver(recon, progressSink(), backtest.Options{})

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	res, err := driver.Run(ctx, backtest.RunConfig{
		Symbol:       cfg.Run.Symbol,
		Algorithm:    cfg.Run.Algorithm,
		StartDate:    market.Date(cfg.Run.StartDate),
		EndDate:      market.Date(cfg.Run.EndDate),
		StartCapital: cfg.Run.StartCapital,
		Grid:         cfg.Grid,
	})
	if err != nil {
		return fmt.Errorf("backtest: %w", err)
	}

	for _, ev := range res.History {
		if jerr := j.RecordTrade(journal.TradeRecord{
			RunID:   res.RunID,
			TradeID: ev.TradeID,
			Symbol:  cfg.Run.Symbol,
			Side:    string(ev.Side),
			Time:    ev.Timestamp,
			Price:   ev.Price,
			Shares:  ev.Shares,
			Cash:    ev.Cash,
			Equity:  ev.Equity,
		}); jerr != nil {
			return fmt.Errorf("journal trade: %w", jerr)
		}
	}
	if jerr := j.RecordEquity(journal.EquitySnapshot{
		RunID:     res.RunID,
		Time:      market.CloseTime(market.Date(cfg.Run.EndDate)),
		Cash:      res.Cash,
		CashMax:   res.CashMax,
		Equity:    res.Equity,
		EquityMax: res.EquityMax,
	}); jerr != nil {
		return fmt.Errorf("journal equity: %w", jerr)
	}

	fmt.Printf("\nFinal Results (run %s):\n", res.RunID)
	fmt.Printf("  Bars: %d  Trades: %d  Open lots: %d\n", res.BarsProcessed, len(res.History), len(res.OpenTrades))
	fmt.Printf("  Cash: $%.2f (max $%.2f)\n", res.Cash, res.CashMax)
	fmt.Printf("  Equity: $%.2f (max $%.2f)\n", res.Equity, res.EquityMax)
	fmt.Printf("  Elapsed: %s\n", res.Elapsed)

	if backtestSummary {
		data, merr := json.Marshal(res)
		if merr != nil {
			return fmt.Errorf("marshal summary: %w", merr)
		}
		os.Stdout.Write(pretty.Pretty(data))
	}
	return nil
}

func openJournal(jc config.JournalConfig) (journal.Journal, error) {
	switch jc.Type {
	case "csv":
		return journal.NewCSV(jc.TradesFile, jc.EquityFile)
	case "sqlite":
		return journal.NewSQLite(jc.DBPath)
	default:
		return discardJournal{}, nil
	}
}

func openReconciler(cc config.CacheConfig, dataDir string) (*cache.Reconciler, *cache.SQLiteStore, error) {
	store, err := cache.NewSQLite(cc.DBPath)
	if err != nil {
		return nil, nil, fmt.Errorf("open cache: %w", err)
	}

	delay, err := cc.ParseBatchDelay()
	if err != nil {
		store.Close()
		return nil, nil, err
	}

	recon := cache.NewReconciler(store, feed.NewDirSource(dataDir), cache.Options{
		ChunkDays:  cc.ChunkDays,
		BatchSize:  cc.BatchSize,
		BatchDelay: delay,
	})
	return recon, store, nil
}

func progressSink() backtest.Sink {
	return func(ev backtest.Event) {
		if ev.Message != "" {
			fmt.Printf("[%s] %5.1f%%  %s\n", ev.Stage, ev.Data.Progress, ev.Message)
			return
		}
		fmt.Printf("[%s] %5.1f%%  (%d/%d)\n", ev.Stage, ev.Data.Progress, ev.Data.Current, ev.Data.Total)
	}
}

// discardJournal backs journal type "none".
type discardJournal struct{}

func (discardJournal) RecordTrade(journal.TradeRecord) error     { return nil }
func (discardJournal) RecordEquity(journal.EquitySnapshot) error { return nil }
func (discardJournal) Close() error                              { return nil }
