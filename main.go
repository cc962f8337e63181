package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

// app carries what every subcommand needs once flags are parsed.
type app struct {
	cfg    *Config
	logger *zap.Logger
}

func newRootCmd() *cobra.Command {
	a := &app{}

	rootCmd := &cobra.Command{
		Use:   "finsight",
		Short: "FinSight - portfolio tracking with an AI advisor",
		Long: `FinSight serves the stock table, portfolios, chat and alerts API.
Run "finsight serve" to start the web server.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			configPath, _ := cmd.Flags().GetString("config")
			cfg, err := LoadConfig(configPath)
			if err != nil {
				return err
			}
			if dbPath, _ := cmd.Flags().GetString("db"); dbPath != "" {
				cfg.DatabasePath = dbPath
			}
			if debug, _ := cmd.Flags().GetBool("debug"); debug {
				cfg.Debug = true
			}

			logger, err := NewLogger(cfg.Debug)
			if err != nil {
				return fmt.Errorf("failed to create logger: %w", err)
			}
			a.cfg, a.logger = cfg, logger
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if a.logger != nil {
				_ = a.logger.Sync()
			}
		},
	}

	rootCmd.AddCommand(newServeCmd(a))
	rootCmd.AddCommand(newQuotesCmd(a))
	rootCmd.AddCommand(newProCmd(a))
	rootCmd.AddCommand(newSummaryCmd(a))

	rootCmd.PersistentFlags().String("config", "", "Configuration file path")
	rootCmd.PersistentFlags().String("db", "", "Database file path (overrides config)")
	rootCmd.PersistentFlags().Bool("debug", false, "Enable debug logging")

	return rootCmd
}

func newServeCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the web server",
		RunE: func(cmd *cobra.Command, args []string) error {
			if port, _ := cmd.Flags().GetString("port"); port != "" {
				a.cfg.Port = port
			}
			noScheduler, _ := cmd.Flags().GetBool("no-scheduler")

			a.logger.Info("starting FinSight",
				zap.String("database", a.cfg.DatabasePath),
				zap.String("localStorage", a.cfg.StoragePath),
				zap.String("port", a.cfg.Port))

			server, err := NewWebServer(a.cfg, a.logger, !noScheduler)
			if err != nil {
				return fmt.Errorf("failed to initialize web server: %w", err)
			}
			defer server.Close()

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return server.Run(ctx, ":"+a.cfg.Port)
		},
	}

	cmd.Flags().String("port", "", "Web server port (overrides config)")
	cmd.Flags().Bool("no-scheduler", false, "Do not poll quotes or take daily snapshots")
	return cmd
}

func newQuotesCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "quotes [SYMBOL]",
		Short: "Refresh and print the stock table, or analyze one symbol's candles",
		Long: `Without arguments, fetches every symbol of the stock list once and prints the table.
With a symbol, fetches its daily candles and prints a short analysis.
Example: finsight quotes AAPL --days=30`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			storage, err := NewLocalStorage(a.cfg.StoragePath)
			if err != nil {
				return err
			}
			search := NewStockSearchService(stockList)
			poller := newQuotePoller(a.cfg, search, storage, nil, a.logger)
			ctx := cmd.Context()

			if len(args) == 1 {
				stock, ok := search.Lookup(args[0])
				if !ok {
					return fmt.Errorf("%s: %w", args[0], ErrUnknownSymbol)
				}
				days, _ := cmd.Flags().GetInt("days")
				candles, err := poller.Candles(ctx, stock.Symbol, days)
				if err != nil {
					return fmt.Errorf("failed to get candles: %w", err)
				}
				fmt.Printf("=== %s (%s) ===\n", stock.Symbol, stock.Name)
				analyzeCandles(candles)
				return nil
			}

			sparklines, _ := cmd.Flags().GetBool("sparklines")
			start := time.Now()
			if err := poller.Refresh(ctx, sparklines); err != nil {
				return err
			}
			printQuotes(poller.Quotes())
			fmt.Printf("\nRefreshed %d symbols in %v\n", len(stockList), time.Since(start).Round(time.Millisecond))
			return nil
		},
	}

	cmd.Flags().Int("days", 30, "Number of days of candles to analyze")
	cmd.Flags().Bool("sparklines", false, "Also rebuild the 7-day sparklines")
	return cmd
}

func newProCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pro USER_ID",
		Short: "Grant or revoke the Pro tier for a user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := NewDatabase(a.cfg.DatabasePath)
			if err != nil {
				return err
			}
			defer db.Close()

			off, _ := cmd.Flags().GetBool("off")
			profiles := NewProfileService(db, nil, nil, a.logger)
			profile, err := profiles.SetPro(args[0], !off)
			if err != nil {
				return err
			}
			fmt.Printf("%s: isPro=%t freeTrialCount=%d\n", profile.UserID, profile.IsPro, profile.FreeTrialCount)
			return nil
		},
	}

	cmd.Flags().Bool("off", false, "Revoke instead of grant")
	return cmd
}

func newSummaryCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "summary USER_ID",
		Short: "Print the portfolio summary of a user as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := NewDatabase(a.cfg.DatabasePath)
			if err != nil {
				return err
			}
			defer db.Close()

			location, err := time.LoadLocation(a.cfg.Snapshots.Timezone)
			if err != nil {
				return fmt.Errorf("failed to load timezone %s: %w", a.cfg.Snapshots.Timezone, err)
			}
			storage, err := NewLocalStorage(a.cfg.StoragePath)
			if err != nil {
				return err
			}

			portfolios := NewPortfolioRegistry(db, storage, nil, a.logger)
			summaries := NewSummaryService(portfolios, db, nil, nil, location, a.logger)
			summary, err := summaries.Summary(Identity{UserID: args[0]})
			if err != nil {
				return err
			}

			out, err := json.MarshalIndent(summary, "", "  ")
			if err != nil {
				return fmt.Errorf("failed to encode summary: %w", err)
			}
			fmt.Println(string(out))
			return nil
		},
	}
}

func printQuotes(quotes []Quote) {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(w, "SYMBOL\tPRICE\tCHANGE\tCHANGE %\tUPDATED\t")
	for _, q := range quotes {
		if q.Price == nil {
			fmt.Fprintf(w, "%s\t-\t-\t-\t-\t\n", q.Symbol)
			continue
		}
		updated := "-"
		if q.LastUpdated != nil {
			updated = q.LastUpdated.Format("15:04:05")
		}
		fmt.Fprintf(w, "%s\t%.2f\t%+.2f\t%+.2f%%\t%s\t\n", q.Symbol, *q.Price, deref(q.Change), deref(q.PercentChange), updated)
	}
	w.Flush()
}

func deref(v *float64) float64 {
	if v == nil {
		return 0
	}
	return *v
}

func analyzeCandles(c *Candles) {
	n := len(c.Close)
	if n == 0 || len(c.Time) < n || len(c.Volume) < n {
		fmt.Println("No candle data")
		return
	}

	// Price range
	minPrice, maxPrice := c.Close[0], c.Close[0]
	var totalVolume float64
	for i := 0; i < n; i++ {
		if c.Close[i] < minPrice {
			minPrice = c.Close[i]
		}
		if c.Close[i] > maxPrice {
			maxPrice = c.Close[i]
		}
		totalVolume += c.Volume[i]
	}

	latestPrice := c.Close[n-1]
	firstPrice := c.Close[0]
	priceChange := latestPrice - firstPrice
	var priceChangePercent float64
	if firstPrice != 0 {
		priceChangePercent = (priceChange / firstPrice) * 100
	}

	fmt.Printf("Data Points: %d\n", n)
	fmt.Printf("Date Range: %s to %s\n", candleDate(c.Time[0]), candleDate(c.Time[n-1]))
	fmt.Printf("Price Range: $%.2f - $%.2f\n", minPrice, maxPrice)
	fmt.Printf("Current Price: $%.2f\n", latestPrice)
	fmt.Printf("Price Change: $%.2f (%.2f%%)\n", priceChange, priceChangePercent)
	fmt.Printf("Total Volume: %.0f\n", totalVolume)

	findHighLowDays(c)

	fmt.Printf("Average Volume per Day: %.0f\n", totalVolume/float64(n))
}

func findHighLowDays(c *Candles) {
	if len(c.Close) < 2 {
		return
	}

	maxVolumeIdx, minPriceIdx := 0, 0
	for i := range c.Close {
		if c.Volume[i] > c.Volume[maxVolumeIdx] {
			maxVolumeIdx = i
		}
		if c.Close[i] < c.Close[minPriceIdx] {
			minPriceIdx = i
		}
	}

	fmt.Println("\n=== Notable Points ===")
	fmt.Printf("Highest Volume Day: %s (Volume: %.0f, Price: $%.2f)\n",
		candleDate(c.Time[maxVolumeIdx]), c.Volume[maxVolumeIdx], c.Close[maxVolumeIdx])
	fmt.Printf("Lowest Price Point: %s (Price: $%.2f)\n",
		candleDate(c.Time[minPriceIdx]), c.Close[minPriceIdx])
}

func candleDate(ts int64) string {
	return time.Unix(ts, 0).UTC().Format(dateLayout)
}
