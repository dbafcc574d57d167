// gateway receives strategy alerts over HTTP and places bracket orders on Binance USDⓈ-M futures
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"signal_gateway/internal/bootstrap"
	"signal_gateway/internal/config"
	"signal_gateway/internal/mock"
	"signal_gateway/pkg/liveserver"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
)

var (
	version    = "0.1.0"
	configFile string
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "gateway",
		Short: "Signal-driven bracket order gateway",
		Long: `gateway accepts strategy webhooks, checks account risk, sizes the position
and places an entry with take-profit and stop-loss orders.`,
		SilenceUsage: true,
		RunE:         runServe,
	}

	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "Path to configuration file (defaults to CONFIG_FILE, then environment only)")

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(checkCmd())
	rootCmd.AddCommand(simulateCmd())
	rootCmd.AddCommand(versionCmd())
	return rootCmd
}

func loadConfig() (*config.Config, error) {
	path := configFile
	if path == "" {
		path = os.Getenv("CONFIG_FILE")
	}
	if path == "" {
		return config.FromEnv()
	}
	return config.LoadConfig(path)
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the webhook server (default)",
		RunE:  runServe,
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	app, err := bootstrap.NewApp(cfg, bootstrap.Options{})
	if err != nil {
		return err
	}
	defer app.Close()
	return app.Run(cmd.Context())
}

func checkCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Validate configuration and exchange credentials",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			app, err := bootstrap.NewApp(cfg, bootstrap.Options{})
			if err != nil {
				return err
			}
			defer app.Close()

			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			if err := app.Exchange.CheckHealth(ctx); err != nil {
				return fmt.Errorf("exchange unreachable: %w", err)
			}
			balance, err := app.Exchange.GetBalance(ctx, cfg.Exchange.QuoteAsset)
			if err != nil {
				return fmt.Errorf("credential check failed: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "ok: %s reachable, %s balance %s\n",
				app.Exchange.GetName(), cfg.Exchange.QuoteAsset, balance.String())
			return nil
		},
	}
}

func simulateCmd() *cobra.Command {
	var (
		symbol    string
		direction string
		price     string
		balance   string
	)
	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Run one signal through the pipeline against the in-memory exchange",
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := decimal.NewFromString(price)
			if err != nil {
				return fmt.Errorf("invalid --price: %w", err)
			}
			bal, err := decimal.NewFromString(balance)
			if err != nil {
				return fmt.Errorf("invalid --balance: %w", err)
			}

			cfg := config.DefaultConfig()
			if configFile != "" || os.Getenv("CONFIG_FILE") != "" {
				if cfg, err = loadConfig(); err != nil {
					return err
				}
			}
			cfg.App.Exchange = config.ExchangeMock
			cfg.Telemetry.Enabled = false
			if symbol == "" {
				symbol = cfg.Signals.DefaultTicker
			}

			ex := mock.NewMockExchange("simulate")
			ex.SetBalance(cfg.Exchange.QuoteAsset, bal)
			app, err := bootstrap.NewApp(cfg, bootstrap.Options{LogWriter: cmd.ErrOrStderr(), Exchange: ex})
			if err != nil {
				return err
			}
			defer app.Close()

			res, err := app.Simulate(cmd.Context(), symbol, direction, p)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(liveserver.NewResultMessage(res))
		},
	}
	cmd.Flags().StringVar(&symbol, "symbol", "", "Symbol to trade (defaults to signals.default_ticker)")
	cmd.Flags().StringVar(&direction, "direction", "bull", "Signal direction: bull or bear")
	cmd.Flags().StringVar(&price, "price", "", "Signal price")
	cmd.Flags().StringVar(&balance, "balance", "10000", "Simulated quote asset balance")
	_ = cmd.MarkFlagRequired("price")
	return cmd
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "gateway version %s\n", version)
		},
	}
}
