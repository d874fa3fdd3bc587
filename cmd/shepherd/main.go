// Command shepherd drives transaction submission, balance top-ups, and
// price-store benchmark workloads against a Solana-style validator
// cluster.
package main

import (
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/0xkanth/tx-shepherd/internal/appconfig"
	"github.com/0xkanth/tx-shepherd/internal/telemetry"
)

var configPath string

func main() {
	root := &cobra.Command{
		Use:   "shepherd",
		Short: "Submit and confirm transactions against a Solana-style cluster",
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "path to a shepherd.toml config file")

	root.AddCommand(newTransferCmd())
	root.AddCommand(newOracleCmd())
	root.AddCommand(newPriceStoreCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func loadRuntime() (appconfig.Config, zerolog.Logger, error) {
	cfg, err := appconfig.Load(configPath)
	if err != nil {
		return cfg, zerolog.Logger{}, err
	}
	logger := telemetry.NewLogger(cfg.LogLevel)
	telemetry.ServeMetrics(cfg.MetricsAddr, logger)
	return cfg, logger, nil
}
