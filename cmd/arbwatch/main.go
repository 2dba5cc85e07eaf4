package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/arbwatch/arbwatch/internal/app"
	"github.com/arbwatch/arbwatch/internal/config"
)

const (
	appName = "arbwatch"
	version = "v1.2.0"
)

func main() {
	zerolog.TimeFieldFormat = time.RFC3339
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})

	rootCmd := &cobra.Command{
		Use:     appName,
		Short:   "Cross-exchange and triangular arbitrage detector",
		Version: version,
		Long: `arbwatch watches order books across crypto exchanges and reports
arbitrage opportunities: cross-exchange spreads priced by depth-walking
VWAP with taker fees, and triangular cycles on a single venue.`,
	}

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Run the detection pipeline",
		RunE:  runPipeline,
	}
	runCmd.Flags().String("catalog", "", "Path to venue catalog YAML (built-in defaults when empty)")
	runCmd.Flags().String("log-level", "", "Log level override (trace|debug|info|warn|error)")

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("%s %s\n", appName, version)
		},
	}

	rootCmd.AddCommand(runCmd, versionCmd)

	if err := rootCmd.Execute(); err != nil {
		log.Error().Err(err).Msg("command failed")
		os.Exit(1)
	}
}

func runPipeline(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("configuration: %w", err)
	}

	level := cfg.LogLevel
	if flagLevel, _ := cmd.Flags().GetString("log-level"); flagLevel != "" {
		level = flagLevel
	}
	if parsed, err := zerolog.ParseLevel(level); err == nil {
		zerolog.SetGlobalLevel(parsed)
	} else {
		log.Warn().Str("level", level).Msg("unknown log level, using info")
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}

	catalogPath, _ := cmd.Flags().GetString("catalog")

	ctx := context.Background()
	a, err := app.New(ctx, cfg, catalogPath)
	if err != nil {
		return err
	}

	log.Info().Str("version", version).
		Strs("universe", cfg.SymbolUniverse).
		Float64("min_spread_bps", cfg.MinSpreadBPS).
		Float64("min_tri_gain_bps", cfg.MinTriGainBPS).
		Float64("min_notional", cfg.MinNotional).
		Msg("starting")

	return a.Run(ctx)
}
