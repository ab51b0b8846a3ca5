package main

import (
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func main() {
	_ = godotenv.Load()

	root := &cobra.Command{
		Use:          "arbscope",
		Short:        "DEX arbitrage opportunity monitor",
		SilenceUsage: true,
	}

	root.PersistentFlags().String("config", "", "config file path")

	watchCmd := &cobra.Command{
		Use:   "watch",
		Short: "Poll quotes and report opportunities until interrupted",
		RunE:  runWatch,
	}
	addCommonFlags(watchCmd.Flags())
	addSinkFlags(watchCmd.Flags())
	watchCmd.Flags().Duration("poll-interval", 30*time.Second, "time between cycle starts")
	watchCmd.Flags().Duration("shutdown-grace", 5*time.Second, "time allowed for in-flight fetches after interrupt")
	watchCmd.Flags().String("metrics-addr", "", "serve Prometheus metrics on this address (e.g. :9090)")
	watchCmd.Flags().Bool("reload", true, "reload pairs when the config file changes")

	root.AddCommand(watchCmd)

	scanCmd := &cobra.Command{
		Use:   "scan",
		Short: "Run a single cycle and print the report as JSON",
		RunE:  runScan,
	}
	addCommonFlags(scanCmd.Flags())
	addSinkFlags(scanCmd.Flags())

	root.AddCommand(scanCmd)

	checkCmd := &cobra.Command{
		Use:   "check",
		Short: "Check that every pair is tradable both ways under the venue filter",
		RunE:  runCheck,
	}
	addCommonFlags(checkCmd.Flags())

	root.AddCommand(checkCmd)

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func addCommonFlags(fs *pflag.FlagSet) {
	fs.StringSlice("venues", nil, "allowed venues (comma-separated), empty means any")
	fs.String("profit-threshold", "0.001", "minimum net relative profit to report")
	fs.String("fee-slippage-deduction", "0.003", "fees and slippage subtracted from the spread")
	fs.String("max-price-deviation", "0", "drop quotes priced further than this fraction from the median (0 disables)")
	fs.String("input-amount", "1000", "default notional in base token units")
	fs.Int("max-concurrency", 8, "maximum in-flight quote requests")
	fs.Bool("round-trip", false, "also evaluate forward and reverse legs as a round trip")
	fs.String("aggregator-url", "https://quote-api.jup.ag/v6", "quote aggregator base URL")
	fs.String("aggregator-api-key", "", "quote aggregator API key")
	fs.Int("slippage-bps", 50, "slippage tolerance sent with quote requests")
	fs.Duration("fetch-timeout", 10*time.Second, "per request timeout")
	fs.Int("max-retries", 3, "retries for transient quote failures")
	fs.Duration("retry-backoff", time.Second, "initial retry backoff")
	fs.String("rpc", "", "EVM RPC URL for resolving ERC-20 decimals (the default Jupiter aggregator only quotes Solana mints)")
	fs.String("log-level", "info", "log level (debug, info, warn, error)")
}

func addSinkFlags(fs *pflag.FlagSet) {
	fs.String("out", "", "output JSONL path (- for stdout)")
	fs.String("pg-dsn", "", "Postgres DSN")
	fs.String("redis-addr", "", "Redis address")
	fs.String("redis-password", "", "Redis password")
	fs.String("redis-channel", "arbscope:signals", "Redis pub/sub channel for signals")
	fs.String("redis-stream", "arbscope:cycles", "Redis stream for cycle health")
	fs.String("webhook-url", "", "Discord or Slack webhook URL")
	fs.Duration("dedup-ttl", 0, "suppress repeated signals within this window")
}

func newLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevel()
	if err := cfg.Level.UnmarshalText([]byte(level)); err != nil {
		return nil, err
	}

	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	return cfg.Build()
}
