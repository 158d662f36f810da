package main

import (
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "threatscope",
		Short:        "On-chain threat monitor",
		SilenceUsage: true,
	}

	root.PersistentFlags().String("config", "", "config file path")

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Watch new blocks and raise threat alerts",
		RunE:  runMonitor,
	}

	flags := runCmd.Flags()
	flags.String("rpc", "", "EVM JSON-RPC URL")
	flags.Uint64("from", 0, "first block to analyse, 0 means the current head")
	flags.Duration("poll-interval", time.Second, "target time between polling passes")
	flags.Duration("min-poll-delay", 100*time.Millisecond, "minimum delay between passes")
	flags.Duration("error-backoff", 2*time.Second, "delay after a failed pass")
	flags.Duration("rpc-timeout", 10*time.Second, "timeout per RPC call")
	flags.Int("prefetch", 4, "blocks fetched concurrently per window")
	flags.Int("max-retries", 2, "retries per RPC call before a pass fails")
	flags.Duration("retry-backoff", 200*time.Millisecond, "initial RPC retry backoff")
	flags.Int("max-block-failures", 3, "failed passes on one block before it is skipped")

	flags.Float64("gas-threshold-gwei", 120, "gas price considered anomalous, in gwei")
	flags.Float64("flash-loan-min-eth", 100, "value considered a large transfer, in ether")
	flags.Int("pair-window-size", 10, "transactions kept per address pair")
	flags.Int("window-capacity", 50_000, "address pairs tracked")
	flags.Int("counter-capacity", 100_000, "recipients tracked for interaction counts")
	flags.Int("history-size", 10_000, "alerts kept in memory")
	flags.Uint64("interaction-threshold", 100, "calls before a recipient is flagged")

	flags.String("intel-url", "", "threat intelligence endpoint (chat completions API)")
	flags.String("intel-key", "", "threat intelligence API key")
	flags.String("intel-model", "", "threat intelligence model name")
	flags.Duration("intel-timeout", 15*time.Second, "timeout per intelligence request")
	flags.Int("intel-rate-limit", 18, "intelligence requests allowed per window")
	flags.Duration("intel-rate-window", time.Minute, "intelligence rate limit window")
	flags.Int("intel-attempts", 2, "attempts per intelligence request")
	flags.Duration("intel-retry-delay", time.Second, "base delay between intelligence attempts")

	flags.String("discord-webhook", "", "Discord webhook URL")
	flags.String("slack-webhook", "", "Slack incoming webhook URL")
	flags.String("slack-channel", "", "Slack channel override")
	flags.String("telegram-token", "", "Telegram bot token")
	flags.String("telegram-chat", "", "Telegram chat ID")
	flags.String("alert-min-severity", "medium", "lowest severity sent to channels")
	flags.Bool("mitigation-enabled", false, "apply automated mitigation to confident critical alerts")

	flags.String("nats-url", "", "NATS server URL for threat events")
	flags.String("nats-subject", "threatscope.threats", "NATS subject for threat events")
	flags.StringSlice("kafka-brokers", nil, "Kafka brokers for threat events (comma-separated)")
	flags.String("kafka-topic", "threatscope.threats", "Kafka topic for threat events")
	flags.String("journal", "", "JSONL journal of threat events")
	flags.String("metrics-addr", "", "Prometheus listen address, e.g. :9090")
	flags.StringSlice("allowlist", nil, "addresses excluded from alerting (comma-separated)")
	flags.String("log-level", "info", "log level (debug, info, warn, error)")

	root.AddCommand(runCmd)

	journalCmd := &cobra.Command{
		Use:   "journal",
		Short: "Summarise a threat event journal",
		RunE:  runJournal,
	}

	journalCmd.Flags().String("in", "", "input journal JSONL")
	journalCmd.Flags().String("min-severity", "low", "lowest severity to print")
	journalCmd.Flags().Bool("summary", false, "print counts per type and severity only")

	root.AddCommand(journalCmd)

	return root
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
