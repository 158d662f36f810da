package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"threatScope/internal/alert"
	"threatScope/internal/chain"
	"threatScope/internal/config"
	"threatScope/internal/events"
	"threatScope/internal/heuristics"
	"threatScope/internal/intel"
	"threatScope/internal/metrics"
	"threatScope/internal/mitigation"
	"threatScope/internal/model"
	"threatScope/internal/monitor"
	"threatScope/internal/ratelimit"
	"threatScope/internal/storage"
	"threatScope/internal/threat"
)

func runMonitor(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}
	if err := config.Validate(cfg); err != nil {
		return err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	allowlist, err := config.ParseAddresses(cfg.Allowlist)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := metrics.New()

	chainClient, err := chain.NewClient(ctx, cfg.RPCURL, logger.With(zap.String("component", "chain")))
	if err != nil {
		return fmt.Errorf("connect rpc: %w", err)
	}
	defer chainClient.Close()

	heuristicCfg, err := heuristicConfig(cfg)
	if err != nil {
		return err
	}
	detectors, err := heuristics.NewSet(heuristicCfg, logger.With(zap.String("component", "heuristics")))
	if err != nil {
		return err
	}

	bus, err := newEventBus(cfg, m, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := bus.Close(); err != nil {
			logger.Warn("close event bus", zap.Error(err))
		}
	}()

	dispatcher := alert.NewDispatcher(alertChannels(cfg), m, logger.With(zap.String("component", "alert")))
	minSeverity, err := model.ParseSeverity(cfg.AlertMinSeverity)
	if err != nil {
		return err
	}
	aggregator, err := threat.NewAggregator(threat.Config{
		MitigationEnabled: cfg.MitigationEnabled,
		DispatchMin:       minSeverity,
		HistorySize:       cfg.HistorySize,
	}, dispatcher, mitigation.NewLogMitigator(logger.With(zap.String("component", "mitigation"))), bus, m, logger.With(zap.String("component", "threat")))
	if err != nil {
		return err
	}

	var enricher threat.Enricher
	if cfg.IntelURL != "" {
		enricher = newEnricher(cfg, heuristicCfg, m, logger.With(zap.String("component", "intel")))
	}

	pipeline := threat.NewPipeline(detectors, enricher, aggregator, allowlist, m, logger.With(zap.String("component", "pipeline")))
	runner := monitor.NewRunner(monitor.RunConfig{
		FromBlock:    cfg.FromBlock,
		PollInterval: cfg.PollInterval,
		MinDelay:     cfg.MinPollDelay,
		ErrorBackoff: cfg.ErrorBackoff,
		RPCTimeout:   cfg.RPCTimeout,
		Prefetch:     cfg.Prefetch,
		MaxRetries:   cfg.MaxRetries,
		RetryBackoff: cfg.RetryBackoff,

		MaxBlockFailures: cfg.MaxBlockFailures,
	}, chainClient, pipeline, m, logger.With(zap.String("component", "monitor")))

	logger.Info("threat monitor start",
		zap.String("rpc", cfg.RPCURL),
		zap.Uint64("from", cfg.FromBlock),
		zap.Int("prefetch", cfg.Prefetch),
		zap.Int("channels", len(dispatcher.Channels())),
		zap.Bool("intel", enricher != nil),
		zap.Bool("mitigation", cfg.MitigationEnabled),
		zap.Int("allowlist", len(allowlist)),
		zap.String("journal", cfg.Journal),
	)

	g, gctx := errgroup.WithContext(ctx)
	if cfg.MetricsAddr != "" {
		g.Go(func() error {
			return m.Serve(gctx, cfg.MetricsAddr, logger)
		})
	}
	g.Go(func() error {
		err := runner.Run(gctx)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})

	err = g.Wait()
	logger.Info("threat monitor stopped", zap.Uint64("cursor", runner.Cursor()), zap.Int("alerts", aggregator.History().Len()))
	return err
}

func heuristicConfig(cfg config.Config) (heuristics.Config, error) {
	gas, err := heuristics.GweiToWei(cfg.GasThresholdGwei)
	if err != nil {
		return heuristics.Config{}, fmt.Errorf("gas threshold: %w", err)
	}
	value, err := heuristics.EtherToWei(cfg.FlashLoanMinEth)
	if err != nil {
		return heuristics.Config{}, fmt.Errorf("flash loan minimum: %w", err)
	}
	return heuristics.Config{
		GasThreshold:         gas,
		FlashLoanMinValue:    value,
		InteractionThreshold: cfg.InteractionThreshold,
		PairWindowSize:       cfg.PairWindowSize,
		WindowCapacity:       cfg.WindowCapacity,
		CounterCapacity:      cfg.CounterCapacity,
	}, nil
}

func newEnricher(cfg config.Config, hc heuristics.Config, m *metrics.Metrics, logger *zap.Logger) *intel.Enricher {
	client := intel.NewClient(intel.ClientConfig{
		URL:     cfg.IntelURL,
		APIKey:  cfg.IntelKey,
		Model:   cfg.IntelModel,
		Timeout: cfg.IntelTimeout,
	})
	requester := ratelimit.NewRequester(ratelimit.Config{
		Limit:          cfg.IntelRateLimit,
		Window:         cfg.IntelRateWindow,
		Attempts:       cfg.IntelAttempts,
		BaseDelay:      cfg.IntelRetryDelay,
		AttemptTimeout: cfg.IntelTimeout,
	}, logger)
	gate := intel.Gate{
		FlashLoanMinValue: hc.FlashLoanMinValue,
		GasThreshold:      hc.GasThreshold,
	}
	return intel.NewEnricher(gate, client, requester, intel.KeywordParser{}, m, logger)
}

func alertChannels(cfg config.Config) []alert.Channel {
	var channels []alert.Channel
	if cfg.DiscordWebhook != "" {
		channels = append(channels, alert.NewDiscordChannel(cfg.DiscordWebhook, ""))
	}
	if cfg.SlackWebhook != "" {
		channels = append(channels, alert.NewSlackChannel(cfg.SlackWebhook, cfg.SlackChannel, ""))
	}
	if cfg.TelegramToken != "" {
		channels = append(channels, alert.NewTelegramChannel(cfg.TelegramToken, cfg.TelegramChat))
	}
	return channels
}

func newEventBus(cfg config.Config, m *metrics.Metrics, logger *zap.Logger) (*events.Bus, error) {
	busLogger := logger.With(zap.String("component", "events"))
	bus := events.NewBus(m, busLogger)

	if cfg.Journal != "" {
		journal := events.NewJournalSubscriber(storage.NewJsonlStorage(cfg.Journal))
		if err := bus.Subscribe(journal, events.SubscribeOptions{}); err != nil {
			return nil, err
		}
	}

	if cfg.NATSURL != "" {
		pub, err := events.NewNATSPublisher(events.NATSConfig{URL: cfg.NATSURL, Subject: cfg.NATSSubject}, busLogger)
		if err != nil {
			_ = bus.Close()
			return nil, err
		}
		if err := bus.Subscribe(pub, events.SubscribeOptions{DropOnFull: true}); err != nil {
			return nil, err
		}
	}

	if len(cfg.KafkaBrokers) > 0 {
		pub, err := events.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic, nil)
		if err != nil {
			_ = bus.Close()
			return nil, err
		}
		if err := bus.Subscribe(pub, events.SubscribeOptions{DropOnFull: true}); err != nil {
			return nil, err
		}
	}

	return bus, nil
}
