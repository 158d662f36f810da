package config

import (
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-playground/validator/v10"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Config holds configuration values loaded from flags, env, or config file.
type Config struct {
	RPCURL       string        `validate:"required,url"`
	FromBlock    uint64        `validate:"-"`
	PollInterval time.Duration `validate:"gt=0"`
	MinPollDelay time.Duration `validate:"gt=0"`
	ErrorBackoff time.Duration `validate:"gt=0"`
	RPCTimeout   time.Duration `validate:"gt=0"`
	Prefetch     int           `validate:"min=1,max=64"`
	MaxRetries   int           `validate:"min=0"`
	RetryBackoff time.Duration `validate:"gt=0"`

	MaxBlockFailures int `validate:"min=1"`

	GasThresholdGwei     float64 `validate:"gt=0"`
	FlashLoanMinEth      float64 `validate:"gt=0"`
	PairWindowSize       int     `validate:"min=1"`
	WindowCapacity       int     `validate:"min=1"`
	CounterCapacity      int     `validate:"min=1"`
	HistorySize          int     `validate:"min=1"`
	InteractionThreshold uint64  `validate:"min=1"`

	IntelURL        string        `validate:"omitempty,url"`
	IntelKey        string        `validate:"-"`
	IntelModel      string        `validate:"-"`
	IntelTimeout    time.Duration `validate:"gt=0"`
	IntelRateLimit  int           `validate:"min=1"`
	IntelRateWindow time.Duration `validate:"gt=0"`
	IntelAttempts   int           `validate:"min=1"`
	IntelRetryDelay time.Duration `validate:"min=0"`

	DiscordWebhook   string `validate:"omitempty,url"`
	SlackWebhook     string `validate:"omitempty,url"`
	SlackChannel     string `validate:"-"`
	TelegramToken    string `validate:"required_with=TelegramChat"`
	TelegramChat     string `validate:"required_with=TelegramToken"`
	AlertMinSeverity string `validate:"oneof=low medium high critical"`

	MitigationEnabled bool `validate:"-"`

	NATSURL      string   `validate:"omitempty,url"`
	NATSSubject  string   `validate:"required_with=NATSURL"`
	KafkaBrokers []string `validate:"omitempty,dive,required"`
	KafkaTopic   string   `validate:"required_with=KafkaBrokers"`
	Journal      string   `validate:"-"`
	MetricsAddr  string   `validate:"-"`

	Allowlist []string `validate:"omitempty,dive,eth_addr"`
	LogLevel  string   `validate:"oneof=debug info warn error"`
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Load merges config file, environment variables, and flags into Config.
func Load(cfgFile string, flags *pflag.FlagSet) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("THREATSCOPE")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if flags != nil {
		if err := v.BindPFlags(flags); err != nil {
			return Config{}, fmt.Errorf("bind flags: %w", err)
		}
	}

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return Config{}, fmt.Errorf("read config: %w", err)
			}
		}
	}

	cfg := Config{
		RPCURL:       v.GetString("rpc"),
		FromBlock:    v.GetUint64("from"),
		PollInterval: v.GetDuration("poll-interval"),
		MinPollDelay: v.GetDuration("min-poll-delay"),
		ErrorBackoff: v.GetDuration("error-backoff"),
		RPCTimeout:   v.GetDuration("rpc-timeout"),
		Prefetch:     v.GetInt("prefetch"),
		MaxRetries:   v.GetInt("max-retries"),
		RetryBackoff: v.GetDuration("retry-backoff"),

		MaxBlockFailures: v.GetInt("max-block-failures"),

		GasThresholdGwei:     v.GetFloat64("gas-threshold-gwei"),
		FlashLoanMinEth:      v.GetFloat64("flash-loan-min-eth"),
		PairWindowSize:       v.GetInt("pair-window-size"),
		WindowCapacity:       v.GetInt("window-capacity"),
		CounterCapacity:      v.GetInt("counter-capacity"),
		HistorySize:          v.GetInt("history-size"),
		InteractionThreshold: v.GetUint64("interaction-threshold"),

		IntelURL:        v.GetString("intel-url"),
		IntelKey:        v.GetString("intel-key"),
		IntelModel:      v.GetString("intel-model"),
		IntelTimeout:    v.GetDuration("intel-timeout"),
		IntelRateLimit:  v.GetInt("intel-rate-limit"),
		IntelRateWindow: v.GetDuration("intel-rate-window"),
		IntelAttempts:   v.GetInt("intel-attempts"),
		IntelRetryDelay: v.GetDuration("intel-retry-delay"),

		DiscordWebhook:   v.GetString("discord-webhook"),
		SlackWebhook:     v.GetString("slack-webhook"),
		SlackChannel:     v.GetString("slack-channel"),
		TelegramToken:    v.GetString("telegram-token"),
		TelegramChat:     v.GetString("telegram-chat"),
		AlertMinSeverity: v.GetString("alert-min-severity"),

		MitigationEnabled: v.GetBool("mitigation-enabled"),

		NATSURL:      v.GetString("nats-url"),
		NATSSubject:  v.GetString("nats-subject"),
		KafkaBrokers: getStringSlice(v, "kafka-brokers"),
		KafkaTopic:   v.GetString("kafka-topic"),
		Journal:      v.GetString("journal"),
		MetricsAddr:  v.GetString("metrics-addr"),

		Allowlist: getStringSlice(v, "allowlist"),
		LogLevel:  v.GetString("log-level"),
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("poll-interval", time.Second)
	v.SetDefault("min-poll-delay", 100*time.Millisecond)
	v.SetDefault("error-backoff", 2*time.Second)
	v.SetDefault("rpc-timeout", 10*time.Second)
	v.SetDefault("prefetch", 4)
	v.SetDefault("max-retries", 2)
	v.SetDefault("retry-backoff", 200*time.Millisecond)
	v.SetDefault("max-block-failures", 3)

	v.SetDefault("gas-threshold-gwei", 120.0)
	v.SetDefault("flash-loan-min-eth", 100.0)
	v.SetDefault("pair-window-size", 10)
	v.SetDefault("window-capacity", 50_000)
	v.SetDefault("counter-capacity", 100_000)
	v.SetDefault("history-size", 10_000)
	v.SetDefault("interaction-threshold", uint64(100))

	v.SetDefault("intel-timeout", 15*time.Second)
	v.SetDefault("intel-rate-limit", 18)
	v.SetDefault("intel-rate-window", time.Minute)
	v.SetDefault("intel-attempts", 2)
	v.SetDefault("intel-retry-delay", time.Second)

	v.SetDefault("alert-min-severity", "medium")
	v.SetDefault("nats-subject", "threatscope.threats")
	v.SetDefault("kafka-topic", "threatscope.threats")
	v.SetDefault("log-level", "info")
}

// Validate checks field constraints and cross-field rules.
func Validate(cfg Config) error {
	if err := validate.Struct(cfg); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s failed %q", fe.Namespace(), fe.Tag()))
			}
			return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
		}
		return fmt.Errorf("validate config: %w", err)
	}

	if cfg.MinPollDelay > cfg.PollInterval {
		return fmt.Errorf("invalid config: min poll delay %s exceeds poll interval %s", cfg.MinPollDelay, cfg.PollInterval)
	}
	if cfg.MetricsAddr != "" {
		if _, _, err := net.SplitHostPort(cfg.MetricsAddr); err != nil {
			return fmt.Errorf("invalid config: metrics addr: %w", err)
		}
	}
	return nil
}

// ParseAddresses converts string addresses into common.Address.
func ParseAddresses(inputs []string) ([]common.Address, error) {
	addresses := make([]common.Address, 0, len(inputs))
	for _, input := range inputs {
		input = strings.TrimSpace(input)
		if input == "" {
			continue
		}
		if !common.IsHexAddress(input) {
			return nil, fmt.Errorf("invalid address: %s", input)
		}
		addresses = append(addresses, common.HexToAddress(input))
	}
	return addresses, nil
}

func getStringSlice(v *viper.Viper, key string) []string {
	if !v.IsSet(key) {
		return nil
	}

	val := v.Get(key)
	switch typed := val.(type) {
	case []string:
		return cleanStrings(typed)
	case string:
		return splitAndClean(typed)
	case []interface{}:
		items := make([]string, 0, len(typed))
		for _, item := range typed {
			items = append(items, fmt.Sprintf("%v", item))
		}
		return cleanStrings(items)
	default:
		return nil
	}
}

func splitAndClean(input string) []string {
	if input == "" {
		return nil
	}
	parts := strings.Split(input, ",")
	return cleanStrings(parts)
}

func cleanStrings(items []string) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		out = append(out, item)
	}
	return out
}
