package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	DefaultPollInterval  = 30 * time.Second
	DefaultAggregatorURL = "https://quote-api.jup.ag/v6"
	DefaultRedisChannel  = "arbscope:signals"
	DefaultRedisStream   = "arbscope:cycles"
)

// Config holds configuration values loaded from flags, env, or config file.
type Config struct {
	Pairs                []PairConfig
	Venues               []string
	PollInterval         time.Duration
	ProfitThreshold      decimal.Decimal
	FeeSlippageDeduction decimal.Decimal
	MaxPriceDeviation    decimal.Decimal
	InputAmount          decimal.Decimal
	MaxConcurrency       int
	RoundTrip            bool

	AggregatorURL    string
	AggregatorAPIKey string
	SlippageBps      int
	FetchTimeout     time.Duration
	MaxRetries       int
	RetryBackoff     time.Duration
	ShutdownGrace    time.Duration

	RPCURL        string
	Out           string
	PGDSN         string
	RedisAddr     string
	RedisPassword string
	RedisChannel  string
	RedisStream   string
	WebhookURL    string
	DedupTTL      time.Duration
	MetricsAddr   string

	LogLevel string
	Reload   bool
}

// ConfigError reports an invalid configuration value. It is fatal at startup.
type ConfigError struct {
	Field string
	Msg   string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config: %s: %s", e.Field, e.Msg)
}

func invalid(field, format string, args ...any) *ConfigError {
	return &ConfigError{Field: field, Msg: fmt.Sprintf(format, args...)}
}

// Loader owns the viper instance so the file can be re-read on change.
type Loader struct {
	v     *viper.Viper
	flags *pflag.FlagSet
}

// NewLoader merges config file, environment variables, and flags.
func NewLoader(cfgFile string, flags *pflag.FlagSet) (*Loader, error) {
	v := viper.New()
	v.SetEnvPrefix("ARBSCOPE")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetDefault("profit-threshold", "0.001")
	v.SetDefault("fee-slippage-deduction", "0.003")
	v.SetDefault("max-price-deviation", "0")
	v.SetDefault("input-amount", "1000")
	v.SetDefault("max-concurrency", 8)
	v.SetDefault("aggregator-url", DefaultAggregatorURL)
	v.SetDefault("slippage-bps", 50)
	v.SetDefault("fetch-timeout", 10*time.Second)
	v.SetDefault("max-retries", 3)
	v.SetDefault("retry-backoff", time.Second)
	v.SetDefault("shutdown-grace", 5*time.Second)
	v.SetDefault("redis-channel", DefaultRedisChannel)
	v.SetDefault("redis-stream", DefaultRedisStream)
	v.SetDefault("log-level", "info")
	v.SetDefault("reload", true)

	if flags != nil {
		if err := v.BindPFlags(flags); err != nil {
			return nil, fmt.Errorf("bind flags: %w", err)
		}
	}

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return nil, fmt.Errorf("read config: %w", err)
			}
		}
	}

	return &Loader{v: v, flags: flags}, nil
}

// File returns the config file in use, or "" when none was found.
func (l *Loader) File() string {
	return l.v.ConfigFileUsed()
}

// Load is NewLoader followed by Config.
func Load(cfgFile string, flags *pflag.FlagSet) (Config, error) {
	l, err := NewLoader(cfgFile, flags)
	if err != nil {
		return Config{}, err
	}
	return l.Config()
}

// Config decodes and validates the current values.
func (l *Loader) Config() (Config, error) {
	v := l.v
	cfg := Config{
		Venues:           getStringSlice(v, "venues"),
		MaxConcurrency:   v.GetInt(l.pick("max-concurrency", "maxConcurrency")),
		RoundTrip:        v.GetBool(l.pick("round-trip", "roundTrip")),
		AggregatorURL:    v.GetString("aggregator-url"),
		AggregatorAPIKey: v.GetString("aggregator-api-key"),
		SlippageBps:      v.GetInt("slippage-bps"),
		FetchTimeout:     v.GetDuration("fetch-timeout"),
		MaxRetries:       v.GetInt("max-retries"),
		RetryBackoff:     v.GetDuration("retry-backoff"),
		ShutdownGrace:    v.GetDuration("shutdown-grace"),
		RPCURL:           v.GetString("rpc"),
		Out:              v.GetString("out"),
		PGDSN:            v.GetString("pg-dsn"),
		RedisAddr:        v.GetString("redis-addr"),
		RedisPassword:    v.GetString("redis-password"),
		RedisChannel:     v.GetString("redis-channel"),
		RedisStream:      v.GetString("redis-stream"),
		WebhookURL:       v.GetString("webhook-url"),
		DedupTTL:         v.GetDuration("dedup-ttl"),
		MetricsAddr:      v.GetString("metrics-addr"),
		LogLevel:         v.GetString("log-level"),
		Reload:           v.GetBool("reload"),
	}

	var err error
	if cfg.PollInterval, err = l.pollInterval(); err != nil {
		return Config{}, err
	}
	if cfg.ProfitThreshold, err = l.getDecimal("profit-threshold", "profitThreshold"); err != nil {
		return Config{}, err
	}
	if cfg.FeeSlippageDeduction, err = l.getDecimal("fee-slippage-deduction", "feeSlippageDeduction"); err != nil {
		return Config{}, err
	}
	if cfg.MaxPriceDeviation, err = l.getDecimal("max-price-deviation", "maxPriceDeviation"); err != nil {
		return Config{}, err
	}
	if cfg.InputAmount, err = l.getDecimal("input-amount", "inputAmount"); err != nil {
		return Config{}, err
	}
	if cfg.Pairs, err = decodePairs(v, cfg.InputAmount); err != nil {
		return Config{}, err
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks value ranges. Pair addresses are checked in decodePairs.
func (c Config) Validate() error {
	switch {
	case len(c.Pairs) == 0:
		return invalid("pairs", "at least one pair is required")
	case c.PollInterval <= 0:
		return invalid("poll-interval", "must be greater than zero")
	case !c.ProfitThreshold.IsPositive():
		return invalid("profit-threshold", "must be greater than zero")
	case c.FeeSlippageDeduction.IsNegative():
		return invalid("fee-slippage-deduction", "must not be negative")
	case c.FeeSlippageDeduction.GreaterThanOrEqual(decimal.NewFromInt(1)):
		return invalid("fee-slippage-deduction", "must be below 1")
	case c.MaxPriceDeviation.IsNegative():
		return invalid("max-price-deviation", "must not be negative")
	case !c.InputAmount.IsPositive():
		return invalid("input-amount", "must be greater than zero")
	case c.MaxConcurrency <= 0:
		return invalid("max-concurrency", "must be greater than zero")
	case c.SlippageBps < 0:
		return invalid("slippage-bps", "must not be negative")
	case c.FetchTimeout <= 0:
		return invalid("fetch-timeout", "must be greater than zero")
	case c.MaxRetries < 0:
		return invalid("max-retries", "must not be negative")
	case c.ShutdownGrace < 0:
		return invalid("shutdown-grace", "must not be negative")
	case c.DedupTTL < 0:
		return invalid("dedup-ttl", "must not be negative")
	}
	return nil
}

// pollInterval accepts poll-interval as a duration or pollIntervalSeconds as an integer.
func (l *Loader) pollInterval() (time.Duration, error) {
	v := l.v
	switch {
	case l.explicit("poll-interval"):
		return parseDuration(v, "poll-interval")
	case v.InConfig("pollintervalseconds"):
		secs := v.GetInt64("pollIntervalSeconds")
		if secs <= 0 {
			return 0, invalid("pollIntervalSeconds", "must be a positive integer")
		}
		return time.Duration(secs) * time.Second, nil
	}
	if d := v.GetDuration("poll-interval"); d > 0 {
		return d, nil
	}
	return DefaultPollInterval, nil
}

// parseDuration reads a duration; bare numbers are taken as seconds.
func parseDuration(v *viper.Viper, key string) (time.Duration, error) {
	raw := strings.TrimSpace(v.GetString(key))
	if d, err := time.ParseDuration(raw); err == nil {
		return d, nil
	}
	secs, err := decimal.NewFromString(raw)
	if err != nil {
		return 0, invalid(key, "invalid duration %q", raw)
	}
	return time.Duration(secs.Mul(decimal.NewFromInt(int64(time.Second))).IntPart()), nil
}

func (l *Loader) getDecimal(keys ...string) (decimal.Decimal, error) {
	key := l.pick(keys...)
	raw := strings.TrimSpace(l.v.GetString(key))
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, invalid(keys[0], "invalid number %q", raw)
	}
	return d, nil
}

// pick returns keys[0] unless only one of the camelCase alternatives appears in the config file.
func (l *Loader) pick(keys ...string) string {
	if l.explicit(keys[0]) {
		return keys[0]
	}
	for _, k := range keys[1:] {
		if l.v.InConfig(strings.ToLower(k)) {
			return k
		}
	}
	return keys[0]
}

// explicit reports whether key was given by flag, environment, or config file.
// Defaults do not count.
func (l *Loader) explicit(key string) bool {
	if l.flags != nil {
		if f := l.flags.Lookup(key); f != nil && f.Changed {
			return true
		}
	}
	env := "ARBSCOPE_" + strings.ToUpper(strings.ReplaceAll(key, "-", "_"))
	if _, ok := os.LookupEnv(env); ok {
		return true
	}
	return l.v.InConfig(key)
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
		var list []string
		if strings.HasPrefix(strings.TrimSpace(typed), "[") && json.Unmarshal([]byte(typed), &list) == nil {
			return cleanStrings(list)
		}
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
