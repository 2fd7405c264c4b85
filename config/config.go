package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/url"
	"os"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
	"github.com/spf13/viper"

	"github.com/angeloszaimis/fetch-orchestrator/internal/engine"
	"github.com/angeloszaimis/fetch-orchestrator/internal/strategy"
)

const (
	EnvDev     = "dev"
	EnvStaging = "staging"
	EnvProd    = "prod"
)

const (
	LogLevelDebug = "debug"
	LogLevelInfo  = "info"
	LogLevelWarn  = "warn"
	LogLevelError = "error"
)

type ServerConfig struct {
	Address         string `mapstructure:"address"`
	Environment     string `mapstructure:"environment"`
	ReadTimeout     string `mapstructure:"read_timeout"`
	WriteTimeout    string `mapstructure:"write_timeout"`
	IdleTimeout     string `mapstructure:"idle_timeout"`
	ShutdownTimeout string `mapstructure:"shutdown_timeout"`
}

type LoggingConfig struct {
	Level     string `mapstructure:"level"`
	AddSource bool   `mapstructure:"add_source"`
}

// TelemetryConfig sizes the trace ring and the metric event queue.
type TelemetryConfig struct {
	Capacity      int `mapstructure:"capacity"`
	MetricsBuffer int `mapstructure:"metrics_buffer"`
}

type BreakerConfig struct {
	FailureThreshold int    `mapstructure:"failure_threshold"`
	InitialBackoff   string `mapstructure:"initial_backoff"`
	MaxBackoff       string `mapstructure:"max_backoff"`
}

type RetryConfig struct {
	MaxRetries     int    `mapstructure:"max_retries"`
	BaseDelay      string `mapstructure:"base_delay"`
	MaxDelay       string `mapstructure:"max_delay"`
	Jitter         string `mapstructure:"jitter"`
	AttemptTimeout string `mapstructure:"attempt_timeout"`
}

type DispatchConfig struct {
	Strategy     string `mapstructure:"strategy"`
	VirtualNodes int    `mapstructure:"virtual_nodes"`
}

type HealthConfig struct {
	Interval             string  `mapstructure:"interval"`
	WindowSize           int     `mapstructure:"window_size"`
	WindowDuration       string  `mapstructure:"window_duration"`
	DegradedRatio        float64 `mapstructure:"degraded_ratio"`
	CriticalRatio        float64 `mapstructure:"critical_ratio"`
	CriticalOpenFraction float64 `mapstructure:"critical_open_fraction"`
}

type FileSinkConfig struct {
	Path string `mapstructure:"path"`
}

type RedisSinkConfig struct {
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Key      string `mapstructure:"key"`
	TTL      string `mapstructure:"ttl"`
}

type KafkaSinkConfig struct {
	Brokers []string `mapstructure:"brokers"`
	Topic   string   `mapstructure:"topic"`
}

// SnapshotConfig enables periodic trace dumps. A sink is active when its
// path, address or brokers are set.
type SnapshotConfig struct {
	Interval string          `mapstructure:"interval"`
	Limit    int             `mapstructure:"limit"`
	File     FileSinkConfig  `mapstructure:"file"`
	Redis    RedisSinkConfig `mapstructure:"redis"`
	Kafka    KafkaSinkConfig `mapstructure:"kafka"`
}

type ProviderConfig struct {
	ID           string `mapstructure:"id"`
	BaseURL      string `mapstructure:"base_url"`
	APIKey       string `mapstructure:"api_key"`
	APIKeyEnv    string `mapstructure:"api_key_env"`
	APIKeyParam  string `mapstructure:"api_key_param"`
	APIKeyHeader string `mapstructure:"api_key_header"`
	Weight       int    `mapstructure:"weight"`
	Timeout      string `mapstructure:"timeout"`
	MaxBodyBytes int64  `mapstructure:"max_body_bytes"`
	// Endpoints maps an engine name to a path template containing {symbol}.
	Endpoints map[string]string `mapstructure:"endpoints"`
}

type AssetClassConfig struct {
	Name      string   `mapstructure:"name"`
	Providers []string `mapstructure:"providers"`
	Suffixes  []string `mapstructure:"suffixes"`
	Prefixes  []string `mapstructure:"prefixes"`
	Default   bool     `mapstructure:"default"`
}

type Config struct {
	Server       ServerConfig       `mapstructure:"server"`
	Logging      LoggingConfig      `mapstructure:"logging"`
	Telemetry    TelemetryConfig    `mapstructure:"telemetry"`
	Breaker      BreakerConfig      `mapstructure:"breaker"`
	Retry        RetryConfig        `mapstructure:"retry"`
	Dispatch     DispatchConfig     `mapstructure:"dispatch"`
	Health       HealthConfig       `mapstructure:"health"`
	Snapshot     SnapshotConfig     `mapstructure:"snapshot"`
	Providers    []ProviderConfig   `mapstructure:"providers"`
	AssetClasses []AssetClassConfig `mapstructure:"asset_classes"`
	Aliases      map[string]string  `mapstructure:"aliases"`
}

// Load reads config.yaml from ./config or the working directory, applies
// environment overrides (server.address becomes SERVER_ADDRESS) and
// validates the result.
func Load() (*Config, error) {
	v := newViper()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("./config")
	v.AddConfigPath(".")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			slog.Error("failed to read config file", slog.String("error", err.Error()))
			return nil, err
		}
		slog.Warn("config file not found, using defaults and environment variables")
	} else {
		slog.Info("loaded config file", slog.String("file", v.ConfigFileUsed()))
	}

	return decode(v)
}

// LoadFile reads the configuration from an explicit path.
func LoadFile(path string) (*Config, error) {
	v := newViper()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	return decode(v)
}

func newViper() *viper.Viper {
	v := viper.New()
	setDefaults(v)
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	return v
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.environment", EnvDev)
	v.SetDefault("server.address", ":8080")
	v.SetDefault("server.read_timeout", "15s")
	v.SetDefault("server.write_timeout", "15s")
	v.SetDefault("server.idle_timeout", "60s")
	v.SetDefault("server.shutdown_timeout", "5s")

	v.SetDefault("logging.level", LogLevelInfo)
	v.SetDefault("logging.add_source", false)

	v.SetDefault("telemetry.capacity", 500)
	v.SetDefault("telemetry.metrics_buffer", 1000)

	v.SetDefault("breaker.failure_threshold", 5)
	v.SetDefault("breaker.initial_backoff", "30s")
	v.SetDefault("breaker.max_backoff", "10m")

	v.SetDefault("retry.max_retries", 2)
	v.SetDefault("retry.base_delay", "200ms")
	v.SetDefault("retry.max_delay", "2s")
	v.SetDefault("retry.jitter", "100ms")
	v.SetDefault("retry.attempt_timeout", "10s")

	v.SetDefault("dispatch.strategy", strategy.Priority)
	v.SetDefault("dispatch.virtual_nodes", 100)

	v.SetDefault("health.interval", "10s")
	v.SetDefault("health.window_size", 100)
	v.SetDefault("health.window_duration", "0s")
	v.SetDefault("health.degraded_ratio", 0.90)
	v.SetDefault("health.critical_ratio", 0.70)
	v.SetDefault("health.critical_open_fraction", 0.5)

	v.SetDefault("snapshot.interval", "1m")
	v.SetDefault("snapshot.limit", 500)
	v.SetDefault("snapshot.file.path", "")
	v.SetDefault("snapshot.redis.address", "")
	v.SetDefault("snapshot.redis.password", "")
	v.SetDefault("snapshot.redis.db", 0)
	v.SetDefault("snapshot.redis.key", "fetch:traces")
	v.SetDefault("snapshot.redis.ttl", "1h")
	v.SetDefault("snapshot.kafka.brokers", []string{})
	v.SetDefault("snapshot.kafka.topic", "fetch-traces")
}

func decode(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		slog.Error("failed to unmarshal config", slog.String("error", err.Error()))
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		slog.Error("invalid configuration", slog.String("error", err.Error()))
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) Validate() error {
	err := validation.ValidateStruct(c,
		validation.Field(&c.Server),
		validation.Field(&c.Logging),
		validation.Field(&c.Telemetry),
		validation.Field(&c.Breaker),
		validation.Field(&c.Retry),
		validation.Field(&c.Dispatch),
		validation.Field(&c.Health),
		validation.Field(&c.Snapshot),
		validation.Field(&c.Providers, validation.Required, validation.Length(1, 0)),
		validation.Field(&c.AssetClasses, validation.Required, validation.Length(1, 0)),
		validation.Field(&c.Aliases, validation.By(validateAliases)),
	)
	if err != nil {
		return err
	}
	return c.validateReferences()
}

// validateReferences checks the links between providers and asset classes.
func (c *Config) validateReferences() error {
	ids := make(map[string]bool, len(c.Providers))
	for _, p := range c.Providers {
		if ids[p.ID] {
			return validation.Errors{"providers": validation.NewError("validation_duplicate_provider", "duplicate provider id "+p.ID)}
		}
		ids[p.ID] = true
	}

	names := make(map[string]bool, len(c.AssetClasses))
	defaults := 0
	for _, ac := range c.AssetClasses {
		if names[ac.Name] {
			return validation.Errors{"asset_classes": validation.NewError("validation_duplicate_class", "duplicate asset class "+ac.Name)}
		}
		names[ac.Name] = true
		if ac.Default {
			defaults++
		}
		for _, id := range ac.Providers {
			if !ids[id] {
				return validation.Errors{"asset_classes": validation.NewError("validation_unknown_provider",
					fmt.Sprintf("asset class %s references unknown provider %s", ac.Name, id))}
			}
		}
	}
	if defaults > 1 {
		return validation.Errors{"asset_classes": validation.NewError("validation_multiple_defaults", "at most one asset class may be the default")}
	}
	return nil
}

func (s ServerConfig) Validate() error {
	return validation.ValidateStruct(&s,
		validation.Field(&s.Environment,
			validation.Required,
			validation.In(EnvDev, EnvStaging, EnvProd),
		),
		validation.Field(&s.Address,
			validation.Required,
			validation.By(validateHostPort),
		),
		validation.Field(&s.ReadTimeout, validation.Required, validation.By(validateDuration)),
		validation.Field(&s.WriteTimeout, validation.Required, validation.By(validateDuration)),
		validation.Field(&s.IdleTimeout, validation.Required, validation.By(validateDuration)),
		validation.Field(&s.ShutdownTimeout, validation.Required, validation.By(validateDuration)),
	)
}

func (l LoggingConfig) Validate() error {
	return validation.ValidateStruct(&l,
		validation.Field(&l.Level,
			validation.Required,
			validation.In(LogLevelDebug, LogLevelInfo, LogLevelWarn, LogLevelError),
		),
	)
}

func (t TelemetryConfig) Validate() error {
	return validation.ValidateStruct(&t,
		validation.Field(&t.Capacity, validation.Required, validation.Min(1)),
		validation.Field(&t.MetricsBuffer, validation.Required, validation.Min(1)),
	)
}

func (b BreakerConfig) Validate() error {
	return validation.ValidateStruct(&b,
		validation.Field(&b.FailureThreshold, validation.Required, validation.Min(1)),
		validation.Field(&b.InitialBackoff, validation.Required, validation.By(validatePositiveDuration)),
		validation.Field(&b.MaxBackoff,
			validation.Required,
			validation.By(validatePositiveDuration),
			validation.By(func(interface{}) error {
				if parseDuration(b.MaxBackoff) < parseDuration(b.InitialBackoff) {
					return validation.NewError("validation_backoff_order", "must not be shorter than initial_backoff")
				}
				return nil
			}),
		),
	)
}

func (r RetryConfig) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.MaxRetries, validation.Min(0)),
		validation.Field(&r.BaseDelay, validation.Required, validation.By(validatePositiveDuration)),
		validation.Field(&r.MaxDelay, validation.Required, validation.By(validateDuration)),
		validation.Field(&r.Jitter, validation.Required, validation.By(validateDuration)),
		validation.Field(&r.AttemptTimeout, validation.Required, validation.By(validateDuration)),
	)
}

func (d DispatchConfig) Validate() error {
	names := make([]interface{}, 0, len(strategy.Names()))
	for _, n := range strategy.Names() {
		names = append(names, n)
	}
	return validation.ValidateStruct(&d,
		validation.Field(&d.Strategy, validation.Required, validation.In(names...)),
		validation.Field(&d.VirtualNodes, validation.Required, validation.Min(1)),
	)
}

func (h HealthConfig) Validate() error {
	return validation.ValidateStruct(&h,
		validation.Field(&h.Interval, validation.Required, validation.By(validatePositiveDuration)),
		validation.Field(&h.WindowSize, validation.Required, validation.Min(1)),
		validation.Field(&h.WindowDuration, validation.Required, validation.By(validateDuration)),
		validation.Field(&h.DegradedRatio, validation.Min(0.0), validation.Max(1.0)),
		validation.Field(&h.CriticalRatio,
			validation.Min(0.0),
			validation.Max(h.DegradedRatio),
		),
		validation.Field(&h.CriticalOpenFraction, validation.Min(0.0), validation.Max(1.0)),
	)
}

func (s SnapshotConfig) Validate() error {
	return validation.ValidateStruct(&s,
		validation.Field(&s.Interval, validation.Required, validation.By(validatePositiveDuration)),
		validation.Field(&s.Limit, validation.Required, validation.Min(1)),
		validation.Field(&s.Redis),
		validation.Field(&s.Kafka),
	)
}

func (r RedisSinkConfig) Validate() error {
	if r.Address == "" {
		return nil
	}
	return validation.ValidateStruct(&r,
		validation.Field(&r.Address, validation.By(validateHostPort)),
		validation.Field(&r.Key, validation.Required),
		validation.Field(&r.TTL, validation.Required, validation.By(validateDuration)),
		validation.Field(&r.DB, validation.Min(0)),
	)
}

func (k KafkaSinkConfig) Validate() error {
	if len(k.Brokers) == 0 {
		return nil
	}
	return validation.ValidateStruct(&k,
		validation.Field(&k.Brokers, validation.Each(validation.By(validateHostPort))),
		validation.Field(&k.Topic, validation.Required),
	)
}

func (p ProviderConfig) Validate() error {
	return validation.ValidateStruct(&p,
		validation.Field(&p.ID, validation.Required),
		validation.Field(&p.BaseURL, validation.Required, validation.By(validateServerURL)),
		validation.Field(&p.Weight, validation.Min(0)),
		validation.Field(&p.Timeout, validation.When(p.Timeout != "", validation.By(validateDuration))),
		validation.Field(&p.MaxBodyBytes, validation.Min(int64(0))),
		validation.Field(&p.Endpoints, validation.Required, validation.By(validateEndpoints)),
		validation.Field(&p.APIKeyParam,
			validation.When(p.APIKeyHeader != "", validation.Empty.Error("cannot be combined with api_key_header")),
		),
	)
}

func (a AssetClassConfig) Validate() error {
	return validation.ValidateStruct(&a,
		validation.Field(&a.Name, validation.Required),
		validation.Field(&a.Providers, validation.Required, validation.Length(1, 0)),
	)
}

// Key resolves the provider's API key, preferring the named environment
// variable over the inline value.
func (p ProviderConfig) Key() string {
	if p.APIKeyEnv != "" {
		if v := os.Getenv(p.APIKeyEnv); v != "" {
			return v
		}
	}
	return p.APIKey
}

// EngineEndpoints returns the endpoint table keyed by engine. Unknown keys
// have already been rejected by Validate.
func (p ProviderConfig) EngineEndpoints() map[engine.Engine]string {
	out := make(map[engine.Engine]string, len(p.Endpoints))
	for k, path := range p.Endpoints {
		e, err := engine.Parse(k)
		if err != nil {
			continue
		}
		out[e] = path
	}
	return out
}

func (p ProviderConfig) TimeoutDuration() time.Duration { return parseDuration(p.Timeout) }

func (s ServerConfig) ReadTimeoutDuration() time.Duration  { return parseDuration(s.ReadTimeout) }
func (s ServerConfig) WriteTimeoutDuration() time.Duration { return parseDuration(s.WriteTimeout) }
func (s ServerConfig) IdleTimeoutDuration() time.Duration  { return parseDuration(s.IdleTimeout) }
func (s ServerConfig) ShutdownTimeoutDuration() time.Duration {
	return parseDuration(s.ShutdownTimeout)
}

func (b BreakerConfig) InitialBackoffDuration() time.Duration { return parseDuration(b.InitialBackoff) }
func (b BreakerConfig) MaxBackoffDuration() time.Duration     { return parseDuration(b.MaxBackoff) }

func (r RetryConfig) BaseDelayDuration() time.Duration      { return parseDuration(r.BaseDelay) }
func (r RetryConfig) MaxDelayDuration() time.Duration       { return parseDuration(r.MaxDelay) }
func (r RetryConfig) JitterDuration() time.Duration         { return parseDuration(r.Jitter) }
func (r RetryConfig) AttemptTimeoutDuration() time.Duration { return parseDuration(r.AttemptTimeout) }

func (h HealthConfig) IntervalDuration() time.Duration       { return parseDuration(h.Interval) }
func (h HealthConfig) WindowDurationDuration() time.Duration { return parseDuration(h.WindowDuration) }

func (s SnapshotConfig) IntervalDuration() time.Duration { return parseDuration(s.Interval) }
func (r RedisSinkConfig) TTLDuration() time.Duration     { return parseDuration(r.TTL) }

// parseDuration returns zero for values Validate would reject.
func parseDuration(s string) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0
	}
	return d
}

func validateHostPort(value interface{}) error {
	addr, ok := value.(string)
	if !ok {
		return validation.NewError("validation_invalid_type", "must be a string")
	}

	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return validation.NewError("validation_invalid_hostport", "must be in host:port format")
	}

	if port == "" {
		return validation.NewError("validation_invalid_port", "port cannot be empty")
	}

	if host != "" {
		if err := is.Host.Validate(host); err != nil {
			return validation.NewError("validation_invalid_host", "invalid host")
		}
	}

	return nil
}

func validateDuration(value interface{}) error {
	durationStr, ok := value.(string)
	if !ok {
		return validation.NewError("validation_invalid_type", "must be a string")
	}

	d, err := time.ParseDuration(durationStr)
	if err != nil {
		return validation.NewError("validation_invalid_duration", "must be a valid duration (e.g., 2s, 5m, 1h)")
	}
	if d < 0 {
		return validation.NewError("validation_negative_duration", "must not be negative")
	}

	return nil
}

// validatePositiveDuration is validateDuration for tickers and backoffs,
// which cannot be zero.
func validatePositiveDuration(value interface{}) error {
	if err := validateDuration(value); err != nil {
		return err
	}
	if parseDuration(value.(string)) == 0 {
		return validation.NewError("validation_nonpositive_duration", "must be greater than zero")
	}
	return nil
}

func validateServerURL(value interface{}) error {
	serverURL, ok := value.(string)
	if !ok {
		return validation.NewError("validation_invalid_type", "must be a string")
	}

	if serverURL == "" {
		return validation.NewError("validation_empty_url", "server URL cannot be empty")
	}

	parsedURL, err := url.Parse(serverURL)
	if err != nil {
		return validation.NewError("validation_invalid_url", "must be a valid URL")
	}

	if parsedURL.Scheme != "http" && parsedURL.Scheme != "https" {
		return validation.NewError("validation_invalid_scheme", "URL must use http or https scheme")
	}

	if parsedURL.Host == "" {
		return validation.NewError("validation_missing_host", "URL must have a host")
	}

	return nil
}

func validateEndpoints(value interface{}) error {
	endpoints, ok := value.(map[string]string)
	if !ok {
		return validation.NewError("validation_invalid_type", "must be a map of engine to path")
	}

	for name, path := range endpoints {
		if _, err := engine.Parse(name); err != nil {
			return validation.NewError("validation_unknown_engine", "unknown engine "+name)
		}
		if !strings.Contains(path, "{symbol}") {
			return validation.NewError("validation_missing_placeholder", "endpoint for "+name+" must contain {symbol}")
		}
	}

	return nil
}

func validateAliases(value interface{}) error {
	aliases, ok := value.(map[string]string)
	if !ok {
		return validation.NewError("validation_invalid_type", "must be a map of symbol to canonical asset")
	}

	for alias, canonical := range aliases {
		if strings.TrimSpace(alias) == "" || strings.TrimSpace(canonical) == "" {
			return validation.NewError("validation_empty_alias", "aliases need a symbol and a canonical asset")
		}
	}

	return nil
}
