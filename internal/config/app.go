package config

import (
	"fmt"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"ratewatch/internal/domain"
)

type HTTPServer struct {
	Port string `mapstructure:"port"`
}

type HTTPClient struct {
	TimeoutSeconds int `mapstructure:"timeout_seconds"`
}

type Provider struct {
	BaseURL   string `mapstructure:"base_url"`
	APIKey    string `mapstructure:"api_key"`
	PivotCoin string `mapstructure:"pivot_coin"`
}

type Staleness struct {
	StaleThresholdMs     int64 `mapstructure:"stale_threshold_ms"`
	VeryStaleThresholdMs int64 `mapstructure:"very_stale_threshold_ms"`
	CriticalThresholdMs  int64 `mapstructure:"critical_threshold_ms"`
	HistorySize          int   `mapstructure:"history_size"`
}

type Scheduler struct {
	RefreshIntervalMs int64 `mapstructure:"refresh_interval_ms"`
	RetryDelayMs      int64 `mapstructure:"retry_delay_ms"`
	MaxRetries        int   `mapstructure:"max_retries"`
}

type Currencies struct {
	// SupportedCryptos maps display symbols to provider coin ids.
	SupportedCryptos   map[string]string `mapstructure:"supported_cryptos"`
	SupportedFiats     []string          `mapstructure:"supported_fiats"`
	CryptoVsCurrencies []string          `mapstructure:"crypto_vs_currencies"`
}

type Logging struct {
	Level string `mapstructure:"level"`
}

type AppConfig struct {
	HTTPServer HTTPServer `mapstructure:"http_server"`
	HTTPClient HTTPClient `mapstructure:"http_client"`
	Provider   Provider   `mapstructure:"provider"`
	Staleness  Staleness  `mapstructure:"staleness"`
	Scheduler  Scheduler  `mapstructure:"scheduler"`
	Currencies Currencies `mapstructure:"currencies"`
	Logging    Logging    `mapstructure:"logging"`
}

func (c *AppConfig) Thresholds() domain.StalenessThresholds {
	return domain.StalenessThresholds{
		Stale:     time.Duration(c.Staleness.StaleThresholdMs) * time.Millisecond,
		VeryStale: time.Duration(c.Staleness.VeryStaleThresholdMs) * time.Millisecond,
		Critical:  time.Duration(c.Staleness.CriticalThresholdMs) * time.Millisecond,
	}
}

func (c *AppConfig) RefreshInterval() time.Duration {
	return time.Duration(c.Scheduler.RefreshIntervalMs) * time.Millisecond
}

func (c *AppConfig) RetryDelay() time.Duration {
	return time.Duration(c.Scheduler.RetryDelayMs) * time.Millisecond
}

// Validate rejects malformed thresholds and currency lists before any
// network call is made.
func (c *AppConfig) Validate() error {
	if !c.Thresholds().Valid() {
		return fmt.Errorf("%w: staleness thresholds must be positive and strictly increasing", domain.ErrConfigInvalid)
	}
	if c.RefreshInterval() <= 0 {
		return fmt.Errorf("%w: refresh interval must be positive", domain.ErrConfigInvalid)
	}
	if c.RetryDelay() <= 0 || c.RetryDelay() >= c.RefreshInterval() {
		return fmt.Errorf("%w: retry delay must be positive and shorter than the refresh interval", domain.ErrConfigInvalid)
	}
	if len(c.Currencies.SupportedCryptos) == 0 {
		return fmt.Errorf("%w: at least one supported crypto is required", domain.ErrConfigInvalid)
	}
	if len(c.Currencies.SupportedFiats) == 0 {
		return fmt.Errorf("%w: at least one supported fiat is required", domain.ErrConfigInvalid)
	}
	if len(c.Currencies.CryptoVsCurrencies) == 0 {
		return fmt.Errorf("%w: at least one vs currency is required", domain.ErrConfigInvalid)
	}
	return nil
}

func Init() (*AppConfig, error) {
	var cfg AppConfig

	// .env is optional; env vars may come from the real environment.
	_ = godotenv.Load()

	viper.SetConfigFile("config.yaml")
	viper.SetConfigType("yaml")
	if err := viper.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	viper.SetDefault("http_server.port", "8080")
	viper.SetDefault("http_client.timeout_seconds", 10)
	viper.SetDefault("provider.base_url", "https://api.coingecko.com/api/v3")
	viper.SetDefault("provider.pivot_coin", "bitcoin")
	viper.SetDefault("staleness.stale_threshold_ms", 3_600_000)
	viper.SetDefault("staleness.very_stale_threshold_ms", 7_200_000)
	viper.SetDefault("staleness.critical_threshold_ms", 21_600_000)
	viper.SetDefault("staleness.history_size", 100)
	viper.SetDefault("scheduler.refresh_interval_ms", 900_000)
	viper.SetDefault("scheduler.retry_delay_ms", 300_000)
	viper.SetDefault("scheduler.max_retries", 3)
	viper.SetDefault("logging.level", "info")

	_ = viper.BindEnv("http_server.port", "HTTP_PORT")
	_ = viper.BindEnv("http_client.timeout_seconds", "HTTP_CLIENT_TIMEOUT_SECONDS")
	_ = viper.BindEnv("provider.base_url", "PROVIDER_BASE_URL")
	_ = viper.BindEnv("provider.api_key", "PROVIDER_API_KEY")
	_ = viper.BindEnv("logging.level", "LOG_LEVEL")

	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshalling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}
