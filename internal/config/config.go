package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	App      AppConfig      `mapstructure:"app"`
	Server   ServerConfig   `mapstructure:"server"`
	Log      LogConfig      `mapstructure:"log"`
	DB       DBConfig       `mapstructure:"db"`
	Chain    ChainConfig    `mapstructure:"chain"`
	Poller   PollerConfig   `mapstructure:"poller"`
	Price    PriceConfig    `mapstructure:"price"`
	Explorer ExplorerConfig `mapstructure:"explorer"`
	Telegram TelegramConfig `mapstructure:"telegram"`
	Status   StatusConfig   `mapstructure:"status"`
}

type AppConfig struct {
	Env string `mapstructure:"env"`
}

type ServerConfig struct {
	HTTPAddr string `mapstructure:"http_addr"`
}

type LogConfig struct {
	Level             string `mapstructure:"level"`
	Encoding          string `mapstructure:"encoding"`
	Development       bool   `mapstructure:"development"`
	Sampling          bool   `mapstructure:"sampling"`
	DisableCaller     bool   `mapstructure:"disable_caller"`
	DisableStacktrace bool   `mapstructure:"disable_stacktrace"`
}

type DBConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"`
	Timezone        string        `mapstructure:"timezone"`
	AdvisoryLockKey int64         `mapstructure:"advisory_lock_key"`
}

// ChainConfig identifies the RPC endpoint and the on-chain contracts the
// monitor interacts with. Addresses are hex strings; empty AMM addresses
// disable the second-protocol stream.
type ChainConfig struct {
	RPCURL        string        `mapstructure:"rpc_url"`
	Timeout       time.Duration `mapstructure:"timeout"`
	NativeSymbol  string        `mapstructure:"native_symbol"`
	WrappedNative string        `mapstructure:"wrapped_native"`
	Stablecoin    string        `mapstructure:"stablecoin"`
	Router        string        `mapstructure:"router"`

	AMMFactory       string `mapstructure:"amm_factory"`
	AMMEventEmitter  string `mapstructure:"amm_event_emitter"`
	AMMQuoteCurrency string `mapstructure:"amm_quote_currency"`
	AMMQuoteSymbol   string `mapstructure:"amm_quote_symbol"`
	ExplorerTxURL    string `mapstructure:"explorer_tx_url"`
}

type PollerConfig struct {
	Interval      time.Duration `mapstructure:"interval"`
	HistoryWindow uint64        `mapstructure:"history_window"`
}

type PriceConfig struct {
	PortfolioBaseURL  string        `mapstructure:"portfolio_base_url"`
	PortfolioTimeout  time.Duration `mapstructure:"portfolio_timeout"`
	NativeUSDFallback float64       `mapstructure:"native_usd_fallback"`
	RateWarnInterval  time.Duration `mapstructure:"rate_warn_interval"`
}

type ExplorerConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	APIKey  string        `mapstructure:"api_key"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type TelegramConfig struct {
	BotToken string `mapstructure:"bot_token"`
}

type StatusConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Cron    string `mapstructure:"cron"`
}

func Load(path string, envOnly bool) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("BW")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.AutomaticEnv()

	v.SetDefault("app.env", "dev")
	v.SetDefault("server.http_addr", ":8080")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.encoding", "console")
	v.SetDefault("log.development", true)
	v.SetDefault("log.sampling", false)
	v.SetDefault("log.disable_caller", false)
	v.SetDefault("log.disable_stacktrace", false)
	v.SetDefault("db.max_open_conns", 20)
	v.SetDefault("db.max_idle_conns", 5)
	v.SetDefault("db.conn_max_lifetime", "30m")
	v.SetDefault("db.conn_max_idle_time", "5m")
	v.SetDefault("db.timezone", "UTC")
	v.SetDefault("db.advisory_lock_key", 772031)
	v.SetDefault("chain.timeout", "15s")
	v.SetDefault("chain.native_symbol", "ETH")
	v.SetDefault("poller.interval", "3s")
	v.SetDefault("poller.history_window", 1000)
	v.SetDefault("price.portfolio_timeout", "10s")
	v.SetDefault("price.native_usd_fallback", 0)
	v.SetDefault("price.rate_warn_interval", "5m")
	v.SetDefault("explorer.timeout", "15s")
	v.SetDefault("status.enabled", false)
	v.SetDefault("status.cron", "0 0 * * * *")

	if !envOnly {
		if err := v.ReadInConfig(); err != nil {
			return Config{}, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, err
	}

	return cfg, nil
}
