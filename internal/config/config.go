package config

import (
	"context"
	"time"

	"github.com/sethvargo/go-envconfig"
)

type Config struct {
	TelegramBotToken  string        `env:"TELEGRAM_BOT_TOKEN,required"`
	DBHost            string        `env:"DB_HOST,required"`
	DBPort            int           `env:"DB_PORT,default=5432"`
	DBUser            string        `env:"DB_USER,required"`
	DBPassword        string        `env:"DB_PASSWORD,required"`
	DBName            string        `env:"DB_NAME,required"`
	DBSSLMode         string        `env:"DB_SSLMODE,default=disable"`
	DBMaxIdleConns    int           `env:"DB_MAX_IDLE_CONNS,default=10"`
	DBMaxOpenConns    int           `env:"DB_MAX_OPEN_CONNS,default=25"`
	DBConnMaxLifetime time.Duration `env:"DB_CONN_MAX_LIFETIME,default=30m"`

	MarketDataBaseURL   string        `env:"MARKET_DATA_BASE_URL,required"`
	MarketDataTimeout   time.Duration `env:"MARKET_DATA_TIMEOUT,default=10s"`
	MarketDataRate      float64       `env:"MARKET_DATA_RATE,default=2"`
	MarketWSURL         string        `env:"MARKET_WS_URL"`
	MarketWSReadTimeout time.Duration `env:"MARKET_WS_READ_TIMEOUT,default=0s"`
	MarketWSMaxAge      time.Duration `env:"MARKET_WS_MAX_AGE,default=90s"`

	PollInterval      time.Duration `env:"POLL_INTERVAL,default=5m"`
	MarketTimezone    string        `env:"MARKET_TIMEZONE,default=America/New_York"`
	MarketOpen        string        `env:"MARKET_OPEN,default=09:30"`
	MarketClose       string        `env:"MARKET_CLOSE,default=16:00"`
	MarketHoursOnly   bool          `env:"MARKET_HOURS_ONLY,default=true"`
	InterSubjectDelay time.Duration `env:"INTER_SUBJECT_DELAY,default=500ms"`
	HistoryRetention  time.Duration `env:"HISTORY_RETENTION,default=2h"`
	CycleTimeout      time.Duration `env:"CYCLE_TIMEOUT,default=10m"`

	DeliveryMaxAttempts   int           `env:"DELIVERY_MAX_ATTEMPTS,default=3"`
	DeliveryBackoffBase   time.Duration `env:"DELIVERY_BACKOFF_BASE,default=30s"`
	DeliveryBackoffMax    time.Duration `env:"DELIVERY_BACKOFF_MAX,default=30m"`
	DeliveryRetryInterval time.Duration `env:"DELIVERY_RETRY_INTERVAL,default=15s"`
	DeliveryChannels      []string      `env:"DELIVERY_CHANNELS,default=telegram"`
	NATSURL               string        `env:"NATS_URL"`
	NATSSubjectPrefix     string        `env:"NATS_SUBJECT_PREFIX,default=alerts"`

	HTTPAddr string `env:"HTTP_ADDR,default=:8080"`

	TelegramPollTimeout int    `env:"TELEGRAM_POLL_TIMEOUT,default=60"`
	LogLevel            string `env:"LOG_LEVEL,default=info"`
	LogFormat           string `env:"LOG_FORMAT,default=json"`
}

func Load(ctx context.Context) (Config, error) {
	return load(ctx, envconfig.OsLookuper())
}

func load(ctx context.Context, lookuper envconfig.Lookuper) (Config, error) {
	var cfg Config
	if err := envconfig.ProcessWith(ctx, &envconfig.Config{Target: &cfg, Lookuper: lookuper}); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
