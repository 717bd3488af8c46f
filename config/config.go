package config

import (
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/spooky-finn/go-depth-recorder/domain"
)

type Config struct {
	Symbols      []string           `env:"SYMBOLS" envSeparator:"," envDefault:"btc_usdt,eth_usdt,sol_usdt,bnb_usdt"`
	PersistMode  domain.PersistMode `env:"ORDERBOOK_SAVING_METHOD" envDefault:"ESSENTIAL-UPDATES"`
	SaveDir      string             `env:"SAVE_DIR" envDefault:"orderbook_data"`
	QueueMaxSize int                `env:"QUEUE_MAXSIZE" envDefault:"1000"`

	Writer   WriterConfig
	Binance  BinanceConfig  `envPrefix:"BINANCE_"`
	Archive  ArchiveConfig  `envPrefix:"ARCHIVE_"`
	Telegram TelegramConfig `envPrefix:"TELEGRAM_"`
	Log      LogConfig      `envPrefix:"LOG_"`

	MetricsAddr string `env:"METRICS_ADDR" envDefault:":8080"`
	GRPCAddr    string `env:"GRPC_ADDR" envDefault:":50051"`
}

type WriterConfig struct {
	FlushInterval time.Duration `env:"FLUSH_INTERVAL" envDefault:"5s"`
	MaxBatchSize  int           `env:"MAX_BATCH_SIZE" envDefault:"500"`
}

type BinanceConfig struct {
	StreamEndpoint string        `env:"STREAM_ENDPOINT" envDefault:"wss://stream.binance.com:9443/ws"`
	RestEndpoint   string        `env:"REST_ENDPOINT" envDefault:"https://api.binance.com"`
	SnapshotLimit  int           `env:"SNAPSHOT_LIMIT" envDefault:"5000"`
	RetryBackoff   time.Duration `env:"RETRY_BACKOFF" envDefault:"1s"`
	ReadTimeout    time.Duration `env:"READ_TIMEOUT" envDefault:"60s"`
}

type ArchiveConfig struct {
	MaxPartSize   int64         `env:"MAX_PART_SIZE" envDefault:"31457280"`
	UploadDelay   time.Duration `env:"UPLOAD_DELAY" envDefault:"2s"`
	RetryInterval time.Duration `env:"RETRY_INTERVAL" envDefault:"10m"`
	LedgerDir     string        `env:"LEDGER_DIR" envDefault:"orderbook_data/.ledger"`
}

type TelegramConfig struct {
	Token            string `env:"TOKEN"`
	ChatID           string `env:"CHAT_ID"`
	LogChatID        string `env:"LOG_CHAT_ID"`
	APIEndpoint      string `env:"API_ENDPOINT" envDefault:"https://api.telegram.org"`
	CaptionMaxLength int    `env:"CAPTION_MAX_LENGTH" envDefault:"1024"`
	MessageMaxLength int    `env:"MESSAGE_MAX_LENGTH" envDefault:"4096"`
	NotifyLevel      string `env:"NOTIFY_LEVEL" envDefault:"error"`
	NotifyQueue      int    `env:"NOTIFY_QUEUE" envDefault:"100"`
}

type LogConfig struct {
	Level string `env:"LEVEL" envDefault:"info"`
	File  string `env:"FILE" envDefault:"orderbook.log"`
}

// ArchivalEnabled reports whether closed segments are shipped to the sink.
func (c *TelegramConfig) ArchivalEnabled() bool {
	return c.Token != "" && c.ChatID != ""
}

func (c *TelegramConfig) NotifyEnabled() bool {
	return c.Token != "" && c.LogChatID != ""
}

// Load reads .env when present, then the process environment.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, errors.Wrap(err, "failed to parse config")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if len(c.Symbols) == 0 {
		return errors.New("SYMBOLS must list at least one instrument")
	}
	if _, err := c.MarketSymbols(); err != nil {
		return err
	}
	if c.QueueMaxSize <= 0 {
		return errors.New("QUEUE_MAXSIZE must be positive")
	}
	if c.Writer.MaxBatchSize <= 0 {
		return errors.New("MAX_BATCH_SIZE must be positive")
	}
	if c.Writer.FlushInterval <= 0 {
		return errors.New("FLUSH_INTERVAL must be positive")
	}
	if c.Archive.MaxPartSize <= 0 {
		return errors.New("ARCHIVE_MAX_PART_SIZE must be positive")
	}
	return nil
}

func (c *Config) MarketSymbols() ([]*domain.MarketSymbol, error) {
	symbols := make([]*domain.MarketSymbol, 0, len(c.Symbols))
	for _, s := range c.Symbols {
		ms, err := domain.NewMarketSymbolFromString(s)
		if err != nil {
			return nil, errors.Wrapf(err, "SYMBOLS entry %q", s)
		}
		symbols = append(symbols, ms)
	}
	return symbols, nil
}
