package config

import (
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

type HTTPServer struct {
	Addr            string        `yaml:"address" env:"HTTP_ADDRESS" env-default:":8080"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"HTTP_SHUTDOWN_TIMEOUT" env-default:"5s"`
}

type Log struct {
	Level string `yaml:"level" env:"LOG_LEVEL" env-default:"info"`
}

type Engine struct {
	Pairs       []string `yaml:"pairs" env:"TRADING_PAIRS" env-separator:"," env-default:"BTC/USD,ETH/USD"`
	DefaultPair string   `yaml:"default_pair" env:"DEFAULT_PAIR" env-default:"BTC/USD"`
	BookDepth   int      `yaml:"book_depth" env:"BOOK_DEPTH" env-default:"20"`
	TradeLimit  int      `yaml:"trade_limit" env:"TRADE_LIMIT" env-default:"50"`
}

type RateLimit struct {
	// Interval is the minimum gap between mutating requests of one trader.
	// Zero or negative disables the limiter; a zero in the file is replaced
	// by the default, so write -1s there.
	Interval time.Duration `yaml:"interval" env:"RATE_LIMIT_INTERVAL" env-default:"100ms"`
}

type Simulator struct {
	Disabled    bool               `yaml:"disabled" env:"SIMULATOR_DISABLED"`
	Pair        string             `yaml:"pair" env:"SIMULATOR_PAIR"`
	TraderID    string             `yaml:"trader_id" env:"SIMULATOR_TRADER_ID" env-default:"market_maker"`
	MinInterval time.Duration      `yaml:"min_interval" env:"SIMULATOR_MIN_INTERVAL" env-default:"2s"`
	MaxInterval time.Duration      `yaml:"max_interval" env:"SIMULATOR_MAX_INTERVAL" env-default:"8s"`
	Spread      float64            `yaml:"spread" env:"SIMULATOR_SPREAD" env-default:"1000"`
	BasePrices  map[string]float64 `yaml:"base_prices" env:"SIMULATOR_BASE_PRICES" env-default:"BTC/USD:45000,ETH/USD:3000"`
}

type Redis struct {
	URL string        `yaml:"url" env:"REDIS_URL"`
	TTL time.Duration `yaml:"ttl" env:"REDIS_TTL" env-default:"5m"`
}

type Postgres struct {
	DSN string `yaml:"dsn" env:"POSTGRES_DSN"`
}

type Kafka struct {
	Brokers      []string      `yaml:"brokers" env:"KAFKA_BROKERS" env-separator:","`
	Topic        string        `yaml:"topic" env:"KAFKA_TOPIC" env-default:"orderbook-updates"`
	BatchTimeout time.Duration `yaml:"batch_timeout" env:"KAFKA_BATCH_TIMEOUT" env-default:"10ms"`
}

// Startup.ConnectRetries bounds the exponential backoff used when dialing redis
// and postgres at startup.
type Startup struct {
	ConnectRetries uint64 `yaml:"connect_retries" env:"CONNECT_RETRIES" env-default:"5"`
}

type Config struct {
	Env        string     `yaml:"env" env:"ENV" env-default:"production"`
	HTTPServer HTTPServer `yaml:"http_server"`
	Log        Log        `yaml:"log"`
	Engine     Engine     `yaml:"engine"`
	RateLimit  RateLimit  `yaml:"rate_limit"`
	Simulator  Simulator  `yaml:"simulator"`
	Redis      Redis      `yaml:"redis"`
	Postgres   Postgres   `yaml:"postgres"`
	Kafka      Kafka      `yaml:"kafka"`
	Startup    Startup    `yaml:"startup"`
}

// Load reads the YAML file at path with env overrides. An empty path reads
// the environment only.
func Load(path string) (*Config, error) {
	var cfg Config
	if path == "" {
		if err := cleanenv.ReadEnv(&cfg); err != nil {
			return nil, fmt.Errorf("read env: %w", err)
		}
		return &cfg, nil
	}
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("config file %s: %w", path, err)
	}
	if err := cleanenv.ReadConfig(path, &cfg); err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	return &cfg, nil
}

func MustLoad() *Config {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		flags := flag.String("config", "", "path to config file")
		flag.Parse()
		configPath = *flags
	}

	cfg, err := Load(configPath)
	if err != nil {
		log.Fatalf("Unable to load config: %s", err.Error())
	}
	return cfg
}
