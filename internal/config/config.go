package config

import (
	// Go Internal Packages
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	// Local Packages
	errors "github.com/markjakearzadon/momopay-gobackend/internal/errors"

	// External Packages
	"github.com/knadh/koanf"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/rawbytes"
)

// DefaultConfig targets the MTN MoMo sandbox.
var DefaultConfig = []byte(`
application: "momopay"

logger:
  level: "debug"

is_prod_mode: false

http:
  port: "8080"
  read_timeout: "10s"
  write_timeout: "15s"

store:
  driver: "mongo"

mongo:
  uri: "mongodb://localhost:27017"
  database: "momopaydb"

redis:
  enabled: false
  uri: "localhost:6379"
  password: ""
  token_key: "momo:collection:token"

kafka:
  enabled: false
  brokers:
    - "localhost:9092"
  topic: "momo-transaction-status"
  publish_timeout: 5s

gateway:
  base_url: "https://sandbox.momodeveloper.mtn.com"
  consumer_key: ""
  consumer_secret: ""
  subscription_key: ""
  target_environment: "sandbox"
  callback_base_url: ""
  timeout: "10s"
  token_margin: "30s"

payment:
  max_attempts: 3
  retry_backoff: "1s"
  payer_message: "Payment request"
  payee_note: "Thank you for your payment"

callback:
  token: ""

reconciler:
  enabled: false
  interval: "1m"
  min_age: "2m"
  batch_size: 50
`)

const (
	DriverMongo  = "mongo"
	DriverMemory = "memory"
)

type Config struct {
	Application string     `koanf:"application"`
	Logger      Logger     `koanf:"logger"`
	IsProdMode  bool       `koanf:"is_prod_mode"`
	HTTP        HTTP       `koanf:"http"`
	Store       Store      `koanf:"store"`
	Mongo       Mongo      `koanf:"mongo"`
	Redis       Redis      `koanf:"redis"`
	Kafka       Kafka      `koanf:"kafka"`
	Gateway     Gateway    `koanf:"gateway"`
	Payment     Payment    `koanf:"payment"`
	Callback    Callback   `koanf:"callback"`
	Reconciler  Reconciler `koanf:"reconciler"`
}

type Logger struct {
	Level string `koanf:"level"`
}

type HTTP struct {
	Port         string        `koanf:"port"`
	ReadTimeout  time.Duration `koanf:"read_timeout"`
	WriteTimeout time.Duration `koanf:"write_timeout"`
}

type Store struct {
	Driver string `koanf:"driver"`
}

type Mongo struct {
	URI      string `koanf:"uri"`
	Database string `koanf:"database"`
}

type Redis struct {
	Enabled  bool   `koanf:"enabled"`
	URI      string `koanf:"uri"`
	Password string `koanf:"password"`
	TokenKey string `koanf:"token_key"`
}

type Kafka struct {
	Enabled        bool          `koanf:"enabled"`
	Brokers        []string      `koanf:"brokers"`
	Topic          string        `koanf:"topic"`
	PublishTimeout time.Duration `koanf:"publish_timeout"`
}

// Gateway holds everything the collections API client needs.
type Gateway struct {
	BaseURL           string        `koanf:"base_url"`
	ConsumerKey       string        `koanf:"consumer_key"`
	ConsumerSecret    string        `koanf:"consumer_secret"`
	SubscriptionKey   string        `koanf:"subscription_key"`
	TargetEnvironment string        `koanf:"target_environment"`
	CallbackBaseURL   string        `koanf:"callback_base_url"`
	Timeout           time.Duration `koanf:"timeout"`
	TokenMargin       time.Duration `koanf:"token_margin"`
}

// CallbackURL is the webhook address sent with every payment request, or ""
// when no callback base is configured.
func (g Gateway) CallbackURL() string {
	if g.CallbackBaseURL == "" {
		return ""
	}
	return strings.TrimRight(g.CallbackBaseURL, "/") + "/api/momo/callback"
}

type Payment struct {
	MaxAttempts  int           `koanf:"max_attempts"`
	RetryBackoff time.Duration `koanf:"retry_backoff"`
	PayerMessage string        `koanf:"payer_message"`
	PayeeNote    string        `koanf:"payee_note"`
}

type Callback struct {
	Token string `koanf:"token"`
}

type Reconciler struct {
	Enabled   bool          `koanf:"enabled"`
	Interval  time.Duration `koanf:"interval"`
	MinAge    time.Duration `koanf:"min_age"`
	BatchSize int           `koanf:"batch_size"`
}

// Load reads DefaultConfig and then overrides it with the YAML file at path.
// A missing file is not an error.
func Load(path string) (Config, *koanf.Koanf, error) {
	k := koanf.New(".")
	if err := k.Load(rawbytes.Provider(DefaultConfig), yaml.Parser()); err != nil {
		return Config{}, nil, fmt.Errorf("load default config: %w", err)
	}
	if path != "" {
		if _, err := os.Stat(path); err == nil {
			if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
				return Config{}, nil, fmt.Errorf("load config file %s: %w", path, err)
			}
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return Config{}, nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return cfg, k, nil
}

// LoadSecrets overrides the config with values from the environment.
func LoadSecrets(c Config) Config {
	setString := func(dst *string, key string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}

	setString(&c.Mongo.URI, "MONGO_URI")
	setString(&c.Redis.URI, "REDIS_URI")
	setString(&c.Redis.Password, "REDIS_PASSWORD")
	setString(&c.Gateway.BaseURL, "MOMO_BASE_URL")
	setString(&c.Gateway.ConsumerKey, "MOMO_CONSUMER_KEY")
	setString(&c.Gateway.ConsumerSecret, "MOMO_CONSUMER_SECRET")
	setString(&c.Gateway.SubscriptionKey, "MOMO_SUBSCRIPTION_KEY")
	setString(&c.Gateway.TargetEnvironment, "MOMO_TARGET_ENVIRONMENT")
	setString(&c.Gateway.CallbackBaseURL, "CALLBACK_BASE_URL")
	setString(&c.Callback.Token, "CALLBACK_TOKEN")
	setString(&c.HTTP.Port, "PORT")

	if brokers := os.Getenv("KAFKA_BROKERS"); brokers != "" {
		c.Kafka.Brokers = strings.Split(brokers, ",")
	}
	if v, err := strconv.ParseBool(os.Getenv("IS_PROD_MODE")); err == nil {
		c.IsProdMode = v
	}
	return c
}

// Validate validates the configuration
func (c *Config) Validate() error {
	ve := errors.ValidationErrs()

	if c.Application == "" {
		ve.Add("application", "cannot be empty")
	}
	if c.Logger.Level == "" {
		ve.Add("logger.level", "cannot be empty")
	}
	if c.HTTP.Port == "" {
		ve.Add("http.port", "cannot be empty")
	}

	switch c.Store.Driver {
	case DriverMongo:
		if c.Mongo.URI == "" {
			ve.Add("mongo.uri", "cannot be empty")
		}
		if c.Mongo.Database == "" {
			ve.Add("mongo.database", "cannot be empty")
		}
	case DriverMemory:
	default:
		ve.Add("store.driver", "must be mongo or memory")
	}

	if c.Redis.Enabled && c.Redis.URI == "" {
		ve.Add("redis.uri", "cannot be empty")
	}
	if c.Kafka.Enabled {
		if len(c.Kafka.Brokers) == 0 {
			ve.Add("kafka.brokers", "cannot be empty")
		}
		if c.Kafka.Topic == "" {
			ve.Add("kafka.topic", "cannot be empty")
		}
		if c.Kafka.PublishTimeout <= 0 {
			ve.Add("kafka.publish_timeout", "must be positive")
		}
	}

	if c.Gateway.BaseURL == "" {
		ve.Add("gateway.base_url", "cannot be empty")
	}
	if c.Gateway.TargetEnvironment == "" {
		ve.Add("gateway.target_environment", "cannot be empty")
	}
	if c.Gateway.Timeout <= 0 {
		ve.Add("gateway.timeout", "must be positive")
	}
	if c.IsProdMode {
		if c.Gateway.ConsumerKey == "" {
			ve.Add("gateway.consumer_key", "cannot be empty")
		}
		if c.Gateway.ConsumerSecret == "" {
			ve.Add("gateway.consumer_secret", "cannot be empty")
		}
		if c.Gateway.SubscriptionKey == "" {
			ve.Add("gateway.subscription_key", "cannot be empty")
		}
	}

	if c.Payment.MaxAttempts < 1 {
		ve.Add("payment.max_attempts", "must be at least 1")
	}
	if c.Reconciler.Enabled {
		if c.Reconciler.Interval <= 0 {
			ve.Add("reconciler.interval", "must be positive")
		}
		if c.Reconciler.BatchSize < 1 {
			ve.Add("reconciler.batch_size", "must be at least 1")
		}
	}

	return ve.Err()
}
