package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v6"
	"github.com/joho/godotenv"
)

// AppConfig 聚合运行时配置，尽量通过环境变量注入，避免硬编码。
type AppConfig struct {
	AppEnv   string `env:"APP_ENV" envDefault:"development"`
	HTTPAddr string `env:"HTTP_ADDR" envDefault:":8080"`

	// sqlite（默认，本地/测试）或 postgres
	DBDriver string `env:"DB_DRIVER" envDefault:"sqlite"`
	DBDSN    string `env:"DB_DSN" envDefault:"pc_store.db"`

	RedisAddr string `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	RedisDB   int    `env:"REDIS_DB" envDefault:"0"`

	// Kafka 集群地址（逗号分隔）、Topic、消费者组
	KafkaBrokers []string `env:"KAFKA_BROKERS" envSeparator:"," envDefault:"localhost:9092"`
	KafkaTopic   string   `env:"KAFKA_TOPIC" envDefault:"pc-store-order-events"`
	KafkaGroupID string   `env:"KAFKA_GROUP_ID" envDefault:"pc-store-order-event-log"`

	// Redis Stream outbox（事务提交后入流，Relay 异步转 Kafka）
	OrderEventStream   string `env:"ORDER_EVENT_STREAM" envDefault:"pc_store:order_events"`
	OrderEventGroup    string `env:"ORDER_EVENT_GROUP" envDefault:"pc-store-relay-group"`
	OrderEventConsumer string `env:"ORDER_EVENT_CONSUMER" envDefault:"pc-store-relay-1"`

	// 下单/轮询接口限流与下单占位锁
	CheckoutRateLimit  int           `env:"CHECKOUT_RATE_LIMIT" envDefault:"10"`
	CheckoutRateWindow time.Duration `env:"CHECKOUT_RATE_WINDOW" envDefault:"1m"`
	CheckoutLockTTL    time.Duration `env:"CHECKOUT_LOCK_TTL" envDefault:"30s"`

	// 鉴权 token 由外部认证服务签发，这里只校验
	JWTSecret string `env:"JWT_SECRET"`

	Wompi WompiConfig
}

// WompiConfig 支付网关配置。
type WompiConfig struct {
	APIURL          string        `env:"WOMPI_API_URL" envDefault:"https://sandbox.wompi.co/v1"`
	CheckoutURL     string        `env:"WOMPI_CHECKOUT_URL" envDefault:"https://checkout.wompi.co/p/"`
	PublicKey       string        `env:"WOMPI_PUBLIC_KEY"`
	PrivateKey      string        `env:"WOMPI_PRIVATE_KEY"`
	IntegritySecret string        `env:"WOMPI_INTEGRITY_SECRET"`
	EventsSecret    string        `env:"WOMPI_EVENTS_SECRET"`
	Timeout         time.Duration `env:"WOMPI_TIMEOUT" envDefault:"12s"`
	RPS             float64       `env:"WOMPI_RPS" envDefault:"5"`
	Currency        string        `env:"PAYMENT_CURRENCY" envDefault:"COP"`
	RedirectURL     string        `env:"PAYMENT_REDIRECT_URL" envDefault:"http://localhost:3000/payment/result"`
}

// Production 生产环境下 5xx 不回显内部细节。
func (c AppConfig) Production() bool { return c.AppEnv == "production" }

// Load 读取并校验配置，缺失时使用默认值。
// 当前目录存在 .env 时先加载（已存在的环境变量优先）。
func Load() (AppConfig, error) {
	_ = godotenv.Load()

	var cfg AppConfig
	if err := env.Parse(&cfg); err != nil {
		return AppConfig{}, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return AppConfig{}, err
	}
	return cfg, nil
}

// Validate 校验必填项与取值范围。
func (c AppConfig) Validate() error {
	switch c.DBDriver {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("DB_DRIVER must be sqlite or postgres, got %q", c.DBDriver)
	}
	if strings.TrimSpace(c.DBDSN) == "" {
		return fmt.Errorf("DB_DSN must not be empty")
	}
	if c.RedisDB < 0 {
		return fmt.Errorf("REDIS_DB must be >= 0")
	}
	if len(c.KafkaBrokers) == 0 {
		return fmt.Errorf("KAFKA_BROKERS must not be empty")
	}
	if c.KafkaTopic == "" {
		return fmt.Errorf("KAFKA_TOPIC must not be empty")
	}
	if c.KafkaGroupID == "" {
		return fmt.Errorf("KAFKA_GROUP_ID must not be empty")
	}
	if c.OrderEventStream == "" || c.OrderEventGroup == "" || c.OrderEventConsumer == "" {
		return fmt.Errorf("ORDER_EVENT_STREAM / ORDER_EVENT_GROUP / ORDER_EVENT_CONSUMER must not be empty")
	}
	if c.CheckoutRateLimit <= 0 {
		return fmt.Errorf("CHECKOUT_RATE_LIMIT must be > 0")
	}
	if c.CheckoutRateWindow < time.Second {
		return fmt.Errorf("CHECKOUT_RATE_WINDOW must be >= 1s")
	}
	if c.CheckoutLockTTL <= 0 {
		return fmt.Errorf("CHECKOUT_LOCK_TTL must be > 0")
	}
	if c.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET must be set")
	}
	return c.Wompi.Validate()
}

// Validate 网关密钥缺一不可：没有 events secret 就无法校验 webhook 来源。
func (w WompiConfig) Validate() error {
	if w.PublicKey == "" {
		return fmt.Errorf("WOMPI_PUBLIC_KEY must be set")
	}
	if w.IntegritySecret == "" {
		return fmt.Errorf("WOMPI_INTEGRITY_SECRET must be set")
	}
	if w.EventsSecret == "" {
		return fmt.Errorf("WOMPI_EVENTS_SECRET must be set")
	}
	if w.APIURL == "" || w.CheckoutURL == "" {
		return fmt.Errorf("WOMPI_API_URL and WOMPI_CHECKOUT_URL must not be empty")
	}
	if w.Timeout <= 0 || w.Timeout > time.Minute {
		return fmt.Errorf("WOMPI_TIMEOUT must be in (0, 1m]")
	}
	if w.RPS <= 0 {
		return fmt.Errorf("WOMPI_RPS must be > 0")
	}
	if len(w.Currency) != 3 {
		return fmt.Errorf("PAYMENT_CURRENCY must be a 3-letter code")
	}
	return nil
}
