package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	base "github.com/aJV99/CommodiTrade-sub000/libs/config"
	"github.com/spf13/viper"
)

type DBConfig struct {
	Host     string
	Port     int
	Name     string
	User     string
	Password string
	SSLMode  string
	MaxConns int32
}

func (c DBConfig) DSN() string {
	dsn := fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.Name, c.SSLMode)
	if c.MaxConns > 0 {
		dsn += fmt.Sprintf("&pool_max_conns=%d", c.MaxConns)
	}
	return dsn
}

type KafkaTopics struct {
	TradesExecuted     string
	TradesCancelled    string
	ContractTranches   string
	InventoryMovements string
	ShipmentsDelivered string
	DLQ                string
}

type KafkaConfig struct {
	Enabled       bool
	Brokers       []string
	ConsumerGroup string
	MaxAttempts   int
	Topics        KafkaTopics
}

// InventoryConfig holds the routing used when a receipt does not name a
// warehouse, location or quality.
type InventoryConfig struct {
	DefaultWarehouse string
	DefaultLocation  string
	DefaultQuality   string
}

type TxConfig struct {
	MaxAttempts int
	BaseBackoff time.Duration
}

type RateLimitConfig struct {
	Enabled  bool
	Backend  string
	Requests int
	Window   time.Duration
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type Config struct {
	App       base.AppConfig
	DB        DBConfig
	Kafka     KafkaConfig
	Inventory InventoryConfig
	Tx        TxConfig
	RateLimit RateLimitConfig
	Redis     RedisConfig
}

func Load() (*Config, error) {
	v, err := base.NewViper(os.Getenv(base.EnvPrefix + "_CONFIG"))
	if err != nil {
		return nil, err
	}
	return FromViper(v)
}

func FromViper(v *viper.Viper) (*Config, error) {
	appCfg, err := base.FromViper(v)
	if err != nil {
		return nil, err
	}

	setDefaults(v)
	for key, env := range map[string]string{
		"db.host":     "POSTGRES_HOST",
		"db.port":     "POSTGRES_PORT",
		"db.name":     "POSTGRES_DB",
		"db.user":     "POSTGRES_USER",
		"db.password": "POSTGRES_PASSWORD",
		"db.sslmode":  "POSTGRES_SSLMODE",
	} {
		if err := v.BindEnv(key, envName(key), env); err != nil {
			return nil, fmt.Errorf("bind %s: %w", key, err)
		}
	}

	cfg := &Config{
		App: *appCfg,
		DB: DBConfig{
			Host:     v.GetString("db.host"),
			Port:     v.GetInt("db.port"),
			Name:     v.GetString("db.name"),
			User:     v.GetString("db.user"),
			Password: v.GetString("db.password"),
			SSLMode:  v.GetString("db.sslmode"),
			MaxConns: v.GetInt32("db.max_conns"),
		},
		Kafka: KafkaConfig{
			Enabled:       v.GetBool("kafka.enabled"),
			Brokers:       envCSV(envName("kafka.brokers"), v.GetStringSlice("kafka.brokers")),
			ConsumerGroup: v.GetString("kafka.consumer_group"),
			MaxAttempts:   v.GetInt("kafka.max_attempts"),
			Topics: KafkaTopics{
				TradesExecuted:     v.GetString("kafka.topics.trades_executed"),
				TradesCancelled:    v.GetString("kafka.topics.trades_cancelled"),
				ContractTranches:   v.GetString("kafka.topics.contract_tranches"),
				InventoryMovements: v.GetString("kafka.topics.inventory_movements"),
				ShipmentsDelivered: v.GetString("kafka.topics.shipments_delivered"),
				DLQ:                v.GetString("kafka.topics.dlq"),
			},
		},
		Inventory: InventoryConfig{
			DefaultWarehouse: v.GetString("inventory.default_warehouse"),
			DefaultLocation:  v.GetString("inventory.default_location"),
			DefaultQuality:   v.GetString("inventory.default_quality"),
		},
		Tx: TxConfig{
			MaxAttempts: v.GetInt("tx.max_attempts"),
			BaseBackoff: v.GetDuration("tx.base_backoff"),
		},
		RateLimit: RateLimitConfig{
			Enabled:  v.GetBool("rate_limit.enabled"),
			Backend:  strings.ToLower(v.GetString("rate_limit.backend")),
			Requests: v.GetInt("rate_limit.requests"),
			Window:   v.GetDuration("rate_limit.window"),
		},
		Redis: RedisConfig{
			Addr:     v.GetString("redis.addr"),
			Password: v.GetString("redis.password"),
			DB:       v.GetInt("redis.db"),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("db.host", "localhost")
	v.SetDefault("db.port", 5432)
	v.SetDefault("db.name", "ctrade_ledger")
	v.SetDefault("db.user", "ctrade")
	v.SetDefault("db.password", "ctrade")
	v.SetDefault("db.sslmode", "disable")
	v.SetDefault("db.max_conns", 10)

	v.SetDefault("kafka.enabled", true)
	v.SetDefault("kafka.brokers", []string{"localhost:9092"})
	v.SetDefault("kafka.consumer_group", "ledger-service")
	v.SetDefault("kafka.max_attempts", 3)
	v.SetDefault("kafka.topics.trades_executed", "trades.executed")
	v.SetDefault("kafka.topics.trades_cancelled", "trades.cancelled")
	v.SetDefault("kafka.topics.contract_tranches", "contracts.tranche_executed")
	v.SetDefault("kafka.topics.inventory_movements", "inventory.movements")
	v.SetDefault("kafka.topics.shipments_delivered", "shipments.delivered")
	v.SetDefault("kafka.topics.dlq", "ledger.dlq")

	v.SetDefault("inventory.default_warehouse", "MAIN")
	v.SetDefault("inventory.default_location", "DEFAULT")
	v.SetDefault("inventory.default_quality", "STANDARD")

	v.SetDefault("tx.max_attempts", 3)
	v.SetDefault("tx.base_backoff", 25*time.Millisecond)

	v.SetDefault("rate_limit.enabled", true)
	v.SetDefault("rate_limit.backend", "memory")
	v.SetDefault("rate_limit.requests", 120)
	v.SetDefault("rate_limit.window", time.Minute)

	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.db", 0)
}

func (c *Config) validate() error {
	if c.DB.Port <= 0 {
		return fmt.Errorf("db port must be positive")
	}
	if c.Kafka.Enabled {
		if len(c.Kafka.Brokers) == 0 {
			return fmt.Errorf("kafka brokers required")
		}
		if c.Kafka.ConsumerGroup == "" {
			return fmt.Errorf("kafka consumer group required")
		}
		if c.Kafka.Topics.ShipmentsDelivered == "" {
			return fmt.Errorf("kafka shipments topic required")
		}
	}
	if c.Tx.MaxAttempts <= 0 {
		return fmt.Errorf("tx max attempts must be positive")
	}
	if c.RateLimit.Enabled {
		if c.RateLimit.Requests <= 0 || c.RateLimit.Window <= 0 {
			return fmt.Errorf("rate limit requests and window must be positive")
		}
		switch c.RateLimit.Backend {
		case "memory":
		case "redis":
			if c.Redis.Addr == "" {
				return fmt.Errorf("redis addr required for redis rate limiter")
			}
		default:
			return fmt.Errorf("unknown rate limit backend %q", c.RateLimit.Backend)
		}
	}
	if c.Inventory.DefaultWarehouse == "" || c.Inventory.DefaultLocation == "" || c.Inventory.DefaultQuality == "" {
		return fmt.Errorf("inventory default routing required")
	}
	return nil
}

func envName(key string) string {
	return base.EnvPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
}

func envCSV(key string, def []string) []string {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		out := make([]string, 0, len(parts))
		for _, part := range parts {
			trimmed := strings.TrimSpace(part)
			if trimmed != "" {
				out = append(out, trimmed)
			}
		}
		if len(out) > 0 {
			return out
		}
	}
	return def
}
