package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	base "github.com/joesimop/farmers-backend/libs/config"
	"github.com/spf13/viper"
)

type DBConfig struct {
	Host     string
	Port     int
	Name     string
	User     string
	Password string
	SSLMode  string
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type KafkaTopics struct {
	CheckoutSettled string
	DeadLetter      string
}

type KafkaConfig struct {
	Enabled bool
	Brokers []string
	Topics  KafkaTopics
}

type SettlementConfig struct {
	StrictFees      bool
	ScheduleRefresh time.Duration
	CatalogTTL      time.Duration
}

type Config struct {
	App        base.AppConfig
	DB         DBConfig
	Redis      RedisConfig
	Kafka      KafkaConfig
	Settlement SettlementConfig
}

func Load() (*Config, error) {
	appCfg, err := base.Load(os.Getenv("FMB_CONFIG"))
	if err != nil {
		return nil, err
	}

	v := viper.New()
	v.SetEnvPrefix("FMB")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	path := os.Getenv("FMB_CONFIG")
	if path == "" {
		path = "config.yaml"
	}
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	v.SetDefault("kafka.enabled", true)
	v.SetDefault("kafka.brokers", []string{"localhost:9092"})
	v.SetDefault("kafka.topics.checkout_settled", "checkout.settled")
	v.SetDefault("kafka.topics.dead_letter", "settlement.dlq")
	v.SetDefault("settlement.strict_fees", false)

	cfg := &Config{
		App: *appCfg,
		DB: DBConfig{
			Host:     envString("POSTGRES_HOST", "localhost"),
			Port:     envInt("POSTGRES_PORT", 5432),
			Name:     envString("POSTGRES_DB", "farmers_market"),
			User:     envString("POSTGRES_USER", "fmb"),
			Password: envString("POSTGRES_PASSWORD", "fmb"),
			SSLMode:  envString("POSTGRES_SSLMODE", "disable"),
		},
		Redis: RedisConfig{
			Addr:     envString("REDIS_ADDR", "localhost:6379"),
			Password: envString("REDIS_PASSWORD", ""),
			DB:       envInt("REDIS_DB", 0),
		},
		Kafka: KafkaConfig{
			Enabled: envBool("KAFKA_ENABLED", v.GetBool("kafka.enabled")),
			Brokers: envCSV("KAFKA_BROKERS", v.GetStringSlice("kafka.brokers")),
			Topics: KafkaTopics{
				CheckoutSettled: envString("KAFKA_CHECKOUT_SETTLED_TOPIC", v.GetString("kafka.topics.checkout_settled")),
				DeadLetter:      envString("KAFKA_DEAD_LETTER_TOPIC", v.GetString("kafka.topics.dead_letter")),
			},
		},
		Settlement: SettlementConfig{
			StrictFees:      envBool("FMB_STRICT_FEES", v.GetBool("settlement.strict_fees")),
			ScheduleRefresh: envDuration("FMB_SCHEDULE_REFRESH", 5*time.Minute),
			CatalogTTL:      envDuration("FMB_CATALOG_TTL", 5*time.Minute),
		},
	}

	if cfg.Kafka.Enabled && len(cfg.Kafka.Brokers) == 0 {
		return nil, fmt.Errorf("kafka brokers required")
	}
	if cfg.Kafka.Enabled && cfg.Kafka.Topics.CheckoutSettled == "" {
		return nil, fmt.Errorf("checkout settled topic required")
	}
	if cfg.Settlement.ScheduleRefresh < 0 {
		return nil, fmt.Errorf("schedule refresh must not be negative")
	}

	return cfg, nil
}

func (c DBConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.Name, c.SSLMode)
}

func envString(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func envBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}

func envDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
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
