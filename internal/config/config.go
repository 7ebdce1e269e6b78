package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

// Store drivers
const (
	StoreMemory   = "memory"
	StorePostgres = "postgres"
)

// Config holds all application configuration
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Kafka    KafkaConfig
	Ledger   LedgerConfig
	Log      LogConfig
	Store    StoreConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port string
	Host string
}

// DatabaseConfig holds PostgreSQL configuration
type DatabaseConfig struct {
	Host           string
	Port           string
	User           string
	Password       string
	DBName         string
	SSLMode        string
	MigrationsPath string
}

// RedisConfig holds the price cache connection. An empty Addr disables the cache.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// KafkaConfig holds Kafka configuration. No brokers disables both directions.
type KafkaConfig struct {
	Brokers     []string
	EventsTopic string
	PricesTopic string
	GroupID     string
}

// LedgerConfig holds the trading rules
type LedgerConfig struct {
	OrderNumberPrefix   string
	TransactionIDPrefix string
	LockTimeout         time.Duration
	ExecutionFeeFlat    decimal.Decimal
	ExecutionFeeBps     decimal.Decimal
	RequireKYC          bool
	PriceCacheTTL       time.Duration
}

// LogConfig holds logger settings
type LogConfig struct {
	Level  string
	Format string
}

// StoreConfig selects the repository implementation
type StoreConfig struct {
	Driver string
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	feeFlat, err := getEnvAsDecimal("EXECUTION_FEE_FLAT", decimal.Zero)
	if err != nil {
		return nil, err
	}
	feeBps, err := getEnvAsDecimal("EXECUTION_FEE_BPS", decimal.Zero)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		Server: ServerConfig{
			Port: getEnv("SERVER_PORT", "8080"),
			Host: getEnv("SERVER_HOST", "0.0.0.0"),
		},
		Database: DatabaseConfig{
			Host:           getEnv("DB_HOST", "localhost"),
			Port:           getEnv("DB_PORT", "5432"),
			User:           getEnv("DB_USER", "postgres"),
			Password:       getEnv("DB_PASSWORD", "postgres"),
			DBName:         getEnv("DB_NAME", "brokerage"),
			SSLMode:        getEnv("DB_SSLMODE", "disable"),
			MigrationsPath: getEnv("DB_MIGRATIONS_PATH", "db/migrations"),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", ""),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
		},
		Kafka: KafkaConfig{
			Brokers:     getEnvAsList("KAFKA_BROKERS"),
			EventsTopic: getEnv("KAFKA_EVENTS_TOPIC", "ledger-events"),
			PricesTopic: getEnv("KAFKA_PRICES_TOPIC", "stock-prices"),
			GroupID:     getEnv("KAFKA_GROUP_ID", "brokerage-ledger"),
		},
		Ledger: LedgerConfig{
			OrderNumberPrefix:   getEnv("ORDER_NUMBER_PREFIX", "ORD"),
			TransactionIDPrefix: getEnv("TRANSACTION_ID_PREFIX", "TXN"),
			LockTimeout:         getEnvAsDuration("LOCK_TIMEOUT", 5*time.Second),
			ExecutionFeeFlat:    feeFlat,
			ExecutionFeeBps:     feeBps,
			RequireKYC:          getEnvAsBool("REQUIRE_KYC", true),
			PriceCacheTTL:       getEnvAsDuration("PRICE_CACHE_TTL", time.Minute),
		},
		Log: LogConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "console"),
		},
		Store: StoreConfig{
			Driver: strings.ToLower(getEnv("STORE_DRIVER", StoreMemory)),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the configuration for values the ledger cannot run with
func (c *Config) Validate() error {
	if c.Ledger.ExecutionFeeFlat.IsNegative() {
		return fmt.Errorf("EXECUTION_FEE_FLAT must not be negative, got %s", c.Ledger.ExecutionFeeFlat)
	}
	if c.Ledger.ExecutionFeeBps.IsNegative() {
		return fmt.Errorf("EXECUTION_FEE_BPS must not be negative, got %s", c.Ledger.ExecutionFeeBps)
	}
	if c.Ledger.LockTimeout <= 0 {
		return fmt.Errorf("LOCK_TIMEOUT must be positive, got %s", c.Ledger.LockTimeout)
	}
	if c.Ledger.OrderNumberPrefix == "" || c.Ledger.TransactionIDPrefix == "" {
		return fmt.Errorf("ORDER_NUMBER_PREFIX and TRANSACTION_ID_PREFIX must not be empty")
	}
	switch c.Store.Driver {
	case StoreMemory, StorePostgres:
	default:
		return fmt.Errorf("STORE_DRIVER must be %q or %q, got %q", StoreMemory, StorePostgres, c.Store.Driver)
	}
	return nil
}

// ConnectionString returns the PostgreSQL connection string
func (d *DatabaseConfig) ConnectionString() string {
	return "postgres://" + d.User + ":" + d.Password + "@" + d.Host + ":" + d.Port + "/" + d.DBName + "?sslmode=" + d.SSLMode
}

// Enabled reports whether brokers are configured
func (k *KafkaConfig) Enabled() bool {
	return len(k.Brokers) > 0
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getEnvAsDecimal(key string, defaultValue decimal.Decimal) (decimal.Decimal, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	d, err := decimal.NewFromString(value)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid %s %q: %w", key, value, err)
	}
	return d, nil
}

func getEnvAsList(key string) []string {
	var out []string
	for _, part := range strings.Split(os.Getenv(key), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
