package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config holds all configuration for the application
type Config struct {
	// Ethereum node configuration
	Ethereum EthereumConfig

	// Contract being indexed
	Contract ContractConfig

	// Database configuration
	Database DatabaseConfig

	// Redis configuration
	Redis RedisConfig

	// API server configuration
	API APIConfig

	// Indexer configuration
	Indexer IndexerConfig

	// Reconciler configuration
	Reconciler ReconcilerConfig

	// Health monitor configuration
	Health HealthConfig

	// Logging configuration
	Log LogConfig
}

// EthereumConfig holds Ethereum node connection settings
type EthereumConfig struct {
	RPCURL         string        `envconfig:"ETH_RPC_URL" default:"http://localhost:8545"`
	WSURL          string        `envconfig:"ETH_WS_URL" default:""`
	ChainID        int64         `envconfig:"ETH_CHAIN_ID" default:"8453"`
	RequestTimeout time.Duration `envconfig:"ETH_REQUEST_TIMEOUT" default:"30s"`
	MaxRetries     int           `envconfig:"ETH_MAX_RETRIES" default:"3"`
	RetryDelay     time.Duration `envconfig:"ETH_RETRY_DELAY" default:"1s"`
}

// ContractConfig identifies the gift contract whose events are indexed
type ContractConfig struct {
	Address         string `envconfig:"GIFT_CONTRACT_ADDRESS" required:"true"`
	DeploymentBlock uint64 `envconfig:"GIFT_DEPLOYMENT_BLOCK" required:"true"`
	Confirmations   uint64 `envconfig:"GIFT_CONFIRMATIONS" default:"12"`
}

// DatabaseConfig holds PostgreSQL connection settings
type DatabaseConfig struct {
	Host            string        `envconfig:"DB_HOST" default:"localhost"`
	Port            int           `envconfig:"DB_PORT" default:"5432"`
	User            string        `envconfig:"DB_USER" default:"indexer"`
	Password        string        `envconfig:"DB_PASSWORD" default:"indexer"`
	Name            string        `envconfig:"DB_NAME" default:"gift_indexer"`
	SSLMode         string        `envconfig:"DB_SSL_MODE" default:"disable"`
	MaxOpenConns    int           `envconfig:"DB_MAX_OPEN_CONNS" default:"25"`
	MaxIdleConns    int           `envconfig:"DB_MAX_IDLE_CONNS" default:"5"`
	ConnMaxLifetime time.Duration `envconfig:"DB_CONN_MAX_LIFETIME" default:"5m"`
}

// RedisConfig holds Redis connection settings
type RedisConfig struct {
	Host     string `envconfig:"REDIS_HOST" default:"localhost"`
	Port     int    `envconfig:"REDIS_PORT" default:"6379"`
	Password string `envconfig:"REDIS_PASSWORD" default:""`
	DB       int    `envconfig:"REDIS_DB" default:"0"`
}

// APIConfig holds API server settings
type APIConfig struct {
	Host            string        `envconfig:"API_HOST" default:"0.0.0.0"`
	Port            int           `envconfig:"API_PORT" default:"8081"`
	ReadTimeout     time.Duration `envconfig:"API_READ_TIMEOUT" default:"10s"`
	WriteTimeout    time.Duration `envconfig:"API_WRITE_TIMEOUT" default:"10s"`
	ShutdownTimeout time.Duration `envconfig:"API_SHUTDOWN_TIMEOUT" default:"30s"`
	RateLimitRPS    int           `envconfig:"API_RATE_LIMIT_RPS" default:"100"`
	CacheTTL        time.Duration `envconfig:"API_CACHE_TTL" default:"30s"`

	// ReadMode selects where mapping lookups are served from:
	// "store" reads the database, "chain" re-derives from the RPC node.
	ReadMode string `envconfig:"API_READ_MODE" default:"store"`
}

// IndexerConfig holds backfill/stream engine settings
type IndexerConfig struct {
	MetricsPort int `envconfig:"INDEXER_METRICS_PORT" default:"8080"`

	// Adaptive batching bounds for eth_getLogs ranges
	BatchMinSize       uint64        `envconfig:"INDEXER_BATCH_MIN_SIZE" default:"50"`
	BatchInitialSize   uint64        `envconfig:"INDEXER_BATCH_INITIAL_SIZE" default:"500"`
	BatchMaxSize       uint64        `envconfig:"INDEXER_BATCH_MAX_SIZE" default:"2000"`
	BatchGrowIncrement uint64        `envconfig:"INDEXER_BATCH_GROW_INCREMENT" default:"100"`
	BatchGrowCooldown  time.Duration `envconfig:"INDEXER_BATCH_GROW_COOLDOWN" default:"5m"`

	PollInterval    time.Duration `envconfig:"INDEXER_POLL_INTERVAL" default:"12s"`
	InterBatchPause time.Duration `envconfig:"INDEXER_INTER_BATCH_PAUSE" default:"200ms"`

	BackfillMaxAttempts int           `envconfig:"INDEXER_BACKFILL_MAX_ATTEMPTS" default:"3"`
	BackfillRetryBase   time.Duration `envconfig:"INDEXER_BACKFILL_RETRY_BASE" default:"1s"`

	WorkerCount int `envconfig:"INDEXER_WORKER_COUNT" default:"4"`
}

// ReconcilerConfig holds periodic cross-check settings
type ReconcilerConfig struct {
	Interval    time.Duration `envconfig:"RECONCILER_INTERVAL" default:"10m"`
	SampleSize  int           `envconfig:"RECONCILER_SAMPLE_SIZE" default:"25"`
	BlockWindow uint64        `envconfig:"RECONCILER_BLOCK_WINDOW" default:"5"`
	DLQRetryMax int           `envconfig:"RECONCILER_DLQ_RETRY_MAX" default:"10"`
}

// HealthConfig holds SLO thresholds for the health monitor
type HealthConfig struct {
	Interval time.Duration `envconfig:"HEALTH_INTERVAL" default:"30s"`

	LagWarnSeconds      int64 `envconfig:"HEALTH_LAG_WARN_SECONDS" default:"120"`
	LagCriticalSeconds  int64 `envconfig:"HEALTH_LAG_CRITICAL_SECONDS" default:"300"`
	LagEmergencySeconds int64 `envconfig:"HEALTH_LAG_EMERGENCY_SECONDS" default:"900"`

	DLQWarnCount     int64 `envconfig:"HEALTH_DLQ_WARN_COUNT" default:"10"`
	DLQCriticalCount int64 `envconfig:"HEALTH_DLQ_CRITICAL_COUNT" default:"50"`

	BatchErrorsWarn     int `envconfig:"HEALTH_BATCH_ERRORS_WARN" default:"3"`
	BatchErrorsCritical int `envconfig:"HEALTH_BATCH_ERRORS_CRITICAL" default:"5"`

	// Consecutive violating polls required before a tier's action fires.
	SustainWarn      int `envconfig:"HEALTH_SUSTAIN_WARN" default:"2"`
	SustainCritical  int `envconfig:"HEALTH_SUSTAIN_CRITICAL" default:"4"`
	SustainEmergency int `envconfig:"HEALTH_SUSTAIN_EMERGENCY" default:"6"`

	ActionCooldown time.Duration `envconfig:"HEALTH_ACTION_COOLDOWN" default:"5m"`
}

// LogConfig holds logging settings
type LogConfig struct {
	Level  string `envconfig:"LOG_LEVEL" default:"info"`
	Format string `envconfig:"LOG_FORMAT" default:"json"`
}

// Load loads configuration from environment variables and validates it
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects configurations the engine must not start with
func (c *Config) Validate() error {
	if !isHexAddress(c.Contract.Address) {
		return fmt.Errorf("invalid contract address: %q", c.Contract.Address)
	}
	if c.Indexer.BatchMinSize == 0 {
		return fmt.Errorf("batch min size must be positive")
	}
	if c.Indexer.BatchMinSize > c.Indexer.BatchInitialSize || c.Indexer.BatchInitialSize > c.Indexer.BatchMaxSize {
		return fmt.Errorf("batch sizes must satisfy min <= initial <= max, got %d/%d/%d",
			c.Indexer.BatchMinSize, c.Indexer.BatchInitialSize, c.Indexer.BatchMaxSize)
	}
	if c.Indexer.PollInterval <= 0 {
		return fmt.Errorf("poll interval must be positive")
	}
	if c.Indexer.BackfillMaxAttempts < 1 {
		return fmt.Errorf("backfill max attempts must be at least 1")
	}
	if c.Reconciler.Interval <= 0 || c.Reconciler.SampleSize <= 0 {
		return fmt.Errorf("reconciler interval and sample size must be positive")
	}
	if c.Health.Interval <= 0 {
		return fmt.Errorf("health interval must be positive")
	}
	if c.Health.LagWarnSeconds >= c.Health.LagCriticalSeconds || c.Health.LagCriticalSeconds >= c.Health.LagEmergencySeconds {
		return fmt.Errorf("lag thresholds must be strictly increasing")
	}
	switch c.API.ReadMode {
	case "store", "chain":
	default:
		return fmt.Errorf("invalid API read mode: %q (want store or chain)", c.API.ReadMode)
	}
	return nil
}

func isHexAddress(addr string) bool {
	if len(addr) != 42 || !strings.HasPrefix(addr, "0x") {
		return false
	}
	for _, r := range addr[2:] {
		switch {
		case r >= '0' && r <= '9':
		case r >= 'a' && r <= 'f':
		case r >= 'A' && r <= 'F':
		default:
			return false
		}
	}
	return true
}
