package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration
type Config struct {
	HTTP           HTTPConfig
	Log            LogConfig
	Storage        StorageConfig
	Snapshot       SnapshotConfig
	History        HistoryConfig
	Quotes         QuotesConfig
	LLM            LLMConfig
	CircuitBreaker CircuitBreakerConfig
	Retry          RetryConfig
	Agents         AgentsConfig
}

// HTTPConfig holds HTTP server configuration
type HTTPConfig struct {
	Addr               string
	CORSAllowedOrigins string
	RequestTimeout     time.Duration
}

// LogConfig holds logger configuration
type LogConfig struct {
	Level      string
	Production bool
}

// Storage backends
const (
	BackendFile     = "file"
	BackendSQLite   = "sqlite"
	BackendRedis    = "redis"
	BackendPostgres = "postgres"
	BackendMemory   = "memory"
)

// StorageConfig selects and configures the key-value backend behind the
// snapshot store and the history ledger
type StorageConfig struct {
	Backend    string
	DataDir    string
	Passphrase string // enables AES-GCM encryption for the file backend

	SQLitePath string

	RedisAddr     string
	RedisPassword string
	RedisDB       int
	RedisPrefix   string
	RedisTTL      time.Duration

	DatabaseURL string
}

// SnapshotConfig holds the current-run snapshot settings
type SnapshotConfig struct {
	Key     string
	Version string
	Expiry  time.Duration
}

// HistoryConfig holds the history ledger settings
type HistoryConfig struct {
	Key     string
	Version string
	Limit   int
}

// Quote providers
const (
	QuoteProviderSina         = "sina"
	QuoteProviderAlphaVantage = "alphavantage"
)

// QuotesConfig holds reference data settings
type QuotesConfig struct {
	Provider            string
	SinaBaseURL         string
	AlphaVantageBaseURL string
	AlphaVantageAPIKey  string
	NewsEnabled         bool
	NewsBaseURL         string
	NewsLimit           int
	RequestTimeout      time.Duration
	CredentialKey       string
}

// LLMConfig holds model provider settings. Credentials are not configured
// here; they are supplied per run by the operator.
type LLMConfig struct {
	OpenAIBaseURL   string
	DeepSeekBaseURL string
	QwenBaseURL     string
	GeminiBaseURL   string
	AWSRegion       string
	MaxTokens       int
	RequestTimeout  time.Duration
}

// CircuitBreakerConfig holds breaker settings shared by every external service
type CircuitBreakerConfig struct {
	MaxRequests uint32
	Interval    time.Duration
	Timeout     time.Duration
}

// RetryConfig controls retries when connecting to storage backends at startup
type RetryConfig struct {
	MaxRetries     int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

// AgentsConfig points at an optional YAML file overriding the built-in
// participant defaults
type AgentsConfig struct {
	ConfigFile string
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	dataDir := getEnvString("DATA_DIR", defaultDataDir())

	cfg := &Config{
		HTTP: HTTPConfig{
			Addr:               getEnvString("HTTP_ADDR", ":8080"),
			CORSAllowedOrigins: getEnvString("CORS_ALLOWED_ORIGINS", "*"),
			RequestTimeout:     getEnvDuration("HTTP_REQUEST_TIMEOUT", 30*time.Second),
		},
		Log: LogConfig{
			Level:      getEnvString("LOG_LEVEL", "info"),
			Production: getEnvBool("LOG_PRODUCTION", false),
		},
		Storage: StorageConfig{
			Backend:       strings.ToLower(getEnvString("STORAGE_BACKEND", BackendFile)),
			DataDir:       dataDir,
			Passphrase:    os.Getenv("STORAGE_PASSPHRASE"),
			SQLitePath:    getEnvString("SQLITE_PATH", filepath.Join(dataDir, "stock-council.db")),
			RedisAddr:     getEnvString("REDIS_ADDR", "localhost:6379"),
			RedisPassword: os.Getenv("REDIS_PASSWORD"),
			RedisDB:       getEnvIntAllowZero("REDIS_DB", 0),
			RedisPrefix:   getEnvString("REDIS_PREFIX", "stock-council"),
			RedisTTL:      getEnvDuration("REDIS_TTL", 0),
			DatabaseURL:   os.Getenv("DATABASE_URL"),
		},
		Snapshot: SnapshotConfig{
			Key:     getEnvString("SNAPSHOT_KEY", "stock-council:run-state"),
			Version: getEnvString("SNAPSHOT_VERSION", "1"),
			Expiry:  getEnvDuration("SNAPSHOT_EXPIRY", 30*time.Minute),
		},
		History: HistoryConfig{
			Key:     getEnvString("HISTORY_KEY", "stock-council:history"),
			Version: getEnvString("HISTORY_VERSION", "1"),
			Limit:   getEnvInt("HISTORY_LIMIT", 50),
		},
		Quotes: QuotesConfig{
			Provider:            strings.ToLower(getEnvString("QUOTE_PROVIDER", QuoteProviderSina)),
			SinaBaseURL:         getEnvString("SINA_QUOTE_BASE_URL", "https://hq.sinajs.cn"),
			AlphaVantageBaseURL: getEnvString("ALPHA_VANTAGE_BASE_URL", "https://www.alphavantage.co/query"),
			AlphaVantageAPIKey:  os.Getenv("ALPHA_VANTAGE_API_KEY"),
			NewsEnabled:         getEnvBool("NEWS_ENABLED", true),
			NewsBaseURL:         getEnvString("NEWS_BASE_URL", "https://vip.stock.finance.sina.com.cn"),
			NewsLimit:           getEnvInt("NEWS_LIMIT", 10),
			RequestTimeout:      getEnvDuration("QUOTE_REQUEST_TIMEOUT", 15*time.Second),
			CredentialKey:       getEnvString("QUOTE_CREDENTIAL_KEY", "alphavantage"),
		},
		LLM: LLMConfig{
			OpenAIBaseURL:   os.Getenv("OPENAI_BASE_URL"),
			DeepSeekBaseURL: getEnvString("DEEPSEEK_BASE_URL", "https://api.deepseek.com/v1"),
			QwenBaseURL:     getEnvString("QWEN_BASE_URL", "https://dashscope.aliyuncs.com/compatible-mode/v1"),
			GeminiBaseURL:   os.Getenv("GEMINI_BASE_URL"),
			AWSRegion:       os.Getenv("AWS_REGION"),
			MaxTokens:       getEnvInt("LLM_MAX_TOKENS", 4096),
			RequestTimeout:  getEnvDuration("LLM_REQUEST_TIMEOUT", 0),
		},
		CircuitBreaker: CircuitBreakerConfig{
			MaxRequests: uint32(getEnvInt("CIRCUIT_BREAKER_MAX_REQUESTS", 5)),
			Interval:    getEnvDuration("CIRCUIT_BREAKER_INTERVAL", time.Minute),
			Timeout:     getEnvDuration("CIRCUIT_BREAKER_TIMEOUT", 30*time.Second),
		},
		Retry: RetryConfig{
			MaxRetries:     getEnvInt("STORAGE_CONNECT_RETRIES", 3),
			InitialBackoff: getEnvDuration("STORAGE_CONNECT_BACKOFF", 200*time.Millisecond),
			MaxBackoff:     getEnvDuration("STORAGE_CONNECT_MAX_BACKOFF", 5*time.Second),
		},
		Agents: AgentsConfig{
			ConfigFile: os.Getenv("AGENT_CONFIG_FILE"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	switch c.Storage.Backend {
	case BackendFile, BackendSQLite, BackendRedis, BackendPostgres, BackendMemory:
	default:
		return fmt.Errorf("STORAGE_BACKEND must be one of file, sqlite, redis, postgres, memory, got %q", c.Storage.Backend)
	}

	if c.Storage.Backend == BackendPostgres && c.Storage.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required when STORAGE_BACKEND=postgres")
	}
	if c.Storage.Backend == BackendRedis && c.Storage.RedisAddr == "" {
		return fmt.Errorf("REDIS_ADDR is required when STORAGE_BACKEND=redis")
	}

	switch c.Quotes.Provider {
	case QuoteProviderSina, QuoteProviderAlphaVantage:
	default:
		return fmt.Errorf("QUOTE_PROVIDER must be sina or alphavantage, got %q", c.Quotes.Provider)
	}

	if c.Snapshot.Key == "" || c.History.Key == "" {
		return fmt.Errorf("SNAPSHOT_KEY and HISTORY_KEY must not be empty")
	}
	if c.Snapshot.Key == c.History.Key {
		return fmt.Errorf("SNAPSHOT_KEY and HISTORY_KEY must differ, both are %q", c.Snapshot.Key)
	}
	if c.Snapshot.Expiry <= 0 {
		return fmt.Errorf("SNAPSHOT_EXPIRY must be positive, got %s", c.Snapshot.Expiry)
	}
	if c.History.Limit <= 0 {
		return fmt.Errorf("HISTORY_LIMIT must be positive, got %d", c.History.Limit)
	}

	return nil
}

// HasDatabase returns true if database configuration is available
func (c *Config) HasDatabase() bool {
	return c.Storage.DatabaseURL != ""
}

// HasBedrock returns true if an AWS region is configured for Bedrock
func (c *Config) HasBedrock() bool {
	return c.LLM.AWSRegion != ""
}

func defaultDataDir() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(dir, "stock-council")
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".stock-council")
	}
	return ".stock-council"
}

func getEnvString(key, defaultValue string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if val := os.Getenv(key); val != "" {
		if parsed, err := strconv.Atoi(val); err == nil && parsed > 0 {
			return parsed
		}
	}
	return defaultValue
}

func getEnvIntAllowZero(key string, defaultValue int) int {
	if val := os.Getenv(key); val != "" {
		if parsed, err := strconv.Atoi(val); err == nil && parsed >= 0 {
			return parsed
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if val := os.Getenv(key); val != "" {
		if parsed, err := strconv.ParseBool(val); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if parsed, err := time.ParseDuration(val); err == nil && parsed >= 0 {
			return parsed
		}
	}
	return defaultValue
}

// NewTestConfig creates a Config with default values for testing
func NewTestConfig() *Config {
	return &Config{
		HTTP: HTTPConfig{
			Addr:               ":0",
			CORSAllowedOrigins: "*",
			RequestTimeout:     30 * time.Second,
		},
		Log: LogConfig{
			Level: "info",
		},
		Storage: StorageConfig{
			Backend:     BackendMemory,
			RedisPrefix: "stock-council-test",
		},
		Snapshot: SnapshotConfig{
			Key:     "stock-council:run-state",
			Version: "1",
			Expiry:  30 * time.Minute,
		},
		History: HistoryConfig{
			Key:     "stock-council:history",
			Version: "1",
			Limit:   50,
		},
		Quotes: QuotesConfig{
			Provider:            QuoteProviderSina,
			SinaBaseURL:         "https://hq.sinajs.cn",
			AlphaVantageBaseURL: "https://www.alphavantage.co/query",
			NewsEnabled:         false,
			NewsBaseURL:         "https://vip.stock.finance.sina.com.cn",
			NewsLimit:           10,
			RequestTimeout:      5 * time.Second,
			CredentialKey:       "alphavantage",
		},
		LLM: LLMConfig{
			DeepSeekBaseURL: "https://api.deepseek.com/v1",
			QwenBaseURL:     "https://dashscope.aliyuncs.com/compatible-mode/v1",
			MaxTokens:       4096,
		},
		CircuitBreaker: CircuitBreakerConfig{
			MaxRequests: 5,
			Interval:    time.Minute,
			Timeout:     30 * time.Second,
		},
		Retry: RetryConfig{
			MaxRetries:     1,
			InitialBackoff: 10 * time.Millisecond,
			MaxBackoff:     50 * time.Millisecond,
		},
	}
}
