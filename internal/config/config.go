package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/joho/godotenv"
)

// Config holds the full service configuration, loaded once at startup.
type Config struct {
	Environment string

	Server        ServerConfig
	Redis         RedisConfig
	Scylla        ScyllaConfig
	Kafka         KafkaConfig
	ClickHouse    ClickHouseConfig
	Elasticsearch ElasticsearchConfig
	KMS           KMSConfig
	OTP           OTPConfig
	Lockout       LockoutConfig
	JWT           JWTConfig
	Federation    FederationConfig
	Logging       LoggingConfig
}

type ServerConfig struct {
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
	EnableTLS    bool
	CertFile     string
	KeyFile      string
}

type RedisConfig struct {
	URL      string
	Password string
	DB       int
	PoolSize int
}

type ScyllaConfig struct {
	Hosts       []string
	Keyspace    string
	Consistency string
	Timeout     time.Duration
	Enabled     bool
}

type KafkaConfig struct {
	Brokers            []string
	SecurityEventTopic string
	NotificationTopic  string
	Enabled            bool
}

type ClickHouseConfig struct {
	Addr     []string
	Database string
	Username string
	Password string
	Enabled  bool
}

type ElasticsearchConfig struct {
	Addresses []string
	Username  string
	Password  string
	Index     string
	Enabled   bool
}

type KMSConfig struct {
	Enabled bool
	KeyID   string
	Region  string
}

// OTPConfig controls code issuance and verification-session lifetime.
type OTPConfig struct {
	Digits         int
	TTL            time.Duration
	MaxAttempts    int
	ResendCooldown time.Duration
}

// LockoutConfig controls the per-identity login lockout window.
type LockoutConfig struct {
	Threshold int
	Window    time.Duration
	Duration  time.Duration
}

type JWTConfig struct {
	PrivateKeyPath string
	Issuer         string
	AccessTTL      time.Duration
	RefreshTTL     time.Duration
}

type FederationConfig struct {
	TokenURL     string
	ProfileURL   string
	ClientID     string
	ClientSecret string
	RedirectURL  string
}

type LoggingConfig struct {
	Level  string
	Format string
}

var (
	globalConfig *Config
	loadOnce     sync.Once
)

// LoadConfig reads .env (if present) and the process environment into a
// Config with hardened defaults. Safe to call more than once.
func LoadConfig() *Config {
	loadOnce.Do(func() {
		// .env is optional; real deployments use the process environment.
		_ = godotenv.Load()

		globalConfig = &Config{
			Environment: getEnv("ENVIRONMENT", "development"),
			Server: ServerConfig{
				Port:         getEnvInt("SERVER_PORT", 8080),
				ReadTimeout:  getEnvDuration("SERVER_READ_TIMEOUT", 15*time.Second),
				WriteTimeout: getEnvDuration("SERVER_WRITE_TIMEOUT", 15*time.Second),
				IdleTimeout:  getEnvDuration("SERVER_IDLE_TIMEOUT", 60*time.Second),
				EnableTLS:    getEnvBool("SERVER_ENABLE_TLS", false),
				CertFile:     getEnv("SERVER_CERT_FILE", ""),
				KeyFile:      getEnv("SERVER_KEY_FILE", ""),
			},
			Redis: RedisConfig{
				URL:      getEnv("REDIS_URL", "redis://localhost:6379"),
				Password: getEnv("REDIS_PASSWORD", ""),
				DB:       getEnvInt("REDIS_DB", 0),
				PoolSize: getEnvInt("REDIS_POOL_SIZE", 50),
			},
			Scylla: ScyllaConfig{
				Hosts:       getEnvList("SCYLLA_HOSTS", "localhost:9042"),
				Keyspace:    getEnv("SCYLLA_KEYSPACE", "stepup_auth"),
				Consistency: getEnv("SCYLLA_CONSISTENCY", "quorum"),
				Timeout:     getEnvDuration("SCYLLA_TIMEOUT", 5*time.Second),
				Enabled:     getEnvBool("SCYLLA_ENABLED", false),
			},
			Kafka: KafkaConfig{
				Brokers:            getEnvList("KAFKA_BROKERS", "localhost:9092"),
				SecurityEventTopic: getEnv("KAFKA_SECURITY_EVENT_TOPIC", "auth.security-events"),
				NotificationTopic:  getEnv("KAFKA_NOTIFICATION_TOPIC", "auth.notifications"),
				Enabled:            getEnvBool("KAFKA_ENABLED", false),
			},
			ClickHouse: ClickHouseConfig{
				Addr:     getEnvList("CLICKHOUSE_ADDR", "localhost:9000"),
				Database: getEnv("CLICKHOUSE_DATABASE", "auth_analytics"),
				Username: getEnv("CLICKHOUSE_USERNAME", "default"),
				Password: getEnv("CLICKHOUSE_PASSWORD", ""),
				Enabled:  getEnvBool("CLICKHOUSE_ENABLED", false),
			},
			Elasticsearch: ElasticsearchConfig{
				Addresses: getEnvList("ELASTICSEARCH_ADDRESSES", "http://localhost:9200"),
				Username:  getEnv("ELASTICSEARCH_USERNAME", ""),
				Password:  getEnv("ELASTICSEARCH_PASSWORD", ""),
				Index:     getEnv("ELASTICSEARCH_INDEX", "auth-security-events"),
				Enabled:   getEnvBool("ELASTICSEARCH_ENABLED", false),
			},
			KMS: KMSConfig{
				Enabled: getEnvBool("KMS_ENABLED", false),
				KeyID:   getEnv("KMS_KEY_ID", ""),
				Region:  getEnv("KMS_REGION", "ap-south-1"),
			},
			OTP: OTPConfig{
				Digits:         getEnvInt("OTP_DIGITS", 6),
				TTL:            getEnvDuration("OTP_TTL", 10*time.Minute),
				MaxAttempts:    getEnvInt("OTP_MAX_ATTEMPTS", 5),
				ResendCooldown: getEnvDuration("OTP_RESEND_COOLDOWN", 60*time.Second),
			},
			Lockout: LockoutConfig{
				Threshold: getEnvInt("LOCKOUT_THRESHOLD", 5),
				Window:    getEnvDuration("LOCKOUT_WINDOW", 15*time.Minute),
				Duration:  getEnvDuration("LOCKOUT_DURATION", 15*time.Minute),
			},
			JWT: JWTConfig{
				PrivateKeyPath: getEnv("JWT_PRIVATE_KEY_PATH", ""),
				Issuer:         getEnv("JWT_ISSUER", "stepup-auth"),
				AccessTTL:      getEnvDuration("JWT_ACCESS_TTL", 15*time.Minute),
				RefreshTTL:     getEnvDuration("JWT_REFRESH_TTL", 720*time.Hour),
			},
			Federation: FederationConfig{
				TokenURL:     getEnv("FEDERATION_TOKEN_URL", ""),
				ProfileURL:   getEnv("FEDERATION_PROFILE_URL", ""),
				ClientID:     getEnv("FEDERATION_CLIENT_ID", ""),
				ClientSecret: getEnv("FEDERATION_CLIENT_SECRET", ""),
				RedirectURL:  getEnv("FEDERATION_REDIRECT_URL", ""),
			},
			Logging: LoggingConfig{
				Level:  getEnv("LOG_LEVEL", "info"),
				Format: getEnv("LOG_FORMAT", "json"),
			},
		}
	})

	return globalConfig
}

// Get returns the loaded configuration, loading defaults if needed.
func Get() *Config {
	if globalConfig == nil {
		return LoadConfig()
	}
	return globalConfig
}

func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

func (c *Config) IsDevelopment() bool {
	return !c.IsProduction()
}

func (c *Config) GetServerAddress() string {
	return fmt.Sprintf(":%d", c.Server.Port)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvList(key, defaultValue string) []string {
	raw := getEnv(key, defaultValue)
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
