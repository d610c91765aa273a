package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"muniapi/pkg/domain"
	platformstrings "muniapi/pkg/platform/strings"
)

// Config is the root configuration assembled from the environment.
type Config struct {
	Server      Server
	Database    DatabaseConfig
	Redis       RedisConfig
	Kafka       KafkaConfig
	Scheduler   SchedulerConfig
	SourcesFile string
}

// Server captures HTTP server level configuration.
type Server struct {
	Addr           string
	LogLevel       string
	RequestTimeout time.Duration
	JWTSigningKey  string
	JWTIssuer      string
	JWTAudience    string
	// TestMode shortens scheduler intervals so integration suites converge fast.
	TestMode bool
}

// DatabaseConfig configures the durable identifier store. An empty URL selects
// the in-memory store.
type DatabaseConfig struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// RedisConfig configures the shared fingerprint cache. An empty URL selects
// the in-process cache.
type RedisConfig struct {
	URL          string
	KeyPrefix    string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// KafkaConfig configures the update-request bus. No brokers selects the
// in-process channel bus.
type KafkaConfig struct {
	Brokers           []string
	TopicPrefix       string
	ConsumerGroup     string
	Partitions        int32
	ReplicationFactor int16
}

// SchedulerConfig holds update scheduler timing.
type SchedulerConfig struct {
	Interval     time.Duration
	TestInterval time.Duration
	// Overrides holds per-entity-type intervals (SCHEDULER_INTERVAL_<TYPE>).
	Overrides map[domain.EntityType]time.Duration
	InboxSize int
}

// IntervalFor returns the tick interval for an entity type, honoring test mode
// and per-type overrides.
func (c SchedulerConfig) IntervalFor(t domain.EntityType, testMode bool) time.Duration {
	if testMode && c.TestInterval > 0 {
		return c.TestInterval
	}
	if d, ok := c.Overrides[t]; ok && d > 0 {
		return d
	}
	return c.Interval
}

// FromEnv builds a Config from environment variables so main stays lean.
func FromEnv() Config {
	jwtSigningKey := os.Getenv("JWT_SIGNING_KEY")
	if jwtSigningKey == "" {
		// Use a default for development - should be overridden in production
		jwtSigningKey = "dev-secret-key-change-in-production"
	}

	cfg := Config{
		Server: Server{
			Addr:           getEnv("MUNIAPI_ADDR", ":8080"),
			LogLevel:       getEnv("LOG_LEVEL", "info"),
			RequestTimeout: getDuration("REQUEST_TIMEOUT", 30*time.Second),
			JWTSigningKey:  jwtSigningKey,
			JWTIssuer:      getEnv("JWT_ISSUER", "muniapi"),
			JWTAudience:    getEnv("JWT_AUDIENCE", "muniapi-admin"),
			TestMode:       os.Getenv("TEST_MODE") == "true",
		},
		Database: DatabaseConfig{
			URL:             os.Getenv("DATABASE_URL"),
			MaxOpenConns:    getInt("DATABASE_MAX_OPEN_CONNS", 10),
			MaxIdleConns:    getInt("DATABASE_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: getDuration("DATABASE_CONN_MAX_LIFETIME", 30*time.Minute),
		},
		Redis: RedisConfig{
			URL:          os.Getenv("REDIS_URL"),
			KeyPrefix:    getEnv("REDIS_KEY_PREFIX", "muniapi:fp:"),
			PoolSize:     getInt("REDIS_POOL_SIZE", 10),
			MinIdleConns: getInt("REDIS_MIN_IDLE_CONNS", 2),
			DialTimeout:  getDuration("REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  getDuration("REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: getDuration("REDIS_WRITE_TIMEOUT", 3*time.Second),
		},
		Kafka: KafkaConfig{
			Brokers:           platformstrings.SplitCSV(os.Getenv("KAFKA_BROKERS")),
			TopicPrefix:       getEnv("KAFKA_TOPIC_PREFIX", "muniapi"),
			ConsumerGroup:     getEnv("KAFKA_CONSUMER_GROUP", "muniapi-updaters"),
			Partitions:        int32(getInt("KAFKA_TOPIC_PARTITIONS", 3)),
			ReplicationFactor: int16(getInt("KAFKA_TOPIC_REPLICATION", 1)),
		},
		Scheduler: SchedulerConfig{
			Interval:     getDuration("SCHEDULER_INTERVAL", time.Second),
			TestInterval: getDuration("SCHEDULER_TEST_INTERVAL", 100*time.Millisecond),
			Overrides:    make(map[domain.EntityType]time.Duration),
			InboxSize:    getInt("SCHEDULER_INBOX_SIZE", 256),
		},
		SourcesFile: os.Getenv("SOURCES_FILE"),
	}

	for _, t := range domain.EntityTypes() {
		key := "SCHEDULER_INTERVAL_" + strings.ToUpper(string(t))
		if d := getDuration(key, 0); d > 0 {
			cfg.Scheduler.Overrides[t] = d
		}
	}

	return cfg
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func getDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}
