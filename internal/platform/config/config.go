package config

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	platformStrings "beacon/pkg/platform/strings"
)

// Server captures HTTP server level configuration.
type Server struct {
	Addr           string        `yaml:"addr"`
	AllowedOrigins []string      `yaml:"allowed_origins"`
	ShutdownGrace  time.Duration `yaml:"shutdown_grace"`
}

// Log selects handler format and level.
type Log struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // "json" or "text"
}

// RedisConfig configures the presence store. An empty URL keeps presence in memory.
type RedisConfig struct {
	URL          string        `yaml:"url"`
	PoolSize     int           `yaml:"pool_size"`
	MinIdleConns int           `yaml:"min_idle_conns"`
	DialTimeout  time.Duration `yaml:"dial_timeout"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	PresenceTTL  time.Duration `yaml:"presence_ttl"`
}

// PostgresConfig configures the record store. An empty URL keeps records in memory.
type PostgresConfig struct {
	URL          string `yaml:"url"`
	MaxOpenConns int    `yaml:"max_open_conns"`
	MaxIdleConns int    `yaml:"max_idle_conns"`
}

// KafkaConfig configures the change feed. No brokers disables it.
type KafkaConfig struct {
	Brokers           []string `yaml:"brokers"`
	ChangesTopic      string   `yaml:"changes_topic"`
	Group             string   `yaml:"group"`
	Partitions        int32    `yaml:"partitions"`
	ReplicationFactor int16    `yaml:"replication_factor"`
}

// Notify tunes the engine.
type Notify struct {
	BroadcastConcurrency int    `yaml:"broadcast_concurrency"`
	PresencePrefix       string `yaml:"presence_prefix"`
	MetadataKey          string `yaml:"metadata_key"`
	SchemaFile           string `yaml:"schema_file"`
}

// Config is the full service configuration.
type Config struct {
	Server   Server         `yaml:"server"`
	Log      Log            `yaml:"log"`
	Redis    RedisConfig    `yaml:"redis"`
	Postgres PostgresConfig `yaml:"postgres"`
	Kafka    KafkaConfig    `yaml:"kafka"`
	Notify   Notify         `yaml:"notify"`
}

// Default returns the development configuration: every optional backend off.
func Default() Config {
	return Config{
		Server: Server{
			Addr:          ":8080",
			ShutdownGrace: 10 * time.Second,
		},
		Log: Log{Level: "info", Format: "json"},
		Redis: RedisConfig{
			PoolSize:     10,
			MinIdleConns: 2,
			DialTimeout:  5 * time.Second,
			ReadTimeout:  3 * time.Second,
			WriteTimeout: 3 * time.Second,
		},
		Postgres: PostgresConfig{MaxOpenConns: 10, MaxIdleConns: 5},
		Kafka: KafkaConfig{
			ChangesTopic:      "beacon.changes",
			Group:             "beacon",
			Partitions:        1,
			ReplicationFactor: 1,
		},
		Notify: Notify{
			BroadcastConcurrency: 8,
			PresencePrefix:       "unread-count",
		},
	}
}

// Load decodes a YAML document over the defaults.
func Load(r io.Reader) (Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && err != io.EOF {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	return cfg, nil
}

// LoadFile reads a YAML config file.
func LoadFile(path string) (Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return Config{}, fmt.Errorf("open config: %w", err)
	}
	defer f.Close()
	return Load(f)
}

// FromEnv builds a Config from defaults and environment variables so main
// stays lean.
func FromEnv() (Config, error) {
	cfg := Default()
	return cfg, applyEnv(&cfg, os.LookupEnv)
}

// FromEnvWithFile loads path (when set) and lets the environment override it.
func FromEnvWithFile(path string) (Config, error) {
	if path == "" {
		return FromEnv()
	}
	cfg, err := LoadFile(path)
	if err != nil {
		return Config{}, err
	}
	return cfg, applyEnv(&cfg, os.LookupEnv)
}

type lookupFunc func(string) (string, bool)

func applyEnv(cfg *Config, lookup lookupFunc) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			*dst = strings.TrimSpace(v)
		}
	}
	list := func(key string, dst *[]string) {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			*dst = splitList(v)
		}
	}

	str("BEACON_ADDR", &cfg.Server.Addr)
	list("BEACON_ALLOWED_ORIGINS", &cfg.Server.AllowedOrigins)
	str("BEACON_LOG_LEVEL", &cfg.Log.Level)
	str("BEACON_LOG_FORMAT", &cfg.Log.Format)
	str("REDIS_URL", &cfg.Redis.URL)
	str("DATABASE_URL", &cfg.Postgres.URL)
	list("KAFKA_BROKERS", &cfg.Kafka.Brokers)
	str("KAFKA_CHANGES_TOPIC", &cfg.Kafka.ChangesTopic)
	str("KAFKA_GROUP", &cfg.Kafka.Group)
	str("BEACON_SCHEMA_FILE", &cfg.Notify.SchemaFile)
	str("BEACON_METADATA_KEY", &cfg.Notify.MetadataKey)
	str("BEACON_PRESENCE_PREFIX", &cfg.Notify.PresencePrefix)

	if v, ok := lookup("BEACON_BROADCAST_CONCURRENCY"); ok && strings.TrimSpace(v) != "" {
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil || n <= 0 {
			return fmt.Errorf("BEACON_BROADCAST_CONCURRENCY must be a positive integer, got %q", v)
		}
		cfg.Notify.BroadcastConcurrency = n
	}
	if v, ok := lookup("BEACON_PRESENCE_TTL"); ok && strings.TrimSpace(v) != "" {
		d, err := time.ParseDuration(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("BEACON_PRESENCE_TTL: %w", err)
		}
		cfg.Redis.PresenceTTL = d
	}
	return nil
}

func splitList(v string) []string {
	return platformStrings.SplitList(v, ",")
}

// KafkaEnabled reports whether the change feed should run.
func (c Config) KafkaEnabled() bool {
	return len(c.Kafka.Brokers) > 0
}
