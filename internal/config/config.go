package config

import (
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/kelseyhightower/envconfig"
)

const ServiceVersion = "0.1.0"

const (
	LogsPath      = "/otlp/v1/logs"
	TracesPath    = "/otlp/v1/traces"
	MetricsPath   = "/otlp/v1/metrics"
	ExportTimeout = 30 * time.Second
	MaxQueueSize  = 2048
)

type Config struct {
	ServiceName string `envconfig:"SERVICE_NAME" default:"stock-ingest"`

	ScyllaHosts             []string      `envconfig:"SCYLLA_HOSTS" default:"scylla"`
	ScyllaKeyspace          string        `envconfig:"SCYLLA_KEYSPACE" default:"inventory"`
	ScyllaDatacenter        string        `envconfig:"SCYLLA_DATACENTER" default:"datacenter1"`
	ScyllaReplicationFactor int           `envconfig:"SCYLLA_REPLICATION_FACTOR" default:"1"`
	ScyllaConsistency       string        `envconfig:"SCYLLA_CONSISTENCY" default:"ONE"`
	ScyllaTimeout           time.Duration `envconfig:"SCYLLA_TIMEOUT" default:"10s"`
	ScyllaUsername          string        `envconfig:"SCYLLA_USERNAME"`
	ScyllaPassword          string        `envconfig:"SCYLLA_PASSWORD"`

	RelationalDriver string `envconfig:"RELATIONAL_DRIVER" default:"postgres"`
	PostgresHost     string `envconfig:"POSTGRES_HOST" default:"postgres"`
	PostgresPort     int    `envconfig:"POSTGRES_PORT" default:"5432"`
	PostgresDB       string `envconfig:"POSTGRES_DB" default:"inventory_db"`
	PostgresUser     string `envconfig:"POSTGRES_USER" default:"inventory"`
	PostgresPassword string `envconfig:"POSTGRES_PASSWORD" default:"inventory123"`
	MySQLDSN         string `envconfig:"MYSQL_DSN" default:"root:root@tcp(localhost:3306)/inventory_db?parseTime=true"`

	BatchSize   int           `envconfig:"BATCH_SIZE" default:"100"`
	RecordDelay time.Duration `envconfig:"RECORD_DELAY" default:"0s"`

	KafkaBroker       string        `envconfig:"KAFKA_BROKER" default:"redpanda-0:9092"`
	KafkaTopic        string        `envconfig:"KAFKA_TOPIC" default:"inventory_topic"`
	KafkaBatchTimeout time.Duration `envconfig:"KAFKA_BATCH_TIMEOUT" default:"10ms"`
	PublishTimeout    time.Duration `envconfig:"PUBLISH_TIMEOUT" default:"10s"`

	RedisAddr      string        `envconfig:"REDIS_ADDR" default:"localhost:6379"`
	StockCacheTTL  time.Duration `envconfig:"STOCK_CACHE_TTL" default:"30s"`
	IdempotencyTTL time.Duration `envconfig:"IDEMPOTENCY_TTL" default:"24h"`

	DefaultStoreID  string `envconfig:"DEFAULT_STORE_ID" default:"Store-001"`
	HTTPAddr        string `envconfig:"HTTP_ADDR" default:":8080"`
	GRPCAddr        string `envconfig:"GRPC_ADDR" default:":50051"`
	IngestWorkers   int    `envconfig:"INGEST_WORKERS" default:"2"`
	IngestQueueSize int    `envconfig:"INGEST_QUEUE_SIZE" default:"16"`

	// The built-in generator is off while SnapshotCount is zero.
	SnapshotCount    int           `envconfig:"SNAPSHOT_COUNT" default:"0"`
	SnapshotInterval time.Duration `envconfig:"SNAPSHOT_INTERVAL" default:"60s"`
	SnapshotLines    int           `envconfig:"SNAPSHOT_LINES" default:"50"`

	// Export is disabled while OtelEndpoint is empty.
	OtelEndpoint   string `envconfig:"OTEL_ENDPOINT"`
	OtelAuthHeader string `envconfig:"OTEL_AUTH_HEADER"`
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	if c.BatchSize <= 0 {
		return fmt.Errorf("BATCH_SIZE must be positive, got %d", c.BatchSize)
	}
	if c.IngestWorkers <= 0 {
		return fmt.Errorf("INGEST_WORKERS must be positive, got %d", c.IngestWorkers)
	}
	if c.IngestQueueSize < 0 {
		return fmt.Errorf("INGEST_QUEUE_SIZE must not be negative, got %d", c.IngestQueueSize)
	}
	if c.SnapshotCount < 0 {
		return fmt.Errorf("SNAPSHOT_COUNT must not be negative, got %d", c.SnapshotCount)
	}
	if c.SnapshotCount > 0 && (c.SnapshotInterval <= 0 || c.SnapshotLines <= 0) {
		return fmt.Errorf("SNAPSHOT_INTERVAL and SNAPSHOT_LINES must be positive when SNAPSHOT_COUNT is set")
	}
	if len(c.ScyllaHosts) == 0 {
		return fmt.Errorf("SCYLLA_HOSTS is required")
	}
	switch c.RelationalDriver {
	case "postgres", "mysql":
	default:
		return fmt.Errorf("unsupported RELATIONAL_DRIVER %q", c.RelationalDriver)
	}
	return nil
}

func (c *Config) OtelEnabled() bool {
	return c.OtelEndpoint != ""
}

// RelationalDSN is the connection string for the configured driver.
func (c *Config) RelationalDSN() string {
	if c.RelationalDriver == "mysql" {
		return c.MySQLDSN
	}

	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.PostgresUser, c.PostgresPassword),
		Host:     c.PostgresHost + ":" + strconv.Itoa(c.PostgresPort),
		Path:     "/" + c.PostgresDB,
		RawQuery: "sslmode=disable",
	}
	return u.String()
}
