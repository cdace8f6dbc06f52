package config

import (
	"log"
	"strings"

	"github.com/caarlos0/env/v6"
	"github.com/sirupsen/logrus"
)

var Config = struct {
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`
	Port        int    `env:"PORT" envDefault:"8080"`
	MetricsPort int    `env:"METRICS_PORT" envDefault:"9103"`

	// Track/report storage: memory or postgres
	Storage string `env:"STORAGE" envDefault:"memory"`

	// PostgreSQL related settings
	PostgresURI               string `env:"POSTGRES_URI"`
	PostgresMaxConns          int32  `env:"POSTGRES_MAX_CONNS" envDefault:"25"`
	PostgresMinConns          int32  `env:"POSTGRES_MIN_CONNS" envDefault:"0"`
	PostgresMaxConnLifetime   string `env:"POSTGRES_MAX_CONN_LIFETIME" envDefault:"1h"`
	PostgresMaxConnIdleTime   string `env:"POSTGRES_MAX_CONN_IDLE_TIME" envDefault:"30m"`
	PostgresHealthCheckPeriod string `env:"POSTGRES_HEALTH_CHECK_PERIOD" envDefault:"1m"`

	// Redis URI for the live-stream presence registry; in-memory registry when empty
	RedisURI string `env:"REDIS_URI"`

	// Stream bridge settings
	DefaultBrokerHost    string `env:"DEFAULT_BROKER_HOST" envDefault:"broker.k9trail.io"`
	SseKeepaliveInterval int    `env:"SSE_KEEPALIVE_INTERVAL" envDefault:"25"`
	MqttConnectTimeout   int    `env:"MQTT_CONNECT_TIMEOUT" envDefault:"30"`
	PresenceTTL          int    `env:"PRESENCE_TTL" envDefault:"120"`

	// Snapshot (object storage) settings
	SnapshotDir     string `env:"SNAPSHOT_DIR" envDefault:"./snapshots"`
	SnapshotBaseURL string `env:"SNAPSHOT_BASE_URL" envDefault:"/snapshots"`

	// Other settings
	CorsEnable         bool     `env:"CORS_ENABLE"`
	RPSLimit           int      `env:"RPS_LIMIT" envDefault:"5"`
	ConnectionsLimit   int      `env:"CONNECTIONS_LIMIT" envDefault:"50"`
	AuthTokens         []string `env:"AUTH_TOKENS"`
	TrustedProxyRanges []string `env:"TRUSTED_PROXY_RANGES" envDefault:"0.0.0.0/0"`
	MaxBodySize        int64    `env:"MAX_BODY_SIZE" envDefault:"10485760"` // 10 MB
	SelfSignedTLS      bool     `env:"SELF_SIGNED_TLS" envDefault:"false"`
	PprofEnabled       bool     `env:"PPROF_ENABLED" envDefault:"true"`
}{}

func LoadConfig() {
	if err := env.Parse(&Config); err != nil {
		log.Fatalf("config parsing failed: %v\n", err)
	}

	level, err := logrus.ParseLevel(strings.ToLower(Config.LogLevel))
	if err != nil {
		log.Printf("Invalid LOG_LEVEL '%s', using default 'info'. Valid levels: panic, fatal, error, warn, info, debug, trace", Config.LogLevel)
		level = logrus.InfoLevel
	}
	logrus.SetLevel(level)
}
