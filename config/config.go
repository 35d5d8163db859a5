package config

import (
	"fmt"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"
)

type Config struct {
	AppName                       string   `env:"APP_NAME" env-default:"orbitcheck-api"`
	Version                       string   `env:"APP_VERSION" env-default:"dev"`
	Port                          int      `env:"PORT" env-default:"8080"`
	LogLevel                      string   `env:"LOG_LEVEL" env-default:"info"`
	PrettyLogs                    bool     `env:"PRETTY_LOGS" env-default:"false"`
	HttpServerWriteTimeoutSeconds int      `env:"HTTP_SERVER_WRITE_TIMEOUT_SECONDS" env-default:"30"`
	HttpServerReadTimeoutSeconds  int      `env:"HTTP_SERVER_READ_TIMEOUT_SECONDS" env-default:"10"`
	HttpServerIdleTimeoutSeconds  int      `env:"HTTP_SERVER_IDLE_TIMEOUT_SECONDS" env-default:"60"`
	MaxHeaderBytes                int      `env:"HTTP_SERVER_MAX_HEADER_BYTES" env-default:"64000"` // 64KB
	ReadHeaderTimeoutSeconds      int      `env:"HTTP_SERVER_READ_HEADER_TIMEOUT_SECONDS" env-default:"10"`
	AllowOrigins                  []string `env:"HTTP_SERVER_ALLOW_ORIGINS" env-default:"*"`
	AllowMethods                  []string `env:"HTTP_SERVER_ALLOW_METHODS" env-default:"GET,POST,PUT,DELETE"`
	StartupMaxAttempts            int      `env:"STARTUP_MAX_ATTEMPTS" env-default:"5"`

	// PostgreSQL
	DatabaseDriver                string        `env:"DB_DRIVER" env-default:"postgres"`
	DatabaseHost                  string        `env:"DB_HOST" env-default:"localhost"`
	DatabasePort                  string        `env:"DB_PORT" env-default:"5432"`
	DatabaseUserName              string        `env:"DB_USER_NAME" env-default:"postgres"`
	DatabasePassword              string        `env:"DB_PASSWORD" env-default:""`
	DatabaseName                  string        `env:"DB_NAME" env-default:"orbitcheck"`
	DatabaseSSLMode               string        `env:"DB_SSL_MODE" env-default:"disable"`
	DatabaseMaxOpenConns          int           `env:"DB_MAX_OPEN_CONNS" env-default:"25"`
	DatabaseMaxIdleConns          int           `env:"DB_MAX_IDLE_CONNS" env-default:"10"`
	DatabaseConnMaxLifetime       time.Duration `env:"DB_CONN_MAX_LIFETIME" env-default:"5m"`
	DatabaseMigrationFolderPath   string        `env:"DB_MIGRATION_FOLDER_PATH" env-default:"db/pg"`
	DatabaseMigrationVersion      int           `env:"DB_MIGRATION_VERSION" env-default:"0"`
	DatabaseMigrationForce        int           `env:"DB_MIGRATION_FORCE" env-default:"0"`
	DatabaseMigrationAutoRollback bool          `env:"DB_MIGRATION_AUTO_ROLLBACK" env-default:"true"`

	// Redis
	RedisHost     string `env:"REDIS_HOST" env-default:"localhost"`
	RedisPort     int    `env:"REDIS_PORT" env-default:"6379"`
	RedisPassword string `env:"REDIS_PASSWORD" env-default:""`
	RedisDB       int    `env:"REDIS_DB" env-default:"0"`

	// Kafka audit stream
	KafkaEnabled      bool     `env:"KAFKA_ENABLED" env-default:"false"`
	KafkaBrokers      []string `env:"KAFKA_BROKERS" env-default:"localhost:9092"`
	KafkaAuditTopic   string   `env:"KAFKA_AUDIT_TOPIC" env-default:"orbitcheck.audit"`
	KafkaBatchSize    int      `env:"KAFKA_BATCH_SIZE" env-default:"100"`
	KafkaBatchTimeout int      `env:"KAFKA_BATCH_TIMEOUT_MS" env-default:"100"`
	KafkaRequiredAcks int      `env:"KAFKA_REQUIRED_ACKS" env-default:"1"`
	KafkaCompression  string   `env:"KAFKA_COMPRESSION" env-default:"snappy"`

	// Tracing
	TracingEnabled  bool          `env:"TRACING_ENABLED" env-default:"false"`
	OTLPEndpoint    string        `env:"OTLP_ENDPOINT" env-default:"localhost:4317"`
	OTLPProtocol    string        `env:"OTLP_PROTOCOL" env-default:"grpc"`
	OTLPInsecure    bool          `env:"OTLP_INSECURE" env-default:"true"`
	OTLPExportLimit time.Duration `env:"OTLP_TIMEOUT" env-default:"10s"`

	// Validators
	EmailMXTimeout     time.Duration `env:"EMAIL_MX_TIMEOUT" env-default:"1200ms"`
	EmailCacheTTL      time.Duration `env:"EMAIL_CACHE_TTL" env-default:"720h"`
	PhoneCacheTTL      time.Duration `env:"PHONE_CACHE_TTL" env-default:"720h"`
	AddressCacheTTL    time.Duration `env:"ADDRESS_CACHE_TTL" env-default:"168h"`
	TaxIDCacheTTL      time.Duration `env:"TAXID_CACHE_TTL" env-default:"24h"`
	DisposableDomains  []string      `env:"DISPOSABLE_DOMAINS" env-default:""`
	GeocoderURL        string        `env:"GEOCODER_URL" env-default:"https://nominatim.openstreetmap.org"`
	GeocoderUserAgent  string        `env:"GEOCODER_USER_AGENT" env-default:"orbitcheck/1.0"`
	GeocoderTimeout    time.Duration `env:"GEOCODER_TIMEOUT" env-default:"3s"`
	VIESURL            string        `env:"VIES_URL" env-default:"https://ec.europa.eu/taxation_customs/vies/rest-api"`
	VIESTimeout        time.Duration `env:"VIES_TIMEOUT" env-default:"5s"`
	OTPIssuer          string        `env:"OTP_ISSUER" env-default:"OrbitCheck"`
	OTPTTL             time.Duration `env:"OTP_TTL" env-default:"5m"`
	OTPWebhookURL      string        `env:"OTP_WEBHOOK_URL" env-default:""`
	TestModeTimeout    time.Duration `env:"VALIDATION_TEST_MODE_TIMEOUT" env-default:"500ms"`
	DedupeExhaustive   bool          `env:"DEDUPE_EXHAUSTIVE" env-default:"false"`
	DedupeNameFloor    float64       `env:"DEDUPE_NAME_FLOOR" env-default:"0.85"`
	DedupeAddressFloor float64       `env:"DEDUPE_ADDRESS_FLOOR" env-default:"0.6"`
	DedupeMaxResults   int           `env:"DEDUPE_MAX_RESULTS" env-default:"5"`

	// Risk
	RiskBlockThreshold        int     `env:"RISK_BLOCK_THRESHOLD" env-default:"70"`
	RiskHoldThreshold         int     `env:"RISK_HOLD_THRESHOLD" env-default:"40"`
	HighValueAmount           float64 `env:"RISK_HIGH_VALUE_AMOUNT" env-default:"1000"`
	VeryHighValueAmount       float64 `env:"RISK_VERY_HIGH_VALUE_AMOUNT" env-default:"100000"`
	FirstOccurrenceCapTrigger int     `env:"RISK_FIRST_OCCURRENCE_CAP_TRIGGER" env-default:"100"`
	FirstOccurrenceCap        int     `env:"RISK_FIRST_OCCURRENCE_CAP" env-default:"60"`

	// Rules
	RuleTimeout       time.Duration `env:"RULE_TIMEOUT" env-default:"50ms"`
	RuleEngineTimeout time.Duration `env:"RULE_ENGINE_TIMEOUT" env-default:"10s"`
}

// Load reads an optional .env file and then the process environment.
func Load() (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	return &cfg, nil
}

func (c *Config) DatabaseDSN() string {
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.DatabaseHost, c.DatabasePort, c.DatabaseUserName, c.DatabasePassword, c.DatabaseName, c.DatabaseSSLMode)
}
