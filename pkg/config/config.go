package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	App          AppConfig
	Service      ServiceConfig
	DB           DBConfig
	Redis        RedisConfig
	FeatureFlags FeatureFlagsConfig
	GCP          GCPConfig
	GCS          GCSConfig
	PubSub       PubSubConfig
	BigQuery     BigQueryConfig
	Outbox       OutboxConfig
	Settlement   SettlementConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(cfg.FeatureFlags.UseSQLite); err != nil {
		return nil, err
	}
	if err := cfg.Settlement.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"INCENTIVES_APP_ENV" required:"true"`
	Port         string `envconfig:"INCENTIVES_APP_PORT" default:"8080"`
	LogLevel     string `envconfig:"INCENTIVES_LOG_LEVEL" default:"info"`
	LogFormat    string `envconfig:"INCENTIVES_LOG_FORMAT" default:"json"`
	LogWarnStack bool   `envconfig:"INCENTIVES_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"INCENTIVES_SERVICE_KIND" default:"settlement-worker"`
}

type DBConfig struct {
	DSN    string `envconfig:"INCENTIVES_DB_DSN"`
	Driver string `envconfig:"INCENTIVES_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"INCENTIVES_DB_HOST"`
	LegacyPort     int    `envconfig:"INCENTIVES_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"INCENTIVES_DB_USER"`
	LegacyPassword string `envconfig:"INCENTIVES_DB_PASSWORD"`
	LegacyName     string `envconfig:"INCENTIVES_DB_NAME"`
	LegacySSLMode  string `envconfig:"INCENTIVES_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"INCENTIVES_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"INCENTIVES_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"INCENTIVES_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"INCENTIVES_DB_CONN_MAX_IDLE_TIME" default:"10m"`

	SlowQueryThreshold time.Duration `envconfig:"INCENTIVES_DB_SLOW_QUERY_THRESHOLD" default:"500ms"`
}

type RedisConfig struct {
	URL          string        `envconfig:"INCENTIVES_REDIS_URL" required:"true"`
	Address      string        `envconfig:"INCENTIVES_REDIS_ADDR"`
	Password     string        `envconfig:"INCENTIVES_REDIS_PASSWORD"`
	DB           int           `envconfig:"INCENTIVES_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"INCENTIVES_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"INCENTIVES_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"INCENTIVES_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"INCENTIVES_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"INCENTIVES_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type FeatureFlagsConfig struct {
	UseSQLite     bool `envconfig:"INCENTIVES_USE_SQLITE" default:"false"`
	AutoMigrate   bool `envconfig:"INCENTIVES_AUTO_MIGRATE" default:"false"`
	UploadReports bool `envconfig:"INCENTIVES_UPLOAD_REPORTS" default:"true"`
}

type GCPConfig struct {
	ProjectID              string `envconfig:"INCENTIVES_GCP_PROJECT_ID" required:"true"`
	CredentialsJSON        string `envconfig:"INCENTIVES_GCP_CREDENTIALS_JSON"`
	ApplicationCredentials string `envconfig:"INCENTIVES_GOOGLE_APPLICATION_CREDENTIALS"`
}

type GCSConfig struct {
	BucketName   string `envconfig:"INCENTIVES_GCS_BUCKET_NAME" required:"true"`
	ReportPrefix string `envconfig:"INCENTIVES_GCS_REPORT_PREFIX" default:"settlements"`
	ExportPrefix string `envconfig:"INCENTIVES_GCS_EXPORT_PREFIX" default:"user-exports"`
}

type PubSubConfig struct {
	SettlementTopic string `envconfig:"INCENTIVES_PUBSUB_SETTLEMENT_TOPIC" required:"true"`
	AuditTopic      string `envconfig:"INCENTIVES_PUBSUB_AUDIT_TOPIC" required:"true"`
}

type BigQueryConfig struct {
	Dataset        string `envconfig:"INCENTIVES_BIGQUERY_DATASET" default:"incentives"`
	UserPointsView string `envconfig:"INCENTIVES_BIGQUERY_USER_POINTS_TABLE" default:"user_points_monthly"`
	Location       string `envconfig:"INCENTIVES_BIGQUERY_LOCATION" default:"US"`
	// MaxBytesBilled caps each query; zero leaves the project default.
	MaxBytesBilled int64 `envconfig:"INCENTIVES_BIGQUERY_MAX_BYTES_BILLED" default:"0"`
}

type OutboxConfig struct {
	BatchSize      int `envconfig:"INCENTIVES_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int `envconfig:"INCENTIVES_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int `envconfig:"INCENTIVES_OUTBOX_MAX_ATTEMPTS" default:"10"`

	PublishedRetention time.Duration `envconfig:"INCENTIVES_OUTBOX_PUBLISHED_RETENTION" default:"720h"`
	DLQRetention       time.Duration `envconfig:"INCENTIVES_OUTBOX_DLQ_RETENTION" default:"2160h"`
}

type SettlementConfig struct {
	CronInterval   time.Duration `envconfig:"INCENTIVES_SETTLEMENT_CRON_INTERVAL" default:"1h"`
	LockTTL        time.Duration `envconfig:"INCENTIVES_SETTLEMENT_LOCK_TTL" default:"2h"`
	JobTimeout     time.Duration `envconfig:"INCENTIVES_SETTLEMENT_JOB_TIMEOUT" default:"90m"`
	StallThreshold time.Duration `envconfig:"INCENTIVES_SETTLEMENT_STALL_THRESHOLD" default:"6h"`
	// SettleOnDay is the day of month from which the previous month becomes eligible.
	SettleOnDay int `envconfig:"INCENTIVES_SETTLEMENT_DAY" default:"1"`
	// Methods are the distribution methods the monthly job triggers for each supplier.
	Methods []string `envconfig:"INCENTIVES_SETTLEMENT_METHODS" default:"APPLYALL"`
}

func (s SettlementConfig) validate() error {
	if s.SettleOnDay < 1 || s.SettleOnDay > 28 {
		return fmt.Errorf("%s must be between 1 and 28, got %d", EnvSettleOnDay, s.SettleOnDay)
	}
	if s.JobTimeout > 0 && s.JobTimeout >= s.LockTTL {
		return fmt.Errorf("%s (%s) must be shorter than %s (%s)", EnvJobTimeout, s.JobTimeout, EnvLockTTL, s.LockTTL)
	}
	return nil
}

func (db *DBConfig) ensureDSN(sqlite bool) error {
	if db.DSN != "" {
		return nil
	}
	if sqlite {
		db.DSN = "file:incentives.db?cache=shared"
		return nil
	}

	missing := []string{}
	legacyValues := map[string]string{
		EnvDBHost: db.LegacyHost,
		EnvDBUser: db.LegacyUser,
		EnvDBName: db.LegacyName,
	}
	for _, env := range legacyDBEnvVars {
		if legacyValues[env] == "" {
			missing = append(missing, env)
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("either %s or %s are required", EnvDBDSN, strings.Join(missing, ", "))
	}

	userInfo := url.User(db.LegacyUser)
	if db.LegacyPassword != "" {
		userInfo = url.UserPassword(db.LegacyUser, db.LegacyPassword)
	}

	u := &url.URL{
		Scheme: "postgres",
		User:   userInfo,
		Host:   fmt.Sprintf("%s:%d", db.LegacyHost, db.LegacyPort),
		Path:   db.LegacyName,
	}

	if db.LegacySSLMode != "" {
		q := u.Query()
		q.Set("sslmode", db.LegacySSLMode)
		u.RawQuery = q.Encode()
	}

	db.DSN = u.String()
	return nil
}
