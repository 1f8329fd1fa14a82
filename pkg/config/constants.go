package config

// EnvPrefix is handed to envconfig; every field carries its full env name so the prefix is informational.
const EnvPrefix = "INCENTIVES"

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"
)

const (
	EnvAppEnv   = "INCENTIVES_APP_ENV"
	EnvPort     = "INCENTIVES_APP_PORT"
	EnvLogLevel = "INCENTIVES_LOG_LEVEL"

	EnvDBDSN  = "INCENTIVES_DB_DSN"
	EnvDBHost = "INCENTIVES_DB_HOST"
	EnvDBUser = "INCENTIVES_DB_USER"
	EnvDBName = "INCENTIVES_DB_NAME"

	EnvRedisURL = "INCENTIVES_REDIS_URL"

	EnvGCPProjectID = "INCENTIVES_GCP_PROJECT_ID"
	EnvGCSBucket    = "INCENTIVES_GCS_BUCKET_NAME"

	EnvPubSubSettlementTopic = "INCENTIVES_PUBSUB_SETTLEMENT_TOPIC"
	EnvPubSubAuditTopic      = "INCENTIVES_PUBSUB_AUDIT_TOPIC"

	EnvUseSQLite      = "INCENTIVES_USE_SQLITE"
	EnvStallThreshold = "INCENTIVES_SETTLEMENT_STALL_THRESHOLD"
	EnvSettleOnDay    = "INCENTIVES_SETTLEMENT_DAY"
	EnvLockTTL        = "INCENTIVES_SETTLEMENT_LOCK_TTL"
	EnvJobTimeout     = "INCENTIVES_SETTLEMENT_JOB_TIMEOUT"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
