package config

const (
	EnvPrefix = "ORDERFLOW"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	EnvAppEnv             = "ORDERFLOW_APP_ENV"
	EnvDBDSN              = "ORDERFLOW_DB_DSN"
	EnvDBHost             = "ORDERFLOW_DB_HOST"
	EnvDBUser             = "ORDERFLOW_DB_USER"
	EnvDBName             = "ORDERFLOW_DB_NAME"
	EnvDBPassword         = "ORDERFLOW_DB_PASSWORD"
	EnvRedisURL           = "ORDERFLOW_REDIS_URL"
	EnvUseSQLite          = "ORDERFLOW_USE_SQLITE"
	EnvExpeditedExchanges = "ORDERFLOW_EXPEDITED_EXCHANGES"
	EnvReturnWindow       = "ORDERFLOW_RETURN_WINDOW"
	EnvLockTTL            = "ORDERFLOW_LOCK_TTL"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
