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
	DB           DBConfig
	Redis        RedisConfig
	Lock         LockConfig
	FeatureFlags FeatureFlagsConfig
	Returns      ReturnsConfig
	Shipping     ShippingConfig
	GCP          GCPConfig
	PubSub       PubSubConfig
	Outbox       OutboxConfig
	Cron         CronConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if cfg.FeatureFlags.UseSQLite {
		cfg.DB.Driver = "sqlite"
	}
	if err := cfg.DB.ensureDSN(cfg.FeatureFlags.UseSQLite); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"ORDERFLOW_APP_ENV" required:"true"`
	LogLevel     string `envconfig:"ORDERFLOW_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"ORDERFLOW_LOG_WARN_STACK" default:"false"`
	LogFormat    string `envconfig:"ORDERFLOW_LOG_FORMAT" default:"json"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type DBConfig struct {
	DSN    string `envconfig:"ORDERFLOW_DB_DSN"`
	Driver string `envconfig:"ORDERFLOW_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"ORDERFLOW_DB_HOST"`
	LegacyPort     int    `envconfig:"ORDERFLOW_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"ORDERFLOW_DB_USER"`
	LegacyPassword string `envconfig:"ORDERFLOW_DB_PASSWORD"`
	LegacyName     string `envconfig:"ORDERFLOW_DB_NAME"`
	LegacySSLMode  string `envconfig:"ORDERFLOW_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"ORDERFLOW_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"ORDERFLOW_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"ORDERFLOW_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"ORDERFLOW_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"ORDERFLOW_REDIS_URL"`
	Address      string        `envconfig:"ORDERFLOW_REDIS_ADDR"`
	Password     string        `envconfig:"ORDERFLOW_REDIS_PASSWORD"`
	DB           int           `envconfig:"ORDERFLOW_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"ORDERFLOW_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"ORDERFLOW_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"ORDERFLOW_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"ORDERFLOW_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"ORDERFLOW_REDIS_WRITE_TIMEOUT" default:"5s"`
}

// Enabled reports whether a Redis endpoint was configured.
func (r RedisConfig) Enabled() bool {
	return r.URL != "" || r.Address != ""
}

// LockConfig controls the order-scoped mutual exclusion lock.
type LockConfig struct {
	TTL       time.Duration `envconfig:"ORDERFLOW_LOCK_TTL" default:"30s"`
	KeyPrefix string        `envconfig:"ORDERFLOW_LOCK_KEY_PREFIX" default:"order"`
}

type FeatureFlagsConfig struct {
	UseSQLite   bool `envconfig:"ORDERFLOW_USE_SQLITE" default:"false"`
	AutoMigrate bool `envconfig:"ORDERFLOW_AUTO_MIGRATE" default:"false"`
}

// ReturnsConfig toggles the optional behaviours of the return engine.
type ReturnsConfig struct {
	ExpeditedExchanges   bool          `envconfig:"ORDERFLOW_EXPEDITED_EXCHANGES" default:"false"`
	TrackInventoryLevels bool          `envconfig:"ORDERFLOW_TRACK_INVENTORY_LEVELS" default:"true"`
	AutoRefund           bool          `envconfig:"ORDERFLOW_AUTO_REFUND" default:"false"`
	ReturnWindow         time.Duration `envconfig:"ORDERFLOW_RETURN_WINDOW" default:"8760h"`
}

type ShippingConfig struct {
	RemoteRatesURL          string        `envconfig:"ORDERFLOW_SHIPPING_RATES_URL"`
	RemoteRatesTimeout      time.Duration `envconfig:"ORDERFLOW_SHIPPING_RATES_TIMEOUT" default:"5s"`
	BreakerFailureThreshold uint32        `envconfig:"ORDERFLOW_SHIPPING_BREAKER_FAILURES" default:"5"`
	BreakerOpenTimeout      time.Duration `envconfig:"ORDERFLOW_SHIPPING_BREAKER_OPEN_TIMEOUT" default:"30s"`
}

// GCPConfig is only read by binaries that talk to Google Cloud.
type GCPConfig struct {
	ProjectID              string `envconfig:"ORDERFLOW_GCP_PROJECT_ID"`
	CredentialsJSON        string `envconfig:"ORDERFLOW_GCP_CREDENTIALS_JSON"`
	ApplicationCredentials string `envconfig:"ORDERFLOW_GOOGLE_APPLICATION_CREDENTIALS"`
}

type PubSubConfig struct {
	DomainTopic string `envconfig:"ORDERFLOW_PUBSUB_DOMAIN_TOPIC" default:"orderflow-domain-events"`
	// EmulatorHost points the client at a local Pub/Sub emulator (host:port).
	EmulatorHost   string        `envconfig:"ORDERFLOW_PUBSUB_EMULATOR_HOST"`
	OrderingByKey  bool          `envconfig:"ORDERFLOW_PUBSUB_ORDERING" default:"true"`
	DelayThreshold time.Duration `envconfig:"ORDERFLOW_PUBSUB_DELAY_THRESHOLD" default:"10ms"`
	CountThreshold int           `envconfig:"ORDERFLOW_PUBSUB_COUNT_THRESHOLD" default:"100"`
}

type OutboxConfig struct {
	BatchSize      int `envconfig:"ORDERFLOW_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int `envconfig:"ORDERFLOW_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int `envconfig:"ORDERFLOW_OUTBOX_MAX_ATTEMPTS" default:"10"`
}

// CronConfig drives the maintenance worker.
type CronConfig struct {
	Interval        time.Duration `envconfig:"ORDERFLOW_CRON_INTERVAL" default:"15m"`
	JobTimeout      time.Duration `envconfig:"ORDERFLOW_CRON_JOB_TIMEOUT" default:"5m"`
	LockTTL         time.Duration `envconfig:"ORDERFLOW_CRON_LOCK_TTL" default:"1h"`
	RetryBatchSize  int           `envconfig:"ORDERFLOW_CRON_RETRY_BATCH_SIZE" default:"25"`
	OutboxRetention time.Duration `envconfig:"ORDERFLOW_OUTBOX_RETENTION" default:"720h"`
}

func (db *DBConfig) ensureDSN(sqlite bool) error {
	if db.DSN != "" {
		return nil
	}
	if sqlite {
		db.DSN = "file:orderflow.db?cache=shared"
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
