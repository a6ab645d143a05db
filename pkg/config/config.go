package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

const (
	// EnvPrefix namespaces every environment variable the platform reads.
	EnvPrefix = "BIDFINDERZ"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	EnvDBDSN  = "BIDFINDERZ_DB_DSN"
	EnvDBHost = "BIDFINDERZ_DB_HOST"
	EnvDBUser = "BIDFINDERZ_DB_USER"
	EnvDBName = "BIDFINDERZ_DB_NAME"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}

type Config struct {
	App          AppConfig
	Service      ServiceConfig
	DB           DBConfig
	Redis        RedisConfig
	Bidding      BiddingConfig
	Credit       CreditConfig
	FeatureFlags FeatureFlagsConfig
	GCP          GCPConfig
	PubSub       PubSubConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"BIDFINDERZ_APP_ENV" required:"true"`
	Port         string `envconfig:"BIDFINDERZ_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"BIDFINDERZ_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"BIDFINDERZ_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"BIDFINDERZ_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"BIDFINDERZ_DB_DSN"`
	Driver string `envconfig:"BIDFINDERZ_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"BIDFINDERZ_DB_HOST"`
	LegacyPort     int    `envconfig:"BIDFINDERZ_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"BIDFINDERZ_DB_USER"`
	LegacyPassword string `envconfig:"BIDFINDERZ_DB_PASSWORD"`
	LegacyName     string `envconfig:"BIDFINDERZ_DB_NAME"`
	LegacySSLMode  string `envconfig:"BIDFINDERZ_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"BIDFINDERZ_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"BIDFINDERZ_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"BIDFINDERZ_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"BIDFINDERZ_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"BIDFINDERZ_REDIS_URL" required:"true"`
	Address      string        `envconfig:"BIDFINDERZ_REDIS_ADDR"`
	Password     string        `envconfig:"BIDFINDERZ_REDIS_PASSWORD"`
	DB           int           `envconfig:"BIDFINDERZ_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"BIDFINDERZ_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"BIDFINDERZ_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"BIDFINDERZ_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"BIDFINDERZ_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"BIDFINDERZ_REDIS_WRITE_TIMEOUT" default:"5s"`
}

// BiddingConfig tunes bidding windows and the timeout sweeper.
type BiddingConfig struct {
	WindowMinutes  int           `envconfig:"BIDFINDERZ_BIDDING_WINDOW_MINUTES" default:"30"`
	SweepInterval  time.Duration `envconfig:"BIDFINDERZ_BIDDING_SWEEP_INTERVAL" default:"2m"`
	SweepBatchSize int           `envconfig:"BIDFINDERZ_BIDDING_SWEEP_BATCH_SIZE" default:"50"`
	LockTimeout    time.Duration `envconfig:"BIDFINDERZ_BIDDING_LOCK_TIMEOUT" default:"5s"`
}

// Window returns the configured bidding window as a duration.
func (b BiddingConfig) Window() time.Duration {
	if b.WindowMinutes <= 0 {
		return 30 * time.Minute
	}
	return time.Duration(b.WindowMinutes) * time.Minute
}

// CreditConfig tunes credit-relationship locking and retry behavior.
type CreditConfig struct {
	LockTimeout  time.Duration `envconfig:"BIDFINDERZ_CREDIT_LOCK_TIMEOUT" default:"5s"`
	MaxRetries   int           `envconfig:"BIDFINDERZ_CREDIT_MAX_RETRIES" default:"3"`
	RetryBackoff time.Duration `envconfig:"BIDFINDERZ_CREDIT_RETRY_BACKOFF" default:"100ms"`
	DriftEpsilon string        `envconfig:"BIDFINDERZ_CREDIT_DRIFT_EPSILON" default:"0.01"`
}

type FeatureFlagsConfig struct {
	UseSQLite     bool `envconfig:"BIDFINDERZ_USE_SQLITE" default:"false"`
	AutoMigrate   bool `envconfig:"BIDFINDERZ_AUTO_MIGRATE" default:"false"`
	Notifications bool `envconfig:"BIDFINDERZ_FEATURE_NOTIFICATIONS" default:"true"`
}

type GCPConfig struct {
	ProjectID              string `envconfig:"BIDFINDERZ_GCP_PROJECT_ID"`
	CredentialsJSON        string `envconfig:"BIDFINDERZ_GCP_CREDENTIALS_JSON"`
	ApplicationCredentials string `envconfig:"BIDFINDERZ_GOOGLE_APPLICATION_CREDENTIALS"`
}

type PubSubConfig struct {
	NotificationTopic        string `envconfig:"BIDFINDERZ_PUBSUB_NOTIFICATION_TOPIC" default:"bf-notification-events"`
	NotificationSubscription string `envconfig:"BIDFINDERZ_PUBSUB_NOTIFICATION_SUBSCRIPTION"`
}

func (db *DBConfig) ensureDSN() error {
	if db.DSN != "" {
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
