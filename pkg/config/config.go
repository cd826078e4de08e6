package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

const (
	// EnvPrefix namespaces every environment variable the service reads.
	EnvPrefix = "SHOPVEDA"

	AppEnvDev  = "development"
	AppEnvProd = "production"

	EnvAppEnv = "SHOPVEDA_APP_ENV"
	EnvDBDSN  = "SHOPVEDA_DB_DSN"
	EnvDBHost = "SHOPVEDA_DB_HOST"
	EnvDBUser = "SHOPVEDA_DB_USER"
	EnvDBName = "SHOPVEDA_DB_NAME"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}

type Config struct {
	App          AppConfig
	DB           DBConfig
	Redis        RedisConfig
	JWT          JWTConfig
	Razorpay     RazorpayConfig
	FeatureFlags FeatureFlagsConfig
	Webhooks     WebhookConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	if err := cfg.Redis.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"SHOPVEDA_APP_ENV" required:"true"`
	Port         string `envconfig:"SHOPVEDA_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"SHOPVEDA_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"SHOPVEDA_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type DBConfig struct {
	DSN    string `envconfig:"SHOPVEDA_DB_DSN"`
	Driver string `envconfig:"SHOPVEDA_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"SHOPVEDA_DB_HOST"`
	LegacyPort     int    `envconfig:"SHOPVEDA_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"SHOPVEDA_DB_USER"`
	LegacyPassword string `envconfig:"SHOPVEDA_DB_PASSWORD"`
	LegacyName     string `envconfig:"SHOPVEDA_DB_NAME"`
	LegacySSLMode  string `envconfig:"SHOPVEDA_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"SHOPVEDA_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"SHOPVEDA_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"SHOPVEDA_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"SHOPVEDA_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"SHOPVEDA_REDIS_URL"`
	Address      string        `envconfig:"SHOPVEDA_REDIS_ADDR"`
	Password     string        `envconfig:"SHOPVEDA_REDIS_PASSWORD"`
	DB           int           `envconfig:"SHOPVEDA_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"SHOPVEDA_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"SHOPVEDA_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"SHOPVEDA_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"SHOPVEDA_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"SHOPVEDA_REDIS_WRITE_TIMEOUT" default:"5s"`
}

// validate requires either a full connection URL or a bare address.
func (r RedisConfig) validate() error {
	if r.URL == "" && r.Address == "" {
		return fmt.Errorf("redis config requires SHOPVEDA_REDIS_URL or SHOPVEDA_REDIS_ADDR")
	}
	return nil
}

type JWTConfig struct {
	Secret            string `envconfig:"SHOPVEDA_JWT_SECRET" required:"true"`
	Issuer            string `envconfig:"SHOPVEDA_JWT_ISSUER" required:"true"`
	ExpirationMinutes int    `envconfig:"SHOPVEDA_JWT_EXPIRATION_MINUTES" default:"60"`
}

// RazorpayConfig carries the gateway credentials. KeyID is public (shipped to
// the storefront for the checkout widget); KeySecret and WebhookSecret are not.
type RazorpayConfig struct {
	KeyID         string        `envconfig:"SHOPVEDA_RAZORPAY_KEY_ID"`
	KeySecret     string        `envconfig:"SHOPVEDA_RAZORPAY_KEY_SECRET"`
	WebhookSecret string        `envconfig:"SHOPVEDA_RAZORPAY_WEBHOOK_SECRET"`
	BaseURL       string        `envconfig:"SHOPVEDA_RAZORPAY_BASE_URL" default:"https://api.razorpay.com/v1"`
	Timeout       time.Duration `envconfig:"SHOPVEDA_RAZORPAY_TIMEOUT" default:"15s"`
}

type FeatureFlagsConfig struct {
	AutoMigrate bool `envconfig:"SHOPVEDA_AUTO_MIGRATE" default:"false"`
}

type WebhookConfig struct {
	EventGuardTTL time.Duration `envconfig:"SHOPVEDA_WEBHOOK_EVENT_GUARD_TTL" default:"720h"`
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
