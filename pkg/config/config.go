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
	Efi          EfiConfig
	Billing      BillingConfig
	Webhook      WebhookConfig
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
	Env          string `envconfig:"COBRAFACIL_APP_ENV" required:"true"`
	Port         string `envconfig:"COBRAFACIL_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"COBRAFACIL_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"COBRAFACIL_LOG_WARN_STACK" default:"false"`

	CORSOrigins []string `envconfig:"COBRAFACIL_CORS_ORIGINS" default:"http://localhost:3000"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"COBRAFACIL_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"COBRAFACIL_DB_DSN"`
	Driver string `envconfig:"COBRAFACIL_DB_DRIVER" default:"postgres"`

	// Legacy host/user/name parts are accepted only here, at load time,
	// and collapsed into the canonical DSN before anything reads them.
	LegacyHost     string `envconfig:"COBRAFACIL_DB_HOST"`
	LegacyPort     int    `envconfig:"COBRAFACIL_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"COBRAFACIL_DB_USER"`
	LegacyPassword string `envconfig:"COBRAFACIL_DB_PASSWORD"`
	LegacyName     string `envconfig:"COBRAFACIL_DB_NAME"`
	LegacySSLMode  string `envconfig:"COBRAFACIL_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"COBRAFACIL_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"COBRAFACIL_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"COBRAFACIL_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"COBRAFACIL_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"COBRAFACIL_REDIS_URL" required:"true"`
	Address      string        `envconfig:"COBRAFACIL_REDIS_ADDR"`
	Password     string        `envconfig:"COBRAFACIL_REDIS_PASSWORD"`
	DB           int           `envconfig:"COBRAFACIL_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"COBRAFACIL_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"COBRAFACIL_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"COBRAFACIL_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"COBRAFACIL_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"COBRAFACIL_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type FeatureFlagsConfig struct {
	UseSQLite   bool `envconfig:"COBRAFACIL_USE_SQLITE" default:"false"`
	AutoMigrate bool `envconfig:"COBRAFACIL_AUTO_MIGRATE" default:"false"`
}

// EfiConfig covers the process-wide parts of the Efí PIX integration.
// Client credentials live per tenant in the integrations table; only the
// certificate bundles and timeouts are deployment-level.
type EfiConfig struct {
	CertDir        string        `envconfig:"COBRAFACIL_EFI_CERT_DIR" default:"/etc/cobrafacil/certs"`
	RequestTimeout time.Duration `envconfig:"COBRAFACIL_EFI_REQUEST_TIMEOUT" default:"30s"`
}

type BillingConfig struct {
	ChargeExpirationSeconds int           `envconfig:"COBRAFACIL_BILLING_CHARGE_EXPIRATION_SECONDS" default:"3600"`
	WorkerInterval          time.Duration `envconfig:"COBRAFACIL_BILLING_WORKER_INTERVAL" default:"24h"`
}

type WebhookConfig struct {
	IdempotencyTTL time.Duration `envconfig:"COBRAFACIL_WEBHOOK_IDEMPOTENCY_TTL" default:"720h"`

	// PathToken, when set, becomes a mandatory secret path segment on
	// the gateway webhook route.
	PathToken string `envconfig:"COBRAFACIL_WEBHOOK_PATH_TOKEN"`
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
