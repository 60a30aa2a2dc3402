package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/shopspring/decimal"
	"go.uber.org/multierr"

	"github.com/angelmondragon/starter-billing/pkg/enums"
)

type Config struct {
	App          AppConfig
	DB           DBConfig
	Redis        RedisConfig
	JWT          JWTConfig
	Clerk        ClerkConfig
	Billing      BillingConfig
	Stripe       StripeConfig
	Payments     PaymentsConfig
	RateLimit    RateLimitConfig
	FeatureFlags FeatureFlagsConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

// Validate reports every inconsistent setting at once.
func (c *Config) Validate() error {
	var err error

	switch c.DB.Driver {
	case DBDriverPostgres, DBDriverSQLite:
	default:
		err = multierr.Append(err, fmt.Errorf("%s must be %q or %q", EnvDBDriver, DBDriverPostgres, DBDriverSQLite))
	}

	if c.Redis.URL == "" && c.Redis.Address == "" {
		err = multierr.Append(err, fmt.Errorf("either %s or %s is required", EnvRedisURL, EnvRedisAddr))
	}

	switch c.JWT.Provider {
	case AuthProviderJWT:
		if c.JWT.Secret == "" {
			err = multierr.Append(err, fmt.Errorf("%s is required when %s=%s", EnvJWTSecret, EnvAuthProvider, AuthProviderJWT))
		}
	case AuthProviderClerk:
		if c.Clerk.SecretKey == "" {
			err = multierr.Append(err, fmt.Errorf("%s is required when %s=%s", EnvClerkSecretKey, EnvAuthProvider, AuthProviderClerk))
		}
	default:
		err = multierr.Append(err, fmt.Errorf("%s must be %q or %q", EnvAuthProvider, AuthProviderJWT, AuthProviderClerk))
	}

	mode, modeErr := c.Billing.BillingMode()
	if modeErr != nil {
		err = multierr.Append(err, fmt.Errorf("%s: %w", EnvBillingMode, modeErr))
	}
	if mode == enums.BillingModePortal && strings.TrimSpace(c.Stripe.APIKey) == "" {
		err = multierr.Append(err, fmt.Errorf("%s is required when %s=%s", EnvStripeAPIKey, EnvBillingMode, enums.BillingModePortal))
	}
	if mode == enums.BillingModeLocal && strings.TrimSpace(c.Payments.IPNSecret) == "" {
		err = multierr.Append(err, fmt.Errorf("%s is required when %s=%s", EnvPaymentsIPNSecret, EnvBillingMode, enums.BillingModeLocal))
	}

	if c.Billing.TrialDays <= 0 {
		err = multierr.Append(err, fmt.Errorf("%s must be positive", EnvBillingTrialDays))
	}
	if _, currencyErr := enums.ParseCurrency(c.Billing.Currency); currencyErr != nil {
		err = multierr.Append(err, fmt.Errorf("%s: %w", EnvBillingCurrency, currencyErr))
	}
	if _, priceErr := c.Billing.MonthlyAmount(); priceErr != nil {
		err = multierr.Append(err, fmt.Errorf("%s: %w", EnvBillingMonthlyPrice, priceErr))
	}
	if _, priceErr := c.Billing.YearlyAmount(); priceErr != nil {
		err = multierr.Append(err, fmt.Errorf("%s: %w", EnvBillingYearlyPrice, priceErr))
	}

	if c.RateLimit.RequestsPerSecond < 0 || c.RateLimit.Burst < 0 {
		err = multierr.Append(err, errors.New("rate limit settings must not be negative"))
	}

	return err
}

type AppConfig struct {
	Env          string `envconfig:"STARTER_APP_ENV" required:"true"`
	Port         string `envconfig:"STARTER_APP_PORT" required:"true"`
	Name         string `envconfig:"STARTER_APP_NAME" default:"Starter"`
	LogLevel     string `envconfig:"STARTER_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"STARTER_LOG_WARN_STACK" default:"false"`

	CORSAllowedOrigins []string `envconfig:"STARTER_CORS_ALLOWED_ORIGINS" default:"http://localhost:3000"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type DBConfig struct {
	DSN    string `envconfig:"STARTER_DB_DSN"`
	Driver string `envconfig:"STARTER_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"STARTER_DB_HOST"`
	LegacyPort     int    `envconfig:"STARTER_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"STARTER_DB_USER"`
	LegacyPassword string `envconfig:"STARTER_DB_PASSWORD"`
	LegacyName     string `envconfig:"STARTER_DB_NAME"`
	LegacySSLMode  string `envconfig:"STARTER_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"STARTER_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"STARTER_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"STARTER_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"STARTER_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

// IsSQLite reports whether the embedded SQLite driver is selected.
func (db DBConfig) IsSQLite() bool {
	return strings.EqualFold(db.Driver, DBDriverSQLite)
}

type RedisConfig struct {
	URL          string        `envconfig:"STARTER_REDIS_URL"`
	Address      string        `envconfig:"STARTER_REDIS_ADDR"`
	Password     string        `envconfig:"STARTER_REDIS_PASSWORD"`
	DB           int           `envconfig:"STARTER_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"STARTER_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"STARTER_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"STARTER_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"STARTER_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"STARTER_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type JWTConfig struct {
	Provider          string `envconfig:"STARTER_AUTH_PROVIDER" default:"jwt"`
	Secret            string `envconfig:"STARTER_JWT_SECRET"`
	Issuer            string `envconfig:"STARTER_JWT_ISSUER" default:"starter"`
	ExpirationMinutes int    `envconfig:"STARTER_JWT_EXPIRATION_MINUTES" default:"60"`
}

type ClerkConfig struct {
	SecretKey string `envconfig:"STARTER_CLERK_SECRET_KEY"`
}

type BillingConfig struct {
	Mode               string   `envconfig:"STARTER_BILLING_MODE" default:"local"`
	TrialDays          int      `envconfig:"STARTER_BILLING_TRIAL_DAYS" default:"7"`
	PaywallExemptPaths []string `envconfig:"STARTER_BILLING_PAYWALL_EXEMPT_PATHS" default:"/subscription,/onboarding,/settings"`
	Currency           string   `envconfig:"STARTER_BILLING_CURRENCY" default:"USD"`
	MonthlyPrice       string   `envconfig:"STARTER_BILLING_MONTHLY_PRICE" default:"5"`
	YearlyPrice        string   `envconfig:"STARTER_BILLING_YEARLY_PRICE" default:"50"`
}

// BillingMode returns the parsed deployment variant.
func (b BillingConfig) BillingMode() (enums.BillingMode, error) {
	return enums.ParseBillingMode(b.Mode)
}

// TrialLength converts the configured trial days into a duration.
func (b BillingConfig) TrialLength() time.Duration {
	if b.TrialDays <= 0 {
		return 0
	}
	return time.Duration(b.TrialDays) * 24 * time.Hour
}

// MonthlyAmount parses the monthly plan price.
func (b BillingConfig) MonthlyAmount() (decimal.Decimal, error) {
	return parsePrice(b.MonthlyPrice)
}

// YearlyAmount parses the yearly plan price.
func (b BillingConfig) YearlyAmount() (decimal.Decimal, error) {
	return parsePrice(b.YearlyPrice)
}

func parsePrice(raw string) (decimal.Decimal, error) {
	amount, err := decimal.NewFromString(strings.TrimSpace(raw))
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid price %q: %w", raw, err)
	}
	if amount.IsNegative() {
		return decimal.Zero, fmt.Errorf("price %q must not be negative", raw)
	}
	return amount, nil
}

type StripeConfig struct {
	APIKey         string        `envconfig:"STARTER_STRIPE_API_KEY"`
	Secret         string        `envconfig:"STARTER_STRIPE_SECRET"`
	Env            string        `envconfig:"STARTER_STRIPE_ENV" default:"test"`
	PortalCacheTTL time.Duration `envconfig:"STARTER_STRIPE_PORTAL_CACHE_TTL" default:"60s"`
}

// Environment returns the normalized Stripe environment (test/live).
func (s StripeConfig) Environment() string {
	env := strings.TrimSpace(strings.ToLower(s.Env))
	if env == "" {
		return "test"
	}
	return env
}

type PaymentsConfig struct {
	IPNSecret      string        `envconfig:"STARTER_PAYMENTS_IPN_SECRET"`
	IdempotencyTTL time.Duration `envconfig:"STARTER_PAYMENTS_WEBHOOK_IDEMPOTENCY_TTL" default:"720h"`
}

type RateLimitConfig struct {
	RequestsPerSecond float64       `envconfig:"STARTER_RATE_LIMIT_RPS" default:"10"`
	Burst             int           `envconfig:"STARTER_RATE_LIMIT_BURST" default:"30"`
	WriteWindow       time.Duration `envconfig:"STARTER_RATE_LIMIT_WRITE_WINDOW" default:"1m"`
	WriteLimit        int           `envconfig:"STARTER_RATE_LIMIT_WRITE_LIMIT" default:"30"`
}

type FeatureFlagsConfig struct {
	AutoMigrate bool `envconfig:"STARTER_AUTO_MIGRATE" default:"false"`
}

func (db *DBConfig) ensureDSN() error {
	if db.DSN != "" {
		return nil
	}
	if db.IsSQLite() {
		db.DSN = "file:starter.db?_foreign_keys=on"
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
