package config

const (
	EnvPrefix = "STARTER"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	DBDriverPostgres = "postgres"
	DBDriverSQLite   = "sqlite"

	AuthProviderJWT   = "jwt"
	AuthProviderClerk = "clerk"

	EnvAppEnv       = "STARTER_APP_ENV"
	EnvPort         = "STARTER_APP_PORT"
	EnvAppName      = "STARTER_APP_NAME"
	EnvLogLevel     = "STARTER_LOG_LEVEL"
	EnvLogWarnStack = "STARTER_LOG_WARN_STACK"
	EnvCORSOrigins  = "STARTER_CORS_ALLOWED_ORIGINS"

	EnvDBDSN             = "STARTER_DB_DSN"
	EnvDBDriver          = "STARTER_DB_DRIVER"
	EnvDBHost            = "STARTER_DB_HOST"
	EnvDBPort            = "STARTER_DB_PORT"
	EnvDBUser            = "STARTER_DB_USER"
	EnvDBPassword        = "STARTER_DB_PASSWORD"
	EnvDBName            = "STARTER_DB_NAME"
	EnvDBSSLMode         = "STARTER_DB_SSLMODE"
	EnvDBMaxOpenConns    = "STARTER_DB_MAX_OPEN_CONNS"
	EnvDBMaxIdleConns    = "STARTER_DB_MAX_IDLE_CONNS"
	EnvDBConnMaxLifetime = "STARTER_DB_CONN_MAX_LIFETIME"
	EnvDBConnMaxIdleTime = "STARTER_DB_CONN_MAX_IDLE_TIME"

	EnvRedisURL          = "STARTER_REDIS_URL"
	EnvRedisAddr         = "STARTER_REDIS_ADDR"
	EnvRedisPassword     = "STARTER_REDIS_PASSWORD"
	EnvRedisDB           = "STARTER_REDIS_DB"
	EnvRedisPoolSize     = "STARTER_REDIS_POOL_SIZE"
	EnvRedisMinIdleConns = "STARTER_REDIS_MIN_IDLE_CONNS"
	EnvRedisDialTimeout  = "STARTER_REDIS_DIAL_TIMEOUT"
	EnvRedisReadTimeout  = "STARTER_REDIS_READ_TIMEOUT"
	EnvRedisWriteTimeout = "STARTER_REDIS_WRITE_TIMEOUT"

	EnvAuthProvider   = "STARTER_AUTH_PROVIDER"
	EnvJWTSecret      = "STARTER_JWT_SECRET"
	EnvJWTIssuer      = "STARTER_JWT_ISSUER"
	EnvJWTExpMins     = "STARTER_JWT_EXPIRATION_MINUTES"
	EnvClerkSecretKey = "STARTER_CLERK_SECRET_KEY"

	EnvBillingMode         = "STARTER_BILLING_MODE"
	EnvBillingTrialDays    = "STARTER_BILLING_TRIAL_DAYS"
	EnvBillingExemptPaths  = "STARTER_BILLING_PAYWALL_EXEMPT_PATHS"
	EnvBillingCurrency     = "STARTER_BILLING_CURRENCY"
	EnvBillingMonthlyPrice = "STARTER_BILLING_MONTHLY_PRICE"
	EnvBillingYearlyPrice  = "STARTER_BILLING_YEARLY_PRICE"

	EnvStripeAPIKey         = "STARTER_STRIPE_API_KEY"
	EnvStripeSecret         = "STARTER_STRIPE_SECRET"
	EnvStripeEnv            = "STARTER_STRIPE_ENV"
	EnvStripePortalCacheTTL = "STARTER_STRIPE_PORTAL_CACHE_TTL"

	EnvPaymentsIPNSecret      = "STARTER_PAYMENTS_IPN_SECRET"
	EnvPaymentsIdempotencyTTL = "STARTER_PAYMENTS_WEBHOOK_IDEMPOTENCY_TTL"

	EnvRateLimitRPS         = "STARTER_RATE_LIMIT_RPS"
	EnvRateLimitBurst       = "STARTER_RATE_LIMIT_BURST"
	EnvRateLimitWriteWindow = "STARTER_RATE_LIMIT_WRITE_WINDOW"
	EnvRateLimitWriteLimit  = "STARTER_RATE_LIMIT_WRITE_LIMIT"

	EnvAutoMigrate = "STARTER_AUTO_MIGRATE"
)

var legacyDBEnvVars = []string{
	EnvDBHost,
	EnvDBUser,
	EnvDBName,
}
