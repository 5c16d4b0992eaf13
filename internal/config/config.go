package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration.
type Config struct {
	AppName     string
	AppVersion  string
	Environment string
	HTTPAddr    string

	AuthCookieSecure bool
	AuthCookieName   string
	AuthJWTSecret    string
	AuthTokenTTL     time.Duration

	OTLPEndpoint  string
	Observability ObservabilityConfig

	DBType            string
	DBHost            string
	DBPort            string
	DBName            string
	DBUser            string
	DBPassword        string
	DBSSLMode         string
	DBPath            string
	DBMaxIdleConn     int
	DBMaxOpenConn     int
	DBConnMaxLifetime int
	DBConnMaxIdleTime int

	Music     MusicConfig
	Payment   PaymentConfig
	RateLimit RateLimitConfig
	JobSweep  JobSweepConfig
}

// ObservabilityConfig controls application and SQL logging plus OTLP export.
type ObservabilityConfig struct {
	LogLevel          string
	LogFormat         string
	OtelEnabled       bool
	OtelProtocol      string
	OtelSamplingRatio float64

	SQLLogLevel      string
	SQLSlowThreshold time.Duration
	// SQLLogNotFound also logs lookups that found nothing. Ownership checks
	// and webhook dedup hit that path constantly, so it is off by default.
	SQLLogNotFound bool
}

// MusicConfig selects and configures the generation provider.
type MusicConfig struct {
	Provider    string
	Timeout     time.Duration
	CreditUnit  time.Duration
	SunoAPIKey  string
	SunoBaseURL string
	FalAPIKey   string
	FalBaseURL  string
	FalModel    string
	MockLatency time.Duration
}

type PaymentConfig struct {
	PaddleWebhookSecret string
	StripeWebhookSecret string
	UnknownPricePolicy  string
	// CreditsPerCurrencyUnit is only used by the estimate policy.
	CreditsPerCurrencyUnit string
}

type RateLimitConfig struct {
	Enabled       bool
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	AuthMax         int
	AuthWindow      time.Duration
	WebhookMax      int
	WebhookWindow   time.Duration
	GenerateMax     int
	GenerateWindow  time.Duration
	GeneralMax      int
	GeneralWindow   time.Duration
	SweepInterval   time.Duration
	RetentionWindow time.Duration
}

type JobSweepConfig struct {
	Enabled    bool
	Interval   time.Duration
	StaleAfter time.Duration
	BatchSize  int
}

const (
	UnknownPricePolicyReject   = "reject"
	UnknownPricePolicyEstimate = "estimate"
)

// Load loads configuration from environment variables and .env file.
func Load() Config {
	_ = godotenv.Load()

	environment := getenv("ENVIRONMENT", "development")
	authCookieSecure := environment == "production"
	if !authCookieSecure {
		authCookieSecure = getenvBool("AUTH_COOKIE_SECURE", false)
	}

	cfg := Config{
		AppName:          getenv("APP_SERVICE", "pearlsonic"),
		AppVersion:       getenv("APP_VERSION", "0.1.0"),
		Environment:      environment,
		HTTPAddr:         getenv("HTTP_ADDR", ":8080"),
		AuthCookieSecure: authCookieSecure,
		AuthCookieName:   strings.TrimSpace(getenv("AUTH_COOKIE_NAME", "token")),
		AuthJWTSecret:    strings.TrimSpace(getenv("AUTH_JWT_SECRET", "")),
		AuthTokenTTL:     getenvDuration("AUTH_TOKEN_TTL", 7*24*time.Hour),
		OTLPEndpoint:     getenv("OTEL_EXPORTER_OTLP_ENDPOINT", getenv("OTLP_ENDPOINT", "localhost:4317")),

		Observability: ObservabilityConfig{
			LogLevel:          strings.ToLower(strings.TrimSpace(getenv("LOG_LEVEL", "info"))),
			LogFormat:         strings.ToLower(strings.TrimSpace(getenv("LOG_FORMAT", "json"))),
			OtelEnabled:       getenvBool("OTEL_ENABLED", environment == "production"),
			OtelProtocol:      strings.ToLower(strings.TrimSpace(getenv("OTEL_EXPORTER_OTLP_PROTOCOL", "grpc"))),
			OtelSamplingRatio: getenvFloat("OTEL_SAMPLING_RATIO", 0.1),
			SQLLogLevel:       strings.ToLower(strings.TrimSpace(getenv("DATABASE_LOG_LEVEL", "warn"))),
			SQLSlowThreshold:  getenvDuration("DATABASE_SLOW_QUERY", 250*time.Millisecond),
			SQLLogNotFound:    getenvBool("DATABASE_LOG_NOT_FOUND", false),
		},

		DBType:            getenv("DATABASE_TYPE", "postgres"),
		DBHost:            getenv("DATABASE_HOST", "localhost"),
		DBPort:            getenv("DATABASE_PORT", "5432"),
		DBName:            getenv("DATABASE_NAME", "pearlsonic"),
		DBUser:            getenv("DATABASE_USER", "postgres"),
		DBPassword:        getenv("DATABASE_PASSWORD", ""),
		DBSSLMode:         getenv("DATABASE_SSLMODE", "disable"),
		DBPath:            getenv("DATABASE_PATH", "pearlsonic.db"),
		DBMaxIdleConn:     getenvInt("DATABASE_MAX_IDLE_CONN", 5),
		DBMaxOpenConn:     getenvInt("DATABASE_MAX_OPEN_CONN", 20),
		DBConnMaxLifetime: getenvInt("DATABASE_CONN_MAX_LIFETIME", 300),
		DBConnMaxIdleTime: getenvInt("DATABASE_CONN_MAX_IDLE_TIME", 60),

		Music: MusicConfig{
			Provider:    strings.ToLower(strings.TrimSpace(getenv("MUSIC_PROVIDER", "mock"))),
			Timeout:     getenvDuration("MUSIC_PROVIDER_TIMEOUT", 30*time.Second),
			CreditUnit:  time.Duration(getenvInt64("CREDIT_UNIT_MS", 60_000)) * time.Millisecond,
			SunoAPIKey:  strings.TrimSpace(getenv("SUNO_API_KEY", "")),
			SunoBaseURL: strings.TrimRight(getenv("SUNO_BASE_URL", "https://api.suno.ai/v1"), "/"),
			FalAPIKey:   strings.TrimSpace(getenv("FAL_KEY", "")),
			FalBaseURL:  strings.TrimRight(getenv("FAL_BASE_URL", "https://queue.fal.run"), "/"),
			FalModel:    strings.Trim(getenv("FAL_MODEL", "fal-ai/elevenlabs/music"), "/"),
			MockLatency: getenvDuration("MOCK_PROVIDER_LATENCY", 20*time.Second),
		},

		Payment: PaymentConfig{
			PaddleWebhookSecret:    strings.TrimSpace(getenv("PADDLE_WEBHOOK_SECRET", "")),
			StripeWebhookSecret:    strings.TrimSpace(getenv("STRIPE_WEBHOOK_SECRET", "")),
			UnknownPricePolicy:     normalizeUnknownPricePolicy(getenv("PRICING_UNKNOWN_PRICE_POLICY", UnknownPricePolicyReject)),
			CreditsPerCurrencyUnit: getenv("PRICING_ESTIMATE_CREDITS_PER_UNIT", "3"),
		},

		RateLimit: RateLimitConfig{
			Enabled:         getenvBool("RATE_LIMIT_ENABLED", true),
			RedisAddr:       strings.TrimSpace(getenv("RATE_LIMIT_REDIS_ADDR", "")),
			RedisPassword:   strings.TrimSpace(getenv("RATE_LIMIT_REDIS_PASSWORD", "")),
			RedisDB:         getenvInt("RATE_LIMIT_REDIS_DB", 0),
			AuthMax:         getenvInt("RATE_LIMIT_AUTH_MAX", 5),
			AuthWindow:      getenvDuration("RATE_LIMIT_AUTH_WINDOW", 15*time.Minute),
			WebhookMax:      getenvInt("RATE_LIMIT_WEBHOOK_MAX", 10),
			WebhookWindow:   getenvDuration("RATE_LIMIT_WEBHOOK_WINDOW", time.Minute),
			GenerateMax:     getenvInt("RATE_LIMIT_GENERATE_MAX", 5),
			GenerateWindow:  getenvDuration("RATE_LIMIT_GENERATE_WINDOW", time.Minute),
			GeneralMax:      getenvInt("RATE_LIMIT_GENERAL_MAX", 100),
			GeneralWindow:   getenvDuration("RATE_LIMIT_GENERAL_WINDOW", time.Minute),
			SweepInterval:   getenvDuration("RATE_LIMIT_SWEEP_INTERVAL", 10*time.Minute),
			RetentionWindow: getenvDuration("RATE_LIMIT_RETENTION", 30*time.Minute),
		},

		JobSweep: JobSweepConfig{
			Enabled:    getenvBool("JOB_SWEEP_ENABLED", false),
			Interval:   getenvDuration("JOB_SWEEP_INTERVAL", time.Minute),
			StaleAfter: getenvDuration("JOB_SWEEP_STALE_AFTER", 5*time.Minute),
			BatchSize:  getenvInt("JOB_SWEEP_BATCH_SIZE", 50),
		},
	}

	return cfg
}

func (c Config) IsProduction() bool {
	return strings.EqualFold(strings.TrimSpace(c.Environment), "production")
}

func normalizeUnknownPricePolicy(raw string) string {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case UnknownPricePolicyEstimate:
		return UnknownPricePolicyEstimate
	default:
		return UnknownPricePolicyReject
	}
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvBool(key string, def bool) bool {
	value := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	if value == "" {
		return def
	}
	switch value {
	case "1", "true", "yes", "y", "on":
		return true
	case "0", "false", "no", "n", "off":
		return false
	default:
		return def
	}
}

func getenvInt64(key string, def int64) int64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return def
	}
	return parsed
}

func getenvFloat(key string, def float64) float64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return def
	}
	return parsed
}

func getenvInt(key string, def int) int {
	return int(getenvInt64(key, int64(def)))
}

// getenvDuration accepts Go duration strings ("90s") or bare seconds.
func getenvDuration(key string, def time.Duration) time.Duration {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	if parsed, err := time.ParseDuration(value); err == nil {
		return parsed
	}
	if seconds, err := strconv.ParseInt(value, 10, 64); err == nil {
		return time.Duration(seconds) * time.Second
	}
	return def
}
