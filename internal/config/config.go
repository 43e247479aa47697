package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Storage backends.
const (
	BackendDynamoDB = "dynamodb"
	BackendDisk     = "disk"
)

// Config holds runtime configuration for the API and sweeper.
// Secrets are read from the environment here and never leave the process.
type Config struct {
	Env      string
	RunLocal bool
	HTTPAddr string

	StoreBackend string
	OrdersTable  string
	LedgerTable  string
	DataDir      string
	OrderTTL     time.Duration
	ClaimTimeout time.Duration
	SweepSpec    string

	StripeSecretKey     string
	StripeWebhookSecret string
	CheckoutSuccessURL  string
	CheckoutCancelURL   string
	Currency            string
	PricePerThousand    int64 // cents per 1000 leads
	MinChargeCents      int64
	MaxChargeCents      int64

	MinLeads           int
	MaxLeads           int
	AllowedSearchHosts []string
	MetadataFieldLimit int

	ActorAPIURL    string
	ActorID        string
	ActorToken     string
	ActorTimeout   time.Duration
	FileNameLength int

	NotifyWebhookURL  string
	NotifyTimeout     time.Duration
	SendGridAPIKey    string
	SendGridFromEmail string
	SendGridSandbox   bool
	OperatorEmail     string
	NotifyQueueURL    string
	ResultsWebhookURL string
	ResultsToken      string

	RedisAddr         string
	RedisPassword     string
	RateLimitCapacity int
	RateLimitRefill   float64

	CORSAllowedOrigins []string

	CloudWatchMetrics bool
	MetricsNamespace  string
}

// Load reads configuration from environment variables with defaults suitable for local development.
func Load() Config {
	return Config{
		Env:      getEnv("APP_ENV", "dev"),
		RunLocal: getEnvBool("RUN_LOCAL", false),
		HTTPAddr: getEnv("HTTP_ADDR", ":8080"),

		StoreBackend: strings.ToLower(getEnv("STORE_BACKEND", BackendDynamoDB)),
		OrdersTable:  getEnv("ORDERS_TABLE", "pending-orders"),
		LedgerTable:  getEnv("LEDGER_TABLE", "fulfillment-ledger"),
		DataDir:      getEnv("DATA_DIR", "/tmp/leadflow"),
		OrderTTL:     getEnvDuration("ORDER_TTL", 72*time.Hour),
		ClaimTimeout: getEnvDuration("CLAIM_TIMEOUT", 10*time.Minute),
		SweepSpec:    getEnv("SWEEP_SCHEDULE", "@every 1h"),

		StripeSecretKey:     getEnv("STRIPE_SECRET_KEY", ""),
		StripeWebhookSecret: getEnv("STRIPE_WEBHOOK_SECRET", ""),
		CheckoutSuccessURL:  getEnv("CHECKOUT_SUCCESS_URL", "http://localhost:3000/success?session_id={CHECKOUT_SESSION_ID}"),
		CheckoutCancelURL:   getEnv("CHECKOUT_CANCEL_URL", "http://localhost:3000/"),
		Currency:            strings.ToLower(getEnv("CURRENCY", "usd")),
		PricePerThousand:    getEnvInt64("PRICE_PER_THOUSAND_CENTS", 500),
		MinChargeCents:      getEnvInt64("MIN_CHARGE_CENTS", 100),
		MaxChargeCents:      getEnvInt64("MAX_CHARGE_CENTS", 100000),

		MinLeads:           getEnvInt("MIN_LEADS", 500),
		MaxLeads:           getEnvInt("MAX_LEADS", 50000),
		AllowedSearchHosts: getEnvList("ALLOWED_SEARCH_HOSTS", []string{"app.apollo.io"}),
		MetadataFieldLimit: getEnvInt("METADATA_FIELD_LIMIT", 500),

		ActorAPIURL:    strings.TrimRight(getEnv("ACTOR_API_URL", "https://api.apify.com"), "/"),
		ActorID:        getEnv("ACTOR_ID", ""),
		ActorToken:     getEnv("ACTOR_TOKEN", ""),
		ActorTimeout:   getEnvDuration("ACTOR_TIMEOUT", 60*time.Second),
		FileNameLength: getEnvInt("FILE_NAME_LENGTH", 12),

		NotifyWebhookURL:  getEnv("NOTIFY_WEBHOOK_URL", ""),
		NotifyTimeout:     getEnvDuration("NOTIFY_TIMEOUT", 10*time.Second),
		SendGridAPIKey:    getEnv("SENDGRID_API_KEY", ""),
		SendGridFromEmail: getEnv("SENDGRID_FROM_EMAIL", ""),
		SendGridSandbox:   getEnvBool("SENDGRID_SANDBOX", false),
		OperatorEmail:     getEnv("OPERATOR_EMAIL", ""),
		NotifyQueueURL:    getEnv("NOTIFY_QUEUE_URL", ""),
		ResultsWebhookURL: getEnv("RESULTS_WEBHOOK_URL", ""),
		ResultsToken:      getEnv("RESULTS_WEBHOOK_TOKEN", ""),

		RedisAddr:         getEnv("REDIS_ADDR", ""),
		RedisPassword:     getEnv("REDIS_PASSWORD", ""),
		RateLimitCapacity: getEnvInt("RATE_LIMIT_CAPACITY", 10),
		RateLimitRefill:   getEnvFloat("RATE_LIMIT_REFILL_PER_SEC", 0.2),

		CORSAllowedOrigins: getEnvList("CORS_ALLOWED_ORIGINS", []string{"*"}),

		CloudWatchMetrics: getEnvBool("CLOUDWATCH_METRICS", false),
		MetricsNamespace:  getEnv("METRICS_NAMESPACE", "Leadflow"),
	}
}

// NeedsAWS reports whether any configured component talks to AWS.
func (c Config) NeedsAWS() bool {
	return c.StoreBackend == BackendDynamoDB || c.NotifyQueueURL != "" || c.CloudWatchMetrics
}

// Validate checks the settings every deployment needs.
func (c Config) Validate() error {
	var errs []error
	if c.StripeSecretKey == "" {
		errs = append(errs, errors.New("STRIPE_SECRET_KEY is required"))
	}
	if c.StripeWebhookSecret == "" {
		errs = append(errs, errors.New("STRIPE_WEBHOOK_SECRET is required"))
	}
	if c.ActorID == "" || c.ActorToken == "" {
		errs = append(errs, errors.New("ACTOR_ID and ACTOR_TOKEN are required"))
	}
	switch c.StoreBackend {
	case BackendDynamoDB:
		if c.OrdersTable == "" || c.LedgerTable == "" {
			errs = append(errs, errors.New("ORDERS_TABLE and LEDGER_TABLE are required for the dynamodb backend"))
		}
	case BackendDisk:
		if c.DataDir == "" {
			errs = append(errs, errors.New("DATA_DIR is required for the disk backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown STORE_BACKEND %q", c.StoreBackend))
	}
	if c.MinLeads <= 0 || c.MaxLeads < c.MinLeads {
		errs = append(errs, fmt.Errorf("invalid lead bounds: min=%d max=%d", c.MinLeads, c.MaxLeads))
	}
	if c.FileNameLength < 6 {
		errs = append(errs, fmt.Errorf("FILE_NAME_LENGTH too small: %d", c.FileNameLength))
	}
	if c.MetadataFieldLimit < 8 {
		errs = append(errs, fmt.Errorf("METADATA_FIELD_LIMIT too small: %d", c.MetadataFieldLimit))
	}
	if c.SendGridAPIKey != "" && c.SendGridFromEmail == "" {
		errs = append(errs, errors.New("SENDGRID_FROM_EMAIL is required when SENDGRID_API_KEY is set"))
	}
	return errors.Join(errs...)
}

// PublicConfig is the non-secret subset exposed to front-end callers.
type PublicConfig struct {
	MinLeads           int      `json:"min_leads"`
	MaxLeads           int      `json:"max_leads"`
	Currency           string   `json:"currency"`
	PricePerThousand   int64    `json:"price_per_thousand_cents"`
	MinChargeCents     int64    `json:"min_charge_cents"`
	MaxChargeCents     int64    `json:"max_charge_cents"`
	AllowedSearchHosts []string `json:"allowed_search_hosts"`
	NotifyTimeoutMS    int64    `json:"notify_timeout_ms"`
	ActorTimeoutMS     int64    `json:"actor_timeout_ms"`
}

// Public returns the values safe to serve from GET /config.
func (c Config) Public() PublicConfig {
	return PublicConfig{
		MinLeads:           c.MinLeads,
		MaxLeads:           c.MaxLeads,
		Currency:           c.Currency,
		PricePerThousand:   c.PricePerThousand,
		MinChargeCents:     c.MinChargeCents,
		MaxChargeCents:     c.MaxChargeCents,
		AllowedSearchHosts: c.AllowedSearchHosts,
		NotifyTimeoutMS:    c.NotifyTimeout.Milliseconds(),
		ActorTimeoutMS:     c.ActorTimeout.Milliseconds(),
	}
}

// PriceCents returns the charge for a lead count, rounded up to the next cent.
func (c Config) PriceCents(leads int) int64 {
	total := int64(leads) * c.PricePerThousand
	return (total + 999) / 1000
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}

func getEnvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func getEnvInt64(key string, def int64) int64 {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.ParseInt(v, 10, 64); err == nil {
			return i
		}
	}
	return def
}

func getEnvFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getEnvDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func getEnvList(key string, def []string) []string {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			if trimmed := strings.TrimSpace(p); trimmed != "" {
				out = append(out, trimmed)
			}
		}
		if len(out) > 0 {
			return out
		}
	}
	return def
}
