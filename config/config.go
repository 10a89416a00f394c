package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration.
type Config struct {
	Server     ServerConfig
	Static     StaticConfig
	Renderer   RendererConfig
	Provider   ProviderConfig
	Classifier ClassifierConfig
	Auth       AuthConfig
	RateLimit  RateLimitConfig
	Output     OutputConfig
	Webhook    WebhookConfig
	Log        LogConfig
}

// ServerConfig controls the HTTP server.
type ServerConfig struct {
	Host string // default: "0.0.0.0"
	Port int    // default: 8000
	Mode string // "debug", "release", "test"; default: "release"

	// MaxURLsPerRequest caps batch size accepted by the API.
	MaxURLsPerRequest int // default: 10000

	// CORSOrigins is the allowed origin list; ["*"] allows any origin.
	CORSOrigins []string
}

// StaticConfig controls the phase-1 static/XHR fetcher.
type StaticConfig struct {
	// Concurrency is the maximum number of in-flight requests.
	Concurrency int // default: 100

	// Timeout is the per-request deadline.
	Timeout time.Duration // default: 30s
}

// RendererConfig controls the phase-2 JS rendering endpoint pool.
type RendererConfig struct {
	// Endpoints is the ordered list of rendering service hostnames.
	Endpoints []string

	// BatchSize is the number of URLs sent per request to one endpoint.
	BatchSize int // default: 20

	// Cooldown is the mandatory sleep between consecutive sub-batches
	// on the same endpoint.
	Cooldown time.Duration // default: 120s

	// Timeout is the per-sub-batch deadline.
	Timeout time.Duration // default: 300s

	// MaxRetries is the number of rendering rounds before residual URLs
	// are handed to the provider tier.
	MaxRetries int // default: 10

	// SkipDomains lists hostnames (and their subdomains) that bypass the
	// renderer tier entirely and go straight to the provider.
	SkipDomains []string
}

// ProviderConfig controls the phase-3 Decodo scraper API fallback.
type ProviderConfig struct {
	Enabled bool // default: true

	// Username/Password authenticate against the scraper API.
	// AuthToken, when set, is a pre-encoded Basic token and wins over
	// the username/password pair.
	Username  string
	Password  string
	AuthToken string

	// SubmitEndpoint receives the batch task submission.
	SubmitEndpoint string // default: https://scraper-api.decodo.com/v2/task/batch

	// ResultsEndpoint is the base for GET <base>/<task_id>/results.
	ResultsEndpoint string // default: https://scraper-api.decodo.com/v2/task

	Target     string // default: "universal"
	DeviceType string // default: "desktop"
	Geo        string
	Locale     string

	// Timeout is the overall per-task deadline including polling.
	Timeout time.Duration // default: 180s

	// MaxConcurrent bounds concurrent result polls.
	MaxConcurrent int // default: 50

	// PollInterval is the base delay between result polls.
	PollInterval time.Duration // default: 2s

	// MaxPollAttempts bounds polls per task.
	MaxPollAttempts int // default: 30
}

// ClassifierConfig holds the skeleton-detection thresholds.
type ClassifierConfig struct {
	MinContentLength      int     // default: 1000 bytes
	MinTextLength         int     // default: 200 chars
	MinMeaningfulElements int     // default: 5
	TextToMarkupRatio     float64 // default: 0.001

	// WhitelistDomains bypass the renderer-tier skeleton verdict.
	WhitelistDomains []string
}

// AuthConfig controls API key authentication.
type AuthConfig struct {
	// Enabled toggles API key authentication.
	Enabled bool // default: false

	// APIKeys is the list of valid API keys.
	APIKeys []string
}

// RateLimitConfig controls per-key rate limiting.
type RateLimitConfig struct {
	// RequestsPerSecond is the sustained rate per API key.
	RequestsPerSecond float64 // default: 5

	// Burst is the maximum burst size per API key.
	Burst int // default: 10
}

// OutputConfig controls the optional HTML file sink.
type OutputConfig struct {
	// SaveOutputs toggles writing successful HTML bodies to disk.
	SaveOutputs bool // default: false

	// Dir is the sink directory.
	Dir string // default: "outputs"
}

// WebhookConfig controls batch completion notifications.
type WebhookConfig struct {
	// URL receives a batch.completed event after each batch. Empty disables.
	URL string

	// Secret signs the payload with HMAC-SHA256 when non-empty.
	Secret string
}

// LogConfig controls structured logging.
type LogConfig struct {
	Level  string // default: "info"
	Format string // "json" or "text"; default: "json"
}

// defaultSkipDomains bypass the renderer tier: their client-rendered pages
// consistently defeat the rendering fleet and only the provider gets through.
var defaultSkipDomains = []string{
	"jiomart.com",
	"lotuselectronics.com",
	"croma.com",
	"adidas.co.in",
}

// Load reads configuration from environment variables with sane defaults.
func Load() *Config {
	return &Config{
		Server: ServerConfig{
			Host:              envOr("API_HOST", "0.0.0.0"),
			Port:              envIntOr("API_PORT", 8000),
			Mode:              envOr("API_MODE", "release"),
			MaxURLsPerRequest: envIntOr("MAX_URLS_PER_REQUEST", 10000),
			CORSOrigins:       envSliceOr("CORS_ORIGINS", []string{"*"}),
		},
		Static: StaticConfig{
			Concurrency: envIntOr("STATIC_XHR_CONCURRENCY", 100),
			Timeout:     envDurationOr("STATIC_XHR_TIMEOUT", 30*time.Second),
		},
		Renderer: RendererConfig{
			Endpoints:   envSliceOr("CUSTOM_JS_SERVICES", nil),
			BatchSize:   envIntOr("CUSTOM_JS_BATCH_SIZE", 20),
			Cooldown:    envDurationOr("CUSTOM_JS_COOLDOWN", 120*time.Second),
			Timeout:     envDurationOr("CUSTOM_JS_TIMEOUT", 300*time.Second),
			MaxRetries:  envIntOr("CUSTOM_JS_MAX_RETRIES", 10),
			SkipDomains: envSliceOr("CUSTOM_JS_SKIP_DOMAINS", defaultSkipDomains),
		},
		Provider: ProviderConfig{
			Enabled:         envBoolOr("DECODO_ENABLED", true),
			Username:        os.Getenv("DECODO_USERNAME"),
			Password:        os.Getenv("DECODO_PASSWORD"),
			AuthToken:       os.Getenv("DECODO_AUTH_TOKEN"),
			SubmitEndpoint:  envOr("DECODO_API_ENDPOINT", "https://scraper-api.decodo.com/v2/task/batch"),
			ResultsEndpoint: envOr("DECODO_RESULTS_ENDPOINT", "https://scraper-api.decodo.com/v2/task"),
			Target:          envOr("DECODO_TARGET", "universal"),
			DeviceType:      envOr("DECODO_DEVICE_TYPE", "desktop"),
			Geo:             os.Getenv("DECODO_GEO"),
			Locale:          os.Getenv("DECODO_LOCALE"),
			Timeout:         envDurationOr("DECODO_TIMEOUT", 180*time.Second),
			MaxConcurrent:   envIntOr("DECODO_MAX_CONCURRENT", 50),
			PollInterval:    envDurationOr("DECODO_POLL_INTERVAL", 2*time.Second),
			MaxPollAttempts: envIntOr("DECODO_MAX_POLL_ATTEMPTS", 30),
		},
		Classifier: ClassifierConfig{
			MinContentLength:      envIntOr("MIN_CONTENT_LENGTH", 1000),
			MinTextLength:         envIntOr("MIN_TEXT_LENGTH", 200),
			MinMeaningfulElements: envIntOr("MIN_MEANINGFUL_ELEMENTS", 5),
			TextToMarkupRatio:     envFloatOr("TEXT_TO_MARKUP_RATIO", 0.001),
			WhitelistDomains:      envSliceOr("CLASSIFIER_WHITELIST_DOMAINS", nil),
		},
		Auth: AuthConfig{
			Enabled: envBoolOr("API_AUTH_ENABLED", false),
			APIKeys: envSliceOr("API_KEYS", nil),
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: envFloatOr("API_RATE_RPS", 5.0),
			Burst:             envIntOr("API_RATE_BURST", 10),
		},
		Output: OutputConfig{
			SaveOutputs: envBoolOr("SAVE_OUTPUTS", false),
			Dir:         envOr("OUTPUT_DIR", "outputs"),
		},
		Webhook: WebhookConfig{
			URL:    os.Getenv("WEBHOOK_URL"),
			Secret: os.Getenv("WEBHOOK_SECRET"),
		},
		Log: LogConfig{
			Level:  envOr("LOG_LEVEL", "info"),
			Format: envOr("LOG_FORMAT", "json"),
		},
	}
}

// --- helper functions ---

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envIntOr(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func envBoolOr(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func envFloatOr(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

// envDurationOr accepts Go duration strings ("30s") or bare second counts
// ("30"), matching how the service was historically deployed.
func envDurationOr(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
		if secs, err := strconv.Atoi(v); err == nil {
			return time.Duration(secs) * time.Second
		}
	}
	return fallback
}

func envSliceOr(key string, fallback []string) []string {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		result := make([]string, 0, len(parts))
		for _, p := range parts {
			if trimmed := strings.TrimSpace(p); trimmed != "" {
				result = append(result, trimmed)
			}
		}
		return result
	}
	return fallback
}
