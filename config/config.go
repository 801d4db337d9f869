// Package config centralises runtime configuration for the bot framework.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Environment identifies the runtime environment the framework operates in.
type Environment string

const (
	// EnvDev marks the development environment.
	EnvDev Environment = "dev"
	// EnvStaging marks the staging environment.
	EnvStaging Environment = "staging"
	// EnvProd marks the production environment.
	EnvProd Environment = "prod"
)

// BotSettings configures access to the remote bot API.
type BotSettings struct {
	Token       string        `yaml:"token"`
	APIEndpoint string        `yaml:"api_endpoint"`
	HTTPTimeout time.Duration `yaml:"http_timeout"`
}

// PollingSettings tunes the long-polling update listener. All parameters are
// immutable for the lifetime of one listener instance.
type PollingSettings struct {
	// WaitTimeout is how long the remote may hold one fetch open waiting for
	// updates. Zero selects short polling.
	WaitTimeout time.Duration `yaml:"wait_timeout"`
	// InterCallDelay is the minimum spacing between consecutive fetches.
	InterCallDelay time.Duration `yaml:"inter_call_delay"`
	// Limit caps updates per batch; zero applies the remote default.
	Limit int `yaml:"limit"`
	// AllowedUpdates is the advisory kind filter sent on the first fetch.
	AllowedUpdates []string `yaml:"allowed_updates"`
	// BackoffInitial seeds the retry delay after a recoverable failure.
	BackoffInitial time.Duration `yaml:"backoff_initial"`
	// BackoffMax caps the retry delay growth.
	BackoffMax time.Duration `yaml:"backoff_max"`
}

// DispatcherSettings tunes handler execution.
type DispatcherSettings struct {
	// Workers bounds concurrent handler goroutines; zero means GOMAXPROCS.
	Workers int `yaml:"workers"`
}

// RateLimitSettings throttles outgoing bot API calls.
type RateLimitSettings struct {
	// RequestsPerSecond of zero disables client-side throttling.
	RequestsPerSecond float64 `yaml:"requests_per_second"`
	Burst             int     `yaml:"burst"`
}

// TelemetrySettings configures metrics export.
type TelemetrySettings struct {
	// OTLPEndpoint empty leaves telemetry on noop providers.
	OTLPEndpoint string `yaml:"otlp_endpoint"`
	ServiceName  string `yaml:"service_name"`
}

// Settings is the framework configuration tree loaded from defaults plus
// overrides.
type Settings struct {
	Environment Environment        `yaml:"environment"`
	Bot         BotSettings        `yaml:"bot"`
	Polling     PollingSettings    `yaml:"polling"`
	Dispatcher  DispatcherSettings `yaml:"dispatcher"`
	RateLimit   RateLimitSettings  `yaml:"rate_limit"`
	Telemetry   TelemetrySettings  `yaml:"telemetry"`
}

// Default returns the default framework configuration.
func Default() Settings {
	return Settings{
		Environment: EnvProd,
		Bot: BotSettings{
			Token:       "",
			APIEndpoint: "https://api.telegram.org",
			HTTPTimeout: 30 * time.Second,
		},
		Polling: PollingSettings{
			WaitTimeout:    10 * time.Second,
			InterCallDelay: 0,
			Limit:          100,
			AllowedUpdates: nil,
			BackoffInitial: 1 * time.Second,
			BackoffMax:     30 * time.Second,
		},
		Dispatcher: DispatcherSettings{
			Workers: 0,
		},
		RateLimit: RateLimitSettings{
			RequestsPerSecond: 30,
			Burst:             5,
		},
		Telemetry: TelemetrySettings{
			OTLPEndpoint: "",
			ServiceName:  "teloxide-bot",
		},
	}
}

// FromEnv loads configuration values from environment variables, overriding
// defaults.
func FromEnv() Settings {
	return applyEnv(Default())
}

func applyEnv(cfg Settings) Settings {
	if env := strings.TrimSpace(os.Getenv("TELOXIDE_ENV")); env != "" {
		cfg.Environment = Environment(strings.ToLower(env))
	}
	if v := strings.TrimSpace(os.Getenv("TELOXIDE_TOKEN")); v != "" {
		cfg.Bot.Token = v
	}
	if v := strings.TrimSpace(os.Getenv("TELOXIDE_API_URL")); v != "" {
		cfg.Bot.APIEndpoint = v
	}
	if v := strings.TrimSpace(os.Getenv("TELOXIDE_HTTP_TIMEOUT")); v != "" {
		if dur, err := time.ParseDuration(v); err == nil {
			cfg.Bot.HTTPTimeout = dur
		}
	}
	if v := strings.TrimSpace(os.Getenv("TELOXIDE_POLL_WAIT_TIMEOUT")); v != "" {
		if dur, err := time.ParseDuration(v); err == nil && dur >= 0 {
			cfg.Polling.WaitTimeout = dur
		}
	}
	if v := strings.TrimSpace(os.Getenv("TELOXIDE_POLL_LIMIT")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			cfg.Polling.Limit = n
		}
	}
	if v := strings.TrimSpace(os.Getenv("TELOXIDE_ALLOWED_UPDATES")); v != "" {
		cfg.Polling.AllowedUpdates = splitList(v)
	}
	if v := strings.TrimSpace(os.Getenv("TELOXIDE_DISPATCH_WORKERS")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			cfg.Dispatcher.Workers = n
		}
	}
	if v := strings.TrimSpace(os.Getenv("TELOXIDE_OTLP_ENDPOINT")); v != "" {
		cfg.Telemetry.OTLPEndpoint = v
	}
	if v := strings.TrimSpace(os.Getenv("TELOXIDE_SERVICE_NAME")); v != "" {
		cfg.Telemetry.ServiceName = v
	}
	return cfg
}

func splitList(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// Option mutates Settings when applied via Apply.
type Option func(*Settings)

// Apply applies the provided Option set to a copy of the base Settings.
func Apply(base Settings, opts ...Option) Settings {
	cfg := base.clone()
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	return cfg
}

// WithEnvironment configures the top-level environment.
func WithEnvironment(env Environment) Option {
	return func(s *Settings) {
		if env != "" {
			s.Environment = env
		}
	}
}

// WithToken sets the bot API token.
func WithToken(token string) Option {
	token = strings.TrimSpace(token)
	return func(s *Settings) {
		if token != "" {
			s.Bot.Token = token
		}
	}
}

// WithAPIEndpoint overrides the bot API base URL.
func WithAPIEndpoint(endpoint string) Option {
	endpoint = strings.TrimSpace(endpoint)
	return func(s *Settings) {
		if endpoint != "" {
			s.Bot.APIEndpoint = endpoint
		}
	}
}

// WithHTTPTimeout overrides the outer HTTP client timeout.
func WithHTTPTimeout(timeout time.Duration) Option {
	return func(s *Settings) {
		if timeout > 0 {
			s.Bot.HTTPTimeout = timeout
		}
	}
}

// WithPollingWaitTimeout sets the long-poll hold; zero selects short polling.
func WithPollingWaitTimeout(timeout time.Duration) Option {
	return func(s *Settings) {
		if timeout >= 0 {
			s.Polling.WaitTimeout = timeout
		}
	}
}

// WithPollingInterCallDelay sets the minimum spacing between fetches.
func WithPollingInterCallDelay(delay time.Duration) Option {
	return func(s *Settings) {
		if delay >= 0 {
			s.Polling.InterCallDelay = delay
		}
	}
}

// WithPollingLimit caps updates per batch.
func WithPollingLimit(limit int) Option {
	return func(s *Settings) {
		if limit >= 0 {
			s.Polling.Limit = limit
		}
	}
}

// WithAllowedUpdates sets the advisory update-kind filter.
func WithAllowedUpdates(kinds ...string) Option {
	cleaned := make([]string, 0, len(kinds))
	for _, k := range kinds {
		if trimmed := strings.TrimSpace(k); trimmed != "" {
			cleaned = append(cleaned, trimmed)
		}
	}
	return func(s *Settings) {
		s.Polling.AllowedUpdates = append([]string(nil), cleaned...)
	}
}

// WithBackoff configures the retry delay range for recoverable failures.
func WithBackoff(initial, max time.Duration) Option {
	return func(s *Settings) {
		if initial > 0 {
			s.Polling.BackoffInitial = initial
		}
		if max > 0 {
			s.Polling.BackoffMax = max
		}
	}
}

// WithDispatchWorkers bounds concurrent handler goroutines.
func WithDispatchWorkers(workers int) Option {
	return func(s *Settings) {
		if workers >= 0 {
			s.Dispatcher.Workers = workers
		}
	}
}

// WithRateLimit throttles outgoing bot API calls.
func WithRateLimit(requestsPerSecond float64, burst int) Option {
	return func(s *Settings) {
		if requestsPerSecond >= 0 {
			s.RateLimit.RequestsPerSecond = requestsPerSecond
		}
		if burst >= 0 {
			s.RateLimit.Burst = burst
		}
	}
}

// WithOTLPEndpoint enables metrics export to the given collector endpoint.
func WithOTLPEndpoint(endpoint string) Option {
	endpoint = strings.TrimSpace(endpoint)
	return func(s *Settings) {
		s.Telemetry.OTLPEndpoint = endpoint
	}
}

func (s Settings) clone() Settings {
	clone := s
	clone.Polling.AllowedUpdates = append([]string(nil), s.Polling.AllowedUpdates...)
	return clone
}
