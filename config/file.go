package config

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Load resolves the effective configuration: defaults, then the YAML document
// when one is named, then TELOXIDE_* environment overrides. An empty path
// falls back to the TELOXIDE_CONFIG environment variable; when neither names
// a file, the document layer is skipped.
func Load(ctx context.Context, path string) (Settings, error) {
	cfg := Default()

	path = strings.TrimSpace(path)
	if path == "" {
		path = strings.TrimSpace(os.Getenv("TELOXIDE_CONFIG"))
	}
	if path != "" {
		safePath := filepath.Clean(path)
		file, err := os.Open(safePath) // #nosec G304 -- configuration paths are controlled by operators.
		if err != nil {
			return Settings{}, fmt.Errorf("open config: %w", err)
		}
		defer func() { _ = file.Close() }()

		raw, err := io.ReadAll(file)
		if err != nil {
			return Settings{}, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return Settings{}, fmt.Errorf("unmarshal config: %w", err)
		}
	}

	cfg = applyEnv(cfg)
	if err := cfg.Validate(ctx); err != nil {
		return Settings{}, err
	}
	return cfg, nil
}

// Validate performs semantic validation on the configuration tree. Token
// presence is checked separately by components that need one, so listener-only
// deployments can validate without credentials.
func (s Settings) Validate(ctx context.Context) error {
	_ = ctx
	switch s.Environment {
	case EnvDev, EnvStaging, EnvProd:
	default:
		return fmt.Errorf("environment must be one of dev, staging, prod")
	}
	if strings.TrimSpace(s.Bot.APIEndpoint) == "" {
		return fmt.Errorf("bot api_endpoint required")
	}
	if s.Bot.HTTPTimeout <= 0 {
		return fmt.Errorf("bot http_timeout must be >0")
	}
	if s.Polling.WaitTimeout < 0 {
		return fmt.Errorf("polling wait_timeout must be >=0")
	}
	if s.Bot.HTTPTimeout <= s.Polling.WaitTimeout {
		return fmt.Errorf("bot http_timeout must exceed polling wait_timeout")
	}
	if s.Polling.InterCallDelay < 0 {
		return fmt.Errorf("polling inter_call_delay must be >=0")
	}
	if s.Polling.Limit < 0 || s.Polling.Limit > 100 {
		return fmt.Errorf("polling limit must be within 0..100")
	}
	if s.Polling.BackoffInitial <= 0 {
		return fmt.Errorf("polling backoff_initial must be >0")
	}
	if s.Polling.BackoffMax < s.Polling.BackoffInitial {
		return fmt.Errorf("polling backoff_max must be >= backoff_initial")
	}
	if s.Dispatcher.Workers < 0 {
		return fmt.Errorf("dispatcher workers must be >=0")
	}
	if s.RateLimit.RequestsPerSecond < 0 {
		return fmt.Errorf("rate_limit requests_per_second must be >=0")
	}
	if s.RateLimit.RequestsPerSecond > 0 && s.RateLimit.Burst <= 0 {
		return fmt.Errorf("rate_limit burst must be >0 when throttling is enabled")
	}
	if strings.TrimSpace(s.Telemetry.OTLPEndpoint) != "" && strings.TrimSpace(s.Telemetry.ServiceName) == "" {
		return fmt.Errorf("telemetry service_name required when otlp_endpoint is set")
	}
	return nil
}
