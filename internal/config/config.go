package config

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"marketing-copilot/internal/integrations/gemini"
)

const (
	defaultPort        = "8080"
	defaultHTTPTimeout = 60 * time.Second
	defaultIdleTTL     = 2 * time.Hour
	defaultArchiveTTL  = 30 * 24 * time.Hour

	paramModel    = "config/gemini_model"
	paramPreamble = "config/instruction_preamble"
)

// Config aggregates the service settings.
type Config struct {
	Server   ServerConfig
	Gemini   GeminiConfig
	Sessions SessionsConfig
	Archive  ArchiveConfig

	// ParamPrefix enables SSM overrides when set.
	ParamPrefix string
}

// ServerConfig describes the HTTP listener.
type ServerConfig struct {
	Addr string
}

// GeminiConfig describes the generative model endpoint.
type GeminiConfig struct {
	BaseURL string
	Model   string
	Timeout time.Duration
}

// SessionsConfig describes the in-memory session registry.
type SessionsConfig struct {
	IdleTTL time.Duration
	// Preamble replaces the built-in instruction preamble when non-empty.
	Preamble string
}

// ArchiveConfig describes the optional DynamoDB transcript archive.
type ArchiveConfig struct {
	Table string
	TTL   time.Duration
}

// Enabled reports whether transcripts should be archived.
func (a ArchiveConfig) Enabled() bool { return a.Table != "" }

// NeedsAWS reports whether any AWS-backed component is configured.
func (c *Config) NeedsAWS() bool {
	return c.ParamPrefix != "" || c.Archive.Enabled()
}

// Load reads the configuration from environment variables.
func Load() (*Config, error) {
	server, err := loadServerConfig()
	if err != nil {
		return nil, err
	}

	timeout, err := parseDurationEnv("GEMINI_HTTP_TIMEOUT", defaultHTTPTimeout)
	if err != nil {
		return nil, err
	}
	idleTTL, err := parseDurationEnv("SESSION_IDLE_TTL", defaultIdleTTL)
	if err != nil {
		return nil, err
	}
	archiveTTL, err := parseDurationEnv("ARCHIVE_TTL", defaultArchiveTTL)
	if err != nil {
		return nil, err
	}

	return &Config{
		Server: server,
		Gemini: GeminiConfig{
			BaseURL: getEnvOrDefault("GEMINI_BASE_URL", gemini.DefaultBaseURL),
			Model:   getEnvOrDefault("GEMINI_MODEL", gemini.DefaultModel),
			Timeout: timeout,
		},
		Sessions: SessionsConfig{IdleTTL: idleTTL},
		Archive: ArchiveConfig{
			Table: strings.TrimSpace(os.Getenv("ARCHIVE_TABLE")),
			TTL:   archiveTTL,
		},
		ParamPrefix: strings.TrimSpace(os.Getenv("PARAM_PREFIX")),
	}, nil
}

// ParameterGetter looks up a parameter below the configured prefix.
// *paramstore.Client satisfies this interface.
type ParameterGetter interface {
	GetOptionalParameter(ctx context.Context, name string) (string, bool, error)
}

// ApplyOverrides replaces the model and instruction preamble with the values
// stored in Parameter Store, when present.
func (c *Config) ApplyOverrides(ctx context.Context, params ParameterGetter) error {
	if params == nil {
		return nil
	}

	model, found, err := params.GetOptionalParameter(ctx, paramModel)
	if err != nil {
		return fmt.Errorf("config: load model override: %w", err)
	}
	if found && strings.TrimSpace(model) != "" {
		c.Gemini.Model = strings.TrimSpace(model)
	}

	preamble, found, err := params.GetOptionalParameter(ctx, paramPreamble)
	if err != nil {
		return fmt.Errorf("config: load preamble override: %w", err)
	}
	if found && strings.TrimSpace(preamble) != "" {
		c.Sessions.Preamble = preamble
	}
	return nil
}

func loadServerConfig() (ServerConfig, error) {
	port := strings.TrimSpace(os.Getenv("PORT"))
	if port == "" {
		port = defaultPort
	}

	// ":8080" and "127.0.0.1:8080" are accepted as-is.
	if strings.Contains(port, ":") {
		return ServerConfig{Addr: port}, nil
	}
	if strings.Contains(port, " ") {
		return ServerConfig{}, fmt.Errorf("config: invalid PORT value: %q", port)
	}
	return ServerConfig{Addr: ":" + port}, nil
}

func getEnvOrDefault(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func parseDurationEnv(key string, def time.Duration) (time.Duration, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("config: invalid %s value %q: %w", key, raw, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("config: %s must be positive, got %q", key, raw)
	}
	return d, nil
}
