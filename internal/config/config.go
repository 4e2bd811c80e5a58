package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

// ErrConfiguration marks settings that are unset or still placeholders. It
// is not retryable; the deployment has to be fixed.
var ErrConfiguration = errors.New("configuration error")

type Config struct {
	SpreadsheetID    string `toml:"spreadsheet_id"`
	CredentialsPath  string `toml:"credentials_path"`
	TokenPath        string `toml:"token_path"`
	OAuthRedirectURL string `toml:"oauth_redirect_url"`
	DataDir          string `toml:"data_dir"`
	LogFile          string `toml:"log_file"`
	ListenAddr       string `toml:"listen_addr"`
	MetricsEnabled   bool   `toml:"metrics_enabled"`
	AnthropicAPIKey  string `toml:"anthropic_api_key"`
	InsightModel     string `toml:"insight_model"`
	ExportDir        string `toml:"export_dir"`
}

func Default() *Config {
	return &Config{
		CredentialsPath:  ".local/credentials.json",
		TokenPath:        ".local/token.json",
		OAuthRedirectURL: "http://localhost:8080/callback",
		DataDir:          ".local",
		ListenAddr:       "127.0.0.1:8090",
		InsightModel:     "claude-sonnet-4-5",
		ExportDir:        ".",
	}
}

// Load reads the configuration and validates it.
func Load() (*Config, error) {
	cfg, err := Read()
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Read builds the configuration from defaults, the optional TOML file named
// by TIMESHEET_CONFIG (or .local/config.toml), then environment variables.
// Required fields are not checked.
func Read() (*Config, error) {
	cfg := Default()

	path := os.Getenv("TIMESHEET_CONFIG")
	if path == "" {
		path = filepath.Join(".local", "config.toml")
	}
	if err := cfg.mergeFile(path); err != nil {
		return nil, err
	}

	cfg.mergeEnv()
	return cfg, nil
}

func (c *Config) mergeFile(path string) error {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("unable to read config file %s: %w", path, err)
	}
	if err := toml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("unable to parse config file %s: %w", path, err)
	}
	return nil
}

func (c *Config) mergeEnv() {
	setString := func(dst *string, key string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	setString(&c.SpreadsheetID, "TIMESHEET_SPREADSHEET_ID")
	setString(&c.CredentialsPath, "TIMESHEET_CREDENTIALS_PATH")
	setString(&c.TokenPath, "TIMESHEET_TOKEN_PATH")
	setString(&c.OAuthRedirectURL, "TIMESHEET_OAUTH_REDIRECT_URL")
	setString(&c.DataDir, "TIMESHEET_DATA_DIR")
	setString(&c.LogFile, "TIMESHEET_LOG_FILE")
	setString(&c.ListenAddr, "TIMESHEET_LISTEN_ADDR")
	setString(&c.AnthropicAPIKey, "ANTHROPIC_API_KEY")
	setString(&c.InsightModel, "TIMESHEET_INSIGHT_MODEL")
	setString(&c.ExportDir, "TIMESHEET_EXPORT_DIR")

	if v := os.Getenv("TIMESHEET_METRICS_ENABLED"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.MetricsEnabled = b
		}
	}
}

// Validate checks the required fields.
func (c *Config) Validate() error {
	if IsPlaceholder(c.SpreadsheetID) {
		return fmt.Errorf("%w: TIMESHEET_SPREADSHEET_ID is required. Please set it in .envrc and run 'direnv allow'", ErrConfiguration)
	}
	return nil
}

// IsPlaceholder reports whether v is unset or still holds a template value
// such as YOUR_GOOGLE_CLIENT_ID.
func IsPlaceholder(v string) bool {
	v = strings.TrimSpace(v)
	return v == "" || strings.Contains(strings.ToUpper(v), "YOUR_")
}
