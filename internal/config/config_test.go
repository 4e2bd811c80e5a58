package config_test

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/digitaldrywood/timesheet/internal/config"
)

func TestLoadRequiresSpreadsheetID(t *testing.T) {
	t.Setenv("TIMESHEET_CONFIG", filepath.Join(t.TempDir(), "missing.toml"))
	t.Setenv("TIMESHEET_SPREADSHEET_ID", "")

	_, err := config.Load()
	if !errors.Is(err, config.ErrConfiguration) {
		t.Fatalf("Load() error = %v, want ErrConfiguration", err)
	}
}

func TestLoadRejectsPlaceholder(t *testing.T) {
	t.Setenv("TIMESHEET_CONFIG", filepath.Join(t.TempDir(), "missing.toml"))
	t.Setenv("TIMESHEET_SPREADSHEET_ID", "YOUR_SPREADSHEET_ID")

	if _, err := config.Load(); !errors.Is(err, config.ErrConfiguration) {
		t.Fatalf("Load() error = %v, want ErrConfiguration", err)
	}
}

func TestReadSkipsValidation(t *testing.T) {
	t.Setenv("TIMESHEET_CONFIG", filepath.Join(t.TempDir(), "missing.toml"))
	t.Setenv("TIMESHEET_SPREADSHEET_ID", "")

	cfg, err := config.Read()
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if cfg.TokenPath != ".local/token.json" {
		t.Errorf("TokenPath = %q, want default", cfg.TokenPath)
	}
	if err := cfg.Validate(); !errors.Is(err, config.ErrConfiguration) {
		t.Errorf("Validate() = %v, want ErrConfiguration", err)
	}
}

func TestLoadFileThenEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	content := `
spreadsheet_id = "from-file"
data_dir = "/var/lib/timesheet"
metrics_enabled = true
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("TIMESHEET_CONFIG", path)
	t.Setenv("TIMESHEET_SPREADSHEET_ID", "from-env")
	t.Setenv("TIMESHEET_METRICS_ENABLED", "")

	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.SpreadsheetID != "from-env" {
		t.Errorf("SpreadsheetID = %q, want env value", cfg.SpreadsheetID)
	}
	if cfg.DataDir != "/var/lib/timesheet" {
		t.Errorf("DataDir = %q, want file value", cfg.DataDir)
	}
	if !cfg.MetricsEnabled {
		t.Error("MetricsEnabled = false, want true from file")
	}
	if cfg.TokenPath != ".local/token.json" {
		t.Errorf("TokenPath = %q, want default", cfg.TokenPath)
	}
}

func TestIsPlaceholder(t *testing.T) {
	tests := []struct {
		in   string
		want bool
	}{
		{"", true},
		{"   ", true},
		{"YOUR_GOOGLE_CLIENT_ID", true},
		{"123-abc.apps.googleusercontent.com", false},
	}
	for _, tt := range tests {
		if got := config.IsPlaceholder(tt.in); got != tt.want {
			t.Errorf("IsPlaceholder(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
