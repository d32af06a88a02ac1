package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Server.Port != 8787 {
		t.Errorf("default port = %d, want 8787", cfg.Server.Port)
	}
	if cfg.AI.Provider != "gemini" {
		t.Errorf("default provider = %q, want gemini", cfg.AI.Provider)
	}
	if cfg.Log.Level != "info" {
		t.Errorf("default log level = %q, want info", cfg.Log.Level)
	}
}

func TestLoadConfigFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "meetgraph.toml")
	content := `
[server]
port = 9999

[database]
url = "postgres://localhost/test"

[ai]
provider = "ollama"
base_url = "http://localhost:11434"
model = "llama3"
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Server.Port != 9999 {
		t.Errorf("port = %d, want 9999", cfg.Server.Port)
	}
	if cfg.AI.Provider != "ollama" || cfg.AI.Model != "llama3" {
		t.Errorf("unexpected AI config %+v", cfg.AI)
	}
	if cfg.Database.URL != "postgres://localhost/test" {
		t.Errorf("unexpected database url %q", cfg.Database.URL)
	}
}

func TestLoadConfigEnvOverride(t *testing.T) {
	t.Setenv("MEETGRAPH_SERVER__PORT", "7001")
	t.Setenv("MEETGRAPH_AI__API_KEY", "env-key")

	cfg, err := LoadConfig("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Server.Port != 7001 {
		t.Errorf("port = %d, want 7001 from env", cfg.Server.Port)
	}
	if cfg.AI.APIKey != "env-key" {
		t.Errorf("api key = %q, want env-key", cfg.AI.APIKey)
	}
}

func TestInitConfigRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "meetgraph.toml")

	if err := InitConfig(path); err != nil {
		t.Fatalf("InitConfig: %v", err)
	}
	if err := InitConfig(path); err == nil {
		t.Error("expected an error when the file already exists")
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig of sample: %v", err)
	}
	if err := Validate(cfg); err != nil {
		t.Errorf("sample config should validate: %v", err)
	}
}

func TestValidate(t *testing.T) {
	var cfg Config
	if err := Validate(&cfg); err == nil {
		t.Error("expected missing database url to fail")
	}

	cfg.Database.URL = "postgres://localhost/x"
	cfg.AI.Provider = "gemini"
	if err := Validate(&cfg); err == nil {
		t.Error("expected missing api key to fail for gemini")
	}

	cfg.AI.APIKey = "k"
	if err := Validate(&cfg); err != nil {
		t.Errorf("unexpected error: %v", err)
	}

	cfg.AI.Provider = "ollama"
	cfg.AI.APIKey = ""
	if err := Validate(&cfg); err != nil {
		t.Errorf("ollama should not require a key: %v", err)
	}

	cfg.AI.Provider = "watson"
	if err := Validate(&cfg); err == nil {
		t.Error("expected unknown provider to fail")
	}
}
