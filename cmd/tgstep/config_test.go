package main

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	body := `models_dir: /srv/models
num_shard: 2
max_new_tokens: 256
log_level: debug
json_output: true
server_address: 0.0.0.0:3000
`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := loadConfigFile(path)
	if err != nil {
		t.Fatalf("loadConfigFile returned error: %v", err)
	}
	if cfg.ModelsDir != "/srv/models" || cfg.ServerAddress != "0.0.0.0:3000" || cfg.LogLevel != "debug" {
		t.Fatalf("unexpected config: %+v", cfg)
	}
	if cfg.NumShard == nil || *cfg.NumShard != 2 {
		t.Fatalf("expected num_shard 2, got %v", cfg.NumShard)
	}
	if cfg.MaxNewTokens == nil || *cfg.MaxNewTokens != 256 {
		t.Fatalf("expected max_new_tokens 256, got %v", cfg.MaxNewTokens)
	}
	if cfg.JSONOutput == nil || !*cfg.JSONOutput {
		t.Fatalf("expected json_output true, got %v", cfg.JSONOutput)
	}
	if cfg.Threads != nil {
		t.Fatalf("threads should stay unset, got %d", *cfg.Threads)
	}
}

func TestLoadConfigFileErrors(t *testing.T) {
	if _, err := loadConfigFile(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected error for a missing file")
	}
	path := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(path, []byte("num_shard: [1, 2"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, err := loadConfigFile(path); err == nil {
		t.Fatal("expected error for malformed yaml")
	}
}
