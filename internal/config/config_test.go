package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	if cfg.Backend.BaseURL != DefaultBaseURL || cfg.Backend.Timeout != 10*time.Second {
		t.Fatalf("unexpected backend defaults: %+v", cfg.Backend)
	}
	if cfg.Chat.Retention != 5 || cfg.Chat.Store != StoreSQLite {
		t.Fatalf("unexpected chat defaults: %+v", cfg.Chat)
	}
	if len(cfg.Upload.ContentTypes) != 1 || cfg.Upload.ContentTypes[0] != "application/pdf" {
		t.Fatalf("unexpected upload defaults: %+v", cfg.Upload)
	}
}

func TestFromYAMLOverlaysDefaults(t *testing.T) {
	cfg, err := FromYAML([]byte("backend:\n  base_url: https://contracts.example.com\nchat:\n  retention: 8\n"))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if cfg.Backend.BaseURL != "https://contracts.example.com" || cfg.Chat.Retention != 8 {
		t.Fatalf("overrides not applied: %+v", cfg)
	}
	if cfg.Backend.UploadTimeout != 2*time.Minute || cfg.Cache.Size != 128 {
		t.Fatalf("defaults lost: %+v", cfg)
	}
}

func TestValidateRejects(t *testing.T) {
	cases := map[string]string{
		"scheme":         "backend:\n  base_url: ftp://host\n",
		"upload timeout": "backend:\n  timeout: 30s\n  upload_timeout: 10s\n",
		"retention":      "chat:\n  retention: 0\n",
		"store":          "chat:\n  store: memcached\n",
		"redis url":      "chat:\n  store: redis\n",
		"content type":   "upload:\n  content_types: [pdf]\n",
		"log level":      "log:\n  level: verbose\n",
		"base path":      "server:\n  base_path: api\n",
	}
	for name, doc := range cases {
		if _, err := FromYAML([]byte(doc)); err == nil {
			t.Fatalf("%s: expected validation error", name)
		}
	}
	if _, err := FromYAML([]byte("backend: [")); err == nil || !strings.Contains(err.Error(), "invalid config yaml") {
		t.Fatalf("expected yaml error, got %v", err)
	}
}

func TestLoadWorkspace(t *testing.T) {
	dir := t.TempDir()
	if _, err := Load(dir); err == nil {
		t.Fatalf("expected missing config error")
	}
	cfg, err := LoadOptional(dir)
	if err != nil || cfg != nil {
		t.Fatalf("LoadOptional on empty workspace: %v %v", cfg, err)
	}
	cfg, err = LoadOrDefault(dir)
	if err != nil || cfg == nil {
		t.Fatalf("LoadOrDefault: %v", err)
	}

	if err := os.WriteFile(filepath.Join(dir, "pactline.yml"), []byte(GenerateDefault("https://api.example.com")), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err = Load(dir)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Backend.BaseURL != "https://api.example.com" {
		t.Fatalf("unexpected base url %q", cfg.Backend.BaseURL)
	}
}
