package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Addr != ":8080" {
		t.Fatalf("addr=%q", cfg.Server.Addr)
	}
	if cfg.Sampling.Workers != 8 || cfg.Sampling.DefaultWindowWidth != 256 {
		t.Fatalf("sampling=%+v", cfg.Sampling)
	}
	if cfg.Cache.Enabled || cfg.Kafka.Enabled {
		t.Fatalf("optional components must default to disabled")
	}
	if cfg.Kafka.Topic != "source-invalidation" {
		t.Fatalf("topic=%q", cfg.Kafka.Topic)
	}
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	doc := `
server:
  addr: ":9090"
  request_timeout: 45s
sampling:
  workers: 16
upstream:
  imagery_instance: my-instance
`
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(doc), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Addr != ":9090" || cfg.Server.RequestTimeout != 45*time.Second {
		t.Fatalf("server=%+v", cfg.Server)
	}
	if cfg.Sampling.Workers != 16 {
		t.Fatalf("workers=%d", cfg.Sampling.Workers)
	}
	if cfg.Upstream.ImageryInstance != "my-instance" {
		t.Fatalf("instance=%q", cfg.Upstream.ImageryInstance)
	}
	// untouched keys keep their defaults
	if cfg.Sampling.DefaultWindowWidth != 256 {
		t.Fatalf("window width=%d", cfg.Sampling.DefaultWindowWidth)
	}
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	doc := "server:\n  addr: \":9090\"\n"
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(doc), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	t.Setenv("CLASSIFICATION_SERVER__ADDR", ":7070")
	t.Setenv("CLASSIFICATION_LOGGING__LEVEL", "debug")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Addr != ":7070" {
		t.Fatalf("addr=%q want env override", cfg.Server.Addr)
	}
	if cfg.Logging.Level != "debug" {
		t.Fatalf("level=%q", cfg.Logging.Level)
	}
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty addr", func(c *Config) { c.Server.Addr = "" }},
		{"empty sources path", func(c *Config) { c.Sources.Path = "" }},
		{"zero workers", func(c *Config) { c.Sampling.Workers = 0 }},
		{"negative retries", func(c *Config) { c.Upstream.Retries = -1 }},
		{"cache without redis", func(c *Config) { c.Cache.Enabled = true }},
		{"kafka without brokers", func(c *Config) { c.Kafka.Enabled = true }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := defaults()
			tc.mutate(&cfg)
			if err := cfg.Validate(); err == nil {
				t.Fatalf("expected validation error")
			}
		})
	}

	if err := defaults().Validate(); err != nil {
		t.Fatalf("defaults must validate: %v", err)
	}
}
