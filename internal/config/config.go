// Package config loads service configuration by layering defaults, an
// optional YAML file and environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

type ServerConfig struct {
	Addr           string        `koanf:"addr"`
	RequestTimeout time.Duration `koanf:"request_timeout"`
}

type LoggingConfig struct {
	Level   string `koanf:"level"`
	Console bool   `koanf:"console"`
}

type SourcesConfig struct {
	Path string `koanf:"path"`
	// Recognized is the global sampling parameter set sources may declare
	// subsets of.
	Recognized []string `koanf:"recognized_params"`
}

type SamplingConfig struct {
	Workers             int     `koanf:"workers"`
	DefaultResolution   float64 `koanf:"default_resolution"`
	DefaultWindowWidth  int     `koanf:"default_window_width"`
	DefaultWindowHeight int     `koanf:"default_window_height"`
	DefaultBuffer       int     `koanf:"default_buffer"`
}

type UpstreamConfig struct {
	// ImageryURL is a template containing an {instance} placeholder.
	ImageryURL      string        `koanf:"imagery_url"`
	ImageryInstance string        `koanf:"imagery_instance"`
	GeopediaURL     string        `koanf:"geopedia_url"`
	Retries         int           `koanf:"retries"`
	RetryInterval   time.Duration `koanf:"retry_interval"`
	RateLimit       float64       `koanf:"rate_limit"`
	RateBurst       int           `koanf:"rate_burst"`
	Timeout         time.Duration `koanf:"timeout"`
}

type CacheConfig struct {
	Enabled   bool          `koanf:"enabled"`
	RedisAddr string        `koanf:"redis_addr"`
	TTL       time.Duration `koanf:"ttl"`
	OpTimeout time.Duration `koanf:"op_timeout"`
	LRUSize   int           `koanf:"lru_size"`
	// IndexRes is the H3 resolution of the tile invalidation index.
	IndexRes int `koanf:"index_res"`
}

type KafkaConfig struct {
	Enabled bool     `koanf:"enabled"`
	Brokers []string `koanf:"brokers"`
	Topic   string   `koanf:"topic"`
	GroupID string   `koanf:"group_id"`
}

type AuthConfig struct {
	Secret string `koanf:"secret"`
}

type Config struct {
	Server   ServerConfig   `koanf:"server"`
	Logging  LoggingConfig  `koanf:"logging"`
	Sources  SourcesConfig  `koanf:"sources"`
	Sampling SamplingConfig `koanf:"sampling"`
	Upstream UpstreamConfig `koanf:"upstream"`
	Cache    CacheConfig    `koanf:"cache"`
	Kafka    KafkaConfig    `koanf:"kafka"`
	Auth     AuthConfig     `koanf:"auth"`
}

func defaults() Config {
	return Config{
		Server: ServerConfig{
			Addr:           ":8080",
			RequestTimeout: 60 * time.Second,
		},
		Logging: LoggingConfig{Level: "info"},
		Sources: SourcesConfig{
			Path:       "configs/sources.json",
			Recognized: []string{"resolution", "windowWidth", "windowHeight", "buffer"},
		},
		Sampling: SamplingConfig{
			Workers:             8,
			DefaultResolution:   10,
			DefaultWindowWidth:  256,
			DefaultWindowHeight: 256,
			DefaultBuffer:       0,
		},
		Upstream: UpstreamConfig{
			ImageryURL:    "https://services.sentinel-hub.com/ogc/wms/{instance}",
			GeopediaURL:   "https://www.geopedia.world/rest",
			Retries:       3,
			RetryInterval: 200 * time.Millisecond,
			RateLimit:     20,
			RateBurst:     40,
			Timeout:       30 * time.Second,
		},
		Cache: CacheConfig{
			TTL:       5 * time.Minute,
			OpTimeout: 250 * time.Millisecond,
			LRUSize:   512,
			IndexRes:  6,
		},
		Kafka: KafkaConfig{
			Topic:   "source-invalidation",
			GroupID: "sampling-engine",
		},
	}
}

// Load builds a Config by layering defaults, optional file, and env vars.
// Order of precedence (low -> high):
//  1. defaults
//  2. file (YAML) at path, or $CLASSIFICATION_CONFIG when path is empty
//  3. env (prefix CLASSIFICATION_, double underscore separating sections)
func Load(path string) (Config, error) {
	k := koanf.New(".")

	def := defaults()
	if err := k.Load(structs.Provider(def, "koanf"), nil); err != nil {
		return Config{}, fmt.Errorf("load defaults: %w", err)
	}

	if path == "" {
		path = os.Getenv("CLASSIFICATION_CONFIG")
	}
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return Config{}, fmt.Errorf("load config file %s: %w", path, err)
		}
	}

	// CLASSIFICATION_SERVER__ADDR -> server.addr
	envProvider := env.Provider("CLASSIFICATION_", ".", func(s string) string {
		s = strings.ToLower(strings.TrimPrefix(s, "CLASSIFICATION_"))
		return strings.ReplaceAll(s, "__", ".")
	})
	if err := k.Load(envProvider, nil); err != nil {
		return Config{}, fmt.Errorf("load environment: %w", err)
	}

	cfg := Config{}
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if c.Server.Addr == "" {
		return errors.New("server.addr must not be empty")
	}
	if c.Sources.Path == "" {
		return errors.New("sources.path must not be empty")
	}
	if c.Sampling.Workers <= 0 {
		return errors.New("sampling.workers must be positive")
	}
	if c.Upstream.Retries < 0 {
		return errors.New("upstream.retries must not be negative")
	}
	if c.Cache.Enabled && c.Cache.RedisAddr == "" {
		return errors.New("cache.redis_addr is required when the cache is enabled")
	}
	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		return errors.New("kafka.brokers is required when invalidation is enabled")
	}
	return nil
}
