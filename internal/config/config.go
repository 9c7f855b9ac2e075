package config

import (
	"errors"
	"io/fs"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server struct {
		Port string `yaml:"port"`
	} `yaml:"server"`
	Redis struct {
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
	} `yaml:"redis"`
	Postgres struct {
		URL string `yaml:"url"`
	} `yaml:"postgres"`
	SQLite struct {
		Path string `yaml:"path"`
	} `yaml:"sqlite"`
	Verifier struct {
		URL            string  `yaml:"url"`
		Secret         string  `yaml:"secret"`
		MinScore       float64 `yaml:"min_score"`
		ExpectedAction string  `yaml:"expected_action"`
		Timeout        string  `yaml:"timeout"`
	} `yaml:"verifier"`
	Attestation struct {
		Secret   string `yaml:"secret"`
		Audience string `yaml:"audience"`
	} `yaml:"attestation"`
	Quiz struct {
		SessionSize       int    `yaml:"session_size"`
		IdempotencyWindow string `yaml:"idempotency_window"`
		CatalogPath       string `yaml:"catalog_path"`
	} `yaml:"quiz"`
	Stats struct {
		MineLimit   int    `yaml:"mine_limit"`
		GlobalLimit int    `yaml:"global_limit"`
		CacheTTL    string `yaml:"cache_ttl"`
	} `yaml:"stats"`
	CORS struct {
		Origins []string `yaml:"origins"`
	} `yaml:"cors"`
	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"log"`
}

// Default returns the configuration used when no file is present.
func Default() Config {
	var cfg Config
	cfg.Server.Port = "8080"
	cfg.Verifier.MinScore = 0.5
	cfg.Verifier.ExpectedAction = "quiz_submit"
	cfg.Verifier.Timeout = "5s"
	cfg.Quiz.SessionSize = 10
	cfg.Quiz.IdempotencyWindow = "24h"
	cfg.Stats.MineLimit = 14
	cfg.Stats.GlobalLimit = 24
	cfg.Stats.CacheTTL = "5s"
	cfg.Log.Level = "info"
	cfg.Log.Format = "text"
	return cfg
}

// Load reads YAML config from path over the defaults. A missing file yields the defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// TTLDuration parses a duration string or returns the fallback if empty.
func TTLDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}
	if d, err := time.ParseDuration(raw); err == nil {
		return d
	}
	return fallback
}
