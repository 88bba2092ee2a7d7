package main

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

const (
	defaultConfig    = "./predictctl.toml"
	defaultEndpoint  = "http://127.0.0.1:8085"
	defaultSecretEnv = "PREDICT_HMAC_SECRET"
	defaultTokenTTL  = 5 * time.Minute
)

// fileConfig is the optional TOML file read by every command. Flags win over
// file values.
type fileConfig struct {
	Endpoint  string `toml:"Endpoint"`
	Address   string `toml:"Address"`
	Token     string `toml:"Token"`
	Issuer    string `toml:"Issuer"`
	Audience  string `toml:"Audience"`
	SecretEnv string `toml:"SecretEnv"`
	TokenTTL  string `toml:"TokenTTL"`
}

// loadConfig reads path. A missing file at the default location is not an
// error.
func loadConfig(path string, explicit bool) (fileConfig, error) {
	var cfg fileConfig
	if strings.TrimSpace(path) != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			if explicit || !errors.Is(err, fs.ErrNotExist) {
				return fileConfig{}, fmt.Errorf("failed to read config: %w", err)
			}
		}
	}
	cfg.Endpoint = strings.TrimRight(strings.TrimSpace(cfg.Endpoint), "/")
	if cfg.Endpoint == "" {
		cfg.Endpoint = defaultEndpoint
	}
	cfg.Address = strings.TrimSpace(cfg.Address)
	cfg.Token = strings.TrimSpace(cfg.Token)
	cfg.SecretEnv = strings.TrimSpace(cfg.SecretEnv)
	if cfg.SecretEnv == "" {
		cfg.SecretEnv = defaultSecretEnv
	}
	return cfg, nil
}

func (cfg fileConfig) tokenTTL() (time.Duration, error) {
	raw := strings.TrimSpace(cfg.TokenTTL)
	if raw == "" {
		return defaultTokenTTL, nil
	}
	ttl, err := time.ParseDuration(raw)
	if err != nil || ttl <= 0 {
		return 0, fmt.Errorf("invalid TokenTTL %q", cfg.TokenTTL)
	}
	return ttl, nil
}
