package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/registryhub/registryd/internal/ratelimit"
	"gopkg.in/yaml.v3"
)

const (
	EnvConfigPath   = "CONFIG_PATH"
	EnvDBConnection = "DB_CONNECTION"
	EnvJWTSecret    = "JWT_SECRET"
	EnvJWTExpiry    = "JWT_EXPIRY"
)

// rateLimiterEnvPrefix prefixes the per-action rate limiter env keys.
const rateLimiterEnvPrefix = "RATE_LIMITER_"

// AppConfig holds resolved application configuration values.
type AppConfig struct {
	ConfigPath string
}

// LoadFromEnv loads app config from environment variables.
func LoadFromEnv() (AppConfig, error) {
	return AppConfig{ConfigPath: ResolveConfigPath(os.Getenv(EnvConfigPath))}, nil
}

// ResolveConfigPath normalizes the config path and applies defaults.
func ResolveConfigPath(p string) string {
	trimmed := strings.TrimSpace(p)
	if trimmed == "" {
		trimmed = "./config.yaml"
	}
	if abs, err := filepath.Abs(trimmed); err == nil {
		return abs
	}
	return trimmed
}

// ErrMissingDatabaseDSN indicates no database DSN is present in the config file.
var ErrMissingDatabaseDSN = errors.New("missing database dsn (set `database-dsn` or `database.dsn` in config file)")

// JWTConfig holds JWT secret and expiry settings.
type JWTConfig struct {
	Secret string        `yaml:"secret"`
	Expiry time.Duration `yaml:"expiry"`
}

// LoadDatabaseDSN reads the database DSN from the environment or config file.
func LoadDatabaseDSN(configPath string) (string, error) {
	if dsn := strings.TrimSpace(os.Getenv(EnvDBConnection)); dsn != "" {
		return dsn, nil
	}

	// fileConfig maps the YAML fields needed for DSN resolution.
	type fileConfig struct {
		DatabaseDSN string `yaml:"database-dsn"`
		Database    struct {
			DSN string `yaml:"dsn"`
		} `yaml:"database"`
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return "", fmt.Errorf("read config file: %w", err)
	}

	var cfg fileConfig
	if errUnmarshal := yaml.Unmarshal(data, &cfg); errUnmarshal != nil {
		return "", fmt.Errorf("parse config file: %w", errUnmarshal)
	}

	if dsn := strings.TrimSpace(cfg.DatabaseDSN); dsn != "" {
		return dsn, nil
	}
	if dsn := strings.TrimSpace(cfg.Database.DSN); dsn != "" {
		return dsn, nil
	}
	return "", ErrMissingDatabaseDSN
}

// defaultJWTExpiry is used when the config omits or invalidates JWT expiry.
const defaultJWTExpiry = 30 * 24 * time.Hour

// LoadJWTConfig loads JWT settings from the YAML config file, letting the
// JWT_SECRET and JWT_EXPIRY environment variables win over the file.
func LoadJWTConfig(configPath string) (JWTConfig, error) {
	// fileConfig maps the YAML fields needed for JWT settings.
	type fileConfig struct {
		JWT JWTConfig `yaml:"jwt"`
	}

	result := JWTConfig{Expiry: defaultJWTExpiry}

	data, errRead := os.ReadFile(configPath)
	if errRead == nil {
		var cfg fileConfig
		if errUnmarshal := yaml.Unmarshal(data, &cfg); errUnmarshal == nil {
			result = cfg.JWT
		}
	}

	if secret := strings.TrimSpace(os.Getenv(EnvJWTSecret)); secret != "" {
		result.Secret = secret
	}
	if expiryRaw := strings.TrimSpace(os.Getenv(EnvJWTExpiry)); expiryRaw != "" {
		if expiry, errParse := time.ParseDuration(expiryRaw); errParse == nil && expiry > 0 {
			result.Expiry = expiry
		}
	}

	if result.Expiry <= 0 {
		result.Expiry = defaultJWTExpiry
	}
	return result, nil
}

// LoadRateLimiterConfig builds the per-action limiter config from the
// environment. Each action recognizes RATE_LIMITER_<NAME>_RATE_SECONDS and
// RATE_LIMITER_<NAME>_BURST; actions with neither variable set are omitted so
// the limiter falls back to their compiled-in defaults.
func LoadRateLimiterConfig() (map[ratelimit.Action]ratelimit.Config, error) {
	out := make(map[ratelimit.Action]ratelimit.Config)
	for _, action := range ratelimit.Actions() {
		rateRaw := strings.TrimSpace(os.Getenv(rateLimiterEnvPrefix + action.EnvKey() + "_RATE_SECONDS"))
		burstRaw := strings.TrimSpace(os.Getenv(rateLimiterEnvPrefix + action.EnvKey() + "_BURST"))
		if rateRaw == "" && burstRaw == "" {
			continue
		}

		cfg := ratelimit.Config{Rate: action.DefaultRate(), Burst: action.DefaultBurst()}
		if rateRaw != "" {
			seconds, errParse := strconv.ParseInt(rateRaw, 10, 64)
			if errParse != nil || seconds <= 0 {
				return nil, fmt.Errorf("config: invalid rate seconds for %s: %q", action, rateRaw)
			}
			cfg.Rate = time.Duration(seconds) * time.Second
		}
		if burstRaw != "" {
			burst, errParse := strconv.ParseInt(burstRaw, 10, 64)
			if errParse != nil || burst < 0 {
				return nil, fmt.Errorf("config: invalid burst for %s: %q", action, burstRaw)
			}
			cfg.Burst = burst
		}
		out[action] = cfg
	}
	return out, nil
}
