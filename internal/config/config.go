package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/pion/stun/v3"
	"gopkg.in/yaml.v3"
)

// Load reads and validates the YAML config at configPath.
func Load(configPath string) (*AppConfig, error) {
	path := strings.TrimSpace(configPath)
	if path == "" {
		path = DefaultConfigPath
	}

	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file %q: %w", path, err)
	}
	cfg, err := Parse(content)
	if err != nil {
		return nil, fmt.Errorf("config file %q: %w", path, err)
	}
	if abs, err := filepath.Abs(path); err == nil {
		cfg.baseDir = filepath.Dir(abs)
	}
	return cfg, nil
}

// Parse decodes YAML content on top of the defaults. Unknown keys are rejected.
func Parse(content []byte) (*AppConfig, error) {
	cfg := defaultAppConfig()
	decoder := yaml.NewDecoder(bytes.NewReader(content))
	decoder.KnownFields(true)
	if err := decoder.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parse: %w", err)
	}

	normalize(&cfg)
	if err := validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns the configuration used when no file is given.
func Default() *AppConfig {
	cfg := defaultAppConfig()
	normalize(&cfg)
	return &cfg
}

func defaultAppConfig() AppConfig {
	return AppConfig{
		Port: defaultPort,
		Env:  defaultEnv,
		Database: DatabaseRuntimeConfig{
			Driver:    defaultDBDriver,
			Host:      defaultDBHost,
			Port:      defaultDBPort,
			User:      defaultDBUser,
			Password:  defaultDBPassword,
			Name:      defaultDBName,
			Charset:   defaultDBCharset,
			ParseTime: true,
			Loc:       defaultDBLoc,
			Migrate:   true,
		},
		Redis: RedisRuntimeConfig{
			Host: defaultRedisHost,
			Port: defaultRedisPort,
			DB:   defaultRedisDB,
		},
		ICEServers: []ICEServer{{URLs: []string{"stun:stun.l.google.com:19302"}}},
		Match: MatchConfig{
			DefaultRadiusKm: defaultRadiusKm,
			CandidateLimit:  defaultCandidateLimit,
			MaxAttempts:     defaultMaxAttempts,
		},
		Reaper: ReaperConfig{
			Interval:         defaultReaperInterval,
			StaleAfter:       defaultStaleAfter,
			ManualStaleAfter: defaultManualStaleAfter,
		},
		Relay:     RelayConfig{QueueSize: defaultRelayQueueSize},
		RateLimit: RateLimitConfig{MatchPerMinute: defaultMatchPerMinute},
	}
}

func validate(cfg *AppConfig) error {
	if cfg.Port < 1 || cfg.Port > 65535 {
		return fmt.Errorf("invalid port %d, expected 1-65535", cfg.Port)
	}
	switch cfg.Database.Driver {
	case DriverMySQL:
		if cfg.Database.Port < 1 || cfg.Database.Port > 65535 {
			return fmt.Errorf("invalid database.port %d, expected 1-65535", cfg.Database.Port)
		}
	case DriverMemory:
	default:
		return fmt.Errorf("invalid database.driver %q, expected %q or %q", cfg.Database.Driver, DriverMySQL, DriverMemory)
	}
	if cfg.Redis.Port < 1 || cfg.Redis.Port > 65535 {
		return fmt.Errorf("invalid redis.port %d, expected 1-65535", cfg.Redis.Port)
	}
	if cfg.Redis.DB < 0 {
		return fmt.Errorf("invalid redis.db %d, expected >= 0", cfg.Redis.DB)
	}
	if cfg.Match.DefaultRadiusKm <= 0 {
		return fmt.Errorf("invalid match.default_radius_km %v, expected > 0", cfg.Match.DefaultRadiusKm)
	}
	if cfg.Match.MaxAttempts < 1 || cfg.Match.MaxAttempts > 10 {
		return fmt.Errorf("invalid match.max_attempts %d, expected 1-10", cfg.Match.MaxAttempts)
	}
	if cfg.Reaper.Interval <= 0 || cfg.Reaper.StaleAfter <= 0 || cfg.Reaper.ManualStaleAfter <= 0 {
		return fmt.Errorf("reaper durations must be positive")
	}
	for i, server := range cfg.ICEServers {
		if len(server.URLs) == 0 {
			return fmt.Errorf("ice_servers[%d]: urls is empty", i)
		}
		for _, raw := range server.URLs {
			if _, err := stun.ParseURI(raw); err != nil {
				return fmt.Errorf("ice_servers[%d]: %q: %w", i, raw, err)
			}
		}
	}
	return nil
}

// IsDev reports whether the process runs in development mode.
func (c *AppConfig) IsDev() bool {
	return c.Env == "development" || c.Env == "dev"
}

// NeedsRedis reports whether any enabled component talks to Redis.
func (c *AppConfig) NeedsRedis() bool {
	return c.Redis.Enable || c.Relay.Fanout
}

// LogDir returns the directory for daily log files. A relative paths.logs
// is resolved against the directory holding the config file.
func (c *AppConfig) LogDir() string {
	return resolvePath(c.baseDir, c.Paths.Logs, "logs")
}
