package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/luciancaetano/kephascord"
	"github.com/luciancaetano/kephascord/internal/logx"
)

// Environment variables that override the file.
const (
	EnvToken       = "KEPHASCORD_TOKEN"
	EnvIntents     = "KEPHASCORD_INTENTS"
	EnvGatewayURL  = "KEPHASCORD_GATEWAY_URL"
	EnvLogLevel    = "KEPHASCORD_LOG_LEVEL"
	EnvMetricsAddr = "KEPHASCORD_METRICS_ADDR"
	EnvReconnect   = "KEPHASCORD_RECONNECT"
)

// BotConfig holds configuration for the example bot.
type BotConfig struct {
	Token       string         `yaml:"token"`
	Intents     []string       `yaml:"intents"`
	GatewayURL  string         `yaml:"gateway_url"`
	LogLevel    string         `yaml:"log_level"`
	MetricsAddr string         `yaml:"metrics_addr"`
	Reconnect   bool           `yaml:"reconnect"`
	Presence    PresenceConfig `yaml:"presence"`
	RateLimit   RateLimit      `yaml:"rate_limit"`
}

// PresenceConfig is the presence announced in identify.
type PresenceConfig struct {
	Status   string `yaml:"status"`
	Activity string `yaml:"activity"`
}

// RateLimit overrides the default send rate limit when PerMinute is set.
type RateLimit struct {
	Disabled  bool `yaml:"disabled"`
	PerMinute int  `yaml:"per_minute"`
	Burst     int  `yaml:"burst"`
}

// Default returns the configuration used when no file is given.
func Default() BotConfig {
	return BotConfig{
		Intents:   []string{"default", "messages"},
		LogLevel:  "info",
		Reconnect: true,
		Presence:  PresenceConfig{Status: string(kephascord.StatusOnline)},
	}
}

// Load reads path over the defaults, then applies the environment. An empty
// path skips the file.
func Load(path string) (BotConfig, error) {
	cfg := Default()
	if path != "" {
		if err := cfg.LoadFile(path); err != nil {
			return BotConfig{}, err
		}
	}
	if err := cfg.ApplyEnv(); err != nil {
		return BotConfig{}, err
	}
	return cfg, cfg.Validate()
}

// LoadFile populates the config from a YAML file. Fields already set remain unless
// overwritten by corresponding entries in the file.
func (c *BotConfig) LoadFile(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("stat config: %w", err)
	}
	// The file holds the bot token.
	if mode := info.Mode().Perm(); mode&0o077 != 0 {
		logx.Log.Warn().Str("path", path).Str("mode", fmt.Sprintf("%04o", mode)).Msg("config file is readable by other users")
	}

	b, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(b, c); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

// ApplyEnv overrides fields from KEPHASCORD_* variables.
func (c *BotConfig) ApplyEnv() error {
	if v, ok := os.LookupEnv(EnvToken); ok {
		c.Token = v
	}
	if v, ok := os.LookupEnv(EnvIntents); ok {
		c.Intents = strings.Split(v, ",")
	}
	if v, ok := os.LookupEnv(EnvGatewayURL); ok {
		c.GatewayURL = v
	}
	if v, ok := os.LookupEnv(EnvLogLevel); ok {
		c.LogLevel = v
	}
	if v, ok := os.LookupEnv(EnvMetricsAddr); ok {
		if v != "" && !strings.Contains(v, ":") {
			v = ":" + v
		}
		c.MetricsAddr = v
	}
	if v, ok := os.LookupEnv(EnvReconnect); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvReconnect, err)
		}
		c.Reconnect = b
	}
	return nil
}

// Validate reports missing or unparsable settings.
func (c *BotConfig) Validate() error {
	var errs []error
	if c.Token == "" {
		errs = append(errs, fmt.Errorf("token is required (set it in the config file or %s)", EnvToken))
	}
	if _, err := c.ParsedIntents(); err != nil {
		errs = append(errs, err)
	}
	if c.Presence.Status != "" && !kephascord.Status(c.Presence.Status).Valid() {
		errs = append(errs, fmt.Errorf("invalid presence status %q", c.Presence.Status))
	}
	if c.RateLimit.PerMinute < 0 || c.RateLimit.Burst < 0 {
		errs = append(errs, errors.New("rate_limit values must not be negative"))
	}
	return errors.Join(errs...)
}

// ParsedIntents ORs the configured intent names.
func (c *BotConfig) ParsedIntents() (kephascord.Intents, error) {
	return kephascord.ParseIntents(c.Intents...)
}
