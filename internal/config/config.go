package config

import (
	"bytes"
	"fmt"
	"io"
	"net/url"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

type Mode string

const (
	ModeTestnet Mode = "testnet"
	ModeLive    Mode = "live"
)

const (
	testnetRestBaseURL = "https://testnet.bitmex.com"
	testnetWSBaseURL   = "wss://ws.testnet.bitmex.com/realtime"
	liveRestBaseURL    = "https://www.bitmex.com"
	liveWSBaseURL      = "wss://ws.bitmex.com/realtime"
)

type Config struct {
	Mode     Mode           `yaml:"mode"`
	Exchange ExchangeConfig `yaml:"exchange"`
	Feed     FeedConfig     `yaml:"feed"`
	Logging  LoggingConfig  `yaml:"logging"`
}

type ExchangeConfig struct {
	APIKey          string `yaml:"api_key"`
	APISecret       string `yaml:"api_secret"`
	RestBaseURL     string `yaml:"rest_base_url"`
	WSBaseURL       string `yaml:"ws_base_url"`
	HTTPTimeoutSec  int64  `yaml:"http_timeout_sec"`
	ExpiryWindowSec int64  `yaml:"expiry_window_sec"`
}

type FeedConfig struct {
	Topic             string `yaml:"topic"`
	ReconnectDelaySec int64  `yaml:"reconnect_delay_sec"`
	KeepaliveSec      int64  `yaml:"keepalive_sec"`
}

type LoggingConfig struct {
	Level      string `yaml:"level"`
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
	Compress   bool   `yaml:"compress"`
}

func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	var cfg Config
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return Config{}, err
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		if err == nil {
			return Config{}, fmt.Errorf("config must contain a single YAML document")
		}
		return Config{}, err
	}
	cfg.normalize()
	cfg.applyEnv()
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) normalize() {
	c.Mode = Mode(strings.ToLower(strings.TrimSpace(string(c.Mode))))
	c.Exchange.APIKey = strings.TrimSpace(c.Exchange.APIKey)
	c.Exchange.APISecret = strings.TrimSpace(c.Exchange.APISecret)
	c.Exchange.RestBaseURL = strings.TrimRight(strings.TrimSpace(c.Exchange.RestBaseURL), "/")
	c.Exchange.WSBaseURL = strings.TrimRight(strings.TrimSpace(c.Exchange.WSBaseURL), "/")
	c.Feed.Topic = strings.TrimSpace(c.Feed.Topic)
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	c.Logging.File = strings.TrimSpace(c.Logging.File)
}

// applyEnv fills credentials from the environment when the YAML leaves them
// empty. The .env file itself is loaded by the caller, not here.
func (c *Config) applyEnv() {
	if c.Exchange.APIKey == "" {
		c.Exchange.APIKey = strings.TrimSpace(os.Getenv("BITMEX_API_KEY"))
	}
	if c.Exchange.APISecret == "" {
		c.Exchange.APISecret = strings.TrimSpace(os.Getenv("BITMEX_API_SECRET"))
	}
}

func (c *Config) applyDefaults() {
	if c.Mode == "" {
		c.Mode = ModeTestnet
	}
	if c.Exchange.RestBaseURL == "" {
		switch c.Mode {
		case ModeTestnet:
			c.Exchange.RestBaseURL = testnetRestBaseURL
		case ModeLive:
			c.Exchange.RestBaseURL = liveRestBaseURL
		}
	}
	if c.Exchange.WSBaseURL == "" {
		switch c.Mode {
		case ModeTestnet:
			c.Exchange.WSBaseURL = testnetWSBaseURL
		case ModeLive:
			c.Exchange.WSBaseURL = liveWSBaseURL
		}
	}
	if c.Exchange.HTTPTimeoutSec == 0 {
		c.Exchange.HTTPTimeoutSec = 15
	}
	if c.Exchange.ExpiryWindowSec == 0 {
		c.Exchange.ExpiryWindowSec = 5
	}
	if c.Feed.Topic == "" {
		c.Feed.Topic = "instrument"
	}
	if c.Feed.ReconnectDelaySec == 0 {
		c.Feed.ReconnectDelaySec = 2
	}
	if c.Feed.KeepaliveSec == 0 {
		c.Feed.KeepaliveSec = 30
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.File != "" {
		if c.Logging.MaxSizeMB == 0 {
			c.Logging.MaxSizeMB = 100
		}
		if c.Logging.MaxBackups == 0 {
			c.Logging.MaxBackups = 3
		}
		if c.Logging.MaxAgeDays == 0 {
			c.Logging.MaxAgeDays = 7
		}
	}
}

func (c Config) Validate() error {
	switch c.Mode {
	case ModeTestnet, ModeLive:
	default:
		return fmt.Errorf("mode must be testnet or live")
	}
	if c.Exchange.APIKey == "" || c.Exchange.APISecret == "" {
		return fmt.Errorf("exchange api_key/api_secret are required (yaml or BITMEX_API_KEY/BITMEX_API_SECRET)")
	}
	if c.Exchange.HTTPTimeoutSec < 1 || c.Exchange.HTTPTimeoutSec > 120 {
		return fmt.Errorf("exchange http_timeout_sec must be between 1 and 120")
	}
	if c.Exchange.ExpiryWindowSec < 1 || c.Exchange.ExpiryWindowSec > 60 {
		return fmt.Errorf("exchange expiry_window_sec must be between 1 and 60")
	}
	if err := validateURL(c.Exchange.RestBaseURL, "http", "https"); err != nil {
		return fmt.Errorf("exchange rest_base_url %v", err)
	}
	if err := validateURL(c.Exchange.WSBaseURL, "ws", "wss"); err != nil {
		return fmt.Errorf("exchange ws_base_url %v", err)
	}
	if c.Feed.ReconnectDelaySec < 1 || c.Feed.ReconnectDelaySec > 60 {
		return fmt.Errorf("feed reconnect_delay_sec must be between 1 and 60")
	}
	if c.Feed.KeepaliveSec < 5 || c.Feed.KeepaliveSec > 300 {
		return fmt.Errorf("feed keepalive_sec must be between 5 and 300")
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("logging level must be debug, info, warn, or error")
	}
	return nil
}

func validateURL(raw string, schemes ...string) error {
	parsed, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("must be a valid URL: %w", err)
	}
	if parsed.Scheme == "" || parsed.Host == "" {
		return fmt.Errorf("must include scheme and host")
	}
	for _, s := range schemes {
		if parsed.Scheme == s {
			return nil
		}
	}
	return fmt.Errorf("scheme must be %s", strings.Join(schemes, " or "))
}
