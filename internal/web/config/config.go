package config

import (
	"fmt"
	"net"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Store   StoreConfig   `yaml:"store"`
	Auth    AuthConfig    `yaml:"auth"`
	Reports ReportsConfig `yaml:"reports"`
	Metrics MetricsConfig `yaml:"metrics"`
	Logging LoggingConfig `yaml:"logging"`
}

type ServerConfig struct {
	ListenAddr string    `yaml:"listen_addr"`
	TLS        TLSConfig `yaml:"tls"`
	// TrustedProxies lists the addresses or CIDR ranges whose forwarding
	// headers are believed. Empty means the peer address is always used.
	TrustedProxies []string `yaml:"trusted_proxies"`
}

type TLSConfig struct {
	Enabled  bool   `yaml:"enabled"`
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

// StoreConfig describes the document store connection. Path and ProjectID
// are required to connect, but their absence is reported by the data
// provider's error state rather than by Load.
type StoreConfig struct {
	Path           string        `yaml:"path"`
	ProjectID      string        `yaml:"project_id"`
	ConnectTimeout time.Duration `yaml:"connect_timeout"`
	Seed           *bool         `yaml:"seed"`
}

// SeedEnabled reports whether an empty store is seeded on startup
func (s StoreConfig) SeedEnabled() bool {
	return s.Seed == nil || *s.Seed
}

type AuthConfig struct {
	SessionTTL time.Duration `yaml:"session_ttl"`
	CookieName string        `yaml:"cookie_name"`
	// LoginRate is the number of login attempts allowed per minute and client
	LoginRate int `yaml:"login_rate"`
}

type ReportsConfig struct {
	// Timeout of 0 means outbound report calls never time out
	Timeout   time.Duration `yaml:"timeout"`
	UserAgent string        `yaml:"user_agent"`
}

type MetricsConfig struct {
	Enabled    bool     `yaml:"enabled"`
	ListenAddr string   `yaml:"listen_addr"`
	Path       string   `yaml:"path"`
	AllowedIPs []string `yaml:"allowed_ips"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Load reads the YAML file at path. An empty path yields the defaults.
// Environment overrides are applied after parsing.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	applyEnv(cfg)
	setDefaults(cfg)

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("TECHSUPPORT_STORE_PATH"); v != "" {
		cfg.Store.Path = v
	}
	if v := os.Getenv("TECHSUPPORT_STORE_PROJECT_ID"); v != "" {
		cfg.Store.ProjectID = v
	}
	if v := os.Getenv("TECHSUPPORT_LISTEN_ADDR"); v != "" {
		cfg.Server.ListenAddr = v
	}
	if v := os.Getenv("TECHSUPPORT_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
}

func setDefaults(cfg *Config) {
	if cfg.Server.ListenAddr == "" {
		cfg.Server.ListenAddr = ":8090"
	}
	if cfg.Store.ConnectTimeout == 0 {
		cfg.Store.ConnectTimeout = 60 * time.Second
	}
	if cfg.Auth.SessionTTL == 0 {
		cfg.Auth.SessionTTL = 12 * time.Hour
	}
	if cfg.Auth.CookieName == "" {
		cfg.Auth.CookieName = "techsupport_session"
	}
	if cfg.Auth.LoginRate == 0 {
		cfg.Auth.LoginRate = 10
	}
	if cfg.Reports.UserAgent == "" {
		cfg.Reports.UserAgent = "techsupport-web"
	}
	if cfg.Metrics.ListenAddr == "" {
		cfg.Metrics.ListenAddr = ":9090"
	}
	if cfg.Metrics.Path == "" {
		cfg.Metrics.Path = "/metrics"
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
}

func validate(cfg *Config) error {
	if cfg.Server.TLS.Enabled {
		if cfg.Server.TLS.CertFile == "" || cfg.Server.TLS.KeyFile == "" {
			return fmt.Errorf("server.tls.cert_file and server.tls.key_file are required when TLS is enabled")
		}
	}
	for _, entry := range cfg.Server.TrustedProxies {
		if !validNetwork(entry) {
			return fmt.Errorf("server.trusted_proxies: invalid address or CIDR %q", entry)
		}
	}
	if cfg.Store.ConnectTimeout < 0 {
		return fmt.Errorf("store.connect_timeout must not be negative")
	}
	if cfg.Auth.SessionTTL < 0 {
		return fmt.Errorf("auth.session_ttl must not be negative")
	}
	if cfg.Auth.LoginRate < 0 {
		return fmt.Errorf("auth.login_rate must not be negative")
	}
	if cfg.Reports.Timeout < 0 {
		return fmt.Errorf("reports.timeout must not be negative")
	}
	if cfg.Metrics.Enabled && cfg.Metrics.ListenAddr == cfg.Server.ListenAddr {
		return fmt.Errorf("metrics.listen_addr must differ from server.listen_addr")
	}

	switch strings.ToLower(cfg.Logging.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be one of debug, info, warn, error")
	}
	switch cfg.Logging.Format {
	case "json", "text":
	default:
		return fmt.Errorf("logging.format must be json or text")
	}
	return nil
}

func validNetwork(entry string) bool {
	entry = strings.TrimSpace(entry)
	if strings.Contains(entry, "/") {
		_, _, err := net.ParseCIDR(entry)
		return err == nil
	}
	return net.ParseIP(entry) != nil
}
