package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds the hub configuration. Environment variables win over the
// optional YAML file, which wins over defaults.
type Config struct {
	SQLiteDBPath string `yaml:"sqlite_db_path"`

	// Discovery
	Network              string   `yaml:"network"` // /24 prefix, empty autodetects
	DiscoveryTimeoutMs   int      `yaml:"discovery_timeout_ms"`
	DiscoveryConcurrency int      `yaml:"discovery_concurrency"`
	RescanIntervalMs     int      `yaml:"rescan_interval_ms"`
	StaticDeviceIPs      []string `yaml:"static_device_ips"`

	// Device control
	DeviceTimeoutMs int  `yaml:"device_timeout_ms"`
	DisableNotify   bool `yaml:"disable_notify"` // skip WebSocket push listeners, poll instead

	// Local media library + file server
	MediaRoot     string `yaml:"media_root"`
	MediaHTTPPort int    `yaml:"media_http_port"`
	AdvertiseHost string `yaml:"advertise_host"` // LAN address speakers fetch from, empty autodetects
}

// Load reads configuration from the optional YAML file named by
// SOUNDTOUCH_CONFIG, then applies environment overrides and defaults.
func Load() (Config, error) {
	cfg := Config{}

	if path := os.Getenv("SOUNDTOUCH_CONFIG"); path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config file %s: %w", path, err)
		}
	}

	cfg.SQLiteDBPath = envString("SQLITE_DB_PATH", defaultStr(cfg.SQLiteDBPath, "./data/soundtouch-hub.db"))
	cfg.Network = envString("NETWORK", cfg.Network)
	cfg.DiscoveryTimeoutMs = envInt("DISCOVERY_TIMEOUT_MS", defaultInt(cfg.DiscoveryTimeoutMs, 20000))
	cfg.DiscoveryConcurrency = envInt("DISCOVERY_CONCURRENCY", defaultInt(cfg.DiscoveryConcurrency, 32))
	cfg.RescanIntervalMs = envInt("RESCAN_INTERVAL_MS", defaultInt(cfg.RescanIntervalMs, 300000))
	if ips := envCSV("STATIC_DEVICE_IPS"); len(ips) > 0 {
		cfg.StaticDeviceIPs = ips
	}
	cfg.DeviceTimeoutMs = envInt("DEVICE_TIMEOUT_MS", defaultInt(cfg.DeviceTimeoutMs, 5000))
	cfg.DisableNotify = envBool("DISABLE_NOTIFY", cfg.DisableNotify)
	cfg.MediaRoot = envString("MEDIA_ROOT", defaultStr(cfg.MediaRoot, "./music"))
	cfg.MediaHTTPPort = envInt("MEDIA_HTTP_PORT", defaultInt(cfg.MediaHTTPPort, 9000))
	cfg.AdvertiseHost = envString("ADVERTISE_HOST", cfg.AdvertiseHost)

	if cfg.DeviceTimeoutMs <= 0 {
		return Config{}, fmt.Errorf("DEVICE_TIMEOUT_MS must be positive")
	}
	if cfg.DiscoveryConcurrency <= 0 {
		return Config{}, fmt.Errorf("DISCOVERY_CONCURRENCY must be positive")
	}

	return cfg, nil
}

func defaultStr(val, fallback string) string {
	if val == "" {
		return fallback
	}
	return val
}

func defaultInt(val, fallback int) int {
	if val == 0 {
		return fallback
	}
	return val
}

func envString(key, fallback string) string {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	return val
}

func envInt(key string, fallback int) int {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(val)
	if err != nil {
		return fallback
	}
	return parsed
}

func envBool(key string, fallback bool) bool {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	return strings.EqualFold(val, "true")
}

func envCSV(key string) []string {
	val := os.Getenv(key)
	if val == "" {
		return []string{}
	}
	parts := strings.Split(val, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed == "" {
			continue
		}
		result = append(result, trimmed)
	}
	return result
}
