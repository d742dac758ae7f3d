package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/cuemby/doghair/pkg/types"
)

// Defaults for the collector sampling configuration
const (
	DefaultInterval = 300000 // ms
	DefaultTopN     = 30
	DefaultSMP      = true
)

// Environment variables recognized by InitConfig and Load
const (
	EnvHome          = "DOGHAIR_HOME"
	EnvInterval      = "DOGHAIR_INTERVAL"
	EnvTopN          = "DOGHAIR_TOPN"
	EnvSMP           = "DOGHAIR_SMP"
	EnvEtcdEndpoints = "DOGHAIR_ETCD_ENDPOINTS"
)

// Config holds the agent-level configuration loaded at process start
type Config struct {
	// Home is the directory under which doghair_* repositories are created
	Home string `yaml:"home"`

	// EtcdEndpoints are the endpoints of the cluster mesh service
	EtcdEndpoints []string `yaml:"etcd_endpoints"`

	// Collect is the sampling configuration handed to collectors
	Collect types.CollectConfig `yaml:"collect"`
}

// Load builds the agent configuration: defaults, then the optional YAML
// file at path, then environment overrides. An empty path skips the file.
func Load(path string) (*Config, error) {
	cfg := &Config{
		EtcdEndpoints: []string{"127.0.0.1:2379"},
		Collect:       types.CollectConfig{Interval: DefaultInterval, TopN: DefaultTopN, SMP: DefaultSMP},
	}

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

	if cfg.Home == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to resolve home directory: %w", err)
		}
		cfg.Home = home
	}

	if err := cfg.Collect.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// InitConfig recomputes the collector sampling configuration from the
// environment. It is called for every per-peer init or reboot exchange
// and for every status report, and never cached, so operators can retune
// a run between cycles.
func InitConfig() types.CollectConfig {
	cfg := types.CollectConfig{Interval: DefaultInterval, TopN: DefaultTopN, SMP: DefaultSMP}

	if v, ok := lookupInt(EnvInterval); ok && v > 0 {
		cfg.Interval = v
	}
	if v, ok := lookupInt(EnvTopN); ok && v > 0 {
		cfg.TopN = v
	}
	if v, ok := os.LookupEnv(EnvSMP); ok {
		cfg.SMP = isTruthy(v)
	}

	return cfg
}

func applyEnv(cfg *Config) {
	if v, ok := os.LookupEnv(EnvHome); ok && v != "" {
		cfg.Home = v
	}
	if v, ok := os.LookupEnv(EnvEtcdEndpoints); ok && v != "" {
		cfg.EtcdEndpoints = splitEndpoints(v)
	}
	if v, ok := lookupInt(EnvInterval); ok && v > 0 {
		cfg.Collect.Interval = v
	}
	if v, ok := lookupInt(EnvTopN); ok && v > 0 {
		cfg.Collect.TopN = v
	}
	if v, ok := os.LookupEnv(EnvSMP); ok {
		cfg.Collect.SMP = isTruthy(v)
	}
}

func lookupInt(key string) (int, bool) {
	v, ok := os.LookupEnv(key)
	if !ok {
		return 0, false
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return 0, false
	}
	return n, true
}

func isTruthy(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes", "on":
		return true
	}
	return false
}

func splitEndpoints(v string) []string {
	parts := strings.Split(v, ",")
	endpoints := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			endpoints = append(endpoints, p)
		}
	}
	return endpoints
}
