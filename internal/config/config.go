// Package config loads the YAML configuration for each of the platform's
// three host processes, using gopkg.in/yaml.v3 over nested struct-with-tags
// Config types, one section per host.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Server is the configuration for a server process.
type Server struct {
	ListenAddr   string `yaml:"listen_addr"`
	CodeCacheDir string `yaml:"code_cache_dir"`
	Auth         struct {
		Accounts map[string]string `yaml:"accounts"`
	} `yaml:"auth"`
	DefaultIdleSeconds int `yaml:"default_idle_seconds"`
	Metrics            struct {
		Enabled bool   `yaml:"enabled"`
		Addr    string `yaml:"addr"`
	} `yaml:"metrics"`
}

// Worker is the configuration for a worker host process.
type Worker struct {
	UpstreamAddr      string        `yaml:"upstream_addr"`
	InitialWorkers    int           `yaml:"initial_workers"`
	ReconnectInterval time.Duration `yaml:"reconnect_interval"`
	PollInterval      time.Duration `yaml:"poll_interval"`
	Courtesy          struct {
		Mode string `yaml:"mode"` // "unconditional", "polling", "async"
	} `yaml:"courtesy"`
	Metrics struct {
		Enabled bool   `yaml:"enabled"`
		Addr    string `yaml:"addr"`
	} `yaml:"metrics"`
}

// Hub is the configuration for a hub process: its own downstream listen
// address plus the set of upstream servers it dials on startup.
type Hub struct {
	ListenAddr        string        `yaml:"listen_addr"`
	IdleSeconds       int           `yaml:"idle_seconds"`
	PollInterval      time.Duration `yaml:"poll_interval"`
	ReconnectInterval time.Duration `yaml:"reconnect_interval"`
	Upstreams         []struct {
		Name string `yaml:"name"`
		Addr string `yaml:"addr"`
	} `yaml:"upstreams"`
	Metrics struct {
		Enabled bool   `yaml:"enabled"`
		Addr    string `yaml:"addr"`
	} `yaml:"metrics"`
}

// LoadServer reads and parses a server config file at path.
func LoadServer(path string) (Server, error) {
	var cfg Server
	if err := load(path, &cfg); err != nil {
		return cfg, err
	}
	if cfg.ListenAddr == "" {
		cfg.ListenAddr = ":5327"
	}
	if cfg.DefaultIdleSeconds == 0 {
		cfg.DefaultIdleSeconds = 5
	}
	return cfg, nil
}

// LoadWorker reads and parses a worker config file at path.
func LoadWorker(path string) (Worker, error) {
	var cfg Worker
	if err := load(path, &cfg); err != nil {
		return cfg, err
	}
	if cfg.InitialWorkers == 0 {
		cfg.InitialWorkers = 4
	}
	if cfg.ReconnectInterval == 0 {
		cfg.ReconnectInterval = time.Second
	}
	if cfg.PollInterval == 0 {
		cfg.PollInterval = 10 * time.Second
	}
	return cfg, nil
}

// LoadHub reads and parses a hub config file at path.
func LoadHub(path string) (Hub, error) {
	var cfg Hub
	if err := load(path, &cfg); err != nil {
		return cfg, err
	}
	if cfg.ListenAddr == "" {
		cfg.ListenAddr = ":5327"
	}
	if cfg.PollInterval == 0 {
		cfg.PollInterval = 10 * time.Second
	}
	if cfg.ReconnectInterval == 0 {
		cfg.ReconnectInterval = time.Second
	}
	return cfg, nil
}

func load(path string, out any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, out); err != nil {
		return fmt.Errorf("config: parse %s: %w", path, err)
	}
	return nil
}
