// Package config loads StreamXR's process-wide configuration: an optional
// YAML file overlaid with STREAMXR_* environment variables, falling back to
// built-in defaults when neither is set.
package config

import (
	"log/slog"
	"os"
	"strconv"
	"sync"
	"time"

	"gopkg.in/yaml.v2"
)

// Config is the full process-wide configuration surface.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Assets   AssetsConfig   `yaml:"assets"`
	Stream   StreamConfig   `yaml:"stream"`
	Objects  ObjectsConfig  `yaml:"objects"`
	Sessions SessionsConfig `yaml:"sessions"`
}

type ServerConfig struct {
	Port        string `yaml:"port"`
	AdminPort   string `yaml:"admin_port"`
	DefaultRoom string `yaml:"default_room"`
}

type AssetsConfig struct {
	RootDir        string `yaml:"root_dir"`
	CacheDir       string `yaml:"cache_dir"`
	DecimatorPath  string `yaml:"decimator_path"`
	MaxGenerations int    `yaml:"max_concurrent_generations"`
}

type StreamConfig struct {
	ChunkSize           int     `yaml:"chunk_size"`
	HighThresholdBps    float64 `yaml:"high_threshold_bps"`
	LowThresholdBps     float64 `yaml:"low_threshold_bps"`
	SmoothingFactor     float64 `yaml:"smoothing_factor"`
	MinSamples          int     `yaml:"min_samples"`
	NeRFThrottleEvery   int     `yaml:"nerf_throttle_every"`
	NeRFThrottlePauseMs int     `yaml:"nerf_throttle_pause_ms"`
}

type ObjectsConfig struct {
	OwnershipTimeout time.Duration `yaml:"ownership_timeout"`
	SweepInterval    time.Duration `yaml:"sweep_interval"`
}

type SessionsConfig struct {
	MaxConcurrent int `yaml:"max_concurrent"`
	OutboundQueue int `yaml:"outbound_queue_depth"`
}

var (
	once sync.Once
	cfg  *Config
)

// Defaults returns the configuration with every built-in default applied.
func Defaults() *Config {
	return &Config{
		Server: ServerConfig{
			Port:        "8080",
			AdminPort:   "8081",
			DefaultRoom: "default",
		},
		Assets: AssetsConfig{
			RootDir:        "./assets",
			CacheDir:       "./cache/lods",
			DecimatorPath:  "",
			MaxGenerations: 4,
		},
		Stream: StreamConfig{
			ChunkSize:           16384,
			HighThresholdBps:    500000,
			LowThresholdBps:     100000,
			SmoothingFactor:     0.3,
			MinSamples:          2,
			NeRFThrottleEvery:   10,
			NeRFThrottlePauseMs: 1,
		},
		Objects: ObjectsConfig{
			OwnershipTimeout: 5 * time.Second,
			SweepInterval:    250 * time.Millisecond,
		},
		Sessions: SessionsConfig{
			MaxConcurrent: 10000,
			OutboundQueue: 256,
		},
	}
}

// Load reads an optional YAML file at path (skipped if empty or missing),
// then applies STREAMXR_* environment overrides on top of the defaults.
func Load(path string) (*Config, error) {
	c := Defaults()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, err
			}
			slog.Info("config file not found, using defaults", "path", path)
		} else if err := yaml.Unmarshal(data, c); err != nil {
			return nil, err
		}
	}

	applyEnvOverrides(c)
	return c, nil
}

// Get returns the process-wide Config, loading it from STREAMXR_CONFIG_FILE
// (or defaults) exactly once.
func Get() *Config {
	once.Do(func() {
		path := os.Getenv("STREAMXR_CONFIG_FILE")
		c, err := Load(path)
		if err != nil {
			slog.Error("failed to load configuration", "error", err)
			os.Exit(1)
		}
		cfg = c
	})
	return cfg
}

func applyEnvOverrides(c *Config) {
	if v := os.Getenv("STREAMXR_PORT"); v != "" {
		c.Server.Port = v
	}
	if v := os.Getenv("STREAMXR_ADMIN_PORT"); v != "" {
		c.Server.AdminPort = v
	}
	if v := os.Getenv("STREAMXR_DEFAULT_ROOM"); v != "" {
		c.Server.DefaultRoom = v
	}
	if v := os.Getenv("STREAMXR_ASSET_ROOT"); v != "" {
		c.Assets.RootDir = v
	}
	if v := os.Getenv("STREAMXR_CACHE_DIR"); v != "" {
		c.Assets.CacheDir = v
	}
	if v := os.Getenv("STREAMXR_DECIMATOR_PATH"); v != "" {
		c.Assets.DecimatorPath = v
	}
	if v := os.Getenv("STREAMXR_MAX_GENERATIONS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Assets.MaxGenerations = n
		}
	}
	if v := os.Getenv("STREAMXR_CHUNK_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Stream.ChunkSize = n
		}
	}
	if v := os.Getenv("STREAMXR_MAX_SESSIONS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Sessions.MaxConcurrent = n
		}
	}
}
