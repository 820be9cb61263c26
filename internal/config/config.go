package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/m-voss/devcell/protocol"
)

// BootConfig controls the bounded-retry boot procedure.
type BootConfig struct {
	MaxAttempts   int `yaml:"max_attempts"`
	BackoffBaseMs int `yaml:"backoff_base_ms"`
	SettleMs      int `yaml:"settle_ms"`
}

// RunConfig controls the install/start protocol and server-ready detection.
type RunConfig struct {
	InstallCmd          string `yaml:"install_cmd"`
	StartCmd            string `yaml:"start_cmd"`
	StaticCmd           string `yaml:"static_cmd"`
	ShellCmd            string `yaml:"shell_cmd"`
	Host                string `yaml:"host"`
	DefaultPort         int    `yaml:"default_port"`
	ManualDetectDelayMs int    `yaml:"manual_detect_delay_ms"`
	DevServerTimeoutMs  int    `yaml:"dev_server_timeout_ms"`
	StaticTimeoutMs     int    `yaml:"static_timeout_ms"`
}

// DockerConfig configures the docker-backed runtime driver.
type DockerConfig struct {
	Image       string `yaml:"image"`
	MemLimitMB  int    `yaml:"mem_limit_mb"`
	NetworkMode string `yaml:"network_mode"`
	PortRange   string `yaml:"port_range"` // host ports published for dev servers, e.g. "5173-5183"
}

// LocalConfig configures the host-process runtime driver.
type LocalConfig struct {
	RootDir string `yaml:"root_dir"`
}

type Config struct {
	Listen             string       `yaml:"listen"`
	APIKey             string       `yaml:"api_key"`
	DBPath             string       `yaml:"db_path"`
	Driver             string       `yaml:"driver"` // "docker" or "local"
	PreservedPaths     []string     `yaml:"preserved_paths"`
	WatchdogIntervalMs int          `yaml:"watchdog_interval_ms"`
	Boot               BootConfig   `yaml:"boot"`
	Run                RunConfig    `yaml:"run"`
	Docker             DockerConfig `yaml:"docker"`
	Local              LocalConfig  `yaml:"local"`
}

func Load(yamlPath string) (*Config, error) {
	cfg := &Config{
		Listen:             "127.0.0.1:8090",
		DBPath:             "./devcell.db",
		Driver:             "docker",
		PreservedPaths:     []string{"tmp", "proc", "dev", "sys", "run"},
		WatchdogIntervalMs: 30000,
		Boot: BootConfig{
			MaxAttempts:   3,
			BackoffBaseMs: 1000,
			SettleMs:      500,
		},
		Run: RunConfig{
			InstallCmd:          "npm install",
			StartCmd:            "npm run dev",
			StaticCmd:           fmt.Sprintf("npx serve -p %d .", protocol.DefaultDevPort),
			ShellCmd:            "sh",
			Host:                "127.0.0.1",
			DefaultPort:         protocol.DefaultDevPort,
			ManualDetectDelayMs: 5000,
			DevServerTimeoutMs:  60000,
			StaticTimeoutMs:     20000,
		},
		Docker: DockerConfig{
			Image:       "devcell-runtime:node",
			MemLimitMB:  2048,
			NetworkMode: "bridge",
			PortRange:   "5173-5183",
		},
		Local: LocalConfig{
			RootDir: "./devcell-root",
		},
	}

	if yamlPath != "" {
		data, err := os.ReadFile(yamlPath)
		if err == nil {
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, err
			}
		} else if !os.IsNotExist(err) {
			return nil, err
		}
	}

	applyEnvOverrides(cfg)

	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("DEVCELL_LISTEN"); v != "" {
		cfg.Listen = v
	}
	if v := os.Getenv("DEVCELL_API_KEY"); v != "" {
		cfg.APIKey = v
	}
	if v := os.Getenv("DEVCELL_DB_PATH"); v != "" {
		cfg.DBPath = v
	}
	if v := os.Getenv("DEVCELL_DRIVER"); v != "" {
		cfg.Driver = v
	}
	if v := os.Getenv("DEVCELL_PRESERVED_PATHS"); v != "" {
		cfg.PreservedPaths = strings.Split(v, ",")
	}
	if v := os.Getenv("DEVCELL_BOOT_MAX_ATTEMPTS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Boot.MaxAttempts = n
		}
	}
	if v := os.Getenv("DEVCELL_BOOT_BACKOFF_BASE_MS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Boot.BackoffBaseMs = n
		}
	}
	if v := os.Getenv("DEVCELL_BOOT_SETTLE_MS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Boot.SettleMs = n
		}
	}
	if v := os.Getenv("DEVCELL_RUN_SHELL_CMD"); v != "" {
		cfg.Run.ShellCmd = v
	}
	if v := os.Getenv("DEVCELL_RUN_HOST"); v != "" {
		cfg.Run.Host = v
	}
	if v := os.Getenv("DEVCELL_RUN_DEFAULT_PORT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Run.DefaultPort = n
		}
	}
	if v := os.Getenv("DEVCELL_RUN_DEV_SERVER_TIMEOUT_MS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Run.DevServerTimeoutMs = n
		}
	}
	if v := os.Getenv("DEVCELL_RUN_STATIC_TIMEOUT_MS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Run.StaticTimeoutMs = n
		}
	}
	if v := os.Getenv("DEVCELL_DOCKER_IMAGE"); v != "" {
		cfg.Docker.Image = v
	}
	if v := os.Getenv("DEVCELL_DOCKER_NETWORK_MODE"); v != "" {
		cfg.Docker.NetworkMode = v
	}
	if v := os.Getenv("DEVCELL_LOCAL_ROOT_DIR"); v != "" {
		cfg.Local.RootDir = v
	}
	if v := os.Getenv("DEVCELL_WATCHDOG_INTERVAL_MS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.WatchdogIntervalMs = n
		}
	}
}
