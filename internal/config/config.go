package config

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const envPrefix = "CONTAINERDECK_"

type Config struct {
	Port           int
	DataDir        string
	CLIPath        string        // Path to the container CLI binary
	LogLevel       slog.Level    // Parsed log level (debug, info, warn, error)
	NoAuth         bool          // Authenticate every connection on connect
	PollInterval   time.Duration // Refresh period while a client is watching
	UpdateCooldown time.Duration // Minimum gap between update checks
	CLIRepo        string        // GitHub owner/name of the CLI
	AppRepo        string        // GitHub owner/name of this daemon
	MinCLIVersion  string        // semver constraint the CLI should satisfy
	WatchCLI       bool          // Re-probe the CLI version when the binary changes
	ConfigFile     string
}

// fileConfig is the YAML shape. Zero values mean "not set".
type fileConfig struct {
	Port           int           `yaml:"port"`
	DataDir        string        `yaml:"dataDir"`
	CLIPath        string        `yaml:"cliPath"`
	LogLevel       string        `yaml:"logLevel"`
	NoAuth         *bool         `yaml:"noAuth"`
	PollInterval   time.Duration `yaml:"pollInterval"`
	UpdateCooldown time.Duration `yaml:"updateCooldown"`
	CLIRepo        string        `yaml:"cliRepo"`
	AppRepo        string        `yaml:"appRepo"`
	MinCLIVersion  string        `yaml:"minCLIVersion"`
	WatchCLI       *bool         `yaml:"watchCLI"`
}

func Parse() (*Config, error) {
	return ParseArgs(os.Args[1:], os.Getenv)
}

// ParseArgs builds a Config from defaults, an optional YAML file, flags and
// CONTAINERDECK_* env vars, in increasing order of precedence.
func ParseArgs(args []string, getenv func(string) string) (*Config, error) {
	cfg := &Config{}
	fs := flag.NewFlagSet("containerdeck", flag.ContinueOnError)

	var logLevel string
	fs.IntVar(&cfg.Port, "port", 5002, "HTTP server port")
	fs.StringVar(&cfg.DataDir, "data-dir", "./data", "Path to data directory (bbolt DB, session token)")
	fs.StringVar(&cfg.CLIPath, "cli-path", "/usr/local/bin/container", "Path to the container CLI")
	fs.StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	fs.BoolVar(&cfg.NoAuth, "no-auth", false, "Disable authentication")
	fs.DurationVar(&cfg.PollInterval, "poll-interval", 5*time.Second, "Refresh period while a client is watching")
	fs.DurationVar(&cfg.UpdateCooldown, "update-cooldown", time.Hour, "Minimum gap between update checks")
	fs.StringVar(&cfg.CLIRepo, "cli-repo", "apple/container", "GitHub repository of the CLI")
	fs.StringVar(&cfg.AppRepo, "app-repo", "cfilipov/containerdeck", "GitHub repository of this daemon")
	fs.StringVar(&cfg.MinCLIVersion, "min-cli-version", ">= 0.1.0", "Version constraint the CLI should satisfy")
	fs.BoolVar(&cfg.WatchCLI, "watch-cli", true, "Re-read the CLI version when the binary changes")
	fs.StringVar(&cfg.ConfigFile, "config", "", "Optional YAML config file")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	explicit := map[string]bool{}
	fs.Visit(func(f *flag.Flag) { explicit[f.Name] = true })

	if v := getenv(envPrefix + "CONFIG"); v != "" {
		cfg.ConfigFile = v
	}
	if cfg.ConfigFile != "" {
		fc, err := loadFile(cfg.ConfigFile)
		if err != nil {
			return nil, err
		}
		fc.apply(cfg, &logLevel, explicit)
	}

	// Env vars override flags (if set)
	if v := getenv(envPrefix + "PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			cfg.Port = p
		}
	}
	if v := getenv(envPrefix + "DATA_DIR"); v != "" {
		cfg.DataDir = v
	}
	if v := getenv(envPrefix + "CLI_PATH"); v != "" {
		cfg.CLIPath = v
	}
	if v := getenv(envPrefix + "LOG_LEVEL"); v != "" {
		logLevel = v
	}
	if v := getenv(envPrefix + "NO_AUTH"); v != "" {
		cfg.NoAuth = truthy(v)
	}
	if v := getenv(envPrefix + "POLL_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.PollInterval = d
		}
	}
	if v := getenv(envPrefix + "UPDATE_COOLDOWN"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.UpdateCooldown = d
		}
	}
	if v := getenv(envPrefix + "CLI_REPO"); v != "" {
		cfg.CLIRepo = v
	}
	if v := getenv(envPrefix + "APP_REPO"); v != "" {
		cfg.AppRepo = v
	}
	if v := getenv(envPrefix + "MIN_CLI_VERSION"); v != "" {
		cfg.MinCLIVersion = v
	}
	if v := getenv(envPrefix + "WATCH_CLI"); v != "" {
		cfg.WatchCLI = truthy(v)
	}

	cfg.LogLevel = parseLogLevel(logLevel)

	if cfg.PollInterval <= 0 {
		return nil, fmt.Errorf("poll interval must be positive, got %s", cfg.PollInterval)
	}
	return cfg, nil
}

func loadFile(path string) (*fileConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	return &fc, nil
}

// apply copies set fields onto cfg unless the matching flag was given on the
// command line.
func (fc *fileConfig) apply(cfg *Config, logLevel *string, explicit map[string]bool) {
	if fc.Port != 0 && !explicit["port"] {
		cfg.Port = fc.Port
	}
	if fc.DataDir != "" && !explicit["data-dir"] {
		cfg.DataDir = fc.DataDir
	}
	if fc.CLIPath != "" && !explicit["cli-path"] {
		cfg.CLIPath = fc.CLIPath
	}
	if fc.LogLevel != "" && !explicit["log-level"] {
		*logLevel = fc.LogLevel
	}
	if fc.NoAuth != nil && !explicit["no-auth"] {
		cfg.NoAuth = *fc.NoAuth
	}
	if fc.PollInterval != 0 && !explicit["poll-interval"] {
		cfg.PollInterval = fc.PollInterval
	}
	if fc.UpdateCooldown != 0 && !explicit["update-cooldown"] {
		cfg.UpdateCooldown = fc.UpdateCooldown
	}
	if fc.CLIRepo != "" && !explicit["cli-repo"] {
		cfg.CLIRepo = fc.CLIRepo
	}
	if fc.AppRepo != "" && !explicit["app-repo"] {
		cfg.AppRepo = fc.AppRepo
	}
	if fc.MinCLIVersion != "" && !explicit["min-cli-version"] {
		cfg.MinCLIVersion = fc.MinCLIVersion
	}
	if fc.WatchCLI != nil && !explicit["watch-cli"] {
		cfg.WatchCLI = *fc.WatchCLI
	}
}

func truthy(v string) bool {
	return v == "1" || strings.EqualFold(v, "true")
}

func parseLogLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
