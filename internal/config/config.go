// Package config resolves kit settings from defaults, an optional yaml
// file, KIBAN_* environment variables and command-line flags, in that
// order of increasing precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/kibankit/kiban-agent-kit/internal/cache"
	kiterr "github.com/kibankit/kiban-agent-kit/internal/errors"
)

type GlobalFlags struct {
	ConfigPath  string
	JSON        bool
	Plain       bool
	RPCURL      string
	ChainID     int64
	PrivateKey  string
	EnableTools string
	Timeout     string
	Retries     int
	NoCache     bool
	Select      string
	ResultsOnly bool
	Verbose     bool
}

type Settings struct {
	OutputMode    string
	RPCURL        string
	ChainID       int64
	PrivateKey    string
	EnableTools   []string
	Timeout       time.Duration
	Retries       int
	CacheEnabled  bool
	CachePath     string
	CacheLockPath string
	MarketAPIBase string
	SelectFields  []string
	ResultsOnly   bool
	Verbose       bool
}

type fileConfig struct {
	Output  string `yaml:"output"`
	ChainID *int64 `yaml:"chain_id"`
	RPCURL  string `yaml:"rpc_url"`
	Timeout string `yaml:"timeout"`
	Retries *int   `yaml:"retries"`
	Cache   struct {
		Enabled  *bool  `yaml:"enabled"`
		Path     string `yaml:"path"`
		LockPath string `yaml:"lock_path"`
	} `yaml:"cache"`
	Market struct {
		APIBase string `yaml:"api_base"`
	} `yaml:"market"`
}

func Load(flags GlobalFlags) (Settings, error) {
	settings, err := defaultSettings()
	if err != nil {
		return Settings{}, err
	}

	cfgPath, err := resolveConfigPath(flags.ConfigPath)
	if err != nil {
		return Settings{}, err
	}

	if err := applyFileConfig(cfgPath, &settings); err != nil {
		return Settings{}, err
	}

	applyEnv(&settings)

	if err := applyFlags(flags, &settings); err != nil {
		return Settings{}, err
	}

	if settings.OutputMode == "" {
		settings.OutputMode = "json"
	}
	if settings.ChainID == 0 {
		settings.ChainID = 1
	}
	if settings.Timeout <= 0 {
		settings.Timeout = 10 * time.Second
	}
	if settings.Retries < 0 {
		settings.Retries = 0
	}

	return settings, nil
}

func defaultSettings() (Settings, error) {
	cachePath, lockPath, err := defaultCachePaths()
	if err != nil {
		return Settings{}, err
	}
	return Settings{
		OutputMode:    "json",
		ChainID:       1,
		Timeout:       10 * time.Second,
		Retries:       2,
		CacheEnabled:  true,
		CachePath:     cachePath,
		CacheLockPath: lockPath,
	}, nil
}

func resolveConfigPath(input string) (string, error) {
	if strings.TrimSpace(input) != "" {
		return input, nil
	}
	base := os.Getenv("XDG_CONFIG_HOME")
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", kiterr.Wrap(kiterr.CodeConfig, "resolve home directory", err)
		}
		base = filepath.Join(home, ".config")
	}
	return filepath.Join(base, "kiban", "config.yaml"), nil
}

func defaultCachePaths() (string, string, error) {
	dbPath, lockPath, err := cache.DefaultPaths()
	if err != nil {
		return "", "", kiterr.Wrap(kiterr.CodeConfig, "resolve cache directory", err)
	}
	return dbPath, lockPath, nil
}

func applyFileConfig(path string, settings *Settings) error {
	buf, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return kiterr.Wrap(kiterr.CodeConfig, "read config", err)
	}

	var cfg fileConfig
	if err := yaml.Unmarshal(buf, &cfg); err != nil {
		return kiterr.Wrap(kiterr.CodeConfig, "parse config yaml", err)
	}

	if cfg.Output != "" {
		settings.OutputMode = strings.ToLower(cfg.Output)
	}
	if cfg.ChainID != nil {
		settings.ChainID = *cfg.ChainID
	}
	if cfg.RPCURL != "" {
		settings.RPCURL = cfg.RPCURL
	}
	if cfg.Timeout != "" {
		d, err := time.ParseDuration(cfg.Timeout)
		if err != nil {
			return kiterr.Wrap(kiterr.CodeConfig, "config timeout", err)
		}
		settings.Timeout = d
	}
	if cfg.Retries != nil {
		settings.Retries = *cfg.Retries
	}
	if cfg.Cache.Enabled != nil {
		settings.CacheEnabled = *cfg.Cache.Enabled
	}
	if cfg.Cache.Path != "" {
		settings.CachePath = cfg.Cache.Path
	}
	if cfg.Cache.LockPath != "" {
		settings.CacheLockPath = cfg.Cache.LockPath
	}
	if cfg.Market.APIBase != "" {
		settings.MarketAPIBase = cfg.Market.APIBase
	}

	return nil
}

func applyEnv(settings *Settings) {
	if v := os.Getenv("KIBAN_OUTPUT"); v != "" {
		settings.OutputMode = strings.ToLower(v)
	}
	if v := os.Getenv("KIBAN_CHAIN_ID"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			settings.ChainID = n
		}
	}
	if v := os.Getenv("KIBAN_RPC_URL"); v != "" {
		settings.RPCURL = v
	}
	if v := os.Getenv("KIBAN_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			settings.Timeout = d
		}
	}
	if v := os.Getenv("KIBAN_RETRIES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			settings.Retries = n
		}
	}
	if v := os.Getenv("KIBAN_NO_CACHE"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			settings.CacheEnabled = !b
		}
	}
	if v := os.Getenv("KIBAN_CACHE_PATH"); v != "" {
		settings.CachePath = v
	}
	if v := os.Getenv("KIBAN_CACHE_LOCK_PATH"); v != "" {
		settings.CacheLockPath = v
	}
	if v := os.Getenv("KIBAN_MARKET_API_BASE"); v != "" {
		settings.MarketAPIBase = v
	}
	if v := os.Getenv("KIBAN_VERBOSE"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			settings.Verbose = b
		}
	}
}

func applyFlags(flags GlobalFlags, settings *Settings) error {
	if flags.JSON && flags.Plain {
		return kiterr.New(kiterr.CodeUsage, "cannot use --json and --plain together")
	}
	if flags.JSON {
		settings.OutputMode = "json"
	}
	if flags.Plain {
		settings.OutputMode = "plain"
	}
	if flags.RPCURL != "" {
		settings.RPCURL = flags.RPCURL
	}
	if flags.ChainID != 0 {
		settings.ChainID = flags.ChainID
	}
	if flags.PrivateKey != "" {
		settings.PrivateKey = flags.PrivateKey
	}

	if strings.TrimSpace(flags.EnableTools) != "" {
		parts := strings.Split(flags.EnableTools, ",")
		allowed := make([]string, 0, len(parts))
		for _, part := range parts {
			v := strings.TrimSpace(part)
			if v != "" {
				allowed = append(allowed, v)
			}
		}
		settings.EnableTools = allowed
	}

	if flags.Timeout != "" {
		d, err := time.ParseDuration(flags.Timeout)
		if err != nil {
			return kiterr.Wrap(kiterr.CodeUsage, "parse --timeout", err)
		}
		settings.Timeout = d
	}
	if flags.Retries >= 0 {
		settings.Retries = flags.Retries
	}
	if flags.NoCache {
		settings.CacheEnabled = false
	}
	if strings.TrimSpace(flags.Select) != "" {
		parts := strings.Split(flags.Select, ",")
		fields := make([]string, 0, len(parts))
		for _, part := range parts {
			v := strings.TrimSpace(part)
			if v != "" {
				fields = append(fields, v)
			}
		}
		settings.SelectFields = fields
	}
	settings.ResultsOnly = flags.ResultsOnly
	if flags.Verbose {
		settings.Verbose = true
	}

	if settings.OutputMode != "json" && settings.OutputMode != "plain" {
		return kiterr.New(kiterr.CodeUsage, "output must be json or plain")
	}
	if settings.ChainID < 0 {
		return kiterr.New(kiterr.CodeConfig, fmt.Sprintf("invalid chain id %d", settings.ChainID))
	}

	return nil
}
