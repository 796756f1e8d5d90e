package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

const (
	DefaultListenAddress = "127.0.0.1:8545"
	DefaultDataDir       = "./klub-data"
	DefaultAcceptedDenom = "upebble"
)

type Config struct {
	ListenAddress string    `toml:"ListenAddress" yaml:"listenAddress"`
	DataDir       string    `toml:"DataDir" yaml:"dataDir"`
	Environment   string    `toml:"Environment" yaml:"environment"`
	LogFile       string    `toml:"LogFile" yaml:"logFile"`
	LogLevel      string    `toml:"LogLevel" yaml:"logLevel"`
	Contract      Contract  `toml:"Contract" yaml:"contract"`
	Setup         Setup     `toml:"Setup" yaml:"setup"`
	RPC           RPC       `toml:"RPC" yaml:"rpc"`
	Journal       Journal   `toml:"Journal" yaml:"journal"`
	Telemetry     Telemetry `toml:"Telemetry" yaml:"telemetry"`
}

func isYAML(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return true
	default:
		return false
	}
}

// Load loads the configuration from the given path. A missing file is
// created with defaults.
func Load(path string) (*Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	}

	cfg := defaults()
	if isYAML(path) {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("config: decode %s: %w", path, err)
		}
	} else {
		meta, err := toml.DecodeFile(path, cfg)
		if err != nil {
			return nil, fmt.Errorf("config: decode %s: %w", path, err)
		}
		if undecoded := meta.Undecoded(); len(undecoded) > 0 {
			return nil, fmt.Errorf("config: unknown field %s in %s", undecoded[0].String(), path)
		}
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func defaults() *Config {
	return &Config{
		ListenAddress: DefaultListenAddress,
		DataDir:       DefaultDataDir,
		Environment:   "dev",
		LogLevel:      "info",
		Contract: Contract{
			AcceptedDenom: DefaultAcceptedDenom,
			ExtraFunds:    "ignore",
		},
		Setup: Setup{
			Name:          "Klub Staked Pebble",
			Symbol:        "kPEBBLE",
			Decimals:      6,
			MinWithdrawal: "0",
		},
		RPC: RPC{
			ClockSkewSeconds:  120,
			RequestsPerMinute: 600,
			Burst:             60,
		},
		Telemetry: Telemetry{Traces: true, Metrics: true},
	}
}

func (c *Config) applyDefaults() {
	if strings.TrimSpace(c.ListenAddress) == "" {
		c.ListenAddress = DefaultListenAddress
	}
	if strings.TrimSpace(c.DataDir) == "" {
		c.DataDir = DefaultDataDir
	}
	if strings.TrimSpace(c.Contract.AcceptedDenom) == "" {
		c.Contract.AcceptedDenom = DefaultAcceptedDenom
	}
	if strings.TrimSpace(c.Contract.ExtraFunds) == "" {
		c.Contract.ExtraFunds = "ignore"
	}
	if strings.TrimSpace(c.Setup.MinWithdrawal) == "" {
		c.Setup.MinWithdrawal = "0"
	}
	if c.Telemetry.Headers == nil {
		c.Telemetry.Headers = map[string]string{}
	}
}

// createDefault creates and saves a default configuration file.
func createDefault(path string) (*Config, error) {
	cfg := defaults()
	cfg.applyDefaults()
	if err := persist(path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes cfg to path, choosing the encoding from the file extension.
func Save(path string, cfg *Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	return persist(path, cfg)
}

func persist(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_TRUNC|os.O_CREATE, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	if isYAML(path) {
		enc := yaml.NewEncoder(f)
		defer enc.Close()
		return enc.Encode(cfg)
	}
	return toml.NewEncoder(f).Encode(cfg)
}
