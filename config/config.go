package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"vsachain/core/genesis"
)

// Environment variables that override file settings.
const (
	EnvName         = "VSA_ENV"
	EnvJWTSecret    = "VSA_RPC_JWT_SECRET"
	EnvKeystorePass = "VSA_KEYSTORE_PASS"
)

type Config struct {
	Env         string               `toml:"Env" yaml:"env"`
	GenesisFile string               `toml:"GenesisFile" yaml:"genesisFile"`
	Node        NodeConfig           `toml:"node" yaml:"node"`
	Auction     AuctionConfig        `toml:"auction" yaml:"auction"`
	RPC         RPCConfig            `toml:"rpc" yaml:"rpc"`
	Logging     LoggingConfig        `toml:"logging" yaml:"logging"`
	Telemetry   TelemetryConfig      `toml:"telemetry" yaml:"telemetry"`
	Archive     ArchiveConfig        `toml:"archive" yaml:"archive"`
	Webhooks    WebhookConfig        `toml:"webhooks" yaml:"webhooks"`
	Exports     ExportsConfig        `toml:"exports" yaml:"exports"`
	Genesis     *genesis.GenesisSpec `toml:"genesis,omitempty" yaml:"genesis,omitempty"`
}

// Load loads the configuration from the given path, writing a default file
// first when none exists. Files ending in .yaml or .yml are parsed as YAML,
// everything else as TOML.
func Load(path string) (*Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		cfg, err := createDefault(path)
		if err != nil {
			return nil, err
		}
		cfg.applyEnv()
		return cfg, cfg.Validate()
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := &Config{}
	if isYAML(path) {
		dec := yaml.NewDecoder(bytes.NewReader(raw))
		dec.KnownFields(true)
		if err := dec.Decode(cfg); err != nil {
			return nil, fmt.Errorf("config: decode %s: %w", path, err)
		}
	} else {
		meta, err := toml.Decode(string(raw), cfg)
		if err != nil {
			return nil, fmt.Errorf("config: decode %s: %w", path, err)
		}
		if undecoded := meta.Undecoded(); len(undecoded) > 0 {
			keys := make([]string, 0, len(undecoded))
			for _, key := range undecoded {
				keys = append(keys, key.String())
			}
			sort.Strings(keys)
			return nil, fmt.Errorf("config: %s has unknown keys: %s", path, strings.Join(keys, ", "))
		}
	}

	cfg.applyDefaults()
	cfg.applyEnv()
	if err := cfg.resolveGenesis(path); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns the configuration written for a fresh node.
func Default() *Config {
	cfg := &Config{
		Env: "local",
		Node: NodeConfig{
			DataDir: "./vsa-data",
			Storage: "leveldb",
		},
		Auction: AuctionConfig{
			NativeToken:     "VSA",
			Tokens:          []string{},
			MaxPhaseSeconds: int64((30 * 24 * time.Hour).Seconds()),
		},
		RPC: RPCConfig{
			ListenAddress:         "127.0.0.1:8545",
			RateLimitPerSecond:    20,
			RateLimitBurst:        40,
			ReadHeaderTimeoutSecs: 10,
		},
		Logging: LoggingConfig{Level: "info"},
		Archive: ArchiveConfig{Driver: "sqlite", DSN: "./vsa-data/archive.db"},
		Webhooks: WebhookConfig{
			MaxAttempts:          5,
			InitialBackoffMillis: 500,
			TimeoutSeconds:       10,
			QueueSize:            256,
		},
		Exports: ExportsConfig{Dir: "./vsa-data/exports"},
		Genesis: &genesis.GenesisSpec{
			GenesisTime: time.Now().UTC().Truncate(time.Second).Format(time.RFC3339),
			Alloc:       map[string]map[string]string{},
		},
	}
	return cfg
}

// createDefault creates and saves a default configuration file.
func createDefault(path string) (*Config, error) {
	cfg := Default()
	if err := persist(path, cfg); err != nil {
		return nil, err
	}
	if err := cfg.Genesis.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	def := Default()
	if strings.TrimSpace(c.Env) == "" {
		c.Env = def.Env
	}
	if strings.TrimSpace(c.Node.DataDir) == "" {
		c.Node.DataDir = def.Node.DataDir
	}
	if strings.TrimSpace(c.Node.Storage) == "" {
		c.Node.Storage = def.Node.Storage
	}
	if strings.TrimSpace(c.Auction.NativeToken) == "" {
		c.Auction.NativeToken = def.Auction.NativeToken
	}
	if strings.TrimSpace(c.RPC.ListenAddress) == "" {
		c.RPC.ListenAddress = def.RPC.ListenAddress
	}
	if c.RPC.ReadHeaderTimeoutSecs == 0 {
		c.RPC.ReadHeaderTimeoutSecs = def.RPC.ReadHeaderTimeoutSecs
	}
	if strings.TrimSpace(c.Logging.Level) == "" {
		c.Logging.Level = def.Logging.Level
	}
	if c.Archive.Driver == "" {
		c.Archive.Driver = def.Archive.Driver
	}
	if c.Webhooks.MaxAttempts == 0 {
		c.Webhooks.MaxAttempts = def.Webhooks.MaxAttempts
	}
	if c.Webhooks.InitialBackoffMillis == 0 {
		c.Webhooks.InitialBackoffMillis = def.Webhooks.InitialBackoffMillis
	}
	if c.Webhooks.TimeoutSeconds == 0 {
		c.Webhooks.TimeoutSeconds = def.Webhooks.TimeoutSeconds
	}
	if c.Webhooks.QueueSize == 0 {
		c.Webhooks.QueueSize = def.Webhooks.QueueSize
	}
	if strings.TrimSpace(c.Exports.Dir) == "" {
		c.Exports.Dir = filepath.Join(c.Node.DataDir, "exports")
	}
}

func (c *Config) applyEnv() {
	if env := strings.TrimSpace(os.Getenv(EnvName)); env != "" {
		c.Env = env
	}
	if secret := os.Getenv(EnvJWTSecret); secret != "" {
		c.RPC.JWTSecret = secret
	}
}

// resolveGenesis loads GenesisFile relative to the config file. An inline
// genesis section and a genesis file are mutually exclusive.
func (c *Config) resolveGenesis(configPath string) error {
	file := strings.TrimSpace(c.GenesisFile)
	if file == "" {
		if c.Genesis != nil {
			if err := c.Genesis.Validate(); err != nil {
				return fmt.Errorf("config: genesis: %w", err)
			}
		}
		return nil
	}
	if c.Genesis != nil {
		return fmt.Errorf("config: GenesisFile and an inline genesis section are mutually exclusive")
	}
	if !filepath.IsAbs(file) {
		file = filepath.Join(filepath.Dir(configPath), file)
	}
	spec, err := genesis.LoadGenesisSpec(file)
	if err != nil {
		return err
	}
	c.Genesis = spec
	return nil
}

// LogsRedacted returns the fields safe to print at startup.
func (c *Config) LogsRedacted() map[string]string {
	secret := ""
	if c.RPC.JWTSecret != "" {
		secret = "set"
	}
	return map[string]string{
		"env":       c.Env,
		"dataDir":   c.Node.DataDir,
		"storage":   c.Node.Storage,
		"rpc":       c.RPC.ListenAddress,
		"jwtSecret": secret,
		"native":    c.Auction.NativeToken,
		"tokens":    strings.Join(c.Auction.Tokens, ","),
	}
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

func isYAML(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return true
	default:
		return false
	}
}
