package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"vestchain/crypto"
	"vestchain/native/vesting"
)

// APIKey is one gateway credential pair.
type APIKey struct {
	Key    string `toml:"Key"`
	Secret string `toml:"Secret"`
}

// GenesisBalance seeds a bootstrap account balance so schedules can be funded.
type GenesisBalance struct {
	Address string `toml:"Address"`
	Token   string `toml:"Token"`
	Amount  uint64 `toml:"Amount"`
}

type Config struct {
	ListenAddress string           `toml:"ListenAddress"`
	DataDir       string           `toml:"DataDir"`
	Env           string           `toml:"Env"`
	TimestampSkew string           `toml:"TimestampSkew"`
	APIKeys       []APIKey         `toml:"APIKeys"`
	Genesis       []GenesisBalance `toml:"Genesis"`
}

// Load loads the configuration from the given path, creating a default file
// when none exists yet.
func Load(path string) (*Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	}
	cfg := &Config{}
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, err
	}
	applyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if strings.TrimSpace(cfg.ListenAddress) == "" {
		cfg.ListenAddress = ":8082"
	}
	if strings.TrimSpace(cfg.DataDir) == "" {
		cfg.DataDir = "./vestd-data"
	}
	if strings.TrimSpace(cfg.Env) == "" {
		cfg.Env = "local"
	}
	if strings.TrimSpace(cfg.TimestampSkew) == "" {
		cfg.TimestampSkew = "2m"
	}
}

// Validate rejects configurations the gateway could not serve.
func Validate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config: nil configuration")
	}
	if _, err := cfg.Skew(); err != nil {
		return fmt.Errorf("config: invalid TimestampSkew: %w", err)
	}
	for i, key := range cfg.APIKeys {
		if strings.TrimSpace(key.Key) == "" || strings.TrimSpace(key.Secret) == "" {
			return fmt.Errorf("config: APIKeys[%d] requires both Key and Secret", i)
		}
	}
	for i, bal := range cfg.Genesis {
		if _, err := crypto.DecodeAddress(bal.Address); err != nil {
			return fmt.Errorf("config: Genesis[%d].Address: %w", i, err)
		}
		if _, err := vesting.NormalizeToken(bal.Token); err != nil {
			return fmt.Errorf("config: Genesis[%d].Token: %w", i, err)
		}
		if bal.Amount == 0 {
			return fmt.Errorf("config: Genesis[%d].Amount must be positive", i)
		}
	}
	return nil
}

// Skew parses the configured timestamp skew window.
func (c *Config) Skew() (time.Duration, error) {
	return time.ParseDuration(strings.TrimSpace(c.TimestampSkew))
}

func createDefault(path string) (*Config, error) {
	cfg := &Config{}
	applyDefaults(cfg)
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	if err := toml.NewEncoder(f).Encode(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
