package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"

	"voucherchain/crypto"
)

// Config carries the daemon settings loaded from TOML.
type Config struct {
	RPCAddress      string `toml:"RPCAddress"`
	DataDir         string `toml:"DataDir"`
	TokenSymbol     string `toml:"TokenSymbol"`
	MintAuthority   string `toml:"MintAuthority"`
	BatchWorkBudget uint64 `toml:"BatchWorkBudget"`
	Environment     string `toml:"Environment"`
}

const defaultConfigTemplate = `# voucherd configuration
RPCAddress = "127.0.0.1:8645"
DataDir = "./voucherd-data"
TokenSymbol = "VUSD"
# Bech32 address allowed to mint ledger funds. Empty disables minting.
MintAuthority = ""
# Work ceiling for voucher_createBatch (quantity x schedule count). 0 uses the
# engine default.
BatchWorkBudget = 0
Environment = "local"
`

// Load loads the configuration from the given path, creating a commented
// default file when none exists.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	}
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, err
	}
	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func createDefault(path string) (*Config, error) {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	if err := os.WriteFile(path, []byte(defaultConfigTemplate), 0o644); err != nil {
		return nil, err
	}
	cfg := &Config{}
	if _, err := toml.Decode(defaultConfigTemplate, cfg); err != nil {
		return nil, err
	}
	cfg.normalize()
	return cfg, nil
}

func (c *Config) normalize() {
	c.RPCAddress = strings.TrimSpace(c.RPCAddress)
	c.DataDir = strings.TrimSpace(c.DataDir)
	c.TokenSymbol = strings.ToUpper(strings.TrimSpace(c.TokenSymbol))
	c.MintAuthority = strings.TrimSpace(c.MintAuthority)
	c.Environment = strings.TrimSpace(c.Environment)
	if c.RPCAddress == "" {
		c.RPCAddress = "127.0.0.1:8645"
	}
	if c.DataDir == "" {
		c.DataDir = "./voucherd-data"
	}
	if c.TokenSymbol == "" {
		c.TokenSymbol = "VUSD"
	}
	if c.Environment == "" {
		c.Environment = "local"
	}
}

// Validate checks decodable addresses and sane values.
func (c *Config) Validate() error {
	if c.MintAuthority != "" {
		if _, err := crypto.DecodeAddress(c.MintAuthority); err != nil {
			return fmt.Errorf("config: invalid MintAuthority: %w", err)
		}
	}
	return nil
}

// MintAuthorityBytes decodes the configured mint authority. The zero address
// is returned when none is configured, which disables minting.
func (c *Config) MintAuthorityBytes() ([20]byte, error) {
	var out [20]byte
	if c.MintAuthority == "" {
		return out, nil
	}
	addr, err := crypto.DecodeAddress(c.MintAuthority)
	if err != nil {
		return out, err
	}
	return addr.Array(), nil
}
