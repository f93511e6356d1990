package config

import (
	"encoding/hex"
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
)

// Config is the top-level daemon configuration.
type Config struct {
	RPCAddress  string `toml:"RPCAddress"`
	DataDir     string `toml:"DataDir"`
	ServiceName string `toml:"ServiceName"`
	Environment string `toml:"Environment"`
	Market      Market `toml:"Market"`
}

// Market holds the marketplace genesis parameters applied when the state
// store is empty. Addresses are 20-byte hex strings with or without the 0x
// prefix.
type Market struct {
	FeeBps              uint32   `toml:"FeeBps"`
	FeeWithOverrideBps  uint32   `toml:"FeeWithOverrideBps"`
	FeeRecipient        string   `toml:"FeeRecipient"`
	MinPriceFloor       string   `toml:"MinPriceFloor"`
	DefaultPaymentAsset string   `toml:"DefaultPaymentAsset"`
	MarketAddress       string   `toml:"MarketAddress"`
	Admins              []string `toml:"Admins"`
	BiddingActive       bool     `toml:"BiddingActive"`
}

// Load reads the configuration from path, writing a default file when none
// exists yet.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	}
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, err
	}
	if strings.TrimSpace(cfg.ServiceName) == "" {
		cfg.ServiceName = "marketd"
	}
	if strings.TrimSpace(cfg.Environment) == "" {
		cfg.Environment = "local"
	}
	if cfg.Market.Admins == nil {
		cfg.Market.Admins = []string{}
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// createDefault creates and saves a default configuration file.
func createDefault(path string) (*Config, error) {
	cfg := &Config{
		RPCAddress:  ":8545",
		DataDir:     "./market-data",
		ServiceName: "marketd",
		Environment: "local",
		Market: Market{
			// Fees stay disabled until an operator configures a recipient.
			FeeBps:             0,
			FeeWithOverrideBps: 0,
			MinPriceFloor:      "0",
			Admins:             []string{},
			BiddingActive:      true,
		},
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	if err := persist(path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
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

	return toml.NewEncoder(f).Encode(cfg)
}

// ParseAddress decodes a 20-byte hex address. The empty string decodes to
// the zero address.
func ParseAddress(value string) ([20]byte, error) {
	var addr [20]byte
	trimmed := strings.TrimPrefix(strings.TrimSpace(value), "0x")
	if trimmed == "" {
		return addr, nil
	}
	raw, err := hex.DecodeString(trimmed)
	if err != nil {
		return addr, fmt.Errorf("config: invalid address %q: %w", value, err)
	}
	if len(raw) != 20 {
		return addr, fmt.Errorf("config: address %q must be 20 bytes", value)
	}
	copy(addr[:], raw)
	return addr, nil
}

// ParseAmount decodes a non-negative decimal amount. The empty string
// decodes to zero.
func ParseAmount(value string) (*big.Int, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return big.NewInt(0), nil
	}
	amount, ok := new(big.Int).SetString(trimmed, 10)
	if !ok || amount.Sign() < 0 {
		return nil, fmt.Errorf("config: invalid amount %q", value)
	}
	return amount, nil
}
