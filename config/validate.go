package config

import (
	"fmt"
	"strings"
)

const maxProtocolFeeBps = 1500

// Validate checks the loaded configuration for values the daemon would
// otherwise reject at runtime.
func Validate(cfg *Config) error {
	if strings.TrimSpace(cfg.RPCAddress) == "" {
		return fmt.Errorf("config: RPCAddress must not be empty")
	}
	if strings.TrimSpace(cfg.DataDir) == "" {
		return fmt.Errorf("config: DataDir must not be empty")
	}
	m := cfg.Market
	if m.FeeBps > maxProtocolFeeBps {
		return fmt.Errorf("market: FeeBps %d exceeds cap %d", m.FeeBps, maxProtocolFeeBps)
	}
	if m.FeeWithOverrideBps > maxProtocolFeeBps {
		return fmt.Errorf("market: FeeWithOverrideBps %d exceeds cap %d", m.FeeWithOverrideBps, maxProtocolFeeBps)
	}
	if (m.FeeBps > 0 || m.FeeWithOverrideBps > 0) && strings.TrimSpace(m.FeeRecipient) == "" {
		return fmt.Errorf("market: FeeRecipient required while fees are non-zero")
	}
	if _, err := ParseAddress(m.FeeRecipient); err != nil {
		return err
	}
	if _, err := ParseAddress(m.DefaultPaymentAsset); err != nil {
		return err
	}
	if _, err := ParseAddress(m.MarketAddress); err != nil {
		return err
	}
	if _, err := ParseAmount(m.MinPriceFloor); err != nil {
		return err
	}
	for _, admin := range m.Admins {
		addr, err := ParseAddress(admin)
		if err != nil {
			return err
		}
		if addr == ([20]byte{}) {
			return fmt.Errorf("market: admin address must not be zero")
		}
	}
	return nil
}
