package config

import nativecommon "pawnchain/native/common"

// Pauses switches individual modules off. A paused module rejects every
// mutating call; reads keep working.
type Pauses struct {
	Bundle   bool `toml:"Bundle"`
	Loan     bool `toml:"Loan"`
	Flash    bool `toml:"Flash"`
	Rollover bool `toml:"Rollover"`
}

// View converts the switches into the module pause view.
func (p Pauses) View() nativecommon.StaticPauses {
	return nativecommon.StaticPauses{
		"bundle":   p.Bundle,
		"loan":     p.Loan,
		"flash":    p.Flash,
		"rollover": p.Rollover,
	}
}

// Protocol describes the deployed contract set.
type Protocol struct {
	Name             string `toml:"Name"`
	ChainID          uint64 `toml:"ChainID"`
	CurrencySymbol   string `toml:"CurrencySymbol"`
	CurrencyDecimals uint8  `toml:"CurrencyDecimals"`
	FlashFeeBps      uint32 `toml:"FlashFeeBps"`
	FixCurrency      bool   `toml:"FixCurrency"`
}

// Log controls the structured logger.
type Log struct {
	Level      string `toml:"Level"`
	Env        string `toml:"Env"`
	File       string `toml:"File,omitempty"`
	MaxSizeMB  int    `toml:"MaxSizeMB,omitempty"`
	MaxBackups int    `toml:"MaxBackups,omitempty"`
	MaxAgeDays int    `toml:"MaxAgeDays,omitempty"`
}

// Telemetry configures the OTLP exporters.
type Telemetry struct {
	Endpoint string            `toml:"Endpoint"`
	Insecure bool              `toml:"Insecure"`
	Traces   bool              `toml:"Traces"`
	Metrics  bool              `toml:"Metrics"`
	Headers  map[string]string `toml:"Headers,omitempty"`
}

// RPC configures the read API.
type RPC struct {
	Address           string  `toml:"Address"`
	RateLimitPerSec   float64 `toml:"RateLimitPerSec"`
	RateLimitBurst    int     `toml:"RateLimitBurst"`
	ReadHeaderTimeout int     `toml:"ReadHeaderTimeout"`
}
