package config

import (
	"fmt"
	"strings"

	"pawnchain/observability/logging"
	"pawnchain/storage"
)

// MaxFlashFeeBps caps the configured flash fee.
const MaxFlashFeeBps = 10_000

func Validate(c *Config) error {
	if strings.TrimSpace(c.DataDir) == "" && c.StorageBackend != storage.BackendMemory {
		return fmt.Errorf("DataDir required for %s backend", c.StorageBackend)
	}
	switch c.StorageBackend {
	case storage.BackendMemory, storage.BackendLevelDB, storage.BackendBolt:
	default:
		return fmt.Errorf("storage: unknown backend %q", c.StorageBackend)
	}
	if c.Protocol.ChainID == 0 {
		return fmt.Errorf("protocol: ChainID must be non-zero")
	}
	if c.Protocol.FlashFeeBps > MaxFlashFeeBps {
		return fmt.Errorf("protocol: FlashFeeBps %d exceeds %d", c.Protocol.FlashFeeBps, MaxFlashFeeBps)
	}
	if strings.TrimSpace(c.RPC.Address) == "" {
		return fmt.Errorf("rpc: Address required")
	}
	if c.RPC.RateLimitPerSec < 0 || c.RPC.RateLimitBurst < 0 {
		return fmt.Errorf("rpc: rate limits must not be negative")
	}
	if c.RPC.RateLimitPerSec > 0 && c.RPC.RateLimitBurst == 0 {
		return fmt.Errorf("rpc: RateLimitBurst required when RateLimitPerSec is set")
	}
	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("log: %w", err)
	}
	if (c.Telemetry.Traces || c.Telemetry.Metrics) && strings.TrimSpace(c.Telemetry.Endpoint) == "" {
		return fmt.Errorf("telemetry: Endpoint required when exporters are enabled")
	}
	return nil
}
