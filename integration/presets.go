// Package integration assembles a bridge node from its parts: named node
// presets for the launcher and the deterministic fakenet used for development
// and tests.
//
// Presets bundle storage and runtime settings (cache sizes, file handles,
// commit cadence, metrics) into named profiles so operators pick one with
// --preset instead of tuning each flag.
//
// Usage:
//
//	cfg := integration.DevPreset()     // in-memory state, for development
//	cfg := integration.DefaultPreset() // LevelDB, moderate caches
//	cfg := integration.FullPreset()    // LevelDB, large caches, metrics on
package integration

import (
	"fmt"
	"time"
)

// PresetConfig captures the tunable parameters that vary across preset
// profiles. Network identity and RPC endpoints are not part of a preset.
type PresetConfig struct {
	Name           string        // human-readable identifier (e.g., "dev", "full")
	InMemory       bool          // keep the world state in memory only; nothing survives a restart
	CacheMB        int           // LevelDB cache
	Handles        int           // LevelDB open file handles
	CommitInterval time.Duration // how often the node persists state and events
	EnableMetrics  bool          // expose Prometheus metrics
	EnableLightKDF bool          // use faster (weaker) key derivation for keystore passwords
}

// DefaultPreset is a LevelDB-backed node with moderate caches.
func DefaultPreset() PresetConfig {
	return PresetConfig{
		Name:           "default",
		InMemory:       false,
		CacheMB:        512,
		Handles:        256,
		CommitInterval: 5 * time.Second,
		EnableMetrics:  false,
		EnableLightKDF: false,
	}
}

// DevPreset keeps the state in memory, commits often and turns on metrics.
// Light KDF weakens keystore security; never use it for production keys.
func DevPreset() PresetConfig {
	cfg := DefaultPreset()
	cfg.Name = "dev"
	cfg.InMemory = true
	cfg.CacheMB = 64
	cfg.Handles = 64
	cfg.CommitInterval = time.Second
	cfg.EnableMetrics = true
	cfg.EnableLightKDF = true
	return cfg
}

// FullPreset is meant for production bridge nodes: large caches keep the token
// and registry storage hot, and metrics feed dashboards.
func FullPreset() PresetConfig {
	cfg := DefaultPreset()
	cfg.Name = "full"
	cfg.CacheMB = 2048
	cfg.Handles = 1024
	cfg.CommitInterval = 10 * time.Second
	cfg.EnableMetrics = true
	return cfg
}

// GetPresetByName looks up a preset by its identifier, enabling --preset=full.
func GetPresetByName(name string) (PresetConfig, error) {
	switch name {
	case "dev":
		return DevPreset(), nil
	case "full":
		return FullPreset(), nil
	case "default":
		return DefaultPreset(), nil
	default:
		return PresetConfig{}, fmt.Errorf("unknown preset: %q (valid: dev, full, default)", name)
	}
}

// ApplyPreset merges a preset into target. Non-zero numeric fields and the
// name override; boolean switches are always applied.
func ApplyPreset(target *PresetConfig, preset PresetConfig) {
	if preset.CacheMB > 0 {
		target.CacheMB = preset.CacheMB
	}
	if preset.Handles > 0 {
		target.Handles = preset.Handles
	}
	if preset.CommitInterval > 0 {
		target.CommitInterval = preset.CommitInterval
	}
	target.InMemory = preset.InMemory
	target.EnableMetrics = preset.EnableMetrics
	target.EnableLightKDF = preset.EnableLightKDF
	if preset.Name != "" {
		target.Name = preset.Name
	}
}
