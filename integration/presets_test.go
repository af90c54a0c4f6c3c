package integration_test

import (
	"testing"

	"github.com/rony4d/go-opera-bridge/integration"
)

// TestDefaultPreset_hasReasonableDefaults guards the baseline values.
func TestDefaultPreset_hasReasonableDefaults(t *testing.T) {
	cfg := integration.DefaultPreset()

	if cfg.Name != "default" {
		t.Fatalf("Name = %q, want 'default'", cfg.Name)
	}
	if cfg.InMemory {
		t.Fatal("default preset must persist state")
	}
	if cfg.CacheMB <= 0 || cfg.CacheMB > 10000 {
		t.Fatalf("CacheMB = %d, want value between 1 and 10000", cfg.CacheMB)
	}
	if cfg.Handles <= 0 {
		t.Fatalf("Handles = %d, want a positive value", cfg.Handles)
	}
	if cfg.CommitInterval <= 0 {
		t.Fatalf("CommitInterval = %v, want a positive interval", cfg.CommitInterval)
	}
	// strong key derivation for production safety
	if cfg.EnableLightKDF {
		t.Fatal("EnableLightKDF should be false by default")
	}
}

func TestDevPreset_overridesDefaults(t *testing.T) {
	defaultCfg := integration.DefaultPreset()
	devCfg := integration.DevPreset()

	if devCfg.Name != "dev" {
		t.Fatalf("Name = %q, want 'dev'", devCfg.Name)
	}
	if !devCfg.InMemory {
		t.Fatal("dev preset should keep state in memory")
	}
	if devCfg.CacheMB >= defaultCfg.CacheMB {
		t.Fatalf("Dev CacheMB (%d) should be smaller than default (%d)", devCfg.CacheMB, defaultCfg.CacheMB)
	}
	if devCfg.CommitInterval >= defaultCfg.CommitInterval {
		t.Fatalf("Dev CommitInterval (%v) should be shorter than default (%v)", devCfg.CommitInterval, defaultCfg.CommitInterval)
	}
	if !devCfg.EnableMetrics || !devCfg.EnableLightKDF {
		t.Fatal("dev preset should enable metrics and light KDF")
	}
}

func TestFullPreset_overridesDefaults(t *testing.T) {
	defaultCfg := integration.DefaultPreset()
	fullCfg := integration.FullPreset()

	if fullCfg.Name != "full" {
		t.Fatalf("Name = %q, want 'full'", fullCfg.Name)
	}
	if fullCfg.CacheMB <= defaultCfg.CacheMB {
		t.Fatalf("Full CacheMB (%d) should be larger than default (%d)", fullCfg.CacheMB, defaultCfg.CacheMB)
	}
	if !fullCfg.EnableMetrics {
		t.Fatal("EnableMetrics should be true for full preset")
	}
	if fullCfg.EnableLightKDF {
		t.Fatal("EnableLightKDF should be false for full preset")
	}
}

func TestGetPresetByName(t *testing.T) {
	for _, name := range []string{"dev", "full", "default"} {
		t.Run(name, func(t *testing.T) {
			cfg, err := integration.GetPresetByName(name)
			if err != nil {
				t.Fatalf("GetPresetByName(%q) returned error: %v", name, err)
			}
			if cfg.Name != name {
				t.Fatalf("Preset name = %q, want %q", cfg.Name, name)
			}
		})
	}

	for _, name := range []string{"unknown", "", "DEV", "archive"} {
		t.Run("invalid/"+name, func(t *testing.T) {
			cfg, err := integration.GetPresetByName(name)
			if err == nil {
				t.Fatalf("GetPresetByName(%q) should return error, got config: %+v", name, cfg)
			}
		})
	}
}

func TestApplyPreset_overridesTarget(t *testing.T) {
	target := integration.PresetConfig{
		Name:           "custom",
		InMemory:       true,
		CacheMB:        100,
		Handles:        10,
		EnableLightKDF: true,
	}
	preset := integration.FullPreset()
	integration.ApplyPreset(&target, preset)

	if target != preset {
		t.Fatalf("ApplyPreset = %+v, want %+v", target, preset)
	}
}

// TestApplyPreset_partialOverride checks that zero numeric fields and an empty
// name leave the target alone.
func TestApplyPreset_partialOverride(t *testing.T) {
	target := integration.DefaultPreset()
	original := target

	integration.ApplyPreset(&target, integration.PresetConfig{CacheMB: 2048})

	if target.CacheMB != 2048 {
		t.Fatalf("CacheMB should be overridden to 2048, got %d", target.CacheMB)
	}
	if target.Name != original.Name || target.Handles != original.Handles || target.CommitInterval != original.CommitInterval {
		t.Fatalf("unset fields changed: %+v", target)
	}
}
