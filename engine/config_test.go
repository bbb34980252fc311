package engine

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spaghettifunk/daw/engine/renderer/metadata"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "daw.toml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config rejected: %v", err)
	}
	if cfg.Application.Name != "DAW" || cfg.Application.StartWidth != 640 || cfg.Application.StartHeight != 480 {
		t.Fatalf("have %+v, want DAW 640x480", cfg.Application)
	}
	if cfg.Renderer.ClearColour != [4]float32{1, 1, 1, 1} {
		t.Fatalf("have clear colour %v, want white", cfg.Renderer.ClearColour)
	}
}

func TestLoadConfigOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
[application]
name = "Mixer"
width = 1280
log_level = "debug"

[renderer]
slot_count = 3
threading = "single"
clear_colour = [0.1, 0.1, 0.1, 1.0]
fence_timeout = "2s"

[assets]
watch = true
`)
	cfg, err := LoadConfig(path, DefaultConfig())
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}

	if cfg.Application.Name != "Mixer" || cfg.Application.StartWidth != 1280 {
		t.Fatalf("have %+v", cfg.Application)
	}
	// Not in the file, kept from the defaults.
	if cfg.Application.StartHeight != 480 || cfg.Assets.VertexShader != "ui.vert" {
		t.Fatalf("defaults lost: %+v %+v", cfg.Application, cfg.Assets)
	}
	if cfg.Renderer.SlotCount != 3 || cfg.Renderer.Threading != metadata.ThreadingSingle {
		t.Fatalf("have %+v", cfg.Renderer)
	}
	if cfg.Renderer.ClearColour != [4]float32{0.1, 0.1, 0.1, 1.0} {
		t.Fatalf("have clear colour %v", cfg.Renderer.ClearColour)
	}
	if !cfg.Assets.Watch {
		t.Fatalf("assets.watch not applied")
	}
}

func TestLoadConfigErrors(t *testing.T) {
	base := DefaultConfig()
	tests := []struct {
		name string
		body string
		want string
	}{
		{"unknown key", "[renderer]\nslots = 2\n", "daw.toml"},
		{"wrong type", "[application]\nwidth = \"wide\"\n", "daw.toml"},
		{"syntax", "[application\n", "daw.toml"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := LoadConfig(writeConfig(t, tt.body), base)
			if err == nil {
				t.Fatalf("expected an error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("have %q, want it to mention %q", err, tt.want)
			}
			if cfg.Application != base.Application || cfg.Renderer.SlotCount != base.Renderer.SlotCount {
				t.Fatalf("base config not returned on error")
			}
		})
	}

	if _, err := LoadConfig(filepath.Join(t.TempDir(), "missing.toml"), base); !os.IsNotExist(err) {
		t.Fatalf("have %v, want not-exist", err)
	}
}

func TestLoadConfigDoesNotAliasBase(t *testing.T) {
	base := DefaultConfig()
	path := writeConfig(t, "[renderer]\nvalidation_layers = [\"VK_LAYER_custom\"]\n")
	cfg, err := LoadConfig(path, base)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Renderer.ValidationLayers[0] != "VK_LAYER_custom" {
		t.Fatalf("have %v", cfg.Renderer.ValidationLayers)
	}
	if base.Renderer.ValidationLayers[0] != metadata.DefaultValidationLayer {
		t.Fatalf("base modified: %v", base.Renderer.ValidationLayers)
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty name", func(c *Config) { c.Application.Name = "" }},
		{"zero width", func(c *Config) { c.Application.StartWidth = 0 }},
		{"zero height", func(c *Config) { c.Application.StartHeight = 0 }},
		{"bad log level", func(c *Config) { c.Application.LogLevel = "loud" }},
		{"zero slots", func(c *Config) { c.Renderer.SlotCount = 0 }},
		{"bad threading", func(c *Config) { c.Renderer.Threading = "triple" }},
		{"bad fence timeout", func(c *Config) { c.Renderer.FenceTimeout = "soon" }},
		{"no shader", func(c *Config) { c.Assets.FragmentShader = "" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			if err := cfg.Validate(); err == nil {
				t.Fatalf("expected %s to be rejected", tt.name)
			}
		})
	}
}
