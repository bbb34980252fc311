package engine

import (
	"bytes"
	"errors"
	"fmt"
	"os"

	"github.com/charmbracelet/log"
	"github.com/pelletier/go-toml/v2"

	"github.com/spaghettifunk/daw/engine/renderer/metadata"
)

// AssetsConfig tells the engine where the compiled shaders live.
type AssetsConfig struct {
	Dir string `toml:"dir"`
	// Shader names, resolved to <dir>/shaders/<name>.spv.
	VertexShader   string `toml:"vertex_shader"`
	FragmentShader string `toml:"fragment_shader"`
	// Keep the asset index in sync with the directory while running.
	Watch bool `toml:"watch"`
}

type Config struct {
	Application ApplicationConfig              `toml:"application"`
	Renderer    metadata.RendererBackendConfig `toml:"renderer"`
	Assets      AssetsConfig                   `toml:"assets"`
}

func DefaultConfig() Config {
	return Config{
		Application: ApplicationConfig{
			StartPosX:   100,
			StartPosY:   100,
			StartWidth:  640,
			StartHeight: 480,
			Name:        "DAW",
			LogLevel:    "info",
		},
		Renderer: metadata.DefaultRendererBackendConfig(),
		Assets: AssetsConfig{
			Dir:            "assets",
			VertexShader:   "ui.vert",
			FragmentShader: "ui.frag",
		},
	}
}

// LoadConfig decodes the TOML file at path on top of base. Keys the file
// does not set keep their value from base; unknown keys are an error.
func LoadConfig(path string, base Config) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return base, err
	}

	cfg := base
	// Slices in base must not be shared with the decoded config.
	cfg.Renderer.ValidationLayers = append([]string(nil), base.Renderer.ValidationLayers...)
	cfg.Renderer.DeviceExtensions = append([]string(nil), base.Renderer.DeviceExtensions...)

	dec := toml.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&cfg); err != nil {
		var strict *toml.StrictMissingError
		if errors.As(err, &strict) {
			return base, fmt.Errorf("%s: %s", path, strict.String())
		}
		return base, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

func (c Config) Validate() error {
	app := c.Application
	if app.Name == "" {
		return errors.New("application.name must not be empty")
	}
	if app.StartWidth == 0 || app.StartHeight == 0 {
		return fmt.Errorf("application size must be positive, got %dx%d", app.StartWidth, app.StartHeight)
	}
	if _, err := log.ParseLevel(string(app.LogLevel)); err != nil {
		return fmt.Errorf("application.log_level: %w", err)
	}
	if err := c.Renderer.Validate(); err != nil {
		return fmt.Errorf("renderer: %w", err)
	}
	if c.Assets.Dir == "" || c.Assets.VertexShader == "" || c.Assets.FragmentShader == "" {
		return errors.New("assets.dir, assets.vertex_shader and assets.fragment_shader are required")
	}
	return nil
}
