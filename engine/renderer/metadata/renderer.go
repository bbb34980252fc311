package metadata

import (
	"errors"
	"fmt"
	"time"
)

// ThreadingMode selects where the frame loop runs.
type ThreadingMode string

const (
	// The main thread polls events and runs one frame per poll.
	ThreadingSingle ThreadingMode = "single"
	// A dedicated goroutine runs frames; the main thread only polls events.
	ThreadingDual ThreadingMode = "dual"
)

const (
	DefaultSlotCount       = 2
	MaxSlotCount           = 8
	DefaultValidationLayer = "VK_LAYER_KHRONOS_validation"
)

// RendererBackendConfig is passed explicitly to every renderer instance so
// that two instances never share mutable settings.
type RendererBackendConfig struct {
	/** @brief The name of the application */
	ApplicationName string `toml:"-"`
	/** @brief Number of frames that may be in flight at once. */
	SlotCount uint32 `toml:"slot_count"`
	/** @brief Where the frame loop runs. */
	Threading ThreadingMode `toml:"threading"`
	/** @brief Enables the validation layers and the debug report callback. */
	EnableValidation bool     `toml:"validation"`
	ValidationLayers []string `toml:"validation_layers"`
	/** @brief Device extensions required on top of the swapchain extension. */
	DeviceExtensions []string `toml:"device_extensions"`
	/** @brief Use mailbox presentation when the surface offers it. */
	PreferMailbox bool `toml:"prefer_mailbox"`
	/** @brief RGBA colour the framebuffer is cleared to. */
	ClearColour [4]float32 `toml:"clear_colour"`
	/** @brief Bound on in-flight fence waits, e.g. "2s". Empty waits forever. */
	FenceTimeout string `toml:"fence_timeout"`
}

func DefaultRendererBackendConfig() RendererBackendConfig {
	return RendererBackendConfig{
		SlotCount:        DefaultSlotCount,
		Threading:        ThreadingDual,
		EnableValidation: false,
		ValidationLayers: []string{DefaultValidationLayer},
		PreferMailbox:    true,
		ClearColour:      [4]float32{1.0, 1.0, 1.0, 1.0},
	}
}

// FenceTimeoutDuration parses FenceTimeout. Zero means wait forever.
func (c RendererBackendConfig) FenceTimeoutDuration() (time.Duration, error) {
	if c.FenceTimeout == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(c.FenceTimeout)
	if err != nil {
		return 0, fmt.Errorf("invalid fence_timeout %q: %w", c.FenceTimeout, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("invalid fence_timeout %q: negative duration", c.FenceTimeout)
	}
	return d, nil
}

func (c RendererBackendConfig) Validate() error {
	if c.SlotCount == 0 || c.SlotCount > MaxSlotCount {
		return fmt.Errorf("slot_count must be within [1, %d], got %d", MaxSlotCount, c.SlotCount)
	}
	switch c.Threading {
	case ThreadingSingle, ThreadingDual:
	default:
		return fmt.Errorf("unknown threading mode %q", c.Threading)
	}
	if c.EnableValidation && len(c.ValidationLayers) == 0 {
		return errors.New("validation enabled without any validation layer")
	}
	if _, err := c.FenceTimeoutDuration(); err != nil {
		return err
	}
	return nil
}
