// Configuration validation
package config

import (
	"fmt"
	"path/filepath"

	errs "photobooth/internal/errors"
)

// Validate checks the configuration for values the appliance cannot run with
func Validate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("%w: nil config", errs.ErrInvalidConfig)
	}

	checks := []func(*Config) error{
		validatePaths,
		validateDelivery,
		validateCamera,
		validateHardware,
		validateFilters,
		validateSession,
	}
	for _, check := range checks {
		if err := check(cfg); err != nil {
			return fmt.Errorf("%w: %v", errs.ErrInvalidConfig, err)
		}
	}
	return nil
}

func validatePaths(cfg *Config) error {
	p := cfg.Paths
	if p.CaptureFile == "" || p.VariantDir == "" || p.PublicDir == "" || p.TokenFile == "" {
		return fmt.Errorf("paths: capture_file, variant_dir, public_dir and token_file are required")
	}
	if filepath.Clean(p.VariantDir) == filepath.Clean(p.PublicDir) {
		return fmt.Errorf("paths: variant_dir must differ from public_dir")
	}
	return nil
}

func validateDelivery(cfg *Config) error {
	if cfg.Delivery.Host == "" {
		return fmt.Errorf("delivery: host is required")
	}
	if cfg.Delivery.QRSize < 64 {
		return fmt.Errorf("delivery: qr_size must be at least 64, got %d", cfg.Delivery.QRSize)
	}
	return nil
}

func validateCamera(cfg *Config) error {
	c := cfg.Camera
	switch c.Driver {
	case "device":
	case "file":
		if c.SourceFile == "" {
			return fmt.Errorf("camera: source_file is required for the file driver")
		}
	default:
		return fmt.Errorf("camera: unknown driver %q (must be device or file)", c.Driver)
	}
	if c.Width <= 0 || c.Height <= 0 {
		return fmt.Errorf("camera: invalid resolution %dx%d", c.Width, c.Height)
	}
	if c.Warmup < 0 {
		return fmt.Errorf("camera: warmup_frames must not be negative")
	}
	return nil
}

func validateHardware(cfg *Config) error {
	h := cfg.Hardware
	switch h.Driver {
	case "gpio":
		if h.CoinPin == "" || h.ButtonPin == "" || h.LEDPin == "" {
			return fmt.Errorf("hardware: coin_pin, button_pin and led_pin are required for the gpio driver")
		}
	case "stdin":
	default:
		return fmt.Errorf("hardware: unknown driver %q (must be gpio or stdin)", h.Driver)
	}
	if h.Debounce < 0 {
		return fmt.Errorf("hardware: debounce must not be negative")
	}
	return nil
}

func validateFilters(cfg *Config) error {
	f := cfg.Filters
	if f.Variants <= 0 {
		return fmt.Errorf("filters: variants must be positive, got %d", f.Variants)
	}
	if f.Workers < f.Variants {
		return fmt.Errorf("filters: workers (%d) must be at least variants (%d)", f.Workers, f.Variants)
	}
	if f.MaxMediumPasses <= 0 {
		return fmt.Errorf("filters: max_medium_passes must be positive, got %d", f.MaxMediumPasses)
	}
	if f.Timeout <= 0 {
		return fmt.Errorf("filters: timeout must be positive")
	}
	return nil
}

func validateSession(cfg *Config) error {
	if cfg.Session.Countdown < 0 {
		return fmt.Errorf("session: countdown must not be negative")
	}
	if cfg.Session.CountdownStep < 0 {
		return fmt.Errorf("session: countdown_step must not be negative")
	}
	return nil
}
