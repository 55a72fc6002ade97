// Appliance configuration loaded from YAML
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete appliance configuration
type Config struct {
	Paths    PathsConfig    `yaml:"paths"`
	Delivery DeliveryConfig `yaml:"delivery"`
	Camera   CameraConfig   `yaml:"camera"`
	Hardware HardwareConfig `yaml:"hardware"`
	Filters  FiltersConfig  `yaml:"filters"`
	Session  SessionConfig  `yaml:"session"`
	Display  DisplayConfig  `yaml:"display"`
	Server   ServerConfig   `yaml:"server"`
}

// PathsConfig contains the session-scoped filesystem layout
type PathsConfig struct {
	CaptureFile string `yaml:"capture_file"` // fixed path the camera writes to
	VariantDir  string `yaml:"variant_dir"`  // holds 1.jpg..N.jpg
	PublicDir   string `yaml:"public_dir"`   // served under /img/
	TokenFile   string `yaml:"token_file"`   // QR code png, overwritten per session
}

// DeliveryConfig contains download link settings
type DeliveryConfig struct {
	Host   string `yaml:"host"`    // host part of http://<host>/img/<archive>
	QRSize int    `yaml:"qr_size"` // QR code edge length in pixels
}

// CameraConfig contains camera settings
type CameraConfig struct {
	Driver     string `yaml:"driver"` // device, file
	Device     int    `yaml:"device"`
	SourceFile string `yaml:"source_file"` // used by the file driver
	Width      int    `yaml:"width"`
	Height     int    `yaml:"height"`
	HFlip      bool   `yaml:"hflip"`
	Warmup     int    `yaml:"warmup_frames"`
}

// HardwareConfig contains the trigger device settings
type HardwareConfig struct {
	Driver    string        `yaml:"driver"` // gpio, stdin
	CoinPin   string        `yaml:"coin_pin"`
	ButtonPin string        `yaml:"button_pin"`
	LEDPin    string        `yaml:"led_pin"`
	Debounce  time.Duration `yaml:"debounce"`
}

// FiltersConfig contains composition and variant production settings
type FiltersConfig struct {
	Variants        int           `yaml:"variants"`
	Workers         int           `yaml:"workers"`
	MaxMediumPasses int           `yaml:"max_medium_passes"`
	DiscardSchimmer bool          `yaml:"discard_schimmer"`
	FaceCascade     string        `yaml:"face_cascade"`
	CaptionsFile    string        `yaml:"captions_file"`
	Timeout         time.Duration `yaml:"timeout"`
}

// SessionConfig contains orchestrator timings
type SessionConfig struct {
	Countdown     int           `yaml:"countdown"`
	CountdownStep time.Duration `yaml:"countdown_step"`
}

// DisplayConfig contains kiosk window settings
type DisplayConfig struct {
	Enabled    bool   `yaml:"enabled"`
	Fullscreen bool   `yaml:"fullscreen"`
	Title      string `yaml:"title"`
	WifiImage  string `yaml:"wifi_image"` // optional image shown beside the download QR
}

// ServerConfig contains the public file server settings
type ServerConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
}

// Default returns the configuration of the reference appliance
func Default() *Config {
	return &Config{
		Paths: PathsConfig{
			CaptureFile: "/tmp/schnappischuss.jpg",
			VariantDir:  "/tmp/schnappischuss",
			PublicDir:   "/var/www/html/img",
			TokenFile:   "/tmp/schnappi_qr.png",
		},
		Delivery: DeliveryConfig{
			Host:   "10.42.0.1",
			QRSize: 370,
		},
		Camera: CameraConfig{
			Driver: "device",
			Device: 0,
			Width:  1920,
			Height: 1080,
			HFlip:  true,
			Warmup: 5,
		},
		Hardware: HardwareConfig{
			Driver:    "gpio",
			CoinPin:   "GPIO17",
			ButtonPin: "GPIO22",
			LEDPin:    "GPIO23",
			Debounce:  time.Second,
		},
		Filters: FiltersConfig{
			Variants:        4,
			Workers:         4,
			MaxMediumPasses: 8,
			DiscardSchimmer: false,
			FaceCascade:     "/usr/share/opencv4/lbpcascades/lbpcascade_frontalface.xml",
			Timeout:         2 * time.Minute,
		},
		Session: SessionConfig{
			Countdown:     3,
			CountdownStep: time.Second,
		},
		Display: DisplayConfig{
			Enabled:    true,
			Fullscreen: true,
			Title:      "Schnappi - Die Schnappschusskiste",
		},
		Server: ServerConfig{
			Enabled: false,
			Addr:    ":8080",
		},
	}
}

// Load reads a YAML configuration file over the defaults.
// An empty path returns the validated defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, Validate(cfg)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}
