// Package config loads the renderer settings from a TOML file and keeps
// them current while the program runs.
package config

import (
	"bytes"
	"os"

	"github.com/cockroachdb/errors"
	"github.com/pelletier/go-toml/v2"

	"github.com/vkngwrapper/deferred/logging"
)

const (
	PresentModeMailbox = "mailbox"
	PresentModeFIFO    = "fifo"
)

type Window struct {
	Title  string `toml:"title"`
	Width  int    `toml:"width"`
	Height int    `toml:"height"`
}

type Vulkan struct {
	Validation  bool   `toml:"validation"`
	PresentMode string `toml:"present_mode"`
}

type Render struct {
	ClearColour [4]float32 `toml:"clear_colour"`
}

type Log struct {
	Level string `toml:"level"`
}

type Config struct {
	Window Window `toml:"window"`
	Vulkan Vulkan `toml:"vulkan"`
	Render Render `toml:"render"`
	Log    Log    `toml:"log"`
}

func Default() *Config {
	return &Config{
		Window: Window{
			Title:  "Deferred",
			Width:  800,
			Height: 600,
		},
		Vulkan: Vulkan{
			Validation:  true,
			PresentMode: PresentModeMailbox,
		},
		Render: Render{
			ClearColour: [4]float32{0, 0, 0, 1},
		},
		Log: Log{
			Level: "info",
		},
	}
}

// Load reads path over the defaults. A missing file yields the defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return Default(), nil
	} else if err != nil {
		return nil, errors.Wrapf(err, "read config %s", path)
	}

	cfg, err := Parse(data)
	if err != nil {
		return nil, errors.Wrapf(err, "config %s", path)
	}
	return cfg, nil
}

func Parse(data []byte) (*Config, error) {
	cfg := Default()

	dec := toml.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(cfg); err != nil {
		return nil, errors.Wrap(err, "decode toml")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if c.Window.Width <= 0 || c.Window.Height <= 0 {
		return errors.Newf("window size %dx%d must be positive", c.Window.Width, c.Window.Height)
	}

	switch c.Vulkan.PresentMode {
	case PresentModeMailbox, PresentModeFIFO:
	default:
		return errors.Newf("unknown present mode %q", c.Vulkan.PresentMode)
	}

	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		return err
	}
	return nil
}
