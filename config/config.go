// Package config loads the grblwheel YAML configuration.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Environment variables read by Load.
const (
	EnvConfig = "GRBLWHEEL_CONFIG"
	EnvPort   = "GRBLWHEEL_PORT"
)

// Config is the full application configuration.
type Config struct {
	Server      ServerConfig     `yaml:"server"`
	Serial      SerialConfig     `yaml:"serial"`
	Paths       PathsConfig      `yaml:"paths"`
	GPIOEnabled bool             `yaml:"gpio_enabled"`
	Macros      map[string]Macro `yaml:"macros"`
	Hardware    HardwareConfig   `yaml:"hardware"`
	LogLevel    string           `yaml:"log_level"`

	// File is the config file that was loaded, empty when running on
	// defaults.
	File string `yaml:"-"`
}

type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// Addr returns the listen address.
func (s ServerConfig) Addr() string {
	return s.Host + ":" + strconv.Itoa(s.Port)
}

type SerialConfig struct {
	// Port is connected on startup when set.
	Port string `yaml:"port"`
	Baud int    `yaml:"baud"`

	// ReadTimeout bounds a single serial read.
	ReadTimeout time.Duration `yaml:"read_timeout"`

	// ReplyTimeout bounds the wait for `ok`/`error` after a command.
	// Zero waits indefinitely.
	ReplyTimeout time.Duration `yaml:"reply_timeout"`

	// StatusInterval is how often a `?` status report is requested.
	// Zero disables polling.
	StatusInterval time.Duration `yaml:"status_interval"`
}

type PathsConfig struct {
	UploadDir string `yaml:"upload_dir"`
	ConfigDir string `yaml:"config_dir"`

	// FrontendDir holds the built web UI. It is served when it contains
	// an index.html.
	FrontendDir string `yaml:"frontend_dir"`
}

type HardwareConfig struct {
	// Buttons maps a GPIO pin to a macro name or job action.
	Buttons       map[int]string     `yaml:"buttons"`
	Encoder       EncoderConfig      `yaml:"encoder"`
	JogModeSwitch []int              `yaml:"jog_mode_switch"`
	JogSteps      map[string]float64 `yaml:"jog_steps"`
}

type EncoderConfig struct {
	CLK *int `yaml:"clk"`
	DT  *int `yaml:"dt"`
	SW  *int `yaml:"sw"`
}

// Macro is a list of command lines. In YAML it may be written as a
// single string or a sequence.
type Macro []string

func (m *Macro) UnmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case yaml.ScalarNode:
		if value.Tag == "!!null" {
			*m = nil
			return nil
		}
		var s string
		err := value.Decode(&s)
		if err != nil {
			return err
		}
		*m = Macro{s}
		return nil
	case yaml.SequenceNode:
		var lines []string
		err := value.Decode(&lines)
		if err != nil {
			return err
		}
		*m = lines
		return nil
	}
	return fmt.Errorf("line %d: macro must be a string or a list of strings", value.Line)
}

func intPtr(v int) *int { return &v }

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{Host: "0.0.0.0", Port: 8765},
		Serial: SerialConfig{
			Baud:           115200,
			ReadTimeout:    100 * time.Millisecond,
			StatusInterval: 500 * time.Millisecond,
		},
		Paths: PathsConfig{
			UploadDir:   "gcode",
			ConfigDir:   ".",
			FrontendDir: filepath.Join("frontend", "dist"),
		},
		Macros: map[string]Macro{
			"zero_xy": {"G10 L20 X0 Y0"},
			"zero_z":  {"G10 L20 Z0"},
			"z_probe": {"G38.2 Z-50 F100", "G10 L20 Z0"},
		},
		Hardware: HardwareConfig{
			Buttons:  map[int]string{},
			Encoder:  EncoderConfig{CLK: intPtr(5), DT: intPtr(6)},
			JogSteps: map[string]float64{"x": 0.1, "y": 0.1, "z": 0.01},
		},
		LogLevel: "info",
	}
}

var candidates = []string{"config.yaml", filepath.Join("config", "config.yaml")}

// Load reads the configuration from path. An empty path falls back to
// $GRBLWHEEL_CONFIG, then config.yaml and config/config.yaml in the
// working directory. A missing file yields the defaults. Values from the
// file overlay the defaults, merging nested maps.
//
// A .env file in the working directory is loaded into the environment
// first, without overriding variables that are already set.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	if path == "" {
		path = os.Getenv(EnvConfig)
	}
	if path == "" {
		for _, c := range candidates {
			if _, err := os.Stat(c); err == nil {
				path = c
				break
			}
		}
	}

	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
			path = ""
		case err != nil:
			return nil, fmt.Errorf("read config: %w", err)
		default:
			err = yaml.Unmarshal(data, cfg)
			if err != nil {
				return nil, fmt.Errorf("parse config %s: %w", path, err)
			}
			cfg.File = path
			for _, dir := range []*string{&cfg.Paths.UploadDir, &cfg.Paths.FrontendDir} {
				if *dir != "" && !filepath.IsAbs(*dir) {
					*dir = filepath.Join(filepath.Dir(path), *dir)
				}
			}
		}
	}

	if v := os.Getenv(EnvPort); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("parse %s: %w", EnvPort, err)
		}
		cfg.Server.Port = port
	}

	return cfg, nil
}
