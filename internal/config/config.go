// Package config handles configuration file loading and parsing.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// Default configuration values.
const (
	DefaultVolume         = 50
	DefaultSampleRate     = 16000
	DefaultToneSampleRate = 22050
	DefaultMaxRecord      = 60 * time.Second
	DefaultChunkSize      = 4096
	DefaultDevice         = "default"
	DefaultFrequency      = 440.0
	DefaultHistoryKeep    = 500
)

// Driver names accepted in the [output], [tone] and [input] sections.
const (
	DriverNone      = "none"
	DriverSimulated = "simulated"
	DriverALSA      = "alsa"
	DriverSpeaker   = "speaker"
	// DriverOutput makes tones share the output transport.
	DriverOutput = "output"
	// DriverShared makes the input use the same physical interface as output.
	DriverShared = "shared"
)

// Config represents the audiofocus configuration.
type Config struct {
	Audio      AudioConfig      `toml:"audio" yaml:"audio" json:"audio"`
	Output     OutputConfig     `toml:"output" yaml:"output" json:"output"`
	Tone       ToneConfig       `toml:"tone" yaml:"tone" json:"tone"`
	Input      InputConfig      `toml:"input" yaml:"input" json:"input"`
	Simulation SimulationConfig `toml:"simulation" yaml:"simulation" json:"simulation"`
	History    HistoryConfig    `toml:"history" yaml:"history" json:"history"`
}

// AudioConfig holds manager-wide audio settings.
type AudioConfig struct {
	Volume         int      `toml:"volume" yaml:"volume" json:"volume"`                               // 0-100
	SampleRate     int      `toml:"sample_rate" yaml:"sample_rate" json:"sample_rate"`                // Recording rate
	ToneSampleRate int      `toml:"tone_sample_rate" yaml:"tone_sample_rate" json:"tone_sample_rate"` // Tone synthesis rate
	MaxRecord      Duration `toml:"max_record" yaml:"max_record" json:"max_record"`                   // e.g. "60s" or 60000
	ChunkSize      int      `toml:"chunk_size" yaml:"chunk_size" json:"chunk_size"`                   // Bytes per playback write
}

// OutputConfig selects the playback transport.
type OutputConfig struct {
	Driver string `toml:"driver" yaml:"driver" json:"driver"` // none, simulated, alsa, speaker
	Device string `toml:"device" yaml:"device" json:"device"`
}

// ToneConfig selects the tone transport.
type ToneConfig struct {
	Driver string `toml:"driver" yaml:"driver" json:"driver"` // none, output, simulated, speaker
}

// InputConfig selects the recording transport.
type InputConfig struct {
	Driver string `toml:"driver" yaml:"driver" json:"driver"` // none, shared, simulated, alsa
	Device string `toml:"device" yaml:"device" json:"device"`
}

// SimulationConfig tunes the simulated driver.
type SimulationConfig struct {
	Realtime  bool    `toml:"realtime" yaml:"realtime" json:"realtime"`
	Frequency float64 `toml:"frequency" yaml:"frequency" json:"frequency"` // Capture test tone
}

// HistoryConfig controls the log of finished streams.
type HistoryConfig struct {
	Enabled bool   `toml:"enabled" yaml:"enabled" json:"enabled"`
	Path    string `toml:"path" yaml:"path" json:"path"` // Empty = data directory
	Keep    int    `toml:"keep" yaml:"keep" json:"keep"` // 0 = unlimited
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() *Config {
	return &Config{
		Audio: AudioConfig{
			Volume:         DefaultVolume,
			SampleRate:     DefaultSampleRate,
			ToneSampleRate: DefaultToneSampleRate,
			MaxRecord:      Duration(DefaultMaxRecord),
			ChunkSize:      DefaultChunkSize,
		},
		Output: OutputConfig{
			Driver: DriverSimulated,
			Device: DefaultDevice,
		},
		Tone: ToneConfig{
			Driver: DriverOutput,
		},
		Input: InputConfig{
			Driver: DriverShared,
			Device: DefaultDevice,
		},
		Simulation: SimulationConfig{
			Realtime:  true,
			Frequency: DefaultFrequency,
		},
		History: HistoryConfig{
			Enabled: true,
			Keep:    DefaultHistoryKeep,
		},
	}
}

// ConfigPath returns the path to the config file.
// Uses XDG_CONFIG_HOME if set, otherwise ~/.config.
func ConfigPath() string {
	configHome := os.Getenv("XDG_CONFIG_HOME")
	if configHome == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return ""
		}
		configHome = filepath.Join(home, ".config")
	}
	return filepath.Join(configHome, "audiofocus", "config.toml")
}

// DataPath returns the directory recordings are written to by default.
// Uses XDG_DATA_HOME if set, otherwise ~/.local/share.
func DataPath() string {
	dataHome := os.Getenv("XDG_DATA_HOME")
	if dataHome == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return ""
		}
		dataHome = filepath.Join(home, ".local", "share")
	}
	return filepath.Join(dataHome, "audiofocus")
}

// HistoryPath returns the path to the stream history JSONL file.
func (c *Config) HistoryPath() string {
	if c.History.Path != "" {
		return ExpandPath(c.History.Path)
	}
	return filepath.Join(DataPath(), "history.jsonl")
}

// Load loads configuration from the specified path.
// If path is empty, uses the default config path.
// Returns default config if file doesn't exist.
func Load(path string) (*Config, error) {
	if path == "" {
		path = ConfigPath()
	}

	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// Start with defaults, then overlay with file contents
	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Save writes the configuration to the specified path.
// Creates parent directories if needed.
func (c *Config) Save(path string) error {
	if path == "" {
		path = ConfigPath()
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := toml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	// Write atomically via temp file
	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return os.Rename(tmpPath, path)
}

// ValidOutputDrivers returns the accepted [output] drivers.
func ValidOutputDrivers() []string {
	return []string{DriverNone, DriverSimulated, DriverALSA, DriverSpeaker}
}

// ValidToneDrivers returns the accepted [tone] drivers.
func ValidToneDrivers() []string {
	return []string{DriverNone, DriverOutput, DriverSimulated, DriverSpeaker}
}

// ValidInputDrivers returns the accepted [input] drivers.
func ValidInputDrivers() []string {
	return []string{DriverNone, DriverShared, DriverSimulated, DriverALSA}
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Audio.Volume < 0 || c.Audio.Volume > 100 {
		return fmt.Errorf("volume must be between 0 and 100, got %d", c.Audio.Volume)
	}
	if c.Audio.SampleRate <= 0 {
		return fmt.Errorf("sample_rate must be positive, got %d", c.Audio.SampleRate)
	}
	if c.Audio.ToneSampleRate <= 0 {
		return fmt.Errorf("tone_sample_rate must be positive, got %d", c.Audio.ToneSampleRate)
	}
	if c.Audio.MaxRecord < 0 {
		return fmt.Errorf("max_record must not be negative, got %s", c.Audio.MaxRecord.Duration())
	}
	if c.Audio.ChunkSize < 0 {
		return fmt.Errorf("chunk_size must not be negative, got %d", c.Audio.ChunkSize)
	}

	if !slices.Contains(ValidOutputDrivers(), c.Output.Driver) {
		return fmt.Errorf("invalid output driver %q, must be one of: %s", c.Output.Driver, strings.Join(ValidOutputDrivers(), ", "))
	}
	if !slices.Contains(ValidToneDrivers(), c.Tone.Driver) {
		return fmt.Errorf("invalid tone driver %q, must be one of: %s", c.Tone.Driver, strings.Join(ValidToneDrivers(), ", "))
	}
	if !slices.Contains(ValidInputDrivers(), c.Input.Driver) {
		return fmt.Errorf("invalid input driver %q, must be one of: %s", c.Input.Driver, strings.Join(ValidInputDrivers(), ", "))
	}

	if c.Input.Driver == DriverShared && c.Output.Driver != DriverSimulated && c.Output.Driver != DriverALSA {
		return fmt.Errorf("input driver %q requires a simulated or alsa output, got %q", DriverShared, c.Output.Driver)
	}

	if c.History.Keep < 0 {
		return fmt.Errorf("history keep must not be negative, got %d", c.History.Keep)
	}

	if c.Simulation.Frequency < 0 {
		return fmt.Errorf("simulation frequency must not be negative, got %g", c.Simulation.Frequency)
	}

	return nil
}

// ExpandPath expands ~ to the user's home directory.
func ExpandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err == nil {
			return filepath.Join(home, path[2:])
		}
	}
	return path
}
