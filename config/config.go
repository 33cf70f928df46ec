package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Live      LiveConfig      `yaml:"live"`
	Audio     AudioConfig     `yaml:"audio"`
	Playback  PlaybackConfig  `yaml:"playback"`
	Tools     ToolsConfig     `yaml:"tools"`
	Reconnect ReconnectConfig `yaml:"reconnect"`
	Settings  SettingsConfig  `yaml:"settings"`
	HTTP      HTTPConfig      `yaml:"http"`
	Pushover  PushoverConfig  `yaml:"pushover"`
	Log       LogConfig       `yaml:"log"`
}

type LiveConfig struct {
	// Transport is "websocket" (raw protocol) or "genai" (Go SDK).
	Transport     string        `yaml:"transport"`
	APIKey        string        `yaml:"api_key"`
	URL           string        `yaml:"url"`
	Model         string        `yaml:"model"`
	AutoConnect   bool          `yaml:"auto_connect"`
	Timezone      string        `yaml:"timezone"`
	Transcription *bool         `yaml:"transcription"`
	DialTimeout   time.Duration `yaml:"dial_timeout"`
	DialAttempts  int           `yaml:"dial_attempts"`
}

type AudioConfig struct {
	// Input is "malgo", "portaudio" or "file".
	Input string `yaml:"input"`
	// Output is "malgo", "wav" or "null".
	Output     string  `yaml:"output"`
	InputFile  string  `yaml:"input_file"`
	OutputFile string  `yaml:"output_file"`
	Realtime   *bool   `yaml:"realtime"`
	Loop       bool    `yaml:"loop"`
	Gain       float32 `yaml:"gain"`
	BlockSize  int     `yaml:"block_size"`
}

type PlaybackConfig struct {
	FlushOnInterrupt bool `yaml:"flush_on_interrupt"`
}

type ToolsConfig struct {
	ShutdownDelay  time.Duration `yaml:"shutdown_delay"`
	RespondUnknown *bool         `yaml:"respond_unknown"`
	DryRunLinks    bool          `yaml:"dry_run_links"`
}

type ReconnectConfig struct {
	Delay       time.Duration `yaml:"delay"`
	MaxAttempts int           `yaml:"max_attempts"`
	Multiplier  float64       `yaml:"multiplier"`
	MaxDelay    time.Duration `yaml:"max_delay"`
	ManualGuard time.Duration `yaml:"manual_guard"`
	// SettingsDelay is the pause between dropping and reopening a session
	// after a settings change.
	SettingsDelay time.Duration `yaml:"settings_delay"`
}

type SettingsConfig struct {
	// Backend is "file" or "redis".
	Backend       string `yaml:"backend"`
	Dir           string `yaml:"dir"`
	Key           string `yaml:"key"`
	RedisAddr     string `yaml:"redis_addr"`
	RedisPassword string `yaml:"redis_password"`
	RedisDB       int    `yaml:"redis_db"`
	RedisPrefix   string `yaml:"redis_prefix"`
}

type HTTPConfig struct {
	Enabled       *bool  `yaml:"enabled"`
	Addr          string `yaml:"addr"`
	AuthToken     string `yaml:"auth_token"`
	RatePerMinute int    `yaml:"rate_per_minute"`
	Burst         int    `yaml:"burst"`
}

type PushoverConfig struct {
	Token   string `yaml:"token"`
	UserKey string `yaml:"user_key"`
	Enabled bool   `yaml:"enabled"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	expanded := os.ExpandEnv(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	cfg.setDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// Validate rejects values main cannot wire.
func (c *Config) Validate() error {
	var errs []error
	if c.Live.APIKey == "" {
		errs = append(errs, errors.New("live.api_key is required"))
	}
	switch c.Live.Transport {
	case "websocket", "genai":
	default:
		errs = append(errs, fmt.Errorf("unknown live.transport %q", c.Live.Transport))
	}
	if c.Live.Timezone != "" {
		if _, err := time.LoadLocation(c.Live.Timezone); err != nil {
			errs = append(errs, fmt.Errorf("live.timezone: %w", err))
		}
	}
	switch c.Audio.Input {
	case "malgo", "portaudio":
	case "file":
		if c.Audio.InputFile == "" {
			errs = append(errs, errors.New("audio.input_file is required for file input"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown audio.input %q", c.Audio.Input))
	}
	switch c.Audio.Output {
	case "malgo", "null":
	case "wav":
		if c.Audio.OutputFile == "" {
			errs = append(errs, errors.New("audio.output_file is required for wav output"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown audio.output %q", c.Audio.Output))
	}
	switch c.Settings.Backend {
	case "file", "redis":
	default:
		errs = append(errs, fmt.Errorf("unknown settings.backend %q", c.Settings.Backend))
	}
	return errors.Join(errs...)
}

func (c *Config) setDefaults() {
	if c.Live.Transport == "" {
		c.Live.Transport = "websocket"
	}
	if c.Live.Model == "" {
		c.Live.Model = "gemini-2.5-flash-native-audio-preview-09-2025"
	}
	if c.Live.Transcription == nil {
		c.Live.Transcription = boolPtr(true)
	}
	if c.Live.DialTimeout == 0 {
		c.Live.DialTimeout = 45 * time.Second
	}
	if c.Live.DialAttempts == 0 {
		c.Live.DialAttempts = 1
	}
	if c.Audio.Input == "" {
		c.Audio.Input = "malgo"
	}
	if c.Audio.Output == "" {
		c.Audio.Output = "malgo"
	}
	if c.Audio.Realtime == nil {
		c.Audio.Realtime = boolPtr(true)
	}
	if c.Audio.Gain == 0 {
		c.Audio.Gain = 5.0
	}
	if c.Audio.BlockSize == 0 {
		c.Audio.BlockSize = 4096
	}
	if c.Tools.ShutdownDelay == 0 {
		c.Tools.ShutdownDelay = time.Second
	}
	if c.Tools.RespondUnknown == nil {
		c.Tools.RespondUnknown = boolPtr(true)
	}
	if c.Reconnect.Delay == 0 {
		c.Reconnect.Delay = 2 * time.Second
	}
	if c.Reconnect.Multiplier == 0 {
		c.Reconnect.Multiplier = 1.0
	}
	if c.Reconnect.MaxDelay == 0 {
		c.Reconnect.MaxDelay = 30 * time.Second
	}
	if c.Reconnect.ManualGuard == 0 {
		c.Reconnect.ManualGuard = 3 * time.Second
	}
	if c.Reconnect.SettingsDelay == 0 {
		c.Reconnect.SettingsDelay = 500 * time.Millisecond
	}
	if c.Settings.Backend == "" {
		c.Settings.Backend = "file"
	}
	if c.Settings.Dir == "" {
		c.Settings.Dir = "./data"
	}
	if c.Settings.Key == "" {
		c.Settings.Key = "companion_settings"
	}
	if c.Settings.RedisAddr == "" {
		c.Settings.RedisAddr = "localhost:6379"
	}
	if c.Settings.RedisPrefix == "" {
		c.Settings.RedisPrefix = "voice-companion"
	}
	if c.HTTP.Enabled == nil {
		c.HTTP.Enabled = boolPtr(true)
	}
	if c.HTTP.Addr == "" {
		c.HTTP.Addr = "127.0.0.1:8080"
	}
	if c.HTTP.RatePerMinute == 0 {
		c.HTTP.RatePerMinute = 30
	}
	if c.HTTP.Burst == 0 {
		c.HTTP.Burst = 5
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}
}

// Location resolves live.timezone, defaulting to UTC.
func (c *Config) Location() *time.Location {
	if c.Live.Timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(c.Live.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

func boolPtr(v bool) *bool {
	return &v
}
