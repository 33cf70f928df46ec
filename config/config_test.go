package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"voice-companion/config"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatalf("writing config: %v", err)
	}
	return path
}

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("TEST_GEMINI_KEY", "secret-key")

	cfg, err := config.Load(writeConfig(t, "live:\n  api_key: ${TEST_GEMINI_KEY}\n"))
	if err != nil {
		t.Fatalf("loading: %v", err)
	}

	if cfg.Live.APIKey != "secret-key" {
		t.Errorf("api key not expanded: %q", cfg.Live.APIKey)
	}
	if cfg.Live.Transport != "websocket" {
		t.Errorf("transport: got %q", cfg.Live.Transport)
	}
	if !*cfg.Live.Transcription || !*cfg.Tools.RespondUnknown || !*cfg.HTTP.Enabled {
		t.Error("boolean defaults should be on")
	}
	if cfg.Audio.BlockSize != 4096 || cfg.Audio.Gain != 5.0 {
		t.Errorf("audio defaults: %+v", cfg.Audio)
	}
	if cfg.Reconnect.Delay != 2*time.Second || cfg.Reconnect.ManualGuard != 3*time.Second {
		t.Errorf("reconnect defaults: %+v", cfg.Reconnect)
	}
	if cfg.Tools.ShutdownDelay != time.Second {
		t.Errorf("shutdown delay: got %v", cfg.Tools.ShutdownDelay)
	}
	if cfg.Settings.Key != "companion_settings" {
		t.Errorf("settings key: got %q", cfg.Settings.Key)
	}
	if cfg.Location() != time.UTC {
		t.Errorf("location: got %v", cfg.Location())
	}
}

func TestLoad_Overrides(t *testing.T) {
	body := `
live:
  api_key: k
  transport: genai
  timezone: Asia/Dhaka
  transcription: false
audio:
  input: file
  input_file: ./in.wav
  output: wav
  output_file: ./out.wav
reconnect:
  delay: 500ms
  multiplier: 2
  max_attempts: 4
tools:
  respond_unknown: false
`
	cfg, err := config.Load(writeConfig(t, body))
	if err != nil {
		t.Fatalf("loading: %v", err)
	}

	if cfg.Live.Transport != "genai" || *cfg.Live.Transcription {
		t.Errorf("live: %+v", cfg.Live)
	}
	if cfg.Reconnect.Delay != 500*time.Millisecond || cfg.Reconnect.Multiplier != 2 || cfg.Reconnect.MaxAttempts != 4 {
		t.Errorf("reconnect: %+v", cfg.Reconnect)
	}
	if *cfg.Tools.RespondUnknown {
		t.Error("respond_unknown should be off")
	}
	if cfg.Location().String() != "Asia/Dhaka" {
		t.Errorf("location: got %v", cfg.Location())
	}
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"missing key", "live:\n  transport: websocket\n", "api_key"},
		{"unknown transport", "live:\n  api_key: k\n  transport: grpc\n", "transport"},
		{"file input without path", "live:\n  api_key: k\naudio:\n  input: file\n", "input_file"},
		{"unknown settings backend", "live:\n  api_key: k\nsettings:\n  backend: s3\n", "settings.backend"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := config.Load(writeConfig(t, tt.body))
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("expected error mentioning %q, got %v", tt.want, err)
			}
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := config.Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}
