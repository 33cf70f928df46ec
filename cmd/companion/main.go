package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"

	"voice-companion/config"
	"voice-companion/internal/application"
	"voice-companion/internal/infra"
	"voice-companion/internal/infra/audio"
	"voice-companion/internal/infra/browser"
	"voice-companion/internal/infra/genailive"
	"voice-companion/internal/infra/httpapi"
	"voice-companion/internal/infra/live"
	"voice-companion/internal/infra/metrics"
	"voice-companion/internal/infra/pushover"
	"voice-companion/internal/infra/settings"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("loading config", "error", err)
		os.Exit(1)
	}

	logger := setupLogger(cfg.Log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		logger.Info("shutting down")
		cancel()
	}()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("companion error", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	dialer, err := createDialer(ctx, cfg.Live, logger)
	if err != nil {
		return err
	}

	repo, closeRepo := createSettingsRepository(cfg.Settings)
	defer closeRepo()
	store := application.NewSettingsStore(repo, cfg.Settings.Key, logger)

	tools := application.NewToolDispatcher(
		browser.NewOpener(cfg.Tools.DryRunLinks, logger),
		&application.LockScreen{},
		application.ToolConfig{
			ShutdownDelay:  cfg.Tools.ShutdownDelay,
			RespondUnknown: *cfg.Tools.RespondUnknown,
		},
		logger,
	)

	managerCfg := application.DefaultManagerConfig()
	managerCfg.Session = application.SessionOptions{
		Model:         cfg.Live.Model,
		Location:      cfg.Location(),
		Transcription: *cfg.Live.Transcription,
	}
	managerCfg.Capture = application.CaptureConfig{Gain: cfg.Audio.Gain, BlockSize: cfg.Audio.BlockSize}
	managerCfg.CaptureOptions.FramesPerBuffer = cfg.Audio.BlockSize
	managerCfg.FlushOnInterrupt = cfg.Playback.FlushOnInterrupt

	manager := application.NewManager(
		dialer,
		createMicrophone(cfg.Audio, logger),
		createSpeaker(cfg.Audio, logger),
		tools,
		managerCfg,
		logger,
	)

	var notifier application.Notifier
	if cfg.Pushover.Enabled {
		notifier = pushover.NewClient(cfg.Pushover.Token, cfg.Pushover.UserKey)
	} else {
		notifier = application.NewLogNotifier(logger)
	}

	companionCfg := application.DefaultCompanionConfig()
	companionCfg.AutoConnect = cfg.Live.AutoConnect
	companionCfg.SettingsReconnectDelay = cfg.Reconnect.SettingsDelay

	companion := application.NewCompanion(
		manager,
		store,
		reconnectPolicy(cfg.Reconnect),
		notifier,
		nil,
		companionCfg,
		logger,
	)

	if *cfg.HTTP.Enabled {
		m := metrics.NewMetrics("companion", manager.Stats(), manager)
		companion.AddFrontend(httpapi.NewServer(httpapi.Config{
			Addr:          cfg.HTTP.Addr,
			AuthToken:     cfg.HTTP.AuthToken,
			RatePerMinute: cfg.HTTP.RatePerMinute,
			Burst:         cfg.HTTP.Burst,
		}, companion, m.Handler(), logger))
	}

	logger.Info("starting voice companion",
		"transport", dialer.Name(),
		"model", cfg.Live.Model,
		"audio_input", cfg.Audio.Input,
		"audio_output", cfg.Audio.Output,
		"settings_backend", cfg.Settings.Backend,
	)

	if err := companion.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func createDialer(ctx context.Context, cfg config.LiveConfig, logger *slog.Logger) (application.RealtimeDialer, error) {
	switch cfg.Transport {
	case "genai":
		d, err := genailive.NewDialer(ctx, cfg.APIKey, logger)
		if err != nil {
			return nil, fmt.Errorf("creating genai dialer: %w", err)
		}
		return d, nil
	default:
		liveCfg := live.DefaultConfig()
		liveCfg.APIKey = cfg.APIKey
		if cfg.URL != "" {
			liveCfg.URL = cfg.URL
		}
		liveCfg.DialTimeout = cfg.DialTimeout
		liveCfg.Retry = infra.DefaultRetryConfig()
		liveCfg.Retry.MaxAttempts = cfg.DialAttempts
		return live.NewDialer(liveCfg, logger), nil
	}
}

func createMicrophone(cfg config.AudioConfig, logger *slog.Logger) application.Microphone {
	switch cfg.Input {
	case "file":
		return audio.NewFileMicrophone(cfg.InputFile, *cfg.Realtime, cfg.Loop, logger)
	case "portaudio":
		return audio.NewPortAudioMicrophone(logger)
	default:
		return audio.NewMalgoMicrophone(logger)
	}
}

func createSpeaker(cfg config.AudioConfig, logger *slog.Logger) application.Speaker {
	switch cfg.Output {
	case "wav":
		return audio.NewWAVSpeaker(cfg.OutputFile, 0, logger)
	case "null":
		return audio.NewWAVSpeaker("", 0, logger)
	default:
		return audio.NewMalgoSpeaker(logger)
	}
}

func createSettingsRepository(cfg config.SettingsConfig) (application.SettingsRepository, func()) {
	if cfg.Backend == "redis" {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		repo := settings.NewRedisRepository(client, settings.WithPrefix(cfg.RedisPrefix))
		return repo, func() { repo.Close() }
	}
	return settings.NewFileRepository(cfg.Dir), func() {}
}

// reconnectPolicy maps the retry-style settings onto the supervisor. A
// multiplier of 1 keeps the fixed delay.
func reconnectPolicy(cfg config.ReconnectConfig) application.ReconnectPolicy {
	backoff := infra.RetryConfig{
		MaxAttempts:  cfg.MaxAttempts,
		InitialDelay: cfg.Delay,
		MaxDelay:     cfg.MaxDelay,
		Multiplier:   cfg.Multiplier,
	}
	return application.ReconnectPolicy{
		Delay:       cfg.Delay,
		MaxAttempts: cfg.MaxAttempts,
		Backoff:     backoff.Delay,
		ManualGuard: cfg.ManualGuard,
	}
}

func setupLogger(cfg config.LogConfig) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	return slog.New(handler)
}
