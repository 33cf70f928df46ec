package application

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"voice-companion/internal/domain"
)

const DefaultSettingsKey = "companion_settings"

var ErrSettingsNotFound = errors.New("settings not found")

// SettingsRepository stores one opaque blob per key. Get returns
// ErrSettingsNotFound when nothing was stored yet.
type SettingsRepository interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, data []byte) error
}

// SettingsStore caches the user profile and writes it through on every
// change. Callers always get a copy.
type SettingsStore struct {
	repo   SettingsRepository
	key    string
	logger *slog.Logger

	mu      sync.RWMutex
	current domain.Settings
}

func NewSettingsStore(repo SettingsRepository, key string, logger *slog.Logger) *SettingsStore {
	if key == "" {
		key = DefaultSettingsKey
	}
	return &SettingsStore{
		repo:    repo,
		key:     key,
		logger:  logger,
		current: domain.DefaultSettings(),
	}
}

// Load reads the stored profile. Missing, unreadable or invalid content
// yields the defaults; only repository failures are returned.
func (s *SettingsStore) Load(ctx context.Context) (domain.Settings, error) {
	data, err := s.repo.Get(ctx, s.key)
	if errors.Is(err, ErrSettingsNotFound) {
		s.logger.Info("no stored settings, using defaults", "key", s.key)
		return s.set(domain.DefaultSettings()), nil
	}
	if err != nil {
		return domain.Settings{}, fmt.Errorf("loading settings: %w", err)
	}

	settings := domain.DefaultSettings()
	if err := json.Unmarshal(data, &settings); err != nil {
		s.logger.Warn("stored settings are malformed, using defaults", "key", s.key, "error", err)
		return s.set(domain.DefaultSettings()), nil
	}
	if err := settings.Validate(); err != nil {
		s.logger.Warn("stored settings are invalid, using defaults", "key", s.key, "error", err)
		return s.set(domain.DefaultSettings()), nil
	}
	if settings.CustomAPIs == nil {
		settings.CustomAPIs = []domain.CustomAPI{}
	}

	return s.set(settings), nil
}

func (s *SettingsStore) Current() domain.Settings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current.Clone()
}

func (s *SettingsStore) Save(ctx context.Context, settings domain.Settings) error {
	if err := settings.Validate(); err != nil {
		return fmt.Errorf("validating settings: %w", err)
	}
	if settings.CustomAPIs == nil {
		settings.CustomAPIs = []domain.CustomAPI{}
	}

	data, err := json.Marshal(settings)
	if err != nil {
		return fmt.Errorf("encoding settings: %w", err)
	}
	if err := s.repo.Put(ctx, s.key, data); err != nil {
		return fmt.Errorf("saving settings: %w", err)
	}

	s.set(settings)
	return nil
}

// Update applies fn to a copy of the current settings and saves the result.
func (s *SettingsStore) Update(ctx context.Context, fn func(*domain.Settings)) (domain.Settings, error) {
	settings := s.Current()
	fn(&settings)
	if err := s.Save(ctx, settings); err != nil {
		return domain.Settings{}, err
	}
	return s.Current(), nil
}

func (s *SettingsStore) set(settings domain.Settings) domain.Settings {
	s.mu.Lock()
	s.current = settings.Clone()
	s.mu.Unlock()
	return settings
}
