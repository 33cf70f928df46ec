package settings_test

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"voice-companion/internal/application"
	"voice-companion/internal/infra/settings"
)

func setupRedis(t *testing.T) (*settings.RedisRepository, *miniredis.Miniredis) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	repo := settings.NewRedisRepository(client, settings.WithPrefix("test"))
	t.Cleanup(func() { repo.Close() })
	return repo, mr
}

func TestRepositories_RoundTrip(t *testing.T) {
	redisRepo, _ := setupRedis(t)

	repos := map[string]application.SettingsRepository{
		"file":  settings.NewFileRepository(filepath.Join(t.TempDir(), "nested")),
		"redis": redisRepo,
	}

	for name, repo := range repos {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			_, err := repo.Get(ctx, "companion_settings")
			assert.ErrorIs(t, err, application.ErrSettingsNotFound)

			require.NoError(t, repo.Put(ctx, "companion_settings", []byte(`{"aiName":"Mira"}`)))
			require.NoError(t, repo.Put(ctx, "companion_settings", []byte(`{"aiName":"Nova"}`)))

			data, err := repo.Get(ctx, "companion_settings")
			require.NoError(t, err)
			assert.JSONEq(t, `{"aiName":"Nova"}`, string(data))
		})
	}
}

func TestRedisRepository_Prefix(t *testing.T) {
	repo, mr := setupRedis(t)

	require.NoError(t, repo.Put(context.Background(), "companion_settings", []byte("{}")))

	got, err := mr.Get("test:companion_settings")
	require.NoError(t, err)
	assert.Equal(t, "{}", got)
}

func TestRedisRepository_Unavailable(t *testing.T) {
	repo, mr := setupRedis(t)
	mr.Close()

	_, err := repo.Get(context.Background(), "companion_settings")
	require.Error(t, err)
	assert.NotErrorIs(t, err, application.ErrSettingsNotFound)
}

func TestFileRepository_LeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	repo := settings.NewFileRepository(dir)

	require.NoError(t, repo.Put(context.Background(), "companion_settings", []byte("{}")))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "companion_settings.json", entries[0].Name())
}

func TestSettingsStore_WithFileRepository(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "companion_settings.json"), []byte("not json"), 0644))

	store := application.NewSettingsStore(settings.NewFileRepository(dir), application.DefaultSettingsKey, slog.New(slog.NewTextHandler(io.Discard, nil)))
	loaded, err := store.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Sweetie", loaded.AIName)
}
