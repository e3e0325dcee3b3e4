package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/absfs/kvfs/kv"
)

func writeTempConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "cachefs", cfg.Scheme)
	assert.Equal(t, BackendMemory, cfg.Backend)
	assert.Equal(t, kv.DefaultBucket, cfg.BoltBucket)
	assert.Equal(t, 5*time.Second, cfg.Timeout.DurationValue())
	assert.Equal(t, "info", cfg.LogLevel)
	assert.False(t, cfg.CacheConfigFile)
	assert.False(t, cfg.Enabled("CACHE_CONFIG_FILE"))
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("CACHE_CONFIG_FILE", "true")
	t.Setenv("CACHE_ROUTES_FILE", "1")
	t.Setenv("KVFS_BACKEND", "bolt")
	t.Setenv("KVFS_BOLT_PATH", "/tmp/cache.db")
	t.Setenv("KVFS_TIMEOUT", "250ms")
	t.Setenv("KVFS_COMPRESS_MIN", "1024")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.True(t, cfg.Enabled("CACHE_CONFIG_FILE"))
	assert.True(t, cfg.Enabled("CACHE_ROUTES_FILE"))
	assert.False(t, cfg.Enabled("CACHE_SERVICES_FILE"))
	assert.False(t, cfg.Enabled("SOMETHING_ELSE"))
	assert.Equal(t, BackendBolt, cfg.Backend)
	assert.Equal(t, "/tmp/cache.db", cfg.BoltPath)
	assert.Equal(t, 250*time.Millisecond, cfg.Timeout.DurationValue())
	assert.Equal(t, 1024, cfg.CompressMin)
}

func TestLoadFile(t *testing.T) {
	path := writeTempConfig(t, "kvfs.yaml", `
CACHE_SERVICES_FILE: true
KVFS_BACKEND: dir
KVFS_DIR_PATH: /var/cache/kvfs
KVFS_TIMEOUT: 3
LOG_LEVEL: debug
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.True(t, cfg.CacheServicesFile)
	assert.Equal(t, BackendDir, cfg.Backend)
	assert.Equal(t, "/var/cache/kvfs", cfg.DirPath)
	assert.Equal(t, 3*time.Second, cfg.Timeout.DurationValue())
	assert.Equal(t, "debug", cfg.LogLevel)

	// the environment wins over the file
	t.Setenv("LOG_LEVEL", "warn")
	cfg, err = Load(path)
	require.NoError(t, err)
	assert.Equal(t, "warn", cfg.LogLevel)
}

func TestLoadRejectsInvalid(t *testing.T) {
	tests := []struct {
		name  string
		env   map[string]string
		field string
	}{
		{"backend", map[string]string{"KVFS_BACKEND": "memcache"}, "KVFS_BACKEND"},
		{"scheme", map[string]string{"KVFS_SCHEME": "cache://"}, "KVFS_SCHEME"},
		{"timeout", map[string]string{"KVFS_TIMEOUT": "0s"}, "KVFS_TIMEOUT"},
		{"compress", map[string]string{"KVFS_COMPRESS_MIN": "-1"}, "KVFS_COMPRESS_MIN"},
		{"log level", map[string]string{"LOG_LEVEL": "loud"}, "LOG_LEVEL"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load("")
			require.Error(t, err)

			var fieldErr FieldError
			require.ErrorAs(t, err, &fieldErr)
			assert.Equal(t, tt.field, fieldErr.Field)
		})
	}
}

func TestValidateBackendSettings(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	cfg.Backend = BackendBolt
	cfg.BoltPath = ""
	assert.Equal(t, FieldError{Field: "KVFS_BOLT_PATH", Reason: "required for the bolt backend"}, cfg.Validate())

	cfg.Backend = BackendRedis
	cfg.RedisAddr = ""
	assert.Equal(t, FieldError{Field: "KVFS_REDIS_ADDR", Reason: "required for the redis backend"}, cfg.Validate())

	cfg.Backend = BackendDir
	cfg.DirPath = ""
	assert.Equal(t, FieldError{Field: "KVFS_DIR_PATH", Reason: "required for the dir backend"}, cfg.Validate())

	var nilCfg *Config
	assert.Error(t, nilCfg.Validate())
}

func TestLoadRejectsInvalidDuration(t *testing.T) {
	t.Setenv("KVFS_TIMEOUT", "boom")
	_, err := Load("")
	assert.Error(t, err)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.toml"))
	assert.Error(t, err)
}

func TestOpenStore(t *testing.T) {
	ctx := context.Background()

	t.Run("memory", func(t *testing.T) {
		store, err := OpenStore(&Config{Backend: BackendMemory})
		require.NoError(t, err)
		defer store.Close()
		assert.IsType(t, &kv.MemoryStore{}, store)
	})

	t.Run("bolt compressed", func(t *testing.T) {
		store, err := OpenStore(&Config{
			Backend:     BackendBolt,
			BoltPath:    filepath.Join(t.TempDir(), "kvfs.db"),
			BoltBucket:  "app/kvfs",
			CompressMin: 16,
		})
		require.NoError(t, err)
		defer store.Close()
		assert.IsType(t, &kv.CompressedStore{}, store)

		require.NoError(t, store.Set(ctx, "cachefs://a", []byte("some value that is long enough")))
		data, err := store.Get(ctx, "cachefs://a")
		require.NoError(t, err)
		assert.Equal(t, "some value that is long enough", string(data))
	})

	t.Run("dir", func(t *testing.T) {
		dir := filepath.Join(t.TempDir(), "store")
		store, err := OpenStore(&Config{Backend: BackendDir, DirPath: dir})
		require.NoError(t, err)
		defer store.Close()
		require.NoError(t, store.Ping(ctx))
	})

	t.Run("unknown", func(t *testing.T) {
		_, err := OpenStore(&Config{Backend: "memcache"})
		assert.Error(t, err)
	})
}
