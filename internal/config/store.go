package config

import (
	"fmt"

	"github.com/spf13/afero"

	"github.com/absfs/kvfs/kv"
)

// OpenStore builds the kv.Store selected by cfg.Backend, wrapped for
// compression when KVFS_COMPRESS_MIN is positive. The caller closes it.
func OpenStore(cfg *Config) (kv.Store, error) {
	var (
		store kv.Store
		err   error
	)
	switch cfg.Backend {
	case BackendMemory:
		store = kv.NewMemoryStore()
	case BackendBolt:
		store, err = kv.OpenBoltStore(cfg.BoltPath, cfg.BoltBucket)
	case BackendRedis:
		store = kv.DialRedis(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	case BackendDir:
		store, err = kv.NewDirStore(afero.NewOsFs(), cfg.DirPath)
	default:
		err = newFieldError("KVFS_BACKEND", "unknown backend "+cfg.Backend)
	}
	if err != nil {
		return nil, fmt.Errorf("opening %s store: %w", cfg.Backend, err)
	}

	if cfg.CompressMin > 0 {
		compressed, err := kv.Compressed(store, cfg.CompressMin)
		if err != nil {
			store.Close()
			return nil, fmt.Errorf("enabling compression: %w", err)
		}
		return compressed, nil
	}
	return store, nil
}
