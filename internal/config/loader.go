package config

import (
	"fmt"
	"reflect"
	"strconv"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"

	"github.com/absfs/kvfs/kv"
)

// Load reads the optional config file at path (yaml, toml or json), applies
// environment overrides and defaults, and validates the result. With an
// empty path only the environment and defaults are used.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, viper.DecodeHook(durationDecodeHook())); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// setDefaults registers every key, which is also what makes AutomaticEnv
// values visible to Unmarshal.
func setDefaults(v *viper.Viper) {
	v.SetDefault("CACHE_CONFIG_FILE", false)
	v.SetDefault("CACHE_ROUTES_FILE", false)
	v.SetDefault("CACHE_SERVICES_FILE", false)
	v.SetDefault("CACHE_COMPILED_VIEWS", false)

	v.SetDefault("KVFS_SCHEME", "cachefs")
	v.SetDefault("KVFS_BACKEND", BackendMemory)
	v.SetDefault("KVFS_BOLT_PATH", "kvfs.db")
	v.SetDefault("KVFS_BOLT_BUCKET", kv.DefaultBucket)
	v.SetDefault("KVFS_REDIS_ADDR", "127.0.0.1:6379")
	v.SetDefault("KVFS_REDIS_PASSWORD", "")
	v.SetDefault("KVFS_REDIS_DB", 0)
	v.SetDefault("KVFS_DIR_PATH", "./storage/kvfs")
	v.SetDefault("KVFS_COMPRESS_MIN", 0)
	v.SetDefault("KVFS_TIMEOUT", "5s")

	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FILE", "")
	v.SetDefault("LOG_MAX_SIZE", 100)
	v.SetDefault("LOG_MAX_BACKUPS", 10)
	v.SetDefault("LOG_COMPRESS", true)
}

func durationDecodeHook() mapstructure.DecodeHookFunc {
	targetType := reflect.TypeOf(Duration(0))

	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != targetType {
			return data, nil
		}

		switch v := data.(type) {
		case string:
			if v == "" {
				return Duration(0), nil
			}
			if parsed, err := time.ParseDuration(v); err == nil {
				return Duration(parsed), nil
			}
			if seconds, err := strconv.ParseFloat(v, 64); err == nil {
				return Duration(time.Duration(seconds * float64(time.Second))), nil
			}
			return nil, fmt.Errorf("invalid duration: %s", v)
		case int:
			return Duration(time.Duration(v) * time.Second), nil
		case int64:
			return Duration(time.Duration(v) * time.Second), nil
		case float64:
			return Duration(time.Duration(v * float64(time.Second))), nil
		case time.Duration:
			return Duration(v), nil
		case Duration:
			return v, nil
		default:
			return nil, fmt.Errorf("unsupported duration type: %T", v)
		}
	}
}
