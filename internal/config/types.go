package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Duration accepts Go duration strings ("5s", "250ms") as well as plain
// seconds.
type Duration time.Duration

// UnmarshalText lets viper decode "30s", "5m" or a number of seconds.
func (d *Duration) UnmarshalText(text []byte) error {
	raw := strings.TrimSpace(string(text))
	if raw == "" {
		*d = Duration(0)
		return nil
	}
	if parsed, err := time.ParseDuration(raw); err == nil {
		*d = Duration(parsed)
		return nil
	}
	if seconds, err := strconv.ParseFloat(raw, 64); err == nil {
		*d = Duration(time.Duration(seconds * float64(time.Second)))
		return nil
	}
	return fmt.Errorf("invalid duration value: %s", raw)
}

// DurationValue returns the value as a time.Duration.
func (d Duration) DurationValue() time.Duration {
	return time.Duration(d)
}

// Backends understood by OpenStore.
const (
	BackendMemory = "memory"
	BackendBolt   = "bolt"
	BackendRedis  = "redis"
	BackendDir    = "dir"
)

// Config holds every setting. Keys are the environment variable names, and
// the same names are used in config files.
type Config struct {
	CacheConfigFile    bool `mapstructure:"CACHE_CONFIG_FILE"`
	CacheRoutesFile    bool `mapstructure:"CACHE_ROUTES_FILE"`
	CacheServicesFile  bool `mapstructure:"CACHE_SERVICES_FILE"`
	CacheCompiledViews bool `mapstructure:"CACHE_COMPILED_VIEWS"`

	Scheme        string   `mapstructure:"KVFS_SCHEME"`
	Backend       string   `mapstructure:"KVFS_BACKEND"`
	BoltPath      string   `mapstructure:"KVFS_BOLT_PATH"`
	BoltBucket    string   `mapstructure:"KVFS_BOLT_BUCKET"`
	RedisAddr     string   `mapstructure:"KVFS_REDIS_ADDR"`
	RedisPassword string   `mapstructure:"KVFS_REDIS_PASSWORD"`
	RedisDB       int      `mapstructure:"KVFS_REDIS_DB"`
	DirPath       string   `mapstructure:"KVFS_DIR_PATH"`
	CompressMin   int      `mapstructure:"KVFS_COMPRESS_MIN"`
	Timeout       Duration `mapstructure:"KVFS_TIMEOUT"`

	LogLevel      string `mapstructure:"LOG_LEVEL"`
	LogFile       string `mapstructure:"LOG_FILE"`
	LogMaxSize    int    `mapstructure:"LOG_MAX_SIZE"`
	LogMaxBackups int    `mapstructure:"LOG_MAX_BACKUPS"`
	LogCompress   bool   `mapstructure:"LOG_COMPRESS"`
}

// Enabled reports whether the named CACHE_* flag is on. Unknown names are
// off.
func (c *Config) Enabled(name string) bool {
	switch name {
	case "CACHE_CONFIG_FILE":
		return c.CacheConfigFile
	case "CACHE_ROUTES_FILE":
		return c.CacheRoutesFile
	case "CACHE_SERVICES_FILE":
		return c.CacheServicesFile
	case "CACHE_COMPILED_VIEWS":
		return c.CacheCompiledViews
	}
	return false
}
