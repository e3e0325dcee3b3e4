package config

import (
	"errors"
	"strings"

	"github.com/sirupsen/logrus"
)

// Validate rejects settings OpenStore or the logger could not use.
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("config is nil")
	}

	if c.Scheme == "" || strings.ContainsAny(c.Scheme, ":/\\") {
		return newFieldError("KVFS_SCHEME", "must be a bare scheme name such as cachefs")
	}

	switch c.Backend {
	case BackendMemory:
	case BackendBolt:
		if c.BoltPath == "" {
			return newFieldError("KVFS_BOLT_PATH", "required for the bolt backend")
		}
	case BackendRedis:
		if c.RedisAddr == "" {
			return newFieldError("KVFS_REDIS_ADDR", "required for the redis backend")
		}
		if c.RedisDB < 0 {
			return newFieldError("KVFS_REDIS_DB", "must not be negative")
		}
	case BackendDir:
		if c.DirPath == "" {
			return newFieldError("KVFS_DIR_PATH", "required for the dir backend")
		}
	default:
		return newFieldError("KVFS_BACKEND", "must be one of memory|bolt|redis|dir")
	}

	if c.CompressMin < 0 {
		return newFieldError("KVFS_COMPRESS_MIN", "must not be negative")
	}
	if c.Timeout.DurationValue() <= 0 {
		return newFieldError("KVFS_TIMEOUT", "must be greater than 0")
	}

	if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
		return newFieldError("LOG_LEVEL", err.Error())
	}
	if c.LogMaxSize < 0 || c.LogMaxBackups < 0 {
		return newFieldError("LOG_MAX_SIZE", "log rotation settings must not be negative")
	}
	return nil
}
