package kvfs

import (
	"errors"
	"os"
	"syscall"
)

// Errors returned by FileSystem operations, usually wrapped in an
// *os.PathError or *os.LinkError. Use errors.Is to test for them.
var (
	ErrNotFound        = os.ErrNotExist
	ErrInvalidArgument = os.ErrInvalid
	ErrNotEmpty        = syscall.ENOTEMPTY
	ErrUnsupported     = errors.ErrUnsupported

	// ErrBackendUnavailable is returned once the cache could not be reached
	// by Initialize. It is permanent for the life of the FileSystem.
	ErrBackendUnavailable = errors.New("kvfs: cache backend unavailable")
)

var errSchemeRegistered = errors.New("scheme already registered")
