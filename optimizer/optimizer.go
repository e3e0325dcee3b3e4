// Package optimizer copies generated framework artifacts (the compiled
// configuration, routes, service manifest and compiled views) from disk
// into a kvfs cache file system, once per process, and tells the framework
// where to find them.
package optimizer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

// Cache locations of the artifacts, as paths inside the cache file system.
// The URLs handed to the framework carry the driver's scheme, e.g.
// "cachefs://bootstrap/cache/config.php".
const (
	ConfigDir        = "/bootstrap/cache"
	CompiledViewsDir = "/framework/views"

	ConfigPath   = ConfigDir + "/config.php"
	RoutesPath   = ConfigDir + "/routes.php"
	ServicesPath = ConfigDir + "/services.json"
)

// Flags that switch caching of each artifact on.
const (
	FlagConfig        = "CACHE_CONFIG_FILE"
	FlagRoutes        = "CACHE_ROUTES_FILE"
	FlagServices      = "CACHE_SERVICES_FILE"
	FlagCompiledViews = "CACHE_COMPILED_VIEWS"
)

// Driver is the part of a kvfs.FileSystem the optimizer uses.
type Driver interface {
	Initialize() error
	MkdirAll(name string, perm os.FileMode) error
	WriteFile(name string, data []byte, perm os.FileMode) error
	Stat(name string) (os.FileInfo, error)
	URL(name string) (string, error)
}

// Flags reports whether a feature flag is on.
type Flags interface {
	Enabled(name string) bool
}

// FlagsFunc adapts a function to Flags.
type FlagsFunc func(name string) bool

func (f FlagsFunc) Enabled(name string) bool {
	return f(name)
}

// ErrNotInitialized is returned by Warm before a successful Bootstrap.
var ErrNotInitialized = errors.New("optimizer: not initialized")

// errSourceMissing means neither the disk nor the cache holds the artifact.
var errSourceMissing = errors.New("artifact missing on disk and in cache")

// artifact is a file generated under <base>/bootstrap/cache.
type artifact struct {
	flag  string
	file  string
	cache string
}

var artifacts = []artifact{
	{FlagConfig, "config.php", ConfigPath},
	{FlagRoutes, "routes.php", RoutesPath},
	{FlagServices, "services.json", ServicesPath},
}

// Optimizer caches artifacts for one application. It is safe for concurrent
// use.
type Optimizer struct {
	driver Driver
	flags  Flags
	disk   afero.Fs
	log    logrus.FieldLogger

	mu          sync.Mutex
	basePath    string
	initialized bool
	cached      map[string]string // disk path -> cache path

	copies singleflight.Group
}

// Option configures an Optimizer.
type Option func(*Optimizer)

// WithDisk sets the file system artifacts are read from. The default is the
// operating system's.
func WithDisk(disk afero.Fs) Option {
	return func(o *Optimizer) {
		if disk != nil {
			o.disk = disk
		}
	}
}

// WithLogger sets the logger. By default nothing is logged.
func WithLogger(l logrus.FieldLogger) Option {
	return func(o *Optimizer) {
		if l != nil {
			o.log = l
		}
	}
}

// New returns an Optimizer that caches into driver the artifacts enabled by
// flags.
func New(driver Driver, flags Flags, opts ...Option) *Optimizer {
	quiet := logrus.New()
	quiet.SetOutput(io.Discard)

	o := &Optimizer{
		driver: driver,
		flags:  flags,
		disk:   afero.NewOsFs(),
		log:    quiet,
		cached: make(map[string]string),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Bootstrap prepares the cache for the application at basePath and reports
// whether caching is available. Console invocations never use the cache, so
// for them the driver is not touched at all. Failures are logged and leave
// the optimizer uninitialized; every Cached*Path method then reports the
// artifact as not cached.
func (o *Optimizer) Bootstrap(basePath string, console bool) bool {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.basePath = basePath
	if o.initialized || console {
		return o.initialized
	}

	log := o.log.WithField("action", "bootstrap")
	if err := o.driver.Initialize(); err != nil {
		log.WithError(err).Warn("cache file system unavailable, artifacts will be read from disk")
		return false
	}
	for _, dir := range []string{ConfigDir, CompiledViewsDir} {
		if err := o.driver.MkdirAll(dir, 0777); err != nil {
			log.WithError(err).WithField("path", dir).Warn("creating cache directory")
			return false
		}
	}

	o.initialized = true
	log.WithField("base", basePath).Info("artifact cache ready")
	return true
}

// Initialized reports whether Bootstrap has succeeded.
func (o *Optimizer) Initialized() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.initialized
}

func (o *Optimizer) state() (string, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.basePath, o.initialized
}

// CachedConfigPath returns the cache path of the compiled configuration,
// copying it from disk the first time. It reports false when the artifact
// is not served from the cache.
func (o *Optimizer) CachedConfigPath() (string, bool) {
	return o.cachedPath(artifacts[0])
}

// CachedRoutesPath is CachedConfigPath for the compiled routes.
func (o *Optimizer) CachedRoutesPath() (string, bool) {
	return o.cachedPath(artifacts[1])
}

// CachedServicesPath is CachedConfigPath for the service manifest.
func (o *Optimizer) CachedServicesPath() (string, bool) {
	return o.cachedPath(artifacts[2])
}

// CompiledViewsPath returns the cache directory compiled views are written
// to, when compiled views are cached.
func (o *Optimizer) CompiledViewsPath() (string, bool) {
	if _, ok := o.state(); !ok || !o.flags.Enabled(FlagCompiledViews) {
		return "", false
	}
	return o.url(CompiledViewsDir), true
}

// url returns the scheme form of the cache path p.
func (o *Optimizer) url(p string) string {
	u, err := o.driver.URL(p)
	if err != nil {
		return p
	}
	return u
}

// ConfigPath returns where the framework should load its compiled
// configuration from: the cache when possible, the disk otherwise.
func (o *Optimizer) ConfigPath() string {
	return o.resolve(artifacts[0])
}

// RoutesPath is ConfigPath for the compiled routes.
func (o *Optimizer) RoutesPath() string {
	return o.resolve(artifacts[1])
}

// ServicesPath is ConfigPath for the service manifest.
func (o *Optimizer) ServicesPath() string {
	return o.resolve(artifacts[2])
}

func (o *Optimizer) resolve(a artifact) string {
	if p, ok := o.cachedPath(a); ok {
		return p
	}
	base, _ := o.state()
	return o.diskPath(base, a)
}

func (o *Optimizer) diskPath(base string, a artifact) string {
	return filepath.Join(base, "bootstrap", "cache", a.file)
}

func (o *Optimizer) cachedPath(a artifact) (string, bool) {
	base, ok := o.state()
	if !ok || !o.flags.Enabled(a.flag) {
		return "", false
	}

	src := o.diskPath(base, a)
	if err := o.cacheFile(src, a.cache); err != nil {
		entry := o.log.WithFields(logrus.Fields{"action": "cache", "path": src})
		if errors.Is(err, errSourceMissing) {
			entry.Debug("artifact not generated yet")
		} else {
			entry.WithError(err).Warn("caching artifact")
		}
		return "", false
	}
	return o.url(a.cache), true
}

// cacheFile copies src from disk to dst in the cache, once per src. A src
// missing from disk is not an error when dst is already in the cache, in
// which case nothing is recorded and the disk is checked again next time.
func (o *Optimizer) cacheFile(src, dst string) error {
	o.mu.Lock()
	_, done := o.cached[src]
	o.mu.Unlock()
	if done {
		return nil
	}

	_, err, _ := o.copies.Do(src, func() (interface{}, error) {
		o.mu.Lock()
		_, done := o.cached[src]
		o.mu.Unlock()
		if done {
			return nil, nil
		}

		data, err := afero.ReadFile(o.disk, src)
		if errors.Is(err, os.ErrNotExist) {
			if _, serr := o.driver.Stat(dst); serr == nil {
				return nil, nil
			}
			return nil, errSourceMissing
		}
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", src, err)
		}
		if err := o.driver.WriteFile(dst, data, 0666); err != nil {
			return nil, fmt.Errorf("caching %s: %w", src, err)
		}

		o.mu.Lock()
		o.cached[src] = dst
		o.mu.Unlock()
		o.log.WithFields(logrus.Fields{
			"action": "cache",
			"path":   dst,
			"size":   len(data),
		}).Info("artifact cached")
		return nil, nil
	})
	return err
}

// Warm copies every enabled artifact into the cache at once, including the
// compiled views under <base>/storage/framework/views, and returns the first
// error. Artifacts that have not been generated yet are skipped.
func (o *Optimizer) Warm(ctx context.Context) error {
	base, ok := o.state()
	if !ok {
		return ErrNotInitialized
	}

	g, ctx := errgroup.WithContext(ctx)
	copyFile := func(src, dst string) {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			err := o.cacheFile(src, dst)
			if errors.Is(err, errSourceMissing) {
				return nil
			}
			return err
		})
	}

	for _, a := range artifacts {
		if o.flags.Enabled(a.flag) {
			copyFile(o.diskPath(base, a), a.cache)
		}
	}

	if o.flags.Enabled(FlagCompiledViews) {
		viewsDir := filepath.Join(base, "storage", "framework", "views")
		infos, err := afero.ReadDir(o.disk, viewsDir)
		if err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("listing compiled views: %w", err)
		}
		for _, info := range infos {
			if !info.Mode().IsRegular() {
				continue
			}
			copyFile(filepath.Join(viewsDir, info.Name()), CompiledViewsDir+"/"+info.Name())
		}
	}

	return g.Wait()
}
