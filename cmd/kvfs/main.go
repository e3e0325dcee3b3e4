package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"text/tabwriter"

	"github.com/alecthomas/kong"
	"github.com/sirupsen/logrus"

	"github.com/absfs/kvfs"
	"github.com/absfs/kvfs/internal/config"
	"github.com/absfs/kvfs/internal/logging"
	"github.com/absfs/kvfs/kv"
	"github.com/absfs/kvfs/optimizer"
)

var version = "dev"

// Globals are shared by every command.
type Globals struct {
	Config string `help:"Config file (yaml, toml or json). Environment variables override it." type:"path"`

	Stdout io.Writer `kong:"-"`
	Stdin  io.Reader `kong:"-"`
}

// CLI is the top-level command structure for kvfs.
//
// Directories created by mkdir only live as long as the process, so they
// are gone when the command returns; entries stay in the configured store.
type CLI struct {
	Globals

	Version kong.VersionFlag `help:"Show version." short:"V"`
	Ls      LsCmd            `cmd:"" help:"List a cache directory."`
	Cat     CatCmd           `cmd:"" help:"Print a file. cachefs:// names are read from the cache, others from disk."`
	Put     PutCmd           `cmd:"" help:"Store stdin as a cache file."`
	Stat    StatCmd          `cmd:"" help:"Describe a cache file or directory."`
	Mkdir   MkdirCmd         `cmd:"" help:"Create a cache directory."`
	Rmdir   RmdirCmd         `cmd:"" help:"Remove an empty cache directory."`
	Rm      RmCmd            `cmd:"" help:"Remove a cache file."`
	Mv      MvCmd            `cmd:"" help:"Rename a cache file."`
	Warm    WarmCmd          `cmd:"" help:"Copy every enabled framework artifact into the cache."`
	Paths   PathsCmd         `cmd:"" help:"Show where the framework should load its artifacts from."`
}

// session is an opened cache with its logger.
type session struct {
	cfg   *config.Config
	log   *logrus.Logger
	store kv.Store
	mux   *kvfs.Mux
	fs    *kvfs.FileSystem
}

func (g *Globals) open(action string) (*session, error) {
	cfg, err := config.Load(g.Config)
	if err != nil {
		return nil, err
	}
	log, err := logging.InitLogger(cfg)
	if err != nil {
		return nil, err
	}
	store, err := config.OpenStore(cfg)
	if err != nil {
		return nil, err
	}

	mux := kvfs.NewMux(nil)
	fs := kvfs.New(store,
		kvfs.WithScheme(cfg.Scheme),
		kvfs.WithTimeout(cfg.Timeout.DurationValue()),
		kvfs.WithLogger(log),
		kvfs.WithMux(mux),
	)
	if err := fs.Initialize(); err != nil {
		store.Close()
		return nil, err
	}

	log.WithFields(logging.BaseFields(action, g.Config)).
		WithFields(logging.StoreFields(cfg.Scheme, cfg.Backend, cfg.CompressMin > 0)).
		Debug("cache opened")
	return &session{cfg: cfg, log: log, store: store, mux: mux, fs: fs}, nil
}

func (s *session) Close() error {
	return s.store.Close()
}

func (g *Globals) stdout() io.Writer {
	if g.Stdout == nil {
		return os.Stdout
	}
	return g.Stdout
}

func (g *Globals) stdin() io.Reader {
	if g.Stdin == nil {
		return os.Stdin
	}
	return g.Stdin
}

// LsCmd lists a directory.
type LsCmd struct {
	Path string `arg:"" optional:"" default:"/" help:"Directory to list."`
}

// Run executes the ls command.
func (c *LsCmd) Run(g *Globals) error {
	s, err := g.open("ls")
	if err != nil {
		return fmt.Errorf("ls: %w", err)
	}
	defer s.Close()

	entries, err := s.fs.ReadDir(c.Path)
	if err != nil {
		return fmt.Errorf("ls: %w", err)
	}
	out := g.stdout()
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() {
			name += "/"
		}
		fmt.Fprintln(out, name)
	}
	return nil
}

// CatCmd prints a file.
type CatCmd struct {
	Path string `arg:"" help:"File to print."`
}

// Run executes the cat command.
func (c *CatCmd) Run(g *Globals) error {
	s, err := g.open("cat")
	if err != nil {
		return fmt.Errorf("cat: %w", err)
	}
	defer s.Close()

	data, err := s.mux.ReadFile(c.Path)
	if err != nil {
		return fmt.Errorf("cat: %w", err)
	}
	_, err = g.stdout().Write(data)
	return err
}

// PutCmd stores stdin in a file.
type PutCmd struct {
	Path   string `arg:"" help:"File to write."`
	Append bool   `help:"Append instead of replacing." short:"a"`
}

// Run executes the put command.
func (c *PutCmd) Run(g *Globals) error {
	s, err := g.open("put")
	if err != nil {
		return fmt.Errorf("put: %w", err)
	}
	defer s.Close()

	mode := "wb"
	if c.Append {
		mode = "ab"
	}
	f, err := s.fs.OpenMode(c.Path, mode)
	if err != nil {
		return fmt.Errorf("put: %w", err)
	}
	if _, err := io.Copy(f, g.stdin()); err != nil {
		f.Close()
		return fmt.Errorf("put: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("put: %w", err)
	}
	return nil
}

// StatCmd describes a path.
type StatCmd struct {
	Path string `arg:"" help:"File or directory."`
}

// Run executes the stat command.
func (c *StatCmd) Run(g *Globals) error {
	s, err := g.open("stat")
	if err != nil {
		return fmt.Errorf("stat: %w", err)
	}
	defer s.Close()

	info, err := s.fs.Stat(c.Path)
	if err != nil {
		return fmt.Errorf("stat: %w", err)
	}
	st := info.Sys().(*kvfs.Stat)
	url, _ := s.fs.URL(c.Path)

	w := tabwriter.NewWriter(g.stdout(), 0, 4, 1, ' ', 0)
	fmt.Fprintf(w, "name:\t%s\n", url)
	fmt.Fprintf(w, "kind:\t%s\n", st.Kind)
	fmt.Fprintf(w, "mode:\t%s\n", info.Mode())
	fmt.Fprintf(w, "size:\t%d\n", st.Size)
	fmt.Fprintf(w, "blocks:\t%d\n", st.Blocks)
	return w.Flush()
}

// MkdirCmd creates a directory.
type MkdirCmd struct {
	Path    string `arg:"" help:"Directory to create."`
	Parents bool   `help:"Create missing parents." short:"p"`
}

// Run executes the mkdir command.
func (c *MkdirCmd) Run(g *Globals) error {
	s, err := g.open("mkdir")
	if err != nil {
		return fmt.Errorf("mkdir: %w", err)
	}
	defer s.Close()

	if err := s.fs.MkdirMode(c.Path, c.Parents); err != nil {
		return fmt.Errorf("mkdir: %w", err)
	}
	return nil
}

// RmdirCmd removes an empty directory.
type RmdirCmd struct {
	Path string `arg:"" help:"Directory to remove."`
}

// Run executes the rmdir command.
func (c *RmdirCmd) Run(g *Globals) error {
	s, err := g.open("rmdir")
	if err != nil {
		return fmt.Errorf("rmdir: %w", err)
	}
	defer s.Close()

	if err := s.fs.Rmdir(c.Path); err != nil {
		return fmt.Errorf("rmdir: %w", err)
	}
	return nil
}

// RmCmd removes files.
type RmCmd struct {
	Path      string `arg:"" help:"File to remove."`
	Recursive bool   `help:"Remove everything below the path." short:"r"`
}

// Run executes the rm command.
func (c *RmCmd) Run(g *Globals) error {
	s, err := g.open("rm")
	if err != nil {
		return fmt.Errorf("rm: %w", err)
	}
	defer s.Close()

	if c.Recursive {
		err = s.fs.RemoveAll(c.Path)
	} else {
		err = s.fs.Remove(c.Path)
	}
	if err != nil {
		return fmt.Errorf("rm: %w", err)
	}
	return nil
}

// MvCmd renames a file.
type MvCmd struct {
	From string `arg:"" help:"Existing file."`
	To   string `arg:"" help:"New name."`
}

// Run executes the mv command.
func (c *MvCmd) Run(g *Globals) error {
	s, err := g.open("mv")
	if err != nil {
		return fmt.Errorf("mv: %w", err)
	}
	defer s.Close()

	if err := s.fs.Rename(c.From, c.To); err != nil {
		return fmt.Errorf("mv: %w", err)
	}
	return nil
}

// WarmCmd copies the enabled artifacts of an application into the cache.
type WarmCmd struct {
	BasePath string `help:"Application base path." required:"" type:"path"`
}

// Run executes the warm command.
func (c *WarmCmd) Run(g *Globals) error {
	s, err := g.open("warm")
	if err != nil {
		return fmt.Errorf("warm: %w", err)
	}
	defer s.Close()

	o := optimizer.New(s.fs, s.cfg, optimizer.WithLogger(s.log))
	if !o.Bootstrap(c.BasePath, false) {
		return errors.New("warm: cache unavailable")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	if err := o.Warm(ctx); err != nil {
		return fmt.Errorf("warm: %w", err)
	}
	return printPaths(g.stdout(), o)
}

// PathsCmd prints where each artifact would be loaded from.
type PathsCmd struct {
	BasePath string `help:"Application base path." required:"" type:"path"`
	Console  bool   `help:"Resolve as a console invocation, which never uses the cache."`
}

// Run executes the paths command.
func (c *PathsCmd) Run(g *Globals) error {
	s, err := g.open("paths")
	if err != nil {
		return fmt.Errorf("paths: %w", err)
	}
	defer s.Close()

	o := optimizer.New(s.fs, s.cfg, optimizer.WithLogger(s.log))
	o.Bootstrap(c.BasePath, c.Console)
	return printPaths(g.stdout(), o)
}

func printPaths(out io.Writer, o *optimizer.Optimizer) error {
	w := tabwriter.NewWriter(out, 0, 4, 1, ' ', 0)
	fmt.Fprintf(w, "config\t%s\n", o.ConfigPath())
	fmt.Fprintf(w, "routes\t%s\n", o.RoutesPath())
	fmt.Fprintf(w, "services\t%s\n", o.ServicesPath())
	if views, ok := o.CompiledViewsPath(); ok {
		fmt.Fprintf(w, "views\t%s\n", views)
	}
	return w.Flush()
}

func main() {
	cli := CLI{Globals: Globals{Stdout: os.Stdout, Stdin: os.Stdin}}
	ctx := kong.Parse(&cli,
		kong.Name("kvfs"),
		kong.Description("Inspect and fill a kvfs cache file system."),
		kong.UsageOnError(),
		kong.Vars{"version": version},
	)
	err := ctx.Run(&cli.Globals)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %s\n", err)
		os.Exit(1)
	}
}
