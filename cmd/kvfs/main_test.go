package main

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/alecthomas/kong"
)

// errExitCalled is a sentinel used to catch kong's os.Exit calls in tests.
var errExitCalled = errors.New("exit called")

// setupEnv points the CLI at a dir store in a temporary directory so that
// entries survive between invocations.
func setupEnv(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("KVFS_BACKEND", "dir")
	t.Setenv("KVFS_DIR_PATH", filepath.Join(dir, "store"))
	t.Setenv("LOG_LEVEL", "error")
	return dir
}

func run(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	var cli CLI
	var out bytes.Buffer
	parser, err := kong.New(&cli,
		kong.Name("kvfs"),
		kong.Vars{"version": "test"},
		kong.Writers(&out, &out),
		kong.Exit(func(int) { panic(errExitCalled) }),
	)
	if err != nil {
		t.Fatal(err)
	}
	ctx, err := parser.Parse(args)
	if err != nil {
		return "", err
	}
	cli.Globals.Stdout = &out
	cli.Globals.Stdin = strings.NewReader(stdin)
	err = ctx.Run(&cli.Globals)
	return out.String(), err
}

func TestPutCat(t *testing.T) {
	setupEnv(t)

	if _, err := run(t, "hello ", "put", "cachefs://greeting.txt"); err != nil {
		t.Fatal(err)
	}
	if _, err := run(t, "world", "put", "--append", "/greeting.txt"); err != nil {
		t.Fatal(err)
	}

	out, err := run(t, "", "cat", "cachefs://greeting.txt")
	if err != nil {
		t.Fatal(err)
	}
	if out != "hello world" {
		t.Errorf("cat = %q", out)
	}
}

func TestCatDisk(t *testing.T) {
	dir := setupEnv(t)
	path := filepath.Join(dir, "disk.txt")
	if err := os.WriteFile(path, []byte("from disk"), 0o644); err != nil {
		t.Fatal(err)
	}

	out, err := run(t, "", "cat", path)
	if err != nil {
		t.Fatal(err)
	}
	if out != "from disk" {
		t.Errorf("cat = %q", out)
	}
}

func TestLsStatMvRm(t *testing.T) {
	setupEnv(t)

	for _, name := range []string{"/app/b.txt", "/app/a.txt", "/app/deep/c.txt"} {
		if _, err := run(t, "data", "put", name); err != nil {
			t.Fatal(err)
		}
	}

	out, err := run(t, "", "ls", "/app")
	if err != nil {
		t.Fatal(err)
	}
	if out != "a.txt\nb.txt\n" {
		t.Errorf("ls = %q", out)
	}

	out, err = run(t, "", "stat", "/app/a.txt")
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{"cachefs://app/a.txt", "kind:", "file", "size:   4", "blocks: 2"} {
		if !strings.Contains(out, want) {
			t.Errorf("stat output %q should contain %q", out, want)
		}
	}

	if _, err := run(t, "", "mv", "/app/a.txt", "/app/z.txt"); err != nil {
		t.Fatal(err)
	}
	if _, err := run(t, "", "rm", "/app/b.txt"); err != nil {
		t.Fatal(err)
	}
	out, err = run(t, "", "ls", "/app")
	if err != nil {
		t.Fatal(err)
	}
	if out != "z.txt\n" {
		t.Errorf("ls after mv and rm = %q", out)
	}

	if _, err := run(t, "", "rm", "-r", "/app"); err != nil {
		t.Fatal(err)
	}
	if _, err := run(t, "", "stat", "/app/z.txt"); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("stat after rm -r: %v", err)
	}
}

func TestMkdirRmdir(t *testing.T) {
	setupEnv(t)

	if _, err := run(t, "", "mkdir", "/a/b"); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("mkdir without -p: %v", err)
	}
	if _, err := run(t, "", "mkdir", "-p", "/a/b"); err != nil {
		t.Error(err)
	}
	// directories do not outlive the invocation
	if _, err := run(t, "", "rmdir", "/a/b"); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("rmdir in a new process: %v", err)
	}
}

func TestWarmAndPaths(t *testing.T) {
	dir := setupEnv(t)
	t.Setenv("CACHE_CONFIG_FILE", "true")
	t.Setenv("CACHE_ROUTES_FILE", "true")

	base := filepath.Join(dir, "app")
	if err := os.MkdirAll(filepath.Join(base, "bootstrap", "cache"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(base, "bootstrap", "cache", "config.php"), []byte("<?php return [];"), 0o644); err != nil {
		t.Fatal(err)
	}

	out, err := run(t, "", "warm", "--base-path", base)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "cachefs://bootstrap/cache/config.php") {
		t.Errorf("config should be cached: %q", out)
	}
	// routes were never generated, so they stay on disk
	if !strings.Contains(out, filepath.Join(base, "bootstrap", "cache", "routes.php")) {
		t.Errorf("routes should fall back to disk: %q", out)
	}

	out, err = run(t, "", "cat", "cachefs://bootstrap/cache/config.php")
	if err != nil {
		t.Fatal(err)
	}
	if out != "<?php return [];" {
		t.Errorf("cached config = %q", out)
	}

	out, err = run(t, "", "paths", "--base-path", base, "--console")
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(out, "cachefs://") {
		t.Errorf("console invocations never use the cache: %q", out)
	}
}

func TestVersionFlag(t *testing.T) {
	defer func() {
		r := recover()
		if r == nil {
			t.Fatal("expected panic from --version flag")
		}
		err, ok := r.(error)
		if !ok || !errors.Is(err, errExitCalled) {
			panic(r)
		}
	}()
	run(t, "", "--version")
}
