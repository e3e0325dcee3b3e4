package kvfs

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/absfs/kvfs/kv"
)

// Benchmark helpers
func setupBenchFS(b *testing.B, backend string) *FileSystem {
	var store kv.Store
	switch backend {
	case "memory":
		store = kv.NewMemoryStore()
	case "bolt", "zstd":
		bolt, err := kv.OpenBoltStore(filepath.Join(b.TempDir(), "bench.db"), "")
		if err != nil {
			b.Fatal(err)
		}
		store = bolt
		if backend == "zstd" {
			store, err = kv.Compressed(bolt, 256)
			if err != nil {
				b.Fatal(err)
			}
		}
	default:
		b.Fatalf("unknown backend %q", backend)
	}
	b.Cleanup(func() { store.Close() })

	fs := New(store)
	if err := fs.Initialize(); err != nil {
		b.Fatal(err)
	}
	return fs
}

func createBenchFiles(b *testing.B, fs *FileSystem, dir string, numFiles int) {
	b.Helper()
	for i := 0; i < numFiles; i++ {
		name := fmt.Sprintf("%s/file_%d.txt", dir, i)
		file, err := fs.OpenFile(name, os.O_CREATE|os.O_RDWR, 0644)
		if err != nil {
			b.Fatalf("creating file %s: %v", name, err)
		}
		data := []byte(fmt.Sprintf("content for file %d", i))
		_, err = file.Write(data)
		if err != nil {
			file.Close()
			b.Fatalf("writing to file %s: %v", name, err)
		}
		file.Close()
	}
}

var benchBackends = []string{"memory", "bolt", "zstd"}

// Benchmark: File stat operations
func BenchmarkStat(b *testing.B) {
	for _, backend := range benchBackends {
		b.Run(backend, func(b *testing.B) {
			fs := setupBenchFS(b, backend)
			createBenchFiles(b, fs, "", 100)

			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				_, err := fs.Stat(fmt.Sprintf("/file_%d.txt", i%100))
				if err != nil {
					b.Fatal(err)
				}
			}
		})
	}
}

// Benchmark: Stat of a registered directory never reaches the store
func BenchmarkStat_DeepDir(b *testing.B) {
	fs := setupBenchFS(b, "bolt")

	path := "/dir_0/dir_1/dir_2/dir_3/dir_4/dir_5/dir_6/dir_7/dir_8/dir_9"
	if err := fs.MkdirAll(path, 0755); err != nil {
		b.Fatal(err)
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, err := fs.Stat(path)
		if err != nil {
			b.Fatal(err)
		}
	}
}

// Benchmark: File read operations
func BenchmarkRead(b *testing.B) {
	for _, backend := range benchBackends {
		b.Run(backend, func(b *testing.B) {
			fs := setupBenchFS(b, backend)

			// Create a file with 1KB of data
			data := make([]byte, 1024)
			for i := range data {
				data[i] = byte(i % 256)
			}
			if err := fs.WriteFile("/testfile.txt", data, 0644); err != nil {
				b.Fatal(err)
			}

			buf := make([]byte, 1024)

			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				file, err := fs.Open("/testfile.txt")
				if err != nil {
					b.Fatal(err)
				}
				file.Read(buf)
				file.Close()
			}
		})
	}
}

// Benchmark: Directory listing, entries and registered subdirectories
func BenchmarkReadDir(b *testing.B) {
	for _, backend := range benchBackends {
		b.Run(backend, func(b *testing.B) {
			fs := setupBenchFS(b, backend)
			if err := fs.MkdirAll("/views/partials", 0755); err != nil {
				b.Fatal(err)
			}
			createBenchFiles(b, fs, "/views", 50)
			createBenchFiles(b, fs, "/views/partials", 50)

			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				_, err := fs.ReadDir("/views")
				if err != nil {
					b.Fatal(err)
				}
			}
		})
	}
}

// Benchmark: File write operations
func BenchmarkWrite(b *testing.B) {
	for _, backend := range benchBackends {
		b.Run(backend, func(b *testing.B) {
			fs := setupBenchFS(b, backend)
			data := []byte("<?php return ['app' => ['name' => 'bench']];\n")

			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				file, err := fs.OpenMode(fmt.Sprintf("/write_%d.php", i%100), "wb")
				if err != nil {
					b.Fatal(err)
				}
				file.Write(data)
				file.Close()
			}
		})
	}
}

// Benchmark: Mixed operations (realistic workload)
func BenchmarkMixed(b *testing.B) {
	fs := setupBenchFS(b, "bolt")
	if err := fs.MkdirAll("/bootstrap/cache", 0755); err != nil {
		b.Fatal(err)
	}
	createBenchFiles(b, fs, "/bootstrap/cache", 20)

	buf := make([]byte, 64)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		name := fmt.Sprintf("/bootstrap/cache/file_%d.txt", i%20)
		switch i % 4 {
		case 0:
			fs.Stat(name)
		case 1:
			f, err := fs.Open(name)
			if err == nil {
				f.Read(buf)
				f.Close()
			}
		case 2:
			fs.ReadDir("/bootstrap/cache")
		case 3:
			fs.WriteFile(name, buf, 0644)
		}
	}
}
