// Package kvfs provides a file system implementation on top of a flat
// key-value cache (see package kv). File contents live in the cache under
// path-shaped keys such as `cachefs://bootstrap/cache/config.php`, while
// directories are emulated by a registry owned by each FileSystem.
//
// Directories are not shared between processes: two processes using the same
// cache see the same files but only their own directories.
package kvfs
