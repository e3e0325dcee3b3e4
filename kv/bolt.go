package kv

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path"
	"strings"

	bolt "go.etcd.io/bbolt"
)

// DefaultBucket is the bucket path used when none is given.
const DefaultBucket = "kvfs"

// BoltStore stores entries in a (possibly nested) bolt bucket. The bucket
// path uses "/" as separator, so "app/kvfs" keeps the entries in the "kvfs"
// bucket nested under "app".
type BoltStore struct {
	db     *bolt.DB
	bucket string
	owned  bool
}

type bucketer interface {
	Bucket([]byte) *bolt.Bucket
	CreateBucketIfNotExists([]byte) (*bolt.Bucket, error)
}

// OpenBoltStore opens or creates the bolt database at path. The database is
// closed together with the store.
func OpenBoltStore(path, bucketpath string) (*BoltStore, error) {
	db, err := bolt.Open(path, 0644, nil)
	if err != nil {
		return nil, err
	}
	s, err := NewBoltStore(db, bucketpath)
	if err != nil {
		db.Close()
		return nil, err
	}
	s.owned = true
	return s, nil
}

// NewBoltStore creates the bucket path in db if necessary. The caller keeps
// ownership of db.
func NewBoltStore(db *bolt.DB, bucketpath string) (*BoltStore, error) {
	if bucketNames(bucketpath) == nil {
		bucketpath = DefaultBucket
	}
	err := db.Update(func(tx *bolt.Tx) error {
		return bucketInit(tx, bucketpath)
	})
	if err != nil {
		return nil, err
	}
	return &BoltStore{db: db, bucket: bucketpath}, nil
}

func bucketNames(bucketpath string) []string {
	var names []string
	for _, name := range strings.Split(strings.Trim(path.Clean(bucketpath), "/"), "/") {
		if name == "" || name == "." {
			continue
		}
		names = append(names, name)
	}
	return names
}

func bucketInit(tx *bolt.Tx, bucketpath string) error {
	var b bucketer = tx
	for _, name := range bucketNames(bucketpath) {
		next, err := b.CreateBucketIfNotExists([]byte(name))
		if err != nil {
			return fmt.Errorf("create bucket %q: %w", name, err)
		}
		b = next
	}
	return nil
}

func openBucket(tx *bolt.Tx, bucketpath string) (*bolt.Bucket, error) {
	var b bucketer = tx
	var bucket *bolt.Bucket
	for _, name := range bucketNames(bucketpath) {
		bucket = b.Bucket([]byte(name))
		if bucket == nil {
			return nil, os.ErrNotExist
		}
		b = bucket
	}
	if bucket == nil {
		return nil, os.ErrNotExist
	}
	return bucket, nil
}

func (s *BoltStore) Get(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var data []byte
	err := s.db.View(func(tx *bolt.Tx) error {
		b, err := openBucket(tx, s.bucket)
		if err != nil {
			return err
		}
		v, ok := lookup(b, []byte(key))
		if !ok {
			return ErrNotFound
		}
		// bolt values are only valid for the life of the transaction
		data = make([]byte, len(v))
		copy(data, v)
		return nil
	})
	return data, err
}

// lookup finds the value stored under key. Empty values may come back nil,
// so nil alone does not tell a missing key from an empty one.
func lookup(b *bolt.Bucket, key []byte) ([]byte, bool) {
	k, v := b.Cursor().Seek(key)
	if !bytes.Equal(k, key) {
		return nil, false
	}
	if v == nil && b.Bucket(k) != nil {
		return nil, false
	}
	return v, true
}

func (s *BoltStore) Set(ctx context.Context, key string, value []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		b, err := openBucket(tx, s.bucket)
		if err != nil {
			return err
		}
		return b.Put([]byte(key), value)
	})
}

func (s *BoltStore) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		b, err := openBucket(tx, s.bucket)
		if err != nil {
			return err
		}
		return b.Delete([]byte(key))
	})
}

func (s *BoltStore) Exists(ctx context.Context, key string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	exists := false
	err := s.db.View(func(tx *bolt.Tx) error {
		b, err := openBucket(tx, s.bucket)
		if err != nil {
			return err
		}
		_, exists = lookup(b, []byte(key))
		return nil
	})
	return exists, err
}

func (s *BoltStore) Keys(ctx context.Context, prefix string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var keys []string
	err := s.db.View(func(tx *bolt.Tx) error {
		b, err := openBucket(tx, s.bucket)
		if err != nil {
			return err
		}
		p := []byte(prefix)
		c := b.Cursor()
		for k, v := c.Seek(p); k != nil && bytes.HasPrefix(k, p); k, v = c.Next() {
			// nested buckets have nil values
			if v == nil && b.Bucket(k) != nil {
				continue
			}
			keys = append(keys, string(k))
		}
		return nil
	})
	return keys, err
}

// Ping verifies that the database is open and the bucket path exists.
func (s *BoltStore) Ping(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.View(func(tx *bolt.Tx) error {
		_, err := openBucket(tx, s.bucket)
		return err
	})
}

// Close closes the database if it was opened by OpenBoltStore.
func (s *BoltStore) Close() error {
	if !s.owned {
		return nil
	}
	return s.db.Close()
}
