package kv

import (
	"context"
	"fmt"

	"github.com/klauspost/compress/zstd"
)

// Every value written by a CompressedStore starts with one of these tags.
const (
	tagRaw  byte = 0
	tagZstd byte = 1
)

// CompressedStore compresses values with zstd before handing them to the
// wrapped store. Values shorter than the threshold are stored as is. Each
// stored value carries a one byte tag saying which of the two it is, so the
// wrapped store must only hold values written through a CompressedStore.
type CompressedStore struct {
	Store
	minSize int
	enc     *zstd.Encoder
	dec     *zstd.Decoder
}

// Compressed wraps store. Values of at least minSize bytes are compressed.
func Compressed(store Store, minSize int) (*CompressedStore, error) {
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, err
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		enc.Close()
		return nil, err
	}
	return &CompressedStore{Store: store, minSize: minSize, enc: enc, dec: dec}, nil
}

func (s *CompressedStore) Get(ctx context.Context, key string) ([]byte, error) {
	data, err := s.Store.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("decompress %q: missing tag", key)
	}
	switch data[0] {
	case tagRaw:
		return data[1:], nil
	case tagZstd:
		out, err := s.dec.DecodeAll(data[1:], nil)
		if err != nil {
			return nil, fmt.Errorf("decompress %q: %w", key, err)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("decompress %q: unknown tag %#x", key, data[0])
	}
}

func (s *CompressedStore) Set(ctx context.Context, key string, value []byte) error {
	if len(value) < s.minSize {
		raw := make([]byte, 0, len(value)+1)
		raw = append(raw, tagRaw)
		return s.Store.Set(ctx, key, append(raw, value...))
	}
	dst := make([]byte, 1, len(value)/2+1)
	dst[0] = tagZstd
	return s.Store.Set(ctx, key, s.enc.EncodeAll(value, dst))
}

// Close releases the codecs and closes the wrapped store.
func (s *CompressedStore) Close() error {
	s.enc.Close()
	s.dec.Close()
	return s.Store.Close()
}
