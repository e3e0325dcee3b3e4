package kvfs

import (
	"errors"
	"os"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/absfs/kvfs/kv"
)

func TestMuxRouting(t *testing.T) {
	disk := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(disk, "/srv/app/bootstrap/cache/config.php", []byte("disk"), 0644))

	mux := NewMux(disk)
	kfs := New(kv.NewMemoryStore(), WithMux(mux))
	require.NoError(t, kfs.Initialize())
	require.NoError(t, kfs.WriteFile("/bootstrap/cache/config.php", []byte("cache"), 0))

	data, err := mux.ReadFile("cachefs://bootstrap/cache/config.php")
	require.NoError(t, err)
	assert.Equal(t, "cache", string(data))

	data, err = mux.ReadFile("/srv/app/bootstrap/cache/config.php")
	require.NoError(t, err)
	assert.Equal(t, "disk", string(data))

	info, err := mux.Stat("cachefs://bootstrap/cache/config.php")
	require.NoError(t, err)
	assert.Equal(t, int64(5), info.Size())

	assert.True(t, mux.Exists("cachefs://bootstrap/cache/config.php"))
	assert.False(t, mux.Exists("cachefs://bootstrap/cache/routes.php"))
	assert.True(t, mux.Exists("/srv/app/bootstrap/cache/config.php"))

	// unknown schemes are left to the disk
	_, err = mux.ReadFile("redis://bootstrap/cache/config.php")
	assert.True(t, errors.Is(err, os.ErrNotExist))
}

func TestMuxRegister(t *testing.T) {
	mux := NewMux(afero.NewMemMapFs())
	one := New(kv.NewMemoryStore())
	two := New(kv.NewMemoryStore())

	require.NoError(t, mux.Register("cachefs", one))
	require.NoError(t, mux.Register("cachefs", one))
	assert.ErrorIs(t, mux.Register("cachefs", two), errSchemeRegistered)
	require.NoError(t, mux.Register("views", two))

	filer, ok := mux.Lookup("views")
	assert.True(t, ok)
	assert.Same(t, two, filer)

	_, ok = mux.Lookup("missing")
	assert.False(t, ok)

	assert.ErrorIs(t, mux.Register("", one), ErrInvalidArgument)
}

func TestMuxDefaultDisk(t *testing.T) {
	mux := NewMux(nil)
	assert.IsType(t, &afero.OsFs{}, mux.Disk())
}
