package native

import (
	"testing"
	"unsafe"

	"github.com/ValentinKolb/fKV/lib/engine"
	"github.com/puzpuzpuz/xsync/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStructLayout(t *testing.T) {
	if unsafe.Sizeof(uintptr(0)) != 8 {
		t.Skip("struct layouts are checked for 64 bit platforms")
	}

	tests := []struct {
		name string
		size uintptr
		want uintptr
	}{
		{"fio_kv_store_info_t", unsafe.Sizeof(storeInfo{}), 32},
		{"fio_kv_key_info_t", unsafe.Sizeof(keyInfo{}), 20},
		{"fio_kv_pool_desc_t", unsafe.Sizeof(poolDesc{}), 24},
		{"fio_kv_iov_t", unsafe.Sizeof(iovec{}), 16},
		{"fio_kv_store_t", unsafe.Sizeof(legacyStoreT{}), 24},
		{"fio_kv_key_t", unsafe.Sizeof(legacyKey{}), 16},
		{"fio_kv_value_t", unsafe.Sizeof(legacyValue{}), 16},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.size)
		})
	}

	assert.Equal(t, uintptr(8), unsafe.Offsetof(legacyStoreT{}.KV), "fio_kv_store_t.kv offset")
	assert.Equal(t, uintptr(8), unsafe.Offsetof(legacyKey{}.Bytes), "fio_kv_key_t.bytes offset")
	assert.Equal(t, uintptr(16), unsafe.Offsetof(storeInfo{}.NumKeys), "fio_kv_store_info_t.num_keys offset")
}

func TestABIVersionString(t *testing.T) {
	assert.Equal(t, "legacy", abiLegacy.String())
	assert.Equal(t, "extended", abiExtended.String())
	assert.Equal(t, "abiVersion(7)", abiVersion(7).String())
}

func TestParsePoolTag(t *testing.T) {
	valid := map[string]engine.PoolID{"0": 0, "7": 7, "1023": 1023}
	for tag, want := range valid {
		id, err := parsePoolTag(tag)
		require.NoError(t, err, tag)
		assert.Equal(t, want, id, tag)
	}

	for _, tag := range []string{"", "-1", "1024", "007", "+3", "pool", "1.5", " 1"} {
		_, err := parsePoolTag(tag)
		assert.ErrorIs(t, err, engine.EINVAL, "tag %q", tag)
	}
}

// legacy engines reject invalid arguments and unknown handles before calling
// into the helper, so these run without a library
func TestLegacyArgumentChecks(t *testing.T) {
	l := newLegacyEngine(base{allocations: xsync.NewMapOf[uintptr, int]()})

	t.Run("Open", func(t *testing.T) {
		_, err := l.Open("", 1, engine.NoExpiry, 0)
		assert.ErrorIs(t, err, engine.ENOENT)
		_, err = l.Open("/dev/fct0", 2, engine.NoExpiry, 0)
		assert.ErrorIs(t, err, engine.EINVAL)
		_, err = l.Open("/dev/fct0", 1, engine.GlobalExpiry, 3600)
		assert.ErrorIs(t, err, engine.ENOTSUP)
	})

	t.Run("UnknownHandle", func(t *testing.T) {
		const h = engine.Handle(42)
		key := []byte("key")

		assert.ErrorIs(t, l.Close(h), engine.EBADF)
		_, err := l.StoreInfo(h)
		assert.ErrorIs(t, err, engine.EBADF)
		_, err = l.GetOrCreatePool(h, "1")
		assert.ErrorIs(t, err, engine.EBADF)
		_, err = l.Pools(h)
		assert.ErrorIs(t, err, engine.EBADF)
		_, err = l.Get(h, 0, key, make([]byte, 8))
		assert.ErrorIs(t, err, engine.EBADF)
		_, err = l.Put(h, 0, key, []byte("value"), 0)
		assert.ErrorIs(t, err, engine.EBADF)
		_, _, err = l.Exists(h, 0, key)
		assert.ErrorIs(t, err, engine.EBADF)
		assert.ErrorIs(t, l.Delete(h, 0, key), engine.EBADF)
		_, err = l.Iterator(h, 0)
		assert.ErrorIs(t, err, engine.EBADF)
		assert.ErrorIs(t, l.Next(h, 0, 1), engine.EBADF)
	})

	t.Run("UnsupportedOperations", func(t *testing.T) {
		h := engine.Handle(l.nextHandle.Add(1))
		l.devices.Store(h, &legacyDevice{path: "/dev/fct0", pools: map[engine.PoolID]uintptr{0: 1}})
		defer l.devices.Delete(h)
		key := []byte("key")

		_, err := l.StoreInfo(h)
		assert.ErrorIs(t, err, engine.ENOTSUP)
		assert.ErrorIs(t, l.DeletePool(h, 0), engine.ENOTSUP)
		assert.ErrorIs(t, l.DeleteAllPools(h), engine.ENOTSUP)
		assert.ErrorIs(t, l.DeleteAll(h), engine.ENOTSUP)
		_, err = l.ValueLen(h, 0, key)
		assert.ErrorIs(t, err, engine.ENOTSUP)
		_, err = l.KeyInfo(h, 0, key)
		assert.ErrorIs(t, err, engine.ENOTSUP)
		assert.ErrorIs(t, l.BatchPut(h, 0, [][]byte{key}, [][]byte{key}, nil), engine.ENOTSUP)
		_, err = l.Iterator(h, 0)
		assert.ErrorIs(t, err, engine.ENOTSUP)

		// pools that were never opened
		_, err = l.Get(h, 5, key, make([]byte, 8))
		assert.ErrorIs(t, err, engine.ENOENT)

		// keys the helper would abort on
		_, err = l.Put(h, 0, nil, []byte("value"), 0)
		assert.ErrorIs(t, err, engine.EINVAL)
		_, _, err = l.Exists(h, 0, make([]byte, engine.MaxKeySize+1))
		assert.ErrorIs(t, err, engine.EINVAL)
		_, err = l.Put(h, 0, key, make([]byte, engine.MaxValueSize+1), 0)
		assert.ErrorIs(t, err, engine.EFBIG)

		pools, err := l.Pools(h)
		require.NoError(t, err)
		assert.Equal(t, []engine.PoolDesc{{ID: 0, Tag: "0"}}, pools)
	})

	t.Run("Free", func(t *testing.T) {
		assert.ErrorIs(t, l.Free(make([]byte, 8)), engine.EINVAL)
	})
}
