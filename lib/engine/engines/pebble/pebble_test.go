package pebble

import (
	"bytes"
	"fmt"
	"testing"

	"github.com/ValentinKolb/fKV/lib/engine"
	fkvstore "github.com/ValentinKolb/fKV/lib/store"
	"github.com/cockroachdb/pebble/vfs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newEngine(capacity uint64) (engine.Engine, vfs.FS) {
	fs := vfs.NewMem()
	return NewPebbleEngine(&Options{Capacity: capacity, FS: fs}), fs
}

func TestCodec(t *testing.T) {
	tests := []struct {
		name string
		fn   func(t *testing.T)
	}{
		{
			name: "meta_roundtrip",
			fn: func(t *testing.T) {
				m := meta{Version: 7, Mode: engine.GlobalExpiry, TTL: 3600, NextPool: 42}
				decoded, err := decodeMeta(m.encode())
				require.NoError(t, err)
				assert.Equal(t, m, decoded)

				_, err = decodeMeta([]byte{1, 2, 3})
				assert.ErrorIs(t, err, errCorruptMeta)
			},
		},
		{
			name: "entry_roundtrip",
			fn: func(t *testing.T) {
				value := []byte("hello, world\x00")
				hdr, decoded, err := decodeEntry(encodeEntry(header{ExpireAt: 99, Gen: 3}, value))
				require.NoError(t, err)
				assert.Equal(t, header{ExpireAt: 99, Gen: 3}, hdr)
				assert.Equal(t, value, decoded)

				_, _, err = decodeEntry([]byte{0})
				assert.ErrorIs(t, err, errCorruptEntry)
			},
		},
		{
			name: "pool_bounds_isolate_pools",
			fn: func(t *testing.T) {
				lower, upper := poolBounds(1)
				inPool := entryKey(1, bytes.Repeat([]byte{0xFF}, engine.MaxKeySize))
				nextPool := entryKey(2, []byte{0x00})

				assert.True(t, bytes.Compare(lower, inPool) <= 0)
				assert.True(t, bytes.Compare(inPool, upper) < 0)
				assert.True(t, bytes.Compare(nextPool, upper) >= 0)
				assert.Equal(t, []byte("key"), userKey(entryKey(1, []byte("key"))))
			},
		},
		{
			name: "pool_registry_keys",
			fn: func(t *testing.T) {
				assert.Equal(t, engine.PoolID(513), decodePoolIDKey(poolIDKey(513)))
				assert.Equal(t, engine.PoolID(513), decodePoolID(encodePoolID(513)))
				assert.Equal(t, append([]byte{prefixPoolTag}, "tag"...), poolTagKey("tag"))
			},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, tc.fn)
	}
}

func TestCapacity(t *testing.T) {
	eng, _ := newEngine(4 * engine.SectorAlignment)

	h, err := eng.Open("/fkv/cap", 1, engine.NoExpiry, 0)
	require.NoError(t, err)
	defer eng.Close(h)

	pool, err := eng.GetOrCreatePool(h, "cap")
	require.NoError(t, err)

	for i := 0; i < 4; i++ {
		_, err := eng.Put(h, pool, []byte(fmt.Sprintf("k%d", i)), []byte("v"), 0)
		require.NoError(t, err)
	}

	_, err = eng.Put(h, pool, []byte("k4"), []byte("v"), 0)
	assert.Equal(t, engine.ENOSPC, engine.ErrnoOf(err))

	// the rejected batch is not applied at all
	_, ok, err := eng.Exists(h, pool, []byte("k4"))
	require.NoError(t, err)
	assert.False(t, ok)

	// overwrites reuse the space of the old entry
	_, err = eng.Put(h, pool, []byte("k0"), []byte("w"), 0)
	assert.NoError(t, err)

	info, err := eng.StoreInfo(h)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), info.FreeSpace)
}

func TestUsageSurvivesReopen(t *testing.T) {
	eng, _ := newEngine(0)

	h, err := eng.Open("/fkv/reopen", 1, engine.NoExpiry, 0)
	require.NoError(t, err)
	pool, err := eng.GetOrCreatePool(h, "p")
	require.NoError(t, err)

	for i := 0; i < 10; i++ {
		_, err := eng.Put(h, pool, []byte(fmt.Sprintf("k%d", i)), []byte("v"), 0)
		require.NoError(t, err)
	}
	before, err := eng.StoreInfo(h)
	require.NoError(t, err)
	require.NoError(t, eng.Close(h))

	h, err = eng.Open("/fkv/reopen", 1, engine.NoExpiry, 0)
	require.NoError(t, err)
	defer eng.Close(h)

	after, err := eng.StoreInfo(h)
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestPoolIDsAreNotReused(t *testing.T) {
	eng, _ := newEngine(0)

	h, err := eng.Open("/fkv/ids", 1, engine.NoExpiry, 0)
	require.NoError(t, err)
	defer eng.Close(h)

	first, err := eng.GetOrCreatePool(h, "a")
	require.NoError(t, err)
	require.NoError(t, eng.DeleteAllPools(h))

	second, err := eng.GetOrCreatePool(h, "a")
	require.NoError(t, err)
	assert.Greater(t, second, first)
}

func TestSharedStoreBetweenHandles(t *testing.T) {
	eng, _ := newEngine(0)

	h1, err := eng.Open("/fkv/shared", 1, engine.NoExpiry, 0)
	require.NoError(t, err)
	h2, err := eng.Open("/fkv/shared", 1, engine.NoExpiry, 0)
	require.NoError(t, err)
	defer eng.Close(h2)

	pool, err := eng.GetOrCreatePool(h1, "shared")
	require.NoError(t, err)
	_, err = eng.Put(h1, pool, []byte("k"), []byte("v"), 0)
	require.NoError(t, err)

	cursor, err := eng.Iterator(h1, pool)
	require.NoError(t, err)

	// closing the first handle ends its cursor but keeps the database open
	require.NoError(t, eng.Close(h1))
	assert.Equal(t, engine.EBADF, engine.ErrnoOf(eng.EndIteration(h1, pool, cursor)))

	out := make([]byte, 8)
	n, err := eng.Get(h2, pool, []byte("k"), out)
	require.NoError(t, err)
	assert.Equal(t, []byte("v"), out[:n])
}

// The store iterator over pebble must skip entries removed after the cursor
// was created, the same way Get and Exists stop seeing them.
func TestStoreIterationSkipsRemovedEntries(t *testing.T) {
	open := func(t *testing.T, n int) *fkvstore.Pool {
		eng, _ := newEngine(0)
		s, err := fkvstore.Open(eng, "/dev/fkv", 1, fkvstore.NoExpiry())
		require.NoError(t, err)
		t.Cleanup(func() { _ = s.Close() })
		p, err := s.GetOrCreatePool("p")
		require.NoError(t, err)
		for i := 0; i < n; i++ {
			v, err := fkvstore.WrapValue([]byte(fmt.Sprintf("value-%d", i)))
			require.NoError(t, err)
			require.NoError(t, p.Put(fkvstore.KeyFromInt64(int64(i)), v))
		}
		return p
	}

	t.Run("Delete", func(t *testing.T) {
		p := open(t, 20)
		seen := 0
		require.NoError(t, p.Range(func(pair fkvstore.KeyValuePair) bool {
			if seen == 0 {
				for i := 0; i < 20; i++ {
					if k := fkvstore.KeyFromInt64(int64(i)); !k.Equal(pair.Key) {
						_, err := p.Delete(k)
						require.NoError(t, err)
					}
				}
			} else {
				ok, err := p.Exists(pair.Key)
				require.NoError(t, err)
				assert.True(t, ok, "yielded deleted key %s", pair.Key)
			}
			seen++
			return true
		}))
		assert.Equal(t, 1, seen)
	})

	t.Run("DeleteAllEntries", func(t *testing.T) {
		p := open(t, 5)
		seen := 0
		require.NoError(t, p.Range(func(pair fkvstore.KeyValuePair) bool {
			if seen == 0 {
				require.NoError(t, p.Store().DeleteAllEntries())
			}
			seen++
			return true
		}))
		assert.Equal(t, 1, seen)
	})
}
