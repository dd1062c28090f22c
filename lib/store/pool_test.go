package store

import (
	"bytes"
	"fmt"
	"testing"
	"time"

	"github.com/ValentinKolb/fKV/lib/engine"
	"github.com/ValentinKolb/fKV/lib/engine/engines/mem"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// faultyEngine fails selected calls with a fixed status code
type faultyEngine struct {
	engine.Engine
	calls map[string]int
	fail  map[string]engine.Errno
}

func newFaultyEngine() *faultyEngine {
	return &faultyEngine{
		Engine: mem.NewMemEngine(nil),
		calls:  map[string]int{},
		fail:   map[string]engine.Errno{},
	}
}

func (f *faultyEngine) hit(op string) error {
	f.calls[op]++
	if errno, ok := f.fail[op]; ok {
		return errno
	}
	return nil
}

func (f *faultyEngine) Delete(h engine.Handle, pool engine.PoolID, key []byte) error {
	if err := f.hit("delete"); err != nil {
		return err
	}
	return f.Engine.Delete(h, pool, key)
}

func (f *faultyEngine) Put(h engine.Handle, pool engine.PoolID, key, value []byte, expiry uint32) (int, error) {
	if err := f.hit("put"); err != nil {
		return 0, err
	}
	return f.Engine.Put(h, pool, key, value, expiry)
}

func (f *faultyEngine) BatchPut(h engine.Handle, pool engine.PoolID, keys, values [][]byte, expiries []uint32) error {
	if err := f.hit("batch_put"); err != nil {
		return err
	}
	return f.Engine.BatchPut(h, pool, keys, values, expiries)
}

func (f *faultyEngine) GetOrCreatePool(h engine.Handle, tag string) (engine.PoolID, error) {
	if err := f.hit("get_or_create_pool"); err != nil {
		return 0, err
	}
	return f.Engine.GetOrCreatePool(h, tag)
}

func (f *faultyEngine) Next(h engine.Handle, pool engine.PoolID, cursor engine.CursorID) error {
	if err := f.hit("next"); err != nil {
		return err
	}
	return f.Engine.Next(h, pool, cursor)
}

func TestRoundTrip(t *testing.T) {
	s, _ := newTestStore(t, NoExpiry())
	p := newTestPool(t, s, "p")

	out, err := s.AllocValue(engine.MaxValueSize)
	require.NoError(t, err)
	defer out.Free()

	for _, size := range []int{0, 1, 13, engine.SectorAlignment, 4096 + 7, engine.MaxValueSize} {
		t.Run(fmt.Sprintf("Size%d", size), func(t *testing.T) {
			in, err := s.AllocValue(max(size, 1))
			require.NoError(t, err)
			defer in.Free()

			payload := bytes.Repeat([]byte{byte(size)}, size)
			require.NoError(t, in.Write(payload))

			key := KeyFromInt64(int64(size))
			require.NoError(t, p.Put(key, in))

			n, err := p.Get(key, out)
			require.NoError(t, err)
			assert.Equal(t, size, n)
			got, err := out.Bytes()
			require.NoError(t, err)
			assert.True(t, bytes.Equal(payload, got))

			vl, err := p.ValueLen(key)
			require.NoError(t, err)
			assert.Equal(t, size, vl)
		})
	}
}

func TestGet(t *testing.T) {
	s, _ := newTestStore(t, NoExpiry())
	p := newTestPool(t, s, "p")
	putString(t, p, MustKey("k"), "0123456789")

	t.Run("Missing", func(t *testing.T) {
		v, err := s.AllocValue(16)
		require.NoError(t, err)
		defer v.Free()
		_, err = p.Get(MustKey("missing"), v)
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("TooSmall", func(t *testing.T) {
		v, err := s.AllocValue(4)
		require.NoError(t, err)
		defer v.Free()
		_, err = p.Get(MustKey("k"), v)
		assert.ErrorIs(t, err, ErrCapacity)
	})

	t.Run("FreedValue", func(t *testing.T) {
		v, err := s.AllocValue(16)
		require.NoError(t, err)
		require.NoError(t, v.Free())
		_, err = p.Get(MustKey("k"), v)
		assert.ErrorIs(t, err, ErrUseAfterFree)
		assert.ErrorIs(t, p.Put(MustKey("k"), v), ErrUseAfterFree)
	})

	t.Run("WrappedValue", func(t *testing.T) {
		v, err := WrapValue(make([]byte, 0, 32))
		require.NoError(t, err)
		defer v.Free()
		n, err := p.Get(MustKey("k"), v)
		require.NoError(t, err)
		assert.Equal(t, 10, n)
	})

	t.Run("GetBytes", func(t *testing.T) {
		b, err := p.GetBytes(MustKey("k"))
		require.NoError(t, err)
		assert.Equal(t, []byte("0123456789"), b)

		_, err = p.GetBytes(MustKey("missing"))
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("ZeroKey", func(t *testing.T) {
		_, err := p.Exists(Key{})
		assert.ErrorIs(t, err, ErrInvalidArgument)
	})
}

func TestExistenceToggling(t *testing.T) {
	s, _ := newTestStore(t, NoExpiry())
	p := newTestPool(t, s, "p")
	key := MustKey("toggle")

	ok, err := p.Exists(key)
	require.NoError(t, err)
	assert.False(t, ok)

	putString(t, p, key, "v")
	ok, err = p.Exists(key)
	require.NoError(t, err)
	assert.True(t, ok)

	deleted, err := p.Delete(key)
	require.NoError(t, err)
	assert.True(t, deleted)

	ok, err = p.Exists(key)
	require.NoError(t, err)
	assert.False(t, ok)

	deleted, err = p.Delete(key)
	require.NoError(t, err)
	assert.False(t, deleted, "deleting a missing key reports false")
}

func TestKeyInfo(t *testing.T) {
	s, _ := newTestStore(t, NoExpiry())
	p := newTestPool(t, s, "p")
	key := MustKey("info")

	putString(t, p, key, "first")
	putString(t, p, key, "second!")

	info, err := p.KeyInfo(key)
	require.NoError(t, err)
	assert.Equal(t, p.ID(), info.PoolID)
	assert.Equal(t, 4, info.KeyLen)
	assert.Equal(t, 7, info.ValueLen)
	assert.Equal(t, uint32(2), info.GenCount)
	assert.False(t, info.Expires())
}

func TestArbitraryExpiry(t *testing.T) {
	s, _ := newTestStore(t, ArbitraryExpiry())
	p := newTestPool(t, s, "p")

	v, err := s.AllocValue(8)
	require.NoError(t, err)
	defer v.Free()
	require.NoError(t, v.Write([]byte("ttl")))
	require.NoError(t, v.SetExpiry(time.Hour))
	require.NoError(t, p.Put(MustKey("expiring"), v))

	info, err := p.KeyInfo(MustKey("expiring"))
	require.NoError(t, err)
	assert.True(t, info.Expires())
	assert.WithinDuration(t, time.Now().Add(time.Hour), info.Expiry, time.Minute)

	require.NoError(t, v.SetExpiry(0))
	require.NoError(t, p.Put(MustKey("forever"), v))
	info, err = p.KeyInfo(MustKey("forever"))
	require.NoError(t, err)
	assert.False(t, info.Expires())
}

func TestBatchPut(t *testing.T) {
	s, _ := newTestStore(t, NoExpiry())
	p := newTestPool(t, s, "p")

	const n = 50
	keys := make([]Key, n)
	values := make([]*Value, n)
	for i := range keys {
		keys[i] = KeyFromInt64(int64(i))
		v, err := s.AllocValue(16)
		require.NoError(t, err)
		defer v.Free()
		require.NoError(t, v.Write([]byte(fmt.Sprintf("value-%d", i))))
		values[i] = v
	}

	require.NoError(t, p.BatchPut(keys, values))
	for i, k := range keys {
		got, err := p.GetBytes(k)
		require.NoError(t, err)
		assert.Equal(t, fmt.Sprintf("value-%d", i), string(got))
	}

	t.Run("Empty", func(t *testing.T) {
		assert.NoError(t, p.BatchPut(nil, nil))
	})

	t.Run("FreedValue", func(t *testing.T) {
		v, err := s.AllocValue(8)
		require.NoError(t, err)
		require.NoError(t, v.Free())
		err = p.BatchPut([]Key{MustKey("x")}, []*Value{v})
		assert.ErrorIs(t, err, ErrUseAfterFree)
	})
}

func TestBatchPutLengthMismatch(t *testing.T) {
	eng := newFaultyEngine()
	s, err := Open(eng, testPath, 1, NoExpiry())
	require.NoError(t, err)
	defer s.Close()
	p := newTestPool(t, s, "p")

	v, err := WrapValue([]byte("v"))
	require.NoError(t, err)
	err = p.BatchPut([]Key{MustKey("a"), MustKey("b")}, []*Value{v})
	assert.ErrorIs(t, err, ErrInvalidArgument)
	assert.Zero(t, eng.calls["batch_put"], "engine must not be called")

	eng.fail["batch_put"] = engine.ENOSPC
	err = p.BatchPut([]Key{MustKey("a")}, []*Value{v})
	assert.ErrorIs(t, err, ErrCapacity)
}

func TestEngineFailures(t *testing.T) {
	eng := newFaultyEngine()
	s, err := Open(eng, testPath, 1, NoExpiry())
	require.NoError(t, err)
	defer s.Close()
	p := newTestPool(t, s, "p")
	putString(t, p, MustKey("k"), "v")

	v, err := WrapValue([]byte("v"))
	require.NoError(t, err)

	tests := []struct {
		name  string
		op    string
		errno engine.Errno
		call  func() error
		want  *Error
	}{
		{"PutDeviceFull", "put", engine.ENOSPC, func() error { return p.Put(MustKey("k"), v) }, ErrCapacity},
		{"PutIO", "put", engine.EIO, func() error { return p.Put(MustKey("k"), v) }, ErrIO},
		{"PutBadHandle", "put", engine.EBADF, func() error { return p.Put(MustKey("k"), v) }, ErrInvalidHandle},
		{"DeleteIO", "delete", engine.EIO, func() error { _, err := p.Delete(MustKey("k")); return err }, ErrIO},
		{"DeletePermission", "delete", engine.EACCES, func() error { _, err := p.Delete(MustKey("k")); return err }, ErrIO},
		{"PoolNoSpace", "get_or_create_pool", engine.ENOSPC, func() error { _, err := s.GetOrCreatePool("q"); return err }, ErrCapacity},
		{"PoolIO", "get_or_create_pool", engine.EIO, func() error { _, err := s.GetOrCreatePool("q"); return err }, ErrPool},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			eng.fail[tt.op] = tt.errno
			defer delete(eng.fail, tt.op)

			err := tt.call()
			require.ErrorIs(t, err, tt.want)
			var e *Error
			require.ErrorAs(t, err, &e)
			assert.Equal(t, tt.errno, e.Errno)
		})
	}

	// the failed deletes did not remove anything
	ok, err := p.Exists(MustKey("k"))
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestDetachedPool(t *testing.T) {
	v, err := WrapValue([]byte("v"))
	require.NoError(t, err)
	key := MustKey("k")

	for name, p := range map[string]*Pool{"Nil": nil, "Zero": {}} {
		t.Run(name, func(t *testing.T) {
			assert.False(t, p.Valid())

			_, err := p.Get(key, v)
			assert.ErrorIs(t, err, ErrInvalidArgument)
			_, err = p.GetBytes(key)
			assert.ErrorIs(t, err, ErrInvalidArgument)
			_, err = p.ValueLen(key)
			assert.ErrorIs(t, err, ErrInvalidArgument)
			assert.ErrorIs(t, p.Put(key, v), ErrInvalidArgument)
			_, err = p.Exists(key)
			assert.ErrorIs(t, err, ErrInvalidArgument)
			_, err = p.KeyInfo(key)
			assert.ErrorIs(t, err, ErrInvalidArgument)
			_, err = p.Delete(key)
			assert.ErrorIs(t, err, ErrInvalidArgument)
			assert.ErrorIs(t, p.BatchPut([]Key{key}, []*Value{v}), ErrInvalidArgument)
			_, err = p.Iterator()
			assert.ErrorIs(t, err, ErrInvalidArgument)
			assert.ErrorIs(t, p.Range(func(KeyValuePair) bool { return true }), ErrInvalidArgument)
		})
	}
}
