package store

import (
	"bytes"
	"testing"
	"time"

	"github.com/ValentinKolb/fKV/lib/engine"
	"github.com/ValentinKolb/fKV/lib/engine/engines/mem"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKey(t *testing.T) {
	t.Run("Limits", func(t *testing.T) {
		_, err := KeyFromBytes(nil)
		assert.ErrorIs(t, err, ErrInvalidArgument)
		_, err = KeyFromBytes(make([]byte, engine.MaxKeySize+1))
		assert.ErrorIs(t, err, ErrInvalidArgument)

		k, err := KeyFromBytes(bytes.Repeat([]byte{'k'}, engine.MaxKeySize))
		require.NoError(t, err)
		assert.Equal(t, engine.MaxKeySize, k.Len())
	})

	t.Run("Immutable", func(t *testing.T) {
		src := []byte("abc")
		k, err := KeyFromBytes(src)
		require.NoError(t, err)
		src[0] = 'x'
		assert.Equal(t, "abc", k.String())

		b := k.Bytes()
		b[0] = 'y'
		assert.Equal(t, "abc", k.String())
	})

	t.Run("Equality", func(t *testing.T) {
		assert.True(t, MustKey("abc") == MustKey("abc"))
		assert.True(t, MustKey("abc").Equal(MustKey("abc")))
		assert.False(t, MustKey("abc").Equal(MustKey("abd")))

		set := map[Key]int{MustKey("a"): 1}
		assert.Equal(t, 1, set[MustKey("a")])
	})

	t.Run("Int64", func(t *testing.T) {
		for _, v := range []int64{0, 42, -1, 1 << 40} {
			k := KeyFromInt64(v)
			assert.Equal(t, 8, k.Len())
			got, ok := k.Int64()
			assert.True(t, ok)
			assert.Equal(t, v, got)
		}
		assert.Equal(t, []byte{0, 0, 0, 0, 0, 0, 0, 42}, KeyFromInt64(42).Bytes())
		_, ok := MustKey("abc").Int64()
		assert.False(t, ok)
	})

	t.Run("String", func(t *testing.T) {
		assert.Equal(t, "user:1", MustKey("user:1").String())
		assert.Equal(t, "0x000000000000002a", KeyFromInt64(42).String())
	})

	t.Run("MustKeyPanics", func(t *testing.T) {
		assert.Panics(t, func() { MustKey("") })
	})
}

func TestValue(t *testing.T) {
	eng := mem.NewMemEngine(nil)
	defer func() {
		assert.Zero(t, eng.Outstanding(), "leaked engine buffers")
	}()

	t.Run("AllocationLimits", func(t *testing.T) {
		for _, capacity := range []int{-1, 0, engine.MaxValueSize + 1} {
			_, err := NewValue(eng, capacity)
			assert.ErrorIs(t, err, ErrAllocation, "capacity %d", capacity)
		}
		v, err := NewValue(eng, engine.MaxValueSize)
		require.NoError(t, err)
		assert.Equal(t, engine.MaxValueSize, v.Cap())
		require.NoError(t, v.Free())
	})

	t.Run("WriteAndLength", func(t *testing.T) {
		v, err := NewValue(eng, 8)
		require.NoError(t, err)
		defer v.Free()

		assert.True(t, v.Owned())
		assert.Zero(t, v.Len())
		require.NoError(t, v.Write([]byte("1234")))
		assert.Equal(t, 4, v.Len())
		assert.ErrorIs(t, v.Write([]byte("123456789")), ErrCapacity)
		assert.Equal(t, 4, v.Len(), "failed write must not change the length")

		b, err := v.Bytes()
		require.NoError(t, err)
		assert.Equal(t, []byte("1234"), b)

		assert.ErrorIs(t, v.SetLen(9), ErrCapacity)
		assert.ErrorIs(t, v.SetLen(-1), ErrCapacity)
		require.NoError(t, v.SetLen(8))
		require.NoError(t, v.Reset())
		assert.Zero(t, v.Len())
	})

	t.Run("UseAfterFree", func(t *testing.T) {
		v, err := NewValue(eng, 8)
		require.NoError(t, err)
		require.NoError(t, v.Free())
		require.NoError(t, v.Free(), "second free must be a no-op")

		assert.True(t, v.Freed())
		assert.Zero(t, v.Len())
		assert.Zero(t, v.Cap())

		_, err = v.Bytes()
		assert.ErrorIs(t, err, ErrUseAfterFree)
		_, err = v.Copy()
		assert.ErrorIs(t, err, ErrUseAfterFree)
		assert.ErrorIs(t, v.Write([]byte("x")), ErrUseAfterFree)
		assert.ErrorIs(t, v.SetLen(0), ErrUseAfterFree)
		assert.ErrorIs(t, v.Reset(), ErrUseAfterFree)
		assert.ErrorIs(t, v.SetExpiry(time.Second), ErrUseAfterFree)
		assert.ErrorIs(t, v.Realloc(16), ErrUseAfterFree)
	})

	t.Run("Realloc", func(t *testing.T) {
		v, err := NewValue(eng, 8)
		require.NoError(t, err)
		defer v.Free()

		require.NoError(t, v.Write([]byte("abc")))
		require.NoError(t, v.Realloc(4096))
		assert.Equal(t, 4096, v.Cap())
		assert.Zero(t, v.Len())
		assert.Equal(t, 1, eng.Outstanding())

		assert.ErrorIs(t, v.Realloc(0), ErrAllocation)
		assert.True(t, v.Freed(), "failed realloc leaves the value released")
		assert.Zero(t, eng.Outstanding())
	})

	t.Run("Wrapped", func(t *testing.T) {
		buf := make([]byte, 3, 16)
		copy(buf, "abc")
		v, err := WrapValue(buf)
		require.NoError(t, err)

		assert.False(t, v.Owned())
		assert.Equal(t, 3, v.Len())
		assert.Equal(t, 16, v.Cap())

		require.NoError(t, v.Realloc(32))
		assert.False(t, v.Owned())
		assert.Equal(t, 32, v.Cap())
		assert.Zero(t, eng.Outstanding())
		require.NoError(t, v.Free())

		_, err = WrapValue(make([]byte, 0, engine.MaxValueSize+1))
		assert.ErrorIs(t, err, ErrCapacity)
	})

	t.Run("Expiry", func(t *testing.T) {
		v, err := WrapValue([]byte("x"))
		require.NoError(t, err)
		defer v.Free()

		require.NoError(t, v.SetExpiry(90*time.Second))
		assert.Equal(t, 90*time.Second, v.Expiry())
		assert.ErrorIs(t, v.SetExpiry(1500*time.Millisecond), ErrInvalidArgument)
		assert.ErrorIs(t, v.SetExpiry(-time.Second), ErrInvalidArgument)
	})
}

func TestExpiry(t *testing.T) {
	assert.Equal(t, engine.NoExpiry, NoExpiry().Mode())
	assert.Equal(t, engine.ArbitraryExpiry, ArbitraryExpiry().Mode())
	assert.Zero(t, ArbitraryExpiry().TTL())

	g, err := GlobalExpiry(30 * time.Second)
	require.NoError(t, err)
	assert.Equal(t, engine.GlobalExpiry, g.Mode())
	assert.Equal(t, 30*time.Second, g.TTL())
	assert.Equal(t, "GLOBAL_EXPIRY(30s)", g.String())

	_, err = GlobalExpiry(0)
	assert.ErrorIs(t, err, ErrInvalidArgument)
	_, err = GlobalExpiry(time.Millisecond)
	assert.ErrorIs(t, err, ErrInvalidArgument)
	_, err = GlobalExpiry(1 << 33 * time.Second)
	assert.ErrorIs(t, err, ErrInvalidArgument)

	for _, mode := range []engine.ExpiryMode{engine.NoExpiry, engine.ArbitraryExpiry, engine.GlobalExpiry} {
		e, err := ExpiryFromMode(mode, time.Minute)
		require.NoError(t, err)
		assert.Equal(t, mode, e.Mode())
	}
	_, err = ExpiryFromMode(engine.ExpiryMode(7), 0)
	assert.ErrorIs(t, err, ErrInvalidArgument)
}
