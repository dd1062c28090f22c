package store

import (
	"fmt"
	"testing"

	"github.com/ValentinKolb/fKV/lib/engine"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fillPool writes n entries key-i -> value-i
func fillPool(t *testing.T, p *Pool, n int) map[string]string {
	t.Helper()
	want := make(map[string]string, n)
	for i := 0; i < n; i++ {
		k, v := fmt.Sprintf("key-%d", i), fmt.Sprintf("value-%d", i)
		putString(t, p, MustKey(k), v)
		want[k] = v
	}
	return want
}

func TestIteratorCompleteness(t *testing.T) {
	s, _ := newTestStore(t, NoExpiry())
	p := newTestPool(t, s, "p")
	want := fillPool(t, p, 100)

	it, err := p.Iterator()
	require.NoError(t, err)
	defer it.Close()
	assert.Equal(t, IteratorCreated, it.State())

	got := map[string]string{}
	for it.Next() {
		assert.Equal(t, IteratorActive, it.State())
		pair := it.Pair()
		_, dup := got[pair.Key.String()]
		assert.False(t, dup, "key %s returned twice", pair.Key)

		b, err := pair.Value.Bytes()
		require.NoError(t, err)
		got[pair.Key.String()] = string(b)
	}
	require.NoError(t, it.Err())
	assert.Equal(t, IteratorExhausted, it.State())
	assert.Equal(t, want, got)

	// exhausted iterators stay exhausted
	assert.False(t, it.Next())
	assert.Equal(t, KeyValuePair{}, it.Pair())
}

func TestIteratorEmptyPool(t *testing.T) {
	s, _ := newTestStore(t, NoExpiry())
	p := newTestPool(t, s, "empty")

	it, err := p.Iterator()
	require.NoError(t, err)
	assert.False(t, it.Next())
	assert.NoError(t, it.Err())
	assert.Equal(t, IteratorExhausted, it.State())
	assert.NoError(t, it.Close())
	assert.Equal(t, IteratorEnded, it.State())
}

func TestIteratorAliasing(t *testing.T) {
	s, _ := newTestStore(t, NoExpiry())
	p := newTestPool(t, s, "p")
	fillPool(t, p, 2)

	it, err := p.Iterator()
	require.NoError(t, err)
	defer it.Close()

	require.True(t, it.Next())
	first := it.Pair()
	require.True(t, it.Next())
	second := it.Pair()

	assert.Same(t, first.Value, second.Value, "pairs share the scratch value")
	b1, err := first.Value.Bytes()
	require.NoError(t, err)
	b2, err := second.Value.Bytes()
	require.NoError(t, err)
	assert.Equal(t, b2, b1, "the first pair must reflect the second entry")
	assert.False(t, first.Key.Equal(second.Key), "keys are copied")

	// once the iterator is done the scratch value is released
	require.NoError(t, it.Close())
	_, err = first.Value.Bytes()
	assert.ErrorIs(t, err, ErrUseAfterFree)
}

func TestIteratorClose(t *testing.T) {
	s, eng := newTestStore(t, NoExpiry())
	p := newTestPool(t, s, "p")
	fillPool(t, p, 10)

	it, err := p.Iterator()
	require.NoError(t, err)
	require.True(t, it.Next())
	assert.Equal(t, 1, eng.Outstanding(), "scratch value")

	require.NoError(t, it.Close())
	require.NoError(t, it.Close(), "second close must be a no-op")
	assert.Equal(t, IteratorEnded, it.State())
	assert.False(t, it.Next())
	assert.Zero(t, eng.Outstanding())
}

func TestIteratorInvalidation(t *testing.T) {
	t.Run("StoreClose", func(t *testing.T) {
		s, eng := newTestStore(t, NoExpiry())
		p := newTestPool(t, s, "p")
		fillPool(t, p, 3)

		it, err := p.Iterator()
		require.NoError(t, err)
		require.True(t, it.Next())

		require.NoError(t, s.Close())
		assert.Equal(t, IteratorEnded, it.State())
		assert.False(t, it.Next())
		assert.NoError(t, it.Close())
		assert.Zero(t, eng.Outstanding())
	})

	t.Run("PoolDelete", func(t *testing.T) {
		s, _ := newTestStore(t, NoExpiry())
		p := newTestPool(t, s, "p")
		other := newTestPool(t, s, "other")
		fillPool(t, p, 3)
		fillPool(t, other, 3)

		it, err := p.Iterator()
		require.NoError(t, err)
		otherIt, err := other.Iterator()
		require.NoError(t, err)
		defer otherIt.Close()

		require.NoError(t, s.DeletePool(p))
		assert.Equal(t, IteratorEnded, it.State())
		assert.False(t, it.Next())

		n := 0
		for otherIt.Next() {
			n++
		}
		assert.NoError(t, otherIt.Err())
		assert.Equal(t, 3, n, "iterators over other pools are unaffected")
	})

	t.Run("MutationDuringIteration", func(t *testing.T) {
		s, _ := newTestStore(t, NoExpiry())
		p := newTestPool(t, s, "p")
		want := fillPool(t, p, 20)

		it, err := p.Iterator()
		require.NoError(t, err)
		defer it.Close()

		seen := 0
		for it.Next() {
			seen++
			// removing every entry that was not visited yet must not break the cursor
			if seen == 1 {
				for k := range want {
					if k != it.Pair().Key.String() {
						_, err := p.Delete(MustKey(k))
						require.NoError(t, err)
					}
				}
			}
		}
		require.NoError(t, it.Err())
		assert.Equal(t, 1, seen)
	})
}

func TestIteratorFailure(t *testing.T) {
	eng := newFaultyEngine()
	s, err := Open(eng, testPath, 1, NoExpiry())
	require.NoError(t, err)
	defer s.Close()
	p := newTestPool(t, s, "p")
	fillPool(t, p, 5)

	it, err := p.Iterator()
	require.NoError(t, err)
	defer it.Close()

	eng.fail["next"] = engine.EIO
	require.True(t, it.Next(), "the first entry is fetched without moving the cursor")
	assert.False(t, it.Next())
	assert.ErrorIs(t, it.Err(), ErrIO)
	assert.Equal(t, IteratorExhausted, it.State())
	assert.Equal(t, 1, eng.calls["next"])

	// no further engine calls once exhausted
	assert.False(t, it.Next())
	assert.Equal(t, 1, eng.calls["next"])
}

func TestRange(t *testing.T) {
	s, eng := newTestStore(t, NoExpiry())
	p := newTestPool(t, s, "p")
	want := fillPool(t, p, 10)

	got := map[string]string{}
	err := p.Range(func(pair KeyValuePair) bool {
		b, err := pair.Value.Copy()
		require.NoError(t, err)
		got[pair.Key.String()] = string(b)
		return true
	})
	require.NoError(t, err)
	assert.Equal(t, want, got)

	n := 0
	require.NoError(t, p.Range(func(KeyValuePair) bool {
		n++
		return n < 3
	}))
	assert.Equal(t, 3, n)
	assert.Zero(t, eng.Outstanding(), "range must end its iterator")
}
