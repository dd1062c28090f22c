package testing

import (
	"bytes"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/ValentinKolb/fKV/lib/engine"
)

// Instance is a freshly created engine together with the device path to open
type Instance struct {
	Engine engine.Engine
	Path   string
	Clock  *Clock // Clock driving the engine's expiration, nil if the engine uses wall time
}

// EngineFactory creates a new engine instance for a single test
type EngineFactory func(tb testing.TB) Instance

// Clock is a manually advanced time source for engines under test
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

// NewClock returns a clock set to a fixed point in time
func NewClock() *Clock {
	return &Clock{now: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
}

// Now returns the current clock time (usable as engine clock)
func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward
func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// RunEngineTests runs a comprehensive test suite for an engine implementation.
func RunEngineTests(t *testing.T, name string, factory EngineFactory) {
	t.Run(name, func(t *testing.T) {
		t.Run("OpenClose", func(t *testing.T) {
			testOpenClose(t, factory(t))
		})

		t.Run("Reopen", func(t *testing.T) {
			testReopen(t, factory(t))
		})

		t.Run("Pools", func(t *testing.T) {
			testPools(t, factory(t))
		})

		t.Run("Put&Get", func(t *testing.T) {
			testPutGet(t, factory(t))
		})

		t.Run("KeyLimits", func(t *testing.T) {
			testKeyLimits(t, factory(t))
		})

		t.Run("Delete", func(t *testing.T) {
			testDelete(t, factory(t))
		})

		t.Run("BatchPut", func(t *testing.T) {
			testBatchPut(t, factory(t))
		})

		t.Run("Iteration", func(t *testing.T) {
			testIteration(t, factory(t))
		})

		t.Run("IterationWithMutation", func(t *testing.T) {
			testIterationWithMutation(t, factory(t))
		})

		t.Run("IterationEmptyPool", func(t *testing.T) {
			testIterationEmptyPool(t, factory(t))
		})

		t.Run("DeleteAll", func(t *testing.T) {
			testDeleteAll(t, factory(t))
		})

		t.Run("StoreInfo", func(t *testing.T) {
			testStoreInfo(t, factory(t))
		})

		t.Run("AllocFree", func(t *testing.T) {
			testAllocFree(t, factory(t))
		})

		t.Run("GlobalExpiry", func(t *testing.T) {
			testGlobalExpiry(t, factory(t))
		})

		t.Run("ArbitraryExpiry", func(t *testing.T) {
			testArbitraryExpiry(t, factory(t))
		})

		t.Run("Concurrency", func(t *testing.T) {
			testConcurrency(t, factory(t))
		})
	})
}

// --------------------------------------------------------------------------
// Helper functions
// --------------------------------------------------------------------------

// Skips the test if the engine does not run on a controllable clock
func requireClock(t testing.TB, inst Instance) {
	if inst.Clock == nil {
		t.Skip("engine does not use a controllable clock")
	}
}

// Checks that err carries the expected errno
func expectErrno(t testing.TB, op string, err error, want engine.Errno) {
	t.Helper()
	if got := engine.ErrnoOf(err); got != want {
		t.Errorf("%s: expected %s, got %v", op, want, err)
	}
}

// Opens the instance without expiry and creates a pool
func openWithPool(t testing.TB, inst Instance, tag string) (engine.Handle, engine.PoolID) {
	t.Helper()
	h, err := inst.Engine.Open(inst.Path, 1, engine.NoExpiry, 0)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	pool, err := inst.Engine.GetOrCreatePool(h, tag)
	if err != nil {
		t.Fatalf("GetOrCreatePool(%q) failed: %v", tag, err)
	}
	return h, pool
}

// Reads a value through the engine
func get(t testing.TB, eng engine.Engine, h engine.Handle, pool engine.PoolID, key []byte) ([]byte, error) {
	t.Helper()
	out := make([]byte, engine.MaxValueSize)
	n, err := eng.Get(h, pool, key, out)
	if err != nil {
		return nil, err
	}
	return out[:n], nil
}

// Collects all pairs of a pool through an engine cursor
func collect(t testing.TB, eng engine.Engine, h engine.Handle, pool engine.PoolID) map[string][]byte {
	t.Helper()
	cursor, err := eng.Iterator(h, pool)
	if err != nil {
		t.Fatalf("Iterator failed: %v", err)
	}
	defer eng.EndIteration(h, pool, cursor)

	keyBuf := make([]byte, engine.MaxKeySize)
	valueBuf := make([]byte, engine.MaxValueSize)
	pairs := make(map[string][]byte)
	for {
		kn, vn, err := eng.Current(h, pool, cursor, keyBuf, valueBuf)
		if engine.ErrnoOf(err) == engine.ENODATA {
			return pairs
		}
		if err != nil {
			t.Fatalf("Current failed: %v", err)
		}
		if _, dup := pairs[string(keyBuf[:kn])]; dup {
			t.Errorf("Key %q returned twice by cursor", keyBuf[:kn])
		}
		pairs[string(keyBuf[:kn])] = bytes.Clone(valueBuf[:vn])

		if err := eng.Next(h, pool, cursor); err != nil {
			if engine.ErrnoOf(err) != engine.ENODATA {
				t.Fatalf("Next failed: %v", err)
			}
			return pairs
		}
	}
}

// --------------------------------------------------------------------------
// Test functions
// --------------------------------------------------------------------------

func testOpenClose(t *testing.T, inst Instance) {
	eng := inst.Engine

	h, err := eng.Open(inst.Path, 1, engine.NoExpiry, 0)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}

	if err := eng.Close(h); err != nil {
		t.Errorf("Close failed: %v", err)
	}

	expectErrno(t, "second Close", eng.Close(h), engine.EBADF)

	_, err = eng.StoreInfo(h)
	expectErrno(t, "StoreInfo on closed handle", err, engine.EBADF)

	_, err = eng.Open("", 1, engine.NoExpiry, 0)
	if err == nil {
		t.Errorf("Open with an empty path should fail")
	}

	_, err = eng.Open(inst.Path, 1, engine.GlobalExpiry, 0)
	expectErrno(t, "Open with global expiry and zero ttl", err, engine.EINVAL)
}

func testReopen(t *testing.T, inst Instance) {
	eng := inst.Engine
	h, pool := openWithPool(t, inst, "reopen")

	if _, err := eng.Put(h, pool, []byte("persistent"), []byte("value"), 0); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if err := eng.Close(h); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	// a different version must be rejected
	_, err := eng.Open(inst.Path, 2, engine.NoExpiry, 0)
	expectErrno(t, "Open with different version", err, engine.EINVAL)

	h, err = eng.Open(inst.Path, 1, engine.NoExpiry, 0)
	if err != nil {
		t.Fatalf("Reopen failed: %v", err)
	}
	defer eng.Close(h)

	again, err := eng.GetOrCreatePool(h, "reopen")
	if err != nil {
		t.Fatalf("GetOrCreatePool failed: %v", err)
	}
	if again != pool {
		t.Errorf("Expected pool id %d after reopen, got %d", pool, again)
	}

	value, err := get(t, eng, h, again, []byte("persistent"))
	if err != nil {
		t.Fatalf("Get after reopen failed: %v", err)
	}
	if !bytes.Equal(value, []byte("value")) {
		t.Errorf("Expected value %q after reopen, got %q", "value", value)
	}
}

func testPools(t *testing.T, inst Instance) {
	eng := inst.Engine
	h, err := eng.Open(inst.Path, 1, engine.NoExpiry, 0)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer eng.Close(h)

	a, err := eng.GetOrCreatePool(h, "alpha")
	if err != nil {
		t.Fatalf("GetOrCreatePool(alpha) failed: %v", err)
	}
	b, err := eng.GetOrCreatePool(h, "beta")
	if err != nil {
		t.Fatalf("GetOrCreatePool(beta) failed: %v", err)
	}
	if a == b {
		t.Errorf("Different tags must map to different pools")
	}

	a2, err := eng.GetOrCreatePool(h, "alpha")
	if err != nil || a2 != a {
		t.Errorf("GetOrCreatePool must be idempotent: got %d (%v), want %d", a2, err, a)
	}

	_, err = eng.GetOrCreatePool(h, "")
	expectErrno(t, "empty tag", err, engine.EINVAL)

	_, err = eng.GetOrCreatePool(h, "this-tag-is-too-long")
	expectErrno(t, "tag longer than 16 bytes", err, engine.EINVAL)

	pools, err := eng.Pools(h)
	if err != nil {
		t.Fatalf("Pools failed: %v", err)
	}
	if len(pools) != 2 || pools[0].Tag != "alpha" || pools[1].Tag != "beta" {
		t.Errorf("Unexpected pool list %+v", pools)
	}

	if _, err := eng.Put(h, a, []byte("k"), []byte("v"), 0); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	// same key in another pool is independent
	_, err = get(t, eng, h, b, []byte("k"))
	expectErrno(t, "Get from other pool", err, engine.ENOENT)

	if err := eng.DeletePool(h, a); err != nil {
		t.Fatalf("DeletePool failed: %v", err)
	}
	_, err = get(t, eng, h, a, []byte("k"))
	if err == nil {
		t.Errorf("Get on a deleted pool should fail")
	}

	pools, _ = eng.Pools(h)
	if len(pools) != 1 || pools[0].ID != b {
		t.Errorf("Expected only pool beta to remain, got %+v", pools)
	}

	// recreating the pool must give an empty pool
	a3, err := eng.GetOrCreatePool(h, "alpha")
	if err != nil {
		t.Fatalf("GetOrCreatePool after delete failed: %v", err)
	}
	_, err = get(t, eng, h, a3, []byte("k"))
	expectErrno(t, "Get from recreated pool", err, engine.ENOENT)
}

func testPutGet(t *testing.T, inst Instance) {
	eng := inst.Engine
	h, pool := openWithPool(t, inst, "putget")
	defer eng.Close(h)

	key := []byte("test-key")
	value1 := []byte("hello, world\x00")
	value2 := []byte("updated-value")

	n, err := eng.Put(h, pool, key, value1, 0)
	if err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if n != len(value1) {
		t.Errorf("Put should report %d bytes written, got %d", len(value1), n)
	}

	result, err := get(t, eng, h, pool, key)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if !bytes.Equal(result, value1) {
		t.Errorf("Expected value %q, got %q", value1, result)
	}

	length, err := eng.ValueLen(h, pool, key)
	if err != nil || length != len(value1) {
		t.Errorf("ValueLen: expected %d, got %d (%v)", len(value1), length, err)
	}

	// too small destination
	_, err = eng.Get(h, pool, key, make([]byte, 4))
	expectErrno(t, "Get into small buffer", err, engine.E2BIG)

	info, ok, err := eng.Exists(h, pool, key)
	if err != nil || !ok {
		t.Fatalf("Exists: expected true, got %v (%v)", ok, err)
	}
	if info.KeyLen != uint32(len(key)) || info.ValueLen != uint32(len(value1)) || info.PoolID != pool {
		t.Errorf("Unexpected key info %+v", info)
	}
	gen := info.GenCount

	if _, err := eng.Put(h, pool, key, value2, 0); err != nil {
		t.Fatalf("Put (overwrite) failed: %v", err)
	}
	result, _ = get(t, eng, h, pool, key)
	if !bytes.Equal(result, value2) {
		t.Errorf("Expected value %q after overwrite, got %q", value2, result)
	}

	info, err = eng.KeyInfo(h, pool, key)
	if err != nil {
		t.Fatalf("KeyInfo failed: %v", err)
	}
	if info.GenCount <= gen {
		t.Errorf("Generation count should grow on overwrite: %d -> %d", gen, info.GenCount)
	}

	_, err = get(t, eng, h, pool, []byte("nonexistent-key"))
	expectErrno(t, "Get nonexistent", err, engine.ENOENT)

	_, ok, err = eng.Exists(h, pool, []byte("nonexistent-key"))
	if err != nil || ok {
		t.Errorf("Exists on nonexistent key: expected false, got %v (%v)", ok, err)
	}

	_, err = eng.KeyInfo(h, pool, []byte("nonexistent-key"))
	expectErrno(t, "KeyInfo nonexistent", err, engine.ENOENT)

	// empty values are valid
	if _, err := eng.Put(h, pool, []byte("empty"), nil, 0); err != nil {
		t.Fatalf("Put empty value failed: %v", err)
	}
	result, err = get(t, eng, h, pool, []byte("empty"))
	if err != nil || len(result) != 0 {
		t.Errorf("Expected empty value, got %q (%v)", result, err)
	}
}

func testKeyLimits(t *testing.T, inst Instance) {
	eng := inst.Engine
	h, pool := openWithPool(t, inst, "limits")
	defer eng.Close(h)

	maxKey := bytes.Repeat([]byte{'k'}, engine.MaxKeySize)
	if _, err := eng.Put(h, pool, maxKey, []byte("v"), 0); err != nil {
		t.Errorf("Put with a %d byte key failed: %v", engine.MaxKeySize, err)
	}

	_, err := eng.Put(h, pool, append(maxKey, 'k'), []byte("v"), 0)
	expectErrno(t, "Put with oversized key", err, engine.EINVAL)

	_, err = eng.Put(h, pool, nil, []byte("v"), 0)
	expectErrno(t, "Put with empty key", err, engine.EINVAL)

	_, err = eng.Put(h, pool, []byte("big"), make([]byte, engine.MaxValueSize+1), 0)
	expectErrno(t, "Put with oversized value", err, engine.EFBIG)

	large := bytes.Repeat([]byte{0xAB}, engine.MaxValueSize)
	if _, err := eng.Put(h, pool, []byte("large"), large, 0); err != nil {
		t.Fatalf("Put with maximum value size failed: %v", err)
	}
	result, err := get(t, eng, h, pool, []byte("large"))
	if err != nil || !bytes.Equal(result, large) {
		t.Errorf("Maximum size value did not round trip (%v)", err)
	}

	// binary keys
	binKey := []byte{0x00, 0xFF, 0x00, 0x01}
	if _, err := eng.Put(h, pool, binKey, []byte("binary"), 0); err != nil {
		t.Fatalf("Put with binary key failed: %v", err)
	}
	result, _ = get(t, eng, h, pool, binKey)
	if !bytes.Equal(result, []byte("binary")) {
		t.Errorf("Binary key lookup returned %q", result)
	}
}

func testDelete(t *testing.T, inst Instance) {
	eng := inst.Engine
	h, pool := openWithPool(t, inst, "delete")
	defer eng.Close(h)

	key := []byte("delete-test-key")
	if _, err := eng.Put(h, pool, key, []byte("delete-test-value"), 0); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	if err := eng.Delete(h, pool, key); err != nil {
		t.Errorf("Delete failed: %v", err)
	}

	_, err := get(t, eng, h, pool, key)
	expectErrno(t, "Get after Delete", err, engine.ENOENT)

	expectErrno(t, "second Delete", eng.Delete(h, pool, key), engine.ENOENT)
	expectErrno(t, "Delete nonexistent", eng.Delete(h, pool, []byte("nonexistent-key")), engine.ENOENT)
}

func testBatchPut(t *testing.T, inst Instance) {
	eng := inst.Engine
	h, pool := openWithPool(t, inst, "batch")
	defer eng.Close(h)

	numKeys := 100
	keys := make([][]byte, numKeys)
	values := make([][]byte, numKeys)
	for i := range keys {
		keys[i] = []byte(fmt.Sprintf("batch-key-%d", i))
		values[i] = []byte(fmt.Sprintf("batch-value-%d", i))
	}

	err := eng.BatchPut(h, pool, keys, values[:numKeys-1], nil)
	expectErrno(t, "BatchPut with mismatched lengths", err, engine.EINVAL)

	if err := eng.BatchPut(h, pool, keys, values, nil); err != nil {
		t.Fatalf("BatchPut failed: %v", err)
	}

	for i := range keys {
		result, err := get(t, eng, h, pool, keys[i])
		if err != nil {
			t.Errorf("Get(%s) after BatchPut failed: %v", keys[i], err)
			continue
		}
		if !bytes.Equal(result, values[i]) {
			t.Errorf("Expected %q for %s, got %q", values[i], keys[i], result)
		}
	}

	if err := eng.BatchPut(h, pool, nil, nil, nil); err != nil {
		t.Errorf("Empty BatchPut should succeed, got %v", err)
	}
}

func testIteration(t *testing.T, inst Instance) {
	eng := inst.Engine
	h, pool := openWithPool(t, inst, "iter")
	defer eng.Close(h)

	other, err := eng.GetOrCreatePool(h, "other")
	if err != nil {
		t.Fatalf("GetOrCreatePool failed: %v", err)
	}
	if _, err := eng.Put(h, other, []byte("foreign"), []byte("x"), 0); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	numKeys := 250
	expected := make(map[string][]byte, numKeys)
	for i := 0; i < numKeys; i++ {
		key := fmt.Sprintf("iter-key-%d", i)
		value := []byte(fmt.Sprintf("iter-value-%d", i))
		expected[key] = value
		if _, err := eng.Put(h, pool, []byte(key), value, 0); err != nil {
			t.Fatalf("Put failed: %v", err)
		}
	}

	pairs := collect(t, eng, h, pool)
	if len(pairs) != numKeys {
		t.Errorf("Expected %d pairs, got %d", numKeys, len(pairs))
	}
	for key, value := range expected {
		if !bytes.Equal(pairs[key], value) {
			t.Errorf("Pair %s: expected %q, got %q", key, value, pairs[key])
		}
	}
	if _, ok := pairs["foreign"]; ok {
		t.Errorf("Cursor returned a key of another pool")
	}

	// exhausted cursor keeps reporting ENODATA
	cursor, err := eng.Iterator(h, pool)
	if err != nil {
		t.Fatalf("Iterator failed: %v", err)
	}
	for i := 0; i < numKeys-1; i++ {
		if err := eng.Next(h, pool, cursor); err != nil {
			t.Fatalf("Next #%d failed: %v", i, err)
		}
	}
	expectErrno(t, "Next past the end", eng.Next(h, pool, cursor), engine.ENODATA)
	expectErrno(t, "Next after exhaustion", eng.Next(h, pool, cursor), engine.ENODATA)

	if err := eng.EndIteration(h, pool, cursor); err != nil {
		t.Errorf("EndIteration failed: %v", err)
	}
	expectErrno(t, "Next after EndIteration", eng.Next(h, pool, cursor), engine.EBADF)
}

// Walks a pool through a fresh cursor and calls fn with every pair
// right after it was read, before the cursor is moved
func walk(t testing.TB, eng engine.Engine, h engine.Handle, pool engine.PoolID, fn func(key, value []byte)) {
	t.Helper()
	cursor, err := eng.Iterator(h, pool)
	if err != nil {
		t.Fatalf("Iterator failed: %v", err)
	}
	defer eng.EndIteration(h, pool, cursor)

	keyBuf := make([]byte, engine.MaxKeySize)
	valueBuf := make([]byte, engine.MaxValueSize)
	for {
		kn, vn, err := eng.Current(h, pool, cursor, keyBuf, valueBuf)
		if engine.ErrnoOf(err) == engine.ENODATA {
			return
		}
		if err != nil {
			t.Fatalf("Current failed: %v", err)
		}
		fn(bytes.Clone(keyBuf[:kn]), bytes.Clone(valueBuf[:vn]))

		if err := eng.Next(h, pool, cursor); err != nil {
			if engine.ErrnoOf(err) != engine.ENODATA {
				t.Fatalf("Next failed: %v", err)
			}
			return
		}
	}
}

func testIterationWithMutation(t *testing.T, inst Instance) {
	eng := inst.Engine
	h, pool := openWithPool(t, inst, "mutate")
	defer eng.Close(h)

	numKeys := 20
	fill := func() map[string]bool {
		keys := make(map[string]bool, numKeys)
		for i := 0; i < numKeys; i++ {
			key := fmt.Sprintf("mutate-key-%02d", i)
			keys[key] = true
			if _, err := eng.Put(h, pool, []byte(key), []byte("old"), 0); err != nil {
				t.Fatalf("Put failed: %v", err)
			}
		}
		return keys
	}

	t.Run("DeleteOthers", func(t *testing.T) {
		keys := fill()
		var seen []string
		walk(t, eng, h, pool, func(key, _ []byte) {
			if len(seen) == 0 {
				for k := range keys {
					if k != string(key) {
						if err := eng.Delete(h, pool, []byte(k)); err != nil {
							t.Fatalf("Delete failed: %v", err)
						}
					}
				}
			}
			seen = append(seen, string(key))
		})
		if len(seen) != 1 {
			t.Errorf("Expected only the current entry after deleting the others, got %d entries: %v", len(seen), seen)
		}
		if err := eng.DeleteAll(h); err != nil {
			t.Fatalf("DeleteAll failed: %v", err)
		}
	})

	t.Run("DeleteCurrent", func(t *testing.T) {
		keys := fill()
		seen := make(map[string]bool)
		walk(t, eng, h, pool, func(key, _ []byte) {
			if seen[string(key)] {
				t.Errorf("Key %q returned twice", key)
			}
			seen[string(key)] = true
			if err := eng.Delete(h, pool, key); err != nil {
				t.Fatalf("Delete failed: %v", err)
			}
		})
		if len(seen) != len(keys) {
			t.Errorf("Deleting the current entry lost entries: expected %d, got %d", len(keys), len(seen))
		}
		if pairs := collect(t, eng, h, pool); len(pairs) != 0 {
			t.Errorf("Expected an empty pool, got %d entries", len(pairs))
		}
	})

	t.Run("DeleteAll", func(t *testing.T) {
		fill()
		count := 0
		walk(t, eng, h, pool, func(_, _ []byte) {
			if count == 0 {
				if err := eng.DeleteAll(h); err != nil {
					t.Fatalf("DeleteAll failed: %v", err)
				}
			}
			count++
		})
		if count != 1 {
			t.Errorf("Expected no entries after DeleteAll, got %d more", count-1)
		}
	})

	t.Run("Overwrite", func(t *testing.T) {
		keys := fill()
		first := true
		walk(t, eng, h, pool, func(key, value []byte) {
			if first {
				first = false
				for k := range keys {
					if _, err := eng.Put(h, pool, []byte(k), []byte("new"), 0); err != nil {
						t.Fatalf("Put failed: %v", err)
					}
				}
				return
			}
			if string(value) != "new" {
				t.Errorf("Key %q: expected the current value %q, got %q", key, "new", value)
			}
		})
		if err := eng.DeleteAll(h); err != nil {
			t.Fatalf("DeleteAll failed: %v", err)
		}
	})
}

func testIterationEmptyPool(t *testing.T, inst Instance) {
	eng := inst.Engine
	h, pool := openWithPool(t, inst, "empty")
	defer eng.Close(h)

	cursor, err := eng.Iterator(h, pool)
	if err != nil {
		t.Fatalf("Iterator failed: %v", err)
	}
	defer eng.EndIteration(h, pool, cursor)

	_, _, err = eng.Current(h, pool, cursor, make([]byte, engine.MaxKeySize), make([]byte, 16))
	expectErrno(t, "Current on empty pool", err, engine.ENODATA)
}

func testDeleteAll(t *testing.T, inst Instance) {
	eng := inst.Engine
	h, a := openWithPool(t, inst, "a")
	defer eng.Close(h)

	b, err := eng.GetOrCreatePool(h, "b")
	if err != nil {
		t.Fatalf("GetOrCreatePool failed: %v", err)
	}

	for i := 0; i < 10; i++ {
		key := []byte(fmt.Sprintf("key-%d", i))
		eng.Put(h, a, key, []byte("a"), 0)
		eng.Put(h, b, key, []byte("b"), 0)
	}

	if err := eng.DeleteAll(h); err != nil {
		t.Fatalf("DeleteAll failed: %v", err)
	}

	info, err := eng.StoreInfo(h)
	if err != nil {
		t.Fatalf("StoreInfo failed: %v", err)
	}
	if info.NumKeys != 0 {
		t.Errorf("Expected 0 keys after DeleteAll, got %d", info.NumKeys)
	}
	if info.NumPools != 2 {
		t.Errorf("DeleteAll must keep the pools, got %d", info.NumPools)
	}

	if err := eng.DeleteAllPools(h); err != nil {
		t.Fatalf("DeleteAllPools failed: %v", err)
	}
	pools, _ := eng.Pools(h)
	if len(pools) != 0 {
		t.Errorf("Expected no pools after DeleteAllPools, got %+v", pools)
	}
}

func testStoreInfo(t *testing.T, inst Instance) {
	eng := inst.Engine
	h, pool := openWithPool(t, inst, "info")
	defer eng.Close(h)

	before, err := eng.StoreInfo(h)
	if err != nil {
		t.Fatalf("StoreInfo failed: %v", err)
	}
	if before.Version != 1 || before.ExpiryMode != engine.NoExpiry || before.NumPools != 1 {
		t.Errorf("Unexpected store info %+v", before)
	}
	if before.MaxPools == 0 {
		t.Errorf("MaxPools should be reported")
	}

	for i := 0; i < 20; i++ {
		eng.Put(h, pool, []byte(fmt.Sprintf("key-%d", i)), bytes.Repeat([]byte{1}, 4096), 0)
	}

	after, err := eng.StoreInfo(h)
	if err != nil {
		t.Fatalf("StoreInfo failed: %v", err)
	}
	if after.NumKeys != 20 {
		t.Errorf("Expected 20 keys, got %d", after.NumKeys)
	}
	if after.FreeSpace >= before.FreeSpace {
		t.Errorf("Free space should shrink after writes: %d -> %d", before.FreeSpace, after.FreeSpace)
	}
}

func testAllocFree(t *testing.T, inst Instance) {
	eng := inst.Engine

	buf, err := eng.Alloc(100)
	if err != nil {
		t.Fatalf("Alloc failed: %v", err)
	}
	if len(buf) != 100 {
		t.Errorf("Expected buffer of length 100, got %d", len(buf))
	}

	// buffers must be writable over their full length
	for i := range buf {
		buf[i] = byte(i)
	}

	if err := eng.Free(buf); err != nil {
		t.Errorf("Free failed: %v", err)
	}

	_, err = eng.Alloc(engine.MaxValueSize + 1)
	if err == nil {
		t.Errorf("Alloc beyond the maximum value size should fail")
	}
}

func testGlobalExpiry(t *testing.T, inst Instance) {
	requireClock(t, inst)
	eng := inst.Engine

	h, err := eng.Open(inst.Path, 1, engine.GlobalExpiry, 10)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer eng.Close(h)

	info, _ := eng.StoreInfo(h)
	if info.ExpiryMode != engine.GlobalExpiry {
		t.Errorf("Expected GLOBAL_EXPIRY, got %s", info.ExpiryMode)
	}

	pool, err := eng.GetOrCreatePool(h, "ttl")
	if err != nil {
		t.Fatalf("GetOrCreatePool failed: %v", err)
	}

	// the per entry expiry is ignored in global mode
	if _, err := eng.Put(h, pool, []byte("k"), []byte("v"), 1000); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	inst.Clock.Advance(9 * time.Second)
	if _, err := get(t, eng, h, pool, []byte("k")); err != nil {
		t.Errorf("Key should still exist after 9s: %v", err)
	}

	inst.Clock.Advance(time.Second)
	_, err = get(t, eng, h, pool, []byte("k"))
	expectErrno(t, "Get after global ttl", err, engine.ENOENT)

	if _, ok, _ := eng.Exists(h, pool, []byte("k")); ok {
		t.Errorf("Expired key should not exist")
	}
}

func testArbitraryExpiry(t *testing.T, inst Instance) {
	requireClock(t, inst)
	eng := inst.Engine

	h, err := eng.Open(inst.Path, 1, engine.ArbitraryExpiry, 0)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer eng.Close(h)

	pool, err := eng.GetOrCreatePool(h, "ttl")
	if err != nil {
		t.Fatalf("GetOrCreatePool failed: %v", err)
	}

	numKeys := 100
	for i := 0; i < numKeys; i++ {
		ttl := uint32(i % 10) // 0 = never
		if _, err := eng.Put(h, pool, []byte(fmt.Sprintf("expire-key-%d", i)), []byte("v"), ttl); err != nil {
			t.Fatalf("Put failed: %v", err)
		}
	}

	for offset := 1; offset <= 10; offset++ {
		inst.Clock.Advance(time.Second)
		for i := 0; i < numKeys; i++ {
			ttl := i % 10
			_, ok, err := eng.Exists(h, pool, []byte(fmt.Sprintf("expire-key-%d", i)))
			if err != nil {
				t.Fatalf("Exists failed: %v", err)
			}
			shouldExist := ttl == 0 || ttl > offset
			if ok != shouldExist {
				t.Errorf("Key %d (ttl=%d) at +%ds: exists=%v, want %v", i, ttl, offset, ok, shouldExist)
			}
		}
	}

	pairs := collect(t, eng, h, pool)
	if len(pairs) != numKeys/10 {
		t.Errorf("Cursor should only return non-expiring keys, got %d", len(pairs))
	}
}

func testConcurrency(t *testing.T, inst Instance) {
	eng := inst.Engine
	h, pool := openWithPool(t, inst, "conc")
	defer eng.Close(h)

	workers := 8
	perWorker := 200

	var wg sync.WaitGroup
	errs := make(chan error, workers)
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			out := make([]byte, 64)
			for i := 0; i < perWorker; i++ {
				key := []byte(fmt.Sprintf("w%d-key-%d", w, i))
				value := []byte(fmt.Sprintf("w%d-value-%d", w, i))
				if _, err := eng.Put(h, pool, key, value, 0); err != nil {
					errs <- err
					return
				}
				n, err := eng.Get(h, pool, key, out)
				if err != nil {
					errs <- err
					return
				}
				if !bytes.Equal(out[:n], value) {
					errs <- errors.New("read back a different value")
					return
				}
			}
		}(w)
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		t.Errorf("Concurrent worker failed: %v", err)
	}

	info, _ := eng.StoreInfo(h)
	if info.NumKeys != uint64(workers*perWorker) {
		t.Errorf("Expected %d keys, got %d", workers*perWorker, info.NumKeys)
	}
}
