package mem

import (
	"fmt"
	"testing"

	"github.com/ValentinKolb/fKV/lib/engine"
)

func TestAllocationTracking(t *testing.T) {
	eng := NewMemEngine(nil)

	a, err := eng.Alloc(13)
	if err != nil {
		t.Fatalf("Alloc failed: %v", err)
	}
	b, err := eng.Alloc(0)
	if err != nil {
		t.Fatalf("Alloc(0) failed: %v", err)
	}

	if cap(a)%engine.SectorAlignment != 0 {
		t.Errorf("Buffer capacity %d is not sector aligned", cap(a))
	}
	if eng.Outstanding() != 2 {
		t.Errorf("Expected 2 outstanding buffers, got %d", eng.Outstanding())
	}

	if err := eng.Free(a); err != nil {
		t.Errorf("Free failed: %v", err)
	}
	if err := eng.Free(a); engine.ErrnoOf(err) != engine.EINVAL {
		t.Errorf("Double free should report EINVAL, got %v", err)
	}
	if err := eng.Free(make([]byte, 8)); engine.ErrnoOf(err) != engine.EINVAL {
		t.Errorf("Freeing foreign memory should report EINVAL, got %v", err)
	}
	if err := eng.Free(b); err != nil {
		t.Errorf("Free failed: %v", err)
	}

	if eng.Outstanding() != 0 {
		t.Errorf("Expected no outstanding buffers, got %d", eng.Outstanding())
	}
}

func TestCapacity(t *testing.T) {
	// room for exactly four sectors
	eng := NewMemEngine(&Options{Capacity: 4 * engine.SectorAlignment})

	h, err := eng.Open("/dev/fioa", 1, engine.NoExpiry, 0)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	pool, _ := eng.GetOrCreatePool(h, "cap")

	for i := 0; i < 4; i++ {
		if _, err := eng.Put(h, pool, []byte(fmt.Sprintf("k%d", i)), []byte("v"), 0); err != nil {
			t.Fatalf("Put #%d failed: %v", i, err)
		}
	}

	if _, err := eng.Put(h, pool, []byte("k4"), []byte("v"), 0); engine.ErrnoOf(err) != engine.ENOSPC {
		t.Errorf("Expected ENOSPC on a full device, got %v", err)
	}

	// overwriting an existing key needs no extra space
	if _, err := eng.Put(h, pool, []byte("k0"), []byte("w"), 0); err != nil {
		t.Errorf("Overwrite on a full device failed: %v", err)
	}

	info, _ := eng.StoreInfo(h)
	if info.FreeSpace != 0 {
		t.Errorf("Expected no free space, got %d", info.FreeSpace)
	}

	// a batch that does not fit is rejected as a whole
	eng.Delete(h, pool, []byte("k3"))
	err = eng.BatchPut(h, pool,
		[][]byte{[]byte("n1"), []byte("n2")},
		[][]byte{[]byte("v"), []byte("v")}, nil)
	if engine.ErrnoOf(err) != engine.ENOSPC {
		t.Errorf("Expected ENOSPC for oversized batch, got %v", err)
	}
	if _, ok, _ := eng.Exists(h, pool, []byte("n1")); ok {
		t.Errorf("Rejected batch must not be partially applied")
	}
}

func TestCursorSkipsRemovedEntries(t *testing.T) {
	eng := NewMemEngine(nil)

	h, _ := eng.Open("/dev/fioa", 1, engine.NoExpiry, 0)
	pool, _ := eng.GetOrCreatePool(h, "skip")

	for i := 0; i < 10; i++ {
		eng.Put(h, pool, []byte(fmt.Sprintf("k%d", i)), []byte("v"), 0)
	}

	cursor, err := eng.Iterator(h, pool)
	if err != nil {
		t.Fatalf("Iterator failed: %v", err)
	}

	// remove everything after the snapshot was taken, except one key
	for i := 1; i < 10; i++ {
		eng.Delete(h, pool, []byte(fmt.Sprintf("k%d", i)))
	}

	key := make([]byte, engine.MaxKeySize)
	value := make([]byte, 8)
	kn, _, err := eng.Current(h, pool, cursor, key, value)
	if err != nil {
		t.Fatalf("Current failed: %v", err)
	}
	if string(key[:kn]) != "k0" {
		t.Errorf("Expected the only remaining key k0, got %q", key[:kn])
	}
	if err := eng.Next(h, pool, cursor); engine.ErrnoOf(err) != engine.ENODATA {
		t.Errorf("Expected ENODATA after the last live entry, got %v", err)
	}
}

func TestCloseEndsCursors(t *testing.T) {
	eng := NewMemEngine(nil)

	h1, _ := eng.Open("/dev/fioa", 1, engine.NoExpiry, 0)
	h2, _ := eng.Open("/dev/fioa", 1, engine.NoExpiry, 0)
	pool, _ := eng.GetOrCreatePool(h1, "close")
	eng.Put(h1, pool, []byte("k"), []byte("v"), 0)

	c1, _ := eng.Iterator(h1, pool)
	c2, _ := eng.Iterator(h2, pool)

	if err := eng.Close(h1); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	// the second handle shares the device, its cursor must survive
	if err := eng.EndIteration(h2, pool, c2); err != nil {
		t.Errorf("Cursor of another handle should survive Close: %v", err)
	}
	if err := eng.EndIteration(h1, pool, c1); engine.ErrnoOf(err) != engine.EBADF {
		t.Errorf("Cursor of a closed handle should be gone, got %v", err)
	}
}

func TestReopenWithDifferentExpiryMode(t *testing.T) {
	eng := NewMemEngine(nil)

	h, err := eng.Open("/dev/fioa", 1, engine.ArbitraryExpiry, 0)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	eng.Close(h)

	if _, err := eng.Open("/dev/fioa", 1, engine.NoExpiry, 0); engine.ErrnoOf(err) != engine.EINVAL {
		t.Errorf("Expected EINVAL for a different expiry mode, got %v", err)
	}
	if _, err := eng.Open("/dev/fiob", 1, engine.NoExpiry, 0); err != nil {
		t.Errorf("A different device path should open independently: %v", err)
	}
}
