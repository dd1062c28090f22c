package internal

import (
	"fmt"
	"sort"
	"sync"

	"github.com/ValentinKolb/fKV/lib/engine"
	"github.com/ValentinKolb/fKV/lib/engine/util"
	"github.com/puzpuzpuz/xsync/v3"
)

// --------------------------------------------------------------------------
// Entry Type (value with metadata)
// --------------------------------------------------------------------------

// Entry stores a value with its metadata
type Entry struct {
	Value    []byte // Stored payload (owned by the engine)
	ExpireAt uint32 // Absolute expiration time (unix seconds), 0 = never
	Gen      uint32 // Number of writes to this key
}

// Expired returns whether the entry is expired at the given time
func (e Entry) Expired(now uint32) bool {
	return e.ExpireAt != 0 && now >= e.ExpireAt
}

// Ref addresses an entry across pools (used as expiry heap key)
type Ref struct {
	Pool engine.PoolID
	Key  string
}

func (r Ref) String() string {
	return fmt.Sprintf("Ref{Pool: %d, Key: %x}", r.Pool, r.Key)
}

// --------------------------------------------------------------------------
// Pool Type (partition of a device)
// --------------------------------------------------------------------------

// Pool is a named partition of the device key space
type Pool struct {
	ID   engine.PoolID
	Tag  string
	Data *xsync.MapOf[string, Entry]
}

// NewPool creates an empty pool
func NewPool(id engine.PoolID, tag string) *Pool {
	return &Pool{
		ID:   id,
		Tag:  tag,
		Data: xsync.NewMapOf[string, Entry](),
	}
}

// Snapshot returns the keys of the pool ordered by their seeded hash
func (p *Pool) Snapshot(seed uint64) []string {
	keys := make([]string, 0, p.Data.Size())
	p.Data.Range(func(key string, _ Entry) bool {
		keys = append(keys, key)
		return true
	})
	sort.Slice(keys, func(i, j int) bool {
		return util.HashBytes([]byte(keys[i]), seed) < util.HashBytes([]byte(keys[j]), seed)
	})
	return keys
}

// --------------------------------------------------------------------------
// Cursor Type (iteration state)
// --------------------------------------------------------------------------

// Cursor walks over a key snapshot of one pool
type Cursor struct {
	Handle engine.Handle
	Pool   engine.PoolID
	Keys   []string
	Pos    int
}

// --------------------------------------------------------------------------
// Device Type (one emulated flash device)
// --------------------------------------------------------------------------

// Device holds all state of one emulated device.
// All fields are guarded by Mu.
type Device struct {
	Mu sync.Mutex

	Path    string
	Version uint32
	Mode    engine.ExpiryMode
	TTL     uint32

	Pools    map[engine.PoolID]*Pool
	Tags     map[string]engine.PoolID
	NextPool engine.PoolID

	Cursors    map[engine.CursorID]*Cursor
	NextCursor engine.CursorID

	Expiry   *util.ExpiryHeap[Ref]
	Used     uint64 // Bytes in use (sector aligned)
	Capacity uint64 // Device capacity in bytes
}

// NewDevice creates an empty device
func NewDevice(path string, version uint32, mode engine.ExpiryMode, ttl uint32, capacity uint64) *Device {
	return &Device{
		Path:     path,
		Version:  version,
		Mode:     mode,
		TTL:      ttl,
		Pools:    make(map[engine.PoolID]*Pool),
		Tags:     make(map[string]engine.PoolID),
		NextPool: 1,
		Cursors:  make(map[engine.CursorID]*Cursor),
		Expiry:   util.NewExpiryHeap[Ref](),
		Capacity: capacity,
	}
}

// EntrySize returns the number of device bytes an entry occupies
func EntrySize(key string, value []byte) uint64 {
	return uint64(util.AlignUp(len(key)+len(value), engine.SectorAlignment))
}

// Collect drops all entries whose deadline has passed
//
// Thread-safety: The caller must hold Mu.
func (d *Device) Collect(now uint32) {
	for _, ref := range d.Expiry.PopExpired(now) {
		pool, ok := d.Pools[ref.Pool]
		if !ok {
			continue
		}
		// double-check the entry is still expired, it could have been rewritten in the meantime
		if e, ok := pool.Data.Load(ref.Key); ok && e.Expired(now) {
			pool.Data.Delete(ref.Key)
			d.Used -= EntrySize(ref.Key, e.Value)
		}
	}
}

// DropPool removes a pool with all entries and cursors
//
// Thread-safety: The caller must hold Mu.
func (d *Device) DropPool(p *Pool) {
	d.ClearPool(p)
	for id, c := range d.Cursors {
		if c.Pool == p.ID {
			delete(d.Cursors, id)
		}
	}
	delete(d.Pools, p.ID)
	delete(d.Tags, p.Tag)
}

// ClearPool removes all entries of a pool
//
// Thread-safety: The caller must hold Mu.
func (d *Device) ClearPool(p *Pool) {
	p.Data.Range(func(key string, e Entry) bool {
		d.Expiry.Cancel(Ref{Pool: p.ID, Key: key})
		d.Used -= EntrySize(key, e.Value)
		return true
	})
	p.Data.Clear()
}

// NumKeys returns the number of live entries on the device
//
// Thread-safety: The caller must hold Mu.
func (d *Device) NumKeys(now uint32) uint64 {
	var n uint64
	for _, p := range d.Pools {
		p.Data.Range(func(_ string, e Entry) bool {
			if !e.Expired(now) {
				n++
			}
			return true
		})
	}
	return n
}
