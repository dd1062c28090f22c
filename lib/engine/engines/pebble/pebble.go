package pebble

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ValentinKolb/fKV/lib/engine"
	"github.com/ValentinKolb/fKV/lib/engine/util"
	"github.com/cockroachdb/pebble"
	"github.com/cockroachdb/pebble/vfs"
	"github.com/lni/dragonboat/v4/logger"
	"github.com/puzpuzpuz/xsync/v3"
)

// --------------------------------------------------------------------------
// Constants
// --------------------------------------------------------------------------

const (
	defaultCapacity     = 1 << 30          // Default device capacity (1 GiB)
	defaultCacheSize    = 64 * 1024 * 1024 // Block cache size (64 MiB)
	defaultMemTableSize = 32 * 1024 * 1024 // Memtable size (32 MiB)
)

var log = logger.GetLogger("engine/pebble")

// --------------------------------------------------------------------------
// Core pebble engine structure
// --------------------------------------------------------------------------

// Options configures the pebble engine behavior during initialization
type Options struct {
	Capacity uint64           // Capacity of every store in bytes (0 = default: 1 GiB)
	Clock    func() time.Time // Time source for expiration (nil = time.Now)
	FS       vfs.FS           // File system for the pebble databases (nil = disk)
	Sync     bool             // Sync every write to stable storage
}

// DefaultOptions returns the default pebble engine options
func DefaultOptions() *Options {
	return &Options{
		Capacity: defaultCapacity,
		Clock:    time.Now,
		FS:       vfs.Default,
		Sync:     true,
	}
}

// store is one pebble database shared by all handles opened on its path.
// All fields besides path are guarded by mu.
type store struct {
	mu   sync.Mutex
	path string
	db   *pebble.DB
	refs int

	meta       meta
	used       uint64 // Bytes in use by entries (sector aligned)
	cursors    map[engine.CursorID]*cursor
	nextCursor engine.CursorID
}

// cursor is an open pebble iterator bound to a handle and pool
type cursor struct {
	handle engine.Handle
	pool   engine.PoolID
	iter   *pebble.Iterator
}

type pebbleImpl struct {
	opts      Options
	writeOpts *pebble.WriteOptions

	mu      sync.Mutex // Guards opening and closing of stores
	stores  map[string]*store
	handles *xsync.MapOf[engine.Handle, *store]
	nextH   atomic.Int64
}

// NewPebbleEngine creates a new pebble engine with the specified options (optional).
// Every device path maps to one pebble database directory.
func NewPebbleEngine(opts *Options) engine.Engine {
	if opts == nil {
		opts = DefaultOptions()
	}
	o := *opts
	if o.Capacity == 0 {
		o.Capacity = defaultCapacity
	}
	if o.Clock == nil {
		o.Clock = time.Now
	}
	if o.FS == nil {
		o.FS = vfs.Default
	}

	writeOpts := pebble.NoSync
	if o.Sync {
		writeOpts = pebble.Sync
	}

	return &pebbleImpl{
		opts:      o,
		writeOpts: writeOpts,
		stores:    make(map[string]*store),
		handles:   xsync.NewMapOf[engine.Handle, *store](),
	}
}

// --------------------------------------------------------------------------
// Helper functions
// --------------------------------------------------------------------------

// pebbleLogger forwards pebble's log output to the engine logger
type pebbleLogger struct{}

func (pebbleLogger) Infof(format string, args ...interface{})  { log.Debugf(format, args...) }
func (pebbleLogger) Errorf(format string, args ...interface{}) { log.Errorf(format, args...) }
func (pebbleLogger) Fatalf(format string, args ...interface{}) { log.Panicf(format, args...) }

// ioError marks an unexpected pebble failure as EIO
func ioError(err error) error {
	return fmt.Errorf("%w: %w", engine.EIO, err)
}

func (p *pebbleImpl) now() uint32 {
	return uint32(p.opts.Clock().Unix())
}

// entrySize returns the number of device bytes an entry occupies
func entrySize(key, value []byte) uint64 {
	return uint64(util.AlignUp(len(key)+len(value), engine.SectorAlignment))
}

// acquire resolves a handle and locks its store.
// The returned unlock function must be called when done.
func (p *pebbleImpl) acquire(h engine.Handle) (*store, func(), error) {
	s, ok := p.handles.Load(h)
	if !ok {
		return nil, nil, engine.EBADF
	}
	s.mu.Lock()
	if s.db == nil {
		s.mu.Unlock()
		return nil, nil, engine.EBADF
	}
	return s, s.mu.Unlock, nil
}

// poolExists checks the pool registry
//
// Thread-safety: The caller must hold s.mu.
func (s *store) poolExists(id engine.PoolID) (bool, error) {
	_, closer, err := s.db.Get(poolIDKey(id))
	if errors.Is(err, pebble.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, ioError(err)
	}
	closer.Close()
	return true, nil
}

// acquirePool resolves a handle, locks its store and checks that the pool exists.
func (p *pebbleImpl) acquirePool(h engine.Handle, pool engine.PoolID) (*store, func(), error) {
	s, unlock, err := p.acquire(h)
	if err != nil {
		return nil, nil, err
	}
	ok, err := s.poolExists(pool)
	if err != nil {
		unlock()
		return nil, nil, err
	}
	if !ok {
		unlock()
		return nil, nil, engine.ENOENT
	}
	return s, unlock, nil
}

// load reads the entry for key. ok is false if the entry is absent.
// Expired entries are returned as well, the caller decides how to treat them.
//
// Thread-safety: The caller must hold s.mu.
func (s *store) load(pool engine.PoolID, key []byte) (h header, value []byte, ok bool, err error) {
	raw, closer, err := s.db.Get(entryKey(pool, key))
	if errors.Is(err, pebble.ErrNotFound) {
		return header{}, nil, false, nil
	}
	if err != nil {
		return header{}, nil, false, ioError(err)
	}
	defer closer.Close()

	h, v, err := decodeEntry(raw)
	if err != nil {
		return header{}, nil, false, ioError(err)
	}
	// the pebble buffer is only valid until closer is closed
	value = make([]byte, len(v))
	copy(value, v)
	return h, value, true, nil
}

// endCursors closes all cursors matching the filter
//
// Thread-safety: The caller must hold s.mu.
func (s *store) endCursors(match func(c *cursor) bool) {
	for id, c := range s.cursors {
		if match(c) {
			if err := c.iter.Close(); err != nil {
				log.Warningf("closing cursor %d on %s failed: %v", id, s.path, err)
			}
			delete(s.cursors, id)
		}
	}
}

// scanUsed recomputes the used bytes of all stored entries
//
// Thread-safety: The caller must hold s.mu.
func (s *store) scanUsed() error {
	lower, upper := entryBounds()
	iter, err := s.db.NewIter(&pebble.IterOptions{LowerBound: lower, UpperBound: upper})
	if err != nil {
		return ioError(err)
	}
	var used uint64
	for iter.First(); iter.Valid(); iter.Next() {
		used += entrySize(userKey(iter.Key()), iter.Value()[entryHeaderSize:])
	}
	if err := iter.Close(); err != nil {
		return ioError(err)
	}
	s.used = used
	return nil
}

// --------------------------------------------------------------------------
// Lifecycle
// --------------------------------------------------------------------------

func (p *pebbleImpl) Open(path string, version uint32, mode engine.ExpiryMode, expiryTime uint32) (engine.Handle, error) {
	if path == "" {
		return 0, engine.ENOENT
	}
	if !mode.Valid() || (mode == engine.GlobalExpiry && expiryTime == 0) {
		return 0, engine.EINVAL
	}
	if mode != engine.GlobalExpiry {
		expiryTime = 0
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	s, ok := p.stores[path]
	if !ok {
		var err error
		if s, err = p.openStore(path, version, mode, expiryTime); err != nil {
			return 0, err
		}
		p.stores[path] = s
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.meta.Version != version || s.meta.Mode != mode || s.meta.TTL != expiryTime {
		log.Warningf("refusing to open %s: stored config (version=%d, expiry=%s/%d) does not match (version=%d, expiry=%s/%d)",
			path, s.meta.Version, s.meta.Mode, s.meta.TTL, version, mode, expiryTime)
		if s.refs == 0 {
			p.closeStore(s)
		}
		return 0, engine.EINVAL
	}

	s.refs++
	h := engine.Handle(p.nextH.Add(1))
	p.handles.Store(h, s)
	return h, nil
}

// openStore opens the pebble database at path and loads (or initializes) its metadata.
//
// Thread-safety: The caller must hold p.mu.
func (p *pebbleImpl) openStore(path string, version uint32, mode engine.ExpiryMode, ttl uint32) (*store, error) {
	cache := pebble.NewCache(defaultCacheSize)
	defer cache.Unref()

	db, err := pebble.Open(path, &pebble.Options{
		Cache:        cache,
		MemTableSize: defaultMemTableSize,
		FS:           p.opts.FS,
		Logger:       pebbleLogger{},
	})
	if err != nil {
		log.Errorf("opening pebble database at %s failed: %v", path, err)
		return nil, ioError(err)
	}

	s := &store{
		path:    path,
		db:      db,
		cursors: make(map[engine.CursorID]*cursor),
	}

	raw, closer, err := db.Get(metaKey)
	switch {
	case errors.Is(err, pebble.ErrNotFound):
		s.meta = meta{Version: version, Mode: mode, TTL: ttl, NextPool: 1}
		if err := db.Set(metaKey, s.meta.encode(), pebble.Sync); err != nil {
			db.Close()
			return nil, ioError(err)
		}
		log.Debugf("initialized store %s (version=%d, expiry=%s)", path, version, mode)
	case err != nil:
		db.Close()
		return nil, ioError(err)
	default:
		s.meta, err = decodeMeta(raw)
		closer.Close()
		if err != nil {
			db.Close()
			return nil, ioError(err)
		}
	}

	if err := s.scanUsed(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// closeStore closes the pebble database of a store without handles.
//
// Thread-safety: The caller must hold p.mu and s.mu.
func (p *pebbleImpl) closeStore(s *store) {
	s.endCursors(func(*cursor) bool { return true })
	if err := s.db.Close(); err != nil {
		log.Errorf("closing pebble database at %s failed: %v", s.path, err)
	}
	s.db = nil
	delete(p.stores, s.path)
}

func (p *pebbleImpl) Close(h engine.Handle) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	s, ok := p.handles.LoadAndDelete(h)
	if !ok {
		return engine.EBADF
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.endCursors(func(c *cursor) bool { return c.handle == h })
	s.refs--
	if s.refs == 0 {
		p.closeStore(s)
	}
	return nil
}

func (p *pebbleImpl) StoreInfo(h engine.Handle) (engine.StoreInfo, error) {
	s, unlock, err := p.acquire(h)
	if err != nil {
		return engine.StoreInfo{}, err
	}
	defer unlock()

	info := engine.StoreInfo{
		Version:    s.meta.Version,
		MaxPools:   engine.MaxPools,
		ExpiryMode: s.meta.Mode,
	}

	pools, err := s.pools()
	if err != nil {
		return engine.StoreInfo{}, err
	}
	info.NumPools = uint32(len(pools))

	lower, upper := entryBounds()
	iter, err := s.db.NewIter(&pebble.IterOptions{LowerBound: lower, UpperBound: upper})
	if err != nil {
		return engine.StoreInfo{}, ioError(err)
	}
	now := p.now()
	for iter.First(); iter.Valid(); iter.Next() {
		if hdr, _, err := decodeEntry(iter.Value()); err == nil && !hdr.expired(now) {
			info.NumKeys++
		}
	}
	if err := iter.Close(); err != nil {
		return engine.StoreInfo{}, ioError(err)
	}

	if s.used < p.opts.Capacity {
		info.FreeSpace = p.opts.Capacity - s.used
	}
	log.Debugf("store %s: %d bytes used by entries, %d bytes on disk", s.path, s.used, s.db.Metrics().DiskSpaceUsage())
	return info, nil
}

// --------------------------------------------------------------------------
// Pool Management
// --------------------------------------------------------------------------

// pools lists the pool registry in id order
//
// Thread-safety: The caller must hold s.mu.
func (s *store) pools() ([]engine.PoolDesc, error) {
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: []byte{prefixPoolID},
		UpperBound: []byte{prefixPoolID + 1},
	})
	if err != nil {
		return nil, ioError(err)
	}
	var pools []engine.PoolDesc
	for iter.First(); iter.Valid(); iter.Next() {
		pools = append(pools, engine.PoolDesc{
			ID:  decodePoolIDKey(iter.Key()),
			Tag: string(iter.Value()),
		})
	}
	if err := iter.Close(); err != nil {
		return nil, ioError(err)
	}
	return pools, nil
}

func (p *pebbleImpl) GetOrCreatePool(h engine.Handle, tag string) (engine.PoolID, error) {
	if tag == "" || len(tag) > engine.MaxPoolTagSize {
		return 0, engine.EINVAL
	}

	s, unlock, err := p.acquire(h)
	if err != nil {
		return 0, err
	}
	defer unlock()

	raw, closer, err := s.db.Get(poolTagKey(tag))
	if err == nil {
		id := decodePoolID(raw)
		closer.Close()
		return id, nil
	}
	if !errors.Is(err, pebble.ErrNotFound) {
		return 0, ioError(err)
	}

	pools, err := s.pools()
	if err != nil {
		return 0, err
	}
	if len(pools) >= engine.MaxPools {
		return 0, engine.ENOSPC
	}

	id := s.meta.NextPool
	next := s.meta
	next.NextPool++

	b := s.db.NewBatch()
	defer b.Close()
	b.Set(poolIDKey(id), []byte(tag), nil)
	b.Set(poolTagKey(tag), encodePoolID(id), nil)
	b.Set(metaKey, next.encode(), nil)
	if err := b.Commit(p.writeOpts); err != nil {
		return 0, ioError(err)
	}

	s.meta = next
	log.Debugf("created pool %q (id=%d) on %s", tag, id, s.path)
	return id, nil
}

func (p *pebbleImpl) Pools(h engine.Handle) ([]engine.PoolDesc, error) {
	s, unlock, err := p.acquire(h)
	if err != nil {
		return nil, err
	}
	defer unlock()

	return s.pools()
}

// dropPools removes the given pools with all entries and cursors
//
// Thread-safety: The caller must hold s.mu.
func (p *pebbleImpl) dropPools(s *store, pools []engine.PoolDesc) error {
	dropped := make(map[engine.PoolID]bool, len(pools))
	b := s.db.NewBatch()
	defer b.Close()
	for _, pool := range pools {
		lower, upper := poolBounds(pool.ID)
		b.DeleteRange(lower, upper, nil)
		b.Delete(poolIDKey(pool.ID), nil)
		b.Delete(poolTagKey(pool.Tag), nil)
		dropped[pool.ID] = true
	}

	s.endCursors(func(c *cursor) bool { return dropped[c.pool] })
	if err := b.Commit(p.writeOpts); err != nil {
		return ioError(err)
	}
	return s.scanUsed()
}

func (p *pebbleImpl) DeletePool(h engine.Handle, id engine.PoolID) error {
	s, unlock, err := p.acquire(h)
	if err != nil {
		return err
	}
	defer unlock()

	pools, err := s.pools()
	if err != nil {
		return err
	}
	for _, pool := range pools {
		if pool.ID == id {
			return p.dropPools(s, []engine.PoolDesc{pool})
		}
	}
	return engine.ENOENT
}

func (p *pebbleImpl) DeleteAllPools(h engine.Handle) error {
	s, unlock, err := p.acquire(h)
	if err != nil {
		return err
	}
	defer unlock()

	pools, err := s.pools()
	if err != nil {
		return err
	}
	return p.dropPools(s, pools)
}

func (p *pebbleImpl) DeleteAll(h engine.Handle) error {
	s, unlock, err := p.acquire(h)
	if err != nil {
		return err
	}
	defer unlock()

	lower, upper := entryBounds()
	if err := s.db.DeleteRange(lower, upper, p.writeOpts); err != nil {
		return ioError(err)
	}
	s.used = 0
	return nil
}

// --------------------------------------------------------------------------
// Buffer Allocation
// --------------------------------------------------------------------------

// Alloc returns Go memory with a sector aligned capacity. Buffers are garbage
// collected, Free only validates its argument.
func (p *pebbleImpl) Alloc(length int) ([]byte, error) {
	if length < 0 {
		return nil, engine.EINVAL
	}
	if length > engine.MaxValueSize {
		return nil, engine.EFBIG
	}
	return make([]byte, length, util.AlignUp(max(length, 1), engine.SectorAlignment)), nil
}

func (p *pebbleImpl) Free(buf []byte) error {
	if cap(buf) == 0 {
		return engine.EINVAL
	}
	return nil
}

// --------------------------------------------------------------------------
// Point Operations
// --------------------------------------------------------------------------

func checkKey(key []byte) error {
	if len(key) == 0 || len(key) > engine.MaxKeySize {
		return engine.EINVAL
	}
	return nil
}

func (p *pebbleImpl) ValueLen(h engine.Handle, pool engine.PoolID, key []byte) (int, error) {
	info, err := p.KeyInfo(h, pool, key)
	if err != nil {
		return 0, err
	}
	return int(info.ValueLen), nil
}

func (p *pebbleImpl) KeyInfo(h engine.Handle, pool engine.PoolID, key []byte) (engine.KeyInfo, error) {
	info, ok, err := p.Exists(h, pool, key)
	if err != nil {
		return engine.KeyInfo{}, err
	}
	if !ok {
		return engine.KeyInfo{}, engine.ENOENT
	}
	return info, nil
}

func (p *pebbleImpl) Get(h engine.Handle, pool engine.PoolID, key []byte, out []byte) (int, error) {
	if err := checkKey(key); err != nil {
		return 0, err
	}
	s, unlock, err := p.acquirePool(h, pool)
	if err != nil {
		return 0, err
	}
	defer unlock()

	hdr, value, ok, err := s.load(pool, key)
	if err != nil {
		return 0, err
	}
	if !ok || hdr.expired(p.now()) {
		return 0, engine.ENOENT
	}
	if len(out) < len(value) {
		return 0, engine.E2BIG
	}
	return copy(out, value), nil
}

func (p *pebbleImpl) Put(h engine.Handle, pool engine.PoolID, key []byte, value []byte, expiry uint32) (int, error) {
	if err := p.BatchPut(h, pool, [][]byte{key}, [][]byte{value}, []uint32{expiry}); err != nil {
		return 0, err
	}
	return len(value), nil
}

func (p *pebbleImpl) Exists(h engine.Handle, pool engine.PoolID, key []byte) (engine.KeyInfo, bool, error) {
	if err := checkKey(key); err != nil {
		return engine.KeyInfo{}, false, err
	}
	s, unlock, err := p.acquirePool(h, pool)
	if err != nil {
		return engine.KeyInfo{}, false, err
	}
	defer unlock()

	hdr, value, ok, err := s.load(pool, key)
	if err != nil {
		return engine.KeyInfo{}, false, err
	}
	if !ok || hdr.expired(p.now()) {
		return engine.KeyInfo{}, false, nil
	}
	return engine.KeyInfo{
		PoolID:   pool,
		KeyLen:   uint32(len(key)),
		ValueLen: uint32(len(value)),
		Expiry:   hdr.ExpireAt,
		GenCount: hdr.Gen,
	}, true, nil
}

func (p *pebbleImpl) Delete(h engine.Handle, pool engine.PoolID, key []byte) error {
	if err := checkKey(key); err != nil {
		return err
	}
	s, unlock, err := p.acquirePool(h, pool)
	if err != nil {
		return err
	}
	defer unlock()

	hdr, value, ok, err := s.load(pool, key)
	if err != nil {
		return err
	}
	if !ok {
		return engine.ENOENT
	}
	if err := s.db.Delete(entryKey(pool, key), p.writeOpts); err != nil {
		return ioError(err)
	}
	s.used -= entrySize(key, value)
	if hdr.expired(p.now()) {
		return engine.ENOENT
	}
	return nil
}

// BatchPut writes all pairs in a single pebble batch, so a batch is applied
// either completely or not at all.
func (p *pebbleImpl) BatchPut(h engine.Handle, pool engine.PoolID, keys, values [][]byte, expiries []uint32) error {
	if len(keys) != len(values) || (expiries != nil && len(expiries) != len(keys)) {
		return engine.EINVAL
	}
	for i := range keys {
		if err := checkKey(keys[i]); err != nil {
			return err
		}
		if len(values[i]) > engine.MaxValueSize {
			return engine.EFBIG
		}
	}

	s, unlock, err := p.acquirePool(h, pool)
	if err != nil {
		return err
	}
	defer unlock()

	type pending struct {
		gen  uint32
		size uint64
	}

	now := p.now()
	used := s.used
	written := make(map[string]pending, len(keys))

	b := s.db.NewBatch()
	defer b.Close()

	for i := range keys {
		k := string(keys[i])

		// previous generation and size, either from this batch or from the store
		var prev pending
		var exists bool
		if prev, exists = written[k]; !exists {
			hdr, old, ok, err := s.load(pool, keys[i])
			if err != nil {
				return err
			}
			if ok {
				exists = true
				prev = pending{size: entrySize(keys[i], old)}
				if !hdr.expired(now) {
					prev.gen = hdr.Gen
				}
			}
		}
		if exists {
			used -= prev.size
		}

		hdr := header{Gen: prev.gen + 1}
		switch s.meta.Mode {
		case engine.GlobalExpiry:
			hdr.ExpireAt = now + s.meta.TTL
		case engine.ArbitraryExpiry:
			if expiries != nil && expiries[i] > 0 {
				hdr.ExpireAt = now + expiries[i]
			}
		}

		size := entrySize(keys[i], values[i])
		used += size
		written[k] = pending{gen: hdr.Gen, size: size}

		if err := b.Set(entryKey(pool, keys[i]), encodeEntry(hdr, values[i]), nil); err != nil {
			return ioError(err)
		}
	}

	if used > p.opts.Capacity {
		return engine.ENOSPC
	}
	if err := b.Commit(p.writeOpts); err != nil {
		return ioError(err)
	}
	s.used = used
	return nil
}

// --------------------------------------------------------------------------
// Iteration
// --------------------------------------------------------------------------

// skipDead moves the cursor onto the next live entry, starting at its current
// position. The pebble iterator reads a snapshot, so every candidate is
// checked against the current state: entries deleted or expired after the
// cursor was created are skipped.
//
// Thread-safety: The caller must hold s.mu.
func (s *store) skipDead(c *cursor, now uint32) error {
	for c.iter.Valid() {
		h, _, ok, err := s.load(c.pool, userKey(c.iter.Key()))
		if err != nil {
			return err
		}
		if ok && !h.expired(now) {
			return nil
		}
		c.iter.Next()
	}
	if err := c.iter.Error(); err != nil {
		return ioError(err)
	}
	return nil
}

func (p *pebbleImpl) Iterator(h engine.Handle, pool engine.PoolID) (engine.CursorID, error) {
	s, unlock, err := p.acquirePool(h, pool)
	if err != nil {
		return 0, err
	}
	defer unlock()

	lower, upper := poolBounds(pool)
	iter, err := s.db.NewIter(&pebble.IterOptions{LowerBound: lower, UpperBound: upper})
	if err != nil {
		return 0, ioError(err)
	}
	iter.First()
	c := &cursor{handle: h, pool: pool, iter: iter}
	if err := s.skipDead(c, p.now()); err != nil {
		_ = iter.Close()
		return 0, err
	}

	s.nextCursor++
	id := s.nextCursor
	s.cursors[id] = c
	return id, nil
}

// lookupCursor resolves a cursor and locks its store
func (p *pebbleImpl) lookupCursor(h engine.Handle, pool engine.PoolID, id engine.CursorID) (*store, *cursor, func(), error) {
	s, unlock, err := p.acquire(h)
	if err != nil {
		return nil, nil, nil, err
	}
	c, ok := s.cursors[id]
	if !ok || c.handle != h || c.pool != pool {
		unlock()
		return nil, nil, nil, engine.EBADF
	}
	return s, c, unlock, nil
}

func (p *pebbleImpl) Next(h engine.Handle, pool engine.PoolID, id engine.CursorID) error {
	s, c, unlock, err := p.lookupCursor(h, pool, id)
	if err != nil {
		return err
	}
	defer unlock()

	if !c.iter.Valid() {
		return engine.ENODATA
	}
	c.iter.Next()
	if err := s.skipDead(c, p.now()); err != nil {
		return err
	}

	if !c.iter.Valid() {
		return engine.ENODATA
	}
	return nil
}

func (p *pebbleImpl) Current(h engine.Handle, pool engine.PoolID, id engine.CursorID, keyOut, valueOut []byte) (int, int, error) {
	s, c, unlock, err := p.lookupCursor(h, pool, id)
	if err != nil {
		return 0, 0, err
	}
	defer unlock()

	if err := s.skipDead(c, p.now()); err != nil {
		return 0, 0, err
	}
	if !c.iter.Valid() {
		return 0, 0, engine.ENODATA
	}

	// the snapshot may hold an older version, the current one is returned
	key := userKey(c.iter.Key())
	_, value, ok, err := s.load(pool, key)
	if err != nil {
		return 0, 0, err
	}
	if !ok {
		return 0, 0, engine.ENODATA
	}
	if len(keyOut) < len(key) || len(valueOut) < len(value) {
		return 0, 0, engine.E2BIG
	}
	return copy(keyOut, key), copy(valueOut, value), nil
}

func (p *pebbleImpl) EndIteration(h engine.Handle, pool engine.PoolID, id engine.CursorID) error {
	s, c, unlock, err := p.lookupCursor(h, pool, id)
	if err != nil {
		return err
	}
	defer unlock()

	delete(s.cursors, id)
	if err := c.iter.Close(); err != nil {
		return ioError(err)
	}
	return nil
}

// --------------------------------------------------------------------------
// Metadata
// --------------------------------------------------------------------------

func (p *pebbleImpl) Name() engine.Implementation {
	return engine.ImplPebble
}
