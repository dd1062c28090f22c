package store

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ValentinKolb/fKV/lib/engine"
	"github.com/VictoriaMetrics/metrics"
	"github.com/lni/dragonboat/v4/logger"
	"github.com/puzpuzpuz/xsync/v3"
)

var log = logger.GetLogger("store")

// Store is an open store on a device, bound to one engine handle.
//
// Every Pool and Iterator derived from a Store is only valid while the Store
// is open. Close ends all live iterators before the handle is released.
//
// Thread-safety: Point operations may be issued from several goroutines as
// long as the engine allows it (all bundled engines do). Close, DeletePool and
// DeleteAllPools must not race with operations on the affected pools.
type Store struct {
	eng     engine.Engine
	path    string
	version uint32
	expiry  Expiry
	handle  engine.Handle

	open    atomic.Bool
	closeMu sync.Mutex

	pools   *xsync.MapOf[engine.PoolID, uint64] // live pools -> generation
	poolGen atomic.Uint64
	iters   *xsync.MapOf[*Iterator, struct{}] // live iterators

	metrics opMetrics
}

// Option configures a Store at open time.
type Option func(*Store)

// WithMetricsSet registers the store metrics in set instead of the default
// VictoriaMetrics set.
func WithMetricsSet(set *metrics.Set) Option {
	return func(s *Store) {
		s.metrics.set = set
	}
}

// Open binds the store at path. A nil expiry means NoExpiry.
//
// Open fails with an OpenError if the path is not accessible, the store exists
// with a different version, or the engine rejects the expiry policy.
func Open(eng engine.Engine, path string, version uint32, expiry Expiry, opts ...Option) (s *Store, err error) {
	if expiry == nil {
		expiry = NoExpiry()
	}

	s = &Store{
		eng:     eng,
		path:    path,
		version: version,
		expiry:  expiry,
		pools:   xsync.NewMapOf[engine.PoolID, uint64](),
		iters:   xsync.NewMapOf[*Iterator, struct{}](),
	}
	for _, opt := range opts {
		opt(s)
	}
	defer s.metrics.observe("open", time.Now(), &err)

	if eng == nil {
		return nil, NewError("open", RetCOpenError, "no engine")
	}
	if path == "" {
		return nil, NewError("open", RetCOpenError, "empty path")
	}

	ttl, _ := ttlSeconds(expiry.TTL()) // validated on construction
	h, err := eng.Open(path, version, expiry.Mode(), ttl)
	if err != nil {
		e := translate("open", classOpen, err).(*Error)
		e.Msg = fmt.Sprintf("could not open %q (version %d, %s)", path, version, expiry)
		return nil, e
	}

	s.handle = h
	s.open.Store(true)
	log.Debugf("opened store %s (version=%d, expiry=%s, engine=%s)", path, version, expiry, eng.Name())
	return s, nil
}

// Close ends all live iterators and releases the engine handle. Calling Close
// on a closed store is a no-op.
func (s *Store) Close() (err error) {
	s.closeMu.Lock()
	defer s.closeMu.Unlock()

	if !s.open.Load() {
		return nil
	}
	defer s.metrics.observe("close", time.Now(), &err)

	if n := s.iters.Size(); n > 0 {
		log.Warningf("closing store %s with %d live iterator(s)", s.path, n)
	}
	s.endIterators(func(*Iterator) bool { return true })

	s.open.Store(false)
	s.pools.Clear()

	if err := s.eng.Close(s.handle); err != nil {
		return translate("close", classIO, err)
	}
	log.Debugf("closed store %s", s.path)
	return nil
}

// --------------------------------------------------------------------------
// Accessors
// --------------------------------------------------------------------------

// IsOpen reports whether the store is open.
func (s *Store) IsOpen() bool { return s.open.Load() }

// Path returns the device path of the store.
func (s *Store) Path() string { return s.path }

// Version returns the version the store was opened with.
func (s *Store) Version() uint32 { return s.version }

// Expiry returns the expiry policy of the store.
func (s *Store) Expiry() Expiry { return s.expiry }

// Engine returns the engine the store is bound to.
func (s *Store) Engine() engine.Engine { return s.eng }

func (s *Store) check(op string) error {
	if !s.open.Load() {
		return NewError(op, RetCNotOpen, fmt.Sprintf("store %s is closed", s.path))
	}
	return nil
}

// --------------------------------------------------------------------------
// Pool Management
// --------------------------------------------------------------------------

// registerPool returns the generation of a live pool, assigning a new one if
// the pool id is not yet known.
func (s *Store) registerPool(id engine.PoolID) uint64 {
	gen, _ := s.pools.LoadOrCompute(id, func() uint64 {
		return s.poolGen.Add(1)
	})
	return gen
}

func (s *Store) poolValid(id engine.PoolID, gen uint64) bool {
	cur, ok := s.pools.Load(id)
	return ok && cur == gen
}

// GetOrCreatePool returns the pool with the given tag, creating it if needed.
// The tag must be 1 to engine.MaxPoolTagSize bytes long.
func (s *Store) GetOrCreatePool(tag string) (p *Pool, err error) {
	defer s.metrics.observe("get_or_create_pool", time.Now(), &err)
	if err := s.check("get_or_create_pool"); err != nil {
		return nil, err
	}
	if len(tag) == 0 || len(tag) > engine.MaxPoolTagSize {
		return nil, NewError("get_or_create_pool", RetCInvalidArgument,
			fmt.Sprintf("pool tag must be 1 to %d bytes, got %d", engine.MaxPoolTagSize, len(tag)))
	}

	id, err := s.eng.GetOrCreatePool(s.handle, tag)
	if err != nil {
		e := translate("get_or_create_pool", classPool, err).(*Error)
		e.Msg = fmt.Sprintf("could not get or create pool %q", tag)
		return nil, e
	}
	return &Pool{store: s, tag: tag, id: id, gen: s.registerPool(id)}, nil
}

// Pools returns a snapshot of all pools of the store.
func (s *Store) Pools() (pools []*Pool, err error) {
	defer s.metrics.observe("pools", time.Now(), &err)
	if err := s.check("pools"); err != nil {
		return nil, err
	}

	descs, err := s.eng.Pools(s.handle)
	if err != nil {
		return nil, translate("pools", classPool, err)
	}
	pools = make([]*Pool, 0, len(descs))
	for _, d := range descs {
		pools = append(pools, &Pool{store: s, tag: d.Tag, id: d.ID, gen: s.registerPool(d.ID)})
	}
	return pools, nil
}

// DeletePool removes p and all of its entries. Live iterators over p are
// ended and p (and every other Pool value for the same pool) becomes invalid.
func (s *Store) DeletePool(p *Pool) (err error) {
	defer s.metrics.observe("delete_pool", time.Now(), &err)
	if err := s.check("delete_pool"); err != nil {
		return err
	}
	if err := p.check("delete_pool"); err != nil {
		return err
	}
	if p.store != s {
		return NewError("delete_pool", RetCInvalidArgument, "pool belongs to another store")
	}

	s.endIterators(func(it *Iterator) bool { return it.pool.id == p.id })

	if err := s.eng.DeletePool(s.handle, p.id); err != nil {
		e := translate("delete_pool", classPool, err).(*Error)
		e.Msg = fmt.Sprintf("could not delete pool %q", p.tag)
		return e
	}
	s.pools.Delete(p.id)
	return nil
}

// DeleteAllPools removes every pool of the store. All pools and iterators
// become invalid.
func (s *Store) DeleteAllPools() (err error) {
	defer s.metrics.observe("delete_all_pools", time.Now(), &err)
	if err := s.check("delete_all_pools"); err != nil {
		return err
	}

	s.endIterators(func(*Iterator) bool { return true })
	s.pools.Clear()

	if err := s.eng.DeleteAllPools(s.handle); err != nil {
		return translate("delete_all_pools", classPool, err)
	}
	return nil
}

// DeleteAllEntries removes every entry of every pool, the pools themselves
// stay valid.
func (s *Store) DeleteAllEntries() (err error) {
	defer s.metrics.observe("delete_all_entries", time.Now(), &err)
	if err := s.check("delete_all_entries"); err != nil {
		return err
	}
	if err := s.eng.DeleteAll(s.handle); err != nil {
		return translate("delete_all_entries", classIO, err)
	}
	return nil
}

// --------------------------------------------------------------------------
// Queries & Allocation
// --------------------------------------------------------------------------

// Info returns store statistics.
func (s *Store) Info() (info StoreInfo, err error) {
	defer s.metrics.observe("info", time.Now(), &err)
	if err := s.check("info"); err != nil {
		return StoreInfo{}, err
	}
	raw, err := s.eng.StoreInfo(s.handle)
	if err != nil {
		return StoreInfo{}, translate("info", classQuery, err)
	}
	return storeInfoFrom(raw), nil
}

// AllocValue allocates a value with the given capacity through the engine of
// the store. The caller must Free it.
func (s *Store) AllocValue(capacity int) (*Value, error) {
	if err := s.check("alloc"); err != nil {
		return nil, err
	}
	return NewValue(s.eng, capacity)
}

// --------------------------------------------------------------------------
// Iterator Registry
// --------------------------------------------------------------------------

func (s *Store) trackIterator(it *Iterator) {
	s.iters.Store(it, struct{}{})
}

func (s *Store) untrackIterator(it *Iterator) {
	s.iters.Delete(it)
}

// endIterators ends every live iterator matching the filter
func (s *Store) endIterators(match func(*Iterator) bool) {
	var victims []*Iterator
	s.iters.Range(func(it *Iterator, _ struct{}) bool {
		if match(it) {
			victims = append(victims, it)
		}
		return true
	})
	for _, it := range victims {
		if err := it.Close(); err != nil {
			log.Warningf("ending iterator over pool %s: %v", it.pool.tag, err)
		}
	}
}
