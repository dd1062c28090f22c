package mem

import (
	"sync/atomic"
	"time"
	"unsafe"

	"github.com/ValentinKolb/fKV/lib/engine"
	"github.com/ValentinKolb/fKV/lib/engine/engines/mem/internal"
	"github.com/ValentinKolb/fKV/lib/engine/util"
	"github.com/lni/dragonboat/v4/logger"
	"github.com/puzpuzpuz/xsync/v3"
)

// --------------------------------------------------------------------------
// Constants
// --------------------------------------------------------------------------

const (
	defaultCapacity = 64 * 1024 * 1024 // Default device capacity (64 MiB)
)

var log = logger.GetLogger("engine/mem")

// --------------------------------------------------------------------------
// Core mem engine structure
// --------------------------------------------------------------------------

// memImpl emulates device key/value stores in process memory
type memImpl struct {
	capacity uint64
	clock    func() time.Time
	seed     uint64 // Seed for the iteration order

	devices    *xsync.MapOf[string, *internal.Device]        // Devices by path (survive Close)
	handles    *xsync.MapOf[engine.Handle, *internal.Device] // Open store handles
	nextHandle atomic.Int64

	allocations *xsync.MapOf[*byte, int] // Outstanding Alloc buffers
}

// Options configures the mem engine behavior during initialization
type Options struct {
	Capacity uint64           // Capacity of every device in bytes (0 = default: 64 MiB)
	Clock    func() time.Time // Time source for expiration (nil = time.Now)
}

// DefaultOptions returns the default mem engine options
func DefaultOptions() *Options {
	return &Options{
		Capacity: defaultCapacity,
		Clock:    time.Now,
	}
}

// --------------------------------------------------------------------------
// Initialization and Setup
// --------------------------------------------------------------------------

// Engine is the mem engine. Besides engine.Engine it exposes allocation
// accounting, which tests use to verify that every buffer is released.
type Engine interface {
	engine.Engine

	// Outstanding returns the number of Alloc buffers that were not freed yet.
	Outstanding() int
}

// NewMemEngine creates a new mem engine with the specified options (optional).
// Devices are created on first Open and keep their content until the engine
// is garbage collected, so a store can be closed and opened again.
func NewMemEngine(opts *Options) Engine {
	if opts == nil {
		opts = DefaultOptions()
	}
	if opts.Capacity == 0 {
		opts.Capacity = defaultCapacity
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}

	return &memImpl{
		capacity:    opts.Capacity,
		clock:       opts.Clock,
		seed:        util.GenerateSeed(),
		devices:     xsync.NewMapOf[string, *internal.Device](),
		handles:     xsync.NewMapOf[engine.Handle, *internal.Device](),
		allocations: xsync.NewMapOf[*byte, int](),
	}
}

// now returns the current engine time in unix seconds
func (m *memImpl) now() uint32 {
	return uint32(m.clock().Unix())
}

// device resolves a handle and locks the device.
// The returned unlock function must be called when done.
func (m *memImpl) device(h engine.Handle) (*internal.Device, func(), error) {
	dev, ok := m.handles.Load(h)
	if !ok {
		return nil, nil, engine.EBADF
	}
	dev.Mu.Lock()
	dev.Collect(m.now())
	return dev, dev.Mu.Unlock, nil
}

// pool resolves a handle and pool id and locks the device.
func (m *memImpl) pool(h engine.Handle, id engine.PoolID) (*internal.Device, *internal.Pool, func(), error) {
	dev, unlock, err := m.device(h)
	if err != nil {
		return nil, nil, nil, err
	}
	p, ok := dev.Pools[id]
	if !ok {
		unlock()
		return nil, nil, nil, engine.ENOENT
	}
	return dev, p, unlock, nil
}

func checkKey(key []byte) error {
	if len(key) == 0 || len(key) > engine.MaxKeySize {
		return engine.EINVAL
	}
	return nil
}

// --------------------------------------------------------------------------
// Lifecycle
// --------------------------------------------------------------------------

func (m *memImpl) Open(path string, version uint32, mode engine.ExpiryMode, expiryTime uint32) (engine.Handle, error) {
	if path == "" {
		return 0, engine.ENOENT
	}
	if !mode.Valid() || (mode == engine.GlobalExpiry && expiryTime == 0) {
		return 0, engine.EINVAL
	}
	if mode != engine.GlobalExpiry {
		expiryTime = 0
	}

	dev, loaded := m.devices.LoadOrCompute(path, func() *internal.Device {
		return internal.NewDevice(path, version, mode, expiryTime, m.capacity)
	})
	if !loaded {
		log.Debugf("created device %s (version=%d, expiry=%s)", path, version, mode)
	}

	dev.Mu.Lock()
	defer dev.Mu.Unlock()

	if dev.Version != version || dev.Mode != mode || dev.TTL != expiryTime {
		log.Warningf("refusing to open %s: stored config (version=%d, expiry=%s/%d) does not match (version=%d, expiry=%s/%d)",
			path, dev.Version, dev.Mode, dev.TTL, version, mode, expiryTime)
		return 0, engine.EINVAL
	}

	h := engine.Handle(m.nextHandle.Add(1))
	m.handles.Store(h, dev)
	return h, nil
}

func (m *memImpl) Close(h engine.Handle) error {
	dev, ok := m.handles.LoadAndDelete(h)
	if !ok {
		return engine.EBADF
	}

	dev.Mu.Lock()
	defer dev.Mu.Unlock()

	// end all cursors of this handle
	for id, c := range dev.Cursors {
		if c.Handle == h {
			delete(dev.Cursors, id)
		}
	}
	return nil
}

func (m *memImpl) StoreInfo(h engine.Handle) (engine.StoreInfo, error) {
	dev, unlock, err := m.device(h)
	if err != nil {
		return engine.StoreInfo{}, err
	}
	defer unlock()

	return engine.StoreInfo{
		Version:    dev.Version,
		NumPools:   uint32(len(dev.Pools)),
		MaxPools:   engine.MaxPools,
		ExpiryMode: dev.Mode,
		NumKeys:    dev.NumKeys(m.now()),
		FreeSpace:  dev.Capacity - dev.Used,
	}, nil
}

// --------------------------------------------------------------------------
// Pool Management
// --------------------------------------------------------------------------

func (m *memImpl) GetOrCreatePool(h engine.Handle, tag string) (engine.PoolID, error) {
	if tag == "" || len(tag) > engine.MaxPoolTagSize {
		return 0, engine.EINVAL
	}

	dev, unlock, err := m.device(h)
	if err != nil {
		return 0, err
	}
	defer unlock()

	if id, ok := dev.Tags[tag]; ok {
		return id, nil
	}
	if len(dev.Pools) >= engine.MaxPools {
		return 0, engine.ENOSPC
	}

	id := dev.NextPool
	dev.NextPool++
	dev.Pools[id] = internal.NewPool(id, tag)
	dev.Tags[tag] = id
	log.Debugf("created pool %q (id=%d) on %s", tag, id, dev.Path)
	return id, nil
}

func (m *memImpl) Pools(h engine.Handle) ([]engine.PoolDesc, error) {
	dev, unlock, err := m.device(h)
	if err != nil {
		return nil, err
	}
	defer unlock()

	pools := make([]engine.PoolDesc, 0, len(dev.Pools))
	for id := engine.PoolID(1); id < dev.NextPool; id++ {
		if p, ok := dev.Pools[id]; ok {
			pools = append(pools, engine.PoolDesc{ID: p.ID, Tag: p.Tag})
		}
	}
	return pools, nil
}

func (m *memImpl) DeletePool(h engine.Handle, id engine.PoolID) error {
	dev, p, unlock, err := m.pool(h, id)
	if err != nil {
		return err
	}
	defer unlock()

	dev.DropPool(p)
	return nil
}

func (m *memImpl) DeleteAllPools(h engine.Handle) error {
	dev, unlock, err := m.device(h)
	if err != nil {
		return err
	}
	defer unlock()

	for _, p := range dev.Pools {
		dev.DropPool(p)
	}
	return nil
}

func (m *memImpl) DeleteAll(h engine.Handle) error {
	dev, unlock, err := m.device(h)
	if err != nil {
		return err
	}
	defer unlock()

	for _, p := range dev.Pools {
		dev.ClearPool(p)
	}
	return nil
}

// --------------------------------------------------------------------------
// Buffer Allocation
// --------------------------------------------------------------------------

func (m *memImpl) Alloc(length int) ([]byte, error) {
	if length < 0 {
		return nil, engine.EINVAL
	}
	if length > engine.MaxValueSize {
		return nil, engine.EFBIG
	}

	// sector aligned backing array, at least one sector so that every buffer has an address
	buf := make([]byte, length, util.AlignUp(max(length, 1), engine.SectorAlignment))
	m.allocations.Store(unsafe.SliceData(buf), cap(buf))
	return buf, nil
}

func (m *memImpl) Free(buf []byte) error {
	if cap(buf) == 0 {
		return engine.EINVAL
	}
	if _, ok := m.allocations.LoadAndDelete(unsafe.SliceData(buf)); !ok {
		return engine.EINVAL
	}
	return nil
}

func (m *memImpl) Outstanding() int {
	return m.allocations.Size()
}

// --------------------------------------------------------------------------
// Point Operations
// --------------------------------------------------------------------------

func (m *memImpl) ValueLen(h engine.Handle, pool engine.PoolID, key []byte) (int, error) {
	info, err := m.KeyInfo(h, pool, key)
	if err != nil {
		return 0, err
	}
	return int(info.ValueLen), nil
}

func (m *memImpl) KeyInfo(h engine.Handle, pool engine.PoolID, key []byte) (engine.KeyInfo, error) {
	info, ok, err := m.Exists(h, pool, key)
	if err != nil {
		return engine.KeyInfo{}, err
	}
	if !ok {
		return engine.KeyInfo{}, engine.ENOENT
	}
	return info, nil
}

func (m *memImpl) Get(h engine.Handle, pool engine.PoolID, key []byte, out []byte) (int, error) {
	if err := checkKey(key); err != nil {
		return 0, err
	}
	_, p, unlock, err := m.pool(h, pool)
	if err != nil {
		return 0, err
	}
	defer unlock()

	e, ok := p.Data.Load(string(key))
	if !ok || e.Expired(m.now()) {
		return 0, engine.ENOENT
	}
	if len(out) < len(e.Value) {
		return 0, engine.E2BIG
	}
	return copy(out, e.Value), nil
}

func (m *memImpl) Put(h engine.Handle, pool engine.PoolID, key []byte, value []byte, expiry uint32) (int, error) {
	if err := m.BatchPut(h, pool, [][]byte{key}, [][]byte{value}, []uint32{expiry}); err != nil {
		return 0, err
	}
	return len(value), nil
}

func (m *memImpl) Exists(h engine.Handle, pool engine.PoolID, key []byte) (engine.KeyInfo, bool, error) {
	if err := checkKey(key); err != nil {
		return engine.KeyInfo{}, false, err
	}
	_, p, unlock, err := m.pool(h, pool)
	if err != nil {
		return engine.KeyInfo{}, false, err
	}
	defer unlock()

	e, ok := p.Data.Load(string(key))
	if !ok || e.Expired(m.now()) {
		return engine.KeyInfo{}, false, nil
	}
	return engine.KeyInfo{
		PoolID:   pool,
		KeyLen:   uint32(len(key)),
		ValueLen: uint32(len(e.Value)),
		Expiry:   e.ExpireAt,
		GenCount: e.Gen,
	}, true, nil
}

func (m *memImpl) Delete(h engine.Handle, pool engine.PoolID, key []byte) error {
	if err := checkKey(key); err != nil {
		return err
	}
	dev, p, unlock, err := m.pool(h, pool)
	if err != nil {
		return err
	}
	defer unlock()

	e, ok := p.Data.LoadAndDelete(string(key))
	if !ok {
		return engine.ENOENT
	}
	dev.Expiry.Cancel(internal.Ref{Pool: pool, Key: string(key)})
	dev.Used -= internal.EntrySize(string(key), e.Value)
	if e.Expired(m.now()) {
		return engine.ENOENT
	}
	return nil
}

// BatchPut validates the whole batch before writing anything, so for this
// engine a batch is applied either completely or not at all.
func (m *memImpl) BatchPut(h engine.Handle, pool engine.PoolID, keys, values [][]byte, expiries []uint32) error {
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

	dev, p, unlock, err := m.pool(h, pool)
	if err != nil {
		return err
	}
	defer unlock()

	// capacity check for the whole batch (later duplicates replace earlier ones)
	used := dev.Used
	pending := make(map[string]uint64, len(keys))
	for i := range keys {
		k := string(keys[i])
		if old, ok := pending[k]; ok {
			used -= old
		} else if e, ok := p.Data.Load(k); ok {
			used -= internal.EntrySize(k, e.Value)
		}
		size := internal.EntrySize(k, values[i])
		pending[k] = size
		used += size
	}
	if used > dev.Capacity {
		return engine.ENOSPC
	}

	now := m.now()
	for i := range keys {
		var expireAt uint32
		switch dev.Mode {
		case engine.GlobalExpiry:
			expireAt = now + dev.TTL
		case engine.ArbitraryExpiry:
			if expiries != nil && expiries[i] > 0 {
				expireAt = now + expiries[i]
			}
		}

		k := string(keys[i])
		valueCopy := make([]byte, len(values[i]))
		copy(valueCopy, values[i])

		p.Data.Compute(k, func(old internal.Entry, loaded bool) (internal.Entry, bool) {
			gen := uint32(1)
			if loaded {
				gen = old.Gen + 1
			}
			return internal.Entry{Value: valueCopy, ExpireAt: expireAt, Gen: gen}, false
		})

		ref := internal.Ref{Pool: pool, Key: k}
		if expireAt != 0 {
			dev.Expiry.Schedule(ref, expireAt)
		} else {
			dev.Expiry.Cancel(ref)
		}
	}
	dev.Used = used
	return nil
}

// --------------------------------------------------------------------------
// Iteration
// --------------------------------------------------------------------------

func (m *memImpl) Iterator(h engine.Handle, pool engine.PoolID) (engine.CursorID, error) {
	dev, p, unlock, err := m.pool(h, pool)
	if err != nil {
		return 0, err
	}
	defer unlock()

	dev.NextCursor++
	id := dev.NextCursor
	dev.Cursors[id] = &internal.Cursor{
		Handle: h,
		Pool:   pool,
		Keys:   p.Snapshot(m.seed),
	}
	return id, nil
}

// cursor resolves a cursor and locks its device
func (m *memImpl) cursor(h engine.Handle, pool engine.PoolID, id engine.CursorID) (*internal.Cursor, *internal.Pool, func(), error) {
	dev, p, unlock, err := m.pool(h, pool)
	if err != nil {
		return nil, nil, nil, err
	}
	c, ok := dev.Cursors[id]
	if !ok || c.Handle != h || c.Pool != pool {
		unlock()
		return nil, nil, nil, engine.EBADF
	}
	return c, p, unlock, nil
}

// skipDead moves the cursor onto the next live entry, starting at its current
// position. Entries removed or expired after the snapshot was taken are skipped.
func skipDead(c *internal.Cursor, p *internal.Pool, now uint32) {
	for c.Pos < len(c.Keys) {
		if e, ok := p.Data.Load(c.Keys[c.Pos]); ok && !e.Expired(now) {
			return
		}
		c.Pos++
	}
}

func (m *memImpl) Next(h engine.Handle, pool engine.PoolID, id engine.CursorID) error {
	c, p, unlock, err := m.cursor(h, pool, id)
	if err != nil {
		return err
	}
	defer unlock()

	if c.Pos >= len(c.Keys) {
		return engine.ENODATA
	}
	c.Pos++
	skipDead(c, p, m.now())

	if c.Pos >= len(c.Keys) {
		return engine.ENODATA
	}
	return nil
}

func (m *memImpl) Current(h engine.Handle, pool engine.PoolID, id engine.CursorID, keyOut, valueOut []byte) (int, int, error) {
	c, p, unlock, err := m.cursor(h, pool, id)
	if err != nil {
		return 0, 0, err
	}
	defer unlock()

	skipDead(c, p, m.now())
	if c.Pos >= len(c.Keys) {
		return 0, 0, engine.ENODATA
	}

	key := c.Keys[c.Pos]
	e, _ := p.Data.Load(key)
	if len(keyOut) < len(key) || len(valueOut) < len(e.Value) {
		return 0, 0, engine.E2BIG
	}
	return copy(keyOut, key), copy(valueOut, e.Value), nil
}

func (m *memImpl) EndIteration(h engine.Handle, pool engine.PoolID, id engine.CursorID) error {
	dev, unlock, err := m.device(h)
	if err != nil {
		return err
	}
	defer unlock()

	c, ok := dev.Cursors[id]
	if !ok || c.Handle != h || c.Pool != pool {
		return engine.EBADF
	}
	delete(dev.Cursors, id)
	return nil
}

// --------------------------------------------------------------------------
// Metadata
// --------------------------------------------------------------------------

func (m *memImpl) Name() engine.Implementation {
	return engine.ImplMem
}
