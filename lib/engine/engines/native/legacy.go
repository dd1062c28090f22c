package native

import (
	"runtime"
	"slices"
	"strconv"
	"sync"
	"sync/atomic"
	"unsafe"

	"github.com/ValentinKolb/fKV/lib/engine"
	"github.com/puzpuzpuz/xsync/v3"
)

// --------------------------------------------------------------------------
// Legacy ABI (fio_kv_helper.h)
// --------------------------------------------------------------------------

// legacyAPIVersion is the KV store version the legacy helper creates devices with
const legacyAPIVersion = 1

// legacyKey mirrors fio_kv_key_t
type legacyKey struct {
	Length int32
	Bytes  uintptr
}

// legacyValue mirrors fio_kv_value_t
type legacyValue struct {
	Data uintptr
	Info uintptr
}

// legacyStoreT mirrors fio_kv_store_t. It is never allocated by Go, the
// mirror only documents the layout the helper returns.
type legacyStoreT struct {
	FD   int32
	KV   int64
	Pool int32
}

// legacyDevice is an open device: one fio_kv_store_t per pool number
type legacyDevice struct {
	mu    sync.Mutex
	path  string
	pools map[engine.PoolID]uintptr
}

// legacyImpl implements engine.Engine on a helper that only exports the
// legacy ABI. Pools are the device's numbered pools, tags are their decimal
// numbers. Operations the ABI has no counterpart for fail with ENOTSUP.
type legacyImpl struct {
	base
	devices    *xsync.MapOf[engine.Handle, *legacyDevice]
	nextHandle atomic.Int64
}

func newLegacyEngine(b base) *legacyImpl {
	return &legacyImpl{
		base:    b,
		devices: xsync.NewMapOf[engine.Handle, *legacyDevice](),
	}
}

// --------------------------------------------------------------------------
// Helper functions
// --------------------------------------------------------------------------

// parsePoolTag converts a pool tag into the pool number of a legacy device
func parsePoolTag(tag string) (engine.PoolID, error) {
	if tag == "" || len(tag) > engine.MaxPoolTagSize {
		return 0, engine.EINVAL
	}
	id, err := strconv.Atoi(tag)
	if err != nil || id < 0 || id >= engine.MaxPools || strconv.Itoa(id) != tag {
		return 0, engine.EINVAL
	}
	return engine.PoolID(id), nil
}

// checkKey rejects keys the helper would abort on
func checkKey(key []byte) error {
	if len(key) == 0 || len(key) > engine.MaxKeySize {
		return engine.EINVAL
	}
	return nil
}

// openPool opens the fio_kv_store_t of one pool
func (l *legacyImpl) openPool(path string, pool engine.PoolID) (uintptr, error) {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	ptr := l.lib.legacy.open(path, int32(pool))
	if ptr == 0 {
		return 0, l.lastErrno(engine.EIO)
	}
	return ptr, nil
}

// closePool closes a fio_kv_store_t and frees the struct the helper allocated
func (l *legacyImpl) closePool(ptr uintptr) {
	l.lib.legacy.close(ptr)
	if l.lib.legacy.libcFree != nil {
		l.lib.legacy.libcFree(ptr)
	}
}

// store resolves the fio_kv_store_t of a pool
func (l *legacyImpl) store(h engine.Handle, pool engine.PoolID) (uintptr, error) {
	dev, ok := l.devices.Load(h)
	if !ok {
		return 0, engine.EBADF
	}
	dev.mu.Lock()
	defer dev.mu.Unlock()
	ptr, ok := dev.pools[pool]
	if !ok {
		return 0, engine.ENOENT
	}
	return ptr, nil
}

// device resolves an open device
func (l *legacyImpl) device(h engine.Handle) (*legacyDevice, error) {
	dev, ok := l.devices.Load(h)
	if !ok {
		return nil, engine.EBADF
	}
	return dev, nil
}

// withValue passes a fio_kv_value_t for buf to fn. The helper requires sector
// aligned memory, buffers not obtained from Alloc are staged in helper memory.
// copyIn stages the content of buf, otherwise the result is copied back.
func (l *legacyImpl) withValue(buf []byte, copyIn bool, fn func(value unsafe.Pointer) int32) (int, error) {
	data := buf
	staged := !l.allocated(buf)
	if staged {
		tmp, err := l.allocate(len(buf))
		if err != nil {
			return 0, err
		}
		defer l.release(tmp, l.freeData)
		if copyIn {
			copy(tmp, buf)
		}
		data = tmp
	}

	info := keyInfo{ValueLen: uint32(len(data))}
	var pinner runtime.Pinner
	pinner.Pin(&info)
	defer pinner.Unpin()

	v := legacyValue{
		Data: uintptr(unsafe.Pointer(unsafe.SliceData(data))),
		Info: uintptr(unsafe.Pointer(&info)),
	}

	runtime.LockOSThread()
	defer runtime.UnlockOSThread()
	r := fn(unsafe.Pointer(&v))
	if r < 0 {
		return 0, l.lastErrno(engine.EIO)
	}
	if staged && !copyIn {
		copy(buf, data[:min(int(r), len(data))])
	}
	return int(r), nil
}

// withKey passes a fio_kv_key_t for key to fn, the key bytes stay pinned for the call
func withKey(key []byte, fn func(key unsafe.Pointer)) {
	var pinner runtime.Pinner
	pinner.Pin(&key[0])
	defer pinner.Unpin()

	k := legacyKey{Length: int32(len(key)), Bytes: uintptr(unsafe.Pointer(&key[0]))}
	fn(unsafe.Pointer(&k))
}

// freeData releases helper memory through fio_kv_free_value
func (l *legacyImpl) freeData(ptr unsafe.Pointer) {
	v := legacyValue{Data: uintptr(ptr)}
	l.lib.legacy.freeValue(unsafe.Pointer(&v))
}

// --------------------------------------------------------------------------
// Lifecycle
// --------------------------------------------------------------------------

// Open opens pool 0 of the device. Legacy devices have version 1 and no expiry.
func (l *legacyImpl) Open(path string, version uint32, mode engine.ExpiryMode, expiryTime uint32) (engine.Handle, error) {
	if path == "" {
		return 0, engine.ENOENT
	}
	if version != legacyAPIVersion {
		return 0, engine.EINVAL
	}
	if mode != engine.NoExpiry {
		return 0, engine.ENOTSUP
	}

	ptr, err := l.openPool(path, 0)
	if err != nil {
		return 0, err
	}
	h := engine.Handle(l.nextHandle.Add(1))
	l.devices.Store(h, &legacyDevice{path: path, pools: map[engine.PoolID]uintptr{0: ptr}})
	return h, nil
}

func (l *legacyImpl) Close(h engine.Handle) error {
	dev, ok := l.devices.LoadAndDelete(h)
	if !ok {
		return engine.EBADF
	}
	dev.mu.Lock()
	defer dev.mu.Unlock()
	for id, ptr := range dev.pools {
		l.closePool(ptr)
		delete(dev.pools, id)
	}
	return nil
}

func (l *legacyImpl) StoreInfo(h engine.Handle) (engine.StoreInfo, error) {
	if _, err := l.device(h); err != nil {
		return engine.StoreInfo{}, err
	}
	return engine.StoreInfo{}, engine.ENOTSUP
}

// --------------------------------------------------------------------------
// Pool Management
// --------------------------------------------------------------------------

// GetOrCreatePool opens the numbered pool given by tag ("0" to "1023")
func (l *legacyImpl) GetOrCreatePool(h engine.Handle, tag string) (engine.PoolID, error) {
	dev, err := l.device(h)
	if err != nil {
		return 0, err
	}
	id, err := parsePoolTag(tag)
	if err != nil {
		return 0, err
	}

	dev.mu.Lock()
	defer dev.mu.Unlock()
	if _, ok := dev.pools[id]; ok {
		return id, nil
	}
	ptr, err := l.openPool(dev.path, id)
	if err != nil {
		return 0, err
	}
	dev.pools[id] = ptr
	return id, nil
}

// Pools lists the pools opened through this handle, the legacy ABI cannot
// enumerate the pools of a device
func (l *legacyImpl) Pools(h engine.Handle) ([]engine.PoolDesc, error) {
	dev, err := l.device(h)
	if err != nil {
		return nil, err
	}
	dev.mu.Lock()
	defer dev.mu.Unlock()

	pools := make([]engine.PoolDesc, 0, len(dev.pools))
	for id := range dev.pools {
		pools = append(pools, engine.PoolDesc{ID: id, Tag: strconv.Itoa(int(id))})
	}
	slices.SortFunc(pools, func(a, b engine.PoolDesc) int { return int(a.ID) - int(b.ID) })
	return pools, nil
}

func (l *legacyImpl) DeletePool(h engine.Handle, pool engine.PoolID) error {
	if _, err := l.store(h, pool); err != nil {
		return err
	}
	return engine.ENOTSUP
}

func (l *legacyImpl) DeleteAllPools(h engine.Handle) error {
	if _, err := l.device(h); err != nil {
		return err
	}
	return engine.ENOTSUP
}

func (l *legacyImpl) DeleteAll(h engine.Handle) error {
	if _, err := l.device(h); err != nil {
		return err
	}
	return engine.ENOTSUP
}

// --------------------------------------------------------------------------
// Buffer Allocation
// --------------------------------------------------------------------------

// Alloc returns sector aligned memory from fio_kv_alloc
func (l *legacyImpl) Alloc(length int) ([]byte, error) {
	return l.allocate(length)
}

// Free releases memory from Alloc through fio_kv_free_value
func (l *legacyImpl) Free(buf []byte) error {
	return l.release(buf, l.freeData)
}

// --------------------------------------------------------------------------
// Point Operations
// --------------------------------------------------------------------------

func (l *legacyImpl) ValueLen(h engine.Handle, pool engine.PoolID, key []byte) (int, error) {
	if _, err := l.store(h, pool); err != nil {
		return 0, err
	}
	return 0, engine.ENOTSUP
}

func (l *legacyImpl) KeyInfo(h engine.Handle, pool engine.PoolID, key []byte) (engine.KeyInfo, error) {
	if _, err := l.store(h, pool); err != nil {
		return engine.KeyInfo{}, err
	}
	return engine.KeyInfo{}, engine.ENOTSUP
}

func (l *legacyImpl) Get(h engine.Handle, pool engine.PoolID, key []byte, out []byte) (int, error) {
	s, err := l.store(h, pool)
	if err != nil {
		return 0, err
	}
	if err := checkKey(key); err != nil {
		return 0, err
	}
	if len(out) > engine.MaxValueSize {
		out = out[:engine.MaxValueSize]
	}

	var n int
	withKey(key, func(k unsafe.Pointer) {
		n, err = l.withValue(out, false, func(v unsafe.Pointer) int32 {
			return l.lib.legacy.get(s, k, v)
		})
	})
	if err != nil {
		return 0, err
	}
	if n > len(out) {
		return 0, engine.E2BIG
	}
	return n, nil
}

// Put writes key. Legacy devices never expire entries, expiry is ignored.
func (l *legacyImpl) Put(h engine.Handle, pool engine.PoolID, key []byte, value []byte, expiry uint32) (int, error) {
	s, err := l.store(h, pool)
	if err != nil {
		return 0, err
	}
	if err := checkKey(key); err != nil {
		return 0, err
	}
	if len(value) > engine.MaxValueSize {
		return 0, engine.EFBIG
	}

	var n int
	withKey(key, func(k unsafe.Pointer) {
		n, err = l.withValue(value, true, func(v unsafe.Pointer) int32 {
			return l.lib.legacy.put(s, k, v)
		})
	})
	return n, err
}

// Exists reports whether key is present. The legacy helper returns a bare
// boolean, the key info only carries what is known without a read.
func (l *legacyImpl) Exists(h engine.Handle, pool engine.PoolID, key []byte) (engine.KeyInfo, bool, error) {
	s, err := l.store(h, pool)
	if err != nil {
		return engine.KeyInfo{}, false, err
	}
	if err := checkKey(key); err != nil {
		return engine.KeyInfo{}, false, err
	}

	var ok bool
	withKey(key, func(k unsafe.Pointer) { ok = l.lib.legacy.exists(s, k) })
	if !ok {
		return engine.KeyInfo{}, false, nil
	}
	return engine.KeyInfo{PoolID: pool, KeyLen: uint32(len(key))}, true, nil
}

// Delete removes key. The helper only reports false on failure, the errno of
// the calling thread decides between ENOENT (no errno set) and a real error.
func (l *legacyImpl) Delete(h engine.Handle, pool engine.PoolID, key []byte) error {
	s, err := l.store(h, pool)
	if err != nil {
		return err
	}
	if err := checkKey(key); err != nil {
		return err
	}

	runtime.LockOSThread()
	defer runtime.UnlockOSThread()
	var ok bool
	withKey(key, func(k unsafe.Pointer) { ok = l.lib.legacy.delete(s, k) })
	if ok {
		return nil
	}
	return l.lastErrno(engine.ENOENT)
}

func (l *legacyImpl) BatchPut(h engine.Handle, pool engine.PoolID, keys, values [][]byte, expiries []uint32) error {
	if _, err := l.store(h, pool); err != nil {
		return err
	}
	return engine.ENOTSUP
}

// --------------------------------------------------------------------------
// Iteration
// --------------------------------------------------------------------------

func (l *legacyImpl) Iterator(h engine.Handle, pool engine.PoolID) (engine.CursorID, error) {
	if _, err := l.store(h, pool); err != nil {
		return 0, err
	}
	return 0, engine.ENOTSUP
}

func (l *legacyImpl) Next(h engine.Handle, pool engine.PoolID, cursor engine.CursorID) error {
	return engine.EBADF
}

func (l *legacyImpl) Current(h engine.Handle, pool engine.PoolID, cursor engine.CursorID, keyOut, valueOut []byte) (int, int, error) {
	return 0, 0, engine.EBADF
}

func (l *legacyImpl) EndIteration(h engine.Handle, pool engine.PoolID, cursor engine.CursorID) error {
	return engine.EBADF
}

// --------------------------------------------------------------------------
// Metadata
// --------------------------------------------------------------------------

func (l *legacyImpl) Name() engine.Implementation {
	return engine.ImplNative
}
