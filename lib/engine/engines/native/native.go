package native

import (
	"os"
	"runtime"
	"unsafe"

	"github.com/ValentinKolb/fKV/lib/engine"
	"github.com/lni/dragonboat/v4/logger"
	"github.com/puzpuzpuz/xsync/v3"
)

// --------------------------------------------------------------------------
// Constants
// --------------------------------------------------------------------------

const (
	// DefaultLibrary is the helper library name resolved by the dynamic loader
	DefaultLibrary = "libfio_kv_helper.so"

	// LibraryPathEnv overrides the helper library location
	LibraryPathEnv = "FKV_LIBRARY_PATH"

	poolDescTagSize = 20 // Tag field of fio_kv_pool_desc_t (16 bytes + NUL, padded)
)

var log = logger.GetLogger("engine/native")

// --------------------------------------------------------------------------
// C struct mirrors
// --------------------------------------------------------------------------

// storeInfo mirrors fio_kv_store_info_t
type storeInfo struct {
	Version    uint32
	NumPools   uint32
	MaxPools   uint32
	ExpiryMode uint32
	NumKeys    uint64
	FreeSpace  uint64
}

// keyInfo mirrors fio_kv_key_info_t
type keyInfo struct {
	PoolID   int32
	KeyLen   uint32
	ValueLen uint32
	Expiry   uint32
	GenCount uint32
}

// poolDesc mirrors fio_kv_pool_desc_t
type poolDesc struct {
	ID  int32
	Tag [poolDescTagSize]byte
}

// iovec mirrors fio_kv_iov_t
type iovec struct {
	Data uintptr
	Len  uint32
	_    uint32
}

// --------------------------------------------------------------------------
// Core native engine structure
// --------------------------------------------------------------------------

// Options configures the native engine
type Options struct {
	LibraryPath string // Path of the helper library ("" = $FKV_LIBRARY_PATH or DefaultLibrary)
}

// base holds what both ABIs share: the library, error retrieval and the
// bookkeeping of helper allocated buffers
type base struct {
	lib         *library
	allocations *xsync.MapOf[uintptr, int] // Outstanding Alloc buffers
}

// nativeImpl implements engine.Engine on a helper exporting the extended ABI
type nativeImpl struct {
	base
}

// NewNativeEngine loads the device helper library and returns an engine bound
// to it. Helpers that only export the legacy ABI of fio_kv_helper.h get an
// engine limited to numbered pools and point operations (see doc.go).
func NewNativeEngine(opts *Options) (engine.Engine, error) {
	path := ""
	if opts != nil {
		path = opts.LibraryPath
	}
	if path == "" {
		path = os.Getenv(LibraryPathEnv)
	}
	if path == "" {
		path = DefaultLibrary
	}

	lib, err := loadLibrary(path)
	if err != nil {
		return nil, err
	}
	log.Infof("loaded device helper library %s (%s abi)", path, lib.abi)

	b := base{
		lib:         lib,
		allocations: xsync.NewMapOf[uintptr, int](),
	}
	if lib.abi == abiLegacy {
		return newLegacyEngine(b), nil
	}
	return &nativeImpl{base: b}, nil
}

// --------------------------------------------------------------------------
// Helper functions
// --------------------------------------------------------------------------

// call runs a library function and reads the error code of a failed call.
// The helper keeps the last error per OS thread, so the goroutine is pinned to
// its thread until the code has been read.
func (n *base) call(fn func() int64) (int64, error) {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	r := fn()
	if r >= 0 {
		return r, nil
	}
	return r, n.lastErrno(engine.EIO)
}

// lastErrno reads the last error of the calling OS thread, fallback is
// returned if the helper reports no error. The caller must have locked the
// goroutine to its thread before the failing call.
func (n *base) lastErrno(fallback engine.Errno) engine.Errno {
	errno := engine.Errno(n.lib.lastError())
	if errno == engine.EOK {
		return fallback
	}
	return errno
}

// call32 is call for functions returning int32
func (n *base) call32(fn func() int32) (int32, error) {
	r, err := n.call(func() int64 { return int64(fn()) })
	return int32(r), err
}

// allocate returns length bytes of sector aligned helper memory.
// The memory is owned by the C heap, Go only ever holds it as a slice.
func (n *base) allocate(length int) ([]byte, error) {
	if length < 0 {
		return nil, engine.EINVAL
	}
	if length > engine.MaxValueSize {
		return nil, engine.EFBIG
	}

	var ptr unsafe.Pointer
	_, err := n.call(func() int64 {
		ptr = n.lib.alloc(uint32(max(length, 1)))
		if ptr == nil {
			return -1
		}
		return 0
	})
	if err != nil {
		return nil, err
	}

	n.allocations.Store(uintptr(ptr), length)
	return unsafe.Slice((*byte)(ptr), max(length, 1))[:length], nil
}

// release validates that buf came from allocate and hands its memory to free
func (n *base) release(buf []byte, free func(ptr unsafe.Pointer)) error {
	if cap(buf) == 0 {
		return engine.EINVAL
	}
	ptr := unsafe.Pointer(unsafe.SliceData(buf))
	if _, ok := n.allocations.LoadAndDelete(uintptr(ptr)); !ok {
		return engine.EINVAL
	}
	free(ptr)
	return nil
}

// allocated reports whether buf starts at a helper allocation
func (n *base) allocated(buf []byte) bool {
	if cap(buf) == 0 {
		return false
	}
	_, ok := n.allocations.Load(uintptr(unsafe.Pointer(unsafe.SliceData(buf))))
	return ok
}

// slicePtr returns a pointer to the first element of a byte slice.
// Returns 0 for empty slices.
func slicePtr(s []byte) uintptr {
	if len(s) == 0 {
		return 0
	}
	return uintptr(unsafe.Pointer(&s[0]))
}

// --------------------------------------------------------------------------
// Lifecycle
// --------------------------------------------------------------------------

func (n *nativeImpl) Open(path string, version uint32, mode engine.ExpiryMode, expiryTime uint32) (engine.Handle, error) {
	if path == "" {
		return 0, engine.ENOENT
	}
	h, err := n.call(func() int64 {
		return n.lib.ext.open(path, version, int32(mode), expiryTime)
	})
	if err != nil {
		return 0, err
	}
	return engine.Handle(h), nil
}

func (n *nativeImpl) Close(h engine.Handle) error {
	_, err := n.call32(func() int32 { return n.lib.ext.close(int64(h)) })
	return err
}

func (n *nativeImpl) StoreInfo(h engine.Handle) (engine.StoreInfo, error) {
	var info storeInfo
	_, err := n.call32(func() int32 {
		return n.lib.ext.storeInfo(int64(h), uintptr(unsafe.Pointer(&info)))
	})
	if err != nil {
		return engine.StoreInfo{}, err
	}
	return engine.StoreInfo{
		Version:    info.Version,
		NumPools:   info.NumPools,
		MaxPools:   info.MaxPools,
		ExpiryMode: engine.ExpiryMode(info.ExpiryMode),
		NumKeys:    info.NumKeys,
		FreeSpace:  info.FreeSpace,
	}, nil
}

// --------------------------------------------------------------------------
// Pool Management
// --------------------------------------------------------------------------

func (n *nativeImpl) GetOrCreatePool(h engine.Handle, tag string) (engine.PoolID, error) {
	if tag == "" || len(tag) > engine.MaxPoolTagSize {
		return 0, engine.EINVAL
	}
	id, err := n.call32(func() int32 { return n.lib.ext.getOrCreatePool(int64(h), tag) })
	if err != nil {
		return 0, err
	}
	return engine.PoolID(id), nil
}

func (n *nativeImpl) Pools(h engine.Handle) ([]engine.PoolDesc, error) {
	descs := make([]poolDesc, engine.MaxPools)
	count, err := n.call32(func() int32 {
		return n.lib.ext.pools(int64(h), uintptr(unsafe.Pointer(&descs[0])), uint32(len(descs)))
	})
	runtime.KeepAlive(descs)
	if err != nil {
		return nil, err
	}

	pools := make([]engine.PoolDesc, 0, count)
	for _, d := range descs[:count] {
		tagLen := 0
		for tagLen < len(d.Tag) && d.Tag[tagLen] != 0 {
			tagLen++
		}
		pools = append(pools, engine.PoolDesc{ID: engine.PoolID(d.ID), Tag: string(d.Tag[:tagLen])})
	}
	return pools, nil
}

func (n *nativeImpl) DeletePool(h engine.Handle, pool engine.PoolID) error {
	_, err := n.call32(func() int32 { return n.lib.ext.deletePool(int64(h), int32(pool)) })
	return err
}

func (n *nativeImpl) DeleteAllPools(h engine.Handle) error {
	_, err := n.call32(func() int32 { return n.lib.ext.deleteAllPools(int64(h)) })
	return err
}

func (n *nativeImpl) DeleteAll(h engine.Handle) error {
	_, err := n.call32(func() int32 { return n.lib.ext.deleteAll(int64(h)) })
	return err
}

// --------------------------------------------------------------------------
// Buffer Allocation
// --------------------------------------------------------------------------

// Alloc returns sector aligned memory owned by the helper library.
// The buffer must be released with Free, the garbage collector does not see it.
func (n *nativeImpl) Alloc(length int) ([]byte, error) {
	return n.allocate(length)
}

func (n *nativeImpl) Free(buf []byte) error {
	return n.release(buf, n.lib.ext.free)
}

// --------------------------------------------------------------------------
// Point Operations
// --------------------------------------------------------------------------

func (n *nativeImpl) ValueLen(h engine.Handle, pool engine.PoolID, key []byte) (int, error) {
	r, err := n.call32(func() int32 {
		return n.lib.ext.getValueLen(int64(h), int32(pool), slicePtr(key), uint32(len(key)))
	})
	runtime.KeepAlive(key)
	return int(r), err
}

func (n *nativeImpl) KeyInfo(h engine.Handle, pool engine.PoolID, key []byte) (engine.KeyInfo, error) {
	var info keyInfo
	_, err := n.call32(func() int32 {
		return n.lib.ext.getKeyInfo(int64(h), int32(pool), slicePtr(key), uint32(len(key)), uintptr(unsafe.Pointer(&info)))
	})
	runtime.KeepAlive(key)
	if err != nil {
		return engine.KeyInfo{}, err
	}
	return convertKeyInfo(info), nil
}

func convertKeyInfo(info keyInfo) engine.KeyInfo {
	return engine.KeyInfo{
		PoolID:   engine.PoolID(info.PoolID),
		KeyLen:   info.KeyLen,
		ValueLen: info.ValueLen,
		Expiry:   info.Expiry,
		GenCount: info.GenCount,
	}
}

func (n *nativeImpl) Get(h engine.Handle, pool engine.PoolID, key []byte, out []byte) (int, error) {
	r, err := n.call32(func() int32 {
		return n.lib.ext.get(int64(h), int32(pool), slicePtr(key), uint32(len(key)), slicePtr(out), uint32(len(out)))
	})
	runtime.KeepAlive(key)
	runtime.KeepAlive(out)
	if err != nil {
		return 0, err
	}
	return int(r), nil
}

func (n *nativeImpl) Put(h engine.Handle, pool engine.PoolID, key []byte, value []byte, expiry uint32) (int, error) {
	r, err := n.call32(func() int32 {
		return n.lib.ext.put(int64(h), int32(pool), slicePtr(key), uint32(len(key)), slicePtr(value), uint32(len(value)), expiry)
	})
	runtime.KeepAlive(key)
	runtime.KeepAlive(value)
	if err != nil {
		return 0, err
	}
	return int(r), nil
}

func (n *nativeImpl) Exists(h engine.Handle, pool engine.PoolID, key []byte) (engine.KeyInfo, bool, error) {
	var info keyInfo
	r, err := n.call32(func() int32 {
		return n.lib.ext.exists(int64(h), int32(pool), slicePtr(key), uint32(len(key)), uintptr(unsafe.Pointer(&info)))
	})
	runtime.KeepAlive(key)
	if err != nil {
		return engine.KeyInfo{}, false, err
	}
	if r == 0 {
		return engine.KeyInfo{}, false, nil
	}
	return convertKeyInfo(info), true, nil
}

func (n *nativeImpl) Delete(h engine.Handle, pool engine.PoolID, key []byte) error {
	_, err := n.call32(func() int32 {
		return n.lib.ext.delete(int64(h), int32(pool), slicePtr(key), uint32(len(key)))
	})
	runtime.KeepAlive(key)
	return err
}

func (n *nativeImpl) BatchPut(h engine.Handle, pool engine.PoolID, keys, values [][]byte, expiries []uint32) error {
	if len(keys) != len(values) || (expiries != nil && len(expiries) != len(keys)) {
		return engine.EINVAL
	}
	if len(keys) == 0 {
		return nil
	}

	keyVec := make([]iovec, len(keys))
	valueVec := make([]iovec, len(values))
	for i := range keys {
		keyVec[i] = iovec{Data: slicePtr(keys[i]), Len: uint32(len(keys[i]))}
		valueVec[i] = iovec{Data: slicePtr(values[i]), Len: uint32(len(values[i]))}
	}
	var expiryPtr uintptr
	if expiries != nil {
		expiryPtr = uintptr(unsafe.Pointer(&expiries[0]))
	}

	_, err := n.call32(func() int32 {
		return n.lib.ext.batchPut(int64(h), int32(pool),
			uintptr(unsafe.Pointer(&keyVec[0])),
			uintptr(unsafe.Pointer(&valueVec[0])),
			expiryPtr, uint32(len(keys)))
	})

	// Keep slices alive until after the FFI call completes
	runtime.KeepAlive(keys)
	runtime.KeepAlive(values)
	runtime.KeepAlive(keyVec)
	runtime.KeepAlive(valueVec)
	runtime.KeepAlive(expiries)
	return err
}

// --------------------------------------------------------------------------
// Iteration
// --------------------------------------------------------------------------

func (n *nativeImpl) Iterator(h engine.Handle, pool engine.PoolID) (engine.CursorID, error) {
	id, err := n.call32(func() int32 { return n.lib.ext.iterator(int64(h), int32(pool)) })
	if err != nil {
		return 0, err
	}
	return engine.CursorID(id), nil
}

func (n *nativeImpl) Next(h engine.Handle, pool engine.PoolID, cursor engine.CursorID) error {
	_, err := n.call32(func() int32 { return n.lib.ext.next(int64(h), int32(pool), int32(cursor)) })
	return err
}

func (n *nativeImpl) Current(h engine.Handle, pool engine.PoolID, cursor engine.CursorID, keyOut, valueOut []byte) (int, int, error) {
	keyLen := uint32(len(keyOut))
	r, err := n.call32(func() int32 {
		return n.lib.ext.getCurrent(int64(h), int32(pool), int32(cursor),
			slicePtr(keyOut), uintptr(unsafe.Pointer(&keyLen)),
			slicePtr(valueOut), uint32(len(valueOut)))
	})
	runtime.KeepAlive(keyOut)
	runtime.KeepAlive(valueOut)
	if err != nil {
		return 0, 0, err
	}
	return int(keyLen), int(r), nil
}

func (n *nativeImpl) EndIteration(h engine.Handle, pool engine.PoolID, cursor engine.CursorID) error {
	_, err := n.call32(func() int32 { return n.lib.ext.endIteration(int64(h), int32(pool), int32(cursor)) })
	return err
}

// --------------------------------------------------------------------------
// Metadata
// --------------------------------------------------------------------------

func (n *nativeImpl) Name() engine.Implementation {
	return engine.ImplNative
}
