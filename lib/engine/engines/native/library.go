package native

import (
	"fmt"
	"sync"
	"unsafe"

	"github.com/ebitengine/purego"
)

// --------------------------------------------------------------------------
// Shared Library Binding
// --------------------------------------------------------------------------

// abiVersion identifies the C ABI a helper library exports
type abiVersion int

const (
	// abiLegacy is the per-pool struct-pointer ABI of fio_kv_helper.h
	abiLegacy abiVersion = 1
	// abiExtended adds pool management, expiry, batches and cursors
	abiExtended abiVersion = 2
)

func (v abiVersion) String() string {
	switch v {
	case abiLegacy:
		return "legacy"
	case abiExtended:
		return "extended"
	default:
		return fmt.Sprintf("abiVersion(%d)", int(v))
	}
}

// extendedMarker is only exported by helpers implementing the extended ABI
const extendedMarker = "fio_kv_store_info"

// Note: All buffer and struct parameters use uintptr or unsafe.Pointer because purego on ARM64 doesn't support slices.
// Every function returning int32 reports failures as a negative value, the
// reason is then available through lastError on the same OS thread.
type extendedSymbols struct {
	open            func(device string, version uint32, mode int32, expiryTime uint32) int64
	close           func(store int64) int32
	storeInfo       func(store int64, info uintptr) int32
	getOrCreatePool func(store int64, tag string) int32
	pools           func(store int64, out uintptr, max uint32) int32
	deletePool      func(store int64, pool int32) int32
	deleteAllPools  func(store int64) int32
	deleteAll       func(store int64) int32
	free            func(buf unsafe.Pointer)
	getValueLen     func(store int64, pool int32, key uintptr, keyLen uint32) int32
	getKeyInfo      func(store int64, pool int32, key uintptr, keyLen uint32, info uintptr) int32
	get             func(store int64, pool int32, key uintptr, keyLen uint32, value uintptr, valueLen uint32) int32
	put             func(store int64, pool int32, key uintptr, keyLen uint32, value uintptr, valueLen uint32, expiry uint32) int32
	exists          func(store int64, pool int32, key uintptr, keyLen uint32, info uintptr) int32
	delete          func(store int64, pool int32, key uintptr, keyLen uint32) int32
	batchPut        func(store int64, pool int32, keys uintptr, values uintptr, expiries uintptr, count uint32) int32
	iterator        func(store int64, pool int32) int32
	next            func(store int64, pool int32, cursor int32) int32
	getCurrent      func(store int64, pool int32, cursor int32, key uintptr, keyLen uintptr, value uintptr, valueLen uint32) int32
	endIteration    func(store int64, pool int32, cursor int32) int32
}

// legacySymbols are the functions of fio_kv_helper.h. Stores are C pointers
// (fio_kv_store_t *), keys and values are passed as fio_kv_key_t and
// fio_kv_value_t structs.
type legacySymbols struct {
	open      func(device string, pool int32) uintptr
	close     func(store uintptr)
	freeValue func(value unsafe.Pointer)
	get       func(store uintptr, key, value unsafe.Pointer) int32
	put       func(store uintptr, key, value unsafe.Pointer) int32
	exists    func(store uintptr, key unsafe.Pointer) bool
	delete    func(store uintptr, key unsafe.Pointer) bool

	// libc free for the fio_kv_store_t returned by open, nil if it could not be resolved
	libcFree func(ptr uintptr)
}

type library struct {
	path      string
	abi       abiVersion
	handle    uintptr
	alloc     func(length uint32) unsafe.Pointer
	lastError func() int32

	ext    extendedSymbols // Bound if abi == abiExtended
	legacy legacySymbols   // Bound if abi == abiLegacy
}

type symbol struct {
	fptr interface{}
	name string
}

var (
	librariesMu sync.Mutex
	libraries   = make(map[string]*library)
)

// bind registers all symbols, failing on the first missing one
func bind(handle uintptr, path string, symbols []symbol) error {
	for _, s := range symbols {
		sym, err := purego.Dlsym(handle, s.name)
		if err != nil {
			return fmt.Errorf("native engine: %s is missing symbol %s: %w", path, s.name, err)
		}
		purego.RegisterFunc(s.fptr, sym)
	}
	return nil
}

// loadLibrary opens the helper library at path, detects its ABI and binds
// the matching symbols. Libraries are loaded once per path and never unloaded.
func loadLibrary(path string) (*library, error) {
	librariesMu.Lock()
	defer librariesMu.Unlock()

	if lib, ok := libraries[path]; ok {
		return lib, nil
	}

	handle, err := purego.Dlopen(path, purego.RTLD_NOW|purego.RTLD_GLOBAL)
	if err != nil {
		return nil, fmt.Errorf("native engine: failed to load %s: %w", path, err)
	}

	lib := &library{path: path, handle: handle, abi: abiLegacy}
	if _, err := purego.Dlsym(handle, extendedMarker); err == nil {
		lib.abi = abiExtended
	}

	common := []symbol{
		{&lib.alloc, "fio_kv_alloc"},
		{&lib.lastError, "fio_kv_get_last_error"},
	}
	if err := bind(handle, path, append(common, lib.symbols()...)); err != nil {
		purego.Dlclose(handle)
		return nil, err
	}
	if lib.abi == abiLegacy {
		// resolved through the helper's dependency on libc
		if sym, err := purego.Dlsym(handle, "free"); err == nil {
			purego.RegisterFunc(&lib.legacy.libcFree, sym)
		}
	}

	libraries[path] = lib
	return lib, nil
}

// symbols returns the ABI specific symbol table
func (lib *library) symbols() []symbol {
	if lib.abi == abiLegacy {
		l := &lib.legacy
		return []symbol{
			{&l.open, "fio_kv_open"},
			{&l.close, "fio_kv_close"},
			{&l.freeValue, "fio_kv_free_value"},
			{&l.get, "fio_kv_get"},
			{&l.put, "fio_kv_put"},
			{&l.exists, "fio_kv_exists"},
			{&l.delete, "fio_kv_delete"},
		}
	}

	e := &lib.ext
	return []symbol{
		{&e.open, "fio_kv_open"},
		{&e.close, "fio_kv_close"},
		{&e.storeInfo, "fio_kv_store_info"},
		{&e.getOrCreatePool, "fio_kv_get_or_create_pool"},
		{&e.pools, "fio_kv_pools"},
		{&e.deletePool, "fio_kv_delete_pool"},
		{&e.deleteAllPools, "fio_kv_delete_all_pools"},
		{&e.deleteAll, "fio_kv_delete_all"},
		{&e.free, "fio_kv_free"},
		{&e.getValueLen, "fio_kv_get_value_len"},
		{&e.getKeyInfo, "fio_kv_get_key_info"},
		{&e.get, "fio_kv_get"},
		{&e.put, "fio_kv_put"},
		{&e.exists, "fio_kv_exists"},
		{&e.delete, "fio_kv_delete"},
		{&e.batchPut, "fio_kv_batch_put"},
		{&e.iterator, "fio_kv_iterator"},
		{&e.next, "fio_kv_next"},
		{&e.getCurrent, "fio_kv_get_current"},
		{&e.endIteration, "fio_kv_end_iteration"},
	}
}
